package surface

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ShayCichocki/taskpilot/pkg/models"
)

func nextSignal(t *testing.T, s Surface) models.Signal {
	t.Helper()
	select {
	case sig := <-s.Signals():
		return sig
	case <-time.After(2 * time.Second):
		t.Fatal("no signal received")
		return models.Signal{}
	}
}

func TestScripted_DefaultRepliesThenRepeatsLast(t *testing.T) {
	s := NewScripted(DefaultScript())
	defer s.Close()
	ctx := context.Background()

	ack, err := s.SendInstruction(ctx, "task-1", "create users table")
	require.NoError(t, err)
	assert.Equal(t, "task-1", ack.TaskID)
	assert.NotEmpty(t, ack.CommandID)
	assert.Equal(t, "working on it", nextSignal(t, s).Text)

	require.NoError(t, s.SendProbe(ctx, "task-1", "are you done?"))
	assert.Equal(t, "yes, done", nextSignal(t, s).Text)

	require.NoError(t, s.SendProbe(ctx, "task-1", "are you done?"))
	sig := nextSignal(t, s)
	assert.Equal(t, "yes, done", sig.Text)
	assert.False(t, sig.Timestamp.IsZero())

	cmds := s.Commands()
	require.Len(t, cmds, 3)
	assert.Equal(t, CommandInstruction, cmds[0].Kind)
	assert.Equal(t, CommandProbe, cmds[2].Kind)
}

func TestScripted_MatchesByTextAndID(t *testing.T) {
	s := NewScripted(Script{
		Default: []string{"done"},
		Tasks: []ScriptEntry{
			{Match: "button", Replies: []string{"not finished yet"}},
			{Match: "task-2", Silent: true},
		},
	})
	defer s.Close()
	ctx := context.Background()

	_, err := s.SendInstruction(ctx, "task-1", "Add a Button component")
	require.NoError(t, err)
	assert.Equal(t, "not finished yet", nextSignal(t, s).Text)

	_, err = s.SendInstruction(ctx, "task-2", "write docs")
	require.NoError(t, err)
	select {
	case sig := <-s.Signals():
		t.Fatalf("silent task replied: %+v", sig)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestScripted_Unavailable(t *testing.T) {
	s := NewScripted(Script{Tasks: []ScriptEntry{{Match: "deploy", Unavailable: true}}})
	ctx := context.Background()

	_, err := s.SendInstruction(ctx, "task-1", "deploy the app")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnavailable))

	select {
	case <-s.Done():
	default:
		t.Fatal("surface should be down")
	}
	assert.ErrorIs(t, s.Err(), ErrUnavailable)

	err = s.SendProbe(ctx, "task-1", "are you done?")
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestScripted_CloseRejectsCommands(t *testing.T) {
	s := NewScripted(DefaultScript())
	require.NoError(t, s.Close())
	_, err := s.SendInstruction(context.Background(), "task-1", "x")
	assert.ErrorIs(t, err, ErrClosed)
}

func TestScripted_CanceledContext(t *testing.T) {
	s := NewScripted(DefaultScript())
	defer s.Close()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := s.SendInstruction(ctx, "task-1", "x")
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, s.Commands())
}

func TestLoadScript(t *testing.T) {
	path := filepath.Join(t.TempDir(), "script.yaml")
	body := "delay: 5ms\ndefault: [\"ok\", \"yes, done\"]\ntasks:\n  - match: task-3\n    silent: true\n"
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))

	s, err := LoadScript(path)
	require.NoError(t, err)
	assert.Equal(t, 5*time.Millisecond, s.Delay)
	assert.Equal(t, []string{"ok", "yes, done"}, s.Default)
	require.Len(t, s.Tasks, 1)
	assert.True(t, s.Tasks[0].Silent)

	_, err = LoadScript(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestFile_WritesCommands(t *testing.T) {
	dir := t.TempDir()
	f, err := NewFile(dir, nil)
	require.NoError(t, err)
	defer f.Close()

	_, err = f.SendInstruction(context.Background(), "task-1", "create users table")
	require.NoError(t, err)
	require.NoError(t, f.SendProbe(context.Background(), "task-1", "are you done?"))

	entries, err := os.ReadDir(filepath.Join(dir, "outbox"))
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "000001-task-1-instruction.json", entries[0].Name())
	assert.Equal(t, "000002-task-1-probe.json", entries[1].Name())

	data, err := os.ReadFile(filepath.Join(dir, "outbox", entries[0].Name()))
	require.NoError(t, err)
	var cmd Command
	require.NoError(t, json.Unmarshal(data, &cmd))
	assert.Equal(t, "create users table", cmd.Text)
	assert.Equal(t, CommandInstruction, cmd.Kind)
}

func TestFile_ReadsInboxSignals(t *testing.T) {
	dir := t.TempDir()
	f, err := NewFile(dir, nil)
	require.NoError(t, err)
	defer f.Close()

	inbox := filepath.Join(dir, "inbox")
	data, err := json.Marshal(models.Signal{TaskID: "task-2", Text: "yes, done"})
	require.NoError(t, err)
	tmp := filepath.Join(inbox, "reply.tmp")
	require.NoError(t, os.WriteFile(tmp, data, 0o644))
	require.NoError(t, os.Rename(tmp, filepath.Join(inbox, "reply.json")))

	sig := nextSignal(t, f)
	assert.Equal(t, "task-2", sig.TaskID)
	assert.Equal(t, "yes, done", sig.Text)

	require.Eventually(t, func() bool {
		_, err := os.Stat(filepath.Join(inbox, "reply.json"))
		return os.IsNotExist(err)
	}, 2*time.Second, 10*time.Millisecond)
}

func TestFile_PicksUpExistingTextFiles(t *testing.T) {
	dir := t.TempDir()
	inbox := filepath.Join(dir, "inbox")
	require.NoError(t, os.MkdirAll(inbox, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(inbox, "task-7-reply.txt"), []byte("still working\n"), 0o644))

	f, err := NewFile(dir, nil)
	require.NoError(t, err)
	defer f.Close()

	sig := nextSignal(t, f)
	assert.Equal(t, "task-7", sig.TaskID)
	assert.Equal(t, "still working", sig.Text)
}

func TestFile_CloseStopsSurface(t *testing.T) {
	f, err := NewFile(t.TempDir(), nil)
	require.NoError(t, err)
	require.NoError(t, f.Close())
	<-f.Done()
	assert.ErrorIs(t, f.Err(), ErrClosed)
	assert.ErrorIs(t, f.SendProbe(context.Background(), "task-1", "x"), ErrClosed)
}

func TestTaskIDFromName(t *testing.T) {
	tests := map[string]string{
		"task-3.txt":        "task-3",
		"task-12-reply.txt": "task-12",
		"task-.txt":         "",
		"notes.txt":         "",
	}
	for name, want := range tests {
		assert.Equal(t, want, taskIDFromName(name), name)
	}
}

func TestNewClaude_RequiresAPIKey(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "")
	_, err := NewClaude(ClaudeConfig{}, nil)
	assert.ErrorIs(t, err, ErrNoAPIKey)
}

func TestNewClaude_Defaults(t *testing.T) {
	c, err := NewClaude(ClaudeConfig{APIKey: "test-key", Conventions: []string{"use pnpm"}}, nil)
	require.NoError(t, err)
	defer c.Close()
	assert.Equal(t, anthropic.ModelClaudeSonnet4_20250514, c.Model())
	assert.Contains(t, c.system, "use pnpm")
}

func TestTranslateModelForBedrock(t *testing.T) {
	assert.Equal(t, anthropic.Model("us.anthropic.claude-sonnet-4-20250514-v1:0"),
		TranslateModelForBedrock(anthropic.ModelClaudeSonnet4_20250514))
	assert.Equal(t, anthropic.Model("custom-model"), TranslateModelForBedrock("custom-model"))
}

func TestOpen(t *testing.T) {
	s, err := Open(Options{}, nil)
	require.NoError(t, err)
	_, ok := s.(*Scripted)
	assert.True(t, ok)
	s.Close()

	s, err = Open(Options{Kind: KindFile, Dir: t.TempDir()}, nil)
	require.NoError(t, err)
	_, ok = s.(*File)
	assert.True(t, ok)
	s.Close()

	_, err = Open(Options{Kind: KindFile}, nil)
	assert.Error(t, err)
	_, err = Open(Options{Kind: "carrier-pigeon"}, nil)
	assert.Error(t, err)
}
