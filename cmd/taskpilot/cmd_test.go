package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/fatih/color"
	"github.com/sourcegraph/conc"

	"github.com/ShayCichocki/taskpilot/internal/bus"
	"github.com/ShayCichocki/taskpilot/internal/config"
	"github.com/ShayCichocki/taskpilot/internal/eventlog"
	"github.com/ShayCichocki/taskpilot/internal/state"
	"github.com/ShayCichocki/taskpilot/pkg/models"
)

func TestReadTaskList(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "tasks.md")
	if err := os.WriteFile(file, []byte("- build login page"), 0o644); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name    string
		args    []string
		text    string
		stdin   string
		noStdin bool
		want    string
		wantErr bool
	}{
		{name: "text flag", text: "fix the header", want: "fix the header"},
		{name: "file argument", args: []string{file}, want: "- build login page"},
		{name: "stdin", stdin: "from a pipe", want: "from a pipe"},
		{name: "dash reads stdin", args: []string{"-"}, stdin: "dash", want: "dash"},
		{name: "text and file", args: []string{file}, text: "x", wantErr: true},
		{name: "nothing given", noStdin: true, wantErr: true},
		{name: "missing file", args: []string{filepath.Join(dir, "nope.md")}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var stdin *strings.Reader
			if !tt.noStdin {
				stdin = strings.NewReader(tt.stdin)
			}
			var got string
			var err error
			if stdin == nil {
				got, err = readTaskList(tt.args, tt.text, nil)
			} else {
				got, err = readTaskList(tt.args, tt.text, stdin)
			}
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error, got %q", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("readTaskList() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("readTaskList() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestReadFramework(t *testing.T) {
	fw, err := readFramework("")
	if err != nil || fw != nil {
		t.Fatalf("empty value: got %v, %v", fw, err)
	}

	fw, err = readFramework("framework: react")
	if err != nil {
		t.Fatal(err)
	}
	if fw == nil || *fw != "framework: react" {
		t.Errorf("inline value = %v", fw)
	}

	path := filepath.Join(t.TempDir(), "fw.yaml")
	if err := os.WriteFile(path, []byte("framework: vue\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	fw, err = readFramework("@" + path)
	if err != nil {
		t.Fatal(err)
	}
	if fw == nil || *fw != "framework: vue\n" {
		t.Errorf("file value = %v", fw)
	}

	if _, err := readFramework("@" + path + ".missing"); err == nil {
		t.Error("expected error for missing framework file")
	}
}

func TestBuildInput(t *testing.T) {
	input, err := buildInput(nil, "add tests", "framework: go", nil)
	if err != nil {
		t.Fatal(err)
	}
	if input.RawText != "add tests" {
		t.Errorf("RawText = %q", input.RawText)
	}
	if input.FrameworkContext == nil || *input.FrameworkContext != "framework: go" {
		t.Errorf("FrameworkContext = %v", input.FrameworkContext)
	}
}

func TestConfigValues(t *testing.T) {
	cfg := config.Default()

	if err := setConfigValue(cfg, "engine.max_parallel", "5"); err != nil {
		t.Fatal(err)
	}
	if err := setConfigValue(cfg, "ENGINE.CONFIRMATION_TIMEOUT", "90s"); err != nil {
		t.Fatal(err)
	}
	if err := setConfigValue(cfg, "surface.claude.use_bedrock", "true"); err != nil {
		t.Fatal(err)
	}
	if err := setConfigValue(cfg, "surface.claude.api_key", "sk-ant-abcdefghijklmnop"); err != nil {
		t.Fatal(err)
	}

	checks := map[string]string{
		"engine.max_parallel":         "5",
		"engine.confirmation_timeout": "1m30s",
		"surface.claude.use_bedrock":  "true",
		"surface.kind":                "scripted",
		"surface.claude.api_key":      config.MaskAPIKey("sk-ant-abcdefghijklmnop"),
	}
	for key, want := range checks {
		got, err := getConfigValue(cfg, key)
		if err != nil {
			t.Fatalf("getConfigValue(%s) error = %v", key, err)
		}
		if got != want {
			t.Errorf("getConfigValue(%s) = %q, want %q", key, got, want)
		}
	}

	if err := setConfigValue(cfg, "engine.max_attempts", "many"); err == nil {
		t.Error("expected parse error")
	}
	if err := setConfigValue(cfg, "no.such.key", "1"); err == nil {
		t.Error("expected unknown key error")
	}
	if _, err := getConfigValue(cfg, "no.such.key"); err == nil {
		t.Error("expected unknown key error")
	}
}

func TestConfigKeysAreReadable(t *testing.T) {
	cfg := config.Default()
	for _, key := range configKeys {
		if _, err := getConfigValue(cfg, key); err != nil {
			t.Errorf("listed key %s is not readable: %v", key, err)
		}
	}
}

func TestWriteTemplate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "file.yaml")

	wrote, err := writeTemplate(path, "one", false)
	if err != nil || !wrote {
		t.Fatalf("first write: wrote=%v err=%v", wrote, err)
	}
	wrote, err = writeTemplate(path, "two", false)
	if err != nil || wrote {
		t.Fatalf("second write without force: wrote=%v err=%v", wrote, err)
	}
	data, _ := os.ReadFile(path)
	if string(data) != "one" {
		t.Errorf("content = %q, want one", data)
	}

	wrote, err = writeTemplate(path, "three", true)
	if err != nil || !wrote {
		t.Fatalf("forced write: wrote=%v err=%v", wrote, err)
	}
	data, _ = os.ReadFile(path)
	if string(data) != "three" {
		t.Errorf("content = %q, want three", data)
	}
}

func TestUpdateGitignore(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".gitignore")
	if err := os.WriteFile(path, []byte("node_modules/\n.taskpilot/logs/"), 0o644); err != nil {
		t.Fatal(err)
	}

	if err := updateGitignore(dir); err != nil {
		t.Fatal(err)
	}
	data, _ := os.ReadFile(path)
	content := string(data)
	if !strings.HasPrefix(content, "node_modules/\n.taskpilot/logs/\n") {
		t.Errorf("existing entries not preserved:\n%s", content)
	}
	if strings.Count(content, ".taskpilot/logs/") != 1 {
		t.Errorf("existing entry duplicated:\n%s", content)
	}
	for _, entry := range []string{".taskpilot/state.db*", ".taskpilot/events.ndjson", ".taskpilot/surface/"} {
		if !strings.Contains(content, entry) {
			t.Errorf("missing %s:\n%s", entry, content)
		}
	}

	// A second run leaves the file alone.
	if err := updateGitignore(dir); err != nil {
		t.Fatal(err)
	}
	again, _ := os.ReadFile(path)
	if string(again) != content {
		t.Errorf("second update changed the file:\n%s", again)
	}
}

func TestPrintReport(t *testing.T) {
	noColor := color.NoColor
	color.NoColor = true
	t.Cleanup(func() { color.NoColor = noColor })

	start := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	report := &models.SessionReport{
		SessionID:  "sess-1",
		StartedAt:  start,
		FinishedAt: start.Add(1500 * time.Millisecond),
		Outcome:    models.OutcomePartial,
		Tasks: []models.TaskResult{
			{ID: "task-1", Phase: 0, State: models.TaskCompleted, Attempts: 1, LastSignal: "done"},
			{ID: "task-2", Phase: -1, State: models.TaskRejected, Reason: models.ReasonValidationRejected},
		},
	}

	var buf bytes.Buffer
	printReport(&buf, report)
	out := buf.String()

	for _, want := range []string{"sess-1", "partial", "1.5s", "task-1", "phase 1", `"done"`, "task-2", "phase -", string(models.ReasonValidationRejected), "1 completed, 0 failed, 0 cancelled, 1 rejected"} {
		if !strings.Contains(out, want) {
			t.Errorf("report output missing %q:\n%s", want, out)
		}
	}

	buf.Reset()
	printReport(&buf, nil)
	if buf.Len() != 0 {
		t.Errorf("nil report printed %q", buf.String())
	}
}

func TestLoggedEvents(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.ndjson")
	l, err := eventlog.NewEventLog(path, nil)
	if err != nil {
		t.Fatal(err)
	}
	for _, ev := range []bus.StatusEvent{
		{Type: bus.EventTransition, SessionID: "s-1", TaskID: "task-1", To: models.TaskExecuting},
		{Type: bus.EventSignal, SessionID: "s-1", TaskID: "task-2", Detail: "done"},
		{Type: bus.EventTransition, SessionID: "s-2", TaskID: "task-1", To: models.TaskCompleted},
	} {
		if err := l.Write(ev); err != nil {
			t.Fatal(err)
		}
	}
	if err := l.Close(); err != nil {
		t.Fatal(err)
	}

	events, err := loggedEvents(path, "s-1", "")
	if err != nil {
		t.Fatal(err)
	}
	if len(events) != 2 {
		t.Fatalf("got %d events for s-1, want 2", len(events))
	}

	events, err = loggedEvents(path, "s-1", "task-2")
	if err != nil {
		t.Fatal(err)
	}
	if len(events) != 1 || events[0].Detail != "done" {
		t.Errorf("task filter returned %+v", events)
	}

	events, err = loggedEvents(filepath.Join(t.TempDir(), "missing.ndjson"), "s-1", "")
	if err != nil || len(events) != 0 {
		t.Errorf("missing log: events=%v err=%v", events, err)
	}
}

func TestStartRecorderDrainsAfterCancel(t *testing.T) {
	store, err := state.OpenProject(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()

	b := bus.New(nil)
	ctx, cancel := context.WithCancel(context.Background())
	var listeners conc.WaitGroup
	startRecorder(ctx, &listeners, b, store, nil)

	cancel()
	for i := 0; i < 5; i++ {
		b.Publish(bus.StatusEvent{Type: bus.EventTransition, SessionID: "s-1", TaskID: "task-1",
			From: models.TaskExecuting, To: models.TaskCancelled, Reason: models.ReasonSessionCancelled})
	}
	b.Close()
	listeners.Wait()

	events, err := store.Events(context.Background(), "s-1", "")
	if err != nil {
		t.Fatal(err)
	}
	if len(events) != 5 {
		t.Errorf("recorded %d events after cancellation, want 5", len(events))
	}
}
