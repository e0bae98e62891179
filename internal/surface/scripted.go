package surface

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.yaml.in/yaml/v3"

	"github.com/ShayCichocki/taskpilot/pkg/models"
)

// Script describes canned replies for the scripted surface.
//
//	delay: 50ms
//	default: ["working on it", "yes, done"]
//	tasks:
//	  - match: button          # task id, or substring of the instruction
//	    replies: ["not finished yet"]
//	  - match: task-3
//	    silent: true           # never replies
//	  - match: deploy
//	    unavailable: true      # the surface goes down on this instruction
type Script struct {
	Delay   time.Duration `yaml:"delay"`
	Default []string      `yaml:"default"`
	Tasks   []ScriptEntry `yaml:"tasks"`
}

// ScriptEntry scripts the replies for matching tasks. Replies are consumed
// one per command; the last reply repeats once the list is exhausted.
type ScriptEntry struct {
	Match       string   `yaml:"match"`
	Replies     []string `yaml:"replies"`
	Silent      bool     `yaml:"silent"`
	Unavailable bool     `yaml:"unavailable"`
}

// DefaultScript completes every task on the first probe.
func DefaultScript() Script {
	return Script{Default: []string{"working on it", "yes, done"}}
}

// LoadScript reads a YAML script file.
func LoadScript(path string) (Script, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Script{}, fmt.Errorf("read script: %w", err)
	}
	var s Script
	if err := yaml.Unmarshal(data, &s); err != nil {
		return Script{}, fmt.Errorf("parse script %s: %w", path, err)
	}
	return s, nil
}

// Scripted is an in-process surface that answers from a Script. It backs
// dry runs, demos, and tests.
type Scripted struct {
	*pipe
	script Script

	mu       sync.Mutex
	cursors  map[string]*scriptCursor
	commands []Command
}

type scriptCursor struct {
	entry ScriptEntry
	next  int
}

// NewScripted creates a scripted surface.
func NewScripted(script Script) *Scripted {
	return &Scripted{
		pipe:    newPipe(64),
		script:  script,
		cursors: make(map[string]*scriptCursor),
	}
}

func (s *Scripted) SendInstruction(ctx context.Context, taskID, text string) (Ack, error) {
	cmd, err := s.record(ctx, taskID, CommandInstruction, text)
	if err != nil {
		return Ack{}, err
	}

	s.mu.Lock()
	cur := &scriptCursor{entry: s.entryFor(taskID, text)}
	s.cursors[taskID] = cur
	s.mu.Unlock()

	if cur.entry.Unavailable {
		err := fmt.Errorf("%w: scripted outage on %s", ErrUnavailable, taskID)
		s.fail(err)
		return Ack{}, err
	}
	s.reply(taskID)
	return Ack{CommandID: cmd.ID, TaskID: taskID, SentAt: cmd.SentAt}, nil
}

func (s *Scripted) SendProbe(ctx context.Context, taskID, text string) error {
	if _, err := s.record(ctx, taskID, CommandProbe, text); err != nil {
		return err
	}
	s.reply(taskID)
	return nil
}

// Commands returns every command received so far.
func (s *Scripted) Commands() []Command {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Command(nil), s.commands...)
}

func (s *Scripted) Close() error {
	s.fail(ErrClosed)
	return nil
}

func (s *Scripted) record(ctx context.Context, taskID string, kind CommandKind, text string) (Command, error) {
	if err := ctx.Err(); err != nil {
		return Command{}, err
	}
	if err := s.alive(); err != nil {
		return Command{}, err
	}
	cmd := Command{ID: uuid.NewString(), TaskID: taskID, Kind: kind, Text: text, SentAt: time.Now()}
	s.mu.Lock()
	s.commands = append(s.commands, cmd)
	s.mu.Unlock()
	return cmd, nil
}

func (s *Scripted) entryFor(taskID, text string) ScriptEntry {
	lower := strings.ToLower(text)
	for _, e := range s.script.Tasks {
		m := strings.ToLower(strings.TrimSpace(e.Match))
		if m == "" {
			continue
		}
		if m == strings.ToLower(taskID) || strings.Contains(lower, m) {
			return e
		}
	}
	return ScriptEntry{Replies: s.script.Default}
}

// reply schedules the next scripted reply for taskID.
func (s *Scripted) reply(taskID string) {
	s.mu.Lock()
	cur, ok := s.cursors[taskID]
	if !ok || cur.entry.Silent || len(cur.entry.Replies) == 0 {
		s.mu.Unlock()
		return
	}
	text := cur.entry.Replies[min(cur.next, len(cur.entry.Replies)-1)]
	cur.next++
	s.mu.Unlock()

	sig := models.Signal{TaskID: taskID, Text: text}
	if s.script.Delay <= 0 {
		go s.emit(sig)
		return
	}
	time.AfterFunc(s.script.Delay, func() { s.emit(sig) })
}
