package surface

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/google/uuid"

	"github.com/ShayCichocki/taskpilot/pkg/models"
)

// File is a surface that exchanges JSON files with the collaborator through
// a shared directory:
//
//	<dir>/outbox/<seq>-<task>-<kind>.json   commands written by taskpilot
//	<dir>/inbox/*.json                      signals dropped by the collaborator
//
// Inbox files hold {"task_id", "text", "timestamp"}; they are deleted once
// read. Collaborators should write to a temporary name and rename into
// place. A plain *.txt file named "<task-id>*.txt" is accepted too, with the
// file body as the signal text.
type File struct {
	*pipe
	dir    string
	logger *slog.Logger

	seq     atomic.Uint64
	watcher *fsnotify.Watcher
	stop    chan struct{}
	wg      sync.WaitGroup
}

// NewFile prepares dir and starts watching its inbox.
func NewFile(dir string, logger *slog.Logger) (*File, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	for _, sub := range []string{"inbox", "outbox"} {
		if err := os.MkdirAll(filepath.Join(dir, sub), 0o755); err != nil {
			return nil, fmt.Errorf("create %s: %w", sub, err)
		}
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("%w: start watcher: %v", ErrUnavailable, err)
	}
	if err := watcher.Add(filepath.Join(dir, "inbox")); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("%w: watch inbox: %v", ErrUnavailable, err)
	}

	f := &File{
		pipe:    newPipe(64),
		dir:     dir,
		logger:  logger,
		watcher: watcher,
		stop:    make(chan struct{}),
	}
	f.wg.Add(1)
	go f.watch()
	f.scanInbox()
	return f, nil
}

// Dir returns the exchange directory.
func (f *File) Dir() string { return f.dir }

func (f *File) SendInstruction(ctx context.Context, taskID, text string) (Ack, error) {
	cmd, err := f.write(ctx, taskID, CommandInstruction, text)
	if err != nil {
		return Ack{}, err
	}
	return Ack{CommandID: cmd.ID, TaskID: taskID, SentAt: cmd.SentAt}, nil
}

func (f *File) SendProbe(ctx context.Context, taskID, text string) error {
	_, err := f.write(ctx, taskID, CommandProbe, text)
	return err
}

func (f *File) Close() error {
	f.fail(ErrClosed)
	select {
	case <-f.stop:
	default:
		close(f.stop)
	}
	err := f.watcher.Close()
	f.wg.Wait()
	return err
}

func (f *File) write(ctx context.Context, taskID string, kind CommandKind, text string) (Command, error) {
	if err := ctx.Err(); err != nil {
		return Command{}, err
	}
	if err := f.alive(); err != nil {
		return Command{}, err
	}
	cmd := Command{ID: uuid.NewString(), TaskID: taskID, Kind: kind, Text: text, SentAt: time.Now()}
	data, err := json.MarshalIndent(cmd, "", "  ")
	if err != nil {
		return Command{}, err
	}

	name := fmt.Sprintf("%06d-%s-%s.json", f.seq.Add(1), taskID, kind)
	final := filepath.Join(f.dir, "outbox", name)
	tmp := final + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		err = fmt.Errorf("%w: write command: %v", ErrUnavailable, err)
		f.fail(err)
		return Command{}, err
	}
	if err := os.Rename(tmp, final); err != nil {
		err = fmt.Errorf("%w: publish command: %v", ErrUnavailable, err)
		f.fail(err)
		return Command{}, err
	}
	f.logger.Debug("command written", "task", taskID, "kind", kind, "file", name)
	return cmd, nil
}

// watch monitors the inbox directory for signal files.
func (f *File) watch() {
	defer f.wg.Done()
	for {
		select {
		case <-f.stop:
			return
		case event, ok := <-f.watcher.Events:
			if !ok {
				f.fail(fmt.Errorf("%w: inbox watcher stopped", ErrUnavailable))
				return
			}
			if event.Op&(fsnotify.Create|fsnotify.Write) != 0 {
				f.consume(event.Name)
			}
			if event.Op&fsnotify.Remove != 0 && filepath.Clean(event.Name) == filepath.Join(f.dir, "inbox") {
				f.fail(fmt.Errorf("%w: inbox removed", ErrUnavailable))
				return
			}
		case err, ok := <-f.watcher.Errors:
			if !ok {
				f.fail(fmt.Errorf("%w: inbox watcher stopped", ErrUnavailable))
				return
			}
			f.logger.Warn("inbox watcher error", "error", err)
		}
	}
}

// scanInbox picks up files dropped before the watcher started.
func (f *File) scanInbox() {
	entries, err := os.ReadDir(filepath.Join(f.dir, "inbox"))
	if err != nil {
		return
	}
	for _, e := range entries {
		if !e.IsDir() {
			f.consume(filepath.Join(f.dir, "inbox", e.Name()))
		}
	}
}

// consume reads one inbox file and emits its signal. Partially written files
// fail to parse and are retried on their next write event.
func (f *File) consume(path string) {
	base := filepath.Base(path)
	ext := filepath.Ext(base)
	if ext != ".json" && ext != ".txt" {
		return
	}

	data, err := os.ReadFile(path)
	if err != nil || len(data) == 0 {
		return
	}

	var sig models.Signal
	if ext == ".json" {
		if err := json.Unmarshal(data, &sig); err != nil || sig.TaskID == "" {
			return
		}
	} else {
		sig = models.Signal{TaskID: taskIDFromName(base), Text: strings.TrimSpace(string(data))}
		if sig.TaskID == "" {
			return
		}
	}

	// Whoever removes the file owns the signal, so a file seen by both the
	// initial scan and the watcher is emitted once.
	if err := os.Remove(path); err != nil {
		if !os.IsNotExist(err) {
			f.logger.Warn("remove inbox file", "file", base, "error", err)
		}
		return
	}

	f.logger.Debug("signal received", "task", sig.TaskID, "file", base)
	f.emit(sig)
}

// taskIDFromName extracts "task-N" from names like "task-3.txt" or "task-3-reply.txt".
func taskIDFromName(name string) string {
	name = strings.TrimSuffix(name, filepath.Ext(name))
	if !strings.HasPrefix(name, "task-") {
		return ""
	}
	end := len("task-")
	for end < len(name) && name[end] >= '0' && name[end] <= '9' {
		end++
	}
	if end == len("task-") {
		return ""
	}
	return name[:end]
}
