// Package eventlog appends status events to an NDJSON transcript.
package eventlog

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/ShayCichocki/taskpilot/internal/bus"
)

// MaxLineSize bounds one NDJSON line, newline included (256 KiB).
const MaxLineSize = 256 * 1024

// EventLog writes status events to an NDJSON file, one event per line.
type EventLog struct {
	file   *os.File
	writer *bufio.Writer
	logger *slog.Logger
	mu     sync.Mutex
	count  int
}

// NewEventLog opens logPath for appending, creating it and its directory.
func NewEventLog(logPath string, logger *slog.Logger) (*EventLog, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if err := os.MkdirAll(filepath.Dir(logPath), 0o700); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}
	file, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}
	return &EventLog{file: file, writer: bufio.NewWriter(file), logger: logger}, nil
}

// Write appends one event and flushes it.
func (l *EventLog) Write(ev bus.StatusEvent) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	if len(data) >= MaxLineSize {
		l.logger.Error("event exceeds size limit", "size", len(data), "limit", MaxLineSize)
		return fmt.Errorf("event size %d exceeds limit %d", len(data), MaxLineSize-1)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file == nil {
		return os.ErrClosed
	}
	if _, err := l.writer.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("failed to write event: %w", err)
	}
	if err := l.writer.Flush(); err != nil {
		return fmt.Errorf("failed to flush event: %w", err)
	}
	l.count++
	return nil
}

// Count returns the number of events written.
func (l *EventLog) Count() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.count
}

// Run writes events from sub until ctx ends or the subscription closes.
func (l *EventLog) Run(ctx context.Context, sub *bus.Subscription) {
	sub.Run(ctx, func(ev bus.StatusEvent) {
		if err := l.Write(ev); err != nil {
			l.logger.Warn("write event log", "error", err)
		}
	})
}

// Close closes the event log file.
func (l *EventLog) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file == nil {
		return nil
	}
	err := errors.Join(l.writer.Flush(), l.file.Close())
	l.file = nil
	return err
}

// Read decodes every event from an NDJSON stream. Blank lines are skipped.
func Read(r io.Reader) ([]bus.StatusEvent, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), MaxLineSize)

	var out []bus.StatusEvent
	line := 0
	for scanner.Scan() {
		line++
		data := scanner.Bytes()
		if len(data) == 0 {
			continue
		}
		var ev bus.StatusEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			return out, fmt.Errorf("failed to unmarshal line %d: %w", line, err)
		}
		out = append(out, ev)
	}
	if err := scanner.Err(); err != nil {
		return out, fmt.Errorf("scanner error at line %d: %w", line+1, err)
	}
	return out, nil
}

// ReadFile decodes every event of an NDJSON file.
func ReadFile(path string) ([]bus.StatusEvent, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Read(f)
}

// Filter returns the events of one session, optionally narrowed to one task.
func Filter(events []bus.StatusEvent, sessionID, taskID string) []bus.StatusEvent {
	var out []bus.StatusEvent
	for _, ev := range events {
		if ev.SessionID == sessionID && (taskID == "" || ev.TaskID == taskID) {
			out = append(out, ev)
		}
	}
	return out
}
