package state

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/ShayCichocki/taskpilot/internal/bus"
)

// eventSink is the part of a Store the recorder writes to.
type eventSink interface {
	EventStore
	EnsureSession(ctx context.Context, id string, startedAt time.Time) error
}

// Recorder writes every status event of the bus into a store. Events may
// arrive before the session row exists, so the first event of a session
// creates a placeholder row that SaveReport later completes.
type Recorder struct {
	store  eventSink
	logger *slog.Logger

	mu    sync.Mutex
	seqs  map[string]int
	saved int
}

// NewRecorder creates a recorder for store.
func NewRecorder(store eventSink, logger *slog.Logger) *Recorder {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Recorder{store: store, logger: logger, seqs: make(map[string]int)}
}

// Run records events from sub until ctx ends or the subscription closes.
func (r *Recorder) Run(ctx context.Context, sub *bus.Subscription) {
	sub.Run(ctx, func(ev bus.StatusEvent) {
		if err := r.Record(context.WithoutCancel(ctx), ev); err != nil {
			r.logger.Warn("record status event", "session", ev.SessionID, "type", ev.Type, "error", err)
		}
	})
}

// Record stores one event.
func (r *Recorder) Record(ctx context.Context, ev bus.StatusEvent) error {
	if ev.SessionID == "" {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	seq, known := r.seqs[ev.SessionID]
	if !known {
		if err := r.store.EnsureSession(ctx, ev.SessionID, ev.Timestamp); err != nil {
			return err
		}
	}
	if err := r.store.AppendEvent(ctx, seq, ev); err != nil {
		return err
	}
	r.seqs[ev.SessionID] = seq + 1
	r.saved++
	return nil
}

// Saved returns the number of events written.
func (r *Recorder) Saved() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.saved
}
