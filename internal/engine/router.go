package engine

import (
	"context"
	"log/slog"
	"sync/atomic"

	"github.com/ShayCichocki/taskpilot/pkg/models"
)

// DefaultInboxBuffer is the per-task signal buffer.
const DefaultInboxBuffer = 16

// router fans surface signals into per-task inboxes. It is the only writer
// of every inbox, and never blocks on a slow task: a full inbox loses its
// oldest signal.
type router struct {
	inboxes map[string]chan models.Signal
	logger  *slog.Logger
	dropped atomic.Uint64
	unknown atomic.Uint64
}

func newRouter(ids []string, buffer int, logger *slog.Logger) *router {
	if buffer < 1 {
		buffer = DefaultInboxBuffer
	}
	r := &router{inboxes: make(map[string]chan models.Signal, len(ids)), logger: logger}
	for _, id := range ids {
		r.inboxes[id] = make(chan models.Signal, buffer)
	}
	return r
}

// inbox returns the signal channel of a task.
func (r *router) inbox(id string) <-chan models.Signal { return r.inboxes[id] }

// run forwards signals until ctx ends or the surface goes down.
func (r *router) run(ctx context.Context, signals <-chan models.Signal, done <-chan struct{}, onSignal func(models.Signal)) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-done:
			return
		case sig := <-signals:
			r.deliver(sig)
			if onSignal != nil {
				onSignal(sig)
			}
		}
	}
}

func (r *router) deliver(sig models.Signal) {
	inbox, ok := r.inboxes[sig.TaskID]
	if !ok {
		r.unknown.Add(1)
		r.logger.Warn("signal for unknown task", "task", sig.TaskID)
		return
	}
	for {
		select {
		case inbox <- sig:
			return
		default:
		}
		select {
		case <-inbox:
			r.dropped.Add(1)
			r.logger.Warn("task inbox full, dropped oldest signal", "task", sig.TaskID)
		default:
		}
	}
}
