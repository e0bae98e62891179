// Package bus fans orchestration status events out to listeners.
//
// Publishing never blocks. Each subscriber owns a bounded buffer; when it is
// full the oldest buffered event is discarded to make room for the newest,
// and the subscriber's drop counter is incremented. Slow listeners therefore
// lose history, never the latest state.
package bus

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ShayCichocki/taskpilot/pkg/models"
)

// EventType represents the type of status event.
type EventType string

const (
	// EventTransition is a task state change.
	EventTransition EventType = "transition"
	// EventSignal reports a signal received from the execution surface.
	EventSignal EventType = "signal"
	// EventPhaseStarted indicates a phase was dispatched.
	EventPhaseStarted EventType = "phase_started"
	// EventPhaseCompleted indicates every task of a phase is terminal.
	EventPhaseCompleted EventType = "phase_completed"
	// EventWarning carries a session warning.
	EventWarning EventType = "warning"
	// EventSessionStarted indicates execution began.
	EventSessionStarted EventType = "session_started"
	// EventSessionDone indicates the entire session is complete.
	EventSessionDone EventType = "session_done"
)

// DefaultBuffer is the per-subscriber buffer used when none is given.
const DefaultBuffer = 256

// StatusEvent is the payload delivered to listeners.
type StatusEvent struct {
	Type      EventType            `json:"type"`
	SessionID string               `json:"session_id"`
	TaskID    string               `json:"task_id,omitempty"`
	From      models.TaskState     `json:"from,omitempty"`
	To        models.TaskState     `json:"to,omitempty"`
	Reason    models.FailureReason `json:"reason,omitempty"`
	// Phase is the phase index, or -1 when not applicable.
	Phase     int       `json:"phase"`
	Attempt   int       `json:"attempt,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	Detail    string    `json:"detail,omitempty"`
}

// Bus is a non-blocking fan-out broadcaster.
type Bus struct {
	mu     sync.RWMutex
	subs   map[uint64]*Subscription
	nextID uint64
	closed bool
	logger *slog.Logger
}

// New creates a Bus. A nil logger discards output.
func New(logger *slog.Logger) *Bus {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Bus{subs: make(map[uint64]*Subscription), logger: logger}
}

// Subscribe registers a listener with the given buffer size (DefaultBuffer
// when buffer < 1). Subscribing to a closed bus returns a closed subscription.
func (b *Bus) Subscribe(buffer int) *Subscription {
	if buffer < 1 {
		buffer = DefaultBuffer
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	s := &Subscription{id: b.nextID, bus: b, ch: make(chan StatusEvent, buffer)}
	b.nextID++
	if b.closed {
		s.closeLocked()
		return s
	}
	b.subs[s.id] = s
	return s
}

// Publish delivers ev to every subscriber without blocking.
func (b *Bus) Publish(ev StatusEvent) {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return
	}
	for _, s := range b.subs {
		if s.offer(ev) {
			if n := s.dropped.Load(); n%100 == 1 {
				b.logger.Warn("subscriber buffer full, dropped oldest event", "subscriber", s.id, "dropped", n)
			}
		}
	}
}

// Close closes every subscription. Later publishes are ignored.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for id, s := range b.subs {
		s.closeLocked()
		delete(b.subs, id)
	}
}

// Subscribers returns the number of open subscriptions.
func (b *Bus) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Subscription is one listener's buffered view of the bus.
type Subscription struct {
	id      uint64
	bus     *Bus
	ch      chan StatusEvent
	mu      sync.Mutex
	closed  bool
	dropped atomic.Uint64
}

// Events returns the channel events are delivered on. It is closed when the
// subscription or the bus is closed.
func (s *Subscription) Events() <-chan StatusEvent {
	return s.ch
}

// Dropped returns how many events were discarded for this subscriber.
func (s *Subscription) Dropped() uint64 {
	return s.dropped.Load()
}

// Close unsubscribes and closes the event channel.
func (s *Subscription) Close() {
	s.bus.mu.Lock()
	defer s.bus.mu.Unlock()
	delete(s.bus.subs, s.id)
	s.closeLocked()
}

// Run calls fn for each event until the subscription closes or ctx ends.
func (s *Subscription) Run(ctx context.Context, fn func(StatusEvent)) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-s.ch:
			if !ok {
				return
			}
			fn(ev)
		}
	}
}

// offer enqueues ev, evicting the oldest event when the buffer is full.
// It reports whether an event was dropped.
func (s *Subscription) offer(ev StatusEvent) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	select {
	case s.ch <- ev:
		return false
	default:
	}
	evicted := false
	select {
	case <-s.ch:
		evicted = true
		s.dropped.Add(1)
	default:
	}
	// s.mu serializes senders and the buffer now has room, so this cannot block.
	s.ch <- ev
	return evicted
}

func (s *Subscription) closeLocked() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.ch)
	}
}
