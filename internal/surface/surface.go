// Package surface connects the engine to the external collaborator that
// performs task work. Commands are fire-and-forget; replies arrive on the
// Signals channel as free text.
package surface

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/ShayCichocki/taskpilot/pkg/models"
)

var (
	// ErrUnavailable indicates the surface can no longer accept commands or
	// deliver signals. It is fatal to a session.
	ErrUnavailable = errors.New("execution surface unavailable")
	// ErrClosed is reported by Err after Close.
	ErrClosed = errors.New("execution surface closed")
)

// Ack confirms a command was handed to the surface.
type Ack struct {
	CommandID string    `json:"command_id"`
	TaskID    string    `json:"task_id"`
	SentAt    time.Time `json:"sent_at"`
}

// Surface is the execution-surface contract.
type Surface interface {
	// SendInstruction hands the task text to the surface.
	SendInstruction(ctx context.Context, taskID, text string) (Ack, error)
	// SendProbe asks whether the task is finished.
	SendProbe(ctx context.Context, taskID, text string) error
	// Signals delivers replies. It is never closed; watch Done instead.
	Signals() <-chan models.Signal
	// Done is closed when the surface becomes unavailable or is closed.
	Done() <-chan struct{}
	// Err reports why Done was closed.
	Err() error
	Close() error
}

// CommandKind distinguishes instructions from probes.
type CommandKind string

const (
	CommandInstruction CommandKind = "instruction"
	CommandProbe       CommandKind = "probe"
)

// Command is one message sent to a surface.
type Command struct {
	ID     string      `json:"id" yaml:"id"`
	TaskID string      `json:"task_id" yaml:"task_id"`
	Kind   CommandKind `json:"kind" yaml:"kind"`
	Text   string      `json:"text" yaml:"text"`
	SentAt time.Time   `json:"sent_at" yaml:"sent_at"`
}

// pipe carries signals out of a surface and tracks its liveness.
type pipe struct {
	signals chan models.Signal
	done    chan struct{}
	once    sync.Once
	mu      sync.Mutex
	err     error
}

func newPipe(buffer int) *pipe {
	if buffer < 1 {
		buffer = 64
	}
	return &pipe{
		signals: make(chan models.Signal, buffer),
		done:    make(chan struct{}),
	}
}

// emit delivers sig unless the surface is down.
func (p *pipe) emit(sig models.Signal) bool {
	if sig.Timestamp.IsZero() {
		sig.Timestamp = time.Now()
	}
	select {
	case <-p.done:
		return false
	default:
	}
	select {
	case p.signals <- sig:
		return true
	case <-p.done:
		return false
	}
}

// fail marks the surface down. Only the first error is kept.
func (p *pipe) fail(err error) {
	p.once.Do(func() {
		p.mu.Lock()
		p.err = err
		p.mu.Unlock()
		close(p.done)
	})
}

func (p *pipe) alive() error {
	select {
	case <-p.done:
		return p.Err()
	default:
		return nil
	}
}

func (p *pipe) Signals() <-chan models.Signal { return p.signals }
func (p *pipe) Done() <-chan struct{}         { return p.done }

func (p *pipe) Err() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.err
}
