package engine

import (
	"context"
	"errors"
	"log/slog"
	"sync"
)

// ErrStopped is returned by WaitIfPaused after Stop.
var ErrStopped = errors.New("engine stopped")

// PauseController gates phase dispatch. A paused engine finishes the running
// phase and waits before starting the next; Stop ends the session at the
// next phase boundary.
type PauseController struct {
	paused  bool
	stopped bool
	mu      sync.Mutex
	cond    *sync.Cond
	logger  *slog.Logger
}

// NewPauseController creates a running controller.
func NewPauseController(logger *slog.Logger) *PauseController {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	p := &PauseController{logger: logger}
	p.cond = sync.NewCond(&p.mu)
	return p
}

// Pause holds dispatch at the next phase boundary.
func (p *PauseController) Pause() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.paused {
		p.paused = true
		p.logger.Info("paused, no new phases will be dispatched")
	}
}

// Resume releases a pause.
func (p *PauseController) Resume() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.paused {
		p.paused = false
		p.logger.Info("resumed")
		p.cond.Broadcast()
	}
}

// Stop unblocks every waiter and makes later waits fail.
func (p *PauseController) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.stopped {
		p.stopped = true
		p.cond.Broadcast()
	}
}

// IsPaused reports whether dispatch is held.
func (p *PauseController) IsPaused() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.paused
}

// IsStopped reports whether Stop was called.
func (p *PauseController) IsStopped() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stopped
}

// WaitIfPaused blocks while paused. It returns ErrStopped after Stop and the
// context error if ctx ends first.
func (p *PauseController) WaitIfPaused(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.paused && !p.stopped {
		done := make(chan struct{})
		defer close(done)
		go func() {
			select {
			case <-ctx.Done():
				p.mu.Lock()
				p.cond.Broadcast()
				p.mu.Unlock()
			case <-done:
			}
		}()
		for p.paused && !p.stopped {
			p.cond.Wait()
			if err := ctx.Err(); err != nil {
				return err
			}
		}
	}
	if p.stopped {
		return ErrStopped
	}
	return nil
}
