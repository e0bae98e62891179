package models

import "time"

// DefaultMaxAttempts bounds the confirmation loop when no limit is configured.
const DefaultMaxAttempts = 3

// ConfirmationSession tracks one execution attempt of a task against the
// execution surface. It exists only while the task is Executing or
// AwaitingConfirmation.
type ConfirmationSession struct {
	// TaskID is the task being confirmed.
	TaskID string `json:"task_id"`
	// AttemptCount is the number of instructions and probes sent so far.
	AttemptCount int `json:"attempt_count"`
	// MaxAttempts bounds AttemptCount. Never zero.
	MaxAttempts int `json:"max_attempts"`
	// LastSignal is the raw text most recently received.
	LastSignal string `json:"last_signal,omitempty"`
	// LastWasProbe is true when the most recent engine message was a probe.
	LastWasProbe bool `json:"last_was_probe"`
	// StartedAt is when the task entered Executing.
	StartedAt time.Time `json:"started_at"`
	// Deadline is the absolute time after which the session times out.
	Deadline time.Time `json:"deadline"`
}

// NewConfirmationSession creates a session starting at now. Non-positive
// limits are replaced with defaults; the session is always bounded.
func NewConfirmationSession(taskID string, maxAttempts int, timeout time.Duration, now time.Time) *ConfirmationSession {
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	if timeout <= 0 {
		timeout = DefaultConfirmationTimeout
	}
	return &ConfirmationSession{
		TaskID:      taskID,
		MaxAttempts: maxAttempts,
		StartedAt:   now,
		Deadline:    now.Add(timeout),
	}
}

// DefaultConfirmationTimeout is the deadline applied when none is configured.
const DefaultConfirmationTimeout = 10 * time.Minute

// Expired reports whether the deadline has passed at now.
func (c *ConfirmationSession) Expired(now time.Time) bool {
	return !now.Before(c.Deadline)
}

// Remaining returns the time left before the deadline, never negative.
func (c *ConfirmationSession) Remaining(now time.Time) time.Duration {
	d := c.Deadline.Sub(now)
	if d < 0 {
		return 0
	}
	return d
}

// CanAttempt reports whether another instruction or probe may be sent.
func (c *ConfirmationSession) CanAttempt() bool {
	return c.AttemptCount < c.MaxAttempts
}

// RecordSend registers an outgoing instruction or probe.
func (c *ConfirmationSession) RecordSend(probe bool) {
	c.AttemptCount++
	c.LastWasProbe = probe
}

// RecordSignal stores the latest text observed from the execution surface.
func (c *ConfirmationSession) RecordSignal(text string) {
	c.LastSignal = text
}
