package state

import (
	"context"
	"io"
	"time"

	"github.com/ShayCichocki/taskpilot/internal/bus"
	"github.com/ShayCichocki/taskpilot/pkg/models"
)

// Migrator handles database schema migrations.
type Migrator interface {
	// Migrate applies all pending schema migrations.
	Migrate() error
}

// SessionStore handles session history.
type SessionStore interface {
	EnsureSession(ctx context.Context, id string, startedAt time.Time) error
	SaveReport(ctx context.Context, input models.TaskListInput, r *models.SessionReport) error
	GetReport(ctx context.Context, id string) (*models.SessionReport, error)
	ListSessions(ctx context.Context, limit int) ([]SessionRecord, error)
	PurgeOldSessions(ctx context.Context, olderThan time.Duration) (int64, error)
}

// EventStore handles the status event transcript.
type EventStore interface {
	AppendEvent(ctx context.Context, seq int, ev bus.StatusEvent) error
	Events(ctx context.Context, sessionID, taskID string) ([]bus.StatusEvent, error)
}

// Store composes every persistence concern behind one backend.
type Store interface {
	io.Closer
	Migrator
	SessionStore
	EventStore
}

// Compile-time verification that DB implements all interfaces.
var (
	_ Store        = (*DB)(nil)
	_ Migrator     = (*DB)(nil)
	_ SessionStore = (*DB)(nil)
	_ EventStore   = (*DB)(nil)
)
