package tui

import (
	"context"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/ShayCichocki/taskpilot/internal/bus"
	"github.com/ShayCichocki/taskpilot/pkg/models"
)

// EventMsg carries one status event from the bus.
type EventMsg struct {
	Event bus.StatusEvent
}

// SnapshotMsg replaces the displayed plan state.
type SnapshotMsg struct {
	Snapshot models.PlanSnapshot
}

// DoneMsg is sent when the session has finished.
type DoneMsg struct {
	Report *models.SessionReport
	Err    error
}

// refreshMsg triggers a snapshot poll.
type refreshMsg time.Time

func refreshAfter(d time.Duration) tea.Cmd {
	return tea.Tick(d, func(t time.Time) tea.Msg { return refreshMsg(t) })
}

// Sender is the part of tea.Program used by Forward.
type Sender interface {
	Send(msg tea.Msg)
}

// NewProgram creates the full-screen program for app.
func NewProgram(app *App) *tea.Program {
	return tea.NewProgram(app, tea.WithAltScreen())
}

// Forward sends every event of sub to p until ctx ends or sub closes.
func Forward(ctx context.Context, p Sender, sub *bus.Subscription) {
	sub.Run(ctx, func(ev bus.StatusEvent) {
		p.Send(EventMsg{Event: ev})
	})
}
