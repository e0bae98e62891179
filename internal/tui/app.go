package tui

import (
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/ShayCichocki/taskpilot/internal/bus"
	"github.com/ShayCichocki/taskpilot/pkg/models"
)

// Controls is the pause/resume/stop handle the view drives.
type Controls interface {
	Pause()
	Resume()
	Stop()
	IsPaused() bool
}

// Options configures NewApp.
type Options struct {
	SessionID string
	// Snapshot is polled every RefreshRate while the session runs.
	Snapshot    func() models.PlanSnapshot
	Controls    Controls
	RefreshRate time.Duration
}

// focus identifies the panel receiving scroll keys.
type focus int

const (
	focusPlan focus = iota
	focusEvents
)

// App is the bubbletea model of a running session.
type App struct {
	opts     Options
	snapshot models.PlanSnapshot
	report   *models.SessionReport
	err      error
	done     bool
	phase    int
	focus    focus

	header  *Header
	footer  *Footer
	plan    *PhasesPanel
	events  *EventsPanel
	spinner spinner.Model

	width  int
	height int
}

// NewApp creates the progress view.
func NewApp(opts Options) *App {
	if opts.RefreshRate <= 0 {
		opts.RefreshRate = 100 * time.Millisecond
	}
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = runningStyle

	a := &App{
		opts:    opts,
		phase:   -1,
		header:  NewHeader(),
		footer:  NewFooter(),
		plan:    NewPhasesPanel(),
		events:  NewEventsPanel(),
		spinner: s,
	}
	if opts.Snapshot != nil {
		a.setSnapshot(opts.Snapshot())
	}
	a.resize(80, 24)
	return a
}

// Init implements tea.Model.
func (a *App) Init() tea.Cmd {
	return tea.Batch(a.spinner.Tick, refreshAfter(a.opts.RefreshRate))
}

// Update implements tea.Model.
func (a *App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		a.resize(msg.Width, msg.Height)
		return a, nil

	case tea.KeyMsg:
		return a, a.handleKey(msg)

	case EventMsg:
		a.events.Add(msg.Event)
		switch msg.Event.Type {
		case bus.EventPhaseStarted:
			a.phase = msg.Event.Phase
		case bus.EventSessionDone:
			a.poll()
		}
		return a, nil

	case SnapshotMsg:
		a.setSnapshot(msg.Snapshot)
		return a, nil

	case refreshMsg:
		if a.done {
			return a, nil
		}
		a.poll()
		return a, refreshAfter(a.opts.RefreshRate)

	case DoneMsg:
		a.done = true
		a.report = msg.Report
		a.err = msg.Err
		a.poll()
		a.footer.SetSessionDone(a.succeeded(), a.summary())
		return a, nil

	case spinner.TickMsg:
		if a.done {
			return a, nil
		}
		var cmd tea.Cmd
		a.spinner, cmd = a.spinner.Update(msg)
		return a, cmd
	}
	return a, nil
}

func (a *App) handleKey(msg tea.KeyMsg) tea.Cmd {
	switch msg.String() {
	case "q", "ctrl+c":
		if !a.done && a.opts.Controls != nil {
			a.opts.Controls.Stop()
		}
		return tea.Quit
	case "p":
		if !a.done && a.opts.Controls != nil {
			a.opts.Controls.Pause()
			a.footer.SetPaused(true)
		}
	case "r":
		if !a.done && a.opts.Controls != nil {
			a.opts.Controls.Resume()
			a.footer.SetPaused(false)
		}
	case "s":
		if !a.done && a.opts.Controls != nil {
			a.opts.Controls.Stop()
		}
	case "tab", "left", "right":
		if a.focus == focusPlan {
			a.focus = focusEvents
		} else {
			a.focus = focusPlan
		}
	case "up", "k":
		if a.focus == focusPlan {
			a.plan.ScrollUp()
			return nil
		}
		return a.events.Update(msg)
	case "down", "j":
		if a.focus == focusPlan {
			a.plan.ScrollDown()
			return nil
		}
		return a.events.Update(msg)
	default:
		if a.focus == focusEvents {
			return a.events.Update(msg)
		}
	}
	return nil
}

func (a *App) poll() {
	if a.opts.Snapshot != nil {
		a.setSnapshot(a.opts.Snapshot())
	}
}

func (a *App) setSnapshot(s models.PlanSnapshot) {
	a.snapshot = s
	if s.CurrentPhase > a.phase {
		a.phase = s.CurrentPhase
	}
	a.plan.SetSnapshot(s)
	a.footer.SetTaskCounts(CountsFrom(s))
}

func (a *App) resize(width, height int) {
	a.width = width
	a.height = height
	a.header.SetWidth(width)

	bodyHeight := height - a.header.Height() - 1
	if bodyHeight < 4 {
		bodyHeight = 4
	}
	planWidth := width * 45 / 100
	if planWidth < 30 {
		planWidth = 30
	}
	eventsWidth := width - planWidth
	if eventsWidth < 20 {
		eventsWidth = 20
	}
	a.plan.SetSize(planWidth, bodyHeight)
	a.events.SetSize(eventsWidth, bodyHeight)
}

func (a *App) succeeded() bool {
	if a.err != nil || a.report == nil {
		return false
	}
	return a.report.Outcome == models.OutcomeCompleted || a.report.Outcome == models.OutcomeEmpty
}

func (a *App) summary() string {
	if a.report == nil {
		if a.err != nil {
			return a.err.Error()
		}
		return "session ended"
	}
	msg := fmt.Sprintf("%s in %s", a.report.Outcome, a.report.FinishedAt.Sub(a.report.StartedAt).Round(time.Millisecond))
	if a.err != nil {
		msg += ": " + a.err.Error()
	}
	return msg
}

// Done reports whether the session has finished.
func (a *App) Done() bool {
	return a.done
}

// View implements tea.Model.
func (a *App) View() string {
	state := ""
	if a.opts.Controls != nil && a.opts.Controls.IsPaused() && !a.done {
		state = "paused"
	}
	header := a.header.View(a.opts.SessionID, a.phase, len(a.snapshot.Phases), state, a.spinner, !a.done)
	body := lipgloss.JoinHorizontal(lipgloss.Top,
		a.plan.View(a.focus == focusPlan),
		a.events.View(a.focus == focusEvents))
	return lipgloss.JoinVertical(lipgloss.Left, header, body, a.footer.View())
}
