package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/ShayCichocki/taskpilot/internal/bus"
)

// DefaultMaxEvents bounds the lines kept by the events panel.
const DefaultMaxEvents = 500

// EventsPanel shows a scrolling feed of status events.
type EventsPanel struct {
	lines      []string
	maxLines   int
	viewport   viewport.Model
	autoScroll bool
	width      int
	height     int
}

// NewEventsPanel creates a new EventsPanel instance.
func NewEventsPanel() *EventsPanel {
	return &EventsPanel{
		maxLines:   DefaultMaxEvents,
		viewport:   viewport.New(40, 10),
		autoScroll: true,
	}
}

// SetSize updates the panel dimensions.
func (p *EventsPanel) SetSize(width, height int) {
	p.width = width
	p.height = height
	p.viewport.Width = max(width-4, 1)
	p.viewport.Height = max(height-3, 1)
	p.refresh()
}

// Add appends one event to the feed.
func (p *EventsPanel) Add(ev bus.StatusEvent) {
	p.lines = append(p.lines, FormatEvent(ev))
	if len(p.lines) > p.maxLines {
		p.lines = p.lines[len(p.lines)-p.maxLines:]
	}
	p.refresh()
}

// Len returns the number of lines held.
func (p *EventsPanel) Len() int {
	return len(p.lines)
}

func (p *EventsPanel) refresh() {
	p.viewport.SetContent(strings.Join(p.lines, "\n"))
	if p.autoScroll {
		p.viewport.GotoBottom()
	}
}

// Update forwards scroll keys to the viewport. Scrolling to the bottom
// re-enables auto-scroll.
func (p *EventsPanel) Update(msg tea.Msg) tea.Cmd {
	var cmd tea.Cmd
	p.viewport, cmd = p.viewport.Update(msg)
	p.autoScroll = p.viewport.AtBottom()
	return cmd
}

// View renders the panel.
func (p *EventsPanel) View(focused bool) string {
	style := borderStyle
	if focused {
		style = focusedBorderStyle
	}
	body := titleStyle.Render("Events") + "\n" + p.viewport.View()
	return style.Width(max(p.width-2, 1)).Height(max(p.height-2, 1)).Render(body)
}

// FormatEvent renders one event as a single display line.
func FormatEvent(ev bus.StatusEvent) string {
	ts := hintStyle.Render(ev.Timestamp.Format("15:04:05"))
	switch ev.Type {
	case bus.EventTransition:
		_, style := stateIcon(ev.To)
		line := fmt.Sprintf("%s %s → %s", ev.TaskID, ev.From, style.Render(string(ev.To)))
		if ev.Reason != "" {
			line += " " + failedStyle.Render(string(ev.Reason))
		}
		return ts + " " + line
	case bus.EventSignal:
		return ts + " " + waitingStyle.Render(ev.TaskID+" ◂ ") + textStyle.Render(fmt.Sprintf("%q", truncate(ev.Detail, 60)))
	case bus.EventPhaseStarted:
		return ts + " " + waitingStyle.Bold(true).Render(fmt.Sprintf("phase %d started", ev.Phase+1)) + dimStyle.Render(" "+ev.Detail)
	case bus.EventPhaseCompleted:
		return ts + " " + doneStyle.Render(fmt.Sprintf("phase %d done", ev.Phase+1)) + dimStyle.Render(" "+ev.Detail)
	case bus.EventWarning:
		return ts + " " + skipStyle.Render("warning: "+ev.Detail)
	case bus.EventSessionStarted:
		return ts + " " + textStyle.Render("session started: "+ev.Detail)
	case bus.EventSessionDone:
		return ts + " " + textStyle.Bold(true).Render("session done: "+ev.Detail)
	default:
		return ts + " " + dimStyle.Render(string(ev.Type)+" "+ev.Detail)
	}
}
