package tui

import (
	"fmt"
	"strings"

	"github.com/ShayCichocki/taskpilot/pkg/models"
)

// PhasesPanel lists the plan phase by phase with per-task state.
type PhasesPanel struct {
	snapshot     models.PlanSnapshot
	scrollOffset int
	width        int
	height       int
}

// NewPhasesPanel creates a new PhasesPanel instance.
func NewPhasesPanel() *PhasesPanel {
	return &PhasesPanel{}
}

// SetSnapshot replaces the displayed plan state.
func (p *PhasesPanel) SetSnapshot(s models.PlanSnapshot) {
	p.snapshot = s
	p.clampScroll()
}

// SetSize updates the panel dimensions.
func (p *PhasesPanel) SetSize(width, height int) {
	p.width = width
	p.height = height
	p.clampScroll()
}

// ScrollUp moves the view up one line.
func (p *PhasesPanel) ScrollUp() {
	if p.scrollOffset > 0 {
		p.scrollOffset--
	}
}

// ScrollDown moves the view down one line.
func (p *PhasesPanel) ScrollDown() {
	p.scrollOffset++
	p.clampScroll()
}

func (p *PhasesPanel) visibleRows() int {
	// title, border
	rows := p.height - 3
	if rows < 1 {
		rows = 1
	}
	return rows
}

func (p *PhasesPanel) clampScroll() {
	maxOffset := len(p.lines()) - p.visibleRows()
	if maxOffset < 0 {
		maxOffset = 0
	}
	if p.scrollOffset > maxOffset {
		p.scrollOffset = maxOffset
	}
}

// lines renders every row of the panel body.
func (p *PhasesPanel) lines() []string {
	inner := p.width - 4
	if inner < 10 {
		inner = 10
	}

	var out []string
	for _, ph := range p.snapshot.Phases {
		label := fmt.Sprintf("Phase %d", ph.Index+1)
		if ph.Index == p.snapshot.CurrentPhase {
			out = append(out, waitingStyle.Bold(true).Render("▸ "+label))
		} else {
			out = append(out, dimStyle.Italic(true).Render("  "+label))
		}
		for _, t := range ph.Tasks {
			out = append(out, taskLine(t, inner))
		}
	}
	if len(p.snapshot.Rejected) > 0 {
		out = append(out, skipStyle.Italic(true).Render("  Rejected"))
		for _, t := range p.snapshot.Rejected {
			out = append(out, taskLine(t, inner))
		}
	}
	if len(out) == 0 {
		out = append(out, hintStyle.Render("  no tasks"))
	}
	return out
}

func taskLine(t models.TaskView, width int) string {
	icon, style := stateIcon(t.State)
	prefix := fmt.Sprintf("   %s %s ", icon, t.ID)
	suffix := ""
	if t.Attempts > 0 {
		suffix = fmt.Sprintf(" ×%d", t.Attempts)
	}
	if t.Reason != "" {
		suffix += " " + string(t.Reason)
	}
	room := width - len([]rune(prefix)) - len([]rune(suffix))
	return style.Render(prefix) + textStyle.Render(truncate(t.Text, room)) + dimStyle.Render(suffix)
}

// View renders the panel.
func (p *PhasesPanel) View(focused bool) string {
	var b strings.Builder
	b.WriteString(titleStyle.Render(fmt.Sprintf("Plan (%d phases)", len(p.snapshot.Phases))))
	b.WriteString("\n")

	lines := p.lines()
	end := p.scrollOffset + p.visibleRows()
	if end > len(lines) {
		end = len(lines)
	}
	b.WriteString(strings.Join(lines[p.scrollOffset:end], "\n"))

	style := borderStyle
	if focused {
		style = focusedBorderStyle
	}
	return style.Width(max(p.width-2, 1)).Height(max(p.height-2, 1)).Render(b.String())
}
