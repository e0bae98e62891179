package tui

import (
	"fmt"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/lipgloss"
)

// Header renders the title bar with session id, phase and elapsed time.
type Header struct {
	width int

	nameStyle    lipgloss.Style
	sessionStyle lipgloss.Style
	phaseStyle   lipgloss.Style
}

// NewHeader creates a new Header.
func NewHeader() *Header {
	return &Header{
		width: 80,
		nameStyle: lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#4ECDC4")),
		sessionStyle: lipgloss.NewStyle().
			Foreground(lipgloss.Color("243")).
			Italic(true),
		phaseStyle: lipgloss.NewStyle().
			Foreground(lipgloss.Color("205")).
			Bold(true),
	}
}

// SetWidth sets the header width.
func (h *Header) SetWidth(width int) {
	h.width = width
}

// View renders the header. phase is -1 before the first phase starts.
func (h *Header) View(sessionID string, phase, phases int, state string, spin spinner.Model, running bool) string {
	left := h.nameStyle.Render("taskpilot") + " " + h.sessionStyle.Render(sessionID)

	var status string
	switch {
	case phases == 0:
		status = "no phases"
	case phase < 0:
		status = fmt.Sprintf("%d phases planned", phases)
	default:
		status = fmt.Sprintf("phase %d/%d", phase+1, phases)
	}
	right := h.phaseStyle.Render(status)
	if state != "" {
		right += " " + dimStyle.Render(state)
	}
	if running {
		right = spin.View() + " " + right
	}

	gap := h.width - lipgloss.Width(left) - lipgloss.Width(right)
	if gap < 1 {
		gap = 1
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, left, lipgloss.NewStyle().Width(gap).Render(""), right)
}

// Height returns the header height in lines.
func (h *Header) Height() int {
	return 1
}
