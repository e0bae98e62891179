package tui

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/ShayCichocki/taskpilot/pkg/models"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("15")).
			Padding(0, 1)

	borderStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("240"))

	focusedBorderStyle = borderStyle.BorderForeground(lipgloss.Color("63"))

	hintStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	dimStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("244"))
	textStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("252"))

	pendingStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("244")) // Gray
	runningStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("34"))  // Green
	waitingStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("75"))  // Light blue
	doneStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("28"))  // Dark green
	failedStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("196")) // Red
	skipStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("214")) // Orange
)

// stateIcon returns the glyph and style for a task state.
func stateIcon(s models.TaskState) (string, lipgloss.Style) {
	switch s {
	case models.TaskExecuting:
		return "▶", runningStyle
	case models.TaskAwaitingConfirmation:
		return "…", waitingStyle
	case models.TaskCompleted:
		return "✓", doneStyle
	case models.TaskFailed:
		return "✗", failedStyle
	case models.TaskCancelled:
		return "⊘", skipStyle
	case models.TaskRejected:
		return "⊗", skipStyle
	default:
		return "○", pendingStyle
	}
}

// truncate shortens s to width runes with an ellipsis.
func truncate(s string, width int) string {
	if width <= 0 {
		return ""
	}
	r := []rune(s)
	if len(r) <= width {
		return s
	}
	if width <= 3 {
		return string(r[:width])
	}
	return string(r[:width-3]) + "..."
}
