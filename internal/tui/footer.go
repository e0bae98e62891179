package tui

import (
	"fmt"

	"github.com/ShayCichocki/taskpilot/pkg/models"
)

// TaskCounts holds the count of tasks in each display bucket.
type TaskCounts struct {
	Done     int
	Failed   int
	Running  int
	Pending  int
	Skipped  int
	Rejected int
}

// CountsFrom buckets the tasks of a snapshot.
func CountsFrom(s models.PlanSnapshot) TaskCounts {
	var c TaskCounts
	for state, n := range s.Counts() {
		switch state {
		case models.TaskCompleted:
			c.Done += n
		case models.TaskFailed:
			c.Failed += n
		case models.TaskExecuting, models.TaskAwaitingConfirmation:
			c.Running += n
		case models.TaskCancelled:
			c.Skipped += n
		case models.TaskRejected:
			c.Rejected += n
		default:
			c.Pending += n
		}
	}
	return c
}

// Footer renders the status bar and keyboard hints.
type Footer struct {
	counts  TaskCounts
	message string
	done    bool
	success bool
	paused  bool
}

// NewFooter creates a new Footer instance.
func NewFooter() *Footer {
	return &Footer{}
}

// SetTaskCounts updates the task counts for display.
func (f *Footer) SetTaskCounts(counts TaskCounts) {
	f.counts = counts
}

// SetPaused marks the session as paused between phases.
func (f *Footer) SetPaused(paused bool) {
	f.paused = paused
}

// SetSessionDone marks the session as finished.
func (f *Footer) SetSessionDone(success bool, message string) {
	f.done = true
	f.success = success
	f.message = message
}

// View renders the footer.
func (f *Footer) View() string {
	left := doneStyle.Render(fmt.Sprintf("✓%d", f.counts.Done))
	if f.counts.Failed > 0 {
		left += failedStyle.Render(fmt.Sprintf(" ✗%d", f.counts.Failed))
	}
	if f.counts.Running > 0 {
		left += runningStyle.Render(fmt.Sprintf(" ▶%d", f.counts.Running))
	}
	if f.counts.Pending > 0 {
		left += pendingStyle.Render(fmt.Sprintf(" ○%d", f.counts.Pending))
	}
	if f.counts.Skipped+f.counts.Rejected > 0 {
		left += skipStyle.Render(fmt.Sprintf(" ⊘%d", f.counts.Skipped+f.counts.Rejected))
	}

	if f.done {
		if f.success {
			left += " " + doneStyle.Render("✓ "+f.message)
		} else {
			left += " " + failedStyle.Render("✗ "+f.message)
		}
	} else if f.paused {
		left += " " + skipStyle.Render("paused")
	}

	return left + hintStyle.Render(" │ ") + hintStyle.Render(f.keyboardHints())
}

func (f *Footer) keyboardHints() string {
	if f.done {
		return "↑/↓ scroll │ q exit"
	}
	if f.paused {
		return "r resume │ s stop │ ↑/↓ scroll │ q quit"
	}
	return "p pause │ s stop │ ↑/↓ scroll │ q quit"
}
