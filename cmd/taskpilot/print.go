package main

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/fatih/color"

	"github.com/ShayCichocki/taskpilot/internal/bus"
	"github.com/ShayCichocki/taskpilot/internal/engine"
	"github.com/ShayCichocki/taskpilot/internal/state"
	"github.com/ShayCichocki/taskpilot/pkg/models"
)

var (
	bold   = color.New(color.Bold)
	dim    = color.New(color.Faint)
	green  = color.New(color.FgGreen)
	red    = color.New(color.FgRed)
	yellow = color.New(color.FgYellow)
	cyan   = color.New(color.FgCyan)
)

// printStatus prints a status line with color.
func printStatus(w io.Writer, symbol, message string, colorAttr color.Attribute) {
	c := color.New(colorAttr)
	fmt.Fprintf(w, "%s %s\n", c.Sprint(symbol), message)
}

func stateColor(s models.TaskState) *color.Color {
	switch s {
	case models.TaskCompleted:
		return green
	case models.TaskFailed:
		return red
	case models.TaskCancelled, models.TaskRejected:
		return yellow
	case models.TaskExecuting, models.TaskAwaitingConfirmation:
		return cyan
	default:
		return dim
	}
}

// printPlan prints the phases, scores, edges and warnings of a prepared session.
func printPlan(w io.Writer, s *engine.Session) {
	plan := s.Plan()
	tasks := make(map[string]*models.Task)
	for _, t := range s.Tasks() {
		tasks[t.ID] = t
	}

	bold.Fprintf(w, "Session %s\n", s.ID)
	fmt.Fprintf(w, "%d tasks in %d phases (max %d parallel, est. %s)\n\n",
		plan.TaskCount(), len(plan.Phases), plan.MaxParallel, plan.EstimatedDuration)

	for _, ph := range plan.Phases {
		cyan.Fprintf(w, "Phase %d\n", ph.Index+1)
		for _, id := range ph.TaskIDs {
			t := tasks[id]
			deps := ""
			if len(t.Dependencies) > 0 {
				deps = dim.Sprintf(" after %s", strings.Join(t.Dependencies, ", "))
			}
			fmt.Fprintf(w, "  %-8s %-13s %.3f  %s%s\n", t.ID, t.Category, t.PriorityScore, t.Text(), deps)
		}
	}

	var rejected []*models.Task
	for _, t := range tasks {
		if t.State == models.TaskRejected {
			rejected = append(rejected, t)
		}
	}
	if len(rejected) > 0 {
		sort.Slice(rejected, func(i, j int) bool { return rejected[i].Index < rejected[j].Index })
		yellow.Fprintln(w, "\nRejected")
		for _, t := range rejected {
			fmt.Fprintf(w, "  %-8s %s\n", t.ID, t.RawText)
		}
	}

	if edges := s.Graph().Edges(); len(edges) > 0 {
		bold.Fprintln(w, "\nDependencies")
		for _, e := range edges {
			reason := ""
			if e.Reason != "" {
				reason = dim.Sprintf("  %s", e.Reason)
			}
			fmt.Fprintf(w, "  %s -> %s (%s)%s\n", e.From, e.To, e.Kind, reason)
		}
	}
	printWarnings(w, s.Warnings())
}

func printWarnings(w io.Writer, warnings []models.Warning) {
	if len(warnings) == 0 {
		return
	}
	yellow.Fprintln(w, "\nWarnings")
	for _, wn := range warnings {
		fmt.Fprintf(w, "  %s %s: %s\n", yellow.Sprint("⚠"), wn.Kind, wn.Message)
	}
}

// printReport prints the final session report.
func printReport(w io.Writer, r *models.SessionReport) {
	if r == nil {
		return
	}
	outcome := string(r.Outcome)
	switch r.Outcome {
	case models.OutcomeCompleted, models.OutcomeEmpty:
		outcome = green.Sprint(outcome)
	case models.OutcomePartial:
		outcome = yellow.Sprint(outcome)
	default:
		outcome = red.Sprint(outcome)
	}
	fmt.Fprintf(w, "\n%s %s  %s  %s\n", bold.Sprint("Session"), r.SessionID, outcome,
		dim.Sprint(r.FinishedAt.Sub(r.StartedAt).Round(time.Millisecond)))

	for _, t := range r.Tasks {
		phase := "-"
		if t.Phase >= 0 {
			phase = fmt.Sprintf("%d", t.Phase+1)
		}
		line := fmt.Sprintf("  %-8s phase %-2s %-22s attempts %d", t.ID, phase, stateColor(t.State).Sprint(t.State), t.Attempts)
		if t.Reason != "" {
			line += " " + red.Sprint(t.Reason)
		}
		if t.LastSignal != "" {
			line += dim.Sprintf("  %q", t.LastSignal)
		}
		fmt.Fprintln(w, line)
	}

	counts := r.Counts()
	fmt.Fprintf(w, "\n%s completed, %s failed, %s cancelled, %s rejected\n",
		green.Sprint(counts[models.TaskCompleted]), red.Sprint(counts[models.TaskFailed]),
		yellow.Sprint(counts[models.TaskCancelled]), yellow.Sprint(counts[models.TaskRejected]))
	printWarnings(w, r.Warnings)
	if r.Error != "" {
		red.Fprintf(w, "\nerror: %s\n", r.Error)
	}
}

// printEvent prints one status event as a progress line.
func printEvent(w io.Writer, ev bus.StatusEvent) {
	ts := dim.Sprint(ev.Timestamp.Format("15:04:05"))
	switch ev.Type {
	case bus.EventTransition:
		line := fmt.Sprintf("%s %s %s -> %s", ts, ev.TaskID, ev.From, stateColor(ev.To).Sprint(ev.To))
		if ev.Reason != "" {
			line += " " + red.Sprint(ev.Reason)
		}
		fmt.Fprintln(w, line)
	case bus.EventSignal:
		fmt.Fprintf(w, "%s %s <- %q\n", ts, ev.TaskID, ev.Detail)
	case bus.EventPhaseStarted:
		fmt.Fprintf(w, "%s %s %s\n", ts, cyan.Sprintf("phase %d started", ev.Phase+1), dim.Sprint(ev.Detail))
	case bus.EventPhaseCompleted:
		fmt.Fprintf(w, "%s %s %s\n", ts, green.Sprintf("phase %d done", ev.Phase+1), dim.Sprint(ev.Detail))
	case bus.EventWarning:
		fmt.Fprintf(w, "%s %s %s\n", ts, yellow.Sprint("warning"), ev.Detail)
	default:
		fmt.Fprintf(w, "%s %s %s\n", ts, bold.Sprint(ev.Type), ev.Detail)
	}
}

// printSessions prints the session history table.
func printSessions(w io.Writer, sessions []state.SessionRecord) {
	if len(sessions) == 0 {
		fmt.Fprintln(w, "No sessions recorded. Run 'taskpilot run <file>' to start.")
		return
	}
	bold.Fprintf(w, "%-36s  %-19s  %-10s  %s\n", "SESSION", "STARTED", "OUTCOME", "TASKS")
	for _, s := range sessions {
		fmt.Fprintf(w, "%-36s  %-19s  %-10s  %d/%d done, %d failed\n",
			s.ID, s.StartedAt.Local().Format("2006-01-02 15:04:05"), s.Outcome, s.Completed, s.TaskCount, s.Failed)
	}
}
