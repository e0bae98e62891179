package models

import "time"

// WarningKind classifies a non-fatal problem surfaced in the session report.
type WarningKind string

const (
	// WarningExtractionEmpty is recorded when the input yielded no tasks.
	WarningExtractionEmpty WarningKind = "extraction_empty"
	// WarningValidationRejected is recorded for each rejected task.
	WarningValidationRejected WarningKind = "validation_rejected"
	// WarningCycleBroken is recorded each time a dependency cycle is broken.
	WarningCycleBroken WarningKind = "cycle_broken"
	// WarningPhaseFailures is recorded when a phase finishes with failed tasks.
	WarningPhaseFailures WarningKind = "phase_failures"
)

// Warning is a structured, non-fatal report entry.
type Warning struct {
	Kind    WarningKind `json:"kind"`
	TaskIDs []string    `json:"task_ids,omitempty"`
	Message string      `json:"message"`
}

// SessionOutcome summarizes how a session ended.
type SessionOutcome string

const (
	// OutcomeCompleted means every planned task completed.
	OutcomeCompleted SessionOutcome = "completed"
	// OutcomePartial means the plan ran to the end with some failures.
	OutcomePartial SessionOutcome = "partial"
	// OutcomeCancelled means the session was cancelled by the caller.
	OutcomeCancelled SessionOutcome = "cancelled"
	// OutcomeAborted means the execution surface became unavailable.
	OutcomeAborted SessionOutcome = "aborted"
	// OutcomeEmpty means there was nothing to execute.
	OutcomeEmpty SessionOutcome = "empty"
)

// TaskResult is the final record of one task.
type TaskResult struct {
	ID            string        `json:"id"`
	RawText       string        `json:"raw_text"`
	RefinedText   string        `json:"refined_text"`
	Category      Category      `json:"category"`
	PriorityScore float64       `json:"priority_score"`
	Dependencies  []string      `json:"dependencies,omitempty"`
	Phase         int           `json:"phase"`
	State         TaskState     `json:"state"`
	Reason        FailureReason `json:"reason,omitempty"`
	Detail        string        `json:"detail,omitempty"`
	Attempts      int           `json:"attempts"`
	LastSignal    string        `json:"last_signal,omitempty"`
	StartedAt     *time.Time    `json:"started_at,omitempty"`
	FinishedAt    *time.Time    `json:"finished_at,omitempty"`
}

// PhaseResult records the outcome of one phase.
type PhaseResult struct {
	Index      int       `json:"index"`
	TaskIDs    []string  `json:"task_ids"`
	Failed     []string  `json:"failed,omitempty"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
}

// SessionReport is returned to the caller when a session ends.
type SessionReport struct {
	SessionID  string         `json:"session_id"`
	StartedAt  time.Time      `json:"started_at"`
	FinishedAt time.Time      `json:"finished_at"`
	Outcome    SessionOutcome `json:"outcome"`
	Plan       *ExecutionPlan `json:"plan,omitempty"`
	Tasks      []TaskResult   `json:"tasks"`
	Phases     []PhaseResult  `json:"phases,omitempty"`
	Warnings   []Warning      `json:"warnings,omitempty"`
	Error      string         `json:"error,omitempty"`
}

// Failed returns the results of tasks that ended Failed or Rejected.
func (r *SessionReport) Failed() []TaskResult {
	var out []TaskResult
	for _, t := range r.Tasks {
		if t.State == TaskFailed || t.State == TaskRejected {
			out = append(out, t)
		}
	}
	return out
}

// Counts tallies the task results by final state.
func (r *SessionReport) Counts() map[TaskState]int {
	counts := make(map[TaskState]int)
	for _, t := range r.Tasks {
		counts[t.State]++
	}
	return counts
}

// WarningsOf returns the warnings of the given kind.
func (r *SessionReport) WarningsOf(kind WarningKind) []Warning {
	var out []Warning
	for _, w := range r.Warnings {
		if w.Kind == kind {
			out = append(out, w)
		}
	}
	return out
}

// Result returns the result for taskID.
func (r *SessionReport) Result(taskID string) (TaskResult, bool) {
	for _, t := range r.Tasks {
		if t.ID == taskID {
			return t, true
		}
	}
	return TaskResult{}, false
}
