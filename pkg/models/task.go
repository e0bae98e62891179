package models

import (
	"strconv"
	"strings"
	"time"
	"unicode"
)

// TaskState represents the lifecycle state of a task.
type TaskState string

const (
	// TaskPending indicates the task was extracted but not yet refined.
	TaskPending TaskState = "pending"
	// TaskRefining indicates the task is being refined and validated.
	TaskRefining TaskState = "refining"
	// TaskValidated indicates the task passed feasibility checks.
	TaskValidated TaskState = "validated"
	// TaskRejected indicates the task failed feasibility checks.
	TaskRejected TaskState = "rejected"
	// TaskExecuting indicates a command is being sent to the execution surface.
	TaskExecuting TaskState = "executing"
	// TaskAwaitingConfirmation indicates the engine is waiting for a signal.
	TaskAwaitingConfirmation TaskState = "awaiting_confirmation"
	// TaskCompleted indicates the execution surface confirmed completion.
	TaskCompleted TaskState = "completed"
	// TaskFailed indicates the task could not be completed.
	TaskFailed TaskState = "failed"
	// TaskCancelled indicates the task was stopped before finishing.
	TaskCancelled TaskState = "cancelled"
)

// Valid returns true if the state is a known value.
func (s TaskState) Valid() bool {
	switch s {
	case TaskPending, TaskRefining, TaskValidated, TaskRejected, TaskExecuting,
		TaskAwaitingConfirmation, TaskCompleted, TaskFailed, TaskCancelled:
		return true
	default:
		return false
	}
}

// Terminal returns true if no transition may leave this state.
func (s TaskState) Terminal() bool {
	switch s {
	case TaskCompleted, TaskFailed, TaskCancelled, TaskRejected:
		return true
	default:
		return false
	}
}

// FailureReason is the reason code attached to a task that did not complete.
type FailureReason string

const (
	ReasonNone                FailureReason = ""
	ReasonValidationRejected  FailureReason = "validation_rejected"
	ReasonConfirmationTimeout FailureReason = "confirmation_timeout"
	ReasonMaxAttemptsExceeded FailureReason = "max_attempts_exceeded"
	ReasonFallbackNeedsInput  FailureReason = "needs-input"
	ReasonSurfaceUnavailable  FailureReason = "execution_surface_unavailable"
	ReasonDependencyFailed    FailureReason = "dependency_failed"
	ReasonSessionCancelled    FailureReason = "session_cancelled"
)

// Task represents an atomic unit of work extracted from free text.
type Task struct {
	// ID is stable within a session ("task-1", "task-2", ...).
	ID string `json:"id"`
	// Index is the insertion order, used for deterministic tie-breaks.
	Index int `json:"index"`
	// RawText is the line fragment the task was extracted from.
	RawText string `json:"raw_text"`
	// RefinedText is the normalized, framework-refined description.
	RefinedText string `json:"refined_text"`
	// Framework is the framework named by the framework context, if any.
	Framework string `json:"framework,omitempty"`
	// Category is assigned by the categorizer.
	Category Category `json:"category"`
	// PriorityScore is assigned by the prioritizer.
	PriorityScore float64 `json:"priority_score"`
	// EstimatedDuration is a planning hint only.
	EstimatedDuration time.Duration `json:"estimated_duration"`
	// Dependencies lists task IDs that must complete before this task executes.
	Dependencies []string `json:"dependencies,omitempty"`
	// SequenceAfter is the task that textually preceded this one with "then".
	SequenceAfter string `json:"sequence_after,omitempty"`
	// State is the current lifecycle state.
	State TaskState `json:"state"`
	// Reason explains a Failed, Cancelled or Rejected state.
	Reason FailureReason `json:"reason,omitempty"`
	// ReasonDetail carries human-readable context for Reason.
	ReasonDetail string `json:"reason_detail,omitempty"`
}

// Clone returns a deep copy of the task.
func (t *Task) Clone() *Task {
	if t == nil {
		return nil
	}
	c := *t
	c.Dependencies = append([]string(nil), t.Dependencies...)
	return &c
}

// HasDependency reports whether id is one of the task's dependencies.
func (t *Task) HasDependency(id string) bool {
	for _, d := range t.Dependencies {
		if d == id {
			return true
		}
	}
	return false
}

// Text returns the refined text, falling back to the raw text.
func (t *Task) Text() string {
	if t.RefinedText != "" {
		return t.RefinedText
	}
	return t.RawText
}

// TaskID formats the session-stable ID for the n-th extracted task (1-based).
func TaskID(n int) string {
	return "task-" + strconv.Itoa(n)
}

// CompareIDs orders task IDs naturally, so "task-2" sorts before "task-10".
// It returns -1, 0 or 1.
func CompareIDs(a, b string) int {
	for a != "" && b != "" {
		ra, rb := rune(a[0]), rune(b[0])
		if unicode.IsDigit(ra) && unicode.IsDigit(rb) {
			na, restA := leadingDigits(a)
			nb, restB := leadingDigits(b)
			na = strings.TrimLeft(na, "0")
			nb = strings.TrimLeft(nb, "0")
			if len(na) != len(nb) {
				if len(na) < len(nb) {
					return -1
				}
				return 1
			}
			if na != nb {
				if na < nb {
					return -1
				}
				return 1
			}
			a, b = restA, restB
			continue
		}
		if ra != rb {
			if ra < rb {
				return -1
			}
			return 1
		}
		a, b = a[1:], b[1:]
	}
	switch {
	case a == "" && b == "":
		return 0
	case a == "":
		return -1
	default:
		return 1
	}
}

func leadingDigits(s string) (string, string) {
	i := 0
	for i < len(s) && s[i] >= '0' && s[i] <= '9' {
		i++
	}
	return s[:i], s[i:]
}

// TaskListInput is the task-list payload delivered by the transport collaborator.
type TaskListInput struct {
	RawText          string  `json:"raw_text"`
	FrameworkContext *string `json:"framework_context"`
}

// Framework returns the framework context, or "" when absent.
func (in TaskListInput) Framework() string {
	if in.FrameworkContext == nil {
		return ""
	}
	return *in.FrameworkContext
}

// Signal is free text reported by the execution surface for a task.
type Signal struct {
	TaskID    string    `json:"task_id"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}
