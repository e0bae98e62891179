package engine

import (
	"errors"
	"fmt"

	"github.com/ShayCichocki/taskpilot/pkg/models"
)

// ErrInvalidTransition is wrapped by every rejected state change.
var ErrInvalidTransition = errors.New("invalid task state transition")

// TransitionError describes a rejected state change.
type TransitionError struct {
	TaskID string
	From   models.TaskState
	To     models.TaskState
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("task %s: %s -> %s is not allowed", e.TaskID, e.From, e.To)
}

func (e *TransitionError) Unwrap() error { return ErrInvalidTransition }

// allowedTransitions is the authoritative task lifecycle. Terminal states
// have no entry.
var allowedTransitions = map[models.TaskState][]models.TaskState{
	models.TaskPending:   {models.TaskRefining, models.TaskExecuting, models.TaskCancelled},
	models.TaskRefining:  {models.TaskValidated, models.TaskRejected, models.TaskCancelled},
	models.TaskValidated: {models.TaskExecuting, models.TaskCancelled},
	models.TaskExecuting: {models.TaskAwaitingConfirmation, models.TaskFailed, models.TaskCancelled},
	models.TaskAwaitingConfirmation: {
		models.TaskExecuting, models.TaskCompleted, models.TaskFailed, models.TaskCancelled,
	},
}

// CanTransition reports whether from -> to is a legal lifecycle step.
func CanTransition(from, to models.TaskState) bool {
	for _, s := range allowedTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Transition validates and applies a state change to task. The caller must
// hold whatever lock guards the task.
func Transition(task *models.Task, to models.TaskState) error {
	if !CanTransition(task.State, to) {
		return &TransitionError{TaskID: task.ID, From: task.State, To: to}
	}
	task.State = to
	return nil
}
