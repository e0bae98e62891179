package models

import "time"

// Phase is a batch of tasks with no dependency edges between them.
type Phase struct {
	Index   int      `json:"index"`
	TaskIDs []string `json:"task_ids"`
}

// ExecutionPlan is the ordered list of phases produced by the planner.
type ExecutionPlan struct {
	Phases      []Phase `json:"phases"`
	MaxParallel int     `json:"max_parallel"`
	// EstimatedDuration sums the longest task estimate of each phase.
	EstimatedDuration time.Duration `json:"estimated_duration"`
}

// TaskCount returns the number of tasks scheduled across all phases.
func (p *ExecutionPlan) TaskCount() int {
	if p == nil {
		return 0
	}
	n := 0
	for _, ph := range p.Phases {
		n += len(ph.TaskIDs)
	}
	return n
}

// PhaseOf returns the index of the phase containing taskID, or -1.
func (p *ExecutionPlan) PhaseOf(taskID string) int {
	if p == nil {
		return -1
	}
	for _, ph := range p.Phases {
		for _, id := range ph.TaskIDs {
			if id == taskID {
				return ph.Index
			}
		}
	}
	return -1
}

// Clone returns a deep copy of the plan.
func (p *ExecutionPlan) Clone() *ExecutionPlan {
	if p == nil {
		return nil
	}
	c := &ExecutionPlan{
		MaxParallel:       p.MaxParallel,
		EstimatedDuration: p.EstimatedDuration,
		Phases:            make([]Phase, len(p.Phases)),
	}
	for i, ph := range p.Phases {
		c.Phases[i] = Phase{Index: ph.Index, TaskIDs: append([]string(nil), ph.TaskIDs...)}
	}
	return c
}

// TaskView is a read-only projection of a task for progress displays.
type TaskView struct {
	ID            string        `json:"id"`
	Text          string        `json:"text"`
	Category      Category      `json:"category"`
	State         TaskState     `json:"state"`
	Reason        FailureReason `json:"reason,omitempty"`
	PriorityScore float64       `json:"priority_score"`
	Dependencies  []string      `json:"dependencies,omitempty"`
	Attempts      int           `json:"attempts"`
}

// PhaseSnapshot is one phase of a PlanSnapshot.
type PhaseSnapshot struct {
	Index int        `json:"index"`
	Tasks []TaskView `json:"tasks"`
}

// PlanSnapshot is the plan-query response: the plan plus per-task state.
type PlanSnapshot struct {
	SessionID    string          `json:"session_id"`
	CurrentPhase int             `json:"current_phase"`
	Phases       []PhaseSnapshot `json:"phases"`
	Rejected     []TaskView      `json:"rejected,omitempty"`
	TakenAt      time.Time       `json:"taken_at"`
}

// Counts tallies the tasks of the snapshot by state.
func (s PlanSnapshot) Counts() map[TaskState]int {
	counts := make(map[TaskState]int)
	for _, ph := range s.Phases {
		for _, t := range ph.Tasks {
			counts[t.State]++
		}
	}
	for _, t := range s.Rejected {
		counts[t.State]++
	}
	return counts
}
