// Package planner layers a prioritized task graph into execution phases.
package planner

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/ShayCichocki/taskpilot/internal/graph"
	"github.com/ShayCichocki/taskpilot/pkg/models"
)

// ErrUnschedulable indicates that some task can never become ready: the graph
// has a cycle or a dependency outside the planned task set.
var ErrUnschedulable = errors.New("tasks cannot be scheduled")

// Plan greedily layers tasks into phases. Each round collects the tasks whose
// dependencies were all scheduled in earlier phases, orders them by
// descending priority (ties keep extraction order), and emits them in
// consecutive phases of at most maxParallel tasks. A maxParallel below 1 is
// treated as 1.
func Plan(tasks []*models.Task, g *graph.TaskGraph, maxParallel int) (*models.ExecutionPlan, error) {
	if maxParallel < 1 {
		maxParallel = 1
	}
	plan := &models.ExecutionPlan{MaxParallel: maxParallel}

	inSet := make(map[string]*models.Task, len(tasks))
	for _, t := range tasks {
		inSet[t.ID] = t
	}
	for _, t := range tasks {
		for _, dep := range g.Dependencies(t.ID) {
			if _, ok := inSet[dep]; !ok {
				return nil, fmt.Errorf("%w: %s depends on %s, which is not planned", ErrUnschedulable, t.ID, dep)
			}
		}
	}

	scheduled := make(map[string]bool, len(tasks))
	for len(scheduled) < len(tasks) {
		var ready []*models.Task
		for _, t := range tasks {
			if scheduled[t.ID] || !depsScheduled(g, t.ID, scheduled) {
				continue
			}
			ready = append(ready, t)
		}
		if len(ready) == 0 {
			var stuck []string
			for _, t := range tasks {
				if !scheduled[t.ID] {
					stuck = append(stuck, t.ID)
				}
			}
			return nil, fmt.Errorf("%w: %v wait on each other", ErrUnschedulable, stuck)
		}

		sort.SliceStable(ready, func(i, j int) bool {
			if ready[i].PriorityScore != ready[j].PriorityScore {
				return ready[i].PriorityScore > ready[j].PriorityScore
			}
			return ready[i].Index < ready[j].Index
		})

		for start := 0; start < len(ready); start += maxParallel {
			chunk := ready[start:min(start+maxParallel, len(ready))]
			phase := models.Phase{Index: len(plan.Phases)}
			var longest time.Duration
			for _, t := range chunk {
				phase.TaskIDs = append(phase.TaskIDs, t.ID)
				longest = max(longest, t.EstimatedDuration)
			}
			plan.Phases = append(plan.Phases, phase)
			plan.EstimatedDuration += longest
		}
		// Mark after emitting so a task never depends on a sibling in its round.
		for _, t := range ready {
			scheduled[t.ID] = true
		}
	}
	return plan, nil
}

func depsScheduled(g *graph.TaskGraph, id string, scheduled map[string]bool) bool {
	for _, dep := range g.Dependencies(id) {
		if !scheduled[dep] {
			return false
		}
	}
	return true
}

// Validate checks the plan invariants: every task of g appears in exactly one
// phase, every dependency lies in an earlier phase, and no phase is wider
// than maxParallel.
func Validate(plan *models.ExecutionPlan, g *graph.TaskGraph, maxParallel int) error {
	if plan == nil {
		return errors.New("nil plan")
	}
	phaseOf := make(map[string]int)
	for i, ph := range plan.Phases {
		if ph.Index != i {
			return fmt.Errorf("phase %d has index %d", i, ph.Index)
		}
		if len(ph.TaskIDs) == 0 {
			return fmt.Errorf("phase %d is empty", i)
		}
		if maxParallel > 0 && len(ph.TaskIDs) > maxParallel {
			return fmt.Errorf("phase %d has %d tasks, limit %d", i, len(ph.TaskIDs), maxParallel)
		}
		for _, id := range ph.TaskIDs {
			if prev, dup := phaseOf[id]; dup {
				return fmt.Errorf("task %s appears in phases %d and %d", id, prev, i)
			}
			phaseOf[id] = i
		}
	}
	for _, id := range g.IDs() {
		p, ok := phaseOf[id]
		if !ok {
			return fmt.Errorf("task %s is not planned", id)
		}
		for _, dep := range g.Dependencies(id) {
			dp, ok := phaseOf[dep]
			if !ok || dp >= p {
				return fmt.Errorf("task %s in phase %d depends on %s in phase %d", id, p, dep, dp)
			}
		}
	}
	return nil
}
