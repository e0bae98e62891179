package engine

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ShayCichocki/taskpilot/internal/graph"
	"github.com/ShayCichocki/taskpilot/internal/project"
	"github.com/ShayCichocki/taskpilot/pkg/models"
)

// Session owns everything one task list produces: the tasks, their graph and
// plan, live confirmation sessions, warnings and phase results. The graph and
// plan are read-only once Prepare returns.
type Session struct {
	ID        string
	Input     models.TaskListInput
	Project   *models.ProjectContext
	Hints     project.FrameworkRules
	CreatedAt time.Time

	graph *graph.TaskGraph
	plan  *models.ExecutionPlan

	mu           sync.RWMutex
	tasks        []*models.Task
	byID         map[string]*models.Task
	records      map[string]*taskRecord
	confirm      map[string]*models.ConfirmationSession
	warnings     []models.Warning
	phases       []models.PhaseResult
	currentPhase int

	started atomic.Bool
	cancel  context.CancelFunc
	// cancelled is set by Cancel before Run installs its cancel func.
	cancelled atomic.Bool
	// surfaceLost is set by a worker whose command was refused.
	surfaceLost atomic.Bool
}

// taskRecord is the execution history kept for the report.
type taskRecord struct {
	attempts   int
	lastSignal string
	startedAt  *time.Time
	finishedAt *time.Time
}

func newSession(id string, input models.TaskListInput, pctx *models.ProjectContext, hints project.FrameworkRules, tasks []*models.Task) *Session {
	s := &Session{
		ID:           id,
		Input:        input,
		Project:      pctx,
		Hints:        hints,
		CreatedAt:    time.Now(),
		tasks:        tasks,
		byID:         make(map[string]*models.Task, len(tasks)),
		records:      make(map[string]*taskRecord, len(tasks)),
		confirm:      make(map[string]*models.ConfirmationSession),
		currentPhase: -1,
	}
	for _, t := range tasks {
		s.byID[t.ID] = t
		s.records[t.ID] = &taskRecord{}
	}
	return s
}

// Graph returns the frozen dependency graph.
func (s *Session) Graph() *graph.TaskGraph { return s.graph }

// Plan returns a copy of the execution plan.
func (s *Session) Plan() *models.ExecutionPlan { return s.plan.Clone() }

// Tasks returns copies of every task, rejected ones included, in extraction order.
func (s *Session) Tasks() []*models.Task {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.Task, len(s.tasks))
	for i, t := range s.tasks {
		out[i] = t.Clone()
	}
	return out
}

// Task returns a copy of one task.
func (s *Session) Task(id string) (*models.Task, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.byID[id]
	if !ok {
		return nil, false
	}
	return t.Clone(), true
}

// Warnings returns the warnings recorded so far.
func (s *Session) Warnings() []models.Warning {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]models.Warning(nil), s.warnings...)
}

// Confirmation returns a copy of the live confirmation session of a task.
// Sessions exist only while the task is executing.
func (s *Session) Confirmation(id string) (models.ConfirmationSession, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cs, ok := s.confirm[id]
	if !ok {
		return models.ConfirmationSession{}, false
	}
	return *cs, true
}

// Cancel stops the session. Every non-terminal task ends Cancelled.
func (s *Session) Cancel() {
	s.cancelled.Store(true)
	s.mu.RLock()
	cancel := s.cancel
	s.mu.RUnlock()
	if cancel != nil {
		cancel()
	}
}

// Snapshot returns a deep copy of the plan annotated with live task state.
func (s *Session) Snapshot() models.PlanSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := models.PlanSnapshot{SessionID: s.ID, CurrentPhase: s.currentPhase, TakenAt: time.Now()}
	if s.plan != nil {
		for _, ph := range s.plan.Phases {
			ps := models.PhaseSnapshot{Index: ph.Index}
			for _, id := range ph.TaskIDs {
				ps.Tasks = append(ps.Tasks, s.viewLocked(s.byID[id]))
			}
			snap.Phases = append(snap.Phases, ps)
		}
	}
	for _, t := range s.tasks {
		if t.State == models.TaskRejected {
			snap.Rejected = append(snap.Rejected, s.viewLocked(t))
		}
	}
	return snap
}

func (s *Session) viewLocked(t *models.Task) models.TaskView {
	return models.TaskView{
		ID:            t.ID,
		Text:          t.Text(),
		Category:      t.Category,
		State:         t.State,
		Reason:        t.Reason,
		PriorityScore: t.PriorityScore,
		Dependencies:  append([]string(nil), t.Dependencies...),
		Attempts:      s.records[t.ID].attempts,
	}
}

func (s *Session) addWarning(w models.Warning) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.warnings = append(s.warnings, w)
}

func (s *Session) setCurrentPhase(i int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.currentPhase = i
}

func (s *Session) addPhaseResult(r models.PhaseResult) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.phases = append(s.phases, r)
}

// state returns the current state of a task.
func (s *Session) state(id string) models.TaskState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.byID[id].State
}

// transition applies a validated state change and returns the previous state.
func (s *Session) transition(id string, to models.TaskState, reason models.FailureReason, detail string) (models.TaskState, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := s.byID[id]
	from := t.State
	if err := Transition(t, to); err != nil {
		return from, 0, err
	}
	rec := s.records[id]
	now := time.Now()
	if to == models.TaskExecuting && rec.startedAt == nil {
		rec.startedAt = &now
	}
	if to.Terminal() {
		rec.finishedAt = &now
		t.Reason = reason
		t.ReasonDetail = detail
	}
	return from, rec.attempts, nil
}

func (s *Session) openConfirmation(cs *models.ConfirmationSession) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.confirm[cs.TaskID] = cs
}

func (s *Session) releaseConfirmation(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.confirm, id)
}

// recordSend counts an instruction or probe on the live confirmation session.
func (s *Session) recordSend(id string, probe bool) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	cs := s.confirm[id]
	cs.RecordSend(probe)
	s.records[id].attempts = cs.AttemptCount
	return cs.AttemptCount
}

// recordSignal stores the latest reply and returns the classifier inputs.
func (s *Session) recordSignal(id, text string) models.ConfirmationSession {
	s.mu.Lock()
	defer s.mu.Unlock()
	cs := s.confirm[id]
	cs.RecordSignal(text)
	s.records[id].lastSignal = text
	return *cs
}

// pendingAfter returns the non-terminal tasks of phases after index, in plan order.
func (s *Session) pendingAfter(index int) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []string
	for _, ph := range s.plan.Phases {
		if ph.Index <= index {
			continue
		}
		for _, id := range ph.TaskIDs {
			if !s.byID[id].State.Terminal() {
				out = append(out, id)
			}
		}
	}
	return out
}

// unfinished filters ids down to the tasks that are not terminal.
func (s *Session) unfinished(ids []string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []string
	for _, id := range ids {
		if !s.byID[id].State.Terminal() {
			out = append(out, id)
		}
	}
	return out
}

// nonTerminal returns every planned task that has not finished.
func (s *Session) nonTerminal() []string {
	return s.pendingAfter(-1)
}

// blockedBy returns the first dependency of id that can no longer complete.
func (s *Session) blockedBy(id string) string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, dep := range s.byID[id].Dependencies {
		st := s.byID[dep].State
		if st.Terminal() && st != models.TaskCompleted {
			return dep
		}
	}
	return ""
}

// report builds the final session report.
func (s *Session) report(started time.Time, outcome models.SessionOutcome, runErr error) *models.SessionReport {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r := &models.SessionReport{
		SessionID:  s.ID,
		StartedAt:  started,
		FinishedAt: time.Now(),
		Outcome:    outcome,
		Plan:       s.plan.Clone(),
		Phases:     append([]models.PhaseResult(nil), s.phases...),
		Warnings:   append([]models.Warning(nil), s.warnings...),
	}
	if runErr != nil {
		r.Error = runErr.Error()
	}
	tasks := append([]*models.Task(nil), s.tasks...)
	sort.SliceStable(tasks, func(i, j int) bool { return tasks[i].Index < tasks[j].Index })
	for _, t := range tasks {
		rec := s.records[t.ID]
		r.Tasks = append(r.Tasks, models.TaskResult{
			ID:            t.ID,
			RawText:       t.RawText,
			RefinedText:   t.RefinedText,
			Category:      t.Category,
			PriorityScore: t.PriorityScore,
			Dependencies:  append([]string(nil), t.Dependencies...),
			Phase:         s.plan.PhaseOf(t.ID),
			State:         t.State,
			Reason:        t.Reason,
			Detail:        t.ReasonDetail,
			Attempts:      rec.attempts,
			LastSignal:    rec.lastSignal,
			StartedAt:     rec.startedAt,
			FinishedAt:    rec.finishedAt,
		})
	}
	return r
}
