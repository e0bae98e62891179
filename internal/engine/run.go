package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sourcegraph/conc"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/ShayCichocki/taskpilot/internal/bus"
	"github.com/ShayCichocki/taskpilot/internal/classify"
	"github.com/ShayCichocki/taskpilot/internal/project"
	"github.com/ShayCichocki/taskpilot/pkg/models"
)

// Run executes the session's plan phase by phase and returns the final
// report. When the execution surface is lost every unfinished task is
// cancelled and the report is returned together with ErrSurfaceUnavailable;
// a cancelled session returns ErrSessionCancelled the same way.
func (e *Engine) Run(ctx context.Context, s *Session) (*models.SessionReport, error) {
	if !s.started.CompareAndSwap(false, true) {
		return nil, ErrAlreadyRun
	}
	started := time.Now()
	logger := e.logger.With("session", s.ID)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	s.mu.Lock()
	s.cancel = cancel
	s.mu.Unlock()
	if s.cancelled.Load() {
		cancel()
	}

	ctx, span := e.tel.Tracer().Start(ctx, "session.run", trace.WithAttributes(
		attribute.String("session.id", s.ID),
		attribute.Int("session.tasks", s.plan.TaskCount()),
		attribute.Int("session.phases", len(s.plan.Phases)),
	))
	defer span.End()

	e.bus.Publish(bus.StatusEvent{Type: bus.EventSessionStarted, SessionID: s.ID, Phase: -1,
		Detail: fmt.Sprintf("%d tasks in %d phases", s.plan.TaskCount(), len(s.plan.Phases))})
	for _, w := range s.Warnings() {
		e.publishWarning(s, w)
	}

	if s.plan.TaskCount() == 0 {
		return e.done(ctx, s, started, models.OutcomeEmpty, nil), nil
	}
	if e.surface == nil {
		return nil, ErrNoSurface
	}

	rt := newRouter(s.nonTerminal(), e.cfg.InboxBuffer, logger)
	routerCtx, stopRouter := context.WithCancel(ctx)
	var routerWG conc.WaitGroup
	routerWG.Go(func() {
		rt.run(routerCtx, e.surface.Signals(), e.surface.Done(), func(sig models.Signal) {
			e.bus.Publish(bus.StatusEvent{Type: bus.EventSignal, SessionID: s.ID, TaskID: sig.TaskID,
				Phase: s.plan.PhaseOf(sig.TaskID), Timestamp: sig.Timestamp, Detail: sig.Text})
		})
	})

	var runErr error
	for _, phase := range s.plan.Phases {
		if err := e.pause.WaitIfPaused(ctx); err != nil {
			runErr = fmt.Errorf("%w: %v", ErrSessionCancelled, err)
			break
		}
		if runErr = e.interrupted(ctx, s); runErr != nil {
			break
		}
		if len(s.unfinished(phase.TaskIDs)) == 0 {
			logger.Debug("phase skipped, every task already settled", "phase", phase.Index)
			continue
		}
		e.runPhase(ctx, s, phase, rt)
		if runErr = e.interrupted(ctx, s); runErr != nil {
			break
		}
		e.cancelDependents(ctx, s, phase.Index)
	}
	stopRouter()
	routerWG.Wait()

	outcome := models.OutcomeCompleted
	switch {
	case errors.Is(runErr, ErrSurfaceUnavailable):
		outcome = models.OutcomeAborted
		for _, id := range s.nonTerminal() {
			e.step(ctx, s, id, models.TaskCancelled, models.ReasonSurfaceUnavailable, runErr.Error(), s.plan.PhaseOf(id))
		}
	case runErr != nil:
		outcome = models.OutcomeCancelled
		for _, id := range s.nonTerminal() {
			e.step(ctx, s, id, models.TaskCancelled, models.ReasonSessionCancelled, "session cancelled", s.plan.PhaseOf(id))
		}
	default:
		for _, t := range s.Tasks() {
			if t.State != models.TaskCompleted {
				outcome = models.OutcomePartial
				break
			}
		}
	}

	if runErr != nil {
		span.SetStatus(codes.Error, runErr.Error())
		logger.Warn("session ended early", "outcome", outcome, "error", runErr)
	}
	return e.done(ctx, s, started, outcome, runErr), runErr
}

// interrupted reports why the session cannot continue, if it cannot.
func (e *Engine) interrupted(ctx context.Context, s *Session) error {
	select {
	case <-e.surface.Done():
		return fmt.Errorf("%w: %v", ErrSurfaceUnavailable, e.surface.Err())
	default:
	}
	if s.surfaceLost.Load() {
		return ErrSurfaceUnavailable
	}
	if ctx.Err() != nil {
		return ErrSessionCancelled
	}
	return nil
}

func (e *Engine) done(ctx context.Context, s *Session, started time.Time, outcome models.SessionOutcome, runErr error) *models.SessionReport {
	report := s.report(started, outcome, runErr)
	counts := report.Counts()
	e.bus.Publish(bus.StatusEvent{Type: bus.EventSessionDone, SessionID: s.ID, Phase: -1,
		Detail: fmt.Sprintf("%s: %d completed, %d failed, %d cancelled, %d rejected", outcome,
			counts[models.TaskCompleted], counts[models.TaskFailed], counts[models.TaskCancelled], counts[models.TaskRejected])})
	trace.SpanFromContext(ctx).SetAttributes(attribute.String("session.outcome", string(outcome)))
	e.logger.Info("session finished", "session", s.ID, "outcome", outcome,
		"completed", counts[models.TaskCompleted], "failed", counts[models.TaskFailed],
		"cancelled", counts[models.TaskCancelled], "duration", report.FinishedAt.Sub(started))
	return report
}

// runPhase dispatches every task of the phase and waits until all of them
// are terminal.
func (e *Engine) runPhase(ctx context.Context, s *Session, phase models.Phase, rt *router) {
	start := time.Now()
	s.setCurrentPhase(phase.Index)
	ctx, span := e.tel.Tracer().Start(ctx, "phase.run", trace.WithAttributes(
		attribute.Int("phase.index", phase.Index),
		attribute.Int("phase.tasks", len(phase.TaskIDs)),
	))
	defer span.End()
	e.bus.Publish(bus.StatusEvent{Type: bus.EventPhaseStarted, SessionID: s.ID, Phase: phase.Index,
		Detail: fmt.Sprintf("%d tasks", len(phase.TaskIDs))})

	var wg conc.WaitGroup
	for _, id := range s.unfinished(phase.TaskIDs) {
		inbox := rt.inbox(id)
		wg.Go(func() { e.runTask(ctx, s, id, phase.Index, inbox) })
	}
	wg.Wait()

	result := models.PhaseResult{Index: phase.Index, TaskIDs: append([]string(nil), phase.TaskIDs...), StartedAt: start, FinishedAt: time.Now()}
	for _, id := range phase.TaskIDs {
		if s.state(id) != models.TaskCompleted {
			result.Failed = append(result.Failed, id)
		}
	}
	s.addPhaseResult(result)
	if len(result.Failed) > 0 {
		w := models.Warning{
			Kind:    models.WarningPhaseFailures,
			TaskIDs: result.Failed,
			Message: fmt.Sprintf("phase %d finished with %d of %d tasks not completed", phase.Index, len(result.Failed), len(phase.TaskIDs)),
		}
		s.addWarning(w)
		e.publishWarning(s, w)
		span.SetStatus(codes.Error, w.Message)
	}
	e.tel.RecordPhase(ctx, phase.Index, result.FinishedAt.Sub(start), len(result.Failed))
	e.bus.Publish(bus.StatusEvent{Type: bus.EventPhaseCompleted, SessionID: s.ID, Phase: phase.Index,
		Detail: fmt.Sprintf("%d/%d completed", len(phase.TaskIDs)-len(result.Failed), len(phase.TaskIDs))})
}

// cancelDependents cancels every later task that depends, directly or
// through other cancelled tasks, on a task that did not complete.
func (e *Engine) cancelDependents(ctx context.Context, s *Session, after int) {
	for _, id := range s.pendingAfter(after) {
		if dep := s.blockedBy(id); dep != "" {
			e.step(ctx, s, id, models.TaskCancelled, models.ReasonDependencyFailed,
				fmt.Sprintf("dependency %s did not complete", dep), s.plan.PhaseOf(id))
		}
	}
}

// runTask drives one task through the confirmation loop. It is the only
// writer of the task's state while the task is executing.
func (e *Engine) runTask(ctx context.Context, s *Session, id string, phase int, inbox <-chan models.Signal) {
	task, _ := s.Task(id)
	ctx, span := e.tel.Tracer().Start(ctx, "task.execute", trace.WithAttributes(
		attribute.String("task.id", id),
		attribute.String("task.category", string(task.Category)),
		attribute.Int("phase.index", phase),
	))
	defer span.End()
	logger := e.logger.With("session", s.ID, "task", id)

	cs := models.NewConfirmationSession(id, e.cfg.MaxAttempts, e.cfg.ConfirmationTimeout, time.Now())
	s.openConfirmation(cs)
	defer s.releaseConfirmation(id)

	if !e.step(ctx, s, id, models.TaskExecuting, models.ReasonNone, "dispatched", phase) {
		return
	}
	deadline := time.NewTimer(cs.Remaining(time.Now()))
	defer deadline.Stop()

	if _, err := e.surface.SendInstruction(ctx, id, instructionText(task, s.Hints)); err != nil {
		e.sendFailed(ctx, s, id, phase, err)
		return
	}
	s.recordSend(id, false)
	e.step(ctx, s, id, models.TaskAwaitingConfirmation, models.ReasonNone, "instruction sent", phase)

	for {
		select {
		case <-ctx.Done():
			e.step(ctx, s, id, models.TaskCancelled, models.ReasonSessionCancelled, "session cancelled", phase)
			return
		case <-e.surface.Done():
			s.surfaceLost.Store(true)
			e.step(ctx, s, id, models.TaskCancelled, models.ReasonSurfaceUnavailable, fmt.Sprint(e.surface.Err()), phase)
			return
		case <-deadline.C:
			e.fail(ctx, s, id, models.ReasonConfirmationTimeout,
				fmt.Sprintf("no confirmation within %s", e.cfg.ConfirmationTimeout), phase)
			return
		case sig := <-inbox:
			view := s.recordSignal(id, sig.Text)
			d := e.classifier.Classify(classify.Observation{
				Text:        sig.Text,
				AfterProbe:  view.LastWasProbe,
				Attempt:     view.AttemptCount,
				MaxAttempts: view.MaxAttempts,
				Expired:     view.Expired(time.Now()),
			})
			logger.Debug("signal classified", "verdict", d.Verdict, "matched", d.Matched, "attempt", view.AttemptCount)

			switch d.Verdict {
			case classify.VerdictCompleted:
				e.step(ctx, s, id, models.TaskCompleted, models.ReasonNone, d.Matched, phase)
				return
			case classify.VerdictNeedsInput:
				e.fail(ctx, s, id, models.ReasonFallbackNeedsInput, "surface asked for input: "+d.Matched, phase)
				return
			case classify.VerdictFailed:
				reason := d.Reason
				if reason == models.ReasonNone {
					reason = models.ReasonMaxAttemptsExceeded
				}
				e.fail(ctx, s, id, reason, sig.Text, phase)
				return
			}

			if !view.CanAttempt() {
				e.fail(ctx, s, id, models.ReasonMaxAttemptsExceeded,
					fmt.Sprintf("not confirmed after %d attempts", view.AttemptCount), phase)
				return
			}
			detail := "continue"
			if d.Matched != "" {
				detail += ": " + d.Matched
			}
			if !e.step(ctx, s, id, models.TaskExecuting, models.ReasonNone, detail, phase) {
				return
			}
			if err := e.surface.SendProbe(ctx, id, e.cfg.ProbeText); err != nil {
				e.sendFailed(ctx, s, id, phase, err)
				return
			}
			s.recordSend(id, true)
			e.step(ctx, s, id, models.TaskAwaitingConfirmation, models.ReasonNone, "probe sent", phase)
		}
	}
}

// sendFailed ends a task whose command the surface refused.
func (e *Engine) sendFailed(ctx context.Context, s *Session, id string, phase int, err error) {
	if ctx.Err() != nil {
		e.step(ctx, s, id, models.TaskCancelled, models.ReasonSessionCancelled, "session cancelled", phase)
		return
	}
	s.surfaceLost.Store(true)
	e.step(ctx, s, id, models.TaskCancelled, models.ReasonSurfaceUnavailable, err.Error(), phase)
}

func (e *Engine) fail(ctx context.Context, s *Session, id string, reason models.FailureReason, detail string, phase int) {
	e.step(ctx, s, id, models.TaskFailed, reason, detail, phase)
	trace.SpanFromContext(ctx).SetStatus(codes.Error, string(reason))
}

// step applies a transition and reports it on the bus and in telemetry. It
// returns false when the transition was rejected.
func (e *Engine) step(ctx context.Context, s *Session, id string, to models.TaskState, reason models.FailureReason, detail string, phase int) bool {
	from, attempts, err := s.transition(id, to, reason, detail)
	if err != nil {
		e.logger.Error("transition rejected", "session", s.ID, "task", id, "error", err)
		return false
	}
	e.publishTransition(s, id, from, to, reason, phase, attempts, detail)
	e.tel.RecordTransition(ctx, from, to)
	if to.Terminal() {
		e.tel.RecordOutcome(ctx, to, reason, attempts)
		e.logger.Info("task finished", "session", s.ID, "task", id, "state", to, "reason", reason, "attempts", attempts)
	}
	return true
}

func (e *Engine) publishWarning(s *Session, w models.Warning) {
	ev := bus.StatusEvent{Type: bus.EventWarning, SessionID: s.ID, Phase: -1, Detail: w.Message}
	if len(w.TaskIDs) == 1 {
		ev.TaskID = w.TaskIDs[0]
	}
	e.bus.Publish(ev)
}

// instructionText is the task text followed by any framework conventions.
func instructionText(task *models.Task, hints project.FrameworkRules) string {
	if len(hints.Conventions) == 0 {
		return task.Text()
	}
	return task.Text() + "\n\nConventions:\n- " + strings.Join(hints.Conventions, "\n- ")
}
