// Package engine turns a task list into a session and drives it through the
// execution surface.
//
// Prepare runs the planning pipeline (extract, categorize, validate, map
// dependencies, prioritize, plan). Run executes the plan phase by phase: each
// task of a phase gets its own worker that sends the instruction, then
// probes the surface until the confirmation classifier reports completion or
// the attempt and deadline bounds are hit.
package engine

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/ShayCichocki/taskpilot/internal/bus"
	"github.com/ShayCichocki/taskpilot/internal/categorize"
	"github.com/ShayCichocki/taskpilot/internal/classify"
	"github.com/ShayCichocki/taskpilot/internal/depmap"
	"github.com/ShayCichocki/taskpilot/internal/extract"
	"github.com/ShayCichocki/taskpilot/internal/graph"
	"github.com/ShayCichocki/taskpilot/internal/planner"
	"github.com/ShayCichocki/taskpilot/internal/prioritize"
	"github.com/ShayCichocki/taskpilot/internal/project"
	"github.com/ShayCichocki/taskpilot/internal/rules"
	"github.com/ShayCichocki/taskpilot/internal/surface"
	"github.com/ShayCichocki/taskpilot/internal/telemetry"
	"github.com/ShayCichocki/taskpilot/internal/validation"
	"github.com/ShayCichocki/taskpilot/pkg/models"
)

var (
	// ErrSurfaceUnavailable is returned by Run, alongside the report, when the
	// execution surface is lost mid-session.
	ErrSurfaceUnavailable = errors.New("execution surface unavailable")
	// ErrSessionCancelled is returned by Run when the session was cancelled.
	ErrSessionCancelled = errors.New("session cancelled")
	// ErrAlreadyRun is returned when Run is called twice for one session.
	ErrAlreadyRun = errors.New("session already run")
	// ErrNoSurface is returned by Run when the engine has no surface.
	ErrNoSurface = errors.New("engine has no execution surface")
)

// Config bounds execution.
type Config struct {
	// MaxParallel caps the tasks of one phase. Values below 1 mean 1.
	MaxParallel int
	// MaxAttempts bounds instructions plus probes per task. Zero means the default.
	MaxAttempts int
	// ConfirmationTimeout is the per-task deadline. Zero means the default.
	ConfirmationTimeout time.Duration
	// ProbeText overrides the rule table's probe message.
	ProbeText string
	// InboxBuffer is the per-task signal buffer.
	InboxBuffer int
}

// DefaultConfig returns the stock execution bounds.
func DefaultConfig() Config {
	return Config{
		MaxParallel:         3,
		MaxAttempts:         models.DefaultMaxAttempts,
		ConfirmationTimeout: models.DefaultConfirmationTimeout,
		InboxBuffer:         DefaultInboxBuffer,
	}
}

// Engine prepares and runs sessions. One engine may run many sessions, one
// at a time per surface.
type Engine struct {
	cfg        Config
	rules      *rules.Compiled
	surface    surface.Surface
	bus        *bus.Bus
	tel        *telemetry.Telemetry
	logger     *slog.Logger
	classifier classify.Classifier
	pause      *PauseController
}

// Option customizes an Engine.
type Option func(*Engine)

// WithBus publishes status events to b.
func WithBus(b *bus.Bus) Option { return func(e *Engine) { e.bus = b } }

// WithTelemetry records spans and metrics.
func WithTelemetry(t *telemetry.Telemetry) Option { return func(e *Engine) { e.tel = t } }

// WithLogger sets the engine logger.
func WithLogger(l *slog.Logger) Option { return func(e *Engine) { e.logger = l } }

// WithClassifier replaces the rule-based confirmation classifier.
func WithClassifier(c classify.Classifier) Option { return func(e *Engine) { e.classifier = c } }

// New creates an engine. s may be nil for planning-only use.
func New(cfg Config, r *rules.Compiled, s surface.Surface, opts ...Option) *Engine {
	if cfg.MaxParallel < 1 {
		cfg.MaxParallel = 1
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = models.DefaultMaxAttempts
	}
	if cfg.ConfirmationTimeout <= 0 {
		cfg.ConfirmationTimeout = models.DefaultConfirmationTimeout
	}
	if cfg.ProbeText == "" {
		cfg.ProbeText = r.Confirmation.ProbeText
	}
	if cfg.ProbeText == "" {
		cfg.ProbeText = rules.DefaultProbeText
	}

	e := &Engine{cfg: cfg, rules: r, surface: s}
	for _, opt := range opts {
		opt(e)
	}
	if e.logger == nil {
		e.logger = slog.New(slog.DiscardHandler)
	}
	if e.bus == nil {
		e.bus = bus.New(e.logger)
	}
	if e.tel == nil {
		e.tel = telemetry.Nop()
	}
	if e.classifier == nil {
		e.classifier = classify.New(r)
	}
	e.pause = NewPauseController(e.logger)
	return e
}

// Bus returns the status bus.
func (e *Engine) Bus() *bus.Bus { return e.bus }

// Controller returns the pause controller consulted between phases.
func (e *Engine) Controller() *PauseController { return e.pause }

// Config returns the effective configuration.
func (e *Engine) Config() Config { return e.cfg }

// Prepare turns a task list into a planned session. Rejected tasks stay in
// the session for reporting but are left out of the graph and plan.
func (e *Engine) Prepare(input models.TaskListInput, pctx *models.ProjectContext) (*Session, error) {
	hints := project.ParseFrameworkRules(input.Framework())
	tasks := extract.Extract(input.RawText, hints)
	s := newSession(uuid.NewString(), input, pctx, hints, tasks)
	logger := e.logger.With("session", s.ID)

	if len(tasks) == 0 {
		s.warnings = append(s.warnings, models.Warning{
			Kind:    models.WarningExtractionEmpty,
			Message: "no tasks found in input",
		})
		s.graph = graph.New()
		s.graph.Freeze()
		s.plan = &models.ExecutionPlan{MaxParallel: e.cfg.MaxParallel}
		logger.Warn("no tasks extracted")
		return s, nil
	}

	categorize.New(e.rules).Apply(tasks, pctx)

	v := validation.NewValidator(pctx, hints)
	v.OnTransition(func(task *models.Task, from, to models.TaskState, detail string) {
		if !CanTransition(from, to) {
			logger.Error("validator made an invalid transition", "task", task.ID, "from", from, "to", to)
		}
		e.publishTransition(s, task.ID, from, to, task.Reason, -1, 0, detail)
	})
	res := v.Validate(tasks)
	s.warnings = append(s.warnings, res.Warnings...)

	g, warnings := depmap.New(e.rules, logger).MapDependencies(res.Validated, pctx)
	s.warnings = append(s.warnings, warnings...)

	ordered := prioritize.New(e.rules).Prioritize(g)
	plan, err := planner.Plan(ordered, g, e.cfg.MaxParallel)
	if err != nil {
		return nil, fmt.Errorf("plan session: %w", err)
	}
	g.Freeze()
	s.graph = g
	s.plan = plan

	logger.Info("session prepared",
		"tasks", len(tasks),
		"rejected", len(res.Rejected),
		"phases", len(plan.Phases),
		"warnings", len(s.warnings))
	return s, nil
}

func (e *Engine) publishTransition(s *Session, id string, from, to models.TaskState, reason models.FailureReason, phase, attempt int, detail string) {
	e.bus.Publish(bus.StatusEvent{
		Type:      bus.EventTransition,
		SessionID: s.ID,
		TaskID:    id,
		From:      from,
		To:        to,
		Reason:    reason,
		Phase:     phase,
		Attempt:   attempt,
		Detail:    detail,
	})
}
