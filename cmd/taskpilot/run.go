package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/sourcegraph/conc"
	"github.com/spf13/cobra"

	"github.com/ShayCichocki/taskpilot/internal/bus"
	"github.com/ShayCichocki/taskpilot/internal/config"
	"github.com/ShayCichocki/taskpilot/internal/engine"
	"github.com/ShayCichocki/taskpilot/internal/project"
	"github.com/ShayCichocki/taskpilot/internal/state"
	"github.com/ShayCichocki/taskpilot/internal/tui"
	"github.com/ShayCichocki/taskpilot/pkg/models"
)

// errIncomplete makes the process exit non-zero when some task did not complete.
var errIncomplete = errors.New("session finished with incomplete tasks")

var (
	runText        string
	runFramework   string
	runSurface     string
	runScript      string
	runDir         string
	runMaxParallel int
	runMaxAttempts int
	runTimeout     time.Duration
	runHeadless    bool
	runNoStore     bool
	runJSON        bool
)

var runCmd = &cobra.Command{
	Use:   "run [task-file]",
	Short: "Plan and execute a task list",
	Long: `Extract tasks from a task list, plan them into phases and drive each
task through the execution surface until it is confirmed complete.

The task list is read from the file argument, from --text, or from stdin.

Execution surfaces (--surface):
  scripted  Canned replies, for demos and dry runs (default)
  file      Instructions are written to <dir>/outbox, replies read from <dir>/inbox
  claude    Each task is sent to Claude through the Anthropic API

Examples:
  taskpilot run tasks.md
  taskpilot run --text "TODO: create schema, then add endpoint"
  cat tasks.md | taskpilot run --framework @framework.yaml --headless`,
	Args: cobra.MaximumNArgs(1),
	RunE: runSession,
}

func init() {
	addInputFlags(runCmd, &runText, &runFramework)
	runCmd.Flags().StringVar(&runSurface, "surface", "", "Execution surface: scripted, file, or claude")
	runCmd.Flags().StringVar(&runScript, "script", "", "YAML reply script for the scripted surface")
	runCmd.Flags().StringVar(&runDir, "dir", "", "Exchange directory for the file surface")
	runCmd.Flags().IntVar(&runMaxParallel, "max-parallel", 0, "Maximum tasks per phase")
	runCmd.Flags().IntVar(&runMaxAttempts, "max-attempts", 0, "Maximum instructions plus probes per task")
	runCmd.Flags().DurationVar(&runTimeout, "timeout", 0, "Per-task confirmation deadline")
	runCmd.Flags().BoolVar(&runHeadless, "headless", false, "Print progress lines instead of the TUI")
	runCmd.Flags().BoolVar(&runNoStore, "no-store", false, "Do not record the session in the session store")
	runCmd.Flags().BoolVar(&runJSON, "json", false, "Print the final report as JSON")
}

func addInputFlags(cmd *cobra.Command, text, framework *string) {
	cmd.Flags().StringVar(text, "text", "", "Task list text (instead of a file)")
	cmd.Flags().StringVar(framework, "framework", "", "Framework context, or @file to read it from a file")
}

// applyRunFlags overrides config values with flags that were set.
func applyRunFlags(cmd *cobra.Command, cfg *config.Config) {
	flags := cmd.Flags()
	if flags.Changed("surface") {
		cfg.Surface.Kind = runSurface
	}
	if flags.Changed("script") {
		cfg.Surface.Script = runScript
	}
	if flags.Changed("dir") {
		cfg.Surface.Dir = runDir
	}
	if flags.Changed("max-parallel") {
		cfg.Engine.MaxParallel = runMaxParallel
	}
	if flags.Changed("max-attempts") {
		cfg.Engine.MaxAttempts = runMaxAttempts
	}
	if flags.Changed("timeout") {
		cfg.Engine.ConfirmationTimeout = runTimeout
	}
}

func runSession(cmd *cobra.Command, args []string) (retErr error) {
	input, err := buildInput(args, runText, runFramework, stdinIfPiped())
	if err != nil {
		return err
	}
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	applyRunFlags(cmd, cfg)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rt, err := newRuntime(ctx, cfg)
	if err != nil {
		return err
	}
	defer rt.Close()
	logger := rt.log()

	sf, err := rt.openSurface()
	if err != nil {
		return fmt.Errorf("open execution surface: %w", err)
	}
	defer sf.Close()
	eng := rt.newEngine(sf)

	// Subscribers drain the bus until it is closed after the run.
	var listeners conc.WaitGroup
	stopListeners := func() {
		rt.bus.Close()
		listeners.Wait()
	}

	var store *state.DB
	if !runNoStore {
		store, err = rt.openStore()
		if err != nil {
			return err
		}
		defer store.Close()
		startRecorder(ctx, &listeners, rt.bus, store, logger)
	}

	evlog, err := rt.openEventLog()
	if err != nil {
		stopListeners()
		return fmt.Errorf("open event log: %w", err)
	}
	if evlog != nil {
		defer evlog.Close()
		sub := rt.bus.Subscribe(bus.DefaultBuffer)
		listeners.Go(func() { evlog.Run(context.WithoutCancel(ctx), sub) })
	}

	useTUI := !runHeadless && !runJSON && isatty.IsTerminal(os.Stdout.Fd())
	if !useTUI && !runJSON {
		sub := rt.bus.Subscribe(bus.DefaultBuffer)
		out := cmd.OutOrStdout()
		listeners.Go(func() {
			sub.Run(context.WithoutCancel(ctx), func(ev bus.StatusEvent) { printEvent(out, ev) })
		})
	}

	s, err := eng.Prepare(input, project.Detect(rt.root))
	if err != nil {
		stopListeners()
		return err
	}
	logger.Info("session prepared", "session", s.ID, "tasks", len(s.Tasks()), "phases", len(s.Plan().Phases))

	var report *models.SessionReport
	var runErr error
	if useTUI {
		report, runErr = runWithTUI(ctx, rt, eng, s)
	} else {
		report, runErr = eng.Run(ctx, s)
	}
	stopListeners()

	if store != nil && report != nil {
		if err := store.SaveReport(context.WithoutCancel(ctx), input, report); err != nil {
			logger.Error("save session report", "session", s.ID, "error", err)
			retErr = errors.Join(retErr, fmt.Errorf("save session report: %w", err))
		}
	}

	if runJSON {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		if err := enc.Encode(report); err != nil {
			return errors.Join(retErr, runErr, err)
		}
	} else {
		printReport(cmd.OutOrStdout(), report)
	}

	if runErr != nil {
		return errors.Join(retErr, runErr)
	}
	if report != nil && report.Outcome == models.OutcomePartial {
		return errors.Join(retErr, errIncomplete)
	}
	return retErr
}

// startRecorder persists bus events until the bus is closed. It keeps
// draining after ctx is cancelled so the final cancellations are stored.
func startRecorder(ctx context.Context, listeners *conc.WaitGroup, b *bus.Bus, store *state.DB, logger *slog.Logger) {
	rec := state.NewRecorder(store, logger)
	sub := b.Subscribe(bus.DefaultBuffer)
	listeners.Go(func() { rec.Run(context.WithoutCancel(ctx), sub) })
}

// runWithTUI runs the session behind the progress view. Quitting the view
// stops the session.
func runWithTUI(ctx context.Context, rt *runtime, eng *engine.Engine, s *engine.Session) (*models.SessionReport, error) {
	app := tui.NewApp(tui.Options{
		SessionID:   s.ID,
		Snapshot:    s.Snapshot,
		Controls:    eng.Controller(),
		RefreshRate: rt.cfg.TUI.RefreshRate,
	})
	program := tui.NewProgram(app)

	sub := rt.bus.Subscribe(bus.DefaultBuffer)
	go tui.Forward(ctx, program, sub)

	type result struct {
		report *models.SessionReport
		err    error
	}
	done := make(chan result, 1)
	go func() {
		report, err := eng.Run(ctx, s)
		program.Send(tui.DoneMsg{Report: report, Err: err})
		done <- result{report, err}
	}()

	_, tuiErr := program.Run()
	if !app.Done() {
		s.Cancel()
	}
	res := <-done
	if tuiErr != nil {
		return res.report, errors.Join(res.err, fmt.Errorf("tui: %w", tuiErr))
	}
	return res.report, res.err
}
