package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/anthropics/anthropic-sdk-go"

	"github.com/ShayCichocki/taskpilot/internal/bus"
	"github.com/ShayCichocki/taskpilot/internal/config"
	"github.com/ShayCichocki/taskpilot/internal/engine"
	"github.com/ShayCichocki/taskpilot/internal/eventlog"
	"github.com/ShayCichocki/taskpilot/internal/logging"
	"github.com/ShayCichocki/taskpilot/internal/rules"
	"github.com/ShayCichocki/taskpilot/internal/state"
	"github.com/ShayCichocki/taskpilot/internal/surface"
	"github.com/ShayCichocki/taskpilot/internal/telemetry"
	"github.com/ShayCichocki/taskpilot/internal/version"
)

// runtime holds the components shared by the commands of one invocation.
type runtime struct {
	root    string
	cfg     *config.Config
	logger  *logging.Logger
	tel     *telemetry.Telemetry
	ruleSet *rules.RuleSet
	rules   *rules.Compiled
	bus     *bus.Bus

	closers []func() error
}

// loadConfig reads --config when given, otherwise the layered config.
func loadConfig() (*config.Config, error) {
	var cfg *config.Config
	var err error
	if configPath != "" {
		cfg, err = config.LoadFromPath(configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, err
	}
	if verbose {
		cfg.Logging.Level = "debug"
	}
	return cfg, nil
}

// projectRoot is the directory holding .taskpilot.yaml, or the working directory.
func projectRoot() (string, error) {
	if p := config.GetProjectConfigPath(); p != "" {
		return filepath.Dir(p), nil
	}
	cwd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("get working directory: %w", err)
	}
	return cwd, nil
}

// newRuntime wires logging, telemetry, rules and the status bus.
func newRuntime(ctx context.Context, cfg *config.Config) (*runtime, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	root, err := projectRoot()
	if err != nil {
		return nil, err
	}
	rt := &runtime{root: root, cfg: cfg, tel: telemetry.Nop()}

	var extra slog.Handler
	if cfg.Telemetry.Enabled {
		w, err := rt.openFile(cfg.Telemetry.File)
		if err != nil {
			return nil, fmt.Errorf("open telemetry file: %w", err)
		}
		tel, err := telemetry.Setup(ctx, telemetry.Options{Enabled: true, Writer: w, ServiceVersion: version.Get()})
		if err != nil {
			rt.Close()
			return nil, fmt.Errorf("setup telemetry: %w", err)
		}
		rt.tel = tel
		rt.closers = append(rt.closers, func() error { return tel.Shutdown(context.Background()) })
		extra = tel.Logger().Handler()
	}

	logPath := ""
	if cfg.Logging.File != "" {
		logPath = rt.resolve(cfg.Logging.File)
	}
	logger, err := logging.New(logging.Options{Path: logPath, Level: cfg.Logging.Level, Extra: extra})
	if err != nil {
		rt.Close()
		return nil, err
	}
	rt.logger = logger
	rt.closers = append(rt.closers, logger.Close)

	rulePath := ""
	if cfg.Rules.Path != "" {
		rulePath = rt.resolve(cfg.Rules.Path)
	}
	rt.ruleSet, err = rules.LoadOrDefault(rulePath)
	if err != nil {
		rt.Close()
		return nil, err
	}
	rt.rules, err = rt.ruleSet.Compile()
	if err != nil {
		rt.Close()
		return nil, fmt.Errorf("compile rules: %w", err)
	}

	rt.bus = bus.New(rt.log())
	return rt, nil
}

func (rt *runtime) log() *slog.Logger {
	if rt.logger == nil {
		return logging.Nop()
	}
	return rt.logger.Logger
}

// resolve makes a configured path absolute relative to the project root.
func (rt *runtime) resolve(path string) string {
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(rt.root, path)
}

// openFile opens path for appending and registers it for closing.
func (rt *runtime) openFile(path string) (io.Writer, error) {
	path = rt.resolve(path)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, err
	}
	rt.closers = append(rt.closers, f.Close)
	return f, nil
}

// engineConfig maps the config file onto engine limits.
func (rt *runtime) engineConfig() engine.Config {
	e := rt.cfg.Engine
	return engine.Config{
		MaxParallel:         e.MaxParallel,
		MaxAttempts:         e.MaxAttempts,
		ConfirmationTimeout: e.ConfirmationTimeout,
		ProbeText:           e.ProbeText,
		InboxBuffer:         e.InboxBuffer,
	}
}

// newEngine builds an engine bound to s. s may be nil for planning.
func (rt *runtime) newEngine(s surface.Surface) *engine.Engine {
	return engine.New(rt.engineConfig(), rt.rules, s,
		engine.WithBus(rt.bus),
		engine.WithTelemetry(rt.tel),
		engine.WithLogger(rt.log()))
}

// openSurface opens the configured execution surface.
func (rt *runtime) openSurface() (surface.Surface, error) {
	sc := rt.cfg.Surface
	opts := surface.Options{Kind: sc.Kind}
	if sc.Dir != "" {
		opts.Dir = rt.resolve(sc.Dir)
	}
	if sc.Script != "" {
		opts.Script = rt.resolve(sc.Script)
	}
	if sc.Kind == surface.KindClaude {
		key := sc.Claude.APIKey
		if !sc.Claude.UseBedrock {
			k, err := config.GetAPIKey(rt.cfg)
			if err != nil {
				return nil, err
			}
			key = k
		}
		opts.Claude = surface.ClaudeConfig{
			Model:         anthropic.Model(sc.Claude.Model),
			APIKey:        key,
			UseAWSBedrock: sc.Claude.UseBedrock,
			AWSRegion:     sc.Claude.AWSRegion,
			AWSProfile:    sc.Claude.AWSProfile,
			MaxTokens:     sc.Claude.MaxTokens,
		}
	}
	return surface.Open(opts, rt.log())
}

// openStore opens and migrates the configured session store.
func (rt *runtime) openStore() (*state.DB, error) {
	driver, err := state.NormalizeDriver(rt.cfg.State.Driver)
	if err != nil {
		return nil, err
	}
	dsn := rt.cfg.State.DSN
	if driver != state.DriverPostgres {
		if dsn == "" {
			dsn = state.ProjectDBPath(rt.root)
		} else {
			dsn = rt.resolve(dsn)
		}
	}
	db, err := state.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open session store: %w", err)
	}
	if err := db.Migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate session store: %w", err)
	}
	return db, nil
}

// openEventLog opens the NDJSON transcript, or returns nil when disabled.
func (rt *runtime) openEventLog() (*eventlog.EventLog, error) {
	if rt.cfg.EventLog.Path == "" {
		return nil, nil
	}
	return eventlog.NewEventLog(rt.resolve(rt.cfg.EventLog.Path), rt.log())
}

// Close releases everything opened by the runtime, newest first.
func (rt *runtime) Close() error {
	var errs []error
	for i := len(rt.closers) - 1; i >= 0; i-- {
		errs = append(errs, rt.closers[i]())
	}
	rt.closers = nil
	return errors.Join(errs...)
}
