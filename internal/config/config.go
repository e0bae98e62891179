// Package config handles configuration loading and management for taskpilot.
// It supports XDG config paths, project-level overrides, .env files and
// environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// ProjectFile is the project-level override file name.
const ProjectFile = ".taskpilot.yaml"

// EnvPrefix prefixes every environment override (TASKPILOT_ENGINE_MAX_PARALLEL).
const EnvPrefix = "TASKPILOT"

// Config holds all configuration for taskpilot.
type Config struct {
	Engine    EngineConfig    `mapstructure:"engine"`
	Bus       BusConfig       `mapstructure:"bus"`
	Rules     RulesConfig     `mapstructure:"rules"`
	Surface   SurfaceConfig   `mapstructure:"surface"`
	State     StateConfig     `mapstructure:"state"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
	EventLog  EventLogConfig  `mapstructure:"eventlog"`
	TUI       TUIConfig       `mapstructure:"tui"`
}

// EngineConfig holds orchestration limits.
type EngineConfig struct {
	MaxParallel         int           `mapstructure:"max_parallel"`
	MaxAttempts         int           `mapstructure:"max_attempts"`
	ConfirmationTimeout time.Duration `mapstructure:"confirmation_timeout"`
	// ProbeText overrides the rule table's probe when set.
	ProbeText   string `mapstructure:"probe_text"`
	InboxBuffer int    `mapstructure:"inbox_buffer"`
}

// BusConfig holds status bus settings.
type BusConfig struct {
	Buffer int `mapstructure:"buffer"`
}

// RulesConfig points at an optional YAML rule table.
type RulesConfig struct {
	Path string `mapstructure:"path"`
}

// SurfaceConfig selects the execution surface.
type SurfaceConfig struct {
	Kind   string       `mapstructure:"kind"`
	Dir    string       `mapstructure:"dir"`
	Script string       `mapstructure:"script"`
	Claude ClaudeConfig `mapstructure:"claude"`
}

// ClaudeConfig holds Anthropic API settings for the Claude surface.
type ClaudeConfig struct {
	Model      string `mapstructure:"model"`
	APIKey     string `mapstructure:"api_key"`
	UseBedrock bool   `mapstructure:"use_bedrock"`
	AWSRegion  string `mapstructure:"aws_region"`
	AWSProfile string `mapstructure:"aws_profile"`
	MaxTokens  int64  `mapstructure:"max_tokens"`
}

// StateConfig selects the session store.
type StateConfig struct {
	Driver string `mapstructure:"driver"`
	// DSN is a file path for sqlite drivers or a connection string for postgres.
	// Empty means .taskpilot/state.db in the project.
	DSN string `mapstructure:"dsn"`
}

// LoggingConfig holds log settings.
type LoggingConfig struct {
	Level string `mapstructure:"level"`
	File  string `mapstructure:"file"`
}

// TelemetryConfig holds OpenTelemetry export settings.
type TelemetryConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	File    string `mapstructure:"file"`
}

// EventLogConfig holds the NDJSON transcript settings. Empty path disables it.
type EventLogConfig struct {
	Path string `mapstructure:"path"`
}

// TUIConfig holds TUI display settings.
type TUIConfig struct {
	RefreshRate time.Duration `mapstructure:"refresh_rate"`
}

// Load loads configuration from XDG paths, project overrides, .env and
// environment variables.
// Precedence (highest to lowest):
// 1. Environment variables (TASKPILOT_*, ANTHROPIC_API_KEY), including .env
// 2. Project config (.taskpilot.yaml in current directory or parent)
// 3. User config (~/.config/taskpilot/config.yaml)
// 4. Built-in defaults
func Load() (*Config, error) {
	cwd, err := os.Getwd()
	if err != nil {
		cwd = "."
	}
	return load(getUserConfigDir(), cwd)
}

func load(userConfigDir, startDir string) (*Config, error) {
	if err := loadDotEnv(startDir); err != nil {
		return nil, err
	}

	v := newViper()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(userConfigDir)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading user config: %w", err)
		}
	}

	if projectConfig := findProjectConfig(startDir); projectConfig != "" {
		projectViper := viper.New()
		projectViper.SetConfigFile(projectConfig)
		if err := projectViper.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading project config %s: %w", projectConfig, err)
		}
		if err := v.MergeConfigMap(projectViper.AllSettings()); err != nil {
			return nil, fmt.Errorf("merging project config: %w", err)
		}
	}

	return decode(v)
}

// LoadFromPath loads configuration from a specific path.
func LoadFromPath(path string) (*Config, error) {
	v := newViper()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading config from %s: %w", path, err)
	}
	return decode(v)
}

// Save writes the configuration to the user config file.
func Save(cfg *Config) error {
	return SaveTo(cfg, GetUserConfigPath())
}

// SaveTo writes the configuration as YAML to path.
func SaveTo(cfg *Config, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	for key, value := range cfg.settings() {
		v.Set(key, value)
	}
	return v.WriteConfigAs(path)
}

// GetUserConfigPath returns the path to the user config file.
func GetUserConfigPath() string {
	return filepath.Join(getUserConfigDir(), "config.yaml")
}

// GetProjectConfigPath returns the path to the project config file if it exists.
func GetProjectConfigPath() string {
	cwd, err := os.Getwd()
	if err != nil {
		return ""
	}
	return findProjectConfig(cwd)
}

// Default returns a Config with default values.
func Default() *Config {
	return &Config{
		Engine: EngineConfig{
			MaxParallel:         3,
			MaxAttempts:         3,
			ConfirmationTimeout: 10 * time.Minute,
			InboxBuffer:         16,
		},
		Bus:   BusConfig{Buffer: 256},
		Rules: RulesConfig{},
		Surface: SurfaceConfig{
			Kind: "scripted",
			Dir:  filepath.Join(".taskpilot", "surface"),
			Claude: ClaudeConfig{
				Model:     "claude-sonnet-4-20250514",
				AWSRegion: "us-east-1",
				MaxTokens: 2048,
			},
		},
		State:     StateConfig{Driver: "sqlite"},
		Logging:   LoggingConfig{Level: "info", File: filepath.Join(".taskpilot", "logs", "taskpilot.log")},
		Telemetry: TelemetryConfig{File: filepath.Join(".taskpilot", "telemetry.jsonl")},
		EventLog:  EventLogConfig{Path: filepath.Join(".taskpilot", "events.ndjson")},
		TUI:       TUIConfig{RefreshRate: 100 * time.Millisecond},
	}
}

// Validate reports settings the engine cannot run with.
func (c *Config) Validate() error {
	var errs []error
	if c.Engine.MaxParallel < 1 {
		errs = append(errs, fmt.Errorf("engine.max_parallel must be at least 1, got %d", c.Engine.MaxParallel))
	}
	if c.Engine.MaxAttempts < 1 {
		errs = append(errs, fmt.Errorf("engine.max_attempts must be at least 1, got %d", c.Engine.MaxAttempts))
	}
	if c.Engine.ConfirmationTimeout <= 0 {
		errs = append(errs, fmt.Errorf("engine.confirmation_timeout must be positive, got %s", c.Engine.ConfirmationTimeout))
	}
	switch c.Surface.Kind {
	case "", "scripted", "file", "claude":
	default:
		errs = append(errs, fmt.Errorf("surface.kind %q is not one of scripted, file, claude", c.Surface.Kind))
	}
	switch c.State.Driver {
	case "", "sqlite", "sqlite3", "postgres", "postgresql", "pq":
	default:
		errs = append(errs, fmt.Errorf("state.driver %q is not supported", c.State.Driver))
	}
	return errors.Join(errs...)
}

// settings flattens the config into viper keys.
func (c *Config) settings() map[string]any {
	return map[string]any{
		"engine.max_parallel":         c.Engine.MaxParallel,
		"engine.max_attempts":         c.Engine.MaxAttempts,
		"engine.confirmation_timeout": c.Engine.ConfirmationTimeout.String(),
		"engine.probe_text":           c.Engine.ProbeText,
		"engine.inbox_buffer":         c.Engine.InboxBuffer,
		"bus.buffer":                  c.Bus.Buffer,
		"rules.path":                  c.Rules.Path,
		"surface.kind":                c.Surface.Kind,
		"surface.dir":                 c.Surface.Dir,
		"surface.script":              c.Surface.Script,
		"surface.claude.model":        c.Surface.Claude.Model,
		"surface.claude.api_key":      c.Surface.Claude.APIKey,
		"surface.claude.use_bedrock":  c.Surface.Claude.UseBedrock,
		"surface.claude.aws_region":   c.Surface.Claude.AWSRegion,
		"surface.claude.aws_profile":  c.Surface.Claude.AWSProfile,
		"surface.claude.max_tokens":   c.Surface.Claude.MaxTokens,
		"state.driver":                c.State.Driver,
		"state.dsn":                   c.State.DSN,
		"logging.level":               c.Logging.Level,
		"logging.file":                c.Logging.File,
		"telemetry.enabled":           c.Telemetry.Enabled,
		"telemetry.file":              c.Telemetry.File,
		"eventlog.path":               c.EventLog.Path,
		"tui.refresh_rate":            c.TUI.RefreshRate.String(),
	}
}

// newViper returns a viper seeded with defaults and environment bindings.
func newViper() *viper.Viper {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	v.BindEnv("surface.claude.api_key", EnvPrefix+"_SURFACE_CLAUDE_API_KEY", "ANTHROPIC_API_KEY")
	return v
}

func decode(v *viper.Viper) (*Config, error) {
	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}
	cfg.Surface.Claude.APIKey = expandEnv(cfg.Surface.Claude.APIKey)
	cfg.State.DSN = expandEnv(cfg.State.DSN)
	return cfg, nil
}

// setDefaults configures default values from Default.
func setDefaults(v *viper.Viper) {
	for key, value := range Default().settings() {
		v.SetDefault(key, value)
	}
}

// loadDotEnv loads the nearest .env file walking up from dir. Variables
// already set in the environment win.
func loadDotEnv(dir string) error {
	path := findUp(dir, ".env")
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("loading %s: %w", path, err)
	}
	return nil
}

// getUserConfigDir returns the XDG config directory for taskpilot.
func getUserConfigDir() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "taskpilot")
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", ".config", "taskpilot")
	}
	return filepath.Join(home, ".config", "taskpilot")
}

// findProjectConfig searches for .taskpilot.yaml in dir and its parents.
func findProjectConfig(dir string) string {
	return findUp(dir, ProjectFile)
}

func findUp(dir, name string) string {
	dir, err := filepath.Abs(dir)
	if err != nil {
		return ""
	}
	for {
		path := filepath.Join(dir, name)
		if info, err := os.Stat(path); err == nil && !info.IsDir() {
			return path
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}

// expandEnv expands ${VAR} references in a string.
func expandEnv(s string) string {
	return os.ExpandEnv(s)
}
