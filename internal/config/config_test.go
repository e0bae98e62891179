package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, kv := range os.Environ() {
		name, _, _ := strings.Cut(kv, "=")
		if strings.HasPrefix(name, EnvPrefix+"_") {
			unsetEnv(t, name)
		}
	}
	unsetEnv(t, "ANTHROPIC_API_KEY")
}

// unsetEnv removes name for the test and restores it afterwards.
func unsetEnv(t *testing.T, name string) {
	t.Helper()
	t.Setenv(name, "")
	os.Unsetenv(name)
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.Engine.MaxParallel != 3 {
		t.Errorf("expected max_parallel 3, got %d", cfg.Engine.MaxParallel)
	}
	if cfg.Engine.MaxAttempts != 3 {
		t.Errorf("expected max_attempts 3, got %d", cfg.Engine.MaxAttempts)
	}
	if cfg.Engine.ConfirmationTimeout != 10*time.Minute {
		t.Errorf("expected confirmation timeout 10m, got %v", cfg.Engine.ConfirmationTimeout)
	}
	if cfg.Surface.Kind != "scripted" {
		t.Errorf("expected scripted surface, got %q", cfg.Surface.Kind)
	}
	if cfg.State.Driver != "sqlite" {
		t.Errorf("expected sqlite driver, got %q", cfg.State.Driver)
	}
	if cfg.TUI.RefreshRate != 100*time.Millisecond {
		t.Errorf("expected refresh rate 100ms, got %v", cfg.TUI.RefreshRate)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config should validate: %v", err)
	}
}

func TestLoadFromPath(t *testing.T) {
	clearEnv(t)
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	writeFile(t, configPath, `
engine:
  max_parallel: 5
  confirmation_timeout: 90s
surface:
  kind: file
  claude:
    api_key: ${TASKPILOT_TEST_KEY}
state:
  driver: postgres
  dsn: postgres://localhost/taskpilot
`)
	t.Setenv("TASKPILOT_TEST_KEY", "sk-ant-expanded")

	cfg, err := LoadFromPath(configPath)
	if err != nil {
		t.Fatalf("LoadFromPath() error = %v", err)
	}
	if cfg.Engine.MaxParallel != 5 {
		t.Errorf("expected max_parallel 5, got %d", cfg.Engine.MaxParallel)
	}
	if cfg.Engine.ConfirmationTimeout != 90*time.Second {
		t.Errorf("expected 90s, got %v", cfg.Engine.ConfirmationTimeout)
	}
	if cfg.Engine.MaxAttempts != 3 {
		t.Errorf("unset keys should keep defaults, got max_attempts %d", cfg.Engine.MaxAttempts)
	}
	if cfg.Surface.Kind != "file" {
		t.Errorf("expected file surface, got %q", cfg.Surface.Kind)
	}
	if cfg.Surface.Claude.APIKey != "sk-ant-expanded" {
		t.Errorf("expected expanded api key, got %q", cfg.Surface.Claude.APIKey)
	}
	if cfg.State.Driver != "postgres" || cfg.State.DSN != "postgres://localhost/taskpilot" {
		t.Errorf("unexpected state config %+v", cfg.State)
	}
}

func TestLoadFromPath_Missing(t *testing.T) {
	if _, err := LoadFromPath(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestLoad_Precedence(t *testing.T) {
	clearEnv(t)
	userDir := t.TempDir()
	project := t.TempDir()
	nested := filepath.Join(project, "sub", "dir")
	if err := os.MkdirAll(nested, 0o755); err != nil {
		t.Fatal(err)
	}

	writeFile(t, filepath.Join(userDir, "config.yaml"), "engine:\n  max_parallel: 2\n  max_attempts: 4\nlogging:\n  level: debug\n")
	writeFile(t, filepath.Join(project, ProjectFile), "engine:\n  max_parallel: 6\n")
	writeFile(t, filepath.Join(project, ".env"), "TASKPILOT_LOGGING_LEVEL=warn\nANTHROPIC_API_KEY=sk-ant-from-dotenv\n")
	t.Cleanup(func() {
		os.Unsetenv("TASKPILOT_LOGGING_LEVEL")
		os.Unsetenv("ANTHROPIC_API_KEY")
	})
	t.Setenv("TASKPILOT_ENGINE_MAX_ATTEMPTS", "7")

	cfg, err := load(userDir, nested)
	if err != nil {
		t.Fatalf("load() error = %v", err)
	}
	if cfg.Engine.MaxParallel != 6 {
		t.Errorf("project config should win over user config, got %d", cfg.Engine.MaxParallel)
	}
	if cfg.Engine.MaxAttempts != 7 {
		t.Errorf("environment should win over user config, got %d", cfg.Engine.MaxAttempts)
	}
	if cfg.Logging.Level != "warn" {
		t.Errorf(".env value should apply, got %q", cfg.Logging.Level)
	}
	if cfg.Surface.Claude.APIKey != "sk-ant-from-dotenv" {
		t.Errorf("ANTHROPIC_API_KEY should bind to surface.claude.api_key, got %q", cfg.Surface.Claude.APIKey)
	}
}

func TestLoad_NoFiles(t *testing.T) {
	clearEnv(t)
	cfg, err := load(t.TempDir(), t.TempDir())
	if err != nil {
		t.Fatalf("load() error = %v", err)
	}
	if cfg.Engine.MaxParallel != Default().Engine.MaxParallel {
		t.Errorf("expected default max_parallel, got %d", cfg.Engine.MaxParallel)
	}
}

func TestSaveTo_RoundTrip(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "taskpilot", "config.yaml")
	cfg := Default()
	cfg.Engine.MaxParallel = 4
	cfg.Engine.ConfirmationTimeout = 2 * time.Minute
	cfg.Surface.Kind = "claude"
	cfg.Telemetry.Enabled = true

	if err := SaveTo(cfg, path); err != nil {
		t.Fatalf("SaveTo() error = %v", err)
	}
	loaded, err := LoadFromPath(path)
	if err != nil {
		t.Fatalf("LoadFromPath() error = %v", err)
	}
	if loaded.Engine.MaxParallel != 4 || loaded.Engine.ConfirmationTimeout != 2*time.Minute {
		t.Errorf("engine config not preserved: %+v", loaded.Engine)
	}
	if loaded.Surface.Kind != "claude" || !loaded.Telemetry.Enabled {
		t.Errorf("surface/telemetry not preserved: %+v %+v", loaded.Surface, loaded.Telemetry)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"zero parallel", func(c *Config) { c.Engine.MaxParallel = 0 }, "max_parallel"},
		{"zero attempts", func(c *Config) { c.Engine.MaxAttempts = 0 }, "max_attempts"},
		{"no timeout", func(c *Config) { c.Engine.ConfirmationTimeout = 0 }, "confirmation_timeout"},
		{"bad surface", func(c *Config) { c.Surface.Kind = "carrier-pigeon" }, "surface.kind"},
		{"bad driver", func(c *Config) { c.State.Driver = "mysql" }, "state.driver"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() = %v, want error containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestFindProjectConfig(t *testing.T) {
	root := t.TempDir()
	nested := filepath.Join(root, "a", "b")
	if err := os.MkdirAll(nested, 0o755); err != nil {
		t.Fatal(err)
	}
	writeFile(t, filepath.Join(root, ProjectFile), "tui:\n  refresh_rate: 1s\n")

	got := findProjectConfig(nested)
	if got != filepath.Join(root, ProjectFile) {
		t.Errorf("findProjectConfig() = %q", got)
	}
}
