package main

import (
	"fmt"
	"io"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/ShayCichocki/taskpilot/internal/config"
)

var configProject bool

var configCmd = &cobra.Command{
	Use:   "config [key] [value]",
	Short: "Manage configuration",
	Long: `View or modify taskpilot configuration.

Without arguments, displays current configuration.
With one argument (key), displays the value for that key.
With two arguments (key value), sets the configuration value.

Configuration is stored at ~/.config/taskpilot/config.yaml
Project-specific overrides can be placed in .taskpilot.yaml (--project)`,
	Args: cobra.MaximumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
		out := cmd.OutOrStdout()

		switch len(args) {
		case 0:
			displayAllConfig(out, cfg)
			return nil
		case 1:
			value, err := getConfigValue(cfg, args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(out, value)
			return nil
		default:
			return setConfigKey(out, cfg, args[0], args[1])
		}
	},
}

func init() {
	configCmd.Flags().BoolVar(&configProject, "project", false, "Write to the project's .taskpilot.yaml instead of the user config")
}

var configKeys = []string{
	"engine.max_parallel", "engine.max_attempts", "engine.confirmation_timeout", "engine.probe_text", "engine.inbox_buffer",
	"bus.buffer", "rules.path",
	"surface.kind", "surface.dir", "surface.script",
	"surface.claude.model", "surface.claude.api_key", "surface.claude.use_bedrock",
	"surface.claude.aws_region", "surface.claude.aws_profile", "surface.claude.max_tokens",
	"state.driver", "state.dsn", "logging.level", "logging.file",
	"telemetry.enabled", "telemetry.file", "eventlog.path", "tui.refresh_rate",
}

// displayAllConfig prints all configuration values.
func displayAllConfig(w io.Writer, cfg *config.Config) {
	for _, key := range configKeys {
		value, _ := getConfigValue(cfg, key)
		fmt.Fprintf(w, "%s: %s\n", key, value)
	}
	fmt.Fprintf(w, "\napi key source: %s\n", config.GetAPIKeySource(cfg))
}

// setConfigKey sets a configuration value and saves the config.
func setConfigKey(w io.Writer, cfg *config.Config, key, value string) error {
	if err := setConfigValue(cfg, key, value); err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	// A key picked up from the environment is not written to disk.
	if key != "surface.claude.api_key" && config.GetAPIKeySource(cfg) == config.KeySourceEnv {
		cfg.Surface.Claude.APIKey = ""
	}

	path := config.GetUserConfigPath()
	if configProject {
		root, err := projectRoot()
		if err != nil {
			return err
		}
		path = filepath.Join(root, config.ProjectFile)
	}
	if err := config.SaveTo(cfg, path); err != nil {
		return fmt.Errorf("saving config: %w", err)
	}
	if key == "surface.claude.api_key" {
		value = config.MaskAPIKey(value)
	}
	fmt.Fprintf(w, "Set %s = %s (%s)\n", key, value, path)
	return nil
}

// getConfigValue retrieves a configuration value by dot-notation key.
func getConfigValue(cfg *config.Config, key string) (string, error) {
	switch strings.ToLower(key) {
	case "engine.max_parallel":
		return strconv.Itoa(cfg.Engine.MaxParallel), nil
	case "engine.max_attempts":
		return strconv.Itoa(cfg.Engine.MaxAttempts), nil
	case "engine.confirmation_timeout":
		return cfg.Engine.ConfirmationTimeout.String(), nil
	case "engine.probe_text":
		return cfg.Engine.ProbeText, nil
	case "engine.inbox_buffer":
		return strconv.Itoa(cfg.Engine.InboxBuffer), nil
	case "bus.buffer":
		return strconv.Itoa(cfg.Bus.Buffer), nil
	case "rules.path":
		return cfg.Rules.Path, nil
	case "surface.kind":
		return cfg.Surface.Kind, nil
	case "surface.dir":
		return cfg.Surface.Dir, nil
	case "surface.script":
		return cfg.Surface.Script, nil
	case "surface.claude.model":
		return cfg.Surface.Claude.Model, nil
	case "surface.claude.api_key":
		return config.MaskAPIKey(cfg.Surface.Claude.APIKey), nil
	case "surface.claude.use_bedrock":
		return strconv.FormatBool(cfg.Surface.Claude.UseBedrock), nil
	case "surface.claude.aws_region":
		return cfg.Surface.Claude.AWSRegion, nil
	case "surface.claude.aws_profile":
		return cfg.Surface.Claude.AWSProfile, nil
	case "surface.claude.max_tokens":
		return strconv.FormatInt(cfg.Surface.Claude.MaxTokens, 10), nil
	case "state.driver":
		return cfg.State.Driver, nil
	case "state.dsn":
		return cfg.State.DSN, nil
	case "logging.level":
		return cfg.Logging.Level, nil
	case "logging.file":
		return cfg.Logging.File, nil
	case "telemetry.enabled":
		return strconv.FormatBool(cfg.Telemetry.Enabled), nil
	case "telemetry.file":
		return cfg.Telemetry.File, nil
	case "eventlog.path":
		return cfg.EventLog.Path, nil
	case "tui.refresh_rate":
		return cfg.TUI.RefreshRate.String(), nil
	default:
		return "", fmt.Errorf("unknown configuration key: %s", key)
	}
}

// setConfigValue sets a configuration value by dot-notation key.
func setConfigValue(cfg *config.Config, key, value string) error {
	key = strings.ToLower(key)
	var err error
	switch key {
	case "engine.max_parallel":
		cfg.Engine.MaxParallel, err = strconv.Atoi(value)
	case "engine.max_attempts":
		cfg.Engine.MaxAttempts, err = strconv.Atoi(value)
	case "engine.confirmation_timeout":
		cfg.Engine.ConfirmationTimeout, err = time.ParseDuration(value)
	case "engine.probe_text":
		cfg.Engine.ProbeText = value
	case "engine.inbox_buffer":
		cfg.Engine.InboxBuffer, err = strconv.Atoi(value)
	case "bus.buffer":
		cfg.Bus.Buffer, err = strconv.Atoi(value)
	case "rules.path":
		cfg.Rules.Path = value
	case "surface.kind":
		cfg.Surface.Kind = value
	case "surface.dir":
		cfg.Surface.Dir = value
	case "surface.script":
		cfg.Surface.Script = value
	case "surface.claude.model":
		cfg.Surface.Claude.Model = value
	case "surface.claude.api_key":
		cfg.Surface.Claude.APIKey = value
	case "surface.claude.use_bedrock":
		cfg.Surface.Claude.UseBedrock, err = strconv.ParseBool(value)
	case "surface.claude.aws_region":
		cfg.Surface.Claude.AWSRegion = value
	case "surface.claude.aws_profile":
		cfg.Surface.Claude.AWSProfile = value
	case "surface.claude.max_tokens":
		cfg.Surface.Claude.MaxTokens, err = strconv.ParseInt(value, 10, 64)
	case "state.driver":
		cfg.State.Driver = value
	case "state.dsn":
		cfg.State.DSN = value
	case "logging.level":
		cfg.Logging.Level = value
	case "logging.file":
		cfg.Logging.File = value
	case "telemetry.enabled":
		cfg.Telemetry.Enabled, err = strconv.ParseBool(value)
	case "telemetry.file":
		cfg.Telemetry.File = value
	case "eventlog.path":
		cfg.EventLog.Path = value
	case "tui.refresh_rate":
		cfg.TUI.RefreshRate, err = time.ParseDuration(value)
	default:
		return fmt.Errorf("unknown configuration key: %s", key)
	}
	if err != nil {
		return fmt.Errorf("invalid value for %s: %w", key, err)
	}
	return nil
}
