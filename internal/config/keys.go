package config

import (
	"errors"
	"os"
	"strings"
)

// ErrNoAPIKey is returned when no API key is configured.
var ErrNoAPIKey = errors.New("no Anthropic API key configured")

// apiKeyEnv lists the variables a key is read from, in order.
var apiKeyEnv = []string{EnvPrefix + "_SURFACE_CLAUDE_API_KEY", "ANTHROPIC_API_KEY"}

func envKey() string {
	for _, name := range apiKeyEnv {
		if key := os.Getenv(name); key != "" {
			return key
		}
	}
	return ""
}

// GetAPIKey returns the Anthropic API key for the Claude surface.
// It checks in order: environment variables, config file.
func GetAPIKey(cfg *Config) (string, error) {
	if key := envKey(); key != "" {
		return key, nil
	}
	if key := configKey(cfg); key != "" {
		return key, nil
	}
	return "", ErrNoAPIKey
}

// ValidateAPIKey checks the key format without contacting the API.
func ValidateAPIKey(key string) error {
	if key == "" {
		return ErrNoAPIKey
	}
	if !strings.HasPrefix(key, "sk-ant-") {
		return errors.New("invalid API key format: expected 'sk-ant-' prefix")
	}
	if len(key) < 20 {
		return errors.New("invalid API key format: key too short")
	}
	return nil
}

// MaskAPIKey returns a masked version of the API key for display.
func MaskAPIKey(key string) string {
	if key == "" {
		return "(not set)"
	}
	if len(key) <= 15 {
		return "***"
	}
	return key[:7] + "..." + key[len(key)-4:]
}

// KeySource represents where an API key was loaded from.
type KeySource string

const (
	KeySourceEnv    KeySource = "environment"
	KeySourceConfig KeySource = "config_file"
	KeySourceNone   KeySource = "none"
)

// GetAPIKeySource returns where the API key was sourced from.
func GetAPIKeySource(cfg *Config) KeySource {
	if envKey() != "" {
		return KeySourceEnv
	}
	if configKey(cfg) != "" {
		return KeySourceConfig
	}
	return KeySourceNone
}

func configKey(cfg *Config) string {
	if cfg == nil || cfg.Surface.Claude.APIKey == "" {
		return ""
	}
	key := os.ExpandEnv(cfg.Surface.Claude.APIKey)
	if strings.HasPrefix(key, "${") {
		return ""
	}
	return key
}
