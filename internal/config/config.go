// Package config provides configuration for the operator console.
//
// Values resolve in three layers: built-in defaults, then an optional YAML
// file, then environment variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the console configuration.
type Config struct {
	// Control plane
	APIBase string

	// Timeouts and intervals
	RequestTimeout   time.Duration
	ValidateDebounce time.Duration
	AgentPollEvery   time.Duration

	// Local state database (session token, cached metadata)
	StatePath string

	// Logging
	LogLevel string
}

// fileConfig is the on-disk YAML shape.
type fileConfig struct {
	APIBase            string `yaml:"api_base"`
	RequestTimeoutMS   int    `yaml:"request_timeout_ms"`
	ValidateDebounceMS int    `yaml:"validate_debounce_ms"`
	AgentPollMS        int    `yaml:"agent_poll_ms"`
	StatePath          string `yaml:"state_path"`
	LogLevel           string `yaml:"log_level"`
}

// DefaultPath returns the default config file location.
func DefaultPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "yaractl.yaml"
	}
	return filepath.Join(dir, "yaractl", "config.yaml")
}

func defaultStatePath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "yaractl-state.db"
	}
	return filepath.Join(dir, "yaractl", "state.db")
}

// Load resolves configuration from defaults, the YAML file at path (ignored
// when missing), and environment variables.
func Load(path string) (*Config, error) {
	cfg := &Config{
		APIBase:          "http://localhost:8080",
		RequestTimeout:   30 * time.Second,
		ValidateDebounce: 700 * time.Millisecond,
		AgentPollEvery:   5 * time.Second,
		StatePath:        defaultStatePath(),
		LogLevel:         "info",
	}

	if path == "" {
		path = DefaultPath()
	}
	if data, err := os.ReadFile(path); err == nil {
		var fc fileConfig
		if err := yaml.Unmarshal(data, &fc); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
		if fc.APIBase != "" {
			cfg.APIBase = fc.APIBase
		}
		if fc.RequestTimeoutMS > 0 {
			cfg.RequestTimeout = time.Duration(fc.RequestTimeoutMS) * time.Millisecond
		}
		if fc.ValidateDebounceMS > 0 {
			cfg.ValidateDebounce = time.Duration(fc.ValidateDebounceMS) * time.Millisecond
		}
		if fc.AgentPollMS > 0 {
			cfg.AgentPollEvery = time.Duration(fc.AgentPollMS) * time.Millisecond
		}
		if fc.StatePath != "" {
			cfg.StatePath = fc.StatePath
		}
		if fc.LogLevel != "" {
			cfg.LogLevel = fc.LogLevel
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	cfg.APIBase = getEnv("YARAGENT_API_BASE", cfg.APIBase)
	cfg.RequestTimeout = getEnvDuration("YARAGENT_REQUEST_TIMEOUT_MS", cfg.RequestTimeout)
	cfg.ValidateDebounce = getEnvDuration("YARAGENT_VALIDATE_DEBOUNCE_MS", cfg.ValidateDebounce)
	cfg.AgentPollEvery = getEnvDuration("YARAGENT_AGENT_POLL_MS", cfg.AgentPollEvery)
	cfg.StatePath = getEnv("YARAGENT_STATE_PATH", cfg.StatePath)
	cfg.LogLevel = getEnv("YARAGENT_LOG_LEVEL", cfg.LogLevel)

	return cfg, nil
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if intVal, err := strconv.Atoi(val); err == nil && intVal > 0 {
			return time.Duration(intVal) * time.Millisecond
		}
	}
	return defaultVal
}
