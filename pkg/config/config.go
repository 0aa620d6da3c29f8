// Package config provides configuration loading and validation for the
// orchestration workflows. Settings come from an optional YAML file with
// command-line flags layered on top by the binaries.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultTrustTools is the tool allowlist handed to the agent CLI when the
// operator does not override it.
const DefaultTrustTools = "read,write,@builder-mcp/glob,@builder-mcp/grep,@builder-mcp"

// Defaults for the orchestration loop.
const (
	DefaultMaxAgentInvocations = 10
	DefaultMaxRetries          = 3
	DefaultTimeoutSeconds      = 600
)

// DefaultHistoryDB is the run-history database path, relative to the working
// directory. Set history_db to the empty string to disable history.
const DefaultHistoryDB = ".planloop/history.db"

// ValidationError reports a bad input detected before any invocation runs.
// Never retried.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string {
	return e.Msg
}

// Validationf builds a ValidationError from a format string.
func Validationf(format string, args ...any) *ValidationError {
	return &ValidationError{Msg: fmt.Sprintf(format, args...)}
}

// Config holds every tunable of an orchestration run.
type Config struct {
	// CLIPath is the path to the agent executable.
	CLIPath string `yaml:"cli_path"`

	// Profile optionally names an agent profile to pass through.
	Profile string `yaml:"agent_profile"`

	// TrustTools is the comma-separated tool allowlist.
	TrustTools string `yaml:"trust_tools"`

	// TrustAllTools trusts every tool without confirmation.
	TrustAllTools bool `yaml:"trust_all_tools"`

	// MaxAgentInvocations is the total role-invocation budget.
	MaxAgentInvocations int `yaml:"max_agent_invocations"`

	// MaxRetries is the attempt budget per invocation.
	MaxRetries int `yaml:"max_retries"`

	// TimeoutSeconds bounds each agent invocation.
	TimeoutSeconds int `yaml:"timeout_seconds"`

	// InterveneOnFinalRetry drops non-interactive mode on the last attempt
	// so a human can step in before the run fails.
	InterveneOnFinalRetry bool `yaml:"intervene_on_final_retry"`

	// WorkDir is the session working directory. Empty means current directory.
	WorkDir string `yaml:"workdir"`

	// HistoryDB is the run-history SQLite path. Empty disables history.
	HistoryDB string `yaml:"history_db"`

	// MetricsDir is where textfile metrics are exported. Empty disables export.
	MetricsDir string `yaml:"metrics_dir"`
}

// Default returns a Config with the stock settings.
func Default() *Config {
	return &Config{
		TrustTools:          DefaultTrustTools,
		MaxAgentInvocations: DefaultMaxAgentInvocations,
		MaxRetries:          DefaultMaxRetries,
		TimeoutSeconds:      DefaultTimeoutSeconds,
		HistoryDB:           DefaultHistoryDB,
	}
}

// Load reads a YAML config file over the defaults. An empty path returns the
// defaults untouched.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return cfg, nil
}

// Timeout returns the per-invocation timeout as a duration.
func (c *Config) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// Validate checks the configuration eagerly, before any invocation.
func (c *Config) Validate() error {
	if c.CLIPath == "" {
		return Validationf("agent CLI path is required")
	}
	info, err := os.Stat(c.CLIPath)
	if err != nil {
		return Validationf("agent CLI not found: %s", c.CLIPath)
	}
	if info.IsDir() || info.Mode().Perm()&0o111 == 0 {
		return Validationf("agent CLI not executable: %s", c.CLIPath)
	}

	if c.MaxAgentInvocations <= 0 {
		return Validationf("max agent invocations must be positive, got %d", c.MaxAgentInvocations)
	}
	if c.MaxRetries <= 0 {
		return Validationf("max retries must be positive, got %d", c.MaxRetries)
	}
	if c.TimeoutSeconds <= 0 {
		return Validationf("timeout must be positive, got %d", c.TimeoutSeconds)
	}

	if c.WorkDir != "" {
		if _, err := os.Stat(c.WorkDir); err != nil {
			return Validationf("working directory not found: %s", c.WorkDir)
		}
	}
	return nil
}
