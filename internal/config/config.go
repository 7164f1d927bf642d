// Package config provides configuration loading and management.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
)

// Config represents the full runtime configuration.
type Config struct {
	Agent      AgentConfig      `toml:"agent"`
	LLM        LLMConfig        `toml:"llm"`
	Delegation DelegationConfig `toml:"delegation"`
	Breaker    BreakerConfig    `toml:"breaker"`
	Supervisor SupervisorConfig `toml:"supervisor"`
	Store      StoreConfig      `toml:"store"`
	Logging    LoggingConfig    `toml:"logging"`
}

// AgentConfig contains workspace settings.
type AgentConfig struct {
	Workspace string `toml:"workspace"`
}

// LLMConfig contains LLM provider settings.
type LLMConfig struct {
	Provider       string `toml:"provider"`
	Model          string `toml:"model"`
	BaseURL        string `toml:"base_url"`
	APIKeyEnv      string `toml:"api_key_env"`
	MaxTokens      int    `toml:"max_tokens"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// DelegationConfig contains the subtask delegation limits.
type DelegationConfig struct {
	MaxDepth             int `toml:"max_depth"`
	MaxSubtasksPerParent int `toml:"max_subtasks_per_parent"`
	PollIntervalSeconds  int `toml:"poll_interval_seconds"`
	WaitTimeoutSeconds   int `toml:"wait_timeout_seconds"`
}

// BreakerConfig contains the delegation circuit breaker settings.
type BreakerConfig struct {
	FailureThreshold    int `toml:"failure_threshold"`
	ResetTimeoutSeconds int `toml:"reset_timeout_seconds"`
}

// SupervisorConfig contains agent loop settings.
type SupervisorConfig struct {
	MaxIterations         int `toml:"max_iterations"`
	CommandTimeoutSeconds int `toml:"command_timeout_seconds"`
}

// StoreConfig contains persistence settings.
type StoreConfig struct {
	TasksPath       string `toml:"tasks_path"`
	Transcripts     string `toml:"transcripts"` // sqlite, file, or none
	TranscriptsPath string `toml:"transcripts_path"`
}

// LoggingConfig contains log settings.
type LoggingConfig struct {
	Level string `toml:"level"`
}

// New creates a new config with defaults.
func New() *Config {
	return &Config{
		Agent: AgentConfig{
			Workspace: ".",
		},
		LLM: LLMConfig{
			Provider:       "ollama",
			Model:          "qwen2.5-coder:7b",
			MaxTokens:      4096,
			TimeoutSeconds: 120,
		},
		Delegation: DelegationConfig{
			MaxDepth:             3,
			MaxSubtasksPerParent: 10,
			PollIntervalSeconds:  2,
			WaitTimeoutSeconds:   300,
		},
		Breaker: BreakerConfig{
			FailureThreshold:    3,
			ResetTimeoutSeconds: 60,
		},
		Supervisor: SupervisorConfig{
			MaxIterations:         20,
			CommandTimeoutSeconds: 60,
		},
		Store: StoreConfig{
			TasksPath:       "taskloom.db",
			Transcripts:     "file",
			TranscriptsPath: "transcripts",
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// LoadFile loads configuration from a TOML file, layered over defaults.
func LoadFile(path string) (*Config, error) {
	cfg := New()
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return cfg, nil
}

// LoadDefault loads taskloom.toml from the current directory, falling
// back to pure defaults when the file does not exist.
func LoadDefault() (*Config, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("failed to get current directory: %w", err)
	}
	path := filepath.Join(cwd, "taskloom.toml")
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return New(), nil
	}
	return LoadFile(path)
}

// Validate checks the configuration for unusable values.
func (c *Config) Validate() error {
	if c.LLM.Model == "" {
		return fmt.Errorf("llm.model is required")
	}
	if c.Delegation.MaxDepth < 0 {
		return fmt.Errorf("delegation.max_depth must be non-negative")
	}
	if c.Delegation.MaxSubtasksPerParent < 1 {
		return fmt.Errorf("delegation.max_subtasks_per_parent must be at least 1")
	}
	if c.Breaker.FailureThreshold < 1 {
		return fmt.Errorf("breaker.failure_threshold must be at least 1")
	}
	if c.Supervisor.MaxIterations < 1 {
		return fmt.Errorf("supervisor.max_iterations must be at least 1")
	}
	switch c.Store.Transcripts {
	case "sqlite", "file", "none":
	default:
		return fmt.Errorf("store.transcripts must be sqlite, file, or none")
	}
	return nil
}

// GetAPIKey returns the API key from the configured environment
// variable, or the provider's default variable when unset.
func (c *Config) GetAPIKey() string {
	envVar := c.LLM.APIKeyEnv
	if envVar == "" {
		envVar = DefaultAPIKeyEnv(c.LLM.Provider)
	}
	if envVar == "" {
		return ""
	}
	return os.Getenv(envVar)
}

// DefaultAPIKeyEnv returns the default environment variable name for a
// provider. Local providers need no key.
func DefaultAPIKeyEnv(provider string) string {
	switch provider {
	case "anthropic":
		return "ANTHROPIC_API_KEY"
	case "openai":
		return "OPENAI_API_KEY"
	case "openrouter":
		return "OPENROUTER_API_KEY"
	default:
		return ""
	}
}

// LLMTimeout returns the per-call LLM timeout as a duration.
func (c *Config) LLMTimeout() time.Duration {
	return time.Duration(c.LLM.TimeoutSeconds) * time.Second
}

// PollInterval returns the delegation poll interval as a duration.
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.Delegation.PollIntervalSeconds) * time.Second
}

// WaitTimeout returns the delegation wait timeout as a duration.
func (c *Config) WaitTimeout() time.Duration {
	return time.Duration(c.Delegation.WaitTimeoutSeconds) * time.Second
}

// ResetTimeout returns the breaker reset timeout as a duration.
func (c *Config) ResetTimeout() time.Duration {
	return time.Duration(c.Breaker.ResetTimeoutSeconds) * time.Second
}

// CommandTimeout returns the run_command timeout as a duration.
func (c *Config) CommandTimeout() time.Duration {
	return time.Duration(c.Supervisor.CommandTimeoutSeconds) * time.Second
}
