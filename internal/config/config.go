// Package config handles Taskpilot configuration loading.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultSearchPaths returns the config file search order.
// An explicit path (from -config flag) is checked first.
// Then: ./taskpilot.yaml, ~/.config/taskpilot/taskpilot.yaml, /etc/taskpilot/taskpilot.yaml.
func DefaultSearchPaths() []string {
	paths := []string{"taskpilot.yaml"}

	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "taskpilot", "taskpilot.yaml"))
	}

	paths = append(paths, "/etc/taskpilot/taskpilot.yaml")
	return paths
}

// FindConfig locates a config file. If explicit is non-empty, it must exist.
// Otherwise, searches DefaultSearchPaths and returns the first that exists.
// Returns the path found, or an error if nothing was found.
func FindConfig(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("config file not found: %s", explicit)
		}
		return explicit, nil
	}

	for _, p := range DefaultSearchPaths() {
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}

	return "", fmt.Errorf("no config file found (searched: %v)", DefaultSearchPaths())
}

// Config holds all Taskpilot configuration.
type Config struct {
	Listen   ListenConfig   `yaml:"listen"`
	Database DatabaseConfig `yaml:"database"`
	Model    ModelConfig    `yaml:"model"`
	Agent    AgentConfig    `yaml:"agent"`
	Breaker  BreakerConfig  `yaml:"breaker"`
	Auth     AuthConfig     `yaml:"auth"`
	LogLevel string         `yaml:"log_level"`
}

// ListenConfig defines the API server settings.
type ListenConfig struct {
	Address string `yaml:"address"` // Bind address (default: "" = all interfaces)
	Port    int    `yaml:"port"`
}

// DatabaseConfig defines the SQLite storage location.
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// ModelConfig defines the external model provider.
type ModelConfig struct {
	BaseURL string `yaml:"base_url"` // Provider base URL (default: http://localhost:11434)
	Name    string `yaml:"name"`     // Model name sent with every chat request
	// CallTimeoutSec bounds a single model call. A timed-out call counts
	// as a failure toward the circuit breaker threshold.
	CallTimeoutSec int `yaml:"call_timeout_sec"`
}

// AgentConfig controls the orchestration loop and context budget.
type AgentConfig struct {
	// MaxContextTokens is the context budget for history sent to the model.
	MaxContextTokens int `yaml:"max_context_tokens"`
	// KeepRecent is how many recent messages survive summarization verbatim.
	KeepRecent int `yaml:"keep_recent"`
	// MaxIterations caps model-call/tool-execution rounds per chat turn.
	MaxIterations int `yaml:"max_iterations"`
}

// BreakerConfig controls the circuit breaker guarding model calls.
type BreakerConfig struct {
	FailureThreshold   int `yaml:"failure_threshold"`
	RecoveryTimeoutSec int `yaml:"recovery_timeout_sec"`
}

// AuthConfig defines token verification settings.
type AuthConfig struct {
	// Secret is the HS256 signing secret for bearer tokens. Supports
	// environment expansion, e.g. "${TASKPILOT_AUTH_SECRET}".
	Secret string `yaml:"secret"`
	// TokenTTL bounds tokens minted by the dev token helper.
	TokenTTLHours int `yaml:"token_ttl_hours"`
}

// CallTimeout returns the model call timeout as a duration.
func (m ModelConfig) CallTimeout() time.Duration {
	if m.CallTimeoutSec <= 0 {
		return 30 * time.Second
	}
	return time.Duration(m.CallTimeoutSec) * time.Second
}

// RecoveryTimeout returns the breaker cooldown as a duration.
func (b BreakerConfig) RecoveryTimeout() time.Duration {
	if b.RecoveryTimeoutSec <= 0 {
		return 60 * time.Second
	}
	return time.Duration(b.RecoveryTimeoutSec) * time.Second
}

// Load reads configuration from a YAML file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	// Expand environment variables
	expanded := os.ExpandEnv(string(data))

	cfg := Default()
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Default returns a default configuration.
func Default() *Config {
	return &Config{
		Listen:   ListenConfig{Port: 8080},
		Database: DatabaseConfig{Path: "taskpilot.db"},
		Model: ModelConfig{
			BaseURL:        "http://localhost:11434",
			Name:           "qwen3:4b",
			CallTimeoutSec: 30,
		},
		Agent: AgentConfig{
			MaxContextTokens: 8000,
			KeepRecent:       10,
			MaxIterations:    5,
		},
		Breaker: BreakerConfig{
			FailureThreshold:   5,
			RecoveryTimeoutSec: 60,
		},
		Auth: AuthConfig{TokenTTLHours: 24},
	}
}
