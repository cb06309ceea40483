package config

import (
	"fmt"
	"time"
)

// Config holds all memoir configuration.
type Config struct {
	Server      ServerConfig      `yaml:"server"`
	Database    DatabaseConfig    `yaml:"database"`
	Oracle      OracleConfig      `yaml:"oracle"`
	Lifecycle   LifecycleConfig   `yaml:"lifecycle"`
	Maintenance MaintenanceConfig `yaml:"maintenance"`
}

type ServerConfig struct {
	Bind string `yaml:"bind"`
	Port int    `yaml:"port"`
}

type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// OracleConfig selects and configures the LLM provider backing the
// fact-extraction and consolidation oracles.
type OracleConfig struct {
	Provider     string `yaml:"provider"` // "anthropic", "ollama", "mock"
	Model        string `yaml:"model"`
	AnthropicKey string `yaml:"anthropic_key"`
	OllamaURL    string `yaml:"ollama_url"`
	OllamaModel  string `yaml:"ollama_model"`
	TimeoutSecs  int    `yaml:"timeout"` // per oracle call, seconds
}

// LifecycleConfig tunes the memory lifecycle engine: consolidation
// trigger points, decay behavior, and pipeline retry policy.
type LifecycleConfig struct {
	ConsolidationThreshold int `yaml:"consolidation_threshold"`
	ConsolidationTarget    int `yaml:"consolidation_target"`

	DecayWindowDays           int     `yaml:"decay_window_days"`
	DecayConfidenceFactor     float64 `yaml:"decay_confidence_factor"`
	DecayImportanceStep       int     `yaml:"decay_importance_step"`
	DecayImportanceFloor      int     `yaml:"decay_importance_floor"`
	DeactivateConfidenceBelow float64 `yaml:"deactivate_confidence_below"`
	DeactivateImportanceBelow int     `yaml:"deactivate_importance_below"`

	MinEntryChars      int `yaml:"min_entry_chars"`
	MaxRecentEntries   int `yaml:"max_recent_entries"`
	MaxContextMemories int `yaml:"max_context_memories"`

	MaxAttempts    int `yaml:"max_attempts"`
	RetryDelaySecs int `yaml:"retry_delay"`
}

type MaintenanceConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Schedule string `yaml:"schedule"` // cron expression or descriptor
}

// Default returns a Config with sensible defaults.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Bind: "127.0.0.1",
			Port: 37740,
		},
		Database: DatabaseConfig{
			Path: "", // resolved at runtime via store.DefaultDBPath()
		},
		Oracle: OracleConfig{
			Provider:    "anthropic",
			Model:       "claude-haiku-4-5-20251001",
			OllamaModel: "llama3.2",
			TimeoutSecs: 120,
		},
		Lifecycle: LifecycleConfig{
			ConsolidationThreshold:    20,
			ConsolidationTarget:       15,
			DecayWindowDays:           30,
			DecayConfidenceFactor:     0.7,
			DecayImportanceStep:       1,
			DecayImportanceFloor:      1,
			DeactivateConfidenceBelow: 0.4,
			DeactivateImportanceBelow: 3,
			MinEntryChars:             10,
			MaxRecentEntries:          5,
			MaxContextMemories:        15,
			MaxAttempts:               3,
			RetryDelaySecs:            2,
		},
		Maintenance: MaintenanceConfig{
			Enabled:  true,
			Schedule: "@hourly",
		},
	}
}

// ListenAddr returns the bind:port address string.
func (c *Config) ListenAddr() string {
	return fmt.Sprintf("%s:%d", c.Server.Bind, c.Server.Port)
}

// OracleTimeout returns the per-call oracle timeout as a duration.
func (c *OracleConfig) OracleTimeout() time.Duration {
	if c.TimeoutSecs <= 0 {
		return 120 * time.Second
	}
	return time.Duration(c.TimeoutSecs) * time.Second
}

// RetryDelay returns the fixed delay between step retries. Zero is a valid
// setting (retry immediately).
func (c *LifecycleConfig) RetryDelay() time.Duration {
	if c.RetryDelaySecs < 0 {
		return 0
	}
	return time.Duration(c.RetryDelaySecs) * time.Second
}

// DecayWindow returns the decay window as a duration.
func (c *LifecycleConfig) DecayWindow() time.Duration {
	return time.Duration(c.DecayWindowDays) * 24 * time.Hour
}
