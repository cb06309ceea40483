package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Load reads a YAML config file, layered over Default(). A missing file is
// not an error — defaults apply. Environment overrides are applied last.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !errors.Is(err, os.ErrNotExist) {
				return cfg, fmt.Errorf("read config %s: %w", path, err)
			}
		} else {
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return cfg, fmt.Errorf("parse config %s: %w", path, err)
			}
		}
	}

	applyEnv(&cfg)

	if err := cfg.validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if key := os.Getenv("ANTHROPIC_API_KEY"); key != "" {
		cfg.Oracle.AnthropicKey = key
	}
	if path := os.Getenv("MEMOIR_DB"); path != "" {
		cfg.Database.Path = path
	}
	if port := os.Getenv("MEMOIR_PORT"); port != "" {
		if n, err := strconv.Atoi(port); err == nil && n > 0 {
			cfg.Server.Port = n
		}
	}
}

func (c *Config) validate() error {
	l := c.Lifecycle
	if l.ConsolidationTarget > l.ConsolidationThreshold {
		return fmt.Errorf("config: consolidation target %d exceeds threshold %d",
			l.ConsolidationTarget, l.ConsolidationThreshold)
	}
	if l.DecayConfidenceFactor <= 0 || l.DecayConfidenceFactor > 1 {
		return fmt.Errorf("config: decay confidence factor %v out of (0,1]", l.DecayConfidenceFactor)
	}
	if l.DecayImportanceFloor < 1 {
		return fmt.Errorf("config: importance floor %d below 1", l.DecayImportanceFloor)
	}
	if l.MaxAttempts < 1 {
		return fmt.Errorf("config: max attempts %d below 1", l.MaxAttempts)
	}
	return nil
}
