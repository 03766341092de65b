package infra

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config holds the daemon's runtime settings. Economic constants (fee
// rates, probability bounds) are compile-time and never configured.
type Config struct {
	App struct {
		Name    string `yaml:"name"`
		Version string `yaml:"version"`
	} `yaml:"app"`

	Database struct {
		// Path is the SQLite file; empty resolves to the per-user data
		// directory.
		Path string `yaml:"path"`
	} `yaml:"database"`

	Engine struct {
		InboxSize     int  `yaml:"inbox_size"`
		WarmupPools   bool `yaml:"warmup_pools"`
		ReplayOnStart bool `yaml:"replay_on_start"`
	} `yaml:"engine"`

	Logging struct {
		Level string `yaml:"level"`
	} `yaml:"logging"`
}

// LoadConfig reads and parses the config file, applies environment
// overrides, then validates.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	overrideWithEnv(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// Validate checks configuration validity
func (c *Config) Validate() error {
	if c.Engine.InboxSize <= 0 {
		return fmt.Errorf("engine inbox size must be positive")
	}
	switch c.Logging.Level {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("unknown log level: %s", c.Logging.Level)
	}
	return nil
}

// overrideWithEnv applies environment overrides where variables exist.
func overrideWithEnv(cfg *Config) {
	if path := os.Getenv("PREDICT_DB_PATH"); path != "" {
		cfg.Database.Path = path
	}
	if level := os.Getenv("PREDICT_LOG_LEVEL"); level != "" {
		cfg.Logging.Level = level
	}
}
