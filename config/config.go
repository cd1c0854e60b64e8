/*
config.go - Server configuration

PURPOSE:
  Loads server settings from an optional TOML file, with command-line
  flags taking precedence (wired in cmd/server/main.go). A missing file
  is not an error; everything has a sensible default.

FILE FORMAT (ledger.toml):

  port = 8080
  db_path = "ledger.db"
  batch_workers = 4

  [scheduler]
  enabled = true
  check_interval = "1h"

SEE ALSO:
  - cmd/server/main.go: flag overrides and startup
  - api/scheduler.go: consumer of the scheduler settings
*/
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
)

// Duration wraps time.Duration for TOML string parsing ("1h", "30m").
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = parsed
	return nil
}

// SchedulerConfig controls the automated monthly sweeps.
type SchedulerConfig struct {
	Enabled       bool     `toml:"enabled"`
	CheckInterval Duration `toml:"check_interval"`
}

// Config holds every server setting.
type Config struct {
	Port         int             `toml:"port"`
	DBPath       string          `toml:"db_path"`
	BatchWorkers int             `toml:"batch_workers"`
	Scheduler    SchedulerConfig `toml:"scheduler"`
}

// Default returns the configuration used when no file is present.
func Default() Config {
	return Config{
		Port:         8080,
		DBPath:       "ledger.db",
		BatchWorkers: 4,
		Scheduler: SchedulerConfig{
			Enabled:       true,
			CheckInterval: Duration{1 * time.Hour},
		},
	}
}

// Load reads the TOML file at path over the defaults. An empty path or
// a missing file yields the defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return cfg, nil
	}

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate rejects settings the server cannot run with.
func (c Config) Validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("port must be in 1..65535, got %d", c.Port)
	}
	if c.DBPath == "" {
		return fmt.Errorf("db_path must not be empty")
	}
	if c.BatchWorkers < 1 {
		return fmt.Errorf("batch_workers must be at least 1, got %d", c.BatchWorkers)
	}
	if c.Scheduler.Enabled && c.Scheduler.CheckInterval.Duration < time.Minute {
		return fmt.Errorf("scheduler check_interval must be at least 1m, got %v",
			c.Scheduler.CheckInterval.Duration)
	}
	return nil
}
