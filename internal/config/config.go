// Package config loads the retention policy file and the environment into
// per-component settings.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/abhisek/companion/internal/engagement"
	"github.com/abhisek/companion/internal/engine"
	"github.com/abhisek/companion/internal/escalation"
	"github.com/abhisek/companion/internal/goals"
	"github.com/abhisek/companion/internal/handoff"
	"github.com/abhisek/companion/internal/nudge"
	"github.com/abhisek/companion/internal/platform"
	"github.com/abhisek/companion/internal/scheduler"
)

// Database selects the store.
type Database struct {
	// Driver is "sqlite" or "pgx".
	Driver string `yaml:"driver"`
	// DSN is a file path or connection string. Empty means the default
	// SQLite path.
	DSN string `yaml:"dsn"`
}

// Config is the whole policy.
type Config struct {
	Engagement engagement.Config  `yaml:"engagement"`
	Escalation escalation.Config  `yaml:"escalation"`
	Goals      goals.Config       `yaml:"goals"`
	Nudge      nudge.Config       `yaml:"nudge"`
	Handoff    handoff.Config     `yaml:"handoff"`
	Sweep      engine.SweepConfig `yaml:"sweep"`
	Schedule   scheduler.Config   `yaml:"schedule"`
	Platform   platform.Config    `yaml:"platform"`
	Database   Database           `yaml:"database"`

	// RedisURL enables the shared nudge ledger, e.g. redis://localhost:6379/0.
	RedisURL    string `yaml:"redis_url"`
	LogMode     string `yaml:"log_mode"`
	MetricsAddr string `yaml:"metrics_addr"`
}

// Default returns the built-in policy.
func Default() Config {
	return Config{
		Engagement:  engagement.DefaultConfig(),
		Escalation:  escalation.DefaultConfig(),
		Goals:       goals.DefaultConfig(),
		Nudge:       nudge.DefaultConfig(),
		Handoff:     handoff.DefaultConfig(),
		Sweep:       engine.DefaultSweepConfig(),
		Schedule:    scheduler.DefaultConfig(),
		Platform:    platform.DefaultConfig(),
		Database:    Database{Driver: "sqlite"},
		LogMode:     "dev",
		MetricsAddr: ":9090",
	}
}

// Load reads the policy file at path over the defaults, applies the
// environment, and validates the result. An empty path skips the file.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	cfg.applyEnv(os.Getenv)
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyEnv(getenv func(string) string) {
	set := func(dst *string, key string) {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			*dst = v
		}
	}
	set(&c.Database.DSN, "COMPANION_DB")
	set(&c.Database.Driver, "COMPANION_DB_DRIVER")
	set(&c.RedisURL, "COMPANION_REDIS_URL")
	set(&c.Platform.BaseURL, "COMPANION_PLATFORM_URL")
	set(&c.Platform.APIKey, "COMPANION_PLATFORM_API_KEY")
	set(&c.LogMode, "COMPANION_LOG_MODE")
	set(&c.MetricsAddr, "COMPANION_METRICS_ADDR")
}

// Validate checks every section and reports all problems at once.
func (c Config) Validate() error {
	var errs []error
	for _, v := range []interface{ Validate() error }{c.Engagement, c.Escalation, c.Goals, c.Sweep} {
		if err := v.Validate(); err != nil {
			errs = append(errs, err)
		}
	}
	if c.Nudge.Window <= 0 {
		errs = append(errs, errors.New("nudge: window must be positive"))
	}
	if c.Handoff.SessionMinutes <= 0 || c.Handoff.MaxSlots <= 0 {
		errs = append(errs, errors.New("handoff: session_minutes and max_slots must be positive"))
	}
	if c.Schedule.Cron == "" {
		errs = append(errs, errors.New("schedule: cron is required"))
	}
	switch c.Database.Driver {
	case "sqlite", "pgx", "postgres":
	default:
		errs = append(errs, fmt.Errorf("database: unsupported driver %q", c.Database.Driver))
	}
	return errors.Join(errs...)
}
