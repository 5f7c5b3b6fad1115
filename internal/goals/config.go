// Package goals tracks progress toward learning goals and decides when a
// goal is complete.
package goals

import (
	"fmt"
	"time"
)

// Config holds the progress policy.
type Config struct {
	// CompletionThreshold is the progress at or above which a goal
	// completes.
	CompletionThreshold int `yaml:"completion_threshold"`

	// HistoryDays is the trailing window for historical practice accuracy.
	HistoryDays int `yaml:"history_days"`

	// Each attended tutoring session since goal creation is worth
	// SessionWeight points, up to SessionCap.
	SessionWeight int `yaml:"session_weight"`
	SessionCap    int `yaml:"session_cap"`

	// MonotonicProgress refuses writes that would lower stored progress.
	MonotonicProgress bool `yaml:"monotonic_progress"`

	EvaluationTimeout     time.Duration `yaml:"evaluation_timeout"`
	EvaluationMaxTokens   int           `yaml:"evaluation_max_tokens"`
	EvaluationTemperature float64       `yaml:"evaluation_temperature"`

	RecentSummaries  int     `yaml:"recent_summaries"`
	TrendWindow      int     `yaml:"trend_window"`
	TrendMinSessions int     `yaml:"trend_min_sessions"`
	TrendDeadband    float64 `yaml:"trend_deadband"`
}

// DefaultConfig returns the production policy.
func DefaultConfig() Config {
	return Config{
		CompletionThreshold: 90,
		HistoryDays:         30,
		SessionWeight:       15,
		SessionCap:          50,

		EvaluationTimeout:     30 * time.Second,
		EvaluationMaxTokens:   512,
		EvaluationTemperature: 0.2,

		RecentSummaries:  5,
		TrendWindow:      5,
		TrendMinSessions: 3,
		TrendDeadband:    0.1,
	}
}

// Validate checks the policy ranges.
func (c Config) Validate() error {
	if c.CompletionThreshold <= 0 || c.CompletionThreshold > 100 {
		return fmt.Errorf("goals: completion_threshold %d outside (0,100]", c.CompletionThreshold)
	}
	if c.HistoryDays <= 0 {
		return fmt.Errorf("goals: history_days must be positive")
	}
	if c.SessionWeight < 0 || c.SessionCap < 0 || c.SessionCap > 100 {
		return fmt.Errorf("goals: session weight/cap out of range")
	}
	if c.TrendWindow <= 0 || c.TrendMinSessions <= 0 || c.TrendMinSessions > c.TrendWindow {
		return fmt.Errorf("goals: trend_min_sessions must be in [1, trend_window]")
	}
	if c.TrendDeadband < 0 {
		return fmt.Errorf("goals: trend_deadband must not be negative")
	}
	return nil
}
