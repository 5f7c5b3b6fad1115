package engagement

import (
	"fmt"
	"math"
)

// Default sub-score weights.
const (
	WeightSessionFrequency     = 0.30
	WeightPracticeActivity     = 0.25
	WeightConversationActivity = 0.20
	WeightGoalProgress         = 0.15
	WeightRecency              = 0.10
)

// Weights is the weighting applied to the five sub-scores. They must sum to 1.
type Weights struct {
	SessionFrequency     float64 `yaml:"session_frequency"`
	PracticeActivity     float64 `yaml:"practice_activity"`
	ConversationActivity float64 `yaml:"conversation_activity"`
	GoalProgress         float64 `yaml:"goal_progress"`
	Recency              float64 `yaml:"recency"`
}

// Sum returns the total weight.
func (w Weights) Sum() float64 {
	return w.SessionFrequency + w.PracticeActivity + w.ConversationActivity + w.GoalProgress + w.Recency
}

// Validate checks that no weight is negative and that the weights sum to 1.
func (w Weights) Validate() error {
	for name, v := range w.asMap() {
		if v < 0 {
			return fmt.Errorf("weight %s is negative: %v", name, v)
		}
	}
	if sum := w.Sum(); math.Abs(sum-1) > 1e-9 {
		return fmt.Errorf("weights sum to %v, want 1", sum)
	}
	return nil
}

func (w Weights) asMap() map[string]float64 {
	return map[string]float64{
		ComponentSessionFrequency:     w.SessionFrequency,
		ComponentPracticeActivity:     w.PracticeActivity,
		ComponentConversationActivity: w.ConversationActivity,
		ComponentGoalProgress:         w.GoalProgress,
		ComponentRecency:              w.Recency,
	}
}

// Config holds the scoring and nudge-trigger policy. Durations are in whole
// days because every rule works on calendar days.
type Config struct {
	Weights Weights `yaml:"weights"`

	// session_frequency
	SessionLookbackDays int `yaml:"session_lookback_days"`
	SessionsPerWeek     int `yaml:"sessions_per_week"`
	ShortTenureDays     int `yaml:"short_tenure_days"`

	// practice_activity
	PracticeLookbackDays int     `yaml:"practice_lookback_days"`
	ExpectedPractices    float64 `yaml:"expected_practices"`

	// conversation_activity
	ConversationLookbackDays     int     `yaml:"conversation_lookback_days"`
	ConversationWeight           float64 `yaml:"conversation_weight"`
	ExpectedConversationActivity float64 `yaml:"expected_conversation_activity"`

	NeutralGoalScore     float64 `yaml:"neutral_goal_score"`
	RecencyPenaltyPerDay float64 `yaml:"recency_penalty_per_day"`

	// Nudge triggers.
	NewStudentMinDays     int     `yaml:"new_student_min_days"`
	NewStudentMaxDays     int     `yaml:"new_student_max_days"`
	NewStudentMinSessions int     `yaml:"new_student_min_sessions"`
	InactiveDays          int     `yaml:"inactive_days"`
	DeclineWindowDays     int     `yaml:"decline_window_days"`
	DeclineRatio          float64 `yaml:"decline_ratio"`
	DeclineSessionWeight  int     `yaml:"decline_session_weight"`
	DeclinePracticeWeight int     `yaml:"decline_practice_weight"`
	DeclineChatWeight     int     `yaml:"decline_conversation_weight"`
	StalledGoalDays       int     `yaml:"stalled_goal_days"`
	StalledGoalBelow      int     `yaml:"stalled_goal_below"`
	EncouragementBelow    int     `yaml:"encouragement_below"`
}

// DefaultConfig returns the production policy.
func DefaultConfig() Config {
	return Config{
		Weights: Weights{
			SessionFrequency:     WeightSessionFrequency,
			PracticeActivity:     WeightPracticeActivity,
			ConversationActivity: WeightConversationActivity,
			GoalProgress:         WeightGoalProgress,
			Recency:              WeightRecency,
		},
		SessionLookbackDays:          30,
		SessionsPerWeek:              2,
		ShortTenureDays:              7,
		PracticeLookbackDays:         14,
		ExpectedPractices:            7,
		ConversationLookbackDays:     7,
		ConversationWeight:           10,
		ExpectedConversationActivity: 20,
		NeutralGoalScore:             50,
		RecencyPenaltyPerDay:         10,
		NewStudentMinDays:            7,
		NewStudentMaxDays:            14,
		NewStudentMinSessions:        3,
		InactiveDays:                 7,
		DeclineWindowDays:            14,
		DeclineRatio:                 0.5,
		DeclineSessionWeight:         3,
		DeclinePracticeWeight:        2,
		DeclineChatWeight:            1,
		StalledGoalDays:              14,
		StalledGoalBelow:             80,
		EncouragementBelow:           50,
	}
}

// Validate rejects policies the scorer cannot evaluate.
func (c Config) Validate() error {
	if err := c.Weights.Validate(); err != nil {
		return err
	}
	positive := map[string]float64{
		"session_lookback_days":          float64(c.SessionLookbackDays),
		"sessions_per_week":              float64(c.SessionsPerWeek),
		"practice_lookback_days":         float64(c.PracticeLookbackDays),
		"expected_practices":             c.ExpectedPractices,
		"conversation_lookback_days":     float64(c.ConversationLookbackDays),
		"expected_conversation_activity": c.ExpectedConversationActivity,
		"decline_window_days":            float64(c.DeclineWindowDays),
		"inactive_days":                  float64(c.InactiveDays),
		"stalled_goal_days":              float64(c.StalledGoalDays),
	}
	for name, v := range positive {
		if v <= 0 {
			return fmt.Errorf("%s must be positive, got %v", name, v)
		}
	}
	if c.NewStudentMinDays > c.NewStudentMaxDays {
		return fmt.Errorf("new_student_min_days (%d) exceeds new_student_max_days (%d)", c.NewStudentMinDays, c.NewStudentMaxDays)
	}
	if c.DeclineRatio <= 0 || c.DeclineRatio > 1 {
		return fmt.Errorf("decline_ratio must be in (0, 1], got %v", c.DeclineRatio)
	}
	return nil
}
