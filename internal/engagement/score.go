package engagement

import "math"

// Component names, as they appear in Score.Components.
const (
	ComponentSessionFrequency     = "session_frequency"
	ComponentPracticeActivity     = "practice_activity"
	ComponentConversationActivity = "conversation_activity"
	ComponentGoalProgress         = "goal_progress"
	ComponentRecency              = "recency"
)

// Score is a computed engagement score. It is never persisted.
type Score struct {
	Overall    int                `json:"overall"`
	Components map[string]float64 `json:"component_scores"`
	Weights    map[string]float64 `json:"weights"`
}

// Scorer evaluates snapshots against a fixed policy.
type Scorer struct {
	cfg Config
}

// NewScorer returns a Scorer for cfg. The config should already be validated.
func NewScorer(cfg Config) *Scorer {
	return &Scorer{cfg: cfg}
}

// Config returns the policy the scorer was built with.
func (s *Scorer) Config() Config {
	return s.cfg
}

// Score computes the weighted engagement score for snap.
func (s *Scorer) Score(snap Snapshot) Score {
	comp := map[string]float64{
		ComponentSessionFrequency:     s.sessionFrequency(snap),
		ComponentPracticeActivity:     s.practiceActivity(snap),
		ComponentConversationActivity: s.conversationActivity(snap),
		ComponentGoalProgress:         s.goalProgress(snap),
		ComponentRecency:              s.recency(snap),
	}
	weights := s.cfg.Weights.asMap()

	var total float64
	for name, v := range comp {
		total += v * weights[name]
	}
	return Score{
		Overall:    int(clamp(math.Round(total))),
		Components: comp,
		Weights:    weights,
	}
}

func (s *Scorer) sessionFrequency(snap Snapshot) float64 {
	daysActive := calendarDays(snap.EnrolledAt, snap.AsOf) + 1
	if daysActive < s.cfg.ShortTenureDays {
		return 100
	}
	weeks := math.Ceil(float64(daysActive) / 7)
	expected := weeks * float64(s.cfg.SessionsPerWeek)
	return ratio(float64(snap.SessionsInLookback), expected)
}

func (s *Scorer) practiceActivity(snap Snapshot) float64 {
	return ratio(float64(snap.PracticesInLookback), s.cfg.ExpectedPractices)
}

func (s *Scorer) conversationActivity(snap Snapshot) float64 {
	activity := float64(snap.ConversationsInLookback)*s.cfg.ConversationWeight + float64(snap.MessagesInLookback)
	return ratio(activity, s.cfg.ExpectedConversationActivity)
}

func (s *Scorer) goalProgress(snap Snapshot) float64 {
	if len(snap.ActiveGoals) == 0 {
		return s.cfg.NeutralGoalScore
	}
	var sum float64
	for _, g := range snap.ActiveGoals {
		sum += float64(g.Progress)
	}
	return clamp(math.Round(sum / float64(len(snap.ActiveGoals))))
}

func (s *Scorer) recency(snap Snapshot) float64 {
	if !snap.HasActivity() {
		return 0
	}
	d := calendarDays(snap.LastActivityAt, snap.AsOf)
	if d < 0 {
		d = 0
	}
	return clamp(100 - float64(d)*s.cfg.RecencyPenaltyPerDay)
}

// ratio scales actual/expected to a 0-100 score, rounded.
func ratio(actual, expected float64) float64 {
	if expected <= 0 {
		return 0
	}
	return clamp(math.Round(actual / expected * 100))
}

func clamp(v float64) float64 {
	return math.Max(0, math.Min(100, v))
}
