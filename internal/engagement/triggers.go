package engagement

// NudgeType names a retention nudge.
type NudgeType string

const (
	NudgeNewStudentSessions   NudgeType = "new_student_sessions"
	NudgeInactiveReminder     NudgeType = "inactive_reminder"
	NudgeDecliningEngagement  NudgeType = "declining_engagement"
	NudgeGoalStalled          NudgeType = "goal_stalled"
	NudgeGeneralEncouragement NudgeType = "general_encouragement"
	NudgeGoalCompletedFollow  NudgeType = "goal_completed_followup"
)

// Triggers reports which nudge rules fire for a snapshot.
type Triggers struct {
	NewStudentLowSessions bool `json:"new_student_low_sessions"`
	InactiveTooLong       bool `json:"inactive_too_long"`
	DecliningEngagement   bool `json:"declining_engagement"`
	StalledGoalProgress   bool `json:"stalled_goal_progress"`
}

// Any reports whether at least one rule fired.
func (t Triggers) Any() bool {
	return t.NewStudentLowSessions || t.InactiveTooLong || t.DecliningEngagement || t.StalledGoalProgress
}

// Triggers evaluates every nudge rule.
func (s *Scorer) Triggers(snap Snapshot) Triggers {
	return Triggers{
		NewStudentLowSessions: s.newStudentLowSessions(snap),
		InactiveTooLong:       s.inactiveTooLong(snap),
		DecliningEngagement:   s.decliningEngagement(snap),
		StalledGoalProgress:   s.StalledGoal(snap) != nil,
	}
}

// NeedsNudge reports whether any trigger rule fires or the overall score is
// below the encouragement floor. It agrees with RecommendedNudge.
func (s *Scorer) NeedsNudge(snap Snapshot) bool {
	_, ok := s.RecommendedNudge(snap)
	return ok
}

// RecommendedNudge picks the nudge type for snap. The first firing rule wins,
// in the order new student, inactive, declining, stalled goal, then the
// low-score fallback.
func (s *Scorer) RecommendedNudge(snap Snapshot) (NudgeType, bool) {
	t := s.Triggers(snap)
	switch {
	case t.NewStudentLowSessions:
		return NudgeNewStudentSessions, true
	case t.InactiveTooLong:
		return NudgeInactiveReminder, true
	case t.DecliningEngagement:
		return NudgeDecliningEngagement, true
	case t.StalledGoalProgress:
		return NudgeGoalStalled, true
	case s.Score(snap).Overall < s.cfg.EncouragementBelow:
		return NudgeGeneralEncouragement, true
	}
	return "", false
}

func (s *Scorer) newStudentLowSessions(snap Snapshot) bool {
	d := calendarDays(snap.EnrolledAt, snap.AsOf)
	if d < s.cfg.NewStudentMinDays || d > s.cfg.NewStudentMaxDays {
		return false
	}
	return snap.SessionsSinceEnrollment < s.cfg.NewStudentMinSessions
}

func (s *Scorer) inactiveTooLong(snap Snapshot) bool {
	if !snap.HasActivity() {
		return true
	}
	return s.DaysSinceActivity(snap) >= s.cfg.InactiveDays
}

// DaysSinceActivity returns calendar days since the last activity, falling
// back to the enrollment date for students who were never active.
func (s *Scorer) DaysSinceActivity(snap Snapshot) int {
	from := snap.LastActivityAt
	if from.IsZero() {
		from = snap.EnrolledAt
	}
	if d := calendarDays(from, snap.AsOf); d > 0 {
		return d
	}
	return 0
}

func (s *Scorer) decliningEngagement(snap Snapshot) bool {
	prior := s.weighted(snap.Prior)
	if prior == 0 {
		return false
	}
	return float64(s.weighted(snap.Recent)) < float64(prior)*s.cfg.DeclineRatio
}

func (s *Scorer) weighted(c ActivityCounts) int {
	return c.Sessions*s.cfg.DeclineSessionWeight +
		c.Practices*s.cfg.DeclinePracticeWeight +
		c.Conversations*s.cfg.DeclineChatWeight
}

// StalledGoal returns the first active goal that is below the stall
// threshold and has not been touched for the stall period, or nil.
func (s *Scorer) StalledGoal(snap Snapshot) *GoalState {
	cutoff := snap.AsOf.Add(-days(s.cfg.StalledGoalDays))
	for i := range snap.ActiveGoals {
		g := snap.ActiveGoals[i]
		if g.Progress < s.cfg.StalledGoalBelow && !g.UpdatedAt.After(cutoff) {
			return &g
		}
	}
	return nil
}
