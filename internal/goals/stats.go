package goals

import (
	"context"
	"fmt"
	"math"
	"sort"

	"github.com/abhisek/companion/internal/learning"
)

// Trend is the direction of recent practice accuracy.
type Trend string

const (
	TrendImproving Trend = "improving"
	TrendDeclining Trend = "declining"
	TrendStable    Trend = "stable"
)

// PracticeStats summarises practice in the goal subject since the goal was
// created.
type PracticeStats struct {
	TotalSessions   int     `json:"total_sessions"`
	AverageAccuracy float64 `json:"average_accuracy"`
	TotalProblems   int     `json:"total_problems_attempted"`
	Trend           Trend   `json:"recent_accuracy_trend"`
}

// ProfileSummary is the part of a learning profile shown to the evaluator.
type ProfileSummary struct {
	ProficiencyLevel int      `json:"proficiency_level"`
	Strengths        []string `json:"strengths"`
	Weaknesses       []string `json:"weaknesses"`
}

// Evidence is everything the completion evaluator sees about a goal.
type Evidence struct {
	Goal                learning.LearningGoal
	Practice            *PracticeStats
	Summaries           []string
	Profile             *ProfileSummary
	MilestonesCompleted int
}

// Evidence gathers the completion evidence for g.
func (e *Engine) Evidence(ctx context.Context, g learning.LearningGoal) (Evidence, error) {
	ev := Evidence{Goal: g, MilestonesCompleted: g.CompletedMilestones()}

	practices, err := e.activity.PracticeSessions(ctx, g.StudentID, g.Subject, g.CreatedAt)
	if err != nil {
		return ev, fmt.Errorf("practice history: %w", err)
	}
	ev.Practice = e.cfg.practiceStats(practices)

	sessions, err := e.activity.TutoringSessions(ctx, g.StudentID, g.Subject, g.CreatedAt, e.cfg.RecentSummaries)
	if err != nil {
		return ev, fmt.Errorf("tutoring history: %w", err)
	}
	for _, s := range sessions {
		if s.Summary != "" {
			ev.Summaries = append(ev.Summaries, s.Summary)
		}
	}

	if e.profiles != nil {
		p, err := e.profiles.Profile(ctx, g.StudentID, g.Subject)
		if err != nil {
			return ev, fmt.Errorf("learning profile: %w", err)
		}
		if p != nil {
			ev.Profile = &ProfileSummary{
				ProficiencyLevel: p.ProficiencyLevel,
				Strengths:        p.Strengths,
				Weaknesses:       p.Weaknesses,
			}
		}
	}
	return ev, nil
}

// practiceStats returns nil when there is no practice at all.
func (c Config) practiceStats(ps []learning.PracticeSession) *PracticeStats {
	if len(ps) == 0 {
		return nil
	}
	sorted := append([]learning.PracticeSession(nil), ps...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].CreatedAt.After(sorted[j].CreatedAt)
	})

	st := &PracticeStats{TotalSessions: len(sorted)}
	for _, p := range sorted {
		st.TotalProblems += p.TotalProblems
	}
	avg, _ := meanAccuracy(sorted)
	st.AverageAccuracy = math.Round(avg*100) / 100
	st.Trend = c.trend(sorted)
	return st
}

// trend compares the newest TrendWindow sessions with the window before
// them. ps must be newest first.
func (c Config) trend(ps []learning.PracticeSession) Trend {
	w := c.TrendWindow
	recent := ps[:min(w, len(ps))]
	var older []learning.PracticeSession
	if len(ps) > w {
		older = ps[w:min(2*w, len(ps))]
	}
	if len(recent) < c.TrendMinSessions || len(older) < c.TrendMinSessions {
		return TrendStable
	}

	r, _ := meanAccuracy(recent)
	o, _ := meanAccuracy(older)
	switch {
	case r > o+c.TrendDeadband:
		return TrendImproving
	case r < o-c.TrendDeadband:
		return TrendDeclining
	default:
		return TrendStable
	}
}
