package engine

import (
	"context"
	"fmt"

	"github.com/abhisek/companion/internal/engagement"
	"github.com/abhisek/companion/internal/learning"
	"github.com/abhisek/companion/internal/nudge"
	"github.com/abhisek/companion/internal/subjects"
)

// GoalCompleted celebrates a freshly completed goal with the subject
// recommendation. It runs once per goal, for the call that completed it.
func (e *Engine) GoalCompleted(ctx context.Context, g learning.LearningGoal) error {
	st, err := e.deps.Students.Student(ctx, g.StudentID)
	if err != nil {
		return fmt.Errorf("load student: %w", err)
	}
	rec := subjects.Lookup(g.Subject)
	c, err := e.deps.Builder.Build(nudge.GoalCompleted, nudge.Context{
		StudentName:           st.Name,
		GoalID:                g.ID,
		GoalTitle:             g.Title,
		GoalSubject:           g.Subject,
		NextSubjects:          rec.NextSubjects,
		RecommendationMessage: rec.Message,
	})
	if err != nil {
		return err
	}
	return e.deps.Dispatcher.Notify(ctx, *st, c)
}

// FollowUp nudges a student who completed a goal a few days ago and has
// not set a new one. It returns an empty outcome when no follow-up is due.
func (e *Engine) FollowUp(ctx context.Context, studentID string) (nudge.Outcome, error) {
	now := e.Now()
	done, err := e.deps.GoalHistory.CompletedBetween(ctx, studentID, learning.Window{
		From: now.Add(-e.sweep.FollowUpWithin),
		To:   now.Add(-e.sweep.FollowUpAfter),
	})
	if err != nil {
		return "", fmt.Errorf("completed goals: %w", err)
	}
	g := latestCompleted(done)
	if g == nil {
		return "", nil
	}

	n, err := e.deps.GoalHistory.CountCreatedAfter(ctx, studentID, *g.CompletedAt)
	if err != nil {
		return "", fmt.Errorf("new goals: %w", err)
	}
	if n > 0 {
		return "", nil
	}
	last, ok, err := e.deps.History.LastSent(ctx, studentID, string(engagement.NudgeGoalCompletedFollow))
	if err != nil {
		return "", fmt.Errorf("nudge history: %w", err)
	}
	if ok && last.After(*g.CompletedAt) {
		return "", nil
	}

	st, err := e.deps.Students.Student(ctx, studentID)
	if err != nil {
		return "", fmt.Errorf("load student: %w", err)
	}
	var next []string
	for _, s := range g.SuggestedNextGoals {
		next = append(next, s.Subject)
	}
	if len(next) == 0 {
		next = subjects.Lookup(g.Subject).NextSubjects
	}
	c, err := e.deps.Builder.Build(engagement.NudgeGoalCompletedFollow, nudge.Context{
		StudentName:  st.Name,
		GoalID:       g.ID,
		GoalTitle:    g.Title,
		GoalSubject:  g.Subject,
		NextSubjects: next,
	})
	if err != nil {
		return "", err
	}
	return e.deps.Dispatcher.Dispatch(ctx, *st, c)
}

func latestCompleted(gs []learning.LearningGoal) *learning.LearningGoal {
	var out *learning.LearningGoal
	for i := range gs {
		g := &gs[i]
		if g.CompletedAt == nil {
			continue
		}
		if out == nil || g.CompletedAt.After(*out.CompletedAt) {
			out = g
		}
	}
	return out
}
