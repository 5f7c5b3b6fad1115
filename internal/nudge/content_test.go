package nudge

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abhisek/companion/internal/engagement"
)

func TestBuild_AllTypesRender(t *testing.T) {
	b := NewBuilder()
	for _, typ := range b.Types() {
		c, err := b.Build(typ, Context{})
		require.NoError(t, err, typ)
		assert.NotEmpty(t, c.Title, typ)
		assert.NotEmpty(t, c.Message, typ)
		assert.NotEmpty(t, c.CTA, typ)
		assert.NotEmpty(t, c.Priority, typ)
		assert.NotContains(t, c.Message, "<no value>", typ)
		assert.NotContains(t, c.Message, "''", typ)
	}
}

func TestBuild_InactiveReminder(t *testing.T) {
	b := NewBuilder()

	c, err := b.Build(engagement.NudgeInactiveReminder, Context{StudentName: "Maya", DaysInactive: 9})
	require.NoError(t, err)
	assert.Equal(t, "We miss you, Maya! 👋", c.Title)
	assert.Contains(t, c.Message, "It's been 9 days since your last activity.")
	assert.Equal(t, "open_practice", c.CTAAction)
	assert.Equal(t, PriorityMedium, c.Priority)

	c, err = b.Build(engagement.NudgeInactiveReminder, Context{DaysInactive: 1})
	require.NoError(t, err)
	assert.Equal(t, "We miss you! 👋", c.Title)
	assert.Contains(t, c.Message, "It's been 1 day since")

	c, err = b.Build(engagement.NudgeInactiveReminder, Context{})
	require.NoError(t, err)
	assert.Contains(t, c.Message, "It's been a while")
}

func TestBuild_GoalStalledDegradesWithoutGoal(t *testing.T) {
	b := NewBuilder()

	c, err := b.Build(engagement.NudgeGoalStalled, Context{GoalTitle: "Master Algebra", GoalSubject: "algebra", GoalID: "g1"})
	require.NoError(t, err)
	assert.Contains(t, c.Message, "Your goal 'Master Algebra' hasn't seen progress")
	assert.Equal(t, map[string]string{"subject": "algebra", "goal_id": "g1"}, c.CTAData)

	c, err = b.Build(engagement.NudgeGoalStalled, Context{})
	require.NoError(t, err)
	assert.Contains(t, c.Message, "Your goal hasn't seen progress")
	assert.Nil(t, c.CTAData)
}

func TestBuild_FollowupAndCelebration(t *testing.T) {
	b := NewBuilder()

	c, err := b.Build(engagement.NudgeGoalCompletedFollow, Context{
		GoalTitle:    "Chemistry basics",
		GoalID:       "g9",
		NextSubjects: []string{"physics", "biology"},
	})
	require.NoError(t, err)
	assert.Contains(t, c.Message, "You finished 'Chemistry basics' a few days ago.")
	assert.Contains(t, c.Message, "How about Physics next?")
	assert.Equal(t, "physics", c.CTAData["next_subject"])

	c, err = b.Build(GoalCompleted, Context{GoalTitle: "SAT Prep", RecommendationMessage: "Try AP prep next."})
	require.NoError(t, err)
	assert.Equal(t, "🎉 Goal Achieved: SAT Prep!", c.Title)
	assert.Equal(t, "Try AP prep next.", c.Message)
}

func TestBuild_UnknownType(t *testing.T) {
	_, err := NewBuilder().Build("bogus", Context{})
	assert.True(t, errors.Is(err, ErrUnknownType))
}

func TestContextFor(t *testing.T) {
	asOf := time.Date(2026, 5, 20, 12, 0, 0, 0, time.UTC)
	scorer := engagement.NewScorer(engagement.DefaultConfig())
	snap := engagement.Snapshot{
		StudentName:    "Maya Patel",
		EnrolledAt:     asOf.AddDate(0, -2, 0),
		AsOf:           asOf,
		LastActivityAt: asOf.AddDate(0, 0, -8),
		ActiveGoals: []engagement.GoalState{
			{ID: "g1", Title: "Fresh", Subject: "physics", Progress: 10, UpdatedAt: asOf.AddDate(0, 0, -1)},
			{ID: "g2", Title: "Old", Subject: "algebra", Progress: 30, UpdatedAt: asOf.AddDate(0, 0, -20)},
		},
	}

	c := ContextFor(scorer, snap)
	assert.Equal(t, "Maya", c.StudentName)
	assert.Equal(t, 8, c.DaysInactive)
	assert.Equal(t, "g2", c.GoalID)
	assert.Equal(t, "algebra", c.GoalSubject)
}
