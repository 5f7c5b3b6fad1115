package engagement

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewStudentLowSessions(t *testing.T) {
	s := NewScorer(DefaultConfig())
	snap := Snapshot{
		EnrolledAt:              daysAgo(10),
		AsOf:                    asOf,
		SessionsSinceEnrollment: 1,
		SessionsInLookback:      1,
		LastActivityAt:          daysAgo(1),
	}

	assert.True(t, s.Triggers(snap).NewStudentLowSessions)
	typ, ok := s.RecommendedNudge(snap)
	assert.True(t, ok)
	assert.Equal(t, NudgeNewStudentSessions, typ)
}

func TestNewStudentWindowBounds(t *testing.T) {
	s := NewScorer(DefaultConfig())
	for _, tt := range []struct {
		enrolled int
		want     bool
	}{{6, false}, {7, true}, {14, true}, {15, false}} {
		snap := Snapshot{EnrolledAt: daysAgo(tt.enrolled), AsOf: asOf, LastActivityAt: asOf}
		assert.Equal(t, tt.want, s.newStudentLowSessions(snap), "enrolled %d days", tt.enrolled)
	}
}

func TestNewStudentWithEnoughSessions(t *testing.T) {
	s := NewScorer(DefaultConfig())
	snap := Snapshot{EnrolledAt: daysAgo(10), AsOf: asOf, SessionsSinceEnrollment: 3}
	assert.False(t, s.newStudentLowSessions(snap))
}

func TestInactiveTooLong(t *testing.T) {
	s := NewScorer(DefaultConfig())

	never := Snapshot{EnrolledAt: daysAgo(40), AsOf: asOf}
	assert.True(t, s.inactiveTooLong(never))

	assert.True(t, s.inactiveTooLong(Snapshot{AsOf: asOf, LastActivityAt: daysAgo(7)}))
	assert.False(t, s.inactiveTooLong(Snapshot{AsOf: asOf, LastActivityAt: daysAgo(6)}))

	typ, _ := s.RecommendedNudge(never)
	assert.Equal(t, NudgeInactiveReminder, typ)
	assert.Equal(t, 40, s.DaysSinceActivity(never))
}

func TestDecliningEngagement(t *testing.T) {
	s := NewScorer(DefaultConfig())

	tests := []struct {
		name          string
		recent, prior ActivityCounts
		want          bool
	}{
		{"prior zero never declines", ActivityCounts{}, ActivityCounts{}, false},
		{"halved exactly is not decline", ActivityCounts{Sessions: 1}, ActivityCounts{Sessions: 2}, false},
		{"below half", ActivityCounts{Conversations: 2}, ActivityCounts{Sessions: 1, Practices: 1}, true},
		{"growth", ActivityCounts{Sessions: 4}, ActivityCounts{Sessions: 1}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			snap := Snapshot{AsOf: asOf, Recent: tt.recent, Prior: tt.prior}
			assert.Equal(t, tt.want, s.decliningEngagement(snap))
		})
	}
}

func TestStalledGoal(t *testing.T) {
	s := NewScorer(DefaultConfig())
	snap := Snapshot{
		EnrolledAt:     daysAgo(90),
		AsOf:           asOf,
		LastActivityAt: daysAgo(1),
		ActiveGoals: []GoalState{
			{ID: "fresh", Progress: 10, UpdatedAt: daysAgo(2)},
			{ID: "nearly", Progress: 85, UpdatedAt: daysAgo(30)},
			{ID: "stuck", Title: "Master titration", Subject: "chemistry", Progress: 40, UpdatedAt: daysAgo(14)},
		},
	}

	g := s.StalledGoal(snap)
	if assert.NotNil(t, g) {
		assert.Equal(t, "stuck", g.ID)
	}
	typ, ok := s.RecommendedNudge(snap)
	assert.True(t, ok)
	assert.Equal(t, NudgeGoalStalled, typ)
}

func TestTriggerPriorityOrder(t *testing.T) {
	s := NewScorer(DefaultConfig())
	// Inactive and declining both fire; inactive wins.
	snap := Snapshot{
		EnrolledAt:     daysAgo(90),
		AsOf:           asOf,
		LastActivityAt: daysAgo(20),
		Prior:          ActivityCounts{Sessions: 2},
	}
	trig := s.Triggers(snap)
	assert.True(t, trig.InactiveTooLong)
	assert.True(t, trig.DecliningEngagement)

	typ, _ := s.RecommendedNudge(snap)
	assert.Equal(t, NudgeInactiveReminder, typ)
}

func TestEncouragementFallback(t *testing.T) {
	s := NewScorer(DefaultConfig())
	snap := Snapshot{
		EnrolledAt:     daysAgo(90),
		AsOf:           asOf,
		LastActivityAt: daysAgo(1),
	}

	assert.False(t, s.Triggers(snap).Any())
	assert.True(t, s.NeedsNudge(snap))
	typ, ok := s.RecommendedNudge(snap)
	assert.True(t, ok)
	assert.Equal(t, NudgeGeneralEncouragement, typ)
}

func TestNoNudgeForEngagedStudent(t *testing.T) {
	s := NewScorer(DefaultConfig())
	snap := Snapshot{
		EnrolledAt:              daysAgo(90),
		AsOf:                    asOf,
		SessionsInLookback:      8,
		PracticesInLookback:     7,
		ConversationsInLookback: 2,
		MessagesInLookback:      10,
		LastActivityAt:          asOf,
		Recent:                  ActivityCounts{Sessions: 4, Practices: 7},
		Prior:                   ActivityCounts{Sessions: 4, Practices: 6},
	}
	_, ok := s.RecommendedNudge(snap)
	assert.False(t, ok)
	assert.False(t, s.NeedsNudge(snap))
}
