package goals

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abhisek/companion/internal/learning"
	"github.com/abhisek/companion/internal/llm"
	"github.com/abhisek/companion/internal/store"
)

var now = time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC)

const day = 24 * time.Hour

type fixture struct {
	store     *store.Store
	engine    *Engine
	completed []learning.LearningGoal
}

func newFixture(t *testing.T, cfg Config, provider llm.Provider) *fixture {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	s, err := store.Open(fmt.Sprintf("file:goals_%s?mode=memory&cache=shared", name))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	f := &fixture{store: s}
	f.engine = NewEngine(cfg, Deps{
		Goals:    s.Goals(),
		Activity: s.Activity(),
		Profiles: s.Profiles(),
		LLM:      provider,
	})
	f.engine.Now = func() time.Time { return now }
	f.engine.OnComplete(CompletionFunc(func(_ context.Context, g learning.LearningGoal) error {
		f.completed = append(f.completed, g)
		return nil
	}))

	err = s.Activity().CreateStudent(context.Background(), &learning.Student{ID: "s1", Name: "Riya Shah", EnrolledAt: now.Add(-60 * day)})
	require.NoError(t, err)
	return f
}

func (f *fixture) goal(t *testing.T, subject string, progress int) *learning.LearningGoal {
	t.Helper()
	g := &learning.LearningGoal{
		StudentID:          "s1",
		Subject:            subject,
		Title:              "Master stoichiometry",
		Description:        "Balance equations and convert between moles and grams",
		TargetOutcome:      "Solve unit test problems unaided",
		ProgressPercentage: progress,
		Milestones: []learning.Milestone{
			{ID: "m1", Title: "Balancing", Completed: true},
			{ID: "m2", Title: "Mole ratios"},
		},
		CreatedAt: now.Add(-7 * day),
	}
	require.NoError(t, f.store.Goals().Create(context.Background(), g))
	return g
}

func (f *fixture) practice(t *testing.T, subject string, correct, total int, at time.Time) {
	t.Helper()
	err := f.store.Activity().RecordPracticeSession(context.Background(), &learning.PracticeSession{
		StudentID: "s1", Subject: subject, CorrectAnswers: correct, TotalProblems: total, CreatedAt: at,
	})
	require.NoError(t, err)
}

func (f *fixture) reload(t *testing.T, id string) *learning.LearningGoal {
	t.Helper()
	g, err := f.store.Goals().Goal(context.Background(), id)
	require.NoError(t, err)
	return g
}

func TestCheckAndUpdate_CompletesGoal(t *testing.T) {
	f := newFixture(t, DefaultConfig(), nil)
	g := f.goal(t, "chemistry", 85)
	f.practice(t, "chemistry", 9, 10, now.Add(-time.Hour))

	u, err := f.engine.CheckAndUpdate(context.Background(), g.ID,
		SessionAnalysis{ComprehensionScore: 9},
		PracticeResult{Correct: 9, Total: 10},
	)
	require.NoError(t, err)

	assert.Equal(t, 85, u.Previous)
	assert.Equal(t, 90, u.Progress)
	assert.Equal(t, 3, u.Applied)
	assert.True(t, u.Completed)
	assert.True(t, u.JustCompleted)

	stored := f.reload(t, g.ID)
	assert.Equal(t, learning.GoalCompleted, stored.Status)
	assert.Equal(t, 90, stored.ProgressPercentage)
	require.NotNil(t, stored.CompletedAt)
	assert.True(t, stored.CompletedAt.Equal(now))
	require.NotEmpty(t, stored.SuggestedNextGoals)
	assert.Equal(t, "physics", stored.SuggestedNextGoals[0].Subject)

	require.Len(t, f.completed, 1)
	assert.Equal(t, g.ID, f.completed[0].ID)
	assert.Equal(t, learning.GoalCompleted, f.completed[0].Status)
}

func TestCheckAndUpdate_CompletedGoalIsFrozen(t *testing.T) {
	f := newFixture(t, DefaultConfig(), nil)
	g := f.goal(t, "chemistry", 85)
	f.practice(t, "chemistry", 9, 10, now.Add(-time.Hour))

	_, err := f.engine.CheckAndUpdate(context.Background(), g.ID, SessionAnalysis{ComprehensionScore: 9})
	require.NoError(t, err)

	u, err := f.engine.CheckAndUpdate(context.Background(), g.ID, SessionAnalysis{ComprehensionScore: 2})
	require.NoError(t, err)
	assert.True(t, u.Completed)
	assert.False(t, u.JustCompleted)
	assert.Equal(t, 90, u.Progress)

	stored := f.reload(t, g.ID)
	assert.Equal(t, learning.GoalCompleted, stored.Status)
	assert.Equal(t, 90, stored.ProgressPercentage)
	assert.Len(t, f.completed, 1, "completion follow-up must fire once")
}

// staleGoals serves one Goal read from a copy loaded earlier, the way a call
// that read the goal just before another call completed it would see it.
type staleGoals struct {
	*store.GoalRepo
	snapshot *learning.LearningGoal
}

func (s *staleGoals) Goal(ctx context.Context, id string) (*learning.LearningGoal, error) {
	if g := s.snapshot; g != nil && g.ID == id {
		s.snapshot = nil
		cp := *g
		return &cp, nil
	}
	return s.GoalRepo.Goal(ctx, id)
}

func (f *fixture) staleEngine(t *testing.T, snapshot *learning.LearningGoal, provider llm.Provider) *Engine {
	t.Helper()
	e := NewEngine(DefaultConfig(), Deps{
		Goals:    &staleGoals{GoalRepo: f.store.Goals(), snapshot: snapshot},
		Activity: f.store.Activity(),
		Profiles: f.store.Profiles(),
		LLM:      provider,
	})
	e.Now = func() time.Time { return now }
	e.OnComplete(CompletionFunc(func(_ context.Context, g learning.LearningGoal) error {
		f.completed = append(f.completed, g)
		return nil
	}))
	return e
}

func TestCheckAndUpdate_StaleReadKeepsCompletedGoal(t *testing.T) {
	f := newFixture(t, DefaultConfig(), nil)
	ctx := context.Background()
	g := f.goal(t, "chemistry", 85)
	stale := f.reload(t, g.ID)

	u, err := f.engine.CheckAndUpdate(ctx, g.ID, PracticeResult{Correct: 10, Total: 10})
	require.NoError(t, err)
	require.True(t, u.JustCompleted)
	require.Equal(t, 100, u.Progress)

	late, err := f.staleEngine(t, stale, nil).CheckAndUpdate(ctx, g.ID, PracticeResult{Correct: 2, Total: 10})
	require.NoError(t, err)
	assert.True(t, late.Completed)
	assert.False(t, late.JustCompleted)
	assert.Equal(t, 100, late.Progress)

	stored := f.reload(t, g.ID)
	assert.Equal(t, learning.GoalCompleted, stored.Status)
	assert.Equal(t, 100, stored.ProgressPercentage)
	assert.Len(t, f.completed, 1)
}

func TestComplete_OnlyFirstCallWins(t *testing.T) {
	f := newFixture(t, DefaultConfig(), nil)
	g := f.goal(t, "algebra", 95)

	won, err := f.engine.complete(context.Background(), *g, 95, now)
	require.NoError(t, err)
	assert.True(t, won)

	won, err = f.engine.complete(context.Background(), *g, 95, now)
	require.NoError(t, err)
	assert.False(t, won)
	assert.Len(t, f.completed, 1)
}

func TestCheckAndUpdate_BelowThreshold(t *testing.T) {
	f := newFixture(t, DefaultConfig(), nil)
	g := f.goal(t, "chemistry", 40)

	u, err := f.engine.CheckAndUpdate(context.Background(), g.ID, PracticeResult{Correct: 6, Total: 10})
	require.NoError(t, err)
	assert.Equal(t, 60, u.Progress)
	assert.False(t, u.Completed)

	stored := f.reload(t, g.ID)
	assert.Equal(t, learning.GoalActive, stored.Status)
	assert.Equal(t, 60, stored.ProgressPercentage)
	assert.Empty(t, f.completed)
}

func TestCheckAndUpdate_NoSignalsLeavesProgress(t *testing.T) {
	f := newFixture(t, DefaultConfig(), nil)
	g := f.goal(t, "chemistry", 40)

	u, err := f.engine.CheckAndUpdate(context.Background(), g.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, u.Applied)
	assert.Equal(t, 40, u.Progress)
	assert.Equal(t, 40, f.reload(t, g.ID).ProgressPercentage)
}

func TestCheckAndUpdate_AttendanceCounts(t *testing.T) {
	f := newFixture(t, DefaultConfig(), nil)
	g := f.goal(t, "physics", 0)
	for i := range 2 {
		err := f.store.Activity().RecordTutoringSession(context.Background(), &learning.TutoringSession{
			StudentID: "s1", Subject: "physics", CreatedAt: now.Add(-time.Duration(i+1) * day),
		})
		require.NoError(t, err)
	}

	u, err := f.engine.CheckAndUpdate(context.Background(), g.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, u.Applied)
	assert.Equal(t, 30, u.Progress)
}

func TestCheckAndUpdate_HistoryWindow(t *testing.T) {
	f := newFixture(t, DefaultConfig(), nil)
	g := f.goal(t, "chemistry", 0)
	f.practice(t, "chemistry", 2, 10, now.Add(-45*day))
	f.practice(t, "chemistry", 8, 10, now.Add(-2*day))
	f.practice(t, "biology", 0, 10, now.Add(-2*day))

	u, err := f.engine.CheckAndUpdate(context.Background(), g.ID)
	require.NoError(t, err)
	assert.Equal(t, 80, u.Progress)
}

func TestCheckAndUpdate_Monotonic(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MonotonicProgress = true
	f := newFixture(t, cfg, nil)
	g := f.goal(t, "chemistry", 70)

	u, err := f.engine.CheckAndUpdate(context.Background(), g.ID, PracticeResult{Correct: 3, Total: 10})
	require.NoError(t, err)
	assert.Equal(t, 70, u.Progress)
	assert.Equal(t, 70, f.reload(t, g.ID).ProgressPercentage)
}

func TestCheckAndUpdate_UnknownGoal(t *testing.T) {
	f := newFixture(t, DefaultConfig(), nil)
	_, err := f.engine.CheckAndUpdate(context.Background(), "missing")
	assert.ErrorIs(t, err, store.ErrNotFound)
}
