package goals

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abhisek/companion/internal/learning"
	"github.com/abhisek/companion/internal/llm"
)

type hangingProvider struct{}

func (hangingProvider) Generate(ctx context.Context, _ llm.Request) (*llm.Response, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func (hangingProvider) ModelID() string { return "hang" }

func verdict(complete bool, progress int) llm.MockResponse {
	return llm.MockResponse{Content: json.RawMessage(fmt.Sprintf(
		`{"is_complete":%t,"estimated_progress":%d,"reasoning":"steady practice","remaining_gaps":["limiting reagents"]}`,
		complete, progress))}
}

func TestEvaluateCompletion_Complete(t *testing.T) {
	mock := llm.NewMockProvider(verdict(true, 95))
	f := newFixture(t, DefaultConfig(), mock)
	g := f.goal(t, "chemistry", 85)

	ev, err := f.engine.EvaluateCompletion(context.Background(), g.ID)
	require.NoError(t, err)
	assert.True(t, ev.IsComplete)
	assert.True(t, ev.Completed)
	assert.True(t, ev.JustCompleted)
	assert.Equal(t, 100, ev.Progress)
	assert.Equal(t, []string{"limiting reagents"}, ev.RemainingGaps)

	stored := f.reload(t, g.ID)
	assert.Equal(t, learning.GoalCompleted, stored.Status)
	assert.Equal(t, 100, stored.ProgressPercentage)
	assert.NotEmpty(t, stored.SuggestedNextGoals)
	assert.Len(t, f.completed, 1)
}

func TestEvaluateCompletion_Incomplete(t *testing.T) {
	mock := llm.NewMockProvider(verdict(false, 60))
	f := newFixture(t, DefaultConfig(), mock)
	g := f.goal(t, "chemistry", 85)

	ev, err := f.engine.EvaluateCompletion(context.Background(), g.ID)
	require.NoError(t, err)
	assert.False(t, ev.Completed)
	assert.Equal(t, 60, ev.Progress)
	assert.Equal(t, "steady practice", ev.Reasoning)

	stored := f.reload(t, g.ID)
	assert.Equal(t, learning.GoalActive, stored.Status)
	assert.Equal(t, 60, stored.ProgressPercentage)
}

func TestEvaluateCompletion_MonotonicKeepsHigherProgress(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MonotonicProgress = true
	f := newFixture(t, cfg, llm.NewMockProvider(verdict(false, 60)))
	g := f.goal(t, "chemistry", 85)

	ev, err := f.engine.EvaluateCompletion(context.Background(), g.ID)
	require.NoError(t, err)
	assert.Equal(t, 85, ev.Progress)
	assert.Equal(t, 85, f.reload(t, g.ID).ProgressPercentage)
}

func TestEvaluateCompletion_Prompt(t *testing.T) {
	mock := llm.NewMockProvider(verdict(false, 50))
	f := newFixture(t, DefaultConfig(), mock)
	g := f.goal(t, "chemistry", 10)
	f.practice(t, "chemistry", 7, 10, now.Add(-day))
	err := f.store.Activity().RecordTutoringSession(context.Background(), &learning.TutoringSession{
		StudentID: "s1", Subject: "chemistry", Summary: "Worked through mole conversions.", CreatedAt: now.Add(-2 * day),
	})
	require.NoError(t, err)
	err = f.store.Profiles().Upsert(context.Background(), &learning.LearningProfile{
		StudentID: "s1", Subject: "chemistry", ProficiencyLevel: 6, Strengths: []string{"balancing"}, Weaknesses: []string{"units"},
	})
	require.NoError(t, err)

	_, err = f.engine.EvaluateCompletion(context.Background(), g.ID)
	require.NoError(t, err)

	require.Equal(t, 1, mock.CallCount())
	req := mock.Calls[0]
	assert.Same(t, VerdictSchema, req.Schema)
	require.Len(t, req.Messages, 1)
	msg := req.Messages[0].Content
	assert.Contains(t, msg, "Goal: Master stoichiometry")
	assert.Contains(t, msg, "Target Outcome: Solve unit test problems unaided")
	assert.Contains(t, msg, `"total_sessions":1`)
	assert.Contains(t, msg, `"average_accuracy":0.7`)
	assert.Contains(t, msg, "Worked through mole conversions.")
	assert.Contains(t, msg, `"proficiency_level":6`)
	assert.Contains(t, msg, "Milestones Completed: 1")
}

func TestEvaluateCompletion_EmptyEvidence(t *testing.T) {
	mock := llm.NewMockProvider(verdict(false, 5))
	f := newFixture(t, DefaultConfig(), mock)
	g := f.goal(t, "chemistry", 0)

	_, err := f.engine.EvaluateCompletion(context.Background(), g.ID)
	require.NoError(t, err)
	msg := mock.Calls[0].Messages[0].Content
	assert.Contains(t, msg, "Practice Statistics:\n{}")
	assert.Contains(t, msg, "Learning Profile:\n{}")
}

func TestEvaluateCompletion_ProviderFailureLeavesGoal(t *testing.T) {
	mock := llm.NewMockProvider(llm.MockResponse{Err: &llm.ErrProviderUnavailable{}})
	f := newFixture(t, DefaultConfig(), mock)
	g := f.goal(t, "chemistry", 85)

	ev, err := f.engine.EvaluateCompletion(context.Background(), g.ID)
	assert.Nil(t, ev)
	assert.ErrorIs(t, err, ErrEvaluationUnavailable)

	stored := f.reload(t, g.ID)
	assert.Equal(t, 85, stored.ProgressPercentage)
	assert.Equal(t, learning.GoalActive, stored.Status)
}

func TestEvaluateCompletion_Timeout(t *testing.T) {
	cfg := DefaultConfig()
	cfg.EvaluationTimeout = 20 * time.Millisecond
	f := newFixture(t, cfg, hangingProvider{})
	g := f.goal(t, "chemistry", 85)

	_, err := f.engine.EvaluateCompletion(context.Background(), g.ID)
	assert.ErrorIs(t, err, ErrEvaluationUnavailable)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 85, f.reload(t, g.ID).ProgressPercentage)
}

func TestEvaluateCompletion_NoProvider(t *testing.T) {
	f := newFixture(t, DefaultConfig(), nil)
	g := f.goal(t, "chemistry", 85)

	_, err := f.engine.EvaluateCompletion(context.Background(), g.ID)
	assert.ErrorIs(t, err, ErrEvaluationUnavailable)
}

func TestEvaluateCompletion_MalformedVerdict(t *testing.T) {
	tests := []struct {
		name string
		resp llm.MockResponse
	}{
		{"not json", llm.MockResponse{Content: json.RawMessage(`"sure, looks done"`)}},
		{"missing progress", llm.MockResponse{Content: json.RawMessage(`{"is_complete":false,"reasoning":"x"}`)}},
		{"progress out of range", llm.MockResponse{Content: json.RawMessage(`{"is_complete":false,"estimated_progress":140}`)}},
		{"schema rejected", llm.MockResponse{Err: &llm.ErrInvalidResponse{Content: json.RawMessage(`{}`)}}},
		{"truncated", llm.MockResponse{Err: &llm.ErrMaxTokensExceeded{}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, DefaultConfig(), llm.NewMockProvider(tt.resp))
			g := f.goal(t, "chemistry", 85)

			_, err := f.engine.EvaluateCompletion(context.Background(), g.ID)
			assert.ErrorIs(t, err, ErrMalformedVerdict)
			assert.Equal(t, 85, f.reload(t, g.ID).ProgressPercentage)
		})
	}
}

func TestEvaluateCompletion_CompletedGoalUnchanged(t *testing.T) {
	f := newFixture(t, DefaultConfig(), llm.NewMockProvider(verdict(false, 40)))
	g := f.goal(t, "chemistry", 95)
	_, err := f.engine.complete(context.Background(), *g, 95, now)
	require.NoError(t, err)

	ev, err := f.engine.EvaluateCompletion(context.Background(), g.ID)
	require.NoError(t, err)
	assert.True(t, ev.Completed)
	assert.Equal(t, 95, ev.Progress)
	assert.Equal(t, 95, f.reload(t, g.ID).ProgressPercentage)
}

func TestEvaluateCompletion_StaleReadKeepsCompletedGoal(t *testing.T) {
	f := newFixture(t, DefaultConfig(), nil)
	ctx := context.Background()
	g := f.goal(t, "chemistry", 85)
	stale := f.reload(t, g.ID)

	_, err := f.engine.CheckAndUpdate(ctx, g.ID, PracticeResult{Correct: 10, Total: 10})
	require.NoError(t, err)

	mock := llm.NewMockProvider(verdict(false, 40))
	ev, err := f.staleEngine(t, stale, mock).EvaluateCompletion(ctx, g.ID)
	require.NoError(t, err)
	assert.True(t, ev.Completed)
	assert.False(t, ev.JustCompleted)
	assert.Equal(t, 100, ev.Progress)

	stored := f.reload(t, g.ID)
	assert.Equal(t, learning.GoalCompleted, stored.Status)
	assert.Equal(t, 100, stored.ProgressPercentage)
	assert.Len(t, f.completed, 1)
}
