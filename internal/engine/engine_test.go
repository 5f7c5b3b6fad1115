package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abhisek/companion/internal/engagement"
	"github.com/abhisek/companion/internal/escalation"
	"github.com/abhisek/companion/internal/goals"
	"github.com/abhisek/companion/internal/learning"
	"github.com/abhisek/companion/internal/nudge"
	"github.com/abhisek/companion/internal/platform"
	"github.com/abhisek/companion/internal/store"
)

var now = time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC)

const day = 24 * time.Hour

type fakeSender struct {
	mu   sync.Mutex
	sent []platform.Notification
	fail map[string]bool
}

func (f *fakeSender) SendNotification(_ context.Context, n platform.Notification) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail[n.StudentID] {
		return &platform.APIError{StatusCode: 502, Body: "bad gateway"}
	}
	f.sent = append(f.sent, n)
	return nil
}

func (f *fakeSender) byType(t string) []platform.Notification {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []platform.Notification
	for _, n := range f.sent {
		if n.Type == t {
			out = append(out, n)
		}
	}
	return out
}

type fixture struct {
	store  *store.Store
	sender *fakeSender
	engine *Engine
}

func newFixture(t *testing.T, sweep SweepConfig) *fixture {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	s, err := store.Open(fmt.Sprintf("file:engine_%s?mode=memory&cache=shared", name))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	clock := func() time.Time { return now }
	ecfg := engagement.DefaultConfig()
	sender := &fakeSender{fail: map[string]bool{}}

	dispatcher := nudge.NewDispatcher(nudge.NewStoreLedger(s.Nudges(), nudge.DefaultConfig().Window), sender, s.Nudges(), nil, nil)
	dispatcher.Now = clock

	det, err := escalation.NewDetector(escalation.DefaultConfig(), nil, nil, nil)
	require.NoError(t, err)

	ge := goals.NewEngine(goals.DefaultConfig(), goals.Deps{Goals: s.Goals(), Activity: s.Activity(), Profiles: s.Profiles()})
	ge.Now = clock

	e := New(Deps{
		Loader:        engagement.NewLoader(s.Activity(), ecfg),
		Scorer:        engagement.NewScorer(ecfg),
		Builder:       nudge.NewBuilder(),
		Dispatcher:    dispatcher,
		History:       s.Nudges(),
		Detector:      det,
		Goals:         ge,
		Students:      s.Activity(),
		GoalHistory:   s.Goals(),
		Conversations: s.Conversations(),
		Profiles:      s.Profiles(),
	}, sweep)
	e.Now = clock

	return &fixture{store: s, sender: sender, engine: e}
}

func (f *fixture) student(t *testing.T, id string, enrolled time.Time) {
	t.Helper()
	err := f.store.Activity().CreateStudent(context.Background(), &learning.Student{
		ID: id, ExternalID: "ext-" + id, Name: "Student " + id, EnrolledAt: enrolled,
	})
	require.NoError(t, err)
}

func (f *fixture) session(t *testing.T, studentID, subject string, at time.Time) {
	t.Helper()
	err := f.store.Activity().RecordTutoringSession(context.Background(), &learning.TutoringSession{
		StudentID: studentID, Subject: subject, CreatedAt: at,
	})
	require.NoError(t, err)
}

func TestComputeEngagement_NewStudentLowSessions(t *testing.T) {
	f := newFixture(t, DefaultSweepConfig())
	f.student(t, "s1", now.Add(-10*day))
	f.session(t, "s1", "algebra", now.Add(-2*day))

	r, err := f.engine.ComputeEngagement(context.Background(), "s1")
	require.NoError(t, err)
	assert.True(t, r.Triggers.NewStudentLowSessions)
	assert.True(t, r.NeedsNudge)
	assert.Equal(t, engagement.NudgeNewStudentSessions, r.Recommended)
	assert.Contains(t, r.Score.Components, "session_frequency")
}

func TestComputeEngagement_UnknownStudent(t *testing.T) {
	f := newFixture(t, DefaultSweepConfig())
	_, err := f.engine.ComputeEngagement(context.Background(), "ghost")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestEvaluateNudge_PreviewThenSendOnce(t *testing.T) {
	f := newFixture(t, DefaultSweepConfig())
	f.student(t, "s1", now.Add(-10*day))
	f.session(t, "s1", "algebra", now.Add(-2*day))
	ctx := context.Background()

	d, err := f.engine.EvaluateNudge(ctx, "s1", false)
	require.NoError(t, err)
	assert.True(t, d.Needed)
	require.NotNil(t, d.Content)
	assert.Equal(t, engagement.NudgeNewStudentSessions, d.Content.Type)
	assert.Empty(t, d.Outcome)
	assert.Empty(t, f.sender.sent)

	d, err = f.engine.EvaluateNudge(ctx, "s1", true)
	require.NoError(t, err)
	assert.Equal(t, nudge.OutcomeSent, d.Outcome)

	d, err = f.engine.EvaluateNudge(ctx, "s1", true)
	require.NoError(t, err)
	assert.Equal(t, nudge.OutcomeDuplicate, d.Outcome)

	sent := f.sender.byType(string(engagement.NudgeNewStudentSessions))
	require.Len(t, sent, 1)
	assert.Equal(t, "ext-s1", sent[0].StudentID)
}

func TestSweep_IsolatesFailures(t *testing.T) {
	cfg := DefaultSweepConfig()
	cfg.PageSize = 1
	cfg.Workers = 2
	f := newFixture(t, cfg)
	f.student(t, "s1", now.Add(-10*day))
	f.session(t, "s1", "algebra", now.Add(-2*day))
	f.student(t, "s2", now.Add(-60*day))
	f.student(t, "s3", now.Add(-60*day))
	f.sender.fail["ext-s2"] = true

	r, err := f.engine.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, r.Evaluated)
	assert.Equal(t, 1, r.Failed)
	assert.Equal(t, 2, r.Sent)
	assert.Len(t, f.sender.byType(string(engagement.NudgeInactiveReminder)), 1)

	nudges, err := f.store.Nudges().List(context.Background(), "s2", 10)
	require.NoError(t, err)
	assert.Empty(t, nudges)
}

func TestSweep_LowScoreWithoutTriggerSendsEncouragement(t *testing.T) {
	f := newFixture(t, DefaultSweepConfig())
	f.student(t, "s1", now.Add(-90*day))
	f.session(t, "s1", "algebra", now.Add(-day))
	ctx := context.Background()

	r, err := f.engine.ComputeEngagement(ctx, "s1")
	require.NoError(t, err)
	assert.False(t, r.Triggers.Any())
	assert.Less(t, r.Score.Overall, 50)
	assert.True(t, r.NeedsNudge)
	assert.Equal(t, engagement.NudgeGeneralEncouragement, r.Recommended)

	d, err := f.engine.EvaluateNudge(ctx, "s1", false)
	require.NoError(t, err)
	assert.Equal(t, r.NeedsNudge, d.Needed)
	require.NotNil(t, d.Content)
	assert.Equal(t, engagement.NudgeGeneralEncouragement, d.Content.Type)

	rep, err := f.engine.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Evaluated)
	assert.Equal(t, 1, rep.Sent)
	assert.Len(t, f.sender.byType(string(engagement.NudgeGeneralEncouragement)), 1)
}

func TestSweep_Cancelled(t *testing.T) {
	f := newFixture(t, DefaultSweepConfig())
	f.student(t, "s1", now.Add(-60*day))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := f.engine.Sweep(ctx)
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestUpdateGoalProgress_Celebrates(t *testing.T) {
	f := newFixture(t, DefaultSweepConfig())
	f.student(t, "s1", now.Add(-60*day))
	ctx := context.Background()
	g := &learning.LearningGoal{StudentID: "s1", Subject: "chemistry", Title: "Ace stoichiometry", ProgressPercentage: 85, CreatedAt: now.Add(-7 * day)}
	require.NoError(t, f.store.Goals().Create(ctx, g))

	u, err := f.engine.UpdateGoalProgress(ctx, g.ID, goals.SessionAnalysis{ComprehensionScore: 9}, goals.PracticeResult{Correct: 9, Total: 10})
	require.NoError(t, err)
	assert.True(t, u.JustCompleted)

	_, err = f.engine.UpdateGoalProgress(ctx, g.ID, goals.SessionAnalysis{ComprehensionScore: 10})
	require.NoError(t, err)

	sent := f.sender.byType(string(nudge.GoalCompleted))
	require.Len(t, sent, 1)
	assert.Equal(t, "🎉 Goal Achieved: Ace stoichiometry!", sent[0].Title)
	assert.Equal(t, "Chemistry mastered! Physics and biology are natural next steps for STEM success.", sent[0].Message)
}

func TestFollowUp(t *testing.T) {
	f := newFixture(t, DefaultSweepConfig())
	f.student(t, "s1", now.Add(-60*day))
	ctx := context.Background()

	completed := now.Add(-4 * day)
	g := &learning.LearningGoal{
		StudentID: "s1", Subject: "chemistry", Title: "Ace stoichiometry",
		Status: learning.GoalCompleted, ProgressPercentage: 95,
		CreatedAt: now.Add(-30 * day), CompletedAt: &completed,
		SuggestedNextGoals: []learning.SuggestedGoal{{Subject: "physics", Priority: 0}},
	}
	require.NoError(t, f.store.Goals().Create(ctx, g))

	o, err := f.engine.FollowUp(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, nudge.OutcomeSent, o)

	sent := f.sender.byType(string(engagement.NudgeGoalCompletedFollow))
	require.Len(t, sent, 1)
	assert.Contains(t, sent[0].Message, "How about Physics next?")

	o, err = f.engine.FollowUp(ctx, "s1")
	require.NoError(t, err)
	assert.Empty(t, o, "one follow-up per completed goal")
}

func TestFollowUp_NotDue(t *testing.T) {
	tests := []struct {
		name      string
		completed time.Duration
		newGoal   bool
	}{
		{"too recent", 2 * day, false},
		{"too old", 8 * day, false},
		{"new goal set", 4 * day, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, DefaultSweepConfig())
			f.student(t, "s1", now.Add(-60*day))
			ctx := context.Background()

			completed := now.Add(-tt.completed)
			g := &learning.LearningGoal{StudentID: "s1", Subject: "algebra", Title: "Factor", Status: learning.GoalCompleted,
				CreatedAt: now.Add(-30 * day), CompletedAt: &completed}
			require.NoError(t, f.store.Goals().Create(ctx, g))
			if tt.newGoal {
				require.NoError(t, f.store.Goals().Create(ctx, &learning.LearningGoal{StudentID: "s1", Subject: "geometry", Title: "Proofs", CreatedAt: now.Add(-day)}))
			}

			o, err := f.engine.FollowUp(ctx, "s1")
			require.NoError(t, err)
			assert.Empty(t, o)
		})
	}
}

func TestCheckEscalation_RepeatedConfusion(t *testing.T) {
	f := newFixture(t, DefaultSweepConfig())
	f.student(t, "s1", now.Add(-60*day))
	ctx := context.Background()

	c := &learning.Conversation{StudentID: "s1", Subject: "algebra", CreatedAt: now.Add(-time.Hour)}
	require.NoError(t, f.store.Conversations().Create(ctx, c))
	lines := []string{
		"how do I factor x^2-9",
		"how do I factor x^2-9 again",
		"so how do I factor x^2-9",
		"what is a quadratic",
		"how do I factor x^2-9 please",
	}
	for i, l := range lines {
		require.NoError(t, f.store.Conversations().AppendMessage(ctx, c.ID, &learning.Message{
			Role: learning.RoleUser, Content: l, CreatedAt: now.Add(-time.Hour + time.Duration(i)*time.Minute),
		}))
	}

	r, err := f.engine.CheckEscalation(ctx, c.ID, false)
	require.NoError(t, err)
	assert.True(t, r.ShouldEscalate)
	assert.True(t, r.Signals.RepeatedConfusion)
	require.NotNil(t, r.Context)
	assert.Contains(t, []escalation.Urgency{escalation.UrgencyMedium, escalation.UrgencyHigh}, r.Context.Urgency)
	assert.Empty(t, r.Context.Summary)
	assert.Nil(t, r.Suggestion)
}

func TestRecommendNextSubjects(t *testing.T) {
	f := newFixture(t, DefaultSweepConfig())
	r := f.engine.RecommendNextSubjects("chemistry")
	assert.Contains(t, r.NextSubjects, "physics")
	assert.Equal(t, "physics", r.PriorityOrder[0])
}

func TestBook_WithoutCoordinator(t *testing.T) {
	f := newFixture(t, DefaultSweepConfig())
	_, err := f.engine.Book(context.Background(), "c1", "", now)
	assert.Error(t, err)
}

func TestSweepConfigValidate(t *testing.T) {
	assert.NoError(t, DefaultSweepConfig().Validate())
	cfg := DefaultSweepConfig()
	cfg.FollowUpWithin = cfg.FollowUpAfter
	assert.Error(t, cfg.Validate())
}
