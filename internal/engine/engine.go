// Package engine exposes the retention decisions as one facade: engagement
// scoring, nudges, escalation, goal progress, and subject recommendations.
package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/abhisek/companion/internal/engagement"
	"github.com/abhisek/companion/internal/escalation"
	"github.com/abhisek/companion/internal/goals"
	"github.com/abhisek/companion/internal/handoff"
	"github.com/abhisek/companion/internal/learning"
	"github.com/abhisek/companion/internal/logger"
	"github.com/abhisek/companion/internal/metrics"
	"github.com/abhisek/companion/internal/nudge"
	"github.com/abhisek/companion/internal/subjects"
)

// Students reads students and pages through their ids.
type Students interface {
	Student(ctx context.Context, id string) (*learning.Student, error)
	StudentIDs(ctx context.Context, after string, limit int) ([]string, error)
}

// GoalHistory answers the follow-up questions about completed goals.
type GoalHistory interface {
	CompletedBetween(ctx context.Context, studentID string, w learning.Window) ([]learning.LearningGoal, error)
	CountCreatedAfter(ctx context.Context, studentID string, t time.Time) (int, error)
}

// Conversations loads conversations for escalation checks.
type Conversations interface {
	Conversation(ctx context.Context, id string) (*learning.Conversation, error)
}

// Profiles returns a student's profile for a subject, or nil.
type Profiles interface {
	Profile(ctx context.Context, studentID, subject string) (*learning.LearningProfile, error)
}

// Deps are the engine's collaborators. Handoffs, Metrics, and Log may be
// nil.
type Deps struct {
	Loader     *engagement.Loader
	Scorer     *engagement.Scorer
	Builder    *nudge.Builder
	Dispatcher *nudge.Dispatcher
	History    nudge.History
	Detector   *escalation.Detector
	Handoffs   *handoff.Coordinator
	Goals      *goals.Engine

	Students      Students
	GoalHistory   GoalHistory
	Conversations Conversations
	Profiles      Profiles

	Metrics metrics.Sink
	Log     *logger.Logger
}

// Engine is the facade over every retention decision.
type Engine struct {
	deps  Deps
	sweep SweepConfig

	// Now is the clock; tests replace it.
	Now func() time.Time
}

// New creates an Engine and registers it as the goal completion handler.
func New(d Deps, sweep SweepConfig) *Engine {
	if d.Metrics == nil {
		d.Metrics = metrics.Nop{}
	}
	if d.Log == nil {
		d.Log = logger.Nop()
	}
	e := &Engine{deps: d, sweep: sweep, Now: time.Now}
	if d.Goals != nil {
		d.Goals.OnComplete(goals.CompletionFunc(e.GoalCompleted))
	}
	return e
}

// EngagementReport is the engagement view of one student.
type EngagementReport struct {
	StudentID   string               `json:"student_id"`
	AsOf        time.Time            `json:"as_of"`
	Score       engagement.Score     `json:"score"`
	Triggers    engagement.Triggers  `json:"triggers"`
	NeedsNudge  bool                 `json:"needs_nudge"`
	Recommended engagement.NudgeType `json:"recommended_nudge,omitempty"`
}

// ComputeEngagement scores a student as of now.
func (e *Engine) ComputeEngagement(ctx context.Context, studentID string) (*EngagementReport, error) {
	snap, err := e.deps.Loader.Load(ctx, studentID, e.Now())
	if err != nil {
		return nil, err
	}
	r := e.report(snap)
	e.deps.Metrics.EngagementScored(r.Score.Overall)
	return r, nil
}

func (e *Engine) report(snap engagement.Snapshot) *EngagementReport {
	sc := e.deps.Scorer
	r := &EngagementReport{
		StudentID:  snap.StudentID,
		AsOf:       snap.AsOf,
		Score:      sc.Score(snap),
		Triggers:   sc.Triggers(snap),
		NeedsNudge: sc.NeedsNudge(snap),
	}
	if t, ok := sc.RecommendedNudge(snap); ok {
		r.Recommended = t
	}
	return r
}

// NudgeDecision is the outcome of evaluating one student for a nudge.
type NudgeDecision struct {
	StudentID string `json:"student_id"`
	// Needed matches EngagementReport.NeedsNudge for the same snapshot.
	Needed  bool           `json:"needed"`
	Content *nudge.Content `json:"content,omitempty"`
	// Outcome is empty when nothing was sent or the nudge was only
	// previewed.
	Outcome nudge.Outcome `json:"outcome,omitempty"`
}

// EvaluateNudge decides whether the student should be nudged and renders
// the content. With send set, the nudge is dispatched.
func (e *Engine) EvaluateNudge(ctx context.Context, studentID string, send bool) (*NudgeDecision, error) {
	snap, err := e.deps.Loader.Load(ctx, studentID, e.Now())
	if err != nil {
		return nil, err
	}
	e.deps.Metrics.EngagementScored(e.deps.Scorer.Score(snap).Overall)

	d := &NudgeDecision{StudentID: studentID, Needed: e.deps.Scorer.NeedsNudge(snap)}
	t, ok := e.deps.Scorer.RecommendedNudge(snap)
	if !d.Needed || !ok {
		return d, nil
	}
	c, err := e.deps.Builder.Build(t, nudge.ContextFor(e.deps.Scorer, snap))
	if err != nil {
		return nil, err
	}
	d.Content = &c
	if !send {
		return d, nil
	}

	st, err := e.deps.Students.Student(ctx, studentID)
	if err != nil {
		return nil, fmt.Errorf("load student: %w", err)
	}
	d.Outcome, err = e.deps.Dispatcher.Dispatch(ctx, *st, c)
	return d, err
}

// EscalationReport is the escalation view of one conversation.
type EscalationReport struct {
	ConversationID string              `json:"conversation_id"`
	ShouldEscalate bool                `json:"should_escalate"`
	Signals        escalation.Signals  `json:"signals"`
	Context        *escalation.Context `json:"context,omitempty"`
	Suggestion     *handoff.Suggestion `json:"suggestion,omitempty"`
}

// CheckEscalation inspects a conversation. With suggest set and a handoff
// coordinator configured, an escalating conversation also gets a tutor
// suggestion appended.
func (e *Engine) CheckEscalation(ctx context.Context, conversationID string, suggest bool) (*EscalationReport, error) {
	conv, err := e.deps.Conversations.Conversation(ctx, conversationID)
	if err != nil {
		return nil, fmt.Errorf("load conversation: %w", err)
	}
	profile, err := e.deps.Profiles.Profile(ctx, conv.StudentID, conv.Subject)
	if err != nil {
		return nil, fmt.Errorf("load profile: %w", err)
	}

	r := &EscalationReport{ConversationID: conv.ID}
	r.Signals = e.deps.Detector.Detect(*conv, profile)
	r.ShouldEscalate = r.Signals.Any()

	if suggest && e.deps.Handoffs != nil {
		s, err := e.deps.Handoffs.CheckAndSuggest(ctx, conv.ID)
		if err != nil {
			return nil, err
		}
		if s != nil {
			r.ShouldEscalate = true
			r.Suggestion = s
			r.Context = &s.Context
		}
		return r, nil
	}

	e.deps.Metrics.EscalationChecked(r.ShouldEscalate, string(r.Signals.Urgency()))
	if r.ShouldEscalate {
		c := e.deps.Detector.BuildContext(ctx, *conv, profile)
		r.Context = &c
	}
	return r, nil
}

// Book books a tutor for an escalated conversation.
func (e *Engine) Book(ctx context.Context, conversationID, tutorID string, at time.Time) (*learning.Handoff, error) {
	if e.deps.Handoffs == nil {
		return nil, fmt.Errorf("booking: no handoff coordinator configured")
	}
	return e.deps.Handoffs.Book(ctx, conversationID, tutorID, at)
}

// UpdateGoalProgress recomputes a goal's progress from the given signals
// and the student's history.
func (e *Engine) UpdateGoalProgress(ctx context.Context, goalID string, signals ...goals.Signal) (goals.Update, error) {
	return e.deps.Goals.CheckAndUpdate(ctx, goalID, signals...)
}

// EvaluateGoalCompletion asks the language model to judge a goal.
func (e *Engine) EvaluateGoalCompletion(ctx context.Context, goalID string) (*goals.Evaluation, error) {
	return e.deps.Goals.EvaluateCompletion(ctx, goalID)
}

// RecommendNextSubjects returns what to study after subject.
func (e *Engine) RecommendNextSubjects(subject string) subjects.Recommendation {
	return subjects.Lookup(subject)
}
