package goals

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/abhisek/companion/internal/learning"
	"github.com/abhisek/companion/internal/llm"
	"github.com/abhisek/companion/internal/logger"
	"github.com/abhisek/companion/internal/metrics"
	"github.com/abhisek/companion/internal/store"
	"github.com/abhisek/companion/internal/subjects"
)

// GoalStore reads and writes goals. Complete must be a compare-and-set on
// the completed status, and UpdateProgress must refuse completed goals with
// store.ErrGoalCompleted.
type GoalStore interface {
	Goal(ctx context.Context, id string) (*learning.LearningGoal, error)
	UpdateProgress(ctx context.Context, id string, progress int, at time.Time) error
	Complete(ctx context.Context, id string, c store.GoalCompletion) (bool, error)
}

// ActivityReader reads the sessions progress is derived from.
type ActivityReader interface {
	PracticeSessions(ctx context.Context, studentID, subject string, since time.Time) ([]learning.PracticeSession, error)
	TutoringSessions(ctx context.Context, studentID, subject string, since time.Time, limit int) ([]learning.TutoringSession, error)
}

// ProfileReader returns a student's profile for a subject, or nil.
type ProfileReader interface {
	Profile(ctx context.Context, studentID, subject string) (*learning.LearningProfile, error)
}

// CompletionHandler is told about every goal this engine completed. It is
// called once per goal, by the call that won the completion.
type CompletionHandler interface {
	GoalCompleted(ctx context.Context, g learning.LearningGoal) error
}

// CompletionFunc adapts a function to CompletionHandler.
type CompletionFunc func(ctx context.Context, g learning.LearningGoal) error

func (f CompletionFunc) GoalCompleted(ctx context.Context, g learning.LearningGoal) error {
	return f(ctx, g)
}

// Deps are the engine's collaborators. LLM, Metrics, and Log are optional.
type Deps struct {
	Goals    GoalStore
	Activity ActivityReader
	Profiles ProfileReader
	LLM      llm.Provider
	Metrics  metrics.Sink
	Log      *logger.Logger
}

// Engine recomputes goal progress and completes goals.
type Engine struct {
	cfg        Config
	goals      GoalStore
	activity   ActivityReader
	profiles   ProfileReader
	provider   llm.Provider
	onComplete CompletionHandler
	metrics    metrics.Sink
	log        *logger.Logger

	// Now is the clock; tests replace it.
	Now func() time.Time
}

// NewEngine creates an Engine.
func NewEngine(cfg Config, d Deps) *Engine {
	if d.Metrics == nil {
		d.Metrics = metrics.Nop{}
	}
	if d.Log == nil {
		d.Log = logger.Nop()
	}
	return &Engine{
		cfg:      cfg,
		goals:    d.Goals,
		activity: d.Activity,
		profiles: d.Profiles,
		provider: d.LLM,
		metrics:  d.Metrics,
		log:      d.Log,
		Now:      time.Now,
	}
}

// OnComplete registers the completion handler.
func (e *Engine) OnComplete(h CompletionHandler) {
	e.onComplete = h
}

// Config returns the engine policy.
func (e *Engine) Config() Config {
	return e.cfg
}

// Update is the result of a progress check.
type Update struct {
	GoalID   string `json:"goal_id"`
	Previous int    `json:"previous_percentage"`
	Progress int    `json:"progress_percentage"`
	// Applied is how many signals contributed; 0 leaves progress unchanged.
	Applied   int  `json:"signals_applied"`
	Completed bool `json:"completed"`
	// JustCompleted is true only for the call that completed the goal.
	JustCompleted bool `json:"just_completed"`
}

// CheckAndUpdate blends the supplied signals with the gathered history
// signals, stores the new progress, and completes the goal once it reaches
// the threshold. Completed goals are left untouched.
func (e *Engine) CheckAndUpdate(ctx context.Context, goalID string, signals ...Signal) (Update, error) {
	g, err := e.goals.Goal(ctx, goalID)
	if err != nil {
		return Update{}, fmt.Errorf("load goal: %w", err)
	}
	u := Update{GoalID: g.ID, Previous: g.ProgressPercentage, Progress: g.ProgressPercentage}
	if g.Status == learning.GoalCompleted {
		u.Completed = true
		return u, nil
	}

	now := e.Now()
	gathered, err := e.Gather(ctx, *g, now)
	if err != nil {
		return Update{}, err
	}
	all := append(append([]Signal{}, signals...), gathered...)
	for _, s := range all {
		if _, ok := e.cfg.score(s); ok {
			u.Applied++
		}
	}

	if progress, ok := e.cfg.Blend(all...); ok {
		if e.cfg.MonotonicProgress && progress < g.ProgressPercentage {
			progress = g.ProgressPercentage
		}
		u.Progress = progress
	} else {
		e.log.Debug("no applicable progress signals", "goal_id", g.ID)
	}

	if u.Progress >= e.cfg.CompletionThreshold {
		won, err := e.complete(ctx, *g, u.Progress, now)
		if err != nil {
			return Update{}, err
		}
		u.Completed = true
		u.JustCompleted = won
		return u, nil
	}

	if u.Progress != g.ProgressPercentage {
		err := e.goals.UpdateProgress(ctx, g.ID, u.Progress, now)
		if errors.Is(err, store.ErrGoalCompleted) {
			if u.Progress, err = e.settled(ctx, g.ID); err != nil {
				return Update{}, err
			}
			u.Completed = true
			return u, nil
		}
		if err != nil {
			return Update{}, fmt.Errorf("store progress: %w", err)
		}
	}
	return u, nil
}

// settled re-reads a goal that another call completed while this one was
// working on a stale copy, and returns the stored progress.
func (e *Engine) settled(ctx context.Context, id string) (int, error) {
	g, err := e.goals.Goal(ctx, id)
	if err != nil {
		return 0, fmt.Errorf("load goal: %w", err)
	}
	e.log.Debug("goal completed concurrently", "goal_id", id)
	return g.ProgressPercentage, nil
}

// Gather reads the history signals for g: trailing practice accuracy in the
// goal subject and tutoring attendance since the goal was created.
func (e *Engine) Gather(ctx context.Context, g learning.LearningGoal, now time.Time) ([]Signal, error) {
	practices, err := e.activity.PracticeSessions(ctx, g.StudentID, g.Subject, now.AddDate(0, 0, -e.cfg.HistoryDays))
	if err != nil {
		return nil, fmt.Errorf("practice history: %w", err)
	}
	avg, n := meanAccuracy(practices)

	sessions, err := e.activity.TutoringSessions(ctx, g.StudentID, g.Subject, g.CreatedAt, 0)
	if err != nil {
		return nil, fmt.Errorf("tutoring history: %w", err)
	}

	return []Signal{
		HistoricalAccuracy{Average: avg, Sessions: n},
		SessionAttendance{Count: len(sessions)},
	}, nil
}

// complete performs the compare-and-set transition and, when this call won
// it, raises the completion event.
func (e *Engine) complete(ctx context.Context, g learning.LearningGoal, progress int, now time.Time) (bool, error) {
	suggestions := subjects.Suggestions(g.Subject)
	won, err := e.goals.Complete(ctx, g.ID, store.GoalCompletion{
		Progress:    progress,
		CompletedAt: now,
		Suggestions: suggestions,
	})
	if err != nil {
		return false, fmt.Errorf("complete goal: %w", err)
	}
	if !won {
		e.log.Debug("goal already completed", "goal_id", g.ID)
		return false, nil
	}

	g.Status = learning.GoalCompleted
	g.ProgressPercentage = progress
	g.CompletedAt = &now
	g.UpdatedAt = now
	g.SuggestedNextGoals = suggestions

	e.metrics.GoalCompleted(g.Subject)
	e.log.Info("goal completed", "goal_id", g.ID, "student_id", g.StudentID, "subject", g.Subject,
		"days_to_complete", int(now.Sub(g.CreatedAt).Hours()/24))

	if e.onComplete != nil {
		if err := e.onComplete.GoalCompleted(ctx, g); err != nil {
			e.log.Warn("goal completion follow-up failed", "goal_id", g.ID, "error", err)
		}
	}
	return true, nil
}

// meanAccuracy averages per-session accuracy, skipping sessions without
// problems.
func meanAccuracy(ps []learning.PracticeSession) (float64, int) {
	sum, n := 0.0, 0
	for _, p := range ps {
		if p.TotalProblems <= 0 {
			continue
		}
		sum += p.Accuracy()
		n++
	}
	if n == 0 {
		return 0, 0
	}
	return sum / float64(n), n
}
