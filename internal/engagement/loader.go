package engagement

import (
	"context"
	"fmt"
	"time"

	"github.com/abhisek/companion/internal/learning"
)

// ActivityRepository is the read side of the persistence store the scorer
// depends on. Windows are half-open, see learning.Window.
type ActivityRepository interface {
	Student(ctx context.Context, id string) (*learning.Student, error)
	CountTutoringSessions(ctx context.Context, studentID string, w learning.Window) (int, error)
	CountPracticeSessions(ctx context.Context, studentID string, w learning.Window) (int, error)
	// CountConversations counts conversations by their last update time.
	CountConversations(ctx context.Context, studentID string, w learning.Window) (int, error)
	CountMessages(ctx context.Context, studentID string, w learning.Window) (int, error)
	// LastActivityAt returns the latest tutoring session, practice session, or
	// conversation update. ok is false for students with no activity.
	LastActivityAt(ctx context.Context, studentID string) (at time.Time, ok bool, err error)
	GoalsByStatus(ctx context.Context, studentID string, status learning.GoalStatus) ([]learning.LearningGoal, error)
}

// Loader assembles snapshots from an ActivityRepository.
type Loader struct {
	repo ActivityRepository
	cfg  Config
}

func NewLoader(repo ActivityRepository, cfg Config) *Loader {
	return &Loader{repo: repo, cfg: cfg}
}

// Load reads every aggregate the scorer needs for one student as of asOf.
func (l *Loader) Load(ctx context.Context, studentID string, asOf time.Time) (Snapshot, error) {
	st, err := l.repo.Student(ctx, studentID)
	if err != nil {
		return Snapshot{}, fmt.Errorf("load student %s: %w", studentID, err)
	}

	snap := Snapshot{
		StudentID:   st.ID,
		StudentName: st.Name,
		EnrolledAt:  st.EnrolledAt,
		AsOf:        asOf,
	}

	sessionWin := learning.Trailing(asOf, days(l.cfg.SessionLookbackDays))
	enrolledWin := learning.Window{From: st.EnrolledAt, To: asOf}
	practiceWin := learning.Trailing(asOf, days(l.cfg.PracticeLookbackDays))
	chatWin := learning.Trailing(asOf, days(l.cfg.ConversationLookbackDays))

	counts := []struct {
		name  string
		dst   *int
		count func(context.Context, string, learning.Window) (int, error)
		win   learning.Window
	}{
		{"sessions in lookback", &snap.SessionsInLookback, l.repo.CountTutoringSessions, sessionWin},
		{"sessions since enrollment", &snap.SessionsSinceEnrollment, l.repo.CountTutoringSessions, enrolledWin},
		{"practices in lookback", &snap.PracticesInLookback, l.repo.CountPracticeSessions, practiceWin},
		{"conversations in lookback", &snap.ConversationsInLookback, l.repo.CountConversations, chatWin},
		{"messages in lookback", &snap.MessagesInLookback, l.repo.CountMessages, chatWin},
	}
	for _, c := range counts {
		n, err := c.count(ctx, studentID, c.win)
		if err != nil {
			return Snapshot{}, fmt.Errorf("count %s: %w", c.name, err)
		}
		*c.dst = n
	}

	window := days(l.cfg.DeclineWindowDays)
	recent := learning.Window{From: asOf.Add(-window), To: asOf}
	prior := learning.Window{From: asOf.Add(-2 * window), To: asOf.Add(-window)}
	if snap.Recent, err = l.countWindow(ctx, studentID, recent); err != nil {
		return Snapshot{}, err
	}
	if snap.Prior, err = l.countWindow(ctx, studentID, prior); err != nil {
		return Snapshot{}, err
	}

	at, ok, err := l.repo.LastActivityAt(ctx, studentID)
	if err != nil {
		return Snapshot{}, fmt.Errorf("last activity: %w", err)
	}
	if ok {
		snap.LastActivityAt = at
	}

	goals, err := l.repo.GoalsByStatus(ctx, studentID, learning.GoalActive)
	if err != nil {
		return Snapshot{}, fmt.Errorf("active goals: %w", err)
	}
	for _, g := range goals {
		snap.ActiveGoals = append(snap.ActiveGoals, GoalState{
			ID:        g.ID,
			Title:     g.Title,
			Subject:   g.Subject,
			Progress:  g.ProgressPercentage,
			UpdatedAt: g.UpdatedAt,
		})
	}

	return snap, nil
}

func (l *Loader) countWindow(ctx context.Context, studentID string, w learning.Window) (ActivityCounts, error) {
	var c ActivityCounts
	var err error
	if c.Sessions, err = l.repo.CountTutoringSessions(ctx, studentID, w); err != nil {
		return c, fmt.Errorf("count window sessions: %w", err)
	}
	if c.Practices, err = l.repo.CountPracticeSessions(ctx, studentID, w); err != nil {
		return c, fmt.Errorf("count window practices: %w", err)
	}
	if c.Conversations, err = l.repo.CountConversations(ctx, studentID, w); err != nil {
		return c, fmt.Errorf("count window conversations: %w", err)
	}
	return c, nil
}
