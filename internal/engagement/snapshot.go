// Package engagement scores a student's recent activity and decides whether
// a retention nudge is warranted.
package engagement

import "time"

// GoalState is the slice of an active goal the trigger rules need.
type GoalState struct {
	ID        string
	Title     string
	Subject   string
	Progress  int
	UpdatedAt time.Time
}

// ActivityCounts counts activity rows inside one window.
type ActivityCounts struct {
	Sessions      int
	Practices     int
	Conversations int
}

// Snapshot is everything the scorer reads about one student at one instant.
// Scoring is a pure function of a Snapshot.
type Snapshot struct {
	StudentID   string
	StudentName string
	EnrolledAt  time.Time
	AsOf        time.Time

	SessionsInLookback      int
	SessionsSinceEnrollment int
	PracticesInLookback     int
	ConversationsInLookback int
	MessagesInLookback      int

	ActiveGoals []GoalState

	// LastActivityAt is the latest session, practice, or conversation update.
	// Zero when the student has never been active.
	LastActivityAt time.Time

	// Recent and Prior are the two adjacent decline-comparison windows,
	// Recent ending at AsOf.
	Recent ActivityCounts
	Prior  ActivityCounts
}

// HasActivity reports whether any activity was ever recorded.
func (s Snapshot) HasActivity() bool {
	return !s.LastActivityAt.IsZero()
}

// calendarDays returns the number of UTC calendar days from a to b.
func calendarDays(a, b time.Time) int {
	return int(startOfDay(b).Sub(startOfDay(a)).Hours() / 24)
}

func startOfDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func days(n int) time.Duration {
	return time.Duration(n) * 24 * time.Hour
}
