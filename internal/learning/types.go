// Package learning holds the learning-record value types shared by the
// engagement, escalation, and goal components.
package learning

import "time"

// Student is the identity the engine keys every aggregate by.
type Student struct {
	ID         string
	ExternalID string
	Name       string
	EnrolledAt time.Time
}

// TutoringSession is a completed live session with a human tutor.
type TutoringSession struct {
	ID        string
	StudentID string
	Subject   string
	Summary   string
	// ComprehensionScore is the 0-10 analysis score, when one was produced.
	ComprehensionScore *int
	CreatedAt          time.Time
}

// PracticeSession is a completed practice set.
type PracticeSession struct {
	ID             string
	StudentID      string
	GoalID         string
	Subject        string
	CorrectAnswers int
	TotalProblems  int
	CreatedAt      time.Time
}

// Accuracy returns correct/total, or 0 for an empty session.
func (p PracticeSession) Accuracy() float64 {
	if p.TotalProblems <= 0 {
		return 0
	}
	return float64(p.CorrectAnswers) / float64(p.TotalProblems)
}

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

type Message struct {
	ID        string
	Role      Role
	Content   string
	CreatedAt time.Time
}

// Conversation is an AI tutoring chat. Messages are in creation order.
type Conversation struct {
	ID        string
	StudentID string
	Subject   string
	Messages  []Message
	CreatedAt time.Time
	UpdatedAt time.Time
}

// LastByRole returns up to n of the most recent messages with the given role,
// oldest first.
func (c Conversation) LastByRole(role Role, n int) []Message {
	var out []Message
	for i := len(c.Messages) - 1; i >= 0 && len(out) < n; i-- {
		if c.Messages[i].Role == role {
			out = append(out, c.Messages[i])
		}
	}
	reverse(out)
	return out
}

// CountByRole returns how many messages the conversation holds for role.
func (c Conversation) CountByRole(role Role) int {
	n := 0
	for _, m := range c.Messages {
		if m.Role == role {
			n++
		}
	}
	return n
}

// Last returns up to n of the most recent messages, oldest first.
func (c Conversation) Last(n int) []Message {
	if len(c.Messages) <= n {
		return c.Messages
	}
	return c.Messages[len(c.Messages)-n:]
}

func reverse(ms []Message) {
	for i, j := 0, len(ms)-1; i < j; i, j = i+1, j-1 {
		ms[i], ms[j] = ms[j], ms[i]
	}
}

// LearningProfile is a student's assessed standing in one subject.
type LearningProfile struct {
	ID               string
	StudentID        string
	Subject          string
	ProficiencyLevel int // 1-10
	Strengths        []string
	Weaknesses       []string
	UpdatedAt        time.Time
}

// Window is the half-open time range (From, To]. A zero From means the
// unbounded past and a zero To means the unbounded future.
type Window struct {
	From time.Time
	To   time.Time
}

// Trailing returns the window covering the d before asOf.
func Trailing(asOf time.Time, d time.Duration) Window {
	return Window{From: asOf.Add(-d), To: asOf}
}

// Contains reports whether t falls inside the window.
func (w Window) Contains(t time.Time) bool {
	if !w.From.IsZero() && !t.After(w.From) {
		return false
	}
	if !w.To.IsZero() && t.After(w.To) {
		return false
	}
	return true
}
