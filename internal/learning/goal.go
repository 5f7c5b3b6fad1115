package learning

import "time"

// GoalStatus is the lifecycle state of a learning goal.
type GoalStatus string

const (
	GoalPending   GoalStatus = "pending"
	GoalActive    GoalStatus = "active"
	GoalCompleted GoalStatus = "completed"
	GoalPaused    GoalStatus = "paused"
)

// Valid reports whether s is a known status.
func (s GoalStatus) Valid() bool {
	switch s {
	case GoalPending, GoalActive, GoalCompleted, GoalPaused:
		return true
	}
	return false
}

type Milestone struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	Completed bool   `json:"completed"`
}

// SuggestedGoal is a follow-on subject offered when a goal completes.
type SuggestedGoal struct {
	Subject  string `json:"subject"`
	Reason   string `json:"reason"`
	Priority int    `json:"priority"`
}

type LearningGoal struct {
	ID                 string
	StudentID          string
	Subject            string
	Title              string
	Description        string
	TargetOutcome      string
	Status             GoalStatus
	ProgressPercentage int
	Milestones         []Milestone
	SuggestedNextGoals []SuggestedGoal
	CreatedAt          time.Time
	UpdatedAt          time.Time
	CompletedAt        *time.Time
}

// CompletedMilestones counts milestones marked complete.
func (g LearningGoal) CompletedMilestones() int {
	n := 0
	for _, m := range g.Milestones {
		if m.Completed {
			n++
		}
	}
	return n
}

// Handoff records an escalation from an AI conversation to a human tutor.
type Handoff struct {
	ID                string
	StudentID         string
	ConversationID    string
	TutorExternalID   string
	Subject           string
	Reasons           []string
	Urgency           string
	ContextSummary    string
	FocusAreas        []string
	BookingExternalID string
	ScheduledAt       time.Time
	CreatedAt         time.Time
}

// Nudge is a delivered retention notification.
type Nudge struct {
	ID        string
	StudentID string
	Type      string
	Title     string
	Message   string
	Payload   map[string]any
	CreatedAt time.Time
}
