// Package handoff turns escalated conversations into tutor suggestions and
// bookings.
package handoff

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/abhisek/companion/internal/escalation"
	"github.com/abhisek/companion/internal/learning"
	"github.com/abhisek/companion/internal/logger"
	"github.com/abhisek/companion/internal/metrics"
	"github.com/abhisek/companion/internal/platform"
)

// ErrNoTutor is returned by Book when no tutor was given and none is
// available.
var ErrNoTutor = errors.New("no tutor available")

// Config holds the handoff policy.
type Config struct {
	SessionMinutes int `yaml:"session_minutes"`
	MaxSlots       int `yaml:"max_slots"`
}

// DefaultConfig returns the production policy.
func DefaultConfig() Config {
	return Config{SessionMinutes: 60, MaxSlots: 10}
}

// Conversations reads conversations and appends assistant messages.
type Conversations interface {
	Conversation(ctx context.Context, id string) (*learning.Conversation, error)
	AppendMessage(ctx context.Context, conversationID string, m *learning.Message) error
}

// Profiles returns a student's profile for a subject, or nil.
type Profiles interface {
	Profile(ctx context.Context, studentID, subject string) (*learning.LearningProfile, error)
}

// Students resolves students for their platform id.
type Students interface {
	Student(ctx context.Context, id string) (*learning.Student, error)
}

// Tutors is the booking side of the platform.
type Tutors interface {
	AvailableTutors(ctx context.Context, subject string, at time.Time, minutes int) ([]platform.Tutor, error)
	CreateBooking(ctx context.Context, req platform.BookingRequest) (*platform.Booking, error)
}

// Recorder stores handoffs.
type Recorder interface {
	Record(ctx context.Context, h *learning.Handoff) error
}

// Deps are the coordinator's collaborators. Tutors, Metrics, and Log may be
// nil.
type Deps struct {
	Detector      *escalation.Detector
	Conversations Conversations
	Profiles      Profiles
	Students      Students
	Tutors        Tutors
	Handoffs      Recorder
	Metrics       metrics.Sink
	Log           *logger.Logger
}

// SlotOption is one bookable slot offered to the student.
type SlotOption struct {
	TutorID         string    `json:"tutor_id"`
	TutorName       string    `json:"tutor_name"`
	StartsAt        time.Time `json:"datetime"`
	DurationMinutes int       `json:"duration"`
}

// Suggestion is the offer made when a conversation escalates.
type Suggestion struct {
	Context escalation.Context `json:"context"`
	Tutors  []platform.Tutor   `json:"available_tutors"`
	Slots   []SlotOption       `json:"available_slots"`
	Message string             `json:"message"`
}

// Coordinator runs escalation checks and bookings. Calls for the same
// conversation never overlap.
type Coordinator struct {
	cfg   Config
	deps  Deps
	locks *convLocks

	// Now is the clock; tests replace it.
	Now func() time.Time
}

// NewCoordinator creates a Coordinator.
func NewCoordinator(cfg Config, d Deps) *Coordinator {
	if d.Metrics == nil {
		d.Metrics = metrics.Nop{}
	}
	if d.Log == nil {
		d.Log = logger.Nop()
	}
	return &Coordinator{cfg: cfg, deps: d, locks: newConvLocks(), Now: time.Now}
}

// CheckAndSuggest evaluates a conversation. When it escalates, the student
// is offered tutors in the conversation and the suggestion is returned;
// otherwise the result is nil.
func (c *Coordinator) CheckAndSuggest(ctx context.Context, conversationID string) (*Suggestion, error) {
	defer c.locks.lock(conversationID)()

	conv, profile, err := c.load(ctx, conversationID)
	if err != nil {
		return nil, err
	}

	signals := c.deps.Detector.Detect(*conv, profile)
	c.deps.Metrics.EscalationChecked(signals.Any(), string(signals.Urgency()))
	if !signals.Any() {
		return nil, nil
	}

	ec := c.deps.Detector.BuildContext(ctx, *conv, profile)
	s := &Suggestion{Context: ec}
	s.Tutors = c.tutors(ctx, ec.Subject)
	s.Slots = c.slots(s.Tutors)

	msg, err := SuggestionMessage(ec)
	if err != nil {
		return nil, fmt.Errorf("render handoff message: %w", err)
	}
	s.Message = msg
	if err := c.deps.Conversations.AppendMessage(ctx, conv.ID, &learning.Message{
		Role:      learning.RoleAssistant,
		Content:   msg,
		CreatedAt: c.Now(),
	}); err != nil {
		return nil, fmt.Errorf("append handoff message: %w", err)
	}

	c.deps.Log.Info("handoff suggested", "conversation_id", conv.ID, "student_id", conv.StudentID,
		"urgency", ec.Urgency, "reasons", ec.Reasons, "tutors", len(s.Tutors))
	return s, nil
}

// Book books a tutor for the conversation at the given time and records the
// handoff. An empty tutorID picks the first available tutor.
func (c *Coordinator) Book(ctx context.Context, conversationID, tutorID string, at time.Time) (*learning.Handoff, error) {
	defer c.locks.lock(conversationID)()

	if c.deps.Tutors == nil {
		return nil, fmt.Errorf("booking: no tutor platform configured")
	}
	conv, profile, err := c.load(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	student, err := c.deps.Students.Student(ctx, conv.StudentID)
	if err != nil {
		return nil, fmt.Errorf("load student: %w", err)
	}

	ec := c.deps.Detector.BuildContext(ctx, *conv, profile)

	if tutorID == "" {
		tutors, err := c.deps.Tutors.AvailableTutors(ctx, ec.Subject, c.Now(), c.cfg.SessionMinutes)
		if err != nil {
			return nil, fmt.Errorf("find tutors: %w", err)
		}
		if len(tutors) == 0 {
			return nil, ErrNoTutor
		}
		tutorID = tutors[0].ID
	}

	notes, err := TutorNotes(ec)
	if err != nil {
		return nil, fmt.Errorf("render tutor notes: %w", err)
	}
	externalID := student.ExternalID
	if externalID == "" {
		externalID = student.ID
	}
	booking, err := c.deps.Tutors.CreateBooking(ctx, platform.BookingRequest{
		StudentID:   externalID,
		TutorID:     tutorID,
		Subject:     ec.Subject,
		ScheduledAt: at,
		Notes:       notes,
	})
	if err != nil {
		return nil, fmt.Errorf("create booking: %w", err)
	}

	h := &learning.Handoff{
		StudentID:         conv.StudentID,
		ConversationID:    conv.ID,
		TutorExternalID:   tutorID,
		Subject:           ec.Subject,
		Reasons:           reasonStrings(ec.Reasons),
		Urgency:           string(ec.Urgency),
		ContextSummary:    ec.Summary,
		FocusAreas:        ec.FocusAreas,
		BookingExternalID: booking.ID,
		ScheduledAt:       at,
		CreatedAt:         c.Now(),
	}
	if err := c.deps.Handoffs.Record(ctx, h); err != nil {
		c.deps.Log.Error("booking created but handoff not recorded", "booking_id", booking.ID, "conversation_id", conv.ID, "error", err)
		return nil, fmt.Errorf("record handoff: %w", err)
	}

	c.deps.Log.Info("tutor booked", "conversation_id", conv.ID, "tutor_id", tutorID, "booking_id", booking.ID)
	return h, nil
}

func (c *Coordinator) load(ctx context.Context, conversationID string) (*learning.Conversation, *learning.LearningProfile, error) {
	conv, err := c.deps.Conversations.Conversation(ctx, conversationID)
	if err != nil {
		return nil, nil, fmt.Errorf("load conversation: %w", err)
	}
	profile, err := c.deps.Profiles.Profile(ctx, conv.StudentID, conv.Subject)
	if err != nil {
		return nil, nil, fmt.Errorf("load profile: %w", err)
	}
	return conv, profile, nil
}

// tutors fetches available tutors; failures degrade to none.
func (c *Coordinator) tutors(ctx context.Context, subject string) []platform.Tutor {
	if c.deps.Tutors == nil {
		return nil
	}
	tutors, err := c.deps.Tutors.AvailableTutors(ctx, subject, c.Now(), c.cfg.SessionMinutes)
	if err != nil {
		c.deps.Log.Warn("tutor availability unavailable", "subject", subject, "error", err)
		c.deps.Metrics.CollaboratorError("platform")
		return nil
	}
	return tutors
}

// slots flattens tutor availability, earliest first.
func (c *Coordinator) slots(tutors []platform.Tutor) []SlotOption {
	var out []SlotOption
	for _, t := range tutors {
		for _, s := range t.Slots {
			out = append(out, SlotOption{
				TutorID:         t.ID,
				TutorName:       t.Name(),
				StartsAt:        s.StartsAt,
				DurationMinutes: s.DurationMinutes,
			})
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].StartsAt.Before(out[j].StartsAt) })
	if len(out) > c.cfg.MaxSlots {
		out = out[:c.cfg.MaxSlots]
	}
	return out
}
