package handoff

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

	"github.com/abhisek/companion/internal/escalation"
	"github.com/abhisek/companion/internal/learning"
	"github.com/abhisek/companion/internal/platform"
	"github.com/abhisek/companion/internal/store"
)

var now = time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC)

type fakeTutors struct {
	mu       sync.Mutex
	tutors   []platform.Tutor
	err      error
	bookings []platform.BookingRequest
}

func (f *fakeTutors) AvailableTutors(_ context.Context, _ string, _ time.Time, _ int) ([]platform.Tutor, error) {
	return f.tutors, f.err
}

func (f *fakeTutors) CreateBooking(_ context.Context, req platform.BookingRequest) (*platform.Booking, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.bookings = append(f.bookings, req)
	return &platform.Booking{ID: fmt.Sprintf("bk-%d", len(f.bookings)), TutorID: req.TutorID, ScheduledAt: req.ScheduledAt}, nil
}

type stubSummary string

func (s stubSummary) Summarize(context.Context, learning.Conversation) (string, error) {
	return string(s), nil
}

type fixture struct {
	store  *store.Store
	tutors *fakeTutors
	coord  *Coordinator
}

func newFixture(t *testing.T, cfg Config) *fixture {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	s, err := store.Open(fmt.Sprintf("file:handoff_%s?mode=memory&cache=shared", name))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	det, err := escalation.NewDetector(escalation.DefaultConfig(), stubSummary("Student is stuck on limiting reagents."), nil, nil)
	require.NoError(t, err)

	f := &fixture{store: s, tutors: &fakeTutors{}}
	f.coord = NewCoordinator(cfg, Deps{
		Detector:      det,
		Conversations: s.Conversations(),
		Profiles:      s.Profiles(),
		Students:      s.Activity(),
		Tutors:        f.tutors,
		Handoffs:      s.Handoffs(),
	})
	f.coord.Now = func() time.Time { return now }

	err = s.Activity().CreateStudent(context.Background(), &learning.Student{ID: "s1", ExternalID: "nerdy-42", Name: "Riya Shah", EnrolledAt: now.Add(-30 * 24 * time.Hour)})
	require.NoError(t, err)
	return f
}

func (f *fixture) conversation(t *testing.T, lines ...string) string {
	t.Helper()
	ctx := context.Background()
	c := &learning.Conversation{StudentID: "s1", Subject: "chemistry", CreatedAt: now.Add(-time.Hour)}
	require.NoError(t, f.store.Conversations().Create(ctx, c))
	for i, l := range lines {
		role := learning.RoleUser
		if i%2 == 1 {
			role = learning.RoleAssistant
		}
		err := f.store.Conversations().AppendMessage(ctx, c.ID, &learning.Message{
			Role: role, Content: l, CreatedAt: now.Add(-time.Hour + time.Duration(i)*time.Minute),
		})
		require.NoError(t, err)
	}
	return c.ID
}

func frustrated(f *fixture, t *testing.T) string {
	return f.conversation(t,
		"How do limiting reagents work?",
		"The limiting reagent is the one that runs out first.",
		"I don't understand. How do limiting reagents work?",
		"Compare the mole ratios of each reactant.",
		"This doesn't make sense!!",
	)
}

func tutor(id, first string, starts ...time.Time) platform.Tutor {
	t := platform.Tutor{ID: id, FirstName: first, LastName: "Lee"}
	for _, s := range starts {
		t.Slots = append(t.Slots, platform.Slot{StartsAt: s, DurationMinutes: 60})
	}
	return t
}

func TestCheckAndSuggest_NoEscalation(t *testing.T) {
	f := newFixture(t, DefaultConfig())
	id := f.conversation(t, "What is a mole?", "A mole is 6.022e23 particles.")

	s, err := f.coord.CheckAndSuggest(context.Background(), id)
	require.NoError(t, err)
	assert.Nil(t, s)

	conv, err := f.store.Conversations().Conversation(context.Background(), id)
	require.NoError(t, err)
	assert.Len(t, conv.Messages, 2)
}

func TestCheckAndSuggest_Escalated(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxSlots = 3
	f := newFixture(t, cfg)
	f.tutors.tutors = []platform.Tutor{
		tutor("t1", "Ana", now.Add(5*time.Hour), now.Add(time.Hour)),
		tutor("t2", "Ben", now.Add(2*time.Hour), now.Add(9*time.Hour)),
	}
	id := frustrated(f, t)

	s, err := f.coord.CheckAndSuggest(context.Background(), id)
	require.NoError(t, err)
	require.NotNil(t, s)

	assert.Equal(t, escalation.UrgencyMedium, s.Context.Urgency)
	assert.Contains(t, s.Context.Reasons, escalation.ReasonFrustration)
	assert.Equal(t, "Student is stuck on limiting reagents.", s.Context.Summary)
	assert.Len(t, s.Tutors, 2)

	require.Len(t, s.Slots, 3)
	assert.Equal(t, "t1", s.Slots[0].TutorID)
	assert.Equal(t, "Ana Lee", s.Slots[0].TutorName)
	assert.True(t, s.Slots[0].StartsAt.Equal(now.Add(time.Hour)))
	assert.Equal(t, "t2", s.Slots[1].TutorID)
	assert.Equal(t, "t1", s.Slots[2].TutorID)

	assert.True(t, strings.HasPrefix(s.Message, "This is a great question"))
	assert.Contains(t, s.Message, "available tutors for Chemistry?")

	conv, err := f.store.Conversations().Conversation(context.Background(), id)
	require.NoError(t, err)
	require.Len(t, conv.Messages, 6)
	last := conv.Messages[5]
	assert.Equal(t, learning.RoleAssistant, last.Role)
	assert.Equal(t, s.Message, last.Content)
}

func TestCheckAndSuggest_PlatformDown(t *testing.T) {
	f := newFixture(t, DefaultConfig())
	f.tutors.err = &platform.APIError{StatusCode: 503, Body: "maintenance"}
	id := frustrated(f, t)

	s, err := f.coord.CheckAndSuggest(context.Background(), id)
	require.NoError(t, err)
	require.NotNil(t, s)
	assert.Empty(t, s.Tutors)
	assert.Empty(t, s.Slots)
	assert.NotEmpty(t, s.Message)
}

func TestCheckAndSuggest_UnknownConversation(t *testing.T) {
	f := newFixture(t, DefaultConfig())
	_, err := f.coord.CheckAndSuggest(context.Background(), "missing")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestBook_DefaultTutor(t *testing.T) {
	f := newFixture(t, DefaultConfig())
	f.tutors.tutors = []platform.Tutor{tutor("t9", "Cam", now.Add(time.Hour))}
	id := frustrated(f, t)
	at := now.Add(24 * time.Hour)

	h, err := f.coord.Book(context.Background(), id, "", at)
	require.NoError(t, err)
	assert.Equal(t, "t9", h.TutorExternalID)
	assert.Equal(t, "bk-1", h.BookingExternalID)
	assert.Equal(t, "medium", h.Urgency)
	assert.Contains(t, h.Reasons, "student_frustration")

	require.Len(t, f.tutors.bookings, 1)
	req := f.tutors.bookings[0]
	assert.Equal(t, "nerdy-42", req.StudentID)
	assert.Equal(t, "chemistry", req.Subject)
	assert.True(t, req.ScheduledAt.Equal(at))
	assert.Contains(t, req.Notes, "**Summary:** Student is stuck on limiting reagents.")
	assert.Contains(t, req.Notes, "**Urgency:** medium")
	assert.Contains(t, req.Notes, "**Escalation Reason:** student_frustration")

	recorded, err := f.store.Handoffs().ByConversation(context.Background(), id)
	require.NoError(t, err)
	require.Len(t, recorded, 1)
	assert.Equal(t, "bk-1", recorded[0].BookingExternalID)
}

func TestBook_ExplicitTutor(t *testing.T) {
	f := newFixture(t, DefaultConfig())
	id := frustrated(f, t)

	h, err := f.coord.Book(context.Background(), id, "t3", now.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, "t3", h.TutorExternalID)
}

func TestBook_NoTutor(t *testing.T) {
	f := newFixture(t, DefaultConfig())
	id := frustrated(f, t)

	_, err := f.coord.Book(context.Background(), id, "", now.Add(time.Hour))
	assert.True(t, errors.Is(err, ErrNoTutor))
	assert.Empty(t, f.tutors.bookings)
}

func TestConvLocks_Serialize(t *testing.T) {
	l := newConvLocks()
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		active  int
		maxSeen int
	)
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := l.lock("c1")
			mu.Lock()
			active++
			maxSeen = max(maxSeen, active)
			mu.Unlock()
			time.Sleep(time.Millisecond)
			mu.Lock()
			active--
			mu.Unlock()
			unlock()
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, maxSeen)
	assert.Equal(t, 0, l.len())
}

func TestTutorNotes_Defaults(t *testing.T) {
	notes, err := TutorNotes(escalation.Context{Subject: "ap_chemistry", Urgency: escalation.UrgencyLow})
	require.NoError(t, err)
	assert.Contains(t, notes, "working with AI companion on: Ap chemistry")
	assert.Contains(t, notes, "**Summary:** Not available")
	assert.Contains(t, notes, "- General review")
}

func TestSuggestionMessage_Focus(t *testing.T) {
	msg, err := SuggestionMessage(escalation.Context{
		Subject:    "algebra",
		Urgency:    escalation.UrgencyHigh,
		FocusAreas: []string{"factoring", "quadratics", "graphing"},
	})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(msg, "I can see you're working hard"))
	assert.Contains(t, msg, "- Work through factoring and quadratics in detail\n- Get personalized")
}
