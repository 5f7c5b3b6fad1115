package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	entsql "entgo.io/ent/dialect/sql"
	"github.com/google/uuid"

	"github.com/abhisek/companion/internal/learning"
)

// HandoffRepo records tutor handoffs.
type HandoffRepo struct {
	s *Store
}

var handoffColumns = []string{
	"id", "student_id", "conversation_id", "tutor_external_id", "subject", "reasons", "urgency",
	"context_summary", "focus_areas", "booking_external_id", "scheduled_at", "created_at",
}

// Record stores a handoff.
func (r *HandoffRepo) Record(ctx context.Context, h *learning.Handoff) error {
	if h.ID == "" {
		h.ID = uuid.NewString()
	}
	if h.CreatedAt.IsZero() {
		h.CreatedAt = time.Now()
	}
	reasons, err := marshalJSON(h.Reasons, "[]")
	if err != nil {
		return err
	}
	focus, err := marshalJSON(h.FocusAreas, "[]")
	if err != nil {
		return err
	}
	q, args := r.s.builder().Insert("tutor_handoffs").
		Columns(handoffColumns...).
		Values(h.ID, h.StudentID, h.ConversationID, h.TutorExternalID, h.Subject, reasons, h.Urgency,
			h.ContextSummary, focus, h.BookingExternalID, nullMillis(&h.ScheduledAt), millis(h.CreatedAt)).
		Query()
	if _, err := r.s.db.ExecContext(ctx, q, args...); err != nil {
		return fmt.Errorf("insert handoff: %w", err)
	}
	return nil
}

// ByConversation returns the handoffs raised from one conversation, oldest
// first.
func (r *HandoffRepo) ByConversation(ctx context.Context, conversationID string) ([]learning.Handoff, error) {
	b := r.s.builder()
	q, args := b.Select(handoffColumns...).From(b.Table("tutor_handoffs")).
		Where(entsql.EQ("conversation_id", conversationID)).
		OrderBy("created_at").
		Query()

	rows, err := r.s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query handoffs: %w", err)
	}
	defer rows.Close()

	var out []learning.Handoff
	for rows.Next() {
		var h learning.Handoff
		var reasons, focus string
		var scheduled sql.NullInt64
		var created int64
		if err := rows.Scan(&h.ID, &h.StudentID, &h.ConversationID, &h.TutorExternalID, &h.Subject, &reasons,
			&h.Urgency, &h.ContextSummary, &focus, &h.BookingExternalID, &scheduled, &created); err != nil {
			return nil, fmt.Errorf("scan handoff: %w", err)
		}
		if err := json.Unmarshal([]byte(reasons), &h.Reasons); err != nil {
			return nil, fmt.Errorf("decode reasons: %w", err)
		}
		if err := json.Unmarshal([]byte(focus), &h.FocusAreas); err != nil {
			return nil, fmt.Errorf("decode focus areas: %w", err)
		}
		if t := timePtr(scheduled); t != nil {
			h.ScheduledAt = *t
		}
		h.CreatedAt = fromMillis(created)
		out = append(out, h)
	}
	return out, rows.Err()
}
