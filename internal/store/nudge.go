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

// NudgeRepo records delivered nudges.
type NudgeRepo struct {
	s *Store
}

// Record stores a delivered nudge.
func (r *NudgeRepo) Record(ctx context.Context, n *learning.Nudge) error {
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now()
	}
	payload, err := marshalJSON(n.Payload, "{}")
	if err != nil {
		return err
	}
	q, args := r.s.builder().Insert("student_nudges").
		Columns("id", "student_id", "nudge_type", "title", "message", "payload", "created_at").
		Values(n.ID, n.StudentID, n.Type, n.Title, n.Message, payload, millis(n.CreatedAt)).
		Query()
	if _, err := r.s.db.ExecContext(ctx, q, args...); err != nil {
		return fmt.Errorf("insert nudge: %w", err)
	}
	return nil
}

// LastSent returns when a nudge of nudgeType was last sent to the student.
func (r *NudgeRepo) LastSent(ctx context.Context, studentID, nudgeType string) (time.Time, bool, error) {
	b := r.s.builder()
	q, args := b.Select(entsql.Max("created_at")).From(b.Table("student_nudges")).
		Where(entsql.And(entsql.EQ("student_id", studentID), entsql.EQ("nudge_type", nudgeType))).
		Query()
	var v sql.NullInt64
	if err := r.s.db.QueryRowContext(ctx, q, args...).Scan(&v); err != nil {
		return time.Time{}, false, fmt.Errorf("last nudge: %w", err)
	}
	if !v.Valid {
		return time.Time{}, false, nil
	}
	return fromMillis(v.Int64), true, nil
}

// List returns a student's nudges, newest first.
func (r *NudgeRepo) List(ctx context.Context, studentID string, limit int) ([]learning.Nudge, error) {
	b := r.s.builder()
	sel := b.Select("id", "student_id", "nudge_type", "title", "message", "payload", "created_at").
		From(b.Table("student_nudges")).
		Where(entsql.EQ("student_id", studentID)).
		OrderBy(entsql.Desc("created_at"))
	if limit > 0 {
		sel.Limit(limit)
	}
	q, args := sel.Query()

	rows, err := r.s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query nudges: %w", err)
	}
	defer rows.Close()

	var out []learning.Nudge
	for rows.Next() {
		var n learning.Nudge
		var payload string
		var at int64
		if err := rows.Scan(&n.ID, &n.StudentID, &n.Type, &n.Title, &n.Message, &payload, &at); err != nil {
			return nil, fmt.Errorf("scan nudge: %w", err)
		}
		if err := json.Unmarshal([]byte(payload), &n.Payload); err != nil {
			return nil, fmt.Errorf("decode nudge payload: %w", err)
		}
		n.CreatedAt = fromMillis(at)
		out = append(out, n)
	}
	return out, rows.Err()
}
