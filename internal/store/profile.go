package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	entsql "entgo.io/ent/dialect/sql"
	"github.com/google/uuid"

	"github.com/abhisek/companion/internal/learning"
)

// ProfileRepo reads and writes per-subject learning profiles.
type ProfileRepo struct {
	s *Store
}

// Profile returns the student's profile for subject, or (nil, nil) when the
// student has none.
func (r *ProfileRepo) Profile(ctx context.Context, studentID, subject string) (*learning.LearningProfile, error) {
	b := r.s.builder()
	q, args := b.Select("id", "student_id", "subject", "proficiency_level", "strengths", "weaknesses", "updated_at").
		From(b.Table("learning_profiles")).
		Where(entsql.And(entsql.EQ("student_id", studentID), entsql.EQ("subject", subject))).
		Query()

	var p learning.LearningProfile
	var strengths, weaknesses string
	var updated int64
	err := r.s.db.QueryRowContext(ctx, q, args...).
		Scan(&p.ID, &p.StudentID, &p.Subject, &p.ProficiencyLevel, &strengths, &weaknesses, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query profile: %w", err)
	}
	if err := json.Unmarshal([]byte(strengths), &p.Strengths); err != nil {
		return nil, fmt.Errorf("decode strengths: %w", err)
	}
	if err := json.Unmarshal([]byte(weaknesses), &p.Weaknesses); err != nil {
		return nil, fmt.Errorf("decode weaknesses: %w", err)
	}
	p.UpdatedAt = fromMillis(updated)
	return &p, nil
}

// Upsert writes a profile, replacing any existing one for the same student
// and subject.
func (r *ProfileRepo) Upsert(ctx context.Context, p *learning.LearningProfile) error {
	strengths, err := marshalJSON(p.Strengths, "[]")
	if err != nil {
		return err
	}
	weaknesses, err := marshalJSON(p.Weaknesses, "[]")
	if err != nil {
		return err
	}
	if p.UpdatedAt.IsZero() {
		p.UpdatedAt = time.Now()
	}

	b := r.s.builder()
	q, args := b.Update("learning_profiles").
		Set("proficiency_level", p.ProficiencyLevel).
		Set("strengths", strengths).
		Set("weaknesses", weaknesses).
		Set("updated_at", millis(p.UpdatedAt)).
		Where(entsql.And(entsql.EQ("student_id", p.StudentID), entsql.EQ("subject", p.Subject))).
		Query()
	res, err := r.s.db.ExecContext(ctx, q, args...)
	if err != nil {
		return fmt.Errorf("update profile: %w", err)
	}
	if n, _ := res.RowsAffected(); n > 0 {
		return nil
	}

	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	q, args = b.Insert("learning_profiles").
		Columns("id", "student_id", "subject", "proficiency_level", "strengths", "weaknesses", "updated_at").
		Values(p.ID, p.StudentID, p.Subject, p.ProficiencyLevel, strengths, weaknesses, millis(p.UpdatedAt)).
		Query()
	if _, err := r.s.db.ExecContext(ctx, q, args...); err != nil {
		return fmt.Errorf("insert profile: %w", err)
	}
	return nil
}
