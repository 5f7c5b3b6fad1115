package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	entsql "entgo.io/ent/dialect/sql"
	"github.com/google/uuid"

	"github.com/abhisek/companion/internal/learning"
)

// ActivityRepo reads and records student activity.
type ActivityRepo struct {
	s *Store
}

// windowPreds turns a half-open window into predicates on col.
func windowPreds(col string, w learning.Window) []*entsql.Predicate {
	var ps []*entsql.Predicate
	if !w.From.IsZero() {
		ps = append(ps, entsql.GT(col, millis(w.From)))
	}
	if !w.To.IsZero() {
		ps = append(ps, entsql.LTE(col, millis(w.To)))
	}
	return ps
}

func (r *ActivityRepo) count(ctx context.Context, table string, preds ...*entsql.Predicate) (int, error) {
	b := r.s.builder()
	q, args := b.Select(entsql.Count("*")).From(b.Table(table)).Where(entsql.And(preds...)).Query()
	var n int
	if err := r.s.db.QueryRowContext(ctx, q, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("count %s: %w", table, err)
	}
	return n, nil
}

func (r *ActivityRepo) Student(ctx context.Context, id string) (*learning.Student, error) {
	b := r.s.builder()
	q, args := b.Select("id", "external_id", "name", "created_at").
		From(b.Table("students")).Where(entsql.EQ("id", id)).Query()

	var st learning.Student
	var created int64
	err := r.s.db.QueryRowContext(ctx, q, args...).Scan(&st.ID, &st.ExternalID, &st.Name, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("student %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("query student: %w", err)
	}
	st.EnrolledAt = fromMillis(created)
	return &st, nil
}

// StudentIDs pages through student ids in id order, returning up to limit ids
// greater than after.
func (r *ActivityRepo) StudentIDs(ctx context.Context, after string, limit int) ([]string, error) {
	b := r.s.builder()
	sel := b.Select("id").From(b.Table("students"))
	if after != "" {
		sel.Where(entsql.GT("id", after))
	}
	q, args := sel.OrderBy("id").Limit(limit).Query()

	rows, err := r.s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query student ids: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (r *ActivityRepo) CountTutoringSessions(ctx context.Context, studentID string, w learning.Window) (int, error) {
	preds := append([]*entsql.Predicate{entsql.EQ("student_id", studentID)}, windowPreds("created_at", w)...)
	return r.count(ctx, "tutoring_sessions", preds...)
}

func (r *ActivityRepo) CountPracticeSessions(ctx context.Context, studentID string, w learning.Window) (int, error) {
	preds := append([]*entsql.Predicate{entsql.EQ("student_id", studentID)}, windowPreds("created_at", w)...)
	return r.count(ctx, "practice_sessions", preds...)
}

func (r *ActivityRepo) CountConversations(ctx context.Context, studentID string, w learning.Window) (int, error) {
	preds := append([]*entsql.Predicate{entsql.EQ("student_id", studentID)}, windowPreds("updated_at", w)...)
	return r.count(ctx, "conversations", preds...)
}

func (r *ActivityRepo) CountMessages(ctx context.Context, studentID string, w learning.Window) (int, error) {
	b := r.s.builder()
	m := b.Table("messages")
	c := b.Table("conversations").As("c")
	preds := append([]*entsql.Predicate{entsql.EQ(c.C("student_id"), studentID)}, windowPreds(m.C("created_at"), w)...)

	q, args := b.Select(entsql.Count("*")).From(m).
		Join(c).On(m.C("conversation_id"), c.C("id")).
		Where(entsql.And(preds...)).
		Query()
	var n int
	if err := r.s.db.QueryRowContext(ctx, q, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("count messages: %w", err)
	}
	return n, nil
}

func (r *ActivityRepo) LastActivityAt(ctx context.Context, studentID string) (time.Time, bool, error) {
	sources := []struct{ table, col string }{
		{"tutoring_sessions", "created_at"},
		{"practice_sessions", "created_at"},
		{"conversations", "updated_at"},
	}

	var latest int64
	found := false
	b := r.s.builder()
	for _, src := range sources {
		q, args := b.Select(entsql.Max(src.col)).From(b.Table(src.table)).
			Where(entsql.EQ("student_id", studentID)).Query()
		var v sql.NullInt64
		if err := r.s.db.QueryRowContext(ctx, q, args...).Scan(&v); err != nil {
			return time.Time{}, false, fmt.Errorf("latest %s: %w", src.table, err)
		}
		if v.Valid && (!found || v.Int64 > latest) {
			latest, found = v.Int64, true
		}
	}
	if !found {
		return time.Time{}, false, nil
	}
	return fromMillis(latest), true, nil
}

// PracticeSessions returns a student's practice sessions in subject created
// after since, newest first.
func (r *ActivityRepo) PracticeSessions(ctx context.Context, studentID, subject string, since time.Time) ([]learning.PracticeSession, error) {
	b := r.s.builder()
	q, args := b.Select("id", "student_id", "goal_id", "subject", "correct_answers", "total_problems", "created_at").
		From(b.Table("practice_sessions")).
		Where(entsql.And(
			entsql.EQ("student_id", studentID),
			entsql.EQ("subject", subject),
			entsql.GT("created_at", millis(since)),
		)).
		OrderBy(entsql.Desc("created_at")).
		Query()

	rows, err := r.s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query practice sessions: %w", err)
	}
	defer rows.Close()

	var out []learning.PracticeSession
	for rows.Next() {
		var p learning.PracticeSession
		var created int64
		if err := rows.Scan(&p.ID, &p.StudentID, &p.GoalID, &p.Subject, &p.CorrectAnswers, &p.TotalProblems, &created); err != nil {
			return nil, fmt.Errorf("scan practice session: %w", err)
		}
		p.CreatedAt = fromMillis(created)
		out = append(out, p)
	}
	return out, rows.Err()
}

// TutoringSessions returns a student's tutoring sessions in subject created
// after since, newest first. A limit of 0 returns all of them.
func (r *ActivityRepo) TutoringSessions(ctx context.Context, studentID, subject string, since time.Time, limit int) ([]learning.TutoringSession, error) {
	b := r.s.builder()
	sel := b.Select("id", "student_id", "subject", "summary", "comprehension_score", "created_at").
		From(b.Table("tutoring_sessions")).
		Where(entsql.And(
			entsql.EQ("student_id", studentID),
			entsql.EQ("subject", subject),
			entsql.GT("created_at", millis(since)),
		)).
		OrderBy(entsql.Desc("created_at"))
	if limit > 0 {
		sel.Limit(limit)
	}
	q, args := sel.Query()

	rows, err := r.s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query tutoring sessions: %w", err)
	}
	defer rows.Close()

	var out []learning.TutoringSession
	for rows.Next() {
		var ts learning.TutoringSession
		var score sql.NullInt64
		var created int64
		if err := rows.Scan(&ts.ID, &ts.StudentID, &ts.Subject, &ts.Summary, &score, &created); err != nil {
			return nil, fmt.Errorf("scan tutoring session: %w", err)
		}
		if score.Valid {
			v := int(score.Int64)
			ts.ComprehensionScore = &v
		}
		ts.CreatedAt = fromMillis(created)
		out = append(out, ts)
	}
	return out, rows.Err()
}

// CreateStudent inserts a student, assigning an id when empty.
func (r *ActivityRepo) CreateStudent(ctx context.Context, st *learning.Student) error {
	if st.ID == "" {
		st.ID = uuid.NewString()
	}
	if st.EnrolledAt.IsZero() {
		st.EnrolledAt = time.Now()
	}
	q, args := r.s.builder().Insert("students").
		Columns("id", "external_id", "name", "created_at").
		Values(st.ID, st.ExternalID, st.Name, millis(st.EnrolledAt)).
		Query()
	if _, err := r.s.db.ExecContext(ctx, q, args...); err != nil {
		return fmt.Errorf("insert student: %w", err)
	}
	return nil
}

// RecordTutoringSession inserts a completed tutoring session.
func (r *ActivityRepo) RecordTutoringSession(ctx context.Context, ts *learning.TutoringSession) error {
	if ts.ID == "" {
		ts.ID = uuid.NewString()
	}
	if ts.CreatedAt.IsZero() {
		ts.CreatedAt = time.Now()
	}
	var score sql.NullInt64
	if ts.ComprehensionScore != nil {
		score = sql.NullInt64{Int64: int64(*ts.ComprehensionScore), Valid: true}
	}
	q, args := r.s.builder().Insert("tutoring_sessions").
		Columns("id", "student_id", "subject", "summary", "comprehension_score", "created_at").
		Values(ts.ID, ts.StudentID, ts.Subject, ts.Summary, score, millis(ts.CreatedAt)).
		Query()
	if _, err := r.s.db.ExecContext(ctx, q, args...); err != nil {
		return fmt.Errorf("insert tutoring session: %w", err)
	}
	return nil
}

// RecordPracticeSession inserts a completed practice session.
func (r *ActivityRepo) RecordPracticeSession(ctx context.Context, p *learning.PracticeSession) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now()
	}
	q, args := r.s.builder().Insert("practice_sessions").
		Columns("id", "student_id", "goal_id", "subject", "correct_answers", "total_problems", "created_at").
		Values(p.ID, p.StudentID, p.GoalID, p.Subject, p.CorrectAnswers, p.TotalProblems, millis(p.CreatedAt)).
		Query()
	if _, err := r.s.db.ExecContext(ctx, q, args...); err != nil {
		return fmt.Errorf("insert practice session: %w", err)
	}
	return nil
}

func (r *ActivityRepo) GoalsByStatus(ctx context.Context, studentID string, status learning.GoalStatus) ([]learning.LearningGoal, error) {
	return r.s.Goals().GoalsByStatus(ctx, studentID, status)
}
