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

// GoalRepo reads and writes learning goals.
type GoalRepo struct {
	s *Store
}

var goalColumns = []string{
	"id", "student_id", "subject", "title", "description", "target_outcome", "status",
	"progress_percentage", "milestones", "suggested_next_goals", "created_at", "updated_at", "completed_at",
}

// Create inserts a goal, assigning an id and timestamps when empty.
func (r *GoalRepo) Create(ctx context.Context, g *learning.LearningGoal) error {
	if g.ID == "" {
		g.ID = uuid.NewString()
	}
	if g.Status == "" {
		g.Status = learning.GoalActive
	}
	if g.CreatedAt.IsZero() {
		g.CreatedAt = time.Now()
	}
	if g.UpdatedAt.IsZero() {
		g.UpdatedAt = g.CreatedAt
	}
	milestones, err := marshalJSON(g.Milestones, "[]")
	if err != nil {
		return err
	}
	suggestions, err := marshalJSON(g.SuggestedNextGoals, "[]")
	if err != nil {
		return err
	}

	q, args := r.s.builder().Insert("learning_goals").
		Columns(goalColumns...).
		Values(g.ID, g.StudentID, g.Subject, g.Title, g.Description, g.TargetOutcome, string(g.Status),
			g.ProgressPercentage, milestones, suggestions, millis(g.CreatedAt), millis(g.UpdatedAt),
			nullMillis(g.CompletedAt)).
		Query()
	if _, err := r.s.db.ExecContext(ctx, q, args...); err != nil {
		return fmt.Errorf("insert goal: %w", err)
	}
	return nil
}

// Goal returns one goal, or ErrNotFound.
func (r *GoalRepo) Goal(ctx context.Context, id string) (*learning.LearningGoal, error) {
	b := r.s.builder()
	q, args := b.Select(goalColumns...).From(b.Table("learning_goals")).Where(entsql.EQ("id", id)).Query()
	g, err := scanGoal(r.s.db.QueryRowContext(ctx, q, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("goal %s: %w", id, ErrNotFound)
	}
	return g, err
}

// GoalsByStatus returns a student's goals in the given status, oldest first.
func (r *GoalRepo) GoalsByStatus(ctx context.Context, studentID string, status learning.GoalStatus) ([]learning.LearningGoal, error) {
	return r.list(ctx, entsql.And(entsql.EQ("student_id", studentID), entsql.EQ("status", string(status))))
}

// CompletedBetween returns a student's goals completed inside w.
func (r *GoalRepo) CompletedBetween(ctx context.Context, studentID string, w learning.Window) ([]learning.LearningGoal, error) {
	preds := append([]*entsql.Predicate{
		entsql.EQ("student_id", studentID),
		entsql.EQ("status", string(learning.GoalCompleted)),
	}, windowPreds("completed_at", w)...)
	return r.list(ctx, entsql.And(preds...))
}

// CountCreatedAfter counts a student's goals created after t.
func (r *GoalRepo) CountCreatedAfter(ctx context.Context, studentID string, t time.Time) (int, error) {
	return r.s.Activity().count(ctx, "learning_goals",
		entsql.EQ("student_id", studentID), entsql.GT("created_at", millis(t)))
}

func (r *GoalRepo) list(ctx context.Context, where *entsql.Predicate) ([]learning.LearningGoal, error) {
	b := r.s.builder()
	q, args := b.Select(goalColumns...).From(b.Table("learning_goals")).
		Where(where).OrderBy("created_at", "id").Query()

	rows, err := r.s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query goals: %w", err)
	}
	defer rows.Close()

	var out []learning.LearningGoal
	for rows.Next() {
		g, err := scanGoal(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *g)
	}
	return out, rows.Err()
}

// UpdateProgress writes the progress percentage of a goal that is not
// completed. It returns ErrGoalCompleted when the goal completed before the
// write landed, and ErrNotFound when there is no such goal.
func (r *GoalRepo) UpdateProgress(ctx context.Context, id string, progress int, at time.Time) error {
	q, args := r.s.builder().Update("learning_goals").
		Set("progress_percentage", progress).
		Set("updated_at", millis(at)).
		Where(entsql.And(
			entsql.EQ("id", id),
			entsql.NEQ("status", string(learning.GoalCompleted)),
		)).
		Query()
	res, err := r.s.db.ExecContext(ctx, q, args...)
	if err != nil {
		return fmt.Errorf("update goal progress: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update goal progress: %w", err)
	}
	if n > 0 {
		return nil
	}
	if _, err := r.Goal(ctx, id); err != nil {
		return err
	}
	return fmt.Errorf("goal %s: %w", id, ErrGoalCompleted)
}

// GoalCompletion is the set of fields written when a goal completes.
type GoalCompletion struct {
	Progress    int
	CompletedAt time.Time
	Suggestions []learning.SuggestedGoal
}

// Complete marks a goal completed if, and only if, it is not completed yet.
// It reports whether this call performed the transition.
func (r *GoalRepo) Complete(ctx context.Context, id string, c GoalCompletion) (bool, error) {
	suggestions, err := marshalJSON(c.Suggestions, "[]")
	if err != nil {
		return false, err
	}
	q, args := r.s.builder().Update("learning_goals").
		Set("status", string(learning.GoalCompleted)).
		Set("progress_percentage", c.Progress).
		Set("completed_at", millis(c.CompletedAt)).
		Set("updated_at", millis(c.CompletedAt)).
		Set("suggested_next_goals", suggestions).
		Where(entsql.And(
			entsql.EQ("id", id),
			entsql.NEQ("status", string(learning.GoalCompleted)),
		)).
		Query()
	res, err := r.s.db.ExecContext(ctx, q, args...)
	if err != nil {
		return false, fmt.Errorf("complete goal: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("complete goal: %w", err)
	}
	return n == 1, nil
}

func scanGoal(row rowScanner) (*learning.LearningGoal, error) {
	var g learning.LearningGoal
	var status, milestones, suggestions string
	var created, updated int64
	var completed sql.NullInt64
	err := row.Scan(&g.ID, &g.StudentID, &g.Subject, &g.Title, &g.Description, &g.TargetOutcome, &status,
		&g.ProgressPercentage, &milestones, &suggestions, &created, &updated, &completed)
	if err != nil {
		return nil, err
	}
	g.Status = learning.GoalStatus(status)
	g.CreatedAt = fromMillis(created)
	g.UpdatedAt = fromMillis(updated)
	g.CompletedAt = timePtr(completed)
	if err := json.Unmarshal([]byte(milestones), &g.Milestones); err != nil {
		return nil, fmt.Errorf("decode milestones of goal %s: %w", g.ID, err)
	}
	if err := json.Unmarshal([]byte(suggestions), &g.SuggestedNextGoals); err != nil {
		return nil, fmt.Errorf("decode suggestions of goal %s: %w", g.ID, err)
	}
	return &g, nil
}

// marshalJSON encodes v, using empty for nil slices and maps.
func marshalJSON(v any, empty string) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("encode json: %w", err)
	}
	if string(b) == "null" {
		return empty, nil
	}
	return string(b), nil
}
