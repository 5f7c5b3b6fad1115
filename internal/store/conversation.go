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

// ConversationRepo reads and appends AI tutoring conversations.
type ConversationRepo struct {
	s *Store
}

// Create inserts a conversation without messages.
func (r *ConversationRepo) Create(ctx context.Context, c *learning.Conversation) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now()
	}
	if c.UpdatedAt.IsZero() {
		c.UpdatedAt = c.CreatedAt
	}
	q, args := r.s.builder().Insert("conversations").
		Columns("id", "student_id", "subject", "created_at", "updated_at").
		Values(c.ID, c.StudentID, c.Subject, millis(c.CreatedAt), millis(c.UpdatedAt)).
		Query()
	if _, err := r.s.db.ExecContext(ctx, q, args...); err != nil {
		return fmt.Errorf("insert conversation: %w", err)
	}
	return nil
}

// Conversation loads a conversation with all its messages in creation order.
func (r *ConversationRepo) Conversation(ctx context.Context, id string) (*learning.Conversation, error) {
	b := r.s.builder()
	q, args := b.Select("id", "student_id", "subject", "created_at", "updated_at").
		From(b.Table("conversations")).Where(entsql.EQ("id", id)).Query()

	var c learning.Conversation
	var created, updated int64
	err := r.s.db.QueryRowContext(ctx, q, args...).Scan(&c.ID, &c.StudentID, &c.Subject, &created, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("conversation %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("query conversation: %w", err)
	}
	c.CreatedAt, c.UpdatedAt = fromMillis(created), fromMillis(updated)

	q, args = b.Select("id", "role", "content", "created_at").
		From(b.Table("messages")).
		Where(entsql.EQ("conversation_id", id)).
		OrderBy("created_at", "id").
		Query()
	rows, err := r.s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var m learning.Message
		var role string
		var at int64
		if err := rows.Scan(&m.ID, &role, &m.Content, &at); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		m.Role = learning.Role(role)
		m.CreatedAt = fromMillis(at)
		c.Messages = append(c.Messages, m)
	}
	return &c, rows.Err()
}

// AppendMessage adds a message and bumps the conversation's updated_at.
func (r *ConversationRepo) AppendMessage(ctx context.Context, conversationID string, m *learning.Message) error {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now()
	}

	tx, err := r.s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	b := r.s.builder()
	q, args := b.Insert("messages").
		Columns("id", "conversation_id", "role", "content", "created_at").
		Values(m.ID, conversationID, string(m.Role), m.Content, millis(m.CreatedAt)).
		Query()
	if _, err := tx.ExecContext(ctx, q, args...); err != nil {
		return fmt.Errorf("insert message: %w", err)
	}

	q, args = b.Update("conversations").
		Set("updated_at", millis(m.CreatedAt)).
		Where(entsql.EQ("id", conversationID)).
		Query()
	res, err := tx.ExecContext(ctx, q, args...)
	if err != nil {
		return fmt.Errorf("touch conversation: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("conversation %s: %w", conversationID, ErrNotFound)
	}
	return tx.Commit()
}
