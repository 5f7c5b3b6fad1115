package store

import (
	"context"
	"database/sql"
	"fmt"
)

// tables is the DDL for every table the engine reads or writes. Types are
// kept to the subset SQLite and Postgres agree on.
var tables = []string{
	`CREATE TABLE IF NOT EXISTS students (
		id TEXT PRIMARY KEY,
		external_id TEXT NOT NULL DEFAULT '',
		name TEXT NOT NULL DEFAULT '',
		created_at BIGINT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS tutoring_sessions (
		id TEXT PRIMARY KEY,
		student_id TEXT NOT NULL REFERENCES students(id),
		subject TEXT NOT NULL DEFAULT '',
		summary TEXT NOT NULL DEFAULT '',
		comprehension_score INTEGER,
		created_at BIGINT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_tutoring_sessions_student ON tutoring_sessions (student_id, created_at)`,
	`CREATE TABLE IF NOT EXISTS practice_sessions (
		id TEXT PRIMARY KEY,
		student_id TEXT NOT NULL REFERENCES students(id),
		goal_id TEXT NOT NULL DEFAULT '',
		subject TEXT NOT NULL DEFAULT '',
		correct_answers INTEGER NOT NULL DEFAULT 0,
		total_problems INTEGER NOT NULL DEFAULT 0,
		created_at BIGINT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_practice_sessions_student ON practice_sessions (student_id, created_at)`,
	`CREATE TABLE IF NOT EXISTS conversations (
		id TEXT PRIMARY KEY,
		student_id TEXT NOT NULL REFERENCES students(id),
		subject TEXT NOT NULL DEFAULT '',
		created_at BIGINT NOT NULL,
		updated_at BIGINT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_conversations_student ON conversations (student_id, updated_at)`,
	`CREATE TABLE IF NOT EXISTS messages (
		id TEXT PRIMARY KEY,
		conversation_id TEXT NOT NULL REFERENCES conversations(id),
		role TEXT NOT NULL,
		content TEXT NOT NULL,
		created_at BIGINT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_messages_conversation ON messages (conversation_id, created_at)`,
	`CREATE TABLE IF NOT EXISTS learning_goals (
		id TEXT PRIMARY KEY,
		student_id TEXT NOT NULL REFERENCES students(id),
		subject TEXT NOT NULL,
		title TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		target_outcome TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL,
		progress_percentage INTEGER NOT NULL DEFAULT 0,
		milestones TEXT NOT NULL DEFAULT '[]',
		suggested_next_goals TEXT NOT NULL DEFAULT '[]',
		created_at BIGINT NOT NULL,
		updated_at BIGINT NOT NULL,
		completed_at BIGINT
	)`,
	`CREATE INDEX IF NOT EXISTS idx_learning_goals_student ON learning_goals (student_id, status)`,
	`CREATE TABLE IF NOT EXISTS learning_profiles (
		id TEXT PRIMARY KEY,
		student_id TEXT NOT NULL REFERENCES students(id),
		subject TEXT NOT NULL,
		proficiency_level INTEGER NOT NULL DEFAULT 1,
		strengths TEXT NOT NULL DEFAULT '[]',
		weaknesses TEXT NOT NULL DEFAULT '[]',
		updated_at BIGINT NOT NULL,
		UNIQUE (student_id, subject)
	)`,
	`CREATE TABLE IF NOT EXISTS student_nudges (
		id TEXT PRIMARY KEY,
		student_id TEXT NOT NULL REFERENCES students(id),
		nudge_type TEXT NOT NULL,
		title TEXT NOT NULL DEFAULT '',
		message TEXT NOT NULL DEFAULT '',
		payload TEXT NOT NULL DEFAULT '{}',
		created_at BIGINT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_student_nudges_student ON student_nudges (student_id, nudge_type, created_at)`,
	`CREATE TABLE IF NOT EXISTS tutor_handoffs (
		id TEXT PRIMARY KEY,
		student_id TEXT NOT NULL REFERENCES students(id),
		conversation_id TEXT NOT NULL,
		tutor_external_id TEXT NOT NULL DEFAULT '',
		subject TEXT NOT NULL DEFAULT '',
		reasons TEXT NOT NULL DEFAULT '[]',
		urgency TEXT NOT NULL DEFAULT 'low',
		context_summary TEXT NOT NULL DEFAULT '',
		focus_areas TEXT NOT NULL DEFAULT '[]',
		booking_external_id TEXT NOT NULL DEFAULT '',
		scheduled_at BIGINT,
		created_at BIGINT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS llm_request_events (
		id BIGINT PRIMARY KEY,
		created_at BIGINT NOT NULL,
		provider TEXT NOT NULL,
		model TEXT NOT NULL,
		purpose TEXT NOT NULL,
		input_tokens INTEGER NOT NULL DEFAULT 0,
		output_tokens INTEGER NOT NULL DEFAULT 0,
		latency_ms BIGINT NOT NULL DEFAULT 0,
		success BOOLEAN NOT NULL,
		error_message TEXT NOT NULL DEFAULT '',
		request_body TEXT NOT NULL DEFAULT '',
		response_body TEXT NOT NULL DEFAULT ''
	)`,
}

func migrate(ctx context.Context, db *sql.DB) error {
	for _, stmt := range tables {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("exec %.40q: %w", stmt, err)
		}
	}
	return nil
}
