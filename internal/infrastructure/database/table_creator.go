// Package database provides schema instantiation for the durable store
package database

import (
	"database/sql"
	"fmt"
)

// TableCreator handles the creation of the durable store schema.
type TableCreator struct{}

// NewTableCreator creates a new TableCreator.
func NewTableCreator() *TableCreator {
	return &TableCreator{}
}

// CreateSchema executes all necessary queries to build the tables and indexes.
func (tc *TableCreator) CreateSchema(db *sql.DB) error {
	for _, tableSQL := range tables {
		if _, err := db.Exec(tableSQL); err != nil {
			return fmt.Errorf("failed to create table for query [%s]: %w", tableSQL, err)
		}
	}

	for _, indexSQL := range indexes {
		if _, err := db.Exec(indexSQL); err != nil {
			return fmt.Errorf("failed to create index for query [%s]: %w", indexSQL, err)
		}
	}
	return nil
}

var tables = []string{
	`CREATE TABLE IF NOT EXISTS learners (id TEXT PRIMARY KEY, display_name TEXT NOT NULL, email TEXT NOT NULL UNIQUE, password_hash TEXT NOT NULL, timezone TEXT NOT NULL DEFAULT 'UTC', has_premium BOOLEAN DEFAULT 0, created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP, changed TIMESTAMP)`,
	`CREATE TABLE IF NOT EXISTS reward_grants (id TEXT PRIMARY KEY, user_id TEXT NOT NULL REFERENCES learners(id), activity_key TEXT NOT NULL, amount INTEGER NOT NULL, source TEXT NOT NULL, metadata TEXT, sync_state TEXT NOT NULL DEFAULT 'confirmed', created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP, UNIQUE(user_id, activity_key))`,
	`CREATE TABLE IF NOT EXISTS xp_totals (user_id TEXT PRIMARY KEY REFERENCES learners(id), total_xp INTEGER NOT NULL DEFAULT 0, changed TIMESTAMP)`,
	`CREATE TABLE IF NOT EXISTS progress (id TEXT PRIMARY KEY, user_id TEXT NOT NULL REFERENCES learners(id), module_slug TEXT NOT NULL, lesson_slug TEXT NOT NULL, step_id TEXT NOT NULL, completed BOOLEAN DEFAULT 0, score INTEGER NOT NULL DEFAULT 0, completed_at TIMESTAMP, UNIQUE(user_id, module_slug, lesson_slug, step_id))`,
	`CREATE TABLE IF NOT EXISTS streaks (user_id TEXT PRIMARY KEY REFERENCES learners(id), count INTEGER NOT NULL DEFAULT 0, last_active_day TEXT, timezone TEXT NOT NULL DEFAULT 'UTC')`,
	`CREATE TABLE IF NOT EXISTS daily_goals (user_id TEXT PRIMARY KEY REFERENCES learners(id), target_xp INTEGER NOT NULL)`,
	`CREATE TABLE IF NOT EXISTS sync_queue (id TEXT PRIMARY KEY, user_id TEXT NOT NULL, sequence INTEGER NOT NULL, operation_type TEXT NOT NULL, resource_key TEXT NOT NULL, payload TEXT NOT NULL, attempts INTEGER NOT NULL DEFAULT 0, next_retry_at TIMESTAMP, status TEXT NOT NULL DEFAULT 'queued', created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP, UNIQUE(user_id, sequence))`,
}

var indexes = []string{
	`CREATE INDEX IF NOT EXISTS idx_learners_email ON learners(email)`,
	`CREATE INDEX IF NOT EXISTS idx_reward_grants_user_id ON reward_grants(user_id)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_reward_grants_activity ON reward_grants(user_id, activity_key)`,
	`CREATE INDEX IF NOT EXISTS idx_reward_grants_created_at ON reward_grants(created_at)`,
	`CREATE INDEX IF NOT EXISTS idx_progress_user_id ON progress(user_id)`,
	`CREATE INDEX IF NOT EXISTS idx_progress_lesson ON progress(user_id, module_slug, lesson_slug)`,
	`CREATE INDEX IF NOT EXISTS idx_sync_queue_user_sequence ON sync_queue(user_id, sequence)`,
	`CREATE INDEX IF NOT EXISTS idx_sync_queue_status ON sync_queue(status)`,
	`CREATE INDEX IF NOT EXISTS idx_xp_totals_total ON xp_totals(total_xp)`,
}
