package db

import (
	"context"
	"fmt"
)

// sqliteSchema mirrors the Postgres migrations for standalone mode, where the
// gateway owns its schema and applies it at startup.
var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS students (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		phone TEXT NOT NULL,
		unit TEXT NOT NULL DEFAULT '',
		plan TEXT NOT NULL DEFAULT '',
		active INTEGER NOT NULL DEFAULT 1,
		created_at TIMESTAMP NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS bookings (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		phone TEXT NOT NULL,
		unit TEXT NOT NULL,
		slot TEXT NOT NULL,
		status TEXT NOT NULL,
		created_at TIMESTAMP NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS payments (
		id TEXT PRIMARY KEY,
		student_id TEXT NOT NULL REFERENCES students(id),
		description TEXT NOT NULL,
		amount_cents INTEGER NOT NULL,
		due_date TIMESTAMP NOT NULL,
		paid_at TIMESTAMP
	)`,
	`CREATE TABLE IF NOT EXISTS polls (
		id TEXT PRIMARY KEY,
		question TEXT NOT NULL,
		options TEXT NOT NULL,
		multi_select INTEGER NOT NULL DEFAULT 0,
		pin_after_send INTEGER NOT NULL DEFAULT 0
	)`,
	`CREATE TABLE IF NOT EXISTS broadcasts (
		id TEXT PRIMARY KEY,
		kind TEXT NOT NULL,
		target_group TEXT NOT NULL DEFAULT '',
		poll_id TEXT,
		schedule TEXT NOT NULL,
		enabled INTEGER NOT NULL DEFAULT 1,
		last_executed_at TIMESTAMP
	)`,
	`CREATE TABLE IF NOT EXISTS sent_deliveries (
		message_id TEXT PRIMARY KEY,
		broadcast_id TEXT NOT NULL,
		sent_at TIMESTAMP NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS cache_entries (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL,
		expires_at TIMESTAMP
	)`,
}

// EnsureSchema applies the sqlite schema. Managed (Postgres) deployments use
// the migrations directory instead.
func (c *Conn) EnsureSchema(ctx context.Context) error {
	if c.dialect != DialectSQLite {
		return nil
	}
	for _, stmt := range sqliteSchema {
		if _, err := c.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("apply schema: %w", err)
		}
	}
	return nil
}
