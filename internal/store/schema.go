package store

import (
	"context"
	"database/sql"
	"fmt"
)

// schema is applied statement by statement; every statement is idempotent.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS servers (
		id           UUID PRIMARY KEY,
		discord_id   TEXT NOT NULL UNIQUE,
		name         TEXT NOT NULL DEFAULT '',
		icon_url     TEXT NOT NULL DEFAULT '',
		member_count INTEGER NOT NULL DEFAULT 0,
		created_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
		owner_id     TEXT NOT NULL DEFAULT ''
	)`,
	`CREATE TABLE IF NOT EXISTS users (
		id            UUID PRIMARY KEY,
		platform_id   TEXT NOT NULL UNIQUE,
		username      TEXT NOT NULL,
		registered_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		avatar_url    TEXT NOT NULL DEFAULT ''
	)`,
	`CREATE TABLE IF NOT EXISTS user_servers (
		user_id       UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		server_id     UUID NOT NULL REFERENCES servers(id) ON DELETE CASCADE,
		joined_at     TIMESTAMPTZ NOT NULL DEFAULT now(),
		registered_by TEXT NOT NULL DEFAULT '',
		PRIMARY KEY (user_id, server_id)
	)`,
	`CREATE TABLE IF NOT EXISTS attendance (
		id        UUID PRIMARY KEY,
		user_id   UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		server_id UUID NOT NULL REFERENCES servers(id) ON DELETE CASCADE,
		clock_in  TIMESTAMPTZ NOT NULL,
		local_day TEXT NOT NULL,
		image_url TEXT NOT NULL DEFAULT '',
		notes     TEXT NOT NULL DEFAULT '',
		UNIQUE (user_id, server_id, local_day)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_attendance_server_clock ON attendance(server_id, clock_in)`,
	`CREATE INDEX IF NOT EXISTS idx_user_servers_server ON user_servers(server_id, joined_at)`,
}

// Migrate creates the tables and indexes used by the attendance repository.
func Migrate(ctx context.Context, db *sql.DB) error {
	for i, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("schema statement %d: %w", i+1, err)
		}
	}
	return nil
}
