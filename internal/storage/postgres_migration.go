package storage

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// migrationStatements is the idempotent schema applied at startup. Statements
// run in order inside a single transaction.
var migrationStatements = []string{
	`CREATE TABLE IF NOT EXISTS users (
	id TEXT PRIMARY KEY,
	username TEXT NOT NULL UNIQUE,
	email TEXT NOT NULL UNIQUE,
	full_name TEXT NOT NULL,
	avatar_url TEXT NOT NULL DEFAULT '',
	cover_image_url TEXT NOT NULL DEFAULT '',
	password_hash TEXT NOT NULL,
	refresh_token TEXT NOT NULL DEFAULT '',
	refresh_token_expires_at TIMESTAMPTZ,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
)`,
	`CREATE TABLE IF NOT EXISTS videos (
	id TEXT PRIMARY KEY,
	owner_id TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
	title TEXT NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	video_url TEXT NOT NULL,
	thumbnail_url TEXT NOT NULL DEFAULT '',
	duration DOUBLE PRECISION NOT NULL DEFAULT 0,
	views BIGINT NOT NULL DEFAULT 0,
	published BOOLEAN NOT NULL DEFAULT TRUE,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
)`,
	`CREATE INDEX IF NOT EXISTS videos_owner_idx ON videos(owner_id)`,
	`CREATE TABLE IF NOT EXISTS comments (
	id TEXT PRIMARY KEY,
	video_id TEXT NOT NULL REFERENCES videos(id) ON DELETE CASCADE,
	author_id TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
	content TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
)`,
	`CREATE INDEX IF NOT EXISTS comments_video_idx ON comments(video_id)`,
	`CREATE TABLE IF NOT EXISTS video_likes (
	video_id TEXT NOT NULL REFERENCES videos(id) ON DELETE CASCADE,
	user_id TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
	created_at TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (video_id, user_id)
)`,
	`CREATE TABLE IF NOT EXISTS comment_likes (
	comment_id TEXT NOT NULL REFERENCES comments(id) ON DELETE CASCADE,
	user_id TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
	created_at TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (comment_id, user_id)
)`,
	`CREATE TABLE IF NOT EXISTS subscriptions (
	channel_id TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
	subscriber_id TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
	created_at TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (channel_id, subscriber_id)
)`,
	`CREATE TABLE IF NOT EXISTS watch_history (
	user_id TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
	video_id TEXT NOT NULL REFERENCES videos(id) ON DELETE CASCADE,
	watched_at TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (user_id, video_id)
)`,
}

func migratePostgres(ctx context.Context, pool *pgxpool.Pool) error {
	tx, err := pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin migration: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, stmt := range migrationStatements {
		if _, err := tx.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("apply migration: %w", err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit migration: %w", err)
	}
	return nil
}
