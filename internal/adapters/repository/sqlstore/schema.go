package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
)

// CreateSchema creates all tables needed by the store.
// Safe to call multiple times - uses IF NOT EXISTS.
func CreateSchema(ctx context.Context, db *sql.DB) error {
	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to create schema: %w", err)
		}
	}
	return nil
}

// Timestamps are unix milliseconds so both drivers compare them the same way.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS entities (
    id TEXT PRIMARY KEY,
    slug TEXT NOT NULL,
    name TEXT NOT NULL,
    profession TEXT NOT NULL DEFAULT '',
    category TEXT NOT NULL,
    gender TEXT NOT NULL,
    status TEXT NOT NULL,
    visibility TEXT NOT NULL,
    image_url TEXT NOT NULL DEFAULT '',
    created_at BIGINT NOT NULL
)`,
	`CREATE INDEX IF NOT EXISTS idx_entities_candidates ON entities (status, visibility, category, gender)`,
	`CREATE TABLE IF NOT EXISTS group_pool (
    group_id TEXT NOT NULL,
    entity_id TEXT NOT NULL,
    PRIMARY KEY (group_id, entity_id)
)`,
	`CREATE TABLE IF NOT EXISTS votes (
    id TEXT PRIMARY KEY,
    created_at BIGINT NOT NULL,
    context TEXT NOT NULL,
    group_id TEXT NOT NULL DEFAULT '',
    segment TEXT NOT NULL,
    left_id TEXT NOT NULL,
    right_id TEXT NOT NULL,
    winner_id TEXT NOT NULL DEFAULT '',
    skipped BOOLEAN NOT NULL DEFAULT FALSE,
    session_id TEXT NOT NULL DEFAULT '',
    voter_id TEXT NOT NULL DEFAULT '',
    filters TEXT NOT NULL DEFAULT '{}',
    left_delta DOUBLE PRECISION,
    right_delta DOUBLE PRECISION,
    steps INTEGER NOT NULL DEFAULT 0,
    applied_at BIGINT
)`,
	`CREATE INDEX IF NOT EXISTS idx_votes_pending ON votes (applied_at, created_at)`,
	`CREATE TABLE IF NOT EXISTS ratings (
    context TEXT NOT NULL,
    group_id TEXT NOT NULL DEFAULT '',
    segment TEXT NOT NULL,
    entity_id TEXT NOT NULL,
    rating DOUBLE PRECISION NOT NULL,
    wins BIGINT NOT NULL DEFAULT 0,
    losses BIGINT NOT NULL DEFAULT 0,
    comparisons BIGINT NOT NULL DEFAULT 0,
    version BIGINT NOT NULL,
    recent_votes TEXT NOT NULL DEFAULT '[]',
    updated_at BIGINT NOT NULL,
    PRIMARY KEY (context, group_id, segment, entity_id)
)`,
	`CREATE INDEX IF NOT EXISTS idx_ratings_board ON ratings (context, group_id, segment, rating DESC, entity_id)`,
	`CREATE TABLE IF NOT EXISTS pair_stats (
    context TEXT NOT NULL,
    group_id TEXT NOT NULL DEFAULT '',
    segment TEXT NOT NULL,
    entity_a_id TEXT NOT NULL,
    entity_b_id TEXT NOT NULL,
    a_wins BIGINT NOT NULL DEFAULT 0,
    b_wins BIGINT NOT NULL DEFAULT 0,
    comparisons BIGINT NOT NULL DEFAULT 0,
    version BIGINT NOT NULL,
    recent_votes TEXT NOT NULL DEFAULT '[]',
    updated_at BIGINT NOT NULL,
    PRIMARY KEY (context, group_id, segment, entity_a_id, entity_b_id),
    CHECK (entity_a_id < entity_b_id),
    CHECK (a_wins + b_wins = comparisons)
)`,
}
