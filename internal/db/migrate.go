package db

import (
	"context"
	"fmt"
)

// schemaStatements bootstrap the tables the engine touches. Each statement is
// idempotent so EnsureSchema can run on every deploy. The partial unique index
// on (apple_music_id, day) is load-bearing: it is the conflict target that
// closes the concurrent-insert race in PlayRepository.InsertIfAbsent.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS consumed_songs (
		id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
		apple_music_id TEXT,
		isrc TEXT,
		title TEXT NOT NULL,
		artist TEXT NOT NULL,
		album TEXT,
		album_artist TEXT,
		duration_ms INT,
		genre TEXT,
		release_date DATE,
		apple_music_url TEXT,
		artwork_url TEXT,
		played_at TIMESTAMPTZ NOT NULL,
		day DATE NOT NULL,
		payload JSONB NOT NULL DEFAULT '{}'::jsonb,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS consumed_songs_unique_per_day_idx
		ON consumed_songs(apple_music_id, day)
		WHERE apple_music_id IS NOT NULL`,
	`CREATE INDEX IF NOT EXISTS consumed_songs_day_idx
		ON consumed_songs(day)`,
	`CREATE TABLE IF NOT EXISTS consumed_song_sync_runs (
		id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
		ran_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		fetched_count INT NOT NULL DEFAULT 0,
		added_count INT NOT NULL DEFAULT 0,
		latest_track_id TEXT,
		track_ids TEXT[],
		status TEXT NOT NULL,
		error_detail TEXT
	)`,
	`CREATE INDEX IF NOT EXISTS consumed_song_sync_runs_ran_at_idx
		ON consumed_song_sync_runs(ran_at DESC)`,
}

// EnsureSchema creates the play and sync run tables if they do not exist.
func (db *DB) EnsureSchema(ctx context.Context) error {
	for _, stmt := range schemaStatements {
		if _, err := db.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("applying schema statement: %w", err)
		}
	}
	return nil
}
