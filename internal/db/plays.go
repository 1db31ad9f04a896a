package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PlayRepository handles play database operations.
type PlayRepository struct {
	pool        *pgxpool.Pool
	dedupWindow time.Duration
}

// insertByUpstreamID treats an existing row with the same apple_music_id and
// a played_at within the dedup window as the same listening event. The check
// and the insert run as one statement so concurrent passes cannot both pass a
// read-then-write check; the partial unique index on (apple_music_id, day)
// backstops the remaining window where two sessions race the same candidate.
// The backstop does not cover two concurrent candidates whose day buckets
// straddle midnight; the run-level advisory lock is what keeps that pair from
// ever racing in practice.
const insertByUpstreamID = `
	WITH existing AS (
		SELECT id FROM consumed_songs
		WHERE apple_music_id = $7
		  AND played_at BETWEEN $2 - make_interval(secs => $14) AND $2 + make_interval(secs => $14)
		LIMIT 1
	), inserted AS (
		INSERT INTO consumed_songs (
			id, played_at, day, title, artist, album,
			apple_music_id, isrc, duration_ms, release_date,
			apple_music_url, artwork_url, payload
		)
		SELECT $1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13::jsonb
		WHERE NOT EXISTS (SELECT 1 FROM existing)
		ON CONFLICT (apple_music_id, day) WHERE apple_music_id IS NOT NULL DO NOTHING
		RETURNING id
	)
	SELECT id, TRUE AS was_new FROM inserted
	UNION ALL
	SELECT id, FALSE FROM existing
`

// findConflictingPlay mirrors the conflict target of insertByUpstreamID:
// same upstream identifier, same day bucket. It resolves the surviving row
// whenever the insert returned nothing, which happens both when another
// session won a concurrent insert and when the same track was already played
// earlier that day outside the time window (the per-day index folds a
// same-day re-listen into the existing row).
const findConflictingPlay = `
	SELECT id FROM consumed_songs
	WHERE apple_music_id = $1 AND day = $2
	LIMIT 1
`

// insertByTitleArtist is the fallback identity for tracks the upstream
// returned without an identifier: identical title, artist and exact
// estimated played_at collapse to one event.
const insertByTitleArtist = `
	WITH existing AS (
		SELECT id FROM consumed_songs
		WHERE apple_music_id IS NULL
		  AND title = $4 AND artist = $5 AND played_at = $2
		LIMIT 1
	), inserted AS (
		INSERT INTO consumed_songs (
			id, played_at, day, title, artist, album,
			apple_music_id, isrc, duration_ms, release_date,
			apple_music_url, artwork_url, payload
		)
		SELECT $1, $2, $3, $4, $5, $6, NULL, $7, $8, $9, $10, $11, $12::jsonb
		WHERE NOT EXISTS (SELECT 1 FROM existing)
		RETURNING id
	)
	SELECT id, TRUE AS was_new FROM inserted
	UNION ALL
	SELECT id, FALSE FROM existing
`

// InsertIfAbsent persists the play unless an equivalent play already exists.
// Returns the stored row's id and whether a new row was written.
func (r *PlayRepository) InsertIfAbsent(ctx context.Context, play *Play) (uuid.UUID, bool, error) {
	if play.ID == uuid.Nil {
		play.ID = uuid.New()
	}

	var (
		id     uuid.UUID
		wasNew bool
		err    error
	)

	if play.AppleMusicID != nil && *play.AppleMusicID != "" {
		args := upstreamInsertArgs(play, r.dedupWindow.Seconds())
		err = r.pool.QueryRow(ctx, insertByUpstreamID, args...).Scan(&id, &wasNew)

		if errors.Is(err, pgx.ErrNoRows) {
			// The insert hit the per-day conflict target: either another
			// session won a concurrent insert, or the track already has a
			// play that day outside the time window. Both are the same
			// event for this contract: read the winner, report duplicate.
			return r.findConflicting(ctx, play)
		}
	} else {
		args := fallbackInsertArgs(play)
		err = r.pool.QueryRow(ctx, insertByTitleArtist, args...).Scan(&id, &wasNew)
	}

	if err != nil {
		return uuid.Nil, false, fmt.Errorf("inserting play: %w", err)
	}
	return id, wasNew, nil
}

// upstreamInsertArgs maps a play onto insertByUpstreamID's placeholders.
func upstreamInsertArgs(play *Play, windowSeconds float64) []any {
	return []any{
		play.ID,
		play.PlayedAt,
		play.Day,
		play.Title,
		play.Artist,
		play.Album,
		play.AppleMusicID,
		play.ISRC,
		play.DurationMs,
		play.ReleaseDate,
		play.AppleMusicURL,
		play.ArtworkURL,
		payloadOrEmpty(play.Payload),
		windowSeconds,
	}
}

// fallbackInsertArgs maps a play onto insertByTitleArtist's placeholders;
// apple_music_id is the literal NULL in the statement itself.
func fallbackInsertArgs(play *Play) []any {
	return []any{
		play.ID,
		play.PlayedAt,
		play.Day,
		play.Title,
		play.Artist,
		play.Album,
		play.ISRC,
		play.DurationMs,
		play.ReleaseDate,
		play.AppleMusicURL,
		play.ArtworkURL,
		payloadOrEmpty(play.Payload),
	}
}

// findConflicting resolves the surviving row after an empty insert result.
func (r *PlayRepository) findConflicting(ctx context.Context, play *Play) (uuid.UUID, bool, error) {
	var id uuid.UUID
	err := r.pool.QueryRow(ctx, findConflictingPlay, play.AppleMusicID, play.Day).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return uuid.Nil, false, ErrNotFound
	}
	if err != nil {
		return uuid.Nil, false, fmt.Errorf("resolving conflicting play: %w", err)
	}
	return id, false, nil
}

// Get retrieves a play by ID.
func (r *PlayRepository) Get(ctx context.Context, id uuid.UUID) (*Play, error) {
	query := `
		SELECT id, played_at, day, title, artist, album,
		       apple_music_id, isrc, duration_ms, release_date,
		       apple_music_url, artwork_url, payload, created_at
		FROM consumed_songs
		WHERE id = $1
	`
	var play Play
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&play.ID,
		&play.PlayedAt,
		&play.Day,
		&play.Title,
		&play.Artist,
		&play.Album,
		&play.AppleMusicID,
		&play.ISRC,
		&play.DurationMs,
		&play.ReleaseDate,
		&play.AppleMusicURL,
		&play.ArtworkURL,
		&play.Payload,
		&play.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying play: %w", err)
	}
	return &play, nil
}

// ListByDay retrieves all plays attributed to a calendar day, newest first.
func (r *PlayRepository) ListByDay(ctx context.Context, day time.Time) ([]Play, error) {
	query := `
		SELECT id, played_at, day, title, artist, album,
		       apple_music_id, isrc, duration_ms, release_date,
		       apple_music_url, artwork_url, payload, created_at
		FROM consumed_songs
		WHERE day = $1
		ORDER BY played_at DESC
	`
	rows, err := r.pool.Query(ctx, query, day)
	if err != nil {
		return nil, fmt.Errorf("querying plays by day: %w", err)
	}
	defer rows.Close()

	var plays []Play
	for rows.Next() {
		var play Play
		if err := rows.Scan(
			&play.ID,
			&play.PlayedAt,
			&play.Day,
			&play.Title,
			&play.Artist,
			&play.Album,
			&play.AppleMusicID,
			&play.ISRC,
			&play.DurationMs,
			&play.ReleaseDate,
			&play.AppleMusicURL,
			&play.ArtworkURL,
			&play.Payload,
			&play.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scanning play: %w", err)
		}
		plays = append(plays, play)
	}
	return plays, rows.Err()
}

func payloadOrEmpty(payload []byte) []byte {
	if len(payload) == 0 {
		return []byte("{}")
	}
	return payload
}
