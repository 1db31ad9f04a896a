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

// SyncRunRepository handles reconciliation run log operations.
// The log is append-only: one row per pass, never updated.
type SyncRunRepository struct {
	pool *pgxpool.Pool
}

const appendRun = `
	INSERT INTO consumed_song_sync_runs (
		id, ran_at, fetched_count, added_count,
		latest_track_id, track_ids, status, error_detail
	)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
`

const latestSuccessfulIDs = `
	SELECT track_ids
	FROM consumed_song_sync_runs
	WHERE status = $1
	ORDER BY ran_at DESC
	LIMIT 1
`

// Append records one reconciliation pass.
func (r *SyncRunRepository) Append(ctx context.Context, run *SyncRun) error {
	run.fillDefaults()
	if _, err := r.pool.Exec(ctx, appendRun, appendRunArgs(run)...); err != nil {
		return fmt.Errorf("inserting sync run: %w", err)
	}
	return nil
}

func (run *SyncRun) fillDefaults() {
	if run.ID == uuid.Nil {
		run.ID = uuid.New()
	}
	if run.RanAt.IsZero() {
		run.RanAt = time.Now()
	}
}

// appendRunArgs maps a run onto appendRun's placeholders.
func appendRunArgs(run *SyncRun) []any {
	return []any{
		run.ID,
		run.RanAt,
		run.FetchedCount,
		run.AddedCount,
		run.LatestTrackID,
		run.TrackIDs,
		run.Status,
		run.ErrorDetail,
	}
}

// LatestSuccessfulIDs returns the ordered upstream identifier window recorded
// by the most recent successful pass. Returns ErrNotFound if no pass has
// succeeded yet (first-run semantics for the caller).
func (r *SyncRunRepository) LatestSuccessfulIDs(ctx context.Context) ([]string, error) {
	var ids []string
	err := r.pool.QueryRow(ctx, latestSuccessfulIDs, SyncStatusSuccess).Scan(&ids)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying latest successful sync run: %w", err)
	}
	return ids, nil
}

// Recent retrieves the most recent runs, newest first.
func (r *SyncRunRepository) Recent(ctx context.Context, limit int) ([]SyncRun, error) {
	query := `
		SELECT id, ran_at, fetched_count, added_count,
		       latest_track_id, track_ids, status, error_detail
		FROM consumed_song_sync_runs
		ORDER BY ran_at DESC
		LIMIT $1
	`
	rows, err := r.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("querying sync runs: %w", err)
	}
	defer rows.Close()

	var runs []SyncRun
	for rows.Next() {
		var run SyncRun
		if err := rows.Scan(
			&run.ID,
			&run.RanAt,
			&run.FetchedCount,
			&run.AddedCount,
			&run.LatestTrackID,
			&run.TrackIDs,
			&run.Status,
			&run.ErrorDetail,
		); err != nil {
			return nil, fmt.Errorf("scanning sync run: %w", err)
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}
