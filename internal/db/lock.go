package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// reconcileLockKey identifies the reconciliation pass advisory lock.
// Arbitrary but fixed; all deployments against one database share it.
const reconcileLockKey = int64(811420250)

// AdvisoryLocker serializes reconciliation passes through a session-scoped
// PostgreSQL advisory lock, so overlapping scheduler triggers cannot run two
// passes against the same database at once.
type AdvisoryLocker struct {
	pool *pgxpool.Pool
}

// Acquire takes the reconciliation lock. Returns ErrLockHeld without waiting
// if another session holds it. The returned release func must be called when
// the pass ends; it is safe to call from a defer after partial failure.
func (l *AdvisoryLocker) Acquire(ctx context.Context) (func(), error) {
	// The lock is session-scoped, so it has to live on a pinned connection
	// for the duration of the pass rather than on the pool.
	conn, err := l.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquiring connection for run lock: %w", err)
	}

	var locked bool
	if err := conn.QueryRow(ctx, "SELECT pg_try_advisory_lock($1)", reconcileLockKey).Scan(&locked); err != nil {
		conn.Release()
		return nil, fmt.Errorf("acquiring run lock: %w", err)
	}
	if !locked {
		conn.Release()
		return nil, ErrLockHeld
	}

	release := func() {
		// Unlock with a fresh context: the pass context may already be
		// cancelled when the deferred release runs.
		_, _ = conn.Exec(context.Background(), "SELECT pg_advisory_unlock($1)", reconcileLockKey)
		conn.Release()
	}
	return release, nil
}
