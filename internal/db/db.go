// Package db provides PostgreSQL database access for the consumption log.
package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Common errors.
var (
	ErrNotFound = errors.New("not found")

	// ErrLockHeld is returned when the reconciliation advisory lock is
	// already held by another session.
	ErrLockHeld = errors.New("advisory lock held")
)

// DefaultDedupWindow is the tolerance applied when matching a candidate play
// against existing rows with the same upstream identifier.
const DefaultDedupWindow = 10 * time.Minute

// DB wraps a PostgreSQL connection pool.
type DB struct {
	pool        *pgxpool.Pool
	dedupWindow time.Duration
}

// Option configures a DB.
type Option func(*DB)

// WithDedupWindow sets the played-at tolerance used for duplicate detection.
func WithDedupWindow(d time.Duration) Option {
	return func(db *DB) {
		db.dedupWindow = d
	}
}

// New creates a new database connection pool.
func New(ctx context.Context, databaseURL string, opts ...Option) (*DB, error) {
	config, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parsing database URL: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}

	// Verify connection
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	db := &DB{pool: pool, dedupWindow: DefaultDedupWindow}
	for _, opt := range opts {
		opt(db)
	}
	return db, nil
}

// Close closes the database connection pool.
func (db *DB) Close() {
	db.pool.Close()
}

// Pool returns the underlying connection pool for advanced operations.
func (db *DB) Pool() *pgxpool.Pool {
	return db.pool
}

// Plays returns a PlayRepository.
func (db *DB) Plays() *PlayRepository {
	return &PlayRepository{pool: db.pool, dedupWindow: db.dedupWindow}
}

// SyncRuns returns a SyncRunRepository.
func (db *DB) SyncRuns() *SyncRunRepository {
	return &SyncRunRepository{pool: db.pool}
}

// Locker returns an AdvisoryLocker for serializing reconciliation passes.
func (db *DB) Locker() *AdvisoryLocker {
	return &AdvisoryLocker{pool: db.pool}
}
