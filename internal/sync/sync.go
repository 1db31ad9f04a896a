// Package sync implements the Apple Music play-history reconciliation pass.
//
// The upstream API returns a fixed-size recency window with no timestamps
// and no cursor, so each pass estimates play times from window positions,
// diffs the window against the one recorded by the previous successful pass,
// and inserts the remainder through a store that deduplicates within a
// bounded time window.
package sync

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/ethanpaneraa/thingsiconsume/internal/applemusic"
	"github.com/ethanpaneraa/thingsiconsume/internal/db"
)

// Common errors.
var (
	// ErrPassInProgress is returned when another reconciliation pass holds
	// the run lock, e.g. under overlapping scheduler triggers.
	ErrPassInProgress = errors.New("reconciliation pass already in progress")
)

const (
	// DefaultSlotDuration is the assumed average gap between consecutive
	// plays, used to spread window positions backwards from now.
	DefaultSlotDuration = 4 * time.Minute

	// DefaultTimezone is the civil timezone plays are attributed to.
	DefaultTimezone = "America/Los_Angeles"
)

// TrackSource fetches the recently played window from the upstream API.
type TrackSource interface {
	RecentlyPlayed(ctx context.Context, limit int) ([]applemusic.Track, error)
}

// PlayStore persists plays with duplicate detection. The identity check and
// the insert must be atomic with respect to concurrent calls.
type PlayStore interface {
	InsertIfAbsent(ctx context.Context, play *db.Play) (uuid.UUID, bool, error)
}

// RunLog records reconciliation passes and serves the previous successful
// pass's identifier window. LatestSuccessfulIDs returns db.ErrNotFound when
// no pass has succeeded yet.
type RunLog interface {
	LatestSuccessfulIDs(ctx context.Context) ([]string, error)
	Append(ctx context.Context, run *db.SyncRun) error
}

// Locker serializes passes. Acquire returns db.ErrLockHeld when the lock is
// taken elsewhere; the release func must be called when the pass ends.
type Locker interface {
	Acquire(ctx context.Context) (func(), error)
}

// Service runs reconciliation passes. It holds no cross-run state; all of
// that lives in the RunLog.
type Service struct {
	source TrackSource
	plays  PlayStore
	runs   RunLog
	locker Locker
	logger *log.Logger

	fetchLimit int
	slot       time.Duration
	loc        *time.Location
}

// Option configures a Service.
type Option func(*Service)

// WithFetchLimit sets the window size requested from the track source.
func WithFetchLimit(n int) Option {
	return func(s *Service) {
		s.fetchLimit = n
	}
}

// WithSlotDuration sets the per-position gap used for play time estimation.
func WithSlotDuration(d time.Duration) Option {
	return func(s *Service) {
		s.slot = d
	}
}

// WithLocation sets the civil timezone used for day bucketing.
func WithLocation(loc *time.Location) Option {
	return func(s *Service) {
		s.loc = loc
	}
}

// WithLocker enables run-level serialization of passes.
func WithLocker(l Locker) Option {
	return func(s *Service) {
		s.locker = l
	}
}

// WithLogger sets the structured logger.
func WithLogger(logger *log.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

// New creates a new reconciliation service.
func New(source TrackSource, plays PlayStore, runs RunLog, opts ...Option) *Service {
	s := &Service{
		source:     source,
		plays:      plays,
		runs:       runs,
		fetchLimit: applemusic.DefaultLimit,
		slot:       DefaultSlotDuration,
		logger:     log.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.loc == nil {
		loc, err := time.LoadLocation(DefaultTimezone)
		if err != nil {
			loc = time.UTC
		}
		s.loc = loc
	}
	return s
}

// Result contains the counts of one reconciliation pass.
type Result struct {
	Fetched    int
	Added      int
	Duplicates int
	Skipped    int
	RanAt      time.Time
}

// Run executes one reconciliation pass: fetch, estimate, detect, insert, log.
//
// Per-track failures are counted as skipped and never abort the pass. A pass
// that completes its fetch appends exactly one run record, success or not; a
// pass cancelled mid-loop appends none (already-inserted plays stand, and the
// next pass falls back to comparing against the last logged window).
func (s *Service) Run(ctx context.Context) (*Result, error) {
	if s.locker != nil {
		release, err := s.locker.Acquire(ctx)
		if errors.Is(err, db.ErrLockHeld) {
			return nil, ErrPassInProgress
		}
		if err != nil {
			return nil, fmt.Errorf("acquiring run lock: %w", err)
		}
		defer release()
	}

	tracks, err := s.source.RecentlyPlayed(ctx, s.fetchLimit)
	if err != nil {
		// An aborted pass leaves no run record; an upstream failure does.
		if ctx.Err() == nil {
			s.appendErrorRun(ctx, err)
		}
		return nil, fmt.Errorf("fetching recently played: %w", err)
	}

	now := time.Now()
	result := &Result{Fetched: len(tracks), RanAt: now}

	previousIDs, hasPrevious, err := s.previousWindow(ctx)
	if err != nil {
		// The pass completed its fetch, so it still owes a run record.
		// Best effort: when the log store is down the append fails too.
		s.appendErrorRun(ctx, err)
		return nil, err
	}

	candidates := detectNew(tracks, previousIDs, hasPrevious)
	s.logger.Info("reconciliation pass started",
		"fetched", len(tracks), "candidates", len(candidates), "first_run", !hasPrevious)

	for _, track := range candidates {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		if track.Title == "" || track.Artist == "" {
			result.Skipped++
			continue
		}

		play := s.buildPlay(track, now)
		_, wasNew, err := s.plays.InsertIfAbsent(ctx, play)
		if err != nil {
			result.Skipped++
			s.logger.Warn("skipping track after store error",
				"title", track.Title, "artist", track.Artist, "error", err)
			continue
		}
		if wasNew {
			result.Added++
			s.logger.Debug("play recorded",
				"title", track.Title, "artist", track.Artist, "played_at", play.PlayedAt)
		} else {
			result.Duplicates++
		}
	}

	if err := s.appendSuccessRun(ctx, tracks, result); err != nil {
		return nil, err
	}

	s.logger.Info("reconciliation pass complete",
		"fetched", result.Fetched,
		"added", result.Added,
		"duplicates", result.Duplicates,
		"skipped", result.Skipped)

	return result, nil
}

// previousWindow loads the identifier window of the last successful pass.
func (s *Service) previousWindow(ctx context.Context) ([]string, bool, error) {
	ids, err := s.runs.LatestSuccessfulIDs(ctx)
	if errors.Is(err, db.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("reading previous sync run: %w", err)
	}
	return ids, true, nil
}

// buildPlay converts one window entry into a persistent play record.
func (s *Service) buildPlay(track applemusic.Track, now time.Time) *db.Play {
	playedAt := estimatePlayedAt(now, track.Position, s.slot)

	play := &db.Play{
		PlayedAt:      playedAt,
		Day:           deriveDay(playedAt, s.loc),
		Title:         track.Title,
		Artist:        track.Artist,
		Album:         optional(track.Album),
		AppleMusicID:  optional(track.AppleMusicID),
		ISRC:          optional(track.ISRC),
		AppleMusicURL: optional(track.URL),
		ArtworkURL:    optional(track.ArtworkURL),
		Payload:       track.Payload,
	}
	if track.DurationMs > 0 {
		play.DurationMs = &track.DurationMs
	}
	if track.ReleaseDate != "" {
		// Apple sometimes reports a bare year; a value that does not parse
		// as a full date is dropped rather than failing the insert.
		if d, err := time.Parse("2006-01-02", track.ReleaseDate); err == nil {
			play.ReleaseDate = &d
		}
	}
	return play
}

// appendSuccessRun records the completed pass and its full identifier window.
func (s *Service) appendSuccessRun(ctx context.Context, tracks []applemusic.Track, result *Result) error {
	run := &db.SyncRun{
		RanAt:        result.RanAt,
		FetchedCount: result.Fetched,
		AddedCount:   result.Added,
		TrackIDs:     windowIDs(tracks),
		Status:       db.SyncStatusSuccess,
	}
	if len(tracks) > 0 && tracks[0].AppleMusicID != "" {
		run.LatestTrackID = &tracks[0].AppleMusicID
	}

	if err := s.runs.Append(ctx, run); err != nil {
		return fmt.Errorf("appending sync run: %w", err)
	}
	return nil
}

// appendErrorRun records a pass whose fetch failed. Best effort: if the log
// store is unreachable too there is nothing left to do but log it.
func (s *Service) appendErrorRun(ctx context.Context, fetchErr error) {
	detail := fetchErr.Error()
	run := &db.SyncRun{
		Status:      db.SyncStatusError,
		ErrorDetail: &detail,
	}
	if err := s.runs.Append(ctx, run); err != nil {
		s.logger.Warn("recording failed pass", "error", err)
	}
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
