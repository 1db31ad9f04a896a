package db

import (
	"time"

	"github.com/google/uuid"
)

// Play represents a persisted, deduplicated listening event.
// Rows are insert-only during normal operation; corrections happen through
// out-of-band maintenance, never through this package.
type Play struct {
	ID            uuid.UUID
	PlayedAt      time.Time // estimated, not measured; see internal/sync
	Day           time.Time // calendar day bucket in the configured timezone
	Title         string
	Artist        string
	Album         *string    // nullable
	AppleMusicID  *string    // nullable - upstream may omit it
	ISRC          *string    // nullable
	DurationMs    *int       // nullable
	ReleaseDate   *time.Time // nullable
	AppleMusicURL *string    // nullable
	ArtworkURL    *string    // nullable
	Payload       []byte     // raw upstream item, retained for audit
	CreatedAt     time.Time
}

// Sync run statuses.
const (
	SyncStatusSuccess = "success"
	SyncStatusError   = "error"
)

// SyncRun represents one reconciliation pass, recorded append-only.
// TrackIDs holds the full ordered upstream identifier window from the pass;
// it is the only cross-run state the engine has, since the upstream API
// exposes no cursor. An identifier the upstream omitted is stored as "".
type SyncRun struct {
	ID            uuid.UUID
	RanAt         time.Time
	FetchedCount  int
	AddedCount    int
	LatestTrackID *string // nullable
	TrackIDs      []string
	Status        string  // "success" or "error"
	ErrorDetail   *string // nullable
}
