package sync

import "time"

// estimatePlayedAt derives an approximate play time from a track's position
// in the recency window: now minus position slots. The API returns order but
// no timestamps, so this is an estimate, not a measurement. Every track in a
// pass shares the same now reference, which keeps relative ordering stable
// across repeated fetches of the same window.
func estimatePlayedAt(now time.Time, position int, slot time.Duration) time.Time {
	return now.Add(-time.Duration(position) * slot)
}

// deriveDay buckets a play time into a calendar day in the given civil
// timezone. The result is a date at UTC midnight, matching the store's
// DATE column.
func deriveDay(t time.Time, loc *time.Location) time.Time {
	local := t.In(loc)
	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, time.UTC)
}
