package sync

import "github.com/ethanpaneraa/thingsiconsume/internal/applemusic"

// detectNew isolates the tracks in the current window that were not part of
// the previous successful pass's window. There is no upstream cursor, so
// diffing the two windows is the only available notion of "new"; a track that
// scrolled entirely out of the window between passes is missed permanently.
//
// Rules:
//   - no previous window (first ever run): every track is new;
//   - identical ordered identifier sequences: upstream unchanged, nothing is
//     new (fast path, skips redundant store writes);
//   - otherwise: tracks whose identifier is absent from the previous window's
//     identifier set. A reordered-but-identical set therefore also yields an
//     empty new-set, just through the membership branch.
//
// Tracks the upstream returned without an identifier are always candidates;
// the store's title/artist/time fallback decides whether they are duplicates.
func detectNew(current []applemusic.Track, previousIDs []string, hasPrevious bool) []applemusic.Track {
	if !hasPrevious {
		return current
	}

	if sequencesEqual(windowIDs(current), previousIDs) {
		return nil
	}

	seen := make(map[string]struct{}, len(previousIDs))
	for _, id := range previousIDs {
		if id != "" {
			seen[id] = struct{}{}
		}
	}

	var fresh []applemusic.Track
	for _, track := range current {
		if track.AppleMusicID == "" {
			fresh = append(fresh, track)
			continue
		}
		if _, ok := seen[track.AppleMusicID]; !ok {
			fresh = append(fresh, track)
		}
	}
	return fresh
}

// windowIDs projects a window onto its ordered identifier sequence.
// A missing upstream identifier becomes "", which keeps positions aligned
// when sequences are compared and round-trips through the run log.
func windowIDs(tracks []applemusic.Track) []string {
	ids := make([]string, len(tracks))
	for i, track := range tracks {
		ids[i] = track.AppleMusicID
	}
	return ids
}

func sequencesEqual(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
