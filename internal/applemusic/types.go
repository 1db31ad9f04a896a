package applemusic

import "encoding/json"

// Track is one normalized entry from the recently played window.
// Position is the track's 0-based index in the window as returned by the
// API (0 = most recent). Optional fields are empty strings / zero when the
// upstream omitted them.
type Track struct {
	AppleMusicID string
	Title        string
	Artist       string
	Album        string
	ISRC         string
	DurationMs   int
	ReleaseDate  string // YYYY-MM-DD as reported by the API
	URL          string
	ArtworkURL   string
	Position     int
	Payload      json.RawMessage // raw API item, retained for audit
}

// recentTracksResponse mirrors the /me/recent/played/tracks envelope.
// Items are kept raw so each track can carry its untouched payload.
type recentTracksResponse struct {
	Data []json.RawMessage `json:"data"`
}

type trackItem struct {
	ID         string          `json:"id"`
	Attributes trackAttributes `json:"attributes"`
}

type trackAttributes struct {
	Name             string  `json:"name"`
	ArtistName       string  `json:"artistName"`
	AlbumName        string  `json:"albumName"`
	ISRC             string  `json:"isrc"`
	DurationInMillis int     `json:"durationInMillis"`
	ReleaseDate      string  `json:"releaseDate"`
	URL              string  `json:"url"`
	Artwork          artwork `json:"artwork"`
}

type artwork struct {
	URL    string `json:"url"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
}

type apiError struct {
	Errors []struct {
		Status string `json:"status"`
		Title  string `json:"title"`
		Detail string `json:"detail"`
	} `json:"errors"`
}
