package applemusic

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

const recentTracksFixture = `{
	"data": [
		{
			"id": "song-1",
			"attributes": {
				"name": "Motion Sickness",
				"artistName": "Phoebe Bridgers",
				"albumName": "Stranger in the Alps",
				"isrc": "USMTD1700381",
				"durationInMillis": 234000,
				"releaseDate": "2017-09-22",
				"url": "https://music.apple.com/us/song/1273418641",
				"artwork": {
					"url": "https://example.mzstatic.com/{w}x{h}bb.jpg",
					"width": 1400,
					"height": 1400
				}
			}
		},
		{
			"id": "song-2",
			"attributes": {
				"name": "",
				"artistName": "",
				"albumName": "Untitled"
			}
		},
		{
			"id": "",
			"attributes": {
				"name": "Unknown Single",
				"artistName": "Some Artist",
				"artwork": {
					"url": "https://example.mzstatic.com/{w}x{h}bb.jpg"
				}
			}
		}
	]
}`

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client, err := NewClient(
		Config{DeveloperToken: "dev-token", UserToken: "user-token"},
		WithBaseURL(server.URL),
		WithHTTPClient(server.Client()),
	)
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}
	return client
}

func TestNewClientRequiresTokens(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
	}{
		{"missing developer token", Config{UserToken: "u"}},
		{"missing user token", Config{DeveloperToken: "d"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewClient(tt.cfg); err == nil {
				t.Error("NewClient() expected error")
			}
		})
	}
}

func TestRecentlyPlayed(t *testing.T) {
	var gotPath, gotAuth, gotUserToken string
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.RequestURI()
		gotAuth = r.Header.Get("Authorization")
		gotUserToken = r.Header.Get("Music-User-Token")
		w.Write([]byte(recentTracksFixture))
	})

	tracks, err := client.RecentlyPlayed(context.Background(), 30)
	if err != nil {
		t.Fatalf("RecentlyPlayed() error = %v", err)
	}

	if gotPath != "/me/recent/played/tracks?limit=30" {
		t.Errorf("request path = %q", gotPath)
	}
	if gotAuth != "Bearer dev-token" {
		t.Errorf("Authorization header = %q", gotAuth)
	}
	if gotUserToken != "user-token" {
		t.Errorf("Music-User-Token header = %q", gotUserToken)
	}

	// The no-title-no-artist entry is dropped; positions stay contiguous.
	if len(tracks) != 2 {
		t.Fatalf("got %d tracks, want 2", len(tracks))
	}

	first := tracks[0]
	if first.AppleMusicID != "song-1" || first.Title != "Motion Sickness" || first.Artist != "Phoebe Bridgers" {
		t.Errorf("first track = %+v", first)
	}
	if first.Album != "Stranger in the Alps" || first.ISRC != "USMTD1700381" || first.DurationMs != 234000 {
		t.Errorf("first track metadata = %+v", first)
	}
	if first.ReleaseDate != "2017-09-22" {
		t.Errorf("release date = %q", first.ReleaseDate)
	}
	if first.ArtworkURL != "https://example.mzstatic.com/1400x1400bb.jpg" {
		t.Errorf("artwork URL = %q, template not substituted", first.ArtworkURL)
	}
	if first.Position != 0 {
		t.Errorf("first track position = %d, want 0", first.Position)
	}
	if len(first.Payload) == 0 {
		t.Error("first track payload not retained")
	}

	second := tracks[1]
	if second.AppleMusicID != "" {
		t.Errorf("second track id = %q, want empty", second.AppleMusicID)
	}
	if second.Position != 1 {
		t.Errorf("second track position = %d, want 1", second.Position)
	}
	if second.ArtworkURL != "https://example.mzstatic.com/600x600bb.jpg" {
		t.Errorf("artwork fallback size = %q", second.ArtworkURL)
	}
}

func TestRecentlyPlayedDefaultsLimit(t *testing.T) {
	var gotPath string
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.RequestURI()
		w.Write([]byte(`{"data": []}`))
	})

	if _, err := client.RecentlyPlayed(context.Background(), 0); err != nil {
		t.Fatalf("RecentlyPlayed() error = %v", err)
	}
	if gotPath != "/me/recent/played/tracks?limit=30" {
		t.Errorf("request path = %q, want default limit 30", gotPath)
	}
}

func TestRecentlyPlayedErrors(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		wantErr error
	}{
		{
			name:    "unauthorized",
			status:  http.StatusUnauthorized,
			body:    `{"errors": [{"status": "401", "title": "Unauthorized", "detail": "Invalid developer token"}]}`,
			wantErr: ErrAuthFailed,
		},
		{
			name:    "forbidden",
			status:  http.StatusForbidden,
			body:    `{"errors": [{"status": "403", "title": "Forbidden"}]}`,
			wantErr: ErrAuthFailed,
		},
		{
			name:    "server error",
			status:  http.StatusInternalServerError,
			body:    `oops`,
			wantErr: ErrUpstreamUnavailable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			})

			_, err := client.RecentlyPlayed(context.Background(), 30)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("RecentlyPlayed() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestRecentlyPlayedRateLimitRetry(t *testing.T) {
	var requestCount atomic.Int32

	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		count := requestCount.Add(1)

		// Fail first 2 requests with rate limit, succeed on 3rd
		if count < 3 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.Write([]byte(`{"data": []}`))
	})

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if _, err := client.RecentlyPlayed(ctx, 30); err != nil {
		t.Fatalf("RecentlyPlayed() error = %v", err)
	}

	// Should have made 3 requests (2 rate limited + 1 success)
	if count := requestCount.Load(); count != 3 {
		t.Errorf("expected 3 requests, got %d", count)
	}
}

func TestRecentlyPlayedTransportError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	client, err := NewClient(
		Config{DeveloperToken: "d", UserToken: "u"},
		WithBaseURL(server.URL),
	)
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}
	server.Close()

	_, err = client.RecentlyPlayed(context.Background(), 30)
	if !errors.Is(err, ErrUpstreamUnavailable) {
		t.Errorf("RecentlyPlayed() error = %v, want ErrUpstreamUnavailable", err)
	}
}

func TestParseTrack(t *testing.T) {
	tests := []struct {
		name   string
		raw    string
		wantOK bool
	}{
		{"valid", `{"id": "1", "attributes": {"name": "t", "artistName": "a"}}`, true},
		{"title only", `{"id": "1", "attributes": {"name": "t"}}`, true},
		{"artist only", `{"id": "1", "attributes": {"artistName": "a"}}`, true},
		{"neither title nor artist", `{"id": "1", "attributes": {"albumName": "x"}}`, false},
		{"malformed json", `{`, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, ok := parseTrack([]byte(tt.raw))
			if ok != tt.wantOK {
				t.Errorf("parseTrack() ok = %v, want %v", ok, tt.wantOK)
			}
		})
	}
}
