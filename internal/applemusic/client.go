// Package applemusic is a minimal Apple Music API client covering the
// recently played history endpoint.
//
// The endpoint returns a fixed-size recency-ordered window with no
// timestamps and no cursor; callers own deriving play times and diffing
// windows across fetches.
package applemusic

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

const (
	baseURL   = "https://api.music.apple.com/v1"
	userAgent = "thingsiconsume/1.0"

	// DefaultLimit is the window size requested from the API.
	DefaultLimit = 30

	defaultArtworkSize = 600
)

// Sentinel errors.
var (
	// ErrUpstreamUnavailable is returned when the API cannot be reached or
	// answers with a server-side failure.
	ErrUpstreamUnavailable = errors.New("apple music unavailable")

	// ErrAuthFailed is returned when the developer or user token is rejected.
	ErrAuthFailed = errors.New("apple music authentication failed")

	// ErrRateLimited is returned when the API rate limit persists after retries.
	ErrRateLimited = errors.New("rate limit exceeded")
)

// Config holds the two tokens Apple Music requires: a developer JWT and a
// per-user Music User Token.
type Config struct {
	DeveloperToken string
	UserToken      string
}

// Client is an Apple Music API client.
type Client struct {
	developerToken string
	userToken      string
	httpClient     *http.Client
	baseURL        string
	limiter        *rate.Limiter
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithBaseURL overrides the API base URL (used in tests).
func WithBaseURL(u string) Option {
	return func(c *Client) {
		c.baseURL = strings.TrimSuffix(u, "/")
	}
}

// NewClient creates a new Apple Music API client.
func NewClient(cfg Config, opts ...Option) (*Client, error) {
	if cfg.DeveloperToken == "" {
		return nil, errors.New("developer token is required")
	}
	if cfg.UserToken == "" {
		return nil, errors.New("music user token is required")
	}

	c := &Client{
		developerToken: cfg.DeveloperToken,
		userToken:      cfg.UserToken,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		baseURL: baseURL,
		// Safety margin under Apple's documented limits; the sync job only
		// makes one call per pass so this never bites in practice.
		limiter: rate.NewLimiter(rate.Limit(5), 1),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// RecentlyPlayed fetches the recently played window, most recent first,
// returning at most limit tracks. Entries missing both title and artist are
// dropped; each surviving track carries its position in the returned order.
func (c *Client) RecentlyPlayed(ctx context.Context, limit int) ([]Track, error) {
	if limit <= 0 {
		limit = DefaultLimit
	}

	reqURL := fmt.Sprintf("%s/me/recent/played/tracks?limit=%d", c.baseURL, limit)
	body, err := c.doRequest(ctx, reqURL)
	if err != nil {
		return nil, err
	}

	var resp recentTracksResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("parsing recently played response: %w", err)
	}

	tracks := make([]Track, 0, len(resp.Data))
	for _, raw := range resp.Data {
		track, ok := parseTrack(raw)
		if !ok {
			continue
		}
		track.Position = len(tracks)
		tracks = append(tracks, track)
	}
	return tracks, nil
}

// parseTrack normalizes one raw API item. Returns ok=false for entries with
// neither title nor artist, which cannot be meaningfully stored.
func parseTrack(raw json.RawMessage) (Track, bool) {
	var item trackItem
	if err := json.Unmarshal(raw, &item); err != nil {
		return Track{}, false
	}

	attrs := item.Attributes
	if attrs.Name == "" && attrs.ArtistName == "" {
		return Track{}, false
	}

	return Track{
		AppleMusicID: item.ID,
		Title:        attrs.Name,
		Artist:       attrs.ArtistName,
		Album:        attrs.AlbumName,
		ISRC:         attrs.ISRC,
		DurationMs:   attrs.DurationInMillis,
		ReleaseDate:  attrs.ReleaseDate,
		URL:          attrs.URL,
		ArtworkURL:   artworkURL(attrs.Artwork),
		Payload:      raw,
	}, true
}

// artworkURL resolves Apple's {w}x{h} template against the artwork's own
// dimensions, falling back to 600 on either axis.
func artworkURL(art artwork) string {
	if art.URL == "" {
		return ""
	}
	width := art.Width
	if width <= 0 {
		width = defaultArtworkSize
	}
	height := art.Height
	if height <= 0 {
		height = defaultArtworkSize
	}
	u := strings.ReplaceAll(art.URL, "{w}", strconv.Itoa(width))
	return strings.ReplaceAll(u, "{h}", strconv.Itoa(height))
}

// doRequest performs an HTTP GET with retry on rate limit.
// Retries up to 3 times with exponential backoff (1s, 2s, 4s).
func (c *Client) doRequest(ctx context.Context, reqURL string) ([]byte, error) {
	delays := []time.Duration{1 * time.Second, 2 * time.Second, 4 * time.Second}
	var lastErr error

	for attempt := 0; attempt <= len(delays); attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delays[attempt-1]):
			}
		}

		body, err := c.doSingleRequest(ctx, reqURL)
		if err == nil {
			return body, nil
		}

		if errors.Is(err, ErrRateLimited) {
			lastErr = err
			continue
		}

		return nil, err
	}

	return nil, lastErr
}

// doSingleRequest performs a single HTTP request.
func (c *Client) doSingleRequest(ctx context.Context, reqURL string) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Authorization", "Bearer "+c.developerToken)
	req.Header.Set("Music-User-Token", c.userToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUpstreamUnavailable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: reading response body: %v", ErrUpstreamUnavailable, err)
	}

	switch {
	case resp.StatusCode == http.StatusOK:
		return body, nil
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, ErrRateLimited
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, fmt.Errorf("%w: %s", ErrAuthFailed, apiErrorDetail(body, resp.Status))
	default:
		return nil, fmt.Errorf("%w: %s", ErrUpstreamUnavailable, apiErrorDetail(body, resp.Status))
	}
}

// apiErrorDetail pulls the first error detail out of an Apple error envelope,
// falling back to the HTTP status line.
func apiErrorDetail(body []byte, status string) string {
	var apiErr apiError
	if err := json.Unmarshal(body, &apiErr); err == nil && len(apiErr.Errors) > 0 {
		e := apiErr.Errors[0]
		if e.Detail != "" {
			return e.Detail
		}
		if e.Title != "" {
			return e.Title
		}
	}
	return status
}
