package web

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/charmbracelet/log"

	"github.com/ethanpaneraa/thingsiconsume/internal/db"
)

const (
	defaultRunsLimit = 20
	maxRunsLimit     = 100
)

// RunReader serves recent reconciliation run records.
type RunReader interface {
	Recent(ctx context.Context, limit int) ([]db.SyncRun, error)
}

// Handlers holds HTTP handler dependencies.
type Handlers struct {
	runs   RunReader
	logger *log.Logger
}

// NewHandlers creates handlers for the status server.
func NewHandlers(runs RunReader, logger *log.Logger) *Handlers {
	return &Handlers{runs: runs, logger: logger}
}

// Health handles GET /health.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// runResponse is the JSON shape of one reconciliation run record.
type runResponse struct {
	ID            string   `json:"id"`
	RanAt         string   `json:"ran_at"`
	FetchedCount  int      `json:"fetched_count"`
	AddedCount    int      `json:"added_count"`
	LatestTrackID *string  `json:"latest_track_id,omitempty"`
	TrackIDs      []string `json:"track_ids,omitempty"`
	Status        string   `json:"status"`
	ErrorDetail   *string  `json:"error_detail,omitempty"`
}

// Runs handles GET /v1/runs?limit=N, newest first.
func (h *Handlers) Runs(w http.ResponseWriter, r *http.Request) {
	limit := defaultRunsLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			http.Error(w, "invalid limit", http.StatusBadRequest)
			return
		}
		limit = min(n, maxRunsLimit)
	}

	runs, err := h.runs.Recent(r.Context(), limit)
	if err != nil {
		h.logger.Error("listing sync runs", "error", err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	out := make([]runResponse, len(runs))
	for i, run := range runs {
		out[i] = runResponse{
			ID:            run.ID.String(),
			RanAt:         run.RanAt.UTC().Format(time.RFC3339),
			FetchedCount:  run.FetchedCount,
			AddedCount:    run.AddedCount,
			LatestTrackID: run.LatestTrackID,
			TrackIDs:      run.TrackIDs,
			Status:        run.Status,
			ErrorDetail:   run.ErrorDetail,
		}
	}
	writeJSON(w, http.StatusOK, out)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
