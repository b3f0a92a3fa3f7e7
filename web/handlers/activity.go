package handlers

import (
	"net/http"
	"time"

	"github.com/carverlabs/scribe/internal/storage"
	"github.com/carverlabs/scribe/pkg/types"
)

// ActivityHandler serves the daily intake/outcome series.
type ActivityHandler struct {
	store storage.Store
}

// NewActivityHandler wires the activity endpoint to a store.
func NewActivityHandler(store storage.Store) *ActivityHandler {
	return &ActivityHandler{store: store}
}

// ActivityPoint is one day of staging intake and routing outcomes.
type ActivityPoint struct {
	Date       string `json:"date"` // UTC day, YYYY-MM-DD
	Received   int    `json:"received"`
	Processed  int    `json:"processed"`
	Duplicates int    `json:"duplicates"`
	Errors     int    `json:"errors"`
}

// ActivityResponse is the body of GET /api/activity.
type ActivityResponse struct {
	Points []ActivityPoint `json:"points"`
	Days   int             `json:"days"`
}

// GetActivity handles GET /api/activity?days=N.
// It returns a per-day series of extractions received and routing outcomes,
// oldest day first and ending with today. days defaults to 14, capped at 90.
//
// Received buckets by created_at. Outcomes bucket terminal rows by
// updated_at, which the router stamps at terminalization, so a day's counts
// say what the pipeline did that day, not when the inputs arrived.
func (h *ActivityHandler) GetActivity(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	days := queryInt(r, "days", 14)
	if days < 1 {
		days = 1
	}
	if days > 90 {
		days = 90
	}

	now := time.Now().UTC()
	start := now.Truncate(24 * time.Hour).AddDate(0, 0, -(days - 1))

	points := make([]ActivityPoint, 0, days)
	for i := 0; i < days; i++ {
		dayStart := start.AddDate(0, 0, i)
		dayEnd := dayStart.AddDate(0, 0, 1)

		received, err := h.store.Count(ctx, types.TableStaging, storage.Query{
			After:  map[string]time.Time{"created_at": dayStart},
			Before: map[string]time.Time{"created_at": dayEnd},
		})
		if err != nil {
			respondError(w, http.StatusInternalServerError, "failed to count staging activity", err)
			return
		}

		countOutcome := func(status types.StagingStatus) (int, error) {
			return h.store.Count(ctx, types.TableStaging, storage.Query{
				Filter: storage.Filter{"status": string(status)},
				After:  map[string]time.Time{"updated_at": dayStart},
				Before: map[string]time.Time{"updated_at": dayEnd},
			})
		}

		processed, err := countOutcome(types.StagingProcessed)
		if err != nil {
			respondError(w, http.StatusInternalServerError, "failed to count staging activity", err)
			return
		}
		duplicates, err := countOutcome(types.StagingDuplicate)
		if err != nil {
			respondError(w, http.StatusInternalServerError, "failed to count staging activity", err)
			return
		}
		failures, err := countOutcome(types.StagingError)
		if err != nil {
			respondError(w, http.StatusInternalServerError, "failed to count staging activity", err)
			return
		}

		points = append(points, ActivityPoint{
			Date:       dayStart.Format("2006-01-02"),
			Received:   received,
			Processed:  processed,
			Duplicates: duplicates,
			Errors:     failures,
		})
	}

	respondJSON(w, http.StatusOK, ActivityResponse{
		Points: points,
		Days:   days,
	})
}
