package handlers_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carverlabs/scribe/internal/storage"
	"github.com/carverlabs/scribe/pkg/types"
	"github.com/carverlabs/scribe/web/handlers"
)

// seedStagingAt inserts a staging row with explicit timestamps so tests can
// pin rows to a day regardless of when they run.
func seedStagingAt(t *testing.T, store storage.Store, status types.StagingStatus, createdAt, updatedAt time.Time) {
	t.Helper()
	_, err := store.Insert(context.Background(), types.TableStaging, types.Record{
		"bucket":     "Todos",
		"title":      "activity seed",
		"content":    "seeded for the activity series",
		"status":     string(status),
		"created_at": createdAt,
		"updated_at": updatedAt,
	})
	require.NoError(t, err)
}

func TestGetActivity_BucketsByDay(t *testing.T) {
	store := newHandlerTestStore(t)

	today := time.Now().UTC().Truncate(24 * time.Hour)
	yesterday := today.AddDate(0, 0, -1)
	// Noon anchors keep every seeded row inside its day window.
	todayNoon := today.Add(12 * time.Hour)
	yesterdayNoon := yesterday.Add(12 * time.Hour)

	// Received yesterday, routed today.
	seedStagingAt(t, store, types.StagingProcessed, yesterdayNoon, todayNoon)
	// Received and still pending today.
	seedStagingAt(t, store, types.StagingPending, todayNoon, todayNoon)
	// Received and deduplicated today.
	seedStagingAt(t, store, types.StagingDuplicate, todayNoon, todayNoon)

	h := handlers.NewActivityHandler(store)

	req := httptest.NewRequest("GET", "/api/activity?days=3", nil)
	w := httptest.NewRecorder()
	h.GetActivity(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	var resp handlers.ActivityResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.Equal(t, 3, resp.Days)
	require.Len(t, resp.Points, 3)

	byDate := make(map[string]handlers.ActivityPoint, len(resp.Points))
	for _, p := range resp.Points {
		byDate[p.Date] = p
	}

	yp, ok := byDate[yesterday.Format("2006-01-02")]
	require.True(t, ok, "series should cover yesterday")
	assert.Equal(t, 1, yp.Received)
	assert.Equal(t, 0, yp.Processed)

	tp, ok := byDate[today.Format("2006-01-02")]
	require.True(t, ok, "series should cover today")
	assert.Equal(t, 2, tp.Received)
	assert.Equal(t, 1, tp.Processed)
	assert.Equal(t, 1, tp.Duplicates)
	assert.Equal(t, 0, tp.Errors)
}

func TestGetActivity_OldestFirst(t *testing.T) {
	store := newHandlerTestStore(t)
	h := handlers.NewActivityHandler(store)

	req := httptest.NewRequest("GET", "/api/activity?days=2", nil)
	w := httptest.NewRecorder()
	h.GetActivity(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	var resp handlers.ActivityResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	require.Len(t, resp.Points, 2)
	assert.Less(t, resp.Points[0].Date, resp.Points[1].Date)
}

func TestGetActivity_ClampsDays(t *testing.T) {
	store := newHandlerTestStore(t)
	h := handlers.NewActivityHandler(store)

	req := httptest.NewRequest("GET", "/api/activity?days=500", nil)
	w := httptest.NewRecorder()
	h.GetActivity(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	var resp handlers.ActivityResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.Equal(t, 90, resp.Days)
	assert.Len(t, resp.Points, 90)
}

func TestGetActivity_DefaultsToTwoWeeks(t *testing.T) {
	store := newHandlerTestStore(t)
	h := handlers.NewActivityHandler(store)

	req := httptest.NewRequest("GET", "/api/activity", nil)
	w := httptest.NewRecorder()
	h.GetActivity(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	var resp handlers.ActivityResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.Equal(t, 14, resp.Days)
	assert.Len(t, resp.Points, 14)
}
