package handlers_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carverlabs/scribe/internal/archive"
	"github.com/carverlabs/scribe/internal/engine"
	"github.com/carverlabs/scribe/internal/storage"
	"github.com/carverlabs/scribe/pkg/types"
	"github.com/carverlabs/scribe/web/handlers"
)

func newTestArchiver(t *testing.T, store storage.Store) *archive.Archiver {
	t.Helper()
	arch, err := archive.NewArchiver(store, archive.Config{
		Interval:     time.Hour,
		CleanDwell:   time.Hour,
		ArchiveDwell: time.Hour,
	})
	require.NoError(t, err)
	return arch
}

func TestPostRoute_RunsCycle(t *testing.T) {
	store := newHandlerTestStore(t)

	eng, err := engine.NewEngine(store, nil, engine.RouterConfig{Interval: time.Hour})
	require.NoError(t, err)

	// Wait out the startup cycle so the manual trigger is not skipped.
	startupDone := make(chan struct{})
	var once sync.Once
	eng.SetOnCycleComplete(func(*engine.RouteReport) {
		once.Do(func() { close(startupDone) })
	})
	require.NoError(t, eng.Start(context.Background()))
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = eng.Shutdown(ctx)
	})
	select {
	case <-startupDone:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for the startup routing cycle")
	}

	seedStaging(t, store, &types.StagingExtraction{
		Bucket:  "Todos",
		Title:   "route me",
		Content: "pending work item",
		Status:  types.StagingPending,
	})

	h := handlers.NewPipelineHandlers(eng, newTestArchiver(t, store))

	req := httptest.NewRequest("POST", "/api/pipeline/route", nil)
	w := httptest.NewRecorder()
	h.PostRoute(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	var report engine.RouteReport
	require.NoError(t, json.NewDecoder(w.Body).Decode(&report))
	assert.False(t, report.Skipped)
	assert.Equal(t, 1, report.Picked)
	assert.Equal(t, 1, report.Processed)

	n, err := store.Count(context.Background(), types.TableTodos, storage.Query{})
	require.NoError(t, err)
	assert.Equal(t, 1, n, "routed todo should land in its destination table")
}

func TestPostRoute_EngineNotStarted(t *testing.T) {
	store := newHandlerTestStore(t)
	eng, err := engine.NewEngine(store, nil, engine.RouterConfig{Interval: time.Hour})
	require.NoError(t, err)

	h := handlers.NewPipelineHandlers(eng, newTestArchiver(t, store))

	req := httptest.NewRequest("POST", "/api/pipeline/route", nil)
	w := httptest.NewRecorder()
	h.PostRoute(w, req)

	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Contains(t, w.Body.String(), "routing engine is not running")
}

func TestPostArchive_CleansDweltSession(t *testing.T) {
	store := newHandlerTestStore(t)

	extractedAt := time.Now().UTC().Add(-2 * time.Hour)
	rec, err := store.Insert(context.Background(), types.TableSessions, types.Record{
		"title":        "support call",
		"raw_content":  "user reported checkout failures",
		"status":       string(types.SessionExtracted),
		"extracted_at": extractedAt,
		"created_at":   extractedAt,
	})
	require.NoError(t, err)

	arch := newTestArchiver(t, store)
	h := handlers.NewPipelineHandlers(nil, arch)

	req := httptest.NewRequest("POST", "/api/pipeline/archive", nil)
	w := httptest.NewRecorder()
	h.PostArchive(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	var report archive.Report
	require.NoError(t, json.NewDecoder(w.Body).Decode(&report))
	assert.False(t, report.Skipped)
	assert.Equal(t, 1, report.Cleaned)
	assert.Equal(t, 0, report.Errors)

	stored, err := store.Get(context.Background(), types.TableSessions, rec.ID())
	require.NoError(t, err)
	assert.Equal(t, string(types.SessionCleaned), stored.String("status"))
}

func TestGetStatus_ReportsLastCycles(t *testing.T) {
	store := newHandlerTestStore(t)
	arch := newTestArchiver(t, store)

	// One archive cycle so the archive side has a report; the route side
	// stays empty.
	arch.RunCycle(context.Background())

	eng, err := engine.NewEngine(store, nil, engine.RouterConfig{Interval: time.Hour})
	require.NoError(t, err)

	h := handlers.NewPipelineHandlers(eng, arch)

	req := httptest.NewRequest("GET", "/api/pipeline/status", nil)
	w := httptest.NewRecorder()
	h.GetStatus(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Route   *engine.RouteReport `json:"route"`
		Archive *archive.Report     `json:"archive"`
	}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.Nil(t, resp.Route)
	require.NotNil(t, resp.Archive)
	assert.False(t, resp.Archive.Skipped)
}
