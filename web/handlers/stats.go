package handlers

import (
	"net/http"

	"github.com/carverlabs/scribe/internal/engine"
	"github.com/carverlabs/scribe/internal/storage"
	"github.com/carverlabs/scribe/pkg/types"
)

// RouteReporter exposes the last completed routing cycle for stats reporting.
type RouteReporter interface {
	LastRouteReport() *engine.RouteReport
}

// StatsHandler serves catalog-wide counters.
type StatsHandler struct {
	store    storage.Store
	reporter RouteReporter // may be nil
}

// NewStatsHandler wires the stats endpoint to a store and an optional
// routing-cycle reporter.
func NewStatsHandler(store storage.Store, reporter RouteReporter) *StatsHandler {
	return &StatsHandler{
		store:    store,
		reporter: reporter,
	}
}

// StatsResponse is the response format for GET /api/stats.
type StatsResponse struct {
	Staging      storage.CountByStatus `json:"staging"`
	Destinations map[string]int        `json:"destinations"`
	PendingDepth int                   `json:"pending_depth"`
	PurgePending int                   `json:"purge_pending"`
	LastRoute    *engine.RouteReport   `json:"last_route,omitempty"`
}

// GetStats handles GET /api/stats - returns catalog statistics: staging
// counts by status, per-destination record totals, and the last cycle.
func (h *StatsHandler) GetStats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	staging := storage.CountByStatus{}
	for _, status := range types.ValidStagingStatuses {
		n, err := h.store.Count(ctx, types.TableStaging, storage.Query{
			Filter: storage.Filter{"status": string(status)},
		})
		if err != nil {
			respondError(w, http.StatusInternalServerError, "failed to count staging extractions", err)
			return
		}
		staging[string(status)] = n
	}

	destinations := make(map[string]int, len(types.DestinationTables))
	for _, table := range types.DestinationTables {
		n, err := h.store.Count(ctx, table, storage.Query{})
		if err != nil {
			respondError(w, http.StatusInternalServerError, "failed to count "+table, err)
			return
		}
		destinations[table] = n
	}

	purgePending, err := h.store.Count(ctx, types.TablePurgeRequests, storage.Query{
		Filter: storage.Filter{"status": string(types.PurgePending)},
	})
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to count purge requests", err)
		return
	}

	stats := StatsResponse{
		Staging:      staging,
		Destinations: destinations,
		PendingDepth: staging[string(types.StagingPending)],
		PurgePending: purgePending,
	}
	if h.reporter != nil {
		stats.LastRoute = h.reporter.LastRouteReport()
	}

	respondJSON(w, http.StatusOK, stats)
}
