package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/carverlabs/scribe/internal/archive"
	"github.com/carverlabs/scribe/internal/engine"
)

// RoutePipeline is the engine surface the pipeline trigger endpoints need.
type RoutePipeline interface {
	RouteNow(ctx context.Context) (*engine.RouteReport, error)
	LastRouteReport() *engine.RouteReport
}

// ArchivePipeline is the archiver surface the pipeline trigger endpoints need.
type ArchivePipeline interface {
	RunCycle(ctx context.Context) *archive.Report
	LastReport() *archive.Report
}

// PipelineHandlers contains HTTP handlers for manual pipeline triggers and
// cycle status.
type PipelineHandlers struct {
	router   RoutePipeline
	archiver ArchivePipeline
}

// NewPipelineHandlers creates a new PipelineHandlers instance.
func NewPipelineHandlers(router RoutePipeline, archiver ArchivePipeline) *PipelineHandlers {
	return &PipelineHandlers{
		router:   router,
		archiver: archiver,
	}
}

// PostRoute handles POST /api/pipeline/route - run one routing cycle now.
// If the loop is mid-cycle the report comes back with skipped set; both
// cases are 200.
func (h *PipelineHandlers) PostRoute(w http.ResponseWriter, r *http.Request) {
	report, err := h.router.RouteNow(r.Context())
	if err != nil {
		if errors.Is(err, engine.ErrNotStarted) {
			respondError(w, http.StatusConflict, "routing engine is not running", err)
			return
		}
		respondError(w, http.StatusInternalServerError, "routing cycle failed", err)
		return
	}
	respondJSON(w, http.StatusOK, report)
}

// PostArchive handles POST /api/pipeline/archive - run one archive cycle now.
// Single-flight: a cycle already in progress yields a skipped report.
func (h *PipelineHandlers) PostArchive(w http.ResponseWriter, r *http.Request) {
	report := h.archiver.RunCycle(r.Context())
	respondJSON(w, http.StatusOK, report)
}

// pipelineStatusResponse is the response format for GET /api/pipeline/status.
type pipelineStatusResponse struct {
	Route   *engine.RouteReport `json:"route,omitempty"`
	Archive *archive.Report     `json:"archive,omitempty"`
}

// GetStatus handles GET /api/pipeline/status - the most recent completed
// cycle reports. Fields are absent before a first cycle completes.
func (h *PipelineHandlers) GetStatus(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, pipelineStatusResponse{
		Route:   h.router.LastRouteReport(),
		Archive: h.archiver.LastReport(),
	})
}
