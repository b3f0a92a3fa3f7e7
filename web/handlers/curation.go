package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/carverlabs/scribe/internal/engine"
	"github.com/carverlabs/scribe/internal/storage"
	"github.com/carverlabs/scribe/pkg/types"
)

// Curator is the engine surface the curation endpoints drive.
type Curator interface {
	FindDuplicates(ctx context.Context, table, projectID string) (*engine.DuplicateGroups, error)
	ConsolidateTable(ctx context.Context, table, projectID string) (*engine.ConsolidationReport, error)
	ConsolidateAll(ctx context.Context, table string) (*engine.ConsolidationReport, error)
	AssignProjectPhases(ctx context.Context, table, projectID string) (*engine.PhaseAssignment, error)
	NormalizeStatuses(ctx context.Context, table, projectID string) (*engine.NormalizeReport, error)
	CompletionCandidates(ctx context.Context, table, projectID string, mentions []string) ([]engine.CompletionCandidate, error)
	RollupPhaseItems(ctx context.Context, projectID string) (*engine.RollupReport, error)
}

// CurationHandlers contains HTTP handlers for on-demand catalog curation:
// duplicate scans, consolidation, phase assignment, and status reconciliation.
type CurationHandlers struct {
	curator Curator
}

// NewCurationHandlers creates a new CurationHandlers instance.
func NewCurationHandlers(curator Curator) *CurationHandlers {
	return &CurationHandlers{curator: curator}
}

// duplicatesResponse summarizes one duplicate scan.
type duplicatesResponse struct {
	Table        string           `json:"table"`
	ProjectID    string           `json:"project_id"`
	Groups       [][]types.Record `json:"groups"`
	GroupedCount int              `json:"grouped_count"`
	Singles      int              `json:"singles"`
}

// GetDuplicates handles GET /api/curation/duplicates?table=&project_id=.
// Read-only: it reports duplicate clusters without folding them.
func (h *CurationHandlers) GetDuplicates(w http.ResponseWriter, r *http.Request) {
	table := r.URL.Query().Get("table")
	projectID := r.URL.Query().Get("project_id")
	if table == "" {
		respondError(w, http.StatusBadRequest, "table is required", nil)
		return
	}

	groups, err := h.curator.FindDuplicates(r.Context(), table, projectID)
	if err != nil {
		respondCurationError(w, err)
		return
	}

	resp := duplicatesResponse{
		Table:        groups.Table,
		ProjectID:    projectID,
		Groups:       groups.Groups,
		GroupedCount: groups.GroupedCount(),
		Singles:      len(groups.Singles),
	}
	if resp.Groups == nil {
		resp.Groups = [][]types.Record{}
	}
	respondJSON(w, http.StatusOK, resp)
}

// consolidateRequest is the JSON body for POST /api/curation/consolidate.
// An empty project_id consolidates every known project.
type consolidateRequest struct {
	Table     string `json:"table"`
	ProjectID string `json:"project_id,omitempty"`
}

// consolidateResponse reports one consolidation run.
type consolidateResponse struct {
	Table        string `json:"table"`
	ProjectID    string `json:"project_id,omitempty"`
	Groups       int    `json:"groups"`
	Consolidated int    `json:"consolidated"`
	Errors       int    `json:"errors"`
}

// PostConsolidate handles POST /api/curation/consolidate.
// Folds duplicate groups into one canonical record each; nothing is deleted.
func (h *CurationHandlers) PostConsolidate(w http.ResponseWriter, r *http.Request) {
	var req consolidateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "failed to parse request body", err)
		return
	}
	if req.Table == "" {
		respondError(w, http.StatusBadRequest, "table is required", nil)
		return
	}

	var report *engine.ConsolidationReport
	var err error
	if req.ProjectID == "" {
		report, err = h.curator.ConsolidateAll(r.Context(), req.Table)
	} else {
		report, err = h.curator.ConsolidateTable(r.Context(), req.Table, req.ProjectID)
	}
	if err != nil {
		respondCurationError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, consolidateResponse{
		Table:        report.Table,
		ProjectID:    report.ProjectID,
		Groups:       report.Groups,
		Consolidated: report.Consolidated,
		Errors:       report.Errors,
	})
}

// phasesRequest is the JSON body for POST /api/curation/phases.
type phasesRequest struct {
	Table     string `json:"table"`
	ProjectID string `json:"project_id"`
}

// phasesResponse reports one phase classification pass.
type phasesResponse struct {
	Table     string `json:"table"`
	ProjectID string `json:"project_id"`
	Scanned   int    `json:"scanned"`
	Assigned  int    `json:"assigned"`
	Skipped   int    `json:"skipped"`
	Failed    int    `json:"failed"`
}

// PostPhases handles POST /api/curation/phases.
// Classifies a project's unphased records against its phase owner's phases.
func (h *CurationHandlers) PostPhases(w http.ResponseWriter, r *http.Request) {
	var req phasesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "failed to parse request body", err)
		return
	}
	if req.Table == "" || req.ProjectID == "" {
		respondError(w, http.StatusBadRequest, "table and project_id are required", nil)
		return
	}

	assignment, err := h.curator.AssignProjectPhases(r.Context(), req.Table, req.ProjectID)
	if err != nil {
		respondCurationError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, phasesResponse{
		Table:     assignment.Table,
		ProjectID: assignment.ProjectID,
		Scanned:   assignment.Scanned,
		Assigned:  assignment.Assigned,
		Skipped:   assignment.Skipped,
		Failed:    assignment.Failed,
	})
}

// normalizeRequest is the JSON body for POST /api/curation/normalize.
type normalizeRequest struct {
	Table     string `json:"table"`
	ProjectID string `json:"project_id"`
}

// normalizeResponse reports one status normalization pass.
type normalizeResponse struct {
	Table      string `json:"table"`
	ProjectID  string `json:"project_id"`
	Scanned    int    `json:"scanned"`
	Normalized int    `json:"normalized"`
	Failed     int    `json:"failed"`
}

// PostNormalize handles POST /api/curation/normalize.
// Reconciles done-vocabulary statuses in one project's slice of a table.
func (h *CurationHandlers) PostNormalize(w http.ResponseWriter, r *http.Request) {
	var req normalizeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "failed to parse request body", err)
		return
	}
	if req.Table == "" || req.ProjectID == "" {
		respondError(w, http.StatusBadRequest, "table and project_id are required", nil)
		return
	}

	report, err := h.curator.NormalizeStatuses(r.Context(), req.Table, req.ProjectID)
	if err != nil {
		respondCurationError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, normalizeResponse{
		Table:      report.Table,
		ProjectID:  req.ProjectID,
		Scanned:    report.Scanned,
		Normalized: report.Normalized,
		Failed:     report.Failed,
	})
}

// completionsRequest is the JSON body for POST /api/curation/completions.
type completionsRequest struct {
	Table     string   `json:"table"`
	ProjectID string   `json:"project_id"`
	Mentions  []string `json:"mentions"`
}

// completionCandidate is one advisory completion match.
type completionCandidate struct {
	RecordID string  `json:"record_id"`
	Title    string  `json:"title"`
	Mention  string  `json:"mention"`
	Score    float64 `json:"score"`
}

// completionsResponse lists advisory completion candidates.
type completionsResponse struct {
	Candidates []completionCandidate `json:"candidates"`
}

// PostCompletions handles POST /api/curation/completions.
// Matches freeform completion mentions against open records. Advisory only;
// nothing is mutated.
func (h *CurationHandlers) PostCompletions(w http.ResponseWriter, r *http.Request) {
	var req completionsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "failed to parse request body", err)
		return
	}
	if req.Table == "" || req.ProjectID == "" {
		respondError(w, http.StatusBadRequest, "table and project_id are required", nil)
		return
	}
	if len(req.Mentions) == 0 {
		respondError(w, http.StatusBadRequest, "mentions is required", nil)
		return
	}

	candidates, err := h.curator.CompletionCandidates(r.Context(), req.Table, req.ProjectID, req.Mentions)
	if err != nil {
		respondCurationError(w, err)
		return
	}

	resp := completionsResponse{Candidates: make([]completionCandidate, 0, len(candidates))}
	for _, c := range candidates {
		resp.Candidates = append(resp.Candidates, completionCandidate{
			RecordID: c.RecordID,
			Title:    c.Title,
			Mention:  c.Mention,
			Score:    c.Score,
		})
	}
	respondJSON(w, http.StatusOK, resp)
}

// rollupRequest is the JSON body for POST /api/curation/rollup.
type rollupRequest struct {
	ProjectID string `json:"project_id"`
}

// rollupResponse reports one phase-item rollup pass.
type rollupResponse struct {
	ProjectID string `json:"project_id"`
	Completed int    `json:"completed"`
	Skipped   int    `json:"skipped"`
	Failed    int    `json:"failed"`
}

// PostRollup handles POST /api/curation/rollup.
// Completes phase items whose related records are all done.
func (h *CurationHandlers) PostRollup(w http.ResponseWriter, r *http.Request) {
	var req rollupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "failed to parse request body", err)
		return
	}
	if req.ProjectID == "" {
		respondError(w, http.StatusBadRequest, "project_id is required", nil)
		return
	}

	report, err := h.curator.RollupPhaseItems(r.Context(), req.ProjectID)
	if err != nil {
		respondCurationError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, rollupResponse{
		ProjectID: req.ProjectID,
		Completed: report.Completed,
		Skipped:   report.Skipped,
		Failed:    report.Failed,
	})
}

// respondCurationError maps curation failures onto API status codes.
func respondCurationError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, engine.ErrNotStarted):
		respondError(w, http.StatusConflict, "routing engine is not running", err)
	case errors.Is(err, storage.ErrNotFound):
		respondError(w, http.StatusNotFound, "project not found", err)
	case errors.Is(err, storage.ErrInvalidInput), errors.Is(err, storage.ErrUnknownTable):
		respondError(w, http.StatusBadRequest, "invalid curation request", err)
	case errors.Is(err, storage.ErrStoreUnavailable):
		respondError(w, http.StatusServiceUnavailable, "catalog store unavailable", err)
	default:
		respondError(w, http.StatusInternalServerError, "curation operation failed", err)
	}
}
