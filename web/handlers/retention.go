package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/carverlabs/scribe/internal/attribution"
	"github.com/carverlabs/scribe/internal/retention"
	"github.com/carverlabs/scribe/internal/storage"
	"github.com/carverlabs/scribe/pkg/types"
)

// RetentionHandlers contains HTTP handlers for the retention API: staleness
// scans, flagging, and the two-party purge approval gate.
type RetentionHandlers struct {
	manager *retention.Manager
	hub     *WebSocketHub // may be nil
}

// NewRetentionHandlers creates a new RetentionHandlers instance. A non-nil
// hub receives purge lifecycle events.
func NewRetentionHandlers(manager *retention.Manager, hub *WebSocketHub) *RetentionHandlers {
	return &RetentionHandlers{
		manager: manager,
		hub:     hub,
	}
}

// GetRetention handles GET /api/retention - read-only staleness scan across
// every table the policy monitors.
func (h *RetentionHandlers) GetRetention(w http.ResponseWriter, r *http.Request) {
	report, err := h.manager.Scan(r.Context())
	if err != nil {
		respondRetentionError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, report)
}

// flagRequest is the JSON body for POST /api/retention/flag.
type flagRequest struct {
	Tables    []string `json:"tables"`
	FlaggedBy string   `json:"flagged_by,omitempty"`
}

// flagResponse is the response format for POST /api/retention/flag.
type flagResponse struct {
	Requests []*types.PurgeRequest `json:"requests"`
	Flagged  int                   `json:"flagged"`
}

// PostFlag handles POST /api/retention/flag.
// Captures each listed table's stale record ids into a pending purge request.
// The flagging identity defaults to the detected operator when the body does
// not name one.
func (h *RetentionHandlers) PostFlag(w http.ResponseWriter, r *http.Request) {
	var req flagRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "failed to parse request body", err)
		return
	}
	if len(req.Tables) == 0 {
		respondError(w, http.StatusBadRequest, "tables is required", nil)
		return
	}

	flaggedBy := req.FlaggedBy
	if flaggedBy == "" {
		flaggedBy = attribution.DetectOperator()
	}

	requests, err := h.manager.Flag(r.Context(), req.Tables, flaggedBy)
	if err != nil {
		respondRetentionError(w, err)
		return
	}
	if requests == nil {
		requests = []*types.PurgeRequest{}
	}

	for _, pr := range requests {
		h.broadcast(EventPurgeFlagged, pr)
	}

	respondJSON(w, http.StatusCreated, flagResponse{
		Requests: requests,
		Flagged:  len(requests),
	})
}

// ListRequests handles GET /api/retention/requests - list purge requests,
// newest first, optionally narrowed by ?status=.
func (h *RetentionHandlers) ListRequests(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", 50)
	if limit > 1000 {
		limit = 1000
	}
	if limit < 1 {
		limit = 1
	}

	status := types.PurgeStatus(r.URL.Query().Get("status"))
	if status != "" && !types.IsValidPurgeStatus(status) {
		respondError(w, http.StatusBadRequest, "invalid status filter", nil)
		return
	}

	requests, err := h.manager.Requests(r.Context(), status, limit)
	if err != nil {
		respondRetentionError(w, err)
		return
	}
	if requests == nil {
		requests = []*types.PurgeRequest{}
	}

	respondJSON(w, http.StatusOK, PurgeRequestsResponse{
		Requests: requests,
		Total:    len(requests),
	})
}

// reviewRequest is the JSON body for the approve and reject endpoints. The
// body may be omitted entirely, in which case the reviewer identity falls
// back to the detected operator.
type reviewRequest struct {
	ReviewedBy string `json:"reviewed_by,omitempty"`
	Note       string `json:"note,omitempty"`
}

// PostApprove handles POST /api/retention/requests/{id}/approve.
// Deletes exactly the records the request captured at flag time, then marks
// the request approved.
func (h *RetentionHandlers) PostApprove(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		respondError(w, http.StatusBadRequest, "request ID is required", nil)
		return
	}

	req, ok := h.decodeReview(w, r)
	if !ok {
		return
	}

	approved, err := h.manager.Approve(r.Context(), id, req.ReviewedBy)
	if err != nil {
		respondRetentionError(w, err)
		return
	}

	h.broadcast(EventPurgeApproved, approved)
	respondJSON(w, http.StatusOK, approved)
}

// PostReject handles POST /api/retention/requests/{id}/reject.
// Settles a pending request without deleting anything.
func (h *RetentionHandlers) PostReject(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		respondError(w, http.StatusBadRequest, "request ID is required", nil)
		return
	}

	req, ok := h.decodeReview(w, r)
	if !ok {
		return
	}

	rejected, err := h.manager.Reject(r.Context(), id, req.ReviewedBy, req.Note)
	if err != nil {
		respondRetentionError(w, err)
		return
	}

	h.broadcast(EventPurgeRejected, rejected)
	respondJSON(w, http.StatusOK, rejected)
}

// bulkApproveRequest is the JSON body for POST /api/retention/bulk-approve.
type bulkApproveRequest struct {
	RequestIDs []string `json:"request_ids"`
	ReviewedBy string   `json:"reviewed_by,omitempty"`
}

// bulkApproveResponse is the response format for POST /api/retention/bulk-approve.
type bulkApproveResponse struct {
	Outcomes []retention.BulkOutcome `json:"outcomes"`
	Approved int                     `json:"approved"`
	Failed   int                     `json:"failed"`
}

// PostBulkApprove handles POST /api/retention/bulk-approve.
// Applies the approval gate per listed request, continuing past individual
// failures.
func (h *RetentionHandlers) PostBulkApprove(w http.ResponseWriter, r *http.Request) {
	var req bulkApproveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "failed to parse request body", err)
		return
	}
	if len(req.RequestIDs) == 0 {
		respondError(w, http.StatusBadRequest, "request_ids is required", nil)
		return
	}

	reviewer := req.ReviewedBy
	if reviewer == "" {
		reviewer = attribution.DetectOperator()
	}

	outcomes := h.manager.BulkApprove(r.Context(), req.RequestIDs, reviewer)

	resp := bulkApproveResponse{Outcomes: outcomes}
	for _, outcome := range outcomes {
		if outcome.Error == "" {
			resp.Approved++
			h.broadcast(EventPurgeApproved, outcome)
		} else {
			resp.Failed++
		}
	}
	respondJSON(w, http.StatusOK, resp)
}

// decodeReview parses an optional review body and fills in the reviewer
// identity. Returns false after writing an error response.
func (h *RetentionHandlers) decodeReview(w http.ResponseWriter, r *http.Request) (reviewRequest, bool) {
	var req reviewRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		respondError(w, http.StatusBadRequest, "failed to parse request body", err)
		return req, false
	}
	if req.ReviewedBy == "" {
		req.ReviewedBy = attribution.DetectOperator()
	}
	return req, true
}

func (h *RetentionHandlers) broadcast(eventType string, data interface{}) {
	if h.hub != nil {
		h.hub.BroadcastEvent(eventType, data)
	}
}

// respondRetentionError maps retention failures onto API status codes.
func respondRetentionError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, retention.ErrAlreadyReviewed):
		respondError(w, http.StatusConflict, "purge request already reviewed", err)
	case errors.Is(err, storage.ErrNotFound):
		respondError(w, http.StatusNotFound, "purge request not found", err)
	case errors.Is(err, storage.ErrInvalidInput), errors.Is(err, storage.ErrUnknownTable):
		respondError(w, http.StatusBadRequest, "invalid retention request", err)
	case errors.Is(err, storage.ErrStoreUnavailable):
		respondError(w, http.StatusServiceUnavailable, "catalog store unavailable", err)
	default:
		respondError(w, http.StatusInternalServerError, "retention operation failed", err)
	}
}
