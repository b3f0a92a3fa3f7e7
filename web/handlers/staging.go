package handlers

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/carverlabs/scribe/internal/storage"
	"github.com/carverlabs/scribe/pkg/types"
)

// Kicker nudges the routing engine without waiting for its ticker.
type Kicker interface {
	Kick()
}

// StagingHandlers contains HTTP handlers for the staging queue API.
type StagingHandlers struct {
	store  storage.Store
	kicker Kicker // may be nil
}

// NewStagingHandlers creates a new StagingHandlers instance.
func NewStagingHandlers(store storage.Store, kicker Kicker) *StagingHandlers {
	return &StagingHandlers{
		store:  store,
		kicker: kicker,
	}
}

// ListStaging handles GET /api/staging - list staging extractions with
// pagination and filtering, newest first.
func (h *StagingHandlers) ListStaging(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", 50)
	offset := queryInt(r, "offset", 0)

	// Clamp pagination to sane bounds.
	if limit > 1000 {
		limit = 1000
	}
	if limit < 1 {
		limit = 1
	}
	if offset < 0 {
		offset = 0
	}

	status := r.URL.Query().Get("status")
	bucket := r.URL.Query().Get("bucket")

	q := storage.Query{
		OrderBy:    "created_at",
		Descending: true,
		Limit:      limit,
		Offset:     offset,
	}

	filter := storage.Filter{}
	if status != "" {
		if !types.IsValidStagingStatus(types.StagingStatus(status)) {
			respondError(w, http.StatusBadRequest, "invalid status filter", nil)
			return
		}
		filter["status"] = status
	}
	if bucket != "" {
		filter["bucket"] = bucket
	}
	if len(filter) > 0 {
		q.Filter = filter
	}

	records, err := h.store.Select(r.Context(), types.TableStaging, q)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to list staging extractions", err)
		return
	}
	total, err := h.store.Count(r.Context(), types.TableStaging, q)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to count staging extractions", err)
		return
	}

	extractions := make([]*types.StagingExtraction, 0, len(records))
	for _, rec := range records {
		extractions = append(extractions, types.StagingFromRecord(rec))
	}

	respondJSON(w, http.StatusOK, StagingListResponse{
		Extractions: extractions,
		Total:       total,
		Limit:       limit,
		Offset:      offset,
	})
}

// GetStaging handles GET /api/staging/{id} - get a single staging extraction.
func (h *StagingHandlers) GetStaging(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		respondError(w, http.StatusBadRequest, "extraction ID is required", nil)
		return
	}

	rec, err := h.store.Get(r.Context(), types.TableStaging, id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			respondError(w, http.StatusNotFound, "extraction not found", err)
			return
		}
		respondError(w, http.StatusInternalServerError, "failed to get extraction", err)
		return
	}

	respondJSON(w, http.StatusOK, types.StagingFromRecord(rec))
}

// RetryStaging handles POST /api/staging/{id}/retry.
// Requeues an errored extraction as pending and nudges the routing engine.
// This is the only status transition out of error, and it is operator-only.
func (h *StagingHandlers) RetryStaging(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		respondError(w, http.StatusBadRequest, "extraction ID is required", nil)
		return
	}

	rec, err := h.store.Get(r.Context(), types.TableStaging, id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			respondError(w, http.StatusNotFound, "extraction not found", err)
			return
		}
		respondError(w, http.StatusInternalServerError, "failed to get extraction", err)
		return
	}

	ext := types.StagingFromRecord(rec)
	if ext.Status != types.StagingError {
		respondJSON(w, http.StatusConflict, RetryResponse{
			ID:       id,
			Requeued: false,
			Message:  fmt.Sprintf("extraction is not in error state (current: %s)", ext.Status),
		})
		return
	}

	changes := types.Record{"status": string(types.StagingPending)}
	if ext.Metadata != nil {
		// Drop the previous attempt's audit fields but keep the content hash,
		// so the rerouted record still dedups against its destination.
		meta := make(map[string]any, len(ext.Metadata))
		for k, v := range ext.Metadata {
			switch k {
			case types.MetaError, types.MetaErrorStage, types.MetaTargetTable, types.MetaDuplicateOf:
			default:
				meta[k] = v
			}
		}
		changes["metadata"] = meta
	}

	if _, err := h.store.Update(r.Context(), types.TableStaging, id, changes); err != nil {
		respondError(w, http.StatusInternalServerError, "failed to requeue extraction", err)
		return
	}

	if h.kicker != nil {
		h.kicker.Kick()
	}

	respondJSON(w, http.StatusOK, RetryResponse{
		ID:       id,
		Requeued: true,
		Message:  "extraction requeued for routing",
	})
}

