// Package handlers implements the ops API surface: staging listings and
// retries, pipeline triggers, curation operations, the retention review flow,
// JSONL import, the websocket event feed, and the auth and rate-limit
// middleware in front of it.
package handlers

import (
	"encoding/json"
	"log"
	"net/http"
	"strconv"

	"github.com/carverlabs/scribe/pkg/types"
)

// ErrorResponse is the standard error response format for the API.
type ErrorResponse struct {
	Error   string                 `json:"error"`
	Code    string                 `json:"code"`
	Details map[string]interface{} `json:"details,omitempty"`
}

// StagingListResponse is the response format for GET /api/staging.
type StagingListResponse struct {
	Extractions []*types.StagingExtraction `json:"extractions"`
	Total       int                        `json:"total"`
	Limit       int                        `json:"limit"`
	Offset      int                        `json:"offset"`
}

// RetryResponse is the response format for POST /api/staging/{id}/retry.
type RetryResponse struct {
	ID       string `json:"id"`
	Requeued bool   `json:"requeued"`
	Message  string `json:"message"`
}

// PurgeRequestsResponse is the response format for GET /api/retention/requests.
type PurgeRequestsResponse struct {
	Requests []*types.PurgeRequest `json:"requests"`
	Total    int                   `json:"total"`
}

// queryInt reads an integer query parameter, falling back when the value is
// absent or malformed.
func queryInt(r *http.Request, key string, fallback int) int {
	if v, err := strconv.Atoi(r.URL.Query().Get(key)); err == nil {
		return v
	}
	return fallback
}

// respondJSON writes data as the JSON body with the given status.
func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		// Headers are gone already; all we can do is log.
		log.Printf("handlers: encode response: %v", err)
	}
}

// respondError writes the standard error envelope. err is optional detail.
func respondError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message, Code: http.StatusText(status)}
	if err != nil {
		resp.Details = map[string]interface{}{"error": err.Error()}
	}
	respondJSON(w, status, resp)
}
