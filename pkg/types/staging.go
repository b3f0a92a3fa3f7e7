package types

import "time"

// StagingStatus represents the processing status of a staging extraction.
type StagingStatus string

// Staging extraction status constants. A record enters the table as pending
// and the router moves it to exactly one terminal status per cycle.
const (
	// StagingPending indicates the extraction is awaiting routing
	StagingPending StagingStatus = "pending"

	// StagingProcessed indicates the extraction was written to its
	// destination table
	StagingProcessed StagingStatus = "processed"

	// StagingDuplicate indicates an existing destination record carries the
	// same content hash
	StagingDuplicate StagingStatus = "duplicate"

	// StagingError indicates routing failed (unknown bucket or write
	// failure); details are in the record's metadata audit fields
	StagingError StagingStatus = "error"
)

// ValidStagingStatuses contains all valid staging status values.
var ValidStagingStatuses = []StagingStatus{
	StagingPending,
	StagingProcessed,
	StagingDuplicate,
	StagingError,
}

// IsValidStagingStatus checks if the given status is a valid staging status.
func IsValidStagingStatus(status StagingStatus) bool {
	for _, s := range ValidStagingStatuses {
		if status == s {
			return true
		}
	}
	return false
}

// IsTerminalStagingStatus reports whether a staging status is terminal. The
// router never picks up a terminal record again.
func IsTerminalStagingStatus(status StagingStatus) bool {
	return status == StagingProcessed || status == StagingDuplicate || status == StagingError
}

// IsValidStagingTransition validates staging status transitions.
//
// Valid transitions:
//
//	pending -> processed | duplicate | error
//	error -> pending (operator requeue only; the router never does this)
//	processed, duplicate -> (terminal, no transitions out)
func IsValidStagingTransition(current, next StagingStatus) bool {
	switch current {
	case StagingPending:
		return next == StagingProcessed || next == StagingDuplicate || next == StagingError
	case StagingError:
		return next == StagingPending
	default:
		return false
	}
}

// Metadata keys written by the router when a staging record terminalizes as
// error. Existing metadata is preserved; these keys are appended.
const (
	MetaError       = "error"        // human-readable failure description
	MetaErrorStage  = "error_stage"  // pipeline stage that failed
	MetaTargetTable = "target_table" // destination table attempted, when known
	MetaHash        = "hash"         // content hash provided by the extractor
	MetaDuplicateOf = "duplicate_of" // destination record id that matched on hash
)

// StagingExtraction is an extracted conversational fragment awaiting routing
// into the catalog. The upstream extraction stage inserts these; the router
// owns every status change after that.
type StagingExtraction struct {
	ID              string         `json:"id"`
	Bucket          string         `json:"bucket"`
	Title           string         `json:"title"`
	Content         string         `json:"content"`
	Summary         string         `json:"summary,omitempty"`
	ProjectID       string         `json:"project_id,omitempty"`
	ClientID        string         `json:"client_id,omitempty"`
	SourceSessionID string         `json:"source_session_id,omitempty"`
	Status          StagingStatus  `json:"status"`
	Metadata        map[string]any `json:"metadata,omitempty"`
	CreatedAt       time.Time      `json:"created_at"`
	UpdatedAt       time.Time      `json:"updated_at"`
}

// ContentHash returns the extractor-provided content hash from metadata, or
// "" when the record has none. Hash dedup is authoritative; prefix matching
// exists only for hashless legacy callers.
func (e *StagingExtraction) ContentHash() string {
	if e.Metadata == nil {
		return ""
	}
	if h, ok := e.Metadata[MetaHash].(string); ok {
		return h
	}
	return ""
}

// Record converts the extraction to its generic store representation.
func (e *StagingExtraction) Record() Record {
	rec := Record{
		"id":                e.ID,
		"bucket":            e.Bucket,
		"title":             e.Title,
		"content":           e.Content,
		"summary":           e.Summary,
		"project_id":        e.ProjectID,
		"client_id":         e.ClientID,
		"source_session_id": e.SourceSessionID,
		"status":            string(e.Status),
		"created_at":        e.CreatedAt,
		"updated_at":        e.UpdatedAt,
	}
	if e.Metadata != nil {
		rec["metadata"] = e.Metadata
	}
	return rec
}

// StagingFromRecord builds a typed extraction from a generic store record.
func StagingFromRecord(rec Record) *StagingExtraction {
	return &StagingExtraction{
		ID:              rec.ID(),
		Bucket:          rec.String("bucket"),
		Title:           rec.String("title"),
		Content:         rec.String("content"),
		Summary:         rec.String("summary"),
		ProjectID:       rec.String("project_id"),
		ClientID:        rec.String("client_id"),
		SourceSessionID: rec.String("source_session_id"),
		Status:          StagingStatus(rec.String("status")),
		Metadata:        rec.Metadata(),
		CreatedAt:       rec.Time("created_at"),
		UpdatedAt:       rec.Time("updated_at"),
	}
}
