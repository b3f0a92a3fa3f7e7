package types

import "time"

// PurgeStatus represents the review state of a proposed retention deletion.
type PurgeStatus string

// Purge request status constants. A request is pending until a reviewer
// settles it, and a settled request never reopens.
const (
	// PurgePending indicates the request awaits a reviewer decision
	PurgePending PurgeStatus = "pending"

	// PurgeApproved indicates a reviewer approved and the captured records
	// were deleted
	PurgeApproved PurgeStatus = "approved"

	// PurgeRejected indicates a reviewer declined; nothing was deleted
	PurgeRejected PurgeStatus = "rejected"
)

// ValidPurgeStatuses contains all valid purge request status values.
var ValidPurgeStatuses = []PurgeStatus{
	PurgePending,
	PurgeApproved,
	PurgeRejected,
}

// IsValidPurgeStatus checks if the given status is a valid purge status.
func IsValidPurgeStatus(status PurgeStatus) bool {
	for _, s := range ValidPurgeStatuses {
		if status == s {
			return true
		}
	}
	return false
}

// IsTerminalPurgeStatus reports whether a purge status is terminal.
func IsTerminalPurgeStatus(status PurgeStatus) bool {
	return status == PurgeApproved || status == PurgeRejected
}

// IsValidPurgeTransition validates purge request status transitions.
//
//	pending -> approved | rejected
//	approved, rejected -> (terminal, no transitions out)
func IsValidPurgeTransition(current, next PurgeStatus) bool {
	return current == PurgePending && (next == PurgeApproved || next == PurgeRejected)
}

// PurgeRequest is a proposed deletion of stale records. Flagging captures
// the exact record ids at proposal time; approval deletes exactly that list,
// not whatever is stale at review time.
type PurgeRequest struct {
	ID           string      `json:"id"`
	TableName    string      `json:"table_name"`
	RecordIDs    []string    `json:"record_ids"`
	Cutoff       time.Time   `json:"cutoff"`
	Status       PurgeStatus `json:"status"`
	FlaggedBy    string      `json:"flagged_by"`
	ReviewedBy   string      `json:"reviewed_by,omitempty"`
	ReviewedAt   time.Time   `json:"reviewed_at,omitempty"`
	ReviewNote   string      `json:"review_note,omitempty"`
	Executed     bool        `json:"executed"`
	DeletedCount int         `json:"deleted_count"`
	CreatedAt    time.Time   `json:"created_at"`
	UpdatedAt    time.Time   `json:"updated_at"`
}

// Count returns the number of records the request proposes to delete.
func (p *PurgeRequest) Count() int {
	return len(p.RecordIDs)
}

// Record converts the purge request to its generic store representation.
// RecordIDs ride in metadata so the id list survives the generic store's
// JSON round trip untouched.
func (p *PurgeRequest) Record() Record {
	ids := make([]any, len(p.RecordIDs))
	for i, id := range p.RecordIDs {
		ids[i] = id
	}
	rec := Record{
		"id":            p.ID,
		"table_name":    p.TableName,
		"status":        string(p.Status),
		"flagged_by":    p.FlaggedBy,
		"reviewed_by":   p.ReviewedBy,
		"review_note":   p.ReviewNote,
		"executed":      p.Executed,
		"deleted_count": p.DeletedCount,
		"cutoff":        p.Cutoff,
		"created_at":    p.CreatedAt,
		"updated_at":    p.UpdatedAt,
		"metadata":      map[string]any{"record_ids": ids},
	}
	if !p.ReviewedAt.IsZero() {
		rec["reviewed_at"] = p.ReviewedAt
	}
	return rec
}

// PurgeRequestFromRecord builds a typed purge request from a generic store
// record.
func PurgeRequestFromRecord(rec Record) *PurgeRequest {
	p := &PurgeRequest{
		ID:           rec.ID(),
		TableName:    rec.String("table_name"),
		Cutoff:       rec.Time("cutoff"),
		Status:       PurgeStatus(rec.String("status")),
		FlaggedBy:    rec.String("flagged_by"),
		ReviewedBy:   rec.String("reviewed_by"),
		ReviewedAt:   rec.Time("reviewed_at"),
		ReviewNote:   rec.String("review_note"),
		Executed:     rec.Bool("executed"),
		DeletedCount: rec.Int("deleted_count"),
		CreatedAt:    rec.Time("created_at"),
		UpdatedAt:    rec.Time("updated_at"),
	}
	if meta := rec.Metadata(); meta != nil {
		if raw, ok := meta["record_ids"].([]any); ok {
			p.RecordIDs = make([]string, 0, len(raw))
			for _, v := range raw {
				if s, ok := v.(string); ok {
					p.RecordIDs = append(p.RecordIDs, s)
				}
			}
		}
	}
	return p
}
