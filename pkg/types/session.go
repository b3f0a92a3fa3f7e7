package types

import "time"

// SessionStatus represents a conversation session's position in the archive
// lifecycle.
type SessionStatus string

// Session lifecycle constants. Transitions are strictly forward; nothing
// ever moves a session back toward active.
const (
	// SessionActive indicates the conversation is still receiving messages
	SessionActive SessionStatus = "active"

	// SessionProcessed indicates the conversation has ended and is queued
	// for extraction
	SessionProcessed SessionStatus = "processed"

	// SessionExtracted indicates the extraction stage has harvested the
	// session; the archiver's dwell clock starts here
	SessionExtracted SessionStatus = "extracted"

	// SessionCleaned indicates raw content has been scrubbed and summarized
	SessionCleaned SessionStatus = "cleaned"

	// SessionArchived indicates the session left the active working set
	SessionArchived SessionStatus = "archived"
)

// ValidSessionStatuses contains all valid session status values.
var ValidSessionStatuses = []SessionStatus{
	SessionActive,
	SessionProcessed,
	SessionExtracted,
	SessionCleaned,
	SessionArchived,
}

// IsValidSessionStatus checks if the given status is a valid session status.
func IsValidSessionStatus(status SessionStatus) bool {
	for _, s := range ValidSessionStatuses {
		if status == s {
			return true
		}
	}
	return false
}

// IsValidSessionTransition validates session lifecycle transitions. Each
// state advances to exactly its successor; skipping and reversing are both
// rejected.
//
//	active -> processed -> extracted -> cleaned -> archived
func IsValidSessionTransition(current, next SessionStatus) bool {
	switch current {
	case SessionActive:
		return next == SessionProcessed
	case SessionProcessed:
		return next == SessionExtracted
	case SessionExtracted:
		return next == SessionCleaned
	case SessionCleaned:
		return next == SessionArchived
	default:
		return false
	}
}

// Session is a recorded conversation moving through the archive lifecycle.
// ExtractedAt anchors the archiver's dwell timing for both of its
// transitions, so the field never changes once set.
type Session struct {
	ID          string         `json:"id"`
	ProjectID   string         `json:"project_id,omitempty"`
	ClientID    string         `json:"client_id,omitempty"`
	Title       string         `json:"title,omitempty"`
	RawContent  string         `json:"raw_content,omitempty"`
	Status      SessionStatus  `json:"status"`
	SummaryID   string         `json:"summary_id,omitempty"`
	ExtractedAt time.Time      `json:"extracted_at,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

// Record converts the session to its generic store representation.
func (s *Session) Record() Record {
	rec := Record{
		"id":          s.ID,
		"project_id":  s.ProjectID,
		"client_id":   s.ClientID,
		"title":       s.Title,
		"raw_content": s.RawContent,
		"status":      string(s.Status),
		"summary_id":  s.SummaryID,
		"created_at":  s.CreatedAt,
		"updated_at":  s.UpdatedAt,
	}
	if !s.ExtractedAt.IsZero() {
		rec["extracted_at"] = s.ExtractedAt
	}
	if s.Metadata != nil {
		rec["metadata"] = s.Metadata
	}
	return rec
}

// SessionFromRecord builds a typed session from a generic store record.
func SessionFromRecord(rec Record) *Session {
	return &Session{
		ID:          rec.ID(),
		ProjectID:   rec.String("project_id"),
		ClientID:    rec.String("client_id"),
		Title:       rec.String("title"),
		RawContent:  rec.String("raw_content"),
		Status:      SessionStatus(rec.String("status")),
		SummaryID:   rec.String("summary_id"),
		ExtractedAt: rec.Time("extracted_at"),
		Metadata:    rec.Metadata(),
		CreatedAt:   rec.Time("created_at"),
		UpdatedAt:   rec.Time("updated_at"),
	}
}

// SessionSummary is the compact topic digest the archiver derives from a
// session's raw content before scrubbing it.
type SessionSummary struct {
	ID           string    `json:"id"`
	SessionID    string    `json:"session_id"`
	Summary      string    `json:"summary"`
	Topics       []string  `json:"topics,omitempty"`
	UserTurns    int       `json:"user_turns"`
	AgentTurns   int       `json:"agent_turns"`
	SourceLength int       `json:"source_length"`
	CreatedAt    time.Time `json:"created_at"`
}

// Record converts the summary to its generic store representation.
func (s *SessionSummary) Record() Record {
	rec := Record{
		"id":            s.ID,
		"session_id":    s.SessionID,
		"summary":       s.Summary,
		"user_turns":    s.UserTurns,
		"agent_turns":   s.AgentTurns,
		"source_length": s.SourceLength,
	}
	if len(s.Topics) > 0 {
		rec["topics"] = s.Topics
	}
	if !s.CreatedAt.IsZero() {
		rec["created_at"] = s.CreatedAt
	}
	return rec
}
