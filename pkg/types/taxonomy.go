package types

import "time"

// Project is a node in the client/project hierarchy the planning subsystem
// maintains. The catalog reads projects to scope duplicate detection and to
// find parent projects whose phases classify child records; Keywords feed
// content-based project detection for legacy callers that route without an
// explicit project id.
type Project struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	ClientID  string    `json:"client_id,omitempty"`
	ParentID  string    `json:"parent_id,omitempty"`
	Keywords  []string  `json:"keywords,omitempty"`
	Status    string    `json:"status,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ProjectFromRecord builds a typed project from a generic store record.
func ProjectFromRecord(rec Record) *Project {
	p := &Project{
		ID:        rec.ID(),
		Name:      rec.String("name"),
		ClientID:  rec.String("client_id"),
		ParentID:  rec.String("parent_id"),
		Status:    rec.String("status"),
		CreatedAt: rec.Time("created_at"),
		UpdatedAt: rec.Time("updated_at"),
	}
	if meta := rec.Metadata(); meta != nil {
		if raw, ok := meta["keywords"].([]any); ok {
			p.Keywords = make([]string, 0, len(raw))
			for _, v := range raw {
				if s, ok := v.(string); ok {
					p.Keywords = append(p.Keywords, s)
				}
			}
		}
	}
	return p
}

// Phase is a planning phase belonging to a parent project. Phase names plus
// their item titles form the keyword sets the phase classifier scores
// against.
type Phase struct {
	ID        string    `json:"id"`
	ProjectID string    `json:"project_id"`
	Name      string    `json:"name"`
	Sequence  int       `json:"sequence,omitempty"`
	Status    string    `json:"status,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// PhaseFromRecord builds a typed phase from a generic store record.
func PhaseFromRecord(rec Record) *Phase {
	return &Phase{
		ID:        rec.ID(),
		ProjectID: rec.String("project_id"),
		Name:      rec.String("name"),
		Sequence:  rec.Int("sequence"),
		Status:    rec.String("status"),
		CreatedAt: rec.Time("created_at"),
		UpdatedAt: rec.Time("updated_at"),
	}
}

// Phase item status constants. Rollup marks an item complete only when every
// related work record is terminal.
const (
	PhaseItemPending  = "pending"
	PhaseItemComplete = "complete"
)

// PhaseItem is a single deliverable inside a phase.
type PhaseItem struct {
	ID        string    `json:"id"`
	PhaseID   string    `json:"phase_id"`
	Title     string    `json:"title"`
	Status    string    `json:"status,omitempty"`
	Sequence  int       `json:"sequence,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// PhaseItemFromRecord builds a typed phase item from a generic store record.
func PhaseItemFromRecord(rec Record) *PhaseItem {
	return &PhaseItem{
		ID:        rec.ID(),
		PhaseID:   rec.String("phase_id"),
		Title:     rec.String("title"),
		Status:    rec.String("status"),
		Sequence:  rec.Int("sequence"),
		CreatedAt: rec.Time("created_at"),
		UpdatedAt: rec.Time("updated_at"),
	}
}
