// Package taxonomy provides read-mostly access to the client/project
// hierarchy the planning subsystem owns. The catalog never mutates
// projects; it reads them to scope duplicate detection, resolve parent
// projects for phase classification, and look up phase structures.
//
// Lookups run against an explicitly cached snapshot: a struct holding the
// loaded projects and the instant the snapshot expires. A caller that finds
// the snapshot stale refreshes it in place under the service mutex. There
// is no background refresher and no package-level state.
package taxonomy

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/carverlabs/scribe/internal/storage"
	"github.com/carverlabs/scribe/pkg/types"
)

// DefaultCacheTTL is how long a loaded project snapshot stays valid.
// Projects change rarely, so a short TTL keeps the catalog responsive to
// planning-side edits without hammering the store on every routed record.
const DefaultCacheTTL = 5 * time.Minute

// snapshot is one cached load of the project table.
type snapshot struct {
	projects  []*types.Project
	byID      map[string]*types.Project
	expiresAt time.Time
}

func (s *snapshot) valid(now time.Time) bool {
	return s != nil && now.Before(s.expiresAt)
}

// Service reads projects and phases on behalf of the routing pipeline.
type Service struct {
	store storage.Store
	ttl   time.Duration

	mu   sync.Mutex
	crnt *snapshot
}

// NewService returns a project service backed by store. A non-positive ttl
// falls back to DefaultCacheTTL.
func NewService(store storage.Store, ttl time.Duration) *Service {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &Service{store: store, ttl: ttl}
}

// load returns a valid snapshot, refreshing from the store if the cached
// one is missing or expired.
func (s *Service) load(ctx context.Context) (*snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	if s.crnt.valid(now) {
		return s.crnt, nil
	}

	records, err := s.store.Select(ctx, types.TableProjects, storage.Query{
		OrderBy: "created_at",
	})
	if err != nil {
		return nil, fmt.Errorf("loading projects: %w", err)
	}

	next := &snapshot{
		projects:  make([]*types.Project, 0, len(records)),
		byID:      make(map[string]*types.Project, len(records)),
		expiresAt: now.Add(s.ttl),
	}
	for _, rec := range records {
		p := types.ProjectFromRecord(rec)
		if p.ID == "" {
			continue
		}
		next.projects = append(next.projects, p)
		next.byID[p.ID] = p
	}
	s.crnt = next
	return next, nil
}

// Invalidate drops the cached snapshot so the next lookup reloads.
func (s *Service) Invalidate() {
	s.mu.Lock()
	s.crnt = nil
	s.mu.Unlock()
}

// AllProjects returns every known project in creation order.
func (s *Service) AllProjects(ctx context.Context) ([]*types.Project, error) {
	snap, err := s.load(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]*types.Project, len(snap.projects))
	copy(out, snap.projects)
	return out, nil
}

// Project returns the project with the given id, or storage.ErrNotFound.
func (s *Service) Project(ctx context.Context, id string) (*types.Project, error) {
	if id == "" {
		return nil, fmt.Errorf("project id is empty: %w", storage.ErrInvalidInput)
	}
	snap, err := s.load(ctx)
	if err != nil {
		return nil, err
	}
	p, ok := snap.byID[id]
	if !ok {
		return nil, fmt.Errorf("project %s: %w", id, storage.ErrNotFound)
	}
	return p, nil
}

// PhaseOwner resolves the project whose phases apply to records filed under
// projectID. Phases hang off parent projects, so for a child project this is
// its parent; a top-level project owns its own phases.
func (s *Service) PhaseOwner(ctx context.Context, projectID string) (*types.Project, error) {
	p, err := s.Project(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if p.ParentID == "" {
		return p, nil
	}
	parent, err := s.Project(ctx, p.ParentID)
	if err != nil {
		return nil, fmt.Errorf("resolving parent of project %s: %w", projectID, err)
	}
	return parent, nil
}

// ChildProjects returns the projects whose parent is projectID, in creation
// order. Duplicate detection uses this to fan a parent-level sweep out over
// its children without crossing project boundaries.
func (s *Service) ChildProjects(ctx context.Context, projectID string) ([]*types.Project, error) {
	snap, err := s.load(ctx)
	if err != nil {
		return nil, err
	}
	var out []*types.Project
	for _, p := range snap.projects {
		if p.ParentID == projectID {
			out = append(out, p)
		}
	}
	return out, nil
}

// Phases returns the phases owned by projectID in sequence order.
func (s *Service) Phases(ctx context.Context, projectID string) ([]*types.Phase, error) {
	records, err := s.store.Select(ctx, types.TablePhases, storage.Query{
		Filter:  map[string]any{"project_id": projectID},
		OrderBy: "sequence",
	})
	if err != nil {
		return nil, fmt.Errorf("loading phases for project %s: %w", projectID, err)
	}
	out := make([]*types.Phase, 0, len(records))
	for _, rec := range records {
		out = append(out, types.PhaseFromRecord(rec))
	}
	return out, nil
}

// PhaseItems returns the checklist items of a phase in sequence order.
func (s *Service) PhaseItems(ctx context.Context, phaseID string) ([]*types.PhaseItem, error) {
	records, err := s.store.Select(ctx, types.TablePhaseItems, storage.Query{
		Filter:  map[string]any{"phase_id": phaseID},
		OrderBy: "sequence",
	})
	if err != nil {
		return nil, fmt.Errorf("loading items for phase %s: %w", phaseID, err)
	}
	out := make([]*types.PhaseItem, 0, len(records))
	for _, rec := range records {
		out = append(out, types.PhaseItemFromRecord(rec))
	}
	return out, nil
}
