package engine

import (
	"context"
	"fmt"
	"log"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/carverlabs/scribe/internal/storage"
	"github.com/carverlabs/scribe/internal/taxonomy"
	"github.com/carverlabs/scribe/pkg/types"
)

// MinPhaseScore is the weakest keyword match that still assigns a phase.
// Anything below it leaves the record unassigned rather than guessing.
const MinPhaseScore = 0.3

const (
	phaseCacheSize = 64
	phaseCacheTTL  = 5 * time.Minute
)

// PhaseKeywords couples a phase with the keyword set derived from its name
// and every item title under it.
type PhaseKeywords struct {
	Phase    *types.Phase
	Keywords map[string]struct{}
}

// phaseSet is one cached keyword build for a parent project, valid until
// its expiry instant.
type phaseSet struct {
	phases    []PhaseKeywords
	expiresAt time.Time
}

// PhaseMatch is the winning phase for one record title.
type PhaseMatch struct {
	PhaseID string
	Name    string
	Score   float64
}

// PhaseAssignment summarizes one classification pass over a project+table.
type PhaseAssignment struct {
	Table     string
	ProjectID string
	Scanned   int
	Assigned  int
	Skipped   int
	Failed    int
}

// PhaseClassifier assigns unphased work records to the phases of their
// parent project by scoring title keywords. Keyword sets are cached per
// parent project with a short TTL since phase structures change far less
// often than records arrive.
type PhaseClassifier struct {
	store    storage.Store
	projects *taxonomy.Service
	minScore float64
	ttl      time.Duration
	cache    *lru.Cache[string, *phaseSet]
}

// NewPhaseClassifier returns a classifier reading phase structures through
// projects and records through store.
func NewPhaseClassifier(store storage.Store, projects *taxonomy.Service) *PhaseClassifier {
	cache, _ := lru.New[string, *phaseSet](phaseCacheSize)
	return &PhaseClassifier{
		store:    store,
		projects: projects,
		minScore: MinPhaseScore,
		ttl:      phaseCacheTTL,
		cache:    cache,
	}
}

// ProjectPhases returns the parent project's phases with their keyword sets,
// serving from cache while the cached build is fresh.
func (c *PhaseClassifier) ProjectPhases(ctx context.Context, parentID string) ([]PhaseKeywords, error) {
	if cached, ok := c.cache.Get(parentID); ok && time.Now().Before(cached.expiresAt) {
		return cached.phases, nil
	}

	phases, err := c.projects.Phases(ctx, parentID)
	if err != nil {
		return nil, fmt.Errorf("building phase keywords for %s: %w", parentID, err)
	}

	built := make([]PhaseKeywords, 0, len(phases))
	for _, phase := range phases {
		keywords := make(map[string]struct{})
		for _, term := range ExtractTerms(phase.Name) {
			keywords[term] = struct{}{}
		}
		items, err := c.projects.PhaseItems(ctx, phase.ID)
		if err != nil {
			return nil, fmt.Errorf("building phase keywords for %s: %w", parentID, err)
		}
		for _, item := range items {
			for _, term := range ExtractTerms(item.Title) {
				keywords[term] = struct{}{}
			}
		}
		built = append(built, PhaseKeywords{Phase: phase, Keywords: keywords})
	}

	c.cache.Add(parentID, &phaseSet{phases: built, expiresAt: time.Now().Add(c.ttl)})
	return built, nil
}

// InvalidateProject drops the cached keyword build for one parent project.
func (c *PhaseClassifier) InvalidateProject(parentID string) {
	c.cache.Remove(parentID)
}

// CalculatePhaseMatch scores how well a record title fits a phase: the
// fraction of the title's distinctive terms found in the phase keyword set.
// An empty title or an empty keyword set scores 0.
func (c *PhaseClassifier) CalculatePhaseMatch(itemTitle string, phase PhaseKeywords) float64 {
	itemTerms := ExtractTerms(itemTitle)
	if len(itemTerms) == 0 || len(phase.Keywords) == 0 {
		return 0.0
	}
	matched := 0
	for _, term := range itemTerms {
		if _, ok := phase.Keywords[term]; ok {
			matched++
		}
	}
	return float64(matched) / float64(len(itemTerms))
}

// FindBestPhase picks the phase with the strictly highest score at or above
// the minimum. Ties keep the earlier phase in sequence order. Returns nil
// when no phase qualifies.
func (c *PhaseClassifier) FindBestPhase(itemTitle string, phases []PhaseKeywords) *PhaseMatch {
	var best *PhaseMatch
	for _, phase := range phases {
		score := c.CalculatePhaseMatch(itemTitle, phase)
		if score < c.minScore {
			continue
		}
		if best == nil || score > best.Score {
			best = &PhaseMatch{PhaseID: phase.Phase.ID, Name: phase.Phase.Name, Score: score}
		}
	}
	return best
}

// AssignPhases classifies every unphased, still-open record of one project
// in table against the parent project's phases. Records that match nothing
// stay unassigned and count as skipped; a failed update is logged and
// counted without aborting the batch. Already-assigned records are never
// touched, so reruns are no-ops over classified data.
func (c *PhaseClassifier) AssignPhases(ctx context.Context, table, projectID, parentID string) (*PhaseAssignment, error) {
	report := &PhaseAssignment{Table: table, ProjectID: projectID}

	phases, err := c.ProjectPhases(ctx, parentID)
	if err != nil {
		return report, err
	}
	if len(phases) == 0 {
		return report, nil
	}

	records, err := c.store.Select(ctx, table, storage.Query{
		Filter:  storage.Filter{"project_id": projectID},
		In:      map[string][]string{"status": types.OpenishStatuses},
		Null:    []string{"phase_id"},
		OrderBy: "created_at",
	})
	if err != nil {
		return report, fmt.Errorf("listing unphased records in %s: %w", table, err)
	}

	report.Scanned = len(records)
	for _, rec := range records {
		match := c.FindBestPhase(recordTitle(rec), phases)
		if match == nil {
			report.Skipped++
			continue
		}
		_, err := c.store.Update(ctx, table, rec.ID(), types.Record{"phase_id": match.PhaseID})
		if err != nil {
			log.Printf("WARNING: phase assignment for %s/%s failed: %v", table, rec.ID(), err)
			report.Failed++
			continue
		}
		report.Assigned++
	}
	return report, nil
}
