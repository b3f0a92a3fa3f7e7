package engine

import (
	"context"
	"log"

	"github.com/carverlabs/scribe/internal/storage"
	"github.com/carverlabs/scribe/pkg/types"
)

// DuplicateThreshold is the combined score at or above which two records are
// treated as duplicates of each other.
const DuplicateThreshold = 0.7

// Combined score weights: title similarity dominates, shared distinctive
// terms break ties between structurally different phrasings.
const (
	titleWeight = 0.6
	termWeight  = 0.4
)

// DuplicateGroups is the result of one duplicate scan over a project+table
// scope. Groups holds clusters of two or more mutually linked records in
// creation order; Singles holds everything that matched nothing. The result
// is computed, never persisted.
type DuplicateGroups struct {
	Table   string
	Groups  [][]types.Record
	Singles []types.Record
}

// GroupedCount returns the number of records that landed in a group.
func (d *DuplicateGroups) GroupedCount() int {
	n := 0
	for _, g := range d.Groups {
		n += len(g)
	}
	return n
}

// DuplicateDetector clusters near-identical records so the consolidator can
// fold them into one canonical entry. Grouping is single-link: a record
// joins a group when it scores at or above the threshold against any member
// already in the group, so clusters can chain through intermediates that
// bridge otherwise-dissimilar items. That looseness is intentional.
type DuplicateDetector struct {
	store     storage.Store
	threshold float64
}

// NewDuplicateDetector returns a detector reading through store at the
// default threshold.
func NewDuplicateDetector(store storage.Store) *DuplicateDetector {
	return &DuplicateDetector{store: store, threshold: DuplicateThreshold}
}

// AreSimilar scores a pair of records in [0,1]. Records filed under
// different projects score 0 regardless of content; otherwise the score is
// a weighted blend of title edit-distance similarity and the shared-term
// ratio of the titles.
func (d *DuplicateDetector) AreSimilar(a, b types.Record) float64 {
	if a.String("project_id") != b.String("project_id") {
		return 0.0
	}
	at := recordTitle(a)
	bt := recordTitle(b)
	titleSim := Similarity(at, bt)
	overlap := TermOverlap(ExtractTerms(at), ExtractTerms(bt))
	return titleWeight*titleSim + termWeight*overlap
}

// recordTitle returns the text a record is known by. Conventions carry a
// name instead of a title; everything else routed by the catalog has one.
func recordTitle(rec types.Record) string {
	if t := rec.String("title"); t != "" {
		return t
	}
	return rec.String("name")
}

// FindDuplicates scans one project's records in table, restricted to the
// given statuses (the open-ish set when none are passed), and clusters them.
// Records are fetched in creation order; each not-yet-grouped record seeds a
// group and every later ungrouped record similar to any current member joins
// it. Scan errors are logged and yield an empty result: duplicate detection
// advises consolidation, it never blocks anything.
func (d *DuplicateDetector) FindDuplicates(ctx context.Context, table, projectID string, statuses []string) *DuplicateGroups {
	result := &DuplicateGroups{Table: table}
	if len(statuses) == 0 {
		statuses = types.OpenishStatuses
	}

	records, err := d.store.Select(ctx, table, storage.Query{
		Filter:  storage.Filter{"project_id": projectID},
		In:      map[string][]string{"status": statuses},
		OrderBy: "created_at",
	})
	if err != nil {
		log.Printf("WARNING: duplicate scan on %s for project %s failed: %v", table, projectID, err)
		return result
	}

	grouped := make([]bool, len(records))
	for i, seed := range records {
		if grouped[i] {
			continue
		}
		group := []types.Record{seed}
		for j := i + 1; j < len(records); j++ {
			if grouped[j] {
				continue
			}
			for _, member := range group {
				if d.AreSimilar(member, records[j]) >= d.threshold {
					group = append(group, records[j])
					grouped[j] = true
					break
				}
			}
		}
		if len(group) >= 2 {
			grouped[i] = true
			result.Groups = append(result.Groups, group)
		} else {
			result.Singles = append(result.Singles, seed)
		}
	}
	return result
}

// FindAllDuplicates runs FindDuplicates for every known project and
// concatenates the per-project groups. Quadratic per project, so callers
// should only point it at the bounded work-item tables.
func (d *DuplicateDetector) FindAllDuplicates(ctx context.Context, table string, statuses []string) *DuplicateGroups {
	result := &DuplicateGroups{Table: table}

	projects, err := d.store.Select(ctx, types.TableProjects, storage.Query{OrderBy: "created_at"})
	if err != nil {
		log.Printf("WARNING: duplicate sweep could not list projects: %v", err)
		return result
	}

	for _, project := range projects {
		scoped := d.FindDuplicates(ctx, table, project.ID(), statuses)
		result.Groups = append(result.Groups, scoped.Groups...)
		result.Singles = append(result.Singles, scoped.Singles...)
	}
	return result
}
