package engine

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/carverlabs/scribe/internal/storage"
	"github.com/carverlabs/scribe/pkg/types"
)

// ConsolidationResult describes one folded duplicate group.
type ConsolidationResult struct {
	MasterID     string
	MergedTitle  string
	Consolidated int
}

// ConsolidationReport accumulates a batch run over one or all projects.
type ConsolidationReport struct {
	Table        string
	ProjectID    string
	Groups       int
	Consolidated int
	Errors       int
}

// Consolidator folds duplicate groups into one canonical record each: the
// earliest-created member keeps living under a merged title, every other
// member is marked consolidated and pointed at it. Nothing is ever deleted.
type Consolidator struct {
	store    storage.Store
	detector *DuplicateDetector
}

// NewConsolidator returns a consolidator sharing the detector's store.
func NewConsolidator(store storage.Store, detector *DuplicateDetector) *Consolidator {
	return &Consolidator{store: store, detector: detector}
}

// ConsolidateGroup folds one duplicate group. Groups of fewer than two
// members return nil with no writes. The master's title is rewritten to the
// merged title first, then each duplicate is marked; an error midway leaves
// a partially consolidated group that the next detection pass regroups and
// finishes.
func (c *Consolidator) ConsolidateGroup(ctx context.Context, table string, group []types.Record) (*ConsolidationResult, error) {
	if len(group) < 2 {
		return nil, nil
	}

	master := group[0]
	for _, rec := range group[1:] {
		if rec.Time("created_at").Before(master.Time("created_at")) {
			master = rec
		}
	}

	titles := make([]string, 0, len(group))
	for _, rec := range group {
		titles = append(titles, recordTitle(rec))
	}
	merged := MergeTitles(titles)

	field := "title"
	if table == types.TableConventions {
		field = "name"
	}
	if _, err := c.store.Update(ctx, table, master.ID(), types.Record{field: merged}); err != nil {
		return nil, fmt.Errorf("updating master %s/%s: %w", table, master.ID(), err)
	}

	result := &ConsolidationResult{MasterID: master.ID(), MergedTitle: merged}
	for _, rec := range group {
		if rec.ID() == master.ID() {
			continue
		}
		_, err := c.store.Update(ctx, table, rec.ID(), types.Record{
			"status":            types.RecordStatusConsolidated,
			"consolidated_into": master.ID(),
		})
		if err != nil {
			return result, fmt.Errorf("consolidating %s/%s into %s: %w", table, rec.ID(), master.ID(), err)
		}
		result.Consolidated++
	}
	return result, nil
}

// ConsolidateTable detects and folds every duplicate group of one project in
// table. Group failures are logged and counted without stopping the batch.
func (c *Consolidator) ConsolidateTable(ctx context.Context, table, projectID string) *ConsolidationReport {
	report := &ConsolidationReport{Table: table, ProjectID: projectID}

	found := c.detector.FindDuplicates(ctx, table, projectID, nil)
	for _, group := range found.Groups {
		result, err := c.ConsolidateGroup(ctx, table, group)
		if err != nil {
			log.Printf("WARNING: consolidation failed on %s for project %s: %v", table, projectID, err)
			report.Errors++
		}
		if result != nil {
			report.Groups++
			report.Consolidated += result.Consolidated
		}
	}
	return report
}

// ConsolidateAll runs ConsolidateTable for every known project and sums the
// reports. A project listing failure yields an empty report, consistent
// with detection being advisory.
func (c *Consolidator) ConsolidateAll(ctx context.Context, table string) *ConsolidationReport {
	report := &ConsolidationReport{Table: table}

	projects, err := c.store.Select(ctx, types.TableProjects, storage.Query{OrderBy: "created_at"})
	if err != nil {
		log.Printf("WARNING: consolidation sweep could not list projects: %v", err)
		return report
	}

	for _, project := range projects {
		scoped := c.ConsolidateTable(ctx, table, project.ID())
		report.Groups += scoped.Groups
		report.Consolidated += scoped.Consolidated
		report.Errors += scoped.Errors
	}
	return report
}

// MergeTitles synthesizes one title from a duplicate group's titles. Terms
// common to every title frame the terms unique to individual titles:
// "<first common> <uniques joined by ', '> <remaining commons>". When the
// titles share nothing (or differ in nothing), it falls back to listing
// them: "a, b and c". The shape is deliberately naive; it summarizes, it
// does not try to be grammatical.
func MergeTitles(titles []string) string {
	switch len(titles) {
	case 0:
		return ""
	case 1:
		return titles[0]
	}

	ordered := make([][]string, len(titles))
	sets := make([]map[string]struct{}, len(titles))
	for i, title := range titles {
		terms := ExtractTerms(title)
		ordered[i] = terms
		set := make(map[string]struct{}, len(terms))
		for _, term := range terms {
			set[term] = struct{}{}
		}
		sets[i] = set
	}

	var common []string
	commonSet := make(map[string]struct{})
	for _, term := range ordered[0] {
		inAll := true
		for _, set := range sets[1:] {
			if _, ok := set[term]; !ok {
				inAll = false
				break
			}
		}
		if inAll {
			common = append(common, term)
			commonSet[term] = struct{}{}
		}
	}

	var unique []string
	seen := make(map[string]struct{})
	for _, terms := range ordered {
		for _, term := range terms {
			if _, isCommon := commonSet[term]; isCommon {
				continue
			}
			if _, dup := seen[term]; dup {
				continue
			}
			seen[term] = struct{}{}
			unique = append(unique, term)
		}
	}

	if len(common) > 0 && len(unique) > 0 {
		merged := common[0] + " " + strings.Join(unique, ", ")
		if rest := strings.Join(common[1:], " "); rest != "" {
			merged += " " + rest
		}
		return merged
	}

	return strings.Join(titles[:len(titles)-1], ", ") + " and " + titles[len(titles)-1]
}
