package engine

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/carverlabs/scribe/internal/storage"
	"github.com/carverlabs/scribe/internal/taxonomy"
	"github.com/carverlabs/scribe/pkg/types"
)

// completionMatchMin is the fraction of a completion mention's terms that
// must appear in an item's title before the item counts as a candidate.
const completionMatchMin = 0.5

// NormalizeReport summarizes one done-vocabulary normalization pass.
type NormalizeReport struct {
	Table      string
	Scanned    int
	Normalized int
	Failed     int
}

// CompletionCandidate is an open record that a freeform completion mention
// appears to describe. Candidates are advisory; nothing mutates them here.
type CompletionCandidate struct {
	RecordID string
	Title    string
	Mention  string
	Score    float64
}

// RollupReport summarizes one phase-item rollup pass.
type RollupReport struct {
	Completed int
	Skipped   int
	Failed    int
}

// StatusUpdater reconciles the loose status vocabulary the upstream
// extractor writes into each table's canonical form, surfaces low-confidence
// completion candidates from freeform mentions, and rolls item completion up
// into phase checklists.
type StatusUpdater struct {
	store    storage.Store
	projects *taxonomy.Service
}

// NewStatusUpdater returns an updater reading phase structures through
// projects and records through store.
func NewStatusUpdater(store storage.Store, projects *taxonomy.Service) *StatusUpdater {
	return &StatusUpdater{store: store, projects: projects}
}

// NormalizeStatuses rewrites done-vocabulary statuses (done, fixed, closed,
// and friends) to the table's canonical terminal status, for records not
// already canonical. Rerunning is a no-op once everything is canonical. An
// empty projectID normalizes the whole table.
func (s *StatusUpdater) NormalizeStatuses(ctx context.Context, table, projectID string) (*NormalizeReport, error) {
	report := &NormalizeReport{Table: table}

	canonical := types.CanonicalDoneStatus(table)
	if canonical == "" {
		return report, fmt.Errorf("table %s has no canonical done status: %w", table, storage.ErrInvalidInput)
	}

	var variants []string
	for _, status := range types.DoneStatuses {
		if status != canonical {
			variants = append(variants, status)
		}
	}

	q := storage.Query{
		In:      map[string][]string{"status": variants},
		OrderBy: "created_at",
	}
	if projectID != "" {
		q.Filter = storage.Filter{"project_id": projectID}
	}
	records, err := s.store.Select(ctx, table, q)
	if err != nil {
		return report, fmt.Errorf("listing non-canonical records in %s: %w", table, err)
	}

	report.Scanned = len(records)
	for _, rec := range records {
		if _, err := s.store.Update(ctx, table, rec.ID(), types.Record{"status": canonical}); err != nil {
			log.Printf("WARNING: status normalization for %s/%s failed: %v", table, rec.ID(), err)
			report.Failed++
			continue
		}
		report.Normalized++
	}
	return report, nil
}

// CompletionCandidates matches freeform "that's done now" mentions against
// the open records of one project. A record qualifies for a mention when at
// least half the mention's distinctive terms appear in the record's title.
// This only identifies candidates; acting on them is the caller's call.
func (s *StatusUpdater) CompletionCandidates(ctx context.Context, table, projectID string, mentions []string) ([]CompletionCandidate, error) {
	q := storage.Query{
		In:      map[string][]string{"status": types.OpenishStatuses},
		OrderBy: "created_at",
	}
	if projectID != "" {
		q.Filter = storage.Filter{"project_id": projectID}
	}
	records, err := s.store.Select(ctx, table, q)
	if err != nil {
		return nil, fmt.Errorf("listing open records in %s: %w", table, err)
	}

	var candidates []CompletionCandidate
	for _, mention := range mentions {
		mentionTerms := ExtractTerms(mention)
		if len(mentionTerms) == 0 {
			continue
		}
		for _, rec := range records {
			titleTerms := make(map[string]struct{})
			for _, term := range ExtractTerms(recordTitle(rec)) {
				titleTerms[term] = struct{}{}
			}
			matched := 0
			for _, term := range mentionTerms {
				if _, ok := titleTerms[term]; ok {
					matched++
				}
			}
			score := float64(matched) / float64(len(mentionTerms))
			if score >= completionMatchMin {
				candidates = append(candidates, CompletionCandidate{
					RecordID: rec.ID(),
					Title:    recordTitle(rec),
					Mention:  mention,
					Score:    score,
				})
			}
		}
	}
	return candidates, nil
}

// RollupPhaseItems marks phase items complete when every todo and bug
// related to them by title substring is itself in a done status. The rule is
// conjunctive: one open related record keeps the item pending, and an item
// with no related records is left alone rather than assumed finished.
// parentID owns the phases; projectID scopes the records examined.
func (s *StatusUpdater) RollupPhaseItems(ctx context.Context, parentID, projectID string) (*RollupReport, error) {
	report := &RollupReport{}

	phases, err := s.projects.Phases(ctx, parentID)
	if err != nil {
		return report, err
	}
	if len(phases) == 0 {
		return report, nil
	}

	var related []types.Record
	for _, table := range []string{types.TableTodos, types.TableBugs} {
		records, err := s.store.Select(ctx, table, storage.Query{
			Filter:  storage.Filter{"project_id": projectID},
			OrderBy: "created_at",
		})
		if err != nil {
			return report, fmt.Errorf("listing %s for rollup: %w", table, err)
		}
		related = append(related, records...)
	}

	for _, phase := range phases {
		items, err := s.projects.PhaseItems(ctx, phase.ID)
		if err != nil {
			return report, err
		}
		for _, item := range items {
			if item.Status == types.PhaseItemComplete {
				continue
			}

			matched := 0
			allDone := true
			for _, rec := range related {
				if !titlesRelate(item.Title, recordTitle(rec)) {
					continue
				}
				matched++
				if !types.IsDoneStatus(rec.String("status")) {
					allDone = false
					break
				}
			}
			if matched == 0 || !allDone {
				report.Skipped++
				continue
			}

			_, err := s.store.Update(ctx, types.TablePhaseItems, item.ID, types.Record{
				"status": types.PhaseItemComplete,
			})
			if err != nil {
				log.Printf("WARNING: phase item rollup for %s failed: %v", item.ID, err)
				report.Failed++
				continue
			}
			report.Completed++
		}
	}
	return report, nil
}

// titlesRelate reports whether one title contains the other, ignoring case
// and surrounding whitespace.
func titlesRelate(a, b string) bool {
	a = strings.ToLower(strings.TrimSpace(a))
	b = strings.ToLower(strings.TrimSpace(b))
	if a == "" || b == "" {
		return false
	}
	return strings.Contains(a, b) || strings.Contains(b, a)
}
