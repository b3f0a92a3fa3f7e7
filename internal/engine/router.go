package engine

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/carverlabs/scribe/internal/storage"
	"github.com/carverlabs/scribe/internal/taxonomy"
	"github.com/carverlabs/scribe/pkg/types"
)

// Router defaults. One cycle drains at most BatchSize pending extractions;
// cycles run on the interval plus one immediate run at startup, and a
// watchdog timeout keeps a wedged backend from holding the guard forever.
const (
	DefaultRouteBatchSize = 50
	DefaultRouteInterval  = 5 * time.Minute
	DefaultCycleTimeout   = 2 * time.Minute

	dedupScanLimit   = 100
	titlePrefixLen   = 100
	contentPrefixLen = 150

	// minProjectHits is the weakest keyword evidence that still assigns a
	// detected project to a hashless legacy extraction.
	minProjectHits = 2
)

// titlePrefixTables are the destinations whose identity lives in the title
// (or name); legacy prefix dedup compares titles there and content
// everywhere else.
var titlePrefixTables = map[string]struct{}{
	types.TableTodos:       {},
	types.TableBugs:        {},
	types.TableConventions: {},
}

// RouterConfig tunes the routing loop. Zero values take the defaults above.
type RouterConfig struct {
	BatchSize    int
	Interval     time.Duration
	CycleTimeout time.Duration
}

func (c RouterConfig) withDefaults() RouterConfig {
	if c.BatchSize <= 0 {
		c.BatchSize = DefaultRouteBatchSize
	}
	if c.Interval <= 0 {
		c.Interval = DefaultRouteInterval
	}
	if c.CycleTimeout <= 0 {
		c.CycleTimeout = DefaultCycleTimeout
	}
	return c
}

// RouteReport summarizes one routing cycle for logs and the ops API.
type RouteReport struct {
	Skipped    bool      `json:"skipped"`
	Picked     int       `json:"picked"`
	Processed  int       `json:"processed"`
	Duplicates int       `json:"duplicates"`
	Errors     int       `json:"errors"`
	StartedAt  time.Time `json:"started_at"`
	DurationMS int64     `json:"duration_ms"`
}

// Router drains pending staging extractions into their destination tables.
// Each record gets exactly one terminal transition per cycle: processed,
// duplicate, or error. Cycles are single-flight per process; a trigger that
// finds one running skips and says so instead of queuing behind it.
type Router struct {
	store    storage.Store
	projects *taxonomy.Service
	cfg      RouterConfig
	sem      chan struct{}
}

// NewRouter returns a router reading and writing through store. projects may
// be nil, which disables content-based project detection for legacy
// extractions that arrive without a project id.
func NewRouter(store storage.Store, projects *taxonomy.Service, cfg RouterConfig) *Router {
	return &Router{
		store:    store,
		projects: projects,
		cfg:      cfg.withDefaults(),
		sem:      make(chan struct{}, 1),
	}
}

// Interval returns the configured cycle interval.
func (r *Router) Interval() time.Duration {
	return r.cfg.Interval
}

// RunCycle processes one batch of pending extractions in creation order.
// If another cycle holds the guard the call returns immediately with
// Skipped set. The cycle runs under a hard timeout; records left over when
// it expires stay pending for the next cycle.
func (r *Router) RunCycle(ctx context.Context) *RouteReport {
	report := &RouteReport{StartedAt: time.Now().UTC()}

	select {
	case r.sem <- struct{}{}:
	default:
		report.Skipped = true
		return report
	}
	defer func() { <-r.sem }()

	ctx, cancel := context.WithTimeout(ctx, r.cfg.CycleTimeout)
	defer cancel()

	records, err := r.store.Select(ctx, types.TableStaging, storage.Query{
		Filter:  storage.Filter{"status": string(types.StagingPending)},
		OrderBy: "created_at",
		Limit:   r.cfg.BatchSize,
	})
	if err != nil {
		log.Printf("ERROR: routing cycle could not list pending extractions: %v", err)
		report.Errors++
		report.DurationMS = time.Since(report.StartedAt).Milliseconds()
		return report
	}
	report.Picked = len(records)

	for i, rec := range records {
		if ctx.Err() != nil {
			log.Printf("WARNING: routing cycle timed out with %d extractions left", len(records)-i)
			break
		}
		switch r.routeOne(ctx, types.StagingFromRecord(rec)) {
		case types.StagingProcessed:
			report.Processed++
		case types.StagingDuplicate:
			report.Duplicates++
		default:
			report.Errors++
		}
	}

	report.DurationMS = time.Since(report.StartedAt).Milliseconds()
	if report.Picked > 0 {
		log.Printf("Routing cycle: picked=%d processed=%d duplicates=%d errors=%d in %dms",
			report.Picked, report.Processed, report.Duplicates, report.Errors, report.DurationMS)
	}
	return report
}

// routeOne decides the single terminal transition for one extraction.
func (r *Router) routeOne(ctx context.Context, e *types.StagingExtraction) types.StagingStatus {
	route, ok := types.RouteForBucket(e.Bucket)
	if !ok {
		return r.terminalize(ctx, e, types.StagingError, map[string]any{
			types.MetaError:      fmt.Sprintf("unknown bucket %q", e.Bucket),
			types.MetaErrorStage: "route",
		})
	}

	// Legacy extractors send no project id; try to resolve one from the
	// content before dedup so the scan stays project-scoped.
	if e.ProjectID == "" {
		if p := r.detectProject(ctx, e); p != nil {
			e.ProjectID = p.ID
		}
	}

	dupID, err := r.findDuplicate(ctx, route, e)
	if err != nil {
		// Availability over strict dedup: a failed scan is treated as "no
		// duplicate" here and nowhere else, and the insert proceeds.
		log.Printf("WARNING: duplicate scan for staging %s failed: %v", e.ID, err)
		dupID = ""
	}
	if dupID != "" {
		return r.terminalize(ctx, e, types.StagingDuplicate, map[string]any{
			types.MetaDuplicateOf: dupID,
			types.MetaTargetTable: route.Table,
		})
	}

	payload, ok := BuildPayload(e, route)
	if !ok {
		return r.terminalize(ctx, e, types.StagingError, map[string]any{
			types.MetaError:       fmt.Sprintf("no payload builder for table %s", route.Table),
			types.MetaErrorStage:  "build",
			types.MetaTargetTable: route.Table,
		})
	}

	inserted, err := r.store.Insert(ctx, route.Table, payload)
	if err != nil {
		return r.terminalize(ctx, e, types.StagingError, map[string]any{
			types.MetaError:       err.Error(),
			types.MetaErrorStage:  "insert",
			types.MetaTargetTable: route.Table,
		})
	}

	return r.terminalize(ctx, e, types.StagingProcessed, map[string]any{
		"routed_to":           inserted.ID(),
		types.MetaTargetTable: route.Table,
	})
}

// terminalize writes the record's terminal status with audit fields merged
// into its existing metadata. Extractor-provided keys survive; the audit
// keys belong to the router and take the latest value. A failed update
// leaves the record pending and reports as an error so the next cycle
// retries it.
func (r *Router) terminalize(ctx context.Context, e *types.StagingExtraction, status types.StagingStatus, audit map[string]any) types.StagingStatus {
	meta := make(map[string]any, len(e.Metadata)+len(audit))
	for k, v := range e.Metadata {
		meta[k] = v
	}
	for k, v := range audit {
		meta[k] = v
	}

	update := types.Record{"status": string(status), "metadata": meta}
	if e.ProjectID != "" {
		update["project_id"] = e.ProjectID
	}
	if _, err := r.store.Update(ctx, types.TableStaging, e.ID, update); err != nil {
		log.Printf("ERROR: could not mark staging %s as %s: %v", e.ID, status, err)
		return types.StagingError
	}
	return status
}

// findDuplicate scans the destination table's most recent rows for an
// existing record matching this extraction. A content hash is authoritative
// when present; hashless extractions fall back to legacy prefix matching.
// Errors propagate so the caller can apply the swallow policy in one place.
func (r *Router) findDuplicate(ctx context.Context, route types.Route, e *types.StagingExtraction) (string, error) {
	q := storage.Query{OrderBy: "created_at", Descending: true, Limit: dedupScanLimit}
	if e.ProjectID != "" {
		q.Filter = storage.Filter{"project_id": e.ProjectID}
	}
	recent, err := r.store.Select(ctx, route.Table, q)
	if err != nil {
		return "", fmt.Errorf("scanning %s for duplicates: %w", route.Table, err)
	}

	if hash := e.ContentHash(); hash != "" {
		for _, rec := range recent {
			meta := rec.Metadata()
			if meta == nil {
				continue
			}
			if h, ok := meta[types.MetaHash].(string); ok && h == hash {
				return rec.ID(), nil
			}
		}
		return "", nil
	}
	return r.prefixDuplicate(recent, route, e), nil
}

// prefixDuplicate is the legacy hashless check: case-insensitive prefix
// equality on the title for title-keyed tables, on the content elsewhere.
func (r *Router) prefixDuplicate(recent []types.Record, route types.Route, e *types.StagingExtraction) string {
	if _, byTitle := titlePrefixTables[route.Table]; byTitle {
		want := normalizedPrefix(extractionTitle(e), titlePrefixLen)
		if want == "" {
			return ""
		}
		for _, rec := range recent {
			if normalizedPrefix(recordTitle(rec), titlePrefixLen) == want {
				return rec.ID()
			}
		}
		return ""
	}

	want := normalizedPrefix(e.Content, contentPrefixLen)
	if want == "" {
		return ""
	}
	for _, rec := range recent {
		if normalizedPrefix(rec.String("content"), contentPrefixLen) == want {
			return rec.ID()
		}
	}
	return ""
}

func normalizedPrefix(s string, n int) string {
	return truncateRunes(strings.ToLower(strings.TrimSpace(s)), n)
}

// detectProject scores the extraction's text against each project's name
// terms and declared keywords, assigning the best project when the evidence
// clears minProjectHits. Detection is best-effort; failures just leave the
// extraction unscoped.
func (r *Router) detectProject(ctx context.Context, e *types.StagingExtraction) *types.Project {
	if r.projects == nil {
		return nil
	}
	all, err := r.projects.AllProjects(ctx)
	if err != nil {
		log.Printf("WARNING: project detection unavailable: %v", err)
		return nil
	}

	terms := make(map[string]struct{})
	for _, t := range ExtractTerms(e.Title + " " + e.Content) {
		terms[t] = struct{}{}
	}
	if len(terms) == 0 {
		return nil
	}

	var best *types.Project
	bestHits := 0
	for _, p := range all {
		keywords := make(map[string]struct{})
		for _, t := range ExtractTerms(p.Name) {
			keywords[t] = struct{}{}
		}
		for _, k := range p.Keywords {
			keywords[strings.ToLower(strings.TrimSpace(k))] = struct{}{}
		}

		hits := 0
		for k := range keywords {
			if _, ok := terms[k]; ok {
				hits++
			}
		}
		if hits > bestHits {
			best, bestHits = p, hits
		}
	}
	if bestHits < minProjectHits {
		return nil
	}
	return best
}
