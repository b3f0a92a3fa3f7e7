// Package engine implements the cataloging pipeline: the routing loop that
// drains staging extractions into their destination tables, plus the
// on-demand curation operations layered on the same store — duplicate
// detection, consolidation, phase classification, and status reconciliation.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/carverlabs/scribe/internal/storage"
	"github.com/carverlabs/scribe/internal/taxonomy"
)

// ErrNotStarted is returned by operations that need the routing loop when
// the engine has not been started or is shutting down.
var ErrNotStarted = errors.New("engine not started")

// Engine wires the routing pipeline together and owns its polling loop. The
// loop runs one cycle immediately at startup, then one per interval, plus
// any cycles requested through Kick or RouteNow. The intelligence components
// (duplicate detection, consolidation, phase classification, status
// reconciliation) are exposed as on-demand operations for the ops API.
type Engine struct {
	store    storage.Store
	projects *taxonomy.Service

	router       *Router
	detector     *DuplicateDetector
	classifier   *PhaseClassifier
	consolidator *Consolidator
	updater      *StatusUpdater

	loopCancel context.CancelFunc
	loopDone   chan struct{}
	kick       chan struct{}

	onCycleComplete func(*RouteReport)

	mu           sync.RWMutex
	started      bool
	shuttingDown bool
	lastRoute    *RouteReport
}

// NewEngine creates the pipeline around a store. A nil projects service gets
// a default one so legacy project detection and phase lookups still work.
func NewEngine(store storage.Store, projects *taxonomy.Service, cfg RouterConfig) (*Engine, error) {
	if store == nil {
		return nil, fmt.Errorf("store is required")
	}
	if projects == nil {
		projects = taxonomy.NewService(store, taxonomy.DefaultCacheTTL)
	}

	detector := NewDuplicateDetector(store)
	return &Engine{
		store:        store,
		projects:     projects,
		router:       NewRouter(store, projects, cfg),
		detector:     detector,
		classifier:   NewPhaseClassifier(store, projects),
		consolidator: NewConsolidator(store, detector),
		updater:      NewStatusUpdater(store, projects),
		kick:         make(chan struct{}, 1),
	}, nil
}

// SetOnCycleComplete registers a callback fired after every routing cycle
// that actually ran; skipped cycles do not fire it. The web layer uses this
// to push cycle reports to websocket subscribers.
func (e *Engine) SetOnCycleComplete(callback func(*RouteReport)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.onCycleComplete = callback
}

// Start launches the routing loop.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.started {
		return fmt.Errorf("engine already started")
	}

	loopCtx, cancel := context.WithCancel(ctx)
	e.loopCancel = cancel
	e.loopDone = make(chan struct{})
	e.started = true

	go e.routeLoop(loopCtx)

	log.Printf("Routing engine started: interval=%v", e.router.Interval())
	return nil
}

func (e *Engine) routeLoop(ctx context.Context) {
	defer close(e.loopDone)

	e.runRouteCycle(ctx)

	ticker := time.NewTicker(e.router.Interval())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("Routing loop stopping")
			return
		case <-ticker.C:
			e.runRouteCycle(ctx)
		case <-e.kick:
			e.runRouteCycle(ctx)
		}
	}
}

func (e *Engine) runRouteCycle(ctx context.Context) *RouteReport {
	report := e.router.RunCycle(ctx)

	e.mu.Lock()
	if !report.Skipped {
		e.lastRoute = report
	}
	callback := e.onCycleComplete
	e.mu.Unlock()

	if callback != nil && !report.Skipped {
		callback(report)
	}
	return report
}

// Kick requests an immediate routing cycle without waiting for the ticker.
// Nudges coalesce; at most one is ever pending.
func (e *Engine) Kick() {
	select {
	case e.kick <- struct{}{}:
	default:
	}
}

// RouteNow runs one routing cycle synchronously and returns its report. If
// the loop is mid-cycle the report comes back with Skipped set.
func (e *Engine) RouteNow(ctx context.Context) (*RouteReport, error) {
	if err := e.requireStarted(); err != nil {
		return nil, err
	}
	return e.runRouteCycle(ctx), nil
}

// LastRouteReport returns the most recent completed cycle report, or nil
// before the first cycle finishes.
func (e *Engine) LastRouteReport() *RouteReport {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.lastRoute
}

// Shutdown stops the routing loop, waiting for an in-flight cycle up to
// ctx's deadline.
func (e *Engine) Shutdown(ctx context.Context) error {
	e.mu.Lock()
	if !e.started {
		e.mu.Unlock()
		return ErrNotStarted
	}
	e.shuttingDown = true
	cancel := e.loopCancel
	done := e.loopDone
	e.mu.Unlock()

	log.Println("Shutting down routing engine...")
	cancel()

	select {
	case <-done:
	case <-ctx.Done():
		e.mu.Lock()
		e.shuttingDown = false
		e.mu.Unlock()
		return fmt.Errorf("routing loop did not stop before deadline: %w", ctx.Err())
	}

	e.mu.Lock()
	e.started = false
	e.shuttingDown = false
	e.mu.Unlock()

	log.Println("Routing engine shut down")
	return nil
}

func (e *Engine) requireStarted() error {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if !e.started || e.shuttingDown {
		return ErrNotStarted
	}
	return nil
}

// FindDuplicates surfaces duplicate clusters for one project without
// mutating anything.
func (e *Engine) FindDuplicates(ctx context.Context, table, projectID string) (*DuplicateGroups, error) {
	if err := e.requireStarted(); err != nil {
		return nil, err
	}
	return e.detector.FindDuplicates(ctx, table, projectID, nil), nil
}

// ConsolidateTable folds every duplicate group of one project.
func (e *Engine) ConsolidateTable(ctx context.Context, table, projectID string) (*ConsolidationReport, error) {
	if err := e.requireStarted(); err != nil {
		return nil, err
	}
	return e.consolidator.ConsolidateTable(ctx, table, projectID), nil
}

// ConsolidateAll folds duplicate groups across every known project.
func (e *Engine) ConsolidateAll(ctx context.Context, table string) (*ConsolidationReport, error) {
	if err := e.requireStarted(); err != nil {
		return nil, err
	}
	return e.consolidator.ConsolidateAll(ctx, table), nil
}

// AssignProjectPhases classifies a project's unphased records against the
// phases of its phase-owning project (its parent, or itself at top level).
func (e *Engine) AssignProjectPhases(ctx context.Context, table, projectID string) (*PhaseAssignment, error) {
	if err := e.requireStarted(); err != nil {
		return nil, err
	}
	owner, err := e.projects.PhaseOwner(ctx, projectID)
	if err != nil {
		return nil, err
	}
	return e.classifier.AssignPhases(ctx, table, projectID, owner.ID)
}

// NormalizeStatuses reconciles done-vocabulary statuses in one table.
func (e *Engine) NormalizeStatuses(ctx context.Context, table, projectID string) (*NormalizeReport, error) {
	if err := e.requireStarted(); err != nil {
		return nil, err
	}
	return e.updater.NormalizeStatuses(ctx, table, projectID)
}

// CompletionCandidates matches freeform completion mentions against open
// records. Advisory only.
func (e *Engine) CompletionCandidates(ctx context.Context, table, projectID string, mentions []string) ([]CompletionCandidate, error) {
	if err := e.requireStarted(); err != nil {
		return nil, err
	}
	return e.updater.CompletionCandidates(ctx, table, projectID, mentions)
}

// RollupPhaseItems completes phase items whose related records are all done.
func (e *Engine) RollupPhaseItems(ctx context.Context, projectID string) (*RollupReport, error) {
	if err := e.requireStarted(); err != nil {
		return nil, err
	}
	owner, err := e.projects.PhaseOwner(ctx, projectID)
	if err != nil {
		return nil, err
	}
	return e.updater.RollupPhaseItems(ctx, owner.ID, projectID)
}
