package archive

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/carverlabs/scribe/internal/storage"
	"github.com/carverlabs/scribe/pkg/types"
)

// Archiver defaults. Both dwell windows are measured from the session's
// extracted_at anchor, so with the defaults a session is cleaned 48h after
// extraction and archived 72h after it.
const (
	DefaultBatchSize    = 20
	DefaultInterval     = time.Hour
	DefaultCleanDwell   = 48 * time.Hour
	DefaultArchiveDwell = 24 * time.Hour
)

// Config tunes the archive loop. Zero values take the defaults above.
type Config struct {
	BatchSize    int
	Interval     time.Duration
	CleanDwell   time.Duration
	ArchiveDwell time.Duration
}

func (c Config) withDefaults() Config {
	if c.BatchSize <= 0 {
		c.BatchSize = DefaultBatchSize
	}
	if c.Interval <= 0 {
		c.Interval = DefaultInterval
	}
	if c.CleanDwell <= 0 {
		c.CleanDwell = DefaultCleanDwell
	}
	if c.ArchiveDwell <= 0 {
		c.ArchiveDwell = DefaultArchiveDwell
	}
	return c
}

// Report summarizes one archive cycle for logs and the ops API.
type Report struct {
	Skipped    bool      `json:"skipped"`
	Cleaned    int       `json:"cleaned"`
	Archived   int       `json:"archived"`
	Errors     int       `json:"errors"`
	StartedAt  time.Time `json:"started_at"`
	DurationMS int64     `json:"duration_ms"`
}

// Archiver walks sessions through the tail of their lifecycle: extracted
// sessions are scrubbed and summarized into cleaned, and cleaned sessions age
// out into archived. Transitions are strictly forward; nothing here rewrites
// content after the clean pass.
type Archiver struct {
	store storage.Store
	cfg   Config
	sem   chan struct{}

	mu        sync.Mutex
	running   bool
	stopCh    chan struct{}
	lastCycle *Report

	onCycleComplete func(*Report)
}

// NewArchiver returns an archiver reading and writing sessions through store.
func NewArchiver(store storage.Store, cfg Config) (*Archiver, error) {
	if store == nil {
		return nil, fmt.Errorf("archiver requires a store")
	}
	return &Archiver{
		store:  store,
		cfg:    cfg.withDefaults(),
		sem:    make(chan struct{}, 1),
		stopCh: make(chan struct{}),
	}, nil
}

// Interval returns the configured cycle interval.
func (a *Archiver) Interval() time.Duration {
	return a.cfg.Interval
}

// SetOnCycleComplete registers a callback fired after every cycle that
// actually ran; skipped cycles do not fire it.
func (a *Archiver) SetOnCycleComplete(callback func(*Report)) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.onCycleComplete = callback
}

// Start runs the archive loop until the context is cancelled or Stop is
// called. It blocks; callers run it in a goroutine.
func (a *Archiver) Start(ctx context.Context) error {
	a.mu.Lock()
	if a.running {
		a.mu.Unlock()
		return fmt.Errorf("archiver is already running")
	}
	a.running = true
	a.mu.Unlock()

	ticker := time.NewTicker(a.cfg.Interval)
	defer ticker.Stop()

	log.Printf("Archiver started: interval=%v, batch=%d", a.cfg.Interval, a.cfg.BatchSize)

	// Catch up on dwell-expired sessions right away rather than waiting
	// out the first tick.
	a.RunCycle(ctx)

	for {
		select {
		case <-ctx.Done():
			log.Println("Archiver stopping (context cancelled)")
			return ctx.Err()

		case <-a.stopCh:
			log.Println("Archiver stopping (stop requested)")
			return nil

		case <-ticker.C:
			a.RunCycle(ctx)
		}
	}
}

// Stop stops the archive loop gracefully.
func (a *Archiver) Stop() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.running {
		return fmt.Errorf("archiver is not running")
	}
	close(a.stopCh)
	a.running = false
	return nil
}

// LastReport returns the most recent non-skipped cycle report, or nil before
// the first cycle completes.
func (a *Archiver) LastReport() *Report {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.lastCycle
}

// RunCycle performs both dwell-gated transitions over one bounded batch each,
// oldest sessions first. If another cycle holds the guard the call returns
// immediately with Skipped set.
func (a *Archiver) RunCycle(ctx context.Context) *Report {
	report := &Report{StartedAt: time.Now().UTC()}

	select {
	case a.sem <- struct{}{}:
	default:
		report.Skipped = true
		return report
	}
	defer func() { <-a.sem }()

	a.cleanExpired(ctx, report)
	a.archiveExpired(ctx, report)

	report.DurationMS = time.Since(report.StartedAt).Milliseconds()
	if report.Cleaned > 0 || report.Archived > 0 || report.Errors > 0 {
		log.Printf("Archive cycle: cleaned=%d archived=%d errors=%d in %dms",
			report.Cleaned, report.Archived, report.Errors, report.DurationMS)
	}

	a.mu.Lock()
	a.lastCycle = report
	callback := a.onCycleComplete
	a.mu.Unlock()

	if callback != nil {
		callback(report)
	}
	return report
}

// cleanExpired moves extracted sessions past the clean dwell to cleaned,
// scrubbing their raw content and persisting a summary on the way.
func (a *Archiver) cleanExpired(ctx context.Context, report *Report) {
	cutoff := report.StartedAt.Add(-a.cfg.CleanDwell)
	records, err := a.store.Select(ctx, types.TableSessions, storage.Query{
		Filter:  storage.Filter{"status": string(types.SessionExtracted)},
		Before:  map[string]time.Time{"extracted_at": cutoff},
		OrderBy: "created_at",
		Limit:   a.cfg.BatchSize,
	})
	if err != nil {
		log.Printf("ERROR: archive cycle could not list extracted sessions: %v", err)
		report.Errors++
		return
	}

	for _, rec := range records {
		if ctx.Err() != nil {
			return
		}
		if err := a.cleanOne(ctx, types.SessionFromRecord(rec)); err != nil {
			log.Printf("WARNING: could not clean session %s: %v", rec.ID(), err)
			report.Errors++
			continue
		}
		report.Cleaned++
	}
}

// cleanOne scrubs one session in place. The summary is derived from the
// original raw content, since after this update the original is gone. Its
// write is best-effort: losing the digest is acceptable, blocking the
// transition on it is not.
func (a *Archiver) cleanOne(ctx context.Context, s *types.Session) error {
	update := types.Record{
		"raw_content": Scrub(s.RawContent),
		"status":      string(types.SessionCleaned),
	}

	summary := Summarize(s.ID, s.RawContent)
	if stored, err := a.store.Insert(ctx, types.TableSessionSummaries, summary.Record()); err != nil {
		log.Printf("WARNING: could not store summary for session %s: %v", s.ID, err)
	} else {
		update["summary_id"] = stored.ID()
	}

	_, err := a.store.Update(ctx, types.TableSessions, s.ID, update)
	return err
}

// archiveExpired moves cleaned sessions past the combined dwell to archived.
// No content changes here.
func (a *Archiver) archiveExpired(ctx context.Context, report *Report) {
	cutoff := report.StartedAt.Add(-(a.cfg.CleanDwell + a.cfg.ArchiveDwell))
	records, err := a.store.Select(ctx, types.TableSessions, storage.Query{
		Filter:  storage.Filter{"status": string(types.SessionCleaned)},
		Before:  map[string]time.Time{"extracted_at": cutoff},
		OrderBy: "created_at",
		Limit:   a.cfg.BatchSize,
	})
	if err != nil {
		log.Printf("ERROR: archive cycle could not list cleaned sessions: %v", err)
		report.Errors++
		return
	}

	for _, rec := range records {
		if ctx.Err() != nil {
			return
		}
		update := types.Record{"status": string(types.SessionArchived)}
		if _, err := a.store.Update(ctx, types.TableSessions, rec.ID(), update); err != nil {
			log.Printf("WARNING: could not archive session %s: %v", rec.ID(), err)
			report.Errors++
			continue
		}
		report.Archived++
	}
}
