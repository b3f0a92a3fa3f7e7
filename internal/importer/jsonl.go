// Package importer backfills the staging table from newline-delimited JSON
// dumps of extracted items, e.g. exports from an older capture pipeline.
// Imported rows enter as pending and flow through the normal routing cycle.
package importer

import (
	"bufio"
	"context"
	"fmt"
	"log"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/carverlabs/scribe/internal/storage"
	"github.com/carverlabs/scribe/pkg/types"
)

// maxLineBytes bounds a single dump line. Staging content blobs routinely
// exceed bufio's default 64 KiB token limit.
const maxLineBytes = 4 << 20

// Job states reported through ImportProgress.Status.
const (
	jobRunning  = "running"
	jobComplete = "complete"
	jobFailed   = "failed"
)

// ImportResult is the final summary produced by a completed import job.
type ImportResult struct {
	JobID      string   `json:"job_id"`
	LinesRead  int      `json:"lines_read"`
	Imported   int      `json:"imported"`
	Skipped    int      `json:"skipped"`
	Failed     int      `json:"failed"`
	Errors     []string `json:"errors,omitempty"`
	DurationMS int64    `json:"duration_ms"`
}

// ImportProgress carries live counters for a job.
type ImportProgress struct {
	JobID     string `json:"job_id"`
	Status    string `json:"status"` // running | complete | failed
	LinesRead int    `json:"lines_read"`
	Imported  int    `json:"imported"`
	Message   string `json:"message,omitempty"`
}

// job is the importer's private view of one import: live progress plus the
// result once the goroutine finishes. Guarded by StagingImporter.mu.
type job struct {
	progress ImportProgress
	result   *ImportResult
}

// StagingImporter reads newline-delimited JSON dumps of extracted items and
// inserts them into the staging table as pending rows for the router.
type StagingImporter struct {
	store storage.Store

	mu   sync.Mutex
	jobs map[string]*job
}

// NewStagingImporter creates an importer writing staging rows to store.
func NewStagingImporter(store storage.Store) *StagingImporter {
	return &StagingImporter{store: store, jobs: make(map[string]*job)}
}

// StartImport begins an asynchronous import of the JSONL file at path and
// returns the job id to poll. The path must name an existing file; every
// later failure is reported through the job instead.
func (imp *StagingImporter) StartImport(ctx context.Context, path string) (string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return "", fmt.Errorf("cannot access file %q: %w", path, err)
	}
	if info.IsDir() {
		return "", fmt.Errorf("%q is a directory, expected a JSONL file", path)
	}

	jobID := uuid.New().String()
	imp.mu.Lock()
	imp.jobs[jobID] = &job{progress: ImportProgress{JobID: jobID, Status: jobRunning}}
	imp.mu.Unlock()

	// The job outlives the originating request, so the work is detached
	// from the caller's cancellation.
	go imp.run(context.WithoutCancel(ctx), jobID, path)

	return jobID, nil
}

// GetJobProgress returns the live progress for a job, or false if unknown.
func (imp *StagingImporter) GetJobProgress(jobID string) (ImportProgress, bool) {
	imp.mu.Lock()
	defer imp.mu.Unlock()
	j, ok := imp.jobs[jobID]
	if !ok {
		return ImportProgress{}, false
	}
	return j.progress, true
}

// GetJobResult returns the final result, or nil while the job still runs
// (or for an unknown id).
func (imp *StagingImporter) GetJobResult(jobID string) *ImportResult {
	imp.mu.Lock()
	defer imp.mu.Unlock()
	if j, ok := imp.jobs[jobID]; ok {
		return j.result
	}
	return nil
}

// update applies fn to a job's state under the importer lock.
func (imp *StagingImporter) update(jobID string, fn func(*job)) {
	imp.mu.Lock()
	defer imp.mu.Unlock()
	if j, ok := imp.jobs[jobID]; ok {
		fn(j)
	}
}

// run drives one import to completion and records the outcome. A job only
// counts as failed when nothing at all was imported.
func (imp *StagingImporter) run(ctx context.Context, jobID, path string) {
	result := imp.importFile(ctx, jobID, path)

	status := jobComplete
	message := fmt.Sprintf("Imported %d of %d lines", result.Imported, result.LinesRead)
	if result.Imported == 0 && len(result.Errors) > 0 {
		status, message = jobFailed, "Import failed"
	}

	imp.update(jobID, func(j *job) {
		j.result = result
		j.progress.Status = status
		j.progress.Message = message
		j.progress.LinesRead = result.LinesRead
		j.progress.Imported = result.Imported
	})
}

// importFile reads the dump line by line. Bad lines are counted and logged,
// never fatal: a dump with one mangled record should still land the rest.
func (imp *StagingImporter) importFile(ctx context.Context, jobID, path string) *ImportResult {
	start := time.Now()
	result := &ImportResult{JobID: jobID}

	f, err := os.Open(path)
	if err != nil {
		result.Errors = append(result.Errors, fmt.Sprintf("open error: %v", err))
		return result
	}
	defer func() { _ = f.Close() }()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)

	for lineNo := 1; scanner.Scan(); lineNo++ {
		if ctx.Err() != nil {
			result.Errors = append(result.Errors, "context cancelled")
			break
		}
		result.LinesRead++

		raw := strings.TrimSpace(scanner.Text())
		if raw == "" {
			result.Skipped++
			continue
		}

		if err := imp.importLine(ctx, raw, lineNo); err != nil {
			log.Printf("import: line %d: %v", lineNo, err)
			result.Failed++
			result.Errors = append(result.Errors, fmt.Sprintf("line %d: %v", lineNo, err))
			continue
		}

		result.Imported++
		imp.update(jobID, func(j *job) {
			j.progress.LinesRead = result.LinesRead
			j.progress.Imported = result.Imported
		})
	}

	if err := scanner.Err(); err != nil {
		result.Errors = append(result.Errors, fmt.Sprintf("read error: %v", err))
	}

	result.DurationMS = time.Since(start).Milliseconds()
	return result
}

// importLine parses one dump line and inserts it as a pending staging row,
// stamping import provenance into the metadata.
func (imp *StagingImporter) importLine(ctx context.Context, raw string, lineNo int) error {
	line, err := ParseLine([]byte(raw))
	if err != nil {
		return err
	}

	ext := line.Extraction()
	if ext.Metadata == nil {
		ext.Metadata = make(map[string]any, 2)
	}
	ext.Metadata["import_source"] = "jsonl"
	ext.Metadata["import_line"] = lineNo

	if _, err := imp.store.Insert(ctx, types.TableStaging, ext.Record()); err != nil {
		return fmt.Errorf("store error: %w", err)
	}
	return nil
}
