package retention

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/carverlabs/scribe/internal/storage"
	"github.com/carverlabs/scribe/pkg/types"
)

// MaxFlagIDs caps how many stale record ids a single purge request captures.
const MaxFlagIDs = 1000

// ErrAlreadyReviewed is returned when a review targets a purge request that a
// reviewer has already settled.
var ErrAlreadyReviewed = errors.New("purge request already reviewed")

// TableStat is one table's staleness snapshot.
type TableStat struct {
	Table      string    `json:"table"`
	WindowDays int       `json:"window_days"`
	Total      int       `json:"total"`
	Stale      int       `json:"stale"`
	Cutoff     time.Time `json:"cutoff"`
}

// ScanReport aggregates staleness across every table the policy monitors.
type ScanReport struct {
	Tables    []TableStat `json:"tables"`
	TotalRows int         `json:"total_rows"`
	StaleRows int         `json:"stale_rows"`
	ScannedAt time.Time   `json:"scanned_at"`
}

// BulkOutcome is the per-request result of a bulk approval.
type BulkOutcome struct {
	RequestID string `json:"request_id"`
	Deleted   int    `json:"deleted"`
	Error     string `json:"error,omitempty"`
}

// Manager owns the retention lifecycle: read-only staleness scans, flagging
// stale rows into purge requests, and the approval gate that performs the
// only deletes in the system. Nothing here deletes a row without a pending
// purge request and a named approver.
type Manager struct {
	store     storage.Store
	policy    Policy
	flagLimit int
}

// NewManager returns a retention manager over store. A nil policy takes
// the defaults.
func NewManager(store storage.Store, policy Policy) (*Manager, error) {
	if store == nil {
		return nil, fmt.Errorf("retention manager requires a store")
	}
	if policy == nil {
		policy = DefaultPolicy()
	}
	if err := policy.Validate(); err != nil {
		return nil, err
	}
	return &Manager{store: store, policy: policy, flagLimit: MaxFlagIDs}, nil
}

// Scan counts total and stale rows per monitored table. It never writes.
func (m *Manager) Scan(ctx context.Context) (*ScanReport, error) {
	report := &ScanReport{ScannedAt: time.Now().UTC()}

	for _, table := range m.policy.Tables() {
		days, ok := m.policy.Window(table)
		if !ok {
			continue
		}
		cutoff := report.ScannedAt.AddDate(0, 0, -days)

		total, err := m.store.Count(ctx, table, storage.Query{})
		if err != nil {
			return nil, fmt.Errorf("counting %s: %w", table, err)
		}
		stale, err := m.store.Count(ctx, table, storage.Query{
			Before: map[string]time.Time{"created_at": cutoff},
		})
		if err != nil {
			return nil, fmt.Errorf("counting stale %s: %w", table, err)
		}

		report.Tables = append(report.Tables, TableStat{
			Table:      table,
			WindowDays: days,
			Total:      total,
			Stale:      stale,
			Cutoff:     cutoff,
		})
		report.TotalRows += total
		report.StaleRows += stale
	}
	return report, nil
}

// Flag writes one pending purge request per listed table, capturing the ids
// of its oldest stale rows at flag time. Tables without a window, exempt
// tables, and tables with nothing stale are skipped. This is the only write
// the flag path performs.
func (m *Manager) Flag(ctx context.Context, tables []string, flaggedBy string) ([]*types.PurgeRequest, error) {
	now := time.Now().UTC()
	var requests []*types.PurgeRequest

	for _, table := range tables {
		days, ok := m.policy.Window(table)
		if !ok {
			log.Printf("WARNING: not flagging %s: no retention window", table)
			continue
		}
		cutoff := now.AddDate(0, 0, -days)

		stale, err := m.store.Select(ctx, table, storage.Query{
			Before:  map[string]time.Time{"created_at": cutoff},
			OrderBy: "created_at",
			Limit:   m.flagLimit,
		})
		if err != nil {
			return requests, fmt.Errorf("listing stale %s: %w", table, err)
		}
		if len(stale) == 0 {
			continue
		}

		ids := make([]string, 0, len(stale))
		for _, rec := range stale {
			ids = append(ids, rec.ID())
		}

		req := &types.PurgeRequest{
			TableName: table,
			RecordIDs: ids,
			Cutoff:    cutoff,
			Status:    types.PurgePending,
			FlaggedBy: flaggedBy,
		}
		stored, err := m.store.Insert(ctx, types.TablePurgeRequests, req.Record())
		if err != nil {
			return requests, fmt.Errorf("writing purge request for %s: %w", table, err)
		}
		requests = append(requests, types.PurgeRequestFromRecord(stored))
		log.Printf("Flagged %d stale %s rows for purge (request %s)", len(ids), table, stored.ID())
	}
	return requests, nil
}

// Approve deletes exactly the records a pending request captured, then marks
// the request approved. Both the request id and the approver identity are
// required; a settled request fails without touching any rows.
func (m *Manager) Approve(ctx context.Context, requestID, devID string) (*types.PurgeRequest, error) {
	req, err := m.loadPending(ctx, requestID, devID)
	if err != nil {
		return nil, err
	}

	deleted, err := m.store.Delete(ctx, req.TableName, req.RecordIDs)
	if err != nil {
		return nil, fmt.Errorf("deleting flagged %s rows: %w", req.TableName, err)
	}

	now := time.Now().UTC()
	stored, err := m.store.Update(ctx, types.TablePurgeRequests, req.ID, types.Record{
		"status":        string(types.PurgeApproved),
		"reviewed_by":   devID,
		"reviewed_at":   now,
		"executed":      true,
		"deleted_count": deleted,
	})
	if err != nil {
		// The rows are gone but the request still says pending; surface the
		// inconsistency instead of hiding it.
		log.Printf("ERROR: purge %s executed (%d rows) but could not be marked approved: %v",
			req.ID, deleted, err)
		return nil, fmt.Errorf("marking purge request %s approved: %w", req.ID, err)
	}

	log.Printf("Purge request %s approved by %s: deleted %d of %d flagged %s rows",
		req.ID, devID, deleted, len(req.RecordIDs), req.TableName)
	return types.PurgeRequestFromRecord(stored), nil
}

// Reject settles a pending request without deleting anything.
func (m *Manager) Reject(ctx context.Context, requestID, devID, note string) (*types.PurgeRequest, error) {
	req, err := m.loadPending(ctx, requestID, devID)
	if err != nil {
		return nil, err
	}

	stored, err := m.store.Update(ctx, types.TablePurgeRequests, req.ID, types.Record{
		"status":      string(types.PurgeRejected),
		"reviewed_by": devID,
		"reviewed_at": time.Now().UTC(),
		"review_note": note,
	})
	if err != nil {
		return nil, fmt.Errorf("marking purge request %s rejected: %w", req.ID, err)
	}

	log.Printf("Purge request %s rejected by %s", req.ID, devID)
	return types.PurgeRequestFromRecord(stored), nil
}

// BulkApprove applies Approve per request id, continuing past individual
// failures and reporting each outcome.
func (m *Manager) BulkApprove(ctx context.Context, requestIDs []string, devID string) []BulkOutcome {
	outcomes := make([]BulkOutcome, 0, len(requestIDs))
	for _, id := range requestIDs {
		outcome := BulkOutcome{RequestID: id}
		if req, err := m.Approve(ctx, id, devID); err != nil {
			outcome.Error = err.Error()
		} else {
			outcome.Deleted = req.DeletedCount
		}
		outcomes = append(outcomes, outcome)
	}
	return outcomes
}

// Requests lists purge requests, newest first, optionally narrowed to one
// status.
func (m *Manager) Requests(ctx context.Context, status types.PurgeStatus, limit int) ([]*types.PurgeRequest, error) {
	q := storage.Query{OrderBy: "created_at", Descending: true, Limit: limit}
	if status != "" {
		q.Filter = storage.Filter{"status": string(status)}
	}
	records, err := m.store.Select(ctx, types.TablePurgeRequests, q)
	if err != nil {
		return nil, fmt.Errorf("listing purge requests: %w", err)
	}

	requests := make([]*types.PurgeRequest, 0, len(records))
	for _, rec := range records {
		requests = append(requests, types.PurgeRequestFromRecord(rec))
	}
	return requests, nil
}

// loadPending validates the review inputs and returns the request only if it
// is still pending.
func (m *Manager) loadPending(ctx context.Context, requestID, devID string) (*types.PurgeRequest, error) {
	if requestID == "" {
		return nil, fmt.Errorf("%w: request id is required", storage.ErrInvalidInput)
	}
	if devID == "" {
		return nil, fmt.Errorf("%w: approver identity is required", storage.ErrInvalidInput)
	}

	rec, err := m.store.Get(ctx, types.TablePurgeRequests, requestID)
	if err != nil {
		return nil, fmt.Errorf("loading purge request %s: %w", requestID, err)
	}

	req := types.PurgeRequestFromRecord(rec)
	switch req.Status {
	case types.PurgePending:
		return req, nil
	case types.PurgeApproved:
		return nil, fmt.Errorf("%w: purge request %s already approved", ErrAlreadyReviewed, requestID)
	case types.PurgeRejected:
		return nil, fmt.Errorf("%w: purge request %s already rejected", ErrAlreadyReviewed, requestID)
	default:
		return nil, fmt.Errorf("purge request %s has unknown status %q", requestID, req.Status)
	}
}
