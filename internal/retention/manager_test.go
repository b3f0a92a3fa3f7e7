package retention

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/carverlabs/scribe/internal/storage"
	"github.com/carverlabs/scribe/internal/storage/sqlite"
	"github.com/carverlabs/scribe/pkg/types"
)

func newRetentionTestStore(t *testing.T) storage.Store {
	t.Helper()
	store, err := sqlite.New(":memory:")
	if err != nil {
		t.Fatalf("failed to open test store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func newTestManager(t *testing.T, store storage.Store) *Manager {
	t.Helper()
	m, err := NewManager(store, nil)
	if err != nil {
		t.Fatalf("NewManager failed: %v", err)
	}
	return m
}

// seedAged inserts a minimal record whose created_at lies age in the past.
func seedAged(t *testing.T, store storage.Store, table, id string, age time.Duration) {
	t.Helper()
	rec := types.Record{
		"id":         id,
		"created_at": time.Now().UTC().Add(-age),
	}
	if spec := storage.Spec(table); spec != nil && spec.HasColumn("title") {
		rec["title"] = "record " + id
	}
	if _, err := store.Insert(context.Background(), table, rec); err != nil {
		t.Fatalf("failed to seed %s/%s: %v", table, id, err)
	}
}

func days(n int) time.Duration {
	return time.Duration(n) * 24 * time.Hour
}

func requestStatus(t *testing.T, store storage.Store, id string) types.PurgeStatus {
	t.Helper()
	rec, err := store.Get(context.Background(), types.TablePurgeRequests, id)
	if err != nil {
		t.Fatalf("failed to load purge request %s: %v", id, err)
	}
	return types.PurgeStatus(rec.String("status"))
}

func TestScanCountsStalePerTable(t *testing.T) {
	store := newRetentionTestStore(t)
	seedAged(t, store, types.TableTodos, "todo-old-1", days(100))
	seedAged(t, store, types.TableTodos, "todo-old-2", days(95))
	seedAged(t, store, types.TableTodos, "todo-fresh", days(1))
	seedAged(t, store, types.TableKnowledge, "know-old", days(100))
	seedAged(t, store, types.TableSchemas, "schema-1", days(400))

	m := newTestManager(t, store)
	report, err := m.Scan(context.Background())
	if err != nil {
		t.Fatalf("Scan failed: %v", err)
	}

	stats := make(map[string]TableStat, len(report.Tables))
	for _, stat := range report.Tables {
		stats[stat.Table] = stat
	}

	if got := stats[types.TableTodos]; got.Total != 3 || got.Stale != 2 || got.WindowDays != 90 {
		t.Errorf("todos stat = %+v, want total 3, stale 2, window 90", got)
	}
	if got := stats[types.TableKnowledge]; got.Total != 1 || got.Stale != 1 {
		t.Errorf("knowledge stat = %+v, want total 1, stale 1", got)
	}
	if _, ok := stats[types.TableSchemas]; ok {
		t.Error("schemas must never appear in a retention scan")
	}
	if report.TotalRows != 4 || report.StaleRows != 3 {
		t.Errorf("totals = %d/%d, want 4 rows with 3 stale", report.TotalRows, report.StaleRows)
	}
}

func TestFlagCapturesStaleIDs(t *testing.T) {
	store := newRetentionTestStore(t)
	seedAged(t, store, types.TableTodos, "todo-old-1", days(100))
	seedAged(t, store, types.TableTodos, "todo-old-2", days(95))
	seedAged(t, store, types.TableTodos, "todo-fresh", days(1))

	m := newTestManager(t, store)
	requests, err := m.Flag(context.Background(), []string{types.TableTodos}, "retention-bot")
	if err != nil {
		t.Fatalf("Flag failed: %v", err)
	}
	if len(requests) != 1 {
		t.Fatalf("got %d requests, want 1", len(requests))
	}

	req := requests[0]
	if req.TableName != types.TableTodos || req.Status != types.PurgePending {
		t.Errorf("request = %+v, want pending todos request", req)
	}
	if req.FlaggedBy != "retention-bot" {
		t.Errorf("FlaggedBy = %q, want retention-bot", req.FlaggedBy)
	}
	if len(req.RecordIDs) != 2 || req.RecordIDs[0] != "todo-old-1" || req.RecordIDs[1] != "todo-old-2" {
		t.Errorf("RecordIDs = %v, want the two stale todos oldest first", req.RecordIDs)
	}
	if req.Cutoff.IsZero() {
		t.Error("request should capture the cutoff used at flag time")
	}

	// Flagging writes nothing but the request itself.
	if n, err := store.Count(context.Background(), types.TableTodos, storage.Query{}); err != nil || n != 3 {
		t.Errorf("todos count = %d (%v), want 3 untouched rows", n, err)
	}
	if got := requestStatus(t, store, req.ID); got != types.PurgePending {
		t.Errorf("persisted status = %q, want pending", got)
	}
}

func TestFlagSkipsUnmonitoredTables(t *testing.T) {
	store := newRetentionTestStore(t)
	seedAged(t, store, types.TableSchemas, "schema-1", days(400))

	m := newTestManager(t, store)
	requests, err := m.Flag(context.Background(), []string{types.TableSchemas, types.TableTodos, types.TableJournal}, "")
	if err != nil {
		t.Fatalf("Flag failed: %v", err)
	}
	if len(requests) != 0 {
		t.Errorf("got %d requests, want none for exempt, empty, and unmonitored tables", len(requests))
	}
}

func TestFlagRespectsIDCap(t *testing.T) {
	store := newRetentionTestStore(t)
	seedAged(t, store, types.TableTodos, "todo-1", days(120))
	seedAged(t, store, types.TableTodos, "todo-2", days(110))
	seedAged(t, store, types.TableTodos, "todo-3", days(100))

	m := newTestManager(t, store)
	m.flagLimit = 2

	requests, err := m.Flag(context.Background(), []string{types.TableTodos}, "")
	if err != nil {
		t.Fatalf("Flag failed: %v", err)
	}
	if len(requests) != 1 {
		t.Fatalf("got %d requests, want 1", len(requests))
	}
	if ids := requests[0].RecordIDs; len(ids) != 2 || ids[0] != "todo-1" || ids[1] != "todo-2" {
		t.Errorf("RecordIDs = %v, want the two oldest under the cap", ids)
	}
}

func TestApproveRequiresApproverIdentity(t *testing.T) {
	store := newRetentionTestStore(t)
	seedAged(t, store, types.TableTodos, "todo-old", days(100))

	m := newTestManager(t, store)
	requests, err := m.Flag(context.Background(), []string{types.TableTodos}, "")
	if err != nil || len(requests) != 1 {
		t.Fatalf("Flag = %v, %v", requests, err)
	}
	req := requests[0]

	_, err = m.Approve(context.Background(), req.ID, "")
	if !errors.Is(err, storage.ErrInvalidInput) {
		t.Fatalf("Approve without identity = %v, want invalid input", err)
	}

	if _, err := store.Get(context.Background(), types.TableTodos, "todo-old"); err != nil {
		t.Errorf("row should survive a refused approval: %v", err)
	}
	if got := requestStatus(t, store, req.ID); got != types.PurgePending {
		t.Errorf("request status = %q, want still pending", got)
	}
}

func TestApproveDeletesExactlyCapturedIDs(t *testing.T) {
	store := newRetentionTestStore(t)
	seedAged(t, store, types.TableTodos, "todo-old-1", days(100))
	seedAged(t, store, types.TableTodos, "todo-old-2", days(95))

	m := newTestManager(t, store)
	requests, err := m.Flag(context.Background(), []string{types.TableTodos}, "")
	if err != nil || len(requests) != 1 {
		t.Fatalf("Flag = %v, %v", requests, err)
	}
	req := requests[0]

	// Goes stale between flag and approval; the captured list must win over
	// a re-query.
	seedAged(t, store, types.TableTodos, "todo-late", days(200))

	approved, err := m.Approve(context.Background(), req.ID, "dev-ana")
	if err != nil {
		t.Fatalf("Approve failed: %v", err)
	}
	if approved.Status != types.PurgeApproved || !approved.Executed || approved.DeletedCount != 2 {
		t.Errorf("approved = %+v, want executed approval of 2 rows", approved)
	}
	if approved.ReviewedBy != "dev-ana" || approved.ReviewedAt.IsZero() {
		t.Errorf("approved = %+v, want reviewer attribution", approved)
	}

	for _, id := range []string{"todo-old-1", "todo-old-2"} {
		if _, err := store.Get(context.Background(), types.TableTodos, id); !errors.Is(err, storage.ErrNotFound) {
			t.Errorf("Get(%s) = %v, want deleted", id, err)
		}
	}
	if _, err := store.Get(context.Background(), types.TableTodos, "todo-late"); err != nil {
		t.Errorf("row flagged after capture should survive: %v", err)
	}

	_, err = m.Approve(context.Background(), req.ID, "dev-ana")
	if err == nil || !strings.Contains(err.Error(), "already approved") {
		t.Errorf("second approval = %v, want already approved", err)
	}
}

func TestRejectLeavesRowsAlone(t *testing.T) {
	store := newRetentionTestStore(t)
	seedAged(t, store, types.TableTodos, "todo-old", days(100))

	m := newTestManager(t, store)
	requests, err := m.Flag(context.Background(), []string{types.TableTodos}, "")
	if err != nil || len(requests) != 1 {
		t.Fatalf("Flag = %v, %v", requests, err)
	}
	req := requests[0]

	rejected, err := m.Reject(context.Background(), req.ID, "dev-bo", "needed for audit")
	if err != nil {
		t.Fatalf("Reject failed: %v", err)
	}
	if rejected.Status != types.PurgeRejected || rejected.Executed {
		t.Errorf("rejected = %+v, want unexecuted rejection", rejected)
	}
	if rejected.ReviewNote != "needed for audit" {
		t.Errorf("ReviewNote = %q", rejected.ReviewNote)
	}
	if _, err := store.Get(context.Background(), types.TableTodos, "todo-old"); err != nil {
		t.Errorf("row should survive a rejection: %v", err)
	}

	_, err = m.Approve(context.Background(), req.ID, "dev-bo")
	if err == nil || !strings.Contains(err.Error(), "already rejected") {
		t.Errorf("approval after rejection = %v, want already rejected", err)
	}
}

func TestBulkApproveContinuesPastFailures(t *testing.T) {
	store := newRetentionTestStore(t)
	seedAged(t, store, types.TableTodos, "todo-old", days(100))
	seedAged(t, store, types.TableKnowledge, "know-old", days(100))

	m := newTestManager(t, store)
	requests, err := m.Flag(context.Background(), []string{types.TableTodos, types.TableKnowledge}, "")
	if err != nil || len(requests) != 2 {
		t.Fatalf("Flag = %v, %v", requests, err)
	}

	ids := []string{"missing-request", requests[0].ID, requests[1].ID}
	outcomes := m.BulkApprove(context.Background(), ids, "dev-cy")

	if len(outcomes) != 3 {
		t.Fatalf("got %d outcomes, want 3", len(outcomes))
	}
	if outcomes[0].Error == "" {
		t.Error("missing request should report its failure")
	}
	for _, outcome := range outcomes[1:] {
		if outcome.Error != "" || outcome.Deleted != 1 {
			t.Errorf("outcome = %+v, want one deleted row and no error", outcome)
		}
	}
}
