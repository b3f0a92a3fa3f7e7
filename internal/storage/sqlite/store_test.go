package sqlite

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/carverlabs/scribe/internal/storage"
	"github.com/carverlabs/scribe/pkg/types"
)

// newTestStore creates an in-memory SQLite store for testing. New applies
// the full Schema, so no additional DDL is required in tests.
func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := New(":memory:")
	if err != nil {
		t.Fatalf("failed to create test store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestInsertAndGetRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	created := time.Date(2025, 6, 1, 10, 0, 0, 123456789, time.UTC)
	rec := types.Record{
		"id":         "stg-1",
		"bucket":     "Bugs Open",
		"title":      "login fails on safari",
		"content":    "repro: open login page on safari 17",
		"status":     "pending",
		"project_id": "proj-1",
		"metadata":   map[string]any{"hash": "abc123", "extractor": "v2"},
		"created_at": created,
		"updated_at": created,
	}

	if _, err := store.Insert(ctx, types.TableStaging, rec); err != nil {
		t.Fatalf("insert failed: %v", err)
	}

	got, err := store.Get(ctx, types.TableStaging, "stg-1")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if got.String("bucket") != "Bugs Open" || got.String("title") != "login fails on safari" {
		t.Errorf("round trip lost fields: %+v", got)
	}
	if !got.Time("created_at").Equal(created) {
		t.Errorf("created_at = %v, want %v (nanosecond precision)", got.Time("created_at"), created)
	}
	meta := got.Metadata()
	if meta == nil || meta["hash"] != "abc123" || meta["extractor"] != "v2" {
		t.Errorf("metadata did not round trip: %v", meta)
	}
}

func TestInsertStampsIdentityAndTimes(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	stored, err := store.Insert(ctx, types.TableTodos, types.Record{
		"title":  "write release notes",
		"status": "unassigned",
	})
	if err != nil {
		t.Fatalf("insert failed: %v", err)
	}
	if stored.ID() == "" {
		t.Error("insert should generate an id")
	}
	if stored.Time("created_at").IsZero() || stored.Time("updated_at").IsZero() {
		t.Error("insert should stamp created_at and updated_at")
	}

	got, err := store.Get(ctx, types.TableTodos, stored.ID())
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if !got.Time("created_at").Equal(stored.Time("created_at")) {
		t.Errorf("stored created_at %v != fetched %v", stored.Time("created_at"), got.Time("created_at"))
	}
}

func TestSelectFiltersAndOrder(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	base := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	rows := []types.Record{
		{"id": "a", "bucket": "Todos", "status": "pending", "project_id": "p1", "created_at": base},
		{"id": "b", "bucket": "Todos", "status": "processed", "project_id": "p1", "created_at": base.Add(time.Hour)},
		{"id": "c", "bucket": "Todos", "status": "pending", "project_id": "p2", "created_at": base.Add(2 * time.Hour)},
		{"id": "d", "bucket": "Todos", "status": "error", "project_id": "p1", "created_at": base.Add(3 * time.Hour)},
	}
	for _, r := range rows {
		if _, err := store.Insert(ctx, types.TableStaging, r); err != nil {
			t.Fatalf("insert %s failed: %v", r.ID(), err)
		}
	}

	t.Run("equality filter ascending", func(t *testing.T) {
		got, err := store.Select(ctx, types.TableStaging, storage.Query{
			Filter:  storage.Filter{"status": "pending"},
			OrderBy: "created_at",
		})
		if err != nil {
			t.Fatalf("select failed: %v", err)
		}
		if len(got) != 2 || got[0].ID() != "a" || got[1].ID() != "c" {
			t.Errorf("got %d rows, ids %v", len(got), ids(got))
		}
	})

	t.Run("in filter", func(t *testing.T) {
		got, err := store.Select(ctx, types.TableStaging, storage.Query{
			In: map[string][]string{"status": {"processed", "error"}},
		})
		if err != nil {
			t.Fatalf("select failed: %v", err)
		}
		if len(got) != 2 {
			t.Errorf("got %d rows, want 2", len(got))
		}
	})

	t.Run("descending with limit", func(t *testing.T) {
		got, err := store.Select(ctx, types.TableStaging, storage.Query{
			OrderBy:    "created_at",
			Descending: true,
			Limit:      2,
		})
		if err != nil {
			t.Fatalf("select failed: %v", err)
		}
		if len(got) != 2 || got[0].ID() != "d" || got[1].ID() != "c" {
			t.Errorf("ids = %v, want [d c]", ids(got))
		}
	})

	t.Run("time bounds", func(t *testing.T) {
		got, err := store.Select(ctx, types.TableStaging, storage.Query{
			Before:  map[string]time.Time{"created_at": base.Add(3 * time.Hour)},
			After:   map[string]time.Time{"created_at": base.Add(time.Hour)},
			OrderBy: "created_at",
		})
		if err != nil {
			t.Fatalf("select failed: %v", err)
		}
		// After is inclusive, Before exclusive.
		if len(got) != 2 || got[0].ID() != "b" || got[1].ID() != "c" {
			t.Errorf("ids = %v, want [b c]", ids(got))
		}
	})

	t.Run("unknown sort column falls back", func(t *testing.T) {
		got, err := store.Select(ctx, types.TableStaging, storage.Query{OrderBy: "evil; DROP TABLE"})
		if err != nil {
			t.Fatalf("select failed: %v", err)
		}
		if len(got) != 4 {
			t.Errorf("got %d rows, want 4", len(got))
		}
	})
}

func TestSelectNullColumn(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	recs := []types.Record{
		{"id": "t1", "title": "one", "status": "unassigned", "project_id": "p1"},
		{"id": "t2", "title": "two", "status": "unassigned", "project_id": "p1", "phase_id": "ph1"},
		{"id": "t3", "title": "three", "status": "unassigned", "project_id": "p1", "phase_id": ""},
	}
	for _, r := range recs {
		if _, err := store.Insert(ctx, types.TableTodos, r); err != nil {
			t.Fatalf("insert failed: %v", err)
		}
	}

	got, err := store.Select(ctx, types.TableTodos, storage.Query{Null: []string{"phase_id"}})
	if err != nil {
		t.Fatalf("select failed: %v", err)
	}
	// Both missing and empty-string phase ids count as unassigned.
	if len(got) != 2 {
		t.Errorf("got %d unphased todos, want 2 (%v)", len(got), ids(got))
	}
}

func TestUpdateStampsAndNotFound(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	created := time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC)
	if _, err := store.Insert(ctx, types.TableBugs, types.Record{
		"id": "bug-1", "title": "crash on save", "status": "open",
		"created_at": created, "updated_at": created,
	}); err != nil {
		t.Fatalf("insert failed: %v", err)
	}

	updated, err := store.Update(ctx, types.TableBugs, "bug-1", types.Record{"status": "resolved"})
	if err != nil {
		t.Fatalf("update failed: %v", err)
	}
	if updated.String("status") != "resolved" {
		t.Errorf("status = %q", updated.String("status"))
	}
	if !updated.Time("updated_at").After(created) {
		t.Error("update should bump updated_at")
	}
	if !updated.Time("created_at").Equal(created) {
		t.Error("update must not touch created_at")
	}

	if _, err := store.Update(ctx, types.TableBugs, "missing", types.Record{"status": "open"}); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("update of missing record = %v, want ErrNotFound", err)
	}

	if _, err := store.Update(ctx, types.TableBugs, "bug-1", types.Record{"nonexistent_col": "x"}); !errors.Is(err, storage.ErrInvalidInput) {
		t.Errorf("update with unknown column = %v, want ErrInvalidInput", err)
	}
}

func TestDeleteReportsAffectedRows(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	for _, id := range []string{"s1", "s2", "s3"} {
		if _, err := store.Insert(ctx, types.TableSessions, types.Record{"id": id, "status": "archived"}); err != nil {
			t.Fatalf("insert failed: %v", err)
		}
	}

	n, err := store.Delete(ctx, types.TableSessions, []string{"s1", "s3", "ghost"})
	if err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	if n != 2 {
		t.Errorf("deleted %d rows, want 2 (missing ids are not an error)", n)
	}

	n, err = store.Delete(ctx, types.TableSessions, nil)
	if err != nil || n != 0 {
		t.Errorf("empty delete = (%d, %v), want (0, nil)", n, err)
	}

	remaining, err := store.Count(ctx, types.TableSessions, storage.Query{})
	if err != nil {
		t.Fatalf("count failed: %v", err)
	}
	if remaining != 1 {
		t.Errorf("remaining = %d, want 1", remaining)
	}
}

func TestUnknownTableRejected(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if _, err := store.Select(ctx, "not_a_table", storage.Query{}); !errors.Is(err, storage.ErrUnknownTable) {
		t.Errorf("select unknown table = %v, want ErrUnknownTable", err)
	}
	if _, err := store.Insert(ctx, "not_a_table", types.Record{"id": "x"}); !errors.Is(err, storage.ErrUnknownTable) {
		t.Errorf("insert unknown table = %v, want ErrUnknownTable", err)
	}
	if _, err := store.Delete(ctx, "not_a_table", []string{"x"}); !errors.Is(err, storage.ErrUnknownTable) {
		t.Errorf("delete unknown table = %v, want ErrUnknownTable", err)
	}
}

func TestGetNotFound(t *testing.T) {
	store := newTestStore(t)
	if _, err := store.Get(context.Background(), types.TableTodos, "nope"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("get missing record = %v, want ErrNotFound", err)
	}
}

func TestPurgeRequestPersistence(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	req := &types.PurgeRequest{
		ID:        "purge-1",
		TableName: types.TableMessages,
		RecordIDs: []string{"m1", "m2"},
		Cutoff:    time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC),
		Status:    types.PurgePending,
		FlaggedBy: "retention-manager",
		CreatedAt: time.Now().UTC(),
		UpdatedAt: time.Now().UTC(),
	}
	if _, err := store.Insert(ctx, types.TablePurgeRequests, req.Record()); err != nil {
		t.Fatalf("insert failed: %v", err)
	}

	rec, err := store.Get(ctx, types.TablePurgeRequests, "purge-1")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	got := types.PurgeRequestFromRecord(rec)
	if got.Count() != 2 || got.RecordIDs[0] != "m1" {
		t.Errorf("record ids lost in persistence: %v", got.RecordIDs)
	}
	if got.Executed {
		t.Error("executed must round-trip as false")
	}
	if !got.Cutoff.Equal(req.Cutoff) {
		t.Errorf("cutoff = %v, want %v", got.Cutoff, req.Cutoff)
	}
}

func ids(recs []types.Record) []string {
	out := make([]string, len(recs))
	for i, r := range recs {
		out[i] = r.ID()
	}
	return out
}
