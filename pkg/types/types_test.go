package types_test

import (
	"testing"
	"time"

	"github.com/carverlabs/scribe/pkg/types"
)

func TestRecordAccessors(t *testing.T) {
	created := time.Date(2025, 6, 1, 12, 30, 0, 0, time.UTC)
	rec := types.Record{
		"id":         "rec-1",
		"title":      "fix login",
		"count":      int64(7),
		"ratio":      3.0,
		"executed":   int64(1),
		"created_at": created,
		"updated_at": "2025-06-02T08:00:00Z",
	}

	if rec.ID() != "rec-1" {
		t.Errorf("ID() = %q", rec.ID())
	}
	if rec.String("title") != "fix login" {
		t.Errorf("String(title) = %q", rec.String("title"))
	}
	if rec.String("missing") != "" {
		t.Error("missing string field should be empty")
	}
	if rec.Int("count") != 7 {
		t.Errorf("Int(count) = %d, want 7 (int64 widening)", rec.Int("count"))
	}
	if rec.Int("ratio") != 3 {
		t.Errorf("Int(ratio) = %d, want 3 (float64 widening)", rec.Int("ratio"))
	}
	if !rec.Bool("executed") {
		t.Error("Bool(executed) should accept integer 1")
	}
	if !rec.Time("created_at").Equal(created) {
		t.Errorf("Time(created_at) = %v", rec.Time("created_at"))
	}
	want := time.Date(2025, 6, 2, 8, 0, 0, 0, time.UTC)
	if !rec.Time("updated_at").Equal(want) {
		t.Errorf("Time(updated_at) = %v, want %v (RFC3339 parsing)", rec.Time("updated_at"), want)
	}
	if !rec.Time("missing").IsZero() {
		t.Error("missing time field should be zero")
	}
}

func TestCloneMetadataIsolation(t *testing.T) {
	rec := types.Record{
		"id":       "rec-2",
		"metadata": map[string]any{"hash": "abc123"},
	}

	meta := rec.CloneMetadata()
	meta["error"] = "boom"

	if _, leaked := rec.Metadata()["error"]; leaked {
		t.Error("CloneMetadata must not alias the record's metadata")
	}
	if meta["hash"] != "abc123" {
		t.Error("CloneMetadata must carry existing keys")
	}

	empty := types.Record{"id": "rec-3"}
	if m := empty.CloneMetadata(); m == nil || len(m) != 0 {
		t.Errorf("CloneMetadata on metadata-less record = %v, want empty map", m)
	}
}

func TestStagingRecordRoundTrip(t *testing.T) {
	now := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)
	in := &types.StagingExtraction{
		ID:              "stg-1",
		Bucket:          "Bugs Open",
		Title:           "login fails on safari",
		Content:         "repro steps...",
		ProjectID:       "proj-1",
		ClientID:        "client-1",
		SourceSessionID: "sess-1",
		Status:          types.StagingPending,
		Metadata:        map[string]any{types.MetaHash: "deadbeef"},
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	out := types.StagingFromRecord(in.Record())

	if out.ID != in.ID || out.Bucket != in.Bucket || out.Title != in.Title {
		t.Errorf("round trip lost identity fields: %+v", out)
	}
	if out.Status != types.StagingPending {
		t.Errorf("Status = %s", out.Status)
	}
	if out.ContentHash() != "deadbeef" {
		t.Errorf("ContentHash() = %q", out.ContentHash())
	}
	if !out.CreatedAt.Equal(now) {
		t.Errorf("CreatedAt = %v", out.CreatedAt)
	}
}

func TestContentHashMissing(t *testing.T) {
	e := &types.StagingExtraction{ID: "stg-2"}
	if e.ContentHash() != "" {
		t.Errorf("ContentHash() on hashless record = %q, want empty", e.ContentHash())
	}
}

func TestPurgeRequestRecordRoundTrip(t *testing.T) {
	now := time.Date(2025, 5, 20, 10, 0, 0, 0, time.UTC)
	in := &types.PurgeRequest{
		ID:        "purge-1",
		TableName: types.TableSessions,
		RecordIDs: []string{"a", "b", "c"},
		Cutoff:    now.AddDate(0, 0, -30),
		Status:    types.PurgePending,
		FlaggedBy: "retention-manager",
		CreatedAt: now,
		UpdatedAt: now,
	}

	out := types.PurgeRequestFromRecord(in.Record())

	if out.TableName != types.TableSessions {
		t.Errorf("TableName = %q", out.TableName)
	}
	if out.Count() != 3 || out.RecordIDs[2] != "c" {
		t.Errorf("RecordIDs = %v, want captured list preserved in order", out.RecordIDs)
	}
	if out.Status != types.PurgePending || out.Executed {
		t.Errorf("flag-time request must be pending and unexecuted: %+v", out)
	}
	if !out.ReviewedAt.IsZero() {
		t.Error("unreviewed request must have zero ReviewedAt")
	}
}
