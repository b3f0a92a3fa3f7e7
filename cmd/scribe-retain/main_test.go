package main

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carverlabs/scribe/internal/retention"
	"github.com/carverlabs/scribe/internal/storage"
	"github.com/carverlabs/scribe/internal/storage/sqlite"
	"github.com/carverlabs/scribe/pkg/types"
)

// newRetainTestManager builds a retention manager over an in-memory store.
func newRetainTestManager(t *testing.T) (*retention.Manager, storage.Store) {
	t.Helper()

	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	manager, err := retention.NewManager(store, nil)
	require.NoError(t, err)
	return manager, store
}

// seedAged inserts a row whose created_at sits ageDays in the past.
func seedAged(t *testing.T, store storage.Store, table, title string, ageDays int) string {
	t.Helper()

	at := time.Now().UTC().AddDate(0, 0, -ageDays)
	rec, err := store.Insert(context.Background(), table, types.Record{
		"title":      title,
		"content":    "retained content",
		"status":     "active",
		"created_at": at,
		"updated_at": at,
	})
	require.NoError(t, err)
	return rec.ID()
}

// TestRetainScan_ReportsStaleRows tests the retention.Manager.Scan operation
// that handleScan() calls.
func TestRetainScan_ReportsStaleRows(t *testing.T) {
	manager, store := newRetainTestManager(t)

	seedAged(t, store, types.TableTodos, "ancient todo", 120)
	seedAged(t, store, types.TableTodos, "fresh todo", 1)

	report, err := manager.Scan(context.Background())
	require.NoError(t, err)

	var todos *retention.TableStat
	for i := range report.Tables {
		if report.Tables[i].Table == types.TableTodos {
			todos = &report.Tables[i]
		}
	}
	require.NotNil(t, todos, "scan should cover the todos table")
	assert.Equal(t, 90, todos.WindowDays)
	assert.Equal(t, 2, todos.Total)
	assert.Equal(t, 1, todos.Stale)
	assert.Equal(t, 1, report.StaleRows)
}

// TestRetainFlagApprove_DeletesCapturedRows tests the Flag and Approve
// operations that handleFlag() and handleApprove() call.
func TestRetainFlagApprove_DeletesCapturedRows(t *testing.T) {
	manager, store := newRetainTestManager(t)
	ctx := context.Background()

	staleID := seedAged(t, store, types.TableTodos, "ancient todo", 120)
	freshID := seedAged(t, store, types.TableTodos, "fresh todo", 1)

	requests, err := manager.Flag(ctx, []string{types.TableTodos}, "ops-ana")
	require.NoError(t, err)
	require.Len(t, requests, 1)
	assert.Equal(t, []string{staleID}, requests[0].RecordIDs)

	approved, err := manager.Approve(ctx, requests[0].ID, "lead-sam")
	require.NoError(t, err)
	assert.Equal(t, types.PurgeApproved, approved.Status)
	assert.True(t, approved.Executed)
	assert.Equal(t, 1, approved.DeletedCount)

	_, err = store.Get(ctx, types.TableTodos, staleID)
	assert.ErrorIs(t, err, storage.ErrNotFound, "captured row should be deleted")
	_, err = store.Get(ctx, types.TableTodos, freshID)
	assert.NoError(t, err, "fresh row should survive the purge")
}

// TestRetainReject_PreservesRows tests the Reject operation that
// handleReject() calls.
func TestRetainReject_PreservesRows(t *testing.T) {
	manager, store := newRetainTestManager(t)
	ctx := context.Background()

	staleID := seedAged(t, store, types.TableKnowledge, "old but precious", 200)

	requests, err := manager.Flag(ctx, []string{types.TableKnowledge}, "ops-ana")
	require.NoError(t, err)
	require.Len(t, requests, 1)

	rejected, err := manager.Reject(ctx, requests[0].ID, "lead-sam", "keep for the audit")
	require.NoError(t, err)
	assert.Equal(t, types.PurgeRejected, rejected.Status)
	assert.False(t, rejected.Executed)

	_, err = store.Get(ctx, types.TableKnowledge, staleID)
	assert.NoError(t, err, "rejecting a request must not delete anything")
}

// TestOperatorName_Precedence verifies the identity resolution order:
// -operator flag, then SCRIBE_OPERATOR, then USER.
func TestOperatorName_Precedence(t *testing.T) {
	orig := *operator
	defer func() { *operator = orig }()

	t.Setenv("SCRIBE_OPERATOR", "env-operator")
	t.Setenv("USER", "shell-user")

	*operator = "flag-operator"
	assert.Equal(t, "flag-operator", operatorName())

	*operator = ""
	assert.Equal(t, "env-operator", operatorName())

	t.Setenv("SCRIBE_OPERATOR", "")
	assert.Equal(t, "shell-user", operatorName())

	t.Setenv("USER", "")
	assert.Equal(t, "operator", operatorName())
}
