package storage

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/carverlabs/scribe/pkg/types"
)

// flakyStore fails every call with err until healed, then succeeds.
type flakyStore struct {
	err   error
	calls int
	block bool
}

func (f *flakyStore) Select(ctx context.Context, table string, q Query) ([]types.Record, error) {
	f.calls++
	if f.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if f.err != nil {
		return nil, f.err
	}
	return []types.Record{{"id": "r1"}}, nil
}

func (f *flakyStore) Get(ctx context.Context, table, id string) (types.Record, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return types.Record{"id": id}, nil
}

func (f *flakyStore) Insert(ctx context.Context, table string, rec types.Record) (types.Record, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return rec, nil
}

func (f *flakyStore) Update(ctx context.Context, table, id string, changes types.Record) (types.Record, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return changes, nil
}

func (f *flakyStore) Delete(ctx context.Context, table string, ids []string) (int, error) {
	f.calls++
	if f.err != nil {
		return 0, f.err
	}
	return len(ids), nil
}

func (f *flakyStore) Count(ctx context.Context, table string, q Query) (int, error) {
	f.calls++
	if f.err != nil {
		return 0, f.err
	}
	return 1, nil
}

func (f *flakyStore) Close() error { return nil }

func TestGuardPassesThroughSuccess(t *testing.T) {
	inner := &flakyStore{}
	guarded := Guard(inner, GuardConfig{})

	recs, err := guarded.Select(context.Background(), types.TableTodos, Query{})
	if err != nil {
		t.Fatalf("select failed: %v", err)
	}
	if len(recs) != 1 || recs[0].ID() != "r1" {
		t.Errorf("unexpected result: %v", recs)
	}
	if guarded.State() != "closed" {
		t.Errorf("state = %s, want closed", guarded.State())
	}
}

func TestGuardOpensAfterConsecutiveFailures(t *testing.T) {
	inner := &flakyStore{err: errors.New("connection refused")}
	guarded := Guard(inner, GuardConfig{MaxFailures: 3})

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		if _, err := guarded.Count(ctx, types.TableTodos, Query{}); err == nil {
			t.Fatal("expected failure")
		}
	}
	if guarded.State() != "open" {
		t.Fatalf("state = %s, want open after 3 consecutive failures", guarded.State())
	}

	backendCalls := inner.calls
	if _, err := guarded.Count(ctx, types.TableTodos, Query{}); !errors.Is(err, ErrStoreUnavailable) {
		t.Errorf("open-circuit call = %v, want ErrStoreUnavailable", err)
	}
	if inner.calls != backendCalls {
		t.Error("open circuit must reject without touching the backend")
	}
}

func TestGuardIgnoresDomainMisses(t *testing.T) {
	inner := &flakyStore{err: ErrNotFound}
	guarded := Guard(inner, GuardConfig{MaxFailures: 2})

	ctx := context.Background()
	for i := 0; i < 10; i++ {
		if _, err := guarded.Get(ctx, types.TableTodos, "missing"); !errors.Is(err, ErrNotFound) {
			t.Fatalf("get = %v, want ErrNotFound passed through", err)
		}
	}
	if guarded.State() != "closed" {
		t.Errorf("state = %s; not-found results must never trip the breaker", guarded.State())
	}
}

func TestGuardAppliesCallTimeout(t *testing.T) {
	inner := &flakyStore{block: true}
	guarded := Guard(inner, GuardConfig{CallTimeout: 20 * time.Millisecond})

	start := time.Now()
	_, err := guarded.Select(context.Background(), types.TableTodos, Query{})
	if err == nil {
		t.Fatal("expected timeout error")
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("call took %v; timeout did not bound the hung backend", elapsed)
	}
}

func TestGuardRespectsCancelledContext(t *testing.T) {
	inner := &flakyStore{}
	guarded := Guard(inner, GuardConfig{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := guarded.Select(ctx, types.TableTodos, Query{}); !errors.Is(err, context.Canceled) {
		t.Errorf("cancelled call = %v, want context.Canceled", err)
	}
	if inner.calls != 0 {
		t.Error("cancelled context must not reach the backend")
	}
}
