package engine

import (
	"context"
	"testing"
	"time"

	"github.com/carverlabs/scribe/pkg/types"
)

func waitFor(t *testing.T, timeout time.Duration, check func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if check() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not met before timeout")
}

func TestNewEngineRequiresStore(t *testing.T) {
	if _, err := NewEngine(nil, nil, RouterConfig{}); err == nil {
		t.Fatal("expected error for nil store")
	}
}

func TestEngineLifecycle(t *testing.T) {
	store := newEngineTestStore(t)
	e, err := NewEngine(store, nil, RouterConfig{})
	if err != nil {
		t.Fatalf("NewEngine failed: %v", err)
	}

	ctx := context.Background()
	if err := e.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if err := e.Start(ctx); err == nil {
		t.Error("second Start should fail")
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		t.Fatalf("Shutdown failed: %v", err)
	}
	if err := e.Shutdown(shutdownCtx); err == nil {
		t.Error("second Shutdown should fail")
	}
}

func TestEngineRunsImmediateCycleOnStart(t *testing.T) {
	store := newEngineTestStore(t)
	seedStaging(t, store, "stg-1", "Todos", "write docs", "body", nil, time.Now().UTC())

	e, err := NewEngine(store, nil, RouterConfig{})
	if err != nil {
		t.Fatalf("NewEngine failed: %v", err)
	}

	ctx := context.Background()
	if err := e.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(ctx, time.Second)
		defer cancel()
		_ = e.Shutdown(shutdownCtx)
	}()

	waitFor(t, 2*time.Second, func() bool {
		rec, err := store.Get(ctx, types.TableStaging, "stg-1")
		if err != nil {
			return false
		}
		return rec.String("status") == string(types.StagingProcessed)
	})

	if report := e.LastRouteReport(); report == nil || report.Processed != 1 {
		t.Errorf("last report = %+v, want one processed", report)
	}
}

func TestEngineCycleCallback(t *testing.T) {
	store := newEngineTestStore(t)
	e, err := NewEngine(store, nil, RouterConfig{})
	if err != nil {
		t.Fatalf("NewEngine failed: %v", err)
	}

	reports := make(chan *RouteReport, 4)
	e.SetOnCycleComplete(func(r *RouteReport) { reports <- r })

	ctx := context.Background()
	if err := e.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(ctx, time.Second)
		defer cancel()
		_ = e.Shutdown(shutdownCtx)
	}()

	select {
	case report := <-reports:
		if report.Skipped {
			t.Error("callback fired for a skipped cycle")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("startup cycle never reported")
	}
}

func TestRouteNowRequiresStart(t *testing.T) {
	store := newEngineTestStore(t)
	e, err := NewEngine(store, nil, RouterConfig{})
	if err != nil {
		t.Fatalf("NewEngine failed: %v", err)
	}

	if _, err := e.RouteNow(context.Background()); err == nil {
		t.Fatal("RouteNow before Start should fail")
	}

	ctx := context.Background()
	if err := e.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(ctx, time.Second)
		defer cancel()
		_ = e.Shutdown(shutdownCtx)
	}()

	seedStaging(t, store, "stg-now", "Todos", "triggered", "body", nil, time.Now().UTC())
	waitFor(t, 2*time.Second, func() bool {
		report, err := e.RouteNow(ctx)
		if err != nil {
			t.Fatalf("RouteNow failed: %v", err)
		}
		return !report.Skipped && report.Processed == 1
	})
}

func TestKickCoalesces(t *testing.T) {
	store := newEngineTestStore(t)
	e, err := NewEngine(store, nil, RouterConfig{})
	if err != nil {
		t.Fatalf("NewEngine failed: %v", err)
	}

	// Kick before Start must not block or panic; the nudge just waits in
	// the buffer for the loop.
	e.Kick()
	e.Kick()
	e.Kick()

	ctx := context.Background()
	if err := e.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	shutdownCtx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		t.Fatalf("Shutdown failed: %v", err)
	}
}
