package storage

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/sony/gobreaker"

	"github.com/carverlabs/scribe/pkg/types"
)

// GuardConfig holds the configuration for the guarded store decorator.
type GuardConfig struct {
	// CallTimeout bounds every store call. The polling loops run unattended,
	// so a hung backend must fail the call instead of wedging a cycle.
	// Default: 15 seconds
	CallTimeout time.Duration

	// MaxFailures is the number of consecutive failures required to trip
	// the circuit. Default: 5
	MaxFailures uint32

	// OpenTimeout is the duration the circuit stays open before allowing
	// test requests. Default: 30 seconds
	OpenTimeout time.Duration

	// HalfOpenMaxSuccesses is the number of consecutive successes required
	// in half-open state to close the circuit again. Default: 2
	HalfOpenMaxSuccesses uint32
}

// DefaultGuardConfig returns the guard settings the pipeline loops use.
func DefaultGuardConfig() GuardConfig {
	return GuardConfig{
		CallTimeout:          15 * time.Second,
		MaxFailures:          5,
		OpenTimeout:          30 * time.Second,
		HalfOpenMaxSuccesses: 2,
	}
}

// Guarded decorates a Store with a per-call timeout and a circuit breaker.
// When the backend fails repeatedly the breaker opens and calls return
// ErrStoreUnavailable immediately, so a cycle degrades to a short, loggable
// failure instead of fifty sequential database timeouts.
//
// Domain misses (ErrNotFound, ErrInvalidInput, ErrUnknownTable) are normal
// outcomes, not backend failures, and never trip the breaker.
type Guarded struct {
	inner   Store
	breaker *gobreaker.CircuitBreaker
	config  GuardConfig
}

// Guard wraps a store with the given guard configuration. Zero-valued config
// fields fall back to defaults.
func Guard(inner Store, config GuardConfig) *Guarded {
	defaults := DefaultGuardConfig()
	if config.CallTimeout <= 0 {
		config.CallTimeout = defaults.CallTimeout
	}
	if config.MaxFailures == 0 {
		config.MaxFailures = defaults.MaxFailures
	}
	if config.OpenTimeout <= 0 {
		config.OpenTimeout = defaults.OpenTimeout
	}
	if config.HalfOpenMaxSuccesses == 0 {
		config.HalfOpenMaxSuccesses = defaults.HalfOpenMaxSuccesses
	}

	settings := gobreaker.Settings{
		Name:        "CatalogStore",
		MaxRequests: config.HalfOpenMaxSuccesses,
		Interval:    0, // Don't clear counts periodically
		Timeout:     config.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= config.MaxFailures
		},
		IsSuccessful: func(err error) bool {
			return err == nil ||
				errors.Is(err, ErrNotFound) ||
				errors.Is(err, ErrInvalidInput) ||
				errors.Is(err, ErrUnknownTable)
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			log.Printf("WARNING: %s circuit breaker %s -> %s", name, from, to)
		},
	}

	return &Guarded{
		inner:   inner,
		breaker: gobreaker.NewCircuitBreaker(settings),
		config:  config,
	}
}

// State returns the breaker state: "closed", "open", or "half-open".
func (g *Guarded) State() string {
	switch g.breaker.State() {
	case gobreaker.StateClosed:
		return "closed"
	case gobreaker.StateOpen:
		return "open"
	case gobreaker.StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// execute runs one store call through the timeout and the breaker.
func (g *Guarded) execute(ctx context.Context, fn func(ctx context.Context) (any, error)) (any, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	callCtx, cancel := context.WithTimeout(ctx, g.config.CallTimeout)
	defer cancel()

	result, err := g.breaker.Execute(func() (any, error) {
		return fn(callCtx)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, ErrStoreUnavailable
		}
		return nil, err
	}
	return result, nil
}

func (g *Guarded) Select(ctx context.Context, table string, q Query) ([]types.Record, error) {
	result, err := g.execute(ctx, func(ctx context.Context) (any, error) {
		return g.inner.Select(ctx, table, q)
	})
	if err != nil {
		return nil, err
	}
	return result.([]types.Record), nil
}

func (g *Guarded) Get(ctx context.Context, table, id string) (types.Record, error) {
	result, err := g.execute(ctx, func(ctx context.Context) (any, error) {
		return g.inner.Get(ctx, table, id)
	})
	if err != nil {
		return nil, err
	}
	return result.(types.Record), nil
}

func (g *Guarded) Insert(ctx context.Context, table string, rec types.Record) (types.Record, error) {
	result, err := g.execute(ctx, func(ctx context.Context) (any, error) {
		return g.inner.Insert(ctx, table, rec)
	})
	if err != nil {
		return nil, err
	}
	return result.(types.Record), nil
}

func (g *Guarded) Update(ctx context.Context, table, id string, changes types.Record) (types.Record, error) {
	result, err := g.execute(ctx, func(ctx context.Context) (any, error) {
		return g.inner.Update(ctx, table, id, changes)
	})
	if err != nil {
		return nil, err
	}
	return result.(types.Record), nil
}

func (g *Guarded) Delete(ctx context.Context, table string, ids []string) (int, error) {
	result, err := g.execute(ctx, func(ctx context.Context) (any, error) {
		return g.inner.Delete(ctx, table, ids)
	})
	if err != nil {
		return 0, err
	}
	return result.(int), nil
}

func (g *Guarded) Count(ctx context.Context, table string, q Query) (int, error) {
	result, err := g.execute(ctx, func(ctx context.Context) (any, error) {
		return g.inner.Count(ctx, table, q)
	})
	if err != nil {
		return 0, err
	}
	return result.(int), nil
}

// Close closes the underlying store directly; shutdown must work even with
// the breaker open.
func (g *Guarded) Close() error {
	return g.inner.Close()
}

var _ Store = (*Guarded)(nil)
