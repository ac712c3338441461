// Cadence - Track Similarity and Taste Clustering Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cadence

package cache

import (
	"context"
	"errors"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/tomtom215/cadence/internal/logging"
	"github.com/tomtom215/cadence/internal/metrics"
)

// BreakerConfig configures the circuit breaker in front of a backend.
type BreakerConfig struct {
	// MaxRequests allowed through while half-open.
	MaxRequests uint32

	// Interval after which closed-state counts reset.
	Interval time.Duration

	// Timeout before an open breaker moves to half-open.
	Timeout time.Duration

	// FailureThreshold is the number of consecutive failures that opens the breaker.
	FailureThreshold uint32
}

// DefaultBreakerConfig returns the default breaker settings.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		MaxRequests:      1,
		Interval:         time.Minute,
		Timeout:          30 * time.Second,
		FailureThreshold: 5,
	}
}

// Breaker guards a Backend with a circuit breaker. Once the backend has
// failed FailureThreshold times in a row every call fails fast with
// ErrCacheUnavailable until the breaker half-opens again.
type Breaker struct {
	inner Backend
	cb    *gobreaker.CircuitBreaker[[]byte]
	name  string
}

// NewBreaker wraps inner.
func NewBreaker(inner Backend, cfg BreakerConfig) *Breaker {
	if cfg.FailureThreshold == 0 {
		cfg.FailureThreshold = DefaultBreakerConfig().FailureThreshold
	}
	name := "cache-" + inner.Name()
	metrics.CircuitBreakerState.WithLabelValues(name).Set(0)

	cb := gobreaker.NewCircuitBreaker[[]byte](gobreaker.Settings{
		Name:        name,
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.FailureThreshold
		},
		// Misses and caller cancellation do not count as failures.
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, ErrCacheMiss) || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logging.Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("Cache circuit breaker state transition")
			metrics.RecordBreakerTransition(name, from.String(), to.String(), stateToFloat(to))
		},
	})

	return &Breaker{inner: inner, cb: cb, name: name}
}

// Name implements Backend.
func (b *Breaker) Name() string { return b.inner.Name() }

// State returns the current breaker state.
func (b *Breaker) State() gobreaker.State { return b.cb.State() }

// Get implements Backend.
func (b *Breaker) Get(ctx context.Context, key string) ([]byte, error) {
	return b.execute("get", func() ([]byte, error) {
		return b.inner.Get(ctx, key)
	})
}

// Set implements Backend.
func (b *Breaker) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	_, err := b.execute("set", func() ([]byte, error) {
		return nil, b.inner.Set(ctx, key, value, ttl)
	})
	return err
}

// Delete implements Backend.
func (b *Breaker) Delete(ctx context.Context, key string) error {
	_, err := b.execute("delete", func() ([]byte, error) {
		return nil, b.inner.Delete(ctx, key)
	})
	return err
}

// Ping bypasses the breaker so health checks observe the real backend.
func (b *Breaker) Ping(ctx context.Context) error {
	return b.inner.Ping(ctx)
}

// Close implements Backend.
func (b *Breaker) Close() error {
	return b.inner.Close()
}

func (b *Breaker) execute(op string, fn func() ([]byte, error)) ([]byte, error) {
	value, err := b.cb.Execute(fn)
	switch {
	case err == nil, errors.Is(err, ErrCacheMiss):
		metrics.CircuitBreakerRequests.WithLabelValues(b.name, "success").Inc()
		return value, err
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		metrics.CircuitBreakerRequests.WithLabelValues(b.name, "rejected").Inc()
		return nil, unavailable(b.inner.Name(), op, err)
	default:
		metrics.CircuitBreakerRequests.WithLabelValues(b.name, "failure").Inc()
		return nil, err
	}
}

func stateToFloat(s gobreaker.State) float64 {
	switch s {
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return 0
	}
}
