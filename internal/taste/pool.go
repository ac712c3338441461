// Cadence - Track Similarity and Taste Clustering Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cadence

package taste

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/tomtom215/cadence/internal/metrics"
)

// ErrPoolBusy is returned when the batch queue is full.
var ErrPoolBusy = errors.New("clustering pool busy")

// Runner executes batch work.
type Runner interface {
	Submit(ctx context.Context, fn func(context.Context) error) error
}

// DirectRunner runs work on the calling goroutine.
type DirectRunner struct{}

// Submit runs fn immediately.
func (DirectRunner) Submit(ctx context.Context, fn func(context.Context) error) error {
	return fn(ctx)
}

// PoolConfig sizes the batch pool.
type PoolConfig struct {
	Workers   int
	QueueSize int
}

// DefaultPoolConfig returns two workers and a 64-slot queue.
func DefaultPoolConfig() PoolConfig {
	return PoolConfig{Workers: 2, QueueSize: 64}
}

type job struct {
	ctx  context.Context
	fn   func(context.Context) error
	done chan error
}

// Pool is a fixed set of workers for CPU-bound clustering, kept apart from
// the interactive similarity path. It implements suture.Service.
type Pool struct {
	jobs    chan job
	workers int
	logger  zerolog.Logger
}

// NewPool creates a batch pool. Work is only executed while Serve runs.
//
//nolint:gocritic // logger passed by value is acceptable for zerolog
func NewPool(cfg PoolConfig, logger zerolog.Logger) *Pool {
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	if cfg.QueueSize < 1 {
		cfg.QueueSize = 1
	}
	return &Pool{
		jobs:    make(chan job, cfg.QueueSize),
		workers: cfg.Workers,
		logger:  logger.With().Str("service", "taste-pool").Logger(),
	}
}

// Submit queues fn and waits for it to finish. A full queue fails fast
// with ErrPoolBusy.
func (p *Pool) Submit(ctx context.Context, fn func(context.Context) error) error {
	j := job{ctx: ctx, fn: fn, done: make(chan error, 1)}
	select {
	case p.jobs <- j:
		metrics.BatchQueueDepth.Set(float64(len(p.jobs)))
	default:
		metrics.BatchRejected.Inc()
		return ErrPoolBusy
	}

	select {
	case err := <-j.done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Serve implements suture.Service.
func (p *Pool) Serve(ctx context.Context) error {
	p.logger.Info().Int("workers", p.workers).Int("queue_size", cap(p.jobs)).Msg("taste pool starting")

	var wg sync.WaitGroup
	for i := 0; i < p.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p.work(ctx)
		}()
	}
	wg.Wait()

	p.logger.Info().Msg("taste pool shutting down")
	return ctx.Err()
}

func (p *Pool) work(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case j := <-p.jobs:
			metrics.BatchQueueDepth.Set(float64(len(p.jobs)))
			j.done <- p.run(j)
		}
	}
}

func (p *Pool) run(j job) (err error) {
	if err := j.ctx.Err(); err != nil {
		return err
	}
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error().Interface("panic", r).Msg("clustering job panicked")
			err = fmt.Errorf("clustering job panicked: %v", r)
		}
	}()
	return j.fn(j.ctx)
}

// String returns the service name for logging.
func (p *Pool) String() string {
	return "taste-pool"
}
