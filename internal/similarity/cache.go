// Cadence - Track Similarity and Taste Clustering Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cadence

package similarity

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/tomtom215/cadence/internal/cache"
	"github.com/tomtom215/cadence/internal/metrics"
)

// CacheConfig configures the read-through similarity cache.
type CacheConfig struct {
	// TTL of a cached result. Default: 600s
	TTL time.Duration

	// SingleFlight collapses concurrent misses for one key into one query.
	SingleFlight bool
}

// DefaultCacheConfig returns the default cache configuration.
func DefaultCacheConfig() CacheConfig {
	return CacheConfig{TTL: 600 * time.Second, SingleFlight: true}
}

// Cache is a cache-aside wrapper around Engine.
//
// Results are stored under similarity:{track_id}:{method}:{limit}. When the
// backend cannot be reached the request is answered straight from the
// engine and nothing is written back; cache failures never reach the caller.
// Entries are not invalidated when track features change and live for TTL.
type Cache struct {
	engine  *Engine
	backend cache.Backend
	config  CacheConfig
	group   singleflight.Group
	logger  zerolog.Logger
}

// NewCache wraps engine with backend.
//
//nolint:gocritic // hugeParam: logger passed by value for zerolog chaining
func NewCache(engine *Engine, backend cache.Backend, cfg CacheConfig, logger zerolog.Logger) *Cache {
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultCacheConfig().TTL
	}
	return &Cache{
		engine:  engine,
		backend: backend,
		config:  cfg,
		logger:  logger.With().Str("component", "similarity-cache").Logger(),
	}
}

// Engine returns the wrapped engine.
func (c *Cache) Engine() *Engine {
	return c.engine
}

// CacheKey returns the cache key of a normalized request. Combined requests
// whose weights differ from defaults carry the weights in the method segment,
// e.g. similarity:t1:combined[0.6,0.3,0.1]:10.
func CacheKey(req Request, defaults Weights) string {
	method := req.Method.String()
	if req.Method == MethodCombined && req.Weights != nil && req.Weights.Fingerprint() != defaults.Fingerprint() {
		method += "[" + req.Weights.Fingerprint() + "]"
	}
	return fmt.Sprintf("similarity:%s:%s:%d", req.TrackID, method, req.Limit)
}

// Similar implements Querier.
func (c *Cache) Similar(ctx context.Context, req Request) (*Result, error) {
	return c.Get(ctx, req)
}

// Get returns the cached result for req, computing and storing it on a miss.
func (c *Cache) Get(ctx context.Context, req Request) (*Result, error) {
	req, err := c.engine.Normalize(req)
	if err != nil {
		return nil, err
	}
	key := CacheKey(req, c.engine.Config().Weights)
	method := req.Method.String()

	cached, degraded := c.lookup(ctx, key, req)
	if cached != nil {
		metrics.SimilarityCacheHits.WithLabelValues(method).Inc()
		return cached, nil
	}
	metrics.SimilarityCacheMisses.WithLabelValues(method).Inc()

	if !c.config.SingleFlight {
		return c.compute(ctx, key, req, degraded)
	}

	// The shared computation keeps running if the caller that started it goes
	// away; the engine's query timeout still bounds it. Each waiter returns
	// as soon as its own context is done.
	ch := c.group.DoChan(key, func() (interface{}, error) {
		return c.compute(context.WithoutCancel(ctx), key, req, degraded)
	})
	select {
	case <-ctx.Done():
		return nil, callerDone(ctx)
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		result := res.Val.(*Result)
		if res.Shared {
			metrics.SimilarityCacheShared.Inc()
			return result.clone(), nil
		}
		return result, nil
	}
}

// callerDone maps a finished caller context onto the engine's error model.
func callerDone(ctx context.Context) error {
	err := ctx.Err()
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %w", ErrQueryTimeout, err)
	}
	return err
}

// Invalidate removes the cached entry for req.
func (c *Cache) Invalidate(ctx context.Context, req Request) error {
	req, err := c.engine.Normalize(req)
	if err != nil {
		return err
	}
	if err := c.backend.Delete(ctx, CacheKey(req, c.engine.Config().Weights)); err != nil {
		return fmt.Errorf("invalidate similarity cache: %w", err)
	}
	return nil
}

// lookup returns a decoded hit, or nil. degraded is set when the backend
// failed and the result must not be written back.
func (c *Cache) lookup(ctx context.Context, key string, req Request) (result *Result, degraded bool) {
	data, err := c.backend.Get(ctx, key)
	switch {
	case err == nil:
	case errors.Is(err, cache.ErrCacheMiss):
		return nil, false
	default:
		metrics.SimilarityCacheDegraded.WithLabelValues("get").Inc()
		c.logger.Warn().Err(err).Str("key", key).Msg("similarity cache unavailable, serving uncached result")
		return nil, true
	}

	var r Result
	if err := json.Unmarshal(data, &r); err != nil {
		c.logger.Warn().Err(err).Str("key", key).Msg("discarding undecodable similarity cache entry")
		return nil, false
	}
	if r.TrackID != req.TrackID || r.Method != req.Method || r.Limit != req.Limit {
		c.logger.Warn().Str("key", key).Msg("discarding mismatched similarity cache entry")
		return nil, false
	}
	return &r, false
}

func (c *Cache) compute(ctx context.Context, key string, req Request, degraded bool) (*Result, error) {
	result, err := c.engine.Similar(ctx, req)
	if err != nil {
		return nil, err
	}
	if degraded {
		return result, nil
	}

	data, err := json.Marshal(result)
	if err != nil {
		c.logger.Error().Err(err).Str("key", key).Msg("failed to encode similarity result")
		return result, nil
	}
	if err := c.backend.Set(ctx, key, data, c.config.TTL); err != nil {
		metrics.SimilarityCacheDegraded.WithLabelValues("set").Inc()
		c.logger.Warn().Err(err).Str("key", key).Msg("failed to store similarity result")
	}
	return result, nil
}

func (r *Result) clone() *Result {
	out := *r
	out.Items = append([]Match(nil), r.Items...)
	if out.Items == nil {
		out.Items = []Match{}
	}
	if r.Weights != nil {
		w := *r.Weights
		out.Weights = &w
	}
	return &out
}
