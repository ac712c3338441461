// Cadence - Track Similarity and Taste Clustering Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cadence

package main

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/tomtom215/cadence/internal/cache"
	"github.com/tomtom215/cadence/internal/catalog"
	"github.com/tomtom215/cadence/internal/config"
	"github.com/tomtom215/cadence/internal/similarity"
)

// SimilarityComponents holds the shared cache backend and the similarity stack.
type SimilarityComponents struct {
	Backend cache.Backend
	Engine  *similarity.Engine
	Cache   *similarity.Cache
}

// initSimilarity opens the cache backend and builds the query engine over the catalog.
//
//nolint:gocritic // logger passed by value is acceptable for zerolog
func initSimilarity(cfg *config.Config, store *catalog.Store, logger zerolog.Logger) (*SimilarityComponents, error) {
	backend, err := cache.New(buildCacheConfig(cfg))
	if err != nil {
		return nil, fmt.Errorf("failed to open cache backend: %w", err)
	}

	engine, err := similarity.NewEngine(buildEngineConfig(cfg), store, logger)
	if err != nil {
		if closeErr := backend.Close(); closeErr != nil {
			logger.Warn().Err(closeErr).Msg("Error closing cache backend")
		}
		return nil, fmt.Errorf("failed to create similarity engine: %w", err)
	}

	simCache := similarity.NewCache(engine, backend, similarity.CacheConfig{
		TTL:          cfg.Cache.TTL,
		SingleFlight: cfg.Cache.SingleFlight,
	}, logger)

	logger.Info().
		Str("backend", backend.Name()).
		Dur("ttl", cfg.Cache.TTL).
		Bool("single_flight", cfg.Cache.SingleFlight).
		Msg("Similarity engine initialized")

	return &SimilarityComponents{Backend: backend, Engine: engine, Cache: simCache}, nil
}

// buildCacheConfig maps application config to the cache package.
func buildCacheConfig(cfg *config.Config) cache.Config {
	c := cfg.Cache
	return cache.Config{
		Backend: c.Backend,
		Memory: cache.MemoryConfig{
			MaxEntries: c.Memory.MaxEntries,
		},
		Redis: cache.RedisConfig{
			Addr:         c.Redis.Addr,
			Password:     c.Redis.Password,
			DB:           c.Redis.DB,
			KeyPrefix:    c.Redis.KeyPrefix,
			PoolSize:     c.Redis.PoolSize,
			MinIdleConns: c.Redis.MinIdleConns,
			DialTimeout:  c.Redis.DialTimeout,
		},
		Badger: cache.BadgerConfig{
			Path:     c.Badger.Path,
			InMemory: c.Badger.InMemory,
		},
		Breaker: cache.BreakerConfig{
			MaxRequests:      c.Breaker.MaxRequests,
			Interval:         c.Breaker.Interval,
			Timeout:          c.Breaker.Timeout,
			FailureThreshold: c.Breaker.FailureThreshold,
		},
	}
}

// buildEngineConfig maps application config to the similarity engine.
func buildEngineConfig(cfg *config.Config) similarity.Config {
	s := cfg.Similarity
	return similarity.Config{
		Weights: similarity.Weights{
			Semantic:    s.Weights.Semantic,
			Acoustic:    s.Weights.Acoustic,
			Categorical: s.Weights.Categorical,
		},
		QueryTimeout:  s.QueryTimeout,
		MaxResults:    s.MaxResults,
		MaxCandidates: s.MaxCandidates,
		MaxConcurrent: s.MaxConcurrent,
		BPMMin:        s.BPMMin,
		BPMMax:        s.BPMMax,
	}
}
