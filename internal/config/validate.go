// Cadence - Track Similarity and Taste Clustering Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cadence

package config

import (
	"fmt"
	"math"
	"strings"
)

// weightTolerance matches the tolerance applied to per-request weights.
const weightTolerance = 0.001

// Validate checks that configuration values are present and consistent.
func (c *Config) Validate() error {
	if err := c.validateServer(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	if err := c.validateCache(); err != nil {
		return err
	}
	if err := c.validateSimilarity(); err != nil {
		return err
	}
	if err := c.validateClustering(); err != nil {
		return err
	}
	return c.validatePrefetch()
}

func (c *Config) validateServer() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("HTTP_PORT must be between 1 and 65535, got %d", c.Server.Port)
	}
	if c.Server.ReadTimeout <= 0 || c.Server.WriteTimeout <= 0 {
		return fmt.Errorf("server read and write timeouts must be positive")
	}
	if !c.Server.RateLimitDisabled && (c.Server.RateLimitRequests < 1 || c.Server.RateLimitWindow <= 0) {
		return fmt.Errorf("RATE_LIMIT_REQUESTS and RATE_LIMIT_WINDOW must be positive unless rate limiting is disabled")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch strings.ToLower(c.Logging.Level) {
	case "trace", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("LOG_LEVEL must be one of trace, debug, info, warn, error; got %q", c.Logging.Level)
	}
	switch strings.ToLower(c.Logging.Format) {
	case "json", "console":
	default:
		return fmt.Errorf("LOG_FORMAT must be json or console; got %q", c.Logging.Format)
	}
	return nil
}

func (c *Config) validateCache() error {
	switch c.Cache.Backend {
	case "memory":
	case "redis":
		if c.Cache.Redis.Addr == "" {
			return fmt.Errorf("REDIS_ADDR is required when CACHE_BACKEND=redis")
		}
	case "badger":
		if c.Cache.Badger.Path == "" && !c.Cache.Badger.InMemory {
			return fmt.Errorf("BADGER_PATH is required when CACHE_BACKEND=badger")
		}
	default:
		return fmt.Errorf("CACHE_BACKEND must be memory, redis or badger; got %q", c.Cache.Backend)
	}
	if c.Cache.TTL <= 0 {
		return fmt.Errorf("CACHE_TTL must be positive")
	}
	if c.Cache.Breaker.FailureThreshold == 0 {
		return fmt.Errorf("cache.breaker.failure_threshold must be at least 1")
	}
	return nil
}

func (c *Config) validateSimilarity() error {
	w := c.Similarity.Weights
	named := []struct {
		name  string
		value float64
	}{{"semantic", w.Semantic}, {"acoustic", w.Acoustic}, {"categorical", w.Categorical}}
	for _, n := range named {
		if n.value < 0 || math.IsNaN(n.value) || math.IsInf(n.value, 0) {
			return fmt.Errorf("similarity weight %s must be a non-negative number, got %v", n.name, n.value)
		}
	}
	if sum := w.Semantic + w.Acoustic + w.Categorical; math.Abs(sum-1) > weightTolerance {
		return fmt.Errorf("similarity weights must sum to 1.0 (+/- %.3f), got %.4f", weightTolerance, sum)
	}
	if c.Similarity.QueryTimeout <= 0 {
		return fmt.Errorf("SIMILARITY_QUERY_TIMEOUT must be positive")
	}
	if c.Similarity.MaxResults < 1 || c.Similarity.MaxResults > 100 {
		return fmt.Errorf("SIMILARITY_MAX_RESULTS must be between 1 and 100, got %d", c.Similarity.MaxResults)
	}
	if c.Similarity.MaxCandidates < 1 {
		return fmt.Errorf("SIMILARITY_MAX_CANDIDATES must be at least 1")
	}
	if c.Similarity.MaxConcurrent < 1 {
		return fmt.Errorf("SIMILARITY_MAX_CONCURRENT must be at least 1")
	}
	if c.Similarity.BPMMax <= c.Similarity.BPMMin {
		return fmt.Errorf("similarity.bpm_max must exceed similarity.bpm_min")
	}
	return nil
}

func (c *Config) validateClustering() error {
	cl := c.Clustering
	if len(cl.CandidateKs) == 0 {
		return fmt.Errorf("CLUSTERING_CANDIDATE_KS must not be empty")
	}
	for _, k := range cl.CandidateKs {
		if k < 2 {
			return fmt.Errorf("CLUSTERING_CANDIDATE_KS entries must be >= 2, got %d", k)
		}
	}
	if cl.ValidityThreshold < -1 || cl.ValidityThreshold >= 1 {
		return fmt.Errorf("CLUSTERING_VALIDITY_THRESHOLD must be in [-1, 1), got %v", cl.ValidityThreshold)
	}
	if cl.MaxIterations < 1 || cl.MinPointsPerCluster < 1 || cl.HistoryLimit < 1 {
		return fmt.Errorf("clustering iterations, min points and history limit must be positive")
	}
	if cl.Workers < 1 || cl.QueueSize < 1 {
		return fmt.Errorf("CLUSTERING_WORKERS and clustering.queue_size must be at least 1")
	}
	if cl.RefreshInterval <= 0 {
		return fmt.Errorf("CLUSTERING_REFRESH_INTERVAL must be positive")
	}
	return nil
}

func (c *Config) validatePrefetch() error {
	if c.Prefetch.DefaultCount < 1 || c.Prefetch.DefaultCount > c.Similarity.MaxResults {
		return fmt.Errorf("PREFETCH_DEFAULT_COUNT must be between 1 and %d, got %d", c.Similarity.MaxResults, c.Prefetch.DefaultCount)
	}
	if c.Prefetch.TTL <= 0 {
		return fmt.Errorf("PREFETCH_TTL must be positive")
	}
	if c.Prefetch.RecentWindow < 0 {
		return fmt.Errorf("PREFETCH_RECENT_WINDOW must not be negative")
	}
	return nil
}
