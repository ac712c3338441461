// Cadence - Track Similarity and Taste Clustering Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cadence

// Package config loads application configuration from defaults, an optional
// YAML file and environment variables, in increasing order of precedence.
package config

import "time"

// Config holds all application configuration.
type Config struct {
	Server     ServerConfig     `koanf:"server"`
	Logging    LoggingConfig    `koanf:"logging"`
	Database   DatabaseConfig   `koanf:"database"`
	Cache      CacheConfig      `koanf:"cache"`
	Similarity SimilarityConfig `koanf:"similarity"`
	Clustering ClusteringConfig `koanf:"clustering"`
	Prefetch   PrefetchConfig   `koanf:"prefetch"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host            string        `koanf:"host"`
	Port            int           `koanf:"port"`
	ReadTimeout     time.Duration `koanf:"read_timeout"`
	WriteTimeout    time.Duration `koanf:"write_timeout"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`

	// CORSAllowedOrigins is empty by default, which disables cross-origin access.
	CORSAllowedOrigins []string `koanf:"cors_allowed_origins"`

	// RateLimitRequests per RateLimitWindow per client IP. Default: 300/min
	RateLimitRequests int           `koanf:"rate_limit_requests"`
	RateLimitWindow   time.Duration `koanf:"rate_limit_window"`
	RateLimitDisabled bool          `koanf:"rate_limit_disabled"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: trace, debug, info, warn, error.
	// Default: info
	Level string `koanf:"level"`

	// Format is json or console. Default: json
	Format string `koanf:"format"`

	// Caller adds file:line to each entry. Default: false
	Caller bool `koanf:"caller"`
}

// DatabaseConfig holds catalog database settings.
type DatabaseConfig struct {
	Path         string `koanf:"path"`
	MaxOpenConns int    `koanf:"max_open_conns"`
	Threads      int    `koanf:"threads"` // 0 = DuckDB default
}

// CacheConfig selects the cache backend shared by similarity results,
// taste clusters and prefetch entries.
type CacheConfig struct {
	// Backend is memory, redis or badger. Default: memory
	Backend string `koanf:"backend"`

	// TTL of a similarity result. Default: 600s
	TTL time.Duration `koanf:"ttl"`

	// SingleFlight collapses concurrent misses for the same key.
	SingleFlight bool `koanf:"single_flight"`

	Memory  MemoryCacheConfig `koanf:"memory"`
	Redis   RedisConfig       `koanf:"redis"`
	Badger  BadgerConfig      `koanf:"badger"`
	Breaker BreakerConfig     `koanf:"breaker"`
}

// MemoryCacheConfig holds in-process cache settings.
type MemoryCacheConfig struct {
	MaxEntries int `koanf:"max_entries"`
}

// RedisConfig holds Redis connection settings.
type RedisConfig struct {
	Addr         string        `koanf:"addr"`
	Password     string        `koanf:"password"`
	DB           int           `koanf:"db"`
	KeyPrefix    string        `koanf:"key_prefix"`
	PoolSize     int           `koanf:"pool_size"`
	MinIdleConns int           `koanf:"min_idle_conns"`
	DialTimeout  time.Duration `koanf:"dial_timeout"`
}

// BadgerConfig holds embedded cache settings.
type BadgerConfig struct {
	Path     string `koanf:"path"`
	InMemory bool   `koanf:"in_memory"`
}

// BreakerConfig holds cache circuit breaker settings.
type BreakerConfig struct {
	MaxRequests      uint32        `koanf:"max_requests"`
	Interval         time.Duration `koanf:"interval"`
	Timeout          time.Duration `koanf:"timeout"`
	FailureThreshold uint32        `koanf:"failure_threshold"`
}

// WeightsConfig is the default signal weighting of combined queries.
type WeightsConfig struct {
	Semantic    float64 `koanf:"semantic"`
	Acoustic    float64 `koanf:"acoustic"`
	Categorical float64 `koanf:"categorical"`
}

// SimilarityConfig holds query engine settings.
type SimilarityConfig struct {
	Weights       WeightsConfig `koanf:"weights"`
	QueryTimeout  time.Duration `koanf:"query_timeout"`
	MaxResults    int           `koanf:"max_results"`
	MaxCandidates int           `koanf:"max_candidates"`
	MaxConcurrent int           `koanf:"max_concurrent"`
	BPMMin        float64       `koanf:"bpm_min"`
	BPMMax        float64       `koanf:"bpm_max"`
}

// ClusteringConfig holds taste clustering settings.
type ClusteringConfig struct {
	CandidateKs         []int         `koanf:"candidate_ks"`
	ValidityThreshold   float64       `koanf:"validity_threshold"`
	Seed                int64         `koanf:"seed"`
	MaxIterations       int           `koanf:"max_iterations"`
	MinPointsPerCluster int           `koanf:"min_points_per_cluster"`
	HistoryLimit        int           `koanf:"history_limit"`
	Workers             int           `koanf:"workers"`
	QueueSize           int           `koanf:"queue_size"`
	CacheTTL            time.Duration `koanf:"cache_ttl"`
	RefreshInterval     time.Duration `koanf:"refresh_interval"`
	RefreshOnStartup    bool          `koanf:"refresh_on_startup"`
}

// PrefetchConfig holds prefetch predictor settings.
type PrefetchConfig struct {
	DefaultCount int           `koanf:"default_count"`
	TTL          time.Duration `koanf:"ttl"`
	RecentWindow int           `koanf:"recent_window"`
}

// Load reads configuration from all sources and validates it.
func Load() (*Config, error) {
	return LoadWithKoanf()
}
