// Cadence - Track Similarity and Taste Clustering Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cadence

package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths lists the paths where config files are searched in order of priority.
// The first file found will be used.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/cadence/config.yaml",
	"/etc/cadence/config.yml",
}

// ConfigPathEnvVar is the environment variable that can override the config file path.
const ConfigPathEnvVar = "CONFIG_PATH"

// defaultConfig returns a Config with every default applied.
func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8080,
			ReadTimeout:     10 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 10 * time.Second,

			RateLimitRequests: 300,
			RateLimitWindow:   time.Minute,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Caller: false,
		},
		Database: DatabaseConfig{
			Path:         "/data/cadence.duckdb",
			MaxOpenConns: 8,
			Threads:      0,
		},
		Cache: CacheConfig{
			Backend:      "memory",
			TTL:          600 * time.Second,
			SingleFlight: true,
			Memory:       MemoryCacheConfig{MaxEntries: 10000},
			Redis: RedisConfig{
				Addr:         "localhost:6379",
				KeyPrefix:    "cadence:",
				PoolSize:     10,
				MinIdleConns: 2,
				DialTimeout:  2 * time.Second,
			},
			Badger: BadgerConfig{
				Path: "/data/cache",
			},
			Breaker: BreakerConfig{
				MaxRequests:      1,
				Interval:         60 * time.Second,
				Timeout:          30 * time.Second,
				FailureThreshold: 5,
			},
		},
		Similarity: SimilarityConfig{
			Weights: WeightsConfig{
				Semantic:    0.5,
				Acoustic:    0.3,
				Categorical: 0.2,
			},
			QueryTimeout:  5 * time.Second,
			MaxResults:    100,
			MaxCandidates: 1000,
			MaxConcurrent: 32,
			BPMMin:        40,
			BPMMax:        220,
		},
		Clustering: ClusteringConfig{
			CandidateKs:         []int{2, 3, 4},
			ValidityThreshold:   0.25,
			Seed:                42,
			MaxIterations:       100,
			MinPointsPerCluster: 2,
			HistoryLimit:        500,
			Workers:             2,
			QueueSize:           64,
			CacheTTL:            6 * time.Hour,
			RefreshInterval:     6 * time.Hour,
			RefreshOnStartup:    false,
		},
		Prefetch: PrefetchConfig{
			DefaultCount: 5,
			TTL:          30 * time.Minute,
			RecentWindow: 50,
		},
	}
}

// LoadWithKoanf loads configuration using Koanf v2 with layered sources:
//  1. Defaults: Built-in defaults
//  2. Config File: Optional YAML config file (if exists)
//  3. Environment Variables: Override any mapped setting
func LoadWithKoanf() (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if configPath := findConfigFile(); configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	}

	if err := k.Load(env.Provider("", ".", envTransformFunc), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := processSliceFields(k); err != nil {
		return nil, fmt.Errorf("failed to process slice fields: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// findConfigFile returns the first config file found, or "".
func findConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}

	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}

	return ""
}

// sliceConfigPaths defines which config paths should be parsed as comma-separated slices
var sliceConfigPaths = []string{
	"server.cors_allowed_origins",
	"clustering.candidate_ks",
}

// processSliceFields converts comma-separated string values to slices for known slice fields.
func processSliceFields(k *koanf.Koanf) error {
	for _, path := range sliceConfigPaths {
		strVal, ok := k.Get(path).(string)
		if !ok || strVal == "" {
			continue
		}
		parts := strings.Split(strVal, ",")
		trimmed := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				trimmed = append(trimmed, p)
			}
		}
		if len(trimmed) > 0 {
			if err := k.Set(path, trimmed); err != nil {
				return fmt.Errorf("failed to set %s: %w", path, err)
			}
		}
	}
	return nil
}

// envMappings maps lower-cased environment variable names to config paths.
// Unmapped variables are ignored.
var envMappings = map[string]string{
	// Server
	"http_host":             "server.host",
	"http_port":             "server.port",
	"http_read_timeout":     "server.read_timeout",
	"http_write_timeout":    "server.write_timeout",
	"http_shutdown_timeout": "server.shutdown_timeout",
	"cors_allowed_origins":  "server.cors_allowed_origins",
	"rate_limit_requests":   "server.rate_limit_requests",
	"rate_limit_window":     "server.rate_limit_window",
	"rate_limit_disabled":   "server.rate_limit_disabled",

	// Logging
	"log_level":  "logging.level",
	"log_format": "logging.format",
	"log_caller": "logging.caller",

	// Database
	"duckdb_path":      "database.path",
	"duckdb_max_conns": "database.max_open_conns",
	"duckdb_threads":   "database.threads",

	// Cache
	"cache_backend":       "cache.backend",
	"cache_ttl":           "cache.ttl",
	"cache_single_flight": "cache.single_flight",
	"cache_max_entries":   "cache.memory.max_entries",
	"redis_addr":          "cache.redis.addr",
	"redis_password":      "cache.redis.password",
	"redis_db":            "cache.redis.db",
	"redis_key_prefix":    "cache.redis.key_prefix",
	"redis_pool_size":     "cache.redis.pool_size",
	"badger_path":         "cache.badger.path",
	"badger_in_memory":    "cache.badger.in_memory",

	// Similarity
	"similarity_weight_semantic":    "similarity.weights.semantic",
	"similarity_weight_acoustic":    "similarity.weights.acoustic",
	"similarity_weight_categorical": "similarity.weights.categorical",
	"similarity_query_timeout":      "similarity.query_timeout",
	"similarity_max_results":        "similarity.max_results",
	"similarity_max_candidates":     "similarity.max_candidates",
	"similarity_max_concurrent":     "similarity.max_concurrent",

	// Clustering
	"clustering_candidate_ks":        "clustering.candidate_ks",
	"clustering_validity_threshold":  "clustering.validity_threshold",
	"clustering_seed":                "clustering.seed",
	"clustering_workers":             "clustering.workers",
	"clustering_refresh_interval":    "clustering.refresh_interval",
	"clustering_refresh_on_startup":  "clustering.refresh_on_startup",
	"clustering_history_limit":       "clustering.history_limit",
	"clustering_cache_ttl":           "clustering.cache_ttl",
	"clustering_min_points":          "clustering.min_points_per_cluster",

	// Prefetch
	"prefetch_default_count": "prefetch.default_count",
	"prefetch_ttl":           "prefetch.ttl",
	"prefetch_recent_window": "prefetch.recent_window",
}

// envTransformFunc transforms environment variable names to koanf config paths.
//
// Examples:
//   - HTTP_PORT -> server.port
//   - REDIS_ADDR -> cache.redis.addr
//   - CLUSTERING_CANDIDATE_KS -> clustering.candidate_ks
func envTransformFunc(key string) string {
	return envMappings[strings.ToLower(key)]
}
