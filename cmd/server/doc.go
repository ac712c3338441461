// Cadence - Track Similarity and Taste Clustering Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cadence

// Package main is the entry point for the Cadence server.
//
// Cadence answers "what sounds like this track" over a DuckDB catalog,
// groups each listener's history into taste clusters and stages likely
// next tracks ahead of playback.
//
// # Application Architecture
//
// The server initializes components in the following order:
//
//  1. Configuration: defaults, optional config.yaml, environment (Koanf v2)
//  2. Catalog: DuckDB track features, tags and play history
//  3. Cache: memory, Redis or Badger backend behind a circuit breaker
//  4. Similarity: query engine and its result cache
//  5. Taste: clustering engine, worker pool and refresh service
//  6. Prefetch: next-track predictor
//  7. HTTP Server: REST API under /api/v1, /healthz and /metrics
//
// Long-running components run under a suture supervisor tree:
//
//	cadence
//	├── api-layer
//	│   └── http-server
//	└── batch-layer
//	    ├── taste-pool
//	    └── taste-refresh-service
//
// # Configuration
//
// Configuration is loaded via Koanf v2 with layered sources (highest priority wins):
//   - Environment variables (HTTP_PORT, CACHE_BACKEND, REDIS_ADDR, ...)
//   - Config file (config.yaml, or the path in CONFIG_PATH)
//   - Built-in defaults
//
// # Example Usage
//
// Local development with a demo catalog:
//
//	export DUCKDB_PATH=./data/cadence.duckdb
//	export LOG_FORMAT=console
//	./cadence -seed-demo
//
// Shared Redis cache:
//
//	export CACHE_BACKEND=redis
//	export REDIS_ADDR=redis:6379
//	./cadence
//
// # Signal Handling
//
// SIGINT and SIGTERM cancel the root context. The HTTP server drains
// in-flight requests, the taste pool finishes queued jobs, then the cache
// and catalog are closed.
package main
