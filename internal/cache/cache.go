// Cadence - Track Similarity and Taste Clustering Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cadence

// Package cache provides the key-value backends used for similarity results,
// taste clusters and staged prefetch entries.
//
// Every backend stores opaque bytes with a per-entry TTL. A missing or
// expired key is reported as ErrCacheMiss; a backend that cannot be reached
// is reported as ErrCacheUnavailable so callers can degrade instead of fail.
package cache

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var (
	// ErrCacheMiss is returned by Get when the key is absent or expired.
	ErrCacheMiss = errors.New("cache miss")

	// ErrCacheUnavailable is returned when the backend cannot serve the request.
	ErrCacheUnavailable = errors.New("cache backend unavailable")
)

// Backend is a key-value store with GET / SET-with-TTL / DEL semantics.
type Backend interface {
	// Get returns the value stored at key or ErrCacheMiss.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores value at key. A ttl <= 0 stores without expiry.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Delete removes key. Deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error

	// Ping checks that the backend is reachable.
	Ping(ctx context.Context) error

	// Close releases the backend's resources.
	Close() error

	// Name identifies the backend in logs and metrics.
	Name() string
}

// Backend kinds accepted by New.
const (
	KindMemory = "memory"
	KindRedis  = "redis"
	KindBadger = "badger"
)

// Config selects and configures a backend.
type Config struct {
	Backend string
	Memory  MemoryConfig
	Redis   RedisConfig
	Badger  BadgerConfig
	Breaker BreakerConfig
}

// New opens the configured backend and wraps it in a circuit breaker.
func New(cfg Config) (Backend, error) {
	var (
		b   Backend
		err error
	)
	switch cfg.Backend {
	case KindMemory, "":
		b = NewMemory(cfg.Memory)
	case KindRedis:
		b, err = NewRedis(cfg.Redis)
	case KindBadger:
		b, err = NewBadger(cfg.Badger)
	default:
		return nil, fmt.Errorf("unknown cache backend %q", cfg.Backend)
	}
	if err != nil {
		return nil, fmt.Errorf("open %s cache: %w", cfg.Backend, err)
	}
	return NewBreaker(b, cfg.Breaker), nil
}

// unavailable wraps a backend failure so errors.Is(err, ErrCacheUnavailable) holds.
func unavailable(backend, op string, err error) error {
	return fmt.Errorf("%w: %s %s: %v", ErrCacheUnavailable, backend, op, err)
}
