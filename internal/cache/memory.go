// Cadence - Track Similarity and Taste Clustering Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cadence

package cache

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/tomtom215/cadence/internal/metrics"
)

var errClosed = errors.New("backend closed")

// MemoryConfig configures the in-process backend.
type MemoryConfig struct {
	// MaxEntries bounds the number of keys. The least recently used entry is
	// evicted first. Default: 10000
	MaxEntries int

	// CleanupInterval is how often expired entries are swept. Default: 1m
	CleanupInterval time.Duration
}

// DefaultMemoryConfig returns the default in-process backend configuration.
func DefaultMemoryConfig() MemoryConfig {
	return MemoryConfig{MaxEntries: 10000, CleanupInterval: time.Minute}
}

type memoryEntry struct {
	key       string
	value     []byte
	expiresAt time.Time // zero means no expiry
	prev      *memoryEntry
	next      *memoryEntry
}

// Memory is a thread-safe LRU cache with per-entry TTL.
//
// It serves single-instance deployments and tests. Values are copied on the
// way in and out so callers cannot mutate cached bytes.
type Memory struct {
	mu         sync.Mutex
	maxEntries int
	items      map[string]*memoryEntry
	head       *memoryEntry // head.next is the most recently used
	tail       *memoryEntry // tail.prev is the least recently used
	now        func() time.Time
	closed     bool
	stop       chan struct{}
	stopOnce   sync.Once
}

// NewMemory creates an in-process backend and starts its expiry sweeper.
func NewMemory(cfg MemoryConfig) *Memory {
	m := newMemory(cfg, time.Now)

	interval := cfg.CleanupInterval
	if interval <= 0 {
		interval = time.Minute
	}
	go m.cleanupLoop(interval)
	return m
}

func newMemory(cfg MemoryConfig, now func() time.Time) *Memory {
	if cfg.MaxEntries <= 0 {
		cfg.MaxEntries = 10000
	}
	m := &Memory{
		maxEntries: cfg.MaxEntries,
		items:      make(map[string]*memoryEntry),
		head:       &memoryEntry{},
		tail:       &memoryEntry{},
		now:        now,
		stop:       make(chan struct{}),
	}
	m.head.next = m.tail
	m.tail.prev = m.head
	return m
}

// Name implements Backend.
func (m *Memory) Name() string { return KindMemory }

// Get implements Backend.
func (m *Memory) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil, unavailable(KindMemory, "get", errClosed)
	}
	e, ok := m.items[key]
	if !ok {
		return nil, ErrCacheMiss
	}
	if m.expired(e) {
		m.remove(e)
		return nil, ErrCacheMiss
	}
	m.moveToFront(e)
	return clone(e.value), nil
}

// Set implements Backend.
func (m *Memory) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return unavailable(KindMemory, "set", errClosed)
	}
	var expiresAt time.Time
	if ttl > 0 {
		expiresAt = m.now().Add(ttl)
	}

	if e, ok := m.items[key]; ok {
		e.value = clone(value)
		e.expiresAt = expiresAt
		m.moveToFront(e)
		return nil
	}

	e := &memoryEntry{key: key, value: clone(value), expiresAt: expiresAt}
	m.addToFront(e)
	m.items[key] = e
	for len(m.items) > m.maxEntries {
		m.remove(m.tail.prev)
		metrics.CacheEvictions.WithLabelValues(KindMemory, "capacity").Inc()
	}
	return nil
}

// Delete implements Backend.
func (m *Memory) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return unavailable(KindMemory, "delete", errClosed)
	}
	if e, ok := m.items[key]; ok {
		m.remove(e)
	}
	return nil
}

// Ping implements Backend.
func (m *Memory) Ping(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return unavailable(KindMemory, "ping", errClosed)
	}
	return nil
}

// Close stops the sweeper. Later calls fail with ErrCacheUnavailable.
func (m *Memory) Close() error {
	m.stopOnce.Do(func() { close(m.stop) })
	m.mu.Lock()
	m.closed = true
	m.items = make(map[string]*memoryEntry)
	m.head.next = m.tail
	m.tail.prev = m.head
	m.mu.Unlock()
	return nil
}

// Len returns the number of stored entries, expired ones included until swept.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.items)
}

func (m *Memory) cleanupLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-m.stop:
			return
		case <-ticker.C:
			if n := m.cleanupExpired(); n > 0 {
				metrics.CacheEvictions.WithLabelValues(KindMemory, "expired").Add(float64(n))
			}
		}
	}
}

// cleanupExpired removes expired entries and returns how many were removed.
func (m *Memory) cleanupExpired() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	removed := 0
	for e := m.tail.prev; e != m.head; {
		prev := e.prev
		if m.expired(e) {
			m.remove(e)
			removed++
		}
		e = prev
	}
	return removed
}

func (m *Memory) expired(e *memoryEntry) bool {
	return !e.expiresAt.IsZero() && !m.now().Before(e.expiresAt)
}

func (m *Memory) addToFront(e *memoryEntry) {
	e.prev = m.head
	e.next = m.head.next
	m.head.next.prev = e
	m.head.next = e
}

func (m *Memory) moveToFront(e *memoryEntry) {
	e.prev.next = e.next
	e.next.prev = e.prev
	m.addToFront(e)
}

func (m *Memory) remove(e *memoryEntry) {
	e.prev.next = e.next
	e.next.prev = e.prev
	delete(m.items, e.key)
}

func clone(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
