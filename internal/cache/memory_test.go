// Cadence - Track Similarity and Taste Clustering Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cadence

package cache

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func TestMemory_GetSetDelete(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	m := newMemory(MemoryConfig{}, time.Now)

	if _, err := m.Get(ctx, "missing"); !errors.Is(err, ErrCacheMiss) {
		t.Fatalf("Get(missing) error = %v, want ErrCacheMiss", err)
	}

	if err := m.Set(ctx, "k", []byte("v1"), time.Minute); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	got, err := m.Get(ctx, "k")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if string(got) != "v1" {
		t.Errorf("Get() = %q, want v1", got)
	}

	if err := m.Set(ctx, "k", []byte("v2"), time.Minute); err != nil {
		t.Fatalf("Set() overwrite error = %v", err)
	}
	if got, _ := m.Get(ctx, "k"); string(got) != "v2" {
		t.Errorf("Get() after overwrite = %q, want v2", got)
	}

	if err := m.Delete(ctx, "k"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, err := m.Get(ctx, "k"); !errors.Is(err, ErrCacheMiss) {
		t.Errorf("Get() after delete error = %v, want ErrCacheMiss", err)
	}
	if err := m.Delete(ctx, "k"); err != nil {
		t.Errorf("Delete() of absent key error = %v, want nil", err)
	}
}

func TestMemory_TTLExpiry(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	clock := newFakeClock()
	m := newMemory(MemoryConfig{}, clock.Now)

	_ = m.Set(ctx, "short", []byte("a"), 10*time.Second)
	_ = m.Set(ctx, "forever", []byte("b"), 0)

	clock.Advance(9 * time.Second)
	if _, err := m.Get(ctx, "short"); err != nil {
		t.Fatalf("Get() before expiry error = %v", err)
	}

	clock.Advance(time.Second)
	if _, err := m.Get(ctx, "short"); !errors.Is(err, ErrCacheMiss) {
		t.Errorf("Get() at expiry error = %v, want ErrCacheMiss", err)
	}
	if _, err := m.Get(ctx, "forever"); err != nil {
		t.Errorf("Get() of non-expiring key error = %v", err)
	}
}

func TestMemory_CleanupExpired(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	clock := newFakeClock()
	m := newMemory(MemoryConfig{}, clock.Now)

	for _, k := range []string{"a", "b", "c"} {
		_ = m.Set(ctx, k, []byte(k), time.Second)
	}
	_ = m.Set(ctx, "d", []byte("d"), time.Hour)

	clock.Advance(2 * time.Second)
	if removed := m.cleanupExpired(); removed != 3 {
		t.Errorf("cleanupExpired() = %d, want 3", removed)
	}
	if m.Len() != 1 {
		t.Errorf("Len() = %d, want 1", m.Len())
	}
}

func TestMemory_EvictsLeastRecentlyUsed(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	m := newMemory(MemoryConfig{MaxEntries: 2}, time.Now)

	_ = m.Set(ctx, "a", []byte("1"), time.Minute)
	_ = m.Set(ctx, "b", []byte("2"), time.Minute)
	_, _ = m.Get(ctx, "a") // a becomes most recent
	_ = m.Set(ctx, "c", []byte("3"), time.Minute)

	if _, err := m.Get(ctx, "b"); !errors.Is(err, ErrCacheMiss) {
		t.Errorf("expected b to be evicted, got err = %v", err)
	}
	for _, k := range []string{"a", "c"} {
		if _, err := m.Get(ctx, k); err != nil {
			t.Errorf("Get(%s) error = %v, want hit", k, err)
		}
	}
}

func TestMemory_ValuesAreCopied(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	m := newMemory(MemoryConfig{}, time.Now)

	in := []byte("original")
	_ = m.Set(ctx, "k", in, time.Minute)
	in[0] = 'X'

	out, _ := m.Get(ctx, "k")
	if !bytes.Equal(out, []byte("original")) {
		t.Fatalf("stored value mutated through input slice: %q", out)
	}
	out[0] = 'Y'
	again, _ := m.Get(ctx, "k")
	if !bytes.Equal(again, []byte("original")) {
		t.Errorf("stored value mutated through output slice: %q", again)
	}
}

func TestMemory_ClosedIsUnavailable(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	m := NewMemory(MemoryConfig{CleanupInterval: time.Hour})
	if err := m.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	if _, err := m.Get(ctx, "k"); !errors.Is(err, ErrCacheUnavailable) {
		t.Errorf("Get() after close error = %v, want ErrCacheUnavailable", err)
	}
	if err := m.Set(ctx, "k", nil, time.Minute); !errors.Is(err, ErrCacheUnavailable) {
		t.Errorf("Set() after close error = %v, want ErrCacheUnavailable", err)
	}
	if err := m.Ping(ctx); !errors.Is(err, ErrCacheUnavailable) {
		t.Errorf("Ping() after close error = %v, want ErrCacheUnavailable", err)
	}
	if err := m.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}
}
