// Cadence - Track Similarity and Taste Clustering Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cadence

//go:build integration

package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/tomtom215/cadence/internal/testinfra"
)

func TestRedis_Integration(t *testing.T) {
	testinfra.SkipIfNoDocker(t)

	ctx := context.Background()
	rc, err := testinfra.NewRedisContainer(ctx)
	if err != nil {
		t.Fatalf("NewRedisContainer() error = %v", err)
	}
	defer testinfra.CleanupContainer(t, ctx, rc)

	cfg := DefaultRedisConfig()
	cfg.Addr = rc.Addr
	r, err := NewRedis(cfg)
	if err != nil {
		t.Fatalf("NewRedis() error = %v", err)
	}
	defer r.Close()

	if err := r.Ping(ctx); err != nil {
		t.Fatalf("Ping() error = %v", err)
	}

	t.Run("miss", func(t *testing.T) {
		if _, err := r.Get(ctx, "similarity:none:semantic:10"); !errors.Is(err, ErrCacheMiss) {
			t.Errorf("Get() error = %v, want ErrCacheMiss", err)
		}
	})

	t.Run("set get delete", func(t *testing.T) {
		key := "similarity:t1:combined:10"
		if err := r.Set(ctx, key, []byte(`{"items":[]}`), time.Minute); err != nil {
			t.Fatalf("Set() error = %v", err)
		}
		got, err := r.Get(ctx, key)
		if err != nil {
			t.Fatalf("Get() error = %v", err)
		}
		if string(got) != `{"items":[]}` {
			t.Errorf("Get() = %q", got)
		}
		if err := r.Delete(ctx, key); err != nil {
			t.Fatalf("Delete() error = %v", err)
		}
		if _, err := r.Get(ctx, key); !errors.Is(err, ErrCacheMiss) {
			t.Errorf("Get() after delete error = %v, want ErrCacheMiss", err)
		}
	})

	t.Run("ttl", func(t *testing.T) {
		key := "prefetch:u1:t1"
		if err := r.Set(ctx, key, []byte("x"), time.Second); err != nil {
			t.Fatalf("Set() error = %v", err)
		}
		time.Sleep(1500 * time.Millisecond)
		if _, err := r.Get(ctx, key); !errors.Is(err, ErrCacheMiss) {
			t.Errorf("Get() after TTL error = %v, want ErrCacheMiss", err)
		}
	})

	t.Run("unreachable server", func(t *testing.T) {
		down, err := NewRedis(RedisConfig{Addr: "127.0.0.1:1", DialTimeout: 200 * time.Millisecond})
		if err != nil {
			t.Fatalf("NewRedis() error = %v", err)
		}
		defer down.Close()
		if _, err := down.Get(ctx, "k"); !errors.Is(err, ErrCacheUnavailable) {
			t.Errorf("Get() error = %v, want ErrCacheUnavailable", err)
		}
	})
}
