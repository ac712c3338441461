// Cadence - Track Similarity and Taste Clustering Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cadence

package cache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/tomtom215/cadence/internal/metrics"
)

// BadgerConfig configures the embedded BadgerDB backend.
type BadgerConfig struct {
	// Path is the data directory. Ignored when InMemory is set.
	Path string

	// InMemory keeps all data in memory.
	InMemory bool

	// GCInterval is how often value log garbage collection runs. Default: 10m
	GCInterval time.Duration
}

// Badger is a Backend on an embedded BadgerDB. TTLs are enforced by Badger
// itself via entry expiry.
type Badger struct {
	db       *badger.DB
	stop     chan struct{}
	done     chan struct{}
	stopOnce sync.Once
}

// NewBadger opens (or creates) the database at cfg.Path.
func NewBadger(cfg BadgerConfig) (*Badger, error) {
	opts := badger.DefaultOptions(cfg.Path).WithLogger(nil)
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true).WithLogger(nil)
	} else if cfg.Path == "" {
		return nil, fmt.Errorf("badger path is required")
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger: %w", err)
	}

	interval := cfg.GCInterval
	if interval <= 0 {
		interval = 10 * time.Minute
	}
	b := &Badger{db: db, stop: make(chan struct{}), done: make(chan struct{})}
	go b.gcLoop(interval, !cfg.InMemory)
	return b, nil
}

// Name implements Backend.
func (b *Badger) Name() string { return KindBadger }

// Get implements Backend.
func (b *Badger) Get(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var value []byte
	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		value, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, ErrCacheMiss
	}
	if err != nil {
		return nil, b.fail("get", err)
	}
	return value, nil
}

// Set implements Backend.
func (b *Badger) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	err := b.db.Update(func(txn *badger.Txn) error {
		entry := badger.NewEntry([]byte(key), value)
		if ttl > 0 {
			entry = entry.WithTTL(ttl)
		}
		return txn.SetEntry(entry)
	})
	if err != nil {
		return b.fail("set", err)
	}
	return nil
}

// Delete implements Backend.
func (b *Badger) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	err := b.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(key))
	})
	if err != nil {
		return b.fail("delete", err)
	}
	return nil
}

// Ping implements Backend.
func (b *Badger) Ping(_ context.Context) error {
	if b.db.IsClosed() {
		return unavailable(KindBadger, "ping", badger.ErrDBClosed)
	}
	return nil
}

// Close stops garbage collection and closes the database.
func (b *Badger) Close() error {
	b.stopOnce.Do(func() {
		close(b.stop)
		<-b.done
	})
	return b.db.Close()
}

func (b *Badger) gcLoop(interval time.Duration, enabled bool) {
	defer close(b.done)
	if !enabled {
		<-b.stop
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-b.stop:
			return
		case <-ticker.C:
			// RunValueLogGC returns ErrNoRewrite once there is nothing left to collect.
			for {
				if err := b.db.RunValueLogGC(0.5); err != nil {
					break
				}
			}
		}
	}
}

func (b *Badger) fail(op string, err error) error {
	metrics.CacheBackendErrors.WithLabelValues(KindBadger, op).Inc()
	return unavailable(KindBadger, op, err)
}
