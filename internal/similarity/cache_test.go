// Cadence - Track Similarity and Taste Clustering Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cadence

package similarity

import (
	"context"
	"errors"
	"reflect"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/tomtom215/cadence/internal/cache"
)

// fakeBackend is a map-backed cache.Backend whose clock the test controls.
type fakeBackend struct {
	mu      sync.Mutex
	now     time.Time
	entries map[string]fakeEntry
	down    bool
	sets    atomic.Int32
	gets    atomic.Int32
}

type fakeEntry struct {
	value     []byte
	expiresAt time.Time
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{now: time.Unix(1_700_000_000, 0), entries: make(map[string]fakeEntry)}
}

func (f *fakeBackend) Name() string { return "fake" }

func (f *fakeBackend) Get(_ context.Context, key string) ([]byte, error) {
	f.gets.Add(1)
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.down {
		return nil, cache.ErrCacheUnavailable
	}
	e, ok := f.entries[key]
	if !ok || !f.now.Before(e.expiresAt) {
		return nil, cache.ErrCacheMiss
	}
	return append([]byte(nil), e.value...), nil
}

func (f *fakeBackend) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	f.sets.Add(1)
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.down {
		return cache.ErrCacheUnavailable
	}
	f.entries[key] = fakeEntry{value: append([]byte(nil), value...), expiresAt: f.now.Add(ttl)}
	return nil
}

func (f *fakeBackend) Delete(_ context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.down {
		return cache.ErrCacheUnavailable
	}
	delete(f.entries, key)
	return nil
}

func (f *fakeBackend) Ping(_ context.Context) error { return nil }
func (f *fakeBackend) Close() error                 { return nil }

func (f *fakeBackend) advance(d time.Duration) {
	f.mu.Lock()
	f.now = f.now.Add(d)
	f.mu.Unlock()
}

func (f *fakeBackend) put(key string, value []byte) {
	f.mu.Lock()
	f.entries[key] = fakeEntry{value: value, expiresAt: f.now.Add(time.Hour)}
	f.mu.Unlock()
}

func newTestCache(t *testing.T, store Store, backend cache.Backend, singleFlight bool) *Cache {
	t.Helper()
	return NewCache(newTestEngine(t, store), backend, CacheConfig{TTL: 600 * time.Second, SingleFlight: singleFlight}, testLogger())
}

func TestCacheKey(t *testing.T) {
	t.Parallel()

	defaults := DefaultWeights()
	custom := Weights{Semantic: 0.6, Acoustic: 0.3, Categorical: 0.1}
	same := DefaultWeights()

	tests := []struct {
		name string
		req  Request
		want string
	}{
		{"semantic", Request{TrackID: "t1", Method: MethodSemantic, Limit: 10}, "similarity:t1:semantic:10"},
		{"acoustic", Request{TrackID: "t1", Method: MethodAcoustic, Limit: 5}, "similarity:t1:acoustic:5"},
		{"categorical", Request{TrackID: "t9", Method: MethodCategorical, Limit: 100}, "similarity:t9:categorical:100"},
		{"combined defaults", Request{TrackID: "t1", Method: MethodCombined, Limit: 10, Weights: &same}, "similarity:t1:combined:10"},
		{"combined custom", Request{TrackID: "t1", Method: MethodCombined, Limit: 10, Weights: &custom}, "similarity:t1:combined[0.6,0.3,0.1]:10"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := CacheKey(tt.req, defaults); got != tt.want {
				t.Errorf("CacheKey() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestCache_HitIsBitIdentical(t *testing.T) {
	t.Parallel()

	store := newMockStore(catalogOf(40, 16, 5)...)
	backend := newFakeBackend()
	c := newTestCache(t, store, backend, false)
	ctx := context.Background()
	req := Request{TrackID: "t007", Method: MethodCombined, Limit: 20}

	first, err := c.Get(ctx, req)
	if err != nil {
		t.Fatalf("first Get() error = %v", err)
	}
	callsAfterMiss := store.featureCalls.Load()

	second, err := c.Get(ctx, req)
	if err != nil {
		t.Fatalf("second Get() error = %v", err)
	}
	if store.featureCalls.Load() != callsAfterMiss {
		t.Error("cache hit should not query the store")
	}
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("cached result differs:\n first: %+v\nsecond: %+v", first, second)
	}
	for i := range first.Items {
		if first.Items[i].Score != second.Items[i].Score {
			t.Fatalf("item %d score %v != %v", i, first.Items[i].Score, second.Items[i].Score)
		}
	}
}

func TestCache_RecomputesAfterTTL(t *testing.T) {
	t.Parallel()

	store := newMockStore(scenarioTracks()...)
	backend := newFakeBackend()
	c := newTestCache(t, store, backend, false)
	ctx := context.Background()
	req := Request{TrackID: "A", Method: MethodSemantic, Limit: 10}

	if _, err := c.Get(ctx, req); err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	candidatesAfterMiss := store.candidateCall.Load()

	backend.advance(599 * time.Second)
	if _, err := c.Get(ctx, req); err != nil {
		t.Fatalf("Get() within TTL error = %v", err)
	}
	if store.candidateCall.Load() != candidatesAfterMiss {
		t.Fatal("entry within TTL should be served from cache")
	}

	backend.advance(2 * time.Second)
	if _, err := c.Get(ctx, req); err != nil {
		t.Fatalf("Get() after TTL error = %v", err)
	}
	if store.candidateCall.Load() != candidatesAfterMiss+1 {
		t.Errorf("expected recomputation after TTL, candidate calls = %d", store.candidateCall.Load())
	}
	if backend.sets.Load() != 2 {
		t.Errorf("sets = %d, want 2", backend.sets.Load())
	}
}

func TestCache_BackendDownServesUncached(t *testing.T) {
	t.Parallel()

	store := newMockStore(scenarioTracks()...)
	backend := newFakeBackend()
	backend.down = true
	c := newTestCache(t, store, backend, true)

	got, err := c.Get(context.Background(), Request{TrackID: "A", Method: MethodCombined, Limit: 10})
	if err != nil {
		t.Fatalf("Get() with cache down error = %v, want nil", err)
	}

	want, err := c.Engine().SimilarCombined(context.Background(), "A", 10, nil)
	if err != nil {
		t.Fatalf("SimilarCombined() error = %v", err)
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("degraded result = %+v, want %+v", got, want)
	}
	if backend.sets.Load() != 0 {
		t.Error("degraded path should not attempt to write the cache")
	}
}

func TestCache_WorksBehindOpenBreaker(t *testing.T) {
	t.Parallel()

	backend := newFakeBackend()
	backend.down = true
	breaker := cache.NewBreaker(backend, cache.BreakerConfig{FailureThreshold: 1, Timeout: time.Hour})
	c := newTestCache(t, newMockStore(scenarioTracks()...), breaker, false)

	for i := 0; i < 3; i++ {
		res, err := c.Get(context.Background(), Request{TrackID: "A", Method: MethodCombined, Limit: 10})
		if err != nil {
			t.Fatalf("call %d error = %v", i, err)
		}
		if len(res.Items) != 2 {
			t.Fatalf("call %d items = %d, want 2", i, len(res.Items))
		}
	}
}

func TestCache_ValidationBeforeCacheIO(t *testing.T) {
	t.Parallel()

	backend := newFakeBackend()
	c := newTestCache(t, newMockStore(scenarioTracks()...), backend, true)

	bad := Weights{Semantic: 0.5, Acoustic: 0.5, Categorical: 0.5}
	_, err := c.Get(context.Background(), Request{TrackID: "A", Method: MethodCombined, Limit: 10, Weights: &bad})
	if !errors.Is(err, ErrInvalidWeights) {
		t.Fatalf("error = %v, want ErrInvalidWeights", err)
	}
	_, err = c.Get(context.Background(), Request{TrackID: "A", Method: MethodSemantic, Limit: 0})
	if !errors.Is(err, ErrInvalidLimit) {
		t.Fatalf("error = %v, want ErrInvalidLimit", err)
	}
	if backend.gets.Load() != 0 {
		t.Error("invalid requests must not touch the cache")
	}
}

func TestCache_CorruptEntryIsRecomputed(t *testing.T) {
	t.Parallel()

	backend := newFakeBackend()
	backend.put("similarity:A:semantic:10", []byte("{not json"))
	c := newTestCache(t, newMockStore(scenarioTracks()...), backend, false)

	res, err := c.Get(context.Background(), Request{TrackID: "A", Method: MethodSemantic, Limit: 10})
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if len(res.Items) != 2 {
		t.Errorf("items = %d, want 2", len(res.Items))
	}
	if backend.sets.Load() != 1 {
		t.Error("corrupt entry should be overwritten")
	}
}

func TestCache_LimitClampSharesKey(t *testing.T) {
	t.Parallel()

	store := newMockStore(scenarioTracks()...)
	c := newTestCache(t, store, newFakeBackend(), false)
	ctx := context.Background()

	if _, err := c.Get(ctx, Request{TrackID: "A", Method: MethodAcoustic, Limit: 100}); err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	calls := store.candidateCall.Load()
	res, err := c.Get(ctx, Request{TrackID: "A", Method: MethodAcoustic, Limit: 250})
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if store.candidateCall.Load() != calls {
		t.Error("clamped limit should hit the same cache entry")
	}
	if res.Limit != 100 {
		t.Errorf("Limit = %d, want 100", res.Limit)
	}
}

// slowStore delays candidate lookups so concurrent misses overlap.
type slowStore struct {
	*mockStore
	delay time.Duration
}

func (s *slowStore) CandidateIDs(ctx context.Context, ref *TrackFeatures, max int) ([]string, error) {
	time.Sleep(s.delay)
	return s.mockStore.CandidateIDs(ctx, ref, max)
}

func TestCache_SingleFlightCollapsesMisses(t *testing.T) {
	t.Parallel()

	store := &slowStore{mockStore: newMockStore(scenarioTracks()...), delay: 100 * time.Millisecond}
	c := newTestCache(t, store, newFakeBackend(), true)
	req := Request{TrackID: "A", Method: MethodCombined, Limit: 10}

	var wg sync.WaitGroup
	results := make([]*Result, 8)
	errs := make([]error, 8)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = c.Get(context.Background(), req)
		}(i)
	}
	wg.Wait()

	for i := range results {
		if errs[i] != nil {
			t.Fatalf("Get() %d error = %v", i, errs[i])
		}
		if !reflect.DeepEqual(results[i], results[0]) {
			t.Errorf("result %d differs from result 0", i)
		}
	}
	if n := store.candidateCall.Load(); n != 1 {
		t.Errorf("candidate queries = %d, want 1", n)
	}
}

func TestCache_Invalidate(t *testing.T) {
	t.Parallel()

	store := newMockStore(scenarioTracks()...)
	backend := newFakeBackend()
	c := newTestCache(t, store, backend, false)
	ctx := context.Background()
	req := Request{TrackID: "A", Method: MethodCategorical, Limit: 10}

	if _, err := c.Get(ctx, req); err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if err := c.Invalidate(ctx, req); err != nil {
		t.Fatalf("Invalidate() error = %v", err)
	}
	calls := store.candidateCall.Load()
	if _, err := c.Get(ctx, req); err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if store.candidateCall.Load() != calls+1 {
		t.Error("Get() after Invalidate() should recompute")
	}
}

func TestCache_SingleFlightReturnsOnCallerDone(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		ctx     func() (context.Context, context.CancelFunc)
		wantErr []error
	}{
		{
			name: "deadline",
			ctx: func() (context.Context, context.CancelFunc) {
				return context.WithTimeout(context.Background(), 50*time.Millisecond)
			},
			wantErr: []error{ErrQueryTimeout, context.DeadlineExceeded},
		},
		{
			name: "canceled",
			ctx: func() (context.Context, context.CancelFunc) {
				ctx, cancel := context.WithCancel(context.Background())
				time.AfterFunc(50*time.Millisecond, cancel)
				return ctx, cancel
			},
			wantErr: []error{context.Canceled},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			store := newMockStore(scenarioTracks()...)
			store.block = true
			cfg := DefaultConfig()
			cfg.QueryTimeout = 2 * time.Second
			e, err := NewEngine(cfg, store, testLogger())
			if err != nil {
				t.Fatalf("NewEngine() error = %v", err)
			}
			c := NewCache(e, newFakeBackend(), CacheConfig{TTL: time.Minute, SingleFlight: true}, testLogger())

			ctx, cancel := tt.ctx()
			defer cancel()

			start := time.Now()
			result, err := c.Get(ctx, Request{TrackID: "A", Method: MethodCombined, Limit: 10})
			if elapsed := time.Since(start); elapsed > time.Second {
				t.Errorf("Get() returned after %v, want it bounded by the caller context", elapsed)
			}
			if result != nil {
				t.Errorf("Get() result = %+v, want nil", result)
			}
			for _, want := range tt.wantErr {
				if !errors.Is(err, want) {
					t.Errorf("Get() error = %v, want errors.Is %v", err, want)
				}
			}
		})
	}
}
