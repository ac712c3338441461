// Cadence - Track Similarity and Taste Clustering Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cadence

package similarity

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sort"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

// mockStore is an in-memory Store. CandidateIDs deliberately includes the
// reference track so the engine's own exclusion is exercised.
type mockStore struct {
	tracks        map[string]*TrackFeatures
	err           error
	block         bool
	featureCalls  atomic.Int32
	candidateCall atomic.Int32
}

func newMockStore(tracks ...*TrackFeatures) *mockStore {
	m := &mockStore{tracks: make(map[string]*TrackFeatures, len(tracks))}
	for _, t := range tracks {
		m.tracks[t.ID] = t
	}
	return m
}

func (m *mockStore) GetFeatures(ctx context.Context, ids []string) (map[string]*TrackFeatures, error) {
	m.featureCalls.Add(1)
	if m.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if m.err != nil {
		return nil, m.err
	}
	out := make(map[string]*TrackFeatures, len(ids))
	for _, id := range ids {
		if t, ok := m.tracks[id]; ok {
			out[id] = t
		}
	}
	return out, nil
}

func (m *mockStore) CandidateIDs(_ context.Context, _ *TrackFeatures, max int) ([]string, error) {
	m.candidateCall.Add(1)
	ids := make([]string, 0, len(m.tracks))
	for id := range m.tracks {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	if len(ids) > max {
		ids = ids[:max]
	}
	return ids, nil
}

func testLogger() zerolog.Logger {
	return zerolog.Nop()
}

func newTestEngine(t *testing.T, store Store) *Engine {
	t.Helper()
	e, err := NewEngine(DefaultConfig(), store, testLogger())
	if err != nil {
		t.Fatalf("NewEngine() error = %v", err)
	}
	return e
}

// scenarioTracks is the rock reference A with a close same-genre B and a
// distant jazz C.
func scenarioTracks() []*TrackFeatures {
	return []*TrackFeatures{
		{
			ID:        "A",
			Embedding: []float64{1, 0, 0, 0},
			Acoustic:  &AcousticFeatures{BPM: 128, Energy: 0.9, Valence: 0.6, Danceability: 0.7},
			Genres:    []string{"rock"},
			Moods:     []string{"energetic"},
		},
		{
			ID:        "B",
			Embedding: []float64{0.95, 0.1, 0.05, 0},
			Acoustic:  &AcousticFeatures{BPM: 124, Energy: 0.85, Valence: 0.55, Danceability: 0.65},
			Genres:    []string{"rock"},
		},
		{
			ID:        "C",
			Embedding: []float64{-0.8, 0.5, 0.2, 0.1},
			Acoustic:  &AcousticFeatures{BPM: 70, Energy: 0.2, Valence: 0.3, Danceability: 0.3},
			Genres:    []string{"jazz"},
			Moods:     []string{"calm"},
		},
	}
}

func catalogOf(n int, dim int, seed int64) []*TrackFeatures {
	rng := rand.New(rand.NewSource(seed)) //nolint:gosec // deterministic test data
	genres := []string{"rock", "jazz", "pop", "ambient"}
	moods := []string{"energetic", "calm", "dark", "happy"}

	tracks := make([]*TrackFeatures, n)
	for i := range tracks {
		emb := make([]float64, dim)
		for d := range emb {
			emb[d] = rng.NormFloat64()
		}
		tracks[i] = &TrackFeatures{
			ID:        fmt.Sprintf("t%03d", i),
			Embedding: emb,
			Acoustic: &AcousticFeatures{
				BPM:          60 + rng.Float64()*120,
				Energy:       rng.Float64(),
				Valence:      rng.Float64(),
				Danceability: rng.Float64(),
			},
			Genres: []string{genres[rng.Intn(len(genres))]},
			Moods:  []string{moods[rng.Intn(len(moods))]},
		}
	}
	return tracks
}

func TestNewEngine(t *testing.T) {
	t.Parallel()

	if _, err := NewEngine(DefaultConfig(), nil, testLogger()); err == nil {
		t.Error("NewEngine(nil store) should fail")
	}

	cfg := DefaultConfig()
	cfg.Weights = Weights{Semantic: 0.5, Acoustic: 0.5, Categorical: 0.5}
	if _, err := NewEngine(cfg, newMockStore(), testLogger()); !errors.Is(err, ErrInvalidWeights) {
		t.Errorf("NewEngine(bad weights) error = %v, want ErrInvalidWeights", err)
	}

	cfg = DefaultConfig()
	cfg.MaxResults = 500
	if _, err := NewEngine(cfg, newMockStore(), testLogger()); err == nil {
		t.Error("NewEngine(max_results > 100) should fail")
	}
}

func TestEngine_SemanticExcludesReference(t *testing.T) {
	t.Parallel()

	tracks := catalogOf(30, 8, 1)
	e := newTestEngine(t, newMockStore(tracks...))

	for _, ref := range []string{"t000", "t013", "t029"} {
		res, err := e.SimilarBySemantic(context.Background(), ref, 100)
		if err != nil {
			t.Fatalf("SimilarBySemantic(%s) error = %v", ref, err)
		}
		if len(res.Items) != 29 {
			t.Errorf("SimilarBySemantic(%s) returned %d items, want 29", ref, len(res.Items))
		}
		for _, m := range res.Items {
			if m.TrackID == ref {
				t.Fatalf("SimilarBySemantic(%s) contains the reference track", ref)
			}
		}
	}
}

func TestEngine_ResultOrderAndBounds(t *testing.T) {
	t.Parallel()

	tracks := catalogOf(150, 6, 2)
	e := newTestEngine(t, newMockStore(tracks...))

	methods := []Method{MethodSemantic, MethodAcoustic, MethodCategorical, MethodCombined}
	limits := []int{1, 5, 100, 101, 1000}

	for _, method := range methods {
		for _, limit := range limits {
			t.Run(fmt.Sprintf("%s/%d", method, limit), func(t *testing.T) {
				t.Parallel()
				res, err := e.Similar(context.Background(), Request{TrackID: "t010", Method: method, Limit: limit})
				if err != nil {
					t.Fatalf("Similar() error = %v", err)
				}
				want := limit
				if want > MaxResults {
					want = MaxResults
				}
				if len(res.Items) > want {
					t.Fatalf("len = %d, want <= %d", len(res.Items), want)
				}
				if res.Limit != want {
					t.Errorf("Limit = %d, want %d", res.Limit, want)
				}
				for i, m := range res.Items {
					if m.Score < 0 || m.Score > 1 {
						t.Errorf("item %d score %v outside [0,1]", i, m.Score)
					}
					if m.Method != method {
						t.Errorf("item %d method = %v, want %v", i, m.Method, method)
					}
					if i == 0 {
						continue
					}
					prev := res.Items[i-1]
					if prev.Score < m.Score || (prev.Score == m.Score && prev.TrackID >= m.TrackID) {
						t.Fatalf("items %d and %d out of order: %+v then %+v", i-1, i, prev, m)
					}
				}
			})
		}
	}
}

func TestEngine_TiesBrokenByTrackID(t *testing.T) {
	t.Parallel()

	store := newMockStore(
		&TrackFeatures{ID: "ref", Genres: []string{"rock"}},
		&TrackFeatures{ID: "zeta", Genres: []string{"rock"}},
		&TrackFeatures{ID: "alpha", Genres: []string{"rock"}},
		&TrackFeatures{ID: "mid", Genres: []string{"rock"}},
	)
	e := newTestEngine(t, store)

	res, err := e.SimilarByCategorical(context.Background(), "ref", 10)
	if err != nil {
		t.Fatalf("SimilarByCategorical() error = %v", err)
	}
	got := res.TrackIDs()
	want := []string{"alpha", "mid", "zeta"}
	if fmt.Sprint(got) != fmt.Sprint(want) {
		t.Errorf("order = %v, want %v", got, want)
	}
}

func TestEngine_CombinedScoresWithinBounds(t *testing.T) {
	t.Parallel()

	tracks := catalogOf(60, 5, 3)
	e := newTestEngine(t, newMockStore(tracks...))
	rng := rand.New(rand.NewSource(11)) //nolint:gosec // deterministic test data

	for i := 0; i < 25; i++ {
		a := rng.Float64()
		b := rng.Float64() * (1 - a)
		w := Weights{Semantic: a, Acoustic: b, Categorical: 1 - a - b}

		res, err := e.SimilarCombined(context.Background(), "t001", 50, &w)
		if err != nil {
			t.Fatalf("SimilarCombined(%+v) error = %v", w, err)
		}
		for _, m := range res.Items {
			if m.Score < 0 || m.Score > 1 {
				t.Fatalf("score %v outside [0,1] for weights %+v", m.Score, w)
			}
		}
	}
}

func TestEngine_RejectsInvalidWeights(t *testing.T) {
	t.Parallel()

	store := newMockStore(scenarioTracks()...)
	e := newTestEngine(t, store)

	bad := Weights{Semantic: 0.5, Acoustic: 0.5, Categorical: 0.5}
	_, err := e.SimilarCombined(context.Background(), "A", 10, &bad)
	if !errors.Is(err, ErrInvalidWeights) {
		t.Fatalf("SimilarCombined() error = %v, want ErrInvalidWeights", err)
	}
	if store.featureCalls.Load() != 0 {
		t.Error("invalid weights must be rejected before querying the store")
	}
}

func TestEngine_InvalidLimit(t *testing.T) {
	t.Parallel()

	e := newTestEngine(t, newMockStore(scenarioTracks()...))
	for _, limit := range []int{0, -1, -100} {
		if _, err := e.SimilarBySemantic(context.Background(), "A", limit); !errors.Is(err, ErrInvalidLimit) {
			t.Errorf("limit %d: error = %v, want ErrInvalidLimit", limit, err)
		}
	}
}

func TestEngine_TrackNotFound(t *testing.T) {
	t.Parallel()

	e := newTestEngine(t, newMockStore(scenarioTracks()...))
	_, err := e.SimilarCombined(context.Background(), "missing", 10, nil)
	if !errors.Is(err, ErrTrackNotFound) {
		t.Fatalf("error = %v, want ErrTrackNotFound", err)
	}
	if IsRetryable(err) {
		t.Error("not found must not be retryable")
	}
}

func TestEngine_DimensionMismatchFailsClosed(t *testing.T) {
	t.Parallel()

	tracks := scenarioTracks()
	tracks = append(tracks, &TrackFeatures{ID: "D", Embedding: []float64{1, 0, 0}})
	e := newTestEngine(t, newMockStore(tracks...))

	for _, method := range []Method{MethodSemantic, MethodCombined} {
		_, err := e.Similar(context.Background(), Request{TrackID: "A", Method: method, Limit: 10})
		if !errors.Is(err, ErrDimensionMismatch) {
			t.Errorf("%s: error = %v, want ErrDimensionMismatch", method, err)
		}
	}

	// Methods that never compare embeddings are unaffected.
	if _, err := e.SimilarByCategorical(context.Background(), "A", 10); err != nil {
		t.Errorf("categorical error = %v, want nil", err)
	}
}

func TestEngine_QueryTimeoutIsRetryable(t *testing.T) {
	t.Parallel()

	store := newMockStore(scenarioTracks()...)
	store.block = true

	cfg := DefaultConfig()
	cfg.QueryTimeout = 30 * time.Millisecond
	e, err := NewEngine(cfg, store, testLogger())
	if err != nil {
		t.Fatalf("NewEngine() error = %v", err)
	}

	start := time.Now()
	res, err := e.SimilarBySemantic(context.Background(), "A", 10)
	if !errors.Is(err, ErrQueryTimeout) {
		t.Fatalf("error = %v, want ErrQueryTimeout", err)
	}
	if res != nil {
		t.Error("timeout must not return a partial result")
	}
	if !IsRetryable(err) {
		t.Error("timeout should be retryable")
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("query took %v, timeout not enforced", elapsed)
	}
}

func TestEngine_StoreFailure(t *testing.T) {
	t.Parallel()

	store := newMockStore(scenarioTracks()...)
	store.err = errors.New("connection reset")
	e := newTestEngine(t, store)

	_, err := e.SimilarByAcoustic(context.Background(), "A", 10)
	if !errors.Is(err, ErrStoreUnavailable) {
		t.Fatalf("error = %v, want ErrStoreUnavailable", err)
	}
	if IsRetryable(err) {
		t.Error("store unavailable should not be marked retryable")
	}
}

func TestEngine_CloseSameGenreRanksAboveDistant(t *testing.T) {
	t.Parallel()

	e := newTestEngine(t, newMockStore(scenarioTracks()...))

	res, err := e.SimilarCombined(context.Background(), "A", 10, nil)
	if err != nil {
		t.Fatalf("SimilarCombined() error = %v", err)
	}
	if len(res.Items) != 2 {
		t.Fatalf("got %d items, want 2", len(res.Items))
	}
	if res.Items[0].TrackID != "B" || res.Items[1].TrackID != "C" {
		t.Fatalf("order = %v, want [B C]", res.TrackIDs())
	}
	if !(res.Items[0].Score > res.Items[1].Score) {
		t.Errorf("B score %v should be strictly above C score %v", res.Items[0].Score, res.Items[1].Score)
	}
	if res.Weights == nil || *res.Weights != DefaultWeights() {
		t.Errorf("Weights = %v, want defaults", res.Weights)
	}
}

func TestEngine_MissingSignals(t *testing.T) {
	t.Parallel()

	store := newMockStore(
		&TrackFeatures{ID: "ref", Embedding: []float64{1, 0}, Genres: []string{"rock"}},
		&TrackFeatures{ID: "bare", Genres: []string{"rock"}},
	)
	e := newTestEngine(t, store)
	ctx := context.Background()

	sem, err := e.SimilarBySemantic(ctx, "ref", 10)
	if err != nil || len(sem.Items) != 0 {
		t.Errorf("semantic: items = %v, err = %v; want none", sem, err)
	}
	ac, err := e.SimilarByAcoustic(ctx, "ref", 10)
	if err != nil || len(ac.Items) != 0 {
		t.Errorf("acoustic: items = %v, err = %v; want none", ac, err)
	}

	// Only the categorical term survives: 1.0 * 0.2.
	comb, err := e.SimilarCombined(ctx, "ref", 10, nil)
	if err != nil {
		t.Fatalf("combined error = %v", err)
	}
	if len(comb.Items) != 1 || comb.Items[0].Score != 0.2 {
		t.Errorf("combined = %+v, want single item scoring 0.2", comb.Items)
	}
}
