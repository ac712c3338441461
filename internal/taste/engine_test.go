// Cadence - Track Similarity and Taste Clustering Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cadence

package taste

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"reflect"
	"testing"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"github.com/tomtom215/cadence/internal/similarity"
)

func newTestEngine(t *testing.T, mutate func(*Config)) *Engine {
	t.Helper()
	cfg := DefaultConfig()
	if mutate != nil {
		mutate(&cfg)
	}
	e, err := NewEngine(cfg, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewEngine() error = %v", err)
	}
	return e
}

// blobPoints returns three tight groups of four points far apart.
func blobPoints() []Point {
	offsets := [][2]float64{{0, 0}, {1, 0}, {0, 1}, {1, 1}}
	groups := []struct {
		prefix   string
		x, y     float64
		genre    string
		acoustic similarity.AcousticFeatures
	}{
		{"a", 0, 0, "rock", similarity.AcousticFeatures{Energy: 0.9, Valence: 0.5}},
		{"b", 100, 0, "jazz", similarity.AcousticFeatures{Energy: 0.1, Valence: 0.5}},
		{"c", 0, 100, "pop", similarity.AcousticFeatures{Energy: 0.5, Valence: 0.8}},
	}

	var pts []Point
	for _, g := range groups {
		for i, o := range offsets {
			ac := g.acoustic
			pts = append(pts, Point{
				TrackID:   fmt.Sprintf("%s%d", g.prefix, i+1),
				Embedding: []float64{g.x + o[0], g.y + o[1]},
				Genres:    []string{g.genre},
				Acoustic:  &ac,
			})
		}
	}
	return pts
}

func TestConfig_Validate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults", func(*Config) {}, false},
		{"empty ks", func(c *Config) { c.CandidateKs = nil }, true},
		{"k below two", func(c *Config) { c.CandidateKs = []int{1, 2} }, true},
		{"threshold too high", func(c *Config) { c.ValidityThreshold = 1 }, true},
		{"zero iterations", func(c *Config) { c.MaxIterations = 0 }, true},
		{"zero min points", func(c *Config) { c.MinPointsPerCluster = 0 }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			if err := cfg.Validate(); (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestCluster_SeparatedGroups(t *testing.T) {
	t.Parallel()
	e := newTestEngine(t, nil)

	got, err := e.Cluster(context.Background(), blobPoints())
	if err != nil {
		t.Fatalf("Cluster() error = %v", err)
	}
	if got.Trivial || got.K != 3 {
		t.Fatalf("Cluster() k = %d trivial = %v, want k=3", got.K, got.Trivial)
	}
	if got.Silhouette <= 0.9 {
		t.Errorf("silhouette = %v, want > 0.9", got.Silhouette)
	}

	wantMembers := [][]string{
		{"a1", "a2", "a3", "a4"},
		{"b1", "b2", "b3", "b4"},
		{"c1", "c2", "c3", "c4"},
	}
	wantNames := []string{"Energetic Rock", "Mellow Jazz", "Upbeat Pop"}
	for i, c := range got.Clusters {
		if c.ID != i {
			t.Errorf("cluster %d ID = %d", i, c.ID)
		}
		if !reflect.DeepEqual(c.Members, wantMembers[i]) {
			t.Errorf("cluster %d members = %v, want %v", i, c.Members, wantMembers[i])
		}
		if c.Name != wantNames[i] {
			t.Errorf("cluster %d name = %q, want %q", i, c.Name, wantNames[i])
		}
		if len(c.Centroid) != 2 {
			t.Errorf("cluster %d centroid dims = %d", i, len(c.Centroid))
		}
		if c.Validity < -1 || c.Validity > 1 {
			t.Errorf("cluster %d validity = %v out of range", i, c.Validity)
		}
	}
}

func TestCluster_Deterministic(t *testing.T) {
	t.Parallel()
	e := newTestEngine(t, nil)

	first, err := e.Cluster(context.Background(), blobPoints())
	if err != nil {
		t.Fatalf("Cluster() error = %v", err)
	}
	for run := 0; run < 5; run++ {
		again, err := e.Cluster(context.Background(), blobPoints())
		if err != nil {
			t.Fatalf("Cluster() error = %v", err)
		}
		if !reflect.DeepEqual(first, again) {
			t.Fatalf("run %d differs from first run", run)
		}
	}
}

func TestCluster_InputOrderIndependent(t *testing.T) {
	t.Parallel()
	e := newTestEngine(t, nil)

	pts := blobPoints()
	want, err := e.Cluster(context.Background(), pts)
	if err != nil {
		t.Fatalf("Cluster() error = %v", err)
	}

	rng := rand.New(rand.NewSource(3)) //nolint:gosec // deterministic test data
	shuffled := append([]Point(nil), pts...)
	rng.Shuffle(len(shuffled), func(i, j int) { shuffled[i], shuffled[j] = shuffled[j], shuffled[i] })
	shuffled = append(shuffled, pts[0]) // duplicate ID is ignored

	got, err := e.Cluster(context.Background(), shuffled)
	if err != nil {
		t.Fatalf("Cluster() error = %v", err)
	}
	if !reflect.DeepEqual(want, got) {
		t.Errorf("shuffled input produced a different clustering")
	}
}

func TestCluster_TooFewDistinctPoints(t *testing.T) {
	t.Parallel()
	e := newTestEngine(t, nil)

	tests := []struct {
		name   string
		points []Point
		want   []string
	}{
		{
			name:   "single point",
			points: []Point{{TrackID: "t1", Embedding: []float64{1, 2}}},
			want:   []string{"t1"},
		},
		{
			name: "identical embeddings",
			points: []Point{
				{TrackID: "t3", Embedding: []float64{1, 1}},
				{TrackID: "t1", Embedding: []float64{1, 1}},
				{TrackID: "t2", Embedding: []float64{1, 1}},
			},
			want: []string{"t1", "t2", "t3"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := e.Cluster(context.Background(), tt.points)
			if err != nil {
				t.Fatalf("Cluster() error = %v", err)
			}
			if len(got.Clusters) != 1 {
				t.Fatalf("got %d clusters, want 1", len(got.Clusters))
			}
			c := got.Clusters[0]
			if !reflect.DeepEqual(c.Members, tt.want) {
				t.Errorf("members = %v, want %v", c.Members, tt.want)
			}
			if c.Name != GeneralTasteName || c.Validity != 0 {
				t.Errorf("cluster = %+v, want general taste with validity 0", c)
			}
			if !got.Trivial || got.Reason != ReasonTooFewPoints {
				t.Errorf("summary = %+v", got.Summary)
			}
		})
	}
}

func TestCluster_Empty(t *testing.T) {
	t.Parallel()
	e := newTestEngine(t, nil)

	got, err := e.Cluster(context.Background(), nil)
	if err != nil {
		t.Fatalf("Cluster() error = %v", err)
	}
	if len(got.Clusters) != 0 {
		t.Errorf("got %d clusters, want 0", len(got.Clusters))
	}
}

func TestCluster_BelowThresholdFallsBack(t *testing.T) {
	t.Parallel()
	e := newTestEngine(t, func(c *Config) { c.ValidityThreshold = 0.9 })

	rng := rand.New(rand.NewSource(19)) //nolint:gosec // deterministic test data
	pts := make([]Point, 30)
	for i := range pts {
		v := make([]float64, 16)
		for d := range v {
			v[d] = rng.Float64()
		}
		pts[i] = Point{TrackID: fmt.Sprintf("t%02d", i), Embedding: v}
	}

	got, err := e.Cluster(context.Background(), pts)
	if err != nil {
		t.Fatalf("Cluster() error = %v", err)
	}
	if len(got.Clusters) != 1 || !got.Trivial || got.Reason != ReasonBelowThresh {
		t.Fatalf("got %d clusters, summary %+v; want trivial below threshold", len(got.Clusters), got.Summary)
	}
	if len(got.Clusters[0].Members) != len(pts) {
		t.Errorf("general cluster has %d members, want %d", len(got.Clusters[0].Members), len(pts))
	}
}

func TestCluster_MembershipIsPartition(t *testing.T) {
	t.Parallel()
	e := newTestEngine(t, nil)

	rng := rand.New(rand.NewSource(5)) //nolint:gosec // deterministic test data
	pts := make([]Point, 40)
	for i := range pts {
		center := float64(i%4) * 20
		pts[i] = Point{
			TrackID:   fmt.Sprintf("t%02d", i),
			Embedding: []float64{center + rng.Float64(), rng.Float64(), center + rng.Float64()},
		}
	}

	got, err := e.Cluster(context.Background(), pts)
	if err != nil {
		t.Fatalf("Cluster() error = %v", err)
	}
	seen := make(map[string]int)
	for _, c := range got.Clusters {
		if len(c.Members) == 0 {
			t.Errorf("cluster %d is empty", c.ID)
		}
		for _, m := range c.Members {
			seen[m]++
		}
	}
	if len(seen) != len(pts) {
		t.Errorf("clusters cover %d tracks, want %d", len(seen), len(pts))
	}
	for id, n := range seen {
		if n != 1 {
			t.Errorf("track %s appears in %d clusters", id, n)
		}
	}
}

func TestCluster_DimensionMismatch(t *testing.T) {
	t.Parallel()
	e := newTestEngine(t, nil)

	_, err := e.Cluster(context.Background(), []Point{
		{TrackID: "a", Embedding: []float64{1, 2}},
		{TrackID: "b", Embedding: []float64{1, 2, 3}},
	})
	if !errors.Is(err, similarity.ErrDimensionMismatch) {
		t.Errorf("Cluster() error = %v, want ErrDimensionMismatch", err)
	}
}

func TestCluster_CanceledContext(t *testing.T) {
	t.Parallel()
	e := newTestEngine(t, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := e.Cluster(ctx, blobPoints())
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Cluster() error = %v, want context.Canceled", err)
	}
}

func TestSilhouette(t *testing.T) {
	t.Parallel()

	vectors := [][]float64{{0}, {1}, {10}, {11}}
	score, per, err := silhouette(distanceMatrix(vectors), []int{0, 0, 1, 1}, 2)
	if err != nil {
		t.Fatalf("silhouette() error = %v", err)
	}
	want := (9.5/10.5 + 8.5/9.5) / 2
	if math.Abs(score-want) > 1e-12 {
		t.Errorf("silhouette = %v, want %v", score, want)
	}
	if math.Abs(per[0]-per[1]) > 1e-12 {
		t.Errorf("per-cluster scores = %v, want symmetric", per)
	}

	_, per, err = silhouette(distanceMatrix([][]float64{{0}, {1}, {10}}), []int{0, 0, 1}, 2)
	if err != nil {
		t.Fatalf("silhouette() error = %v", err)
	}
	if per[1] != 0 {
		t.Errorf("singleton cluster score = %v, want 0", per[1])
	}
}

func TestDistinctCount(t *testing.T) {
	t.Parallel()

	got := distinctCount([][]float64{{1, 2}, {1, 2}, {2, 1}, {0, 0}})
	if got != 3 {
		t.Errorf("distinctCount() = %d, want 3", got)
	}
}

func TestKmeans_RejectsTooFewPoints(t *testing.T) {
	t.Parallel()

	rng := rand.New(rand.NewSource(1)) //nolint:gosec // deterministic test data
	if _, err := kmeans([][]float64{{0}, {1}}, 3, 10, rng); !errors.Is(err, errNumerical) {
		t.Errorf("kmeans() error = %v, want errNumerical", err)
	}
}

func TestCluster_NonFiniteEmbeddingStaysEncodable(t *testing.T) {
	t.Parallel()
	e := newTestEngine(t, nil)

	pts := blobPoints()
	pts[5].Embedding = []float64{math.NaN(), 1}

	got, err := e.Cluster(context.Background(), pts)
	if err != nil {
		t.Fatalf("Cluster() error = %v", err)
	}
	if len(got.Clusters) == 0 {
		t.Fatal("got no clusters")
	}
	for _, c := range got.Clusters {
		for d, x := range c.Centroid {
			if math.IsNaN(x) || math.IsInf(x, 0) {
				t.Errorf("cluster %d centroid[%d] = %v, want finite", c.ID, d, x)
			}
		}
	}
	if _, err := json.Marshal(got); err != nil {
		t.Errorf("json.Marshal() error = %v", err)
	}
}

func TestMean_SkipsNonFiniteComponents(t *testing.T) {
	t.Parallel()

	got := mean([][]float64{
		{1, math.NaN(), math.Inf(1)},
		{3, 4, math.NaN()},
	})
	want := []float64{2, 4, 0}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("mean() = %v, want %v", got, want)
	}
}
