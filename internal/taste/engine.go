// Cadence - Track Similarity and Taste Clustering Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cadence

package taste

import (
	"context"
	"fmt"
	"math/rand"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/tomtom215/cadence/internal/metrics"
	"github.com/tomtom215/cadence/internal/similarity"
)

// Fallback reasons reported in Summary.Reason.
const (
	ReasonTooFewPoints = "too_few_points"
	ReasonBelowThresh  = "below_threshold"
	ReasonNumerical    = "numerical_failure"
)

// Clustering is the outcome of one clustering run.
type Clustering struct {
	Clusters []TasteCluster `json:"clusters"`
	Summary
}

// Engine groups listening history into taste clusters.
// It holds no per-run state and is safe for concurrent use.
type Engine struct {
	config Config
	ks     []int
	logger zerolog.Logger
}

// NewEngine creates a clustering engine.
//
//nolint:gocritic // logger passed by value is acceptable for zerolog
func NewEngine(cfg Config, logger zerolog.Logger) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid clustering config: %w", err)
	}
	return &Engine{
		config: cfg,
		ks:     cfg.sortedKs(),
		logger: logger.With().Str("component", "taste").Logger(),
	}, nil
}

// Cluster partitions points into taste clusters. Duplicate track IDs keep
// their first occurrence and input order does not affect the result.
// Points without an embedding are ignored. Mismatched dimensionality
// returns similarity.ErrDimensionMismatch.
func (e *Engine) Cluster(ctx context.Context, points []Point) (*Clustering, error) {
	start := time.Now()

	pts, err := prepare(points)
	if err != nil {
		metrics.RecordClustering("error", 0, 0, time.Since(start))
		return nil, err
	}
	if len(pts) == 0 {
		return &Clustering{Clusters: []TasteCluster{}, Summary: Summary{Trivial: true, Reason: ReasonTooFewPoints}}, nil
	}

	vectors := make([][]float64, len(pts))
	for i, p := range pts {
		vectors[i] = p.Embedding
	}

	distinct := distinctCount(vectors)
	if distinct < 2 {
		return e.trivial(pts, vectors, ReasonTooFewPoints, start), nil
	}

	dist := distanceMatrix(vectors)

	var best *kmeansResult
	var bestScore float64
	var bestPer []float64
	attempted, failed := 0, 0
	for _, k := range e.ks {
		if distinct < k*e.config.MinPointsPerCluster {
			continue
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		attempted++

		rng := rand.New(rand.NewSource(e.config.Seed + int64(k))) //nolint:gosec // deterministic seeding
		run, err := kmeans(vectors, k, e.config.MaxIterations, rng)
		if err != nil {
			failed++
			e.logger.Debug().Err(err).Int("k", k).Msg("clustering run discarded")
			continue
		}
		score, per, err := silhouette(dist, run.assign, k)
		if err != nil {
			failed++
			e.logger.Debug().Err(err).Int("k", k).Msg("silhouette discarded")
			continue
		}

		e.logger.Debug().
			Int("k", k).
			Int("iterations", run.iterations).
			Float64("silhouette", score).
			Msg("clustering candidate")

		if best == nil || score > bestScore {
			best, bestScore, bestPer = run, score, per
		}
	}

	switch {
	case attempted == 0:
		return e.trivial(pts, vectors, ReasonTooFewPoints, start), nil
	case best == nil && failed > 0:
		return e.trivial(pts, vectors, ReasonNumerical, start), nil
	case best == nil || bestScore <= e.config.ValidityThreshold:
		return e.trivial(pts, vectors, ReasonBelowThresh, start), nil
	}

	clusters := buildClusters(pts, best, bestPer)
	metrics.RecordClustering("clustered", best.k, bestScore, time.Since(start))
	e.logger.Debug().
		Int("points", len(pts)).
		Int("k", best.k).
		Float64("silhouette", bestScore).
		Msg("clustering complete")

	return &Clustering{
		Clusters: clusters,
		Summary:  Summary{K: best.k, Silhouette: bestScore},
	}, nil
}

func (e *Engine) trivial(pts []Point, vectors [][]float64, reason string, start time.Time) *Clustering {
	members := make([]string, len(pts))
	for i, p := range pts {
		members[i] = p.TrackID
	}
	metrics.RecordClustering("trivial", 1, 0, time.Since(start))
	e.logger.Debug().Int("points", len(pts)).Str("reason", reason).Msg("using general taste cluster")

	return &Clustering{
		Clusters: []TasteCluster{{
			ID:       0,
			Centroid: mean(vectors),
			Members:  members,
			Name:     GeneralTasteName,
			Validity: 0,
		}},
		Summary: Summary{K: 1, Trivial: true, Reason: reason},
	}
}

// prepare dedupes by track ID, drops points without embeddings, sorts by
// ID and checks dimensionality.
func prepare(points []Point) ([]Point, error) {
	seen := make(map[string]bool, len(points))
	out := make([]Point, 0, len(points))
	for _, p := range points {
		if p.TrackID == "" || seen[p.TrackID] {
			continue
		}
		seen[p.TrackID] = true
		if len(p.Embedding) == 0 {
			continue
		}
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TrackID < out[j].TrackID })

	for _, p := range out {
		if len(p.Embedding) != len(out[0].Embedding) {
			return nil, fmt.Errorf("%w: track %s has %d dimensions, expected %d",
				similarity.ErrDimensionMismatch, p.TrackID, len(p.Embedding), len(out[0].Embedding))
		}
	}
	return out, nil
}

// buildClusters names and orders the clusters of a winning run.
func buildClusters(pts []Point, run *kmeansResult, validity []float64) []TasteCluster {
	groups := make([][]Point, run.k)
	for i, c := range run.assign {
		groups[c] = append(groups[c], pts[i])
	}

	clusters := make([]TasteCluster, 0, run.k)
	for c, members := range groups {
		ids := make([]string, len(members))
		for i, p := range members {
			ids[i] = p.TrackID
		}
		clusters = append(clusters, TasteCluster{
			Centroid: run.centroids[c],
			Members:  ids,
			Name:     clusterName(members),
			Validity: validity[c],
		})
	}

	sort.SliceStable(clusters, func(i, j int) bool {
		if len(clusters[i].Members) != len(clusters[j].Members) {
			return len(clusters[i].Members) > len(clusters[j].Members)
		}
		return clusters[i].Members[0] < clusters[j].Members[0]
	})
	for i := range clusters {
		clusters[i].ID = i
	}
	dedupeNames(clusters)
	return clusters
}
