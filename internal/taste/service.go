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
	"sort"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/tomtom215/cadence/internal/cache"
	"github.com/tomtom215/cadence/internal/similarity"
)

// ErrClusterNotFound is returned for a cluster ID outside the user's clustering.
var ErrClusterNotFound = errors.New("taste cluster not found")

// Play is one listening event.
type Play struct {
	UserID   string
	TrackID  string
	PlayedAt time.Time
}

// HistoryProvider supplies listening history.
type HistoryProvider interface {
	// RecentPlays returns up to limit plays for the user, newest first.
	RecentPlays(ctx context.Context, userID string, limit int) ([]Play, error)

	// ActiveUsers returns users with at least one play at or after since.
	ActiveUsers(ctx context.Context, since time.Time) ([]string, error)
}

// FeatureStore fetches track features by ID. Unknown IDs are omitted.
type FeatureStore interface {
	GetFeatures(ctx context.Context, ids []string) (map[string]*similarity.TrackFeatures, error)
}

// ServiceConfig configures the taste service.
type ServiceConfig struct {
	// HistoryLimit bounds the plays fed into one clustering. Default: 500
	HistoryLimit int

	// CacheTTL of a stored clustering. Default: 6h
	CacheTTL time.Duration

	// PlaylistSeeds is how many members nearest the centroid seed a
	// cluster playlist. Default: 3
	PlaylistSeeds int

	// PlaylistSize applies when the caller passes size <= 0. Default: 20
	PlaylistSize int
}

// DefaultServiceConfig returns the default service configuration.
func DefaultServiceConfig() ServiceConfig {
	return ServiceConfig{
		HistoryLimit:  500,
		CacheTTL:      6 * time.Hour,
		PlaylistSeeds: 3,
		PlaylistSize:  20,
	}
}

// Service clusters users' listening history and builds playlists from the
// resulting clusters.
type Service struct {
	engine   *Engine
	history  HistoryProvider
	features FeatureStore
	similar  similarity.Querier
	backend  cache.Backend
	runner   Runner
	config   ServiceConfig
	logger   zerolog.Logger
}

// ServiceDeps groups the collaborators of a Service. Backend and Runner
// are optional.
type ServiceDeps struct {
	Engine   *Engine
	History  HistoryProvider
	Features FeatureStore
	Similar  similarity.Querier
	Backend  cache.Backend
	Runner   Runner
}

// NewService creates a taste service.
//
//nolint:gocritic // logger passed by value is acceptable for zerolog
func NewService(deps ServiceDeps, cfg ServiceConfig, logger zerolog.Logger) (*Service, error) {
	if deps.Engine == nil || deps.History == nil || deps.Features == nil || deps.Similar == nil {
		return nil, fmt.Errorf("taste service requires engine, history, features and similarity")
	}
	def := DefaultServiceConfig()
	if cfg.HistoryLimit <= 0 {
		cfg.HistoryLimit = def.HistoryLimit
	}
	if cfg.PlaylistSeeds <= 0 {
		cfg.PlaylistSeeds = def.PlaylistSeeds
	}
	if cfg.PlaylistSize <= 0 {
		cfg.PlaylistSize = def.PlaylistSize
	}
	runner := deps.Runner
	if runner == nil {
		runner = DirectRunner{}
	}
	return &Service{
		engine:   deps.Engine,
		history:  deps.History,
		features: deps.Features,
		similar:  deps.Similar,
		backend:  deps.Backend,
		runner:   runner,
		config:   cfg,
		logger:   logger.With().Str("component", "taste-service").Logger(),
	}, nil
}

// CacheKey returns the cache key of a user's clustering.
func CacheKey(userID string) string {
	return "taste:" + userID
}

// ClusterUserTaste returns the user's taste clusters, from cache when fresh.
func (s *Service) ClusterUserTaste(ctx context.Context, userID string) (*Clustering, error) {
	if userID == "" {
		return nil, fmt.Errorf("user id is required")
	}
	if c := s.cached(ctx, userID); c != nil {
		return c, nil
	}
	return s.Recompute(ctx, userID)
}

// Recompute clusters the user's recent history on the batch runner and
// stores the result.
func (s *Service) Recompute(ctx context.Context, userID string) (*Clustering, error) {
	plays, err := s.history.RecentPlays(ctx, userID, s.config.HistoryLimit)
	if err != nil {
		return nil, fmt.Errorf("%w: load history for %s: %w", similarity.ErrStoreUnavailable, userID, err)
	}

	ids := make([]string, 0, len(plays))
	seen := make(map[string]bool, len(plays))
	for _, p := range plays {
		if !seen[p.TrackID] {
			seen[p.TrackID] = true
			ids = append(ids, p.TrackID)
		}
	}

	var feats map[string]*similarity.TrackFeatures
	if len(ids) > 0 {
		feats, err = s.features.GetFeatures(ctx, ids)
		if err != nil {
			return nil, fmt.Errorf("%w: load features for %s: %w", similarity.ErrStoreUnavailable, userID, err)
		}
	}
	points := make([]Point, 0, len(ids))
	for _, id := range ids {
		if f, ok := feats[id]; ok && f != nil {
			points = append(points, PointFromFeatures(f))
		}
	}

	var result *Clustering
	err = s.runner.Submit(ctx, func(ctx context.Context) error {
		var err error
		result, err = s.engine.Cluster(ctx, points)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.store(ctx, userID, result)
	s.logger.Debug().
		Str("user_id", userID).
		Int("points", len(points)).
		Int("clusters", len(result.Clusters)).
		Bool("trivial", result.Trivial).
		Msg("taste recomputed")
	return result, nil
}

func (s *Service) cached(ctx context.Context, userID string) *Clustering {
	if s.backend == nil {
		return nil
	}
	data, err := s.backend.Get(ctx, CacheKey(userID))
	if err != nil {
		if !errors.Is(err, cache.ErrCacheMiss) {
			s.logger.Warn().Err(err).Str("user_id", userID).Msg("taste cache read failed")
		}
		return nil
	}
	var c Clustering
	if err := json.Unmarshal(data, &c); err != nil {
		s.logger.Warn().Err(err).Str("user_id", userID).Msg("discarding corrupt taste cache entry")
		return nil
	}
	return &c
}

func (s *Service) store(ctx context.Context, userID string, c *Clustering) {
	if s.backend == nil {
		return
	}
	data, err := json.Marshal(c)
	if err != nil {
		s.logger.Warn().Err(err).Msg("taste clustering encode failed")
		return
	}
	if err := s.backend.Set(ctx, CacheKey(userID), data, s.config.CacheTTL); err != nil {
		s.logger.Warn().Err(err).Str("user_id", userID).Msg("taste cache write failed")
	}
}

// GenerateClusterPlaylist builds a playlist for one cluster: the members
// nearest the centroid seed combined similarity queries, merged by max
// score, with the cluster's own members excluded.
func (s *Service) GenerateClusterPlaylist(ctx context.Context, userID string, clusterID, size int) ([]similarity.Match, error) {
	if size <= 0 {
		size = s.config.PlaylistSize
	}
	if size > similarity.MaxResults {
		size = similarity.MaxResults
	}

	clustering, err := s.ClusterUserTaste(ctx, userID)
	if err != nil {
		return nil, err
	}
	if clusterID < 0 || clusterID >= len(clustering.Clusters) {
		return nil, fmt.Errorf("%w: %d", ErrClusterNotFound, clusterID)
	}
	cluster := clustering.Clusters[clusterID]

	seeds, err := s.seeds(ctx, cluster)
	if err != nil {
		return nil, err
	}

	members := make(map[string]bool, len(cluster.Members))
	for _, m := range cluster.Members {
		members[m] = true
	}
	limit := size + len(members)
	if limit > similarity.MaxResults {
		limit = similarity.MaxResults
	}

	var mu sync.Mutex
	merged := make(map[string]float64)
	g, gctx := errgroup.WithContext(ctx)
	for _, seed := range seeds {
		g.Go(func() error {
			res, err := s.similar.Similar(gctx, similarity.Request{
				TrackID: seed,
				Method:  similarity.MethodCombined,
				Limit:   limit,
			})
			if err != nil {
				if errors.Is(err, similarity.ErrTrackNotFound) {
					return nil
				}
				return err
			}
			mu.Lock()
			defer mu.Unlock()
			for _, m := range res.Items {
				if members[m.TrackID] {
					continue
				}
				if prev, ok := merged[m.TrackID]; !ok || m.Score > prev {
					merged[m.TrackID] = m.Score
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := make([]similarity.Match, 0, len(merged))
	for id, score := range merged {
		out = append(out, similarity.Match{TrackID: id, Score: score, Method: similarity.MethodCombined})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].TrackID < out[j].TrackID
	})
	if len(out) > size {
		out = out[:size]
	}
	return out, nil
}

// seeds returns the members nearest the cluster centroid.
func (s *Service) seeds(ctx context.Context, cluster TasteCluster) ([]string, error) {
	feats, err := s.features.GetFeatures(ctx, cluster.Members)
	if err != nil {
		return nil, fmt.Errorf("load cluster features: %w", err)
	}

	type ranked struct {
		id   string
		dist float64
	}
	candidates := make([]ranked, 0, len(cluster.Members))
	for _, id := range cluster.Members {
		d := math.Inf(1)
		if f, ok := feats[id]; ok && f != nil && len(f.Embedding) == len(cluster.Centroid) {
			d = euclidean(f.Embedding, cluster.Centroid)
		}
		candidates = append(candidates, ranked{id: id, dist: d})
	}
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].dist != candidates[j].dist {
			return candidates[i].dist < candidates[j].dist
		}
		return candidates[i].id < candidates[j].id
	})

	n := s.config.PlaylistSeeds
	if n > len(candidates) {
		n = len(candidates)
	}
	out := make([]string, n)
	for i := 0; i < n; i++ {
		out[i] = candidates[i].id
	}
	return out, nil
}

// RefreshActive recomputes clusters for every user active since the given
// time. Per-user failures are logged and skipped.
func (s *Service) RefreshActive(ctx context.Context, since time.Time) (int, error) {
	users, err := s.history.ActiveUsers(ctx, since)
	if err != nil {
		return 0, fmt.Errorf("list active users: %w", err)
	}

	refreshed := 0
	for _, u := range users {
		if err := ctx.Err(); err != nil {
			return refreshed, err
		}
		if _, err := s.Recompute(ctx, u); err != nil {
			s.logger.Warn().Err(err).Str("user_id", u).Msg("taste refresh failed")
			continue
		}
		refreshed++
	}

	s.logger.Info().Int("users", len(users)).Int("refreshed", refreshed).Msg("taste refresh complete")
	return refreshed, nil
}
