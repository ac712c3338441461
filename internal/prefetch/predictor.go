// Cadence - Track Similarity and Taste Clustering Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cadence

package prefetch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"github.com/tomtom215/cadence/internal/cache"
	"github.com/tomtom215/cadence/internal/metrics"
	"github.com/tomtom215/cadence/internal/similarity"
)

// MetadataStore hydrates track metadata. Unknown IDs are omitted.
type MetadataStore interface {
	GetMetadata(ctx context.Context, ids []string) (map[string]*TrackMetadata, error)
}

// HistoryProvider supplies the exclusion sets for autoplay and the stored
// queue for queue mode.
type HistoryProvider interface {
	// RecentTrackIDs returns up to limit recently played track IDs, newest first.
	RecentTrackIDs(ctx context.Context, userID string, limit int) ([]string, error)

	// QueuedTrackIDs returns the user's stored queue in play order.
	QueuedTrackIDs(ctx context.Context, userID string) ([]string, error)
}

// Config configures the predictor.
type Config struct {
	// DefaultCount applies when a request asks for <= 0 tracks. Default: 5
	DefaultCount int

	// TTL of a staged entry, independent of the similarity cache. Default: 30m
	TTL time.Duration

	// RecentWindow is how many recent plays are excluded. Default: 50
	RecentWindow int
}

// DefaultConfig returns the default predictor configuration.
func DefaultConfig() Config {
	return Config{
		DefaultCount: 5,
		TTL:          30 * time.Minute,
		RecentWindow: 50,
	}
}

// Predictor produces and stages prefetch entries.
type Predictor struct {
	similar  similarity.Querier
	metadata MetadataStore
	history  HistoryProvider
	backend  cache.Backend
	config   Config
	now      func() time.Time
	logger   zerolog.Logger
}

// NewPredictor creates a predictor. backend may be nil, in which case
// entries are returned but not staged.
//
//nolint:gocritic // logger passed by value is acceptable for zerolog
func NewPredictor(similar similarity.Querier, metadata MetadataStore, history HistoryProvider, backend cache.Backend, cfg Config, logger zerolog.Logger) *Predictor {
	def := DefaultConfig()
	if cfg.DefaultCount <= 0 {
		cfg.DefaultCount = def.DefaultCount
	}
	if cfg.TTL <= 0 {
		cfg.TTL = def.TTL
	}
	if cfg.RecentWindow < 0 {
		cfg.RecentWindow = 0
	}
	return &Predictor{
		similar:  similar,
		metadata: metadata,
		history:  history,
		backend:  backend,
		config:   cfg,
		now:      time.Now,
		logger:   logger.With().Str("component", "prefetch").Logger(),
	}
}

// CacheKey returns the staging key for a user and anchor track.
func CacheKey(userID, anchorTrackID string) string {
	return fmt.Sprintf("prefetch:%s:%s", userID, anchorTrackID)
}

// PredictNext predicts and stages the tracks to play after
// req.CurrentTrackID.
func (p *Predictor) PredictNext(ctx context.Context, req Request) (*Entry, error) {
	if req.UserID == "" || req.CurrentTrackID == "" {
		return nil, fmt.Errorf("%w: user and current track are required", ErrInvalidRequest)
	}
	count := req.Count
	if count <= 0 {
		count = p.config.DefaultCount
	}
	if count > similarity.MaxResults {
		count = similarity.MaxResults
	}

	var (
		tracks []Track
		err    error
	)
	switch req.Mode {
	case ModeAutoplay:
		tracks, err = p.autoplay(ctx, req, count)
	case ModeQueue:
		tracks, err = p.queue(ctx, req, count)
	default:
		err = fmt.Errorf("%w: unknown mode %d", ErrInvalidRequest, int(req.Mode))
	}
	if err != nil {
		metrics.RecordPrefetch(req.Mode.String(), "error", 0)
		return nil, err
	}

	now := p.now()
	entry := &Entry{
		UserID:        req.UserID,
		AnchorTrackID: req.CurrentTrackID,
		Mode:          req.Mode,
		Tracks:        tracks,
		CreatedAt:     now,
		ExpiresAt:     now.Add(p.config.TTL),
	}
	p.stage(ctx, entry)

	metrics.RecordPrefetch(req.Mode.String(), "success", len(tracks))
	p.logger.Debug().
		Str("user_id", req.UserID).
		Str("anchor", req.CurrentTrackID).
		Stringer("mode", req.Mode).
		Int("tracks", len(tracks)).
		Msg("prefetch predicted")
	return entry, nil
}

func (p *Predictor) autoplay(ctx context.Context, req Request, count int) ([]Track, error) {
	excluded := p.exclusions(ctx, req)

	limit := count + len(excluded)
	if limit > similarity.MaxResults {
		limit = similarity.MaxResults
	}
	res, err := p.similar.Similar(ctx, similarity.Request{
		TrackID: req.CurrentTrackID,
		Method:  similarity.MethodCombined,
		Limit:   limit,
	})
	if err != nil {
		return nil, err
	}

	picked := make([]similarity.Match, 0, count)
	for _, m := range res.Items {
		if excluded[m.TrackID] {
			continue
		}
		picked = append(picked, m)
		if len(picked) == count {
			break
		}
	}

	ids := make([]string, len(picked))
	for i, m := range picked {
		ids[i] = m.TrackID
	}
	meta, err := p.hydrate(ctx, ids)
	if err != nil {
		return nil, err
	}

	tracks := make([]Track, 0, len(picked))
	for _, m := range picked {
		md, ok := meta[m.TrackID]
		if !ok {
			p.logger.Debug().Str("track_id", m.TrackID).Msg("no metadata for predicted track")
			continue
		}
		tracks = append(tracks, Track{TrackMetadata: *md, Position: len(tracks), Score: m.Score})
	}
	return tracks, nil
}

// exclusions gathers the anchor, recent plays and queued tracks. Provider
// failures are logged and shrink the set rather than failing the request.
func (p *Predictor) exclusions(ctx context.Context, req Request) map[string]bool {
	excluded := map[string]bool{req.CurrentTrackID: true}
	for _, id := range req.QueueTrackIDs {
		excluded[id] = true
	}
	if p.history == nil {
		return excluded
	}

	if p.config.RecentWindow > 0 {
		recent, err := p.history.RecentTrackIDs(ctx, req.UserID, p.config.RecentWindow)
		if err != nil {
			p.logger.Warn().Err(err).Str("user_id", req.UserID).Msg("recent plays unavailable for exclusion")
		}
		for _, id := range recent {
			excluded[id] = true
		}
	}

	queued, err := p.history.QueuedTrackIDs(ctx, req.UserID)
	if err != nil {
		p.logger.Warn().Err(err).Str("user_id", req.UserID).Msg("queue unavailable for exclusion")
	}
	for _, id := range queued {
		excluded[id] = true
	}
	return excluded
}

func (p *Predictor) queue(ctx context.Context, req Request, count int) ([]Track, error) {
	ids := req.QueueTrackIDs
	if len(ids) == 0 && p.history != nil {
		queued, err := p.history.QueuedTrackIDs(ctx, req.UserID)
		if err != nil {
			return nil, fmt.Errorf("%w: load queue: %w", similarity.ErrStoreUnavailable, err)
		}
		ids = queued
	}

	meta, err := p.hydrate(ctx, ids)
	if err != nil {
		return nil, err
	}

	tracks := make([]Track, 0, count)
	for _, id := range ids {
		if len(tracks) == count {
			break
		}
		md, ok := meta[id]
		if !ok {
			p.logger.Warn().Str("track_id", id).Msg("skipping unknown queued track")
			continue
		}
		tracks = append(tracks, Track{TrackMetadata: *md, Position: len(tracks)})
	}
	return tracks, nil
}

func (p *Predictor) hydrate(ctx context.Context, ids []string) (map[string]*TrackMetadata, error) {
	if len(ids) == 0 {
		return map[string]*TrackMetadata{}, nil
	}
	meta, err := p.metadata.GetMetadata(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", similarity.ErrStoreUnavailable, err)
	}
	return meta, nil
}

// stage stores the entry. A failure is logged only.
func (p *Predictor) stage(ctx context.Context, e *Entry) {
	if p.backend == nil {
		return
	}
	data, err := json.Marshal(e)
	if err != nil {
		p.logger.Warn().Err(err).Msg("prefetch entry encode failed")
		return
	}
	if err := p.backend.Set(ctx, CacheKey(e.UserID, e.AnchorTrackID), data, p.config.TTL); err != nil {
		metrics.SimilarityCacheDegraded.WithLabelValues("prefetch_set").Inc()
		p.logger.Warn().Err(err).Str("user_id", e.UserID).Msg("prefetch staging failed")
	}
}

// GetPrefetched returns a staged entry or ErrNotFound.
func (p *Predictor) GetPrefetched(ctx context.Context, userID, anchorTrackID string) (*Entry, error) {
	if userID == "" || anchorTrackID == "" {
		return nil, fmt.Errorf("%w: user and anchor track are required", ErrInvalidRequest)
	}
	if p.backend == nil {
		return nil, ErrNotFound
	}
	data, err := p.backend.Get(ctx, CacheKey(userID, anchorTrackID))
	if err != nil {
		if errors.Is(err, cache.ErrCacheMiss) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	var e Entry
	if err := json.Unmarshal(data, &e); err != nil {
		p.logger.Warn().Err(err).Str("user_id", userID).Msg("discarding corrupt prefetch entry")
		return nil, ErrNotFound
	}
	return &e, nil
}
