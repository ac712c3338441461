// Cadence - Track Similarity and Taste Clustering Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cadence

package similarity

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/tomtom215/cadence/internal/metrics"
)

// Store is the catalog access the engine needs. Both calls address tracks by
// ID; the engine never asks for a full catalog scan.
type Store interface {
	// GetFeatures returns the feature records for ids. Unknown IDs are absent
	// from the map rather than an error.
	GetFeatures(ctx context.Context, ids []string) (map[string]*TrackFeatures, error)

	// CandidateIDs returns up to max candidate track IDs worth scoring against ref.
	CandidateIDs(ctx context.Context, ref *TrackFeatures, max int) ([]string, error)
}

// Querier is implemented by Engine and Cache.
type Querier interface {
	Similar(ctx context.Context, req Request) (*Result, error)
}

// Engine ranks catalog tracks by similarity to a reference track.
//
// The engine holds no per-request state; concurrent calls only share the
// store handle and the slot semaphore.
type Engine struct {
	config   Config
	store    Store
	logger   zerolog.Logger
	slots    *semaphore.Weighted
	acoustic acousticScorer
}

// NewEngine creates a query engine over store.
//
//nolint:gocritic // hugeParam: logger passed by value for zerolog chaining
func NewEngine(cfg Config, store Store, logger zerolog.Logger) (*Engine, error) {
	if store == nil {
		return nil, fmt.Errorf("similarity store is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &Engine{
		config:   cfg,
		store:    store,
		logger:   logger.With().Str("component", "similarity").Logger(),
		slots:    semaphore.NewWeighted(int64(cfg.MaxConcurrent)),
		acoustic: acousticScorer{bpmMin: cfg.BPMMin, bpmMax: cfg.BPMMax},
	}, nil
}

// Config returns the engine configuration.
func (e *Engine) Config() Config {
	return e.config
}

// SimilarBySemantic ranks candidates by embedding cosine similarity.
func (e *Engine) SimilarBySemantic(ctx context.Context, trackID string, limit int) (*Result, error) {
	return e.Similar(ctx, Request{TrackID: trackID, Method: MethodSemantic, Limit: limit})
}

// SimilarByAcoustic ranks candidates by distance over the acoustic features.
func (e *Engine) SimilarByAcoustic(ctx context.Context, trackID string, limit int) (*Result, error) {
	return e.Similar(ctx, Request{TrackID: trackID, Method: MethodAcoustic, Limit: limit})
}

// SimilarByCategorical ranks candidates by genre and mood tag overlap.
func (e *Engine) SimilarByCategorical(ctx context.Context, trackID string, limit int) (*Result, error) {
	return e.Similar(ctx, Request{TrackID: trackID, Method: MethodCategorical, Limit: limit})
}

// SimilarCombined ranks candidates by the weighted sum of all three signals.
// A nil weights pointer selects the configured defaults.
func (e *Engine) SimilarCombined(ctx context.Context, trackID string, limit int, weights *Weights) (*Result, error) {
	return e.Similar(ctx, Request{TrackID: trackID, Method: MethodCombined, Limit: limit, Weights: weights})
}

// Normalize validates req and returns it with the limit clamped and, for the
// combined method, the weights resolved.
func (e *Engine) Normalize(req Request) (Request, error) {
	if req.TrackID == "" {
		return req, fmt.Errorf("%w: empty track id", ErrTrackNotFound)
	}
	if !req.Method.Valid() {
		return req, fmt.Errorf("%w: %d", ErrInvalidMethod, int(req.Method))
	}
	if req.Limit <= 0 {
		return req, fmt.Errorf("%w: %d", ErrInvalidLimit, req.Limit)
	}
	if req.Limit > e.config.MaxResults {
		req.Limit = e.config.MaxResults
	}

	if req.Method != MethodCombined {
		req.Weights = nil
		return req, nil
	}
	w := e.config.Weights
	if req.Weights != nil {
		w = *req.Weights
	}
	if err := w.Validate(); err != nil {
		return req, err
	}
	req.Weights = &w
	return req, nil
}

// Similar dispatches req to the scorer for its method.
func (e *Engine) Similar(ctx context.Context, req Request) (*Result, error) {
	start := time.Now()

	req, err := e.Normalize(req)
	if err != nil {
		metrics.RecordSimilarityQuery(req.Method.String(), "invalid", time.Since(start))
		return nil, err
	}

	result, err := e.query(ctx, req)
	metrics.RecordSimilarityQuery(req.Method.String(), outcome(err), time.Since(start))
	if err != nil {
		e.logger.Debug().Err(err).
			Str("track_id", req.TrackID).
			Str("method", req.Method.String()).
			Msg("similarity query failed")
		return nil, err
	}
	return result, nil
}

func (e *Engine) query(ctx context.Context, req Request) (*Result, error) {
	ctx, cancel := context.WithTimeout(ctx, e.config.QueryTimeout)
	defer cancel()

	if err := e.slots.Acquire(ctx, 1); err != nil {
		return nil, e.classify(ctx, err)
	}
	metrics.SimilarityQueriesInFlight.Inc()
	defer func() {
		metrics.SimilarityQueriesInFlight.Dec()
		e.slots.Release(1)
	}()

	ref, candidates, err := e.load(ctx, req.TrackID)
	if err != nil {
		return nil, err
	}

	var scored map[string]float64
	switch req.Method {
	case MethodSemantic:
		scored, err = e.scoreSemantic(ctx, ref, candidates)
	case MethodAcoustic:
		scored, err = e.scoreAcoustic(ctx, ref, candidates)
	case MethodCategorical:
		scored, err = e.scoreCategorical(ctx, ref, candidates)
	case MethodCombined:
		scored, err = e.scoreCombined(ctx, ref, candidates, *req.Weights)
	}
	if err != nil {
		return nil, e.classify(ctx, err)
	}
	if err := ctx.Err(); err != nil {
		return nil, e.classify(ctx, err)
	}

	return &Result{
		TrackID: req.TrackID,
		Method:  req.Method,
		Limit:   req.Limit,
		Weights: req.Weights,
		Items:   rank(scored, req.Method, req.Limit),
	}, nil
}

// load fetches the reference record and its candidate pool, excluding the
// reference itself. Candidates are returned in the order the store listed them.
func (e *Engine) load(ctx context.Context, trackID string) (*TrackFeatures, []*TrackFeatures, error) {
	refs, err := e.store.GetFeatures(ctx, []string{trackID})
	if err != nil {
		return nil, nil, e.classify(ctx, err)
	}
	ref, ok := refs[trackID]
	if !ok || ref == nil {
		return nil, nil, fmt.Errorf("%w: %s", ErrTrackNotFound, trackID)
	}

	ids, err := e.store.CandidateIDs(ctx, ref, e.config.MaxCandidates)
	if err != nil {
		return nil, nil, e.classify(ctx, err)
	}
	seen := make(map[string]struct{}, len(ids))
	filtered := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == trackID {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		filtered = append(filtered, id)
		if len(filtered) == e.config.MaxCandidates {
			break
		}
	}
	if len(filtered) == 0 {
		return ref, nil, nil
	}

	feats, err := e.store.GetFeatures(ctx, filtered)
	if err != nil {
		return nil, nil, e.classify(ctx, err)
	}
	candidates := make([]*TrackFeatures, 0, len(filtered))
	for _, id := range filtered {
		if f, ok := feats[id]; ok && f != nil {
			candidates = append(candidates, f)
		}
	}
	return ref, candidates, nil
}

func (e *Engine) scoreSemantic(ctx context.Context, ref *TrackFeatures, candidates []*TrackFeatures) (map[string]float64, error) {
	scores := make(map[string]float64, len(candidates))
	if len(ref.Embedding) == 0 {
		return scores, nil
	}
	for i, c := range candidates {
		if i%256 == 0 && ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if len(c.Embedding) == 0 {
			continue
		}
		s, err := semanticScore(ref.Embedding, c.Embedding)
		if err != nil {
			return nil, fmt.Errorf("track %s: %w", c.ID, err)
		}
		scores[c.ID] = s
	}
	return scores, nil
}

func (e *Engine) scoreAcoustic(ctx context.Context, ref *TrackFeatures, candidates []*TrackFeatures) (map[string]float64, error) {
	scores := make(map[string]float64, len(candidates))
	if ref.Acoustic == nil {
		return scores, nil
	}
	for i, c := range candidates {
		if i%256 == 0 && ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if s, ok := e.acoustic.score(ref.Acoustic, c.Acoustic); ok {
			scores[c.ID] = s
		}
	}
	return scores, nil
}

func (e *Engine) scoreCategorical(ctx context.Context, ref *TrackFeatures, candidates []*TrackFeatures) (map[string]float64, error) {
	scores := make(map[string]float64, len(candidates))
	refTags := tagSet(ref)
	for i, c := range candidates {
		if i%256 == 0 && ctx.Err() != nil {
			return nil, ctx.Err()
		}
		scores[c.ID] = jaccard(refTags, tagSet(c))
	}
	return scores, nil
}

// scoreCombined computes the three signals over the whole pool in parallel
// and folds them with Combine before any truncation.
func (e *Engine) scoreCombined(ctx context.Context, ref *TrackFeatures, candidates []*TrackFeatures, w Weights) (map[string]float64, error) {
	var semantic, acoustic, categorical map[string]float64

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		semantic, err = e.scoreSemantic(gctx, ref, candidates)
		return err
	})
	g.Go(func() (err error) {
		acoustic, err = e.scoreAcoustic(gctx, ref, candidates)
		return err
	})
	g.Go(func() (err error) {
		categorical, err = e.scoreCategorical(gctx, ref, candidates)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	scores := make(map[string]float64, len(candidates))
	for _, c := range candidates {
		scores[c.ID] = Combine(Signals{
			Semantic:    lookup(semantic, c.ID),
			Acoustic:    lookup(acoustic, c.ID),
			Categorical: lookup(categorical, c.ID),
		}, w)
	}
	return scores, nil
}

func lookup(scores map[string]float64, id string) Signal {
	if v, ok := scores[id]; ok {
		return Score(v)
	}
	return Signal{}
}

// rank orders scores descending with ties broken by track ID and keeps the top limit.
func rank(scores map[string]float64, method Method, limit int) []Match {
	items := make([]Match, 0, len(scores))
	for id, s := range scores {
		items = append(items, Match{TrackID: id, Score: s, Method: method})
	}
	sort.Slice(items, func(i, j int) bool {
		if items[i].Score != items[j].Score {
			return items[i].Score > items[j].Score
		}
		return items[i].TrackID < items[j].TrackID
	})
	if len(items) > limit {
		items = items[:limit]
	}
	return items
}

// classify maps store and context failures onto the engine's error kinds.
func (e *Engine) classify(ctx context.Context, err error) error {
	switch {
	case errors.Is(err, ErrTrackNotFound),
		errors.Is(err, ErrDimensionMismatch),
		errors.Is(err, ErrQueryTimeout),
		errors.Is(err, ErrStoreUnavailable):
		return err
	case errors.Is(err, context.DeadlineExceeded),
		errors.Is(ctx.Err(), context.DeadlineExceeded):
		return fmt.Errorf("%w after %s", ErrQueryTimeout, e.config.QueryTimeout)
	case errors.Is(err, context.Canceled):
		return err
	default:
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, ErrTrackNotFound):
		return "not_found"
	case errors.Is(err, ErrQueryTimeout):
		return "timeout"
	case errors.Is(err, ErrDimensionMismatch):
		return "dimension_mismatch"
	case errors.Is(err, context.Canceled):
		return "canceled"
	default:
		return "error"
	}
}
