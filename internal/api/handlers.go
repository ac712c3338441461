// Cadence - Track Similarity and Taste Clustering Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cadence

package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/tomtom215/cadence/internal/prefetch"
	"github.com/tomtom215/cadence/internal/similarity"
	"github.com/tomtom215/cadence/internal/taste"
	"github.com/tomtom215/cadence/internal/validation"
)

// SimilarityService serves cached similarity lookups.
type SimilarityService interface {
	Get(ctx context.Context, req similarity.Request) (*similarity.Result, error)
	Invalidate(ctx context.Context, req similarity.Request) error
}

// TasteService serves per-user taste clusters and cluster playlists.
type TasteService interface {
	ClusterUserTaste(ctx context.Context, userID string) (*taste.Clustering, error)
	GenerateClusterPlaylist(ctx context.Context, userID string, clusterID, size int) ([]similarity.Match, error)
}

// PrefetchService predicts and stages upcoming tracks.
type PrefetchService interface {
	PredictNext(ctx context.Context, req prefetch.Request) (*prefetch.Entry, error)
	GetPrefetched(ctx context.Context, userID, anchorTrackID string) (*prefetch.Entry, error)
}

// HealthChecker is pinged by /healthz.
type HealthChecker interface {
	Ping(ctx context.Context) error
}

// Deps are the services behind the HTTP surface. All are required except
// Checks.
type Deps struct {
	Similarity SimilarityService
	Taste      TasteService
	Prefetch   PrefetchService
	Checks     map[string]HealthChecker
}

// Handler implements the HTTP endpoints.
type Handler struct {
	similar  SimilarityService
	taste    TasteService
	prefetch PrefetchService
	checks   map[string]HealthChecker
	started  time.Time
}

// defaultSimilarLimit applies when the limit parameter is absent.
const defaultSimilarLimit = 20

// NewHandler validates deps and returns a Handler.
func NewHandler(deps Deps) (*Handler, error) {
	switch {
	case deps.Similarity == nil:
		return nil, errors.New("api: similarity service is required")
	case deps.Taste == nil:
		return nil, errors.New("api: taste service is required")
	case deps.Prefetch == nil:
		return nil, errors.New("api: prefetch service is required")
	}
	return &Handler{
		similar:  deps.Similarity,
		taste:    deps.Taste,
		prefetch: deps.Prefetch,
		checks:   deps.Checks,
		started:  time.Now(),
	}, nil
}

// pathID reads a route parameter and rejects malformed identifiers.
func pathID(w http.ResponseWriter, r *http.Request, name string) (string, bool) {
	id := chi.URLParam(r, name)
	if !validation.ValidID(id) {
		respondValidation(w, r, name, name+" must be a non-empty identifier")
		return "", false
	}
	return id, true
}

// intParam parses an optional integer query parameter.
func intParam(w http.ResponseWriter, r *http.Request, name string, def int) (int, bool) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, true
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		respondValidation(w, r, name, name+" must be an integer")
		return 0, false
	}
	return v, true
}
