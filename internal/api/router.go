// Cadence - Track Similarity and Taste Clustering Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cadence

// Package api exposes the similarity, taste and prefetch services over HTTP
// using the chi router.
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tomtom215/cadence/internal/logging"
	"github.com/tomtom215/cadence/internal/middleware"
)

// RouterConfig holds the cross-cutting HTTP settings.
type RouterConfig struct {
	// CORSAllowedOrigins empty disables CORS.
	CORSAllowedOrigins []string

	RateLimitRequests int
	RateLimitWindow   time.Duration
	RateLimitDisabled bool
}

// DefaultRouterConfig returns 300 requests per minute per IP and no CORS.
func DefaultRouterConfig() RouterConfig {
	return RouterConfig{
		RateLimitRequests: 300,
		RateLimitWindow:   time.Minute,
	}
}

// NewRouter builds the HTTP handler.
//
//	GET    /healthz
//	GET    /metrics
//	GET    /api/v1/tracks/{id}/similar
//	DELETE /api/v1/tracks/{id}/similar
//	GET    /api/v1/users/{id}/taste
//	GET    /api/v1/users/{id}/taste/{cluster}/playlist
//	POST   /api/v1/users/{id}/prefetch
//	GET    /api/v1/users/{id}/prefetch/{track}
func NewRouter(h *Handler, cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.AccessLog)
	r.Use(chimiddleware.Recoverer)
	if len(cfg.CORSAllowedOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: cfg.CORSAllowedOrigins,
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
			AllowedHeaders: []string{"Content-Type", middleware.RequestIDHeader},
			ExposedHeaders: []string{middleware.RequestIDHeader, "Retry-After"},
			MaxAge:         86400,
		}))
	}

	r.Get("/healthz", h.Health)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		if !cfg.RateLimitDisabled {
			r.Use(httprate.Limit(
				cfg.RateLimitRequests,
				cfg.RateLimitWindow,
				httprate.WithKeyFuncs(httprate.KeyByIP),
				httprate.WithLimitHandler(rateLimited),
			))
		}
		r.Use(middleware.PrometheusMetrics)

		r.Get("/tracks/{id}/similar", h.SimilarTracks)
		r.Delete("/tracks/{id}/similar", h.InvalidateSimilar)

		r.Route("/users/{id}", func(r chi.Router) {
			r.Get("/taste", h.UserTaste)
			r.Get("/taste/{cluster}/playlist", h.ClusterPlaylist)
			r.Post("/prefetch", h.Prefetch)
			r.Get("/prefetch/{track}", h.Prefetched)
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		respondJSON(w, http.StatusNotFound, &APIResponse{
			Error: &APIError{
				Code:      CodeNotFound,
				Message:   "no such endpoint",
				RequestID: logging.RequestIDFromContext(r.Context()),
			},
			Meta: Meta{Timestamp: time.Now().UTC()},
		})
	})
	return r
}

func rateLimited(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusTooManyRequests, &APIResponse{
		Error: &APIError{
			Code:      CodeRateLimited,
			Message:   "too many requests",
			RequestID: logging.RequestIDFromContext(r.Context()),
		},
		Meta: Meta{Timestamp: time.Now().UTC()},
	})
}
