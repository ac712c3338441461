// Cadence - Track Similarity and Taste Clustering Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cadence

package main

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/tomtom215/cadence/internal/catalog"
	"github.com/tomtom215/cadence/internal/config"
	"github.com/tomtom215/cadence/internal/prefetch"
	"github.com/tomtom215/cadence/internal/supervisor/services"
	"github.com/tomtom215/cadence/internal/taste"
)

// TasteComponents holds the clustering stack. Pool and Refresh are
// supervised by the batch layer.
type TasteComponents struct {
	Engine  *taste.Engine
	Pool    *taste.Pool
	Service *taste.Service
	Refresh *services.TasteRefreshService
}

// initTaste builds the clustering engine, worker pool, service and refresh loop.
//
//nolint:gocritic // logger passed by value is acceptable for zerolog
func initTaste(cfg *config.Config, store *catalog.Store, sim *SimilarityComponents, logger zerolog.Logger) (*TasteComponents, error) {
	engine, err := taste.NewEngine(buildTasteConfig(cfg), logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create clustering engine: %w", err)
	}

	pool := taste.NewPool(taste.PoolConfig{
		Workers:   cfg.Clustering.Workers,
		QueueSize: cfg.Clustering.QueueSize,
	}, logger)

	svc, err := taste.NewService(taste.ServiceDeps{
		Engine:   engine,
		History:  store,
		Features: store,
		Similar:  sim.Cache,
		Backend:  sim.Backend,
		Runner:   pool,
	}, buildTasteServiceConfig(cfg), logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create taste service: %w", err)
	}

	refresh := services.NewTasteRefreshService(svc, services.TasteRefreshConfig{
		Interval:     cfg.Clustering.RefreshInterval,
		RunOnStartup: cfg.Clustering.RefreshOnStartup,
	}, logger)

	logger.Info().
		Ints("candidate_ks", cfg.Clustering.CandidateKs).
		Int("workers", cfg.Clustering.Workers).
		Dur("refresh_interval", cfg.Clustering.RefreshInterval).
		Msg("Taste clustering initialized")

	return &TasteComponents{Engine: engine, Pool: pool, Service: svc, Refresh: refresh}, nil
}

// buildTasteConfig maps application config to the clustering engine.
func buildTasteConfig(cfg *config.Config) taste.Config {
	c := cfg.Clustering
	ks := make([]int, len(c.CandidateKs))
	copy(ks, c.CandidateKs)
	return taste.Config{
		CandidateKs:         ks,
		ValidityThreshold:   c.ValidityThreshold,
		Seed:                c.Seed,
		MaxIterations:       c.MaxIterations,
		MinPointsPerCluster: c.MinPointsPerCluster,
	}
}

func buildTasteServiceConfig(cfg *config.Config) taste.ServiceConfig {
	return taste.ServiceConfig{
		HistoryLimit: cfg.Clustering.HistoryLimit,
		CacheTTL:     cfg.Clustering.CacheTTL,
	}
}

// initPrefetch builds the next-track predictor.
//
//nolint:gocritic // logger passed by value is acceptable for zerolog
func initPrefetch(cfg *config.Config, store *catalog.Store, sim *SimilarityComponents, logger zerolog.Logger) *prefetch.Predictor {
	return prefetch.NewPredictor(sim.Cache, store, store, sim.Backend, prefetch.Config{
		DefaultCount: cfg.Prefetch.DefaultCount,
		TTL:          cfg.Prefetch.TTL,
		RecentWindow: cfg.Prefetch.RecentWindow,
	}, logger)
}
