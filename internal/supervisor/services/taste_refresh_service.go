// Cadence - Track Similarity and Taste Clustering Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cadence

package services

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// TasteRefresher recomputes taste profiles for users active since a point in time.
type TasteRefresher interface {
	RefreshActive(ctx context.Context, since time.Time) (int, error)
}

// TasteRefreshConfig holds configuration for the taste refresh service.
type TasteRefreshConfig struct {
	// Interval is how often active users are re-clustered. Default: 6h
	Interval time.Duration

	// RunOnStartup refreshes users active in the last Interval at startup.
	RunOnStartup bool

	// Timeout bounds a single refresh pass. Default: 30m
	Timeout time.Duration
}

// TasteRefreshService periodically recomputes the taste clusters of users
// who played something since the previous pass.
type TasteRefreshService struct {
	refresher TasteRefresher
	config    TasteRefreshConfig
	logger    zerolog.Logger
	name      string
	now       func() time.Time

	mu      sync.Mutex
	lastRun time.Time
}

// NewTasteRefreshService creates a new taste refresh service.
//
//nolint:gocritic // logger passed by value is acceptable for zerolog
func NewTasteRefreshService(refresher TasteRefresher, cfg TasteRefreshConfig, logger zerolog.Logger) *TasteRefreshService {
	if cfg.Interval <= 0 {
		cfg.Interval = 6 * time.Hour
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Minute
	}
	return &TasteRefreshService{
		refresher: refresher,
		config:    cfg,
		logger:    logger.With().Str("service", "taste-refresh").Logger(),
		name:      "taste-refresh-service",
		now:       time.Now,
	}
}

// Serve implements suture.Service.
func (s *TasteRefreshService) Serve(ctx context.Context) error {
	s.logger.Info().
		Bool("run_on_startup", s.config.RunOnStartup).
		Dur("interval", s.config.Interval).
		Msg("taste refresh service starting")

	if s.config.RunOnStartup {
		if err := s.refresh(ctx); err != nil {
			s.logger.Warn().Err(err).Msg("startup refresh failed (will retry on schedule)")
		}
	}

	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info().Msg("taste refresh service shutting down")
			return ctx.Err()

		case <-ticker.C:
			if err := s.refresh(ctx); err != nil {
				s.logger.Warn().Err(err).Msg("scheduled refresh failed")
			}
		}
	}
}

// since returns the activity cutoff for the next pass.
func (s *TasteRefreshService) since() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lastRun.IsZero() {
		return s.now().Add(-s.config.Interval)
	}
	return s.lastRun
}

func (s *TasteRefreshService) refresh(ctx context.Context) error {
	runCtx, cancel := context.WithTimeout(ctx, s.config.Timeout)
	defer cancel()

	started := s.now()
	since := s.since()

	n, err := s.refresher.RefreshActive(runCtx, since)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.lastRun = started
	s.mu.Unlock()

	s.logger.Info().
		Int("users", n).
		Time("since", since).
		Dur("duration", s.now().Sub(started)).
		Msg("taste refresh complete")
	return nil
}

// LastRun returns the start time of the last successful pass.
func (s *TasteRefreshService) LastRun() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastRun
}

// String returns the service name for logging.
func (s *TasteRefreshService) String() string {
	return s.name
}
