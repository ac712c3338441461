// Cadence - Track Similarity and Taste Clustering Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cadence

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/tomtom215/cadence/internal/api"
	"github.com/tomtom215/cadence/internal/catalog"
	"github.com/tomtom215/cadence/internal/config"
	"github.com/tomtom215/cadence/internal/logging"
	"github.com/tomtom215/cadence/internal/supervisor"
	"github.com/tomtom215/cadence/internal/supervisor/services"
)

func main() {
	seedDemo := flag.Bool("seed-demo", false, "populate an empty catalog with demo tracks and plays")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Caller: cfg.Logging.Caller,
	})
	logger := logging.Logger()

	logging.Info().
		Str("db_path", cfg.Database.Path).
		Str("cache_backend", cfg.Cache.Backend).
		Msg("Starting Cadence with supervisor tree")

	store, err := catalog.Open(buildCatalogConfig(cfg), logger)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to open catalog")
	}
	defer func() {
		if err := store.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing catalog")
		}
	}()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if *seedDemo {
		logging.Info().Msg("Seeding demo catalog")
		if err := catalog.SeedDemo(ctx, store, catalog.DefaultSeedConfig()); err != nil {
			logging.Error().Err(err).Msg("Failed to seed demo catalog")
			return
		}
	}

	sim, err := initSimilarity(cfg, store, logger)
	if err != nil {
		logging.Error().Err(err).Msg("Failed to initialize similarity")
		return
	}
	defer func() {
		if err := sim.Backend.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing cache backend")
		}
	}()

	tasteComponents, err := initTaste(cfg, store, sim, logger)
	if err != nil {
		logging.Error().Err(err).Msg("Failed to initialize taste clustering")
		return
	}

	predictor := initPrefetch(cfg, store, sim, logger)

	handler, err := api.NewHandler(api.Deps{
		Similarity: sim.Cache,
		Taste:      tasteComponents.Service,
		Prefetch:   predictor,
		Checks: map[string]api.HealthChecker{
			"catalog": store,
			"cache":   sim.Backend,
		},
	})
	if err != nil {
		logging.Error().Err(err).Msg("Failed to create API handler")
		return
	}

	if len(cfg.Server.CORSAllowedOrigins) == 1 && cfg.Server.CORSAllowedOrigins[0] == "*" {
		logging.Warn().Msg("CORS allows any origin (CORS_ALLOWED_ORIGINS=*)")
	}
	if cfg.Server.RateLimitDisabled {
		logging.Warn().Msg("Rate limiting is DISABLED (RATE_LIMIT_DISABLED=true)")
	}

	slogLogger := logging.NewSlogLogger()
	tree, err := supervisor.NewSupervisorTree(slogLogger, supervisor.TreeConfig{
		FailureThreshold: 5,
		FailureBackoff:   15 * time.Second,
		ShutdownTimeout:  cfg.Server.ShutdownTimeout,
	})
	if err != nil {
		logging.Error().Err(err).Msg("Failed to create supervisor tree")
		return
	}

	tree.AddBatchService(tasteComponents.Pool)
	tree.AddBatchService(tasteComponents.Refresh)

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      api.NewRouter(handler, buildRouterConfig(cfg)),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}
	tree.AddAPIService(services.NewHTTPServerService(server, cfg.Server.ShutdownTimeout))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logging.Info().Str("signal", sig.String()).Msg("Received shutdown signal")
		cancel()
	}()

	logging.Info().Str("addr", server.Addr).Msg("Starting supervisor tree...")
	errCh := tree.ServeBackground(ctx)

	var treeErr error
	select {
	case <-ctx.Done():
		logging.Info().Msg("Context canceled, waiting for supervisor to finish...")
		treeErr = <-errCh
	case treeErr = <-errCh:
		cancel()
	}
	if treeErr != nil && !errors.Is(treeErr, context.Canceled) {
		logging.Error().Err(treeErr).Msg("Supervisor tree error")
	}

	unstopped, _ := tree.UnstoppedServiceReport()
	if len(unstopped) > 0 {
		logging.Warn().Int("count", len(unstopped)).Msg("Services failed to stop within timeout")
		for _, svc := range unstopped {
			logging.Warn().Str("service", svc.Name).Msg("Service failed to stop")
		}
	}

	logging.Info().Msg("Server stopped gracefully")
}
