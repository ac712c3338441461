// Cadence - Track Similarity and Taste Clustering Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cadence

// Package catalog is the DuckDB-backed track catalog. It serves track
// features to the similarity engine, metadata to the prefetch predictor
// and listening history to both taste clustering and prefetch exclusion.
package catalog

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	_ "github.com/duckdb/duckdb-go/v2"
	"github.com/rs/zerolog"
)

// Config configures the catalog database.
type Config struct {
	// Path of the DuckDB file. Empty or ":memory:" opens an in-memory database.
	Path string

	// MaxOpenConns bounds the connection pool. Default: number of CPUs
	MaxOpenConns int

	// Threads sets DuckDB's worker threads. 0 leaves DuckDB's default.
	Threads int
}

// Store is the catalog. It is safe for concurrent use.
type Store struct {
	conn   *sql.DB
	logger zerolog.Logger
}

// Open opens (or creates) the catalog database and its schema.
//
//nolint:gocritic // logger passed by value is acceptable for zerolog
func Open(cfg Config, logger zerolog.Logger) (*Store, error) {
	path := cfg.Path
	if path == ":memory:" {
		path = ""
	}
	if path != "" {
		dir := filepath.Dir(path)
		if dir != "" && dir != "." {
			if err := os.MkdirAll(dir, 0o750); err != nil {
				return nil, fmt.Errorf("failed to create database directory %s: %w", dir, err)
			}
		}
	}

	conn, err := sql.Open("duckdb", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	maxConns := cfg.MaxOpenConns
	if maxConns <= 0 {
		maxConns = runtime.NumCPU()
	}
	conn.SetMaxOpenConns(maxConns)
	conn.SetMaxIdleConns(2)
	conn.SetConnMaxLifetime(time.Hour)
	conn.SetConnMaxIdleTime(5 * time.Minute)

	s := &Store{conn: conn, logger: logger.With().Str("component", "catalog").Logger()}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if cfg.Threads > 0 {
		if _, err := conn.ExecContext(ctx, fmt.Sprintf("SET threads TO %d", cfg.Threads)); err != nil {
			closeQuietly(conn)
			return nil, fmt.Errorf("failed to set threads: %w", err)
		}
	}
	if err := s.createSchema(ctx); err != nil {
		closeQuietly(conn)
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	s.logger.Info().Str("path", cfg.Path).Int("max_open_conns", maxConns).Msg("catalog opened")
	return s, nil
}

// Close checkpoints and closes the database.
func (s *Store) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if _, err := s.conn.ExecContext(ctx, "CHECKPOINT"); err != nil {
		s.logger.Warn().Err(err).Msg("failed to checkpoint catalog before close")
	}
	return s.conn.Close()
}

// Ping checks the database connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.conn.PingContext(ctx)
}

func (s *Store) createSchema(ctx context.Context) error {
	for _, q := range schemaQueries {
		if _, err := s.conn.ExecContext(ctx, q); err != nil {
			return fmt.Errorf("schema query failed: %w", err)
		}
	}
	return nil
}

var schemaQueries = []string{
	`CREATE TABLE IF NOT EXISTS tracks (
		id VARCHAR PRIMARY KEY,
		title VARCHAR NOT NULL DEFAULT '',
		artist VARCHAR NOT NULL DEFAULT '',
		album VARCHAR NOT NULL DEFAULT '',
		duration_ms BIGINT NOT NULL DEFAULT 0,
		file_path VARCHAR NOT NULL DEFAULT '',
		format VARCHAR NOT NULL DEFAULT '',
		embedding DOUBLE[],
		bpm DOUBLE,
		energy DOUBLE,
		valence DOUBLE,
		danceability DOUBLE,
		updated_at TIMESTAMP NOT NULL DEFAULT current_timestamp
	)`,
	`CREATE TABLE IF NOT EXISTS track_tags (
		track_id VARCHAR NOT NULL,
		kind VARCHAR NOT NULL,
		value VARCHAR NOT NULL,
		tag_key VARCHAR NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS plays (
		user_id VARCHAR NOT NULL,
		track_id VARCHAR NOT NULL,
		played_at TIMESTAMP NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS queue_items (
		user_id VARCHAR NOT NULL,
		position INTEGER NOT NULL,
		track_id VARCHAR NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_track_tags_key ON track_tags (tag_key)`,
	`CREATE INDEX IF NOT EXISTS idx_track_tags_track ON track_tags (track_id)`,
	`CREATE INDEX IF NOT EXISTS idx_plays_user ON plays (user_id, played_at)`,
}

// placeholders returns "?, ?, ?" for n parameters.
func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

func stringArgs(values []string) []interface{} {
	args := make([]interface{}, len(values))
	for i, v := range values {
		args[i] = v
	}
	return args
}

func closeQuietly(closer io.Closer) {
	if closer != nil {
		_ = closer.Close()
	}
}
