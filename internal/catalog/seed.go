// Cadence - Track Similarity and Taste Clustering Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cadence

package catalog

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/tomtom215/cadence/internal/similarity"
)

// SeedConfig sizes a generated demo catalog.
type SeedConfig struct {
	Tracks     int
	Users      int
	Dimensions int
	PlaysEach  int
	Seed       int64
}

// DefaultSeedConfig returns a small demo catalog.
func DefaultSeedConfig() SeedConfig {
	return SeedConfig{Tracks: 200, Users: 5, Dimensions: 16, PlaysEach: 40, Seed: 1}
}

var demoGenres = []struct {
	genre  string
	mood   string
	energy float64
}{
	{"rock", "driving", 0.8},
	{"jazz", "smooth", 0.3},
	{"electronic", "euphoric", 0.9},
	{"folk", "wistful", 0.35},
	{"hip hop", "confident", 0.7},
}

// SeedDemo fills the catalog with generated tracks grouped by genre, each
// group sharing an embedding centroid, plus listening history for demo users.
func SeedDemo(ctx context.Context, s *Store, cfg SeedConfig) error {
	rng := rand.New(rand.NewSource(cfg.Seed)) //nolint:gosec // deterministic demo data

	centroids := make([][]float64, len(demoGenres))
	for g := range centroids {
		c := make([]float64, cfg.Dimensions)
		for d := range c {
			c[d] = rng.NormFloat64()
		}
		centroids[g] = c
	}

	ids := make([]string, cfg.Tracks)
	for i := 0; i < cfg.Tracks; i++ {
		g := i % len(demoGenres)
		profile := demoGenres[g]

		emb := make([]float64, cfg.Dimensions)
		for d := range emb {
			emb[d] = centroids[g][d] + rng.NormFloat64()*0.3
		}
		id := fmt.Sprintf("trk-%04d", i)
		ids[i] = id

		t := &Track{
			ID:         id,
			Title:      fmt.Sprintf("Demo Track %d", i),
			Artist:     fmt.Sprintf("Demo Artist %d", i%17),
			Album:      fmt.Sprintf("Demo Album %d", i%31),
			DurationMs: int64(150000 + rng.Intn(150000)),
			FilePath:   fmt.Sprintf("/music/demo/%s.flac", id),
			Format:     "flac",
			Embedding:  emb,
			Acoustic: &similarity.AcousticFeatures{
				BPM:          80 + rng.Float64()*80,
				Energy:       clamp(profile.energy + rng.NormFloat64()*0.1),
				Valence:      rng.Float64(),
				Danceability: rng.Float64(),
			},
			Genres: []string{profile.genre},
			Moods:  []string{profile.mood},
		}
		if err := s.UpsertTrack(ctx, t); err != nil {
			return err
		}
	}

	if len(ids) == 0 {
		return nil
	}
	now := time.Now().UTC()
	for u := 0; u < cfg.Users; u++ {
		user := fmt.Sprintf("user-%d", u+1)
		// Each user favours two genres.
		favourites := []int{u % len(demoGenres), (u + 2) % len(demoGenres)}
		for p := 0; p < cfg.PlaysEach; p++ {
			g := favourites[p%2]
			idx := g + len(demoGenres)*rng.Intn(max(1, cfg.Tracks/len(demoGenres)))
			if idx >= len(ids) {
				idx %= len(ids)
			}
			at := now.Add(-time.Duration(p) * 7 * time.Minute)
			if err := s.RecordPlay(ctx, user, ids[idx], at); err != nil {
				return err
			}
		}
	}

	s.logger.Info().Int("tracks", cfg.Tracks).Int("users", cfg.Users).Msg("demo catalog seeded")
	return nil
}

func clamp(x float64) float64 {
	if x < 0 {
		return 0
	}
	if x > 1 {
		return 1
	}
	return x
}
