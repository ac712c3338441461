// Cadence - Track Similarity and Taste Clustering Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cadence

package taste

import (
	"fmt"
	"sort"
)

// Config holds taste clustering configuration.
type Config struct {
	// CandidateKs are the cluster counts tried. Default: {2, 3, 4}
	CandidateKs []int

	// ValidityThreshold is the silhouette a clustering must exceed to be
	// accepted over the single general cluster. Default: 0.25
	ValidityThreshold float64

	// Seed drives centroid initialisation. Run k uses Seed+k.
	Seed int64

	// MaxIterations bounds Lloyd iterations per run. Default: 100
	MaxIterations int

	// MinPointsPerCluster gates each k: it is only tried with at least
	// k*MinPointsPerCluster distinct points. Default: 2
	MinPointsPerCluster int
}

// DefaultConfig returns the default clustering configuration.
func DefaultConfig() Config {
	return Config{
		CandidateKs:         []int{2, 3, 4},
		ValidityThreshold:   0.25,
		Seed:                42,
		MaxIterations:       100,
		MinPointsPerCluster: 2,
	}
}

// Validate checks the configuration for consistency.
func (c *Config) Validate() error {
	if len(c.CandidateKs) == 0 {
		return fmt.Errorf("candidate_ks must not be empty")
	}
	for _, k := range c.CandidateKs {
		if k < 2 {
			return fmt.Errorf("candidate_ks entries must be >= 2, got %d", k)
		}
	}
	if c.ValidityThreshold < -1 || c.ValidityThreshold >= 1 {
		return fmt.Errorf("validity_threshold must be in [-1, 1)")
	}
	if c.MaxIterations < 1 {
		return fmt.Errorf("max_iterations must be at least 1")
	}
	if c.MinPointsPerCluster < 1 {
		return fmt.Errorf("min_points_per_cluster must be at least 1")
	}
	return nil
}

// sortedKs returns the distinct candidate counts in ascending order.
func (c *Config) sortedKs() []int {
	seen := make(map[int]bool, len(c.CandidateKs))
	ks := make([]int, 0, len(c.CandidateKs))
	for _, k := range c.CandidateKs {
		if !seen[k] {
			seen[k] = true
			ks = append(ks, k)
		}
	}
	sort.Ints(ks)
	return ks
}
