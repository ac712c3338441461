// Cadence - Track Similarity and Taste Clustering Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cadence

package similarity

import (
	"fmt"
	"time"
)

// MaxResults is the hard upper bound on the length of any result.
const MaxResults = 100

// Config holds the query engine configuration.
type Config struct {
	// Weights is the default weighting for combined queries.
	Weights Weights

	// QueryTimeout bounds every query, including the wait for a store slot.
	QueryTimeout time.Duration

	// MaxResults clamps requested limits. Must be in [1, 100].
	MaxResults int

	// MaxCandidates bounds the candidate pool fetched per query.
	MaxCandidates int

	// MaxConcurrent bounds concurrent interactive queries against the store.
	MaxConcurrent int

	// BPMMin and BPMMax define the tempo range mapped onto [0,1].
	BPMMin float64
	BPMMax float64
}

// DefaultConfig returns the default engine configuration.
func DefaultConfig() Config {
	return Config{
		Weights:       DefaultWeights(),
		QueryTimeout:  5 * time.Second,
		MaxResults:    MaxResults,
		MaxCandidates: 1000,
		MaxConcurrent: 32,
		BPMMin:        40,
		BPMMax:        220,
	}
}

// Validate checks the configuration for consistency.
func (c *Config) Validate() error {
	if err := c.Weights.Validate(); err != nil {
		return fmt.Errorf("weights: %w", err)
	}
	if c.QueryTimeout <= 0 {
		return fmt.Errorf("query_timeout must be positive")
	}
	if c.MaxResults < 1 || c.MaxResults > MaxResults {
		return fmt.Errorf("max_results must be between 1 and %d", MaxResults)
	}
	if c.MaxCandidates < c.MaxResults {
		return fmt.Errorf("max_candidates must be at least max_results")
	}
	if c.MaxConcurrent < 1 {
		return fmt.Errorf("max_concurrent must be at least 1")
	}
	if c.BPMMax <= c.BPMMin {
		return fmt.Errorf("bpm_max must be greater than bpm_min")
	}
	return nil
}
