// Cadence - Track Similarity and Taste Clustering Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cadence

package similarity

import (
	"fmt"
	"math"
	"strconv"
)

// WeightTolerance is the allowed deviation of a weight sum from 1.0.
const WeightTolerance = 0.001

// Weights is the per-signal weighting used by the combined method.
type Weights struct {
	Semantic    float64 `json:"semantic"`
	Acoustic    float64 `json:"acoustic"`
	Categorical float64 `json:"categorical"`
}

// DefaultWeights returns the 0.5 / 0.3 / 0.2 weighting.
func DefaultWeights() Weights {
	return Weights{Semantic: 0.5, Acoustic: 0.3, Categorical: 0.2}
}

// Sum returns the total of the three weights.
func (w Weights) Sum() float64 {
	return w.Semantic + w.Acoustic + w.Categorical
}

// Validate checks that every weight is finite and non-negative and that the
// triple sums to 1.0 within WeightTolerance.
func (w Weights) Validate() error {
	checks := []struct {
		name  string
		value float64
	}{
		{"semantic", w.Semantic},
		{"acoustic", w.Acoustic},
		{"categorical", w.Categorical},
	}
	for _, c := range checks {
		if math.IsNaN(c.value) || math.IsInf(c.value, 0) {
			return fmt.Errorf("%w: %s weight is not finite", ErrInvalidWeights, c.name)
		}
		if c.value < 0 {
			return fmt.Errorf("%w: %s weight %g is negative", ErrInvalidWeights, c.name, c.value)
		}
	}
	if sum := w.Sum(); math.Abs(sum-1.0) > WeightTolerance {
		return fmt.Errorf("%w: weights sum to %g, want 1.0 +/- %g", ErrInvalidWeights, sum, WeightTolerance)
	}
	return nil
}

// Fingerprint returns a stable textual form of the triple, e.g. "0.6,0.3,0.1".
func (w Weights) Fingerprint() string {
	return formatWeight(w.Semantic) + "," + formatWeight(w.Acoustic) + "," + formatWeight(w.Categorical)
}

func formatWeight(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}
