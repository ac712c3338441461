// Cadence - Track Similarity and Taste Clustering Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cadence

package similarity

import "math"

// Signal is one partial similarity score. A signal that is not Present
// contributes nothing to the combined score.
type Signal struct {
	Score   float64
	Present bool
}

// Score wraps a computed partial score.
func Score(v float64) Signal {
	return Signal{Score: v, Present: true}
}

// Signals groups the three partial scores of a candidate.
type Signals struct {
	Semantic    Signal
	Acoustic    Signal
	Categorical Signal
}

// Combine returns the weighted sum of the partial scores, clamped to [0,1].
//
// Missing signals count as 0 and stay in the denominator: weights are never
// renormalised here. Callers that want to exclude a signal pass weights that
// already account for it.
func Combine(s Signals, w Weights) float64 {
	total := term(s.Semantic, w.Semantic) +
		term(s.Acoustic, w.Acoustic) +
		term(s.Categorical, w.Categorical)
	return clamp01(total)
}

func term(s Signal, weight float64) float64 {
	if !s.Present {
		return 0
	}
	return clamp01(s.Score) * weight
}

// clamp01 maps NaN to 0.
func clamp01(v float64) float64 {
	switch {
	case math.IsNaN(v), v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
