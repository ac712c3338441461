// Cadence - Track Similarity and Taste Clustering Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cadence

package similarity

import (
	"fmt"
	"math"
	"strings"
)

// CosineSimilarity returns the cosine of the angle between a and b in [-1,1].
// Vectors of different lengths fail with ErrDimensionMismatch. A zero vector
// has no direction and yields 0.
func CosineSimilarity(a, b []float64) (float64, error) {
	if len(a) != len(b) {
		return 0, fmt.Errorf("%w: %d vs %d", ErrDimensionMismatch, len(a), len(b))
	}

	var dot, normA, normB float64
	for i := range a {
		dot += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}
	if normA == 0 || normB == 0 {
		return 0, nil
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB)), nil
}

// semanticScore maps cosine similarity into [0,1].
func semanticScore(a, b []float64) (float64, error) {
	cos, err := CosineSimilarity(a, b)
	if err != nil {
		return 0, err
	}
	if cos == 0 && (isZero(a) || isZero(b)) {
		return 0, nil
	}
	return clamp01((1 + cos) / 2), nil
}

func isZero(v []float64) bool {
	for _, x := range v {
		if x != 0 {
			return false
		}
	}
	return true
}

// acousticScorer turns a normalised RMS distance over the acoustic
// dimensions into a similarity in [0,1].
type acousticScorer struct {
	bpmMin float64
	bpmMax float64
}

func (s acousticScorer) vector(f *AcousticFeatures) [4]float64 {
	bpm := 0.0
	if span := s.bpmMax - s.bpmMin; span > 0 {
		bpm = clamp01((f.BPM - s.bpmMin) / span)
	}
	return [4]float64{bpm, clamp01(f.Energy), clamp01(f.Valence), clamp01(f.Danceability)}
}

// score reports false when either side has no acoustic analysis.
func (s acousticScorer) score(a, b *AcousticFeatures) (float64, bool) {
	if a == nil || b == nil {
		return 0, false
	}
	va, vb := s.vector(a), s.vector(b)

	var sum float64
	for i := range va {
		d := va[i] - vb[i]
		sum += d * d
	}
	distance := math.Sqrt(sum / float64(len(va)))
	return clamp01(1 - distance), true
}

// tagSet builds the lowercased, namespaced genre and mood tags of a track.
func tagSet(f *TrackFeatures) map[string]struct{} {
	set := make(map[string]struct{}, len(f.Genres)+len(f.Moods))
	for _, g := range f.Genres {
		if g = strings.ToLower(strings.TrimSpace(g)); g != "" {
			set["genre:"+g] = struct{}{}
		}
	}
	for _, m := range f.Moods {
		if m = strings.ToLower(strings.TrimSpace(m)); m != "" {
			set["mood:"+m] = struct{}{}
		}
	}
	return set
}

// jaccard returns |a ∩ b| / |a ∪ b|, and 0 when both sets are empty.
func jaccard(a, b map[string]struct{}) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 0
	}
	small, large := a, b
	if len(small) > len(large) {
		small, large = large, small
	}

	intersection := 0
	for k := range small {
		if _, ok := large[k]; ok {
			intersection++
		}
	}
	union := len(a) + len(b) - intersection
	return float64(intersection) / float64(union)
}
