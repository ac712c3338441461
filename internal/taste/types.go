// Cadence - Track Similarity and Taste Clustering Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cadence

package taste

import "github.com/tomtom215/cadence/internal/similarity"

// Point is one track from a listener's history.
type Point struct {
	TrackID   string
	Embedding []float64
	Genres    []string
	Moods     []string
	Acoustic  *similarity.AcousticFeatures
}

// PointFromFeatures converts a catalog feature record.
func PointFromFeatures(f *similarity.TrackFeatures) Point {
	return Point{
		TrackID:   f.ID,
		Embedding: f.Embedding,
		Genres:    f.Genres,
		Moods:     f.Moods,
		Acoustic:  f.Acoustic,
	}
}

// TasteCluster is one group of a listener's history.
type TasteCluster struct {
	// ID is the 0-based position in the ordered result.
	ID int `json:"id"`

	// Centroid has the embedding dimensionality.
	Centroid []float64 `json:"centroid"`

	// Members are the track IDs, sorted. Never empty.
	Members []string `json:"members"`

	// Name is a human-readable label such as "Energetic Rock".
	Name string `json:"name"`

	// Validity is the mean silhouette of the members, in [-1, 1]. The
	// single general cluster reports 0.
	Validity float64 `json:"validity"`
}

// Summary describes how a clustering was chosen.
type Summary struct {
	K          int     `json:"k"`
	Silhouette float64 `json:"silhouette"`
	Trivial    bool    `json:"trivial"`
	Reason     string  `json:"reason,omitempty"`
}
