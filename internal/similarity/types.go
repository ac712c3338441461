// Cadence - Track Similarity and Taste Clustering Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cadence

package similarity

import (
	"fmt"
	"strings"
)

// AcousticFeatures holds the analysed audio descriptors of a track.
// Energy, Valence and Danceability are in [0,1]; BPM is beats per minute.
type AcousticFeatures struct {
	BPM          float64 `json:"bpm"`
	Energy       float64 `json:"energy"`
	Valence      float64 `json:"valence"`
	Danceability float64 `json:"danceability"`
}

// TrackFeatures is the feature record the catalog store keeps per track.
// A record is replaced wholesale when a track is re-analysed.
type TrackFeatures struct {
	ID        string            `json:"id"`
	Embedding []float64         `json:"embedding,omitempty"`
	Acoustic  *AcousticFeatures `json:"acoustic,omitempty"`
	Genres    []string          `json:"genres,omitempty"`
	Moods     []string          `json:"moods,omitempty"`
}

// Method selects the similarity signal used to rank candidates.
type Method int

const (
	MethodSemantic Method = iota
	MethodAcoustic
	MethodCategorical
	MethodCombined
)

var methodNames = [...]string{"semantic", "acoustic", "categorical", "combined"}

// String returns the lowercase method name used in cache keys, metrics and the API.
func (m Method) String() string {
	if m < 0 || int(m) >= len(methodNames) {
		return fmt.Sprintf("method(%d)", int(m))
	}
	return methodNames[m]
}

// Valid reports whether m is one of the known methods.
func (m Method) Valid() bool {
	return m >= MethodSemantic && m <= MethodCombined
}

// ParseMethod parses a method name. An empty string selects MethodCombined.
func ParseMethod(s string) (Method, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return MethodCombined, nil
	}
	for i, name := range methodNames {
		if name == s {
			return Method(i), nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrInvalidMethod, s)
}

// MarshalText implements encoding.TextMarshaler.
func (m Method) MarshalText() ([]byte, error) {
	if !m.Valid() {
		return nil, fmt.Errorf("invalid similarity method %d", int(m))
	}
	return []byte(m.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (m *Method) UnmarshalText(text []byte) error {
	parsed, err := ParseMethod(string(text))
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}

// Request asks for tracks similar to TrackID.
type Request struct {
	TrackID string
	Method  Method
	Limit   int

	// Weights applies to MethodCombined only. Nil selects the configured defaults.
	Weights *Weights
}

// Match is one ranked candidate.
type Match struct {
	TrackID string  `json:"track_id"`
	Score   float64 `json:"score"`
	Method  Method  `json:"method"`
}

// Result is an ordered list of matches, best first, ties broken by track ID.
type Result struct {
	TrackID string   `json:"track_id"`
	Method  Method   `json:"method"`
	Limit   int      `json:"limit"`
	Weights *Weights `json:"weights,omitempty"`
	Items   []Match  `json:"items"`
}

// TrackIDs returns the matched track IDs in rank order.
func (r *Result) TrackIDs() []string {
	ids := make([]string, len(r.Items))
	for i, m := range r.Items {
		ids[i] = m.TrackID
	}
	return ids
}
