// Cadence - Track Similarity and Taste Clustering Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cadence

// Package prefetch predicts the next tracks of a listening session and
// stages their metadata for low-latency retrieval.
//
// Two request shapes exist. Autoplay ranks candidates with the combined
// similarity method and drops recently played and queued tracks. Queue
// hydrates metadata for track IDs the client already knows, with no scoring.
package prefetch

import (
	"fmt"
	"strings"
	"time"
)

// Mode selects how next tracks are chosen.
type Mode int

const (
	// ModeAutoplay ranks candidates by similarity to the current track.
	ModeAutoplay Mode = iota
	// ModeQueue hydrates explicitly queued track IDs in order.
	ModeQueue
)

func (m Mode) String() string {
	switch m {
	case ModeAutoplay:
		return "autoplay"
	case ModeQueue:
		return "queue"
	default:
		return fmt.Sprintf("mode(%d)", int(m))
	}
}

// ParseMode accepts "autoplay" (also the empty string) and "queue".
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "autoplay":
		return ModeAutoplay, nil
	case "queue":
		return ModeQueue, nil
	default:
		return 0, fmt.Errorf("%w: unknown mode %q", ErrInvalidRequest, s)
	}
}

// MarshalText implements encoding.TextMarshaler.
func (m Mode) MarshalText() ([]byte, error) {
	if m != ModeAutoplay && m != ModeQueue {
		return nil, fmt.Errorf("%w: unknown mode %d", ErrInvalidRequest, int(m))
	}
	return []byte(m.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (m *Mode) UnmarshalText(text []byte) error {
	parsed, err := ParseMode(string(text))
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}

// TrackMetadata is the denormalized snapshot a client needs to start
// playback without further lookups.
type TrackMetadata struct {
	TrackID    string `json:"track_id"`
	Title      string `json:"title"`
	Artist     string `json:"artist"`
	Album      string `json:"album"`
	DurationMs int64  `json:"duration_ms"`
	FilePath   string `json:"file_path"`
	Format     string `json:"format"`
}

// Track is one predicted track. Score is zero in queue mode.
type Track struct {
	TrackMetadata
	Position int     `json:"position"`
	Score    float64 `json:"score,omitempty"`
}

// Entry is a staged prediction keyed by user and anchor track.
type Entry struct {
	UserID        string    `json:"user_id"`
	AnchorTrackID string    `json:"anchor_track_id"`
	Mode          Mode      `json:"mode"`
	Tracks        []Track   `json:"tracks"`
	CreatedAt     time.Time `json:"created_at"`
	ExpiresAt     time.Time `json:"expires_at"`
}

// TrackIDs returns the predicted IDs in order.
func (e *Entry) TrackIDs() []string {
	ids := make([]string, len(e.Tracks))
	for i, t := range e.Tracks {
		ids[i] = t.TrackID
	}
	return ids
}

// Request asks for the next tracks after CurrentTrackID.
type Request struct {
	UserID         string
	CurrentTrackID string
	Count          int
	Mode           Mode

	// QueueTrackIDs overrides the stored queue in queue mode and adds
	// exclusions in autoplay mode.
	QueueTrackIDs []string
}
