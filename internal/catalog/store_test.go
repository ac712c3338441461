// Cadence - Track Similarity and Taste Clustering Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cadence

package catalog

import (
	"context"
	"reflect"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/tomtom215/cadence/internal/similarity"
)

func setupTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(Config{Path: ":memory:", MaxOpenConns: 2}, zerolog.Nop())
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func mustUpsert(t *testing.T, s *Store, tracks ...*Track) {
	t.Helper()
	for _, tr := range tracks {
		if err := s.UpsertTrack(context.Background(), tr); err != nil {
			t.Fatalf("UpsertTrack(%s) error = %v", tr.ID, err)
		}
	}
}

func TestStore_UpsertAndGetFeatures(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	mustUpsert(t, s,
		&Track{
			ID:        "t1",
			Title:     "One",
			Embedding: []float64{0.5, -0.25, 1},
			Acoustic:  &similarity.AcousticFeatures{BPM: 120, Energy: 0.75, Valence: 0.5, Danceability: 0.25},
			Genres:    []string{"Indie", "Rock"},
			Moods:     []string{"bright"},
		},
		&Track{ID: "t2", Title: "Two"},
	)

	got, err := s.GetFeatures(ctx, []string{"t1", "t2", "missing"})
	if err != nil {
		t.Fatalf("GetFeatures() error = %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("GetFeatures() returned %d tracks, want 2", len(got))
	}

	t1 := got["t1"]
	if !reflect.DeepEqual(t1.Embedding, []float64{0.5, -0.25, 1}) {
		t.Errorf("embedding = %v", t1.Embedding)
	}
	want := &similarity.AcousticFeatures{BPM: 120, Energy: 0.75, Valence: 0.5, Danceability: 0.25}
	if !reflect.DeepEqual(t1.Acoustic, want) {
		t.Errorf("acoustic = %+v, want %+v", t1.Acoustic, want)
	}
	if !reflect.DeepEqual(t1.Genres, []string{"Indie", "Rock"}) || !reflect.DeepEqual(t1.Moods, []string{"bright"}) {
		t.Errorf("tags = %v / %v", t1.Genres, t1.Moods)
	}

	t2 := got["t2"]
	if t2.Embedding != nil || t2.Acoustic != nil || t2.Genres != nil {
		t.Errorf("t2 = %+v, want no features", t2)
	}
}

func TestStore_UpsertReplaces(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	mustUpsert(t, s, &Track{ID: "t1", Title: "Old", Genres: []string{"rock"}})
	mustUpsert(t, s, &Track{ID: "t1", Title: "New", Genres: []string{"jazz"}})

	feats, err := s.GetFeatures(ctx, []string{"t1"})
	if err != nil {
		t.Fatalf("GetFeatures() error = %v", err)
	}
	if !reflect.DeepEqual(feats["t1"].Genres, []string{"jazz"}) {
		t.Errorf("genres = %v, want [jazz]", feats["t1"].Genres)
	}

	meta, err := s.GetMetadata(ctx, []string{"t1"})
	if err != nil {
		t.Fatalf("GetMetadata() error = %v", err)
	}
	if meta["t1"].Title != "New" {
		t.Errorf("title = %q, want New", meta["t1"].Title)
	}
}

func TestStore_UpsertRequiresID(t *testing.T) {
	s := setupTestStore(t)
	if err := s.UpsertTrack(context.Background(), &Track{}); err == nil {
		t.Error("UpsertTrack() error = nil, want error for empty id")
	}
}

func TestStore_GetMetadata(t *testing.T) {
	s := setupTestStore(t)
	mustUpsert(t, s, &Track{
		ID: "t1", Title: "Song", Artist: "Band", Album: "LP",
		DurationMs: 201000, FilePath: "/music/t1.flac", Format: "flac",
	})

	got, err := s.GetMetadata(context.Background(), []string{"t1", "nope"})
	if err != nil {
		t.Fatalf("GetMetadata() error = %v", err)
	}
	m, ok := got["t1"]
	if !ok || len(got) != 1 {
		t.Fatalf("GetMetadata() = %v", got)
	}
	if m.Artist != "Band" || m.Album != "LP" || m.DurationMs != 201000 || m.Format != "flac" || m.FilePath != "/music/t1.flac" {
		t.Errorf("metadata = %+v", m)
	}
}

func TestStore_CandidateIDs(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	ref := &Track{ID: "ref", Embedding: []float64{1, 0}, Genres: []string{"rock"},
		Acoustic: &similarity.AcousticFeatures{BPM: 120, Energy: 0.5, Valence: 0.5, Danceability: 0.5}}
	mustUpsert(t, s,
		ref,
		&Track{ID: "near", Embedding: []float64{0.9, 0.1}},
		&Track{ID: "far", Embedding: []float64{-1, 0}},
		&Track{ID: "tagged", Genres: []string{"ROCK"}},
		&Track{ID: "loud", Acoustic: &similarity.AcousticFeatures{BPM: 121, Energy: 0.5, Valence: 0.5, Danceability: 0.5}},
		&Track{ID: "plain"},
		&Track{ID: "wrongdim", Embedding: []float64{1, 0, 0}},
	)

	refFeats, err := s.GetFeatures(ctx, []string{"ref"})
	if err != nil {
		t.Fatal(err)
	}

	got, err := s.CandidateIDs(ctx, refFeats["ref"], 100)
	if err != nil {
		t.Fatalf("CandidateIDs() error = %v", err)
	}
	// Round one of the interleave takes the best of each ranked list.
	if !reflect.DeepEqual(got[:3], []string{"near", "tagged", "loud"}) {
		t.Errorf("leading candidates = %v, want [near tagged loud]", got[:3])
	}

	seen := map[string]bool{}
	for _, id := range got {
		if id == "ref" {
			t.Error("candidates include the reference track")
		}
		if seen[id] {
			t.Errorf("duplicate candidate %s", id)
		}
		seen[id] = true
	}
	if len(got) != 6 {
		t.Errorf("got %d candidates, want 6: %v", len(got), got)
	}

	limited, err := s.CandidateIDs(ctx, refFeats["ref"], 2)
	if err != nil {
		t.Fatalf("CandidateIDs() error = %v", err)
	}
	if len(limited) != 2 {
		t.Errorf("got %d candidates with max 2", len(limited))
	}
}

func TestInterleave(t *testing.T) {
	t.Parallel()

	got := interleave([][]string{{"a", "b", "c"}, {"b", "d"}, {}}, 10)
	if want := []string{"a", "b", "d", "c"}; !reflect.DeepEqual(got, want) {
		t.Errorf("interleave() = %v, want %v", got, want)
	}
	if got := interleave([][]string{{"a", "b", "c"}}, 2); len(got) != 2 {
		t.Errorf("interleave() with max 2 = %v", got)
	}
}

func TestStore_History(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC)

	plays := []struct {
		user, track string
		at          time.Time
	}{
		{"u1", "t1", base},
		{"u1", "t2", base.Add(time.Minute)},
		{"u1", "t1", base.Add(2 * time.Minute)},
		{"u2", "t3", base.Add(-48 * time.Hour)},
	}
	for _, p := range plays {
		if err := s.RecordPlay(ctx, p.user, p.track, p.at); err != nil {
			t.Fatalf("RecordPlay() error = %v", err)
		}
	}

	recent, err := s.RecentPlays(ctx, "u1", 10)
	if err != nil {
		t.Fatalf("RecentPlays() error = %v", err)
	}
	if len(recent) != 3 || recent[0].TrackID != "t1" || !recent[0].PlayedAt.Equal(base.Add(2*time.Minute)) {
		t.Errorf("RecentPlays() = %+v", recent)
	}

	limited, err := s.RecentPlays(ctx, "u1", 1)
	if err != nil || len(limited) != 1 {
		t.Errorf("RecentPlays(limit 1) = %v, %v", limited, err)
	}

	ids, err := s.RecentTrackIDs(ctx, "u1", 10)
	if err != nil {
		t.Fatalf("RecentTrackIDs() error = %v", err)
	}
	if !reflect.DeepEqual(ids, []string{"t1", "t2"}) {
		t.Errorf("RecentTrackIDs() = %v, want [t1 t2]", ids)
	}

	active, err := s.ActiveUsers(ctx, base.Add(-time.Hour))
	if err != nil {
		t.Fatalf("ActiveUsers() error = %v", err)
	}
	if !reflect.DeepEqual(active, []string{"u1"}) {
		t.Errorf("ActiveUsers() = %v, want [u1]", active)
	}

	if err := s.RecordPlay(ctx, "", "t1", base); err == nil {
		t.Error("RecordPlay() with empty user error = nil")
	}
}

func TestStore_Queue(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	if err := s.SetQueue(ctx, "u1", []string{"t3", "t1", "t2"}); err != nil {
		t.Fatalf("SetQueue() error = %v", err)
	}
	got, err := s.QueuedTrackIDs(ctx, "u1")
	if err != nil {
		t.Fatalf("QueuedTrackIDs() error = %v", err)
	}
	if !reflect.DeepEqual(got, []string{"t3", "t1", "t2"}) {
		t.Errorf("queue = %v", got)
	}

	if err := s.SetQueue(ctx, "u1", []string{"t9"}); err != nil {
		t.Fatalf("SetQueue() error = %v", err)
	}
	got, err = s.QueuedTrackIDs(ctx, "u1")
	if err != nil {
		t.Fatalf("QueuedTrackIDs() error = %v", err)
	}
	if !reflect.DeepEqual(got, []string{"t9"}) {
		t.Errorf("queue after replace = %v, want [t9]", got)
	}

	empty, err := s.QueuedTrackIDs(ctx, "u2")
	if err != nil || len(empty) != 0 {
		t.Errorf("QueuedTrackIDs(u2) = %v, %v", empty, err)
	}
}

func TestStore_BacksSimilarityEngine(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	mustUpsert(t, s,
		&Track{ID: "A", Embedding: []float64{1, 0, 0}, Genres: []string{"rock"}},
		&Track{ID: "B", Embedding: []float64{0.9, 0.1, 0}, Genres: []string{"rock"}},
		&Track{ID: "C", Embedding: []float64{0, 0, 1}, Genres: []string{"jazz"}},
	)

	engine, err := similarity.NewEngine(similarity.DefaultConfig(), s, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewEngine() error = %v", err)
	}
	res, err := engine.SimilarBySemantic(ctx, "A", 10)
	if err != nil {
		t.Fatalf("SimilarBySemantic() error = %v", err)
	}
	if got := res.TrackIDs(); !reflect.DeepEqual(got, []string{"B", "C"}) {
		t.Errorf("SimilarBySemantic() = %v, want [B C]", got)
	}
}

func TestSeedDemo(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	cfg := SeedConfig{Tracks: 20, Users: 2, Dimensions: 4, PlaysEach: 6, Seed: 3}
	if err := SeedDemo(ctx, s, cfg); err != nil {
		t.Fatalf("SeedDemo() error = %v", err)
	}

	users, err := s.ActiveUsers(ctx, time.Now().Add(-24*time.Hour))
	if err != nil {
		t.Fatalf("ActiveUsers() error = %v", err)
	}
	if !reflect.DeepEqual(users, []string{"user-1", "user-2"}) {
		t.Errorf("ActiveUsers() = %v", users)
	}
	feats, err := s.GetFeatures(ctx, []string{"trk-0000", "trk-0019"})
	if err != nil {
		t.Fatalf("GetFeatures() error = %v", err)
	}
	if len(feats) != 2 || len(feats["trk-0000"].Embedding) != 4 {
		t.Errorf("seeded features = %+v", feats)
	}
}
