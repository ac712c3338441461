// Cadence - Track Similarity and Taste Clustering Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cadence

package catalog

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/goccy/go-json"

	"github.com/tomtom215/cadence/internal/prefetch"
	"github.com/tomtom215/cadence/internal/similarity"
	"github.com/tomtom215/cadence/internal/validation"
)

// Tag kinds stored in track_tags.
const (
	kindGenre = "genre"
	kindMood  = "mood"
)

// Track is a full catalog record.
type Track struct {
	ID         string                       `json:"id" validate:"required,id"`
	Title      string                       `json:"title"`
	Artist     string                       `json:"artist"`
	Album      string                       `json:"album"`
	DurationMs int64                        `json:"duration_ms" validate:"gte=0"`
	FilePath   string                       `json:"file_path"`
	Format     string                       `json:"format"`
	Embedding  []float64                    `json:"embedding,omitempty"`
	Acoustic   *similarity.AcousticFeatures `json:"acoustic,omitempty"`
	Genres     []string                     `json:"genres,omitempty"`
	Moods      []string                     `json:"moods,omitempty"`
}

// UpsertTrack inserts or replaces a track and its tags.
func (s *Store) UpsertTrack(ctx context.Context, t *Track) error {
	if t == nil {
		return fmt.Errorf("track is required")
	}
	if verr := validation.ValidateStruct(t); verr != nil {
		return fmt.Errorf("invalid track: %w", verr)
	}

	var embedding interface{}
	if len(t.Embedding) > 0 {
		data, err := json.Marshal(t.Embedding)
		if err != nil {
			return fmt.Errorf("encode embedding: %w", err)
		}
		embedding = string(data)
	}
	var bpm, energy, valence, dance interface{}
	if a := t.Acoustic; a != nil {
		bpm, energy, valence, dance = a.BPM, a.Energy, a.Valence, a.Danceability
	}

	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `
		INSERT OR REPLACE INTO tracks
			(id, title, artist, album, duration_ms, file_path, format, embedding, bpm, energy, valence, danceability, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, CAST(? AS DOUBLE[]), ?, ?, ?, ?, current_timestamp)`,
		t.ID, t.Title, t.Artist, t.Album, t.DurationMs, t.FilePath, t.Format,
		embedding, bpm, energy, valence, dance,
	); err != nil {
		return fmt.Errorf("upsert track %s: %w", t.ID, err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM track_tags WHERE track_id = ?`, t.ID); err != nil {
		return fmt.Errorf("clear tags for %s: %w", t.ID, err)
	}
	for _, tag := range tagRows(t) {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO track_tags (track_id, kind, value, tag_key) VALUES (?, ?, ?, ?)`,
			t.ID, tag.kind, tag.value, tagKey(tag.kind, tag.value),
		); err != nil {
			return fmt.Errorf("insert tag for %s: %w", t.ID, err)
		}
	}

	return tx.Commit()
}

type tagRow struct {
	kind  string
	value string
}

func tagRows(t *Track) []tagRow {
	seen := make(map[string]bool)
	var rows []tagRow
	add := func(kind string, values []string) {
		for _, v := range values {
			v = strings.TrimSpace(v)
			key := tagKey(kind, v)
			if v == "" || seen[key] {
				continue
			}
			seen[key] = true
			rows = append(rows, tagRow{kind: kind, value: v})
		}
	}
	add(kindGenre, t.Genres)
	add(kindMood, t.Moods)
	return rows
}

func tagKey(kind, value string) string {
	return kind + ":" + strings.ToLower(strings.TrimSpace(value))
}

// GetFeatures implements similarity.Store. Unknown IDs are omitted.
func (s *Store) GetFeatures(ctx context.Context, ids []string) (map[string]*similarity.TrackFeatures, error) {
	out := make(map[string]*similarity.TrackFeatures, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	rows, err := s.conn.QueryContext(ctx, fmt.Sprintf(`
		SELECT id, CAST(embedding AS VARCHAR), bpm, energy, valence, danceability
		FROM tracks WHERE id IN (%s)`, placeholders(len(ids))), stringArgs(ids)...)
	if err != nil {
		return nil, fmt.Errorf("query features: %w", err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var (
			id                            string
			embedding                     sql.NullString
			bpm, energy, valence, dancing sql.NullFloat64
		)
		if err := rows.Scan(&id, &embedding, &bpm, &energy, &valence, &dancing); err != nil {
			return nil, fmt.Errorf("scan features: %w", err)
		}
		f := &similarity.TrackFeatures{ID: id}
		if embedding.Valid && embedding.String != "" {
			if err := json.Unmarshal([]byte(embedding.String), &f.Embedding); err != nil {
				return nil, fmt.Errorf("decode embedding for %s: %w", id, err)
			}
		}
		if bpm.Valid && energy.Valid && valence.Valid && dancing.Valid {
			f.Acoustic = &similarity.AcousticFeatures{
				BPM:          bpm.Float64,
				Energy:       energy.Float64,
				Valence:      valence.Float64,
				Danceability: dancing.Float64,
			}
		}
		out[id] = f
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate features: %w", err)
	}

	if err := s.attachTags(ctx, ids, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Store) attachTags(ctx context.Context, ids []string, feats map[string]*similarity.TrackFeatures) error {
	rows, err := s.conn.QueryContext(ctx, fmt.Sprintf(`
		SELECT track_id, kind, value FROM track_tags
		WHERE track_id IN (%s)
		ORDER BY track_id, kind, value`, placeholders(len(ids))), stringArgs(ids)...)
	if err != nil {
		return fmt.Errorf("query tags: %w", err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var id, kind, value string
		if err := rows.Scan(&id, &kind, &value); err != nil {
			return fmt.Errorf("scan tags: %w", err)
		}
		f, ok := feats[id]
		if !ok {
			continue
		}
		switch kind {
		case kindGenre:
			f.Genres = append(f.Genres, value)
		case kindMood:
			f.Moods = append(f.Moods, value)
		}
	}
	return rows.Err()
}

// GetMetadata implements prefetch.MetadataStore.
func (s *Store) GetMetadata(ctx context.Context, ids []string) (map[string]*prefetch.TrackMetadata, error) {
	out := make(map[string]*prefetch.TrackMetadata, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	rows, err := s.conn.QueryContext(ctx, fmt.Sprintf(`
		SELECT id, title, artist, album, duration_ms, file_path, format
		FROM tracks WHERE id IN (%s)`, placeholders(len(ids))), stringArgs(ids)...)
	if err != nil {
		return nil, fmt.Errorf("query metadata: %w", err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var m prefetch.TrackMetadata
		if err := rows.Scan(&m.TrackID, &m.Title, &m.Artist, &m.Album, &m.DurationMs, &m.FilePath, &m.Format); err != nil {
			return nil, fmt.Errorf("scan metadata: %w", err)
		}
		out[m.TrackID] = &m
	}
	return out, rows.Err()
}

// CandidateIDs implements similarity.Store. It interleaves the nearest
// tracks by embedding, by shared tags and by acoustics, then fills with the
// rest of the catalog in ID order, up to max IDs.
func (s *Store) CandidateIDs(ctx context.Context, ref *similarity.TrackFeatures, max int) ([]string, error) {
	if max <= 0 {
		return nil, nil
	}

	var lists [][]string

	if sumSquares(ref.Embedding) > 0 {
		data, err := json.Marshal(ref.Embedding)
		if err != nil {
			return nil, fmt.Errorf("encode embedding: %w", err)
		}
		ids, err := s.queryIDs(ctx, `
			SELECT id FROM tracks
			WHERE id <> ? AND embedding IS NOT NULL AND len(embedding) = ?
			ORDER BY list_cosine_similarity(embedding, CAST(? AS DOUBLE[])) DESC, id
			LIMIT ?`, ref.ID, len(ref.Embedding), string(data), max)
		if err != nil {
			return nil, fmt.Errorf("semantic candidates: %w", err)
		}
		lists = append(lists, ids)
	}

	if keys := refTagKeys(ref); len(keys) > 0 {
		args := append([]interface{}{ref.ID}, stringArgs(keys)...)
		args = append(args, max)
		ids, err := s.queryIDs(ctx, fmt.Sprintf(`
			SELECT track_id FROM track_tags
			WHERE track_id <> ? AND tag_key IN (%s)
			GROUP BY track_id
			ORDER BY count(*) DESC, track_id
			LIMIT ?`, placeholders(len(keys))), args...)
		if err != nil {
			return nil, fmt.Errorf("categorical candidates: %w", err)
		}
		lists = append(lists, ids)
	}

	if a := ref.Acoustic; a != nil {
		ids, err := s.queryIDs(ctx, `
			SELECT id FROM tracks
			WHERE id <> ? AND bpm IS NOT NULL AND energy IS NOT NULL
				AND valence IS NOT NULL AND danceability IS NOT NULL
			ORDER BY abs(energy - ?) + abs(valence - ?) + abs(danceability - ?) + abs(bpm - ?) / 180.0, id
			LIMIT ?`, ref.ID, a.Energy, a.Valence, a.Danceability, a.BPM, max)
		if err != nil {
			return nil, fmt.Errorf("acoustic candidates: %w", err)
		}
		lists = append(lists, ids)
	}

	rest, err := s.queryIDs(ctx, `SELECT id FROM tracks WHERE id <> ? ORDER BY id LIMIT ?`, ref.ID, max)
	if err != nil {
		return nil, fmt.Errorf("catalog candidates: %w", err)
	}

	out := interleave(lists, max)
	if len(out) < max {
		seen := make(map[string]bool, len(out))
		for _, id := range out {
			seen[id] = true
		}
		for _, id := range rest {
			if len(out) == max {
				break
			}
			if !seen[id] {
				out = append(out, id)
			}
		}
	}
	return out, nil
}

func (s *Store) queryIDs(ctx context.Context, query string, args ...interface{}) ([]string, error) {
	rows, err := s.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// interleave merges ranked lists round-robin without duplicates.
func interleave(lists [][]string, max int) []string {
	seen := make(map[string]bool)
	var out []string
	for i := 0; len(out) < max; i++ {
		progressed := false
		for _, l := range lists {
			if i >= len(l) {
				continue
			}
			progressed = true
			if id := l[i]; !seen[id] {
				seen[id] = true
				out = append(out, id)
				if len(out) == max {
					return out
				}
			}
		}
		if !progressed {
			break
		}
	}
	return out
}

func refTagKeys(ref *similarity.TrackFeatures) []string {
	seen := make(map[string]bool)
	var keys []string
	add := func(kind string, values []string) {
		for _, v := range values {
			k := tagKey(kind, v)
			if strings.TrimSpace(v) == "" || seen[k] {
				continue
			}
			seen[k] = true
			keys = append(keys, k)
		}
	}
	add(kindGenre, ref.Genres)
	add(kindMood, ref.Moods)
	return keys
}

func sumSquares(v []float64) float64 {
	var sum float64
	for _, x := range v {
		sum += x * x
	}
	return sum
}
