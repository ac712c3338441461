// Cadence - Track Similarity and Taste Clustering Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cadence

package catalog

import (
	"context"
	"fmt"
	"time"

	"github.com/tomtom215/cadence/internal/taste"
)

// RecordPlay appends a listening event.
func (s *Store) RecordPlay(ctx context.Context, userID, trackID string, at time.Time) error {
	if userID == "" || trackID == "" {
		return fmt.Errorf("user id and track id are required")
	}
	if at.IsZero() {
		at = time.Now()
	}
	if _, err := s.conn.ExecContext(ctx,
		`INSERT INTO plays (user_id, track_id, played_at) VALUES (?, ?, ?)`,
		userID, trackID, at.UTC(),
	); err != nil {
		return fmt.Errorf("record play: %w", err)
	}
	return nil
}

// RecentPlays implements taste.HistoryProvider.
func (s *Store) RecentPlays(ctx context.Context, userID string, limit int) ([]taste.Play, error) {
	rows, err := s.conn.QueryContext(ctx, `
		SELECT user_id, track_id, played_at FROM plays
		WHERE user_id = ?
		ORDER BY played_at DESC, track_id
		LIMIT ?`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("query plays: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var plays []taste.Play
	for rows.Next() {
		var p taste.Play
		if err := rows.Scan(&p.UserID, &p.TrackID, &p.PlayedAt); err != nil {
			return nil, fmt.Errorf("scan play: %w", err)
		}
		plays = append(plays, p)
	}
	return plays, rows.Err()
}

// ActiveUsers implements taste.HistoryProvider.
func (s *Store) ActiveUsers(ctx context.Context, since time.Time) ([]string, error) {
	ids, err := s.queryIDs(ctx,
		`SELECT DISTINCT user_id FROM plays WHERE played_at >= ? ORDER BY user_id`, since.UTC())
	if err != nil {
		return nil, fmt.Errorf("query active users: %w", err)
	}
	return ids, nil
}

// RecentTrackIDs implements prefetch.HistoryProvider. Replays appear once.
func (s *Store) RecentTrackIDs(ctx context.Context, userID string, limit int) ([]string, error) {
	ids, err := s.queryIDs(ctx, `
		SELECT track_id FROM plays
		WHERE user_id = ?
		GROUP BY track_id
		ORDER BY max(played_at) DESC, track_id
		LIMIT ?`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("query recent tracks: %w", err)
	}
	return ids, nil
}

// SetQueue replaces the user's queue.
func (s *Store) SetQueue(ctx context.Context, userID string, trackIDs []string) error {
	if userID == "" {
		return fmt.Errorf("user id is required")
	}
	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM queue_items WHERE user_id = ?`, userID); err != nil {
		return fmt.Errorf("clear queue: %w", err)
	}
	for i, id := range trackIDs {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO queue_items (user_id, position, track_id) VALUES (?, ?, ?)`,
			userID, i, id,
		); err != nil {
			return fmt.Errorf("insert queue item: %w", err)
		}
	}
	return tx.Commit()
}

// QueuedTrackIDs implements prefetch.HistoryProvider.
func (s *Store) QueuedTrackIDs(ctx context.Context, userID string) ([]string, error) {
	ids, err := s.queryIDs(ctx,
		`SELECT track_id FROM queue_items WHERE user_id = ? ORDER BY position`, userID)
	if err != nil {
		return nil, fmt.Errorf("query queue: %w", err)
	}
	return ids, nil
}
