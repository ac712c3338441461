// Cadence - Track Similarity and Taste Clustering Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cadence

package prefetch

import "errors"

var (
	// ErrInvalidRequest is returned for a missing user or anchor or an unknown mode.
	ErrInvalidRequest = errors.New("invalid prefetch request")

	// ErrNotFound is returned when no staged entry exists.
	ErrNotFound = errors.New("prefetch entry not found")
)
