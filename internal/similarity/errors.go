// Cadence - Track Similarity and Taste Clustering Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cadence

package similarity

import "errors"

var (
	// ErrInvalidWeights is returned when a weight triple is negative or does not sum to 1.
	ErrInvalidWeights = errors.New("invalid similarity weights")

	// ErrInvalidLimit is returned for a zero or negative result limit.
	ErrInvalidLimit = errors.New("invalid result limit")

	// ErrInvalidMethod is returned for a method outside the known set.
	ErrInvalidMethod = errors.New("invalid similarity method")

	// ErrTrackNotFound is returned when the reference track is not in the catalog.
	ErrTrackNotFound = errors.New("track not found")

	// ErrDimensionMismatch is returned when two compared embeddings differ in length.
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")

	// ErrQueryTimeout is returned when a query exceeds its deadline. Callers may retry.
	ErrQueryTimeout = errors.New("similarity query timed out")

	// ErrStoreUnavailable is returned when the catalog store fails.
	ErrStoreUnavailable = errors.New("catalog store unavailable")
)

// IsRetryable reports whether err is transient and the request may be retried.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrQueryTimeout)
}

// IsValidation reports whether err is a caller error that must not be retried.
func IsValidation(err error) bool {
	return errors.Is(err, ErrInvalidWeights) ||
		errors.Is(err, ErrInvalidLimit) ||
		errors.Is(err, ErrInvalidMethod)
}
