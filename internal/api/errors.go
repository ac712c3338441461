// Cadence - Track Similarity and Taste Clustering Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cadence

package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/tomtom215/cadence/internal/logging"
	"github.com/tomtom215/cadence/internal/prefetch"
	"github.com/tomtom215/cadence/internal/similarity"
	"github.com/tomtom215/cadence/internal/taste"
	"github.com/tomtom215/cadence/internal/validation"
)

// Error codes returned in APIError.Code.
const (
	CodeValidation        = "VALIDATION_ERROR"
	CodeNotFound          = "NOT_FOUND"
	CodeQueryTimeout      = "QUERY_TIMEOUT"
	CodeStoreUnavailable  = "STORE_UNAVAILABLE"
	CodeDimensionMismatch = "DIMENSION_MISMATCH"
	CodeBusy              = "BUSY"
	CodeInternal          = "INTERNAL_ERROR"
	CodeRateLimited       = "RATE_LIMIT_EXCEEDED"
)

// retryAfterSeconds is advertised on 503 responses.
const retryAfterSeconds = 1

type errorMapping struct {
	status  int
	code    string
	message string
}

// classify maps a domain error to its HTTP representation.
func classify(err error) errorMapping {
	var verr *validation.RequestValidationError
	switch {
	case errors.As(err, &verr),
		errors.Is(err, similarity.ErrInvalidWeights),
		errors.Is(err, similarity.ErrInvalidLimit),
		errors.Is(err, similarity.ErrInvalidMethod),
		errors.Is(err, prefetch.ErrInvalidRequest):
		return errorMapping{http.StatusBadRequest, CodeValidation, err.Error()}
	case errors.Is(err, similarity.ErrTrackNotFound),
		errors.Is(err, taste.ErrClusterNotFound),
		errors.Is(err, prefetch.ErrNotFound):
		return errorMapping{http.StatusNotFound, CodeNotFound, err.Error()}
	case errors.Is(err, similarity.ErrQueryTimeout):
		return errorMapping{http.StatusServiceUnavailable, CodeQueryTimeout, "similarity query timed out"}
	case errors.Is(err, taste.ErrPoolBusy):
		return errorMapping{http.StatusServiceUnavailable, CodeBusy, "clustering queue is full"}
	case errors.Is(err, similarity.ErrStoreUnavailable):
		return errorMapping{http.StatusBadGateway, CodeStoreUnavailable, "catalog store unavailable"}
	case errors.Is(err, similarity.ErrDimensionMismatch):
		return errorMapping{http.StatusUnprocessableEntity, CodeDimensionMismatch, err.Error()}
	default:
		return errorMapping{http.StatusInternalServerError, CodeInternal, "internal error"}
	}
}

// respondError writes the error envelope for err. Server-side failures are
// logged with the request ID; caller errors are not.
func respondError(w http.ResponseWriter, r *http.Request, err error) {
	m := classify(err)
	requestID := logging.RequestIDFromContext(r.Context())

	if m.status >= http.StatusInternalServerError {
		logging.Ctx(r.Context()).Error().Err(err).
			Str("code", m.code).
			Str("path", r.URL.Path).
			Msg("API error")
	}
	if m.status == http.StatusServiceUnavailable {
		w.Header().Set("Retry-After", strconv.Itoa(retryAfterSeconds))
	}

	apiErr := &APIError{Code: m.code, Message: m.message, RequestID: requestID}
	var verr *validation.RequestValidationError
	if errors.As(err, &verr) {
		translated := verr.ToAPIError()
		apiErr.Message = translated.Message
		apiErr.Details = translated.Details
	}

	respondJSON(w, m.status, &APIResponse{
		Success: false,
		Error:   apiErr,
		Meta:    Meta{Timestamp: time.Now().UTC()},
	})
}

// respondValidation writes a 400 for a single malformed parameter.
func respondValidation(w http.ResponseWriter, r *http.Request, field, message string) {
	respondJSON(w, http.StatusBadRequest, &APIResponse{
		Success: false,
		Error: &APIError{
			Code:      CodeValidation,
			Message:   message,
			Details:   map[string]interface{}{"field": field},
			RequestID: logging.RequestIDFromContext(r.Context()),
		},
		Meta: Meta{Timestamp: time.Now().UTC()},
	})
}
