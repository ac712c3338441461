// Cadence - Track Similarity and Taste Clustering Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cadence

package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/tomtom215/cadence/internal/similarity"
)

// SimilarTracks handles GET /api/v1/tracks/{id}/similar
//
// Query parameters:
//   - method: semantic, acoustic, categorical or combined (default)
//   - limit: 1..100, larger values are clamped (default 20)
//   - ws, wa, wc: semantic/acoustic/categorical weights; all three or none,
//     combined method only
func (h *Handler) SimilarTracks(w http.ResponseWriter, r *http.Request) {
	started := time.Now()
	req, ok := similarityRequest(w, r)
	if !ok {
		return
	}

	result, err := h.similar.Get(r.Context(), req)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondOK(w, result, started, intPtr(len(result.Items)))
}

// InvalidateSimilar handles DELETE /api/v1/tracks/{id}/similar
// It drops the cached result for the same method, limit and weights.
func (h *Handler) InvalidateSimilar(w http.ResponseWriter, r *http.Request) {
	started := time.Now()
	req, ok := similarityRequest(w, r)
	if !ok {
		return
	}

	if err := h.similar.Invalidate(r.Context(), req); err != nil {
		respondError(w, r, err)
		return
	}
	respondOK(w, map[string]interface{}{
		"track_id":    req.TrackID,
		"method":      req.Method,
		"invalidated": true,
	}, started, nil)
}

func similarityRequest(w http.ResponseWriter, r *http.Request) (similarity.Request, bool) {
	trackID, ok := pathID(w, r, "id")
	if !ok {
		return similarity.Request{}, false
	}

	method, err := similarity.ParseMethod(r.URL.Query().Get("method"))
	if err != nil {
		respondValidation(w, r, "method", "method must be one of: semantic, acoustic, categorical, combined")
		return similarity.Request{}, false
	}

	limit, ok := intParam(w, r, "limit", defaultSimilarLimit)
	if !ok {
		return similarity.Request{}, false
	}

	weights, ok := weightParams(w, r)
	if !ok {
		return similarity.Request{}, false
	}
	if weights != nil && method != similarity.MethodCombined {
		respondValidation(w, r, "method", "weights apply to the combined method only")
		return similarity.Request{}, false
	}

	return similarity.Request{
		TrackID: trackID,
		Method:  method,
		Limit:   limit,
		Weights: weights,
	}, true
}

// weightParams returns nil when no weight is given.
func weightParams(w http.ResponseWriter, r *http.Request) (*similarity.Weights, bool) {
	q := r.URL.Query()
	names := [3]string{"ws", "wa", "wc"}
	var values [3]float64
	present := 0

	for i, name := range names {
		raw := q.Get(name)
		if raw == "" {
			continue
		}
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			respondValidation(w, r, name, name+" must be a number")
			return nil, false
		}
		values[i] = v
		present++
	}

	switch present {
	case 0:
		return nil, true
	case len(names):
		return &similarity.Weights{
			Semantic:    values[0],
			Acoustic:    values[1],
			Categorical: values[2],
		}, true
	default:
		respondValidation(w, r, "weights", "ws, wa and wc must be given together")
		return nil, false
	}
}
