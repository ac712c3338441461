// Cadence - Track Similarity and Taste Clustering Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cadence

package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/cadence/internal/prefetch"
	"github.com/tomtom215/cadence/internal/validation"
)

// maxBodyBytes bounds request bodies.
const maxBodyBytes = 1 << 20

// PrefetchRequest is the body of POST /api/v1/users/{id}/prefetch.
type PrefetchRequest struct {
	CurrentTrackID string   `json:"current_track_id" validate:"required,id"`
	Count          int      `json:"count" validate:"gte=0,lte=100"`
	Mode           string   `json:"mode" validate:"omitempty,oneof=autoplay queue"`
	Queue          []string `json:"queue" validate:"max=100,dive,id"`
}

// Prefetch handles POST /api/v1/users/{id}/prefetch
// It predicts the next tracks and stages them for GetPrefetched.
func (h *Handler) Prefetch(w http.ResponseWriter, r *http.Request) {
	started := time.Now()
	userID, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	var body PrefetchRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&body); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			respondValidation(w, r, "body", "request body too large")
			return
		}
		respondValidation(w, r, "body", "request body must be a JSON object")
		return
	}
	if verr := validation.ValidateStruct(&body); verr != nil {
		respondError(w, r, verr)
		return
	}

	mode, err := prefetch.ParseMode(body.Mode)
	if err != nil {
		respondError(w, r, err)
		return
	}

	entry, err := h.prefetch.PredictNext(r.Context(), prefetch.Request{
		UserID:         userID,
		CurrentTrackID: body.CurrentTrackID,
		Count:          body.Count,
		Mode:           mode,
		QueueTrackIDs:  body.Queue,
	})
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondOK(w, entry, started, intPtr(len(entry.Tracks)))
}

// Prefetched handles GET /api/v1/users/{id}/prefetch/{track}
// It returns the entry staged for that anchor track, or 404.
func (h *Handler) Prefetched(w http.ResponseWriter, r *http.Request) {
	started := time.Now()
	userID, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	trackID, ok := pathID(w, r, "track")
	if !ok {
		return
	}

	entry, err := h.prefetch.GetPrefetched(r.Context(), userID, trackID)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondOK(w, entry, started, intPtr(len(entry.Tracks)))
}
