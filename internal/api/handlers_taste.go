// Cadence - Track Similarity and Taste Clustering Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cadence

package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
)

// UserTaste handles GET /api/v1/users/{id}/taste
// Returns the user's taste clusters, computed on demand and cached.
func (h *Handler) UserTaste(w http.ResponseWriter, r *http.Request) {
	started := time.Now()
	userID, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	clustering, err := h.taste.ClusterUserTaste(r.Context(), userID)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondOK(w, clustering, started, intPtr(len(clustering.Clusters)))
}

// ClusterPlaylist handles GET /api/v1/users/{id}/taste/{cluster}/playlist
// The optional size parameter defaults to the service's playlist size.
func (h *Handler) ClusterPlaylist(w http.ResponseWriter, r *http.Request) {
	started := time.Now()
	userID, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	clusterID, err := strconv.Atoi(chi.URLParam(r, "cluster"))
	if err != nil || clusterID < 0 {
		respondValidation(w, r, "cluster", "cluster must be a non-negative integer")
		return
	}
	size, ok := intParam(w, r, "size", 0)
	if !ok {
		return
	}

	tracks, err := h.taste.GenerateClusterPlaylist(r.Context(), userID, clusterID, size)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondOK(w, map[string]interface{}{
		"user_id":    userID,
		"cluster_id": clusterID,
		"tracks":     tracks,
	}, started, intPtr(len(tracks)))
}
