// Tastevec - Vector-Based Media Recommendations for Emby and Jellyfin
// Copyright 2026 M. Voss (mlvoss)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mlvoss/tastevec

package api

import (
	"net/http"

	"github.com/goccy/go-json"

	"github.com/mlvoss/tastevec/internal/logging"
)

type errorResponse struct {
	Error string `json:"error"`
}

func respondJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logging.Warn().Err(err).Msg("encode response")
	}
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, errorResponse{Error: message})
}
