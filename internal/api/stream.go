// Tastevec - Vector-Based Media Recommendations for Emby and Jellyfin
// Copyright 2026 M. Voss (mlvoss)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mlvoss/tastevec

package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/mlvoss/tastevec/internal/jobs"
)

const (
	streamWriteTimeout = 10 * time.Second
	streamPingInterval = 30 * time.Second
)

// handleStream upgrades to a websocket and pushes progress snapshots until
// the job reaches a terminal state or the client disconnects.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")

	ch, unsubscribe, err := s.orch.Subscribe(jobID)
	if errors.Is(err, jobs.ErrJobNotFound) {
		respondError(w, http.StatusNotFound, err.Error())
		return
	}
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	defer unsubscribe()

	upgrader := websocket.Upgrader{
		CheckOrigin: s.checkStreamOrigin,
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error.
		s.log.Debug().Err(err).Str("job_id", jobID).Msg("websocket upgrade failed")
		return
	}
	defer func() { _ = conn.Close() }()

	// Reader goroutine: drain client frames so pong/close handling works,
	// and signal disconnects.
	clientGone := make(chan struct{})
	go func() {
		defer close(clientGone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(streamPingInterval)
	defer ping.Stop()

	for {
		select {
		case snapshot, ok := <-ch:
			if !ok {
				deadline := time.Now().Add(streamWriteTimeout)
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, "job finished"), deadline)
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(streamWriteTimeout))
			if err := conn.WriteJSON(snapshot); err != nil {
				s.log.Debug().Err(err).Str("job_id", jobID).Msg("progress stream write failed")
				return
			}
		case <-ping.C:
			deadline := time.Now().Add(streamWriteTimeout)
			if err := conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				return
			}
		case <-clientGone:
			return
		case <-r.Context().Done():
			return
		}
	}
}

// checkStreamOrigin mirrors the CORS origin policy for websocket upgrades.
func (s *Server) checkStreamOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, allowed := range s.cfg.CORSOrigins {
		if allowed == "*" || allowed == origin {
			return true
		}
	}
	return false
}
