// Tastevec - Vector-Based Media Recommendations for Emby and Jellyfin
// Copyright 2026 M. Voss (mlvoss)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mlvoss/tastevec

package api

import (
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/mlvoss/tastevec/internal/database"
	"github.com/mlvoss/tastevec/internal/jobs"
	"github.com/mlvoss/tastevec/internal/models"
	"github.com/mlvoss/tastevec/internal/recommend"
)

// generateRequest is the optional body of generate/regenerate calls.
type generateRequest struct {
	Weights *models.ScoringWeights `json:"weights,omitempty"`
}

type generateResponse struct {
	RunID      string                `json:"run_id"`
	Candidates int                   `json:"candidates"`
	Selections []recommend.Candidate `json:"selections"`
}

type jobResponse struct {
	JobID string `json:"job_id"`
}

type runResponse struct {
	Run        *models.RecommendationRun `json:"run"`
	Candidates []recommend.Candidate     `json:"candidates"`
	Evidence   map[int][]models.Evidence `json:"evidence,omitempty"`
}

func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.userIDParam(w, r)
	if !ok {
		return
	}
	mediaType, ok := mediaTypeParam(w, r)
	if !ok {
		return
	}

	var req generateRequest
	if !decodeOptionalBody(w, r, &req) {
		return
	}
	if req.Weights != nil {
		if err := req.Weights.Validate(); err != nil {
			respondError(w, http.StatusBadRequest, err.Error())
			return
		}
	}

	result, err := s.orch.Generate(r.Context(), userID, mediaType, req.Weights)
	if err != nil {
		s.respondPipelineError(w, userID, err)
		return
	}
	respondJSON(w, http.StatusOK, generateResponse{
		RunID:      result.RunID.String(),
		Candidates: result.CandidateCount,
		Selections: result.Selections,
	})
}

func (s *Server) handleRegenerate(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.userIDParam(w, r)
	if !ok {
		return
	}
	mediaType, ok := mediaTypeParam(w, r)
	if !ok {
		return
	}

	result, err := s.orch.Regenerate(r.Context(), userID, mediaType)
	if err != nil {
		s.respondPipelineError(w, userID, err)
		return
	}
	respondJSON(w, http.StatusOK, generateResponse{
		RunID:      result.RunID.String(),
		Candidates: result.CandidateCount,
		Selections: result.Selections,
	})
}

func (s *Server) handleBatch(w http.ResponseWriter, r *http.Request) {
	jobID, err := s.orch.StartBatch(r.Context())
	if errors.Is(err, jobs.ErrBatchRunning) {
		respondError(w, http.StatusConflict, err.Error())
		return
	}
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusAccepted, jobResponse{JobID: jobID})
}

func (s *Server) handleRebuild(w http.ResponseWriter, r *http.Request) {
	jobID, err := s.orch.StartRebuild(r.Context())
	if errors.Is(err, jobs.ErrBatchRunning) {
		respondError(w, http.StatusConflict, err.Error())
		return
	}
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusAccepted, jobResponse{JobID: jobID})
}

func (s *Server) handleProgress(w http.ResponseWriter, r *http.Request) {
	progress, err := s.orch.Progress(chi.URLParam(r, "jobID"))
	if errors.Is(err, jobs.ErrJobNotFound) {
		respondError(w, http.StatusNotFound, err.Error())
		return
	}
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, progress)
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	err := s.orch.Cancel(chi.URLParam(r, "jobID"))
	if errors.Is(err, jobs.ErrJobNotFound) {
		respondError(w, http.StatusNotFound, err.Error())
		return
	}
	if err != nil {
		respondError(w, http.StatusConflict, err.Error())
		return
	}
	respondJSON(w, http.StatusAccepted, nil)
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	runID, err := uuid.Parse(chi.URLParam(r, "runID"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid run id")
		return
	}

	run, err := s.runs.GetRun(r.Context(), runID)
	if errors.Is(err, database.ErrRunNotFound) {
		respondError(w, http.StatusNotFound, err.Error())
		return
	}
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	candidates, err := s.runs.GetRunCandidates(r.Context(), runID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	evidence, err := s.runs.GetEvidence(r.Context(), runID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	respondJSON(w, http.StatusOK, runResponse{Run: run, Candidates: candidates, Evidence: evidence})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.pinger.Ping(r.Context()); err != nil {
		respondError(w, http.StatusServiceUnavailable, "database unreachable")
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// respondPipelineError maps pipeline errors onto HTTP statuses. Unknown
// users are the caller's mistake; anything else is a server-side failure,
// and the failed run record remains queryable for audit.
func (s *Server) respondPipelineError(w http.ResponseWriter, userID int, err error) {
	if errors.Is(err, database.ErrUserNotFound) {
		respondError(w, http.StatusNotFound, err.Error())
		return
	}
	s.log.Error().Err(err).Int("user_id", userID).Msg("pipeline request failed")
	respondError(w, http.StatusInternalServerError, err.Error())
}

func (s *Server) userIDParam(w http.ResponseWriter, r *http.Request) (int, bool) {
	userID, err := strconv.Atoi(chi.URLParam(r, "userID"))
	if err != nil || userID <= 0 {
		respondError(w, http.StatusBadRequest, "invalid user id")
		return 0, false
	}
	return userID, true
}

// mediaTypeParam reads the media_type query parameter, defaulting to movie.
func mediaTypeParam(w http.ResponseWriter, r *http.Request) (string, bool) {
	mediaType := r.URL.Query().Get("media_type")
	if mediaType == "" {
		return models.MediaTypeMovie, true
	}
	switch mediaType {
	case models.MediaTypeMovie, models.MediaTypeSeries:
		return mediaType, true
	default:
		respondError(w, http.StatusBadRequest, "media_type must be movie or series")
		return "", false
	}
}

// decodeOptionalBody decodes a JSON body when present. An empty body is
// valid; malformed JSON is a 400.
func decodeOptionalBody(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	if r.Body == nil {
		return true
	}
	err := json.NewDecoder(r.Body).Decode(dst)
	if err == nil || errors.Is(err, io.EOF) {
		return true
	}
	respondError(w, http.StatusBadRequest, "malformed request body")
	return false
}
