// Tastevec - Vector-Based Media Recommendations for Emby and Jellyfin
// Copyright 2026 M. Voss (mlvoss)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mlvoss/tastevec

// Package api exposes the job-trigger and audit HTTP surface: run
// generation, batch control, progress polling and streaming, stored-run
// reads, health and metrics.
package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/mlvoss/tastevec/internal/config"
	"github.com/mlvoss/tastevec/internal/jobs"
	"github.com/mlvoss/tastevec/internal/logging"
	"github.com/mlvoss/tastevec/internal/models"
	"github.com/mlvoss/tastevec/internal/recommend"
)

// Orchestrator is the jobs surface the handlers call. Implemented by
// jobs.Orchestrator.
type Orchestrator interface {
	Generate(ctx context.Context, userID int, mediaType string, override *models.ScoringWeights) (*recommend.RunResult, error)
	Regenerate(ctx context.Context, userID int, mediaType string) (*recommend.RunResult, error)
	StartBatch(ctx context.Context) (string, error)
	StartRebuild(ctx context.Context) (string, error)
	Progress(jobID string) (jobs.Progress, error)
	Subscribe(jobID string) (<-chan jobs.Progress, func(), error)
	Cancel(jobID string) error
}

// RunReader reads persisted runs for audit queries. Implemented by
// database.DB.
type RunReader interface {
	GetRun(ctx context.Context, runID uuid.UUID) (*models.RecommendationRun, error)
	GetRunCandidates(ctx context.Context, runID uuid.UUID) ([]recommend.Candidate, error)
	GetEvidence(ctx context.Context, runID uuid.UUID) (map[int][]models.Evidence, error)
}

// Pinger is the health-check dependency.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Server is the HTTP service.
type Server struct {
	cfg    *config.ServerConfig
	orch   Orchestrator
	runs   RunReader
	pinger Pinger
	router chi.Router
	log    zerolog.Logger

	httpServer *http.Server
}

// NewServer builds the router and handler set.
func NewServer(cfg *config.ServerConfig, orch Orchestrator, runs RunReader, pinger Pinger) *Server {
	s := &Server{
		cfg:    cfg,
		orch:   orch,
		runs:   runs,
		pinger: pinger,
		log:    logging.Logger().With().Str("component", "api").Logger(),
	}
	s.router = s.buildRouter()
	return s
}

func (s *Server) buildRouter() chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(s.cfg.Timeout))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.cfg.CORSOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))
	if s.cfg.RateLimit > 0 {
		r.Use(httprate.LimitByIP(s.cfg.RateLimit, time.Minute))
	}

	r.Get("/health", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/recommendations", func(r chi.Router) {
			r.Post("/generate/{userID}", s.handleGenerate)
			r.Post("/regenerate/{userID}", s.handleRegenerate)
			r.Post("/batch", s.handleBatch)
			r.Post("/rebuild", s.handleRebuild)
		})
		r.Route("/jobs/{jobID}", func(r chi.Router) {
			r.Get("/progress", s.handleProgress)
			r.Get("/stream", s.handleStream)
			r.Post("/cancel", s.handleCancel)
		})
		r.Get("/runs/{runID}", s.handleGetRun)
	})

	return r
}

// Handler returns the HTTP handler, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Serve implements suture.Service: it runs the HTTP listener until the
// context is cancelled, then shuts down gracefully.
func (s *Server) Serve(ctx context.Context) error {
	addr := net.JoinHostPort(s.cfg.Host, strconv.Itoa(s.cfg.Port))
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info().Str("addr", addr).Msg("http server listening")
		errCh <- s.httpServer.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("http shutdown: %w", err)
		}
		return ctx.Err()
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

func (s *Server) String() string {
	return "http-server"
}
