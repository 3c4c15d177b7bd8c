// Tastevec - Vector-Based Media Recommendations for Emby and Jellyfin
// Copyright 2026 M. Voss (mlvoss)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mlvoss/tastevec

// Command server runs the Tastevec recommendation service: the DuckDB-backed
// pipeline, the scheduled batch generator and the HTTP API, supervised as a
// suture tree.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/thejerf/suture/v4"
	"github.com/thejerf/sutureslog"

	"github.com/mlvoss/tastevec/internal/api"
	"github.com/mlvoss/tastevec/internal/config"
	"github.com/mlvoss/tastevec/internal/database"
	"github.com/mlvoss/tastevec/internal/jobs"
	"github.com/mlvoss/tastevec/internal/logging"
	"github.com/mlvoss/tastevec/internal/recommend"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Fatal().Err(err).Msg("failed to load configuration")
	}

	logging.Init(logging.Config{
		Level:     cfg.Logging.Level,
		Format:    cfg.Logging.Format,
		Timestamp: true,
	})
	logging.Info().
		Str("db", cfg.Database.Path).
		Int("dimensions", cfg.Database.EmbeddingDimensions).
		Msg("starting tastevec")

	db, err := database.New(&cfg.Database)
	if err != nil {
		logging.Fatal().Err(err).Msg("failed to open database")
	}
	defer func() {
		if err := db.Close(); err != nil {
			logging.Error().Err(err).Msg("database close failed")
		}
	}()
	if !db.IsVSSAvailable() {
		logging.Warn().Msg("vss extension unavailable, nearest-neighbor queries use exact scans")
	}

	engineCfg := &recommend.Config{
		Weights:             cfg.Recommend.Weights,
		HistoryLimit:        cfg.Recommend.HistoryLimit,
		GenreWindow:         cfg.Recommend.GenreWindow,
		CandidateLimit:      cfg.Recommend.CandidateLimit,
		TargetCount:         cfg.Recommend.TargetCount,
		MaxEvidence:         cfg.Recommend.MaxEvidence,
		PersistTopN:         cfg.Recommend.PersistTopN,
		ExplanationsEnabled: cfg.Recommend.ExplanationsEnabled,
	}

	var explainer recommend.Explainer
	if cfg.Recommend.ExplanationsEnabled {
		explainer = recommend.NewBreakerExplainer(recommend.NewTemplateExplainer(db))
	}

	engine, err := recommend.NewEngine(engineCfg, db, db, db, db, explainer)
	if err != nil {
		logging.Fatal().Err(err).Msg("failed to build recommendation engine")
	}

	tracker, err := jobs.NewTracker(cfg.Jobs.ProgressDir)
	if err != nil {
		logging.Fatal().Err(err).Msg("failed to open job progress store")
	}
	defer func() {
		if err := tracker.Close(); err != nil {
			logging.Error().Err(err).Msg("progress store close failed")
		}
	}()

	orch := jobs.NewOrchestrator(engine, db, db, tracker)
	scheduler := jobs.NewScheduler(orch, cfg.Recommend.BatchInterval, cfg.Recommend.BatchOnStartup)
	server := api.NewServer(&cfg.Server, orch, db, db)

	// Bridge zerolog to slog for suture's event hook.
	slogLogger := slog.New(logging.NewSlogHandler())
	handler := &sutureslog.Handler{Logger: slogLogger}

	root := suture.New("tastevec", suture.Spec{
		EventHook:        handler.MustHook(),
		FailureThreshold: 5,
		FailureDecay:     30,
		FailureBackoff:   15 * time.Second,
		Timeout:          10 * time.Second,
	})
	root.Add(scheduler)
	root.Add(server)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := root.Serve(ctx); err != nil && ctx.Err() == nil {
		logging.Error().Err(err).Msg("supervisor exited")
		os.Exit(1)
	}
	logging.Info().Msg("shutdown complete")
}
