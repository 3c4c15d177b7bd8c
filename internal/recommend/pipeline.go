// Tastevec - Vector-Based Media Recommendations for Emby and Jellyfin
// Copyright 2026 M. Voss (mlvoss)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mlvoss/tastevec

package recommend

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/mlvoss/tastevec/internal/logging"
	"github.com/mlvoss/tastevec/internal/metrics"
	"github.com/mlvoss/tastevec/internal/models"
)

// Engine executes the full pipeline for a single user: history, taste
// profile, retrieval, scoring, diversity selection, persistence, evidence,
// optional explanations. Batch execution across users lives in the jobs
// package.
type Engine struct {
	cfg        *Config
	history    HistoryStore
	catalog    CatalogStore
	embeddings EmbeddingStore
	runs       RunStore
	retriever  *Retriever
	explainer  Explainer
	log        zerolog.Logger
}

// GenerateOptions carries per-call parameters for one run.
type GenerateOptions struct {
	MediaType string
	RunType   models.RunType

	// WeightOverride, when set, takes precedence over both the user's
	// stored overrides and the engine defaults.
	WeightOverride *models.ScoringWeights
}

// NewEngine validates the configuration and wires the pipeline stages.
// explainer may be nil; explanations are then skipped regardless of config.
func NewEngine(cfg *Config, history HistoryStore, catalog CatalogStore,
	embeddings EmbeddingStore, runs RunStore, explainer Explainer) (*Engine, error) {

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("engine config: %w", err)
	}
	return &Engine{
		cfg:        cfg,
		history:    history,
		catalog:    catalog,
		embeddings: embeddings,
		runs:       runs,
		retriever:  NewRetriever(embeddings, catalog),
		explainer:  explainer,
		log:        logging.Logger().With().Str("component", "recommend").Logger(),
	}, nil
}

// Generate runs the pipeline for one user and media type. The run record is
// created up front and finalized exactly once: completed (possibly with zero
// counts for no-data conditions) or failed with the captured message, in
// which case the error is also returned to the caller.
func (e *Engine) Generate(ctx context.Context, user models.User, opts GenerateOptions) (*RunResult, error) {
	runType := opts.RunType
	if runType == "" {
		runType = models.RunTypeManual
	}

	run, err := models.NewRecommendationRun(user.ID, opts.MediaType, runType)
	if err != nil {
		return nil, err
	}
	if err := e.runs.CreateRun(ctx, run); err != nil {
		return nil, fmt.Errorf("create run: %w", err)
	}
	metrics.RunsStarted.WithLabelValues(string(runType)).Inc()

	started := time.Now()
	log := e.log.With().
		Stringer("run_id", run.ID).
		Int("user_id", user.ID).
		Str("media_type", opts.MediaType).
		Logger()

	result, err := e.execute(ctx, log, run, user, opts)
	durationMS := time.Since(started).Milliseconds()
	metrics.RunDuration.Observe(time.Since(started).Seconds())

	if err != nil {
		log.Error().Err(err).Int64("duration_ms", durationMS).Msg("recommendation run failed")
		metrics.RunsFinished.WithLabelValues(string(models.RunStatusFailed)).Inc()
		if finErr := e.runs.FinalizeRun(ctx, run.ID, models.RunStatusFailed, 0, 0, durationMS, err.Error()); finErr != nil {
			log.Error().Err(finErr).Msg("failed to finalize failed run")
		}
		return nil, err
	}

	log.Info().
		Int("candidates", result.CandidateCount).
		Int("selected", len(result.Selections)).
		Int64("duration_ms", durationMS).
		Msg("recommendation run completed")
	metrics.RunsFinished.WithLabelValues(string(models.RunStatusCompleted)).Inc()

	if finErr := e.runs.FinalizeRun(ctx, run.ID, models.RunStatusCompleted,
		result.CandidateCount, len(result.Selections), durationMS, ""); finErr != nil {
		return nil, fmt.Errorf("finalize run: %w", finErr)
	}
	return result, nil
}

// execute is the fallible body of a run. It returns a zero-count result for
// the no-data short circuits and an error only for genuine failures.
func (e *Engine) execute(ctx context.Context, log zerolog.Logger,
	run *models.RecommendationRun, user models.User, opts GenerateOptions) (*RunResult, error) {

	empty := &RunResult{RunID: run.ID}

	history, err := e.history.LoadHistory(ctx, user.ID, e.cfg.HistoryLimit)
	if err != nil {
		return nil, fmt.Errorf("load history: %w", err)
	}
	if len(history) == 0 {
		log.Info().Msg("no watch history, finishing with zero candidates")
		return empty, nil
	}

	historyIDs := make([]int, len(history))
	watchedIDs := make(map[int]struct{}, len(history))
	for i, h := range history {
		historyIDs[i] = h.ItemID
		watchedIDs[h.ItemID] = struct{}{}
	}

	historyItems, err := e.catalog.GetItems(ctx, historyIDs)
	if err != nil {
		return nil, fmt.Errorf("load history metadata: %w", err)
	}
	historyEmbeddings, err := e.embeddings.GetEmbeddings(ctx, historyIDs)
	if err != nil {
		return nil, fmt.Errorf("load history embeddings: %w", err)
	}

	profile := BuildProfile(history, historyItems, historyEmbeddings)
	if profile == nil {
		log.Info().Int("history", len(history)).Msg("no resolvable embeddings, finishing with zero candidates")
		return empty, nil
	}
	if err := e.runs.SaveTasteProfile(ctx, user.ID, opts.MediaType, profile); err != nil {
		return nil, fmt.Errorf("save taste profile: %w", err)
	}

	queryStart := time.Now()
	candidates, err := e.retriever.Retrieve(ctx, profile, opts.MediaType,
		watchedIDs, e.cfg.CandidateLimit, user.IncludeWatched)
	metrics.VectorQueryDuration.WithLabelValues("candidates").Observe(time.Since(queryStart).Seconds())
	if err != nil {
		return nil, fmt.Errorf("retrieve candidates: %w", err)
	}
	metrics.CandidatesRetrieved.Observe(float64(len(candidates)))
	if len(candidates) == 0 {
		log.Info().Msg("no candidates retrieved, finishing with zero candidates")
		return empty, nil
	}

	prefs := BuildGenrePreferences(history, historyItems, e.cfg.GenreWindow)
	weights := e.cfg.WeightsFor(user, opts.MediaType, opts.WeightOverride)
	ScoreCandidates(candidates, prefs, weights)
	selections := SelectDiverse(candidates, e.cfg.TargetCount, weights.Diversity)

	if err := e.runs.SaveCandidates(ctx, run.ID, persistWindow(candidates, selections, e.cfg.PersistTopN)); err != nil {
		return nil, fmt.Errorf("save candidates: %w", err)
	}

	evidence, err := BuildEvidence(ctx, e.embeddings, run.ID, selections, history, e.cfg.MaxEvidence)
	if err != nil {
		return nil, fmt.Errorf("build evidence: %w", err)
	}
	if len(evidence) > 0 {
		if err := e.runs.SaveEvidence(ctx, evidence); err != nil {
			return nil, fmt.Errorf("save evidence: %w", err)
		}
	}

	e.explainSelections(ctx, log, run, selections, evidence)

	return &RunResult{
		RunID:          run.ID,
		CandidateCount: len(candidates),
		Selections:     selections,
	}, nil
}

// explainSelections attaches generated explanations to selections where the
// generator succeeds. Failures are logged and skipped; they never affect the
// run outcome.
func (e *Engine) explainSelections(ctx context.Context, log zerolog.Logger,
	run *models.RecommendationRun, selections []Candidate, evidence []models.Evidence) {

	if !e.cfg.ExplanationsEnabled || e.explainer == nil {
		return
	}

	byItem := make(map[int][]models.Evidence)
	for _, ev := range evidence {
		byItem[ev.ItemID] = append(byItem[ev.ItemID], ev)
	}

	for _, sel := range selections {
		text, err := e.explainer.Explain(ctx, sel, byItem[sel.ItemID])
		if err != nil {
			metrics.ExplanationFailures.Inc()
			log.Warn().Err(err).Int("item_id", sel.ItemID).Msg("explanation generation failed, skipping")
			continue
		}
		if text == "" {
			continue
		}
		if err := e.runs.SaveExplanation(ctx, run.ID, sel.ItemID, text); err != nil {
			log.Warn().Err(err).Int("item_id", sel.ItemID).Msg("failed to store explanation")
		}
	}
}

// persistWindow returns the candidates to store: the top window by score,
// widened so every selected candidate is always included.
func persistWindow(candidates, selections []Candidate, topN int) []Candidate {
	window := topN
	if len(selections) > window {
		window = len(selections)
	}
	if window > len(candidates) {
		window = len(candidates)
	}

	persisted := make([]Candidate, 0, window)
	persisted = append(persisted, candidates[:window]...)
	for _, c := range candidates[window:] {
		if c.IsSelected {
			persisted = append(persisted, c)
		}
	}
	return persisted
}
