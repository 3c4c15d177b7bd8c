// Tastevec - Vector-Based Media Recommendations for Emby and Jellyfin
// Copyright 2026 M. Voss (mlvoss)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mlvoss/tastevec

// Package jobs drives recommendation generation: synchronous single-user
// runs, the sequential all-users batch, clear-and-rebuild, and the progress
// tracking callers poll or stream.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/rs/zerolog"

	"github.com/mlvoss/tastevec/internal/logging"
	"github.com/mlvoss/tastevec/internal/metrics"
	"github.com/mlvoss/tastevec/internal/models"
	"github.com/mlvoss/tastevec/internal/recommend"
)

// ErrBatchRunning is returned when a batch is requested while one is active.
var ErrBatchRunning = errors.New("a batch job is already running")

// Generator runs the recommendation pipeline for one user and media type.
// Implemented by recommend.Engine.
type Generator interface {
	Generate(ctx context.Context, user models.User, opts recommend.GenerateOptions) (*recommend.RunResult, error)
}

// UserStore enumerates and resolves users.
type UserStore interface {
	GetUser(ctx context.Context, userID int) (*models.User, error)
	ListEnabledUsers(ctx context.Context) ([]models.User, error)
}

// Cleaner deletes recommendation state ahead of regeneration.
type Cleaner interface {
	ClearUserRecommendations(ctx context.Context, userID int) error
	ClearAllRecommendations(ctx context.Context) error
}

// BatchResult is the aggregate outcome of an all-users batch.
type BatchResult struct {
	JobID   string `json:"job_id"`
	Success int    `json:"success"`
	Failed  int    `json:"failed"`

	// Cancelled is set when the batch stopped early on request. Users
	// processed before the stop are still counted.
	Cancelled bool `json:"cancelled,omitempty"`
}

// RebuildResult is the outcome of clear-and-rebuild.
type RebuildResult struct {
	BatchResult

	// Cleared is how many users had existing recommendation state removed.
	Cleared int `json:"cleared"`
}

// Orchestrator coordinates pipeline execution across users. The all-users
// batch is strictly sequential: one user's pipeline runs to completion before
// the next begins, which keeps progress accounting simple and avoids
// contention on the vector index.
type Orchestrator struct {
	engine  Generator
	users   UserStore
	cleaner Cleaner
	tracker *Tracker

	// mediaTypes are generated per user in batch runs.
	mediaTypes []string

	batchActive atomic.Bool
	log         zerolog.Logger
}

// NewOrchestrator wires the orchestrator. Batches cover movies and series
// for every enabled user.
func NewOrchestrator(engine Generator, users UserStore, cleaner Cleaner, tracker *Tracker) *Orchestrator {
	return &Orchestrator{
		engine:     engine,
		users:      users,
		cleaner:    cleaner,
		tracker:    tracker,
		mediaTypes: []string{models.MediaTypeMovie, models.MediaTypeSeries},
		log:        logging.Logger().With().Str("component", "orchestrator").Logger(),
	}
}

// Generate runs the pipeline synchronously for one user and returns the run
// ID and selections. Pipeline errors surface to the caller; the run record
// is finalized as failed either way.
func (o *Orchestrator) Generate(ctx context.Context, userID int, mediaType string,
	override *models.ScoringWeights) (*recommend.RunResult, error) {

	user, err := o.users.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	return o.engine.Generate(ctx, *user, recommend.GenerateOptions{
		MediaType:      mediaType,
		RunType:        models.RunTypeManual,
		WeightOverride: override,
	})
}

// Regenerate clears one user's recommendation state and generates afresh.
func (o *Orchestrator) Regenerate(ctx context.Context, userID int, mediaType string) (*recommend.RunResult, error) {
	user, err := o.users.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	if err := o.cleaner.ClearUserRecommendations(ctx, userID); err != nil {
		return nil, fmt.Errorf("clear user %d: %w", userID, err)
	}

	return o.engine.Generate(ctx, *user, recommend.GenerateOptions{
		MediaType: mediaType,
		RunType:   models.RunTypeManual,
	})
}

// GenerateForAllUsers runs the batch synchronously and returns the aggregate
// counts. Only one batch may be active at a time.
func (o *Orchestrator) GenerateForAllUsers(ctx context.Context) (*BatchResult, error) {
	if !o.batchActive.CompareAndSwap(false, true) {
		return nil, ErrBatchRunning
	}
	defer o.batchActive.Store(false)

	job := o.tracker.Create(JobTypeBatch)
	return o.runBatch(ctx, job.JobID, 0)
}

// StartBatch launches the batch in the background and returns the job ID
// immediately. Errors surface through the progress record, not the caller.
func (o *Orchestrator) StartBatch(ctx context.Context) (string, error) {
	if !o.batchActive.CompareAndSwap(false, true) {
		return "", ErrBatchRunning
	}

	job := o.tracker.Create(JobTypeBatch)
	go func() {
		defer o.batchActive.Store(false)
		// The batch outlives the triggering request.
		if _, err := o.runBatch(context.WithoutCancel(ctx), job.JobID, 0); err != nil {
			o.log.Error().Err(err).Str("job_id", job.JobID).Msg("background batch failed")
		}
	}()
	return job.JobID, nil
}

// ClearAndRebuildAll deletes every user's recommendation state in one
// transaction, then runs the batch.
func (o *Orchestrator) ClearAndRebuildAll(ctx context.Context) (*RebuildResult, error) {
	if !o.batchActive.CompareAndSwap(false, true) {
		return nil, ErrBatchRunning
	}
	defer o.batchActive.Store(false)

	job := o.tracker.Create(JobTypeRebuild)
	return o.runRebuild(ctx, job.JobID)
}

// StartRebuild launches clear-and-rebuild in the background and returns the
// job ID immediately.
func (o *Orchestrator) StartRebuild(ctx context.Context) (string, error) {
	if !o.batchActive.CompareAndSwap(false, true) {
		return "", ErrBatchRunning
	}

	job := o.tracker.Create(JobTypeRebuild)
	go func() {
		defer o.batchActive.Store(false)
		if _, err := o.runRebuild(context.WithoutCancel(ctx), job.JobID); err != nil {
			o.log.Error().Err(err).Str("job_id", job.JobID).Msg("background rebuild failed")
		}
	}()
	return job.JobID, nil
}

// Progress returns the current snapshot of a job.
func (o *Orchestrator) Progress(jobID string) (Progress, error) {
	return o.tracker.Get(jobID)
}

// Subscribe streams progress snapshots of a job.
func (o *Orchestrator) Subscribe(jobID string) (<-chan Progress, func(), error) {
	return o.tracker.Subscribe(jobID)
}

// Cancel requests cancellation of a running job. The batch finishes the
// current user and stops before the next.
func (o *Orchestrator) Cancel(jobID string) error {
	return o.tracker.Cancel(jobID)
}

func (o *Orchestrator) runRebuild(ctx context.Context, jobID string) (*RebuildResult, error) {
	users, err := o.users.ListEnabledUsers(ctx)
	if err != nil {
		o.failJob(jobID, err)
		return nil, fmt.Errorf("list users: %w", err)
	}

	if err := o.cleaner.ClearAllRecommendations(ctx); err != nil {
		o.failJob(jobID, err)
		return nil, fmt.Errorf("clear all recommendations: %w", err)
	}
	o.log.Info().Str("job_id", jobID).Int("users", len(users)).Msg("cleared all recommendation state")

	batch, err := o.runBatch(ctx, jobID, len(users))
	if err != nil {
		return nil, err
	}
	return &RebuildResult{BatchResult: *batch, Cleared: len(users)}, nil
}

// runBatch is the sequential all-users loop. A per-user failure is counted
// and logged but never aborts the batch; only user enumeration failure does.
// The cancellation flag is checked between users, so the user in flight
// always finalizes normally.
func (o *Orchestrator) runBatch(ctx context.Context, jobID string, cleared int) (*BatchResult, error) {
	users, err := o.users.ListEnabledUsers(ctx)
	if err != nil {
		o.failJob(jobID, err)
		return nil, fmt.Errorf("list users: %w", err)
	}

	result := &BatchResult{JobID: jobID}
	total := len(users)

	for i, user := range users {
		if o.tracker.IsCancelled(jobID) || ctx.Err() != nil {
			result.Cancelled = true
			o.log.Info().Str("job_id", jobID).Int("processed", i).Msg("batch cancelled")
			break
		}

		if err := o.generateForUser(ctx, user); err != nil {
			result.Failed++
			metrics.BatchUsersProcessed.WithLabelValues("failed").Inc()
			o.log.Error().Err(err).Str("job_id", jobID).
				Int("user_id", user.ID).Str("username", user.Username).
				Msg("batch user failed")
		} else {
			result.Success++
			metrics.BatchUsersProcessed.WithLabelValues("success").Inc()
		}

		if err := o.tracker.Update(jobID, i+1, total, user.Username); err != nil {
			o.log.Warn().Err(err).Str("job_id", jobID).Msg("progress update failed")
		}
	}

	if err := o.tracker.Complete(jobID, result.Success, result.Failed, cleared); err != nil {
		o.log.Warn().Err(err).Str("job_id", jobID).Msg("progress completion failed")
	}
	o.log.Info().Str("job_id", jobID).
		Int("success", result.Success).Int("failed", result.Failed).
		Bool("cancelled", result.Cancelled).
		Msg("batch finished")
	return result, nil
}

// generateForUser runs every configured media type for one user. The user
// counts as failed if any media type's run fails; remaining media types
// still run so one bad catalog slice does not starve the others.
func (o *Orchestrator) generateForUser(ctx context.Context, user models.User) error {
	var firstErr error
	for _, mediaType := range o.mediaTypes {
		_, err := o.engine.Generate(ctx, user, recommend.GenerateOptions{
			MediaType: mediaType,
			RunType:   models.RunTypeBatch,
		})
		if err != nil && firstErr == nil {
			firstErr = fmt.Errorf("%s: %w", mediaType, err)
		}
	}
	return firstErr
}

func (o *Orchestrator) failJob(jobID string, cause error) {
	if err := o.tracker.Fail(jobID, cause.Error()); err != nil {
		o.log.Warn().Err(err).Str("job_id", jobID).Msg("progress failure update failed")
	}
}
