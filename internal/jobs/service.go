// Tastevec - Vector-Based Media Recommendations for Emby and Jellyfin
// Copyright 2026 M. Voss (mlvoss)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mlvoss/tastevec

package jobs

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/mlvoss/tastevec/internal/logging"
)

// Scheduler is a suture-supervised service that runs the all-users batch on
// a fixed interval. A manually triggered batch in flight just skips the tick.
type Scheduler struct {
	orch      *Orchestrator
	interval  time.Duration
	onStartup bool
	log       zerolog.Logger
}

// NewScheduler builds the batch scheduler.
func NewScheduler(orch *Orchestrator, interval time.Duration, onStartup bool) *Scheduler {
	return &Scheduler{
		orch:      orch,
		interval:  interval,
		onStartup: onStartup,
		log:       logging.Logger().With().Str("component", "scheduler").Logger(),
	}
}

// Serve implements suture.Service. It blocks until the context is cancelled.
func (s *Scheduler) Serve(ctx context.Context) error {
	if s.onStartup {
		s.runOnce(ctx)
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.runOnce(ctx)
		}
	}
}

func (s *Scheduler) runOnce(ctx context.Context) {
	result, err := s.orch.GenerateForAllUsers(ctx)
	if errors.Is(err, ErrBatchRunning) {
		s.log.Info().Msg("skipping scheduled batch, another batch is active")
		return
	}
	if err != nil {
		s.log.Error().Err(err).Msg("scheduled batch failed")
		return
	}
	s.log.Info().
		Str("job_id", result.JobID).
		Int("success", result.Success).
		Int("failed", result.Failed).
		Msg("scheduled batch finished")
}

func (s *Scheduler) String() string {
	return "batch-scheduler"
}
