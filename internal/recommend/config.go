// Tastevec - Vector-Based Media Recommendations for Emby and Jellyfin
// Copyright 2026 M. Voss (mlvoss)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mlvoss/tastevec

package recommend

import (
	"fmt"

	"github.com/mlvoss/tastevec/internal/models"
)

// Config holds the pipeline tuning parameters for one engine instance.
type Config struct {
	// Weights are the default scoring weights, overridable per user and
	// media type via models.User.WeightOverrides.
	Weights models.ScoringWeights

	// HistoryLimit bounds the prioritized watch-history window.
	HistoryLimit int

	// GenreWindow is how many history entries feed the genre preference table.
	GenreWindow int

	// CandidateLimit is how many nearest neighbors to retrieve per run.
	CandidateLimit int

	// TargetCount is how many recommendations to select per run.
	TargetCount int

	// MaxEvidence caps evidence rows per selected candidate.
	MaxEvidence int

	// PersistTopN is the stored-candidate window. The effective window is
	// max(PersistTopN, selected count) so selected items are always stored.
	PersistTopN int

	// ExplanationsEnabled turns on the optional explanation generator.
	ExplanationsEnabled bool
}

// DefaultConfig returns production defaults.
func DefaultConfig() *Config {
	return &Config{
		Weights: models.ScoringWeights{
			Similarity: 0.5,
			Novelty:    0.2,
			Rating:     0.3,
			Diversity:  0.15,
		},
		HistoryLimit:   50,
		GenreWindow:    30,
		CandidateLimit: 100,
		TargetCount:    20,
		MaxEvidence:    3,
		PersistTopN:    100,
	}
}

// Validate checks the configuration for consistency.
func (c *Config) Validate() error {
	if err := c.Weights.Validate(); err != nil {
		return err
	}
	if c.HistoryLimit <= 0 {
		return fmt.Errorf("history limit must be positive, got %d", c.HistoryLimit)
	}
	if c.GenreWindow <= 0 || c.GenreWindow > c.HistoryLimit {
		return fmt.Errorf("genre window must be in [1, %d], got %d", c.HistoryLimit, c.GenreWindow)
	}
	if c.CandidateLimit <= 0 {
		return fmt.Errorf("candidate limit must be positive, got %d", c.CandidateLimit)
	}
	if c.TargetCount <= 0 || c.TargetCount > c.CandidateLimit {
		return fmt.Errorf("target count must be in [1, %d], got %d", c.CandidateLimit, c.TargetCount)
	}
	if c.MaxEvidence < 0 {
		return fmt.Errorf("max evidence cannot be negative, got %d", c.MaxEvidence)
	}
	if c.PersistTopN <= 0 {
		return fmt.Errorf("persist window must be positive, got %d", c.PersistTopN)
	}
	return nil
}

// Clone returns a copy of the configuration.
func (c *Config) Clone() *Config {
	clone := *c
	return &clone
}

// WeightsFor resolves the effective weights for a user and media type:
// the user's per-media-type override when present, the config defaults
// otherwise, with an explicit per-call override taking highest precedence.
func (c *Config) WeightsFor(user models.User, mediaType string, override *models.ScoringWeights) models.ScoringWeights {
	if override != nil {
		return *override
	}
	if w, ok := user.WeightOverrides[mediaType]; ok {
		return w
	}
	return c.Weights
}
