// Tastevec - Vector-Based Media Recommendations for Emby and Jellyfin
// Copyright 2026 M. Voss (mlvoss)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mlvoss/tastevec

// Package models defines the persistent value types shared across the
// recommendation pipeline: users, watch history, catalog items, runs,
// candidates and evidence.
package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// MediaType identifies the catalog item kind a run operates on.
const (
	MediaTypeMovie  = "movie"
	MediaTypeSeries = "series"
)

// RunStatus is the lifecycle state of a recommendation run.
type RunStatus string

const (
	// RunStatusRunning marks a run that has started but not finalized.
	RunStatusRunning RunStatus = "running"
	// RunStatusCompleted marks a successfully finalized run.
	RunStatusCompleted RunStatus = "completed"
	// RunStatusFailed marks a run finalized with an error.
	RunStatusFailed RunStatus = "failed"
)

// RunType distinguishes how a run was triggered.
type RunType string

const (
	// RunTypeManual is a run triggered for a single user by an operator or API call.
	RunTypeManual RunType = "manual"
	// RunTypeBatch is a run executed as part of an all-users batch.
	RunTypeBatch RunType = "batch"
)

// EvidenceType classifies why a watched item supports a recommendation.
type EvidenceType string

const (
	// EvidenceFavorite marks evidence from an item the user favorited.
	EvidenceFavorite EvidenceType = "favorite"
	// EvidenceHighlyRated marks evidence from an item the user rewatched
	// (play count above one). The label follows the run record vocabulary.
	EvidenceHighlyRated EvidenceType = "highly_rated"
	// EvidenceWatched marks evidence from a plain single watch.
	EvidenceWatched EvidenceType = "watched"
)

// ScoringWeights are the multipliers applied to the component scores when
// computing a candidate's final score. Weights need not sum to one; the
// preference bonus is additive and unweighted.
type ScoringWeights struct {
	Similarity float64 `json:"similarity" koanf:"similarity"`
	Novelty    float64 `json:"novelty" koanf:"novelty"`
	Rating     float64 `json:"rating" koanf:"rating"`
	Diversity  float64 `json:"diversity" koanf:"diversity"`
}

// Validate checks that every weight is within [0, 2].
func (w ScoringWeights) Validate() error {
	check := func(name string, v float64) error {
		if v < 0 || v > 2 {
			return fmt.Errorf("weight %s out of range [0, 2]: %f", name, v)
		}
		return nil
	}
	if err := check("similarity", w.Similarity); err != nil {
		return err
	}
	if err := check("novelty", w.Novelty); err != nil {
		return err
	}
	if err := check("rating", w.Rating); err != nil {
		return err
	}
	return check("diversity", w.Diversity)
}

// User is a media-server user enrolled in recommendation generation.
type User struct {
	ID       int    `json:"id"`
	Username string `json:"username"`

	// Enabled controls whether the batch orchestrator processes this user.
	Enabled bool `json:"enabled"`

	// IncludeWatched allows already-watched items to appear in results.
	IncludeWatched bool `json:"include_watched"`

	// WeightOverrides holds per-media-type scoring weight overrides keyed by
	// media type. A missing entry falls back to the configured defaults.
	WeightOverrides map[string]ScoringWeights `json:"weight_overrides,omitempty"`
}

// WatchedItem is one immutable watch-history fact. History rows are written
// by the external media-server sync process and are read-only here.
type WatchedItem struct {
	UserID       int        `json:"user_id"`
	ItemID       int        `json:"item_id"`
	LastPlayedAt *time.Time `json:"last_played_at,omitempty"`
	PlayCount    int        `json:"play_count"`
	IsFavorite   bool       `json:"is_favorite"`
}

// MediaItem is catalog metadata for a single item. The catalog is populated
// by the external sync collaborator and read-only to this subsystem.
type MediaItem struct {
	ID        int      `json:"id"`
	Title     string   `json:"title"`
	MediaType string   `json:"media_type"`
	Year      int      `json:"year,omitempty"`
	Genres    []string `json:"genres,omitempty"`

	// CommunityRating is the 0-10 community score. Zero means unrated.
	CommunityRating float64 `json:"community_rating,omitempty"`

	// LibraryID scopes the item to a media-server library for access control.
	LibraryID int `json:"library_id,omitempty"`
}

// RecommendationRun is the persisted header of one pipeline execution.
// A run is created with status running and finalized exactly once.
type RecommendationRun struct {
	ID             uuid.UUID `json:"id"`
	UserID         int       `json:"user_id"`
	MediaType      string    `json:"media_type"`
	RunType        RunType   `json:"run_type"`
	CandidateCount int       `json:"candidate_count"`
	SelectedCount  int       `json:"selected_count"`
	DurationMS     int64     `json:"duration_ms"`
	Status         RunStatus `json:"status"`
	ErrorMessage   string    `json:"error_message,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

// NewRecommendationRun constructs a run header in the running state.
func NewRecommendationRun(userID int, mediaType string, runType RunType) (*RecommendationRun, error) {
	if userID <= 0 {
		return nil, fmt.Errorf("invalid user id: %d", userID)
	}
	if mediaType == "" {
		return nil, fmt.Errorf("media type is required")
	}
	if runType == "" {
		runType = RunTypeManual
	}

	return &RecommendationRun{
		ID:        uuid.New(),
		UserID:    userID,
		MediaType: mediaType,
		RunType:   runType,
		Status:    RunStatusRunning,
		CreatedAt: time.Now().UTC(),
	}, nil
}

// Evidence links a selected candidate to one similar watched item.
type Evidence struct {
	RunID         uuid.UUID    `json:"run_id"`
	ItemID        int          `json:"item_id"`
	WatchedItemID int          `json:"watched_item_id"`
	Similarity    float64      `json:"similarity"`
	Type          EvidenceType `json:"type"`
}

// ClassifyEvidence tags a watched item by the strongest signal it carries:
// favorite, then repeat watch, then plain watch.
func ClassifyEvidence(w WatchedItem) EvidenceType {
	switch {
	case w.IsFavorite:
		return EvidenceFavorite
	case w.PlayCount > 1:
		return EvidenceHighlyRated
	default:
		return EvidenceWatched
	}
}
