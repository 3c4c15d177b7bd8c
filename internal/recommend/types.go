// Tastevec - Vector-Based Media Recommendations for Emby and Jellyfin
// Copyright 2026 M. Voss (mlvoss)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mlvoss/tastevec

package recommend

import (
	"context"

	"github.com/google/uuid"

	"github.com/mlvoss/tastevec/internal/models"
)

// Note: the store interfaces below are implemented by the database package.
// Defining them here keeps this package free of storage dependencies and the
// pipeline testable against in-memory fakes.

// Candidate is an in-memory scored item. It exists only for the duration of
// one run; the top slice of candidates is persisted with the run record.
type Candidate struct {
	ItemID          int      `json:"item_id"`
	Title           string   `json:"title"`
	Year            int      `json:"year,omitempty"`
	Genres          []string `json:"genres,omitempty"`
	CommunityRating float64  `json:"community_rating,omitempty"`

	// Component scores, each in [0, 1].
	Similarity     float64 `json:"similarity"`
	Novelty        float64 `json:"novelty"`
	RatingScore    float64 `json:"rating_score"`
	DiversityScore float64 `json:"diversity_score"`

	// FinalScore is the weighted combination. The diversity selector adjusts
	// it in place after the scoring pass.
	FinalScore float64 `json:"final_score"`

	IsSelected   bool `json:"is_selected"`
	SelectedRank int  `json:"selected_rank,omitempty"`
}

// Neighbor is one nearest-neighbor query result.
type Neighbor struct {
	ItemID     int     `json:"item_id"`
	Similarity float64 `json:"similarity"`
}

// RunResult is what a completed single-user run returns to its caller.
type RunResult struct {
	RunID          uuid.UUID   `json:"run_id"`
	CandidateCount int         `json:"candidate_count"`
	Selections     []Candidate `json:"selections"`
}

// HistoryStore loads the prioritized watch-history window.
type HistoryStore interface {
	// LoadHistory returns up to limit history items ordered by
	// (isFavorite, playCount, lastPlayedAt) descending. Empty is not an error.
	LoadHistory(ctx context.Context, userID, limit int) ([]models.WatchedItem, error)
}

// CatalogStore reads item metadata for a batch of IDs.
type CatalogStore interface {
	GetItems(ctx context.Context, itemIDs []int) (map[int]models.MediaItem, error)
}

// EmbeddingStore provides vector lookups and nearest-neighbor retrieval.
// The store applies library access scoping inside the retrieval query.
type EmbeddingStore interface {
	// GetEmbeddings returns embeddings keyed by item ID; items without one
	// are absent from the map.
	GetEmbeddings(ctx context.Context, itemIDs []int) (map[int][]float32, error)

	// NearestNeighbors returns up to limit items most similar to the vector,
	// scoped to the media type and any enabled-library configuration,
	// sorted by similarity descending.
	NearestNeighbors(ctx context.Context, vector []float32, mediaType string, limit int) ([]Neighbor, error)

	// NearestWatched returns the k watched items of the user most similar
	// to the vector.
	NearestWatched(ctx context.Context, vector []float32, userID, k int) ([]Neighbor, error)
}

// RunStore persists run headers, candidates, evidence and taste profiles.
type RunStore interface {
	CreateRun(ctx context.Context, run *models.RecommendationRun) error

	// FinalizeRun records the terminal state of a run. It is called exactly
	// once per run, for success and failure alike.
	FinalizeRun(ctx context.Context, runID uuid.UUID, status models.RunStatus,
		candidateCount, selectedCount int, durationMS int64, errorMessage string) error

	SaveCandidates(ctx context.Context, runID uuid.UUID, candidates []Candidate) error
	SaveEvidence(ctx context.Context, evidence []models.Evidence) error
	SaveExplanation(ctx context.Context, runID uuid.UUID, itemID int, text string) error
	SaveTasteProfile(ctx context.Context, userID int, mediaType string, vector []float32) error
}

// Explainer produces a natural-language justification for one selection.
// Implementations typically call an external AI provider; failures are
// logged and skipped, never failing the run.
type Explainer interface {
	Explain(ctx context.Context, candidate Candidate, evidence []models.Evidence) (string, error)
}
