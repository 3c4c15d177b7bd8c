// Tastevec - Vector-Based Media Recommendations for Emby and Jellyfin
// Copyright 2026 M. Voss (mlvoss)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mlvoss/tastevec

package recommend

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/mlvoss/tastevec/internal/metrics"
	"github.com/mlvoss/tastevec/internal/models"
)

// evidenceQueryConcurrency bounds the parallel nearest-watched lookups so a
// large selection does not flood the vector index.
const evidenceQueryConcurrency = 4

// BuildEvidence links every selection to its most similar watched items.
// For each selected candidate it queries the k watched items nearest to the
// candidate's own embedding, tagging each by the strongest applicable signal:
// favorite, repeat watch, plain watch.
//
// Results keep the selections' order. A candidate without a resolvable
// embedding contributes no evidence rows and is not an error.
func BuildEvidence(ctx context.Context, store EmbeddingStore, runID uuid.UUID,
	selections []Candidate, history []models.WatchedItem, maxEvidence int) ([]models.Evidence, error) {

	if maxEvidence <= 0 || len(selections) == 0 || len(history) == 0 {
		return nil, nil
	}

	itemIDs := make([]int, len(selections))
	for i, s := range selections {
		itemIDs[i] = s.ItemID
	}
	vectors, err := store.GetEmbeddings(ctx, itemIDs)
	if err != nil {
		return nil, fmt.Errorf("load selection embeddings: %w", err)
	}

	watchedByID := make(map[int]models.WatchedItem, len(history))
	for _, h := range history {
		watchedByID[h.ItemID] = h
	}
	userID := history[0].UserID

	perSelection := make([][]models.Evidence, len(selections))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(evidenceQueryConcurrency)

	for i, sel := range selections {
		vector, ok := vectors[sel.ItemID]
		if !ok {
			continue
		}
		g.Go(func() error {
			queryStart := time.Now()
			neighbors, err := store.NearestWatched(gctx, vector, userID, maxEvidence)
			metrics.VectorQueryDuration.WithLabelValues("evidence").Observe(time.Since(queryStart).Seconds())
			if err != nil {
				return fmt.Errorf("nearest watched for item %d: %w", sel.ItemID, err)
			}

			rows := make([]models.Evidence, 0, len(neighbors))
			for _, n := range neighbors {
				watched, known := watchedByID[n.ItemID]
				if !known {
					// Watched outside the prioritized window; still valid
					// evidence, classified as a plain watch.
					watched = models.WatchedItem{UserID: userID, ItemID: n.ItemID}
				}
				rows = append(rows, models.Evidence{
					RunID:         runID,
					ItemID:        sel.ItemID,
					WatchedItemID: n.ItemID,
					Similarity:    n.Similarity,
					Type:          models.ClassifyEvidence(watched),
				})
			}
			perSelection[i] = rows
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	var evidence []models.Evidence
	for _, rows := range perSelection {
		evidence = append(evidence, rows...)
	}
	return evidence, nil
}
