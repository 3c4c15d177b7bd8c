// Tastevec - Vector-Based Media Recommendations for Emby and Jellyfin
// Copyright 2026 M. Voss (mlvoss)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mlvoss/tastevec

package recommend

import (
	"context"
	"fmt"
)

// Retriever turns a taste vector into a similarity-sorted candidate list.
// Library access scoping happens inside the store query; watched-item
// exclusion happens here because the vector index has no exclude-by-ID
// operator, so the query over-fetches and filters client-side.
type Retriever struct {
	embeddings EmbeddingStore
	catalog    CatalogStore
}

// NewRetriever builds a retriever over the given stores.
func NewRetriever(embeddings EmbeddingStore, catalog CatalogStore) *Retriever {
	return &Retriever{embeddings: embeddings, catalog: catalog}
}

// Retrieve returns up to limit candidates nearest to the taste vector,
// hydrated with catalog metadata and sorted by similarity descending.
// When includeWatched is false, watched items are excluded; the underlying
// query fetches limit+len(watchedIDs) rows so the filter still leaves a full
// page whenever enough unwatched items exist.
func (r *Retriever) Retrieve(ctx context.Context, vector []float32, mediaType string,
	watchedIDs map[int]struct{}, limit int, includeWatched bool) ([]Candidate, error) {

	fetchLimit := limit
	if !includeWatched {
		fetchLimit += len(watchedIDs)
	}

	neighbors, err := r.embeddings.NearestNeighbors(ctx, vector, mediaType, fetchLimit)
	if err != nil {
		return nil, fmt.Errorf("nearest neighbors: %w", err)
	}

	filtered := neighbors[:0]
	for _, n := range neighbors {
		if !includeWatched {
			if _, watched := watchedIDs[n.ItemID]; watched {
				continue
			}
		}
		filtered = append(filtered, n)
		if len(filtered) == limit {
			break
		}
	}

	if len(filtered) == 0 {
		return nil, nil
	}

	itemIDs := make([]int, len(filtered))
	for i, n := range filtered {
		itemIDs[i] = n.ItemID
	}
	items, err := r.catalog.GetItems(ctx, itemIDs)
	if err != nil {
		return nil, fmt.Errorf("hydrate candidates: %w", err)
	}

	candidates := make([]Candidate, 0, len(filtered))
	for _, n := range filtered {
		item, ok := items[n.ItemID]
		if !ok {
			// Embedding row without a catalog row; the sync collaborator
			// owns both, so just drop it.
			continue
		}
		candidates = append(candidates, Candidate{
			ItemID:          n.ItemID,
			Title:           item.Title,
			Year:            item.Year,
			Genres:          item.Genres,
			CommunityRating: item.CommunityRating,
			Similarity:      n.Similarity,
		})
	}
	return candidates, nil
}
