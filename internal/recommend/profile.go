// Tastevec - Vector-Based Media Recommendations for Emby and Jellyfin
// Copyright 2026 M. Voss (mlvoss)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mlvoss/tastevec

package recommend

import (
	"math"

	"github.com/mlvoss/tastevec/internal/models"
)

// Taste profile construction. The profile is a single vector per
// (user, mediaType): a weighted average of watched-item embeddings where the
// weight encodes how strongly each item signals the user's taste.

const (
	// positionDecay is how much weight the last history entry loses relative
	// to the first (1.0 down to 0.7).
	positionDecay = 0.3

	// playCountBoostMax caps the sub-linear rewatch boost at +40%.
	playCountBoostMax = 0.4

	// ratingBoostMax caps the community-rating boost at +15%.
	ratingBoostMax = 0.15

	// ratingBoostThreshold is the community rating where the boost starts.
	ratingBoostThreshold = 7.5

	// weightCapFactor caps any single weight at this multiple of the mean,
	// so one extreme item cannot dominate the profile.
	weightCapFactor = 3.0
)

// BuildProfile converts the prioritized history into a taste vector.
//
// history must already be in loader order (favorites and rewatches first);
// items supplies community ratings; embeddings supplies vectors keyed by
// item ID. Returns nil when no history item has a resolvable embedding —
// the caller must treat that as "no candidates", not as an error.
func BuildProfile(history []models.WatchedItem, items map[int]models.MediaItem, embeddings map[int][]float32) []float32 {
	if len(history) == 0 {
		return nil
	}

	type weighted struct {
		vector []float32
		weight float64
	}

	favoriteCount := 0
	maxPlayCount := 0
	for _, h := range history {
		if h.IsFavorite {
			favoriteCount++
		}
		if h.PlayCount > maxPlayCount {
			maxPlayCount = h.PlayCount
		}
	}

	var entries []weighted
	var dims int
	total := len(history)

	for i, h := range history {
		vector, ok := embeddings[h.ItemID]
		if !ok {
			continue
		}
		if dims == 0 {
			dims = len(vector)
		}
		if len(vector) != dims {
			continue
		}

		weight := positionFactor(i, total)
		weight *= playCountBoost(h.PlayCount, maxPlayCount)
		weight *= favoriteBoost(h.IsFavorite, favoriteCount)
		weight *= ratingBoost(items[h.ItemID].CommunityRating)

		entries = append(entries, weighted{vector: vector, weight: weight})
	}

	if len(entries) == 0 {
		return nil
	}

	var weightSum float64
	for _, e := range entries {
		weightSum += e.weight
	}
	maxWeight := weightSum / float64(len(entries)) * weightCapFactor
	for i := range entries {
		if entries[i].weight > maxWeight {
			entries[i].weight = maxWeight
		}
	}

	sum := make([]float64, dims)
	var totalWeight float64
	for _, e := range entries {
		for d, v := range e.vector {
			sum[d] += float64(v) * e.weight
		}
		totalWeight += e.weight
	}

	profile := make([]float32, dims)
	for d := range sum {
		profile[d] = float32(sum[d] / totalWeight)
	}
	return profile
}

// positionFactor decays linearly from 1.0 for the first (most favored) item
// to 1-positionDecay for the last, so the tail still contributes.
func positionFactor(index, total int) float64 {
	return 1.0 - (float64(index)/float64(total))*positionDecay
}

// playCountBoost rewards rewatches sub-linearly: log-scaled against the
// user's own maximum play count and capped, so one extreme rewatch cannot
// dominate the profile.
func playCountBoost(playCount, maxPlayCount int) float64 {
	if playCount <= 1 || maxPlayCount <= 1 {
		return 1.0
	}
	return 1.0 + math.Log2(float64(playCount)+1)/math.Log2(float64(maxPlayCount)+1)*playCountBoostMax
}

// favoriteBoost scales with the size of the favorite set: users with few
// favorites signal strongly per item, heavy favoriters less so.
func favoriteBoost(isFavorite bool, favoriteCount int) float64 {
	if !isFavorite {
		return 1.0
	}
	switch {
	case favoriteCount <= 10:
		return 1.8
	case favoriteCount <= 20:
		return 1.5
	default:
		return 1.3
	}
}

// ratingBoost adds up to ratingBoostMax linearly between the threshold and a
// perfect 10. Unrated items (rating 0) get no boost.
func ratingBoost(communityRating float64) float64 {
	if communityRating < ratingBoostThreshold {
		return 1.0
	}
	fraction := (communityRating - ratingBoostThreshold) / (10.0 - ratingBoostThreshold)
	if fraction > 1 {
		fraction = 1
	}
	return 1.0 + fraction*ratingBoostMax
}
