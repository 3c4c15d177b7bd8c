// Tastevec - Vector-Based Media Recommendations for Emby and Jellyfin
// Copyright 2026 M. Voss (mlvoss)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mlvoss/tastevec

package recommend

import (
	"sort"

	"github.com/mlvoss/tastevec/internal/models"
)

// Multi-factor scoring. Each candidate gets component scores in [0, 1] and a
// weighted final score; the slice is then sorted by final score descending so
// the diversity selector can run a single greedy pass.

const (
	// noveltyFamiliar is the score for a candidate whose genres are all known.
	noveltyFamiliar = 0.4

	// noveltyExcessive is the score when too many genres are unfamiliar.
	noveltyExcessive = 0.3

	// noveltyExcessiveRatio is the unfamiliar-genre ratio above which a
	// candidate counts as excessive rather than exploratory.
	noveltyExcessiveRatio = 0.7

	// preferenceBonusScale and preferenceBonusCap bound the additive genre
	// preference nudge so it cannot override the weighted terms.
	preferenceBonusScale = 0.3
	preferenceBonusCap   = 0.15

	// neutralRatingScore is used when an item has no community rating.
	neutralRatingScore = 0.5
)

// GenrePreferences is a normalized genre frequency distribution built from a
// window of recent history. Values sum to 1 across all observed genres.
type GenrePreferences map[string]float64

// BuildGenrePreferences tabulates genre occurrences over the window most
// recently played history items and normalizes by total occurrences. The
// loader returns history in favorite/play-count priority order, so the window
// is re-sorted by LastPlayedAt here; entries without a play timestamp sort
// last.
func BuildGenrePreferences(history []models.WatchedItem, items map[int]models.MediaItem, window int) GenrePreferences {
	if window > len(history) {
		window = len(history)
	}

	recent := append([]models.WatchedItem(nil), history...)
	sort.SliceStable(recent, func(i, j int) bool {
		a, b := recent[i].LastPlayedAt, recent[j].LastPlayedAt
		switch {
		case a == nil:
			return false
		case b == nil:
			return true
		default:
			return a.After(*b)
		}
	})

	counts := make(map[string]int)
	total := 0
	for _, h := range recent[:window] {
		for _, genre := range items[h.ItemID].Genres {
			counts[genre]++
			total++
		}
	}

	prefs := make(GenrePreferences, len(counts))
	if total == 0 {
		return prefs
	}
	for genre, count := range counts {
		prefs[genre] = float64(count) / float64(total)
	}
	return prefs
}

// ScoreCandidates fills in novelty, rating and final scores for every
// candidate and sorts the slice by final score descending. Similarity is
// already set from retrieval. The sort is stable with similarity and item ID
// as tie-breakers so equal scores rank deterministically.
func ScoreCandidates(candidates []Candidate, prefs GenrePreferences, weights models.ScoringWeights) []Candidate {
	for i := range candidates {
		c := &candidates[i]
		c.Novelty = noveltyScore(c.Genres, prefs)
		c.RatingScore = ratingScore(c.CommunityRating)
		c.FinalScore = c.Similarity*weights.Similarity +
			c.Novelty*weights.Novelty +
			c.RatingScore*weights.Rating +
			preferenceBonus(c.Genres, prefs)
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].FinalScore != candidates[j].FinalScore {
			return candidates[i].FinalScore > candidates[j].FinalScore
		}
		if candidates[i].Similarity != candidates[j].Similarity {
			return candidates[i].Similarity > candidates[j].Similarity
		}
		return candidates[i].ItemID < candidates[j].ItemID
	})
	return candidates
}

// noveltyScore rewards moderate exploration: fully familiar and almost
// entirely unfamiliar genre sets both score below a partial mix.
func noveltyScore(genres []string, prefs GenrePreferences) float64 {
	if len(genres) == 0 {
		return noveltyFamiliar
	}

	novel := 0
	for _, genre := range genres {
		if _, known := prefs[genre]; !known {
			novel++
		}
	}

	ratio := float64(novel) / float64(len(genres))
	switch {
	case ratio == 0:
		return noveltyFamiliar
	case ratio >= noveltyExcessiveRatio:
		return noveltyExcessive
	default:
		return 0.5 + ratio*0.5
	}
}

// ratingScore maps a 0-10 community rating onto [0, 1] with piecewise bands
// that spread the common 6-10 range wider than a plain division would.
func ratingScore(rating float64) float64 {
	switch {
	case rating == 0:
		return neutralRatingScore
	case rating >= 8:
		return 0.8 + (rating-8)/2*0.2
	case rating >= 7:
		return 0.6 + (rating-7)*0.2
	case rating >= 6:
		return 0.4 + (rating-6)*0.2
	default:
		return rating / 15
	}
}

// preferenceBonus sums the preference weight of the candidate's genres,
// scaled and capped so it stays a tie-breaking nudge.
func preferenceBonus(genres []string, prefs GenrePreferences) float64 {
	var sum float64
	for _, genre := range genres {
		sum += prefs[genre]
	}
	bonus := sum * preferenceBonusScale
	if bonus > preferenceBonusCap {
		bonus = preferenceBonusCap
	}
	return bonus
}
