// Tastevec - Vector-Based Media Recommendations for Emby and Jellyfin
// Copyright 2026 M. Voss (mlvoss)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mlvoss/tastevec

package recommend

import (
	"fmt"
	"strings"
)

// noGenreDiversity is the neutral diversity score for candidates without
// genre metadata.
const noGenreDiversity = 0.5

// SelectDiverse runs a single greedy pass over candidates already sorted by
// final score, accepting up to targetCount of them. Duplicate title/year
// entries are skipped, and each accepted candidate has its final score
// adjusted by how little its genres overlap with the selections so far.
// Acceptance order is preserved; the adjustment never re-sorts.
//
// The input slice is mutated: accepted candidates get IsSelected, a dense
// SelectedRank starting at 1, a DiversityScore and an adjusted FinalScore.
// Returns the accepted candidates in rank order.
func SelectDiverse(candidates []Candidate, targetCount int, diversityWeight float64) []Candidate {
	selected := make([]Candidate, 0, targetCount)
	seenKeys := make(map[string]struct{}, targetCount)
	claimedGenres := make(map[string]struct{})

	for i := range candidates {
		if len(selected) >= targetCount {
			break
		}
		c := &candidates[i]

		key := dedupeKey(c.Title, c.Year)
		if _, dup := seenKeys[key]; dup {
			continue
		}

		c.DiversityScore = diversityScore(c.Genres, claimedGenres)
		c.FinalScore += c.DiversityScore * diversityWeight
		c.IsSelected = true
		c.SelectedRank = len(selected) + 1

		seenKeys[key] = struct{}{}
		for _, genre := range c.Genres {
			claimedGenres[genre] = struct{}{}
		}
		selected = append(selected, *c)
	}
	return selected
}

// diversityScore is the fraction of the candidate's genres not yet claimed
// by prior selections.
func diversityScore(genres []string, claimed map[string]struct{}) float64 {
	if len(genres) == 0 {
		return noGenreDiversity
	}

	overlap := 0
	for _, genre := range genres {
		if _, ok := claimed[genre]; ok {
			overlap++
		}
	}
	return 1 - float64(overlap)/float64(len(genres))
}

// dedupeKey normalizes title and year into a duplicate-suppression key so
// multiple catalog entries for the same release collapse to one selection.
func dedupeKey(title string, year int) string {
	return fmt.Sprintf("%s|%d", strings.ToLower(strings.TrimSpace(title)), year)
}
