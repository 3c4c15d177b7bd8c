// Tastevec - Vector-Based Media Recommendations for Emby and Jellyfin
// Copyright 2026 M. Voss (mlvoss)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mlvoss/tastevec

package recommend

import (
	"math"
	"testing"

	"github.com/mlvoss/tastevec/internal/models"
)

func TestBuildProfileEmptyHistory(t *testing.T) {
	if got := BuildProfile(nil, nil, nil); got != nil {
		t.Fatalf("expected nil profile for empty history, got %v", got)
	}
}

func TestBuildProfileNoResolvableEmbeddings(t *testing.T) {
	history := []models.WatchedItem{
		{UserID: 1, ItemID: 10, PlayCount: 1},
		{UserID: 1, ItemID: 11, PlayCount: 1},
	}
	got := BuildProfile(history, map[int]models.MediaItem{}, map[int][]float32{})
	if got != nil {
		t.Fatalf("expected nil profile without embeddings, got %v", got)
	}
}

func TestBuildProfileDimensionality(t *testing.T) {
	history := []models.WatchedItem{
		{UserID: 1, ItemID: 10, PlayCount: 1},
		{UserID: 1, ItemID: 11, PlayCount: 2},
		{UserID: 1, ItemID: 12, PlayCount: 1},
	}
	embeddings := map[int][]float32{
		10: {1, 0, 0, 0},
		11: {0, 1, 0, 0},
		// item 12 has no embedding and must be skipped.
	}

	got := BuildProfile(history, map[int]models.MediaItem{}, embeddings)
	if len(got) != 4 {
		t.Fatalf("expected 4-dimensional profile, got %d dimensions", len(got))
	}
}

func TestBuildProfileSingleItemIsIdentity(t *testing.T) {
	history := []models.WatchedItem{{UserID: 1, ItemID: 10, PlayCount: 1}}
	embeddings := map[int][]float32{10: {0.25, -0.5, 0.75}}

	got := BuildProfile(history, map[int]models.MediaItem{}, embeddings)
	for d, want := range embeddings[10] {
		if math.Abs(float64(got[d]-want)) > 1e-6 {
			t.Fatalf("dimension %d: got %f, want %f", d, got[d], want)
		}
	}
}

func TestBuildProfileFavoriteOutweighsPlain(t *testing.T) {
	// A favorite pointing at +x and a plain watch at +y: the profile must
	// lean toward x.
	history := []models.WatchedItem{
		{UserID: 1, ItemID: 10, PlayCount: 1, IsFavorite: true},
		{UserID: 1, ItemID: 11, PlayCount: 1},
	}
	embeddings := map[int][]float32{
		10: {1, 0},
		11: {0, 1},
	}

	got := BuildProfile(history, map[int]models.MediaItem{}, embeddings)
	if got[0] <= got[1] {
		t.Fatalf("favorite should dominate: got x=%f y=%f", got[0], got[1])
	}
}

func TestBuildProfileWeightCapLimitsExtremeItem(t *testing.T) {
	// One favorited, heavily rewatched, top-rated item against many plain
	// watches. Its raw weight (1.8 x 1.4 x 1.15 ~ 2.9) exceeds 3x the mean,
	// so the cap must clamp it and the plain watches keep most of the mass.
	history := []models.WatchedItem{
		{UserID: 1, ItemID: 10, PlayCount: 500, IsFavorite: true},
	}
	items := map[int]models.MediaItem{10: {ID: 10, CommunityRating: 10}}
	embeddings := map[int][]float32{10: {1, 0}}
	for i := 0; i < 30; i++ {
		history = append(history, models.WatchedItem{UserID: 1, ItemID: 20 + i, PlayCount: 1})
		embeddings[20+i] = []float32{0, 1}
	}

	got := BuildProfile(history, items, embeddings)

	if got[0] > 0.15 {
		t.Fatalf("extreme item exceeded capped share: x=%f", got[0])
	}
	if got[1] < 0.85 {
		t.Fatalf("plain watches lost too much mass: y=%f", got[1])
	}
}

func TestRatingBoost(t *testing.T) {
	tests := []struct {
		name   string
		rating float64
		want   float64
	}{
		{"unrated", 0, 1.0},
		{"below threshold", 7.4, 1.0},
		{"at threshold", 7.5, 1.0},
		{"perfect", 10, 1.15},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ratingBoost(tt.rating); math.Abs(got-tt.want) > 1e-9 {
				t.Fatalf("ratingBoost(%v) = %f, want %f", tt.rating, got, tt.want)
			}
		})
	}

	mid := ratingBoost(8.75)
	if math.Abs(mid-1.075) > 1e-9 {
		t.Fatalf("ratingBoost(8.75) = %f, want 1.075", mid)
	}
}

func TestFavoriteBoostTiers(t *testing.T) {
	tests := []struct {
		favorites int
		want      float64
	}{
		{1, 1.8},
		{10, 1.8},
		{11, 1.5},
		{20, 1.5},
		{21, 1.3},
	}
	for _, tt := range tests {
		if got := favoriteBoost(true, tt.favorites); got != tt.want {
			t.Fatalf("favoriteBoost(true, %d) = %f, want %f", tt.favorites, got, tt.want)
		}
	}
	if got := favoriteBoost(false, 1); got != 1.0 {
		t.Fatalf("non-favorite must not be boosted, got %f", got)
	}
}

func TestPlayCountBoost(t *testing.T) {
	if got := playCountBoost(1, 10); got != 1.0 {
		t.Fatalf("single play must not be boosted, got %f", got)
	}
	if got := playCountBoost(10, 10); math.Abs(got-1.4) > 1e-9 {
		t.Fatalf("max play count should hit the +40%% cap, got %f", got)
	}
	mid := playCountBoost(3, 10)
	if mid <= 1.0 || mid >= 1.4 {
		t.Fatalf("partial rewatch boost out of range: %f", mid)
	}
}

func TestPositionFactor(t *testing.T) {
	if got := positionFactor(0, 50); got != 1.0 {
		t.Fatalf("first position must weigh 1.0, got %f", got)
	}
	last := positionFactor(49, 50)
	if last < 0.7 || last > 0.71 {
		t.Fatalf("last position should approach 0.7, got %f", last)
	}
}
