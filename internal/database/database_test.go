// Tastevec - Vector-Based Media Recommendations for Emby and Jellyfin
// Copyright 2026 M. Voss (mlvoss)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mlvoss/tastevec

package database

import (
	"context"
	"testing"
	"time"

	"github.com/mlvoss/tastevec/internal/config"
	"github.com/mlvoss/tastevec/internal/models"
)

// testDims keeps test vectors small and readable.
const testDims = 4

func setupTestDB(t *testing.T) *DB {
	t.Helper()

	db, err := New(&config.DatabaseConfig{
		Path:                   ":memory:",
		MaxMemory:              "512MB",
		Threads:                2,
		PreserveInsertionOrder: true,
		EmbeddingDimensions:    testDims,
	})
	if err != nil {
		t.Fatalf("open test database: %v", err)
	}
	t.Cleanup(func() {
		if err := db.Close(); err != nil {
			t.Errorf("close test database: %v", err)
		}
	})
	return db
}

func TestPing(t *testing.T) {
	db := setupTestDB(t)
	if err := db.Ping(context.Background()); err != nil {
		t.Fatalf("ping: %v", err)
	}
}

func TestLoadHistoryOrdering(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	old := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	recent := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)

	seed := []models.WatchedItem{
		{UserID: 1, ItemID: 10, PlayCount: 1, LastPlayedAt: &recent},
		{UserID: 1, ItemID: 11, PlayCount: 9, LastPlayedAt: &old},
		{UserID: 1, ItemID: 12, PlayCount: 1, IsFavorite: true, LastPlayedAt: &old},
		{UserID: 1, ItemID: 13, PlayCount: 1},
		{UserID: 2, ItemID: 10, PlayCount: 3},
	}
	for _, item := range seed {
		if err := db.UpsertWatchedItem(ctx, item); err != nil {
			t.Fatalf("seed history: %v", err)
		}
	}

	history, err := db.LoadHistory(ctx, 1, 10)
	if err != nil {
		t.Fatalf("LoadHistory: %v", err)
	}

	// Favorite first, then by play count, then recency, nulls last. The
	// other user's rows never leak in.
	wantOrder := []int{12, 11, 10, 13}
	if len(history) != len(wantOrder) {
		t.Fatalf("got %d rows, want %d", len(history), len(wantOrder))
	}
	for i, want := range wantOrder {
		if history[i].ItemID != want {
			t.Fatalf("position %d: item %d, want %d", i, history[i].ItemID, want)
		}
	}

	limited, err := db.LoadHistory(ctx, 1, 2)
	if err != nil {
		t.Fatalf("LoadHistory limited: %v", err)
	}
	if len(limited) != 2 || limited[0].ItemID != 12 {
		t.Fatalf("limit must keep the strongest signals, got %v", limited)
	}

	empty, err := db.LoadHistory(ctx, 99, 10)
	if err != nil {
		t.Fatalf("LoadHistory empty: %v", err)
	}
	if len(empty) != 0 {
		t.Fatalf("expected empty history for unknown user, got %d rows", len(empty))
	}
}

func TestUserRoundTrip(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	user := models.User{
		ID:       5,
		Username: "carol",
		Enabled:  true,
		WeightOverrides: map[string]models.ScoringWeights{
			models.MediaTypeMovie: {Similarity: 0.7, Novelty: 0.1, Rating: 0.2, Diversity: 0.1},
		},
	}
	if err := db.UpsertUser(ctx, user); err != nil {
		t.Fatalf("UpsertUser: %v", err)
	}

	got, err := db.GetUser(ctx, 5)
	if err != nil {
		t.Fatalf("GetUser: %v", err)
	}
	if got.Username != "carol" || !got.Enabled {
		t.Fatalf("unexpected user: %+v", got)
	}
	if w := got.WeightOverrides[models.MediaTypeMovie]; w.Similarity != 0.7 {
		t.Fatalf("weight overrides lost: %+v", got.WeightOverrides)
	}

	if _, err := db.GetUser(ctx, 404); err == nil {
		t.Fatal("expected ErrUserNotFound")
	}
}

func TestListEnabledUsers(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	users := []models.User{
		{ID: 3, Username: "c", Enabled: true},
		{ID: 1, Username: "a", Enabled: true},
		{ID: 2, Username: "b", Enabled: false},
	}
	for _, u := range users {
		if err := db.UpsertUser(ctx, u); err != nil {
			t.Fatalf("UpsertUser: %v", err)
		}
	}

	got, err := db.ListEnabledUsers(ctx)
	if err != nil {
		t.Fatalf("ListEnabledUsers: %v", err)
	}
	if len(got) != 2 || got[0].ID != 1 || got[1].ID != 3 {
		t.Fatalf("expected enabled users [1 3], got %+v", got)
	}
}

func TestGetItemsDecodesGenres(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	item := models.MediaItem{
		ID: 7, Title: "Ran", MediaType: models.MediaTypeMovie, Year: 1985,
		Genres: []string{"Drama", "War"}, CommunityRating: 8.2, LibraryID: 1,
	}
	if err := db.UpsertMediaItem(ctx, item); err != nil {
		t.Fatalf("UpsertMediaItem: %v", err)
	}

	got, err := db.GetItems(ctx, []int{7, 999})
	if err != nil {
		t.Fatalf("GetItems: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected 1 item, got %d", len(got))
	}
	if g := got[7].Genres; len(g) != 2 || g[0] != "Drama" {
		t.Fatalf("genres not decoded: %v", g)
	}

	none, err := db.GetItems(ctx, nil)
	if err != nil || len(none) != 0 {
		t.Fatalf("empty ID list: got %v, %v", none, err)
	}
}
