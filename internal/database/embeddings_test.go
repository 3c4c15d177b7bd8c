// Tastevec - Vector-Based Media Recommendations for Emby and Jellyfin
// Copyright 2026 M. Voss (mlvoss)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mlvoss/tastevec

package database

import (
	"context"
	"math"
	"testing"

	"github.com/mlvoss/tastevec/internal/models"
)

func seedEmbedding(t *testing.T, db *DB, itemID int, mediaType string, libraryID int, vec []float32) {
	t.Helper()
	ctx := context.Background()
	if err := db.UpsertMediaItem(ctx, models.MediaItem{
		ID: itemID, Title: "item", MediaType: mediaType, LibraryID: libraryID,
	}); err != nil {
		t.Fatalf("seed item %d: %v", itemID, err)
	}
	if err := db.UpsertEmbedding(ctx, itemID, vec); err != nil {
		t.Fatalf("seed embedding %d: %v", itemID, err)
	}
}

func TestEmbeddingRoundTrip(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	want := []float32{0.1, -0.5, 0.25, 1}
	seedEmbedding(t, db, 1, models.MediaTypeMovie, 0, want)

	got, err := db.GetEmbeddings(ctx, []int{1, 2})
	if err != nil {
		t.Fatalf("GetEmbeddings: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected 1 embedding, got %d", len(got))
	}
	for d, v := range got[1] {
		if math.Abs(float64(v-want[d])) > 1e-6 {
			t.Fatalf("dimension %d: got %f, want %f", d, v, want[d])
		}
	}
}

func TestUpsertEmbeddingRejectsWrongDimensions(t *testing.T) {
	db := setupTestDB(t)
	if err := db.UpsertEmbedding(context.Background(), 1, []float32{1, 2}); err == nil {
		t.Fatal("expected dimension mismatch error")
	}
}

func TestNearestNeighborsOrderingAndScoping(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	seedEmbedding(t, db, 1, models.MediaTypeMovie, 1, []float32{1, 0, 0, 0})
	seedEmbedding(t, db, 2, models.MediaTypeMovie, 1, []float32{0.9, 0.1, 0, 0})
	seedEmbedding(t, db, 3, models.MediaTypeMovie, 2, []float32{0.8, 0.2, 0, 0})
	seedEmbedding(t, db, 4, models.MediaTypeSeries, 1, []float32{1, 0, 0, 0})

	query := []float32{1, 0, 0, 0}

	// No libraries configured: every movie is eligible, sorted by similarity.
	got, err := db.NearestNeighbors(ctx, query, models.MediaTypeMovie, 10)
	if err != nil {
		t.Fatalf("NearestNeighbors: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 movie neighbors, got %d", len(got))
	}
	if got[0].ItemID != 1 {
		t.Fatalf("closest item should rank first, got %d", got[0].ItemID)
	}
	for i := 1; i < len(got); i++ {
		if got[i].Similarity > got[i-1].Similarity {
			t.Fatal("similarities not descending")
		}
	}
	if got[0].Similarity < 0.999 {
		t.Fatalf("identical vector similarity = %f, want ~1", got[0].Similarity)
	}

	// With scoping configured, only enabled libraries qualify.
	if err := db.UpsertLibrary(ctx, 1, "Movies", true); err != nil {
		t.Fatalf("UpsertLibrary: %v", err)
	}
	if err := db.UpsertLibrary(ctx, 2, "Archive", false); err != nil {
		t.Fatalf("UpsertLibrary: %v", err)
	}

	scoped, err := db.NearestNeighbors(ctx, query, models.MediaTypeMovie, 10)
	if err != nil {
		t.Fatalf("NearestNeighbors scoped: %v", err)
	}
	if len(scoped) != 2 {
		t.Fatalf("expected 2 scoped neighbors, got %d", len(scoped))
	}
	for _, n := range scoped {
		if n.ItemID == 3 {
			t.Fatal("disabled-library item leaked through scoping")
		}
	}
}

func TestNearestWatched(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	seedEmbedding(t, db, 1, models.MediaTypeMovie, 0, []float32{1, 0, 0, 0})
	seedEmbedding(t, db, 2, models.MediaTypeMovie, 0, []float32{0, 1, 0, 0})
	seedEmbedding(t, db, 3, models.MediaTypeMovie, 0, []float32{0.9, 0.1, 0, 0})

	for _, itemID := range []int{1, 2} {
		if err := db.UpsertWatchedItem(ctx, models.WatchedItem{UserID: 1, ItemID: itemID, PlayCount: 1}); err != nil {
			t.Fatalf("seed watch: %v", err)
		}
	}

	got, err := db.NearestWatched(ctx, []float32{1, 0, 0, 0}, 1, 5)
	if err != nil {
		t.Fatalf("NearestWatched: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected only the 2 watched items, got %d", len(got))
	}
	if got[0].ItemID != 1 {
		t.Fatalf("nearest watched should be item 1, got %d", got[0].ItemID)
	}
}

func TestParseVector(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    []float32
		wantErr bool
	}{
		{"simple", "[1.0, 2.5, -3.0]", []float32{1, 2.5, -3}, false},
		{"no spaces", "[0.1,0.2]", []float32{0.1, 0.2}, false},
		{"empty", "[]", []float32{}, false},
		{"missing brackets", "1.0, 2.0", nil, true},
		{"garbage element", "[1.0, x]", nil, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseVector(tt.in)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("parseVector: %v", err)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("length %d, want %d", len(got), len(tt.want))
			}
			for i := range got {
				if math.Abs(float64(got[i]-tt.want[i])) > 1e-6 {
					t.Fatalf("element %d: %f, want %f", i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestVectorLiteralRoundTrip(t *testing.T) {
	want := []float32{0.123, -4.5, 0, 1e-3}
	got, err := parseVector(vectorLiteral(want))
	if err != nil {
		t.Fatalf("round trip: %v", err)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("element %d: %f, want %f", i, got[i], want[i])
		}
	}
}
