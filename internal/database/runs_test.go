// Tastevec - Vector-Based Media Recommendations for Emby and Jellyfin
// Copyright 2026 M. Voss (mlvoss)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mlvoss/tastevec

package database

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/mlvoss/tastevec/internal/models"
	"github.com/mlvoss/tastevec/internal/recommend"
)

func createTestRun(t *testing.T, db *DB, userID int) *models.RecommendationRun {
	t.Helper()
	run, err := models.NewRecommendationRun(userID, models.MediaTypeMovie, models.RunTypeManual)
	if err != nil {
		t.Fatalf("NewRecommendationRun: %v", err)
	}
	if err := db.CreateRun(context.Background(), run); err != nil {
		t.Fatalf("CreateRun: %v", err)
	}
	return run
}

func TestRunLifecycle(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	run := createTestRun(t, db, 1)

	got, err := db.GetRun(ctx, run.ID)
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}
	if got.Status != models.RunStatusRunning {
		t.Fatalf("new run status %s, want running", got.Status)
	}

	if err := db.FinalizeRun(ctx, run.ID, models.RunStatusCompleted, 50, 20, 1234, ""); err != nil {
		t.Fatalf("FinalizeRun: %v", err)
	}

	got, err = db.GetRun(ctx, run.ID)
	if err != nil {
		t.Fatalf("GetRun after finalize: %v", err)
	}
	if got.Status != models.RunStatusCompleted || got.CandidateCount != 50 ||
		got.SelectedCount != 20 || got.DurationMS != 1234 {
		t.Fatalf("unexpected finalized run: %+v", got)
	}

	// A finalized run is immutable: a second finalize must be rejected.
	err = db.FinalizeRun(ctx, run.ID, models.RunStatusFailed, 0, 0, 0, "late failure")
	if err == nil {
		t.Fatal("expected error finalizing twice")
	}

	got, _ = db.GetRun(ctx, run.ID)
	if got.Status != models.RunStatusCompleted {
		t.Fatalf("second finalize mutated the run: %s", got.Status)
	}
}

func TestFinalizeRunFailureKeepsMessage(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	run := createTestRun(t, db, 1)

	if err := db.FinalizeRun(ctx, run.ID, models.RunStatusFailed, 0, 0, 10, "index unavailable"); err != nil {
		t.Fatalf("FinalizeRun: %v", err)
	}

	got, err := db.GetRun(ctx, run.ID)
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}
	if got.Status != models.RunStatusFailed || got.ErrorMessage != "index unavailable" {
		t.Fatalf("unexpected failed run: %+v", got)
	}
}

func TestCandidatePersistence(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	run := createTestRun(t, db, 1)

	candidates := []recommend.Candidate{
		{ItemID: 10, Title: "First", Year: 2020, Genres: []string{"Drama"}, CommunityRating: 8.1,
			Similarity: 0.95, Novelty: 0.75, RatingScore: 0.81, DiversityScore: 1, FinalScore: 0.92,
			IsSelected: true, SelectedRank: 1},
		{ItemID: 11, Title: "Second", Similarity: 0.90, Novelty: 0.4, RatingScore: 0.5,
			DiversityScore: 0.5, FinalScore: 0.80, IsSelected: true, SelectedRank: 2},
		{ItemID: 12, Title: "Unselected", Similarity: 0.85, Novelty: 0.4, RatingScore: 0.5,
			FinalScore: 0.70},
	}
	if err := db.SaveCandidates(ctx, run.ID, candidates); err != nil {
		t.Fatalf("SaveCandidates: %v", err)
	}

	got, err := db.GetRunCandidates(ctx, run.ID)
	if err != nil {
		t.Fatalf("GetRunCandidates: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 candidates, got %d", len(got))
	}
	if got[0].ItemID != 10 || got[1].ItemID != 11 || got[2].ItemID != 12 {
		t.Fatalf("wrong order: %d, %d, %d", got[0].ItemID, got[1].ItemID, got[2].ItemID)
	}
	if !got[0].IsSelected || got[0].SelectedRank != 1 {
		t.Fatalf("selection flags lost: %+v", got[0])
	}
	if got[2].IsSelected || got[2].SelectedRank != 0 {
		t.Fatalf("unselected candidate has selection state: %+v", got[2])
	}
	if len(got[0].Genres) != 1 || got[0].Genres[0] != "Drama" {
		t.Fatalf("genres lost: %v", got[0].Genres)
	}

	if err := db.SaveExplanation(ctx, run.ID, 10, "Because you watched Heat."); err != nil {
		t.Fatalf("SaveExplanation: %v", err)
	}
}

func TestEvidencePersistence(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	run := createTestRun(t, db, 1)

	evidence := []models.Evidence{
		{RunID: run.ID, ItemID: 10, WatchedItemID: 1, Similarity: 0.9, Type: models.EvidenceFavorite},
		{RunID: run.ID, ItemID: 10, WatchedItemID: 2, Similarity: 0.8, Type: models.EvidenceWatched},
		{RunID: run.ID, ItemID: 11, WatchedItemID: 1, Similarity: 0.7, Type: models.EvidenceFavorite},
	}
	if err := db.SaveEvidence(ctx, evidence); err != nil {
		t.Fatalf("SaveEvidence: %v", err)
	}

	got, err := db.GetEvidence(ctx, run.ID)
	if err != nil {
		t.Fatalf("GetEvidence: %v", err)
	}
	if len(got[10]) != 2 || len(got[11]) != 1 {
		t.Fatalf("unexpected evidence grouping: %v", got)
	}
	if got[10][0].WatchedItemID != 1 || got[10][0].Type != models.EvidenceFavorite {
		t.Fatalf("evidence order or type wrong: %+v", got[10][0])
	}
}

func TestTasteProfileRoundTrip(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	if err := db.SaveTasteProfile(ctx, 1, models.MediaTypeMovie, []float32{0.1, 0.2, 0.3, 0.4}); err != nil {
		t.Fatalf("SaveTasteProfile: %v", err)
	}
	// Overwrite replaces the prior vector.
	want := []float32{0.5, 0.5, 0, 0}
	if err := db.SaveTasteProfile(ctx, 1, models.MediaTypeMovie, want); err != nil {
		t.Fatalf("SaveTasteProfile overwrite: %v", err)
	}

	got, err := db.GetTasteProfile(ctx, 1, models.MediaTypeMovie)
	if err != nil {
		t.Fatalf("GetTasteProfile: %v", err)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("dimension %d: %f, want %f", i, got[i], want[i])
		}
	}

	missing, err := db.GetTasteProfile(ctx, 9, models.MediaTypeMovie)
	if err != nil || missing != nil {
		t.Fatalf("missing profile: got %v, %v", missing, err)
	}
}

func TestClearUserRecommendations(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	runA := createTestRun(t, db, 1)
	runB := createTestRun(t, db, 2)

	for _, run := range []*models.RecommendationRun{runA, runB} {
		if err := db.SaveCandidates(ctx, run.ID, []recommend.Candidate{
			{ItemID: 10, Title: "X", Similarity: 0.9, FinalScore: 0.9, IsSelected: true, SelectedRank: 1},
		}); err != nil {
			t.Fatalf("SaveCandidates: %v", err)
		}
		if err := db.SaveEvidence(ctx, []models.Evidence{
			{RunID: run.ID, ItemID: 10, WatchedItemID: 1, Similarity: 0.8, Type: models.EvidenceWatched},
		}); err != nil {
			t.Fatalf("SaveEvidence: %v", err)
		}
		if err := db.SaveTasteProfile(ctx, run.UserID, models.MediaTypeMovie, []float32{1, 0, 0, 0}); err != nil {
			t.Fatalf("SaveTasteProfile: %v", err)
		}
	}

	if err := db.ClearUserRecommendations(ctx, 1); err != nil {
		t.Fatalf("ClearUserRecommendations: %v", err)
	}

	if _, err := db.GetRun(ctx, runA.ID); !errors.Is(err, ErrRunNotFound) {
		t.Fatalf("user 1 run should be gone, got %v", err)
	}
	if profile, _ := db.GetTasteProfile(ctx, 1, models.MediaTypeMovie); profile != nil {
		t.Fatal("user 1 taste profile should be gone")
	}

	// User 2's state is untouched.
	if _, err := db.GetRun(ctx, runB.ID); err != nil {
		t.Fatalf("user 2 run lost: %v", err)
	}
	if ev, _ := db.GetEvidence(ctx, runB.ID); len(ev) != 1 {
		t.Fatal("user 2 evidence lost")
	}
}

func TestClearAllRecommendations(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	run := createTestRun(t, db, 1)
	if err := db.SaveTasteProfile(ctx, 1, models.MediaTypeMovie, []float32{1, 0, 0, 0}); err != nil {
		t.Fatalf("SaveTasteProfile: %v", err)
	}

	if err := db.ClearAllRecommendations(ctx); err != nil {
		t.Fatalf("ClearAllRecommendations: %v", err)
	}
	if _, err := db.GetRun(ctx, run.ID); !errors.Is(err, ErrRunNotFound) {
		t.Fatalf("run should be gone, got %v", err)
	}

	// Clearing an already-empty store is a no-op.
	if err := db.ClearAllRecommendations(ctx); err != nil {
		t.Fatalf("second clear: %v", err)
	}
}

func TestLatestRunForUser(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	if _, err := db.LatestRunForUser(ctx, 1, models.MediaTypeMovie); !errors.Is(err, ErrRunNotFound) {
		t.Fatalf("expected ErrRunNotFound, got %v", err)
	}

	createTestRun(t, db, 1)
	time.Sleep(2 * time.Millisecond)
	second := createTestRun(t, db, 1)

	got, err := db.LatestRunForUser(ctx, 1, models.MediaTypeMovie)
	if err != nil {
		t.Fatalf("LatestRunForUser: %v", err)
	}
	if got.ID != second.ID {
		t.Fatalf("latest run %s, want %s", got.ID, second.ID)
	}
}
