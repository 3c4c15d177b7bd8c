// Tastevec - Vector-Based Media Recommendations for Emby and Jellyfin
// Copyright 2026 M. Voss (mlvoss)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mlvoss/tastevec

package models

import (
	"testing"
)

func TestNewRecommendationRun(t *testing.T) {
	tests := []struct {
		name      string
		userID    int
		mediaType string
		runType   RunType
		wantErr   bool
		wantType  RunType
	}{
		{"valid manual", 1, MediaTypeMovie, RunTypeManual, false, RunTypeManual},
		{"valid batch", 7, MediaTypeSeries, RunTypeBatch, false, RunTypeBatch},
		{"empty run type defaults to manual", 1, MediaTypeMovie, "", false, RunTypeManual},
		{"zero user id", 0, MediaTypeMovie, RunTypeManual, true, ""},
		{"negative user id", -3, MediaTypeMovie, RunTypeManual, true, ""},
		{"missing media type", 1, "", RunTypeManual, true, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			run, err := NewRecommendationRun(tt.userID, tt.mediaType, tt.runType)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if run.Status != RunStatusRunning {
				t.Errorf("new run status = %s, want running", run.Status)
			}
			if run.RunType != tt.wantType {
				t.Errorf("run type = %s, want %s", run.RunType, tt.wantType)
			}
			if run.ID.String() == "00000000-0000-0000-0000-000000000000" {
				t.Error("run ID not generated")
			}
			if run.CreatedAt.IsZero() {
				t.Error("CreatedAt not set")
			}
		})
	}
}

func TestScoringWeightsValidate(t *testing.T) {
	valid := ScoringWeights{Similarity: 0.5, Novelty: 0.2, Rating: 0.3, Diversity: 0.15}
	if err := valid.Validate(); err != nil {
		t.Errorf("valid weights rejected: %v", err)
	}

	negative := ScoringWeights{Similarity: -0.1}
	if err := negative.Validate(); err == nil {
		t.Error("negative weight accepted")
	}

	tooLarge := ScoringWeights{Similarity: 0.5, Rating: 2.5}
	if err := tooLarge.Validate(); err == nil {
		t.Error("weight above 2 accepted")
	}
}

func TestClassifyEvidence(t *testing.T) {
	tests := []struct {
		name string
		item WatchedItem
		want EvidenceType
	}{
		{"favorite wins over play count", WatchedItem{IsFavorite: true, PlayCount: 5}, EvidenceFavorite},
		{"repeat watch", WatchedItem{PlayCount: 3}, EvidenceHighlyRated},
		{"single watch", WatchedItem{PlayCount: 1}, EvidenceWatched},
		{"zero play count", WatchedItem{}, EvidenceWatched},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ClassifyEvidence(tt.item); got != tt.want {
				t.Errorf("ClassifyEvidence() = %s, want %s", got, tt.want)
			}
		})
	}
}
