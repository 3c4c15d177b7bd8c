// Tastevec - Vector-Based Media Recommendations for Emby and Jellyfin
// Copyright 2026 M. Voss (mlvoss)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mlvoss/tastevec

package database

import (
	"fmt"
)

// createTables creates the schema. Embedding columns use a fixed-dimension
// FLOAT array so the vss HNSW index can cover them; the dimensionality comes
// from configuration and must match the external embedding provider.
//
// users, libraries, media_items, watch_history and item_embeddings are
// populated by the external sync and embedding collaborators. This subsystem
// only writes taste_profiles, recommendation_runs, recommendation_candidates
// and recommendation_evidence.
func (db *DB) createTables() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS users (
			id INTEGER PRIMARY KEY,
			username VARCHAR NOT NULL,
			enabled BOOLEAN NOT NULL DEFAULT true,
			include_watched BOOLEAN NOT NULL DEFAULT false,
			weight_overrides VARCHAR
		)`,
		`CREATE TABLE IF NOT EXISTS libraries (
			id INTEGER PRIMARY KEY,
			name VARCHAR NOT NULL,
			enabled BOOLEAN NOT NULL DEFAULT true
		)`,
		`CREATE TABLE IF NOT EXISTS media_items (
			id INTEGER PRIMARY KEY,
			title VARCHAR NOT NULL,
			media_type VARCHAR NOT NULL,
			year INTEGER,
			genres VARCHAR,
			community_rating DOUBLE,
			library_id INTEGER
		)`,
		`CREATE TABLE IF NOT EXISTS watch_history (
			user_id INTEGER NOT NULL,
			item_id INTEGER NOT NULL,
			last_played_at TIMESTAMP,
			play_count INTEGER NOT NULL DEFAULT 0,
			is_favorite BOOLEAN NOT NULL DEFAULT false,
			PRIMARY KEY (user_id, item_id)
		)`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS item_embeddings (
			item_id INTEGER PRIMARY KEY,
			embedding FLOAT[%d] NOT NULL
		)`, db.dims),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS taste_profiles (
			user_id INTEGER NOT NULL,
			media_type VARCHAR NOT NULL,
			vector FLOAT[%d] NOT NULL,
			updated_at TIMESTAMP NOT NULL,
			PRIMARY KEY (user_id, media_type)
		)`, db.dims),
		`CREATE TABLE IF NOT EXISTS recommendation_runs (
			id UUID PRIMARY KEY,
			user_id INTEGER NOT NULL,
			media_type VARCHAR NOT NULL,
			run_type VARCHAR NOT NULL,
			candidate_count INTEGER NOT NULL DEFAULT 0,
			selected_count INTEGER NOT NULL DEFAULT 0,
			duration_ms BIGINT NOT NULL DEFAULT 0,
			status VARCHAR NOT NULL,
			error_message VARCHAR,
			created_at TIMESTAMP NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS recommendation_candidates (
			run_id UUID NOT NULL,
			item_id INTEGER NOT NULL,
			title VARCHAR NOT NULL,
			year INTEGER,
			genres VARCHAR,
			community_rating DOUBLE,
			similarity DOUBLE NOT NULL,
			novelty DOUBLE NOT NULL,
			rating_score DOUBLE NOT NULL,
			diversity_score DOUBLE NOT NULL,
			final_score DOUBLE NOT NULL,
			is_selected BOOLEAN NOT NULL DEFAULT false,
			selected_rank INTEGER,
			explanation VARCHAR,
			PRIMARY KEY (run_id, item_id)
		)`,
		`CREATE TABLE IF NOT EXISTS recommendation_evidence (
			run_id UUID NOT NULL,
			item_id INTEGER NOT NULL,
			watched_item_id INTEGER NOT NULL,
			similarity DOUBLE NOT NULL,
			evidence_type VARCHAR NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_watch_history_user ON watch_history (user_id)`,
		`CREATE INDEX IF NOT EXISTS idx_runs_user ON recommendation_runs (user_id)`,
		`CREATE INDEX IF NOT EXISTS idx_candidates_run ON recommendation_candidates (run_id)`,
		`CREATE INDEX IF NOT EXISTS idx_evidence_run ON recommendation_evidence (run_id)`,
	}

	for _, stmt := range stmts {
		if _, err := db.conn.Exec(stmt); err != nil {
			return fmt.Errorf("schema statement failed: %w", err)
		}
	}
	return nil
}
