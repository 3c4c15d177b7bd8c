// Tastevec - Vector-Based Media Recommendations for Emby and Jellyfin
// Copyright 2026 M. Voss (mlvoss)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mlvoss/tastevec

package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/mlvoss/tastevec/internal/models"
	"github.com/mlvoss/tastevec/internal/recommend"
)

// ErrRunNotFound is returned when a run ID does not exist.
var ErrRunNotFound = errors.New("recommendation run not found")

// CreateRun inserts a run header in running state.
func (db *DB) CreateRun(ctx context.Context, run *models.RecommendationRun) error {
	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO recommendation_runs
			(id, user_id, media_type, run_type, candidate_count, selected_count, duration_ms, status, error_message, created_at)
		 VALUES (CAST(? AS UUID), ?, ?, ?, 0, 0, 0, ?, NULL, ?)`,
		run.ID.String(), run.UserID, run.MediaType, string(run.RunType), string(run.Status), run.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	return nil
}

// FinalizeRun records the terminal state of a run. The status guard keeps a
// finalized run immutable even if called twice.
func (db *DB) FinalizeRun(ctx context.Context, runID uuid.UUID, status models.RunStatus,
	candidateCount, selectedCount int, durationMS int64, errorMessage string) error {

	var errMsg interface{}
	if errorMessage != "" {
		errMsg = errorMessage
	}

	res, err := db.conn.ExecContext(ctx,
		`UPDATE recommendation_runs
		 SET status = ?, candidate_count = ?, selected_count = ?, duration_ms = ?, error_message = ?
		 WHERE id = CAST(? AS UUID) AND status = ?`,
		string(status), candidateCount, selectedCount, durationMS, errMsg,
		runID.String(), string(models.RunStatusRunning))
	if err != nil {
		return fmt.Errorf("finalize run: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("finalize run result: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("run %s: not in running state: %w", runID, ErrRunNotFound)
	}
	return nil
}

// GetRun returns one run header.
func (db *DB) GetRun(ctx context.Context, runID uuid.UUID) (*models.RecommendationRun, error) {
	row := db.conn.QueryRowContext(ctx,
		`SELECT CAST(id AS VARCHAR), user_id, media_type, run_type, candidate_count, selected_count,
			duration_ms, status, COALESCE(error_message, ''), created_at
		 FROM recommendation_runs WHERE id = CAST(? AS UUID)`, runID.String())

	var run models.RecommendationRun
	var id, runType, status string
	err := row.Scan(&id, &run.UserID, &run.MediaType, &runType, &run.CandidateCount,
		&run.SelectedCount, &run.DurationMS, &status, &run.ErrorMessage, &run.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("run %s: %w", runID, ErrRunNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("scan run: %w", err)
	}

	run.ID, err = uuid.Parse(id)
	if err != nil {
		return nil, fmt.Errorf("parse run id: %w", err)
	}
	run.RunType = models.RunType(runType)
	run.Status = models.RunStatus(status)
	return &run, nil
}

// LatestRunForUser returns the most recent run header for a user and media
// type, or ErrRunNotFound when none exists.
func (db *DB) LatestRunForUser(ctx context.Context, userID int, mediaType string) (*models.RecommendationRun, error) {
	row := db.conn.QueryRowContext(ctx,
		`SELECT CAST(id AS VARCHAR) FROM recommendation_runs
		 WHERE user_id = ? AND media_type = ?
		 ORDER BY created_at DESC LIMIT 1`, userID, mediaType)

	var id string
	err := row.Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("user %d: %w", userID, ErrRunNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("scan latest run: %w", err)
	}

	runID, err := uuid.Parse(id)
	if err != nil {
		return nil, fmt.Errorf("parse run id: %w", err)
	}
	return db.GetRun(ctx, runID)
}

// SaveCandidates stores the scored candidate window for a run, selected
// flags and ranks included. Writes happen in one transaction so a run never
// exposes a partial candidate set.
func (db *DB) SaveCandidates(ctx context.Context, runID uuid.UUID, candidates []recommend.Candidate) error {
	if len(candidates) == 0 {
		return nil
	}

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin candidates tx: %w", err)
	}
	defer closeQuietly(rollbacker{tx})

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO recommendation_candidates
			(run_id, item_id, title, year, genres, community_rating,
			 similarity, novelty, rating_score, diversity_score, final_score,
			 is_selected, selected_rank, explanation)
		 VALUES (CAST(? AS UUID), ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, NULL)`)
	if err != nil {
		return fmt.Errorf("prepare candidate insert: %w", err)
	}
	defer closeQuietly(stmt)

	for _, c := range candidates {
		genresJSON, err := json.Marshal(c.Genres)
		if err != nil {
			return fmt.Errorf("encode genres for item %d: %w", c.ItemID, err)
		}

		var rank interface{}
		if c.IsSelected {
			rank = c.SelectedRank
		}

		if _, err := stmt.ExecContext(ctx, runID.String(), c.ItemID, c.Title, c.Year,
			string(genresJSON), c.CommunityRating, c.Similarity, c.Novelty,
			c.RatingScore, c.DiversityScore, c.FinalScore, c.IsSelected, rank); err != nil {
			return fmt.Errorf("insert candidate %d: %w", c.ItemID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit candidates: %w", err)
	}
	return nil
}

// GetRunCandidates returns the stored candidates of a run, selected first in
// rank order, then the rest by final score descending.
func (db *DB) GetRunCandidates(ctx context.Context, runID uuid.UUID) ([]recommend.Candidate, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT item_id, title, COALESCE(year, 0), genres, COALESCE(community_rating, 0),
			similarity, novelty, rating_score, diversity_score, final_score,
			is_selected, COALESCE(selected_rank, 0)
		 FROM recommendation_candidates
		 WHERE run_id = CAST(? AS UUID)
		 ORDER BY is_selected DESC, selected_rank, final_score DESC`, runID.String())
	if err != nil {
		return nil, fmt.Errorf("query candidates: %w", err)
	}
	defer closeWithLog(rows, "candidate rows")

	var candidates []recommend.Candidate
	for rows.Next() {
		var c recommend.Candidate
		var genresJSON sql.NullString
		if err := rows.Scan(&c.ItemID, &c.Title, &c.Year, &genresJSON, &c.CommunityRating,
			&c.Similarity, &c.Novelty, &c.RatingScore, &c.DiversityScore, &c.FinalScore,
			&c.IsSelected, &c.SelectedRank); err != nil {
			return nil, fmt.Errorf("scan candidate: %w", err)
		}
		if genresJSON.Valid && genresJSON.String != "" {
			if err := json.Unmarshal([]byte(genresJSON.String), &c.Genres); err != nil {
				return nil, fmt.Errorf("decode genres for item %d: %w", c.ItemID, err)
			}
		}
		candidates = append(candidates, c)
	}
	return candidates, rows.Err()
}

// SaveEvidence stores the evidence rows of a run in one transaction.
func (db *DB) SaveEvidence(ctx context.Context, evidence []models.Evidence) error {
	if len(evidence) == 0 {
		return nil
	}

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin evidence tx: %w", err)
	}
	defer closeQuietly(rollbacker{tx})

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO recommendation_evidence (run_id, item_id, watched_item_id, similarity, evidence_type)
		 VALUES (CAST(? AS UUID), ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare evidence insert: %w", err)
	}
	defer closeQuietly(stmt)

	for _, ev := range evidence {
		if _, err := stmt.ExecContext(ctx, ev.RunID.String(), ev.ItemID,
			ev.WatchedItemID, ev.Similarity, string(ev.Type)); err != nil {
			return fmt.Errorf("insert evidence for item %d: %w", ev.ItemID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit evidence: %w", err)
	}
	return nil
}

// GetEvidence returns the evidence rows of a run grouped by recommended item.
func (db *DB) GetEvidence(ctx context.Context, runID uuid.UUID) (map[int][]models.Evidence, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT item_id, watched_item_id, similarity, evidence_type
		 FROM recommendation_evidence
		 WHERE run_id = CAST(? AS UUID)
		 ORDER BY item_id, similarity DESC`, runID.String())
	if err != nil {
		return nil, fmt.Errorf("query evidence: %w", err)
	}
	defer closeWithLog(rows, "evidence rows")

	result := map[int][]models.Evidence{}
	for rows.Next() {
		ev := models.Evidence{RunID: runID}
		var evType string
		if err := rows.Scan(&ev.ItemID, &ev.WatchedItemID, &ev.Similarity, &evType); err != nil {
			return nil, fmt.Errorf("scan evidence: %w", err)
		}
		ev.Type = models.EvidenceType(evType)
		result[ev.ItemID] = append(result[ev.ItemID], ev)
	}
	return result, rows.Err()
}

// SaveExplanation attaches generated explanation text to a stored candidate.
func (db *DB) SaveExplanation(ctx context.Context, runID uuid.UUID, itemID int, text string) error {
	_, err := db.conn.ExecContext(ctx,
		`UPDATE recommendation_candidates SET explanation = ?
		 WHERE run_id = CAST(? AS UUID) AND item_id = ?`, text, runID.String(), itemID)
	if err != nil {
		return fmt.Errorf("save explanation: %w", err)
	}
	return nil
}

// SaveTasteProfile overwrites the user's current taste vector for a media
// type.
func (db *DB) SaveTasteProfile(ctx context.Context, userID int, mediaType string, vector []float32) error {
	if len(vector) != db.dims {
		return fmt.Errorf("taste profile has %d dimensions, expected %d", len(vector), db.dims)
	}

	stmt := fmt.Sprintf(
		`INSERT OR REPLACE INTO taste_profiles (user_id, media_type, vector, updated_at)
		 VALUES (?, ?, CAST(? AS FLOAT[%d]), ?)`, db.dims)
	if _, err := db.conn.ExecContext(ctx, stmt, userID, mediaType, vectorLiteral(vector), time.Now().UTC()); err != nil {
		return fmt.Errorf("save taste profile: %w", err)
	}
	return nil
}

// GetTasteProfile returns the stored taste vector, or nil when none exists.
func (db *DB) GetTasteProfile(ctx context.Context, userID int, mediaType string) ([]float32, error) {
	row := db.conn.QueryRowContext(ctx,
		"SELECT CAST(vector AS VARCHAR) FROM taste_profiles WHERE user_id = ? AND media_type = ?",
		userID, mediaType)

	var raw string
	err := row.Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan taste profile: %w", err)
	}
	return parseVector(raw)
}

// ClearUserRecommendations deletes all recommendation state for one user in
// a single transaction, in dependency order: evidence, candidates, runs,
// taste profiles.
func (db *DB) ClearUserRecommendations(ctx context.Context, userID int) error {
	return db.clearRecommendations(ctx, " WHERE user_id = ?", userID)
}

// ClearAllRecommendations deletes all recommendation state for every user in
// a single transaction, in the same dependency order.
func (db *DB) ClearAllRecommendations(ctx context.Context) error {
	return db.clearRecommendations(ctx, "")
}

func (db *DB) clearRecommendations(ctx context.Context, userFilter string, args ...interface{}) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin clear tx: %w", err)
	}
	defer closeQuietly(rollbacker{tx})

	runScope := "run_id IN (SELECT id FROM recommendation_runs" + userFilter + ")"
	stmts := []string{
		"DELETE FROM recommendation_evidence WHERE " + runScope,
		"DELETE FROM recommendation_candidates WHERE " + runScope,
		"DELETE FROM recommendation_runs" + userFilter,
		"DELETE FROM taste_profiles" + userFilter,
	}

	for _, stmt := range stmts {
		if _, err := tx.ExecContext(ctx, stmt, args...); err != nil {
			return fmt.Errorf("clear recommendations: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit clear: %w", err)
	}
	return nil
}

// rollbacker adapts a transaction's rollback to the closeQuietly helper.
// Rolling back an already-committed transaction is a harmless no-op error.
type rollbacker struct{ tx *sql.Tx }

func (r rollbacker) Close() error { return r.tx.Rollback() }
