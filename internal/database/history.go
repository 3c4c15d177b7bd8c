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

	"github.com/goccy/go-json"

	"github.com/mlvoss/tastevec/internal/models"
)

// ErrUserNotFound is returned when a user ID does not exist.
var ErrUserNotFound = errors.New("user not found")

// LoadHistory returns a prioritized, size-bounded slice of a user's watch
// history. Favorites and heavily rewatched items sort first so they survive
// truncation to the limit; an empty result is a terminal condition for the
// pipeline, not an error.
func (db *DB) LoadHistory(ctx context.Context, userID, limit int) ([]models.WatchedItem, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT user_id, item_id, last_played_at, play_count, is_favorite
		 FROM watch_history
		 WHERE user_id = ?
		 ORDER BY is_favorite DESC, play_count DESC, last_played_at DESC NULLS LAST
		 LIMIT ?`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("query watch history: %w", err)
	}
	defer closeWithLog(rows, "watch history rows")

	var history []models.WatchedItem
	for rows.Next() {
		var item models.WatchedItem
		var lastPlayed sql.NullTime
		if err := rows.Scan(&item.UserID, &item.ItemID, &lastPlayed, &item.PlayCount, &item.IsFavorite); err != nil {
			return nil, fmt.Errorf("scan watch history: %w", err)
		}
		if lastPlayed.Valid {
			t := lastPlayed.Time
			item.LastPlayedAt = &t
		}
		history = append(history, item)
	}
	return history, rows.Err()
}

// UpsertWatchedItem writes a history fact. History is owned by the external
// media-server sync in production; this method exists for seeding and tests.
func (db *DB) UpsertWatchedItem(ctx context.Context, item models.WatchedItem) error {
	var lastPlayed interface{}
	if item.LastPlayedAt != nil {
		lastPlayed = *item.LastPlayedAt
	}

	_, err := db.conn.ExecContext(ctx,
		`INSERT OR REPLACE INTO watch_history (user_id, item_id, last_played_at, play_count, is_favorite)
		 VALUES (?, ?, ?, ?, ?)`,
		item.UserID, item.ItemID, lastPlayed, item.PlayCount, item.IsFavorite)
	if err != nil {
		return fmt.Errorf("upsert watched item: %w", err)
	}
	return nil
}

// GetUser returns a single user by ID.
func (db *DB) GetUser(ctx context.Context, userID int) (*models.User, error) {
	row := db.conn.QueryRowContext(ctx,
		"SELECT id, username, enabled, include_watched, weight_overrides FROM users WHERE id = ?", userID)

	user, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("user %d: %w", userID, ErrUserNotFound)
	}
	if err != nil {
		return nil, err
	}
	return user, nil
}

// ListEnabledUsers returns the users the batch orchestrator should process,
// in stable ID order.
func (db *DB) ListEnabledUsers(ctx context.Context) ([]models.User, error) {
	rows, err := db.conn.QueryContext(ctx,
		"SELECT id, username, enabled, include_watched, weight_overrides FROM users WHERE enabled ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("query enabled users: %w", err)
	}
	defer closeWithLog(rows, "user rows")

	var users []models.User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, *user)
	}
	return users, rows.Err()
}

// UpsertUser writes a user row, encoding weight overrides as JSON.
func (db *DB) UpsertUser(ctx context.Context, user models.User) error {
	var overrides interface{}
	if len(user.WeightOverrides) > 0 {
		data, err := json.Marshal(user.WeightOverrides)
		if err != nil {
			return fmt.Errorf("encode weight overrides: %w", err)
		}
		overrides = string(data)
	}

	_, err := db.conn.ExecContext(ctx,
		`INSERT OR REPLACE INTO users (id, username, enabled, include_watched, weight_overrides)
		 VALUES (?, ?, ?, ?, ?)`,
		user.ID, user.Username, user.Enabled, user.IncludeWatched, overrides)
	if err != nil {
		return fmt.Errorf("upsert user: %w", err)
	}
	return nil
}

// rowScanner abstracts sql.Row and sql.Rows for shared scan helpers.
type rowScanner interface {
	Scan(dest ...interface{}) error
}

// scanUser scans one users row, decoding the weight-override JSON.
func scanUser(row rowScanner) (*models.User, error) {
	var user models.User
	var overridesJSON sql.NullString

	if err := row.Scan(&user.ID, &user.Username, &user.Enabled, &user.IncludeWatched, &overridesJSON); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan user: %w", err)
	}

	if overridesJSON.Valid && overridesJSON.String != "" {
		if err := json.Unmarshal([]byte(overridesJSON.String), &user.WeightOverrides); err != nil {
			return nil, fmt.Errorf("decode weight overrides for user %d: %w", user.ID, err)
		}
	}
	return &user, nil
}
