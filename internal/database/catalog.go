// Tastevec - Vector-Based Media Recommendations for Emby and Jellyfin
// Copyright 2026 M. Voss (mlvoss)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mlvoss/tastevec

package database

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/goccy/go-json"

	"github.com/mlvoss/tastevec/internal/models"
)

// GetItems returns catalog metadata for a batch of item IDs. Unknown IDs are
// absent from the result map.
func (db *DB) GetItems(ctx context.Context, itemIDs []int) (map[int]models.MediaItem, error) {
	if len(itemIDs) == 0 {
		return map[int]models.MediaItem{}, nil
	}

	q := fmt.Sprintf(`SELECT id, title, media_type, COALESCE(year, 0), genres,
			COALESCE(community_rating, 0), COALESCE(library_id, 0)
		FROM media_items WHERE id IN (%s)`, inPlaceholders(len(itemIDs)))

	rows, err := db.conn.QueryContext(ctx, q, intArgs(itemIDs)...)
	if err != nil {
		return nil, fmt.Errorf("query media items: %w", err)
	}
	defer closeWithLog(rows, "media item rows")

	result := make(map[int]models.MediaItem, len(itemIDs))
	for rows.Next() {
		item, err := scanMediaItem(rows)
		if err != nil {
			return nil, err
		}
		result[item.ID] = item
	}
	return result, rows.Err()
}

// scanMediaItem scans one media_items row, decoding the JSON genre list.
func scanMediaItem(rows *sql.Rows) (models.MediaItem, error) {
	var item models.MediaItem
	var genresJSON sql.NullString

	if err := rows.Scan(&item.ID, &item.Title, &item.MediaType, &item.Year,
		&genresJSON, &item.CommunityRating, &item.LibraryID); err != nil {
		return item, fmt.Errorf("scan media item: %w", err)
	}

	if genresJSON.Valid && genresJSON.String != "" {
		if err := json.Unmarshal([]byte(genresJSON.String), &item.Genres); err != nil {
			return item, fmt.Errorf("decode genres for item %d: %w", item.ID, err)
		}
	}
	return item, nil
}

// hasLibraryScoping reports whether any library scoping configuration exists.
// With no configured libraries, all catalog items are eligible for retrieval.
func (db *DB) hasLibraryScoping(ctx context.Context) (bool, error) {
	var count int
	if err := db.conn.QueryRowContext(ctx, "SELECT COUNT(*) FROM libraries").Scan(&count); err != nil {
		return false, fmt.Errorf("count libraries: %w", err)
	}
	return count > 0, nil
}

// UpsertMediaItem writes a catalog item. The catalog is owned by the external
// sync collaborator in production; this method exists for seeding and tests.
func (db *DB) UpsertMediaItem(ctx context.Context, item models.MediaItem) error {
	genresJSON, err := json.Marshal(item.Genres)
	if err != nil {
		return fmt.Errorf("encode genres: %w", err)
	}

	_, err = db.conn.ExecContext(ctx,
		`INSERT OR REPLACE INTO media_items (id, title, media_type, year, genres, community_rating, library_id)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		item.ID, item.Title, item.MediaType, item.Year, string(genresJSON), item.CommunityRating, item.LibraryID)
	if err != nil {
		return fmt.Errorf("upsert media item: %w", err)
	}
	return nil
}

// UpsertLibrary writes a library scoping row.
func (db *DB) UpsertLibrary(ctx context.Context, id int, name string, enabled bool) error {
	_, err := db.conn.ExecContext(ctx,
		"INSERT OR REPLACE INTO libraries (id, name, enabled) VALUES (?, ?, ?)", id, name, enabled)
	if err != nil {
		return fmt.Errorf("upsert library: %w", err)
	}
	return nil
}
