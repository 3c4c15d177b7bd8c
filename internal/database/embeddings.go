// Tastevec - Vector-Based Media Recommendations for Emby and Jellyfin
// Copyright 2026 M. Voss (mlvoss)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mlvoss/tastevec

package database

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/mlvoss/tastevec/internal/database/query"
	"github.com/mlvoss/tastevec/internal/recommend"
)

// GetEmbeddings returns embeddings for the given item IDs. Items without an
// embedding are simply absent from the result map; the caller decides whether
// that is an error.
func (db *DB) GetEmbeddings(ctx context.Context, itemIDs []int) (map[int][]float32, error) {
	if len(itemIDs) == 0 {
		return map[int][]float32{}, nil
	}

	q := fmt.Sprintf(
		"SELECT item_id, CAST(embedding AS VARCHAR) FROM item_embeddings WHERE item_id IN (%s)",
		inPlaceholders(len(itemIDs)))

	rows, err := db.conn.QueryContext(ctx, q, intArgs(itemIDs)...)
	if err != nil {
		return nil, fmt.Errorf("query embeddings: %w", err)
	}
	defer closeWithLog(rows, "embedding rows")

	result := make(map[int][]float32, len(itemIDs))
	for rows.Next() {
		var itemID int
		var raw string
		if err := rows.Scan(&itemID, &raw); err != nil {
			return nil, fmt.Errorf("scan embedding: %w", err)
		}
		vec, err := parseVector(raw)
		if err != nil {
			return nil, fmt.Errorf("parse embedding for item %d: %w", itemID, err)
		}
		result[itemID] = vec
	}
	return result, rows.Err()
}

// UpsertEmbedding stores an embedding for an item. In production this table
// is owned by the external embedding collaborator; this method exists for
// seeding and tests.
func (db *DB) UpsertEmbedding(ctx context.Context, itemID int, vector []float32) error {
	if len(vector) != db.dims {
		return fmt.Errorf("embedding for item %d has %d dimensions, expected %d", itemID, len(vector), db.dims)
	}

	stmt := fmt.Sprintf(
		"INSERT OR REPLACE INTO item_embeddings (item_id, embedding) VALUES (?, CAST(? AS FLOAT[%d]))", db.dims)
	if _, err := db.conn.ExecContext(ctx, stmt, itemID, vectorLiteral(vector)); err != nil {
		return fmt.Errorf("upsert embedding: %w", err)
	}
	return nil
}

// NearestNeighbors returns the items closest to the given vector by cosine
// distance, restricted to the given media type and, when library scoping is
// configured, to items in enabled libraries. The scope filter is part of the
// retrieval query itself, not a post-filter.
//
// Similarity is 1 - cosine distance, so results sort descending.
func (db *DB) NearestNeighbors(ctx context.Context, vector []float32, mediaType string, limit int) ([]recommend.Neighbor, error) {
	if len(vector) != db.dims {
		return nil, fmt.Errorf("query vector has %d dimensions, expected %d", len(vector), db.dims)
	}
	if limit <= 0 {
		return nil, fmt.Errorf("invalid limit: %d", limit)
	}

	scoped, err := db.hasLibraryScoping(ctx)
	if err != nil {
		return nil, err
	}

	wb := query.NewWhereBuilder().
		AddMediaType(mediaType).
		AddEnabledLibraryScope(scoped)
	where, filterArgs := wb.Build()

	q := fmt.Sprintf(`SELECT e.item_id,
			1 - array_cosine_distance(e.embedding, CAST(? AS FLOAT[%d])) AS similarity
		FROM item_embeddings e
		JOIN media_items m ON m.id = e.item_id%s
		ORDER BY similarity DESC
		LIMIT ?`, db.dims, where)

	args := make([]interface{}, 0, len(filterArgs)+2)
	args = append(args, vectorLiteral(vector))
	args = append(args, filterArgs...)
	args = append(args, limit)

	return db.queryNeighbors(ctx, q, args...)
}

// NearestWatched returns the k watched items of a user most similar to the
// given vector. Used to build recommendation evidence.
func (db *DB) NearestWatched(ctx context.Context, vector []float32, userID, k int) ([]recommend.Neighbor, error) {
	if len(vector) != db.dims {
		return nil, fmt.Errorf("query vector has %d dimensions, expected %d", len(vector), db.dims)
	}

	q := fmt.Sprintf(`SELECT e.item_id,
			1 - array_cosine_distance(e.embedding, CAST(? AS FLOAT[%d])) AS similarity
		FROM item_embeddings e
		JOIN watch_history w ON w.item_id = e.item_id
		WHERE w.user_id = ?
		ORDER BY similarity DESC
		LIMIT ?`, db.dims)

	return db.queryNeighbors(ctx, q, vectorLiteral(vector), userID, k)
}

// queryNeighbors executes a neighbor query and scans the result rows.
func (db *DB) queryNeighbors(ctx context.Context, q string, args ...interface{}) ([]recommend.Neighbor, error) {
	rows, err := db.conn.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("nearest-neighbor query: %w", err)
	}
	defer closeWithLog(rows, "neighbor rows")

	var neighbors []recommend.Neighbor
	for rows.Next() {
		var n recommend.Neighbor
		if err := rows.Scan(&n.ItemID, &n.Similarity); err != nil {
			return nil, fmt.Errorf("scan neighbor: %w", err)
		}
		neighbors = append(neighbors, n)
	}
	return neighbors, rows.Err()
}

// vectorLiteral renders a float vector as a DuckDB array literal. Values are
// numeric only, so the literal is injection-safe by construction.
func vectorLiteral(v []float32) string {
	var sb strings.Builder
	sb.Grow(len(v)*10 + 2)
	sb.WriteByte('[')
	for i, f := range v {
		if i > 0 {
			sb.WriteByte(',')
		}
		sb.WriteString(strconv.FormatFloat(float64(f), 'g', -1, 32))
	}
	sb.WriteByte(']')
	return sb.String()
}

// parseVector parses DuckDB's VARCHAR rendering of a FLOAT array back into a
// float slice.
func parseVector(s string) ([]float32, error) {
	s = strings.TrimSpace(s)
	if len(s) < 2 || s[0] != '[' || s[len(s)-1] != ']' {
		return nil, fmt.Errorf("malformed vector literal %q", truncateForError(s))
	}

	inner := strings.TrimSpace(s[1 : len(s)-1])
	if inner == "" {
		return []float32{}, nil
	}

	parts := strings.Split(inner, ",")
	vec := make([]float32, len(parts))
	for i, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 32)
		if err != nil {
			return nil, fmt.Errorf("vector element %d: %w", i, err)
		}
		vec[i] = float32(f)
	}
	return vec, nil
}

// truncateForError bounds a value quoted in an error message.
func truncateForError(s string) string {
	const max = 40
	if len(s) > max {
		return s[:max] + "..."
	}
	return s
}

// inPlaceholders returns "?, ?, ..." with n placeholders.
func inPlaceholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

// intArgs converts an int slice to the []interface{} QueryContext expects.
func intArgs(ids []int) []interface{} {
	args := make([]interface{}, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	return args
}
