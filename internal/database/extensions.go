// Tastevec - Vector-Based Media Recommendations for Emby and Jellyfin
// Copyright 2026 M. Voss (mlvoss)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mlvoss/tastevec

package database

import (
	"context"
	"fmt"
	"time"

	"github.com/mlvoss/tastevec/internal/logging"
)

// extensionTimeout bounds INSTALL/LOAD statements so a misconfigured network
// environment cannot hang startup.
const extensionTimeout = 30 * time.Second

// loadExtensions installs and loads the DuckDB extensions the pipeline uses.
// All extensions are optional: json speeds up genre-list handling and vss
// provides the HNSW index for nearest-neighbor queries. Without vss the
// retrieval queries still work via exact cosine-distance scans.
func (db *DB) loadExtensions() {
	if err := db.installExtension("json"); err != nil {
		logging.Warn().Err(err).Msg("json extension not available")
	}

	if err := db.installExtension("vss"); err != nil {
		logging.Warn().Err(err).Msg("vss extension not available, vector queries fall back to exact scan")
		db.vssAvailable = false
		return
	}

	// HNSW index persistence for file-backed databases is experimental and
	// must be opted into explicitly.
	if err := db.execWithTimeout("SET hnsw_enable_experimental_persistence = true"); err != nil {
		logging.Warn().Err(err).Msg("could not enable HNSW persistence")
	}
	db.vssAvailable = true
}

// installExtension installs and loads a single DuckDB extension.
func (db *DB) installExtension(name string) error {
	if err := db.execWithTimeout(fmt.Sprintf("INSTALL %s", name)); err != nil {
		return fmt.Errorf("install %s: %w", name, err)
	}
	if err := db.execWithTimeout(fmt.Sprintf("LOAD %s", name)); err != nil {
		return fmt.Errorf("load %s: %w", name, err)
	}
	return nil
}

// createVectorIndex creates the HNSW index over item embeddings when the vss
// extension is available. Index creation failure is non-fatal; retrieval
// degrades to an exact scan.
func (db *DB) createVectorIndex() {
	if !db.vssAvailable {
		return
	}

	stmt := "CREATE INDEX IF NOT EXISTS idx_item_embeddings_hnsw ON item_embeddings USING HNSW (embedding) WITH (metric = 'cosine')"
	if err := db.execWithTimeout(stmt); err != nil {
		logging.Warn().Err(err).Msg("could not create HNSW index, using exact scans")
	}
}

// execWithTimeout runs a statement with the extension timeout applied.
func (db *DB) execWithTimeout(stmt string) error {
	ctx, cancel := context.WithTimeout(context.Background(), extensionTimeout)
	defer cancel()
	_, err := db.conn.ExecContext(ctx, stmt)
	return err
}
