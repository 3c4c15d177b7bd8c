// Tastevec - Vector-Based Media Recommendations for Emby and Jellyfin
// Copyright 2026 M. Voss (mlvoss)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mlvoss/tastevec

// Package recommend implements the recommendation pipeline: it turns a
// user's prioritized watch history into a taste vector, retrieves nearest
// catalog items from the embedding store, scores them on similarity,
// novelty, rating and genre preference, and greedily selects a diversified
// top set which is persisted with supporting evidence.
//
// The package depends only on the store interfaces declared in types.go;
// the database package provides the production implementations.
package recommend
