// Tastevec - Vector-Based Media Recommendations for Emby and Jellyfin
// Copyright 2026 M. Voss (mlvoss)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mlvoss/tastevec

// Package query provides SQL query building utilities for the database
// package. Filters are always parameterized; no caller-supplied value is
// ever interpolated into SQL text.
package query

import (
	"strings"
)

// WhereBuilder constructs SQL WHERE clauses with parameterized arguments.
//
// Example:
//
//	wb := query.NewWhereBuilder()
//	wb.AddMediaType("movie")
//	wb.AddEnabledLibraryScope(true)
//	whereClause, args := wb.Build()
//	// " WHERE m.media_type = ? AND m.library_id IN (SELECT id FROM libraries WHERE enabled)"
type WhereBuilder struct {
	clauses []string
	args    []interface{}
}

// NewWhereBuilder creates a new WhereBuilder instance.
func NewWhereBuilder() *WhereBuilder {
	return &WhereBuilder{
		clauses: []string{},
		args:    []interface{}{},
	}
}

// AddClause adds a raw WHERE clause with its arguments. Use this for custom
// conditions not covered by the helper methods.
func (wb *WhereBuilder) AddClause(clause string, args ...interface{}) *WhereBuilder {
	wb.clauses = append(wb.clauses, clause)
	wb.args = append(wb.args, args...)
	return wb
}

// AddMediaType filters on the catalog media type. Empty is skipped.
func (wb *WhereBuilder) AddMediaType(mediaType string) *WhereBuilder {
	if mediaType != "" {
		wb.clauses = append(wb.clauses, "m.media_type = ?")
		wb.args = append(wb.args, mediaType)
	}
	return wb
}

// AddEnabledLibraryScope restricts results to items in enabled libraries.
// The filter is only added when scoping configuration exists; with no
// configured libraries every item is eligible.
func (wb *WhereBuilder) AddEnabledLibraryScope(scopingConfigured bool) *WhereBuilder {
	if scopingConfigured {
		wb.clauses = append(wb.clauses, "m.library_id IN (SELECT id FROM libraries WHERE enabled)")
	}
	return wb
}

// AddUserScope filters on the owning user.
func (wb *WhereBuilder) AddUserScope(userID int) *WhereBuilder {
	wb.clauses = append(wb.clauses, "w.user_id = ?")
	wb.args = append(wb.args, userID)
	return wb
}

// Build returns the WHERE clause (including the leading " WHERE ", or an
// empty string when no filters were added) and its arguments.
func (wb *WhereBuilder) Build() (string, []interface{}) {
	if len(wb.clauses) == 0 {
		return "", wb.args
	}
	return " WHERE " + strings.Join(wb.clauses, " AND "), wb.args
}

// HasClauses reports whether any filters were added.
func (wb *WhereBuilder) HasClauses() bool {
	return len(wb.clauses) > 0
}
