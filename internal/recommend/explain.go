// Tastevec - Vector-Based Media Recommendations for Emby and Jellyfin
// Copyright 2026 M. Voss (mlvoss)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mlvoss/tastevec

package recommend

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sony/gobreaker/v2"

	"github.com/mlvoss/tastevec/internal/logging"
	"github.com/mlvoss/tastevec/internal/models"
)

// TemplateExplainer is the built-in explanation generator. It renders a
// short sentence from the candidate's evidence without calling any external
// provider, so it never adds latency or failure modes to a run.
type TemplateExplainer struct {
	catalog CatalogStore
}

// NewTemplateExplainer builds the template generator; the catalog resolves
// evidence item IDs to titles.
func NewTemplateExplainer(catalog CatalogStore) *TemplateExplainer {
	return &TemplateExplainer{catalog: catalog}
}

// Explain renders one sentence naming up to two supporting watched items.
func (t *TemplateExplainer) Explain(ctx context.Context, candidate Candidate, evidence []models.Evidence) (string, error) {
	if len(evidence) == 0 {
		return fmt.Sprintf("%s matches your overall taste profile.", candidate.Title), nil
	}

	ids := make([]int, 0, len(evidence))
	for _, ev := range evidence {
		ids = append(ids, ev.WatchedItemID)
	}
	items, err := t.catalog.GetItems(ctx, ids)
	if err != nil {
		return "", fmt.Errorf("resolve evidence titles: %w", err)
	}

	var titles []string
	for _, ev := range evidence {
		item, ok := items[ev.WatchedItemID]
		if !ok {
			continue
		}
		switch ev.Type {
		case models.EvidenceFavorite:
			titles = append(titles, fmt.Sprintf("your favorite %s", item.Title))
		case models.EvidenceHighlyRated:
			titles = append(titles, fmt.Sprintf("%s, which you rewatched", item.Title))
		default:
			titles = append(titles, item.Title)
		}
		if len(titles) == 2 {
			break
		}
	}

	if len(titles) == 0 {
		return fmt.Sprintf("%s matches your overall taste profile.", candidate.Title), nil
	}
	return fmt.Sprintf("Recommended because you watched %s.", strings.Join(titles, " and ")), nil
}

// BreakerExplainer wraps a (typically remote) explanation generator with a
// circuit breaker. Once the provider fails repeatedly the breaker opens and
// subsequent runs skip explanations immediately instead of waiting on a
// broken upstream.
type BreakerExplainer struct {
	inner   Explainer
	breaker *gobreaker.CircuitBreaker[string]
}

// NewBreakerExplainer wraps inner with the breaker policy.
func NewBreakerExplainer(inner Explainer) *BreakerExplainer {
	log := logging.Logger().With().Str("component", "explainer").Logger()
	return &BreakerExplainer{
		inner: inner,
		breaker: gobreaker.NewCircuitBreaker[string](gobreaker.Settings{
			Name:        "explanation-generator",
			MaxRequests: 1,
			Interval:    2 * time.Minute,
			Timeout:     1 * time.Minute,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 3
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				log.Warn().
					Str("breaker", name).
					Str("from", from.String()).
					Str("to", to.String()).
					Msg("explanation breaker state change")
			},
		}),
	}
}

// Explain delegates through the breaker.
func (b *BreakerExplainer) Explain(ctx context.Context, candidate Candidate, evidence []models.Evidence) (string, error) {
	return b.breaker.Execute(func() (string, error) {
		return b.inner.Explain(ctx, candidate, evidence)
	})
}
