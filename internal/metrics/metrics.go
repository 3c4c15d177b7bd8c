// Tastevec - Vector-Based Media Recommendations for Emby and Jellyfin
// Copyright 2026 M. Voss (mlvoss)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mlvoss/tastevec

// Package metrics registers the Prometheus instruments for the
// recommendation pipeline. Collectors are registered on the default
// registry at init and exposed via the /metrics endpoint.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "tastevec"

var (
	// RunsStarted counts recommendation runs by run type.
	RunsStarted = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "runs",
		Name:      "started_total",
		Help:      "Recommendation runs started.",
	}, []string{"run_type"})

	// RunsFinished counts finalized runs by terminal status.
	RunsFinished = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "runs",
		Name:      "finished_total",
		Help:      "Recommendation runs finalized, by status.",
	}, []string{"status"})

	// RunDuration observes end-to-end single-user run latency.
	RunDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "runs",
		Name:      "duration_seconds",
		Help:      "End-to-end duration of a single-user recommendation run.",
		Buckets:   prometheus.ExponentialBuckets(0.05, 2, 12),
	})

	// CandidatesRetrieved observes candidate counts per run.
	CandidatesRetrieved = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "runs",
		Name:      "candidates_retrieved",
		Help:      "Candidates retrieved per run before selection.",
		Buckets:   prometheus.LinearBuckets(0, 25, 9),
	})

	// VectorQueryDuration observes nearest-neighbor query latency.
	VectorQueryDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "vector",
		Name:      "query_duration_seconds",
		Help:      "Nearest-neighbor query latency, by query kind.",
		Buckets:   prometheus.ExponentialBuckets(0.001, 2, 14),
	}, []string{"kind"})

	// BatchUsersProcessed counts per-user batch outcomes.
	BatchUsersProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "batch",
		Name:      "users_processed_total",
		Help:      "Users processed by batch generation, by outcome.",
	}, []string{"outcome"})

	// ExplanationFailures counts skipped explanation generations.
	ExplanationFailures = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "explain",
		Name:      "failures_total",
		Help:      "Explanation generations that failed and were skipped.",
	})
)
