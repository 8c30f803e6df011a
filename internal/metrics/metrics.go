// Package metrics holds the pipeline's Prometheus collectors. HTTP metrics
// live in pkg/middleware.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "moviesearch"

// Row outcomes.
const (
	RowIndexed  = "indexed"
	RowSkipped  = "skipped"
	RowRejected = "rejected"
)

// Batch, search and rewrite outcomes.
const (
	OutcomeOK       = "ok"
	OutcomeFailed   = "failed"
	OutcomeEmpty    = "empty"
	OutcomeRewrite  = "rewritten"
	OutcomeCached   = "cached"
	OutcomeFallback = "fallback"
)

var (
	IndexerRows = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "indexer",
		Name:      "rows_total",
		Help:      "Dataset rows processed, by outcome.",
	}, []string{"outcome"})

	IndexerBatches = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "indexer",
		Name:      "batches_total",
		Help:      "Bulk submissions, by outcome.",
	}, []string{"outcome"})

	IndexerBulkDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "indexer",
		Name:      "bulk_duration_seconds",
		Help:      "Latency of one bulk submission.",
		Buckets:   prometheus.DefBuckets,
	})

	ReindexInProgress = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "indexer",
		Name:      "reindex_in_progress",
		Help:      "1 while a reindex pass is running.",
	})

	Searches = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "search",
		Name:      "requests_total",
		Help:      "Search calls, by outcome.",
	}, []string{"outcome"})

	SearchDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "search",
		Name:      "duration_seconds",
		Help:      "Backend search latency.",
		Buckets:   prometheus.DefBuckets,
	})

	Rewrites = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "rewrite",
		Name:      "requests_total",
		Help:      "Query rewrites, by outcome.",
	}, []string{"outcome"})
)
