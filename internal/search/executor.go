// Package search runs built queries and projects hits into results.
package search

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/utafrali/moviesearch/internal/domain"
	"github.com/utafrali/moviesearch/internal/engine"
	"github.com/utafrali/moviesearch/internal/metrics"
	apperrors "github.com/utafrali/moviesearch/pkg/errors"
	"github.com/utafrali/moviesearch/pkg/logger"
	"github.com/utafrali/moviesearch/pkg/tracing"
)

// DefaultTimeout bounds one search call.
const DefaultTimeout = 10 * time.Second

// Executor runs queries against one index with a per-call timeout.
type Executor struct {
	backend engine.Backend
	index   string
	timeout time.Duration
	tracer  trace.Tracer
	logger  *slog.Logger
}

// NewExecutor creates an Executor. A non-positive timeout uses DefaultTimeout.
func NewExecutor(backend engine.Backend, index string, timeout time.Duration, logger *slog.Logger) *Executor {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Executor{
		backend: backend,
		index:   index,
		timeout: timeout,
		tracer:  tracing.Tracer("github.com/utafrali/moviesearch/search"),
		logger:  logger,
	}
}

// Search runs q. Zero hits yield an empty, non-nil slice. Backend failures
// are returned, never turned into empty results.
func (e *Executor) Search(ctx context.Context, q *domain.Query) (results []domain.SearchResult, err error) {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	ctx, span := e.tracer.Start(ctx, "search.execute",
		trace.WithAttributes(
			attribute.String("index", e.index),
			attribute.Bool("search.has_text", q != nil && q.Text != nil),
		),
	)
	defer func() { tracing.EndSpan(span, err) }()

	start := time.Now()
	results, err = Search(ctx, e.backend, e.index, q)
	metrics.SearchDuration.Observe(time.Since(start).Seconds())

	switch {
	case err != nil:
		metrics.Searches.WithLabelValues(metrics.OutcomeFailed).Inc()
		logger.WithContext(ctx, e.logger).Error("search failed", "index", e.index, "error", err)
	case len(results) == 0:
		metrics.Searches.WithLabelValues(metrics.OutcomeEmpty).Inc()
	default:
		metrics.Searches.WithLabelValues(metrics.OutcomeOK).Inc()
	}
	span.SetAttributes(attribute.Int("search.hits", len(results)))
	return results, err
}

// Search submits q to backend and projects every hit.
func Search(ctx context.Context, backend engine.Backend, index string, q *domain.Query) ([]domain.SearchResult, error) {
	if q == nil {
		return nil, apperrors.InvalidInput("query is required")
	}

	hits, err := backend.Search(ctx, index, q)
	if err != nil {
		return nil, fmt.Errorf("execute query: %w", err)
	}

	results := make([]domain.SearchResult, 0, len(hits))
	for _, h := range hits {
		results = append(results, Project(h.Source))
	}
	return results, nil
}

// Project maps a raw hit source onto the six result fields. Values are
// coerced leniently since backends disagree on numeric representation.
func Project(src map[string]any) domain.SearchResult {
	return domain.SearchResult{
		Title:       str(src[domain.FieldTitle]),
		Overview:    str(src[domain.FieldOverview]),
		ReleaseDate: dateOnly(str(src[domain.FieldReleaseDate])),
		Popularity:  float(src[domain.FieldPopularity]),
		VoteAverage: float(src[domain.FieldVoteAverage]),
		VoteCount:   int(math.Round(float(src[domain.FieldVoteCount]))),
	}
}

func str(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	default:
		return fmt.Sprint(t)
	}
}

func float(v any) float64 {
	switch t := v.(type) {
	case float64:
		return t
	case float32:
		return float64(t)
	case int:
		return float64(t)
	case int64:
		return float64(t)
	case json.Number:
		f, _ := t.Float64()
		return f
	case string:
		f, _ := strconv.ParseFloat(strings.TrimSpace(t), 64)
		return f
	default:
		return 0
	}
}

func dateOnly(s string) string {
	if len(s) > len(domain.DateLayout) && s[len(domain.DateLayout)] == 'T' {
		return s[:len(domain.DateLayout)]
	}
	return s
}
