// Package service is the pipeline's public surface: index (re)creation,
// ingestion, query building, search and natural-language ask.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/utafrali/moviesearch/internal/dataset"
	"github.com/utafrali/moviesearch/internal/domain"
	"github.com/utafrali/moviesearch/internal/engine"
	"github.com/utafrali/moviesearch/internal/indexer"
	"github.com/utafrali/moviesearch/internal/metrics"
	"github.com/utafrali/moviesearch/internal/normalize"
	"github.com/utafrali/moviesearch/internal/query"
	"github.com/utafrali/moviesearch/internal/rewrite"
	"github.com/utafrali/moviesearch/internal/schema"
	"github.com/utafrali/moviesearch/internal/search"
	apperrors "github.com/utafrali/moviesearch/pkg/errors"
	"github.com/utafrali/moviesearch/pkg/logger"
	"github.com/utafrali/moviesearch/pkg/tracing"
)

// Config holds the service settings.
type Config struct {
	Index         string
	Indexer       indexer.Config
	Normalize     normalize.Options
	SearchTimeout time.Duration
	// SchemaTimeout bounds EnsureIndex.
	SchemaTimeout time.Duration
}

// EventPublisher is notified after every ingestion pass.
type EventPublisher interface {
	PublishIndexCompleted(ctx context.Context, index string, report *domain.IndexReport) error
}

// AskResult is the outcome of a natural-language search.
type AskResult struct {
	Question string                `json:"question"`
	Query    string                `json:"query"`
	Results  []domain.SearchResult `json:"results"`
}

// MovieService wires the pipeline components around one backend and index.
type MovieService struct {
	backend  engine.Backend
	cfg      Config
	schema   *schema.Manager
	indexer  *indexer.Indexer
	executor *search.Executor
	rewriter rewrite.Rewriter
	events   EventPublisher

	reindexing atomic.Bool
	tracer     trace.Tracer
	logger     *slog.Logger
}

// New creates a MovieService. A nil rewriter passes questions through.
func New(backend engine.Backend, cfg Config, rewriter rewrite.Rewriter, logger *slog.Logger) *MovieService {
	if cfg.Index == "" {
		cfg.Index = domain.DefaultIndexName
	}
	if cfg.SchemaTimeout <= 0 {
		cfg.SchemaTimeout = 30 * time.Second
	}
	if rewriter == nil {
		rewriter = rewrite.Passthrough{}
	}
	return &MovieService{
		backend:  backend,
		cfg:      cfg,
		schema:   schema.New(backend, logger),
		indexer:  indexer.New(backend, cfg.Index, cfg.Indexer, logger).WithNormalizer(normalize.New(cfg.Normalize)),
		executor: search.NewExecutor(backend, cfg.Index, cfg.SearchTimeout, logger),
		rewriter: rewriter,
		tracer:   tracing.Tracer("github.com/utafrali/moviesearch/service"),
		logger:   logger,
	}
}

// WithEvents sets the publisher notified after ingestion.
func (s *MovieService) WithEvents(p EventPublisher) *MovieService {
	s.events = p
	return s
}

// IndexName returns the index the service reads and writes.
func (s *MovieService) IndexName() string { return s.cfg.Index }

// Reindexing reports whether a Reindex call is in progress.
func (s *MovieService) Reindexing() bool { return s.reindexing.Load() }

// Ping checks the backend.
func (s *MovieService) Ping(ctx context.Context) error {
	return s.backend.Ping(ctx)
}

// EnsureIndex drops and recreates the index with the fixed mapping.
func (s *MovieService) EnsureIndex(ctx context.Context) (err error) {
	ctx, span := s.tracer.Start(ctx, "MovieService.EnsureIndex",
		trace.WithAttributes(attribute.String("index", s.cfg.Index)))
	defer func() { tracing.EndSpan(span, err) }()

	ctx, cancel := context.WithTimeout(ctx, s.cfg.SchemaTimeout)
	defer cancel()

	return s.schema.EnsureIndex(ctx, s.cfg.Index, domain.IndexMapping())
}

// Index ingests src into the existing index without recreating it. A
// non-positive batchSize uses the configured size.
func (s *MovieService) Index(ctx context.Context, src dataset.Source, batchSize int) (report *domain.IndexReport, err error) {
	ctx = logger.WithRunID(ctx, uuid.NewString())
	ctx, span := s.tracer.Start(ctx, "MovieService.Index",
		trace.WithAttributes(attribute.String("index", s.cfg.Index)))
	defer func() { tracing.EndSpan(span, err) }()

	report, err = s.indexer.WithBatchSize(batchSize).Index(ctx, src)
	span.SetAttributes(
		attribute.Int64("rows.seen", report.RowsSeen),
		attribute.Int64("rows.indexed", report.RowsIndexed),
		attribute.Int64("batches.failed", report.BatchesFailed),
	)
	s.publish(ctx, report)
	return report, err
}

// Reindex recreates the index and ingests src into it. Only one Reindex runs
// at a time; a concurrent call fails with a conflict.
func (s *MovieService) Reindex(ctx context.Context, src dataset.Source, batchSize int) (*domain.IndexReport, error) {
	if !s.reindexing.CompareAndSwap(false, true) {
		return nil, apperrors.Conflict("a reindex is already running")
	}
	defer s.reindexing.Store(false)

	metrics.ReindexInProgress.Set(1)
	defer metrics.ReindexInProgress.Set(0)

	if err := s.EnsureIndex(ctx); err != nil {
		return nil, fmt.Errorf("reindex: %w", err)
	}
	return s.Index(ctx, src, batchSize)
}

// Upsert indexes records one batch at a time without recreating the index
// or publishing a completion event. Used for incremental updates.
func (s *MovieService) Upsert(ctx context.Context, records []domain.RawRecord) (*domain.IndexReport, error) {
	return s.indexer.Index(ctx, dataset.FromRecords(records))
}

// BuildQuery composes freeText and spec into a backend query.
func (s *MovieService) BuildQuery(freeText string, spec domain.FilterSpec) *domain.Query {
	return query.Build(freeText, spec)
}

// Search runs q and returns the projected results.
func (s *MovieService) Search(ctx context.Context, q *domain.Query) ([]domain.SearchResult, error) {
	return s.executor.Search(ctx, q)
}

// Ask rewrites spec.Query into a search string, builds the query with spec's
// filters and runs it. A failed rewrite searches for spec.Query verbatim.
func (s *MovieService) Ask(ctx context.Context, spec domain.FilterSpec) (result *AskResult, err error) {
	if err := spec.Validate(); err != nil {
		return nil, err
	}

	ctx, span := s.tracer.Start(ctx, "MovieService.Ask")
	defer func() { tracing.EndSpan(span, err) }()

	generated := s.rewriter.Rewrite(ctx, spec.Query)
	span.SetAttributes(attribute.Bool("query.rewritten", generated != spec.Query))

	results, err := s.Search(ctx, s.BuildQuery(generated, spec))
	if err != nil {
		return nil, err
	}

	logger.WithContext(ctx, s.logger).Debug("ask completed",
		"question", spec.Query,
		"query", generated,
		"hits", len(results),
	)
	return &AskResult{Question: spec.Query, Query: generated, Results: results}, nil
}

func (s *MovieService) publish(ctx context.Context, report *domain.IndexReport) {
	if s.events == nil || report == nil {
		return
	}
	// The pass is over even if ctx was cancelled; still announce it.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := s.events.PublishIndexCompleted(ctx, s.cfg.Index, report); err != nil {
		logger.WithContext(ctx, s.logger).Warn("failed to publish index.completed", "error", err)
	}
}
