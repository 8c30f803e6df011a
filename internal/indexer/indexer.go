// Package indexer loads a dataset into the search backend in fixed-size bulk
// batches.
//
// Rows that fail normalization are skipped and recorded. A batch the backend
// rejects as a whole is recorded and the pass moves on; nothing is retried.
// Cancellation is honored between batches: a batch that has started filling
// is always submitted, and submissions already in flight run to completion
// under their own timeout.
package indexer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/utafrali/moviesearch/internal/dataset"
	"github.com/utafrali/moviesearch/internal/domain"
	"github.com/utafrali/moviesearch/internal/engine"
	"github.com/utafrali/moviesearch/internal/metrics"
	"github.com/utafrali/moviesearch/internal/normalize"
	apperrors "github.com/utafrali/moviesearch/pkg/errors"
	"github.com/utafrali/moviesearch/pkg/logger"
	"github.com/utafrali/moviesearch/pkg/tracing"
)

// Defaults.
const (
	DefaultBatchSize    = 100
	DefaultWorkers      = 1
	DefaultBatchTimeout = 30 * time.Second

	// maxRecordedErrors bounds the validation messages kept in a report.
	maxRecordedErrors = 100
)

// Config tunes one Indexer.
type Config struct {
	BatchSize    int
	Workers      int
	BatchTimeout time.Duration
}

// DefaultConfig returns sequential submission of 100-row batches.
func DefaultConfig() Config {
	return Config{
		BatchSize:    DefaultBatchSize,
		Workers:      DefaultWorkers,
		BatchTimeout: DefaultBatchTimeout,
	}
}

func (c Config) withDefaults() Config {
	if c.BatchSize <= 0 {
		c.BatchSize = DefaultBatchSize
	}
	if c.Workers <= 0 {
		c.Workers = DefaultWorkers
	}
	if c.BatchTimeout <= 0 {
		c.BatchTimeout = DefaultBatchTimeout
	}
	return c
}

// Indexer submits normalized documents to one index.
type Indexer struct {
	backend    engine.Backend
	index      string
	cfg        Config
	normalizer *normalize.Normalizer
	tracer     trace.Tracer
	logger     *slog.Logger
}

// New creates an Indexer. Zero Config fields take their defaults.
func New(backend engine.Backend, index string, cfg Config, logger *slog.Logger) *Indexer {
	return &Indexer{
		backend:    backend,
		index:      index,
		cfg:        cfg.withDefaults(),
		normalizer: normalize.New(normalize.DefaultOptions()),
		tracer:     tracing.Tracer("github.com/utafrali/moviesearch/indexer"),
		logger:     logger,
	}
}

// WithNormalizer replaces the default normalizer.
func (ix *Indexer) WithNormalizer(n *normalize.Normalizer) *Indexer {
	ix.normalizer = n
	return ix
}

// WithBatchSize returns a copy of the Indexer using size, or the current size
// when size is not positive.
func (ix *Indexer) WithBatchSize(size int) *Indexer {
	cp := *ix
	if size > 0 {
		cp.cfg.BatchSize = size
	}
	return &cp
}

// Config returns the effective configuration.
func (ix *Indexer) Config() Config { return ix.cfg }

// pass holds the state shared by one Index call and its submissions.
type pass struct {
	report *domain.IndexReport
	mu     sync.Mutex // guards report.ValidationErrors and report.BatchErrors
}

// Index reads src once and indexes every row that normalizes. It always
// returns a report; the error is non-nil only when src failed or ctx was
// cancelled, in which case the report covers the rows handled so far.
func (ix *Indexer) Index(ctx context.Context, src dataset.Source) (*domain.IndexReport, error) {
	start := time.Now()
	log := logger.WithContext(ctx, ix.logger)
	p := &pass{report: &domain.IndexReport{}}

	// Submissions outlive cancellation of ctx so an in-flight batch is never
	// cut in half; each is bounded by BatchTimeout instead.
	submitCtx := context.WithoutCancel(ctx)

	var g errgroup.Group
	g.SetLimit(ix.cfg.Workers)

	var (
		row     int
		seq     = 1
		batch   = newBatch(seq, ix.cfg.BatchSize)
		readErr error
	)

	flush := func() {
		b := batch
		atomic.AddInt64(&p.report.BatchesSubmitted, 1)
		g.Go(func() error {
			ix.submit(submitCtx, log, p, b)
			return nil
		})
		seq++
		batch = newBatch(seq, ix.cfg.BatchSize)
	}

	for {
		if batch.Len() == 0 && ctx.Err() != nil {
			break
		}

		raw, err := src.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			readErr = fmt.Errorf("read row %d: %w", row+1, err)
			break
		}
		row++
		atomic.AddInt64(&p.report.RowsSeen, 1)

		doc, err := ix.normalizer.Normalize(row, raw)
		if err != nil {
			ix.recordValidation(log, p, err)
			continue
		}

		if batch.Add(domain.BulkItem{ID: doc.ID, Document: doc}) {
			flush()
		}
	}
	if batch.Len() > 0 {
		flush()
	}

	_ = g.Wait()
	p.report.Duration = time.Since(start)

	log.Info("indexing pass finished",
		"index", ix.index,
		"outcome", p.report.Outcome(),
		"rows_seen", p.report.RowsSeen,
		"rows_indexed", p.report.RowsIndexed,
		"rows_skipped", p.report.RowsSkippedValidation,
		"rows_rejected", p.report.RowsRejected,
		"batches", p.report.BatchesSubmitted,
		"batches_failed", p.report.BatchesFailed,
		"duration", p.report.Duration,
	)

	switch {
	case readErr != nil:
		return p.report, readErr
	case ctx.Err() != nil:
		return p.report, ctx.Err()
	default:
		return p.report, nil
	}
}

func (ix *Indexer) recordValidation(log *slog.Logger, p *pass, err error) {
	atomic.AddInt64(&p.report.RowsSkippedValidation, 1)
	metrics.IndexerRows.WithLabelValues(metrics.RowSkipped).Inc()
	log.Debug("skipping row", "error", err)

	p.mu.Lock()
	if len(p.report.ValidationErrors) < maxRecordedErrors {
		p.report.ValidationErrors = append(p.report.ValidationErrors, err.Error())
	}
	p.mu.Unlock()
}

// submit sends one batch and folds the outcome into the report.
func (ix *Indexer) submit(ctx context.Context, log *slog.Logger, p *pass, b *Batch) {
	ctx, cancel := context.WithTimeout(ctx, ix.cfg.BatchTimeout)
	defer cancel()

	ctx, span := ix.tracer.Start(ctx, "indexer.bulk",
		trace.WithAttributes(
			attribute.String("index", ix.index),
			attribute.Int("batch.seq", b.Seq),
			attribute.Int("batch.size", b.Len()),
		),
	)

	start := time.Now()
	results, err := ix.backend.BulkWrite(ctx, ix.index, b.Items)
	metrics.IndexerBulkDuration.Observe(time.Since(start).Seconds())

	if err != nil {
		err = fmt.Errorf("%w: batch %d: %w", apperrors.ErrPartialBatch, b.Seq, err)
		tracing.EndSpan(span, err)

		atomic.AddInt64(&p.report.BatchesFailed, 1)
		metrics.IndexerBatches.WithLabelValues(metrics.OutcomeFailed).Inc()
		p.mu.Lock()
		p.report.BatchErrors = append(p.report.BatchErrors, domain.BatchError{
			Batch:     b.Seq,
			Size:      b.Len(),
			Error:     err.Error(),
			Malformed: errors.Is(err, apperrors.ErrMalformedQuery),
		})
		p.mu.Unlock()

		log.Error("bulk batch failed", "batch", b.Seq, "size", b.Len(), "error", err)
		return
	}

	// Items the backend did not report on count as rejected.
	rejected := b.Len() - len(results)
	if rejected < 0 {
		rejected = 0
	}
	for _, r := range results {
		if r.Failed() {
			rejected++
			log.Debug("document rejected", "id", r.ID, "status", r.Status, "reason", r.Error)
		}
	}
	indexed := b.Len() - rejected

	span.SetAttributes(attribute.Int("batch.rejected", rejected))
	tracing.EndSpan(span, nil)

	total := atomic.AddInt64(&p.report.RowsIndexed, int64(indexed))
	atomic.AddInt64(&p.report.RowsRejected, int64(rejected))
	metrics.IndexerBatches.WithLabelValues(metrics.OutcomeOK).Inc()
	metrics.IndexerRows.WithLabelValues(metrics.RowIndexed).Add(float64(indexed))
	metrics.IndexerRows.WithLabelValues(metrics.RowRejected).Add(float64(rejected))

	log.Info("indexed rows", "batch", b.Seq, "rows", indexed, "rejected", rejected, "total", total)
}
