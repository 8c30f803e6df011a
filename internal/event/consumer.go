// Package event connects the pipeline to Kafka: it publishes ingestion
// results and applies incremental movie upserts.
package event

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/utafrali/moviesearch/internal/domain"
	pkgkafka "github.com/utafrali/moviesearch/pkg/kafka"
)

// MovieUpsertedData is the payload of a movie.upserted event: one raw row in
// the dataset's column layout.
type MovieUpsertedData struct {
	Record domain.RawRecord `json:"record"`
}

// Upserter indexes records into the live index.
type Upserter interface {
	Upsert(ctx context.Context, records []domain.RawRecord) (*domain.IndexReport, error)
}

// Consumer applies movie events to the index.
type Consumer struct {
	upserter Upserter
	logger   *slog.Logger
}

// NewConsumer creates a new event consumer.
func NewConsumer(upserter Upserter, logger *slog.Logger) *Consumer {
	return &Consumer{upserter: upserter, logger: logger}
}

// Handle processes one event. Unknown types are acknowledged and ignored.
// A bulk request that failed in transit or with a 5xx is returned as-is so
// the event is retried; events that can never be indexed, including bulk
// requests the backend refused with a 4xx, return pkgkafka.ErrSkip.
func (c *Consumer) Handle(ctx context.Context, event *pkgkafka.Event) error {
	switch event.Type {
	case TypeMovieUpserted:
		return c.handleMovieUpserted(ctx, event)
	case TypeIndexCompleted:
		return nil
	default:
		c.logger.WarnContext(ctx, "unknown event type received",
			slog.String("event_type", event.Type),
			slog.String("event_id", event.ID),
		)
		return nil
	}
}

func (c *Consumer) handleMovieUpserted(ctx context.Context, event *pkgkafka.Event) error {
	var data MovieUpsertedData
	if err := event.UnmarshalData(&data); err != nil {
		return fmt.Errorf("%w: unmarshal movie.upserted data: %v", pkgkafka.ErrSkip, err)
	}
	if len(data.Record) == 0 {
		return fmt.Errorf("%w: movie.upserted without a record", pkgkafka.ErrSkip)
	}

	report, err := c.upserter.Upsert(ctx, []domain.RawRecord{data.Record})
	if err != nil {
		return fmt.Errorf("upsert movie %s: %w", event.Key, err)
	}

	switch {
	case report.BatchesFailed > 0 && malformed(report):
		return fmt.Errorf("%w: upsert movie %s: %s", pkgkafka.ErrSkip, event.Key, batchErrors(report))
	case report.BatchesFailed > 0:
		return fmt.Errorf("upsert movie %s: %s", event.Key, batchErrors(report))
	case report.RowsSkippedValidation > 0:
		return fmt.Errorf("%w: %s", pkgkafka.ErrSkip, strings.Join(report.ValidationErrors, "; "))
	case report.RowsRejected > 0:
		return fmt.Errorf("%w: movie %s rejected by the backend", pkgkafka.ErrSkip, event.Key)
	}

	c.logger.InfoContext(ctx, "indexed movie from upserted event",
		slog.String("movie_id", event.Key),
	)
	return nil
}

func malformed(report *domain.IndexReport) bool {
	for _, be := range report.BatchErrors {
		if be.Malformed {
			return true
		}
	}
	return false
}

func batchErrors(report *domain.IndexReport) string {
	msgs := make([]string, 0, len(report.BatchErrors))
	for _, be := range report.BatchErrors {
		msgs = append(msgs, be.Error)
	}
	if len(msgs) == 0 {
		return "bulk request failed"
	}
	return strings.Join(msgs, "; ")
}
