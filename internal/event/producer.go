package event

import (
	"context"
	"fmt"

	"github.com/utafrali/moviesearch/internal/domain"
	pkgkafka "github.com/utafrali/moviesearch/pkg/kafka"
	"github.com/utafrali/moviesearch/pkg/logger"
)

// Event types and the topics they are published on.
const (
	TypeMovieUpserted  = "movie.upserted"
	TypeIndexCompleted = "index.completed"

	Source = "moviesearch"
)

var (
	TopicMovieUpserted  = pkgkafka.Topic("movie", "upserted")
	TopicIndexCompleted = pkgkafka.Topic("index", "completed")
)

// IndexCompletedData is the payload of an index.completed event.
type IndexCompletedData struct {
	Index                 string `json:"index"`
	Outcome               string `json:"outcome"`
	RowsSeen              int64  `json:"rows_seen"`
	RowsIndexed           int64  `json:"rows_indexed"`
	RowsSkippedValidation int64  `json:"rows_skipped_validation"`
	RowsRejected          int64  `json:"rows_rejected"`
	BatchesSubmitted      int64  `json:"batches_submitted"`
	BatchesFailed         int64  `json:"batches_failed"`
	DurationMS            int64  `json:"duration_ms"`
}

// Publisher is the subset of *pkgkafka.Producer the event producer needs.
type Publisher interface {
	Publish(ctx context.Context, topic string, event *pkgkafka.Event) error
}

// Producer publishes moviesearch domain events.
type Producer struct {
	pub Publisher
}

// NewProducer creates a Producer on top of pub.
func NewProducer(pub Publisher) *Producer {
	return &Producer{pub: pub}
}

// PublishIndexCompleted announces the end of an ingestion pass, keyed by
// index name.
func (p *Producer) PublishIndexCompleted(ctx context.Context, index string, report *domain.IndexReport) error {
	data := IndexCompletedData{
		Index:                 index,
		Outcome:               string(report.Outcome()),
		RowsSeen:              report.RowsSeen,
		RowsIndexed:           report.RowsIndexed,
		RowsSkippedValidation: report.RowsSkippedValidation,
		RowsRejected:          report.RowsRejected,
		BatchesSubmitted:      report.BatchesSubmitted,
		BatchesFailed:         report.BatchesFailed,
		DurationMS:            report.Duration.Milliseconds(),
	}
	ev, err := pkgkafka.NewEvent(TypeIndexCompleted, index, Source, data)
	if err != nil {
		return err
	}
	return p.publish(ctx, TopicIndexCompleted, ev)
}

// PublishMovieUpserted emits one raw record for the upsert consumer. Records
// without an id cannot be keyed and are rejected.
func (p *Producer) PublishMovieUpserted(ctx context.Context, rec domain.RawRecord) error {
	id, ok := rec["id"]
	if !ok || id == nil {
		return fmt.Errorf("publish movie.upserted: record has no id")
	}
	ev, err := pkgkafka.NewEvent(TypeMovieUpserted, fmt.Sprint(id), Source, MovieUpsertedData{Record: rec})
	if err != nil {
		return err
	}
	return p.publish(ctx, TopicMovieUpserted, ev)
}

func (p *Producer) publish(ctx context.Context, topic string, ev *pkgkafka.Event) error {
	if id := logger.CorrelationIDFromContext(ctx); id != "" {
		ev.WithCorrelationID(id)
	}
	if run := logger.RunIDFromContext(ctx); run != "" {
		ev.WithMetadata("run_id", run)
	}
	return p.pub.Publish(ctx, topic, ev)
}
