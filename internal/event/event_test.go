package event

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/utafrali/moviesearch/internal/domain"
	"github.com/utafrali/moviesearch/internal/engine/memory"
	"github.com/utafrali/moviesearch/internal/service"
	pkgkafka "github.com/utafrali/moviesearch/pkg/kafka"
	"github.com/utafrali/moviesearch/pkg/logger"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type published struct {
	topic string
	event *pkgkafka.Event
}

type fakePublisher struct {
	mu   sync.Mutex
	sent []published
	err  error
}

func (p *fakePublisher) Publish(_ context.Context, topic string, ev *pkgkafka.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.sent = append(p.sent, published{topic: topic, event: ev})
	return nil
}

func TestProducer_PublishIndexCompleted(t *testing.T) {
	pub := &fakePublisher{}
	p := NewProducer(pub)

	ctx := logger.WithCorrelationID(context.Background(), "corr-1")
	ctx = logger.WithRunID(ctx, "run-1")
	report := &domain.IndexReport{RowsSeen: 250, RowsIndexed: 250, BatchesSubmitted: 3}

	require.NoError(t, p.PublishIndexCompleted(ctx, "imdb_movies", report))
	require.Len(t, pub.sent, 1)

	msg := pub.sent[0]
	assert.Equal(t, "moviesearch.index.completed", msg.topic)
	assert.Equal(t, TypeIndexCompleted, msg.event.Type)
	assert.Equal(t, "imdb_movies", msg.event.Key)
	assert.Equal(t, "corr-1", msg.event.CorrelationID)
	assert.Equal(t, "run-1", msg.event.Metadata["run_id"])

	var data IndexCompletedData
	require.NoError(t, json.Unmarshal(msg.event.Data, &data))
	assert.Equal(t, "success", data.Outcome)
	assert.Equal(t, int64(250), data.RowsIndexed)
	assert.Equal(t, int64(3), data.BatchesSubmitted)
}

func TestProducer_PublishMovieUpserted(t *testing.T) {
	pub := &fakePublisher{}
	p := NewProducer(pub)

	require.NoError(t, p.PublishMovieUpserted(context.Background(), domain.RawRecord{"id": 42, "title": "Alien"}))
	require.Len(t, pub.sent, 1)
	assert.Equal(t, "moviesearch.movie.upserted", pub.sent[0].topic)
	assert.Equal(t, "42", pub.sent[0].event.Key)
	assert.Empty(t, pub.sent[0].event.Metadata)

	err := p.PublishMovieUpserted(context.Background(), domain.RawRecord{"title": "No Id"})
	require.Error(t, err)
	assert.Len(t, pub.sent, 1)
}

func TestProducer_PublishError(t *testing.T) {
	p := NewProducer(&fakePublisher{err: errors.New("broker down")})
	err := p.PublishIndexCompleted(context.Background(), "imdb_movies", &domain.IndexReport{})
	assert.EqualError(t, err, "broker down")
}

func upsertEvent(t *testing.T, rec domain.RawRecord) *pkgkafka.Event {
	t.Helper()
	ev, err := pkgkafka.NewEvent(TypeMovieUpserted, "k", Source, MovieUpsertedData{Record: rec})
	require.NoError(t, err)
	return ev
}

func newConsumer(eng *memory.Engine) *Consumer {
	svc := service.New(eng, service.Config{}, nil, testLogger())
	return NewConsumer(svc, testLogger())
}

func TestConsumer_UpsertsMovie(t *testing.T) {
	eng := memory.New()
	c := newConsumer(eng)

	ev := upsertEvent(t, domain.RawRecord{"id": 7, "title": "Heat", "vote_count": 12})
	require.NoError(t, c.Handle(context.Background(), ev))

	doc, ok := eng.Get(domain.DefaultIndexName, "7")
	require.True(t, ok)
	assert.Equal(t, "Heat", doc["title"])
}

func TestConsumer_RoundTripThroughEnvelope(t *testing.T) {
	eng := memory.New()
	c := newConsumer(eng)

	raw, err := upsertEvent(t, domain.RawRecord{"id": 8, "popularity": 12.5}).Marshal()
	require.NoError(t, err)
	ev, err := pkgkafka.UnmarshalEvent(raw)
	require.NoError(t, err)

	require.NoError(t, c.Handle(context.Background(), ev))
	assert.Equal(t, 1, eng.Count(domain.DefaultIndexName))
}

func TestConsumer_InvalidRecordIsSkipped(t *testing.T) {
	eng := memory.New()
	c := newConsumer(eng)

	err := c.Handle(context.Background(), upsertEvent(t, domain.RawRecord{"title": "No Id"}))
	assert.ErrorIs(t, err, pkgkafka.ErrSkip)
	assert.Zero(t, eng.Count(domain.DefaultIndexName))
}

func TestConsumer_MalformedPayloadIsSkipped(t *testing.T) {
	c := newConsumer(memory.New())
	ev := &pkgkafka.Event{ID: "e1", Type: TypeMovieUpserted, Data: json.RawMessage(`"not an object"`)}
	assert.ErrorIs(t, c.Handle(context.Background(), ev), pkgkafka.ErrSkip)

	empty := &pkgkafka.Event{ID: "e2", Type: TypeMovieUpserted, Data: json.RawMessage(`{}`)}
	assert.ErrorIs(t, c.Handle(context.Background(), empty), pkgkafka.ErrSkip)
}

func TestConsumer_RejectedDocumentIsSkipped(t *testing.T) {
	eng := memory.New()
	eng.RejectID("9", "mapper_parsing_exception")
	c := newConsumer(eng)

	err := c.Handle(context.Background(), upsertEvent(t, domain.RawRecord{"id": 9}))
	assert.ErrorIs(t, err, pkgkafka.ErrSkip)
}

func TestConsumer_BackendFailureIsRetryable(t *testing.T) {
	eng := memory.New()
	eng.SetUnavailable(true)
	c := newConsumer(eng)

	err := c.Handle(context.Background(), upsertEvent(t, domain.RawRecord{"id": 10}))
	require.Error(t, err)
	assert.NotErrorIs(t, err, pkgkafka.ErrSkip)
}

func TestConsumer_RefusedBatchIsSkipped(t *testing.T) {
	eng := memory.New()
	eng.FailBatch(1, domain.NewBackendError("bulk", "imdb_movies", 400, "mapper_parsing_exception: failed to parse", nil))
	c := newConsumer(eng)

	err := c.Handle(context.Background(), upsertEvent(t, domain.RawRecord{"id": 12}))
	require.Error(t, err)
	assert.ErrorIs(t, err, pkgkafka.ErrSkip)
	assert.Contains(t, err.Error(), "mapper_parsing_exception")
}

func TestConsumer_ServerErrorBatchIsRetryable(t *testing.T) {
	eng := memory.New()
	eng.FailBatch(1, domain.NewBackendError("bulk", "imdb_movies", 503, "cluster_block_exception", nil))
	c := newConsumer(eng)

	err := c.Handle(context.Background(), upsertEvent(t, domain.RawRecord{"id": 13}))
	require.Error(t, err)
	assert.NotErrorIs(t, err, pkgkafka.ErrSkip)
}

func TestConsumer_IgnoresOtherTypes(t *testing.T) {
	c := newConsumer(memory.New())
	assert.NoError(t, c.Handle(context.Background(), &pkgkafka.Event{ID: "x", Type: "movie.deleted"}))
	assert.NoError(t, c.Handle(context.Background(), &pkgkafka.Event{ID: "y", Type: TypeIndexCompleted}))
}

func TestConsumer_IdempotentDelivery(t *testing.T) {
	eng := memory.New()
	c := newConsumer(eng)
	h := pkgkafka.IdempotentHandler(pkgkafka.NewMemoryIdempotencyStore(16, 0), c.Handle, testLogger())

	ev := upsertEvent(t, domain.RawRecord{"id": 11})
	require.NoError(t, h(context.Background(), ev))
	assert.ErrorIs(t, h(context.Background(), ev), pkgkafka.ErrDuplicate)
	assert.Equal(t, 1, eng.BulkCalls())
}
