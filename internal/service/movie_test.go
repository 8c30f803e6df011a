package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/utafrali/moviesearch/internal/dataset"
	"github.com/utafrali/moviesearch/internal/domain"
	"github.com/utafrali/moviesearch/internal/engine/memory"
	"github.com/utafrali/moviesearch/internal/indexer"
	"github.com/utafrali/moviesearch/internal/normalize"
	"github.com/utafrali/moviesearch/internal/rewrite"
	apperrors "github.com/utafrali/moviesearch/pkg/errors"
)

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type recordingPublisher struct {
	mu      sync.Mutex
	reports []*domain.IndexReport
	err     error
}

func (p *recordingPublisher) PublishIndexCompleted(_ context.Context, index string, report *domain.IndexReport) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.reports = append(p.reports, report)
	return p.err
}

func (p *recordingPublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.reports)
}

func newService(eng *memory.Engine, rw rewrite.Rewriter) *MovieService {
	return New(eng, Config{Indexer: indexer.Config{BatchSize: 100}}, rw, newTestLogger())
}

func movies(n int) []domain.RawRecord {
	out := make([]domain.RawRecord, n)
	for i := range out {
		out[i] = domain.RawRecord{
			"id":           i + 1,
			"title":        fmt.Sprintf("Filler %d", i+1),
			"release_date": "2005-01-01",
			"vote_average": 7.0,
		}
	}
	return out
}

var catalog = []domain.RawRecord{
	{"id": 10, "title": "Die Hard", "overview": "An action classic in a skyscraper.", "release_date": "1988-07-15", "popularity": 60.0, "vote_average": 7.8, "vote_count": 9000},
	{"id": 11, "title": "John Wick", "overview": "Relentless action from a retired hitman.", "release_date": "2014-10-24", "popularity": 95.0, "vote_average": 7.4, "vote_count": 17000},
	{"id": 12, "title": "Interstellar", "overview": "Explorers travel through a wormhole in space.", "release_date": "2014-11-05", "popularity": 140.0, "vote_average": 8.4, "vote_count": 32000},
	{"id": 13, "title": "Find Me", "overview": "A quiet drama.", "release_date": "2019-03-01", "popularity": 5.0, "vote_average": 6.1, "vote_count": 80},
}

func loadCatalog(t *testing.T, svc *MovieService) {
	t.Helper()
	_, err := svc.Reindex(context.Background(), dataset.FromRecords(catalog), 0)
	require.NoError(t, err)
}

func TestMovieService_Reindex(t *testing.T) {
	eng := memory.New()
	pub := &recordingPublisher{}
	svc := newService(eng, nil).WithEvents(pub)

	report, err := svc.Reindex(context.Background(), dataset.FromRecords(movies(250)), 100)
	require.NoError(t, err)

	assert.Equal(t, int64(250), report.RowsSeen)
	assert.Equal(t, int64(3), report.BatchesSubmitted)
	assert.Zero(t, report.BatchesFailed)
	assert.Equal(t, 250, eng.Count(domain.DefaultIndexName))
	assert.Equal(t, 1, pub.count())
	assert.False(t, svc.Reindexing())
}

func TestMovieService_ReindexDropsPreviousData(t *testing.T) {
	eng := memory.New()
	svc := newService(eng, nil)

	_, err := svc.Reindex(context.Background(), dataset.FromRecords(movies(30)), 0)
	require.NoError(t, err)
	_, err = svc.Reindex(context.Background(), dataset.FromRecords(movies(5)), 0)
	require.NoError(t, err)
	assert.Equal(t, 5, eng.Count(domain.DefaultIndexName))
}

func TestMovieService_IndexKeepsExistingData(t *testing.T) {
	eng := memory.New()
	svc := newService(eng, nil)
	ctx := context.Background()

	require.NoError(t, svc.EnsureIndex(ctx))
	_, err := svc.Index(ctx, dataset.FromRecords(movies(3)), 0)
	require.NoError(t, err)
	_, err = svc.Index(ctx, dataset.FromRecords(catalog), 2)
	require.NoError(t, err)
	assert.Equal(t, 7, eng.Count(domain.DefaultIndexName))
}

func TestMovieService_ReindexConflict(t *testing.T) {
	eng := memory.New()
	eng.SetBulkDelay(200 * time.Millisecond)
	svc := newService(eng, nil)

	done := make(chan error, 1)
	go func() {
		_, err := svc.Reindex(context.Background(), dataset.FromRecords(movies(10)), 0)
		done <- err
	}()

	require.Eventually(t, svc.Reindexing, time.Second, 5*time.Millisecond)
	_, err := svc.Reindex(context.Background(), dataset.FromRecords(movies(1)), 0)
	assert.ErrorIs(t, err, apperrors.ErrConflict)
	assert.Equal(t, 409, apperrors.HTTPStatus(err))

	require.NoError(t, <-done)
	assert.False(t, svc.Reindexing())
}

func TestMovieService_ReindexBackendDown(t *testing.T) {
	eng := memory.New()
	eng.SetUnavailable(true)
	pub := &recordingPublisher{}
	svc := newService(eng, nil).WithEvents(pub)

	_, err := svc.Reindex(context.Background(), dataset.FromRecords(movies(10)), 0)
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrBackendUnavailable)
	assert.Zero(t, pub.count())
	assert.False(t, svc.Reindexing())
}

func TestMovieService_PublishFailureIsNotFatal(t *testing.T) {
	pub := &recordingPublisher{err: errors.New("broker down")}
	svc := newService(memory.New(), nil).WithEvents(pub)

	report, err := svc.Reindex(context.Background(), dataset.FromRecords(movies(2)), 0)
	require.NoError(t, err)
	assert.Equal(t, int64(2), report.RowsIndexed)
	assert.Equal(t, 1, pub.count())
}

func TestMovieService_UpsertDoesNotPublish(t *testing.T) {
	eng := memory.New()
	pub := &recordingPublisher{}
	svc := newService(eng, nil).WithEvents(pub)

	report, err := svc.Upsert(context.Background(), movies(1))
	require.NoError(t, err)
	assert.Equal(t, int64(1), report.RowsIndexed)
	assert.Zero(t, pub.count())
}

func TestMovieService_CustomColumns(t *testing.T) {
	eng := memory.New()
	svc := New(eng, Config{
		Normalize: normalize.Options{IDKeys: []string{"tmdb_id"}, TitleKeys: []string{"name"}},
	}, nil, newTestLogger())

	report, err := svc.Upsert(context.Background(), []domain.RawRecord{
		{"tmdb_id": "949", "name": "Heat", "original_title": "ignored"},
		{"id": "1", "name": "No Id Column"},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1), report.RowsIndexed)
	assert.Equal(t, int64(1), report.RowsSkippedValidation)

	doc, ok := eng.Get(domain.DefaultIndexName, "949")
	require.True(t, ok)
	assert.Equal(t, "Heat", doc["title"])
}

func TestMovieService_AskFallsBackToLiteralText(t *testing.T) {
	failing := rewrite.NewClient(rewrite.GeneratorFunc(func(context.Context, string) (string, error) {
		return "", errors.New("rewrite service down")
	}), rewrite.Config{}, newTestLogger())

	eng := memory.New()
	svc := newService(eng, failing)
	loadCatalog(t, svc)

	spec := domain.FilterSpec{Query: "find action movies", Limit: 10}
	res, err := svc.Ask(context.Background(), spec)
	require.NoError(t, err)
	assert.Equal(t, "find action movies", res.Query)

	q := svc.BuildQuery("find action movies", spec)
	require.NotNil(t, q.Text)
	want, err := svc.Search(context.Background(), q)
	require.NoError(t, err)
	assert.Equal(t, want, res.Results)
	assert.NotEmpty(t, res.Results)
}

func TestMovieService_AskUsesRewrite(t *testing.T) {
	rw := rewrite.NewClient(rewrite.GeneratorFunc(func(context.Context, string) (string, error) {
		return "wormhole", nil
	}), rewrite.Config{}, newTestLogger())

	svc := newService(memory.New(), rw)
	loadCatalog(t, svc)

	res, err := svc.Ask(context.Background(), domain.FilterSpec{Query: "that film with the black hole"})
	require.NoError(t, err)
	assert.Equal(t, "wormhole", res.Query)
	assert.Equal(t, "that film with the black hole", res.Question)
	require.Len(t, res.Results, 1)
	assert.Equal(t, "Interstellar", res.Results[0].Title)
}

func TestMovieService_AskAppliesFilters(t *testing.T) {
	svc := newService(memory.New(), nil)
	loadCatalog(t, svc)

	res, err := svc.Ask(context.Background(), domain.FilterSpec{
		Query:       "action",
		ReleaseFrom: "2000-01-01",
		ReleaseTo:   "2023-12-31",
	})
	require.NoError(t, err)
	require.Len(t, res.Results, 1)
	assert.Equal(t, "John Wick", res.Results[0].Title)
}

func TestMovieService_AskValidates(t *testing.T) {
	svc := newService(memory.New(), nil)
	_, err := svc.Ask(context.Background(), domain.FilterSpec{ReleaseFrom: "2020-01-01", ReleaseTo: "2000-01-01"})
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
}

func TestMovieService_SearchBackendDown(t *testing.T) {
	eng := memory.New()
	svc := newService(eng, nil)
	loadCatalog(t, svc)
	eng.SetUnavailable(true)

	_, err := svc.Search(context.Background(), svc.BuildQuery("action", domain.FilterSpec{}))
	assert.ErrorIs(t, err, apperrors.ErrBackendUnavailable)
	assert.ErrorIs(t, svc.Ping(context.Background()), apperrors.ErrBackendUnavailable)
}

func TestMovieService_Defaults(t *testing.T) {
	svc := New(memory.New(), Config{}, nil, newTestLogger())
	assert.Equal(t, "imdb_movies", svc.IndexName())
	assert.Equal(t, "x", svc.rewriter.Rewrite(context.Background(), "x"))
}
