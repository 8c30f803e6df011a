package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/utafrali/moviesearch/internal/domain"
	apperrors "github.com/utafrali/moviesearch/pkg/errors"
)

const testIndex = "imdb_movies"

func ptr(f float64) *float64 { return &f }

func seeded(t *testing.T) *Engine {
	t.Helper()
	e := New()
	ctx := context.Background()
	require.NoError(t, e.Create(ctx, testIndex, domain.IndexMapping()))
	_, err := e.BulkWrite(ctx, testIndex, []domain.BulkItem{
		{ID: "1", Document: domain.Document{Title: "Interstellar", Overview: "A space adventure through a wormhole.", ReleaseDate: "2014-11-05", Popularity: 140, VoteAverage: 8.4, VoteCount: 32000}},
		{ID: "2", Document: domain.Document{Title: "Gravity", Overview: "Two astronauts stranded in space.", ReleaseDate: "2013-10-03", Popularity: 50, VoteAverage: 5.9, VoteCount: 14000}},
		{ID: "3", Document: domain.Document{Title: "Notting Hill", Overview: "A bookshop owner falls for a film star.", ReleaseDate: "1999-05-13", Popularity: 30, VoteAverage: 7.1, VoteCount: 5000}},
	})
	require.NoError(t, err)
	return e
}

func TestLevenshtein(t *testing.T) {
	assert.Equal(t, 0, levenshtein("space", "space", 1))
	// A transposition costs two edits.
	assert.Equal(t, 2, levenshtein("spaec", "space", 2))
	assert.Equal(t, 1, levenshtein("wormhol", "wormhole", 2))
	assert.Equal(t, 3, levenshtein("abc", "xyzabc", 2))
}

func TestEngine_CreateTwiceIsMalformed(t *testing.T) {
	e := New()
	ctx := context.Background()
	require.NoError(t, e.Create(ctx, testIndex, domain.IndexMapping()))
	err := e.Create(ctx, testIndex, domain.IndexMapping())
	assert.ErrorIs(t, err, apperrors.ErrMalformedQuery)

	m, ok := e.Mapping(testIndex)
	require.True(t, ok)
	assert.Equal(t, domain.IndexMapping(), m)
}

func TestEngine_SearchText(t *testing.T) {
	e := seeded(t)
	hits, err := e.Search(context.Background(), testIndex, &domain.Query{
		Text:  &domain.TextClause{Query: "space", Fields: []string{domain.FieldTitle, domain.FieldOverview}, Fuzziness: domain.AutoFuzziness},
		Limit: 10,
	})
	require.NoError(t, err)
	require.Len(t, hits, 2)
	// Equal scores fall back to popularity.
	assert.Equal(t, "1", hits[0].ID)
	assert.Equal(t, "2", hits[1].ID)
}

func TestEngine_SearchFilters(t *testing.T) {
	e := seeded(t)
	hits, err := e.Search(context.Background(), testIndex, &domain.Query{
		DateRanges:    []domain.DateRange{{Field: domain.FieldReleaseDate, From: "2000-01-01", To: "2023-12-31"}},
		NumericRanges: []domain.NumericRange{{Field: domain.FieldVoteAverage, Min: ptr(6)}},
		Limit:         10,
	})
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "Interstellar", hits[0].Source[domain.FieldTitle])
}

func TestEngine_SearchLimit(t *testing.T) {
	e := seeded(t)
	hits, err := e.Search(context.Background(), testIndex, &domain.Query{Limit: 2})
	require.NoError(t, err)
	assert.Len(t, hits, 2)
}

func TestEngine_SearchMissingIndex(t *testing.T) {
	_, err := New().Search(context.Background(), testIndex, &domain.Query{})
	assert.ErrorIs(t, err, apperrors.ErrMalformedQuery)
}

func TestEngine_FaultInjection(t *testing.T) {
	e := New()
	ctx := context.Background()
	boom := errors.New("boom")

	e.FailBatch(2, boom)
	e.RejectID("bad", "mapper_parsing_exception")

	results, err := e.BulkWrite(ctx, testIndex, []domain.BulkItem{{ID: "a"}, {ID: "bad"}})
	require.NoError(t, err)
	assert.False(t, results[0].Failed())
	assert.True(t, results[1].Failed())

	_, err = e.BulkWrite(ctx, testIndex, []domain.BulkItem{{ID: "b"}})
	assert.ErrorIs(t, err, boom)
	assert.ErrorIs(t, err, apperrors.ErrBackendUnavailable)

	assert.Equal(t, 2, e.BulkCalls())
	assert.Equal(t, []int{2, 1}, e.BatchSizes())
	assert.Equal(t, 1, e.Count(testIndex))

	e.SetUnavailable(true)
	assert.ErrorIs(t, e.Ping(ctx), apperrors.ErrBackendUnavailable)
	_, err = e.Exists(ctx, testIndex)
	assert.ErrorIs(t, err, ErrUnavailable)
	e.SetUnavailable(false)
	assert.NoError(t, e.Ping(ctx))

	e.SetSearchError(boom)
	_, err = e.Search(ctx, testIndex, &domain.Query{})
	assert.ErrorIs(t, err, boom)
}

func TestEngine_BulkDelayHonorsContext(t *testing.T) {
	e := New()
	e.SetBulkDelay(time.Second)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err := e.BulkWrite(ctx, testIndex, []domain.BulkItem{{ID: "a"}})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.ErrorIs(t, err, apperrors.ErrBackendUnavailable)
}
