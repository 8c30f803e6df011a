package bleve

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/utafrali/moviesearch/internal/domain"
	apperrors "github.com/utafrali/moviesearch/pkg/errors"
)

const testIndex = "imdb_movies"

func ptr(f float64) *float64 { return &f }

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func seed(t *testing.T, eng *Engine) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, eng.Create(ctx, testIndex, domain.IndexMapping()))

	items := []domain.BulkItem{
		{ID: "1", Document: domain.Document{Title: "Interstellar", Overview: "A space adventure through a wormhole.", ReleaseDate: "2014-11-05", Popularity: 140, VoteAverage: 8.4, VoteCount: 32000}},
		{ID: "2", Document: domain.Document{Title: "Gravity", Overview: "Two astronauts stranded in space.", ReleaseDate: "2013-10-03", Popularity: 50, VoteAverage: 5.9, VoteCount: 14000}},
		{ID: "3", Document: domain.Document{Title: "Notting Hill", Overview: "A bookshop owner falls for a film star.", ReleaseDate: "1999-05-13", Popularity: 30, VoteAverage: 7.1, VoteCount: 5000}},
		{ID: "4", Document: domain.Document{Title: "Mad Max: Fury Road", Overview: "Action in a desert wasteland.", ReleaseDate: "2015-05-13", Popularity: 90, VoteAverage: 7.6, VoteCount: 21000}},
	}
	results, err := eng.BulkWrite(ctx, testIndex, items)
	require.NoError(t, err)
	for _, r := range results {
		require.False(t, r.Failed(), r.Error)
	}
}

func newEngine(t *testing.T, dir string) *Engine {
	t.Helper()
	eng, err := New(Config{Dir: dir}, testLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = eng.Close() })
	return eng
}

func titles(t *testing.T, eng *Engine, q *domain.Query) []string {
	t.Helper()
	hits, err := eng.Search(context.Background(), testIndex, q)
	require.NoError(t, err)
	out := make([]string, 0, len(hits))
	for _, h := range hits {
		out = append(out, h.Source[domain.FieldTitle].(string))
	}
	return out
}

func TestEngine_Lifecycle(t *testing.T) {
	eng := newEngine(t, "")
	ctx := context.Background()

	ok, err := eng.Exists(ctx, testIndex)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, eng.Create(ctx, testIndex, domain.IndexMapping()))
	ok, err = eng.Exists(ctx, testIndex)
	require.NoError(t, err)
	assert.True(t, ok)

	err = eng.Create(ctx, testIndex, domain.IndexMapping())
	assert.ErrorIs(t, err, apperrors.ErrMalformedQuery)

	require.NoError(t, eng.Delete(ctx, testIndex))
	require.NoError(t, eng.Delete(ctx, testIndex))
	ok, err = eng.Exists(ctx, testIndex)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestEngine_SearchMissingIndex(t *testing.T) {
	eng := newEngine(t, "")
	_, err := eng.Search(context.Background(), testIndex, &domain.Query{Limit: 10})
	assert.ErrorIs(t, err, apperrors.ErrMalformedQuery)
}

func TestEngine_FuzzyText(t *testing.T) {
	eng := newEngine(t, "")
	seed(t, eng)

	got := titles(t, eng, &domain.Query{
		Text:  &domain.TextClause{Query: "wormhol", Fields: []string{domain.FieldTitle, domain.FieldOverview}, Fuzziness: domain.AutoFuzziness},
		Limit: 10,
	})
	assert.Equal(t, []string{"Interstellar"}, got)
}

func TestEngine_FiltersOnly(t *testing.T) {
	eng := newEngine(t, "")
	seed(t, eng)

	got := titles(t, eng, &domain.Query{
		DateRanges:    []domain.DateRange{{Field: domain.FieldReleaseDate, From: "2000-01-01", To: "2023-12-31"}},
		NumericRanges: []domain.NumericRange{{Field: domain.FieldVoteAverage, Min: ptr(6)}},
		Limit:         10,
	})
	assert.ElementsMatch(t, []string{"Interstellar", "Mad Max: Fury Road"}, got)
}

func TestEngine_TextAndFilters(t *testing.T) {
	eng := newEngine(t, "")
	seed(t, eng)

	got := titles(t, eng, &domain.Query{
		Text:          &domain.TextClause{Query: "space", Fields: []string{domain.FieldTitle, domain.FieldOverview}, Fuzziness: domain.AutoFuzziness},
		NumericRanges: []domain.NumericRange{{Field: domain.FieldVoteAverage, Min: ptr(6)}},
		Limit:         10,
	})
	assert.Equal(t, []string{"Interstellar"}, got)
}

func TestEngine_LimitAndSource(t *testing.T) {
	eng := newEngine(t, "")
	seed(t, eng)

	hits, err := eng.Search(context.Background(), testIndex, &domain.Query{Limit: 2})
	require.NoError(t, err)
	assert.Len(t, hits, 2)

	hits, err = eng.Search(context.Background(), testIndex, &domain.Query{
		Text:  &domain.TextClause{Query: "Notting", Fields: []string{domain.FieldTitle}},
		Limit: 1,
	})
	require.NoError(t, err)
	require.Len(t, hits, 1)
	src := hits[0].Source
	assert.Equal(t, "3", hits[0].ID)
	assert.Equal(t, "1999-05-13", src[domain.FieldReleaseDate])
	assert.Equal(t, float64(5000), src[domain.FieldVoteCount])
	assert.Equal(t, 7.1, src[domain.FieldVoteAverage])
}

func TestEngine_BulkWriteAutoCreatesAndUpserts(t *testing.T) {
	eng := newEngine(t, "")
	ctx := context.Background()

	item := domain.BulkItem{ID: "7", Document: domain.Document{Title: "Old", ReleaseDate: "2001-01-01"}}
	_, err := eng.BulkWrite(ctx, testIndex, []domain.BulkItem{item})
	require.NoError(t, err)

	item.Document.Title = "New"
	_, err = eng.BulkWrite(ctx, testIndex, []domain.BulkItem{item})
	require.NoError(t, err)

	hits, err := eng.Search(ctx, testIndex, &domain.Query{Limit: 10})
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "New", hits[0].Source[domain.FieldTitle])
}

func TestEngine_PersistentDir(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	eng, err := New(Config{Dir: dir}, testLogger())
	require.NoError(t, err)
	seed(t, eng)
	require.NoError(t, eng.Close())

	reopened := newEngine(t, dir)
	ok, err := reopened.Exists(ctx, testIndex)
	require.NoError(t, err)
	assert.True(t, ok)

	hits, err := reopened.Search(ctx, testIndex, &domain.Query{Limit: 10})
	require.NoError(t, err)
	assert.Len(t, hits, 4)

	require.NoError(t, reopened.Delete(ctx, testIndex))
	ok, err = reopened.Exists(ctx, testIndex)
	require.NoError(t, err)
	assert.False(t, ok)
}
