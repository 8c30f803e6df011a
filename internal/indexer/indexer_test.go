package indexer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/utafrali/moviesearch/internal/dataset"
	"github.com/utafrali/moviesearch/internal/domain"
	"github.com/utafrali/moviesearch/internal/engine/memory"
	apperrors "github.com/utafrali/moviesearch/pkg/errors"
)

const testIndex = "imdb_movies"

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// rows returns n valid raw records with ids 1..n.
func rows(n int) []domain.RawRecord {
	out := make([]domain.RawRecord, n)
	for i := range out {
		out[i] = domain.RawRecord{
			"id":           i + 1,
			"title":        fmt.Sprintf("Movie %d", i+1),
			"release_date": "2010-06-01",
			"popularity":   float64(i),
		}
	}
	return out
}

func newIndexer(eng *memory.Engine, cfg Config) *Indexer {
	return New(eng, testIndex, cfg, testLogger())
}

func TestIndex_250RowsInThreeBatches(t *testing.T) {
	eng := memory.New()
	ix := newIndexer(eng, Config{BatchSize: 100})

	report, err := ix.Index(context.Background(), dataset.FromRecords(rows(250)))
	require.NoError(t, err)

	assert.Equal(t, int64(250), report.RowsSeen)
	assert.Equal(t, int64(250), report.RowsIndexed)
	assert.Equal(t, int64(3), report.BatchesSubmitted)
	assert.Zero(t, report.BatchesFailed)
	assert.Equal(t, domain.OutcomeSuccess, report.Outcome())
	assert.Equal(t, []int{100, 100, 50}, eng.BatchSizes())
	assert.Equal(t, 250, eng.Count(testIndex))
}

func TestIndex_BatchCountIsCeiling(t *testing.T) {
	for _, n := range []int{0, 1, 6, 7, 8, 99, 100, 101, 250} {
		for _, size := range []int{1, 7, 100} {
			t.Run(fmt.Sprintf("n=%d/b=%d", n, size), func(t *testing.T) {
				eng := memory.New()
				report, err := newIndexer(eng, Config{BatchSize: size}).
					Index(context.Background(), dataset.FromRecords(rows(n)))
				require.NoError(t, err)

				want := (n + size - 1) / size
				assert.Equal(t, int64(want), report.BatchesSubmitted)
				assert.Equal(t, want, eng.BulkCalls())
				if report.RowsIndexed > 0 {
					b := report.BatchesSubmitted
					assert.GreaterOrEqual(t, b*int64(size), report.RowsIndexed)
					assert.Greater(t, report.RowsIndexed, (b-1)*int64(size))
				}
			})
		}
	}
}

func TestIndex_EmptySource(t *testing.T) {
	eng := memory.New()
	report, err := newIndexer(eng, DefaultConfig()).Index(context.Background(), dataset.FromRecords(nil))
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeEmpty, report.Outcome())
	assert.Zero(t, eng.BulkCalls())
}

func TestIndex_SkipsInvalidRows(t *testing.T) {
	recs := rows(10)
	recs[2] = domain.RawRecord{"title": "no id"}
	recs[7] = domain.RawRecord{"id": "  ", "title": "blank id"}

	eng := memory.New()
	report, err := newIndexer(eng, Config{BatchSize: 4}).Index(context.Background(), dataset.FromRecords(recs))
	require.NoError(t, err)

	assert.Equal(t, int64(10), report.RowsSeen)
	assert.Equal(t, int64(8), report.RowsIndexed)
	assert.Equal(t, int64(2), report.RowsSkippedValidation)
	assert.Equal(t, int64(2), report.BatchesSubmitted)
	assert.Equal(t, []int{4, 4}, eng.BatchSizes())
	require.Len(t, report.ValidationErrors, 2)
	assert.Contains(t, report.ValidationErrors[0], "row 3")
	assert.Contains(t, report.ValidationErrors[1], "row 8")
	assert.Equal(t, domain.OutcomePartial, report.Outcome())
}

func TestIndex_FailedBatchDoesNotAbort(t *testing.T) {
	eng := memory.New()
	eng.FailBatch(2, errors.New("connection reset"))

	report, err := newIndexer(eng, Config{BatchSize: 100}).Index(context.Background(), dataset.FromRecords(rows(250)))
	require.NoError(t, err)

	assert.Equal(t, int64(3), report.BatchesSubmitted)
	assert.Equal(t, int64(1), report.BatchesFailed)
	assert.Equal(t, int64(150), report.RowsIndexed)
	assert.Equal(t, 150, eng.Count(testIndex))
	require.Len(t, report.BatchErrors, 1)
	assert.Equal(t, 2, report.BatchErrors[0].Batch)
	assert.Equal(t, 100, report.BatchErrors[0].Size)
	assert.Contains(t, report.BatchErrors[0].Error, apperrors.ErrPartialBatch.Error())
	assert.Contains(t, report.BatchErrors[0].Error, "connection reset")
	assert.False(t, report.BatchErrors[0].Malformed)
	assert.Equal(t, domain.OutcomePartial, report.Outcome())
}

func TestIndex_MalformedBatchIsFlagged(t *testing.T) {
	eng := memory.New()
	eng.FailBatch(1, domain.NewBackendError("bulk", testIndex, 400, "illegal_argument_exception: bad mapping", nil))

	report, err := newIndexer(eng, Config{BatchSize: 100}).Index(context.Background(), dataset.FromRecords(rows(150)))
	require.NoError(t, err)

	require.Len(t, report.BatchErrors, 1)
	assert.True(t, report.BatchErrors[0].Malformed)
	assert.Contains(t, report.BatchErrors[0].Error, "illegal_argument_exception")
}

func TestIndex_AllBatchesFail(t *testing.T) {
	eng := memory.New()
	eng.SetUnavailable(true)

	report, err := newIndexer(eng, Config{BatchSize: 10}).Index(context.Background(), dataset.FromRecords(rows(25)))
	require.NoError(t, err)
	assert.Equal(t, int64(3), report.BatchesFailed)
	assert.Zero(t, report.RowsIndexed)
	assert.Equal(t, domain.OutcomeFailure, report.Outcome())
}

func TestIndex_PerItemRejections(t *testing.T) {
	eng := memory.New()
	eng.RejectID("5", "mapper_parsing_exception")

	report, err := newIndexer(eng, Config{BatchSize: 100}).Index(context.Background(), dataset.FromRecords(rows(20)))
	require.NoError(t, err)
	assert.Equal(t, int64(19), report.RowsIndexed)
	assert.Equal(t, int64(1), report.RowsRejected)
	assert.Zero(t, report.BatchesFailed)
}

func TestIndex_BatchTimeout(t *testing.T) {
	eng := memory.New()
	eng.SetBulkDelay(time.Second)

	ix := newIndexer(eng, Config{BatchSize: 10, BatchTimeout: 10 * time.Millisecond})
	report, err := ix.Index(context.Background(), dataset.FromRecords(rows(10)))
	require.NoError(t, err)
	assert.Equal(t, int64(1), report.BatchesFailed)
	require.Len(t, report.BatchErrors, 1)
	assert.Contains(t, report.BatchErrors[0].Error, context.DeadlineExceeded.Error())
}

// cancelAfter cancels its context once n rows have been read.
type cancelAfter struct {
	src    dataset.Source
	n      int
	read   int
	cancel context.CancelFunc
}

func (c *cancelAfter) Next() (domain.RawRecord, error) {
	rec, err := c.src.Next()
	if err == nil {
		c.read++
		if c.read == c.n {
			c.cancel()
		}
	}
	return rec, err
}

func TestIndex_CancellationAtBatchBoundary(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	eng := memory.New()
	src := &cancelAfter{src: dataset.FromRecords(rows(500)), n: 150, cancel: cancel}

	report, err := newIndexer(eng, Config{BatchSize: 100}).Index(ctx, src)
	require.ErrorIs(t, err, context.Canceled)

	// The batch that was filling when ctx was cancelled still completes.
	assert.Equal(t, int64(200), report.RowsSeen)
	assert.Equal(t, int64(2), report.BatchesSubmitted)
	assert.Equal(t, int64(200), report.RowsIndexed)
	assert.Equal(t, 200, eng.Count(testIndex))
}

func TestIndex_CancelledBeforeStart(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	eng := memory.New()
	report, err := newIndexer(eng, DefaultConfig()).Index(ctx, dataset.FromRecords(rows(10)))
	require.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, report.RowsSeen)
	assert.Zero(t, eng.BulkCalls())
}

type failingSource struct {
	after int
	recs  *dataset.Records
	n     int
}

func (f *failingSource) Next() (domain.RawRecord, error) {
	if f.n == f.after {
		return nil, errors.New("disk on fire")
	}
	f.n++
	return f.recs.Next()
}

func TestIndex_SourceErrorReturnsPartialReport(t *testing.T) {
	eng := memory.New()
	src := &failingSource{after: 3, recs: dataset.FromRecords(rows(10))}

	report, err := newIndexer(eng, Config{BatchSize: 2}).Index(context.Background(), src)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read row 4")
	assert.Equal(t, int64(3), report.RowsSeen)
	assert.Equal(t, int64(3), report.RowsIndexed)
	assert.Equal(t, int64(2), report.BatchesSubmitted)
}

func TestIndex_ConcurrentWorkers(t *testing.T) {
	eng := memory.New()
	eng.SetBulkDelay(20 * time.Millisecond)

	ix := newIndexer(eng, Config{BatchSize: 50, Workers: 4})
	report, err := ix.Index(context.Background(), dataset.FromRecords(rows(1000)))
	require.NoError(t, err)

	assert.Equal(t, int64(1000), report.RowsIndexed)
	assert.Equal(t, int64(20), report.BatchesSubmitted)
	assert.Equal(t, 1000, eng.Count(testIndex))
	assert.LessOrEqual(t, eng.MaxConcurrentBulk(), 4)
	assert.Greater(t, eng.MaxConcurrentBulk(), 1)
}

func TestIndex_RepeatedIDsUpsert(t *testing.T) {
	recs := append(rows(5), rows(5)...)
	eng := memory.New()
	report, err := newIndexer(eng, Config{BatchSize: 3}).Index(context.Background(), dataset.FromRecords(recs))
	require.NoError(t, err)
	assert.Equal(t, int64(10), report.RowsIndexed)
	assert.Equal(t, 5, eng.Count(testIndex))
}

func TestConfig_Defaults(t *testing.T) {
	ix := New(memory.New(), testIndex, Config{}, testLogger())
	assert.Equal(t, DefaultConfig(), ix.Config())
	assert.Equal(t, 7, ix.WithBatchSize(7).Config().BatchSize)
	assert.Equal(t, DefaultBatchSize, ix.WithBatchSize(0).Config().BatchSize)
}
