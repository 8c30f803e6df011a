package httpclient

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sony/gobreaker/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/utafrali/moviesearch/pkg/errors"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testBreaker(name string) *Breaker {
	cfg := BreakerConfig{Name: name, OpenFor: 200 * time.Millisecond, MinRequests: 3, FailureRatio: 0.5}
	return NewBreaker(New(Config{Timeout: 5 * time.Second, MaxConnsPerHost: 4}), cfg, testLogger())
}

func send(t *testing.T, ctx context.Context, b *Breaker, url string) (*http.Response, error) {
	t.Helper()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, strings.NewReader(`{"prompt":"x"}`))
	require.NoError(t, err)
	return b.Do(ctx, req)
}

func TestBreaker_PassesSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, `{"choices":[{"text":"ok"}]}`)
	}))
	defer srv.Close()

	b := testBreaker("breaker-ok")
	resp, err := send(t, context.Background(), b, srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, gobreaker.StateClosed, b.State())
}

func TestBreaker_OpensOnServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
		_, _ = io.WriteString(w, "upstream down")
	}))
	defer srv.Close()

	b := testBreaker("breaker-trip")
	for i := 0; i < 3; i++ {
		_, err := send(t, context.Background(), b, srv.URL)
		var statusErr *StatusError
		require.ErrorAs(t, err, &statusErr)
		assert.Equal(t, http.StatusBadGateway, statusErr.Status)
		assert.ErrorIs(t, err, apperrors.ErrRewriteFailed)
	}
	require.Equal(t, gobreaker.StateOpen, b.State())

	_, err := send(t, context.Background(), b, srv.URL)
	assert.ErrorIs(t, err, ErrBreakerOpen)
	assert.ErrorIs(t, err, apperrors.ErrRewriteFailed)
	assert.Equal(t, int32(3), calls.Load())
}

func TestBreaker_TooManyRequestsCountsAsFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	b := testBreaker("breaker-429")
	for i := 0; i < 3; i++ {
		_, _ = send(t, context.Background(), b, srv.URL)
	}
	assert.Equal(t, gobreaker.StateOpen, b.State())
}

func TestBreaker_ClientErrorsPassThrough(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	b := testBreaker("breaker-4xx")
	for i := 0; i < 5; i++ {
		resp, err := send(t, context.Background(), b, srv.URL)
		require.NoError(t, err)
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
		_ = resp.Body.Close()
	}
	assert.Equal(t, gobreaker.StateClosed, b.State())
}

func TestBreaker_ClosesAfterSuccessfulTrial(t *testing.T) {
	var healthy atomic.Bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if !healthy.Load() {
			w.WriteHeader(http.StatusInternalServerError)
		}
	}))
	defer srv.Close()

	b := testBreaker("breaker-recover")
	for i := 0; i < 3; i++ {
		_, _ = send(t, context.Background(), b, srv.URL)
	}
	require.Equal(t, gobreaker.StateOpen, b.State())

	healthy.Store(true)
	time.Sleep(300 * time.Millisecond)

	resp, err := send(t, context.Background(), b, srv.URL)
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, gobreaker.StateClosed, b.State())
}

func TestBreaker_ContextDeadline(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(_ http.ResponseWriter, _ *http.Request) {
		time.Sleep(time.Second)
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := send(t, ctx, testBreaker("breaker-ctx"), srv.URL)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestDefaultBreakerConfig(t *testing.T) {
	cfg := DefaultBreakerConfig("query-rewrite")
	assert.Equal(t, "query-rewrite", cfg.Name)
	assert.Equal(t, uint32(5), cfg.MinRequests)
	assert.Equal(t, 15*time.Second, cfg.OpenFor)
}
