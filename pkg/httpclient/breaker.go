package httpclient

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/sony/gobreaker/v2"

	apperrors "github.com/utafrali/moviesearch/pkg/errors"
)

// ErrBreakerOpen is wrapped into the error of every call the breaker refuses.
var ErrBreakerOpen = errors.New("circuit breaker open")

var (
	breakerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "moviesearch",
		Name:      "circuit_breaker_state",
		Help:      "Circuit breaker state (0=closed, 1=half-open, 2=open).",
	}, []string{"name"})

	breakerRejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "moviesearch",
		Name:      "circuit_breaker_rejected_total",
		Help:      "Calls refused without contacting the upstream.",
	}, []string{"name"})
)

// BreakerConfig controls when the breaker opens and for how long.
type BreakerConfig struct {
	Name string
	// OpenFor is how long the breaker rejects calls before letting one trial request through.
	OpenFor time.Duration
	// The breaker opens once MinRequests calls have been made in the current
	// minute and at least FailureRatio of them failed.
	MinRequests  uint32
	FailureRatio float64
}

// DefaultBreakerConfig opens after half of at least five calls fail and
// retries the upstream after 15 seconds.
func DefaultBreakerConfig(name string) BreakerConfig {
	return BreakerConfig{Name: name, OpenFor: 15 * time.Second, MinRequests: 5, FailureRatio: 0.5}
}

// Breaker sends requests through a Client behind a circuit breaker.
// Transport errors, 5xx and 429 responses count as failures. Other 4xx
// responses are returned to the caller and do not count against the
// upstream.
type Breaker struct {
	client *Client
	cb     *gobreaker.CircuitBreaker[*http.Response]
	name   string
}

// NewBreaker wraps client.
func NewBreaker(client *Client, cfg BreakerConfig, logger *slog.Logger) *Breaker {
	cb := gobreaker.NewCircuitBreaker[*http.Response](gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     cfg.OpenFor,
		ReadyToTrip: func(c gobreaker.Counts) bool {
			return c.Requests >= cfg.MinRequests &&
				float64(c.TotalFailures)/float64(c.Requests) >= cfg.FailureRatio
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state change",
				slog.String("breaker", name),
				slog.String("from", from.String()),
				slog.String("to", to.String()),
			)
			breakerState.WithLabelValues(name).Set(stateValue(to))
		},
	})
	breakerState.WithLabelValues(cfg.Name).Set(stateValue(gobreaker.StateClosed))
	return &Breaker{client: client, cb: cb, name: cfg.Name}
}

func stateValue(s gobreaker.State) float64 {
	switch s {
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return 0
	}
}

// Do sends req. While the breaker is open it fails at once with an error
// wrapping both ErrBreakerOpen and apperrors.ErrRewriteFailed.
func (b *Breaker) Do(ctx context.Context, req *http.Request) (*http.Response, error) {
	resp, err := b.cb.Execute(func() (*http.Response, error) {
		resp, err := b.client.Do(ctx, req)
		if err != nil {
			return nil, err
		}
		if resp.StatusCode >= http.StatusInternalServerError || resp.StatusCode == http.StatusTooManyRequests {
			defer func() { _ = resp.Body.Close() }()
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
			return nil, &StatusError{Status: resp.StatusCode, Body: string(body)}
		}
		return resp, nil
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		breakerRejected.WithLabelValues(b.name).Inc()
		return nil, fmt.Errorf("%s: %w: %w", b.name, ErrBreakerOpen, apperrors.ErrRewriteFailed)
	}
	return resp, err
}

// State returns the breaker's current state.
func (b *Breaker) State() gobreaker.State {
	return b.cb.State()
}
