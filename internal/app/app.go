// Package app wires configuration, backends, Kafka and the HTTP server into a
// runnable moviesearch process.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/segmentio/kafka-go"

	"github.com/utafrali/moviesearch/internal/config"
	"github.com/utafrali/moviesearch/internal/event"
	handler "github.com/utafrali/moviesearch/internal/handler/http"
	"github.com/utafrali/moviesearch/pkg/health"
	pkgkafka "github.com/utafrali/moviesearch/pkg/kafka"
	"github.com/utafrali/moviesearch/pkg/middleware"
)

// App wires together all dependencies and runs the moviesearch server.
type App struct {
	cfg          *config.Config
	logger       *slog.Logger
	closeBackend func() error
	producer     *pkgkafka.Producer
	dlqWriter    *kafka.Writer
	redis        *redis.Client
	consumers    []*pkgkafka.Consumer
	httpServer   *http.Server
}

// NewApp creates a new application instance, initializing all dependencies.
func NewApp(cfg *config.Config, logger *slog.Logger) (*App, error) {
	backend, closeBackend, err := NewBackend(cfg, logger)
	if err != nil {
		return nil, err
	}

	svc := NewService(cfg, backend, logger)
	a := &App{
		cfg:          cfg,
		logger:       logger,
		closeBackend: closeBackend,
	}

	healthHandler := health.NewHandler()
	healthHandler.Register(cfg.SearchEngine, svc.Ping)

	if cfg.KafkaEnabled {
		a.producer = pkgkafka.NewProducer(pkgkafka.DefaultProducerConfig(cfg.KafkaBrokers), logger)
		svc.WithEvents(event.NewProducer(a.producer))

		a.dlqWriter = &kafka.Writer{
			Addr:                   kafka.TCP(cfg.KafkaBrokers...),
			Balancer:               &kafka.Hash{},
			RequiredAcks:           kafka.RequireAll,
			AllowAutoTopicCreation: true,
		}
		store, err := a.idempotencyStore(healthHandler)
		if err != nil {
			_ = a.dlqWriter.Close()
			_ = a.producer.Close()
			_ = closeBackend()
			return nil, err
		}
		handle := pkgkafka.IdempotentHandler(store, event.NewConsumer(svc, logger).Handle, logger)

		c := pkgkafka.NewConsumer(pkgkafka.ConsumerConfig{
			Brokers:  cfg.KafkaBrokers,
			GroupID:  cfg.KafkaGroupID,
			Topic:    event.TopicMovieUpserted,
			MinBytes: 1,
			MaxBytes: 10e6, // 10 MB
		}, handle, logger).WithDeadLetter(pkgkafka.NewDeadLetter(a.dlqWriter, logger))
		a.consumers = append(a.consumers, c)

		healthHandler.Register("kafka", a.producer.Ping)
		logger.Info("kafka consumer initialized",
			slog.Any("brokers", cfg.KafkaBrokers),
			slog.String("topic", event.TopicMovieUpserted),
		)
	}

	cors := middleware.DefaultCORSConfig()
	cors.AllowedOrigins = cfg.CORSOrigins
	router := handler.NewRouter(
		handler.NewMovieHandler(svc, cfg.DatasetPath, logger),
		healthHandler,
		handler.RouterConfig{CORS: cors, SearchTimeout: cfg.SearchTimeout + 5*time.Second},
		logger,
	)

	a.httpServer = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return a, nil
}

// idempotencyStore shares processed event IDs through Redis when REDIS_URL
// is configured so that every replica skips the same duplicates.
func (a *App) idempotencyStore(h *health.Handler) (pkgkafka.IdempotencyStore, error) {
	if a.cfg.RedisURL == "" {
		return pkgkafka.NewMemoryIdempotencyStore(10_000, a.cfg.IdempotencyTTL), nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	client, err := pkgkafka.NewRedisClient(ctx, a.cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("connect idempotency store: %w", err)
	}
	a.redis = client
	h.Register("redis", func(ctx context.Context) error {
		return client.Ping(ctx).Err()
	})
	a.logger.Info("redis idempotency store initialized")
	return pkgkafka.NewRedisIdempotencyStore(client, "moviesearch:events:", a.cfg.IdempotencyTTL), nil
}

// Run starts the HTTP server and Kafka consumers, blocking until the context is canceled.
func (a *App) Run(ctx context.Context) error {
	errCh := make(chan error, 1+len(a.consumers))

	for _, c := range a.consumers {
		go func() {
			if err := c.Start(ctx); err != nil {
				errCh <- fmt.Errorf("kafka consumer: %w", err)
			}
		}()
	}

	go func() {
		a.logger.Info("starting HTTP server",
			slog.String("addr", a.httpServer.Addr),
		)
		if err := a.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	var runErr error
	select {
	case <-ctx.Done():
		a.logger.Info("shutdown signal received")
	case runErr = <-errCh:
	}

	return errors.Join(runErr, a.Shutdown())
}

// Shutdown gracefully stops all components.
func (a *App) Shutdown() error {
	a.logger.Info("shutting down application...")

	var errs []error

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := a.httpServer.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("http server shutdown error", slog.String("error", err.Error()))
		errs = append(errs, err)
	}

	for _, c := range a.consumers {
		if err := c.Close(); err != nil {
			a.logger.Error("kafka consumer close error", slog.String("error", err.Error()))
			errs = append(errs, err)
		}
	}
	if a.dlqWriter != nil {
		if err := a.dlqWriter.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close dlq writer: %w", err))
		}
	}
	if a.producer != nil {
		if err := a.producer.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close kafka producer: %w", err))
		}
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close redis: %w", err))
		}
	}
	if err := a.closeBackend(); err != nil {
		errs = append(errs, fmt.Errorf("close search backend: %w", err))
	}

	a.logger.Info("application shutdown complete")
	return errors.Join(errs...)
}
