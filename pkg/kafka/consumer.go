package kafka

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// ErrDuplicate is returned by handlers (see IdempotentHandler) to report an
// event that was already processed. The consumer commits it without retrying.
var ErrDuplicate = errors.New("duplicate event")

// ErrSkip marks a permanently unprocessable event. The consumer commits it
// immediately, sending it to the DLQ when one is configured.
var ErrSkip = errors.New("skip event")

// Handler processes one event.
type Handler func(ctx context.Context, event *Event) error

// Reader is the subset of *kafka.Reader the consumer needs.
type Reader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// ConsumerConfig holds Kafka consumer configuration.
type ConsumerConfig struct {
	Brokers      []string
	GroupID      string
	Topic        string
	MinBytes     int
	MaxBytes     int
	MaxRetries   int
	RetryBackoff time.Duration
}

func (c *ConsumerConfig) applyDefaults() {
	if c.MaxRetries <= 0 {
		c.MaxRetries = 3
	}
	if c.RetryBackoff <= 0 {
		c.RetryBackoff = 100 * time.Millisecond
	}
}

// Consumer reads events from one topic and hands them to a Handler. Failed
// events are retried with linear backoff, then committed (and dead-lettered
// when a DeadLetter is attached) so a poison message never blocks the
// partition.
type Consumer struct {
	reader    Reader
	cfg       ConsumerConfig
	handler   Handler
	dlq       *DeadLetter
	logger    *slog.Logger
	closeOnce sync.Once
}

// NewConsumer creates a consumer backed by a kafka-go reader.
func NewConsumer(cfg ConsumerConfig, handler Handler, logger *slog.Logger) *Consumer {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  cfg.Brokers,
		GroupID:  cfg.GroupID,
		Topic:    cfg.Topic,
		MinBytes: cfg.MinBytes,
		MaxBytes: cfg.MaxBytes,
	})
	return NewConsumerWithReader(r, cfg, handler, logger)
}

// NewConsumerWithReader creates a consumer on top of an existing reader.
func NewConsumerWithReader(r Reader, cfg ConsumerConfig, handler Handler, logger *slog.Logger) *Consumer {
	cfg.applyDefaults()
	return &Consumer{reader: r, cfg: cfg, handler: handler, logger: logger}
}

// WithDeadLetter attaches a DLQ publisher for events that exhaust retries.
func (c *Consumer) WithDeadLetter(d *DeadLetter) *Consumer {
	c.dlq = d
	return c
}

// Start consumes until ctx is canceled. It returns nil on cancellation.
func (c *Consumer) Start(ctx context.Context) error {
	c.logger.InfoContext(ctx, "consumer started",
		slog.String("topic", c.cfg.Topic),
		slog.String("group", c.cfg.GroupID),
	)

	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				c.logger.Info("consumer stopping", slog.String("topic", c.cfg.Topic))
				return nil
			}
			c.logger.ErrorContext(ctx, "failed to fetch message", slog.String("error", err.Error()))
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(c.cfg.RetryBackoff):
			}
			continue
		}

		consumerMessagesReceived.WithLabelValues(msg.Topic, c.cfg.GroupID).Inc()
		c.handle(ctx, msg)
	}
}

func (c *Consumer) handle(ctx context.Context, msg kafka.Message) {
	start := time.Now()
	defer func() {
		consumerProcessingDuration.WithLabelValues(msg.Topic, c.cfg.GroupID).Observe(time.Since(start).Seconds())
	}()

	event, err := UnmarshalEvent(msg.Value)
	if err != nil {
		c.logger.ErrorContext(ctx, "failed to unmarshal event",
			slog.String("error", err.Error()),
			slog.String("topic", msg.Topic),
			slog.Int64("offset", msg.Offset),
		)
		c.giveUp(ctx, msg, err, "malformed")
		return
	}

	ctx = otel.GetTextMapPropagator().Extract(ctx, NewHeaderCarrier(&msg.Headers))
	ctx, span := otel.Tracer("github.com/utafrali/moviesearch/pkg/kafka").Start(ctx, "consume "+msg.Topic,
		trace.WithSpanKind(trace.SpanKindConsumer),
		trace.WithAttributes(
			attribute.String("messaging.system", "kafka"),
			attribute.String("messaging.destination.name", msg.Topic),
			attribute.String("messaging.message.id", event.ID),
			attribute.Int("messaging.kafka.partition", msg.Partition),
			attribute.Int64("messaging.kafka.offset", msg.Offset),
		),
	)
	defer span.End()

	var lastErr error
	for attempt := 1; attempt <= c.cfg.MaxRetries; attempt++ {
		lastErr = c.handler(ctx, event)
		if lastErr == nil || errors.Is(lastErr, ErrDuplicate) || errors.Is(lastErr, ErrSkip) {
			break
		}

		c.logger.WarnContext(ctx, "handler failed, will retry",
			slog.String("event_type", event.Type),
			slog.String("key", event.Key),
			slog.String("error", lastErr.Error()),
			slog.Int("attempt", attempt),
			slog.Int("max_retries", c.cfg.MaxRetries),
		)

		if attempt < c.cfg.MaxRetries {
			select {
			case <-ctx.Done():
				// Leave the message uncommitted so it is redelivered.
				return
			case <-time.After(time.Duration(attempt) * c.cfg.RetryBackoff):
			}
		}
	}

	switch {
	case lastErr == nil:
		consumerMessagesHandled.WithLabelValues(msg.Topic, c.cfg.GroupID, "processed").Inc()
		c.commit(ctx, msg)
	case errors.Is(lastErr, ErrDuplicate):
		consumerMessagesHandled.WithLabelValues(msg.Topic, c.cfg.GroupID, "duplicate").Inc()
		c.commit(ctx, msg)
	case errors.Is(lastErr, ErrSkip):
		span.RecordError(lastErr)
		c.giveUp(ctx, msg, lastErr, "malformed")
	default:
		span.RecordError(lastErr)
		c.logger.ErrorContext(ctx, "handler failed after all retries, skipping poison message",
			slog.String("event_type", event.Type),
			slog.String("key", event.Key),
			slog.String("error", lastErr.Error()),
			slog.Int64("offset", msg.Offset),
		)
		c.giveUp(ctx, msg, lastErr, "failed")
	}
}

func (c *Consumer) giveUp(ctx context.Context, msg kafka.Message, cause error, outcome string) {
	consumerMessagesHandled.WithLabelValues(msg.Topic, c.cfg.GroupID, outcome).Inc()
	if c.dlq != nil {
		if err := c.dlq.Publish(ctx, msg, cause, c.cfg.GroupID); err != nil {
			c.logger.ErrorContext(ctx, "dead-letter publish failed", slog.String("error", err.Error()))
		} else {
			consumerDLQPublished.WithLabelValues(msg.Topic, c.cfg.GroupID).Inc()
		}
	}
	c.commit(ctx, msg)
}

func (c *Consumer) commit(ctx context.Context, msg kafka.Message) {
	if err := c.reader.CommitMessages(ctx, msg); err != nil {
		c.logger.ErrorContext(ctx, "failed to commit message",
			slog.String("error", err.Error()),
			slog.Int64("offset", msg.Offset),
		)
	}
}

// Close closes the consumer. It is safe to call multiple times.
func (c *Consumer) Close() error {
	var err error
	c.closeOnce.Do(func() {
		if cerr := c.reader.Close(); cerr != nil {
			err = fmt.Errorf("close reader: %w", cerr)
		}
	})
	return err
}
