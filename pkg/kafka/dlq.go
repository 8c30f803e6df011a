package kafka

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/segmentio/kafka-go"
)

// DLQTopic returns the dead-letter topic for a source topic,
// e.g. "moviesearch.movie.upserted.dlq".
func DLQTopic(originalTopic string) string {
	return originalTopic + ".dlq"
}

// DeadLetter forwards messages the consumer gave up on.
type DeadLetter struct {
	writer Writer
	logger *slog.Logger
}

// NewDeadLetter creates a dead-letter publisher on top of w.
func NewDeadLetter(w Writer, logger *slog.Logger) *DeadLetter {
	return &DeadLetter{writer: w, logger: logger}
}

// Publish copies the original message to its DLQ topic, recording where it
// came from and why it failed in dlq.* headers.
func (d *DeadLetter) Publish(ctx context.Context, original kafka.Message, cause error, group string) error {
	topic := DLQTopic(original.Topic)

	headers := make([]kafka.Header, 0, len(original.Headers)+5)
	headers = append(headers, original.Headers...)
	headers = append(headers,
		kafka.Header{Key: "dlq.original_topic", Value: []byte(original.Topic)},
		kafka.Header{Key: "dlq.original_partition", Value: []byte(strconv.Itoa(original.Partition))},
		kafka.Header{Key: "dlq.original_offset", Value: []byte(strconv.FormatInt(original.Offset, 10))},
		kafka.Header{Key: "dlq.consumer_group", Value: []byte(group)},
	)
	if cause != nil {
		headers = append(headers, kafka.Header{Key: "dlq.error", Value: []byte(cause.Error())})
	}

	err := d.writer.WriteMessages(ctx, kafka.Message{
		Topic:   topic,
		Key:     original.Key,
		Value:   original.Value,
		Headers: headers,
	})
	if err != nil {
		return fmt.Errorf("publish to DLQ %s: %w", topic, err)
	}

	d.logger.WarnContext(ctx, "message sent to DLQ",
		slog.String("dlq_topic", topic),
		slog.Int("partition", original.Partition),
		slog.Int64("offset", original.Offset),
	)
	return nil
}
