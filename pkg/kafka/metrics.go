package kafka

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	consumerMessagesReceived = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "moviesearch",
			Subsystem: "kafka",
			Name:      "consumer_messages_received_total",
			Help:      "Total number of Kafka messages fetched from the broker",
		},
		[]string{"topic", "consumer_group"},
	)

	// consumerMessagesHandled is labelled with outcome: processed, failed,
	// malformed or duplicate.
	consumerMessagesHandled = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "moviesearch",
			Subsystem: "kafka",
			Name:      "consumer_messages_handled_total",
			Help:      "Total number of Kafka messages by handling outcome",
		},
		[]string{"topic", "consumer_group", "outcome"},
	)

	consumerProcessingDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "moviesearch",
			Subsystem: "kafka",
			Name:      "consumer_processing_duration_seconds",
			Help:      "Duration of Kafka message handling in seconds, retries included",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"topic", "consumer_group"},
	)

	consumerDLQPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "moviesearch",
			Subsystem: "kafka",
			Name:      "consumer_dlq_published_total",
			Help:      "Total number of messages published to a dead-letter topic",
		},
		[]string{"topic", "consumer_group"},
	)

	producerMessagesPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "moviesearch",
			Subsystem: "kafka",
			Name:      "producer_messages_published_total",
			Help:      "Total number of Kafka messages published",
		},
		[]string{"topic"},
	)

	producerPublishErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "moviesearch",
			Subsystem: "kafka",
			Name:      "producer_publish_errors_total",
			Help:      "Total number of Kafka publish errors",
		},
		[]string{"topic"},
	)
)
