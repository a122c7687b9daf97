// Package metrics provides Prometheus metrics for the Quay service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// QueueMessagesProcessed tracks notification messages consumed from the queue
	QueueMessagesProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "quay",
			Subsystem: "queue",
			Name:      "messages_processed_total",
			Help:      "Total number of notification messages processed by status",
		},
		[]string{"status"},
	)

	// MessageProcessingDuration tracks end-to-end processing time per message
	MessageProcessingDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "quay",
			Subsystem: "queue",
			Name:      "message_duration_seconds",
			Help:      "Duration of notification message processing in seconds",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
	)

	// DLQMessagesTotal tracks messages sent to the dead letter queue
	DLQMessagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "quay",
			Subsystem: "dlq",
			Name:      "messages_total",
			Help:      "Total number of messages sent to the dead letter queue",
		},
		[]string{"tenant_id", "reason"},
	)

	// LinksCreatedTotal tracks new order-container links by reason
	LinksCreatedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "quay",
			Subsystem: "linking",
			Name:      "links_created_total",
			Help:      "Total number of new order-container links by reason",
		},
		[]string{"reason"},
	)

	// KafkaMessagesPublished tracks Kafka events published
	KafkaMessagesPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "quay",
			Subsystem: "kafka",
			Name:      "messages_published_total",
			Help:      "Total number of events published to Kafka",
		},
		[]string{"topic", "status"},
	)
)

// RecordQueueMessage records a processed queue message
func RecordQueueMessage(status string, durationSeconds float64) {
	QueueMessagesProcessed.WithLabelValues(status).Inc()
	MessageProcessingDuration.Observe(durationSeconds)
}

// RecordDLQMessage records a dead-lettered message
func RecordDLQMessage(tenantID, reason string) {
	DLQMessagesTotal.WithLabelValues(tenantID, reason).Inc()
}

// RecordLinkCreated records a newly created link
func RecordLinkCreated(reason string) {
	LinksCreatedTotal.WithLabelValues(reason).Inc()
}

// RecordKafkaPublish records a Kafka publish attempt
func RecordKafkaPublish(topic, status string) {
	KafkaMessagesPublished.WithLabelValues(topic, status).Inc()
}
