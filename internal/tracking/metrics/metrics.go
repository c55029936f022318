package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// EventsProcessed tracks successfully processed events per source and component
	EventsProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "streamwatch_events_processed_total",
			Help: "Total number of successfully processed events",
		},
		[]string{"source", "component"},
	)

	// EventFailures tracks failed processing attempts per source and component
	EventFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "streamwatch_event_failures_total",
			Help: "Total number of failed event processing attempts",
		},
		[]string{"source", "component"},
	)

	// ErrorClassesRecorded tracks first occurrences of new error classes
	ErrorClassesRecorded = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "streamwatch_error_classes_recorded_total",
			Help: "Total number of distinct error classes first seen",
		},
	)

	// PublishedEventsValidated tracks events checked by the batch validator
	PublishedEventsValidated = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "streamwatch_published_events_validated_total",
			Help: "Total number of published events checked against their schema",
		},
	)

	// PublishedEventValidationFailures tracks schema validation failures
	PublishedEventValidationFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "streamwatch_published_event_validation_failures_total",
			Help: "Total number of published events that failed schema validation",
		},
	)

	// DBConnectionPoolUsage tracks connection pool usage percentage
	DBConnectionPoolUsage = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "streamwatch_db_connection_pool_usage",
			Help: "Database connection pool usage percentage",
		},
	)

	// DBBatchSize tracks batch sizes of multi-row database writes
	DBBatchSize = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "streamwatch_db_batch_size",
			Help:    "Batch size of multi-row database writes",
			Buckets: prometheus.ExponentialBuckets(1, 4, 8),
		},
		[]string{"operation"},
	)
)
