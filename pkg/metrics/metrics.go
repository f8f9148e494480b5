// Package metrics provides Prometheus metrics for the pricebook service.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// IngestRecordsTotal tracks ingested records by outcome
	IngestRecordsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "pricebook",
			Subsystem: "ingest",
			Name:      "records_total",
			Help:      "Total number of ingested listing records by outcome",
		},
		[]string{"status"},
	)

	// IngestBatchDuration tracks batch transaction duration in seconds
	IngestBatchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "pricebook",
			Subsystem: "ingest",
			Name:      "batch_duration_seconds",
			Help:      "Duration of ingestion batch transactions in seconds",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30, 60},
		},
		[]string{"status"},
	)

	// VariantsTotal tracks variant writes by action
	VariantsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "pricebook",
			Subsystem: "ingest",
			Name:      "variants_total",
			Help:      "Total number of variant writes by action",
		},
		[]string{"action"},
	)

	// PriceChangesTotal tracks appended price history entries
	PriceChangesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "pricebook",
			Subsystem: "ingest",
			Name:      "price_changes_total",
			Help:      "Total number of recorded price changes",
		},
	)

	// PricingResolutionsTotal tracks pricing rule resolutions by outcome
	PricingResolutionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "pricebook",
			Subsystem: "pricing",
			Name:      "resolutions_total",
			Help:      "Total number of pricing rule resolutions by scope outcome",
		},
		[]string{"scope"},
	)

	// KafkaMessagesConsumed tracks consumed listing messages
	KafkaMessagesConsumed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "pricebook",
			Subsystem: "kafka",
			Name:      "messages_consumed_total",
			Help:      "Total number of Kafka messages consumed by status",
		},
		[]string{"status"},
	)
)

// RecordIngestRecord records one ingested record outcome
func RecordIngestRecord(status string) {
	IngestRecordsTotal.WithLabelValues(status).Inc()
}

// RecordBatch records an ingestion batch transaction
func RecordBatch(duration time.Duration, success bool) {
	status := "success"
	if !success {
		status = "failure"
	}
	IngestBatchDuration.WithLabelValues(status).Observe(duration.Seconds())
}

// RecordVariant records a variant write
func RecordVariant(action string) {
	VariantsTotal.WithLabelValues(action).Inc()
}

// RecordPriceChange records an appended price history entry
func RecordPriceChange() {
	PriceChangesTotal.Inc()
}

// RecordPricingResolution records which scope satisfied a rule lookup
func RecordPricingResolution(scope string) {
	PricingResolutionsTotal.WithLabelValues(scope).Inc()
}

// RecordKafkaMessage records a consumed Kafka message
func RecordKafkaMessage(status string) {
	KafkaMessagesConsumed.WithLabelValues(status).Inc()
}
