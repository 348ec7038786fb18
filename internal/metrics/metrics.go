// Package metrics declares the Prometheus collectors shared by the pipelines.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "media_pipelines"

var (
	// Retry attempts that were followed by a backoff sleep
	RetriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "retry",
			Name:      "retries_total",
			Help:      "Total retried remote operations",
		},
		[]string{"operation"},
	)

	// Remote calls that gave up after exhausting attempts
	RetryExhaustedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "retry",
			Name:      "exhausted_total",
			Help:      "Total remote operations that failed after the last attempt",
		},
		[]string{"operation"},
	)

	// Remote call latency, one observation per attempt
	RemoteCallDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "remote",
			Name:      "call_duration_seconds",
			Help:      "Remote call duration in seconds",
			Buckets:   []float64{0.05, 0.1, 0.5, 1, 2, 5, 30, 120},
		},
		[]string{"operation", "status"},
	)

	// Batch items by pipeline stage and outcome
	BatchItemsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "batch_items_total",
			Help:      "Total batch items processed by stage",
		},
		[]string{"stage", "status"},
	)

	// Handler invocations
	HandlerInvocationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "handler",
			Name:      "invocations_total",
			Help:      "Total step handler invocations",
		},
		[]string{"handler", "status"},
	)

	HandlerDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "handler",
			Name:      "duration_seconds",
			Help:      "Step handler duration in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 5, 15, 60, 300, 900},
		},
		[]string{"handler"},
	)

	// Rekognition jobs by terminal status observed at finalize time
	DetectionJobsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "detection",
			Name:      "jobs_total",
			Help:      "Total label detection jobs by lifecycle event",
		},
		[]string{"event"},
	)
)

// Item outcomes used with BatchItemsTotal.
const (
	StatusSuccess = "success"
	StatusFailed  = "failed"
	StatusSkipped = "skipped"
)
