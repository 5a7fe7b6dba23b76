// Package telemetry exposes Prometheus collectors for the harvester.
package telemetry

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	fetchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "harvester_fetches_total",
			Help: "Total number of fetches dispatched, labeled by outcome.",
		},
		[]string{"outcome"},
	)

	fetchDurationSeconds = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "harvester_fetch_duration_seconds",
			Help:    "Histogram of fetch round-trip latencies.",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30, 60},
		},
	)

	retriesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "harvester_retries_total",
			Help: "Total number of requests re-submitted after a transport failure.",
		},
	)

	rangeSplitsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "harvester_range_splits_total",
			Help: "Total number of date-range bisections performed.",
		},
	)

	pagesFannedOutTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "harvester_pages_fanned_out_total",
			Help: "Total number of page-offset fetches submitted by fan-out.",
		},
	)

	rowsWrittenTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "harvester_rows_written_total",
			Help: "Total number of records appended to the ledger.",
		},
	)

	reconciliationMismatchesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "harvester_reconciliation_mismatches_total",
			Help: "Total number of pages whose parsed count differed from the expected count.",
		},
	)

	artifactsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "harvester_artifacts_total",
			Help: "Total number of artifacts handled, labeled by outcome.",
		},
		[]string{"outcome"},
	)

	rateWaitSeconds = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "harvester_rate_wait_seconds",
			Help:    "Histogram of rate-bucket wait durations.",
			Buckets: []float64{0.01, 0.1, 0.5, 1, 2, 5, 10},
		},
	)
)

// ObserveFetch records one completed dispatch.
func ObserveFetch(outcome string, duration time.Duration) {
	fetchesTotal.WithLabelValues(outcome).Inc()
	fetchDurationSeconds.Observe(duration.Seconds())
}

// ObserveRetry counts one re-submission.
func ObserveRetry() {
	retriesTotal.Inc()
}

// ObserveSplit counts one range bisection.
func ObserveSplit() {
	rangeSplitsTotal.Inc()
}

// AddFanout counts page-offset fetches submitted for one query.
func AddFanout(pages int) {
	pagesFannedOutTotal.Add(float64(pages))
}

// AddRows counts records appended to the ledger.
func AddRows(rows int) {
	rowsWrittenTotal.Add(float64(rows))
}

// ObserveMismatch counts one reconciliation failure.
func ObserveMismatch() {
	reconciliationMismatchesTotal.Inc()
}

// ObserveArtifact counts one artifact outcome ("downloaded" or "skipped").
func ObserveArtifact(outcome string) {
	artifactsTotal.WithLabelValues(outcome).Inc()
}

// ObserveRateWait records the delay introduced by a rate bucket.
func ObserveRateWait(duration time.Duration) {
	rateWaitSeconds.Observe(duration.Seconds())
}
