// Package metrics provides Prometheus instrumentation for the ingestion
// engine. Metrics register into the default registry; exposing them is the
// embedding process's concern and runs never depend on a scrape endpoint.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RecordsExtracted counts records yielded by each resource.
	RecordsExtracted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "birdfeed_records_extracted_total",
			Help: "Total records extracted, by resource.",
		},
		[]string{"resource"},
	)

	// RowsLoaded counts rows written to the destination store.
	RowsLoaded = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "birdfeed_rows_loaded_total",
			Help: "Total rows written to the destination, by resource and disposition.",
		},
		[]string{"resource", "disposition"},
	)

	// ResourceFailures counts resource extractions that terminated early.
	ResourceFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "birdfeed_resource_failures_total",
			Help: "Total resource extraction failures, by resource and error type.",
		},
		[]string{"resource", "error_type"},
	)

	// RegionRuns counts completed region runs by terminal state.
	RegionRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "birdfeed_region_runs_total",
			Help: "Total region runs, by terminal state.",
		},
		[]string{"state"},
	)

	// RunDuration observes wall-clock duration of region runs.
	RunDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "birdfeed_run_duration_seconds",
			Help:    "Wall-clock duration of a region run.",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
		},
	)
)

// ObserveRun records a completed region run.
func ObserveRun(state string, duration time.Duration) {
	RegionRuns.WithLabelValues(state).Inc()
	RunDuration.Observe(duration.Seconds())
}
