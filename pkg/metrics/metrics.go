// Package metrics defines and registers the Prometheus metrics exposed by
// an akavache engine: entry counts and queue depth per cache instance,
// coalescer batching behavior, storage operation outcomes, per-call
// latency for Insert/Get/Invalidate/Vacuum, and call counts for the fetch
// helpers.
// Metrics are served over HTTP for scraping via Handler.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Engine-wide gauges
	EntriesTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "akavache_entries_total",
			Help: "Total number of live entries by cache instance",
		},
		[]string{"instance"},
	)

	QueueDepth = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "akavache_queue_depth",
			Help: "Number of operations currently queued, awaiting the next drain",
		},
		[]string{"instance"},
	)

	// Coalescer metrics
	BatchSize = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "akavache_batch_size",
			Help:    "Number of source operations absorbed into one drained batch",
			Buckets: []float64{1, 2, 4, 8, 16, 32, 64, 128},
		},
		[]string{"instance"},
	)

	GroupsPerBatch = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "akavache_groups_per_batch",
			Help:    "Number of coalesced groups one drained batch rewrote into",
			Buckets: []float64{1, 2, 3, 4, 5, 8, 16},
		},
		[]string{"instance"},
	)

	DrainDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "akavache_drain_duration_seconds",
			Help:    "Time taken to execute one drained batch's transaction",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"instance"},
	)

	// Storage driver metrics
	StorageOpsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "akavache_storage_ops_total",
			Help: "Total number of prepared operations executed, by kind and outcome",
		},
		[]string{"instance", "kind", "outcome"},
	)

	// Cache operation latency, measured at the public API boundary.
	InsertDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "akavache_insert_duration_seconds",
			Help:    "Time taken for Insert/InsertMany to resolve",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"instance"},
	)

	GetDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "akavache_get_duration_seconds",
			Help:    "Time taken for Get to resolve",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"instance"},
	)

	InvalidateDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "akavache_invalidate_duration_seconds",
			Help:    "Time taken for Invalidate/InvalidateAll to resolve",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"instance"},
	)

	VacuumDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "akavache_vacuum_duration_seconds",
			Help:    "Time taken for a Vacuum pass (expiry sweep plus defrag)",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60},
		},
		[]string{"instance"},
	)

	// Fetch / get-or-fetch metrics
	FetchCallsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "akavache_fetch_calls_total",
			Help: "Total number of caller fetch functions actually invoked (post-dedup)",
		},
		[]string{"instance", "outcome"},
	)

	FetchDeduplicatedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "akavache_fetch_deduplicated_total",
			Help: "Total number of GetOrFetch/GetAndFetchLatest calls that joined an in-flight fetch instead of starting one",
		},
		[]string{"instance"},
	)
)

func init() {
	prometheus.MustRegister(EntriesTotal)
	prometheus.MustRegister(QueueDepth)
	prometheus.MustRegister(BatchSize)
	prometheus.MustRegister(GroupsPerBatch)
	prometheus.MustRegister(DrainDuration)
	prometheus.MustRegister(StorageOpsTotal)
	prometheus.MustRegister(InsertDuration)
	prometheus.MustRegister(GetDuration)
	prometheus.MustRegister(InvalidateDuration)
	prometheus.MustRegister(VacuumDuration)
	prometheus.MustRegister(FetchCallsTotal)
	prometheus.MustRegister(FetchDeduplicatedTotal)
}

// Handler returns the Prometheus HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer is a helper for timing operations
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// ObserveDuration records the duration to a histogram
func (t *Timer) ObserveDuration(histogram prometheus.Histogram) {
	duration := time.Since(t.start).Seconds()
	histogram.Observe(duration)
}

// ObserveDurationVec records the duration to a histogram vec with labels
func (t *Timer) ObserveDurationVec(histogram prometheus.ObserverVec, labels ...string) {
	duration := time.Since(t.start).Seconds()
	histogram.WithLabelValues(labels...).Observe(duration)
}

// Duration returns the elapsed time since timer started
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}
