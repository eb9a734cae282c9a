package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Cluster metrics
	NodesTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "menmos_nodes_total",
			Help: "Total number of registered storage nodes by liveness",
		},
		[]string{"liveness"},
	)

	BlobsTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "menmos_blobs_total",
			Help: "Total number of blobs known to the coordinator by status",
		},
		[]string{"status"},
	)

	IndexedRowsTotal = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "menmos_indexed_rows_total",
			Help: "Total number of rows currently allocated in the facet index",
		},
	)

	// API metrics
	APIRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "menmos_api_requests_total",
			Help: "Total number of API requests by route and status",
		},
		[]string{"route", "status"},
	)

	APIRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "menmos_api_request_duration_seconds",
			Help:    "API request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route"},
	)

	// Placement/router metrics
	PlacementLatency = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "menmos_placement_latency_seconds",
			Help:    "Time taken to pick a node for a new blob",
			Buckets: prometheus.DefBuckets,
		},
	)

	BlobsOrphaned = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "menmos_blobs_orphaned_total",
			Help: "Total number of pending blobs reaped by the orphan sweeper",
		},
	)

	RebalanceMovesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "menmos_rebalance_moves_total",
			Help: "Total number of rebalance moves confirmed by the coordinator",
		},
	)

	RebalanceCyclesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "menmos_rebalance_cycles_total",
			Help: "Total number of rebalance cycles completed",
		},
	)

	// Query metrics
	QueryLatency = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "menmos_query_latency_seconds",
			Help:    "Time taken to evaluate and paginate a query",
			Buckets: prometheus.DefBuckets,
		},
	)

	QueryResultSize = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "menmos_query_result_size",
			Help:    "Number of hits matched per query, before pagination",
			Buckets: []float64{0, 1, 10, 100, 1000, 10000, 100000},
		},
	)
)

func init() {
	prometheus.MustRegister(NodesTotal)
	prometheus.MustRegister(BlobsTotal)
	prometheus.MustRegister(IndexedRowsTotal)
	prometheus.MustRegister(APIRequestsTotal)
	prometheus.MustRegister(APIRequestDuration)
	prometheus.MustRegister(PlacementLatency)
	prometheus.MustRegister(BlobsOrphaned)
	prometheus.MustRegister(RebalanceMovesTotal)
	prometheus.MustRegister(RebalanceCyclesTotal)
	prometheus.MustRegister(QueryLatency)
	prometheus.MustRegister(QueryResultSize)
}

// Handler returns the Prometheus HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer is a helper for timing operations.
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// ObserveDuration records the duration to a histogram.
func (t *Timer) ObserveDuration(histogram prometheus.Histogram) {
	duration := time.Since(t.start).Seconds()
	histogram.Observe(duration)
}

// ObserveDurationVec records the duration to a histogram vec with labels.
func (t *Timer) ObserveDurationVec(histogram prometheus.ObserverVec, labels ...string) {
	duration := time.Since(t.start).Seconds()
	histogram.WithLabelValues(labels...).Observe(duration)
}

// Duration returns the elapsed time since timer started.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}
