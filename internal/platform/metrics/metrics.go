package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

var (
	// Registry is the dedicated Prometheus registry for the service.
	Registry = prometheus.NewRegistry()

	// HTTPRequests counts requests by method, route pattern and status.
	HTTPRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "http_requests_total", Help: "Total HTTP requests."},
		[]string{"method", "route", "status"},
	)
	// HTTPDuration records request durations in seconds.
	HTTPDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{Name: "http_request_duration_seconds", Help: "HTTP request duration in seconds.", Buckets: prometheus.DefBuckets},
		[]string{"method", "route"},
	)

	// GeoLookups counts distance lookups by source (cache, provider) and outcome.
	GeoLookups = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "geo_lookups_total", Help: "Distance lookups by source and outcome."},
		[]string{"source", "outcome"},
	)
	// MatrixCells observes the size of every built matrix.
	MatrixCells = prometheus.NewHistogram(
		prometheus.HistogramOpts{Name: "distance_matrix_cells", Help: "Cells per built distance matrix.", Buckets: prometheus.ExponentialBuckets(1, 4, 10)},
	)

	// OptimizationRuns counts optimize tasks by outcome.
	OptimizationRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "optimization_runs_total", Help: "Optimization runs by outcome."},
		[]string{"outcome"},
	)
	// OperationDuration tracks timed internal operations in seconds.
	OperationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{Name: "operation_duration_seconds", Help: "Internal operation duration in seconds.", Buckets: prometheus.DefBuckets},
		[]string{"op", "outcome"},
	)
)

var regOnce sync.Once

// Register registers all collectors on Registry. Safe to call repeatedly.
func Register() {
	regOnce.Do(func() {
		Registry.MustRegister(HTTPRequests)
		Registry.MustRegister(HTTPDuration)
		Registry.MustRegister(GeoLookups)
		Registry.MustRegister(MatrixCells)
		Registry.MustRegister(OptimizationRuns)
		Registry.MustRegister(OperationDuration)
		Registry.MustRegister(collectors.NewGoCollector())
		Registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	})
}
