// Package metrics exposes Prometheus collectors for the catalog builder.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	probesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sgs_probes_total",
			Help: "Total number of series ids classified, labeled by classification.",
		},
		[]string{"classification"},
	)

	probeRetriesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "sgs_probe_retries_total",
			Help: "Total number of classification probe retries.",
		},
	)

	enrichmentTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sgs_enrichment_total",
			Help: "Total number of enrichment outcomes, labeled by outcome.",
		},
		[]string{"outcome"},
	)

	transportRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sgs_transport_requests_total",
			Help: "Total number of upstream requests, labeled by status code or failure kind.",
		},
		[]string{"code"},
	)

	transportInflight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "sgs_transport_inflight",
			Help: "Number of upstream requests currently holding a concurrency slot.",
		},
	)

	transportRequestDurationSeconds = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "sgs_transport_request_duration_seconds",
			Help:    "Histogram of upstream request latencies.",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 15},
		},
	)

	catalogRecords = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "sgs_catalog_records",
			Help: "Number of records in the last written catalog.",
		},
	)

	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sgs_status_http_requests_total",
			Help: "Total number of status API requests, labeled by method, route and code.",
		},
		[]string{"method", "route", "code"},
	)
)

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveProbe counts one classified id.
func ObserveProbe(classification string) {
	probesTotal.WithLabelValues(classification).Inc()
}

// ObserveProbeRetry counts one retried probe attempt.
func ObserveProbeRetry() {
	probeRetriesTotal.Inc()
}

// ObserveEnrichment counts one enrichment outcome.
func ObserveEnrichment(outcome string) {
	enrichmentTotal.WithLabelValues(outcome).Inc()
}

// ObserveRequest records an upstream request. code is the HTTP status or a
// failure kind such as "timeout".
func ObserveRequest(code string, duration time.Duration) {
	transportRequestsTotal.WithLabelValues(code).Inc()
	transportRequestDurationSeconds.Observe(duration.Seconds())
}

// ObserveStatus is ObserveRequest for a completed HTTP exchange.
func ObserveStatus(code int, duration time.Duration) {
	ObserveRequest(strconv.Itoa(code), duration)
}

// IncInflight increments the in-flight gauge.
func IncInflight() {
	transportInflight.Inc()
}

// DecInflight decrements the in-flight gauge.
func DecInflight() {
	transportInflight.Dec()
}

// SetCatalogRecords records the size of the last written catalog.
func SetCatalogRecords(n int) {
	catalogRecords.Set(float64(n))
}

// Middleware is a chi middleware that records status API request metrics.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(ww, r)

		routePattern := "unknown"
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			routePattern = rctx.RoutePattern()
		}
		httpRequestsTotal.WithLabelValues(r.Method, routePattern, strconv.Itoa(ww.statusCode)).Inc()
	})
}

type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (rec *statusRecorder) WriteHeader(code int) {
	rec.statusCode = code
	rec.ResponseWriter.WriteHeader(code)
}
