// Package telemetry defines the Prometheus metrics for the service.
package telemetry

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
	submissionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "diskseek_submissions_total",
			Help: "Total search submissions, labeled by outcome.",
		},
		[]string{"outcome"},
	)

	crawlRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "diskseek_crawl_runs_total",
			Help: "Total crawl runs, labeled by terminal status.",
		},
		[]string{"status"},
	)

	crawlRunDurationSeconds = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "diskseek_crawl_run_duration_seconds",
			Help:    "Histogram of isolated crawl run durations.",
			Buckets: []float64{1, 5, 15, 60, 180, 600, 1200},
		},
	)

	resourcesDiscoveredTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "diskseek_resources_discovered_total",
			Help: "Total resources emitted by the spider engine, labeled by site.",
		},
		[]string{"site"},
	)

	siteCircuitBreaksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "diskseek_site_circuit_breaks_total",
			Help: "Total per-site circuit breaker trips.",
		},
		[]string{"site"},
	)

	notifyAttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "diskseek_notify_attempts_total",
			Help: "Total notification attempts, labeled by result.",
		},
		[]string{"result"},
	)

	activeWorkers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "diskseek_active_workers",
			Help: "Number of workers currently executing a crawl task.",
		},
	)

	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "diskseek_http_requests_total",
			Help: "Total HTTP requests, labeled by method and code.",
		},
		[]string{"method", "code"},
	)

	httpRequestDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "diskseek_http_request_duration_seconds",
			Help:    "Histogram of HTTP request latencies, labeled by method and route.",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
		},
		[]string{"method", "route"},
	)
)

// Handler returns the standard Prometheus HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Middleware is a chi middleware that records HTTP request metrics.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(ww, r)

		route := chi.RouteContext(r.Context()).RoutePattern()
		if route == "" {
			route = "unknown"
		}
		httpRequestsTotal.WithLabelValues(r.Method, strconv.Itoa(ww.statusCode)).Inc()
		httpRequestDurationSeconds.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}

// statusRecorder wraps http.ResponseWriter to capture the status code.
type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (rec *statusRecorder) WriteHeader(code int) {
	rec.statusCode = code
	rec.ResponseWriter.WriteHeader(code)
}

// ObserveSubmission records a submission outcome.
func ObserveSubmission(outcome string) {
	submissionsTotal.WithLabelValues(outcome).Inc()
}

// ObserveCrawlRun records the terminal status and duration of a crawl run.
func ObserveCrawlRun(status string, duration time.Duration) {
	crawlRunsTotal.WithLabelValues(status).Inc()
	crawlRunDurationSeconds.Observe(duration.Seconds())
}

// ObserveResource records one emitted resource.
func ObserveResource(site string) {
	resourcesDiscoveredTotal.WithLabelValues(site).Inc()
}

// ObserveCircuitBreak records a site circuit breaker trip.
func ObserveCircuitBreak(site string) {
	siteCircuitBreaksTotal.WithLabelValues(site).Inc()
}

// ObserveNotify records a notification attempt result.
func ObserveNotify(result string) {
	notifyAttemptsTotal.WithLabelValues(result).Inc()
}

// IncActiveWorkers increments the active worker count.
func IncActiveWorkers() {
	activeWorkers.Inc()
}

// DecActiveWorkers decrements the active worker count.
func DecActiveWorkers() {
	activeWorkers.Dec()
}
