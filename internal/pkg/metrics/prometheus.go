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
	// HTTP metrics
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "policyscan",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "policyscan",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"method", "path", "status"},
	)

	// Scan metrics
	scanRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "policyscan",
			Subsystem: "scan",
			Name:      "runs_total",
			Help:      "Total number of scan runs by terminal status",
		},
		[]string{"status"},
	)

	scanRunDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "policyscan",
			Subsystem: "scan",
			Name:      "run_duration_seconds",
			Help:      "Duration of a full scan run in seconds",
			Buckets:   []float64{1, 5, 10, 30, 60, 120, 300, 600},
		},
	)

	ruleOutcomesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "policyscan",
			Subsystem: "scan",
			Name:      "rule_outcomes_total",
			Help:      "Per-rule scan outcomes",
		},
		[]string{"outcome"},
	)

	openViolations = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "policyscan",
			Subsystem: "violation",
			Name:      "open_count",
			Help:      "Number of open violations by severity",
		},
		[]string{"severity"},
	)

	targetQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "policyscan",
			Subsystem: "target",
			Name:      "query_duration_seconds",
			Help:      "Duration of rule queries against the target database",
			Buckets:   []float64{.01, .05, .1, .5, 1, 5, 10, 30},
		},
		[]string{"outcome"},
	)

	translatorRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "policyscan",
			Subsystem: "translator",
			Name:      "requests_total",
			Help:      "Total rule translation requests",
		},
		[]string{"status"},
	)
)

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Middleware returns a middleware that records Prometheus metrics
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		wrapped := &responseWriter{
			ResponseWriter: w,
			statusCode:     http.StatusOK,
		}

		next.ServeHTTP(wrapped, r)

		routePattern := chi.RouteContext(r.Context()).RoutePattern()
		if routePattern == "" {
			routePattern = "unknown"
		}
		status := strconv.Itoa(wrapped.statusCode)

		httpRequestsTotal.WithLabelValues(r.Method, routePattern, status).Inc()
		httpRequestDuration.WithLabelValues(r.Method, routePattern, status).Observe(time.Since(start).Seconds())
	})
}

// Handler returns the Prometheus metrics HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}

// RecordScanRun records a terminal scan run status and its duration
func RecordScanRun(status string, duration time.Duration) {
	scanRunsTotal.WithLabelValues(status).Inc()
	scanRunDuration.Observe(duration.Seconds())
}

// RecordRuleOutcome records a per-rule outcome within a scan run
func RecordRuleOutcome(outcome string) {
	ruleOutcomesTotal.WithLabelValues(outcome).Inc()
}

// SetOpenViolations sets the gauge for open violations by severity
func SetOpenViolations(severity string, count float64) {
	openViolations.WithLabelValues(severity).Set(count)
}

// RecordTargetQuery records the duration of one rule query against the target
func RecordTargetQuery(outcome string, duration time.Duration) {
	targetQueryDuration.WithLabelValues(outcome).Observe(duration.Seconds())
}

// RecordTranslation records a translator request result
func RecordTranslation(status string) {
	translatorRequestsTotal.WithLabelValues(status).Inc()
}
