package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lembra_http_requests_total",
			Help: "Total HTTP requests by method, path, and status",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "lembra_http_request_duration_seconds",
			Help:    "HTTP request latency distribution",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"method", "path"},
	)

	cyclesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "lembra_cycles_total",
			Help: "Total evaluation cycles run",
		},
	)

	cyclesSkipped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "lembra_cycles_skipped_total",
			Help: "Ticks skipped because the previous cycle was still running",
		},
	)

	cycleDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "lembra_cycle_duration_seconds",
			Help:    "Wall-clock duration of one evaluation cycle",
			Buckets: []float64{.01, .05, .1, .5, 1, 5, 15, 30, 60},
		},
	)

	alertsEvaluated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lembra_alerts_evaluated_total",
			Help: "Alerts evaluated per cycle by outcome",
		},
		[]string{"outcome"},
	)

	dispatchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lembra_dispatches_total",
			Help: "Push dispatches by provider and result",
		},
		[]string{"provider", "result"},
	)
)

// Alert evaluation outcomes
const (
	OutcomeFired   = "fired"
	OutcomeIdle    = "idle"
	OutcomeSkipped = "skipped"
	OutcomeError   = "error"
)

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// RecordCycle records one completed evaluation cycle.
func RecordCycle(duration time.Duration) {
	cyclesTotal.Inc()
	cycleDuration.Observe(duration.Seconds())
}

// RecordCycleSkipped records a tick dropped due to an overlapping cycle.
func RecordCycleSkipped() {
	cyclesSkipped.Inc()
}

// RecordAlertOutcome records the evaluation outcome for one alert.
func RecordAlertOutcome(outcome string) {
	alertsEvaluated.WithLabelValues(outcome).Inc()
}

// RecordDispatch records a push dispatch attempt.
func RecordDispatch(provider string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	dispatchesTotal.WithLabelValues(provider, result).Inc()
}

// RecordRequest records HTTP request metrics.
func RecordRequest(method, path string, status int, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	httpRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// responseWriter wraps http.ResponseWriter to capture the status code
type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

// Middleware returns HTTP middleware that records request metrics.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &responseWriter{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(wrapped, r)

		RecordRequest(r.Method, r.URL.Path, wrapped.status, time.Since(start))
	})
}
