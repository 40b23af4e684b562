// Package metrics exposes Prometheus instrumentation for the runner's own
// activity and for the read-only status endpoint's HTTP traffic. Grounded
// on LumenPrima-tr-engine/internal/metrics, with the MQTT/SSE counters
// replaced by the transmission, provider, and synthesis concerns this
// domain actually has.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "vhfbalise"

// HTTP metrics — incremented by InstrumentHandler.
var (
	HTTPRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "http_requests_total",
		Help:      "Total HTTP requests processed by the status endpoint.",
	}, []string{"method", "path_pattern", "status_code"})

	HTTPRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request duration in seconds.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "path_pattern"})
)

// Runner domain counters — incremented directly by internal/runner,
// internal/scheduler, and internal/tts as each event happens.
var (
	TransmissionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "transmissions_total",
		Help:      "Total transmission attempts by final status.",
	}, []string{"status"}) // sent|failed|aborted

	ProviderFetchErrorsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "provider_fetch_errors_total",
		Help:      "Total measurement fetch failures by provider.",
	}, []string{"provider"})

	TTSSynthesisTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "tts_synthesis_total",
		Help:      "Total audio-cache lookups by outcome.",
	}, []string{"outcome"}) // hit|miss

	PTTKeyDurationSeconds = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "ptt_key_duration_seconds",
		Help:      "Wall-clock time the PTT line stayed active per transmission.",
		Buckets:   prometheus.LinearBuckets(1, 2, 10), // 1s..19s
	})
)

func init() {
	prometheus.MustRegister(
		HTTPRequestsTotal,
		HTTPRequestDuration,
		TransmissionsTotal,
		ProviderFetchErrorsTotal,
		TTSSynthesisTotal,
		PTTKeyDurationSeconds,
	)
}

// InstrumentHandler returns middleware that records HTTP request metrics,
// using chi's route pattern as the path label to avoid cardinality
// explosion from arbitrary request paths.
func InstrumentHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: 200}
		next.ServeHTTP(sw, r)

		pattern := chi.RouteContext(r.Context()).RoutePattern()
		if pattern == "" {
			pattern = "unknown"
		}
		method := r.Method
		status := strconv.Itoa(sw.status)
		duration := time.Since(start).Seconds()

		HTTPRequestsTotal.WithLabelValues(method, pattern, status).Inc()
		HTTPRequestDuration.WithLabelValues(method, pattern).Observe(duration)
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}
