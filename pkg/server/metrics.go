// Prometheus instrumentation for the HTTP surface. Wired separately from
// pkg/logging's RequestLogger: the logger is for human-readable request
// traces, this is for the scrape endpoint an investor-facing deployment
// would put behind its monitoring stack.
package server

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// PrometheusMetrics holds the collectors exposed on the metrics listener.
type PrometheusMetrics struct {
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	eventsIngested  *prometheus.CounterVec
	ingestRejected  *prometheus.CounterVec
}

// NewPrometheusMetrics registers the ledger service's collectors against a
// fresh registry and returns both the collectors and the /metrics handler.
func NewPrometheusMetrics() (*PrometheusMetrics, http.Handler) {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)

	m := &PrometheusMetrics{
		requestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "ledger_http_requests_total",
			Help: "Total HTTP requests handled by the ledger API, by route and status class.",
		}, []string{"route", "status"}),
		requestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "ledger_http_request_duration_seconds",
			Help:    "HTTP request duration by route.",
			Buckets: prometheus.DefBuckets,
		}, []string{"route"}),
		eventsIngested: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "ledger_events_ingested_total",
			Help: "Events successfully appended to the ledger, by event type.",
		}, []string{"instance", "eventType"}),
		ingestRejected: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "ledger_events_rejected_total",
			Help: "Ingest attempts rejected, by instance.",
		}, []string{"instance"}),
	}
	return m, promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}

// ObserveIngest records the outcome of an ingest attempt.
func (m *PrometheusMetrics) ObserveIngest(instanceID, eventType string, accepted bool) {
	if accepted {
		m.eventsIngested.WithLabelValues(instanceID, eventType).Inc()
		return
	}
	m.ingestRejected.WithLabelValues(instanceID).Inc()
}

// Instrument wraps next so every request to route increments requestsTotal
// and observes requestDuration.
func (m *PrometheusMetrics) Instrument(route string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &metricsStatusWriter{ResponseWriter: w, status: http.StatusOK}
		next(sw, r)
		m.requestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
		m.requestsTotal.WithLabelValues(route, strconv.Itoa(sw.status/100*100)).Inc()
	}
}

type metricsStatusWriter struct {
	http.ResponseWriter
	status int
}

func (w *metricsStatusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}
