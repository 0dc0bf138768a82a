package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds Prometheus counters and gauges for the playback service.
type Metrics struct {
	registry             *prometheus.Registry
	requestsTotal        prometheus.Counter
	errorsTotal          prometheus.Counter
	sessionsCreatedTotal prometheus.Counter
	activeSessions       prometheus.Gauge
	framesAdvancedTotal  prometheus.Counter
	frameFetchesTotal    *prometheus.CounterVec
	frameFetchSeconds    prometheus.Histogram
}

// New creates and registers Prometheus metrics for the playback service.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	requestsTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "lotplayback_requests_total",
		Help: "Total number of HTTP requests received",
	})
	errorsTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "lotplayback_errors_total",
		Help: "Total number of HTTP responses with error status (4xx or 5xx)",
	})
	sessionsCreatedTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "lotplayback_sessions_created_total",
		Help: "Total number of playback sessions created",
	})
	activeSessions := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "lotplayback_active_sessions",
		Help: "Number of playback sessions currently open",
	})
	framesAdvancedTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "lotplayback_frames_advanced_total",
		Help: "Total number of frame index changes across all sessions",
	})
	frameFetchesTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "lotplayback_frame_fetches_total",
		Help: "Frame load attempts by outcome (loaded, duplicate, dropped, failed)",
	}, []string{"outcome"})
	frameFetchSeconds := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "lotplayback_frame_fetch_duration_seconds",
		Help:    "Latency of frame fetches that reached the analytics backend",
		Buckets: prometheus.DefBuckets,
	})

	registry.MustRegister(
		requestsTotal,
		errorsTotal,
		sessionsCreatedTotal,
		activeSessions,
		framesAdvancedTotal,
		frameFetchesTotal,
		frameFetchSeconds,
	)

	return &Metrics{
		registry:             registry,
		requestsTotal:        requestsTotal,
		errorsTotal:          errorsTotal,
		sessionsCreatedTotal: sessionsCreatedTotal,
		activeSessions:       activeSessions,
		framesAdvancedTotal:  framesAdvancedTotal,
		frameFetchesTotal:    frameFetchesTotal,
		frameFetchSeconds:    frameFetchSeconds,
	}
}

// IncRequests increments the total request counter.
func (m *Metrics) IncRequests() {
	m.requestsTotal.Inc()
}

// IncErrors increments the errors counter.
func (m *Metrics) IncErrors() {
	m.errorsTotal.Inc()
}

// IncSessionsCreated increments the sessions created counter.
func (m *Metrics) IncSessionsCreated() {
	m.sessionsCreatedTotal.Inc()
}

// SetActiveSessions sets the active sessions gauge.
func (m *Metrics) SetActiveSessions(n int) {
	m.activeSessions.Set(float64(n))
}

// IncFramesAdvanced counts one frame index change.
func (m *Metrics) IncFramesAdvanced() {
	m.framesAdvancedTotal.Inc()
}

// ObserveFrameFetch records the outcome of a frame load and, for loads that
// hit the backend, its latency. A zero duration is not observed.
func (m *Metrics) ObserveFrameFetch(outcome string, d time.Duration) {
	m.frameFetchesTotal.WithLabelValues(outcome).Inc()
	if d > 0 {
		m.frameFetchSeconds.Observe(d.Seconds())
	}
}

// Handler returns an http.Handler that serves Prometheus metrics.
// updateGauges is called before each scrape to refresh gauge values (e.g. active sessions).
func (m *Metrics) Handler(updateGauges func()) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if updateGauges != nil {
			updateGauges()
		}
		promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}).ServeHTTP(w, r)
	})
}
