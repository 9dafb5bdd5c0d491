package server

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/stoq/stoqserver/src/bootstrap"
	"github.com/stoq/stoqserver/src/common/version"
	"github.com/stoq/stoqserver/src/database"
)

const namespace = "stoqserver"

// Metrics holds the server's Prometheus collectors. Each server owns its
// registry so tests can build several servers in one process.
type Metrics struct {
	registry *prometheus.Registry

	requests  *prometheus.CounterVec
	latency   *prometheus.HistogramVec
	inFlight  prometheus.Gauge
	phases    *prometheus.GaugeVec
	buildInfo *prometheus.GaugeVec
	patches   *prometheus.GaugeVec
}

// NewMetrics creates and registers the server collectors
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by method and status code.",
		}, []string{"method", "code"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method"}),
		inFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "http_in_flight_requests",
			Help:      "Requests currently being served.",
		}),
		phases: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "bootstrap",
			Name:      "phase_seconds",
			Help:      "Duration of each bootstrap phase of the running process.",
		}, []string{"phase", "skipped"}),
		buildInfo: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "build_info",
			Help:      "Build information, always 1.",
		}, []string{"version", "commit", "frozen"}),
		patches: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "concurrency",
			Name:      "patch",
			Help:      "Concurrency patches applied at startup, in order.",
		}, []string{"name"}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.requests, m.latency, m.inFlight, m.phases, m.buildInfo, m.patches,
	)

	info := version.Get()
	m.buildInfo.WithLabelValues(info.Version, version.GetCommitShort(), strconv.FormatBool(info.Frozen)).Set(1)
	return m
}

// ObserveBootstrap publishes the phase timings and applied patches of bc
func (m *Metrics) ObserveBootstrap(bc bootstrap.Context) {
	for _, t := range bc.Timings {
		m.phases.WithLabelValues(t.Phase, strconv.FormatBool(t.Skipped)).Set(t.Duration.Seconds())
	}
	for i, p := range bc.Substrate.Patches {
		m.patches.WithLabelValues(p).Set(float64(i + 1))
	}
}

// ObserveDatabase exports the connection pool statistics of db
func (m *Metrics) ObserveDatabase(db *database.DB) {
	m.registry.MustRegister(collectors.NewDBStatsCollector(db.SQL(), db.Driver()))
}

// Handler serves the registry in the Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Middleware records request counts, latency and in-flight requests
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		m.inFlight.Inc()
		defer m.inFlight.Dec()

		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(wrapped, r)

		m.requests.WithLabelValues(r.Method, strconv.Itoa(wrapped.statusCode)).Inc()
		m.latency.WithLabelValues(r.Method).Observe(time.Since(start).Seconds())
	})
}
