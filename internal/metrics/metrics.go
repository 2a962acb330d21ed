// Package metrics holds the Prometheus collectors of the gateway.
// A nil *Metrics is valid and records nothing.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// LatencyBuckets covers upstream latencies from 50ms to two minutes
var LatencyBuckets = []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30, 60, 120}

// UpstreamErrorLabel is the status label used when no upstream response was received
const UpstreamErrorLabel = "error"

// Metrics groups the gateway collectors on a private registry
type Metrics struct {
	registry *prometheus.Registry

	RequestsTotal         *prometheus.CounterVec
	RequestDuration       *prometheus.HistogramVec
	UpstreamRequestsTotal *prometheus.CounterVec
	UpstreamLatency       prometheus.Histogram
	ModelRejectionsTotal  prometheus.Counter
	RelaysActive          prometheus.Gauge
}

// New creates and registers all collectors
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		RequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "deepbridge_requests_total",
				Help: "Inbound requests by route and status code",
			},
			[]string{"route", "status"},
		),
		RequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "deepbridge_request_duration_seconds",
				Help:    "Inbound request duration including the relayed body",
				Buckets: LatencyBuckets,
			},
			[]string{"route"},
		),
		UpstreamRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "deepbridge_upstream_requests_total",
				Help: "Upstream calls by status code",
			},
			[]string{"status"},
		),
		UpstreamLatency: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "deepbridge_upstream_latency_seconds",
				Help:    "Time until upstream response headers arrive",
				Buckets: LatencyBuckets,
			},
		),
		ModelRejectionsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "deepbridge_model_rejections_total",
				Help: "Chat requests rejected because the model is not in the mapping table",
			},
		),
		RelaysActive: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "deepbridge_relays_active",
				Help: "Upstream responses currently being relayed",
			},
		),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.RequestsTotal,
		m.RequestDuration,
		m.UpstreamRequestsTotal,
		m.UpstreamLatency,
		m.ModelRejectionsTotal,
		m.RelaysActive,
	)
	return m
}

// Registry exposes the underlying registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// ObserveRequest records one finished inbound request
func (m *Metrics) ObserveRequest(route string, status int, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.RequestsTotal.WithLabelValues(route, strconv.Itoa(status)).Inc()
	m.RequestDuration.WithLabelValues(route).Observe(elapsed.Seconds())
}

// ObserveUpstream records one upstream call; status 0 means the call failed
func (m *Metrics) ObserveUpstream(status int, elapsed time.Duration) {
	if m == nil {
		return
	}
	label := UpstreamErrorLabel
	if status > 0 {
		label = strconv.Itoa(status)
	}
	m.UpstreamRequestsTotal.WithLabelValues(label).Inc()
	m.UpstreamLatency.Observe(elapsed.Seconds())
}

// RejectModel counts a model-not-found rejection
func (m *Metrics) RejectModel() {
	if m == nil {
		return
	}
	m.ModelRejectionsTotal.Inc()
}

// RelayStarted marks a relay in flight; call the returned func when it ends
func (m *Metrics) RelayStarted() func() {
	if m == nil {
		return func() {}
	}
	m.RelaysActive.Inc()
	return m.RelaysActive.Dec
}
