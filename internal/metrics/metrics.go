// Package metrics exposes gateway traffic and reload counters in
// Prometheus format.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics owns a dedicated registry so tests can create isolated instances.
type Metrics struct {
	registry *prometheus.Registry

	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	keyUsage        *prometheus.CounterVec
	reloadsTotal    *prometheus.CounterVec
	snapshotVersion prometheus.Gauge
	routesActive    prometheus.Gauge
	poolsActive     prometheus.Gauge
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		requestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gateway_requests_total",
			Help: "Requests handled, by method, route and response status.",
		}, []string{"method", "route", "status"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "gateway_request_duration_seconds",
			Help:    "Request latency from receipt to response completion.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"}),
		keyUsage: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gateway_key_usage_total",
			Help: "Key selections per pool, by masked key identifier and route.",
		}, []string{"pool", "key", "route"}),
		reloadsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gateway_config_reloads_total",
			Help: "Configuration reload attempts, by result.",
		}, []string{"result"}),
		snapshotVersion: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "gateway_config_snapshot_version",
			Help: "Version of the configuration snapshot currently serving.",
		}),
		routesActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "gateway_routes_active",
			Help: "Enabled routes in the active snapshot.",
		}),
		poolsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "gateway_key_pools_active",
			Help: "Key pools in the active snapshot.",
		}),
	}

	m.registry.MustRegister(
		m.requestsTotal,
		m.requestDuration,
		m.keyUsage,
		m.reloadsTotal,
		m.snapshotVersion,
		m.routesActive,
		m.poolsActive,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// ObserveRequest records exactly one event per handled request.
func (m *Metrics) ObserveRequest(method, route string, status int, duration time.Duration) {
	m.requestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.requestDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}

// ObserveKeyUse records a key selection. keyID must be the masked
// identifier, never the secret value.
func (m *Metrics) ObserveKeyUse(pool, keyID, route string) {
	m.keyUsage.WithLabelValues(pool, keyID, route).Inc()
}

// SnapshotLoaded sets the snapshot gauges without counting a reload. Used
// for the initial load.
func (m *Metrics) SnapshotLoaded(version uint64, routes, pools int) {
	m.snapshotVersion.Set(float64(version))
	m.routesActive.Set(float64(routes))
	m.poolsActive.Set(float64(pools))
}

// ReloadSucceeded updates the snapshot gauges after a successful swap.
func (m *Metrics) ReloadSucceeded(version uint64, routes, pools int) {
	m.reloadsTotal.WithLabelValues("success").Inc()
	m.SnapshotLoaded(version, routes, pools)
}

func (m *Metrics) ReloadFailed() {
	m.reloadsTotal.WithLabelValues("failure").Inc()
}

// Handler serves the registry in Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
