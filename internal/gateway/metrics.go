package gateway

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// serverMetrics are the counters and gauges the gateway's observability
// section calls for: per-route request counts/latency, active sessions,
// and channel-supervisor restarts. Each is registered against its own
// registry so tests can build a Server without clobbering the global
// default registry.
type serverMetrics struct {
	registry        *prometheus.Registry
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	activeSessions  prometheus.Gauge
	supervisorRestarts prometheus.Counter
}

func newServerMetrics() *serverMetrics {
	registry := prometheus.NewRegistry()

	m := &serverMetrics{
		registry: registry,
		requestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "nexus_gateway_http_requests_total",
			Help: "Total HTTP requests handled by the gateway, by route and status.",
		}, []string{"route", "method", "status"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "nexus_gateway_http_request_duration_seconds",
			Help:    "HTTP request latency, by route.",
			Buckets: prometheus.DefBuckets,
		}, []string{"route"}),
		activeSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "nexus_gateway_active_sessions",
			Help: "Number of sessions currently tracked by the session manager.",
		}),
		supervisorRestarts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "nexus_gateway_channel_supervisor_restarts_total",
			Help: "Total channel restarts performed by the ChannelSupervisor.",
		}),
	}

	registry.MustRegister(m.requestsTotal, m.requestDuration, m.activeSessions, m.supervisorRestarts)
	return m
}

func (m *serverMetrics) observe(route, method string, status int, dur time.Duration) {
	m.requestsTotal.WithLabelValues(route, method, statusClass(status)).Inc()
	m.requestDuration.WithLabelValues(route).Observe(dur.Seconds())
}

func statusClass(status int) string {
	switch {
	case status >= 500:
		return "5xx"
	case status >= 400:
		return "4xx"
	case status >= 300:
		return "3xx"
	default:
		return "2xx"
	}
}
