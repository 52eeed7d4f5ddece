// Package observability provides the Prometheus metrics and OpenTelemetry
// tracing ambient stack for MCP Guardian (spec.md §2 component L).
// Grounded on the teacher's internal/adapter/inbound/http/metrics.go: the
// same promauto-registered CounterVec/HistogramVec/Gauge shape, re-labeled
// for Guardian's proxy-and-scheduler domain instead of the teacher's
// policy/audit/rate-limit one.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for MCP Guardian. Pass to
// components that need to record metrics; every recorder method on this
// type is nil-receiver-safe so components can hold a possibly-nil
// *Metrics without a separate "metrics enabled" branch at every call site.
type Metrics struct {
	ProxyRequestsTotal    *prometheus.CounterVec
	ProxyRequestDuration  *prometheus.HistogramVec
	SchedulerTickDuration *prometheus.HistogramVec
	SnapshotDriftTotal    *prometheus.CounterVec
	ServiceDisabledTotal  prometheus.Counter
	SnapshotApprovalsTotal *prometheus.CounterVec
	RegistrySize          prometheus.Gauge
}

// NewMetrics creates and registers all metrics with the given registry.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	return &Metrics{
		ProxyRequestsTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "mcp_guardian",
				Name:      "proxy_requests_total",
				Help:      "Total number of proxied MCP requests",
			},
			[]string{"service", "status"}, // status=ok/error
		),
		ProxyRequestDuration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "mcp_guardian",
				Name:      "proxy_request_duration_seconds",
				Help:      "Proxied request duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"service"},
		),
		SchedulerTickDuration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "mcp_guardian",
				Name:      "scheduler_tick_duration_seconds",
				Help:      "Duration of a scheduler tick pass",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"scheduler"}, // scheduler=route_poller/check_scheduler
		),
		SnapshotDriftTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "mcp_guardian",
				Name:      "snapshot_drift_total",
				Help:      "Total number of detected tool-surface drifts",
			},
			[]string{"service"},
		),
		ServiceDisabledTotal: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Namespace: "mcp_guardian",
				Name:      "service_disabled_total",
				Help:      "Total number of services auto-disabled on drift",
			},
		),
		SnapshotApprovalsTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "mcp_guardian",
				Name:      "snapshot_approvals_total",
				Help:      "Total snapshot approvals by actor",
			},
			[]string{"status"}, // only the check scheduler records, with status=system_approved
		),
		RegistrySize: promauto.With(reg).NewGauge(
			prometheus.GaugeOpts{
				Namespace: "mcp_guardian",
				Name:      "registry_size",
				Help:      "Number of services in the route registry, disabled ones included",
			},
		),
	}
}

// ObserveProxyRequest records a proxied request's outcome. Safe to call on
// a nil *Metrics.
func (m *Metrics) ObserveProxyRequest(service, status string, seconds float64) {
	if m == nil {
		return
	}
	m.ProxyRequestsTotal.WithLabelValues(service, status).Inc()
	m.ProxyRequestDuration.WithLabelValues(service).Observe(seconds)
}

// ObserveSchedulerTick records one scheduler tick's duration. Safe to call
// on a nil *Metrics.
func (m *Metrics) ObserveSchedulerTick(scheduler string, seconds float64) {
	if m == nil {
		return
	}
	m.SchedulerTickDuration.WithLabelValues(scheduler).Observe(seconds)
}

// RecordDrift increments the drift and disabled-service counters. Safe to
// call on a nil *Metrics.
func (m *Metrics) RecordDrift(service string) {
	if m == nil {
		return
	}
	m.SnapshotDriftTotal.WithLabelValues(service).Inc()
	m.ServiceDisabledTotal.Inc()
}

// RecordApproval increments the approvals counter for the given snapshot
// status. Safe to call on a nil *Metrics.
func (m *Metrics) RecordApproval(status string) {
	if m == nil {
		return
	}
	m.SnapshotApprovalsTotal.WithLabelValues(status).Inc()
}

// SetRegistrySize sets the route-registry size gauge. Safe to call on a
// nil *Metrics.
func (m *Metrics) SetRegistrySize(n int) {
	if m == nil {
		return
	}
	m.RegistrySize.Set(float64(n))
}
