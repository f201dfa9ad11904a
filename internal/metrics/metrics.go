// Package metrics exposes probe and presence counters in Prometheus format.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/user/pingwatch/internal/model"
)

// Metrics groups the collectors for one process. A nil *Metrics is valid
// and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	probesSent     *prometheus.CounterVec
	probesReceived *prometheus.CounterVec
	rtt            *prometheus.HistogramVec
	scanDuration   prometheus.Histogram
	scanProbed     prometheus.Gauge
	scanUp         prometheus.Gauge
	devices        *prometheus.GaugeVec
	offlineEvents  prometheus.Counter
	notifications  *prometheus.CounterVec
	httpRequests   *prometheus.CounterVec
	httpDuration   *prometheus.HistogramVec
}

// New creates and registers the collectors on a private registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		probesSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pingwatch",
			Name:      "probes_sent_total",
			Help:      "Echo requests sent, retries included.",
		}, []string{"target"}),
		probesReceived: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pingwatch",
			Name:      "probes_received_total",
			Help:      "Matching echo replies received.",
		}, []string{"target"}),
		rtt: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "pingwatch",
			Name:      "rtt_seconds",
			Help:      "Round-trip time of successful probes.",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 14),
		}, []string{"target"}),
		scanDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "pingwatch",
			Name:      "scan_duration_seconds",
			Help:      "Duration of subnet scan cycles.",
			Buckets:   prometheus.DefBuckets,
		}),
		scanProbed: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "pingwatch",
			Name:      "scan_probed_addresses",
			Help:      "Addresses probed in the last scan cycle.",
		}),
		scanUp: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "pingwatch",
			Name:      "scan_responding_addresses",
			Help:      "Addresses that answered in the last scan cycle.",
		}),
		devices: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "pingwatch",
			Name:      "devices",
			Help:      "Tracked devices by presence status.",
		}, []string{"status"}),
		offlineEvents: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "pingwatch",
			Name:      "offline_events_closed_total",
			Help:      "Offline intervals that ended with the device returning.",
		}),
		notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pingwatch",
			Name:      "notifications_total",
			Help:      "Offline notifications by delivery result.",
		}, []string{"result"}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pingwatch",
			Name:      "http_requests_total",
			Help:      "Total number of HTTP API requests.",
		}, []string{"method", "path", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "pingwatch",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP API request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "path"}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.probesSent, m.probesReceived, m.rtt,
		m.scanDuration, m.scanProbed, m.scanUp,
		m.devices, m.offlineEvents, m.notifications,
		m.httpRequests, m.httpDuration,
	)
	return m
}

// Handler serves the registry.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// ObserveOutcome records one probe attempt.
func (m *Metrics) ObserveOutcome(o model.Outcome) {
	if m == nil {
		return
	}
	target := o.Target.String()
	m.probesSent.WithLabelValues(target).Inc()
	if o.OK() {
		m.probesReceived.WithLabelValues(target).Inc()
		m.rtt.WithLabelValues(target).Observe(o.RTT.Seconds())
	}
}

// ObserveCycle records a finished scan cycle.
func (m *Metrics) ObserveCycle(d time.Duration, probed, up int) {
	if m == nil {
		return
	}
	m.scanDuration.Observe(d.Seconds())
	m.scanProbed.Set(float64(probed))
	m.scanUp.Set(float64(up))
}

// SetDevices publishes the per-status device counts.
func (m *Metrics) SetDevices(counts map[model.Status]int) {
	if m == nil {
		return
	}
	for _, s := range []model.Status{model.StatusNew, model.StatusOnline, model.StatusUnstable, model.StatusOffline, model.StatusLost} {
		m.devices.WithLabelValues(s.String()).Set(float64(counts[s]))
	}
}

// OfflineClosed counts closed offline events.
func (m *Metrics) OfflineClosed(n int) {
	if m == nil {
		return
	}
	m.offlineEvents.Add(float64(n))
}

// Notified counts a notification attempt.
func (m *Metrics) Notified(err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.notifications.WithLabelValues(result).Inc()
}

// ObserveHTTP records one served request. path should be the route
// pattern, not the raw URL, to keep label cardinality bounded.
func (m *Metrics) ObserveHTTP(method, path string, status int, d time.Duration) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	m.httpDuration.WithLabelValues(method, path).Observe(d.Seconds())
}
