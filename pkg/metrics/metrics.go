// Package metrics exposes server counters as Prometheus collectors.
//
// One Metrics instance plugs into the connection registry as its event
// sink and into the dispatcher as its observer, and serves the
// /metrics endpoint on the side channel.
package metrics

import (
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/neel-jay/claudeUIMCP/pkg/connection"
	"github.com/neel-jay/claudeUIMCP/pkg/dispatch"
)

const namespace = "mcpd"

// Metrics bundles the server's Prometheus collectors.
type Metrics struct {
	registry *prometheus.Registry

	mu      sync.RWMutex
	allowed map[string]bool

	activeConnections prometheus.Gauge
	connectionsOpened prometheus.Counter
	connectionsClosed *prometheus.CounterVec
	messages          *prometheus.CounterVec
	relayRequests     *prometheus.CounterVec
	relayDuration     *prometheus.HistogramVec
}

// New builds a Metrics instance backed by its own registry, with the
// standard Go and process collectors included.
func New() *Metrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	m := &Metrics{
		registry: registry,
		allowed:  map[string]bool{"system": true},
		activeConnections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "connections",
			Name:      "active",
			Help:      "Currently connected clients.",
		}),
		connectionsOpened: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "connections",
			Name:      "opened_total",
			Help:      "Connections admitted since start.",
		}),
		connectionsClosed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "connections",
			Name:      "closed_total",
			Help:      "Connections removed since start.",
		}, []string{"reason"}),
		messages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "messages",
			Name:      "dispatched_total",
			Help:      "Inbound messages by dispatch outcome and type namespace.",
		}, []string{"outcome", "namespace"}),
		relayRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "relay",
			Name:      "requests_total",
			Help:      "Upstream relay requests.",
		}, []string{"route", "result"}),
		relayDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "relay",
			Name:      "request_duration_seconds",
			Help:      "Upstream relay request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route"}),
	}
	registry.MustRegister(
		m.activeConnections,
		m.connectionsOpened,
		m.connectionsClosed,
		m.messages,
		m.relayRequests,
		m.relayDuration,
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ConnectionOpened implements connection.EventSink.
func (m *Metrics) ConnectionOpened(*connection.Connection) {
	m.activeConnections.Inc()
	m.connectionsOpened.Inc()
}

// ConnectionClosed implements connection.EventSink.
func (m *Metrics) ConnectionClosed(_ *connection.Connection, reason connection.CloseReason) {
	m.activeConnections.Dec()
	m.connectionsClosed.WithLabelValues(string(reason)).Inc()
}

// AllowNamespaces adds type namespaces the dispatch counter may use as
// label values. The server seeds this from its registered handlers;
// anything a client invents lands in the shared "other" bucket.
func (m *Metrics) AllowNamespaces(names ...string) {
	m.mu.Lock()
	for _, name := range names {
		if name != "" {
			m.allowed[name] = true
		}
	}
	m.mu.Unlock()
}

// MessageDispatched implements dispatch.Observer. The type namespace is
// kept as a label instead of the full type, and only namespaces known
// through AllowNamespaces get their own label value; the rest share
// the "other" bucket.
func (m *Metrics) MessageDispatched(outcome dispatch.Outcome, msgType string) {
	ns := msgType
	if i := strings.IndexByte(msgType, '.'); i >= 0 {
		ns = msgType[:i]
	}
	if ns == "" {
		ns = "none"
	} else {
		m.mu.RLock()
		known := m.allowed[ns]
		m.mu.RUnlock()
		if !known {
			ns = "other"
		}
	}
	m.messages.WithLabelValues(string(outcome), ns).Inc()
}

// RelayCall records one upstream relay request.
func (m *Metrics) RelayCall(route, result string, duration time.Duration) {
	m.relayRequests.WithLabelValues(route, result).Inc()
	m.relayDuration.WithLabelValues(route).Observe(duration.Seconds())
}
