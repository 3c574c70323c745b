// Package metrics exposes relay counters to Prometheus.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "sugarchat"

// Metrics holds relay collectors. A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	clients        prometheus.Gauge
	channels       *prometheus.GaugeVec
	messages       *prometheus.CounterVec
	pendingDropped prometheus.Counter
	eventsDropped  prometheus.Counter
	rateLimited    prometheus.Counter
}

// New registers the relay collectors on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		clients: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "connected_buddies",
			Help:      "Buddies currently connected to the relay.",
		}),
		channels: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "open_channels",
			Help:      "Text channels currently open, by kind.",
		}, []string{"kind"}),
		messages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_relayed_total",
			Help:      "Messages relayed, by channel kind.",
		}, []string{"kind"}),
		pendingDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pending_dropped_total",
			Help:      "Unacknowledged messages dropped because a pending queue was full.",
		}),
		eventsDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_dropped_total",
			Help:      "Events dropped because a buddy was not reading.",
		}),
		rateLimited: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rate_limited_total",
			Help:      "Sends rejected by the per-connection rate limit.",
		}),
	}
	m.registry.MustRegister(
		m.clients,
		m.channels,
		m.messages,
		m.pendingDropped,
		m.eventsDropped,
		m.rateLimited,
		prometheus.NewGoCollector(),
	)
	return m
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.HandlerFor(prometheus.NewRegistry(), promhttp.HandlerOpts{})
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) ClientConnected() {
	if m != nil {
		m.clients.Inc()
	}
}

func (m *Metrics) ClientDisconnected() {
	if m != nil {
		m.clients.Dec()
	}
}

func (m *Metrics) ChannelOpened(kind string) {
	if m != nil {
		m.channels.WithLabelValues(kind).Inc()
	}
}

func (m *Metrics) ChannelClosed(kind string) {
	if m != nil {
		m.channels.WithLabelValues(kind).Dec()
	}
}

func (m *Metrics) MessageRelayed(kind string) {
	if m != nil {
		m.messages.WithLabelValues(kind).Inc()
	}
}

func (m *Metrics) PendingDropped() {
	if m != nil {
		m.pendingDropped.Inc()
	}
}

func (m *Metrics) EventDropped() {
	if m != nil {
		m.eventsDropped.Inc()
	}
}

func (m *Metrics) RateLimited() {
	if m != nil {
		m.rateLimited.Inc()
	}
}
