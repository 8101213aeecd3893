// Package metrics holds the Prometheus instruments of the relay.
// A nil *Metrics is valid and records nothing.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "relay"

type Metrics struct {
	connections     prometheus.Gauge
	published       *prometheus.CounterVec
	delivered       prometheus.Counter
	dropped         *prometheus.CounterVec
	busFallbacks    prometheus.Counter
	callTransitions *prometheus.CounterVec
	callRejections  *prometheus.CounterVec
}

// New registers the instruments on reg. A nil reg creates unregistered instruments.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		connections: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "connections",
			Help:      "Live client connections on this process.",
		}),
		published: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_published_total",
			Help:      "Envelopes published to the event bus.",
		}, []string{"event", "backing"}),
		delivered: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_delivered_total",
			Help:      "Frames handed to a local connection.",
		}),
		dropped: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_dropped_total",
			Help:      "Frames that could not be handed to a local connection.",
		}, []string{"reason"}),
		busFallbacks: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bus_fallbacks_total",
			Help:      "Publishes delivered locally because the broker was unreachable.",
		}),
		callTransitions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "call_transitions_total",
			Help:      "Call sessions entering a status.",
		}, []string{"status"}),
		callRejections: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "call_rejections_total",
			Help:      "Call signaling requests answered with call.error.",
		}, []string{"reason"}),
	}
}

func (m *Metrics) ConnectionOpened() {
	if m == nil {
		return
	}
	m.connections.Inc()
}

func (m *Metrics) ConnectionClosed() {
	if m == nil {
		return
	}
	m.connections.Dec()
}

func (m *Metrics) Published(event, backing string) {
	if m == nil {
		return
	}
	m.published.WithLabelValues(event, backing).Inc()
}

func (m *Metrics) Delivered() {
	if m == nil {
		return
	}
	m.delivered.Inc()
}

func (m *Metrics) Dropped(reason string) {
	if m == nil {
		return
	}
	m.dropped.WithLabelValues(reason).Inc()
}

func (m *Metrics) BusFallback() {
	if m == nil {
		return
	}
	m.busFallbacks.Inc()
}

func (m *Metrics) CallTransition(status string) {
	if m == nil {
		return
	}
	m.callTransitions.WithLabelValues(status).Inc()
}

func (m *Metrics) CallRejected(reason string) {
	if m == nil {
		return
	}
	m.callRejections.WithLabelValues(reason).Inc()
}
