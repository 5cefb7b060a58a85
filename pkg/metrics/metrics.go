// Package metrics exposes publisher activity as Prometheus collectors.
//
// All methods are safe on a nil *Metrics, which is what New returns for a
// nil registerer; callers never need to check whether metrics are enabled.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "ctlbus"

// Transport labels.
const (
	TransportUnicast   = "unicast"
	TransportMulticast = "multicast"
)

// Metrics holds the publisher collectors.
type Metrics struct {
	published       *prometheus.CounterVec
	bytesSent       *prometheus.CounterVec
	publishErrors   *prometheus.CounterVec
	heartbeats      prometheus.Counter
	heartbeatErrors prometheus.Counter
	publishDuration prometheus.Histogram
	zeroCopyWait    prometheus.Histogram
	routes          prometheus.Gauge
	clients         prometheus.Gauge
}

// New creates the collectors and registers them with reg. A nil reg
// disables metrics and returns nil.
func New(reg prometheus.Registerer) (*Metrics, error) {
	if reg == nil {
		return nil, nil
	}

	m := &Metrics{
		published: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "publisher",
			Name:      "messages_sent_total",
			Help:      "Messages written to publisher sockets",
		}, []string{"transport"}),

		bytesSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "publisher",
			Name:      "bytes_sent_total",
			Help:      "Bytes written to publisher sockets",
		}, []string{"transport"}),

		publishErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "publisher",
			Name:      "errors_total",
			Help:      "Failed publish operations",
		}, []string{"transport"}),

		heartbeats: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "heartbeat",
			Name:      "sent_total",
			Help:      "Heartbeats sent",
		}),

		heartbeatErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "heartbeat",
			Name:      "errors_total",
			Help:      "Heartbeats that failed to send",
		}),

		publishDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "publisher",
			Name:      "publish_duration_seconds",
			Help:      "Duration of a publish call",
			Buckets:   prometheus.ExponentialBuckets(10e-6, 4, 10),
		}),

		zeroCopyWait: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "zerocopy",
			Name:      "wait_seconds",
			Help:      "Time spent waiting for borrowed payloads to be released",
			Buckets:   prometheus.ExponentialBuckets(10e-6, 4, 10),
		}),

		routes: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "route",
			Name:      "declared",
			Help:      "Declared multicast routes",
		}),

		clients: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "clients",
			Name:      "connected",
			Help:      "Subscriber clients seen within the liveness window",
		}),
	}

	for _, c := range []prometheus.Collector{
		m.published, m.bytesSent, m.publishErrors,
		m.heartbeats, m.heartbeatErrors,
		m.publishDuration, m.zeroCopyWait,
		m.routes, m.clients,
	} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// Sent records one message of size bytes written over transport.
func (m *Metrics) Sent(transport string, size int) {
	if m == nil {
		return
	}
	m.published.WithLabelValues(transport).Inc()
	m.bytesSent.WithLabelValues(transport).Add(float64(size))
}

// SendFailed records a failed send over transport.
func (m *Metrics) SendFailed(transport string) {
	if m == nil {
		return
	}
	m.publishErrors.WithLabelValues(transport).Inc()
}

// Heartbeat records heartbeats sent, or a failure.
func (m *Metrics) Heartbeat(copies int, err error) {
	if m == nil {
		return
	}
	m.heartbeats.Add(float64(copies))
	if err != nil {
		m.heartbeatErrors.Inc()
	}
}

// PublishDuration records the duration of one publish call.
func (m *Metrics) PublishDuration(d time.Duration) {
	if m == nil {
		return
	}
	m.publishDuration.Observe(d.Seconds())
}

// ZeroCopyWait records the wait for a borrowed payload.
func (m *Metrics) ZeroCopyWait(d time.Duration) {
	if m == nil {
		return
	}
	m.zeroCopyWait.Observe(d.Seconds())
}

// SetRoutes sets the number of declared routes.
func (m *Metrics) SetRoutes(n int) {
	if m == nil {
		return
	}
	m.routes.Set(float64(n))
}

// SetClients sets the number of live clients.
func (m *Metrics) SetClients(n int) {
	if m == nil {
		return
	}
	m.clients.Set(float64(n))
}
