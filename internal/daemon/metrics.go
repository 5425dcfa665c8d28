package daemon

import (
	"github.com/prometheus/client_golang/prometheus"
)

// engineMetrics exposes directory sizes and data traffic. A nil value
// records nothing.
type engineMetrics struct {
	published prometheus.Counter
	received  *prometheus.CounterVec
	dropped   prometheus.Counter
}

func newEngineMetrics(reg prometheus.Registerer, e *Engine) *engineMetrics {
	if reg == nil {
		return nil
	}

	gauge := func(name, help string, f func() float64) prometheus.GaugeFunc {
		return prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: "dsf",
			Subsystem: "daemon",
			Name:      name,
			Help:      help,
		}, f)
	}

	m := &engineMetrics{
		published: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "dsf",
			Subsystem: "daemon",
			Name:      "data_published_total",
			Help:      "Data pages published by services this node originates.",
		}),
		received: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "dsf",
			Subsystem: "daemon",
			Name:      "data_received_total",
			Help:      "Data pages received from the network by outcome.",
		}, []string{"outcome"}),
		dropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "dsf",
			Subsystem: "daemon",
			Name:      "stream_dropped_total",
			Help:      "Data pages not delivered to a slow stream.",
		}),
	}

	reg.MustRegister(
		m.published, m.received, m.dropped,
		gauge("peers", "Peers in the peer directory.", func() float64 {
			return float64(e.peers.Len())
		}),
		gauge("connected_peers", "Peers with an open connection.", func() float64 {
			return float64(len(e.net.ConnectedPeers()))
		}),
		gauge("services", "Services in the service directory.", func() float64 {
			return float64(e.services.Len())
		}),
		gauge("subscriptions", "Entries in the subscription ledger.", func() float64 {
			return float64(e.ledger.Total())
		}),
	)
	return m
}

func (m *engineMetrics) incPublished() {
	if m != nil {
		m.published.Inc()
	}
}

func (m *engineMetrics) incReceived(outcome string) {
	if m != nil {
		m.received.WithLabelValues(outcome).Inc()
	}
}

func (m *engineMetrics) incDropped() {
	if m != nil {
		m.dropped.Inc()
	}
}
