package grpc

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// requestMetrics counts control-plane requests by kind. A nil value records
// nothing.
type requestMetrics struct {
	requests *prometheus.CounterVec
	duration *prometheus.HistogramVec
	inflight prometheus.Gauge
}

func newRequestMetrics(reg prometheus.Registerer) *requestMetrics {
	m := &requestMetrics{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "dsf",
			Subsystem: "control",
			Name:      "requests_total",
			Help:      "Control-plane requests by kind and outcome.",
		}, []string{"kind", "outcome"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "dsf",
			Subsystem: "control",
			Name:      "request_duration_seconds",
			Help:      "Time to answer a control-plane request.",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 4, 10),
		}, []string{"kind"}),
		inflight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "dsf",
			Subsystem: "control",
			Name:      "requests_in_flight",
			Help:      "Control-plane requests currently being handled.",
		}),
	}
	reg.MustRegister(m.requests, m.duration, m.inflight)
	return m
}

func (m *requestMetrics) observe(kind, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(kind, outcome).Inc()
	if d > 0 {
		m.duration.WithLabelValues(kind).Observe(d.Seconds())
	}
}

func (m *requestMetrics) begin() {
	if m != nil {
		m.inflight.Inc()
	}
}

func (m *requestMetrics) end() {
	if m != nil {
		m.inflight.Dec()
	}
}
