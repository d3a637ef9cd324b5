// store/metrics.go
package store

import "github.com/prometheus/client_golang/prometheus"

// Metrics counts store activity. A nil *Metrics records nothing.
type Metrics struct {
	mutations *prometheus.CounterVec
	rollbacks *prometheus.CounterVec
	stale     *prometheus.CounterVec
	inflight  prometheus.Gauge
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		mutations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "myworld",
			Subsystem: "store",
			Name:      "mutations_total",
			Help:      "Optimistic mutations applied, by operation.",
		}, []string{"op"}),
		rollbacks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "myworld",
			Subsystem: "store",
			Name:      "rollbacks_total",
			Help:      "Mutations rolled back after a failed remote call.",
		}, []string{"op"}),
		stale: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "myworld",
			Subsystem: "store",
			Name:      "stale_responses_total",
			Help:      "Remote responses discarded because a newer write superseded them.",
		}, []string{"op"}),
		inflight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "myworld",
			Subsystem: "store",
			Name:      "inflight_requests",
			Help:      "Remote calls currently in flight.",
		}),
	}
	reg.MustRegister(m.mutations, m.rollbacks, m.stale, m.inflight)
	return m
}

func (m *Metrics) mutation(op string) {
	if m != nil {
		m.mutations.WithLabelValues(op).Inc()
	}
}

func (m *Metrics) rollback(op string) {
	if m != nil {
		m.rollbacks.WithLabelValues(op).Inc()
	}
}

func (m *Metrics) staleResponse(op string) {
	if m != nil {
		m.stale.WithLabelValues(op).Inc()
	}
}

func (m *Metrics) started() {
	if m != nil {
		m.inflight.Inc()
	}
}

func (m *Metrics) finished() {
	if m != nil {
		m.inflight.Dec()
	}
}
