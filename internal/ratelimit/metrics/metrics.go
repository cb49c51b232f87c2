package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	DecisionAllowed = "allowed"
	DecisionLimited = "limited"
	DecisionError   = "error"
)

// Metrics tracks rate limit decisions and limiter health.
type Metrics struct {
	Decisions *prometheus.CounterVec
	Degraded  prometheus.Gauge
}

func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Decisions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "libreg_ratelimit_decisions_total",
			Help: "Rate limit decisions by outcome",
		}, []string{"decision"}),
		Degraded: factory.NewGauge(prometheus.GaugeOpts{
			Name: "libreg_ratelimit_degraded",
			Help: "1 while the shared limiter is bypassed for the in-memory fallback",
		}),
	}
}

func (m *Metrics) RecordDecision(decision string) {
	m.Decisions.WithLabelValues(decision).Inc()
}

func (m *Metrics) SetDegraded(degraded bool) {
	if degraded {
		m.Degraded.Set(1)
		return
	}
	m.Degraded.Set(0)
}
