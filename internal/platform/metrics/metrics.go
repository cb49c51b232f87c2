package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds process-wide HTTP metrics.
type Metrics struct {
	RequestLatency *prometheus.HistogramVec
}

// New creates and registers HTTP metrics on reg. Pass prometheus.DefaultRegisterer
// in production and a fresh registry in tests.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		RequestLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "libreg_http_request_duration_seconds",
			Help:    "Latency of HTTP requests by route, method and status",
			Buckets: prometheus.DefBuckets,
		}, []string{"route", "method", "status"}),
	}
}

// ObserveRequest records one request's latency.
func (m *Metrics) ObserveRequest(route, method, status string, elapsed time.Duration) {
	m.RequestLatency.WithLabelValues(route, method, status).Observe(elapsed.Seconds())
}
