package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Outcomes recorded on the registrations counter.
const (
	OutcomeCreated  = "created"
	OutcomeUpdated  = "updated"
	OutcomeRejected = "rejected"
	OutcomeError    = "error"
)

// Metrics provides observability for the registration handshake.
type Metrics struct {
	Registrations        *prometheus.CounterVec
	RegistrationDuration prometheus.Histogram
	Fetches              *prometheus.CounterVec
	PlaceCache           *prometheus.CounterVec
}

// New registers the registration metrics with reg.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Registrations: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "libreg_registrations_total",
			Help: "Registration attempts by outcome",
		}, []string{"outcome"}),
		RegistrationDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "libreg_registration_duration_seconds",
			Help:    "Duration of the full registration handshake",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		}),
		Fetches: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "libreg_fetches_total",
			Help: "Outbound fetches by purpose and result",
		}, []string{"purpose", "result"}),
		PlaceCache: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "libreg_place_cache_total",
			Help: "Place resolution cache lookups by result",
		}, []string{"result"}),
	}
}

// ObserveRegistration records the outcome and duration of one handshake.
// Call with time.Now() at the start of the operation.
func (m *Metrics) ObserveRegistration(outcome string, start time.Time) {
	m.Registrations.WithLabelValues(outcome).Inc()
	m.RegistrationDuration.Observe(time.Since(start).Seconds())
}

// RecordFetch counts one outbound fetch.
func (m *Metrics) RecordFetch(purpose, result string) {
	m.Fetches.WithLabelValues(purpose, result).Inc()
}

// RecordPlaceCache counts one cache lookup. It satisfies the geo store's cache observer.
func (m *Metrics) RecordPlaceCache(result string) {
	m.PlaceCache.WithLabelValues(result).Inc()
}
