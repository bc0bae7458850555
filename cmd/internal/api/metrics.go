package api

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics tracks lifecycle activity. Outcome is "ok" or the error kind, so
// lost accept races show up as conflict counts rather than 5xx noise.
type Metrics struct {
	transitions   *prometheus.CounterVec
	codesRejected prometheus.Counter
}

// NewMetrics registers lifecycle metrics on reg. A nil reg uses the default
// registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		transitions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "unidash",
			Name:      "request_transitions_total",
			Help:      "Request lifecycle transitions by operation and outcome.",
		}, []string{"op", "outcome"}),
		codesRejected: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "unidash",
			Name:      "verification_codes_rejected_total",
			Help:      "Completion attempts rejected because the supplied code did not match.",
		}),
	}
}

func (m *Metrics) observe(op string, err error) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(op, outcomeLabel(err)).Inc()
}

func (m *Metrics) observeRejectedCode() {
	if m == nil {
		return
	}
	m.codesRejected.Inc()
}
