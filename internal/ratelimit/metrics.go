package ratelimit

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds Prometheus metrics for rate limiting.
type Metrics struct {
	decisionsTotal   *prometheus.CounterVec
	storeErrorsTotal *prometheus.CounterVec
}

// NewMetrics creates rate limit metrics registered with reg. A nil
// registerer leaves them unregistered.
func NewMetrics(namespace string, reg prometheus.Registerer) *Metrics {
	if namespace == "" {
		namespace = "vibemuse"
	}

	m := &Metrics{
		decisionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "ratelimit",
				Name:      "decisions_total",
				Help:      "Total number of rate limit decisions by limiter and outcome",
			},
			[]string{"limiter", "outcome"},
		),
		storeErrorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "ratelimit",
				Name:      "store_errors_total",
				Help:      "Total number of rate limit store failures",
			},
			[]string{"limiter"},
		),
	}

	if reg != nil {
		reg.MustRegister(m.decisionsTotal, m.storeErrorsTotal)
	}
	return m
}

func (m *Metrics) recordDecision(limiter string, allowed bool) {
	if m == nil {
		return
	}
	outcome := "allowed"
	if !allowed {
		outcome = "denied"
	}
	m.decisionsTotal.WithLabelValues(limiter, outcome).Inc()
}

func (m *Metrics) recordStoreError(limiter string) {
	if m == nil {
		return
	}
	m.storeErrorsTotal.WithLabelValues(limiter).Inc()
}
