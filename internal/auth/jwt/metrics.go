package jwt

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Verification outcomes used as metric labels.
const (
	resultSuccess = "success"
	resultExpired = "expired"
	resultInvalid = "invalid"
)

// Metrics holds Prometheus metrics for token operations.
type Metrics struct {
	verificationTotal    *prometheus.CounterVec
	verificationDuration *prometheus.HistogramVec
	issuedTotal          *prometheus.CounterVec
}

// NewMetrics creates token metrics and registers them with reg. A nil
// registerer leaves the collectors unregistered.
func NewMetrics(namespace string, reg prometheus.Registerer) *Metrics {
	if namespace == "" {
		namespace = "vibemuse"
	}

	m := &Metrics{
		verificationTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "jwt",
				Name:      "verification_total",
				Help:      "Total number of token verifications by result",
			},
			[]string{"type", "result"},
		),
		verificationDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "jwt",
				Name:      "verification_duration_seconds",
				Help:      "Duration of token verification in seconds",
				Buckets:   []float64{.0001, .0005, .001, .005, .01, .05},
			},
			[]string{"type"},
		),
		issuedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "jwt",
				Name:      "issued_total",
				Help:      "Total number of issued tokens by type",
			},
			[]string{"type"},
		),
	}

	if reg != nil {
		reg.MustRegister(m.verificationTotal, m.verificationDuration, m.issuedTotal)
	}
	m.init()

	return m
}

// init pre-populates label combinations so series exist from startup.
func (m *Metrics) init() {
	for _, typ := range []TokenType{TokenTypeAccess, TokenTypeRefresh} {
		for _, result := range []string{resultSuccess, resultExpired, resultInvalid} {
			m.verificationTotal.WithLabelValues(string(typ), result)
		}
		m.issuedTotal.WithLabelValues(string(typ))
	}
}

func (m *Metrics) recordVerification(typ TokenType, result string, d time.Duration) {
	if m == nil {
		return
	}
	m.verificationTotal.WithLabelValues(string(typ), result).Inc()
	m.verificationDuration.WithLabelValues(string(typ)).Observe(d.Seconds())
}

func (m *Metrics) recordIssued(typ TokenType) {
	if m == nil {
		return
	}
	m.issuedTotal.WithLabelValues(string(typ)).Inc()
}
