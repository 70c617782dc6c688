package realtime

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds the manager's Prometheus metrics. A nil *Metrics disables
// collection; every method is safe on a nil receiver.
type Metrics struct {
	HandshakesTotal       *prometheus.CounterVec
	SessionsActive        prometheus.Gauge
	RevalidationsTotal    *prometheus.CounterVec
	RateLimitDenialsTotal prometheus.Counter
	RoleChangesTotal      prometheus.Counter
}

// NewMetrics creates and registers all realtime metrics.
func NewMetrics(registry prometheus.Registerer) *Metrics {
	m := &Metrics{
		HandshakesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "realtime_handshakes_total",
				Help: "Handshake attempts by outcome",
			},
			[]string{"outcome"},
		),
		SessionsActive: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "realtime_sessions_active",
				Help: "Currently authorized sessions",
			},
		),
		RevalidationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "realtime_revalidations_total",
				Help: "Periodic credential re-checks by outcome",
			},
			[]string{"outcome"},
		),
		RateLimitDenialsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "realtime_ratelimit_denials_total",
				Help: "Handshake attempts denied by the rate limiter",
			},
		),
		RoleChangesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "realtime_role_changes_total",
				Help: "Role changes applied to live sessions",
			},
		),
	}

	registry.MustRegister(
		m.HandshakesTotal,
		m.SessionsActive,
		m.RevalidationsTotal,
		m.RateLimitDenialsTotal,
		m.RoleChangesTotal,
	)

	return m
}

func (m *Metrics) handshake(outcome string) {
	if m == nil {
		return
	}
	m.HandshakesTotal.WithLabelValues(outcome).Inc()
}

func (m *Metrics) sessionOpened() {
	if m == nil {
		return
	}
	m.SessionsActive.Inc()
}

func (m *Metrics) sessionClosed() {
	if m == nil {
		return
	}
	m.SessionsActive.Dec()
}

func (m *Metrics) revalidation(outcome string) {
	if m == nil {
		return
	}
	m.RevalidationsTotal.WithLabelValues(outcome).Inc()
}

func (m *Metrics) rateLimitDenial() {
	if m == nil {
		return
	}
	m.RateLimitDenialsTotal.Inc()
}

func (m *Metrics) roleChange() {
	if m == nil {
		return
	}
	m.RoleChangesTotal.Inc()
}
