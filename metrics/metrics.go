// Package metrics exports verification flow transitions to Prometheus.
package metrics

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/open-rails/phoneverify/core"
)

const namespace = "phoneverify"

// FlowMetrics is a core.FlowEventLogger that counts transitions and failures.
type FlowMetrics struct {
	transitions *prometheus.CounterVec
	failures    *prometheus.CounterVec
	verified    prometheus.Counter
}

// New creates the collectors and registers them on reg. A nil reg skips
// registration.
func New(reg prometheus.Registerer) (*FlowMetrics, error) {
	m := &FlowMetrics{
		transitions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "flow",
				Name:      "transitions_total",
				Help:      "Number of verification flow state transitions",
			},
			[]string{"from", "to"},
		),
		failures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "flow",
				Name:      "failures_total",
				Help:      "Number of verification flow transitions caused by an error, by error code",
			},
			[]string{"reason"},
		),
		verified: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "flow",
				Name:      "verified_total",
				Help:      "Number of flows that reached verified",
			},
		),
	}
	if reg == nil {
		return m, nil
	}
	for _, c := range []prometheus.Collector{m.transitions, m.failures, m.verified} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// MustNew is New that panics on a registration error.
func MustNew(reg prometheus.Registerer) *FlowMetrics {
	m, err := New(reg)
	if err != nil {
		panic(err)
	}
	return m
}

func (m *FlowMetrics) LogFlowEvent(_ context.Context, e core.FlowEvent) error {
	m.transitions.WithLabelValues(e.From.String(), e.To.String()).Inc()
	if e.Reason != "" {
		m.failures.WithLabelValues(e.Reason).Inc()
	}
	if e.To == core.StateVerified {
		m.verified.Inc()
	}
	return nil
}
