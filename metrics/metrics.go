// Package metrics exposes Prometheus instruments for the validation engine.
// A nil *Metrics is valid and records nothing.
package metrics

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Run outcomes used as the "outcome" label.
const (
	OutcomeApplied   = "applied"
	OutcomeDiscarded = "discarded"
	OutcomeFailed    = "failed"
)

// Metrics groups the engine's collectors.
type Metrics struct {
	scheduled prometheus.Counter
	runs      *prometheus.CounterVec
	fanOut    prometheus.Counter
	pending   prometheus.Gauge
	latency   prometheus.Histogram
}

// New creates the collectors under namespace and registers them with reg.
// A nil reg leaves them unregistered. Registering twice with the same
// registry returns the already registered collectors.
func New(reg prometheus.Registerer, namespace string) (*Metrics, error) {
	m := &Metrics{
		scheduled: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "validation", Name: "scheduled_total",
			Help: "Validation runs scheduled by field edits, loads and fan-out.",
		}),
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "validation", Name: "runs_total",
			Help: "Completed validation runs by outcome.",
		}, []string{"outcome"}),
		fanOut: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "validation", Name: "fanout_total",
			Help: "Dependent fields revalidated because a related field changed.",
		}),
		pending: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "validation", Name: "pending_fields",
			Help: "Fields with an unsettled validation cycle.",
		}),
		latency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace, Subsystem: "validation", Name: "settle_seconds",
			Help:    "Time from the first edit of a cycle until its result was applied.",
			Buckets: prometheus.ExponentialBuckets(0.001, 4, 8),
		}),
	}
	if reg == nil {
		return m, nil
	}
	if err := register(reg, &m.scheduled); err != nil {
		return nil, err
	}
	if err := register(reg, &m.runs); err != nil {
		return nil, err
	}
	if err := register(reg, &m.fanOut); err != nil {
		return nil, err
	}
	if err := register(reg, &m.pending); err != nil {
		return nil, err
	}
	if err := register(reg, &m.latency); err != nil {
		return nil, err
	}
	return m, nil
}

func register[C prometheus.Collector](reg prometheus.Registerer, c *C) error {
	if err := reg.Register(*c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(C); ok {
				*c = existing
				return nil
			}
		}
		return err
	}
	return nil
}

// Scheduled records a scheduled run.
func (m *Metrics) Scheduled() {
	if m == nil {
		return
	}
	m.scheduled.Inc()
}

// Settled records an applied result and how long the field was pending.
func (m *Metrics) Settled(waited time.Duration) {
	if m == nil {
		return
	}
	m.runs.WithLabelValues(OutcomeApplied).Inc()
	m.latency.Observe(waited.Seconds())
}

// Discarded records a result dropped because a newer run superseded it.
func (m *Metrics) Discarded() {
	if m == nil {
		return
	}
	m.runs.WithLabelValues(OutcomeDiscarded).Inc()
}

// Failed records a run whose suite reported an error.
func (m *Metrics) Failed() {
	if m == nil {
		return
	}
	m.runs.WithLabelValues(OutcomeFailed).Inc()
}

// FanOut records n dependent fields scheduled by a related-field change.
func (m *Metrics) FanOut(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.fanOut.Add(float64(n))
}

// SetPending sets the number of fields with an unsettled cycle.
func (m *Metrics) SetPending(n int) {
	if m == nil {
		return
	}
	m.pending.Set(float64(n))
}
