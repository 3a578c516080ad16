package observability

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/aretw0/canopy/pkg/domain"
)

// Metrics holds the engine's Prometheus collectors.
type Metrics struct {
	StateVisits        *prometheus.CounterVec
	Generations        *prometheus.CounterVec
	GenerationDuration prometheus.Histogram
	StepsClosed        *prometheus.CounterVec
	Runs               *prometheus.CounterVec
}

// NewMetrics creates the collectors and registers them on reg.
// A nil reg leaves them unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		StateVisits: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "canopy_state_visits_total",
				Help: "Total number of state machine entries, by state path.",
			},
			[]string{"path"},
		),
		Generations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "canopy_generations_total",
				Help: "Total number of completion attempts, by outcome.",
			},
			[]string{"outcome"},
		),
		GenerationDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "canopy_generation_duration_seconds",
				Help:    "Duration of completion attempts.",
				Buckets: prometheus.ExponentialBuckets(0.25, 2, 8),
			},
		),
		StepsClosed: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "canopy_steps_closed_total",
				Help: "Total number of closed steps, by outcome.",
			},
			[]string{"outcome"},
		),
		Runs: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "canopy_runs_total",
				Help: "Total number of finished runs, by status.",
			},
			[]string{"status"},
		),
	}
	if reg != nil {
		reg.MustRegister(m.StateVisits, m.Generations, m.GenerationDuration, m.StepsClosed, m.Runs)
	}
	return m
}

// Hooks returns lifecycle hooks that record into m.
func (m *Metrics) Hooks() domain.LifecycleHooks {
	return domain.LifecycleHooks{
		OnStateEnter: func(_ context.Context, e *domain.StateEvent) {
			m.StateVisits.WithLabelValues(e.Path).Inc()
		},
		OnGenerate: func(_ context.Context, e *domain.GenerateEvent) {
			outcome := "ok"
			if e.Err != nil {
				outcome = "error"
			}
			m.Generations.WithLabelValues(outcome).Inc()
			m.GenerationDuration.Observe(e.Duration.Seconds())
		},
		OnStepClosed: func(_ context.Context, e *domain.StepEvent) {
			outcome := "ok"
			if e.Step != nil && e.Step.Failed() {
				outcome = "failed"
			}
			m.StepsClosed.WithLabelValues(outcome).Inc()
		},
		OnRunEnd: func(_ context.Context, e *domain.RunEvent) {
			m.Runs.WithLabelValues(string(e.Status)).Inc()
		},
	}
}
