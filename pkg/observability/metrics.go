package observability

import (
	"context"
	"net/http"

	"github.com/aretw0/stageflow/pkg/domain"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the Prometheus collectors fed by engine hooks.
type Metrics struct {
	Turns             *prometheus.CounterVec
	Transitions       *prometheus.CounterVec
	Rejections        *prometheus.CounterVec
	UpstreamFailures  *prometheus.CounterVec
	DecisionDuration  *prometheus.HistogramVec
	TurnDuration      prometheus.Histogram
	ActiveStageVisits *prometheus.CounterVec
}

// NewMetrics creates the collectors and registers them on reg.
// A nil reg uses prometheus.DefaultRegisterer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &Metrics{
		Turns: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "stageflow_turns_total",
				Help: "Total number of completed turns",
			},
			[]string{"status"}, // CONTINUE, ENDED, ERROR
		),
		Transitions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "stageflow_transitions_total",
				Help: "Total number of accepted stage transitions",
			},
			[]string{"from", "to"},
		),
		Rejections: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "stageflow_transition_rejections_total",
				Help: "Total number of decider proposals replaced by a substitute stage",
			},
			[]string{"stage"},
		),
		UpstreamFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "stageflow_upstream_failures_total",
				Help: "Total number of failed decider calls",
			},
			[]string{"stage"},
		),
		DecisionDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "stageflow_decision_duration_seconds",
				Help:    "Decider call duration in seconds",
				Buckets: []float64{0.05, 0.1, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"stage"},
		),
		TurnDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "stageflow_turn_duration_seconds",
				Help:    "Turn duration in seconds",
				Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10, 30},
			},
		),
		ActiveStageVisits: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "stageflow_stage_visits_total",
				Help: "Total number of stage entries",
			},
			[]string{"stage_id"},
		),
	}
	reg.MustRegister(m.Turns, m.Transitions, m.Rejections, m.UpstreamFailures,
		m.DecisionDuration, m.TurnDuration, m.ActiveStageVisits)
	return m
}

// Hooks returns lifecycle hooks that record into m.
func (m *Metrics) Hooks() domain.LifecycleHooks {
	return domain.LifecycleHooks{
		OnStageEnter: func(_ context.Context, e *domain.StageEvent) {
			m.ActiveStageVisits.WithLabelValues(e.StageID).Inc()
		},
		OnDecision: func(_ context.Context, e *domain.DecisionEvent) {
			m.DecisionDuration.WithLabelValues(e.StageID).Observe(e.Duration.Seconds())
			m.Transitions.WithLabelValues(e.StageID, e.Accepted).Inc()
		},
		OnTransitionRejected: func(_ context.Context, e *domain.DecisionEvent) {
			m.DecisionDuration.WithLabelValues(e.StageID).Observe(e.Duration.Seconds())
			m.Rejections.WithLabelValues(e.StageID).Inc()
			m.Transitions.WithLabelValues(e.StageID, e.Accepted).Inc()
		},
		OnUpstreamFailure: func(_ context.Context, e *domain.DecisionEvent) {
			m.DecisionDuration.WithLabelValues(e.StageID).Observe(e.Duration.Seconds())
			m.UpstreamFailures.WithLabelValues(e.StageID).Inc()
		},
		OnTurnComplete: func(_ context.Context, e *domain.TurnEvent) {
			m.Turns.WithLabelValues(string(e.Status)).Inc()
			m.TurnDuration.Observe(e.Duration.Seconds())
		},
	}
}

// Handler serves the metrics gathered by g. A nil g uses prometheus.DefaultGatherer.
func Handler(g prometheus.Gatherer) http.Handler {
	if g == nil {
		g = prometheus.DefaultGatherer
	}
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
