package observability

import (
	"context"
	"net/http"

	"github.com/neurosurgery/actionbridge/pkg/domain"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Namespace prefixes every metric name.
const Namespace = "actionbridge"

// Metrics holds the bridge collectors on a dedicated registry.
type Metrics struct {
	registry *prometheus.Registry

	actions        *prometheus.CounterVec
	actionDuration *prometheus.HistogramVec
	stepVisits     *prometheus.CounterVec
	completed      prometheus.Counter
	sessions       prometheus.Gauge
}

// NewMetrics creates the collectors. Go runtime and process collectors are
// registered alongside them.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		actions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Name:      "actions_total",
				Help:      "Action requests processed, by action and outcome.",
			},
			[]string{"action", "outcome"},
		),
		actionDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: Namespace,
				Name:      "action_duration_seconds",
				Help:      "Time from request to result, host call included.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"action"},
		),
		stepVisits: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Name:      "step_visits_total",
				Help:      "Step entries, by procedure and step.",
			},
			[]string{"procedure_id", "step_id"},
		),
		completed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "procedures_completed_total",
			Help:      "Sessions that reached a terminal step.",
		}),
		sessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "sessions_active",
			Help:      "Agent sessions currently connected.",
		}),
	}
	m.registry.MustRegister(
		m.actions,
		m.actionDuration,
		m.stepVisits,
		m.completed,
		m.sessions,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the metrics in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// SessionOpened and SessionClosed track connected sessions.
func (m *Metrics) SessionOpened() { m.sessions.Inc() }
func (m *Metrics) SessionClosed() { m.sessions.Dec() }

// Hooks returns lifecycle hooks that feed the collectors.
func (m *Metrics) Hooks() domain.LifecycleHooks {
	return domain.LifecycleHooks{
		OnActionResult: func(_ context.Context, e *domain.ActionEvent) {
			m.actions.WithLabelValues(e.Action, string(e.Outcome)).Inc()
			m.actionDuration.WithLabelValues(e.Action).Observe(e.Duration.Seconds())
		},
		OnStepEnter: func(_ context.Context, e *domain.StepEvent) {
			m.stepVisits.WithLabelValues(e.ProcedureID, e.StepID).Inc()
			if e.Terminal {
				m.completed.Inc()
			}
		},
	}
}
