package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "tournament_engine"

// Metrics groups the engine's Prometheus collectors. A nil *Metrics is valid
// and records nothing, which keeps wiring optional in tests.
type Metrics struct {
	jobs                *prometheus.CounterVec
	roundsCreated       prometheus.Counter
	tournamentsFinished *prometheus.CounterVec
	invariantViolations prometheus.Counter
	battleTransitions   *prometheus.CounterVec
	publishFailures     *prometheus.CounterVec
}

func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		jobs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_total",
			Help:      "Background jobs processed, by job type and result.",
		}, []string{"type", "result"}),
		roundsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rounds_created_total",
			Help:      "Bracket rounds created, including round 1.",
		}),
		tournamentsFinished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tournaments_finalized_total",
			Help:      "Tournaments moved to completed, by trigger.",
		}, []string{"source"}),
		invariantViolations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bracket_invariant_violations_total",
			Help:      "Completed rounds that produced no winners.",
		}),
		battleTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "battle_transitions_total",
			Help:      "Battle status transitions accepted, by target status.",
		}, []string{"status"}),
		publishFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "event_publish_failures_total",
			Help:      "Event deliveries that failed, by publisher.",
		}, []string{"publisher"}),
	}

	reg.MustRegister(
		m.jobs,
		m.roundsCreated,
		m.tournamentsFinished,
		m.invariantViolations,
		m.battleTransitions,
		m.publishFailures,
	)
	return m
}

func (m *Metrics) JobProcessed(jobType, result string) {
	if m == nil {
		return
	}
	m.jobs.WithLabelValues(jobType, result).Inc()
}

func (m *Metrics) RoundCreated() {
	if m == nil {
		return
	}
	m.roundsCreated.Inc()
}

func (m *Metrics) TournamentFinalized(source string) {
	if m == nil {
		return
	}
	m.tournamentsFinished.WithLabelValues(source).Inc()
}

func (m *Metrics) InvariantViolation() {
	if m == nil {
		return
	}
	m.invariantViolations.Inc()
}

func (m *Metrics) BattleTransition(status string) {
	if m == nil {
		return
	}
	m.battleTransitions.WithLabelValues(status).Inc()
}

func (m *Metrics) PublishFailed(publisher string) {
	if m == nil {
		return
	}
	m.publishFailures.WithLabelValues(publisher).Inc()
}
