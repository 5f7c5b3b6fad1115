// Package metrics is the optional sink the decision engine reports to.
// Core logic only sees the Sink interface; Nop keeps it testable without a
// backend.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Sink receives decision-engine events.
type Sink interface {
	EngagementScored(score int)
	NudgeDispatched(nudgeType, outcome string)
	EscalationChecked(escalated bool, urgency string)
	GoalCompleted(subject string)
	SweepFinished(evaluated, failed int, took time.Duration)
	CollaboratorError(collaborator string)
}

// Nop discards every event.
type Nop struct{}

func (Nop) EngagementScored(int)                  {}
func (Nop) NudgeDispatched(string, string)        {}
func (Nop) EscalationChecked(bool, string)        {}
func (Nop) GoalCompleted(string)                  {}
func (Nop) SweepFinished(int, int, time.Duration) {}
func (Nop) CollaboratorError(string)              {}

// Prometheus records events as Prometheus metrics on its own registry.
type Prometheus struct {
	reg *prometheus.Registry

	engagementScore   prometheus.Histogram
	nudges            *prometheus.CounterVec
	escalations       *prometheus.CounterVec
	goalsCompleted    *prometheus.CounterVec
	sweepDuration     prometheus.Histogram
	sweepStudents     *prometheus.CounterVec
	collaboratorError *prometheus.CounterVec
}

// NewPrometheus registers the engine metrics on a fresh registry.
func NewPrometheus() *Prometheus {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)

	return &Prometheus{
		reg: reg,

		engagementScore: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "companion_engagement_score",
			Help:    "Distribution of computed engagement scores",
			Buckets: prometheus.LinearBuckets(0, 10, 11),
		}),

		nudges: f.NewCounterVec(prometheus.CounterOpts{
			Name: "companion_nudges_total",
			Help: "Nudge dispatch attempts by type and outcome",
		}, []string{"type", "outcome"}),

		escalations: f.NewCounterVec(prometheus.CounterOpts{
			Name: "companion_escalation_checks_total",
			Help: "Escalation checks by result and urgency",
		}, []string{"escalated", "urgency"}),

		goalsCompleted: f.NewCounterVec(prometheus.CounterOpts{
			Name: "companion_goals_completed_total",
			Help: "Learning goals completed by subject",
		}, []string{"subject"}),

		sweepDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "companion_sweep_duration_seconds",
			Help:    "Engagement sweep wall time",
			Buckets: []float64{0.1, 0.5, 1, 5, 15, 60, 300, 900},
		}),

		sweepStudents: f.NewCounterVec(prometheus.CounterOpts{
			Name: "companion_sweep_students_total",
			Help: "Students processed by the engagement sweep",
		}, []string{"result"}),

		collaboratorError: f.NewCounterVec(prometheus.CounterOpts{
			Name: "companion_collaborator_errors_total",
			Help: "Failed calls to external collaborators",
		}, []string{"collaborator"}),
	}
}

func (p *Prometheus) EngagementScored(score int) {
	p.engagementScore.Observe(float64(score))
}

func (p *Prometheus) NudgeDispatched(nudgeType, outcome string) {
	p.nudges.WithLabelValues(nudgeType, outcome).Inc()
}

func (p *Prometheus) EscalationChecked(escalated bool, urgency string) {
	label := "false"
	if escalated {
		label = "true"
	}
	p.escalations.WithLabelValues(label, urgency).Inc()
}

func (p *Prometheus) GoalCompleted(subject string) {
	p.goalsCompleted.WithLabelValues(subject).Inc()
}

func (p *Prometheus) SweepFinished(evaluated, failed int, took time.Duration) {
	p.sweepDuration.Observe(took.Seconds())
	p.sweepStudents.WithLabelValues("ok").Add(float64(evaluated - failed))
	p.sweepStudents.WithLabelValues("failed").Add(float64(failed))
}

func (p *Prometheus) CollaboratorError(collaborator string) {
	p.collaboratorError.WithLabelValues(collaborator).Inc()
}

// Registry exposes the underlying registry, mainly for tests.
func (p *Prometheus) Registry() *prometheus.Registry {
	return p.reg
}

// Handler serves the registry in the Prometheus exposition format.
func (p *Prometheus) Handler() http.Handler {
	return promhttp.HandlerFor(p.reg, promhttp.HandlerOpts{})
}
