// Package metrics exposes engine counters and latencies to Prometheus.
package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics records what the trigger matcher, executor and scheduler do.
type Metrics interface {
	IncEventsReceived(trigger string)
	IncEnrollmentOutcome(outcome string)
	IncStepExecuted(step, status string)
	ObserveStepDuration(step string, durationSeconds float64)
	IncEnrollmentFinished(status string)
	ObserveDueBatch(size int)
}

// Noop implements Metrics without emitting anything.
type Noop struct{}

func (Noop) IncEventsReceived(string)            {}
func (Noop) IncEnrollmentOutcome(string)         {}
func (Noop) IncStepExecuted(string, string)      {}
func (Noop) ObserveStepDuration(string, float64) {}
func (Noop) IncEnrollmentFinished(string)        {}
func (Noop) ObserveDueBatch(int)                 {}

// Prom implements Metrics backed by Prometheus collectors.
type Prom struct {
	eventsReceived      *prometheus.CounterVec
	enrollmentOutcomes  *prometheus.CounterVec
	stepsExecuted       *prometheus.CounterVec
	stepDuration        *prometheus.HistogramVec
	enrollmentsFinished *prometheus.CounterVec
	dueBatch            prometheus.Histogram
	once                sync.Once
}

func NewProm(namespace string) *Prom {
	p := &Prom{
		eventsReceived: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_received_total",
			Help:      "Business events received by trigger type",
		}, []string{"trigger"}),
		enrollmentOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "enrollment_outcomes_total",
			Help:      "Enrollment attempts by outcome (enrolled, skipped, superseded, error)",
		}, []string{"outcome"}),
		stepsExecuted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "steps_executed_total",
			Help:      "Workflow steps run by step label and execution status",
		}, []string{"step", "status"}),
		stepDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "step_duration_seconds",
			Help:      "Time spent running a workflow step",
			Buckets:   prometheus.DefBuckets,
		}, []string{"step"}),
		enrollmentsFinished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "enrollments_finished_total",
			Help:      "Enrollments reaching a terminal status",
		}, []string{"status"}),
		dueBatch: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "scheduler_due_batch_size",
			Help:      "Due enrollments picked up per scheduler scan",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 10),
		}),
	}
	p.register()

	return p
}

func (p *Prom) register() {
	p.once.Do(func() {
		prometheus.MustRegister(
			p.eventsReceived,
			p.enrollmentOutcomes,
			p.stepsExecuted,
			p.stepDuration,
			p.enrollmentsFinished,
			p.dueBatch,
		)
	})
}

func (p *Prom) IncEventsReceived(trigger string) {
	p.eventsReceived.WithLabelValues(trigger).Inc()
}

func (p *Prom) IncEnrollmentOutcome(outcome string) {
	p.enrollmentOutcomes.WithLabelValues(outcome).Inc()
}

func (p *Prom) IncStepExecuted(step, status string) {
	p.stepsExecuted.WithLabelValues(step, status).Inc()
}

func (p *Prom) ObserveStepDuration(step string, durationSeconds float64) {
	p.stepDuration.WithLabelValues(step).Observe(durationSeconds)
}

func (p *Prom) IncEnrollmentFinished(status string) {
	p.enrollmentsFinished.WithLabelValues(status).Inc()
}

func (p *Prom) ObserveDueBatch(size int) {
	p.dueBatch.Observe(float64(size))
}

// Handler returns an HTTP handler for /metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}
