package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func withTestRegistry(t *testing.T) *prometheus.Registry {
	t.Helper()

	origReg := prometheus.DefaultRegisterer
	origGather := prometheus.DefaultGatherer
	reg := prometheus.NewRegistry()
	prometheus.DefaultRegisterer = reg
	prometheus.DefaultGatherer = reg

	t.Cleanup(func() {
		prometheus.DefaultRegisterer = origReg
		prometheus.DefaultGatherer = origGather
	})

	return reg
}

func TestNoopMetrics(t *testing.T) {
	var m Metrics = Noop{}

	m.IncEventsReceived("client_added")
	m.IncEnrollmentOutcome("enrolled")
	m.IncStepExecuted("send_sms", "executed")
	m.ObserveStepDuration("send_sms", 0.2)
	m.IncEnrollmentFinished("completed")
	m.ObserveDueBatch(3)
}

func TestPromMetrics(t *testing.T) {
	reg := withTestRegistry(t)
	m := NewProm("automation")

	m.IncEventsReceived("appointment_completed")
	m.IncEnrollmentOutcome("skipped")
	m.IncStepExecuted("send_sms", "failed")
	m.IncStepExecuted("send_sms", "failed")
	m.ObserveStepDuration("send_sms", 0.05)
	m.IncEnrollmentFinished("completed")
	m.ObserveDueBatch(4)

	families, err := reg.Gather()
	require.NoError(t, err)

	assert.Equal(t, 1.0, counterValue(families, "automation_events_received_total", map[string]string{"trigger": "appointment_completed"}))
	assert.Equal(t, 1.0, counterValue(families, "automation_enrollment_outcomes_total", map[string]string{"outcome": "skipped"}))
	assert.Equal(t, 2.0, counterValue(families, "automation_steps_executed_total", map[string]string{"step": "send_sms", "status": "failed"}))
	assert.Equal(t, 1.0, counterValue(families, "automation_enrollments_finished_total", map[string]string{"status": "completed"}))
}

func counterValue(families []*dto.MetricFamily, name string, labels map[string]string) float64 {
	for _, family := range families {
		if family.GetName() != name {
			continue
		}

		for _, metric := range family.GetMetric() {
			if matchLabels(metric.GetLabel(), labels) {
				return metric.GetCounter().GetValue()
			}
		}
	}

	return 0
}

func matchLabels(pairs []*dto.LabelPair, want map[string]string) bool {
	if len(pairs) != len(want) {
		return false
	}

	for _, pair := range pairs {
		if want[pair.GetName()] != pair.GetValue() {
			return false
		}
	}

	return true
}
