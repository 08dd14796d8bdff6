package main

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/PwntasticKev/Honey-rae-aesthetics-sub003/pkg/cmd"
	"github.com/PwntasticKev/Honey-rae-aesthetics-sub003/pkg/config"
	"github.com/PwntasticKev/Honey-rae-aesthetics-sub003/pkg/events"
	"github.com/PwntasticKev/Honey-rae-aesthetics-sub003/pkg/metrics"
	"github.com/PwntasticKev/Honey-rae-aesthetics-sub003/pkg/models"
	"github.com/PwntasticKev/Honey-rae-aesthetics-sub003/pkg/persistence/file"
	"github.com/PwntasticKev/Honey-rae-aesthetics-sub003/pkg/persistence/persistencetest"
)

var testNow = time.Date(2026, 10, 5, 14, 0, 0, 0, time.UTC)

func newTestWorker(t *testing.T) (*Worker, *cmd.Engine) {
	t.Helper()

	bus, err := cmd.NewEventBus("gochannel", "", "automation-worker-test", slog.Default())
	require.NoError(t, err)

	t.Cleanup(func() { _ = bus.Close() })

	cfg := config.Default()
	cfg.Scheduler.Interval = time.Second

	engine := cmd.NewEngine(file.NewPersistence(t.TempDir()), bus, cfg, metrics.Noop{}, nil, clockwork.NewFakeClockAt(testNow), slog.Default())

	return NewWorker(engine, slog.Default()), engine
}

func TestWorker_ConsumesTriggerEvents(t *testing.T) {
	worker, engine := newTestWorker(t)

	workflow := persistencetest.NewWorkflow("org-1", models.TriggerAppointmentCompleted, 1, testNow)
	require.NoError(t, engine.Persistence.WorkflowRepository().Save(t.Context(), workflow))

	ctx, cancel := context.WithCancel(t.Context())
	defer cancel()

	require.NoError(t, worker.Start(ctx))

	defer func() { require.NoError(t, worker.Stop(context.Background())) }()

	event := models.Event{
		ID:       "evt-1",
		Type:     models.TriggerAppointmentCompleted,
		OrgID:    "org-1",
		ClientID: "client-1",
		Context:  models.EventContext{"appointment_type": "Restylane cheeks"},
	}
	require.NoError(t, engine.Bus.Publish(ctx, event.ClientID, events.NewTriggerReceived(event, testNow)))

	assert.Eventually(t, func() bool {
		enrollments, err := engine.Persistence.EnrollmentRepository().ListByWorkflow(ctx, workflow.ID, models.EnrollmentActive)

		return err == nil && len(enrollments) == 1 && enrollments[0].NextExecutionAt != nil
	}, 3*time.Second, 20*time.Millisecond)
}

func TestWorker_DropsInvalidEvents(t *testing.T) {
	worker, _ := newTestWorker(t)

	err := worker.handleTrigger(t.Context(), &events.TriggerReceived{Event: models.Event{Type: "birthday", OrgID: "org-1", ClientID: "c1"}})
	require.NoError(t, err)

	err = worker.handleTrigger(t.Context(), &events.EnrollmentCreated{})
	assert.NoError(t, err)
}

func TestWorker_StartTwiceFails(t *testing.T) {
	worker, _ := newTestWorker(t)

	require.NoError(t, worker.Start(t.Context()))

	defer func() { require.NoError(t, worker.Stop(context.Background())) }()

	assert.Error(t, worker.Start(t.Context()))
}
