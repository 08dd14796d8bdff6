package eventbus_test

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/PwntasticKev/Honey-rae-aesthetics-sub003/pkg/channels/gochannel"
	"github.com/PwntasticKev/Honey-rae-aesthetics-sub003/pkg/eventbus"
	"github.com/PwntasticKev/Honey-rae-aesthetics-sub003/pkg/events"
	"github.com/PwntasticKev/Honey-rae-aesthetics-sub003/pkg/models"
)

func newBus(t *testing.T) *eventbus.WatermillEventBus {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	pub, sub := gochannel.CreateChannel(watermill.NopLogger{})
	bus := eventbus.NewWatermillEventBus(pub, sub, logger)

	t.Cleanup(func() { _ = bus.Close() })

	return bus
}

func TestWatermillEventBus_RoundTrip(t *testing.T) {
	bus := newBus(t)
	ctx := t.Context()

	received := make(chan *events.TriggerReceived, 1)

	require.NoError(t, bus.Handle(events.TriggerReceivedEvent, func(_ context.Context, event any) error {
		received <- event.(*events.TriggerReceived)

		return nil
	}))
	require.NoError(t, bus.Subscribe(ctx))

	event := models.Event{
		ID:       "evt-1",
		Type:     models.TriggerAppointmentCompleted,
		OrgID:    "org-1",
		ClientID: "client-1",
		Context:  models.EventContext{"appointment_type": "Botox"},
	}

	require.NoError(t, bus.Publish(ctx, "client-1", events.NewTriggerReceived(event, time.Now())))

	select {
	case got := <-received:
		assert.Equal(t, "evt-1", got.Event.ID)
		assert.Equal(t, models.TriggerAppointmentCompleted, got.Event.Type)
		assert.Equal(t, "Botox", got.Event.Context["appointment_type"])
		assert.Equal(t, events.TriggerReceivedEvent, got.Type)
	case <-time.After(5 * time.Second):
		t.Fatal("trigger event was not delivered")
	}
}

func TestWatermillEventBus_UnhandledTypesAreAcked(t *testing.T) {
	bus := newBus(t)
	ctx := t.Context()

	var finished atomic.Int32

	require.NoError(t, bus.Handle(events.EnrollmentFinishedEvent, func(_ context.Context, _ any) error {
		finished.Add(1)

		return nil
	}))
	require.NoError(t, bus.Subscribe(ctx))

	enrollment := &models.WorkflowEnrollment{ID: "e1", OrgID: "org-1", CurrentStatus: models.EnrollmentCompleted}

	require.NoError(t, bus.Publish(ctx, "e1", events.NewEnrollmentCreated(enrollment, time.Now())))
	require.NoError(t, bus.Publish(ctx, "e1", events.NewEnrollmentFinished(enrollment, time.Now())))

	assert.Eventually(t, func() bool { return finished.Load() == 1 }, 5*time.Second, 10*time.Millisecond)
}

func TestWatermillEventBus_HandlerErrorRedelivers(t *testing.T) {
	bus := newBus(t)
	ctx := t.Context()

	var attempts atomic.Int32

	require.NoError(t, bus.Handle(events.DeliveryRequestedEvent, func(_ context.Context, _ any) error {
		if attempts.Add(1) == 1 {
			return errors.New("downstream unavailable")
		}

		return nil
	}))
	require.NoError(t, bus.Subscribe(ctx))

	request := events.NewDeliveryRequested("org-1", events.ChannelSMS, "client-1", time.Now())
	require.NoError(t, bus.Publish(ctx, "client-1", request))

	assert.Eventually(t, func() bool { return attempts.Load() >= 2 }, 5*time.Second, 10*time.Millisecond)
}
