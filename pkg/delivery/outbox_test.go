package delivery_test

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/PwntasticKev/Honey-rae-aesthetics-sub003/pkg/delivery"
	"github.com/PwntasticKev/Honey-rae-aesthetics-sub003/pkg/events"
	"github.com/PwntasticKev/Honey-rae-aesthetics-sub003/pkg/mocks"
)

var testNow = time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)

func TestOutbox_Send(t *testing.T) {
	bus := &mocks.MockEventBus{}
	bus.On("Publish", mock.Anything, "client-1", mock.AnythingOfType("events.DeliveryRequested")).Return(nil)

	outbox := delivery.NewOutbox(bus, clockwork.NewFakeClockAt(testNow), slog.Default())

	receipt, err := outbox.Send(context.Background(), delivery.Message{
		Channel:      events.ChannelEmail,
		OrgID:        "org-1",
		ClientID:     "client-1",
		EnrollmentID: "enr-1",
		Recipient:    "ada@example.com",
		Subject:      "Aftercare",
		Body:         "Hi Ada",
	})
	require.NoError(t, err)

	published := bus.Published()
	require.Len(t, published, 1)

	event, ok := published[0].(events.DeliveryRequested)
	require.True(t, ok)
	assert.Equal(t, receipt.MessageID, event.ID)
	assert.Equal(t, events.ChannelEmail, event.Channel)
	assert.Equal(t, "ada@example.com", event.Recipient)
	assert.Equal(t, "Aftercare", event.Subject)
	assert.Equal(t, "enr-1", event.EnrollmentID)
	assert.Equal(t, testNow, event.Timestamp)
}

func TestOutbox_SendRejectsTagChannel(t *testing.T) {
	bus := &mocks.MockEventBus{}
	outbox := delivery.NewOutbox(bus, clockwork.NewFakeClockAt(testNow), slog.Default())

	_, err := outbox.Send(context.Background(), delivery.Message{Channel: events.ChannelTag, ClientID: "c"})

	require.ErrorIs(t, err, delivery.ErrUnsupportedChannel)
	bus.AssertNotCalled(t, "Publish", mock.Anything, mock.Anything, mock.Anything)
}

func TestOutbox_SendRequiresRecipient(t *testing.T) {
	bus := &mocks.MockEventBus{}
	outbox := delivery.NewOutbox(bus, clockwork.NewFakeClockAt(testNow), slog.Default())

	_, err := outbox.Send(context.Background(), delivery.Message{Channel: events.ChannelSMS, ClientID: "c", Body: "Hi"})

	require.ErrorIs(t, err, delivery.ErrMissingRecipient)
	bus.AssertNotCalled(t, "Publish", mock.Anything, mock.Anything, mock.Anything)
}

func TestOutbox_AddTagPropagatesPublishFailure(t *testing.T) {
	bus := &mocks.MockEventBus{}
	bus.On("Publish", mock.Anything, "client-1", mock.Anything).Return(errors.New("broker unavailable"))

	outbox := delivery.NewOutbox(bus, clockwork.NewFakeClockAt(testNow), slog.Default())

	err := outbox.AddTag(context.Background(), "org-1", "client-1", "vip")

	require.ErrorContains(t, err, "broker unavailable")
}
