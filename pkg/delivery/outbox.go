package delivery

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jonboulle/clockwork"

	"github.com/PwntasticKev/Honey-rae-aesthetics-sub003/pkg/eventbus"
	"github.com/PwntasticKev/Honey-rae-aesthetics-sub003/pkg/events"
)

var ErrUnsupportedChannel = errors.New("unsupported delivery channel")

// Outbox hands messages and tags to downstream delivery services as
// delivery.requested events. Acceptance by the bus counts as success.
type Outbox struct {
	publisher eventbus.EventPublisher
	clock     clockwork.Clock
	logger    *slog.Logger
}

func NewOutbox(publisher eventbus.EventPublisher, clock clockwork.Clock, logger *slog.Logger) *Outbox {
	return &Outbox{
		publisher: publisher,
		clock:     clock,
		logger:    logger.With("module", "outbox"),
	}
}

func (o *Outbox) Send(ctx context.Context, msg Message) (Receipt, error) {
	if msg.Channel != events.ChannelSMS && msg.Channel != events.ChannelEmail {
		return Receipt{}, fmt.Errorf("%w: %q", ErrUnsupportedChannel, msg.Channel)
	}

	if msg.Recipient == "" {
		return Receipt{}, fmt.Errorf("%w for %s", ErrMissingRecipient, msg.Channel)
	}

	event := events.NewDeliveryRequested(msg.OrgID, msg.Channel, msg.ClientID, o.clock.Now())
	event.EnrollmentID = msg.EnrollmentID
	event.Recipient = msg.Recipient
	event.Subject = msg.Subject
	event.Body = msg.Body

	if err := o.publisher.Publish(ctx, msg.ClientID, event); err != nil {
		return Receipt{}, fmt.Errorf("publish %s delivery: %w", msg.Channel, err)
	}

	o.logger.DebugContext(ctx, "Queued message", "channel", msg.Channel, "client_id", msg.ClientID, "message_id", event.ID)

	return Receipt{MessageID: event.ID}, nil
}

func (o *Outbox) AddTag(ctx context.Context, orgID, clientID, tag string) error {
	event := events.NewDeliveryRequested(orgID, events.ChannelTag, clientID, o.clock.Now())
	event.Tag = tag

	if err := o.publisher.Publish(ctx, clientID, event); err != nil {
		return fmt.Errorf("publish tag request: %w", err)
	}

	return nil
}
