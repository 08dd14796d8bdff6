// Package delivery defines the outbound collaborators that message and tag clients.
package delivery

import (
	"context"
	"errors"

	"github.com/PwntasticKev/Honey-rae-aesthetics-sub003/pkg/events"
)

// ErrMissingRecipient is returned when the client has no address for a channel.
var ErrMissingRecipient = errors.New("client has no recipient address")

// Message is rendered client-facing content ready to send. Recipient is the
// phone number for sms and the address for email.
type Message struct {
	Channel      events.Channel
	OrgID        string
	ClientID     string
	EnrollmentID string
	Recipient    string
	Subject      string
	Body         string
}

// Receipt identifies an accepted message.
type Receipt struct {
	MessageID string
}

type MessageSender interface {
	Send(ctx context.Context, msg Message) (Receipt, error)
}

type TagService interface {
	AddTag(ctx context.Context, orgID, clientID, tag string) error
}
