// Package events defines the messages exchanged over the event bus.
package events

import (
	"time"

	"github.com/google/uuid"

	"github.com/PwntasticKev/Honey-rae-aesthetics-sub003/pkg/models"
)

type EventType string

// Topic carries every automation event; the type travels in message metadata.
const Topic = "automation.events"

const EventMetadataKey = "key"
const EventTypeMetadataKey = "event_type"

const (
	// Inbound business events to match against workflows.
	TriggerReceivedEvent EventType = "automation.trigger"

	// Enrollment lifecycle.
	EnrollmentCreatedEvent  EventType = "enrollment.created"
	EnrollmentFinishedEvent EventType = "enrollment.finished"

	// Outbound work for delivery services.
	DeliveryRequestedEvent EventType = "delivery.requested"
)

type BaseEvent struct {
	ID        string    `json:"id"`
	Type      EventType `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	OrgID     string    `json:"org_id"`
}

func newBase(eventType EventType, orgID string, at time.Time) BaseEvent {
	return BaseEvent{
		ID:        uuid.NewString(),
		Type:      eventType,
		Timestamp: at,
		OrgID:     orgID,
	}
}

// TriggerReceived wraps a business event published by the practice system.
type TriggerReceived struct {
	BaseEvent

	Event models.Event `json:"event"`
}

func NewTriggerReceived(event models.Event, at time.Time) TriggerReceived {
	return TriggerReceived{BaseEvent: newBase(TriggerReceivedEvent, event.OrgID, at), Event: event}
}

func (e TriggerReceived) GetType() EventType {
	return TriggerReceivedEvent
}

type EnrollmentCreated struct {
	BaseEvent

	EnrollmentID string `json:"enrollment_id"`
	WorkflowID   string `json:"workflow_id"`
	ClientID     string `json:"client_id"`
	Reason       string `json:"reason"`
}

func NewEnrollmentCreated(e *models.WorkflowEnrollment, at time.Time) EnrollmentCreated {
	return EnrollmentCreated{
		BaseEvent:    newBase(EnrollmentCreatedEvent, e.OrgID, at),
		EnrollmentID: e.ID,
		WorkflowID:   e.WorkflowID,
		ClientID:     e.ClientID,
		Reason:       e.EnrollmentReason,
	}
}

func (e EnrollmentCreated) GetType() EventType {
	return EnrollmentCreatedEvent
}

type EnrollmentFinished struct {
	BaseEvent

	EnrollmentID string                  `json:"enrollment_id"`
	WorkflowID   string                  `json:"workflow_id"`
	ClientID     string                  `json:"client_id"`
	Status       models.EnrollmentStatus `json:"status"`
	Step         string                  `json:"step"`
}

func NewEnrollmentFinished(e *models.WorkflowEnrollment, at time.Time) EnrollmentFinished {
	return EnrollmentFinished{
		BaseEvent:    newBase(EnrollmentFinishedEvent, e.OrgID, at),
		EnrollmentID: e.ID,
		WorkflowID:   e.WorkflowID,
		ClientID:     e.ClientID,
		Status:       e.CurrentStatus,
		Step:         e.CurrentStep,
	}
}

func (e EnrollmentFinished) GetType() EventType {
	return EnrollmentFinishedEvent
}

// Channel is the delivery medium of an outbound request.
type Channel string

const (
	ChannelSMS   Channel = "sms"
	ChannelEmail Channel = "email"
	ChannelTag   Channel = "tag"
)

// DeliveryRequested asks a downstream service to message or tag a client.
type DeliveryRequested struct {
	BaseEvent

	Channel      Channel `json:"channel"`
	ClientID     string  `json:"client_id"`
	EnrollmentID string  `json:"enrollment_id,omitempty"`
	Recipient    string  `json:"recipient,omitempty"`
	Subject      string  `json:"subject,omitempty"`
	Body         string  `json:"body,omitempty"`
	Tag          string  `json:"tag,omitempty"`
}

func NewDeliveryRequested(orgID string, channel Channel, clientID string, at time.Time) DeliveryRequested {
	return DeliveryRequested{
		BaseEvent: newBase(DeliveryRequestedEvent, orgID, at),
		Channel:   channel,
		ClientID:  clientID,
	}
}

func (e DeliveryRequested) GetType() EventType {
	return DeliveryRequestedEvent
}
