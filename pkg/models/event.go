package models

import "time"

// Well-known event context fields.
const (
	FieldAppointmentType     = "appointment_type"
	FieldAppointmentCategory = "appointment_category"
	FieldTags                = "tags"
	FieldFirstName           = "first_name"
	FieldLastName            = "last_name"
	FieldEmail               = "email"
	FieldPhone               = "phone"
)

// EventContext carries the appointment or client record fields a condition can test.
type EventContext map[string]any

// Lookup returns a field, walking dotted paths through nested maps.
func (c EventContext) Lookup(field string) (any, bool) {
	if c == nil {
		return nil, false
	}

	if v, ok := c[field]; ok {
		return v, true
	}

	var current any = map[string]any(c)

	start := 0
	for i := 0; i <= len(field); i++ {
		if i < len(field) && field[i] != '.' {
			continue
		}

		m, ok := current.(map[string]any)
		if !ok {
			return nil, false
		}

		current, ok = m[field[start:i]]
		if !ok {
			return nil, false
		}

		start = i + 1
	}

	return current, true
}

// Event is a business event emitted by the practice-management system.
type Event struct {
	ID         string       `json:"id"`
	Type       TriggerType  `json:"type"                  validate:"required"`
	OrgID      string       `json:"org_id"                validate:"required"`
	EntityID   string       `json:"entity_id"`
	ClientID   string       `json:"client_id"             validate:"required"`
	WorkflowID string       `json:"workflow_id,omitempty"` // Restricts manual enrollment to one workflow
	Context    EventContext `json:"context,omitempty"`
	OccurredAt time.Time    `json:"occurred_at"`
}
