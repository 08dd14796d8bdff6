// Package models defines the core domain models for client workflow automation.
package models

import "time"

// WorkflowStatus represents the lifecycle state of a workflow.
type WorkflowStatus string

const (
	WorkflowStatusDraft    WorkflowStatus = "draft"    // Editable, never matched
	WorkflowStatusActive   WorkflowStatus = "active"   // Matched against incoming events
	WorkflowStatusInactive WorkflowStatus = "inactive" // Enrollments paused
	WorkflowStatusArchived WorkflowStatus = "archived" // Retired, enrollments cancelled
)

// DefaultDuplicatePreventionDays is applied when a workflow enables duplicate
// prevention without specifying a window.
const DefaultDuplicatePreventionDays = 30

// TriggerType is the business event that causes enrollment matching.
type TriggerType string

const (
	TriggerAppointmentCompleted TriggerType = "appointment_completed"
	TriggerAppointmentScheduled TriggerType = "appointment_scheduled"
	TriggerAppointmentCancelled TriggerType = "appointment_cancelled"
	TriggerClientAdded          TriggerType = "client_added"
	TriggerClientUpdated        TriggerType = "client_updated"
	TriggerManual               TriggerType = "manual"
)

// TriggerTypes lists every supported trigger.
var TriggerTypes = []TriggerType{
	TriggerAppointmentCompleted,
	TriggerAppointmentScheduled,
	TriggerAppointmentCancelled,
	TriggerClientAdded,
	TriggerClientUpdated,
	TriggerManual,
}

// IsValid reports whether t is a known trigger type.
func (t TriggerType) IsValid() bool {
	for _, known := range TriggerTypes {
		if t == known {
			return true
		}
	}

	return false
}

// Workflow is an organization's automation: a trigger, entry conditions and a
// graph of blocks walked once per enrolled client.
type Workflow struct {
	ID                      string         `json:"id"`
	OrgID                   string         `json:"org_id"                    validate:"required"`
	Name                    string         `json:"name"                      validate:"required,min=3"`
	Description             string         `json:"description"`
	Trigger                 TriggerType    `json:"trigger"                   validate:"required"`
	Priority                int            `json:"priority"                  validate:"min=0"`
	Conditions              ConditionSet   `json:"conditions"`
	Blocks                  []*Block       `json:"blocks"                    validate:"dive"`
	Connections             []*Connection  `json:"connections"               validate:"dive"`
	Status                  WorkflowStatus `json:"status"                    validate:"required,oneof=draft active inactive archived"`
	PreventDuplicates       bool           `json:"prevent_duplicates"`
	DuplicatePreventionDays int            `json:"duplicate_prevention_days" validate:"min=0"`
	TotalRuns               int64          `json:"total_runs"`
	SuccessfulRuns          int64          `json:"successful_runs"`
	FailedRuns              int64          `json:"failed_runs"`
	CreatedAt               time.Time      `json:"created_at"`
	UpdatedAt               time.Time      `json:"updated_at"`
}

// IsActive reports whether the workflow takes part in trigger matching.
func (w *Workflow) IsActive() bool {
	return w.Status == WorkflowStatusActive
}

// DuplicateWindow returns the look-back window used for duplicate prevention.
func (w *Workflow) DuplicateWindow() time.Duration {
	days := w.DuplicatePreventionDays
	if days <= 0 {
		days = DefaultDuplicatePreventionDays
	}

	return time.Duration(days) * 24 * time.Hour
}

// BlockByID returns the block with the given id.
func (w *Workflow) BlockByID(id string) (*Block, bool) {
	for _, block := range w.Blocks {
		if block.ID == id {
			return block, true
		}
	}

	return nil, false
}

// TriggerBlock returns the graph's entry block.
func (w *Workflow) TriggerBlock() (*Block, bool) {
	for _, block := range w.Blocks {
		if block.Kind == BlockKindTrigger {
			return block, true
		}
	}

	return nil, false
}

// RunCounters is an increment applied atomically to a workflow's aggregate counters.
type RunCounters struct {
	Total      int64
	Successful int64
	Failed     int64
}

// IsZero reports whether the increment changes nothing.
func (c RunCounters) IsZero() bool {
	return c.Total == 0 && c.Successful == 0 && c.Failed == 0
}
