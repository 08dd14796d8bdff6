// Package web provides the HTTP intake and administration API of the automation engine.
package web

import (
	"github.com/PwntasticKev/Honey-rae-aesthetics-sub003/pkg/models"
)

// WorkflowRequest is the body for creating or replacing a workflow.
type WorkflowRequest struct {
	OrgID                   string               `json:"org_id"                    validate:"required"`
	Name                    string               `json:"name"                      validate:"required,min=3"`
	Description             string               `json:"description"`
	Trigger                 models.TriggerType   `json:"trigger"                   validate:"required"`
	Priority                int                  `json:"priority"                  validate:"min=0"`
	Conditions              models.ConditionSet  `json:"conditions"`
	Blocks                  []*models.Block      `json:"blocks"`
	Connections             []*models.Connection `json:"connections"`
	PreventDuplicates       bool                 `json:"prevent_duplicates"`
	DuplicatePreventionDays int                  `json:"duplicate_prevention_days" validate:"min=0"`
}

func (r *WorkflowRequest) toModel() *models.Workflow {
	return &models.Workflow{
		OrgID:                   r.OrgID,
		Name:                    r.Name,
		Description:             r.Description,
		Trigger:                 r.Trigger,
		Priority:                r.Priority,
		Conditions:              r.Conditions,
		Blocks:                  r.Blocks,
		Connections:             r.Connections,
		PreventDuplicates:       r.PreventDuplicates,
		DuplicatePreventionDays: r.DuplicatePreventionDays,
	}
}

// SetStatusRequest moves a workflow through its lifecycle.
type SetStatusRequest struct {
	Status models.WorkflowStatus `json:"status" validate:"required,oneof=draft active inactive archived"`
}

// ConnectionRequest adds an edge to a workflow graph.
type ConnectionRequest struct {
	ID       string `json:"id"`
	From     string `json:"from"      validate:"required"`
	To       string `json:"to"        validate:"required"`
	FromPort string `json:"from_port" validate:"omitempty,oneof=out true false"`
	ToPort   string `json:"to_port"`
}

// EnrollRequest enrolls a client into one workflow by hand.
type EnrollRequest struct {
	ClientID string              `json:"client_id" validate:"required"`
	Reason   string              `json:"reason"`
	Context  models.EventContext `json:"context"`
}

// CancelRequest carries an optional cancellation reason.
type CancelRequest struct {
	Reason string `json:"reason"`
}

// EnrollmentResponse is the result of a manual enrollment.
type EnrollmentResponse struct {
	Enrollment *models.WorkflowEnrollment `json:"enrollment,omitempty"`
	Skipped    bool                       `json:"skipped"`
	Superseded []string                   `json:"superseded,omitempty"`
	Tick       *TickResponse              `json:"tick,omitempty"`
}

// TickResponse reports one executor step.
type TickResponse struct {
	Result          string                  `json:"result"`
	SkipReason      string                  `json:"skip_reason,omitempty"`
	Status          models.EnrollmentStatus `json:"status"`
	Step            string                  `json:"step"`
	Version         int64                   `json:"version"`
	NextExecutionAt *string                 `json:"next_execution_at,omitempty"`
	Log             *models.ExecutionLog    `json:"log,omitempty"`
}

// EventResponse summarizes how a business event was handled.
type EventResponse struct {
	EventID  string             `json:"event_id"`
	Queued   bool               `json:"queued,omitempty"`
	Matched  int                `json:"matched"`
	Enrolled []EnrolledResponse `json:"enrolled,omitempty"`
	Skipped  []string           `json:"skipped,omitempty"`
	Failed   []FailureResponse  `json:"failed,omitempty"`
}

type EnrolledResponse struct {
	WorkflowID   string        `json:"workflow_id"`
	EnrollmentID string        `json:"enrollment_id"`
	Superseded   []string      `json:"superseded,omitempty"`
	Tick         *TickResponse `json:"tick,omitempty"`
	TickError    string        `json:"tick_error,omitempty"`
}

type FailureResponse struct {
	WorkflowID string `json:"workflow_id"`
	Error      string `json:"error"`
}
