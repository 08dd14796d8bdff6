package models

import "time"

// ExecutionStatus is the outcome recorded for one step attempt.
type ExecutionStatus string

const (
	ExecutionExecuted  ExecutionStatus = "executed"
	ExecutionFailed    ExecutionStatus = "failed"
	ExecutionWaiting   ExecutionStatus = "waiting"
	ExecutionCancelled ExecutionStatus = "cancelled"
)

// Engine-level actions recorded alongside block labels.
const (
	LogActionEnrollClient = "enroll_client"
	LogActionCancel       = "cancel_enrollment"
	LogActionMissingBlock = "missing_block"
)

// ExecutionLog is an append-only audit row for one step attempt.
type ExecutionLog struct {
	ID              string          `json:"id"`
	OrgID           string          `json:"org_id"`
	WorkflowID      string          `json:"workflow_id"`
	EnrollmentID    *string         `json:"enrollment_id,omitempty"`
	ClientID        string          `json:"client_id"`
	StepID          string          `json:"step_id"`
	Action          string          `json:"action"`
	Status          ExecutionStatus `json:"status"`
	Message         string          `json:"message"`
	ExecutedAt      time.Time       `json:"executed_at"`
	ExecutionTimeMs *int64          `json:"execution_time_ms,omitempty"`
}

// ExecutionLogFilter narrows a reporting query. Zero fields are ignored.
type ExecutionLogFilter struct {
	OrgID        string
	WorkflowID   string
	EnrollmentID string
	ClientID     string
	Limit        int
}

// Matches reports whether entry passes the filter.
func (f ExecutionLogFilter) Matches(entry *ExecutionLog) bool {
	if f.OrgID != "" && entry.OrgID != f.OrgID {
		return false
	}

	if f.WorkflowID != "" && entry.WorkflowID != f.WorkflowID {
		return false
	}

	if f.EnrollmentID != "" && (entry.EnrollmentID == nil || *entry.EnrollmentID != f.EnrollmentID) {
		return false
	}

	if f.ClientID != "" && entry.ClientID != f.ClientID {
		return false
	}

	return true
}
