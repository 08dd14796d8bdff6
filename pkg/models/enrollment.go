package models

import "time"

// EnrollmentStatus is the state of a client's run through a workflow.
type EnrollmentStatus string

const (
	EnrollmentActive    EnrollmentStatus = "active"
	EnrollmentPaused    EnrollmentStatus = "paused"
	EnrollmentCompleted EnrollmentStatus = "completed"
	EnrollmentCancelled EnrollmentStatus = "cancelled"
	EnrollmentFailed    EnrollmentStatus = "failed"
)

// StepStart is the position of an enrollment that has not been walked yet.
const StepStart = "start"

var enrollmentTransitions = map[EnrollmentStatus][]EnrollmentStatus{
	EnrollmentActive: {EnrollmentPaused, EnrollmentCompleted, EnrollmentCancelled, EnrollmentFailed},
	EnrollmentPaused: {EnrollmentActive, EnrollmentCancelled},
}

// IsTerminal reports whether no transition leaves s.
func (s EnrollmentStatus) IsTerminal() bool {
	return s == EnrollmentCompleted || s == EnrollmentCancelled || s == EnrollmentFailed
}

// CanTransitionTo reports whether s may move to next.
func (s EnrollmentStatus) CanTransitionTo(next EnrollmentStatus) bool {
	for _, allowed := range enrollmentTransitions[s] {
		if allowed == next {
			return true
		}
	}

	return false
}

// WorkflowEnrollment is a client's run-instance of one workflow.
type WorkflowEnrollment struct {
	ID               string           `json:"id"`
	OrgID            string           `json:"org_id"`
	WorkflowID       string           `json:"workflow_id"`
	ClientID         string           `json:"client_id"`
	CurrentStatus    EnrollmentStatus `json:"current_status"`
	CurrentStep      string           `json:"current_step"`
	EnrolledAt       time.Time        `json:"enrolled_at"`
	PausedAt         *time.Time       `json:"paused_at,omitempty"`
	ResumedAt        *time.Time       `json:"resumed_at,omitempty"`
	CompletedAt      *time.Time       `json:"completed_at,omitempty"`
	NextExecutionAt  *time.Time       `json:"next_execution_at,omitempty"`
	EnrollmentReason string           `json:"enrollment_reason"`
	Context          map[string]any   `json:"context,omitempty"`
	Attempts         int              `json:"attempts"`
	Version          int64            `json:"version"`
}

// IsDue reports whether an active enrollment should be ticked at now.
func (e *WorkflowEnrollment) IsDue(now time.Time) bool {
	if e.CurrentStatus != EnrollmentActive {
		return false
	}

	return e.NextExecutionAt == nil || !now.Before(*e.NextExecutionAt)
}

// Clone returns a copy safe to mutate independently of e.
func (e *WorkflowEnrollment) Clone() *WorkflowEnrollment {
	out := *e
	out.PausedAt = cloneTime(e.PausedAt)
	out.ResumedAt = cloneTime(e.ResumedAt)
	out.CompletedAt = cloneTime(e.CompletedAt)
	out.NextExecutionAt = cloneTime(e.NextExecutionAt)

	if e.Context != nil {
		out.Context = make(map[string]any, len(e.Context))
		for k, v := range e.Context {
			out.Context[k] = v
		}
	}

	return &out
}

// Finish moves e to a terminal status at now, clearing any pending execution.
func (e *WorkflowEnrollment) Finish(status EnrollmentStatus, now time.Time) {
	e.CurrentStatus = status
	e.CompletedAt = &now
	e.NextExecutionAt = nil
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}

	v := *t

	return &v
}
