package services

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jonboulle/clockwork"

	"github.com/PwntasticKev/Honey-rae-aesthetics-sub003/pkg/models"
	"github.com/PwntasticKev/Honey-rae-aesthetics-sub003/pkg/persistence"
)

// ReasonWorkflowArchived is the cancellation reason for enrollments of an archived workflow.
const ReasonWorkflowArchived = "workflow_archived"

// EnrollmentControl is the part of the enrollment manager a status change drives.
type EnrollmentControl interface {
	Pause(ctx context.Context, workflowID string) (int, error)
	Resume(ctx context.Context, workflowID string) (int, error)
	Cancel(ctx context.Context, enrollmentID, reason string) (*models.WorkflowEnrollment, error)
}

var workflowTransitions = map[models.WorkflowStatus][]models.WorkflowStatus{
	models.WorkflowStatusDraft:    {models.WorkflowStatusActive, models.WorkflowStatusArchived},
	models.WorkflowStatusActive:   {models.WorkflowStatusInactive, models.WorkflowStatusArchived},
	models.WorkflowStatusInactive: {models.WorkflowStatusActive, models.WorkflowStatusArchived},
}

// StatusChange reports what a status change did to existing enrollments.
type StatusChange struct {
	Workflow  *models.Workflow `json:"workflow"`
	Paused    int              `json:"paused"`
	Resumed   int              `json:"resumed"`
	Cancelled int              `json:"cancelled"`
}

type Lifecycle struct {
	persistence persistence.Persistence
	enrollments EnrollmentControl
	clock       clockwork.Clock
	logger      *slog.Logger
}

func NewLifecycle(p persistence.Persistence, enrollments EnrollmentControl, clock clockwork.Clock, logger *slog.Logger) *Lifecycle {
	return &Lifecycle{
		persistence: p,
		enrollments: enrollments,
		clock:       clock,
		logger:      logger.With("module", "lifecycle_service"),
	}
}

// SetStatus moves a workflow to status. Activation validates the graph and
// resumes paused enrollments, deactivation pauses active ones and archiving
// cancels everything still running.
func (l *Lifecycle) SetStatus(ctx context.Context, workflowID string, status models.WorkflowStatus) (*StatusChange, error) {
	workflow, err := l.persistence.WorkflowRepository().GetByID(ctx, workflowID)
	if err != nil {
		return nil, err
	}

	from := workflow.Status
	if from == status {
		return &StatusChange{Workflow: workflow}, nil
	}

	if !canTransition(from, status) {
		return nil, fmt.Errorf("workflow %s: %s to %s: %w", workflowID, from, status, ErrInvalidTransition)
	}

	workflow.Status = status
	workflow.UpdatedAt = l.clock.Now().UTC()

	if status == models.WorkflowStatusActive {
		if err := checkGraph("SetStatus", workflow); err != nil {
			return nil, err
		}
	}

	// Saved first so the matcher stops enrolling before enrollments are paused or cancelled.
	if err := l.persistence.WorkflowRepository().Save(ctx, workflow); err != nil {
		return nil, fmt.Errorf("failed to save workflow status: %w", err)
	}

	change := &StatusChange{Workflow: workflow}

	switch {
	case status == models.WorkflowStatusInactive:
		change.Paused, err = l.enrollments.Pause(ctx, workflowID)
	case status == models.WorkflowStatusActive && from == models.WorkflowStatusInactive:
		change.Resumed, err = l.enrollments.Resume(ctx, workflowID)
	case status == models.WorkflowStatusArchived:
		change.Cancelled, err = l.cancelAll(ctx, workflowID)
	}

	if err != nil {
		return change, fmt.Errorf("workflow %s is %s but enrollments were not all updated: %w", workflowID, status, err)
	}

	l.logger.InfoContext(ctx, "Workflow status changed",
		"workflow_id", workflowID,
		"from", from,
		"to", status,
		"paused", change.Paused,
		"resumed", change.Resumed,
		"cancelled", change.Cancelled,
	)

	return change, nil
}

func (l *Lifecycle) cancelAll(ctx context.Context, workflowID string) (int, error) {
	cancelled := 0

	for _, status := range []models.EnrollmentStatus{models.EnrollmentActive, models.EnrollmentPaused} {
		enrollments, err := l.persistence.EnrollmentRepository().ListByWorkflow(ctx, workflowID, status)
		if err != nil {
			return cancelled, err
		}

		for _, enrollment := range enrollments {
			if _, err := l.enrollments.Cancel(ctx, enrollment.ID, ReasonWorkflowArchived); err != nil {
				return cancelled, err
			}

			cancelled++
		}
	}

	return cancelled, nil
}

func canTransition(from, to models.WorkflowStatus) bool {
	for _, allowed := range workflowTransitions[from] {
		if allowed == to {
			return true
		}
	}

	return false
}
