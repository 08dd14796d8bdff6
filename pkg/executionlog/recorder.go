// Package executionlog records the append-only audit trail of enrollment steps.
package executionlog

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/PwntasticKev/Honey-rae-aesthetics-sub003/pkg/models"
	"github.com/PwntasticKev/Honey-rae-aesthetics-sub003/pkg/persistence"
)

// Recorder stamps and appends execution log rows.
type Recorder struct {
	repo   persistence.ExecutionLogRepository
	clock  clockwork.Clock
	logger *slog.Logger
}

func NewRecorder(repo persistence.ExecutionLogRepository, clock clockwork.Clock, logger *slog.Logger) *Recorder {
	return &Recorder{
		repo:   repo,
		clock:  clock,
		logger: logger.With("module", "execution_log"),
	}
}

// Record appends entry, assigning an id and execution time when unset.
func (r *Recorder) Record(ctx context.Context, entry *models.ExecutionLog) error {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}

	if entry.ExecutedAt.IsZero() {
		entry.ExecutedAt = r.clock.Now()
	}

	if err := r.repo.Append(ctx, entry); err != nil {
		r.logger.ErrorContext(ctx, "Failed to append execution log",
			"workflow_id", entry.WorkflowID,
			"step_id", entry.StepID,
			"status", entry.Status,
			"error", err)

		return fmt.Errorf("append execution log: %w", err)
	}

	r.logger.DebugContext(ctx, "Recorded step",
		"workflow_id", entry.WorkflowID,
		"step_id", entry.StepID,
		"action", entry.Action,
		"status", entry.Status)

	return nil
}

// Step builds a row for a step of enrollment.
func Step(e *models.WorkflowEnrollment, stepID, action string, status models.ExecutionStatus, message string) *models.ExecutionLog {
	enrollmentID := e.ID

	return &models.ExecutionLog{
		OrgID:        e.OrgID,
		WorkflowID:   e.WorkflowID,
		EnrollmentID: &enrollmentID,
		ClientID:     e.ClientID,
		StepID:       stepID,
		Action:       action,
		Status:       status,
		Message:      message,
	}
}

// Timed sets the row's execution time from a step duration.
func Timed(entry *models.ExecutionLog, elapsed time.Duration) *models.ExecutionLog {
	ms := elapsed.Milliseconds()
	entry.ExecutionTimeMs = &ms

	return entry
}

// List returns matching rows in insertion order, keeping the most recent filter.Limit when positive.
func (r *Recorder) List(ctx context.Context, filter models.ExecutionLogFilter) ([]*models.ExecutionLog, error) {
	entries, err := r.repo.List(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("list execution logs: %w", err)
	}

	return entries, nil
}
