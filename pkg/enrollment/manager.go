// Package enrollment manages the lifecycle of clients' runs through workflows.
package enrollment

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/PwntasticKev/Honey-rae-aesthetics-sub003/pkg/eventbus"
	"github.com/PwntasticKev/Honey-rae-aesthetics-sub003/pkg/events"
	"github.com/PwntasticKev/Honey-rae-aesthetics-sub003/pkg/executionlog"
	"github.com/PwntasticKev/Honey-rae-aesthetics-sub003/pkg/models"
	"github.com/PwntasticKev/Honey-rae-aesthetics-sub003/pkg/persistence"
)

// ReasonSuperseded is the cancellation reason recorded when a newer enrollment replaces an active one.
const ReasonSuperseded = "superseded by a new enrollment"

// maxConflictRetries bounds re-reads when a status change races a tick.
const maxConflictRetries = 3

// EnrollRequest asks to start a client's run through a workflow.
type EnrollRequest struct {
	OrgID      string
	WorkflowID string
	ClientID   string
	Reason     string
	Context    models.EventContext
}

// Result reports what Enroll did. Enrollment is nil when Skipped.
type Result struct {
	Enrollment *models.WorkflowEnrollment
	Skipped    bool
	Superseded []string
}

type Manager struct {
	persistence persistence.Persistence
	recorder    *executionlog.Recorder
	publisher   eventbus.EventPublisher
	clock       clockwork.Clock
	logger      *slog.Logger
}

// NewManager builds a Manager. publisher may be nil, in which case lifecycle events are not emitted.
func NewManager(
	p persistence.Persistence,
	recorder *executionlog.Recorder,
	publisher eventbus.EventPublisher,
	clock clockwork.Clock,
	logger *slog.Logger,
) *Manager {
	return &Manager{
		persistence: p,
		recorder:    recorder,
		publisher:   publisher,
		clock:       clock,
		logger:      logger.With("module", "enrollment_manager"),
	}
}

// Enroll starts a new run of the workflow for the client. Duplicate prevention
// returns a skipped Result without error; any active run for the same client
// is cancelled before the new one is created.
func (m *Manager) Enroll(ctx context.Context, req EnrollRequest) (*Result, error) {
	if req.ClientID == "" {
		return nil, ErrClientRequired
	}

	logger := m.logger.With("workflow_id", req.WorkflowID, "client_id", req.ClientID)

	workflow, err := m.persistence.WorkflowRepository().GetByID(ctx, req.WorkflowID)
	if err != nil {
		return nil, fmt.Errorf("load workflow: %w", err)
	}

	if req.OrgID != "" && workflow.OrgID != req.OrgID {
		return nil, persistence.NewWorkflowError("Enroll", req.WorkflowID, persistence.ErrWorkflowNotFound)
	}

	if !workflow.IsActive() {
		return nil, fmt.Errorf("workflow %s: %w", workflow.ID, ErrWorkflowNotActive)
	}

	now := m.clock.Now()

	if workflow.PreventDuplicates {
		cutoff := now.Add(-workflow.DuplicateWindow())

		recent, err := m.persistence.EnrollmentRepository().EnrolledSince(ctx, workflow.ID, req.ClientID, cutoff)
		if err != nil {
			return nil, fmt.Errorf("check duplicate enrollment: %w", err)
		}

		if recent {
			logger.DebugContext(ctx, "Skipping duplicate enrollment", "cutoff", cutoff)

			return &Result{Skipped: true}, nil
		}
	}

	superseded, err := m.Supersede(ctx, workflow.ID, req.ClientID)
	if err != nil {
		return nil, err
	}

	enrollment := &models.WorkflowEnrollment{
		ID:               uuid.NewString(),
		OrgID:            workflow.OrgID,
		WorkflowID:       workflow.ID,
		ClientID:         req.ClientID,
		CurrentStatus:    models.EnrollmentActive,
		CurrentStep:      models.StepStart,
		EnrolledAt:       now,
		EnrollmentReason: req.Reason,
		Context:          maps.Clone(map[string]any(req.Context)),
	}

	if err := m.persistence.EnrollmentRepository().Create(ctx, enrollment); err != nil {
		return nil, fmt.Errorf("create enrollment: %w", err)
	}

	entry := executionlog.Step(enrollment, models.StepStart, models.LogActionEnrollClient, models.ExecutionExecuted, req.Reason)
	if err := m.recorder.Record(ctx, entry); err != nil {
		return nil, err
	}

	logger.InfoContext(ctx, "Enrolled client", "enrollment_id", enrollment.ID, "superseded", len(superseded))

	m.publish(ctx, enrollment.ID, events.NewEnrollmentCreated(enrollment, now))

	return &Result{Enrollment: enrollment, Superseded: superseded}, nil
}

// Supersede cancels the client's active runs of the workflow and returns their ids.
func (m *Manager) Supersede(ctx context.Context, workflowID, clientID string) ([]string, error) {
	active, err := m.persistence.EnrollmentRepository().ActiveFor(ctx, workflowID, clientID)
	if err != nil {
		return nil, fmt.Errorf("load active enrollments: %w", err)
	}

	ids := make([]string, 0, len(active))

	for _, prior := range active {
		if _, err := m.Cancel(ctx, prior.ID, ReasonSuperseded); err != nil {
			if errors.Is(err, ErrInvalidTransition) {
				continue
			}

			return ids, err
		}

		ids = append(ids, prior.ID)
	}

	return ids, nil
}

// Cancel moves an active or paused enrollment to cancelled and records why.
func (m *Manager) Cancel(ctx context.Context, enrollmentID, reason string) (*models.WorkflowEnrollment, error) {
	cancelled, err := m.mutate(ctx, enrollmentID, func(e *models.WorkflowEnrollment, now time.Time) error {
		if !e.CurrentStatus.CanTransitionTo(models.EnrollmentCancelled) {
			return fmt.Errorf("enrollment %s is %s: %w", e.ID, e.CurrentStatus, ErrInvalidTransition)
		}

		e.Finish(models.EnrollmentCancelled, now)

		return nil
	})
	if err != nil {
		return nil, err
	}

	entry := executionlog.Step(cancelled, cancelled.CurrentStep, models.LogActionCancel, models.ExecutionCancelled, reason)
	if err := m.recorder.Record(ctx, entry); err != nil {
		return cancelled, err
	}

	m.logger.InfoContext(ctx, "Cancelled enrollment", "enrollment_id", enrollmentID, "reason", reason)

	m.publish(ctx, cancelled.ID, events.NewEnrollmentFinished(cancelled, *cancelled.CompletedAt))

	return cancelled, nil
}

// Pause suspends every active enrollment of the workflow. Pending execution times are kept.
func (m *Manager) Pause(ctx context.Context, workflowID string) (int, error) {
	return m.each(ctx, workflowID, models.EnrollmentActive, func(e *models.WorkflowEnrollment, now time.Time) error {
		if e.CurrentStatus != models.EnrollmentActive {
			return ErrInvalidTransition
		}

		e.CurrentStatus = models.EnrollmentPaused
		e.PausedAt = &now

		return nil
	})
}

// Resume reactivates every paused enrollment of the workflow, shifting its
// pending execution forward by the time spent paused and never into the past.
func (m *Manager) Resume(ctx context.Context, workflowID string) (int, error) {
	return m.each(ctx, workflowID, models.EnrollmentPaused, func(e *models.WorkflowEnrollment, now time.Time) error {
		if e.CurrentStatus != models.EnrollmentPaused {
			return ErrInvalidTransition
		}

		if e.NextExecutionAt != nil {
			next := CatchUp(*e.NextExecutionAt, e.PausedAt, now)
			e.NextExecutionAt = &next
		}

		e.CurrentStatus = models.EnrollmentActive
		e.ResumedAt = &now

		return nil
	})
}

// CatchUp returns next shifted by the pause duration, clamped to now.
func CatchUp(next time.Time, pausedAt *time.Time, now time.Time) time.Time {
	if pausedAt != nil && now.After(*pausedAt) {
		next = next.Add(now.Sub(*pausedAt))
	}

	if next.Before(now) {
		return now
	}

	return next
}

func (m *Manager) each(
	ctx context.Context,
	workflowID string,
	status models.EnrollmentStatus,
	change func(e *models.WorkflowEnrollment, now time.Time) error,
) (int, error) {
	enrollments, err := m.persistence.EnrollmentRepository().ListByWorkflow(ctx, workflowID, status)
	if err != nil {
		return 0, fmt.Errorf("list %s enrollments: %w", status, err)
	}

	changed := 0

	for _, e := range enrollments {
		if _, err := m.mutate(ctx, e.ID, change); err != nil {
			if errors.Is(err, ErrInvalidTransition) {
				continue
			}

			return changed, err
		}

		changed++
	}

	m.logger.InfoContext(ctx, "Updated enrollments", "workflow_id", workflowID, "from", status, "count", changed)

	return changed, nil
}

// mutate applies change to a fresh copy of the enrollment and commits it,
// re-reading when a concurrent writer bumped the version.
func (m *Manager) mutate(
	ctx context.Context,
	enrollmentID string,
	change func(e *models.WorkflowEnrollment, now time.Time) error,
) (*models.WorkflowEnrollment, error) {
	repo := m.persistence.EnrollmentRepository()

	var lastErr error

	for range maxConflictRetries {
		current, err := repo.GetByID(ctx, enrollmentID)
		if err != nil {
			return nil, fmt.Errorf("load enrollment: %w", err)
		}

		next := current.Clone()
		if err := change(next, m.clock.Now()); err != nil {
			return nil, err
		}

		err = repo.Update(ctx, next, current.Version, models.RunCounters{})
		if err == nil {
			return next, nil
		}

		if !persistence.IsVersionConflict(err) {
			return nil, fmt.Errorf("update enrollment: %w", err)
		}

		lastErr = err
	}

	return nil, lastErr
}

func (m *Manager) publish(ctx context.Context, key string, event eventbus.Event) {
	if m.publisher == nil {
		return
	}

	if err := m.publisher.Publish(ctx, key, event); err != nil {
		m.logger.WarnContext(ctx, "Failed to publish enrollment event", "event_type", event.GetType(), "error", err)
	}
}
