// Package persistence provides the storage abstraction for workflows, enrollments and execution logs.
package persistence

import (
	"context"
	"time"

	"github.com/PwntasticKev/Honey-rae-aesthetics-sub003/pkg/models"
)

// Persistence aggregates the repositories the engine depends on.
type Persistence interface {
	WorkflowRepository() WorkflowRepository
	EnrollmentRepository() EnrollmentRepository
	ExecutionLogRepository() ExecutionLogRepository

	HealthCheck(ctx context.Context) error
	Close(ctx context.Context) error
}

// ListWorkflowsOptions filters a workflow listing. Zero fields are ignored.
type ListWorkflowsOptions struct {
	OrgID  string
	Status *models.WorkflowStatus
}

// WorkflowRepository stores workflow definitions and their aggregate counters.
type WorkflowRepository interface {
	Save(ctx context.Context, workflow *models.Workflow) error
	GetByID(ctx context.Context, id string) (*models.Workflow, error)
	List(ctx context.Context, opts ListWorkflowsOptions) ([]*models.Workflow, error)

	// ActiveByTrigger returns the org's active workflows for trigger ordered by
	// ascending priority, ties broken by creation time.
	ActiveByTrigger(ctx context.Context, orgID string, trigger models.TriggerType) ([]*models.Workflow, error)

	Delete(ctx context.Context, id string) error
}

// EnrollmentRepository stores enrollments. Updates are optimistic: Update only
// succeeds when the stored version equals expectedVersion, and bumps it.
type EnrollmentRepository interface {
	Create(ctx context.Context, enrollment *models.WorkflowEnrollment) error
	GetByID(ctx context.Context, id string) (*models.WorkflowEnrollment, error)

	// EnrolledSince reports whether the client has any enrollment in the
	// workflow with EnrolledAt strictly after since.
	EnrolledSince(ctx context.Context, workflowID, clientID string, since time.Time) (bool, error)

	// ActiveFor returns the client's active enrollments in the workflow.
	ActiveFor(ctx context.Context, workflowID, clientID string) ([]*models.WorkflowEnrollment, error)

	ListByWorkflow(ctx context.Context, workflowID string, status models.EnrollmentStatus) ([]*models.WorkflowEnrollment, error)

	// Due returns active enrollments whose NextExecutionAt is unset or not after now.
	Due(ctx context.Context, now time.Time, limit int) ([]*models.WorkflowEnrollment, error)

	// Update commits enrollment if its stored version is expectedVersion and
	// applies counters to the owning workflow in the same commit. On success
	// enrollment.Version holds the new version.
	Update(ctx context.Context, enrollment *models.WorkflowEnrollment, expectedVersion int64, counters models.RunCounters) error
}

// ExecutionLogRepository is the append-only execution audit sink.
type ExecutionLogRepository interface {
	Append(ctx context.Context, entry *models.ExecutionLog) error

	// List returns matching entries in insertion order.
	List(ctx context.Context, filter models.ExecutionLogFilter) ([]*models.ExecutionLog, error)
}
