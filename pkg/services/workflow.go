package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/PwntasticKev/Honey-rae-aesthetics-sub003/pkg/models"
	"github.com/PwntasticKev/Honey-rae-aesthetics-sub003/pkg/persistence"
)

var (
	// ErrWorkflowNotFound is returned when a workflow is not found.
	ErrWorkflowNotFound = persistence.ErrWorkflowNotFound
)

var workflowStatuses = []models.WorkflowStatus{
	models.WorkflowStatusDraft,
	models.WorkflowStatusActive,
	models.WorkflowStatusInactive,
	models.WorkflowStatusArchived,
}

type Workflow struct {
	persistence persistence.Persistence
	validate    *validator.Validate
	clock       clockwork.Clock
	logger      *slog.Logger
}

// NewWorkflow creates a new workflow service.
func NewWorkflow(p persistence.Persistence, validate *validator.Validate, clock clockwork.Clock, logger *slog.Logger) *Workflow {
	return &Workflow{
		persistence: p,
		validate:    validate,
		clock:       clock,
		logger:      logger.With("module", "workflow_service"),
	}
}

// HealthCheck checks the health of the persistence layer.
func (w *Workflow) HealthCheck(ctx context.Context) (string, bool) {
	if w.persistence == nil {
		return "Persistence layer not initialized", false
	}

	err := w.persistence.HealthCheck(ctx)
	if err != nil {
		return "Persistence layer is unhealthy: " + err.Error(), false
	}

	return "Persistence layer is healthy", true
}

// ListWorkflowsRequest contains options for listing workflows.
type ListWorkflowsRequest struct {
	OrgID  string
	Status *models.WorkflowStatus
}

// ListWorkflows retrieves an org's workflows, newest first.
func (w *Workflow) ListWorkflows(ctx context.Context, req ListWorkflowsRequest) ([]*models.Workflow, error) {
	req.OrgID = strings.TrimSpace(req.OrgID)
	if req.OrgID == "" {
		return nil, ErrEmptyOrgID
	}

	if req.Status != nil && !slices.Contains(workflowStatuses, *req.Status) {
		return nil, NewValidationError(
			"ListWorkflows",
			"INVALID_STATUS",
			fmt.Sprintf("invalid status '%s'", *req.Status),
			ErrInvalidStatus,
		)
	}

	workflows, err := w.persistence.WorkflowRepository().List(ctx, persistence.ListWorkflowsOptions{
		OrgID:  req.OrgID,
		Status: req.Status,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list workflows: %w", err)
	}

	return workflows, nil
}

// FetchByID retrieves a workflow by its ID.
func (w *Workflow) FetchByID(ctx context.Context, id string) (*models.Workflow, error) {
	return w.persistence.WorkflowRepository().GetByID(ctx, id)
}

// Create adds a new workflow. Workflows always start as drafts; use
// Lifecycle.SetStatus to activate them.
func (w *Workflow) Create(ctx context.Context, workflow *models.Workflow) (*models.Workflow, error) {
	if workflow == nil {
		return nil, ErrWorkflowNil
	}

	now := w.clock.Now().UTC()
	workflow.ID = uuid.New().String()
	workflow.Status = models.WorkflowStatusDraft
	workflow.CreatedAt = now
	workflow.UpdatedAt = now
	workflow.TotalRuns, workflow.SuccessfulRuns, workflow.FailedRuns = 0, 0, 0

	if err := w.check("Create", workflow); err != nil {
		return nil, err
	}

	if err := w.persistence.WorkflowRepository().Save(ctx, workflow); err != nil {
		return nil, fmt.Errorf("failed to create workflow: %w", err)
	}

	w.logger.InfoContext(ctx, "Created workflow", "workflow_id", workflow.ID, "org_id", workflow.OrgID, "trigger", workflow.Trigger)

	return workflow, nil
}

// Update replaces a workflow's definition. Identity, status, creation time and
// run counters are kept from the stored workflow.
func (w *Workflow) Update(ctx context.Context, workflowID string, workflow *models.Workflow) (*models.Workflow, error) {
	if workflow == nil {
		return nil, ErrWorkflowNil
	}

	existing, err := w.persistence.WorkflowRepository().GetByID(ctx, workflowID)
	if err != nil {
		return nil, err
	}

	if graphChanged(existing, workflow) && !editable(existing.Status) {
		return nil, fmt.Errorf("workflow %s is %s: %w", workflowID, existing.Status, ErrCannotModifyActive)
	}

	workflow.ID = workflowID
	workflow.OrgID = existing.OrgID
	workflow.Status = existing.Status
	workflow.CreatedAt = existing.CreatedAt
	workflow.UpdatedAt = w.clock.Now().UTC()
	workflow.TotalRuns = existing.TotalRuns
	workflow.SuccessfulRuns = existing.SuccessfulRuns
	workflow.FailedRuns = existing.FailedRuns

	if err := w.check("Update", workflow); err != nil {
		return nil, err
	}

	if err := w.persistence.WorkflowRepository().Save(ctx, workflow); err != nil {
		return nil, fmt.Errorf("failed to update workflow: %w", err)
	}

	return workflow, nil
}

// Delete removes a workflow by its ID. Active workflows must be deactivated first.
func (w *Workflow) Delete(ctx context.Context, workflowID string) error {
	existing, err := w.persistence.WorkflowRepository().GetByID(ctx, workflowID)
	if err != nil {
		return err
	}

	if existing.IsActive() {
		return fmt.Errorf("workflow %s: %w", workflowID, ErrCannotDeleteActive)
	}

	err = w.persistence.WorkflowRepository().Delete(ctx, workflowID)
	if err != nil {
		return fmt.Errorf("failed to delete workflow: %w", err)
	}

	return nil
}

// check runs struct validation and the graph rules.
func (w *Workflow) check(op string, workflow *models.Workflow) error {
	if err := w.validate.Struct(workflow); err != nil {
		return NewValidationError(op, "INVALID_WORKFLOW", err.Error(), ErrInvalidRequest)
	}

	if !workflow.Trigger.IsValid() {
		return NewValidationError(op, "INVALID_TRIGGER", fmt.Sprintf("unknown trigger '%s'", workflow.Trigger), ErrInvalidRequest)
	}

	return checkGraph(op, workflow)
}

func checkGraph(op string, workflow *models.Workflow) error {
	if err := models.ValidateGraph(workflow); err != nil {
		return NewValidationError(op, "INVALID_GRAPH", err.Error(), errors.Join(ErrInvalidGraph, err))
	}

	return nil
}

// editable reports whether the graph of a workflow in status may change.
// Active enrollments of an inactive workflow that point at a removed block
// fail when resumed.
func editable(status models.WorkflowStatus) bool {
	return status == models.WorkflowStatusDraft || status == models.WorkflowStatusInactive
}

func graphChanged(a, b *models.Workflow) bool {
	before, errA := json.Marshal(struct {
		Blocks      []*models.Block
		Connections []*models.Connection
	}{a.Blocks, a.Connections})
	after, errB := json.Marshal(struct {
		Blocks      []*models.Block
		Connections []*models.Connection
	}{b.Blocks, b.Connections})

	return errA != nil || errB != nil || !bytes.Equal(before, after)
}
