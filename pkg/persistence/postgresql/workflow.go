package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"

	"github.com/PwntasticKev/Honey-rae-aesthetics-sub003/pkg/models"
	"github.com/PwntasticKev/Honey-rae-aesthetics-sub003/pkg/persistence"
)

var workflowColumns = []string{
	"id", "org_id", "name", "description", "trigger", "priority", "conditions", "blocks", "connections",
	"status", "prevent_duplicates", "duplicate_prevention_days", "total_runs", "successful_runs", "failed_runs",
	"created_at", "updated_at",
}

// WorkflowRepository handles workflow-related database operations.
type WorkflowRepository struct {
	db     *sqlx.DB
	sb     sq.StatementBuilderType
	logger *slog.Logger
}

type workflowRow struct {
	ID                      string    `db:"id"`
	OrgID                   string    `db:"org_id"`
	Name                    string    `db:"name"`
	Description             string    `db:"description"`
	Trigger                 string    `db:"trigger"`
	Priority                int       `db:"priority"`
	Conditions              []byte    `db:"conditions"`
	Blocks                  []byte    `db:"blocks"`
	Connections             []byte    `db:"connections"`
	Status                  string    `db:"status"`
	PreventDuplicates       bool      `db:"prevent_duplicates"`
	DuplicatePreventionDays int       `db:"duplicate_prevention_days"`
	TotalRuns               int64     `db:"total_runs"`
	SuccessfulRuns          int64     `db:"successful_runs"`
	FailedRuns              int64     `db:"failed_runs"`
	CreatedAt               time.Time `db:"created_at"`
	UpdatedAt               time.Time `db:"updated_at"`
}

func (row workflowRow) toModel() (*models.Workflow, error) {
	workflow := &models.Workflow{
		ID:                      row.ID,
		OrgID:                   row.OrgID,
		Name:                    row.Name,
		Description:             row.Description,
		Trigger:                 models.TriggerType(row.Trigger),
		Priority:                row.Priority,
		Status:                  models.WorkflowStatus(row.Status),
		PreventDuplicates:       row.PreventDuplicates,
		DuplicatePreventionDays: row.DuplicatePreventionDays,
		TotalRuns:               row.TotalRuns,
		SuccessfulRuns:          row.SuccessfulRuns,
		FailedRuns:              row.FailedRuns,
		CreatedAt:               row.CreatedAt,
		UpdatedAt:               row.UpdatedAt,
	}

	if err := json.Unmarshal(row.Conditions, &workflow.Conditions); err != nil {
		return nil, fmt.Errorf("failed to unmarshal conditions: %w", err)
	}

	if err := json.Unmarshal(row.Blocks, &workflow.Blocks); err != nil {
		return nil, fmt.Errorf("failed to unmarshal blocks: %w", err)
	}

	if err := json.Unmarshal(row.Connections, &workflow.Connections); err != nil {
		return nil, fmt.Errorf("failed to unmarshal connections: %w", err)
	}

	return workflow, nil
}

// Save inserts or updates a workflow definition. Run counters are only
// changed through enrollment updates and are left untouched for existing rows.
func (r *WorkflowRepository) Save(ctx context.Context, workflow *models.Workflow) error {
	conditions, err := json.Marshal(workflow.Conditions)
	if err != nil {
		return persistence.NewWorkflowError("Save", workflow.ID, err)
	}

	blocks, err := json.Marshal(nonNil(workflow.Blocks))
	if err != nil {
		return persistence.NewWorkflowError("Save", workflow.ID, err)
	}

	connections, err := json.Marshal(nonNil(workflow.Connections))
	if err != nil {
		return persistence.NewWorkflowError("Save", workflow.ID, err)
	}

	query, args, err := r.sb.Insert("workflows").
		SetMap(sq.Eq{
			"id":                        workflow.ID,
			"org_id":                    workflow.OrgID,
			"name":                      workflow.Name,
			"description":               workflow.Description,
			"trigger":                   string(workflow.Trigger),
			"priority":                  workflow.Priority,
			"conditions":                string(conditions),
			"blocks":                    string(blocks),
			"connections":               string(connections),
			"status":                    string(workflow.Status),
			"prevent_duplicates":        workflow.PreventDuplicates,
			"duplicate_prevention_days": workflow.DuplicatePreventionDays,
			"total_runs":                workflow.TotalRuns,
			"successful_runs":           workflow.SuccessfulRuns,
			"failed_runs":               workflow.FailedRuns,
			"created_at":                workflow.CreatedAt.UTC(),
			"updated_at":                workflow.UpdatedAt.UTC(),
		}).
		Suffix(`ON CONFLICT (id) DO UPDATE SET
			org_id = EXCLUDED.org_id,
			name = EXCLUDED.name,
			description = EXCLUDED.description,
			trigger = EXCLUDED.trigger,
			priority = EXCLUDED.priority,
			conditions = EXCLUDED.conditions,
			blocks = EXCLUDED.blocks,
			connections = EXCLUDED.connections,
			status = EXCLUDED.status,
			prevent_duplicates = EXCLUDED.prevent_duplicates,
			duplicate_prevention_days = EXCLUDED.duplicate_prevention_days,
			updated_at = EXCLUDED.updated_at`).
		ToSql()
	if err != nil {
		return persistence.NewWorkflowError("Save", workflow.ID, err)
	}

	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return persistence.NewWorkflowError("Save", workflow.ID, fmt.Errorf("failed to upsert workflow: %w", err))
	}

	return nil
}

// GetByID retrieves a workflow by its ID.
func (r *WorkflowRepository) GetByID(ctx context.Context, id string) (*models.Workflow, error) {
	query, args, err := r.sb.Select(workflowColumns...).From("workflows").Where(sq.Eq{"id": id}).ToSql()
	if err != nil {
		return nil, persistence.NewWorkflowError("GetByID", id, err)
	}

	var row workflowRow
	if err := r.db.GetContext(ctx, &row, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.NewWorkflowError("GetByID", id, persistence.ErrWorkflowNotFound)
		}

		return nil, persistence.NewWorkflowError("GetByID", id, err)
	}

	workflow, err := row.toModel()
	if err != nil {
		return nil, persistence.NewWorkflowError("GetByID", id, err)
	}

	return workflow, nil
}

// List returns workflows matching opts, newest first.
func (r *WorkflowRepository) List(ctx context.Context, opts persistence.ListWorkflowsOptions) ([]*models.Workflow, error) {
	builder := r.sb.Select(workflowColumns...).From("workflows").OrderBy("created_at DESC")

	if opts.OrgID != "" {
		builder = builder.Where(sq.Eq{"org_id": opts.OrgID})
	}

	if opts.Status != nil {
		builder = builder.Where(sq.Eq{"status": string(*opts.Status)})
	}

	return r.selectWorkflows(ctx, builder)
}

func (r *WorkflowRepository) ActiveByTrigger(ctx context.Context, orgID string, trigger models.TriggerType) ([]*models.Workflow, error) {
	builder := r.sb.Select(workflowColumns...).
		From("workflows").
		Where(sq.Eq{
			"org_id":  orgID,
			"trigger": string(trigger),
			"status":  string(models.WorkflowStatusActive),
		}).
		OrderBy("priority ASC", "created_at ASC")

	return r.selectWorkflows(ctx, builder)
}

// Delete removes a workflow and, by cascade, its enrollments.
func (r *WorkflowRepository) Delete(ctx context.Context, id string) error {
	query, args, err := r.sb.Delete("workflows").Where(sq.Eq{"id": id}).ToSql()
	if err != nil {
		return persistence.NewWorkflowError("Delete", id, err)
	}

	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return persistence.NewWorkflowError("Delete", id, err)
	}

	return nil
}

func (r *WorkflowRepository) selectWorkflows(ctx context.Context, builder sq.SelectBuilder) ([]*models.Workflow, error) {
	query, args, err := builder.ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build workflow query: %w", err)
	}

	var rows []workflowRow
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("failed to query workflows: %w", err)
	}

	workflows := make([]*models.Workflow, 0, len(rows))

	for _, row := range rows {
		workflow, err := row.toModel()
		if err != nil {
			r.logger.ErrorContext(ctx, "skipping undecodable workflow", "workflow_id", row.ID, "error", err)

			continue
		}

		workflows = append(workflows, workflow)
	}

	return workflows, nil
}

func nonNil[T any](items []T) []T {
	if items == nil {
		return []T{}
	}

	return items
}
