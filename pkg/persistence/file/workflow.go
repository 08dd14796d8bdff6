package file

import (
	"context"
	"fmt"
	"os"
	"sort"

	"github.com/PwntasticKev/Honey-rae-aesthetics-sub003/pkg/models"
	"github.com/PwntasticKev/Honey-rae-aesthetics-sub003/pkg/persistence"
)

const workflowsDir = "workflows"

// WorkflowRepository handles workflow-related file operations.
type WorkflowRepository struct {
	store *Persistence
}

// Save persists a workflow to the file system. Run counters of an existing
// workflow are kept as stored.
func (r *WorkflowRepository) Save(_ context.Context, workflow *models.Workflow) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	toWrite := *workflow

	var existing models.Workflow

	found, err := r.store.readJSON(workflowsDir, workflow.ID, &existing)
	if err != nil {
		return persistence.NewWorkflowError("Save", workflow.ID, err)
	}

	if found {
		toWrite.TotalRuns = existing.TotalRuns
		toWrite.SuccessfulRuns = existing.SuccessfulRuns
		toWrite.FailedRuns = existing.FailedRuns
	}

	if err := r.store.writeJSON(workflowsDir, workflow.ID, &toWrite); err != nil {
		return persistence.NewWorkflowError("Save", workflow.ID, err)
	}

	return nil
}

// GetByID retrieves a workflow by its ID.
func (r *WorkflowRepository) GetByID(_ context.Context, id string) (*models.Workflow, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	return r.get(id)
}

func (r *WorkflowRepository) get(id string) (*models.Workflow, error) {
	var workflow models.Workflow

	found, err := r.store.readJSON(workflowsDir, id, &workflow)
	if err != nil {
		return nil, persistence.NewWorkflowError("GetByID", id, err)
	}

	if !found {
		return nil, persistence.NewWorkflowError("GetByID", id, persistence.ErrWorkflowNotFound)
	}

	return &workflow, nil
}

// List returns workflows matching opts, newest first.
func (r *WorkflowRepository) List(_ context.Context, opts persistence.ListWorkflowsOptions) ([]*models.Workflow, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	all, err := r.all()
	if err != nil {
		return nil, err
	}

	workflows := make([]*models.Workflow, 0, len(all))

	for _, workflow := range all {
		if opts.OrgID != "" && workflow.OrgID != opts.OrgID {
			continue
		}

		if opts.Status != nil && workflow.Status != *opts.Status {
			continue
		}

		workflows = append(workflows, workflow)
	}

	sort.Slice(workflows, func(i, j int) bool {
		return workflows[i].CreatedAt.After(workflows[j].CreatedAt)
	})

	return workflows, nil
}

// ActiveByTrigger returns the org's active workflows for trigger in evaluation order.
func (r *WorkflowRepository) ActiveByTrigger(_ context.Context, orgID string, trigger models.TriggerType) ([]*models.Workflow, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	all, err := r.all()
	if err != nil {
		return nil, err
	}

	var workflows []*models.Workflow

	for _, workflow := range all {
		if workflow.OrgID == orgID && workflow.Trigger == trigger && workflow.IsActive() {
			workflows = append(workflows, workflow)
		}
	}

	sort.SliceStable(workflows, func(i, j int) bool {
		if workflows[i].Priority != workflows[j].Priority {
			return workflows[i].Priority < workflows[j].Priority
		}

		return workflows[i].CreatedAt.Before(workflows[j].CreatedAt)
	})

	return workflows, nil
}

// Delete removes a workflow by its ID.
func (r *WorkflowRepository) Delete(_ context.Context, id string) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	err := os.Remove(r.store.path(workflowsDir, id))
	if err != nil && !os.IsNotExist(err) {
		return persistence.NewWorkflowError("Delete", id, err)
	}

	return nil
}

// incrementCounters adds counters to the stored workflow. Caller holds the store lock.
func (r *WorkflowRepository) incrementCounters(id string, counters models.RunCounters) error {
	workflow, err := r.get(id)
	if err != nil {
		return err
	}

	workflow.TotalRuns += counters.Total
	workflow.SuccessfulRuns += counters.Successful
	workflow.FailedRuns += counters.Failed

	if err := r.store.writeJSON(workflowsDir, id, workflow); err != nil {
		return persistence.NewWorkflowError("IncrementCounters", id, err)
	}

	return nil
}

func (r *WorkflowRepository) all() ([]*models.Workflow, error) {
	ids, err := r.store.listIDs(workflowsDir)
	if err != nil {
		return nil, fmt.Errorf("failed to list workflows: %w", err)
	}

	workflows := make([]*models.Workflow, 0, len(ids))

	for _, id := range ids {
		workflow, err := r.get(id)
		if err != nil {
			return nil, err
		}

		workflows = append(workflows, workflow)
	}

	return workflows, nil
}
