package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strconv"

	"github.com/redis/go-redis/v9"

	"github.com/PwntasticKev/Honey-rae-aesthetics-sub003/pkg/models"
	"github.com/PwntasticKev/Honey-rae-aesthetics-sub003/pkg/persistence"
)

const (
	fieldData       = "data"
	fieldTotal      = "total_runs"
	fieldSuccessful = "successful_runs"
	fieldFailed     = "failed_runs"
)

// WorkflowRepository stores each workflow as a hash: the definition as JSON
// plus counters that are only ever incremented.
type WorkflowRepository struct {
	client *redis.Client
	keys   keyspace
	logger *slog.Logger
}

// Save writes the definition. Counters are seeded for new workflows and never overwritten.
func (r *WorkflowRepository) Save(ctx context.Context, workflow *models.Workflow) error {
	definition := *workflow
	definition.TotalRuns, definition.SuccessfulRuns, definition.FailedRuns = 0, 0, 0

	data, err := json.Marshal(&definition)
	if err != nil {
		return persistence.NewWorkflowError("Save", workflow.ID, err)
	}

	previous, err := r.load(ctx, workflow.ID)
	if err != nil && !persistence.IsWorkflowNotFound(err) {
		return err
	}

	key := r.keys.workflow(workflow.ID)

	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, key, fieldData, data)
		pipe.HSetNX(ctx, key, fieldTotal, workflow.TotalRuns)
		pipe.HSetNX(ctx, key, fieldSuccessful, workflow.SuccessfulRuns)
		pipe.HSetNX(ctx, key, fieldFailed, workflow.FailedRuns)

		if previous != nil && previous.OrgID != workflow.OrgID {
			pipe.ZRem(ctx, r.keys.workflowsByOrg(previous.OrgID), workflow.ID)
		}

		member := redis.Z{Score: score(workflow.CreatedAt), Member: workflow.ID}
		pipe.ZAdd(ctx, r.keys.workflowsByOrg(workflow.OrgID), member)
		pipe.ZAdd(ctx, r.keys.workflowsAll(), member)

		return nil
	})
	if err != nil {
		return persistence.NewWorkflowError("Save", workflow.ID, err)
	}

	return nil
}

func (r *WorkflowRepository) GetByID(ctx context.Context, id string) (*models.Workflow, error) {
	return r.load(ctx, id)
}

func (r *WorkflowRepository) load(ctx context.Context, id string) (*models.Workflow, error) {
	fields, err := r.client.HGetAll(ctx, r.keys.workflow(id)).Result()
	if err != nil {
		return nil, persistence.NewWorkflowError("GetByID", id, err)
	}

	data, ok := fields[fieldData]
	if !ok {
		return nil, persistence.NewWorkflowError("GetByID", id, persistence.ErrWorkflowNotFound)
	}

	var workflow models.Workflow
	if err := json.Unmarshal([]byte(data), &workflow); err != nil {
		return nil, persistence.NewWorkflowError("GetByID", id, fmt.Errorf("failed to unmarshal workflow: %w", err))
	}

	workflow.TotalRuns = parseCounter(fields[fieldTotal])
	workflow.SuccessfulRuns = parseCounter(fields[fieldSuccessful])
	workflow.FailedRuns = parseCounter(fields[fieldFailed])

	return &workflow, nil
}

// List returns workflows matching opts, newest first.
func (r *WorkflowRepository) List(ctx context.Context, opts persistence.ListWorkflowsOptions) ([]*models.Workflow, error) {
	index := r.keys.workflowsAll()
	if opts.OrgID != "" {
		index = r.keys.workflowsByOrg(opts.OrgID)
	}

	ids, err := r.client.ZRevRange(ctx, index, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list workflows: %w", err)
	}

	workflows := make([]*models.Workflow, 0, len(ids))

	for _, workflow := range r.loadAll(ctx, ids) {
		if opts.Status != nil && workflow.Status != *opts.Status {
			continue
		}

		workflows = append(workflows, workflow)
	}

	return workflows, nil
}

func (r *WorkflowRepository) ActiveByTrigger(ctx context.Context, orgID string, trigger models.TriggerType) ([]*models.Workflow, error) {
	ids, err := r.client.ZRange(ctx, r.keys.workflowsByOrg(orgID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list workflows: %w", err)
	}

	var workflows []*models.Workflow

	for _, workflow := range r.loadAll(ctx, ids) {
		if workflow.Trigger == trigger && workflow.IsActive() {
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

func (r *WorkflowRepository) Delete(ctx context.Context, id string) error {
	workflow, err := r.load(ctx, id)
	if err != nil {
		if persistence.IsWorkflowNotFound(err) {
			return nil
		}

		return err
	}

	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, r.keys.workflow(id))
		pipe.ZRem(ctx, r.keys.workflowsByOrg(workflow.OrgID), id)
		pipe.ZRem(ctx, r.keys.workflowsAll(), id)

		return nil
	})
	if err != nil {
		return persistence.NewWorkflowError("Delete", id, err)
	}

	return nil
}

func (r *WorkflowRepository) loadAll(ctx context.Context, ids []string) []*models.Workflow {
	workflows := make([]*models.Workflow, 0, len(ids))

	for _, id := range ids {
		workflow, err := r.load(ctx, id)
		if err != nil {
			if !errors.Is(err, persistence.ErrWorkflowNotFound) {
				r.logger.ErrorContext(ctx, "skipping unreadable workflow", "workflow_id", id, "error", err)
			}

			continue
		}

		workflows = append(workflows, workflow)
	}

	return workflows
}

func parseCounter(raw string) int64 {
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0
	}

	return n
}
