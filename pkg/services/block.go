package services

import (
	"context"
	"fmt"
	"slices"

	"github.com/google/uuid"

	"github.com/PwntasticKev/Honey-rae-aesthetics-sub003/pkg/models"
)

// AddBlock appends block to a draft or inactive workflow's graph.
func (w *Workflow) AddBlock(ctx context.Context, workflowID string, block *models.Block) (*models.Workflow, error) {
	return w.editGraph(ctx, "AddBlock", workflowID, func(workflow *models.Workflow) error {
		if block.ID == "" {
			block.ID = uuid.New().String()
		}

		if _, exists := workflow.BlockByID(block.ID); exists {
			return fmt.Errorf("block %s: %w", block.ID, ErrBlockExists)
		}

		workflow.Blocks = append(workflow.Blocks, block)

		return nil
	})
}

// UpdateBlock replaces the block with the same ID. Connections are kept.
func (w *Workflow) UpdateBlock(ctx context.Context, workflowID string, block *models.Block) (*models.Workflow, error) {
	return w.editGraph(ctx, "UpdateBlock", workflowID, func(workflow *models.Workflow) error {
		i := slices.IndexFunc(workflow.Blocks, func(b *models.Block) bool { return b.ID == block.ID })
		if i < 0 {
			return fmt.Errorf("block %s: %w", block.ID, ErrBlockNotFound)
		}

		workflow.Blocks[i] = block

		return nil
	})
}

// DeleteBlock removes a block and every connection touching it.
func (w *Workflow) DeleteBlock(ctx context.Context, workflowID, blockID string) (*models.Workflow, error) {
	return w.editGraph(ctx, "DeleteBlock", workflowID, func(workflow *models.Workflow) error {
		before := len(workflow.Blocks)
		workflow.Blocks = slices.DeleteFunc(workflow.Blocks, func(b *models.Block) bool { return b.ID == blockID })

		if len(workflow.Blocks) == before {
			return fmt.Errorf("block %s: %w", blockID, ErrBlockNotFound)
		}

		workflow.Connections = slices.DeleteFunc(workflow.Connections, func(c *models.Connection) bool {
			return c.From == blockID || c.To == blockID
		})

		return nil
	})
}

// Connect adds an edge between two existing blocks.
func (w *Workflow) Connect(ctx context.Context, workflowID string, conn *models.Connection) (*models.Workflow, error) {
	return w.editGraph(ctx, "Connect", workflowID, func(workflow *models.Workflow) error {
		if conn.ID == "" {
			conn.ID = uuid.New().String()
		}

		workflow.Connections = append(workflow.Connections, conn)

		return nil
	})
}

// Disconnect removes an edge by ID.
func (w *Workflow) Disconnect(ctx context.Context, workflowID, connectionID string) (*models.Workflow, error) {
	return w.editGraph(ctx, "Disconnect", workflowID, func(workflow *models.Workflow) error {
		before := len(workflow.Connections)
		workflow.Connections = slices.DeleteFunc(workflow.Connections, func(c *models.Connection) bool {
			return c.ID == connectionID
		})

		if len(workflow.Connections) == before {
			return fmt.Errorf("connection %s: %w", connectionID, ErrConnectionNotFound)
		}

		return nil
	})
}

func (w *Workflow) editGraph(ctx context.Context, op, workflowID string, edit func(*models.Workflow) error) (*models.Workflow, error) {
	workflow, err := w.persistence.WorkflowRepository().GetByID(ctx, workflowID)
	if err != nil {
		return nil, err
	}

	if !editable(workflow.Status) {
		return nil, fmt.Errorf("workflow %s is %s: %w", workflowID, workflow.Status, ErrCannotModifyActive)
	}

	if err := edit(workflow); err != nil {
		return nil, err
	}

	if err := w.validate.Struct(workflow); err != nil {
		return nil, NewValidationError(op, "INVALID_BLOCK", err.Error(), ErrInvalidRequest)
	}

	if err := checkGraph(op, workflow); err != nil {
		return nil, err
	}

	workflow.UpdatedAt = w.clock.Now().UTC()

	if err := w.persistence.WorkflowRepository().Save(ctx, workflow); err != nil {
		return nil, fmt.Errorf("failed to save workflow graph: %w", err)
	}

	w.logger.DebugContext(ctx, "Workflow graph edited", "workflow_id", workflowID, "op", op)

	return workflow, nil
}
