package web

import (
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/PwntasticKev/Honey-rae-aesthetics-sub003/pkg/enrollment"
	"github.com/PwntasticKev/Honey-rae-aesthetics-sub003/pkg/eventbus"
	"github.com/PwntasticKev/Honey-rae-aesthetics-sub003/pkg/executionlog"
	"github.com/PwntasticKev/Honey-rae-aesthetics-sub003/pkg/executor"
	"github.com/PwntasticKev/Honey-rae-aesthetics-sub003/pkg/models"
	"github.com/PwntasticKev/Honey-rae-aesthetics-sub003/pkg/persistence"
	"github.com/PwntasticKev/Honey-rae-aesthetics-sub003/pkg/services"
	"github.com/PwntasticKev/Honey-rae-aesthetics-sub003/pkg/trigger"
)

// Dependencies are the engine components behind the API. Publisher is
// optional; without it events are always handled inline.
type Dependencies struct {
	Persistence persistence.Persistence
	Workflows   *services.Workflow
	Lifecycle   *services.Lifecycle
	Matcher     *trigger.Matcher
	Enrollments *enrollment.Manager
	Executor    *executor.Executor
	Recorder    *executionlog.Recorder
	Publisher   eventbus.EventPublisher
	Validator   *validator.Validate
	Clock       clockwork.Clock
}

type APIHandlers struct {
	Dependencies
}

func NewAPIHandlers(deps Dependencies) *APIHandlers {
	return &APIHandlers{Dependencies: deps}
}

func (h *APIHandlers) HealthCheck(c fiber.Ctx) error {
	message, ok := h.Workflows.HealthCheck(c.Context())
	if !ok {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"status":    "unhealthy",
			"message":   message,
			"timestamp": h.Clock.Now().UTC(),
		})
	}

	return c.JSON(fiber.Map{
		"status":    "healthy",
		"message":   message,
		"timestamp": h.Clock.Now().UTC(),
	})
}

func (h *APIHandlers) GetWorkflows(c fiber.Ctx) error {
	req := services.ListWorkflowsRequest{OrgID: c.Query("org_id")}

	if statusStr := c.Query("status"); statusStr != "" {
		status := models.WorkflowStatus(statusStr)
		req.Status = &status
	}

	workflows, err := h.Workflows.ListWorkflows(c.Context(), req)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(fiber.Map{
		"workflows":   workflows,
		"total_count": len(workflows),
	})
}

func (h *APIHandlers) GetWorkflow(c fiber.Ctx) error {
	workflow, err := h.Workflows.FetchByID(c.Context(), c.Params("id"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(workflow)
}

func (h *APIHandlers) CreateWorkflow(c fiber.Ctx) error {
	var req WorkflowRequest

	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format: "+err.Error())
	}

	if err := h.Validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	workflow, err := h.Workflows.Create(c.Context(), req.toModel())
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(workflow)
}

func (h *APIHandlers) UpdateWorkflow(c fiber.Ctx) error {
	var req WorkflowRequest

	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format: "+err.Error())
	}

	if err := h.Validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	workflow, err := h.Workflows.Update(c.Context(), c.Params("id"), req.toModel())
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(workflow)
}

func (h *APIHandlers) DeleteWorkflow(c fiber.Ctx) error {
	if err := h.Workflows.Delete(c.Context(), c.Params("id")); err != nil {
		return handleServiceError(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

func (h *APIHandlers) SetWorkflowStatus(c fiber.Ctx) error {
	var req SetStatusRequest

	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format: "+err.Error())
	}

	if err := h.Validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	change, err := h.Lifecycle.SetStatus(c.Context(), c.Params("id"), req.Status)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(change)
}

func (h *APIHandlers) GetWorkflowLogs(c fiber.Ctx) error {
	filter := models.ExecutionLogFilter{
		WorkflowID: c.Params("id"),
		ClientID:   c.Query("client_id"),
	}

	return h.listLogs(c, filter)
}

func (h *APIHandlers) listLogs(c fiber.Ctx, filter models.ExecutionLogFilter) error {
	if limitStr := c.Query("limit"); limitStr != "" {
		limit, err := strconv.Atoi(limitStr)
		if err != nil || limit < 0 {
			return badRequest(c, "limit must be a non-negative integer")
		}

		filter.Limit = limit
	}

	entries, err := h.Recorder.List(c.Context(), filter)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(fiber.Map{"logs": entries})
}

func newEventID() string {
	return uuid.New().String()
}

func tickResponse(outcome *executor.Outcome) *TickResponse {
	if outcome == nil {
		return nil
	}

	resp := &TickResponse{
		Result:     string(outcome.Result),
		SkipReason: string(outcome.SkipReason),
		Status:     outcome.Status,
		Step:       outcome.Step,
		Version:    outcome.Version,
		Log:        outcome.Log,
	}

	if outcome.NextExecutionAt != nil {
		next := outcome.NextExecutionAt.UTC().Format(time.RFC3339)
		resp.NextExecutionAt = &next
	}

	return resp
}
