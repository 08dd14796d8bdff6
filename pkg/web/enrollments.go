package web

import (
	"github.com/gofiber/fiber/v3"

	"github.com/PwntasticKev/Honey-rae-aesthetics-sub003/pkg/enrollment"
	"github.com/PwntasticKev/Honey-rae-aesthetics-sub003/pkg/executor"
	"github.com/PwntasticKev/Honey-rae-aesthetics-sub003/pkg/models"
)

const reasonManual = "manual"

// EnrollClient enrolls a client into one workflow regardless of its trigger
// and conditions, then runs the first step.
func (h *APIHandlers) EnrollClient(c fiber.Ctx) error {
	var req EnrollRequest

	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format: "+err.Error())
	}

	if err := h.Validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	reason := req.Reason
	if reason == "" {
		reason = reasonManual
	}

	result, err := h.Enrollments.Enroll(c.Context(), enrollment.EnrollRequest{
		WorkflowID: c.Params("id"),
		ClientID:   req.ClientID,
		Reason:     reason,
		Context:    req.Context,
	})
	if err != nil {
		return handleServiceError(c, err)
	}

	resp := EnrollmentResponse{Skipped: result.Skipped, Superseded: result.Superseded}
	if result.Skipped {
		return c.JSON(resp)
	}

	outcome, err := h.Executor.Tick(c.Context(), executor.TickRequest{
		EnrollmentID: result.Enrollment.ID,
		Version:      result.Enrollment.Version,
	})
	if err != nil {
		return handleServiceError(c, err)
	}

	resp.Enrollment = result.Enrollment
	resp.Tick = tickResponse(outcome)

	return c.Status(fiber.StatusCreated).JSON(resp)
}

func (h *APIHandlers) GetEnrollment(c fiber.Ctx) error {
	e, err := h.Persistence.EnrollmentRepository().GetByID(c.Context(), c.Params("id"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(e)
}

func (h *APIHandlers) GetWorkflowEnrollments(c fiber.Ctx) error {
	status := models.EnrollmentStatus(c.Query("status", string(models.EnrollmentActive)))

	if _, err := h.Workflows.FetchByID(c.Context(), c.Params("id")); err != nil {
		return handleServiceError(c, err)
	}

	enrollments, err := h.Persistence.EnrollmentRepository().ListByWorkflow(c.Context(), c.Params("id"), status)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(fiber.Map{"enrollments": enrollments})
}

// TickEnrollment runs one step now if the enrollment is due.
func (h *APIHandlers) TickEnrollment(c fiber.Ctx) error {
	outcome, err := h.Executor.Tick(c.Context(), executor.TickRequest{
		EnrollmentID: c.Params("id"),
		Version:      executor.AnyVersion,
	})
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(tickResponse(outcome))
}

func (h *APIHandlers) CancelEnrollment(c fiber.Ctx) error {
	var req CancelRequest

	if len(c.Body()) > 0 {
		if err := c.Bind().JSON(&req); err != nil {
			return badRequest(c, "Invalid JSON format: "+err.Error())
		}
	}

	if req.Reason == "" {
		req.Reason = reasonManual
	}

	e, err := h.Enrollments.Cancel(c.Context(), c.Params("id"), req.Reason)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(e)
}

func (h *APIHandlers) GetEnrollmentLogs(c fiber.Ctx) error {
	return h.listLogs(c, models.ExecutionLogFilter{EnrollmentID: c.Params("id")})
}
