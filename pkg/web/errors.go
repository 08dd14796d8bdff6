package web

import (
	"errors"

	"github.com/gofiber/fiber/v3"
	"github.com/moogar0880/problems"

	"github.com/PwntasticKev/Honey-rae-aesthetics-sub003/pkg/delivery"
	"github.com/PwntasticKev/Honey-rae-aesthetics-sub003/pkg/enrollment"
	"github.com/PwntasticKev/Honey-rae-aesthetics-sub003/pkg/persistence"
	"github.com/PwntasticKev/Honey-rae-aesthetics-sub003/pkg/services"
	"github.com/PwntasticKev/Honey-rae-aesthetics-sub003/pkg/trigger"
)

func problem(c fiber.Ctx, status int, kind, detail string) error {
	p := problems.NewStatusProblem(status).
		WithInstance(c.Path()).
		WithType(kind).
		WithDetail(detail)

	return c.Status(status).JSON(p)
}

func badRequest(c fiber.Ctx, detail string) error {
	return problem(c, fiber.StatusBadRequest, "validation_error", detail)
}

func internalError(c fiber.Ctx, err error) error {
	p := problems.NewStatusProblem(fiber.StatusInternalServerError).
		WithInstance(c.Path()).
		WithType("internal_error").
		WithError(err)

	return c.Status(fiber.StatusInternalServerError).JSON(p)
}

// handleServiceError maps engine errors to problem responses.
func handleServiceError(c fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, services.ErrBlockNotFound):
		return problem(c, fiber.StatusNotFound, "block_not_found", err.Error())

	case errors.Is(err, services.ErrConnectionNotFound):
		return problem(c, fiber.StatusNotFound, "connection_not_found", err.Error())

	case services.IsValidationError(err),
		errors.Is(err, trigger.ErrInvalidEvent),
		errors.Is(err, trigger.ErrUnknownTrigger),
		errors.Is(err, enrollment.ErrClientRequired),
		errors.Is(err, delivery.ErrUnsupportedChannel):
		return problem(c, fiber.StatusBadRequest, "validation_error", err.Error())

	case services.IsConflictError(err),
		errors.Is(err, enrollment.ErrWorkflowNotActive),
		errors.Is(err, enrollment.ErrInvalidTransition),
		persistence.IsVersionConflict(err):
		return problem(c, fiber.StatusConflict, "conflict", err.Error())

	case persistence.IsWorkflowNotFound(err):
		return problem(c, fiber.StatusNotFound, "workflow_not_found", "workflow not found")

	case persistence.IsEnrollmentNotFound(err):
		return problem(c, fiber.StatusNotFound, "enrollment_not_found", "enrollment not found")

	default:
		return internalError(c, err)
	}
}
