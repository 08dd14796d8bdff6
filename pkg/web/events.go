package web

import (
	"github.com/gofiber/fiber/v3"

	"github.com/PwntasticKev/Honey-rae-aesthetics-sub003/pkg/events"
	"github.com/PwntasticKev/Honey-rae-aesthetics-sub003/pkg/models"
	"github.com/PwntasticKev/Honey-rae-aesthetics-sub003/pkg/trigger"
)

// IngestEvent matches a business event against the org's workflows. With
// ?async=true and a configured bus the event is queued for the worker instead.
func (h *APIHandlers) IngestEvent(c fiber.Ctx) error {
	var event models.Event

	if err := c.Bind().JSON(&event); err != nil {
		return badRequest(c, "Invalid JSON format: "+err.Error())
	}

	if err := h.Validator.Struct(event); err != nil {
		return badRequest(c, err.Error())
	}

	if event.ID == "" {
		event.ID = newEventID()
	}

	if event.OccurredAt.IsZero() {
		event.OccurredAt = h.Clock.Now().UTC()
	}

	if c.Query("async") == "true" && h.Publisher != nil {
		if !event.Type.IsValid() {
			return badRequest(c, "unknown trigger type: "+string(event.Type))
		}

		msg := events.NewTriggerReceived(event, h.Clock.Now().UTC())
		if err := h.Publisher.Publish(c.Context(), event.ClientID, msg); err != nil {
			return internalError(c, err)
		}

		return c.Status(fiber.StatusAccepted).JSON(EventResponse{EventID: event.ID, Queued: true})
	}

	report, err := h.Matcher.Handle(c.Context(), event)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusAccepted).JSON(eventResponse(report))
}

func eventResponse(report *trigger.Report) EventResponse {
	resp := EventResponse{
		EventID: report.EventID,
		Matched: report.Matched,
		Skipped: report.Skipped,
	}

	for _, enrolled := range report.Enrolled {
		resp.Enrolled = append(resp.Enrolled, EnrolledResponse{
			WorkflowID:   enrolled.WorkflowID,
			EnrollmentID: enrolled.EnrollmentID,
			Superseded:   enrolled.Superseded,
			Tick:         tickResponse(enrolled.Tick),
			TickError:    enrolled.TickError,
		})
	}

	for _, failure := range report.Failed {
		resp.Failed = append(resp.Failed, FailureResponse{WorkflowID: failure.WorkflowID, Error: failure.Error})
	}

	return resp
}
