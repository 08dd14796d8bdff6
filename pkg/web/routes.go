package web

import "github.com/gofiber/fiber/v3"

// Register mounts the automation API on router.
func Register(router fiber.Router, h *APIHandlers) {
	router.Get("/health", h.HealthCheck)
	router.Post("/events", h.IngestEvent)

	w := router.Group("/workflows")
	w.Get("/", h.GetWorkflows)
	w.Post("/", h.CreateWorkflow)
	w.Get("/:id", h.GetWorkflow)
	w.Put("/:id", h.UpdateWorkflow)
	w.Delete("/:id", h.DeleteWorkflow)
	w.Post("/:id/status", h.SetWorkflowStatus)
	w.Get("/:id/logs", h.GetWorkflowLogs)
	w.Get("/:id/enrollments", h.GetWorkflowEnrollments)
	w.Post("/:id/enrollments", h.EnrollClient)

	// Graph editing
	w.Post("/:id/blocks", h.CreateBlock)
	w.Put("/:id/blocks/:blockId", h.UpdateBlock)
	w.Delete("/:id/blocks/:blockId", h.DeleteBlock)
	w.Post("/:id/connections", h.CreateConnection)
	w.Delete("/:id/connections/:connectionId", h.DeleteConnection)

	e := router.Group("/enrollments")
	e.Get("/:id", h.GetEnrollment)
	e.Post("/:id/tick", h.TickEnrollment)
	e.Post("/:id/cancel", h.CancelEnrollment)
	e.Get("/:id/logs", h.GetEnrollmentLogs)
}
