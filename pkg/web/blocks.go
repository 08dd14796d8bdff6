package web

import (
	"github.com/gofiber/fiber/v3"

	"github.com/PwntasticKev/Honey-rae-aesthetics-sub003/pkg/models"
)

func (h *APIHandlers) CreateBlock(c fiber.Ctx) error {
	var block models.Block

	if err := c.Bind().JSON(&block); err != nil {
		return badRequest(c, "Invalid block: "+err.Error())
	}

	workflow, err := h.Workflows.AddBlock(c.Context(), c.Params("id"), &block)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(workflow)
}

func (h *APIHandlers) UpdateBlock(c fiber.Ctx) error {
	var block models.Block

	if err := c.Bind().JSON(&block); err != nil {
		return badRequest(c, "Invalid block: "+err.Error())
	}

	block.ID = c.Params("blockId")

	workflow, err := h.Workflows.UpdateBlock(c.Context(), c.Params("id"), &block)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(workflow)
}

func (h *APIHandlers) DeleteBlock(c fiber.Ctx) error {
	workflow, err := h.Workflows.DeleteBlock(c.Context(), c.Params("id"), c.Params("blockId"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(workflow)
}

func (h *APIHandlers) CreateConnection(c fiber.Ctx) error {
	var req ConnectionRequest

	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format: "+err.Error())
	}

	if err := h.Validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	workflow, err := h.Workflows.Connect(c.Context(), c.Params("id"), &models.Connection{
		ID:       req.ID,
		From:     req.From,
		To:       req.To,
		FromPort: req.FromPort,
		ToPort:   req.ToPort,
	})
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(workflow)
}

func (h *APIHandlers) DeleteConnection(c fiber.Ctx) error {
	workflow, err := h.Workflows.Disconnect(c.Context(), c.Params("id"), c.Params("connectionId"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(workflow)
}
