package handlers

import (
	"net/http"
	"strconv"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/incident-gateway/internal/api/dto"
	"github.com/spec-kit/incident-gateway/internal/domain"
	"github.com/spec-kit/incident-gateway/internal/service"
	apperrors "github.com/spec-kit/incident-gateway/pkg/util"
)

// IncidentsHandler exposes the bridge operations over REST. It is a thin
// adapter: all validation and identifier resolution happen in the shared
// incident service, the same backend the protocol stream uses.
type IncidentsHandler struct {
	incidents *service.IncidentService
}

// NewIncidentsHandler constructs handler.
func NewIncidentsHandler(incidents *service.IncidentService) *IncidentsHandler {
	return &IncidentsHandler{incidents: incidents}
}

// List GET /incidents.
func (h *IncidentsHandler) List(c *fiber.Ctx) error {
	limit := 100
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			return apperrors.NewValidationError("limit must be a positive integer", nil)
		}
		limit = parsed
	}

	records, err := h.incidents.List(c.Context(), limit, c.Query("query"), c.Query("priority"))
	if err != nil {
		return err
	}
	if records == nil {
		records = []domain.IncidentRecord{}
	}
	return c.JSON(fiber.Map{"data": records})
}

// Get GET /incidents/:id.
func (h *IncidentsHandler) Get(c *fiber.Ctx) error {
	record, err := h.incidents.Get(c.Context(), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": record})
}

// Create POST /incidents.
func (h *IncidentsHandler) Create(c *fiber.Ctx) error {
	var fields domain.IncidentFields
	if err := dto.Strict(c.Body(), &fields); err != nil {
		return apperrors.NewValidationError("invalid payload", map[string]any{"reason": err.Error()})
	}
	record, err := h.incidents.Create(c.Context(), fields)
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": record})
}

// Update PATCH /incidents/:id.
func (h *IncidentsHandler) Update(c *fiber.Ctx) error {
	var fields domain.IncidentFields
	if err := dto.Strict(c.Body(), &fields); err != nil {
		return apperrors.NewValidationError("invalid payload", map[string]any{"reason": err.Error()})
	}
	record, err := h.incidents.Update(c.Context(), c.Params("id"), fields)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": record})
}

// Delete DELETE /incidents/:id.
func (h *IncidentsHandler) Delete(c *fiber.Ctx) error {
	if err := h.incidents.Delete(c.Context(), c.Params("id")); err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": fiber.Map{"deleted": c.Params("id")}})
}

// Assign POST /incidents/:id/assign.
func (h *IncidentsHandler) Assign(c *fiber.Ctx) error {
	var req dto.AssignRequest
	if err := dto.Strict(c.Body(), &req); err != nil {
		return apperrors.NewValidationError("invalid payload", map[string]any{"reason": err.Error()})
	}
	record, err := h.incidents.Assign(c.Context(), c.Params("id"), req.AssignedTo)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": record})
}

// Resolve POST /incidents/:id/resolve.
func (h *IncidentsHandler) Resolve(c *fiber.Ctx) error {
	var req dto.ResolveRequest
	if err := dto.Strict(c.Body(), &req); err != nil {
		return apperrors.NewValidationError("invalid payload", map[string]any{"reason": err.Error()})
	}
	record, err := h.incidents.Resolve(c.Context(), c.Params("id"), req.CloseNotes)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": record})
}
