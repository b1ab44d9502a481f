package handlers

import (
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/maintenance-dispatch/internal/api/dto"
	"github.com/spec-kit/maintenance-dispatch/internal/service"
	apperrors "github.com/spec-kit/maintenance-dispatch/pkg/util"
)

// TicketsHandler exposes the workflow's system boundary: submission, the
// assignment action, and state inspection.
type TicketsHandler struct {
	intake *service.IntakeService
}

// NewTicketsHandler constructs handler.
func NewTicketsHandler(intake *service.IntakeService) *TicketsHandler {
	return &TicketsHandler{intake: intake}
}

// CreateTicket POST /tickets.
func (h *TicketsHandler) CreateTicket(c *fiber.Ctx) error {
	var req dto.CreateTicketRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if req.PropertyID == "" {
		return apperrors.NewValidationError("property_id required", nil)
	}

	ticket, err := h.intake.CreateTicket(c.UserContext(), service.TicketCreateInput{
		PropertyID:  req.PropertyID,
		UnitNumber:  req.UnitNumber,
		Description: req.Description,
	})
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": dto.FromTicket(ticket)})
}

// GetTicket GET /tickets/:id.
func (h *TicketsHandler) GetTicket(c *fiber.Ctx) error {
	ticket, err := h.intake.GetTicket(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.FromTicket(ticket)})
}

// AssignTicket POST /tickets/:id/assign.
func (h *TicketsHandler) AssignTicket(c *fiber.Ctx) error {
	var req dto.AssignTicketRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	ticket, err := h.intake.AssignTicket(c.UserContext(), c.Params("id"), req.ContractorID)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.FromTicket(ticket)})
}

// RegisterToken POST /contractors/:id/fcm-tokens.
func (h *TicketsHandler) RegisterToken(c *fiber.Ctx) error {
	var req dto.RegisterTokenRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if err := h.intake.RegisterFcmToken(c.UserContext(), c.Params("id"), req.Token); err != nil {
		return err
	}
	return c.SendStatus(http.StatusNoContent)
}
