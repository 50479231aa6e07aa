package server

import (
	"forgegate/internal/models"

	"github.com/gofiber/fiber/v2"
)

// DenyRequestInput is the body for POST /api/admin/requests/:id/deny.
type DenyRequestInput struct {
	Reason string `json:"reason"`
}

// AdminActionDTO is the wire shape of one audit entry.
type AdminActionDTO struct {
	ID        uint                   `json:"id"`
	RequestID uint                   `json:"request_id"`
	AdminID   string                 `json:"admin_id"`
	Action    models.AdminActionKind `json:"action"`
	Reason    string                 `json:"reason,omitempty"`
	CreatedAt string                 `json:"created_at"`
}

func toAdminActionDTO(a models.AdminAction) AdminActionDTO {
	return AdminActionDTO{
		ID:        a.ID,
		RequestID: a.RequestID,
		AdminID:   a.AdminID,
		Action:    a.Action,
		Reason:    a.Reason,
		CreatedAt: a.CreatedAt.UTC().Format("2006-01-02T15:04:05Z07:00"),
	}
}

// GetPendingRequests handles GET /api/admin/requests/pending.
func (s *Server) GetPendingRequests(c *fiber.Ctx) error {
	requests, err := s.requestService.ListPending(c.UserContext())
	if err != nil {
		return respondServiceError(c, err)
	}

	dtos := make([]RequestDTO, 0, len(requests))
	for i := range requests {
		dtos = append(dtos, toRequestDTO(&requests[i]))
	}
	return c.JSON(fiber.Map{"requests": dtos})
}

// ApproveRequest handles POST /api/admin/requests/:id/approve.
func (s *Server) ApproveRequest(c *fiber.Ctx) error {
	id, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}

	request, err := s.adminService.Approve(c.UserContext(), actorID(c), id)
	if err != nil {
		return respondServiceError(c, err)
	}
	return c.JSON(toRequestDTO(request))
}

// DenyRequest handles POST /api/admin/requests/:id/deny.
func (s *Server) DenyRequest(c *fiber.Ctx) error {
	id, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}

	var input DenyRequestInput
	if err := c.BodyParser(&input); err != nil {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("Invalid request body"))
	}

	request, err := s.adminService.Deny(c.UserContext(), actorID(c), id, input.Reason)
	if err != nil {
		return respondServiceError(c, err)
	}
	return c.JSON(toRequestDTO(request))
}

// UpdateTemplateInput is the body for PUT /api/admin/templates/:game.
type UpdateTemplateInput struct {
	TemplateID int `json:"template_id"`
}

// UpdateGameTemplate handles PUT /api/admin/templates/:game. The override
// lasts until restart; it exists so admins can repoint a game at a new panel
// template without a redeploy.
func (s *Server) UpdateGameTemplate(c *fiber.Ctx) error {
	var input UpdateTemplateInput
	if err := c.BodyParser(&input); err != nil {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("Invalid request body"))
	}

	game := c.Params("game")
	if err := s.catalog.SetTemplateID(game, input.TemplateID); err != nil {
		return respondServiceError(c, err)
	}

	tmpl, _ := s.catalog.Get(game)
	return c.JSON(tmpl)
}

// GetRequestAudit handles GET /api/admin/requests/:id/audit.
func (s *Server) GetRequestAudit(c *fiber.Ctx) error {
	id, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}

	actions, err := s.adminService.AuditTrail(c.UserContext(), id)
	if err != nil {
		return respondServiceError(c, err)
	}

	dtos := make([]AdminActionDTO, 0, len(actions))
	for _, a := range actions {
		dtos = append(dtos, toAdminActionDTO(a))
	}
	return c.JSON(fiber.Map{"actions": dtos})
}
