package server

import (
	"strings"

	"forgegate/internal/models"

	"github.com/gofiber/fiber/v2"
)

// CreateRequestInput is the body for POST /api/requests.
type CreateRequestInput struct {
	GameName string `json:"game_name"`
}

// RequestDTO is the wire shape of a request.
type RequestDTO struct {
	ID             uint                 `json:"id"`
	PublicRef      string               `json:"public_ref"`
	RequesterID    string               `json:"requester_id"`
	RequesterName  string               `json:"requester_name,omitempty"`
	GameName       string               `json:"game_name"`
	Status         models.RequestStatus `json:"status"`
	DecisionReason string               `json:"decision_reason,omitempty"`
	AdminID        string               `json:"admin_id,omitempty"`
	InstanceRef    string               `json:"instance_ref,omitempty"`
	CreatedAt      string               `json:"created_at"`
	UpdatedAt      string               `json:"updated_at"`
}

func toRequestDTO(r *models.Request) RequestDTO {
	dto := RequestDTO{
		ID:             r.ID,
		PublicRef:      r.PublicRef,
		RequesterID:    r.RequesterID,
		RequesterName:  r.RequesterName,
		GameName:       r.GameName,
		Status:         r.Status,
		DecisionReason: r.DecisionReason,
		InstanceRef:    r.PanelInstanceRef,
		CreatedAt:      r.CreatedAt.UTC().Format("2006-01-02T15:04:05Z07:00"),
		UpdatedAt:      r.UpdatedAt.UTC().Format("2006-01-02T15:04:05Z07:00"),
	}
	if r.AdminID != nil {
		dto.AdminID = *r.AdminID
	}
	return dto
}

// GetGames handles GET /api/games.
func (s *Server) GetGames(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"games": s.requestService.Games()})
}

// CreateRequest handles POST /api/requests.
func (s *Server) CreateRequest(c *fiber.Ctx) error {
	var input CreateRequestInput
	if err := c.BodyParser(&input); err != nil {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("Invalid request body"))
	}
	if strings.TrimSpace(input.GameName) == "" {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("game_name is required"))
	}

	request, err := s.requestService.CreateRequest(c.UserContext(), actorID(c), actorName(c), input.GameName)
	if err != nil {
		return respondServiceError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(toRequestDTO(request))
}

// GetMyRequests handles GET /api/requests/me.
func (s *Server) GetMyRequests(c *fiber.Ctx) error {
	limit := c.QueryInt("limit", 20)

	requests, err := s.requestService.MyRequests(c.UserContext(), actorID(c), limit)
	if err != nil {
		return respondServiceError(c, err)
	}

	dtos := make([]RequestDTO, 0, len(requests))
	for i := range requests {
		dtos = append(dtos, toRequestDTO(&requests[i]))
	}
	return c.JSON(fiber.Map{"requests": dtos})
}

// GetRequest handles GET /api/requests/:id.
func (s *Server) GetRequest(c *fiber.Ctx) error {
	id, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}

	request, err := s.requestService.GetStatus(c.UserContext(), actorID(c), isAdmin(c), id)
	if err != nil {
		return respondServiceError(c, err)
	}
	return c.JSON(toRequestDTO(request))
}

// CancelRequest handles POST /api/requests/:id/cancel.
func (s *Server) CancelRequest(c *fiber.Ctx) error {
	id, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}

	request, err := s.requestService.CancelRequest(c.UserContext(), actorID(c), id)
	if err != nil {
		return respondServiceError(c, err)
	}
	return c.JSON(toRequestDTO(request))
}
