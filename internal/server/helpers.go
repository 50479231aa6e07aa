package server

import (
	"errors"

	"forgegate/internal/models"

	"github.com/gofiber/fiber/v2"
)

// errResponseWritten is a sentinel indicating the HTTP response was already
// committed by a helper. Handlers must return nil when they see it.
var errResponseWritten = errors.New("response already written")

// parseID extracts a route parameter as a positive uint. On failure it
// writes a 400 JSON response and returns errResponseWritten.
func (s *Server) parseID(c *fiber.Ctx, param string) (uint, error) {
	id, err := c.ParamsInt(param)
	if err != nil || id <= 0 {
		_ = models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("Invalid request ID"))
		return 0, errResponseWritten
	}
	return uint(id), nil
}

// respondServiceError maps a service error onto the HTTP response.
func respondServiceError(c *fiber.Ctx, err error) error {
	return models.RespondWithError(c, models.StatusForError(err), err)
}

// actorID returns the authenticated caller's ID from locals.
func actorID(c *fiber.Ctx) string {
	if v, ok := c.Locals("actorID").(string); ok {
		return v
	}
	return ""
}

// actorName returns the authenticated caller's display name from locals.
func actorName(c *fiber.Ctx) string {
	if v, ok := c.Locals("actorName").(string); ok {
		return v
	}
	return ""
}

func isAdmin(c *fiber.Ctx) bool {
	v, ok := c.Locals("isAdmin").(bool)
	return ok && v
}
