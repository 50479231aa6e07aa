package middleware

import (
	"context"
	"strings"

	"forgegate/internal/config"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
)

var cfg *config.Config

// InitMiddleware initializes authentication middleware with the given config.
func InitMiddleware(c *config.Config) {
	cfg = c
}

// AuthRequired enforces a gateway-issued bearer token. The chat gateway
// authenticates platform users itself and mints short-lived tokens carrying
// the acting user's platform ID, display name, and admin flag.
func AuthRequired(c *fiber.Ctx) error {
	authHeader := c.Get("Authorization")
	if authHeader == "" {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "Authorization header required",
		})
	}

	parts := strings.Split(authHeader, " ")
	if len(parts) != 2 || parts[0] != "Bearer" {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "Invalid authorization header format",
		})
	}

	token, err := jwt.Parse(parts[1], func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fiber.NewError(fiber.StatusUnauthorized, "Invalid signing method")
		}
		return []byte(cfg.JWTSecret), nil
	})
	if err != nil || !token.Valid {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "Invalid or expired token",
		})
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "Invalid token claims",
		})
	}

	actorID, ok := claims["sub"].(string)
	if !ok || actorID == "" {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "Invalid token structure - missing subject",
		})
	}

	actorName, _ := claims["name"].(string)
	isAdmin, _ := claims["admin"].(bool)

	c.Locals("actorID", actorID)
	c.Locals("actorName", actorName)
	c.Locals("isAdmin", isAdmin)

	// Sync actor ID into the request context for the context-aware logger.
	ctx := context.WithValue(c.UserContext(), ActorIDKey, actorID)
	c.SetUserContext(ctx)

	return c.Next()
}

// AdminRequired rejects actors whose token does not carry the admin claim.
// Must be placed after AuthRequired.
func AdminRequired(c *fiber.Ctx) error {
	isAdmin, _ := c.Locals("isAdmin").(bool)
	if !isAdmin {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
			"error": "Admin access required",
		})
	}
	return c.Next()
}
