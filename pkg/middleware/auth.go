package middleware

import (
	"context"
	"strings"

	"ks-ai/pkg/auth"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

func AuthMiddleware(verifier *auth.JWTVerifier, logger *zap.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		token := c.Get("Authorization")
		if token == "" {
			logger.Warn("Missing authorization token")
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Authorization token required",
			})
		}

		token = strings.TrimPrefix(token, "Bearer ")

		claims, err := verifier.ValidateToken(token)
		if err != nil {
			logger.Warn("Invalid token", zap.Error(err))
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Invalid or expired token",
			})
		}

		c.Locals("userID", claims.UserID())
		c.Locals("email", claims.Email)
		c.Locals("role", claims.Role)

		return c.Next()
	}
}

// RoleLookup resolves the current role of a user.
type RoleLookup interface {
	UserRole(ctx context.Context, userID string) (string, error)
}

// AdminOnly must run after AuthMiddleware. With a RoleLookup the stored role
// decides; without one the token's role claim does.
func AdminOnly(roles RoleLookup, logger *zap.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID, _ := c.Locals("userID").(string)
		role, _ := c.Locals("role").(string)

		if roles != nil {
			stored, err := roles.UserRole(c.Context(), userID)
			if err != nil {
				logger.Error("Failed to load user role", zap.String("user_id", userID), zap.Error(err))
				return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
					"error": "Failed to check permissions",
				})
			}
			role = stored
		}

		if role != auth.RoleAdmin {
			logger.Warn("Admin access denied", zap.String("user_id", userID))
			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
				"error": "Admin privileges required",
			})
		}
		return c.Next()
	}
}
