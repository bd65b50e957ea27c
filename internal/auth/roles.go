package auth

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/incident-gateway/internal/domain"
	apperrors "github.com/spec-kit/incident-gateway/pkg/util"
)

// RequireRole ensures the session carries the given role. Runs after
// Handle, so a missing session here means the route was miswired; the
// distinct 403 (vs 401 from Handle) keeps authentication and
// authorization as separate checks.
func RequireRole(role domain.Role) fiber.Handler {
	return func(c *fiber.Ctx) error {
		session, ok := SessionFromContext(c)
		if !ok {
			return apperrors.NewUnauthorized("authentication required")
		}
		if session.Role != role {
			return apperrors.NewForbidden(string(role) + " role required")
		}
		return c.Next()
	}
}

// RequireAnyRole ensures the caller is authenticated, regardless of role.
func RequireAnyRole() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if _, ok := SessionFromContext(c); !ok {
			return apperrors.NewUnauthorized("authentication required")
		}
		return c.Next()
	}
}
