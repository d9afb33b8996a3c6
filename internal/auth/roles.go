package auth

import (
	"github.com/gofiber/fiber/v2"

	"github.com/vestlabs/vesting-service/internal/domain"
	apperrors "github.com/vestlabs/vesting-service/pkg/util"
)

// RequireRole ensures the principal carries the given role.
func RequireRole(role domain.Role) fiber.Handler {
	return func(c *fiber.Ctx) error {
		principal, ok := PrincipalFromContext(c)
		if !ok {
			return apperrors.NewUnauthenticated("authentication required")
		}
		if !principal.HasRole(role) {
			return apperrors.NewForbidden("insufficient role")
		}
		return c.Next()
	}
}

// RequireAnyRole ensures the caller is authenticated.
func RequireAnyRole() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if _, ok := PrincipalFromContext(c); !ok {
			return apperrors.NewUnauthenticated("authentication required")
		}
		return c.Next()
	}
}
