package handlers

import (
	"strconv"

	"github.com/gofiber/fiber/v2"

	"github.com/vestlabs/vesting-service/internal/auth"
	"github.com/vestlabs/vesting-service/internal/domain"
	apperrors "github.com/vestlabs/vesting-service/pkg/util"
)

func callerFrom(c *fiber.Ctx) (domain.Identity, error) {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok || principal.Identity.IsZero() {
		return "", apperrors.NewUnauthenticated("authentication required")
	}
	return principal.Identity, nil
}

func parseAmountField(field, raw string) (uint64, error) {
	amount, err := domain.ParseAmount(raw)
	if err != nil {
		return 0, apperrors.NewValidationError(field+" must be a non-negative base-unit integer", map[string]any{"field": field})
	}
	return amount, nil
}

func queryInt(c *fiber.Ctx, key string, fallback int) (int, error) {
	raw := c.Query(key)
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, apperrors.NewValidationError("invalid "+key, map[string]any{"field": key})
	}
	return v, nil
}
