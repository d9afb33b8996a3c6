package handlers

import (
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/jonboulle/clockwork"

	"github.com/vestlabs/vesting-service/internal/api/dto"
	"github.com/vestlabs/vesting-service/internal/domain"
	"github.com/vestlabs/vesting-service/internal/schedule"
	"github.com/vestlabs/vesting-service/internal/service"
	apperrors "github.com/vestlabs/vesting-service/pkg/util"
)

// GrantsHandler serves beneficiary endpoints. The clock supplies claim time.
type GrantsHandler struct {
	service *service.VestingService
	clock   clockwork.Clock
}

// NewGrantsHandler constructs handler.
func NewGrantsHandler(vestingService *service.VestingService, clock clockwork.Clock) *GrantsHandler {
	return &GrantsHandler{service: vestingService, clock: clock}
}

// ListGrants GET /grants.
func (h *GrantsHandler) ListGrants(c *fiber.Ctx) error {
	caller, err := callerFrom(c)
	if err != nil {
		return err
	}
	grants, err := h.service.ListGrantsByBeneficiary(c.UserContext(), caller)
	if err != nil {
		return err
	}
	now := h.clock.Now().Unix()
	items := make([]dto.GrantResponse, 0, len(grants))
	for i := range grants {
		item := dto.NewGrantResponse(&grants[i])
		item.Status = dto.NewGrantStatus(now, schedule.StatusAt(&grants[i], now))
		items = append(items, item)
	}
	return c.JSON(fiber.Map{"data": items})
}

// GetGrant GET /grants/:id?at=<unix seconds>.
func (h *GrantsHandler) GetGrant(c *fiber.Ctx) error {
	now := h.clock.Now().Unix()
	if c.Query("at") != "" {
		at, err := strconv.ParseInt(c.Query("at"), 10, 64)
		if err != nil {
			return apperrors.NewValidationError("invalid at", map[string]any{"field": "at"})
		}
		now = at
	}
	grant, status, err := h.service.GrantStatus(c.UserContext(), c.Params("id"), now)
	if err != nil {
		return err
	}
	resp := dto.NewGrantResponse(grant)
	resp.Status = dto.NewGrantStatus(now, status)
	return c.JSON(fiber.Map{"data": resp})
}

// Claim POST /grants/:id/claim.
func (h *GrantsHandler) Claim(c *fiber.Ctx) error {
	caller, err := callerFrom(c)
	if err != nil {
		return err
	}
	result, err := h.service.Claim(c.UserContext(), caller, c.Params("id"), h.clock.Now().Unix())
	if err != nil {
		return err
	}
	resp := dto.ClaimResponse{
		Amount: domain.FormatAmount(result.Amount),
		Grant:  dto.NewGrantResponse(result.Grant),
	}
	if result.Transfer != nil {
		transfer := dto.NewTransferResponse(result.Transfer)
		resp.Transfer = &transfer
	}
	return c.JSON(fiber.Map{"data": resp})
}
