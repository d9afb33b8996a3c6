package handlers

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/vestlabs/vesting-service/internal/api/dto"
	"github.com/vestlabs/vesting-service/internal/domain"
	"github.com/vestlabs/vesting-service/internal/service"
	apperrors "github.com/vestlabs/vesting-service/pkg/util"
)

// PoolsHandler manages pool and grant creation endpoints.
type PoolsHandler struct {
	service *service.VestingService
}

// NewPoolsHandler constructs handler.
func NewPoolsHandler(vestingService *service.VestingService) *PoolsHandler {
	return &PoolsHandler{service: vestingService}
}

// CreatePool POST /pools.
func (h *PoolsHandler) CreatePool(c *fiber.Ctx) error {
	caller, err := callerFrom(c)
	if err != nil {
		return err
	}
	var req dto.CreatePoolRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	pool, err := h.service.CreatePool(c.UserContext(), caller, req.Identifier, req.TokenType)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"data": dto.NewPoolResponse(pool)})
}

// ListPools GET /pools?issuer=.
func (h *PoolsHandler) ListPools(c *fiber.Ctx) error {
	caller, err := callerFrom(c)
	if err != nil {
		return err
	}
	issuer := domain.Identity(strings.TrimSpace(c.Query("issuer")))
	if issuer.IsZero() {
		issuer = caller
	}
	pools, err := h.service.ListPoolsByIssuer(c.UserContext(), issuer)
	if err != nil {
		return err
	}
	items := make([]dto.PoolResponse, 0, len(pools))
	for i := range pools {
		items = append(items, dto.NewPoolResponse(&pools[i]))
	}
	return c.JSON(fiber.Map{"data": items})
}

// GetPool GET /pools/:id.
func (h *PoolsHandler) GetPool(c *fiber.Ctx) error {
	pool, err := h.service.GetPool(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewPoolResponse(pool)})
}

// FundPool POST /pools/:id/fund.
func (h *PoolsHandler) FundPool(c *fiber.Ctx) error {
	caller, err := callerFrom(c)
	if err != nil {
		return err
	}
	var req dto.FundPoolRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	amount, err := parseAmountField("amount", req.Amount)
	if err != nil {
		return err
	}
	pool, err := h.service.FundPool(c.UserContext(), caller, c.Params("id"), amount)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewPoolResponse(pool)})
}

// CreateGrant POST /pools/:id/grants.
func (h *PoolsHandler) CreateGrant(c *fiber.Ctx) error {
	caller, err := callerFrom(c)
	if err != nil {
		return err
	}
	var req dto.CreateGrantRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	total, err := parseAmountField("total_amount", req.TotalAmount)
	if err != nil {
		return err
	}
	grant, err := h.service.CreateGrant(c.UserContext(), caller, service.GrantInput{
		PoolID:      c.Params("id"),
		Beneficiary: domain.Identity(strings.TrimSpace(req.Beneficiary)),
		StartTime:   req.StartTime,
		CliffTime:   req.CliffTime,
		EndTime:     req.EndTime,
		TotalAmount: total,
	})
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"data": dto.NewGrantResponse(grant)})
}

// ListGrants GET /pools/:id/grants.
func (h *PoolsHandler) ListGrants(c *fiber.Ctx) error {
	grants, err := h.service.ListGrantsByPool(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	items := make([]dto.GrantResponse, 0, len(grants))
	for i := range grants {
		items = append(items, dto.NewGrantResponse(&grants[i]))
	}
	return c.JSON(fiber.Map{"data": items})
}
