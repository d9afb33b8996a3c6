package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/vestlabs/vesting-service/internal/api/dto"
	"github.com/vestlabs/vesting-service/internal/service"
)

// AccountsHandler resolves any record address.
type AccountsHandler struct {
	service *service.VestingService
}

// NewAccountsHandler constructs handler.
func NewAccountsHandler(vestingService *service.VestingService) *AccountsHandler {
	return &AccountsHandler{service: vestingService}
}

// GetAccount GET /accounts/:id.
func (h *AccountsHandler) GetAccount(c *fiber.Ctx) error {
	record, err := h.service.GetRecord(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewRecordResponse(record)})
}
