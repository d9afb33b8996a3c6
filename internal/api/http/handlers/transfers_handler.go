package handlers

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/vestlabs/vesting-service/internal/api/dto"
	"github.com/vestlabs/vesting-service/internal/domain"
	"github.com/vestlabs/vesting-service/internal/service"
)

// TransfersHandler exposes operator reconciliation endpoints.
type TransfersHandler struct {
	service *service.VestingService
}

// NewTransfersHandler constructs handler.
func NewTransfersHandler(vestingService *service.VestingService) *TransfersHandler {
	return &TransfersHandler{service: vestingService}
}

// ListTransfers GET /transfers?status=&limit=.
func (h *TransfersHandler) ListTransfers(c *fiber.Ctx) error {
	limit, err := queryInt(c, "limit", 0)
	if err != nil {
		return err
	}
	status := domain.TransferStatus(strings.ToUpper(strings.TrimSpace(c.Query("status"))))
	transfers, err := h.service.ListTransfers(c.UserContext(), status, limit)
	if err != nil {
		return err
	}
	items := make([]dto.TransferResponse, 0, len(transfers))
	for i := range transfers {
		items = append(items, dto.NewTransferResponse(&transfers[i]))
	}
	return c.JSON(fiber.Map{"data": items})
}

// RetryTransfer POST /transfers/:id/retry.
func (h *TransfersHandler) RetryTransfer(c *fiber.Ctx) error {
	transfer, err := h.service.RetryTransfer(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewTransferResponse(transfer)})
}
