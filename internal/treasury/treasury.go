// Package treasury delivers transfer instructions to the external ledger that
// custodies pool funds.
package treasury

import (
	"context"

	"github.com/vestlabs/vesting-service/internal/domain"
)

// Instruction asks the ledger to move Amount of TokenType from the pool's
// custodial account to Beneficiary. ID is stable across retries.
type Instruction struct {
	ID          string          `json:"id"`
	PoolID      string          `json:"pool_id"`
	GrantID     string          `json:"grant_id"`
	TokenType   string          `json:"token_type"`
	Beneficiary domain.Identity `json:"beneficiary"`
	Amount      string          `json:"amount"`
}

// InstructionFor builds the instruction for a stored transfer.
func InstructionFor(t *domain.Transfer) Instruction {
	return Instruction{
		ID:          t.ID,
		PoolID:      t.PoolID,
		GrantID:     t.GrantID,
		TokenType:   t.TokenType,
		Beneficiary: t.Beneficiary,
		Amount:      domain.FormatAmount(t.Amount),
	}
}

// Treasury submits transfers. Implementations must treat Instruction.ID as an
// idempotency key: resubmitting the same ID never moves funds twice.
type Treasury interface {
	Transfer(ctx context.Context, in Instruction) error
}
