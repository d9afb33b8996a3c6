package treasury

import (
	"context"

	"go.uber.org/zap"
)

// LogTreasury records instructions in the log without moving funds. Used in
// development when no ledger webhook is configured.
type LogTreasury struct {
	logger *zap.Logger
}

// NewLogTreasury creates the stub.
func NewLogTreasury(logger *zap.Logger) *LogTreasury {
	return &LogTreasury{logger: logger}
}

func (t *LogTreasury) Transfer(_ context.Context, in Instruction) error {
	t.logger.Info("treasury transfer (stub)",
		zap.String("transfer_id", in.ID),
		zap.String("pool_id", in.PoolID),
		zap.String("token_type", in.TokenType),
		zap.String("beneficiary", in.Beneficiary.String()),
		zap.String("amount", in.Amount))
	return nil
}
