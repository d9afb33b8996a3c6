package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/vestlabs/vesting-service/internal/domain"
	"github.com/vestlabs/vesting-service/internal/events"
	"github.com/vestlabs/vesting-service/internal/repository"
	"github.com/vestlabs/vesting-service/internal/schedule"
	"github.com/vestlabs/vesting-service/internal/treasury"
)

const reconcileBatchSize = 100

// ClaimResult is the committed outcome of a claim. Transfer is nil when
// nothing was claimable.
type ClaimResult struct {
	Grant    *domain.Grant
	Amount   uint64
	Transfer *domain.Transfer
}

// TransferError reports that claim bookkeeping committed but the treasury did
// not confirm the transfer. Retry the transfer by ID; never re-run the claim
// to recover.
type TransferError struct {
	ID  string
	Err error
}

func (e *TransferError) Error() string {
	return fmt.Sprintf("transfer %s: %v", e.ID, e.Err)
}

// Unwrap exposes both domain.ErrTransferFailed and the underlying cause.
func (e *TransferError) Unwrap() []error {
	return []error{domain.ErrTransferFailed, e.Err}
}

// TransferID returns the id to pass to RetryTransfer.
func (e *TransferError) TransferID() string {
	return e.ID
}

// Claim releases everything vested at now and not yet withdrawn. Bookkeeping
// and the outgoing transfer record commit together; the treasury is called
// afterwards. On treasury failure the committed result is returned alongside
// a *TransferError.
func (s *VestingService) Claim(ctx context.Context, caller domain.Identity, grantID string, now int64) (*ClaimResult, error) {
	result := &ClaimResult{}
	err := s.store.WithTx(ctx, func(tx repository.Tx) error {
		grant, err := tx.GetGrant(ctx, grantID)
		if err != nil {
			return mapStoreError(err)
		}
		if err := s.guard.Authorize(caller, grant.Beneficiary); err != nil {
			return err
		}
		result.Grant = grant

		vested := schedule.Releasable(now, grant.StartTime, grant.CliffTime, grant.EndTime, grant.TotalAmount)
		claimable := schedule.Claimable(vested, grant.TotalWithdrawn)
		if claimable == 0 {
			return nil
		}

		pool, err := tx.GetPool(ctx, grant.PoolID)
		if err != nil {
			return mapStoreError(err)
		}
		withdrawn, err := domain.AddAmount(grant.TotalWithdrawn, claimable)
		if err != nil {
			return fmt.Errorf("claim grant %s: %w", grant.ID, err)
		}
		balance, err := domain.SubAmount(pool.TreasuryBalance, claimable)
		if err != nil {
			s.logger.Error("treasury below claimable amount",
				zap.String("pool_id", pool.ID),
				zap.String("grant_id", grant.ID),
				zap.Uint64("treasury_balance", pool.TreasuryBalance),
				zap.Uint64("claimable", claimable))
			return fmt.Errorf("%w: pool %s holds %d, claim needs %d",
				domain.ErrInsufficientTreasury, pool.ID, pool.TreasuryBalance, claimable)
		}
		committed, err := domain.SubAmount(pool.Committed, claimable)
		if err != nil {
			return fmt.Errorf("release commitment of pool %s: %w", pool.ID, err)
		}

		stamp := s.clock.Now().UTC()
		grant.TotalWithdrawn = withdrawn
		grant.UpdatedAt = stamp
		pool.TreasuryBalance = balance
		pool.Committed = committed
		pool.UpdatedAt = stamp
		transfer := &domain.Transfer{
			ID:          uuid.NewString(),
			GrantID:     grant.ID,
			PoolID:      pool.ID,
			TokenType:   pool.TokenType,
			Beneficiary: grant.Beneficiary,
			Amount:      claimable,
			Status:      domain.TransferStatusPending,
			CreatedAt:   stamp,
			UpdatedAt:   stamp,
		}

		if err := tx.UpdateGrant(ctx, grant); err != nil {
			return err
		}
		if err := tx.UpdatePool(ctx, pool); err != nil {
			return err
		}
		if err := tx.InsertTransfer(ctx, transfer); err != nil {
			return err
		}
		result.Amount = claimable
		result.Transfer = transfer
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.metrics.RecordClaim(result.Amount)
	if result.Transfer == nil {
		return result, nil
	}

	transfer, sendErr := s.deliver(ctx, result.Transfer)
	result.Transfer = transfer

	s.publish(ctx, events.Event{
		Type:    events.EventTokensClaimed,
		PoolID:  result.Grant.PoolID,
		GrantID: result.Grant.ID,
		Actor:   caller,
		Payload: events.TokensClaimedPayload{
			TransferID:     result.Transfer.ID,
			Amount:         domain.FormatAmount(result.Amount),
			TotalWithdrawn: domain.FormatAmount(result.Grant.TotalWithdrawn),
			Now:            now,
		},
	})
	s.publishTransfer(ctx, transfer)
	return result, sendErr
}

// RetryTransfer resubmits a PENDING or FAILED transfer under its original id.
// A COMPLETED transfer is returned unchanged.
func (s *VestingService) RetryTransfer(ctx context.Context, transferID string) (*domain.Transfer, error) {
	transfer, err := s.store.GetTransfer(ctx, transferID)
	if err != nil {
		return nil, mapStoreError(err)
	}
	if transfer.Status == domain.TransferStatusCompleted {
		return transfer, nil
	}
	return s.submit(ctx, transfer)
}

// ReconcileTransfers resubmits FAILED transfers and PENDING transfers idle
// for longer than the grace period, skipping those at the attempt limit.
// It returns how many transfers completed.
func (s *VestingService) ReconcileTransfers(ctx context.Context) (int, error) {
	candidates, err := s.store.ListTransfers(ctx, repository.TransferFilter{
		Statuses:    []domain.TransferStatus{domain.TransferStatusPending, domain.TransferStatusFailed},
		MaxAttempts: s.maxAttempts,
		Limit:       reconcileBatchSize,
	})
	if err != nil {
		return 0, fmt.Errorf("list transfers: %w", err)
	}

	cutoff := s.clock.Now().Add(-s.pendingGrace)
	completed := 0
	for i := range candidates {
		if err := ctx.Err(); err != nil {
			return completed, err
		}
		t := &candidates[i]
		if t.Status == domain.TransferStatusPending && t.UpdatedAt.After(cutoff) {
			continue
		}
		if _, err := s.submit(ctx, t); err != nil {
			s.logger.Warn("transfer still failing",
				zap.String("transfer_id", t.ID),
				zap.Int("attempts", t.Attempts+1),
				zap.Error(err))
			continue
		}
		completed++
	}
	return completed, nil
}

// ListTransfers returns transfers, optionally filtered by status.
func (s *VestingService) ListTransfers(ctx context.Context, status domain.TransferStatus, limit int) ([]domain.Transfer, error) {
	filter := repository.TransferFilter{Limit: limit}
	if status != "" {
		if !status.Valid() {
			return nil, fmt.Errorf("%w: unknown transfer status %q", domain.ErrInvalidArgument, status)
		}
		filter.Statuses = []domain.TransferStatus{status}
	}
	return s.store.ListTransfers(ctx, filter)
}

func (s *VestingService) submit(ctx context.Context, t *domain.Transfer) (*domain.Transfer, error) {
	updated, err := s.deliver(ctx, t)
	s.publishTransfer(ctx, updated)
	return updated, err
}

// deliver hands the transfer to the treasury and records the outcome. It
// publishes nothing; callers notify subscribers once the treasury has answered.
func (s *VestingService) deliver(ctx context.Context, t *domain.Transfer) (*domain.Transfer, error) {
	sendErr := s.treasury.Transfer(ctx, treasury.InstructionFor(t))

	var updated *domain.Transfer
	recordCtx := context.WithoutCancel(ctx)
	err := s.store.WithTx(recordCtx, func(tx repository.Tx) error {
		cur, err := tx.GetTransfer(recordCtx, t.ID)
		if err != nil {
			return err
		}
		if cur.Status == domain.TransferStatusCompleted {
			updated = cur
			return nil
		}
		cur.Attempts++
		cur.UpdatedAt = s.clock.Now().UTC()
		if sendErr == nil {
			cur.Status = domain.TransferStatusCompleted
			cur.LastError = ""
		} else {
			cur.Status = domain.TransferStatusFailed
			cur.LastError = sendErr.Error()
		}
		if err := tx.UpdateTransfer(recordCtx, cur); err != nil {
			return err
		}
		updated = cur
		return nil
	})
	if err != nil {
		s.logger.Error("record transfer outcome",
			zap.String("transfer_id", t.ID),
			zap.NamedError("treasury_error", sendErr),
			zap.Error(err))
		return t, &TransferError{ID: t.ID, Err: errors.Join(sendErr, err)}
	}

	s.metrics.RecordTransfer(string(updated.Status))
	if updated.Status == domain.TransferStatusCompleted {
		return updated, nil
	}
	return updated, &TransferError{ID: updated.ID, Err: sendErr}
}

func (s *VestingService) publishTransfer(ctx context.Context, t *domain.Transfer) {
	typ := events.EventTransferFailed
	switch t.Status {
	case domain.TransferStatusCompleted:
		typ = events.EventTransferCompleted
	case domain.TransferStatusPending:
		return
	}
	s.publish(ctx, events.Event{
		Type:    typ,
		PoolID:  t.PoolID,
		GrantID: t.GrantID,
		Payload: events.TransferPayload{
			TransferID: t.ID,
			Amount:     domain.FormatAmount(t.Amount),
			Attempts:   t.Attempts,
			Error:      t.LastError,
		},
	})
}
