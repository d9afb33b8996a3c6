package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/vestlabs/vesting-service/internal/auth"
	"github.com/vestlabs/vesting-service/internal/domain"
	"github.com/vestlabs/vesting-service/internal/events"
	"github.com/vestlabs/vesting-service/internal/observability"
	"github.com/vestlabs/vesting-service/internal/repository"
	"github.com/vestlabs/vesting-service/internal/schedule"
	"github.com/vestlabs/vesting-service/internal/treasury"
)

// VestingService is the accounting engine for pools, grants and claims.
type VestingService struct {
	store        repository.Store
	guard        auth.Guard
	treasury     treasury.Treasury
	dispatcher   events.Dispatcher
	logger       *zap.Logger
	metrics      *observability.Metrics
	clock        clockwork.Clock
	pendingGrace time.Duration
	maxAttempts  int
}

// VestingDependencies bundles collaborators for the vesting service.
type VestingDependencies struct {
	Store      repository.Store
	Guard      auth.Guard
	Treasury   treasury.Treasury
	Dispatcher events.Dispatcher
	Logger     *zap.Logger
	Metrics    *observability.Metrics
	// Clock stamps record metadata and ages PENDING transfers. It never
	// drives schedule math; claims receive now explicitly.
	Clock        clockwork.Clock
	PendingGrace time.Duration
	MaxAttempts  int
}

// GrantInput describes grant creation payload.
type GrantInput struct {
	PoolID      string
	Beneficiary domain.Identity
	StartTime   int64
	CliffTime   int64
	EndTime     int64
	TotalAmount uint64
}

// NewVestingService constructs the service.
func NewVestingService(deps VestingDependencies) *VestingService {
	s := &VestingService{
		store:        deps.Store,
		guard:        deps.Guard,
		treasury:     deps.Treasury,
		dispatcher:   deps.Dispatcher,
		logger:       deps.Logger,
		metrics:      deps.Metrics,
		clock:        deps.Clock,
		pendingGrace: deps.PendingGrace,
		maxAttempts:  deps.MaxAttempts,
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	if s.clock == nil {
		s.clock = clockwork.NewRealClock()
	}
	return s
}

// CreatePool registers a new pool for issuer with an empty treasury.
func (s *VestingService) CreatePool(ctx context.Context, issuer domain.Identity, identifier, tokenType string) (*domain.Pool, error) {
	identifier = strings.TrimSpace(identifier)
	tokenType = strings.TrimSpace(tokenType)
	switch {
	case issuer.IsZero():
		return nil, fmt.Errorf("%w: issuer is required", domain.ErrInvalidArgument)
	case identifier == "":
		return nil, fmt.Errorf("%w: identifier is required", domain.ErrInvalidArgument)
	case len(identifier) > domain.MaxIdentifierLength:
		return nil, fmt.Errorf("%w: identifier longer than %d bytes", domain.ErrInvalidArgument, domain.MaxIdentifierLength)
	case tokenType == "":
		return nil, fmt.Errorf("%w: token type is required", domain.ErrInvalidArgument)
	}

	now := s.clock.Now().UTC()
	pool := &domain.Pool{
		ID:         domain.PoolID(issuer, identifier),
		Identifier: identifier,
		Issuer:     issuer,
		TokenType:  tokenType,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	err := s.store.WithTx(ctx, func(tx repository.Tx) error {
		if _, err := tx.GetPool(ctx, pool.ID); err == nil {
			return fmt.Errorf("pool %q for issuer %s: %w", identifier, issuer, domain.ErrAlreadyExists)
		} else if !errors.Is(err, repository.ErrNotFound) {
			return err
		}
		return tx.InsertPool(ctx, pool)
	})
	if err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return nil, fmt.Errorf("pool %q for issuer %s: %w", identifier, issuer, domain.ErrAlreadyExists)
		}
		return nil, err
	}

	s.publish(ctx, events.Event{
		Type:   events.EventPoolCreated,
		PoolID: pool.ID,
		Actor:  issuer,
		Payload: events.PoolCreatedPayload{
			Identifier: pool.Identifier,
			TokenType:  pool.TokenType,
		},
	})
	return pool, nil
}

// FundPool credits amount to the pool treasury. Only the issuer may fund.
func (s *VestingService) FundPool(ctx context.Context, caller domain.Identity, poolID string, amount uint64) (*domain.Pool, error) {
	var pool *domain.Pool
	err := s.store.WithTx(ctx, func(tx repository.Tx) error {
		var err error
		pool, err = tx.GetPool(ctx, poolID)
		if err != nil {
			return mapStoreError(err)
		}
		if err := s.guard.Authorize(caller, pool.Issuer); err != nil {
			return err
		}
		if amount == 0 {
			return fmt.Errorf("%w: funding amount must be positive", domain.ErrInvalidAmount)
		}
		balance, err := domain.AddAmount(pool.TreasuryBalance, amount)
		if err != nil {
			return fmt.Errorf("fund pool %s: %w", poolID, err)
		}
		pool.TreasuryBalance = balance
		pool.UpdatedAt = s.clock.Now().UTC()
		return tx.UpdatePool(ctx, pool)
	})
	if err != nil {
		return nil, err
	}

	s.publish(ctx, events.Event{
		Type:   events.EventPoolFunded,
		PoolID: pool.ID,
		Actor:  caller,
		Payload: events.PoolFundedPayload{
			Amount:          domain.FormatAmount(amount),
			TreasuryBalance: domain.FormatAmount(pool.TreasuryBalance),
		},
	})
	return pool, nil
}

// CreateGrant registers a beneficiary's schedule in a pool. The grant is
// rejected unless the uncommitted treasury covers its full amount.
func (s *VestingService) CreateGrant(ctx context.Context, caller domain.Identity, input GrantInput) (*domain.Grant, error) {
	var grant *domain.Grant
	err := s.store.WithTx(ctx, func(tx repository.Tx) error {
		pool, err := tx.GetPool(ctx, input.PoolID)
		if err != nil {
			return mapStoreError(err)
		}
		if err := s.guard.Authorize(caller, pool.Issuer); err != nil {
			return err
		}
		if input.Beneficiary.IsZero() {
			return fmt.Errorf("%w: beneficiary is required", domain.ErrInvalidArgument)
		}
		if err := schedule.Validate(input.StartTime, input.CliffTime, input.EndTime); err != nil {
			return err
		}
		if input.TotalAmount == 0 {
			return fmt.Errorf("%w: grant amount must be positive", domain.ErrInvalidAmount)
		}

		// the grant row is not locked here; Claim locks grant then pool
		id := domain.GrantID(pool.ID, input.Beneficiary)
		exists, err := tx.GrantExists(ctx, id)
		if err != nil {
			return err
		}
		if exists {
			return fmt.Errorf("beneficiary %s in pool %s: %w", input.Beneficiary, pool.ID, domain.ErrDuplicateGrant)
		}

		committed, err := domain.AddAmount(pool.Committed, input.TotalAmount)
		if err != nil {
			return fmt.Errorf("commit grant: %w", err)
		}
		if committed > pool.TreasuryBalance {
			return fmt.Errorf("%w: pool %s has %d uncommitted, grant needs %d",
				domain.ErrInsufficientTreasury, pool.ID, pool.Uncommitted(), input.TotalAmount)
		}

		now := s.clock.Now().UTC()
		grant = &domain.Grant{
			ID:          id,
			PoolID:      pool.ID,
			Beneficiary: input.Beneficiary,
			StartTime:   input.StartTime,
			CliffTime:   input.CliffTime,
			EndTime:     input.EndTime,
			TotalAmount: input.TotalAmount,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		if err := tx.InsertGrant(ctx, grant); err != nil {
			if errors.Is(err, repository.ErrConflict) {
				return fmt.Errorf("beneficiary %s in pool %s: %w", input.Beneficiary, pool.ID, domain.ErrDuplicateGrant)
			}
			return err
		}
		pool.Committed = committed
		pool.UpdatedAt = now
		return tx.UpdatePool(ctx, pool)
	})
	if err != nil {
		return nil, err
	}

	s.publish(ctx, events.Event{
		Type:    events.EventGrantCreated,
		PoolID:  grant.PoolID,
		GrantID: grant.ID,
		Actor:   caller,
		Payload: events.GrantCreatedPayload{
			Beneficiary: grant.Beneficiary,
			TotalAmount: domain.FormatAmount(grant.TotalAmount),
			StartTime:   grant.StartTime,
			CliffTime:   grant.CliffTime,
			EndTime:     grant.EndTime,
		},
	})
	return grant, nil
}

// GetPool returns a pool by id.
func (s *VestingService) GetPool(ctx context.Context, id string) (*domain.Pool, error) {
	pool, err := s.store.GetPool(ctx, id)
	return pool, mapStoreError(err)
}

// ListPoolsByIssuer returns the issuer's pools ordered by identifier.
func (s *VestingService) ListPoolsByIssuer(ctx context.Context, issuer domain.Identity) ([]domain.Pool, error) {
	return s.store.ListPoolsByIssuer(ctx, issuer)
}

// GetGrant returns a grant by id.
func (s *VestingService) GetGrant(ctx context.Context, id string) (*domain.Grant, error) {
	grant, err := s.store.GetGrant(ctx, id)
	return grant, mapStoreError(err)
}

// ListGrantsByPool returns every grant in a pool.
func (s *VestingService) ListGrantsByPool(ctx context.Context, poolID string) ([]domain.Grant, error) {
	if _, err := s.GetPool(ctx, poolID); err != nil {
		return nil, err
	}
	return s.store.ListGrantsByPool(ctx, poolID)
}

// ListGrantsByBeneficiary returns every grant held by beneficiary across pools.
func (s *VestingService) ListGrantsByBeneficiary(ctx context.Context, beneficiary domain.Identity) ([]domain.Grant, error) {
	return s.store.ListGrantsByBeneficiary(ctx, beneficiary)
}

// GrantStatus evaluates the grant at now without mutating it.
func (s *VestingService) GrantStatus(ctx context.Context, grantID string, now int64) (*domain.Grant, schedule.Status, error) {
	grant, err := s.GetGrant(ctx, grantID)
	if err != nil {
		return nil, schedule.Status{}, err
	}
	return grant, schedule.StatusAt(grant, now), nil
}

// GetRecord resolves an address to its pool, grant or transfer.
func (s *VestingService) GetRecord(ctx context.Context, id string) (domain.Record, error) {
	record, err := repository.GetRecord(ctx, s.store, id)
	return record, mapStoreError(err)
}

func (s *VestingService) publish(ctx context.Context, event events.Event) {
	if s.dispatcher == nil {
		return
	}
	event.ID = uuid.NewString()
	event.Timestamp = s.clock.Now().UTC()
	if err := s.dispatcher.Publish(ctx, event); err != nil {
		s.logger.Warn("event handler failed",
			zap.String("event_type", string(event.Type)),
			zap.String("pool_id", event.PoolID),
			zap.Error(err))
	}
}

func mapStoreError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, repository.ErrNotFound):
		return fmt.Errorf("%w: %v", domain.ErrNotFound, err)
	case errors.Is(err, repository.ErrConflict):
		return fmt.Errorf("%w: %v", domain.ErrAlreadyExists, err)
	default:
		return err
	}
}
