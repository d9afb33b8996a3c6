package repository

import (
	"context"
	"errors"

	"github.com/vestlabs/vesting-service/internal/domain"
)

var (
	// ErrNotFound is returned when a record does not exist.
	ErrNotFound = errors.New("record not found")
	// ErrConflict is returned when an insert violates a uniqueness constraint.
	ErrConflict = errors.New("record already exists")
)

// TransferFilter narrows transfer listings.
type TransferFilter struct {
	Statuses    []domain.TransferStatus
	MaxAttempts int
	Limit       int
}

// Reader exposes non-locking reads.
type Reader interface {
	GetPool(ctx context.Context, id string) (*domain.Pool, error)
	ListPoolsByIssuer(ctx context.Context, issuer domain.Identity) ([]domain.Pool, error)
	GetGrant(ctx context.Context, id string) (*domain.Grant, error)
	ListGrantsByPool(ctx context.Context, poolID string) ([]domain.Grant, error)
	ListGrantsByBeneficiary(ctx context.Context, beneficiary domain.Identity) ([]domain.Grant, error)
	GetTransfer(ctx context.Context, id string) (*domain.Transfer, error)
	ListTransfers(ctx context.Context, filter TransferFilter) ([]domain.Transfer, error)
}

// Tx is a unit of work. Getters lock the returned row until the transaction ends.
type Tx interface {
	GetPool(ctx context.Context, id string) (*domain.Pool, error)
	InsertPool(ctx context.Context, pool *domain.Pool) error
	UpdatePool(ctx context.Context, pool *domain.Pool) error
	GetGrant(ctx context.Context, id string) (*domain.Grant, error)
	// GrantExists reports whether the grant is stored without locking it.
	GrantExists(ctx context.Context, id string) (bool, error)
	InsertGrant(ctx context.Context, grant *domain.Grant) error
	UpdateGrant(ctx context.Context, grant *domain.Grant) error
	GetTransfer(ctx context.Context, id string) (*domain.Transfer, error)
	InsertTransfer(ctx context.Context, transfer *domain.Transfer) error
	UpdateTransfer(ctx context.Context, transfer *domain.Transfer) error
}

// Store is durable storage for pools, grants and transfers.
type Store interface {
	Reader
	// WithTx runs fn atomically. Any error returned by fn rolls back every write.
	WithTx(ctx context.Context, fn func(tx Tx) error) error
	Ping(ctx context.Context) error
	Close() error
}

// GetRecord resolves id to whichever record kind owns it.
func GetRecord(ctx context.Context, r Reader, id string) (domain.Record, error) {
	if pool, err := r.GetPool(ctx, id); err == nil {
		return pool, nil
	} else if !errors.Is(err, ErrNotFound) {
		return nil, err
	}
	if grant, err := r.GetGrant(ctx, id); err == nil {
		return grant, nil
	} else if !errors.Is(err, ErrNotFound) {
		return nil, err
	}
	transfer, err := r.GetTransfer(ctx, id)
	if err != nil {
		return nil, err
	}
	return transfer, nil
}

func matchesFilter(t *domain.Transfer, filter TransferFilter) bool {
	if filter.MaxAttempts > 0 && t.Attempts >= filter.MaxAttempts {
		return false
	}
	if len(filter.Statuses) == 0 {
		return true
	}
	for _, s := range filter.Statuses {
		if t.Status == s {
			return true
		}
	}
	return false
}

func limitOrDefault(limit int) int {
	if limit <= 0 || limit > 500 {
		return 100
	}
	return limit
}
