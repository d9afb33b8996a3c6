package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/vestlabs/vesting-service/internal/domain"
)

var _ Store = (*MemoryStore)(nil)

// MemoryStore keeps records in process memory. It is safe for concurrent use;
// transactions are serialized by a store-wide lock and reads return copies.
type MemoryStore struct {
	mu        sync.RWMutex
	pools     map[string]domain.Pool
	grants    map[string]domain.Grant
	transfers map[string]domain.Transfer
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		pools:     make(map[string]domain.Pool),
		grants:    make(map[string]domain.Grant),
		transfers: make(map[string]domain.Transfer),
	}
}

func (s *MemoryStore) Ping(context.Context) error { return nil }

func (s *MemoryStore) Close() error { return nil }

func (s *MemoryStore) GetPool(_ context.Context, id string) (*domain.Pool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	pool, ok := s.pools[id]
	if !ok {
		return nil, fmt.Errorf("pool %s: %w", id, ErrNotFound)
	}
	return &pool, nil
}

func (s *MemoryStore) ListPoolsByIssuer(_ context.Context, issuer domain.Identity) ([]domain.Pool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var result []domain.Pool
	for _, p := range s.pools {
		if p.Issuer == issuer {
			result = append(result, p)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Identifier < result[j].Identifier })
	return result, nil
}

func (s *MemoryStore) GetGrant(_ context.Context, id string) (*domain.Grant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	grant, ok := s.grants[id]
	if !ok {
		return nil, fmt.Errorf("grant %s: %w", id, ErrNotFound)
	}
	return &grant, nil
}

func (s *MemoryStore) ListGrantsByPool(_ context.Context, poolID string) ([]domain.Grant, error) {
	return s.listGrants(func(g *domain.Grant) bool { return g.PoolID == poolID }), nil
}

func (s *MemoryStore) ListGrantsByBeneficiary(_ context.Context, beneficiary domain.Identity) ([]domain.Grant, error) {
	return s.listGrants(func(g *domain.Grant) bool { return g.Beneficiary == beneficiary }), nil
}

func (s *MemoryStore) listGrants(match func(*domain.Grant) bool) []domain.Grant {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var result []domain.Grant
	for _, g := range s.grants {
		if match(&g) {
			result = append(result, g)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if !result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].CreatedAt.Before(result[j].CreatedAt)
		}
		return result[i].ID < result[j].ID
	})
	return result
}

func (s *MemoryStore) GetTransfer(_ context.Context, id string) (*domain.Transfer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	transfer, ok := s.transfers[id]
	if !ok {
		return nil, fmt.Errorf("transfer %s: %w", id, ErrNotFound)
	}
	return &transfer, nil
}

func (s *MemoryStore) ListTransfers(_ context.Context, filter TransferFilter) ([]domain.Transfer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var result []domain.Transfer
	for _, t := range s.transfers {
		if matchesFilter(&t, filter) {
			result = append(result, t)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if !result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].CreatedAt.Before(result[j].CreatedAt)
		}
		return result[i].ID < result[j].ID
	})
	if limit := limitOrDefault(filter.Limit); len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

// WithTx holds the store lock for the duration of fn and applies staged
// writes only when fn succeeds.
func (s *MemoryStore) WithTx(ctx context.Context, fn func(tx Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &memoryTx{
		store:     s,
		pools:     make(map[string]domain.Pool),
		grants:    make(map[string]domain.Grant),
		transfers: make(map[string]domain.Transfer),
	}
	if err := fn(tx); err != nil {
		return err
	}
	for id, p := range tx.pools {
		s.pools[id] = p
	}
	for id, g := range tx.grants {
		s.grants[id] = g
	}
	for id, t := range tx.transfers {
		s.transfers[id] = t
	}
	return nil
}

type memoryTx struct {
	store     *MemoryStore
	pools     map[string]domain.Pool
	grants    map[string]domain.Grant
	transfers map[string]domain.Transfer
}

func (tx *memoryTx) GetPool(_ context.Context, id string) (*domain.Pool, error) {
	if p, ok := tx.pools[id]; ok {
		return &p, nil
	}
	if p, ok := tx.store.pools[id]; ok {
		return &p, nil
	}
	return nil, fmt.Errorf("pool %s: %w", id, ErrNotFound)
}

func (tx *memoryTx) InsertPool(ctx context.Context, pool *domain.Pool) error {
	if _, err := tx.GetPool(ctx, pool.ID); err == nil {
		return fmt.Errorf("pool %s: %w", pool.ID, ErrConflict)
	}
	tx.pools[pool.ID] = *pool
	return nil
}

func (tx *memoryTx) UpdatePool(ctx context.Context, pool *domain.Pool) error {
	if _, err := tx.GetPool(ctx, pool.ID); err != nil {
		return err
	}
	tx.pools[pool.ID] = *pool
	return nil
}

func (tx *memoryTx) GetGrant(_ context.Context, id string) (*domain.Grant, error) {
	if g, ok := tx.grants[id]; ok {
		return &g, nil
	}
	if g, ok := tx.store.grants[id]; ok {
		return &g, nil
	}
	return nil, fmt.Errorf("grant %s: %w", id, ErrNotFound)
}

func (tx *memoryTx) GrantExists(ctx context.Context, id string) (bool, error) {
	_, err := tx.GetGrant(ctx, id)
	return err == nil, nil
}

func (tx *memoryTx) InsertGrant(ctx context.Context, grant *domain.Grant) error {
	if _, err := tx.GetGrant(ctx, grant.ID); err == nil {
		return fmt.Errorf("grant %s: %w", grant.ID, ErrConflict)
	}
	tx.grants[grant.ID] = *grant
	return nil
}

func (tx *memoryTx) UpdateGrant(ctx context.Context, grant *domain.Grant) error {
	if _, err := tx.GetGrant(ctx, grant.ID); err != nil {
		return err
	}
	tx.grants[grant.ID] = *grant
	return nil
}

func (tx *memoryTx) GetTransfer(_ context.Context, id string) (*domain.Transfer, error) {
	if t, ok := tx.transfers[id]; ok {
		return &t, nil
	}
	if t, ok := tx.store.transfers[id]; ok {
		return &t, nil
	}
	return nil, fmt.Errorf("transfer %s: %w", id, ErrNotFound)
}

func (tx *memoryTx) InsertTransfer(ctx context.Context, transfer *domain.Transfer) error {
	if _, err := tx.GetTransfer(ctx, transfer.ID); err == nil {
		return fmt.Errorf("transfer %s: %w", transfer.ID, ErrConflict)
	}
	tx.transfers[transfer.ID] = *transfer
	return nil
}

func (tx *memoryTx) UpdateTransfer(ctx context.Context, transfer *domain.Transfer) error {
	if _, err := tx.GetTransfer(ctx, transfer.ID); err != nil {
		return err
	}
	tx.transfers[transfer.ID] = *transfer
	return nil
}
