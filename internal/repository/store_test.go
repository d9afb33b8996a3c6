package repository

import (
	"context"
	"errors"
	"math"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/vestlabs/vesting-service/internal/domain"
)

func TestMemoryStore(t *testing.T) {
	runStoreSuite(t, func(t *testing.T) Store {
		return NewMemoryStore()
	})
}

func TestSQLiteStore(t *testing.T) {
	runStoreSuite(t, func(t *testing.T) Store {
		return openSQLite(t)
	})
}

func openSQLite(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := NewSQLiteStore(filepath.Join(t.TempDir(), "vesting.db"))
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, store.Close()) })
	return store
}

func TestSQLiteForeignKeysOnFreshConnections(t *testing.T) {
	ctx := context.Background()
	store := openSQLite(t)
	// every statement gets a new connection
	store.db.SetMaxIdleConns(0)

	var enabled int
	require.NoError(t, store.db.QueryRowContext(ctx, "PRAGMA foreign_keys").Scan(&enabled))
	require.Equal(t, 1, enabled)

	orphan := fixtureGrant(domain.PoolID("issuer", "missing"), "alice", time.Unix(1_700_000_000, 0).UTC())
	err := store.WithTx(ctx, func(tx Tx) error {
		return tx.InsertGrant(ctx, orphan)
	})
	require.Error(t, err)
}

func fixturePool(issuer domain.Identity, identifier string) *domain.Pool {
	now := time.Unix(1_700_000_000, 0).UTC()
	return &domain.Pool{
		ID:              domain.PoolID(issuer, identifier),
		Identifier:      identifier,
		Issuer:          issuer,
		TokenType:       "mint-1",
		TreasuryBalance: math.MaxUint64,
		Committed:       1000,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
}

func fixtureGrant(poolID string, beneficiary domain.Identity, created time.Time) *domain.Grant {
	return &domain.Grant{
		ID:          domain.GrantID(poolID, beneficiary),
		PoolID:      poolID,
		Beneficiary: beneficiary,
		StartTime:   0,
		CliffTime:   100,
		EndTime:     200,
		TotalAmount: 1000,
		CreatedAt:   created,
		UpdatedAt:   created,
	}
}

func runStoreSuite(t *testing.T, newStore func(t *testing.T) Store) {
	ctx := context.Background()

	t.Run("pool round trip", func(t *testing.T) {
		store := newStore(t)
		pool := fixturePool("issuer", "acme")
		require.NoError(t, store.WithTx(ctx, func(tx Tx) error {
			return tx.InsertPool(ctx, pool)
		}))

		got, err := store.GetPool(ctx, pool.ID)
		require.NoError(t, err)
		require.Equal(t, pool.Identifier, got.Identifier)
		require.Equal(t, pool.Issuer, got.Issuer)
		require.Equal(t, uint64(math.MaxUint64), got.TreasuryBalance)
		require.EqualValues(t, 1000, got.Committed)

		err = store.WithTx(ctx, func(tx Tx) error {
			return tx.InsertPool(ctx, fixturePool("issuer", "acme"))
		})
		require.ErrorIs(t, err, ErrConflict)

		pools, err := store.ListPoolsByIssuer(ctx, "issuer")
		require.NoError(t, err)
		require.Len(t, pools, 1)

		pools, err = store.ListPoolsByIssuer(ctx, "other")
		require.NoError(t, err)
		require.Empty(t, pools)
	})

	t.Run("missing records", func(t *testing.T) {
		store := newStore(t)
		_, err := store.GetPool(ctx, "nope")
		require.ErrorIs(t, err, ErrNotFound)
		_, err = store.GetGrant(ctx, "nope")
		require.ErrorIs(t, err, ErrNotFound)
		_, err = store.GetTransfer(ctx, "nope")
		require.ErrorIs(t, err, ErrNotFound)
		_, err = GetRecord(ctx, store, "nope")
		require.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("rollback discards writes", func(t *testing.T) {
		store := newStore(t)
		pool := fixturePool("issuer", "acme")
		boom := errors.New("boom")
		err := store.WithTx(ctx, func(tx Tx) error {
			if err := tx.InsertPool(ctx, pool); err != nil {
				return err
			}
			return boom
		})
		require.ErrorIs(t, err, boom)
		_, err = store.GetPool(ctx, pool.ID)
		require.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("grants and transfers", func(t *testing.T) {
		store := newStore(t)
		pool := fixturePool("issuer", "acme")
		base := time.Unix(1_700_000_000, 0).UTC()
		alice := fixtureGrant(pool.ID, "alice", base)
		bob := fixtureGrant(pool.ID, "bob", base.Add(time.Second))

		require.NoError(t, store.WithTx(ctx, func(tx Tx) error {
			if err := tx.InsertPool(ctx, pool); err != nil {
				return err
			}
			if err := tx.InsertGrant(ctx, alice); err != nil {
				return err
			}
			return tx.InsertGrant(ctx, bob)
		}))

		err := store.WithTx(ctx, func(tx Tx) error {
			return tx.InsertGrant(ctx, fixtureGrant(pool.ID, "alice", base))
		})
		require.ErrorIs(t, err, ErrConflict)

		grants, err := store.ListGrantsByPool(ctx, pool.ID)
		require.NoError(t, err)
		require.Len(t, grants, 2)
		require.Equal(t, domain.Identity("alice"), grants[0].Beneficiary)

		grants, err = store.ListGrantsByBeneficiary(ctx, "bob")
		require.NoError(t, err)
		require.Len(t, grants, 1)

		transfer := &domain.Transfer{
			ID:          "t-1",
			GrantID:     alice.ID,
			PoolID:      pool.ID,
			TokenType:   pool.TokenType,
			Beneficiary: alice.Beneficiary,
			Amount:      500,
			Status:      domain.TransferStatusPending,
			CreatedAt:   base,
			UpdatedAt:   base,
		}
		require.NoError(t, store.WithTx(ctx, func(tx Tx) error {
			g, err := tx.GetGrant(ctx, alice.ID)
			if err != nil {
				return err
			}
			g.TotalWithdrawn = 500
			if err := tx.UpdateGrant(ctx, g); err != nil {
				return err
			}
			return tx.InsertTransfer(ctx, transfer)
		}))

		got, err := store.GetGrant(ctx, alice.ID)
		require.NoError(t, err)
		require.EqualValues(t, 500, got.TotalWithdrawn)

		pending, err := store.ListTransfers(ctx, TransferFilter{Statuses: []domain.TransferStatus{domain.TransferStatusPending}})
		require.NoError(t, err)
		require.Len(t, pending, 1)
		require.EqualValues(t, 500, pending[0].Amount)

		require.NoError(t, store.WithTx(ctx, func(tx Tx) error {
			tr, err := tx.GetTransfer(ctx, "t-1")
			if err != nil {
				return err
			}
			tr.Status = domain.TransferStatusFailed
			tr.Attempts = 3
			tr.LastError = "ledger down"
			return tx.UpdateTransfer(ctx, tr)
		}))

		failed, err := store.ListTransfers(ctx, TransferFilter{
			Statuses:    []domain.TransferStatus{domain.TransferStatusFailed},
			MaxAttempts: 3,
		})
		require.NoError(t, err)
		require.Empty(t, failed)

		all, err := store.ListTransfers(ctx, TransferFilter{})
		require.NoError(t, err)
		require.Len(t, all, 1)
		require.Equal(t, "ledger down", all[0].LastError)

		rec, err := GetRecord(ctx, store, alice.ID)
		require.NoError(t, err)
		require.Equal(t, domain.RecordKindGrant, rec.Kind())
		rec, err = GetRecord(ctx, store, pool.ID)
		require.NoError(t, err)
		require.Equal(t, domain.RecordKindPool, rec.Kind())
		rec, err = GetRecord(ctx, store, "t-1")
		require.NoError(t, err)
		require.Equal(t, domain.RecordKindTransfer, rec.Kind())
	})

	t.Run("grant exists", func(t *testing.T) {
		store := newStore(t)
		pool := fixturePool("issuer", "acme")
		grant := fixtureGrant(pool.ID, "alice", time.Unix(1_700_000_000, 0).UTC())
		require.NoError(t, store.WithTx(ctx, func(tx Tx) error {
			if err := tx.InsertPool(ctx, pool); err != nil {
				return err
			}
			exists, err := tx.GrantExists(ctx, grant.ID)
			require.NoError(t, err)
			require.False(t, exists)
			if err := tx.InsertGrant(ctx, grant); err != nil {
				return err
			}
			exists, err = tx.GrantExists(ctx, grant.ID)
			require.NoError(t, err)
			require.True(t, exists)
			return nil
		}))
	})

	t.Run("concurrent transactions serialize", func(t *testing.T) {
		store := newStore(t)
		pool := fixturePool("issuer", "acme")
		grant := fixtureGrant(pool.ID, "alice", time.Unix(1_700_000_000, 0).UTC())
		require.NoError(t, store.WithTx(ctx, func(tx Tx) error {
			if err := tx.InsertPool(ctx, pool); err != nil {
				return err
			}
			return tx.InsertGrant(ctx, grant)
		}))

		const writers = 32
		var eg errgroup.Group
		for i := 0; i < writers; i++ {
			eg.Go(func() error {
				return store.WithTx(ctx, func(tx Tx) error {
					g, err := tx.GetGrant(ctx, grant.ID)
					if err != nil {
						return err
					}
					g.TotalWithdrawn++
					return tx.UpdateGrant(ctx, g)
				})
			})
		}
		require.NoError(t, eg.Wait())

		got, err := store.GetGrant(ctx, grant.ID)
		require.NoError(t, err)
		require.EqualValues(t, writers, got.TotalWithdrawn)
	})

	t.Run("update missing", func(t *testing.T) {
		store := newStore(t)
		err := store.WithTx(ctx, func(tx Tx) error {
			return tx.UpdatePool(ctx, fixturePool("x", "y"))
		})
		require.ErrorIs(t, err, ErrNotFound)
	})
}
