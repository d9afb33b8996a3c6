package repository

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/vestlabs/vesting-service/internal/domain"
)

const pgUniqueViolation = "23505"

var _ Store = (*PostgresStore)(nil)

type pgQuerier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresStore implements Store over a pgx pool. Amounts are NUMERIC(20,0)
// columns exchanged as decimal text so the full uint64 range round-trips.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore wraps an established pool.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	if s.pool == nil {
		return errors.New("postgres pool not configured")
	}
	return s.pool.Ping(ctx)
}

// Close is a no-op; the pool is owned by persistence.Postgres.
func (s *PostgresStore) Close() error { return nil }

func (s *PostgresStore) WithTx(ctx context.Context, fn func(tx Tx) error) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if err := fn(&pgTx{q: tx}); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetPool(ctx context.Context, id string) (*domain.Pool, error) {
	return getPoolPG(ctx, s.pool, id, false)
}

func (s *PostgresStore) ListPoolsByIssuer(ctx context.Context, issuer domain.Identity) ([]domain.Pool, error) {
	rows, err := s.pool.Query(ctx, poolSelectPG+` WHERE issuer=$1 ORDER BY identifier`, string(issuer))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var result []domain.Pool
	for rows.Next() {
		pool, err := scanPoolPG(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *pool)
	}
	return result, rows.Err()
}

func (s *PostgresStore) GetGrant(ctx context.Context, id string) (*domain.Grant, error) {
	return getGrantPG(ctx, s.pool, id, false)
}

func (s *PostgresStore) ListGrantsByPool(ctx context.Context, poolID string) ([]domain.Grant, error) {
	return s.listGrants(ctx, ` WHERE pool_id=$1 ORDER BY created_at, id`, poolID)
}

func (s *PostgresStore) ListGrantsByBeneficiary(ctx context.Context, beneficiary domain.Identity) ([]domain.Grant, error) {
	return s.listGrants(ctx, ` WHERE beneficiary=$1 ORDER BY created_at, id`, string(beneficiary))
}

func (s *PostgresStore) listGrants(ctx context.Context, where string, arg any) ([]domain.Grant, error) {
	rows, err := s.pool.Query(ctx, grantSelectPG+where, arg)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var result []domain.Grant
	for rows.Next() {
		grant, err := scanGrantPG(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *grant)
	}
	return result, rows.Err()
}

func (s *PostgresStore) GetTransfer(ctx context.Context, id string) (*domain.Transfer, error) {
	return getTransferPG(ctx, s.pool, id, false)
}

func (s *PostgresStore) ListTransfers(ctx context.Context, filter TransferFilter) ([]domain.Transfer, error) {
	query := transferSelectPG + ` WHERE 1=1`
	args := []any{}
	if len(filter.Statuses) > 0 {
		statuses := make([]string, len(filter.Statuses))
		for i, st := range filter.Statuses {
			statuses[i] = string(st)
		}
		args = append(args, statuses)
		query += fmt.Sprintf(` AND status = ANY($%d)`, len(args))
	}
	if filter.MaxAttempts > 0 {
		args = append(args, filter.MaxAttempts)
		query += fmt.Sprintf(` AND attempts < $%d`, len(args))
	}
	query += fmt.Sprintf(` ORDER BY created_at, id LIMIT %d`, limitOrDefault(filter.Limit))

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var result []domain.Transfer
	for rows.Next() {
		transfer, err := scanTransferPG(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *transfer)
	}
	return result, rows.Err()
}

type pgTx struct {
	q pgQuerier
}

func (t *pgTx) GetPool(ctx context.Context, id string) (*domain.Pool, error) {
	return getPoolPG(ctx, t.q, id, true)
}

func (t *pgTx) InsertPool(ctx context.Context, pool *domain.Pool) error {
	const query = `
        INSERT INTO vesting_pools (id, identifier, issuer, token_type, treasury_balance, committed, created_at, updated_at)
        VALUES ($1,$2,$3,$4,$5::numeric,$6::numeric,$7,$8)`
	_, err := t.q.Exec(ctx, query,
		pool.ID,
		pool.Identifier,
		string(pool.Issuer),
		pool.TokenType,
		domain.FormatAmount(pool.TreasuryBalance),
		domain.FormatAmount(pool.Committed),
		pool.CreatedAt,
		pool.UpdatedAt,
	)
	return mapPGError("pool", pool.ID, err)
}

func (t *pgTx) UpdatePool(ctx context.Context, pool *domain.Pool) error {
	const query = `
        UPDATE vesting_pools SET treasury_balance=$1::numeric, committed=$2::numeric, updated_at=$3
        WHERE id=$4`
	cmd, err := t.q.Exec(ctx, query,
		domain.FormatAmount(pool.TreasuryBalance),
		domain.FormatAmount(pool.Committed),
		pool.UpdatedAt,
		pool.ID,
	)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return fmt.Errorf("pool %s: %w", pool.ID, ErrNotFound)
	}
	return nil
}

func (t *pgTx) GetGrant(ctx context.Context, id string) (*domain.Grant, error) {
	return getGrantPG(ctx, t.q, id, true)
}

func (t *pgTx) GrantExists(ctx context.Context, id string) (bool, error) {
	var exists bool
	err := t.q.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM vesting_grants WHERE id=$1)`, id).Scan(&exists)
	return exists, err
}

func (t *pgTx) InsertGrant(ctx context.Context, grant *domain.Grant) error {
	const query = `
        INSERT INTO vesting_grants (id, pool_id, beneficiary, start_time, cliff_time, end_time,
            total_amount, total_withdrawn, created_at, updated_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7::numeric,$8::numeric,$9,$10)`
	_, err := t.q.Exec(ctx, query,
		grant.ID,
		grant.PoolID,
		string(grant.Beneficiary),
		grant.StartTime,
		grant.CliffTime,
		grant.EndTime,
		domain.FormatAmount(grant.TotalAmount),
		domain.FormatAmount(grant.TotalWithdrawn),
		grant.CreatedAt,
		grant.UpdatedAt,
	)
	return mapPGError("grant", grant.ID, err)
}

func (t *pgTx) UpdateGrant(ctx context.Context, grant *domain.Grant) error {
	const query = `UPDATE vesting_grants SET total_withdrawn=$1::numeric, updated_at=$2 WHERE id=$3`
	cmd, err := t.q.Exec(ctx, query, domain.FormatAmount(grant.TotalWithdrawn), grant.UpdatedAt, grant.ID)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return fmt.Errorf("grant %s: %w", grant.ID, ErrNotFound)
	}
	return nil
}

func (t *pgTx) GetTransfer(ctx context.Context, id string) (*domain.Transfer, error) {
	return getTransferPG(ctx, t.q, id, true)
}

func (t *pgTx) InsertTransfer(ctx context.Context, transfer *domain.Transfer) error {
	const query = `
        INSERT INTO vesting_transfers (id, grant_id, pool_id, token_type, beneficiary, amount,
            status, attempts, last_error, created_at, updated_at)
        VALUES ($1,$2,$3,$4,$5,$6::numeric,$7,$8,$9,$10,$11)`
	_, err := t.q.Exec(ctx, query,
		transfer.ID,
		transfer.GrantID,
		transfer.PoolID,
		transfer.TokenType,
		string(transfer.Beneficiary),
		domain.FormatAmount(transfer.Amount),
		string(transfer.Status),
		transfer.Attempts,
		transfer.LastError,
		transfer.CreatedAt,
		transfer.UpdatedAt,
	)
	return mapPGError("transfer", transfer.ID, err)
}

func (t *pgTx) UpdateTransfer(ctx context.Context, transfer *domain.Transfer) error {
	const query = `
        UPDATE vesting_transfers SET status=$1, attempts=$2, last_error=$3, updated_at=$4
        WHERE id=$5`
	cmd, err := t.q.Exec(ctx, query,
		string(transfer.Status),
		transfer.Attempts,
		transfer.LastError,
		transfer.UpdatedAt,
		transfer.ID,
	)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return fmt.Errorf("transfer %s: %w", transfer.ID, ErrNotFound)
	}
	return nil
}

const (
	poolSelectPG = `
        SELECT id, identifier, issuer, token_type, treasury_balance::text, committed::text, created_at, updated_at
        FROM vesting_pools`
	grantSelectPG = `
        SELECT id, pool_id, beneficiary, start_time, cliff_time, end_time,
               total_amount::text, total_withdrawn::text, created_at, updated_at
        FROM vesting_grants`
	transferSelectPG = `
        SELECT id, grant_id, pool_id, token_type, beneficiary, amount::text,
               status, attempts, last_error, created_at, updated_at
        FROM vesting_transfers`
)

func lockClause(forUpdate bool) string {
	if forUpdate {
		return ` FOR UPDATE`
	}
	return ""
}

func getPoolPG(ctx context.Context, q pgQuerier, id string, forUpdate bool) (*domain.Pool, error) {
	pool, err := scanPoolPG(q.QueryRow(ctx, poolSelectPG+` WHERE id=$1`+lockClause(forUpdate), id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("pool %s: %w", id, ErrNotFound)
	}
	return pool, err
}

func getGrantPG(ctx context.Context, q pgQuerier, id string, forUpdate bool) (*domain.Grant, error) {
	grant, err := scanGrantPG(q.QueryRow(ctx, grantSelectPG+` WHERE id=$1`+lockClause(forUpdate), id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("grant %s: %w", id, ErrNotFound)
	}
	return grant, err
}

func getTransferPG(ctx context.Context, q pgQuerier, id string, forUpdate bool) (*domain.Transfer, error) {
	transfer, err := scanTransferPG(q.QueryRow(ctx, transferSelectPG+` WHERE id=$1`+lockClause(forUpdate), id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("transfer %s: %w", id, ErrNotFound)
	}
	return transfer, err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPoolPG(row rowScanner) (*domain.Pool, error) {
	var (
		pool              domain.Pool
		issuer            string
		treasury, committ string
	)
	if err := row.Scan(
		&pool.ID,
		&pool.Identifier,
		&issuer,
		&pool.TokenType,
		&treasury,
		&committ,
		&pool.CreatedAt,
		&pool.UpdatedAt,
	); err != nil {
		return nil, err
	}
	pool.Issuer = domain.Identity(issuer)
	var err error
	if pool.TreasuryBalance, err = parseStoredAmount(treasury); err != nil {
		return nil, err
	}
	if pool.Committed, err = parseStoredAmount(committ); err != nil {
		return nil, err
	}
	return &pool, nil
}

func scanGrantPG(row rowScanner) (*domain.Grant, error) {
	var (
		grant            domain.Grant
		beneficiary      string
		total, withdrawn string
	)
	if err := row.Scan(
		&grant.ID,
		&grant.PoolID,
		&beneficiary,
		&grant.StartTime,
		&grant.CliffTime,
		&grant.EndTime,
		&total,
		&withdrawn,
		&grant.CreatedAt,
		&grant.UpdatedAt,
	); err != nil {
		return nil, err
	}
	grant.Beneficiary = domain.Identity(beneficiary)
	var err error
	if grant.TotalAmount, err = parseStoredAmount(total); err != nil {
		return nil, err
	}
	if grant.TotalWithdrawn, err = parseStoredAmount(withdrawn); err != nil {
		return nil, err
	}
	return &grant, nil
}

func scanTransferPG(row rowScanner) (*domain.Transfer, error) {
	var (
		transfer            domain.Transfer
		beneficiary, amount string
		status              string
	)
	if err := row.Scan(
		&transfer.ID,
		&transfer.GrantID,
		&transfer.PoolID,
		&transfer.TokenType,
		&beneficiary,
		&amount,
		&status,
		&transfer.Attempts,
		&transfer.LastError,
		&transfer.CreatedAt,
		&transfer.UpdatedAt,
	); err != nil {
		return nil, err
	}
	transfer.Beneficiary = domain.Identity(beneficiary)
	transfer.Status = domain.TransferStatus(status)
	var err error
	if transfer.Amount, err = parseStoredAmount(amount); err != nil {
		return nil, err
	}
	return &transfer, nil
}

func parseStoredAmount(raw string) (uint64, error) {
	v, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("corrupt stored amount %q: %w", raw, err)
	}
	return v, nil
}

func mapPGError(kind, id string, err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
		return fmt.Errorf("%s %s: %w", kind, id, ErrConflict)
	}
	return err
}
