package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite" // pure Go driver

	"github.com/vestlabs/vesting-service/internal/domain"
)

var _ Store = (*SQLiteStore)(nil)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS vesting_pools (
    id TEXT PRIMARY KEY,
    identifier TEXT NOT NULL,
    issuer TEXT NOT NULL,
    token_type TEXT NOT NULL,
    treasury_balance TEXT NOT NULL,
    committed TEXT NOT NULL,
    created_at INTEGER NOT NULL,
    updated_at INTEGER NOT NULL,
    UNIQUE (issuer, identifier)
);

CREATE TABLE IF NOT EXISTS vesting_grants (
    id TEXT PRIMARY KEY,
    pool_id TEXT NOT NULL REFERENCES vesting_pools(id),
    beneficiary TEXT NOT NULL,
    start_time INTEGER NOT NULL,
    cliff_time INTEGER NOT NULL,
    end_time INTEGER NOT NULL,
    total_amount TEXT NOT NULL,
    total_withdrawn TEXT NOT NULL,
    created_at INTEGER NOT NULL,
    updated_at INTEGER NOT NULL,
    UNIQUE (pool_id, beneficiary),
    CHECK (start_time <= cliff_time AND cliff_time <= end_time)
);

CREATE TABLE IF NOT EXISTS vesting_transfers (
    id TEXT PRIMARY KEY,
    grant_id TEXT NOT NULL REFERENCES vesting_grants(id),
    pool_id TEXT NOT NULL REFERENCES vesting_pools(id),
    token_type TEXT NOT NULL,
    beneficiary TEXT NOT NULL,
    amount TEXT NOT NULL,
    status TEXT NOT NULL,
    attempts INTEGER NOT NULL DEFAULT 0,
    last_error TEXT NOT NULL DEFAULT '',
    created_at INTEGER NOT NULL,
    updated_at INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_vesting_pools_issuer ON vesting_pools(issuer);
CREATE INDEX IF NOT EXISTS idx_vesting_grants_pool_id ON vesting_grants(pool_id);
CREATE INDEX IF NOT EXISTS idx_vesting_grants_beneficiary ON vesting_grants(beneficiary);
CREATE INDEX IF NOT EXISTS idx_vesting_transfers_status ON vesting_transfers(status, created_at);
`

type sqlQuerier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// SQLiteStore implements Store on a single-file SQLite database. The pool is
// limited to one connection, so transactions are fully serialized.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (creating if needed) the database at dbPath and applies the schema.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if dir := filepath.Dir(dbPath); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	// pragmas in the DSN apply to every connection the pool opens
	db, err := sql.Open("sqlite", dbPath+"?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) WithTx(ctx context.Context, fn func(tx Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if err := fn(&sqliteTx{q: tx}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetPool(ctx context.Context, id string) (*domain.Pool, error) {
	return getPoolSQLite(ctx, s.db, id)
}

func (s *SQLiteStore) ListPoolsByIssuer(ctx context.Context, issuer domain.Identity) ([]domain.Pool, error) {
	rows, err := s.db.QueryContext(ctx, poolSelectSQLite+" WHERE issuer = ? ORDER BY identifier", string(issuer))
	if err != nil {
		return nil, fmt.Errorf("failed to list pools: %w", err)
	}
	defer rows.Close()
	var result []domain.Pool
	for rows.Next() {
		pool, err := scanPoolSQLite(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *pool)
	}
	return result, rows.Err()
}

func (s *SQLiteStore) GetGrant(ctx context.Context, id string) (*domain.Grant, error) {
	return getGrantSQLite(ctx, s.db, id)
}

func (s *SQLiteStore) ListGrantsByPool(ctx context.Context, poolID string) ([]domain.Grant, error) {
	return s.listGrants(ctx, " WHERE pool_id = ? ORDER BY created_at, id", poolID)
}

func (s *SQLiteStore) ListGrantsByBeneficiary(ctx context.Context, beneficiary domain.Identity) ([]domain.Grant, error) {
	return s.listGrants(ctx, " WHERE beneficiary = ? ORDER BY created_at, id", string(beneficiary))
}

func (s *SQLiteStore) listGrants(ctx context.Context, where string, arg any) ([]domain.Grant, error) {
	rows, err := s.db.QueryContext(ctx, grantSelectSQLite+where, arg)
	if err != nil {
		return nil, fmt.Errorf("failed to list grants: %w", err)
	}
	defer rows.Close()
	var result []domain.Grant
	for rows.Next() {
		grant, err := scanGrantSQLite(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *grant)
	}
	return result, rows.Err()
}

func (s *SQLiteStore) GetTransfer(ctx context.Context, id string) (*domain.Transfer, error) {
	return getTransferSQLite(ctx, s.db, id)
}

func (s *SQLiteStore) ListTransfers(ctx context.Context, filter TransferFilter) ([]domain.Transfer, error) {
	query := transferSelectSQLite + " WHERE 1=1"
	args := []any{}
	if len(filter.Statuses) > 0 {
		placeholders := make([]string, len(filter.Statuses))
		for i, st := range filter.Statuses {
			placeholders[i] = "?"
			args = append(args, string(st))
		}
		query += " AND status IN (" + strings.Join(placeholders, ", ") + ")"
	}
	if filter.MaxAttempts > 0 {
		query += " AND attempts < ?"
		args = append(args, filter.MaxAttempts)
	}
	query += fmt.Sprintf(" ORDER BY created_at, id LIMIT %d", limitOrDefault(filter.Limit))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list transfers: %w", err)
	}
	defer rows.Close()
	var result []domain.Transfer
	for rows.Next() {
		transfer, err := scanTransferSQLite(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *transfer)
	}
	return result, rows.Err()
}

type sqliteTx struct {
	q sqlQuerier
}

func (t *sqliteTx) GetPool(ctx context.Context, id string) (*domain.Pool, error) {
	return getPoolSQLite(ctx, t.q, id)
}

func (t *sqliteTx) InsertPool(ctx context.Context, pool *domain.Pool) error {
	_, err := t.q.ExecContext(ctx,
		`INSERT INTO vesting_pools (id, identifier, issuer, token_type, treasury_balance, committed, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		pool.ID, pool.Identifier, string(pool.Issuer), pool.TokenType,
		domain.FormatAmount(pool.TreasuryBalance), domain.FormatAmount(pool.Committed),
		pool.CreatedAt.UnixNano(), pool.UpdatedAt.UnixNano(),
	)
	return mapSQLiteError("pool", pool.ID, err)
}

func (t *sqliteTx) UpdatePool(ctx context.Context, pool *domain.Pool) error {
	res, err := t.q.ExecContext(ctx,
		"UPDATE vesting_pools SET treasury_balance = ?, committed = ?, updated_at = ? WHERE id = ?",
		domain.FormatAmount(pool.TreasuryBalance), domain.FormatAmount(pool.Committed),
		pool.UpdatedAt.UnixNano(), pool.ID,
	)
	return checkAffected("pool", pool.ID, res, err)
}

func (t *sqliteTx) GetGrant(ctx context.Context, id string) (*domain.Grant, error) {
	return getGrantSQLite(ctx, t.q, id)
}

func (t *sqliteTx) GrantExists(ctx context.Context, id string) (bool, error) {
	var exists bool
	err := t.q.QueryRowContext(ctx, "SELECT EXISTS (SELECT 1 FROM vesting_grants WHERE id = ?)", id).Scan(&exists)
	return exists, err
}

func (t *sqliteTx) InsertGrant(ctx context.Context, grant *domain.Grant) error {
	_, err := t.q.ExecContext(ctx,
		`INSERT INTO vesting_grants (id, pool_id, beneficiary, start_time, cliff_time, end_time,
		     total_amount, total_withdrawn, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		grant.ID, grant.PoolID, string(grant.Beneficiary),
		grant.StartTime, grant.CliffTime, grant.EndTime,
		domain.FormatAmount(grant.TotalAmount), domain.FormatAmount(grant.TotalWithdrawn),
		grant.CreatedAt.UnixNano(), grant.UpdatedAt.UnixNano(),
	)
	return mapSQLiteError("grant", grant.ID, err)
}

func (t *sqliteTx) UpdateGrant(ctx context.Context, grant *domain.Grant) error {
	res, err := t.q.ExecContext(ctx,
		"UPDATE vesting_grants SET total_withdrawn = ?, updated_at = ? WHERE id = ?",
		domain.FormatAmount(grant.TotalWithdrawn), grant.UpdatedAt.UnixNano(), grant.ID,
	)
	return checkAffected("grant", grant.ID, res, err)
}

func (t *sqliteTx) GetTransfer(ctx context.Context, id string) (*domain.Transfer, error) {
	return getTransferSQLite(ctx, t.q, id)
}

func (t *sqliteTx) InsertTransfer(ctx context.Context, transfer *domain.Transfer) error {
	_, err := t.q.ExecContext(ctx,
		`INSERT INTO vesting_transfers (id, grant_id, pool_id, token_type, beneficiary, amount,
		     status, attempts, last_error, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		transfer.ID, transfer.GrantID, transfer.PoolID, transfer.TokenType,
		string(transfer.Beneficiary), domain.FormatAmount(transfer.Amount),
		string(transfer.Status), transfer.Attempts, transfer.LastError,
		transfer.CreatedAt.UnixNano(), transfer.UpdatedAt.UnixNano(),
	)
	return mapSQLiteError("transfer", transfer.ID, err)
}

func (t *sqliteTx) UpdateTransfer(ctx context.Context, transfer *domain.Transfer) error {
	res, err := t.q.ExecContext(ctx,
		"UPDATE vesting_transfers SET status = ?, attempts = ?, last_error = ?, updated_at = ? WHERE id = ?",
		string(transfer.Status), transfer.Attempts, transfer.LastError,
		transfer.UpdatedAt.UnixNano(), transfer.ID,
	)
	return checkAffected("transfer", transfer.ID, res, err)
}

const (
	poolSelectSQLite = `SELECT id, identifier, issuer, token_type, treasury_balance, committed, created_at, updated_at
		FROM vesting_pools`
	grantSelectSQLite = `SELECT id, pool_id, beneficiary, start_time, cliff_time, end_time,
		total_amount, total_withdrawn, created_at, updated_at FROM vesting_grants`
	transferSelectSQLite = `SELECT id, grant_id, pool_id, token_type, beneficiary, amount,
		status, attempts, last_error, created_at, updated_at FROM vesting_transfers`
)

func getPoolSQLite(ctx context.Context, q sqlQuerier, id string) (*domain.Pool, error) {
	pool, err := scanPoolSQLite(q.QueryRowContext(ctx, poolSelectSQLite+" WHERE id = ?", id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("pool %s: %w", id, ErrNotFound)
	}
	return pool, err
}

func getGrantSQLite(ctx context.Context, q sqlQuerier, id string) (*domain.Grant, error) {
	grant, err := scanGrantSQLite(q.QueryRowContext(ctx, grantSelectSQLite+" WHERE id = ?", id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("grant %s: %w", id, ErrNotFound)
	}
	return grant, err
}

func getTransferSQLite(ctx context.Context, q sqlQuerier, id string) (*domain.Transfer, error) {
	transfer, err := scanTransferSQLite(q.QueryRowContext(ctx, transferSelectSQLite+" WHERE id = ?", id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("transfer %s: %w", id, ErrNotFound)
	}
	return transfer, err
}

func scanPoolSQLite(row rowScanner) (*domain.Pool, error) {
	var (
		pool                 domain.Pool
		issuer               string
		treasury, committed  string
		createdAt, updatedAt int64
	)
	if err := row.Scan(&pool.ID, &pool.Identifier, &issuer, &pool.TokenType,
		&treasury, &committed, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	pool.Issuer = domain.Identity(issuer)
	pool.CreatedAt = fromUnixNano(createdAt)
	pool.UpdatedAt = fromUnixNano(updatedAt)
	var err error
	if pool.TreasuryBalance, err = parseStoredAmount(treasury); err != nil {
		return nil, err
	}
	if pool.Committed, err = parseStoredAmount(committed); err != nil {
		return nil, err
	}
	return &pool, nil
}

func scanGrantSQLite(row rowScanner) (*domain.Grant, error) {
	var (
		grant                domain.Grant
		beneficiary          string
		total, withdrawn     string
		createdAt, updatedAt int64
	)
	if err := row.Scan(&grant.ID, &grant.PoolID, &beneficiary,
		&grant.StartTime, &grant.CliffTime, &grant.EndTime,
		&total, &withdrawn, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	grant.Beneficiary = domain.Identity(beneficiary)
	grant.CreatedAt = fromUnixNano(createdAt)
	grant.UpdatedAt = fromUnixNano(updatedAt)
	var err error
	if grant.TotalAmount, err = parseStoredAmount(total); err != nil {
		return nil, err
	}
	if grant.TotalWithdrawn, err = parseStoredAmount(withdrawn); err != nil {
		return nil, err
	}
	return &grant, nil
}

func scanTransferSQLite(row rowScanner) (*domain.Transfer, error) {
	var (
		transfer                    domain.Transfer
		beneficiary, amount, status string
		createdAt, updatedAt        int64
	)
	if err := row.Scan(&transfer.ID, &transfer.GrantID, &transfer.PoolID, &transfer.TokenType,
		&beneficiary, &amount, &status, &transfer.Attempts, &transfer.LastError,
		&createdAt, &updatedAt); err != nil {
		return nil, err
	}
	transfer.Beneficiary = domain.Identity(beneficiary)
	transfer.Status = domain.TransferStatus(status)
	transfer.CreatedAt = fromUnixNano(createdAt)
	transfer.UpdatedAt = fromUnixNano(updatedAt)
	var err error
	if transfer.Amount, err = parseStoredAmount(amount); err != nil {
		return nil, err
	}
	return &transfer, nil
}

func fromUnixNano(n int64) time.Time {
	return time.Unix(0, n).UTC()
}

func checkAffected(kind, id string, res sql.Result, err error) error {
	if err != nil {
		return fmt.Errorf("failed to update %s: %w", kind, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to update %s: %w", kind, err)
	}
	if n == 0 {
		return fmt.Errorf("%s %s: %w", kind, id, ErrNotFound)
	}
	return nil
}

func mapSQLiteError(kind, id string, err error) error {
	if err == nil {
		return nil
	}
	if strings.Contains(err.Error(), "UNIQUE constraint failed") ||
		strings.Contains(err.Error(), "PRIMARY KEY constraint failed") {
		return fmt.Errorf("%s %s: %w", kind, id, ErrConflict)
	}
	return fmt.Errorf("failed to insert %s: %w", kind, err)
}
