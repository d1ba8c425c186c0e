package wallet

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"

	"github.com/sendloka/sendloka/internal/idgen"
)

// PostgresStore persists wallet data in PostgreSQL. Debits rely on the
// CHECK constraint (available >= 0) plus serializable transactions to
// stay atomic under concurrent spends.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a PostgreSQL-backed wallet store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Migrate creates the wallet tables if they don't exist.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS wallet_balances (
			tenant_id  VARCHAR(64) PRIMARY KEY,
			available  NUMERIC(20,2) NOT NULL DEFAULT 0 CHECK (available >= 0),
			total_in   NUMERIC(20,2) NOT NULL DEFAULT 0,
			total_out  NUMERIC(20,2) NOT NULL DEFAULT 0,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);

		CREATE TABLE IF NOT EXISTS wallet_entries (
			id          VARCHAR(36) PRIMARY KEY,
			tenant_id   VARCHAR(64) NOT NULL,
			type        VARCHAR(10) NOT NULL CHECK (type IN ('topup', 'deduction', 'refund')),
			amount      NUMERIC(20,2) NOT NULL,
			reference   VARCHAR(128),
			description TEXT,
			created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);

		CREATE INDEX IF NOT EXISTS idx_wallet_entries_tenant
			ON wallet_entries (tenant_id, created_at DESC);

		CREATE UNIQUE INDEX IF NOT EXISTS idx_wallet_entries_topup_ref
			ON wallet_entries (reference) WHERE type = 'topup' AND reference IS NOT NULL;
	`)
	return err
}

func (s *PostgresStore) GetBalance(ctx context.Context, tenantID string) (*Balance, error) {
	bal := &Balance{TenantID: tenantID}
	err := s.db.QueryRowContext(ctx, `
		SELECT available, total_in, total_out, updated_at
		FROM wallet_balances WHERE tenant_id = $1
	`, tenantID).Scan(&bal.Available, &bal.TotalIn, &bal.TotalOut, &bal.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrTenantNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get balance: %w", err)
	}
	return bal, nil
}

func (s *PostgresStore) Credit(ctx context.Context, tenantID, amount, reference, description string) error {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO wallet_balances (tenant_id, available, total_in, updated_at)
		VALUES ($1, $2::NUMERIC(20,2), $2::NUMERIC(20,2), NOW())
		ON CONFLICT (tenant_id) DO UPDATE SET
			available  = wallet_balances.available + $2::NUMERIC(20,2),
			total_in   = wallet_balances.total_in  + $2::NUMERIC(20,2),
			updated_at = NOW()
	`, tenantID, amount)
	if err != nil {
		return fmt.Errorf("failed to update balance: %w", err)
	}

	if err := s.insertEntry(ctx, tx, tenantID, EntryTopUp, amount, reference, description); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *PostgresStore) Debit(ctx context.Context, tenantID, amount, reference, description string) error {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	// Lock the row and verify sufficient balance in one atomic step.
	// The CHECK constraint (available >= 0) fails the update if the
	// debit would overdraw.
	result, err := tx.ExecContext(ctx, `
		UPDATE wallet_balances SET
			available  = available - $2::NUMERIC(20,2),
			total_out  = total_out + $2::NUMERIC(20,2),
			updated_at = NOW()
		WHERE tenant_id = $1
	`, tenantID, amount)
	if err != nil {
		if isCheckViolation(err) {
			return ErrInsufficientBalance
		}
		return fmt.Errorf("failed to update balance: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return ErrTenantNotFound
	}

	if err := s.insertEntry(ctx, tx, tenantID, EntryDeduction, amount, reference, description); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *PostgresStore) Refund(ctx context.Context, tenantID, amount, reference, description string) error {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	result, err := tx.ExecContext(ctx, `
		UPDATE wallet_balances SET
			available  = available + $2::NUMERIC(20,2),
			total_out  = total_out - $2::NUMERIC(20,2),
			updated_at = NOW()
		WHERE tenant_id = $1
	`, tenantID, amount)
	if err != nil {
		return fmt.Errorf("failed to update balance: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return ErrTenantNotFound
	}

	if err := s.insertEntry(ctx, tx, tenantID, EntryRefund, amount, reference, description); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *PostgresStore) History(ctx context.Context, tenantID string, limit int) ([]*Entry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, tenant_id, type, amount, COALESCE(reference, ''), COALESCE(description, ''), created_at
		FROM wallet_entries
		WHERE tenant_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`, tenantID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get history: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var entries []*Entry
	for rows.Next() {
		var e Entry
		var typ string
		if err := rows.Scan(&e.ID, &e.TenantID, &typ, &e.Amount, &e.Reference, &e.Description, &e.CreatedAt); err != nil {
			continue
		}
		e.Type = EntryType(typ)
		entries = append(entries, &e)
	}
	return entries, rows.Err()
}

func (s *PostgresStore) HasReference(ctx context.Context, reference string) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx, `
		SELECT EXISTS (SELECT 1 FROM wallet_entries WHERE reference = $1 AND type = 'topup')
	`, reference).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check reference: %w", err)
	}
	return exists, nil
}

func (s *PostgresStore) insertEntry(ctx context.Context, tx *sql.Tx, tenantID string, typ EntryType, amount, reference, description string) error {
	var ref interface{}
	if reference != "" {
		ref = reference
	}
	_, err := tx.ExecContext(ctx, `
		INSERT INTO wallet_entries (id, tenant_id, type, amount, reference, description, created_at)
		VALUES ($1, $2, $3, $4::NUMERIC(20,2), $5, $6, NOW())
	`, idgen.WithPrefix("we_"), tenantID, string(typ), amount, ref, description)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateReference
		}
		return fmt.Errorf("failed to record entry: %w", err)
	}
	return nil
}

func isCheckViolation(err error) bool {
	pqErr, ok := err.(*pq.Error)
	return ok && pqErr.Code == "23514"
}

func isUniqueViolation(err error) bool {
	pqErr, ok := err.(*pq.Error)
	return ok && pqErr.Code == "23505"
}
