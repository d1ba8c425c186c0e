package approval

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"
)

// PostgresStore persists approval records and audit log in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a PostgreSQL-backed approval store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Migrate creates the approval tables if they don't exist.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS approval_records (
			tenant_id      VARCHAR(64) PRIMARY KEY,
			business_type  VARCHAR(32) NOT NULL,
			status         VARCHAR(10) NOT NULL CHECK (status IN ('pending', 'approved', 'rejected', 'suspended')),
			approved_by    VARCHAR(64),
			approved_at    TIMESTAMPTZ,
			approval_notes TEXT,
			created_at     TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at     TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);

		CREATE TABLE IF NOT EXISTS approval_log (
			id          VARCHAR(36) PRIMARY KEY,
			tenant_id   VARCHAR(64) NOT NULL,
			action      VARCHAR(20) NOT NULL,
			status_from VARCHAR(10) NOT NULL,
			status_to   VARCHAR(10) NOT NULL,
			actor_id    VARCHAR(64) NOT NULL,
			notes       TEXT,
			created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);

		CREATE INDEX IF NOT EXISTS idx_approval_log_tenant
			ON approval_log (tenant_id, created_at DESC);

		CREATE INDEX IF NOT EXISTS idx_approval_records_status
			ON approval_records (status, updated_at DESC);
	`)
	return err
}

func (s *PostgresStore) Create(ctx context.Context, rec *Record) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO approval_records (tenant_id, business_type, status, approved_by, approved_at, approval_notes, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, rec.TenantID, string(rec.BusinessType), string(rec.Status),
		nullStr(rec.ApprovedBy), rec.ApprovedAt, nullStr(rec.ApprovalNotes),
		rec.CreatedAt, rec.UpdatedAt)
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" {
			return ErrRecordExists
		}
		return fmt.Errorf("failed to create approval record: %w", err)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, tenantID string) (*Record, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT tenant_id, business_type, status, approved_by, approved_at, approval_notes, created_at, updated_at
		FROM approval_records WHERE tenant_id = $1
	`, tenantID)

	var rec Record
	var bt, status string
	var approvedBy, notes sql.NullString
	var approvedAt sql.NullTime
	err := row.Scan(&rec.TenantID, &bt, &status, &approvedBy, &approvedAt, &notes, &rec.CreatedAt, &rec.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrRecordNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get approval record: %w", err)
	}
	rec.BusinessType = BusinessType(bt)
	rec.Status = Status(status)
	rec.ApprovedBy = approvedBy.String
	rec.ApprovalNotes = notes.String
	if approvedAt.Valid {
		t := approvedAt.Time
		rec.ApprovedAt = &t
	}
	return &rec, nil
}

func (s *PostgresStore) Update(ctx context.Context, rec *Record) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE approval_records
		SET status = $2, approved_by = $3, approved_at = $4, approval_notes = $5, updated_at = $6
		WHERE tenant_id = $1
	`, rec.TenantID, string(rec.Status), nullStr(rec.ApprovedBy), rec.ApprovedAt,
		nullStr(rec.ApprovalNotes), rec.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to update approval record: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return ErrRecordNotFound
	}
	return nil
}

func (s *PostgresStore) AppendLog(ctx context.Context, entry *LogEntry) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO approval_log (id, tenant_id, action, status_from, status_to, actor_id, notes, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, entry.ID, entry.TenantID, entry.Action, string(entry.StatusFrom), string(entry.StatusTo),
		entry.ActorID, nullStr(entry.Notes), entry.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to append approval log: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListLog(ctx context.Context, tenantID string, limit int) ([]*LogEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, tenant_id, action, status_from, status_to, actor_id, notes, created_at
		FROM approval_log WHERE tenant_id = $1
		ORDER BY created_at DESC LIMIT $2
	`, tenantID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list approval log: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var result []*LogEntry
	for rows.Next() {
		var e LogEntry
		var from, to string
		var notes sql.NullString
		if err := rows.Scan(&e.ID, &e.TenantID, &e.Action, &from, &to, &e.ActorID, &notes, &e.CreatedAt); err != nil {
			continue
		}
		e.StatusFrom = Status(from)
		e.StatusTo = Status(to)
		e.Notes = notes.String
		result = append(result, &e)
	}
	return result, rows.Err()
}

func (s *PostgresStore) ListByStatus(ctx context.Context, status Status, limit int) ([]*Record, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT tenant_id, business_type, status, approved_by, approved_at, approval_notes, created_at, updated_at
		FROM approval_records WHERE status = $1
		ORDER BY updated_at DESC LIMIT $2
	`, string(status), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list approval records: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var result []*Record
	for rows.Next() {
		var rec Record
		var bt, st string
		var approvedBy, notes sql.NullString
		var approvedAt sql.NullTime
		if err := rows.Scan(&rec.TenantID, &bt, &st, &approvedBy, &approvedAt, &notes, &rec.CreatedAt, &rec.UpdatedAt); err != nil {
			continue
		}
		rec.BusinessType = BusinessType(bt)
		rec.Status = Status(st)
		rec.ApprovedBy = approvedBy.String
		rec.ApprovalNotes = notes.String
		if approvedAt.Valid {
			t := approvedAt.Time
			rec.ApprovedAt = &t
		}
		result = append(result, &rec)
	}
	return result, rows.Err()
}

func nullStr(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
