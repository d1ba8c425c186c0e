package guard

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
)

// PostgresLogStore persists guard log entries in PostgreSQL.
type PostgresLogStore struct {
	db *sql.DB
}

// NewPostgresLogStore creates a PostgreSQL-backed guard log.
func NewPostgresLogStore(db *sql.DB) *PostgresLogStore {
	return &PostgresLogStore{db: db}
}

// Migrate creates the revenue_guard_log table if it doesn't exist.
func (s *PostgresLogStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS revenue_guard_log (
			id         VARCHAR(36) PRIMARY KEY,
			tenant_id  VARCHAR(64) NOT NULL,
			layer      VARCHAR(20) NOT NULL,
			event_type VARCHAR(64) NOT NULL,
			reason     VARCHAR(64) NOT NULL,
			action     VARCHAR(10) NOT NULL,
			metadata   JSONB,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);

		CREATE INDEX IF NOT EXISTS idx_revenue_guard_log_tenant
			ON revenue_guard_log (tenant_id, created_at DESC);
	`)
	return err
}

func (s *PostgresLogStore) Append(ctx context.Context, entry *LogEntry) error {
	var metadata []byte
	if entry.Metadata != nil {
		var err error
		metadata, err = json.Marshal(entry.Metadata)
		if err != nil {
			return fmt.Errorf("failed to marshal metadata: %w", err)
		}
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO revenue_guard_log (id, tenant_id, layer, event_type, reason, action, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, entry.ID, entry.TenantID, entry.Layer, entry.EventType, entry.Reason,
		entry.Action, nullBytes(metadata), entry.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to append guard log: %w", err)
	}
	return nil
}

func (s *PostgresLogStore) ListByTenant(ctx context.Context, tenantID string, limit int) ([]*LogEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, tenant_id, layer, event_type, reason, action, metadata, created_at
		FROM revenue_guard_log
		WHERE tenant_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`, tenantID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list guard log: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var entries []*LogEntry
	for rows.Next() {
		var e LogEntry
		var metadata []byte
		if err := rows.Scan(&e.ID, &e.TenantID, &e.Layer, &e.EventType, &e.Reason,
			&e.Action, &metadata, &e.CreatedAt); err != nil {
			continue
		}
		if len(metadata) > 0 {
			_ = json.Unmarshal(metadata, &e.Metadata)
		}
		entries = append(entries, &e)
	}
	return entries, rows.Err()
}

func nullBytes(b []byte) interface{} {
	if len(b) == 0 {
		return nil
	}
	return b
}
