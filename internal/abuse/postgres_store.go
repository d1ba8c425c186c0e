package abuse

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
)

// PostgresStore persists tenant abuse scores in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a PostgreSQL-backed score store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Migrate creates the abuse_scores table if it doesn't exist.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS abuse_scores (
			tenant_id                VARCHAR(64) PRIMARY KEY,
			current_score            NUMERIC(8,2) NOT NULL DEFAULT 0 CHECK (current_score >= 0),
			abuse_level              VARCHAR(10) NOT NULL CHECK (abuse_level IN ('none', 'low', 'medium', 'high', 'critical')),
			policy_action            VARCHAR(20) NOT NULL CHECK (policy_action IN ('none', 'throttle', 'require_approval', 'suspend')),
			is_suspended             BOOLEAN NOT NULL DEFAULT FALSE,
			suspension_type          VARCHAR(10) NOT NULL DEFAULT 'none' CHECK (suspension_type IN ('none', 'temporary', 'permanent')),
			suspended_at             TIMESTAMPTZ,
			suspension_cooldown_days INT NOT NULL DEFAULT 0,
			approval_status          VARCHAR(15) NOT NULL DEFAULT 'none' CHECK (approval_status IN ('none', 'pending', 'auto_approved')),
			last_event_at            TIMESTAMPTZ,
			metadata                 JSONB NOT NULL DEFAULT '{}',
			created_at               TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at               TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);

		CREATE INDEX IF NOT EXISTS idx_abuse_scores_suspended
			ON abuse_scores (suspended_at) WHERE is_suspended;

		CREATE INDEX IF NOT EXISTS idx_abuse_scores_active
			ON abuse_scores (last_event_at DESC) WHERE NOT is_suspended AND current_score > 0;
	`)
	return err
}

func (s *PostgresStore) Get(ctx context.Context, tenantID string) (*Score, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT tenant_id, current_score, abuse_level, policy_action, is_suspended,
		       suspension_type, suspended_at, suspension_cooldown_days,
		       approval_status, last_event_at, metadata, created_at, updated_at
		FROM abuse_scores WHERE tenant_id = $1
	`, tenantID)

	score, err := scanScore(row)
	if err == sql.ErrNoRows {
		return nil, ErrScoreNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get abuse score: %w", err)
	}
	return score, nil
}

func (s *PostgresStore) Upsert(ctx context.Context, score *Score) error {
	metaJSON, err := json.Marshal(score.Metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO abuse_scores (
			tenant_id, current_score, abuse_level, policy_action, is_suspended,
			suspension_type, suspended_at, suspension_cooldown_days,
			approval_status, last_event_at, metadata, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, NOW(), NOW())
		ON CONFLICT (tenant_id) DO UPDATE SET
			current_score = EXCLUDED.current_score,
			abuse_level = EXCLUDED.abuse_level,
			policy_action = EXCLUDED.policy_action,
			is_suspended = EXCLUDED.is_suspended,
			suspension_type = EXCLUDED.suspension_type,
			suspended_at = EXCLUDED.suspended_at,
			suspension_cooldown_days = EXCLUDED.suspension_cooldown_days,
			approval_status = EXCLUDED.approval_status,
			last_event_at = EXCLUDED.last_event_at,
			metadata = EXCLUDED.metadata,
			updated_at = NOW()
	`,
		score.TenantID, score.CurrentScore, string(score.Level), string(score.PolicyAction),
		score.IsSuspended, string(score.SuspensionType), score.SuspendedAt,
		score.SuspensionCooldownDays, string(score.ApprovalStatus), score.LastEventAt, metaJSON,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert abuse score: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListSuspended(ctx context.Context, limit int) ([]*Score, error) {
	return s.listWhere(ctx, "is_suspended", limit)
}

func (s *PostgresStore) ListActive(ctx context.Context, limit int) ([]*Score, error) {
	return s.listWhere(ctx, "NOT is_suspended AND current_score > 0", limit)
}

func (s *PostgresStore) listWhere(ctx context.Context, where string, limit int) ([]*Score, error) {
	if limit <= 0 {
		limit = 500
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT tenant_id, current_score, abuse_level, policy_action, is_suspended,
		       suspension_type, suspended_at, suspension_cooldown_days,
		       approval_status, last_event_at, metadata, created_at, updated_at
		FROM abuse_scores WHERE `+where+`
		ORDER BY updated_at DESC LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list abuse scores: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var result []*Score
	for rows.Next() {
		score, err := scanScore(rows)
		if err != nil {
			continue
		}
		result = append(result, score)
	}
	return result, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanScore(row rowScanner) (*Score, error) {
	var sc Score
	var level, action, sType, approval string
	var suspendedAt, lastEventAt sql.NullTime
	var metaJSON []byte

	err := row.Scan(&sc.TenantID, &sc.CurrentScore, &level, &action, &sc.IsSuspended,
		&sType, &suspendedAt, &sc.SuspensionCooldownDays, &approval, &lastEventAt,
		&metaJSON, &sc.CreatedAt, &sc.UpdatedAt)
	if err != nil {
		return nil, err
	}

	sc.Level = Level(level)
	sc.PolicyAction = Action(action)
	sc.SuspensionType = SuspensionType(sType)
	sc.ApprovalStatus = ApprovalStatus(approval)
	if suspendedAt.Valid {
		t := suspendedAt.Time
		sc.SuspendedAt = &t
	}
	if lastEventAt.Valid {
		t := lastEventAt.Time
		sc.LastEventAt = &t
	}
	sc.Metadata = make(map[string]string)
	_ = json.Unmarshal(metaJSON, &sc.Metadata)
	return &sc, nil
}

// EventPostgresStore persists abuse events in PostgreSQL. Append-only:
// there is no update or delete path.
type EventPostgresStore struct {
	db *sql.DB
}

// NewEventPostgresStore creates a PostgreSQL-backed event ledger.
func NewEventPostgresStore(db *sql.DB) *EventPostgresStore {
	return &EventPostgresStore{db: db}
}

// Migrate creates the abuse_events table if it doesn't exist.
func (s *EventPostgresStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS abuse_events (
			id          VARCHAR(36) PRIMARY KEY,
			tenant_id   VARCHAR(64) NOT NULL,
			event_type  VARCHAR(64) NOT NULL,
			weight      NUMERIC(8,2) NOT NULL DEFAULT 0,
			context     JSONB NOT NULL DEFAULT '{}',
			description TEXT,
			source      VARCHAR(64),
			created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);

		CREATE INDEX IF NOT EXISTS idx_abuse_events_tenant
			ON abuse_events (tenant_id, created_at DESC);
	`)
	return err
}

func (s *EventPostgresStore) Append(ctx context.Context, event *Event) error {
	ctxJSON, err := json.Marshal(event.Context)
	if err != nil {
		return fmt.Errorf("failed to marshal event context: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO abuse_events (id, tenant_id, event_type, weight, context, description, source, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, event.ID, event.TenantID, event.EventType, event.Weight, ctxJSON,
		event.Description, event.Source, event.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to append abuse event: %w", err)
	}
	return nil
}

func (s *EventPostgresStore) ListByTenant(ctx context.Context, tenantID string, limit int) ([]*Event, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, tenant_id, event_type, weight, context, description, source, created_at
		FROM abuse_events
		WHERE tenant_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`, tenantID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list abuse events: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var result []*Event
	for rows.Next() {
		var ev Event
		var ctxJSON []byte
		var description, source sql.NullString
		if err := rows.Scan(&ev.ID, &ev.TenantID, &ev.EventType, &ev.Weight,
			&ctxJSON, &description, &source, &ev.CreatedAt); err != nil {
			continue
		}
		ev.Description = description.String
		ev.Source = source.String
		ev.Context = make(map[string]string)
		_ = json.Unmarshal(ctxJSON, &ev.Context)
		result = append(result, &ev)
	}
	return result, rows.Err()
}
