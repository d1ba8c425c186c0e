package subscription

import (
	"context"
	"database/sql"
	"fmt"
)

// PostgresStore persists plan snapshots in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a PostgreSQL-backed snapshot store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Migrate creates the subscriptions table if it doesn't exist.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS subscriptions (
			tenant_id               VARCHAR(64) PRIMARY KEY,
			plan                    VARCHAR(20) NOT NULL,
			status                  VARCHAR(20) NOT NULL CHECK (status IN ('active', 'expired', 'cancelled')),
			messages_per_month      INT NOT NULL DEFAULT 0,
			campaigns_per_month     INT NOT NULL DEFAULT 0,
			recipients_per_campaign INT NOT NULL DEFAULT 0,
			whatsapp_numbers        INT NOT NULL DEFAULT 0,
			period_start            TIMESTAMPTZ NOT NULL,
			period_end              TIMESTAMPTZ NOT NULL,
			created_at              TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
	`)
	return err
}

func (s *PostgresStore) Get(ctx context.Context, tenantID string) (*Snapshot, error) {
	var snap Snapshot
	var plan, status string
	err := s.db.QueryRowContext(ctx, `
		SELECT tenant_id, plan, status, messages_per_month, campaigns_per_month,
		       recipients_per_campaign, whatsapp_numbers, period_start, period_end, created_at
		FROM subscriptions WHERE tenant_id = $1
	`, tenantID).Scan(&snap.TenantID, &plan, &status,
		&snap.Limits.MessagesPerMonth, &snap.Limits.CampaignsPerMonth,
		&snap.Limits.RecipientsPerCampaign, &snap.Limits.WhatsAppNumbers,
		&snap.PeriodStart, &snap.PeriodEnd, &snap.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrSubscriptionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get subscription: %w", err)
	}
	snap.Plan = Plan(plan)
	snap.Status = Status(status)
	return &snap, nil
}

func (s *PostgresStore) Put(ctx context.Context, snap *Snapshot) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO subscriptions (tenant_id, plan, status, messages_per_month,
			campaigns_per_month, recipients_per_campaign, whatsapp_numbers,
			period_start, period_end, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (tenant_id) DO UPDATE SET
			plan = EXCLUDED.plan,
			status = EXCLUDED.status,
			messages_per_month = EXCLUDED.messages_per_month,
			campaigns_per_month = EXCLUDED.campaigns_per_month,
			recipients_per_campaign = EXCLUDED.recipients_per_campaign,
			whatsapp_numbers = EXCLUDED.whatsapp_numbers,
			period_start = EXCLUDED.period_start,
			period_end = EXCLUDED.period_end
	`, snap.TenantID, string(snap.Plan), string(snap.Status),
		snap.Limits.MessagesPerMonth, snap.Limits.CampaignsPerMonth,
		snap.Limits.RecipientsPerCampaign, snap.Limits.WhatsAppNumbers,
		snap.PeriodStart, snap.PeriodEnd, snap.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to put subscription: %w", err)
	}
	return nil
}

// PostgresUsageStore persists period usage counters in PostgreSQL.
type PostgresUsageStore struct {
	db *sql.DB
}

// NewPostgresUsageStore creates a PostgreSQL-backed usage store.
func NewPostgresUsageStore(db *sql.DB) *PostgresUsageStore {
	return &PostgresUsageStore{db: db}
}

// Migrate creates the subscription_usage table if it doesn't exist.
func (s *PostgresUsageStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS subscription_usage (
			tenant_id        VARCHAR(64) PRIMARY KEY,
			messages_sent    INT NOT NULL DEFAULT 0,
			campaigns_run    INT NOT NULL DEFAULT 0,
			numbers_attached INT NOT NULL DEFAULT 0,
			updated_at       TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
	`)
	return err
}

func (s *PostgresUsageStore) Get(ctx context.Context, tenantID string) (*Usage, error) {
	var u Usage
	err := s.db.QueryRowContext(ctx, `
		SELECT tenant_id, messages_sent, campaigns_run, numbers_attached
		FROM subscription_usage WHERE tenant_id = $1
	`, tenantID).Scan(&u.TenantID, &u.MessagesSent, &u.CampaignsRun, &u.NumbersAttached)
	if err == sql.ErrNoRows {
		return nil, ErrUsageNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get usage: %w", err)
	}
	return &u, nil
}

func (s *PostgresUsageStore) AddMessages(ctx context.Context, tenantID string, n int) error {
	return s.add(ctx, tenantID, "messages_sent", n)
}

func (s *PostgresUsageStore) AddCampaigns(ctx context.Context, tenantID string, n int) error {
	return s.add(ctx, tenantID, "campaigns_run", n)
}

func (s *PostgresUsageStore) AddNumbers(ctx context.Context, tenantID string, n int) error {
	return s.add(ctx, tenantID, "numbers_attached", n)
}

func (s *PostgresUsageStore) Reset(ctx context.Context, tenantID string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO subscription_usage (tenant_id, messages_sent, campaigns_run, numbers_attached, updated_at)
		VALUES ($1, 0, 0, 0, NOW())
		ON CONFLICT (tenant_id) DO UPDATE SET
			messages_sent = 0, campaigns_run = 0, numbers_attached = 0, updated_at = NOW()
	`, tenantID)
	if err != nil {
		return fmt.Errorf("failed to reset usage: %w", err)
	}
	return nil
}

func (s *PostgresUsageStore) add(ctx context.Context, tenantID, column string, n int) error {
	// column is one of our own constants, never user input.
	_, err := s.db.ExecContext(ctx, fmt.Sprintf(`
		INSERT INTO subscription_usage (tenant_id, %[1]s, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (tenant_id) DO UPDATE SET
			%[1]s = subscription_usage.%[1]s + EXCLUDED.%[1]s,
			updated_at = NOW()
	`, column), tenantID, n)
	if err != nil {
		return fmt.Errorf("failed to add usage: %w", err)
	}
	return nil
}
