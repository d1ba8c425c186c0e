package ratelimit

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// PostgresRuleStore persists admin-managed rules in PostgreSQL.
type PostgresRuleStore struct {
	db *sql.DB
}

// NewPostgresRuleStore creates a PostgreSQL-backed rule store.
func NewPostgresRuleStore(db *sql.DB) *PostgresRuleStore {
	return &PostgresRuleStore{db: db}
}

// Migrate creates the rate_limit_rules table if it doesn't exist.
func (s *PostgresRuleStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS rate_limit_rules (
			id               VARCHAR(64) PRIMARY KEY,
			name             VARCHAR(128) NOT NULL,
			context_type     VARCHAR(10) NOT NULL CHECK (context_type IN ('user', 'ip', 'endpoint', 'global')),
			endpoint_pattern VARCHAR(255) NOT NULL DEFAULT '',
			risk_level       VARCHAR(10) NOT NULL DEFAULT '',
			saldo_status     VARCHAR(10) NOT NULL DEFAULT '',
			max_requests     INT NOT NULL CHECK (max_requests > 0),
			window_seconds   INT NOT NULL CHECK (window_seconds > 0),
			algorithm        VARCHAR(20) NOT NULL CHECK (algorithm IN ('sliding_window', 'token_bucket')),
			action           VARCHAR(10) NOT NULL CHECK (action IN ('block', 'throttle', 'warn')),
			priority         INT NOT NULL DEFAULT 0,
			is_active        BOOLEAN NOT NULL DEFAULT TRUE,
			updated_at       TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
	`)
	return err
}

func (s *PostgresRuleStore) List(ctx context.Context) ([]*Rule, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, context_type, endpoint_pattern, risk_level, saldo_status,
		       max_requests, window_seconds, algorithm, action, priority, is_active
		FROM rate_limit_rules
		ORDER BY priority DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list rate limit rules: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var result []*Rule
	for rows.Next() {
		var r Rule
		var ctxType, algo, action string
		if err := rows.Scan(&r.ID, &r.Name, &ctxType, &r.EndpointPattern, &r.RiskLevel,
			&r.SaldoStatus, &r.MaxRequests, &r.WindowSeconds, &algo, &action,
			&r.Priority, &r.IsActive); err != nil {
			continue
		}
		r.ContextType = ContextType(ctxType)
		r.Algorithm = Algorithm(algo)
		r.Action = RuleAction(action)
		result = append(result, &r)
	}
	return result, rows.Err()
}

func (s *PostgresRuleStore) Put(ctx context.Context, rule *Rule) error {
	if err := rule.Validate(); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO rate_limit_rules (id, name, context_type, endpoint_pattern, risk_level,
			saldo_status, max_requests, window_seconds, algorithm, action, priority, is_active, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, NOW())
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			context_type = EXCLUDED.context_type,
			endpoint_pattern = EXCLUDED.endpoint_pattern,
			risk_level = EXCLUDED.risk_level,
			saldo_status = EXCLUDED.saldo_status,
			max_requests = EXCLUDED.max_requests,
			window_seconds = EXCLUDED.window_seconds,
			algorithm = EXCLUDED.algorithm,
			action = EXCLUDED.action,
			priority = EXCLUDED.priority,
			is_active = EXCLUDED.is_active,
			updated_at = NOW()
	`, rule.ID, rule.Name, string(rule.ContextType), rule.EndpointPattern, rule.RiskLevel,
		rule.SaldoStatus, rule.MaxRequests, rule.WindowSeconds, string(rule.Algorithm),
		string(rule.Action), rule.Priority, rule.IsActive)
	if err != nil {
		return fmt.Errorf("failed to put rate limit rule: %w", err)
	}
	return nil
}

func (s *PostgresRuleStore) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM rate_limit_rules WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete rate limit rule: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return ErrRuleNotFound
	}
	return nil
}

// PostgresLogStore persists triggered decisions in PostgreSQL.
type PostgresLogStore struct {
	db *sql.DB
}

// NewPostgresLogStore creates a PostgreSQL-backed decision log.
func NewPostgresLogStore(db *sql.DB) *PostgresLogStore {
	return &PostgresLogStore{db: db}
}

// Migrate creates the rate_limit_log table if it doesn't exist.
func (s *PostgresLogStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS rate_limit_log (
			id         VARCHAR(36) PRIMARY KEY,
			rule_id    VARCHAR(64) NOT NULL,
			rule_name  VARCHAR(128) NOT NULL,
			tenant_id  VARCHAR(64),
			ip         VARCHAR(45),
			endpoint   VARCHAR(255) NOT NULL,
			action     VARCHAR(10) NOT NULL,
			allowed    BOOLEAN NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);

		CREATE INDEX IF NOT EXISTS idx_rate_limit_log_rule
			ON rate_limit_log (rule_id, created_at DESC);
	`)
	return err
}

func (s *PostgresLogStore) Append(ctx context.Context, entry *LogEntry) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO rate_limit_log (id, rule_id, rule_name, tenant_id, ip, endpoint, action, allowed, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, entry.ID, entry.RuleID, entry.RuleName, entry.TenantID, entry.IP,
		entry.Endpoint, string(entry.Action), entry.Allowed, entry.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to append rate limit log: %w", err)
	}
	return nil
}

func (s *PostgresLogStore) CountByRule(ctx context.Context, since time.Time) (map[string]int, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT rule_id, COUNT(*) FROM rate_limit_log
		WHERE created_at >= $1
		GROUP BY rule_id
	`, since)
	if err != nil {
		return nil, fmt.Errorf("failed to count rate limit log: %w", err)
	}
	defer func() { _ = rows.Close() }()

	counts := make(map[string]int)
	for rows.Next() {
		var ruleID string
		var n int
		if err := rows.Scan(&ruleID, &n); err != nil {
			continue
		}
		counts[ruleID] = n
	}
	return counts, rows.Err()
}
