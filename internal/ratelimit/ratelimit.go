// Package ratelimit provides context-aware request rate limiting.
//
// Rules are matched against the request context (tenant, IP, endpoint,
// abuse risk level, wallet saldo status); among matching rules the highest
// priority wins. Two algorithms are available per rule: sliding window and
// token bucket. Counters live in process memory behind sharded locks —
// they are on the hot path of every request and approximate correctness
// under extreme concurrency is acceptable, undercounting is not.
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrInvalidRule is returned when a rule fails validation. Both rule
// stores reject invalid rules on Put so the counter engine never sees
// a rule with a zero limit or window.
var ErrInvalidRule = errors.New("ratelimit: invalid rule")

// ContextType scopes what a rule's counters key on.
type ContextType string

const (
	ContextUser     ContextType = "user"
	ContextIP       ContextType = "ip"
	ContextEndpoint ContextType = "endpoint"
	ContextGlobal   ContextType = "global"
)

// Algorithm selects the counting strategy for a rule.
type Algorithm string

const (
	AlgorithmSlidingWindow Algorithm = "sliding_window"
	AlgorithmTokenBucket   Algorithm = "token_bucket"
)

// RuleAction is what happens when a rule's limit is exceeded.
type RuleAction string

const (
	// ActionBlock rejects the request with a retry-after hint.
	ActionBlock RuleAction = "block"
	// ActionThrottle lets the request proceed after a deliberate delay.
	ActionThrottle RuleAction = "throttle"
	// ActionWarn logs the breach and proceeds unthrottled.
	ActionWarn RuleAction = "warn"
)

// Rule is an admin-managed rate limit rule. Read-mostly; matching is
// non-exclusive and the highest-priority match governs.
type Rule struct {
	ID              string      `json:"id" yaml:"id"`
	Name            string      `json:"name" yaml:"name"`
	ContextType     ContextType `json:"contextType" yaml:"context_type"`
	EndpointPattern string      `json:"endpointPattern" yaml:"endpoint_pattern"`
	// RiskLevel filters by the tenant's abuse level; empty matches all.
	RiskLevel string `json:"riskLevel,omitempty" yaml:"risk_level"`
	// SaldoStatus filters by the tenant's wallet bucket; empty matches all.
	SaldoStatus   string     `json:"saldoStatus,omitempty" yaml:"saldo_status"`
	MaxRequests   int        `json:"maxRequests" yaml:"max_requests"`
	WindowSeconds int        `json:"windowSeconds" yaml:"window_seconds"`
	Algorithm     Algorithm  `json:"algorithm" yaml:"algorithm"`
	Action        RuleAction `json:"action" yaml:"action"`
	Priority      int        `json:"priority" yaml:"priority"`
	IsActive      bool       `json:"isActive" yaml:"is_active"`
}

// Validate checks that a rule is well-formed enough to drive the counter
// engine. A zero max_requests or window_seconds would make the sliding
// window deny everything (or panic on retry-after) and the token bucket
// refill at an infinite rate.
func (r *Rule) Validate() error {
	if r.ID == "" {
		return fmt.Errorf("%w: id is required", ErrInvalidRule)
	}
	if r.MaxRequests <= 0 {
		return fmt.Errorf("%w: max_requests must be positive", ErrInvalidRule)
	}
	if r.WindowSeconds <= 0 {
		return fmt.Errorf("%w: window_seconds must be positive", ErrInvalidRule)
	}
	switch r.Algorithm {
	case AlgorithmSlidingWindow, AlgorithmTokenBucket:
	default:
		return fmt.Errorf("%w: unknown algorithm %q", ErrInvalidRule, r.Algorithm)
	}
	switch r.Action {
	case ActionBlock, ActionThrottle, ActionWarn:
	default:
		return fmt.Errorf("%w: unknown action %q", ErrInvalidRule, r.Action)
	}
	switch r.ContextType {
	case ContextUser, ContextIP, ContextEndpoint, ContextGlobal:
	default:
		return fmt.Errorf("%w: unknown context_type %q", ErrInvalidRule, r.ContextType)
	}
	return nil
}

// RequestContext is everything rule matching needs about one request.
type RequestContext struct {
	TenantID string
	IP       string
	Endpoint string
	// RiskLevel is the tenant's current abuse level (none/low/medium/high/critical).
	RiskLevel string
	// SaldoStatus is the tenant's wallet bucket (zero/critical/low/normal).
	SaldoStatus string
}

// Decision is the outcome of a rate limit check.
type Decision struct {
	Allowed  bool       `json:"allowed"`
	Action   RuleAction `json:"action,omitempty"`
	RuleID   string     `json:"ruleId,omitempty"`
	RuleName string     `json:"ruleName,omitempty"`
	Limit    int        `json:"limit,omitempty"`
	// RetryAfterSeconds is set on block decisions.
	RetryAfterSeconds int `json:"retryAfterSeconds,omitempty"`
	// DelaySeconds is set on throttle decisions.
	DelaySeconds int `json:"delaySeconds,omitempty"`
	Exempt       bool `json:"exempt,omitempty"`
}

// LogEntry records one triggered decision for audit and statistics.
// Write-only from the decision path; never read back into it.
type LogEntry struct {
	ID        string     `json:"id"`
	RuleID    string     `json:"ruleId"`
	RuleName  string     `json:"ruleName"`
	TenantID  string     `json:"tenantId,omitempty"`
	IP        string     `json:"ip,omitempty"`
	Endpoint  string     `json:"endpoint"`
	Action    RuleAction `json:"action"`
	Allowed   bool       `json:"allowed"`
	CreatedAt time.Time  `json:"createdAt"`
}

// RuleStore provides the active rule set.
type RuleStore interface {
	List(ctx context.Context) ([]*Rule, error)
	Put(ctx context.Context, rule *Rule) error
	Delete(ctx context.Context, id string) error
}

// LogStore persists triggered decisions.
type LogStore interface {
	Append(ctx context.Context, entry *LogEntry) error
	CountByRule(ctx context.Context, since time.Time) (map[string]int, error)
}
