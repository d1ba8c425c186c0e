// Package abuse implements per-tenant abuse scoring for Sendloka.
//
// Every abuse signal (spam reports, failed blasts, invalid numbers,
// chargebacks) is recorded as a weighted event against the tenant's score.
// The score maps deterministically onto an abuse level and a policy action:
// clean tenants pass untouched, noisy tenants get throttled, bad tenants
// need manual approval, and critical tenants are suspended outright.
// Good behavior heals the score over time via decay, and suspended tenants
// can earn automatic unlock after a cooldown if their score has recovered.
package abuse

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrScoreNotFound is returned when a tenant has no score record yet.
	ErrScoreNotFound = errors.New("abuse: score not found")
)

// Level is the tenant's abuse severity, derived from the current score.
type Level string

const (
	LevelNone     Level = "none"
	LevelLow      Level = "low"
	LevelMedium   Level = "medium"
	LevelHigh     Level = "high"
	LevelCritical Level = "critical"
)

// Action is the enforcement response tier derived from the abuse level.
type Action string

const (
	ActionNone            Action = "none"
	ActionThrottle        Action = "throttle"
	ActionRequireApproval Action = "require_approval"
	ActionSuspend         Action = "suspend"
)

// SuspensionType distinguishes temporary (cooldown-bounded) from permanent suspensions.
type SuspensionType string

const (
	SuspensionNone      SuspensionType = "none"
	SuspensionTemporary SuspensionType = "temporary"
	SuspensionPermanent SuspensionType = "permanent"
)

// ApprovalStatus tracks whether a require_approval tenant has been cleared.
type ApprovalStatus string

const (
	ApprovalNone         ApprovalStatus = "none"
	ApprovalPending      ApprovalStatus = "pending"
	ApprovalAutoApproved ApprovalStatus = "auto_approved"
)

// Metadata keys written by the engine.
const (
	MetaScoreAtSuspension = "score_at_suspension"
	MetaAutoUnlockedAt    = "auto_unlocked_at"
)

// Score is the persistent abuse record for one tenant.
//
// Level and PolicyAction are always pure functions of CurrentScore against
// the configured thresholds; the engine recomputes them on every mutation
// and nothing else is permitted to set them.
type Score struct {
	TenantID               string            `json:"tenantId"`
	CurrentScore           float64           `json:"currentScore"`
	Level                  Level             `json:"abuseLevel"`
	PolicyAction           Action            `json:"policyAction"`
	IsSuspended            bool              `json:"isSuspended"`
	SuspensionType         SuspensionType    `json:"suspensionType"`
	SuspendedAt            *time.Time        `json:"suspendedAt,omitempty"`
	SuspensionCooldownDays int               `json:"suspensionCooldownDays"`
	ApprovalStatus         ApprovalStatus    `json:"approvalStatus"`
	LastEventAt            *time.Time        `json:"lastEventAt,omitempty"`
	Metadata               map[string]string `json:"metadata,omitempty"`
	CreatedAt              time.Time         `json:"createdAt"`
	UpdatedAt              time.Time         `json:"updatedAt"`
}

// Event is one append-only abuse signal. Immutable once written.
type Event struct {
	ID          string            `json:"id"`
	TenantID    string            `json:"tenantId"`
	EventType   string            `json:"eventType"`
	Weight      float64           `json:"weight"`
	Context     map[string]string `json:"context,omitempty"`
	Description string            `json:"description,omitempty"`
	Source      string            `json:"source,omitempty"`
	CreatedAt   time.Time         `json:"createdAt"`
}

// Store persists tenant abuse scores.
type Store interface {
	Get(ctx context.Context, tenantID string) (*Score, error)
	Upsert(ctx context.Context, score *Score) error
	ListSuspended(ctx context.Context, limit int) ([]*Score, error)
	ListActive(ctx context.Context, limit int) ([]*Score, error)
}

// EventStore is the append-only ledger of abuse events.
// Events are never updated or deleted; they are the audit trail from which
// any score can be reconstructed.
type EventStore interface {
	Append(ctx context.Context, event *Event) error
	ListByTenant(ctx context.Context, tenantID string, limit int) ([]*Event, error)
}

// ThrottleLimits are the send-rate caps a caller should apply to a
// throttled tenant. The engine only reports them; enforcement is the
// caller's job (see the ratelimit package for hard limits).
type ThrottleLimits struct {
	MaxMessagesPerMinute int `json:"maxMessagesPerMinute"`
	MaxCampaignsPerHour  int `json:"maxCampaignsPerHour"`
	DelaySeconds         int `json:"delaySeconds"`
}

// Decision is the structured outcome of an admission check.
// Denials are first-class results, never errors.
type Decision struct {
	Allowed          bool            `json:"allowed"`
	Reason           string          `json:"reason,omitempty"`
	Level            Level           `json:"abuseLevel"`
	PolicyAction     Action          `json:"policyAction"`
	RequiresApproval bool            `json:"requiresApproval,omitempty"`
	Throttled        bool            `json:"throttled,omitempty"`
	Limits           *ThrottleLimits `json:"limits,omitempty"`
	CooldownDaysLeft int             `json:"cooldownDaysLeft,omitempty"`
}

// UnlockResult reports one tenant's outcome from the auto-unlock sweep.
type UnlockResult struct {
	TenantID      string  `json:"tenantId"`
	Unlocked      bool    `json:"unlocked"`
	Reason        string  `json:"reason"`
	RemainingDays int     `json:"remainingDays,omitempty"`
	CurrentScore  float64 `json:"currentScore"`
}
