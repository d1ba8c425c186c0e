// Package guard composes the revenue enforcement pipeline: the ordered,
// fail-closed set of checks every cost-bearing action passes before the
// tenant's wallet is debited. Each guard is a pure decision function;
// the pipeline is the only place that orders them and the only caller
// of the atomic deduction.
package guard

import (
	"context"
	"time"

	"github.com/sendloka/sendloka/internal/approval"
)

// Role is the closed set of caller roles. Bypass is a capability of the
// role, never a string comparison at call sites.
type Role string

const (
	RoleOwner  Role = "owner"
	RoleAdmin  Role = "admin"
	RoleStaff  Role = "staff"
	RoleTenant Role = "tenant"
)

// IsExempt reports whether the role bypasses the pipeline entirely.
// Owner and admin actions are not metered.
func IsExempt(r Role) bool {
	switch r {
	case RoleOwner, RoleAdmin:
		return true
	}
	return false
}

// CheckContext describes the cost-bearing action under evaluation.
type CheckContext struct {
	TenantID     string                `json:"tenantId"`
	Role         Role                  `json:"role"`
	ActionType   string                `json:"actionType"` // blast_send, campaign_create, ...
	BusinessType approval.BusinessType `json:"businessType"`

	// MessageCount and Category drive the cost estimate.
	MessageCount   int    `json:"messageCount"`
	Category       string `json:"category"`
	CampaignCount  int    `json:"campaignCount"`
	RecipientCount int    `json:"recipientCount"`
	NumberCount    int    `json:"numberCount"`

	// Reference ties the wallet deduction to the action for audit and refund.
	Reference string `json:"reference,omitempty"`
}

// Result is a single guard's verdict.
type Result struct {
	Allowed bool              `json:"allowed"`
	Reason  string            `json:"reason,omitempty"`
	Data    map[string]string `json:"data,omitempty"`
}

// Allow is the shared all-clear result.
func Allow() *Result { return &Result{Allowed: true} }

// Deny builds a denial with the given machine-readable reason.
func Deny(reason string) *Result { return &Result{Allowed: false, Reason: reason} }

// Guard is one layer of the pipeline. A returned error means the guard
// could not decide; the pipeline treats that as a denial (fail closed).
type Guard interface {
	Name() string
	Check(ctx context.Context, req *CheckContext) (*Result, error)
}

// LogEntry records one pipeline block, written before the caller sees
// the denial. This log is the source of truth for "why was this tenant
// blocked".
type LogEntry struct {
	ID        string            `json:"id"`
	TenantID  string            `json:"tenantId"`
	Layer     string            `json:"layer"`
	EventType string            `json:"eventType"`
	Reason    string            `json:"reason"`
	Action    string            `json:"action"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	CreatedAt time.Time         `json:"createdAt"`
}

// LogStore persists pipeline block records. Append-only; read by
// reporting, never by the decision path.
type LogStore interface {
	Append(ctx context.Context, entry *LogEntry) error
	ListByTenant(ctx context.Context, tenantID string, limit int) ([]*LogEntry, error)
}
