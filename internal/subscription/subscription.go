// Package subscription answers quota and active-subscription questions
// against an immutable plan snapshot. Limits are frozen into the snapshot
// when the subscription starts, so a later catalogue change never alters
// what a tenant already paid for.
package subscription

import (
	"context"
	"errors"
	"time"
)

// Errors
var (
	ErrSubscriptionNotFound = errors.New("subscription: not found")
	ErrUsageNotFound        = errors.New("subscription: usage not found")
)

// Status represents a subscription's lifecycle state.
type Status string

const (
	StatusActive    Status = "active"
	StatusExpired   Status = "expired"
	StatusCancelled Status = "cancelled"
)

// Plan identifies the pricing tier.
type Plan string

const (
	PlanTrial      Plan = "trial"
	PlanBasic      Plan = "basic"
	PlanPro        Plan = "pro"
	PlanEnterprise Plan = "enterprise"
)

// Limits defines plan quotas. Zero means unlimited.
type Limits struct {
	MessagesPerMonth      int `json:"messagesPerMonth"`
	CampaignsPerMonth     int `json:"campaignsPerMonth"`
	RecipientsPerCampaign int `json:"recipientsPerCampaign"`
	WhatsAppNumbers       int `json:"whatsappNumbers"`
}

// Snapshot is the immutable per-tenant plan record the policy evaluates.
type Snapshot struct {
	TenantID    string    `json:"tenantId"`
	Plan        Plan      `json:"plan"`
	Limits      Limits    `json:"limits"`
	Status      Status    `json:"status"`
	PeriodStart time.Time `json:"periodStart"`
	PeriodEnd   time.Time `json:"periodEnd"`
	CreatedAt   time.Time `json:"createdAt"`
}

// Usage holds a tenant's consumption counters for the current period.
type Usage struct {
	TenantID        string `json:"tenantId"`
	MessagesSent    int    `json:"messagesSent"`
	CampaignsRun    int    `json:"campaignsRun"`
	NumbersAttached int    `json:"numbersAttached"`
}

// Store persists plan snapshots.
type Store interface {
	Get(ctx context.Context, tenantID string) (*Snapshot, error)
	Put(ctx context.Context, snap *Snapshot) error
}

// UsageStore persists period usage counters.
type UsageStore interface {
	Get(ctx context.Context, tenantID string) (*Usage, error)
	AddMessages(ctx context.Context, tenantID string, n int) error
	AddCampaigns(ctx context.Context, tenantID string, n int) error
	AddNumbers(ctx context.Context, tenantID string, n int) error
	Reset(ctx context.Context, tenantID string) error
}
