package subscription

import (
	"context"
	"time"
)

// CheckResult is the structured outcome of a policy question. Denials are
// first-class results, never errors.
type CheckResult struct {
	Allowed bool   `json:"allowed"`
	Reason  string `json:"reason,omitempty"`
	Plan    Plan   `json:"plan,omitempty"`
	// Remaining is the headroom left for the denied quota dimension.
	// -1 means unlimited.
	Remaining int `json:"remaining,omitempty"`
}

// QuotaRequest describes the consumption a pending action would cause.
type QuotaRequest struct {
	Messages   int
	Campaigns  int
	Recipients int
	Numbers    int
}

// Policy evaluates plan snapshots and usage counters.
type Policy struct {
	store Store
	usage UsageStore
	now   func() time.Time
}

// NewPolicy creates a subscription policy.
func NewPolicy(store Store, usage UsageStore) *Policy {
	return &Policy{store: store, usage: usage, now: time.Now}
}

// ValidateSubscription answers whether the tenant has an active,
// unexpired subscription. Missing or lapsed subscriptions are policy
// denials; store faults are returned as errors for the caller to
// fail closed on.
func (p *Policy) ValidateSubscription(ctx context.Context, tenantID string) (*CheckResult, error) {
	snap, err := p.store.Get(ctx, tenantID)
	if err != nil {
		if err == ErrSubscriptionNotFound {
			return &CheckResult{Allowed: false, Reason: "no_subscription"}, nil
		}
		return nil, err
	}
	if snap.Status != StatusActive {
		return &CheckResult{Allowed: false, Reason: "subscription_inactive", Plan: snap.Plan}, nil
	}
	if !snap.PeriodEnd.IsZero() && p.now().After(snap.PeriodEnd) {
		return &CheckResult{Allowed: false, Reason: "subscription_expired", Plan: snap.Plan}, nil
	}
	return &CheckResult{Allowed: true, Plan: snap.Plan}, nil
}

// CheckQuota answers whether the requested consumption fits the tenant's
// snapshot limits given current period usage. A zero limit is unlimited.
func (p *Policy) CheckQuota(ctx context.Context, tenantID string, req QuotaRequest) (*CheckResult, error) {
	snap, err := p.store.Get(ctx, tenantID)
	if err != nil {
		if err == ErrSubscriptionNotFound {
			return &CheckResult{Allowed: false, Reason: "no_subscription"}, nil
		}
		return nil, err
	}

	usage, err := p.usage.Get(ctx, tenantID)
	if err != nil {
		if err != ErrUsageNotFound {
			return nil, err
		}
		usage = &Usage{TenantID: tenantID}
	}

	limits := snap.Limits
	if req.Messages > 0 && limits.MessagesPerMonth > 0 {
		if remaining := limits.MessagesPerMonth - usage.MessagesSent; req.Messages > remaining {
			return denyQuota("message_quota_exceeded", snap.Plan, remaining), nil
		}
	}
	if req.Campaigns > 0 && limits.CampaignsPerMonth > 0 {
		if remaining := limits.CampaignsPerMonth - usage.CampaignsRun; req.Campaigns > remaining {
			return denyQuota("campaign_quota_exceeded", snap.Plan, remaining), nil
		}
	}
	if req.Recipients > 0 && limits.RecipientsPerCampaign > 0 && req.Recipients > limits.RecipientsPerCampaign {
		return denyQuota("recipient_limit_exceeded", snap.Plan, limits.RecipientsPerCampaign), nil
	}
	if req.Numbers > 0 && limits.WhatsAppNumbers > 0 {
		if remaining := limits.WhatsAppNumbers - usage.NumbersAttached; req.Numbers > remaining {
			return denyQuota("number_limit_exceeded", snap.Plan, remaining), nil
		}
	}
	return &CheckResult{Allowed: true, Plan: snap.Plan, Remaining: -1}, nil
}

// RecordUsage bumps the period counters after an action has been admitted
// and paid for. Counter faults are surfaced but cannot retroactively
// deny the action.
func (p *Policy) RecordUsage(ctx context.Context, tenantID string, req QuotaRequest) error {
	if req.Messages > 0 {
		if err := p.usage.AddMessages(ctx, tenantID, req.Messages); err != nil {
			return err
		}
	}
	if req.Campaigns > 0 {
		if err := p.usage.AddCampaigns(ctx, tenantID, req.Campaigns); err != nil {
			return err
		}
	}
	if req.Numbers > 0 {
		if err := p.usage.AddNumbers(ctx, tenantID, req.Numbers); err != nil {
			return err
		}
	}
	return nil
}

// Subscribe creates or replaces a tenant's snapshot from the catalogue,
// freezing the plan's current limits for the period.
func (p *Policy) Subscribe(ctx context.Context, tenantID string, plan Plan, periodDays int) (*Snapshot, error) {
	now := p.now()
	snap := &Snapshot{
		TenantID:    tenantID,
		Plan:        plan,
		Limits:      LimitsFor(plan),
		Status:      StatusActive,
		PeriodStart: now,
		PeriodEnd:   now.AddDate(0, 0, periodDays),
		CreatedAt:   now,
	}
	if err := p.store.Put(ctx, snap); err != nil {
		return nil, err
	}
	if err := p.usage.Reset(ctx, tenantID); err != nil {
		return nil, err
	}
	return snap, nil
}

func denyQuota(reason string, plan Plan, remaining int) *CheckResult {
	if remaining < 0 {
		remaining = 0
	}
	return &CheckResult{Allowed: false, Reason: reason, Plan: plan, Remaining: remaining}
}
