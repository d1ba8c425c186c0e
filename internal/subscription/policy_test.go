package subscription

import (
	"context"
	"testing"
	"time"
)

func newTestPolicy(t *testing.T) (*Policy, *MemoryStore, *MemoryUsageStore) {
	t.Helper()
	store := NewMemoryStore()
	usage := NewMemoryUsageStore()
	p := NewPolicy(store, usage)
	return p, store, usage
}

func TestValidateSubscription(t *testing.T) {
	p, store, _ := newTestPolicy(t)
	ctx := context.Background()

	// No subscription at all.
	res, err := p.ValidateSubscription(ctx, "t1")
	if err != nil {
		t.Fatal(err)
	}
	if res.Allowed || res.Reason != "no_subscription" {
		t.Fatalf("got %+v, want no_subscription denial", res)
	}

	// Active subscription.
	if _, err := p.Subscribe(ctx, "t1", PlanBasic, 30); err != nil {
		t.Fatal(err)
	}
	res, err = p.ValidateSubscription(ctx, "t1")
	if err != nil {
		t.Fatal(err)
	}
	if !res.Allowed || res.Plan != PlanBasic {
		t.Fatalf("got %+v, want allowed basic", res)
	}

	// Cancelled.
	snap, _ := store.Get(ctx, "t1")
	snap.Status = StatusCancelled
	_ = store.Put(ctx, snap)
	res, _ = p.ValidateSubscription(ctx, "t1")
	if res.Allowed || res.Reason != "subscription_inactive" {
		t.Fatalf("got %+v, want subscription_inactive", res)
	}

	// Lapsed period.
	snap.Status = StatusActive
	snap.PeriodEnd = time.Now().Add(-time.Hour)
	_ = store.Put(ctx, snap)
	res, _ = p.ValidateSubscription(ctx, "t1")
	if res.Allowed || res.Reason != "subscription_expired" {
		t.Fatalf("got %+v, want subscription_expired", res)
	}
}

func TestCheckQuotaMessages(t *testing.T) {
	p, _, _ := newTestPolicy(t)
	ctx := context.Background()
	if _, err := p.Subscribe(ctx, "t1", PlanTrial, 30); err != nil {
		t.Fatal(err)
	}

	// Trial allows 500 messages per month.
	res, err := p.CheckQuota(ctx, "t1", QuotaRequest{Messages: 500})
	if err != nil {
		t.Fatal(err)
	}
	if !res.Allowed {
		t.Fatalf("exact quota denied: %+v", res)
	}

	if err := p.RecordUsage(ctx, "t1", QuotaRequest{Messages: 450}); err != nil {
		t.Fatal(err)
	}
	res, _ = p.CheckQuota(ctx, "t1", QuotaRequest{Messages: 51})
	if res.Allowed {
		t.Fatal("over-quota request allowed")
	}
	if res.Reason != "message_quota_exceeded" {
		t.Fatalf("reason = %q", res.Reason)
	}
	if res.Remaining != 50 {
		t.Fatalf("remaining = %d, want 50", res.Remaining)
	}

	res, _ = p.CheckQuota(ctx, "t1", QuotaRequest{Messages: 50})
	if !res.Allowed {
		t.Fatal("in-quota request denied")
	}
}

func TestCheckQuotaCampaignsAndRecipients(t *testing.T) {
	p, _, _ := newTestPolicy(t)
	ctx := context.Background()
	if _, err := p.Subscribe(ctx, "t1", PlanTrial, 30); err != nil {
		t.Fatal(err)
	}

	// Trial caps recipients per campaign at 100.
	res, _ := p.CheckQuota(ctx, "t1", QuotaRequest{Recipients: 101})
	if res.Allowed || res.Reason != "recipient_limit_exceeded" {
		t.Fatalf("got %+v, want recipient_limit_exceeded", res)
	}

	// Trial allows 2 campaigns per month.
	if err := p.RecordUsage(ctx, "t1", QuotaRequest{Campaigns: 2}); err != nil {
		t.Fatal(err)
	}
	res, _ = p.CheckQuota(ctx, "t1", QuotaRequest{Campaigns: 1})
	if res.Allowed || res.Reason != "campaign_quota_exceeded" {
		t.Fatalf("got %+v, want campaign_quota_exceeded", res)
	}
}

func TestCheckQuotaNumbers(t *testing.T) {
	p, _, _ := newTestPolicy(t)
	ctx := context.Background()
	if _, err := p.Subscribe(ctx, "t1", PlanBasic, 30); err != nil {
		t.Fatal(err)
	}

	// Basic allows 2 WhatsApp numbers. Attach them one at a time;
	// each attachment must count against the next check.
	for i := 0; i < 2; i++ {
		res, err := p.CheckQuota(ctx, "t1", QuotaRequest{Numbers: 1})
		if err != nil {
			t.Fatal(err)
		}
		if !res.Allowed {
			t.Fatalf("attachment %d denied: %+v", i+1, res)
		}
		if err := p.RecordUsage(ctx, "t1", QuotaRequest{Numbers: 1}); err != nil {
			t.Fatal(err)
		}
	}

	res, _ := p.CheckQuota(ctx, "t1", QuotaRequest{Numbers: 1})
	if res.Allowed {
		t.Fatal("third number attachment allowed past plan limit")
	}
	if res.Reason != "number_limit_exceeded" {
		t.Fatalf("reason = %q, want number_limit_exceeded", res.Reason)
	}
	if res.Remaining != 0 {
		t.Fatalf("remaining = %d, want 0", res.Remaining)
	}
}

func TestEnterpriseUnlimited(t *testing.T) {
	p, _, _ := newTestPolicy(t)
	ctx := context.Background()
	if _, err := p.Subscribe(ctx, "big", PlanEnterprise, 365); err != nil {
		t.Fatal(err)
	}

	res, err := p.CheckQuota(ctx, "big", QuotaRequest{
		Messages: 10_000_000, Campaigns: 5000, Recipients: 1_000_000, Numbers: 100,
	})
	if err != nil {
		t.Fatal(err)
	}
	if !res.Allowed {
		t.Fatalf("enterprise quota denied: %+v", res)
	}
}

func TestSnapshotLimitsFrozen(t *testing.T) {
	p, store, _ := newTestPolicy(t)
	ctx := context.Background()
	if _, err := p.Subscribe(ctx, "t1", PlanBasic, 30); err != nil {
		t.Fatal(err)
	}

	snap, err := store.Get(ctx, "t1")
	if err != nil {
		t.Fatal(err)
	}
	if snap.Limits != Plans[PlanBasic] {
		t.Fatalf("snapshot limits %+v, want catalogue copy", snap.Limits)
	}

	// Mutating the returned snapshot must not leak into the store.
	snap.Limits.MessagesPerMonth = 1
	again, _ := store.Get(ctx, "t1")
	if again.Limits.MessagesPerMonth != Plans[PlanBasic].MessagesPerMonth {
		t.Fatal("store returned aliased snapshot")
	}
}

func TestSubscribeResetsUsage(t *testing.T) {
	p, _, usage := newTestPolicy(t)
	ctx := context.Background()
	if _, err := p.Subscribe(ctx, "t1", PlanTrial, 30); err != nil {
		t.Fatal(err)
	}
	if err := p.RecordUsage(ctx, "t1", QuotaRequest{Messages: 400}); err != nil {
		t.Fatal(err)
	}

	// Renewal starts a fresh period with zeroed counters.
	if _, err := p.Subscribe(ctx, "t1", PlanTrial, 30); err != nil {
		t.Fatal(err)
	}
	u, err := usage.Get(ctx, "t1")
	if err != nil {
		t.Fatal(err)
	}
	if u.MessagesSent != 0 {
		t.Fatalf("usage not reset: %+v", u)
	}
}
