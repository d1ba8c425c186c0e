package ratelimit

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) advance(d time.Duration) { c.now = c.now.Add(d) }

func newTestLimiter(t *testing.T, rules []*Rule) (*Limiter, *MemoryLogStore, *fakeClock) {
	t.Helper()
	store := NewMemoryRuleStore()
	for _, r := range rules {
		if err := store.Put(context.Background(), r); err != nil {
			t.Fatalf("put rule: %v", err)
		}
	}
	log := NewMemoryLogStore()
	l := NewLimiter(DefaultConfig(), store, log, nil)
	t.Cleanup(l.Stop)
	clock := &fakeClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
	l.now = func() time.Time { return clock.now }
	return l, log, clock
}

func blastRule() *Rule {
	return &Rule{
		ID:              "blast-send",
		Name:            "blast send limit",
		ContextType:     ContextUser,
		EndpointPattern: "/api/blast/*",
		MaxRequests:     5,
		WindowSeconds:   60,
		Algorithm:       AlgorithmSlidingWindow,
		Action:          ActionBlock,
		Priority:        10,
		IsActive:        true,
	}
}

func TestSlidingWindowBoundary(t *testing.T) {
	l, _, clock := newTestLimiter(t, []*Rule{blastRule()})
	req := &RequestContext{TenantID: "t1", Endpoint: "/api/blast/send"}

	// Exactly max_requests within the window are allowed.
	for i := 0; i < 5; i++ {
		d := l.Check(context.Background(), req)
		if !d.Allowed {
			t.Fatalf("request %d denied, want allowed", i+1)
		}
		clock.advance(time.Second)
	}

	// The max+1-th request within the same window is denied.
	d := l.Check(context.Background(), req)
	if d.Allowed {
		t.Fatal("6th request allowed, want denied")
	}
	if d.Action != ActionBlock {
		t.Fatalf("action = %q, want block", d.Action)
	}
	if d.RetryAfterSeconds < 1 {
		t.Fatalf("RetryAfterSeconds = %d, want >= 1", d.RetryAfterSeconds)
	}

	// After the window fully elapses, the counter resets.
	clock.advance(61 * time.Second)
	d = l.Check(context.Background(), req)
	if !d.Allowed {
		t.Fatal("post-window request denied, want allowed")
	}
}

func TestSlidingWindowRetryAfterHint(t *testing.T) {
	l, _, clock := newTestLimiter(t, []*Rule{blastRule()})
	req := &RequestContext{TenantID: "t1", Endpoint: "/api/blast/send"}

	for i := 0; i < 5; i++ {
		l.Check(context.Background(), req)
	}
	clock.advance(30 * time.Second)

	d := l.Check(context.Background(), req)
	if d.Allowed {
		t.Fatal("want denied")
	}
	// Oldest hit at t=0 leaves the window at t=60; we are at t=30.
	if d.RetryAfterSeconds != 30 {
		t.Fatalf("RetryAfterSeconds = %d, want 30", d.RetryAfterSeconds)
	}
}

func TestTokenBucket(t *testing.T) {
	rule := &Rule{
		ID:            "api-burst",
		Name:          "api burst",
		ContextType:   ContextUser,
		MaxRequests:   3,
		WindowSeconds: 30,
		Algorithm:     AlgorithmTokenBucket,
		Action:        ActionBlock,
		IsActive:      true,
	}
	l, _, clock := newTestLimiter(t, []*Rule{rule})
	req := &RequestContext{TenantID: "t1", Endpoint: "/api/messages"}

	// Bucket starts full: a burst of max_requests succeeds at once.
	for i := 0; i < 3; i++ {
		if d := l.Check(context.Background(), req); !d.Allowed {
			t.Fatalf("burst request %d denied", i+1)
		}
	}
	if d := l.Check(context.Background(), req); d.Allowed {
		t.Fatal("empty bucket allowed a request")
	}

	// Refill rate is max/window = 0.1 tokens/sec; 10s buys one token.
	clock.advance(10 * time.Second)
	if d := l.Check(context.Background(), req); !d.Allowed {
		t.Fatal("refilled token not spendable")
	}
	if d := l.Check(context.Background(), req); d.Allowed {
		t.Fatal("second request allowed with empty bucket")
	}
}

func TestPriorityWins(t *testing.T) {
	broad := blastRule()
	broad.ID = "broad"
	broad.EndpointPattern = "/api/*"
	broad.Priority = 1
	broad.MaxRequests = 100

	narrow := blastRule()
	narrow.ID = "narrow"
	narrow.Priority = 50
	narrow.MaxRequests = 1

	l, _, _ := newTestLimiter(t, []*Rule{broad, narrow})
	req := &RequestContext{TenantID: "t1", Endpoint: "/api/blast/send"}

	d := l.Check(context.Background(), req)
	if d.RuleID != "narrow" {
		t.Fatalf("matched rule %q, want narrow", d.RuleID)
	}
	if d := l.Check(context.Background(), req); d.Allowed {
		t.Fatal("narrow rule limit of 1 not enforced")
	}
}

func TestRiskAndSaldoFilters(t *testing.T) {
	rule := blastRule()
	rule.RiskLevel = "high"
	rule.SaldoStatus = "low"
	rule.MaxRequests = 1

	l, _, _ := newTestLimiter(t, []*Rule{rule})

	// A low-risk tenant does not match the tightened rule and falls back
	// to the default limit.
	d := l.Check(context.Background(), &RequestContext{
		TenantID: "safe", Endpoint: "/api/blast/send", RiskLevel: "low", SaldoStatus: "low",
	})
	if d.RuleID != "default" {
		t.Fatalf("low-risk tenant matched %q, want default", d.RuleID)
	}

	// A high-risk low-saldo tenant gets the tightened rule.
	req := &RequestContext{
		TenantID: "risky", Endpoint: "/api/blast/send", RiskLevel: "high", SaldoStatus: "low",
	}
	if d := l.Check(context.Background(), req); d.RuleID != rule.ID {
		t.Fatalf("high-risk tenant matched %q, want %q", d.RuleID, rule.ID)
	}
	if d := l.Check(context.Background(), req); d.Allowed {
		t.Fatal("tightened limit not enforced for high-risk tenant")
	}
}

func TestInactiveRuleSkipped(t *testing.T) {
	rule := blastRule()
	rule.IsActive = false
	l, _, _ := newTestLimiter(t, []*Rule{rule})

	d := l.Check(context.Background(), &RequestContext{TenantID: "t1", Endpoint: "/api/blast/send"})
	if d.RuleID != "default" {
		t.Fatalf("inactive rule matched, got %q", d.RuleID)
	}
}

func TestExemptEndpoints(t *testing.T) {
	l, _, _ := newTestLimiter(t, []*Rule{blastRule()})

	for _, ep := range []string{
		"/api/auth/login",
		"/healthz",
		"/api/webhooks/whatsapp",
		"/api/webhooks/whatsapp/status",
	} {
		d := l.Check(context.Background(), &RequestContext{TenantID: "t1", Endpoint: ep})
		if !d.Exempt || !d.Allowed {
			t.Fatalf("endpoint %s not exempt: %+v", ep, d)
		}
	}
}

func TestThrottleActionDelaysInsteadOfBlocking(t *testing.T) {
	rule := blastRule()
	rule.Action = ActionThrottle
	rule.MaxRequests = 2
	l, log, _ := newTestLimiter(t, []*Rule{rule})
	req := &RequestContext{TenantID: "t1", Endpoint: "/api/blast/send"}

	l.Check(context.Background(), req)
	l.Check(context.Background(), req)
	d := l.Check(context.Background(), req)
	if !d.Allowed {
		t.Fatal("throttle action should still allow the request")
	}
	if d.DelaySeconds < 1 {
		t.Fatalf("DelaySeconds = %d, want >= 1", d.DelaySeconds)
	}

	counts, err := log.CountByRule(context.Background(), time.Time{})
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if counts[rule.ID] != 1 {
		t.Fatalf("logged %d throttle decisions, want 1", counts[rule.ID])
	}
}

func TestWarnActionAllowsAndLogs(t *testing.T) {
	rule := blastRule()
	rule.Action = ActionWarn
	rule.MaxRequests = 1
	l, log, _ := newTestLimiter(t, []*Rule{rule})
	req := &RequestContext{TenantID: "t1", Endpoint: "/api/blast/send"}

	l.Check(context.Background(), req)
	if d := l.Check(context.Background(), req); !d.Allowed {
		t.Fatal("warn action should not deny")
	}
	counts, _ := log.CountByRule(context.Background(), time.Time{})
	if counts[rule.ID] != 1 {
		t.Fatalf("logged %d warn decisions, want 1", counts[rule.ID])
	}
}

func TestCountersIsolatedPerTenant(t *testing.T) {
	rule := blastRule()
	rule.MaxRequests = 1
	l, _, _ := newTestLimiter(t, []*Rule{rule})

	l.Check(context.Background(), &RequestContext{TenantID: "a", Endpoint: "/api/blast/send"})
	d := l.Check(context.Background(), &RequestContext{TenantID: "b", Endpoint: "/api/blast/send"})
	if !d.Allowed {
		t.Fatal("tenant b denied by tenant a's counter")
	}
}

func TestGlobalContextSharesCounter(t *testing.T) {
	rule := blastRule()
	rule.ContextType = ContextGlobal
	rule.MaxRequests = 1
	l, _, _ := newTestLimiter(t, []*Rule{rule})

	l.Check(context.Background(), &RequestContext{TenantID: "a", Endpoint: "/api/blast/send"})
	d := l.Check(context.Background(), &RequestContext{TenantID: "b", Endpoint: "/api/blast/send"})
	if d.Allowed {
		t.Fatal("global counter should span tenants")
	}
}

func TestMatchEndpoint(t *testing.T) {
	cases := []struct {
		pattern, endpoint string
		want              bool
	}{
		{"/api/blast/send", "/api/blast/send", true},
		{"/api/blast/*", "/api/blast/send", true},
		{"/api/blast/*", "/api/blast/send/retry", true},
		{"/api/blast/*", "/api/messages", false},
		{"/api/*/send", "/api/blast/send", true},
	}
	for _, tc := range cases {
		if got := matchEndpoint(tc.pattern, tc.endpoint); got != tc.want {
			t.Errorf("matchEndpoint(%q, %q) = %v, want %v", tc.pattern, tc.endpoint, got, tc.want)
		}
	}
}

func TestLoaderReadsAndValidates(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "rules.yaml")
	good := `rules:
  - id: blast-send
    name: blast send limit
    context_type: user
    endpoint_pattern: /api/blast/*
    max_requests: 5
    window_seconds: 60
    algorithm: sliding_window
    action: block
    priority: 10
    is_active: true
`
	if err := os.WriteFile(p, []byte(good), 0o600); err != nil {
		t.Fatal(err)
	}

	store := NewMemoryRuleStore()
	loader, err := NewLoader(p, store, nil)
	if err != nil {
		t.Fatalf("NewLoader: %v", err)
	}

	rules, err := store.List(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(rules) != 1 || rules[0].ID != "blast-send" {
		t.Fatalf("loaded rules = %+v", rules)
	}

	// A broken edit must keep the previous rule set.
	if err := os.WriteFile(p, []byte("rules:\n  - id: bad\n    max_requests: -1\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	if err := loader.Reload(); err == nil {
		t.Fatal("expected reload error for invalid rule")
	}
	rules, _ = store.List(context.Background())
	if len(rules) != 1 || rules[0].ID != "blast-send" {
		t.Fatalf("previous rules not retained: %+v", rules)
	}
}

func TestRuleValidate(t *testing.T) {
	valid := blastRule()
	if err := valid.Validate(); err != nil {
		t.Fatalf("valid rule rejected: %v", err)
	}

	cases := []struct {
		name   string
		mutate func(*Rule)
	}{
		{"missing id", func(r *Rule) { r.ID = "" }},
		{"zero max_requests", func(r *Rule) { r.MaxRequests = 0 }},
		{"negative max_requests", func(r *Rule) { r.MaxRequests = -1 }},
		{"zero window_seconds", func(r *Rule) { r.WindowSeconds = 0 }},
		{"unknown algorithm", func(r *Rule) { r.Algorithm = "leaky_bucket" }},
		{"unknown action", func(r *Rule) { r.Action = "drop" }},
		{"unknown context_type", func(r *Rule) { r.ContextType = "tenant" }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := blastRule()
			tc.mutate(r)
			err := r.Validate()
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !errors.Is(err, ErrInvalidRule) {
				t.Fatalf("error %v does not wrap ErrInvalidRule", err)
			}
		})
	}
}

func TestStoresRejectInvalidRule(t *testing.T) {
	// A rule with a zero limit must never reach the counter engine:
	// the sliding window would deny with an empty hit list and the
	// token bucket would refill at an infinite rate.
	broken := blastRule()
	broken.MaxRequests = 0

	store := NewMemoryRuleStore()
	if err := store.Put(context.Background(), broken); !errors.Is(err, ErrInvalidRule) {
		t.Fatalf("Put = %v, want ErrInvalidRule", err)
	}
	rules, err := store.List(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(rules) != 0 {
		t.Fatalf("invalid rule was stored: %+v", rules)
	}

	// The limiter keeps serving on the default limit for requests the
	// rejected rule would have matched.
	l, _, _ := newTestLimiter(t, nil)
	d := l.Check(context.Background(), &RequestContext{
		TenantID: "toko-maju",
		IP:       "10.0.0.1",
		Endpoint: "/api/blast/send",
	})
	if !d.Allowed {
		t.Fatalf("first request denied with no rules stored: %+v", d)
	}
}
