package guard

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"time"

	"github.com/sendloka/sendloka/internal/idgen"
	"github.com/sendloka/sendloka/internal/money"
	"github.com/sendloka/sendloka/internal/retry"
	"github.com/sendloka/sendloka/internal/subscription"
	"github.com/sendloka/sendloka/internal/syncutil"
	"github.com/sendloka/sendloka/internal/traces"
	"github.com/sendloka/sendloka/internal/wallet"
)

// Decision is the pipeline's final verdict on a cost-bearing action.
type Decision struct {
	Allowed bool   `json:"allowed"`
	Layer   string `json:"layer,omitempty"`
	Reason  string `json:"reason,omitempty"`

	Cost     string `json:"cost,omitempty"`
	Shortage string `json:"shortage,omitempty"`

	Throttled        bool `json:"throttled,omitempty"`
	DelaySeconds     int  `json:"delaySeconds,omitempty"`
	RequiresApproval bool `json:"requiresApproval,omitempty"`
	// Bypassed marks admin/owner actions that skip the pipeline.
	Bypassed bool `json:"bypassed,omitempty"`

	Data map[string]string `json:"data,omitempty"`
}

// Pipeline runs the ordered guards, and on full pass debits the wallet
// atomically and records plan usage. Per-tenant mutations are serialized
// through a sharded lock so concurrent requests cannot both read a
// sufficient balance and both commit.
type Pipeline struct {
	guards []Guard
	wallet *wallet.Service
	subs   *subscription.Policy
	logs   LogStore
	locks  *syncutil.ContextShardedMutex
	logger *slog.Logger

	maxAttempts int
	baseDelay   time.Duration
}

// NewPipeline creates a pipeline over the given ordered guards.
func NewPipeline(guards []Guard, walletSvc *wallet.Service, subs *subscription.Policy, logs LogStore, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		guards:      guards,
		wallet:      walletSvc,
		subs:        subs,
		logs:        logs,
		locks:       syncutil.NewContextShardedMutex(),
		logger:      logger,
		maxAttempts: 3,
		baseDelay:   50 * time.Millisecond,
	}
}

// Admit evaluates the request through every guard in order, then performs
// the atomic deduction. Any guard error denies (fail closed). Every block
// is written to the guard log before the denial is returned.
func (p *Pipeline) Admit(ctx context.Context, req *CheckContext) (*Decision, error) {
	ctx, span := traces.StartSpan(ctx, "guard.admit", traces.TenantID(req.TenantID))
	defer span.End()

	if IsExempt(req.Role) {
		return &Decision{Allowed: true, Bypassed: true}, nil
	}

	unlock, err := p.locks.LockContext(ctx, req.TenantID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	cost := "0.00"
	throttled := false
	delaySeconds := 0

	for _, g := range p.guards {
		res, err := p.checkGuard(ctx, g, req)
		if err != nil {
			p.logger.Error("guard check failed",
				"layer", g.Name(), "tenant_id", req.TenantID, "error", err)
			p.logBlock(ctx, req, g.Name(), "check_failed", map[string]string{"error": err.Error()})
			return &Decision{Allowed: false, Layer: g.Name(), Reason: "check_failed"}, nil
		}
		if !res.Allowed {
			span.SetAttributes(traces.Layer(g.Name()), traces.Reason(res.Reason))
			p.logBlock(ctx, req, g.Name(), res.Reason, res.Data)
			return denyDecision(g.Name(), res), nil
		}
		if c, ok := res.Data["cost"]; ok {
			cost = c
		}
		if res.Data["throttled"] == "true" {
			throttled = true
			delaySeconds = atoi(res.Data["delay_seconds"])
		}
	}

	if err := p.deductTraced(ctx, req, cost); err != nil {
		reason := "deduction_failed"
		if errors.Is(err, wallet.ErrInsufficientBalance) {
			// Balance changed between the wallet guard and the debit.
			reason = "insufficient_balance"
		}
		p.logBlock(ctx, req, LayerDeduction, reason, map[string]string{"cost": cost})
		return &Decision{Allowed: false, Layer: LayerDeduction, Reason: reason, Cost: cost}, nil
	}

	if p.subs != nil {
		if err := p.subs.RecordUsage(ctx, req.TenantID, subscription.QuotaRequest{
			Messages:  req.MessageCount,
			Campaigns: req.CampaignCount,
			Numbers:   req.NumberCount,
		}); err != nil {
			// The action is admitted and paid for; a counter fault cannot
			// retroactively deny it.
			p.logger.Error("usage record failed", "tenant_id", req.TenantID, "error", err)
		}
	}

	return &Decision{
		Allowed:      true,
		Cost:         cost,
		Throttled:    throttled,
		DelaySeconds: delaySeconds,
	}, nil
}

// History returns a tenant's recent pipeline blocks for reporting.
func (p *Pipeline) History(ctx context.Context, tenantID string, limit int) ([]*LogEntry, error) {
	return p.logs.ListByTenant(ctx, tenantID, limit)
}

// deduct debits the wallet, retrying transient persistence faults.
// Insufficient balance and invalid amounts never retry.
// checkGuard runs one guard inside its own span so a trace shows which
// layer spent the time and which one denied.
func (p *Pipeline) checkGuard(ctx context.Context, g Guard, req *CheckContext) (*Result, error) {
	ctx, span := traces.StartSpan(ctx, "guard."+g.Name(), traces.Layer(g.Name()))
	defer span.End()
	res, err := g.Check(ctx, req)
	if err == nil && res != nil && !res.Allowed {
		span.SetAttributes(traces.Reason(res.Reason))
	}
	return res, err
}

func (p *Pipeline) deductTraced(ctx context.Context, req *CheckContext, cost string) error {
	ctx, span := traces.StartSpan(ctx, "guard.deduction",
		traces.Layer(LayerDeduction), traces.Amount(cost))
	defer span.End()
	return p.deduct(ctx, req, cost)
}

func (p *Pipeline) deduct(ctx context.Context, req *CheckContext, cost string) error {
	parsed, ok := money.Parse(cost)
	if !ok {
		return wallet.ErrInvalidAmount
	}
	if parsed.Sign() == 0 {
		return nil
	}
	return retry.Do(ctx, p.maxAttempts, p.baseDelay, func() error {
		err := p.wallet.Deduct(ctx, req.TenantID, cost, req.Reference, req.ActionType)
		if errors.Is(err, wallet.ErrInsufficientBalance) || errors.Is(err, wallet.ErrInvalidAmount) {
			return retry.Permanent(err)
		}
		return err
	})
}

// logBlock appends to the guard log before the denial is returned.
// Best-effort: an append fault is logged but the denial still stands.
func (p *Pipeline) logBlock(ctx context.Context, req *CheckContext, layer, reason string, metadata map[string]string) {
	if p.logs == nil {
		return
	}
	entry := &LogEntry{
		ID:        idgen.WithPrefix("rg_"),
		TenantID:  req.TenantID,
		Layer:     layer,
		EventType: req.ActionType,
		Reason:    reason,
		Action:    "deny",
		Metadata:  metadata,
		CreatedAt: time.Now(),
	}
	if err := p.logs.Append(ctx, entry); err != nil {
		p.logger.Error("guard log append failed",
			"tenant_id", req.TenantID, "layer", layer, "error", err)
	}
}

func denyDecision(layer string, res *Result) *Decision {
	d := &Decision{
		Allowed: false,
		Layer:   layer,
		Reason:  res.Reason,
		Data:    res.Data,
	}
	if res.Data != nil {
		d.Cost = res.Data["cost"]
		d.Shortage = res.Data["shortage"]
		d.RequiresApproval = res.Data["requires_approval"] == "true"
	}
	return d
}

func atoi(s string) int {
	n, _ := strconv.Atoi(s)
	return n
}
