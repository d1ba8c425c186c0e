package guard

import (
	"context"
	"strconv"

	"github.com/sendloka/sendloka/internal/abuse"
	"github.com/sendloka/sendloka/internal/money"
	"github.com/sendloka/sendloka/internal/risk"
	"github.com/sendloka/sendloka/internal/subscription"
	"github.com/sendloka/sendloka/internal/wallet"
)

// Layer identifiers recorded in the guard log.
const (
	LayerAbuse        = "abuse"
	LayerSubscription = "subscription"
	LayerQuota        = "quota"
	LayerWallet       = "wallet"
	LayerDeduction    = "deduction"
)

// AbuseGuard short-circuits the pipeline for suspended or
// approval-gated tenants. Throttled tenants pass with throttle data
// attached for the caller to apply.
type AbuseGuard struct {
	engine *abuse.Engine
}

// NewAbuseGuard wraps the abuse engine's admission check as a pipeline layer.
func NewAbuseGuard(engine *abuse.Engine) *AbuseGuard {
	return &AbuseGuard{engine: engine}
}

func (g *AbuseGuard) Name() string { return LayerAbuse }

func (g *AbuseGuard) Check(ctx context.Context, req *CheckContext) (*Result, error) {
	d, err := g.engine.CanPerformAction(ctx, req.TenantID, req.ActionType)
	if err != nil {
		return nil, err
	}
	if !d.Allowed {
		res := Deny(d.Reason)
		res.Data = map[string]string{
			"abuse_level":   string(d.Level),
			"policy_action": string(d.PolicyAction),
		}
		if d.RequiresApproval {
			res.Data["requires_approval"] = "true"
		}
		if d.CooldownDaysLeft > 0 {
			res.Data["cooldown_days_left"] = strconv.Itoa(d.CooldownDaysLeft)
		}
		return res, nil
	}
	res := Allow()
	if d.Throttled && d.Limits != nil {
		res.Data = map[string]string{
			"throttled":     "true",
			"delay_seconds": strconv.Itoa(d.Limits.DelaySeconds),
		}
	}
	return res, nil
}

// SubscriptionGuard denies tenants without an active plan.
type SubscriptionGuard struct {
	policy *subscription.Policy
}

// NewSubscriptionGuard wraps subscription validation as a pipeline layer.
func NewSubscriptionGuard(policy *subscription.Policy) *SubscriptionGuard {
	return &SubscriptionGuard{policy: policy}
}

func (g *SubscriptionGuard) Name() string { return LayerSubscription }

func (g *SubscriptionGuard) Check(ctx context.Context, req *CheckContext) (*Result, error) {
	res, err := g.policy.ValidateSubscription(ctx, req.TenantID)
	if err != nil {
		return nil, err
	}
	if !res.Allowed {
		return Deny(res.Reason), nil
	}
	return Allow(), nil
}

// QuotaGuard denies actions that would exceed the plan snapshot's limits.
type QuotaGuard struct {
	policy *subscription.Policy
}

// NewQuotaGuard wraps quota checking as a pipeline layer.
func NewQuotaGuard(policy *subscription.Policy) *QuotaGuard {
	return &QuotaGuard{policy: policy}
}

func (g *QuotaGuard) Name() string { return LayerQuota }

func (g *QuotaGuard) Check(ctx context.Context, req *CheckContext) (*Result, error) {
	res, err := g.policy.CheckQuota(ctx, req.TenantID, subscription.QuotaRequest{
		Messages:   req.MessageCount,
		Campaigns:  req.CampaignCount,
		Recipients: req.RecipientCount,
		Numbers:    req.NumberCount,
	})
	if err != nil {
		return nil, err
	}
	if !res.Allowed {
		d := Deny(res.Reason)
		d.Data = map[string]string{"remaining": strconv.Itoa(res.Remaining)}
		return d, nil
	}
	return Allow(), nil
}

// WalletCostGuard estimates the action's cost, verifies the wallet can
// cover it, and applies the risk engine's buffer and approval rules.
// Both the plain balance check and the buffer check must pass.
type WalletCostGuard struct {
	estimator *Estimator
	wallet    *wallet.Service
	risk      *risk.Engine
}

// NewWalletCostGuard wraps cost estimation and balance checks as a
// pipeline layer.
func NewWalletCostGuard(estimator *Estimator, walletSvc *wallet.Service, riskEngine *risk.Engine) *WalletCostGuard {
	return &WalletCostGuard{estimator: estimator, wallet: walletSvc, risk: riskEngine}
}

func (g *WalletCostGuard) Name() string { return LayerWallet }

func (g *WalletCostGuard) Check(ctx context.Context, req *CheckContext) (*Result, error) {
	cost, err := g.estimator.Estimate(req.MessageCount, req.Category, req.BusinessType)
	if err != nil {
		// Fail closed: an action whose cost cannot be determined is denied.
		return nil, err
	}

	bal, err := g.wallet.Balance(ctx, req.TenantID)
	if err != nil {
		return nil, err
	}

	costBig, _ := money.Parse(cost)
	balBig, ok := money.Parse(bal.Available)
	if !ok {
		return nil, wallet.ErrInvalidAmount
	}
	if balBig.Cmp(costBig) < 0 {
		res := Deny("insufficient_balance")
		res.Data = map[string]string{
			"cost":     cost,
			"balance":  bal.Available,
			"shortage": money.Format(money.Sub(costBig, balBig)),
		}
		return res, nil
	}

	riskRes := g.risk.CheckTransactionRisk(req.BusinessType, bal.Available, cost)
	if !riskRes.Allowed {
		res := Deny(riskRes.Reason)
		res.Data = map[string]string{
			"cost":       cost,
			"risk_level": string(riskRes.Tier),
		}
		if riskRes.RequiresApproval {
			res.Data["requires_approval"] = "true"
		}
		return res, nil
	}

	res := Allow()
	res.Data = map[string]string{"cost": cost}
	return res, nil
}
