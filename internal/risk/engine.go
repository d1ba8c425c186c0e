package risk

import (
	"math/big"

	"github.com/sendloka/sendloka/internal/approval"
	"github.com/sendloka/sendloka/internal/money"
)

// DefaultProfiles are the production tier profiles. Buffers and thresholds
// are IDR decimal strings.
var DefaultProfiles = map[Tier]Profile{
	TierLow: {
		Tier:                      TierLow,
		MinBalanceBuffer:          "0",
		RequiresManualApproval:    false,
		LargeTransactionThreshold: "0",
		PricingMultiplier:         1.0,
	},
	TierMedium: {
		Tier:                      TierMedium,
		MinBalanceBuffer:          "50000.00",
		RequiresManualApproval:    false,
		LargeTransactionThreshold: "0",
		PricingMultiplier:         1.1,
	},
	TierHigh: {
		Tier:                      TierHigh,
		MinBalanceBuffer:          "250000.00",
		RequiresManualApproval:    true,
		LargeTransactionThreshold: "1000000.00",
		PricingMultiplier:         1.5,
	},
}

// Engine evaluates transaction risk. Pure in-memory lookups, no I/O.
type Engine struct {
	profiles map[Tier]Profile
}

// NewEngine creates a risk engine with the default tier profiles.
func NewEngine() *Engine {
	return &Engine{profiles: DefaultProfiles}
}

// NewEngineWithProfiles creates a risk engine with custom tier profiles.
func NewEngineWithProfiles(profiles map[Tier]Profile) *Engine {
	return &Engine{profiles: profiles}
}

// ProfileFor returns the risk profile for a tenant's business type.
func (e *Engine) ProfileFor(bt approval.BusinessType) Profile {
	if p, ok := e.profiles[TierFor(bt)]; ok {
		return p
	}
	return e.profiles[TierLow]
}

// CheckTransactionRisk decides whether a wallet spend of the given amount
// is admissible for a tenant with the given business type and balance.
//
// Zero-amount requests bypass the check entirely: read-only operations are
// never risk-gated. Large transactions on manual-approval tiers are flagged
// for human review, a distinct outcome from a hard balance failure.
func (e *Engine) CheckTransactionRisk(bt approval.BusinessType, balance, amount string) CheckResult {
	profile := e.ProfileFor(bt)
	result := CheckResult{Tier: profile.Tier}

	amountBig, ok := money.Parse(amount)
	if !ok {
		result.Reason = "invalid_amount"
		return result
	}
	if amountBig.Sign() == 0 {
		result.Allowed = true
		return result
	}

	if profile.RequiresManualApproval {
		threshold, _ := money.Parse(profile.LargeTransactionThreshold)
		if threshold.Sign() > 0 && amountBig.Cmp(threshold) > 0 {
			result.Reason = "manual_approval_required"
			result.RequiresApproval = true
			return result
		}
	}

	balanceBig, ok := money.Parse(balance)
	if !ok {
		result.Reason = "invalid_balance"
		return result
	}
	buffer, _ := money.Parse(profile.MinBalanceBuffer)
	usable := new(big.Int).Sub(balanceBig, buffer)

	if usable.Cmp(amountBig) < 0 {
		result.Reason = "insufficient_balance_buffer"
		return result
	}

	result.Allowed = true
	return result
}
