// Package risk implements transaction-risk admission for wallet spending.
//
// Tenants are classified into risk tiers by business type. Higher tiers
// must keep a larger minimum wallet buffer untouched by any single
// transaction, and their large transactions are flagged for manual review
// instead of being silently rejected.
package risk

import (
	"github.com/sendloka/sendloka/internal/approval"
)

// Tier is a tenant's risk classification.
type Tier string

const (
	TierLow    Tier = "low"
	TierMedium Tier = "medium"
	TierHigh   Tier = "high"
)

// Profile describes the admission constraints for a risk tier.
type Profile struct {
	Tier Tier `json:"riskLevel"`
	// MinBalanceBuffer is the IDR amount a tenant must retain beyond any
	// single transaction.
	MinBalanceBuffer string `json:"minimumBalanceBuffer"`
	// RequiresManualApproval marks tiers whose large transactions need a
	// human decision.
	RequiresManualApproval bool `json:"requiresManualApproval"`
	// LargeTransactionThreshold is the IDR amount above which a
	// manual-approval tier's transaction is flagged for review.
	LargeTransactionThreshold string `json:"largeTransactionThreshold"`
	// PricingMultiplier scales per-message cost for the tier's business types.
	PricingMultiplier float64 `json:"pricingMultiplier"`
}

// CheckResult is the structured outcome of a transaction risk check.
// A denial is a first-class result, never an error.
type CheckResult struct {
	Allowed          bool   `json:"allowed"`
	Reason           string `json:"reason,omitempty"`
	RequiresApproval bool   `json:"requiresApproval,omitempty"`
	Tier             Tier   `json:"riskLevel"`
}

// TierFor maps a business type onto its risk tier.
func TierFor(bt approval.BusinessType) Tier {
	switch bt {
	case approval.BusinessFinance, approval.BusinessCrypto,
		approval.BusinessGambling, approval.BusinessMultiLevel:
		return TierHigh
	case approval.BusinessTravel, approval.BusinessHealthcare:
		return TierMedium
	default:
		return TierLow
	}
}
