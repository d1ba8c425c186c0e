package guard

import (
	"errors"
	"math/big"

	"github.com/sendloka/sendloka/internal/approval"
	"github.com/sendloka/sendloka/internal/money"
	"github.com/sendloka/sendloka/internal/risk"
)

// ErrUnknownCategory is returned when no rate exists for a message category.
var ErrUnknownCategory = errors.New("guard: unknown message category")

// CategoryRates maps a message category to its per-message IDR rate.
type CategoryRates map[string]string

// DefaultRates mirrors the WhatsApp conversation categories.
func DefaultRates() CategoryRates {
	return CategoryRates{
		"marketing":      "625.00",
		"utility":        "350.00",
		"authentication": "300.00",
		"service":        "250.00",
	}
}

// Estimator computes the estimated cost of an action:
// message_count x category rate x business-type pricing multiplier.
type Estimator struct {
	rates CategoryRates
	risk  *risk.Engine
}

// NewEstimator creates a cost estimator.
func NewEstimator(rates CategoryRates, riskEngine *risk.Engine) *Estimator {
	if rates == nil {
		rates = DefaultRates()
	}
	return &Estimator{rates: rates, risk: riskEngine}
}

// Estimate returns the IDR cost as a decimal string. Zero messages cost
// zero regardless of category.
func (e *Estimator) Estimate(messageCount int, category string, bt approval.BusinessType) (string, error) {
	if messageCount <= 0 {
		return "0.00", nil
	}
	rateStr, ok := e.rates[category]
	if !ok {
		return "", ErrUnknownCategory
	}
	rate, ok := money.Parse(rateStr)
	if !ok {
		return "", ErrUnknownCategory
	}

	base := new(big.Int).Mul(rate, big.NewInt(int64(messageCount)))
	multiplier := e.risk.ProfileFor(bt).PricingMultiplier
	if multiplier <= 0 {
		multiplier = 1.0
	}
	return money.Format(money.MulFloat(base, multiplier)), nil
}
