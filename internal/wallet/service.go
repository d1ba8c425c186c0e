package wallet

import (
	"context"
	"math/big"
	"time"

	"github.com/sendloka/sendloka/internal/money"
)

// Config holds the saldo bucket boundaries, in IDR.
type Config struct {
	// Balances below CriticalBelow are "critical"; below LowBelow, "low".
	CriticalBelow string
	LowBelow      string
}

// DefaultConfig returns the standard saldo buckets.
func DefaultConfig() Config {
	return Config{
		CriticalBelow: "10000.00",
		LowBelow:      "50000.00",
	}
}

// Service is the only mutation path for tenant balances.
type Service struct {
	store         Store
	criticalBelow *big.Int
	lowBelow      *big.Int
}

// NewService creates a wallet service.
func NewService(store Store, cfg Config) *Service {
	critical, ok := money.Parse(cfg.CriticalBelow)
	if !ok {
		critical, _ = money.Parse(DefaultConfig().CriticalBelow)
	}
	low, ok := money.Parse(cfg.LowBelow)
	if !ok {
		low, _ = money.Parse(DefaultConfig().LowBelow)
	}
	return &Service{store: store, criticalBelow: critical, lowBelow: low}
}

// Balance returns the tenant's current balance, zero-valued for tenants
// that never topped up.
func (s *Service) Balance(ctx context.Context, tenantID string) (*Balance, error) {
	bal, err := s.store.GetBalance(ctx, tenantID)
	if err == ErrTenantNotFound {
		return &Balance{
			TenantID:  tenantID,
			Available: "0.00",
			TotalIn:   "0.00",
			TotalOut:  "0.00",
			UpdatedAt: time.Now(),
		}, nil
	}
	if err != nil {
		return nil, err
	}
	return bal, nil
}

// Status returns the tenant's saldo bucket.
func (s *Service) Status(ctx context.Context, tenantID string) (SaldoStatus, error) {
	bal, err := s.Balance(ctx, tenantID)
	if err != nil {
		return "", err
	}
	return s.StatusFor(bal.Available), nil
}

// StatusFor buckets a balance string. Unparseable balances count as zero.
func (s *Service) StatusFor(available string) SaldoStatus {
	amount, ok := money.Parse(available)
	if !ok || amount.Sign() == 0 {
		return SaldoZero
	}
	if amount.Cmp(s.criticalBelow) < 0 {
		return SaldoCritical
	}
	if amount.Cmp(s.lowBelow) < 0 {
		return SaldoLow
	}
	return SaldoNormal
}

// TopUp credits the tenant's balance. The reference (payment gateway
// transaction id) suppresses duplicate credits from webhook retries.
func (s *Service) TopUp(ctx context.Context, tenantID, amount, reference, description string) error {
	parsed, ok := money.Parse(amount)
	if !ok || parsed.Sign() <= 0 {
		return ErrInvalidAmount
	}
	if reference != "" {
		seen, err := s.store.HasReference(ctx, reference)
		if err != nil {
			return err
		}
		if seen {
			return ErrDuplicateReference
		}
	}
	return s.store.Credit(ctx, tenantID, money.Format(parsed), reference, description)
}

// Deduct debits the tenant's balance atomically. Returns
// ErrInsufficientBalance when the balance cannot cover the amount.
func (s *Service) Deduct(ctx context.Context, tenantID, amount, reference, description string) error {
	parsed, ok := money.Parse(amount)
	if !ok || parsed.Sign() < 0 {
		return ErrInvalidAmount
	}
	if parsed.Sign() == 0 {
		return nil
	}
	return s.store.Debit(ctx, tenantID, money.Format(parsed), reference, description)
}

// Refund reverses a previous deduction.
func (s *Service) Refund(ctx context.Context, tenantID, amount, reference, description string) error {
	parsed, ok := money.Parse(amount)
	if !ok || parsed.Sign() <= 0 {
		return ErrInvalidAmount
	}
	return s.store.Refund(ctx, tenantID, money.Format(parsed), reference, description)
}

// History returns the tenant's most recent wallet entries.
func (s *Service) History(ctx context.Context, tenantID string, limit int) ([]*Entry, error) {
	return s.store.History(ctx, tenantID, limit)
}
