package wallet

import (
	"context"
	"math/big"
	"sync"
	"time"

	"github.com/sendloka/sendloka/internal/idgen"
	"github.com/sendloka/sendloka/internal/money"
)

type memBalance struct {
	available *big.Int
	totalIn   *big.Int
	totalOut  *big.Int
	updatedAt time.Time
}

// MemoryStore is an in-memory Store for tests and development. A single
// mutex guards all balances, which makes Debit's check-then-act atomic.
type MemoryStore struct {
	mu       sync.Mutex
	balances map[string]*memBalance
	entries  map[string][]*Entry
	refs     map[string]bool
}

// NewMemoryStore creates an empty in-memory wallet store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		balances: make(map[string]*memBalance),
		entries:  make(map[string][]*Entry),
		refs:     make(map[string]bool),
	}
}

func (m *MemoryStore) GetBalance(ctx context.Context, tenantID string) (*Balance, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	bal, ok := m.balances[tenantID]
	if !ok {
		return nil, ErrTenantNotFound
	}
	return &Balance{
		TenantID:  tenantID,
		Available: money.Format(bal.available),
		TotalIn:   money.Format(bal.totalIn),
		TotalOut:  money.Format(bal.totalOut),
		UpdatedAt: bal.updatedAt,
	}, nil
}

func (m *MemoryStore) Credit(ctx context.Context, tenantID, amount, reference, description string) error {
	parsed, ok := money.Parse(amount)
	if !ok {
		return ErrInvalidAmount
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	bal := m.get(tenantID)
	bal.available.Add(bal.available, parsed)
	bal.totalIn.Add(bal.totalIn, parsed)
	bal.updatedAt = time.Now()
	if reference != "" {
		m.refs[reference] = true
	}
	m.append(tenantID, EntryTopUp, amount, reference, description)
	return nil
}

func (m *MemoryStore) Debit(ctx context.Context, tenantID, amount, reference, description string) error {
	parsed, ok := money.Parse(amount)
	if !ok {
		return ErrInvalidAmount
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	bal, exists := m.balances[tenantID]
	if !exists {
		return ErrTenantNotFound
	}
	if bal.available.Cmp(parsed) < 0 {
		return ErrInsufficientBalance
	}
	bal.available.Sub(bal.available, parsed)
	bal.totalOut.Add(bal.totalOut, parsed)
	bal.updatedAt = time.Now()
	m.append(tenantID, EntryDeduction, amount, reference, description)
	return nil
}

func (m *MemoryStore) Refund(ctx context.Context, tenantID, amount, reference, description string) error {
	parsed, ok := money.Parse(amount)
	if !ok {
		return ErrInvalidAmount
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	bal, exists := m.balances[tenantID]
	if !exists {
		return ErrTenantNotFound
	}
	bal.available.Add(bal.available, parsed)
	bal.totalOut.Sub(bal.totalOut, parsed)
	bal.updatedAt = time.Now()
	m.append(tenantID, EntryRefund, amount, reference, description)
	return nil
}

func (m *MemoryStore) History(ctx context.Context, tenantID string, limit int) ([]*Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	entries := m.entries[tenantID]
	result := make([]*Entry, 0, limit)
	// Newest first.
	for i := len(entries) - 1; i >= 0 && len(result) < limit; i-- {
		cp := *entries[i]
		result = append(result, &cp)
	}
	return result, nil
}

func (m *MemoryStore) HasReference(ctx context.Context, reference string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.refs[reference], nil
}

func (m *MemoryStore) get(tenantID string) *memBalance {
	bal, ok := m.balances[tenantID]
	if !ok {
		bal = &memBalance{
			available: big.NewInt(0),
			totalIn:   big.NewInt(0),
			totalOut:  big.NewInt(0),
		}
		m.balances[tenantID] = bal
	}
	return bal
}

func (m *MemoryStore) append(tenantID string, typ EntryType, amount, reference, description string) {
	m.entries[tenantID] = append(m.entries[tenantID], &Entry{
		ID:          idgen.WithPrefix("we_"),
		TenantID:    tenantID,
		Type:        typ,
		Amount:      amount,
		Reference:   reference,
		Description: description,
		CreatedAt:   time.Now(),
	})
}
