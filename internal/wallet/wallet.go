// Package wallet tracks tenant IDR balances.
//
// Flow:
//  1. Tenant tops up via a payment gateway (out of scope here)
//  2. Platform credits the tenant's balance
//  3. Cost-bearing actions debit the balance atomically
//  4. Failed actions are refunded
//
// Amounts are decimal strings with 2 fraction digits ("150000.00").
package wallet

import (
	"context"
	"errors"
	"time"
)

var (
	ErrTenantNotFound      = errors.New("wallet: tenant not found")
	ErrInvalidAmount       = errors.New("wallet: invalid amount")
	ErrInsufficientBalance = errors.New("wallet: insufficient balance")
	ErrDuplicateReference  = errors.New("wallet: reference already processed")
)

// SaldoStatus buckets a balance for rate-limit rule filters and UI badges.
type SaldoStatus string

const (
	SaldoZero     SaldoStatus = "zero"
	SaldoCritical SaldoStatus = "critical"
	SaldoLow      SaldoStatus = "low"
	SaldoNormal   SaldoStatus = "normal"
)

// EntryType classifies a wallet ledger entry.
type EntryType string

const (
	EntryTopUp     EntryType = "topup"
	EntryDeduction EntryType = "deduction"
	EntryRefund    EntryType = "refund"
)

// Entry is one immutable row of a tenant's wallet history.
type Entry struct {
	ID          string    `json:"id"`
	TenantID    string    `json:"tenantId"`
	Type        EntryType `json:"type"`
	Amount      string    `json:"amount"`
	Reference   string    `json:"reference,omitempty"` // payment ref, campaign ID, etc.
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
}

// Balance is a tenant's current wallet state.
type Balance struct {
	TenantID  string    `json:"tenantId"`
	Available string    `json:"available"`
	TotalIn   string    `json:"totalIn"`
	TotalOut  string    `json:"totalOut"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Store persists wallet data. Debit must be atomic: under concurrent
// calls against the same tenant, the sum of successful debits never
// exceeds the credited balance.
type Store interface {
	GetBalance(ctx context.Context, tenantID string) (*Balance, error)
	Credit(ctx context.Context, tenantID, amount, reference, description string) error
	Debit(ctx context.Context, tenantID, amount, reference, description string) error
	Refund(ctx context.Context, tenantID, amount, reference, description string) error
	History(ctx context.Context, tenantID string, limit int) ([]*Entry, error)
	HasReference(ctx context.Context, reference string) (bool, error)
}
