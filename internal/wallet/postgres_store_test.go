//go:build integration

package wallet

import (
	"context"
	"errors"
	"testing"

	"github.com/sendloka/sendloka/internal/testutil"
)

func setupTestStore(t *testing.T) (*PostgresStore, func()) {
	t.Helper()
	db, cleanup := testutil.PGTest(t)
	return NewPostgresStore(db), cleanup
}

func TestPostgres_CreditAndGetBalance(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()

	ctx := context.Background()

	if err := store.Credit(ctx, "toko-maju", "100000.00", "TOPUP-001", "initial topup"); err != nil {
		t.Fatalf("Credit failed: %v", err)
	}

	bal, err := store.GetBalance(ctx, "toko-maju")
	if err != nil {
		t.Fatalf("GetBalance failed: %v", err)
	}
	if bal.Available != "100000.00" {
		t.Errorf("Available = %q, want 100000.00", bal.Available)
	}
	if bal.TotalIn != "100000.00" {
		t.Errorf("TotalIn = %q, want 100000.00", bal.TotalIn)
	}
}

func TestPostgres_DebitInsufficientBalance(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()

	ctx := context.Background()

	if err := store.Credit(ctx, "toko-maju", "1000.00", "TOPUP-002", "small topup"); err != nil {
		t.Fatalf("Credit failed: %v", err)
	}

	err := store.Debit(ctx, "toko-maju", "5000.00", "SEND-001", "blast cost")
	if !errors.Is(err, ErrInsufficientBalance) {
		t.Fatalf("Debit = %v, want ErrInsufficientBalance", err)
	}

	// Balance must be untouched after the failed debit.
	bal, err := store.GetBalance(ctx, "toko-maju")
	if err != nil {
		t.Fatalf("GetBalance failed: %v", err)
	}
	if bal.Available != "1000.00" {
		t.Errorf("Available = %q after failed debit, want 1000.00", bal.Available)
	}
}

func TestPostgres_DebitUnknownTenant(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()

	err := store.Debit(context.Background(), "nonexistent", "100.00", "SEND-002", "")
	if !errors.Is(err, ErrTenantNotFound) {
		t.Fatalf("Debit = %v, want ErrTenantNotFound", err)
	}
}

func TestPostgres_DuplicateTopupReference(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()

	ctx := context.Background()

	if err := store.Credit(ctx, "toko-maju", "50000.00", "INV-123", "topup"); err != nil {
		t.Fatalf("first Credit failed: %v", err)
	}

	err := store.Credit(ctx, "toko-maju", "50000.00", "INV-123", "replayed topup")
	if !errors.Is(err, ErrDuplicateReference) {
		t.Fatalf("second Credit = %v, want ErrDuplicateReference", err)
	}

	bal, err := store.GetBalance(ctx, "toko-maju")
	if err != nil {
		t.Fatalf("GetBalance failed: %v", err)
	}
	if bal.Available != "50000.00" {
		t.Errorf("Available = %q after duplicate topup, want 50000.00", bal.Available)
	}
}

func TestPostgres_RefundAndHistory(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()

	ctx := context.Background()

	if err := store.Credit(ctx, "toko-maju", "100000.00", "TOPUP-003", "topup"); err != nil {
		t.Fatalf("Credit failed: %v", err)
	}
	if err := store.Debit(ctx, "toko-maju", "35000.00", "SEND-003", "100 utility messages"); err != nil {
		t.Fatalf("Debit failed: %v", err)
	}
	if err := store.Refund(ctx, "toko-maju", "3500.00", "SEND-003", "10 undelivered"); err != nil {
		t.Fatalf("Refund failed: %v", err)
	}

	bal, err := store.GetBalance(ctx, "toko-maju")
	if err != nil {
		t.Fatalf("GetBalance failed: %v", err)
	}
	if bal.Available != "68500.00" {
		t.Errorf("Available = %q, want 68500.00", bal.Available)
	}

	entries, err := store.History(ctx, "toko-maju", 10)
	if err != nil {
		t.Fatalf("History failed: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("History returned %d entries, want 3", len(entries))
	}
	// Newest first.
	if entries[0].Type != EntryRefund {
		t.Errorf("entries[0].Type = %q, want %q", entries[0].Type, EntryRefund)
	}
}

func TestPostgres_HasReference(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()

	ctx := context.Background()

	if err := store.Credit(ctx, "toko-maju", "10000.00", "REF-XYZ", ""); err != nil {
		t.Fatalf("Credit failed: %v", err)
	}

	seen, err := store.HasReference(ctx, "REF-XYZ")
	if err != nil {
		t.Fatalf("HasReference failed: %v", err)
	}
	if !seen {
		t.Error("HasReference(REF-XYZ) = false, want true")
	}

	seen, err = store.HasReference(ctx, "REF-UNKNOWN")
	if err != nil {
		t.Fatalf("HasReference failed: %v", err)
	}
	if seen {
		t.Error("HasReference(REF-UNKNOWN) = true, want false")
	}
}
