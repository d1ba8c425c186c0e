package wallet

import (
	"context"
	"sync"
	"testing"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	return NewService(NewMemoryStore(), DefaultConfig())
}

func TestTopUpAndBalance(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()

	// Unknown tenants read as zero, not as an error.
	bal, err := s.Balance(ctx, "t1")
	if err != nil {
		t.Fatal(err)
	}
	if bal.Available != "0.00" {
		t.Fatalf("fresh balance = %s, want 0.00", bal.Available)
	}

	if err := s.TopUp(ctx, "t1", "150000.00", "pay_001", "initial topup"); err != nil {
		t.Fatal(err)
	}
	bal, _ = s.Balance(ctx, "t1")
	if bal.Available != "150000.00" {
		t.Fatalf("balance = %s, want 150000.00", bal.Available)
	}
	if bal.TotalIn != "150000.00" {
		t.Fatalf("totalIn = %s", bal.TotalIn)
	}
}

func TestTopUpDuplicateReference(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()

	if err := s.TopUp(ctx, "t1", "50000.00", "pay_001", ""); err != nil {
		t.Fatal(err)
	}
	// A gateway webhook retry must not double-credit.
	if err := s.TopUp(ctx, "t1", "50000.00", "pay_001", ""); err != ErrDuplicateReference {
		t.Fatalf("err = %v, want ErrDuplicateReference", err)
	}
	bal, _ := s.Balance(ctx, "t1")
	if bal.Available != "50000.00" {
		t.Fatalf("balance = %s after duplicate, want 50000.00", bal.Available)
	}
}

func TestDeductAndRefund(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()
	if err := s.TopUp(ctx, "t1", "100000.00", "pay_001", ""); err != nil {
		t.Fatal(err)
	}

	if err := s.Deduct(ctx, "t1", "30000.00", "cmp_1", "campaign send"); err != nil {
		t.Fatal(err)
	}
	bal, _ := s.Balance(ctx, "t1")
	if bal.Available != "70000.00" {
		t.Fatalf("balance = %s, want 70000.00", bal.Available)
	}

	// Overdraw is a first-class error, balance untouched.
	if err := s.Deduct(ctx, "t1", "70000.01", "cmp_2", ""); err != ErrInsufficientBalance {
		t.Fatalf("err = %v, want ErrInsufficientBalance", err)
	}
	bal, _ = s.Balance(ctx, "t1")
	if bal.Available != "70000.00" {
		t.Fatalf("balance changed on failed deduct: %s", bal.Available)
	}

	if err := s.Refund(ctx, "t1", "30000.00", "cmp_1", "campaign failed"); err != nil {
		t.Fatal(err)
	}
	bal, _ = s.Balance(ctx, "t1")
	if bal.Available != "100000.00" {
		t.Fatalf("balance = %s after refund, want 100000.00", bal.Available)
	}
}

func TestDeductZeroIsNoop(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()
	if err := s.Deduct(ctx, "never-seen", "0.00", "", ""); err != nil {
		t.Fatalf("zero deduct errored: %v", err)
	}
}

func TestDeductInvalidAmount(t *testing.T) {
	s := newTestService(t)
	for _, amount := range []string{"abc", "-5.00", "1.2.3"} {
		if err := s.Deduct(context.Background(), "t1", amount, "", ""); err != ErrInvalidAmount {
			t.Fatalf("amount %q: err = %v, want ErrInvalidAmount", amount, err)
		}
	}
}

func TestConcurrentDeductsNeverOverdraw(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()
	if err := s.TopUp(ctx, "t1", "100.00", "pay_001", ""); err != nil {
		t.Fatal(err)
	}

	// 50 workers each try to take 10.00 from a 100.00 balance: exactly
	// 10 may succeed.
	var wg sync.WaitGroup
	var mu sync.Mutex
	succeeded := 0
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := s.Deduct(ctx, "t1", "10.00", "", ""); err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if succeeded != 10 {
		t.Fatalf("%d deductions succeeded, want 10", succeeded)
	}
	bal, _ := s.Balance(ctx, "t1")
	if bal.Available != "0.00" {
		t.Fatalf("final balance = %s, want 0.00", bal.Available)
	}
}

func TestSaldoStatusBuckets(t *testing.T) {
	s := newTestService(t)
	cases := []struct {
		available string
		want      SaldoStatus
	}{
		{"0.00", SaldoZero},
		{"0.01", SaldoCritical},
		{"9999.99", SaldoCritical},
		{"10000.00", SaldoLow},
		{"49999.99", SaldoLow},
		{"50000.00", SaldoNormal},
		{"1000000.00", SaldoNormal},
		{"garbage", SaldoZero},
	}
	for _, tc := range cases {
		if got := s.StatusFor(tc.available); got != tc.want {
			t.Errorf("StatusFor(%q) = %q, want %q", tc.available, got, tc.want)
		}
	}
}

func TestHistoryNewestFirst(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()
	_ = s.TopUp(ctx, "t1", "100000.00", "pay_001", "")
	_ = s.Deduct(ctx, "t1", "1000.00", "cmp_1", "")
	_ = s.Deduct(ctx, "t1", "2000.00", "cmp_2", "")

	entries, err := s.History(ctx, "t1", 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 2 {
		t.Fatalf("len = %d, want 2", len(entries))
	}
	if entries[0].Reference != "cmp_2" || entries[1].Reference != "cmp_1" {
		t.Fatalf("history order wrong: %s, %s", entries[0].Reference, entries[1].Reference)
	}
}
