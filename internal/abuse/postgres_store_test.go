//go:build integration

package abuse

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sendloka/sendloka/internal/idgen"
	"github.com/sendloka/sendloka/internal/testutil"
)

func TestPostgres_UpsertAndGetScore(t *testing.T) {
	db, cleanup := testutil.PGTest(t)
	defer cleanup()

	store := NewPostgresStore(db)
	ctx := context.Background()
	now := time.Now().UTC()

	score := &Score{
		TenantID:       "toko-maju",
		CurrentScore:   45,
		Level:          LevelMedium,
		PolicyAction:   ActionThrottle,
		SuspensionType: SuspensionNone,
		ApprovalStatus: ApprovalNone,
		LastEventAt:    &now,
		Metadata:       map[string]string{"last_event_type": "spam_report"},
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := store.Upsert(ctx, score); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}

	got, err := store.Get(ctx, "toko-maju")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.CurrentScore != 45 {
		t.Errorf("CurrentScore = %v, want 45", got.CurrentScore)
	}
	if got.Level != LevelMedium {
		t.Errorf("Level = %q, want %q", got.Level, LevelMedium)
	}
	if got.Metadata["last_event_type"] != "spam_report" {
		t.Errorf("Metadata = %v, missing last_event_type", got.Metadata)
	}

	// Upsert again with a higher score; should overwrite, not duplicate.
	score.CurrentScore = 80
	score.Level = LevelHigh
	score.PolicyAction = ActionRequireApproval
	if err := store.Upsert(ctx, score); err != nil {
		t.Fatalf("second Upsert failed: %v", err)
	}
	got, err = store.Get(ctx, "toko-maju")
	if err != nil {
		t.Fatalf("Get after update failed: %v", err)
	}
	if got.CurrentScore != 80 {
		t.Errorf("CurrentScore after update = %v, want 80", got.CurrentScore)
	}
}

func TestPostgres_GetUnknownTenant(t *testing.T) {
	db, cleanup := testutil.PGTest(t)
	defer cleanup()

	store := NewPostgresStore(db)
	_, err := store.Get(context.Background(), "nonexistent")
	if !errors.Is(err, ErrScoreNotFound) {
		t.Fatalf("Get = %v, want ErrScoreNotFound", err)
	}
}

func TestPostgres_ListSuspended(t *testing.T) {
	db, cleanup := testutil.PGTest(t)
	defer cleanup()

	store := NewPostgresStore(db)
	ctx := context.Background()
	now := time.Now().UTC()

	suspended := &Score{
		TenantID:               "blaster-xyz",
		CurrentScore:           120,
		Level:                  LevelCritical,
		PolicyAction:           ActionSuspend,
		IsSuspended:            true,
		SuspensionType:         SuspensionTemporary,
		SuspendedAt:            &now,
		SuspensionCooldownDays: 7,
		ApprovalStatus:         ApprovalNone,
		CreatedAt:              now,
		UpdatedAt:              now,
	}
	clean := &Score{
		TenantID:       "toko-maju",
		CurrentScore:   5,
		Level:          LevelNone,
		PolicyAction:   ActionNone,
		SuspensionType: SuspensionNone,
		ApprovalStatus: ApprovalNone,
		LastEventAt:    &now,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	for _, sc := range []*Score{suspended, clean} {
		if err := store.Upsert(ctx, sc); err != nil {
			t.Fatalf("Upsert(%s) failed: %v", sc.TenantID, err)
		}
	}

	list, err := store.ListSuspended(ctx, 10)
	if err != nil {
		t.Fatalf("ListSuspended failed: %v", err)
	}
	if len(list) != 1 || list[0].TenantID != "blaster-xyz" {
		t.Fatalf("ListSuspended = %v entries, want exactly blaster-xyz", len(list))
	}

	active, err := store.ListActive(ctx, 10)
	if err != nil {
		t.Fatalf("ListActive failed: %v", err)
	}
	if len(active) != 1 || active[0].TenantID != "toko-maju" {
		t.Fatalf("ListActive = %v entries, want exactly toko-maju", len(active))
	}
}

func TestPostgres_EventAppendAndList(t *testing.T) {
	db, cleanup := testutil.PGTest(t)
	defer cleanup()

	store := NewEventPostgresStore(db)
	ctx := context.Background()

	types := []string{"spam_report", "blocked_by_recipient", "spam_report"}
	for _, typ := range types {
		ev := &Event{
			ID:        idgen.WithPrefix("ae_"),
			TenantID:  "toko-maju",
			EventType: typ,
			Weight:    15,
			Context:   map[string]string{"campaign_id": "c-1"},
			Source:    "webhook",
			CreatedAt: time.Now().UTC(),
		}
		if err := store.Append(ctx, ev); err != nil {
			t.Fatalf("Append(%s) failed: %v", typ, err)
		}
	}

	events, err := store.ListByTenant(ctx, "toko-maju", 10)
	if err != nil {
		t.Fatalf("ListByTenant failed: %v", err)
	}
	if len(events) != 3 {
		t.Fatalf("ListByTenant returned %d events, want 3", len(events))
	}
	if events[0].Context["campaign_id"] != "c-1" {
		t.Errorf("Context = %v, missing campaign_id", events[0].Context)
	}

	other, err := store.ListByTenant(ctx, "someone-else", 10)
	if err != nil {
		t.Fatalf("ListByTenant(other) failed: %v", err)
	}
	if len(other) != 0 {
		t.Errorf("ListByTenant(other) = %d events, want 0", len(other))
	}
}
