package sweep

import (
	"context"
	"testing"

	"github.com/sendloka/sendloka/internal/abuse"
)

func TestRunUnlockUnlocksEligibleTenant(t *testing.T) {
	store := abuse.NewMemoryStore()
	engine := abuse.NewEngine(store, abuse.NewEventMemoryStore(), abuse.DefaultConfig(), nil)
	s := New(engine, DefaultConfig(), nil)

	ctx := context.Background()
	if _, err := engine.RecordEvent(ctx, "t1", "spam_report", nil, "", "test"); err != nil {
		t.Fatal(err)
	}
	if _, err := engine.Suspend(ctx, "t1", abuse.SuspensionTemporary, 7); err != nil {
		t.Fatal(err)
	}
	// The unlock gate requires score improvement since suspension.
	if _, err := engine.Reset(ctx, "t1"); err != nil {
		t.Fatal(err)
	}
	// Backdate the suspension past its cooldown.
	score, err := engine.GetScore(ctx, "t1")
	if err != nil {
		t.Fatal(err)
	}
	past := score.SuspendedAt.AddDate(0, 0, -8)
	score.SuspendedAt = &past
	if err := store.Upsert(ctx, score); err != nil {
		t.Fatal(err)
	}

	s.RunUnlock()

	after, err := engine.GetScore(ctx, "t1")
	if err != nil {
		t.Fatal(err)
	}
	if after.IsSuspended {
		t.Fatal("eligible tenant still suspended after unlock sweep")
	}
}

func TestStartRejectsBadSchedule(t *testing.T) {
	engine := abuse.NewEngine(abuse.NewMemoryStore(), abuse.NewEventMemoryStore(), abuse.DefaultConfig(), nil)
	cfg := DefaultConfig()
	cfg.DecaySchedule = "not a cron spec"
	s := New(engine, cfg, nil)
	if err := s.Start(); err == nil {
		t.Fatal("expected error for invalid schedule")
	}
}
