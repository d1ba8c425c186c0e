package abuse

import (
	"context"
	"log/slog"
	"math"
	"strconv"
	"time"

	"github.com/sendloka/sendloka/internal/idgen"
	"github.com/sendloka/sendloka/internal/syncutil"
)

// Engine mutates tenant abuse scores. All score writes funnel through it;
// RecordEvent, ApplyDecay and the unlock sweep are the only mutation paths,
// each serialized per tenant.
type Engine struct {
	store  Store
	events EventStore
	cfg    Config
	logger *slog.Logger

	locks syncutil.ShardedMutex
	now   func() time.Time
}

// NewEngine creates a scoring engine with the given stores and configuration.
func NewEngine(store Store, events EventStore, cfg Config, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		store:  store,
		events: events,
		cfg:    cfg,
		logger: logger,
		now:    time.Now,
	}
}

// RecordEvent records one abuse signal against a tenant and returns the
// updated score. The event is appended to the ledger unconditionally, even
// when the tenant is already suspended: the ledger is a complete audit
// trail regardless of policy outcome.
func (e *Engine) RecordEvent(ctx context.Context, tenantID, eventType string, evCtx map[string]string, description, source string) (*Score, error) {
	unlock := e.locks.Lock(tenantID)
	defer unlock()

	now := e.now()

	score, err := e.store.Get(ctx, tenantID)
	if err == ErrScoreNotFound {
		score = e.newScore(tenantID, now)
		err = nil
	}
	if err != nil {
		return nil, err
	}

	weight, known := e.cfg.WeightFor(eventType)
	if !known {
		// Unknown signal types are recorded at zero weight, never rejected.
		e.logger.Warn("unknown abuse event type", "tenant_id", tenantID, "event_type", eventType)
	}

	// The ledger is appended before the score moves: a score mutation
	// with no audit row is unrecoverable, while an audit row with no
	// score mutation can be rescored from the ledger.
	event := &Event{
		ID:          idgen.WithPrefix("evt_"),
		TenantID:    tenantID,
		EventType:   eventType,
		Weight:      weight,
		Context:     evCtx,
		Description: description,
		Source:      source,
		CreatedAt:   now,
	}
	if err := e.events.Append(ctx, event); err != nil {
		return nil, err
	}

	score.CurrentScore += weight
	e.recompute(score)

	if score.Level == LevelCritical && e.cfg.Suspension.AutoSuspendEnabled && !score.IsSuspended {
		e.suspend(score, SuspensionTemporary, 0, now)
	}

	score.LastEventAt = &now
	score.UpdatedAt = now

	if err := e.store.Upsert(ctx, score); err != nil {
		e.logger.Error("score upsert failed after ledger append",
			"tenant_id", tenantID, "event_id", event.ID, "error", err)
		return nil, err
	}

	return score, nil
}

// CanPerformAction answers whether a tenant may perform a cost-bearing
// action right now. It is a pure read: no state is mutated.
func (e *Engine) CanPerformAction(ctx context.Context, tenantID, actionType string) (*Decision, error) {
	score, err := e.store.Get(ctx, tenantID)
	if err == ErrScoreNotFound {
		// No record means no recorded signals: clean tenant.
		return &Decision{Allowed: true, Level: LevelNone, PolicyAction: ActionNone}, nil
	}
	if err != nil {
		return nil, err
	}

	d := &Decision{
		Level:        score.Level,
		PolicyAction: score.PolicyAction,
	}

	if score.IsSuspended {
		d.Allowed = false
		d.Reason = "suspended"
		d.CooldownDaysLeft = e.cooldownDaysLeft(score)
		return d, nil
	}

	switch score.PolicyAction {
	case ActionRequireApproval:
		if score.ApprovalStatus != ApprovalAutoApproved {
			d.Allowed = false
			d.Reason = "approval_required"
			d.RequiresApproval = true
			return d, nil
		}
		d.Allowed = true
	case ActionThrottle:
		d.Allowed = true
		d.Throttled = true
		if limits, ok := e.cfg.ThrottleLimits[score.Level]; ok {
			l := limits
			d.Limits = &l
		}
	default:
		d.Allowed = true
	}

	return d, nil
}

// ApplyDecay decrements a tenant's score if decay is enabled and the tenant
// has been quiet long enough. Returns whether any change occurred; a no-op
// is reported as false, never silently swallowed.
//
// Decay anchors on the later of the last event and the last decay, so two
// sweeps in the same window never double-decrement.
func (e *Engine) ApplyDecay(ctx context.Context, tenantID string) (bool, error) {
	if !e.cfg.Decay.Enabled {
		return false, nil
	}

	unlock := e.locks.Lock(tenantID)
	defer unlock()

	score, err := e.store.Get(ctx, tenantID)
	if err == ErrScoreNotFound {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	if score.LastEventAt == nil || score.CurrentScore <= 0 {
		return false, nil
	}

	now := e.now()
	if daysBetween(*score.LastEventAt, now) < float64(e.cfg.Decay.MinDaysWithoutEvent) {
		return false, nil
	}

	anchor := *score.LastEventAt
	if raw, ok := score.Metadata["last_decay_at"]; ok {
		if t, err := time.Parse(time.RFC3339, raw); err == nil && t.After(anchor) {
			anchor = t
		}
	}

	elapsedDays := math.Floor(daysBetween(anchor, now))
	if elapsedDays < 1 {
		return false, nil
	}

	decrement := e.cfg.Decay.RatePerDay * elapsedDays
	score.CurrentScore = math.Max(0, score.CurrentScore-decrement)
	e.recompute(score)

	if score.Metadata == nil {
		score.Metadata = make(map[string]string)
	}
	score.Metadata["last_decay_at"] = now.Format(time.RFC3339)
	score.UpdatedAt = now

	if err := e.store.Upsert(ctx, score); err != nil {
		return false, err
	}
	return true, nil
}

// ProcessUnlock evaluates one suspended tenant against the two-factor
// unlock gate: the cooldown must have ended AND the score must have
// recovered. Time alone never unlocks, and score alone never unlocks.
func (e *Engine) ProcessUnlock(ctx context.Context, tenantID string) (*UnlockResult, error) {
	unlock := e.locks.Lock(tenantID)
	defer unlock()

	score, err := e.store.Get(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	result := &UnlockResult{TenantID: tenantID, CurrentScore: score.CurrentScore}

	if !score.IsSuspended {
		result.Reason = "not_suspended"
		return result, nil
	}
	if score.SuspensionType == SuspensionPermanent {
		result.Reason = "permanent_suspension"
		return result, nil
	}
	if !e.cfg.Suspension.AutoUnlockEnabled {
		result.Reason = "auto_unlock_disabled"
		return result, nil
	}

	if left := e.cooldownDaysLeft(score); left > 0 {
		result.Reason = "cooldown_active"
		result.RemainingDays = left
		return result, nil
	}

	if score.CurrentScore > e.cfg.Suspension.AutoUnlockScoreThreshold {
		result.Reason = "score_above_threshold"
		return result, nil
	}

	if e.cfg.Suspension.RequireScoreImprovement {
		if raw, ok := score.Metadata[MetaScoreAtSuspension]; ok {
			if atSuspension, err := strconv.ParseFloat(raw, 64); err == nil && score.CurrentScore >= atSuspension {
				result.Reason = "score_not_improved"
				return result, nil
			}
		}
	}

	now := e.now()
	score.IsSuspended = false
	score.SuspensionType = SuspensionNone
	score.SuspendedAt = nil
	score.ApprovalStatus = e.cfg.Suspension.UnlockApprovalStatus
	if score.Metadata == nil {
		score.Metadata = make(map[string]string)
	}
	score.Metadata[MetaAutoUnlockedAt] = now.Format(time.RFC3339)
	score.UpdatedAt = now

	if err := e.store.Upsert(ctx, score); err != nil {
		return nil, err
	}

	result.Unlocked = true
	result.Reason = "unlocked"
	return result, nil
}

// Suspend manually suspends a tenant (admin action). cooldownDays <= 0
// uses the configured default, clamped to the configured min/max.
func (e *Engine) Suspend(ctx context.Context, tenantID string, sType SuspensionType, cooldownDays int) (*Score, error) {
	unlock := e.locks.Lock(tenantID)
	defer unlock()

	now := e.now()
	score, err := e.store.Get(ctx, tenantID)
	if err == ErrScoreNotFound {
		score = e.newScore(tenantID, now)
		err = nil
	}
	if err != nil {
		return nil, err
	}

	e.suspend(score, sType, cooldownDays, now)
	score.UpdatedAt = now
	if err := e.store.Upsert(ctx, score); err != nil {
		return nil, err
	}
	return score, nil
}

// Reset clears a tenant's score back to zero and recomputes level/action.
// The event ledger is untouched: history is never deleted. Suspension
// state is also untouched; releasing a suspension is an explicit action.
func (e *Engine) Reset(ctx context.Context, tenantID string) (*Score, error) {
	unlock := e.locks.Lock(tenantID)
	defer unlock()

	score, err := e.store.Get(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	score.CurrentScore = 0
	e.recompute(score)
	score.UpdatedAt = e.now()

	if err := e.store.Upsert(ctx, score); err != nil {
		return nil, err
	}
	return score, nil
}

// GetScore returns a tenant's score record, or ErrScoreNotFound.
func (e *Engine) GetScore(ctx context.Context, tenantID string) (*Score, error) {
	return e.store.Get(ctx, tenantID)
}

// History returns the most recent abuse events for a tenant.
func (e *Engine) History(ctx context.Context, tenantID string, limit int) ([]*Event, error) {
	if limit <= 0 {
		limit = 50
	}
	return e.events.ListByTenant(ctx, tenantID, limit)
}

// DecaySweep applies decay across active tenants. Returns how many scores changed.
func (e *Engine) DecaySweep(ctx context.Context, limit int) (int, error) {
	scores, err := e.store.ListActive(ctx, limit)
	if err != nil {
		return 0, err
	}
	changed := 0
	for _, s := range scores {
		decayed, err := e.ApplyDecay(ctx, s.TenantID)
		if err != nil {
			e.logger.Error("decay failed", "tenant_id", s.TenantID, "error", err)
			continue
		}
		if decayed {
			changed++
		}
	}
	return changed, nil
}

// UnlockSweep evaluates all suspended tenants for auto-unlock.
func (e *Engine) UnlockSweep(ctx context.Context, limit int) ([]*UnlockResult, error) {
	scores, err := e.store.ListSuspended(ctx, limit)
	if err != nil {
		return nil, err
	}
	results := make([]*UnlockResult, 0, len(scores))
	for _, s := range scores {
		r, err := e.ProcessUnlock(ctx, s.TenantID)
		if err != nil {
			e.logger.Error("unlock check failed", "tenant_id", s.TenantID, "error", err)
			continue
		}
		results = append(results, r)
	}
	return results, nil
}

func (e *Engine) newScore(tenantID string, now time.Time) *Score {
	return &Score{
		TenantID:       tenantID,
		Level:          LevelNone,
		PolicyAction:   ActionNone,
		SuspensionType: SuspensionNone,
		ApprovalStatus: ApprovalNone,
		Metadata:       make(map[string]string),
		CreatedAt:      now,
	}
}

// recompute derives level and action from the current score. This is the
// only place those fields are set.
func (e *Engine) recompute(score *Score) {
	score.Level = e.cfg.LevelForScore(score.CurrentScore)
	score.PolicyAction = e.cfg.ActionFor(score.Level)
}

func (e *Engine) suspend(score *Score, sType SuspensionType, cooldownDays int, now time.Time) {
	if sType == SuspensionNone {
		sType = SuspensionTemporary
	}
	score.IsSuspended = true
	score.SuspensionType = sType
	score.SuspendedAt = &now
	score.SuspensionCooldownDays = e.cfg.CooldownDays(cooldownDays)
	if score.Metadata == nil {
		score.Metadata = make(map[string]string)
	}
	score.Metadata[MetaScoreAtSuspension] = strconv.FormatFloat(score.CurrentScore, 'f', -1, 64)
}

func (e *Engine) cooldownDaysLeft(score *Score) int {
	if score.SuspendedAt == nil {
		return 0
	}
	end := score.SuspendedAt.AddDate(0, 0, score.SuspensionCooldownDays)
	left := end.Sub(e.now())
	if left <= 0 {
		return 0
	}
	return int(math.Ceil(left.Hours() / 24))
}

func daysBetween(from, to time.Time) float64 {
	return to.Sub(from).Hours() / 24
}
