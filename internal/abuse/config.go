package abuse

// Thresholds are the score lower bounds for each abuse level.
// A score below Low maps to LevelNone; the highest threshold at or
// below the score wins.
type Thresholds struct {
	Low      float64
	Medium   float64
	High     float64
	Critical float64
}

// DecayConfig controls how scores heal over time.
type DecayConfig struct {
	Enabled             bool
	RatePerDay          float64
	MinDaysWithoutEvent int
}

// SuspensionConfig controls auto-suspension and cooldown-based auto-unlock.
type SuspensionConfig struct {
	AutoSuspendEnabled       bool
	AutoUnlockEnabled        bool
	AutoUnlockScoreThreshold float64
	DefaultTempDays          int
	MinCooldownDays          int
	MaxCooldownDays          int
	RequireScoreImprovement  bool
	// UnlockApprovalStatus is the approval status an unlocked tenant gets.
	// Conservative deployments set ApprovalPending so a human still reviews.
	UnlockApprovalStatus ApprovalStatus
}

// Config is the full scoring configuration, injected at engine construction.
// There is no global accessor: tests and callers always state their config.
type Config struct {
	Thresholds     Thresholds
	SignalWeights  map[string]float64
	ActionForLevel map[Level]Action
	ThrottleLimits map[Level]ThrottleLimits
	Decay          DecayConfig
	Suspension     SuspensionConfig
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		Thresholds: Thresholds{
			Low:      10,
			Medium:   30,
			High:     60,
			Critical: 85,
		},
		SignalWeights: map[string]float64{
			"spam_report":             25,
			"excessive_messages":      15,
			"invalid_recipients":      10,
			"rapid_campaign_creation": 10,
			"blast_failure_spike":     8,
			"duplicate_content":       5,
			"chargeback":              40,
			"account_takeover_signal": 50,
		},
		ActionForLevel: map[Level]Action{
			LevelNone:     ActionNone,
			LevelLow:      ActionNone,
			LevelMedium:   ActionThrottle,
			LevelHigh:     ActionRequireApproval,
			LevelCritical: ActionSuspend,
		},
		ThrottleLimits: map[Level]ThrottleLimits{
			LevelMedium: {MaxMessagesPerMinute: 20, MaxCampaignsPerHour: 2, DelaySeconds: 3},
			LevelHigh:   {MaxMessagesPerMinute: 5, MaxCampaignsPerHour: 1, DelaySeconds: 10},
		},
		Decay: DecayConfig{
			Enabled:             true,
			RatePerDay:          2.0,
			MinDaysWithoutEvent: 3,
		},
		Suspension: SuspensionConfig{
			AutoSuspendEnabled:       true,
			AutoUnlockEnabled:        true,
			AutoUnlockScoreThreshold: 30,
			DefaultTempDays:          7,
			MinCooldownDays:          1,
			MaxCooldownDays:          90,
			RequireScoreImprovement:  true,
			UnlockApprovalStatus:     ApprovalAutoApproved,
		},
	}
}

// LevelForScore maps a score onto an abuse level by ordered threshold lookup.
func (c Config) LevelForScore(score float64) Level {
	switch {
	case score >= c.Thresholds.Critical:
		return LevelCritical
	case score >= c.Thresholds.High:
		return LevelHigh
	case score >= c.Thresholds.Medium:
		return LevelMedium
	case score >= c.Thresholds.Low:
		return LevelLow
	default:
		return LevelNone
	}
}

// ActionFor returns the policy action for a level. Unknown levels get ActionNone.
func (c Config) ActionFor(level Level) Action {
	if a, ok := c.ActionForLevel[level]; ok {
		return a
	}
	return ActionNone
}

// WeightFor returns the configured weight for an event type.
// Unknown types weigh zero; they are recorded but never move the score.
func (c Config) WeightFor(eventType string) (float64, bool) {
	w, ok := c.SignalWeights[eventType]
	return w, ok
}

// CooldownDays clamps a requested suspension cooldown into the configured range.
func (c Config) CooldownDays(requested int) int {
	days := requested
	if days <= 0 {
		days = c.Suspension.DefaultTempDays
	}
	if days < c.Suspension.MinCooldownDays {
		days = c.Suspension.MinCooldownDays
	}
	if c.Suspension.MaxCooldownDays > 0 && days > c.Suspension.MaxCooldownDays {
		days = c.Suspension.MaxCooldownDays
	}
	return days
}
