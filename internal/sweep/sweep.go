// Package sweep schedules the periodic maintenance passes of the abuse
// engine: score decay across active tenants and cooldown-based
// auto-unlock across suspended tenants.
package sweep

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/sendloka/sendloka/internal/abuse"
	"github.com/sendloka/sendloka/internal/metrics"
)

// Config holds the cron schedules and batch size.
type Config struct {
	// DecaySchedule is a standard 5-field cron spec.
	DecaySchedule string
	// UnlockSchedule is a standard 5-field cron spec.
	UnlockSchedule string
	// BatchSize caps how many tenants one sweep pass touches.
	BatchSize int
	// Timeout bounds a single sweep pass.
	Timeout time.Duration
}

// DefaultConfig decays hourly and checks unlocks every 15 minutes.
func DefaultConfig() Config {
	return Config{
		DecaySchedule:  "0 * * * *",
		UnlockSchedule: "*/15 * * * *",
		BatchSize:      500,
		Timeout:        5 * time.Minute,
	}
}

// Scheduler runs the sweeps on their cron schedules.
type Scheduler struct {
	cfg    Config
	engine *abuse.Engine
	cron   *cron.Cron
	logger *slog.Logger
}

// New creates a scheduler. Call Start to begin sweeping.
func New(engine *abuse.Engine, cfg Config, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		cfg:    cfg,
		engine: engine,
		cron:   cron.New(),
		logger: logger,
	}
}

// Start registers both sweeps and starts the cron runner.
func (s *Scheduler) Start() error {
	if _, err := s.cron.AddFunc(s.cfg.DecaySchedule, s.RunDecay); err != nil {
		return fmt.Errorf("sweep: decay schedule: %w", err)
	}
	if _, err := s.cron.AddFunc(s.cfg.UnlockSchedule, s.RunUnlock); err != nil {
		return fmt.Errorf("sweep: unlock schedule: %w", err)
	}
	s.cron.Start()
	return nil
}

// Stop stops the cron runner and waits for running jobs to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}

// RunDecay executes one decay pass. Exported so an operator endpoint or
// test can trigger it outside the schedule.
func (s *Scheduler) RunDecay() {
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.Timeout)
	defer cancel()

	decayed, err := s.engine.DecaySweep(ctx, s.cfg.BatchSize)
	if err != nil {
		s.logger.Error("decay sweep failed", "error", err)
		return
	}
	metrics.DecaySweptTotal.Add(float64(decayed))
	s.logger.Info("decay sweep complete", "decayed", decayed)
}

// RunUnlock executes one auto-unlock pass.
func (s *Scheduler) RunUnlock() {
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.Timeout)
	defer cancel()

	results, err := s.engine.UnlockSweep(ctx, s.cfg.BatchSize)
	if err != nil {
		s.logger.Error("unlock sweep failed", "error", err)
		return
	}
	unlocked := 0
	for _, r := range results {
		if r.Unlocked {
			unlocked++
			s.logger.Info("tenant auto-unlocked",
				"tenant_id", r.TenantID, "score", r.CurrentScore)
		}
	}
	metrics.AutoUnlocksTotal.Add(float64(unlocked))
	s.logger.Info("unlock sweep complete",
		"checked", len(results), "unlocked", unlocked)
}
