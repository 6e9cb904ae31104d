package monitor

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/robfig/cron/v3"
)

const DefaultSweepSchedule = "@every 1m"

// Sweeper periodically resumes monitors for executions nobody is watching.
type Sweeper struct {
	manager  *Manager
	schedule string
	cron     *cron.Cron
	logger   *slog.Logger
}

// NewSweeper validates schedule, a standard cron expression or descriptor.
func NewSweeper(manager *Manager, schedule string, logger *slog.Logger) (*Sweeper, error) {
	if schedule == "" {
		schedule = DefaultSweepSchedule
	}

	if _, err := cron.ParseStandard(schedule); err != nil {
		return nil, fmt.Errorf("invalid sweep schedule '%s': %w", schedule, err)
	}

	return &Sweeper{
		manager:  manager,
		schedule: schedule,
		logger:   logger.With("module", "sweeper"),
	}, nil
}

func (s *Sweeper) Start(ctx context.Context) error {
	s.cron = cron.New(cron.WithChain(
		cron.SkipIfStillRunning(cron.DefaultLogger),
		cron.Recover(cron.DefaultLogger),
	))

	entryID, err := s.cron.AddFunc(s.schedule, func() { s.Sweep(ctx) })
	if err != nil {
		return fmt.Errorf("failed to add sweep job: %w", err)
	}

	s.cron.Start()
	s.logger.Info("sweeper started", "schedule", s.schedule, "entry_id", entryID)

	return nil
}

// Sweep resumes unfinished executions once.
func (s *Sweeper) Sweep(ctx context.Context) {
	started, err := s.manager.Resume(ctx)
	if err != nil {
		s.logger.ErrorContext(ctx, "sweep failed", "error", err)

		return
	}

	s.logger.DebugContext(ctx, "sweep completed", "started", started)
}

// Stop stops scheduling and waits for a running sweep.
func (s *Sweeper) Stop() {
	if s.cron == nil {
		return
	}

	<-s.cron.Stop().Done()
	s.logger.Info("sweeper stopped")
}
