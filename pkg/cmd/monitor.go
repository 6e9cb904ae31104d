package cmd

import (
	"log/slog"
	"time"

	"github.com/dukex/provtrack/pkg/eventbus"
	"github.com/dukex/provtrack/pkg/lease"
	"github.com/dukex/provtrack/pkg/monitor"
	"github.com/dukex/provtrack/pkg/persistence"
	"github.com/dukex/provtrack/pkg/reana"
	"go.opentelemetry.io/otel/trace"
)

// NewMonitoring wires a monitor manager and the sweeper that resumes
// unfinished executions on schedule.
func NewMonitoring(
	store persistence.Persistence,
	remote reana.ExecutionService,
	publisher eventbus.EventPublisher,
	locker lease.Locker,
	tracer trace.Tracer,
	logger *slog.Logger,
	pollInterval time.Duration,
	schedule string,
) (*monitor.Manager, *monitor.Sweeper, error) {
	config := monitor.DefaultConfig()
	config.PollInterval = pollInterval

	m := monitor.NewMonitor(store.ExecutionRepository(), remote, publisher, tracer, logger, config)
	manager := monitor.NewManager(m, store.ExecutionRepository(), locker, logger)

	sweeper, err := monitor.NewSweeper(manager, schedule, logger)
	if err != nil {
		manager.Shutdown()

		return nil, nil, err
	}

	return manager, sweeper, nil
}
