package main

import (
	"context"
	"log/slog"

	"github.com/dukex/provtrack/pkg/eventbus"
	"github.com/dukex/provtrack/pkg/events"
	"github.com/dukex/provtrack/pkg/monitor"
	"github.com/dukex/provtrack/pkg/persistence"
)

// WorkerManager starts monitors for submitted executions and keeps unfinished
// ones monitored across restarts.
type WorkerManager struct {
	id          string
	logger      *slog.Logger
	persistence persistence.Persistence
	eventBus    eventbus.EventSubscriber
	manager     *monitor.Manager
	sweeper     *monitor.Sweeper
}

func NewWorkerManager(
	id string,
	persistence persistence.Persistence,
	eventBus eventbus.EventSubscriber,
	manager *monitor.Manager,
	sweeper *monitor.Sweeper,
	logger *slog.Logger,
) *WorkerManager {
	return &WorkerManager{
		id:          id,
		logger:      logger.With("module", "provtrack-worker", "worker_id", id),
		persistence: persistence,
		eventBus:    eventBus,
		manager:     manager,
		sweeper:     sweeper,
	}
}

// Start subscribes to submissions, resumes unfinished executions and blocks
// until ctx is cancelled. Running monitors are stopped before it returns and
// their executions stay unfinished for the next worker.
func (w *WorkerManager) Start(ctx context.Context) error {
	w.logger.InfoContext(ctx, "Starting worker manager")

	err := w.eventBus.Handle(events.ExecutionSubmittedEvent, w.handleExecutionSubmitted)
	if err != nil {
		return err
	}

	err = w.eventBus.Subscribe(ctx)
	if err != nil {
		w.logger.ErrorContext(ctx, "Failed to subscribe to event bus", "error", err)

		return err
	}

	resumed, err := w.manager.Resume(ctx)
	if err != nil {
		w.logger.ErrorContext(ctx, "Failed to resume monitors", "error", err)
	}

	err = w.sweeper.Start(ctx)
	if err != nil {
		return err
	}

	w.logger.InfoContext(ctx, "Worker started successfully", "resumed", resumed)

	<-ctx.Done()

	w.logger.Info("Shutting down worker...")

	w.sweeper.Stop()
	w.manager.Shutdown()

	return nil
}

func (w *WorkerManager) handleExecutionSubmitted(ctx context.Context, event any) error {
	submitted, ok := event.(*events.ExecutionSubmitted)
	if !ok {
		w.logger.ErrorContext(ctx, "Invalid event type for ExecutionSubmitted")

		return nil
	}

	logger := w.logger.With("execution_id", submitted.ExecutionID, "remote_id", submitted.RemoteID)

	execution, err := w.persistence.ExecutionRepository().GetByID(ctx, submitted.ExecutionID)
	if err != nil {
		if persistence.IsNotFound(err) {
			logger.WarnContext(ctx, "Submitted execution no longer exists")

			return nil
		}

		return err
	}

	started, err := w.manager.Start(ctx, execution)
	if err != nil {
		return err
	}

	logger.InfoContext(ctx, "Execution submitted", "monitoring", started)

	return nil
}
