package monitor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/dukex/provtrack/pkg/lease"
	"github.com/dukex/provtrack/pkg/models"
	"github.com/dukex/provtrack/pkg/persistence"
)

const DefaultLeaseTTL = 30 * time.Second

// Manager runs one monitor per execution in the background, detached from the
// request that asked for it.
type Manager struct {
	monitor    *Monitor
	executions persistence.ExecutionRepository
	locker     lease.Locker
	leaseTTL   time.Duration
	logger     *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	running map[string]context.CancelFunc
	wg      sync.WaitGroup
}

func NewManager(
	monitor *Monitor,
	executions persistence.ExecutionRepository,
	locker lease.Locker,
	logger *slog.Logger,
) *Manager {
	ctx, cancel := context.WithCancel(context.Background())

	return &Manager{
		monitor:    monitor,
		executions: executions,
		locker:     locker,
		leaseTTL:   DefaultLeaseTTL,
		logger:     logger.With("module", "monitor_manager"),
		ctx:        ctx,
		cancel:     cancel,
		running:    make(map[string]context.CancelFunc),
	}
}

// WithLeaseTTL changes how long a monitor lease lives without refresh.
func (m *Manager) WithLeaseTTL(ttl time.Duration) *Manager {
	m.leaseTTL = ttl

	return m
}

func leaseKey(executionID string) string {
	return "monitor:" + executionID
}

// Start begins monitoring the execution. It returns false without error when the
// execution is already monitored here or another process holds its lease.
func (m *Manager) Start(ctx context.Context, execution *models.Execution) (bool, error) {
	if execution.EndTime != nil {
		return false, nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.ctx.Err() != nil {
		return false, fmt.Errorf("monitor manager stopped: %w", m.ctx.Err())
	}

	if _, ok := m.running[execution.ID]; ok {
		return false, nil
	}

	acquired, err := m.locker.Acquire(ctx, leaseKey(execution.ID), m.leaseTTL)
	if err != nil {
		return false, fmt.Errorf("failed to acquire monitor lease: %w", err)
	}

	if !acquired {
		m.logger.DebugContext(ctx, "execution monitored elsewhere", "execution_id", execution.ID)

		return false, nil
	}

	runCtx, cancel := context.WithCancel(m.ctx)
	m.running[execution.ID] = cancel

	m.wg.Add(1)

	go m.run(runCtx, cancel, execution)

	return true, nil
}

func (m *Manager) run(ctx context.Context, cancel context.CancelFunc, execution *models.Execution) {
	defer m.wg.Done()
	defer cancel()

	logger := m.logger.With("execution_id", execution.ID)

	refreshDone := make(chan struct{})

	go m.keepLease(ctx, cancel, execution.ID, refreshDone)

	err := m.monitor.Run(ctx, execution)

	cancel()
	<-refreshDone

	switch {
	case err == nil:
		logger.Info("monitor completed", "status", execution.Status)
	case errors.Is(err, context.Canceled):
		logger.Info("monitor stopped")
	default:
		logger.Error("monitor failed", "error", err)
	}

	if err := m.locker.Release(context.WithoutCancel(ctx), leaseKey(execution.ID)); err != nil && !errors.Is(err, lease.ErrNotHeld) {
		logger.Error("failed to release monitor lease", "error", err)
	}

	m.mu.Lock()
	delete(m.running, execution.ID)
	m.mu.Unlock()
}

// keepLease refreshes the lease until ctx ends. Losing the lease stops the monitor.
func (m *Manager) keepLease(ctx context.Context, cancel context.CancelFunc, executionID string, done chan<- struct{}) {
	defer close(done)

	ticker := time.NewTicker(max(m.leaseTTL/3, time.Millisecond))
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := m.locker.Refresh(ctx, leaseKey(executionID), m.leaseTTL); err != nil {
				if ctx.Err() != nil {
					return
				}

				m.logger.Error("lost monitor lease", "execution_id", executionID, "error", err)
				cancel()

				return
			}
		}
	}
}

// Stop cancels the monitor of one execution. It reports whether one was running.
func (m *Manager) Stop(executionID string) bool {
	m.mu.Lock()
	cancel, ok := m.running[executionID]
	m.mu.Unlock()

	if ok {
		cancel()
	}

	return ok
}

// Running returns the IDs of the executions monitored by this process.
func (m *Manager) Running() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	ids := make([]string, 0, len(m.running))
	for id := range m.running {
		ids = append(ids, id)
	}

	slices.Sort(ids)

	return ids
}

// Wait blocks until every started monitor has returned.
func (m *Manager) Wait() {
	m.wg.Wait()
}

// Shutdown cancels every monitor and waits for them. Cancelled executions stay
// unfinished and are picked up again by Resume.
func (m *Manager) Shutdown() {
	m.cancel()
	m.wg.Wait()
}

// Resume starts monitors for every unfinished execution. Each monitor continues
// from the step persisted as open.
func (m *Manager) Resume(ctx context.Context) (int, error) {
	executions, err := m.executions.ListUnfinished(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to list unfinished executions: %w", err)
	}

	started := 0

	for _, execution := range executions {
		ok, err := m.Start(ctx, execution)
		if err != nil {
			return started, err
		}

		if ok {
			started++
		}
	}

	if started > 0 {
		m.logger.InfoContext(ctx, "resumed monitors", "count", started)
	}

	return started, nil
}
