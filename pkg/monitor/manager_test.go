package monitor

import (
	"testing"
	"time"

	"github.com/dukex/provtrack/pkg/lease"
	"github.com/dukex/provtrack/pkg/models"
	"github.com/dukex/provtrack/pkg/reana"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func newManagerFixture(t *testing.T) (*monitorFixture, *Manager, *lease.Memory) {
	t.Helper()

	f := newMonitorFixture(t, nil)
	locker := lease.NewMemory()
	manager := NewManager(f.monitor, f.store.ExecutionRepository(), locker, discardLogger()).WithLeaseTTL(time.Second)

	t.Cleanup(manager.Shutdown)

	return f, manager, locker
}

func TestManager_StartRunsToCompletion(t *testing.T) {
	f, manager, locker := newManagerFixture(t)
	finished := reana.Status{Status: models.ExecutionStatusFinished, RawStatus: "finished"}
	f.remote.On("Status", mock.Anything, "remote-1").Return(&finished, nil)

	started, err := manager.Start(t.Context(), queuedExecution())
	require.NoError(t, err)
	assert.True(t, started)

	manager.Wait()

	assert.Equal(t, models.ExecutionStatusFinished, f.execution(t).Status)
	assert.Empty(t, manager.Running())

	acquired, err := locker.Acquire(t.Context(), leaseKey("exec-1"), time.Second)
	require.NoError(t, err)
	assert.True(t, acquired, "lease must be released once the monitor returns")
}

func TestManager_StartIsIdempotent(t *testing.T) {
	f, manager, _ := newManagerFixture(t)
	f.remote.On("Status", mock.Anything, "remote-1").Return(&reana.Status{
		Status: models.ExecutionStatusRunning, CurrentStep: "stepA", RawStatus: "running",
	}, nil)

	started, err := manager.Start(t.Context(), queuedExecution())
	require.NoError(t, err)
	require.True(t, started)

	started, err = manager.Start(t.Context(), queuedExecution())
	require.NoError(t, err)
	assert.False(t, started)
	assert.Equal(t, []string{"exec-1"}, manager.Running())

	assert.True(t, manager.Stop("exec-1"))
	manager.Wait()

	assert.Empty(t, manager.Running())
	assert.Nil(t, f.execution(t).EndTime)
	assert.False(t, manager.Stop("exec-1"))
}

func TestManager_SkipsLeasedExecution(t *testing.T) {
	_, manager, locker := newManagerFixture(t)

	acquired, err := locker.Acquire(t.Context(), leaseKey("exec-1"), time.Minute)
	require.NoError(t, err)
	require.True(t, acquired)

	started, err := manager.Start(t.Context(), queuedExecution())
	require.NoError(t, err)
	assert.False(t, started)
	assert.Empty(t, manager.Running())
}

func TestManager_SkipsFinishedExecution(t *testing.T) {
	_, manager, _ := newManagerFixture(t)

	execution := queuedExecution()
	end := t0.Add(time.Hour)
	execution.EndTime = &end

	started, err := manager.Start(t.Context(), execution)
	require.NoError(t, err)
	assert.False(t, started)
}

func TestManager_Resume(t *testing.T) {
	f, manager, _ := newManagerFixture(t)
	ctx := t.Context()

	second := queuedExecution()
	second.ID = "exec-2"
	second.RemoteID = "remote-2"
	require.NoError(t, f.store.ExecutionRepository().Create(ctx, second))

	done := queuedExecution()
	done.ID = "exec-3"
	done.RemoteID = "remote-3"
	require.NoError(t, f.store.ExecutionRepository().Create(ctx, done))
	require.NoError(t, f.store.ExecutionRepository().Finish(ctx, "exec-3", models.ExecutionStatusFinished, t0.Add(time.Hour)))

	f.remote.On("Status", mock.Anything, mock.Anything).Return(&reana.Status{
		Status: models.ExecutionStatusFinished, RawStatus: "finished",
	}, nil)

	started, err := manager.Resume(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, started)

	manager.Wait()

	for _, id := range []string{"exec-1", "exec-2"} {
		execution, err := f.store.ExecutionRepository().GetByID(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, models.ExecutionStatusFinished, execution.Status, id)
	}

	f.remote.AssertNotCalled(t, "Status", mock.Anything, "remote-3")
}

func TestManager_ShutdownRejectsNewMonitors(t *testing.T) {
	_, manager, _ := newManagerFixture(t)

	manager.Shutdown()

	_, err := manager.Start(t.Context(), queuedExecution())
	require.Error(t, err)
}
