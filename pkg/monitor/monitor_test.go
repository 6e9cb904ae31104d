package monitor

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/dukex/provtrack/pkg/events"
	"github.com/dukex/provtrack/pkg/mocks"
	"github.com/dukex/provtrack/pkg/models"
	"github.com/dukex/provtrack/pkg/otelhelper"
	"github.com/dukex/provtrack/pkg/persistence/file"
	"github.com/dukex/provtrack/pkg/reana"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func queuedExecution() *models.Execution {
	return &models.Execution{
		ID:         "exec-1",
		SpecID:     "spec-1",
		RemoteID:   "remote-1",
		RemoteName: "two-step",
		RunNumber:  1,
		StartTime:  t0,
		Status:     models.ExecutionStatusQueued,
		Username:   "alice",
		Group:      "lab",
	}
}

// steppingClock advances one second on every reading.
func steppingClock() func() time.Time {
	var (
		mu      sync.Mutex
		current = t0
	)

	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()

		current = current.Add(time.Second)

		return current
	}
}

type monitorFixture struct {
	store   *file.Persistence
	remote  *mocks.MockExecutionService
	monitor *Monitor
}

func newMonitorFixture(t *testing.T, publisher *mocks.MockEventBus) *monitorFixture {
	t.Helper()

	store := file.NewPersistence(t.TempDir())
	require.NoError(t, store.ExecutionRepository().Create(t.Context(), queuedExecution()))

	remote := &mocks.MockExecutionService{}

	monitor := NewMonitor(store.ExecutionRepository(), remote, nil, otelhelper.NewNoopTracer(), discardLogger(), DefaultConfig())
	if publisher != nil {
		monitor.publisher = publisher
	}

	monitor.interval = time.Millisecond
	monitor.maxBackoff = 2 * time.Millisecond
	monitor.now = steppingClock()

	return &monitorFixture{store: store, remote: remote, monitor: monitor}
}

func (f *monitorFixture) expectStatuses(statuses ...reana.Status) {
	for _, status := range statuses {
		f.remote.On("Status", mock.Anything, "remote-1").Return(&status, nil).Once()
	}
}

func (f *monitorFixture) execution(t *testing.T) *models.Execution {
	t.Helper()

	execution, err := f.store.ExecutionRepository().GetByID(t.Context(), "exec-1")
	require.NoError(t, err)

	return execution
}

func (f *monitorFixture) steps(t *testing.T) []*models.ExecutionStep {
	t.Helper()

	steps, err := f.store.ExecutionRepository().Steps(t.Context(), "exec-1")
	require.NoError(t, err)

	return steps
}

func running(step string) reana.Status {
	return reana.Status{Status: models.ExecutionStatusRunning, CurrentStep: step, RawStatus: "running"}
}

func TestNewMonitor_Config(t *testing.T) {
	store := file.NewPersistence(t.TempDir())

	monitor := NewMonitor(store.ExecutionRepository(), &mocks.MockExecutionService{}, nil, otelhelper.NewNoopTracer(), discardLogger(), Config{})
	assert.Equal(t, DefaultPollInterval, monitor.interval)
	assert.Equal(t, DefaultMaxConsecutiveErrors, monitor.maxErrors)
	assert.Equal(t, DefaultMaxBackoff, monitor.maxBackoff)
	assert.Zero(t, monitor.outageTolerance)

	monitor = NewMonitor(store.ExecutionRepository(), &mocks.MockExecutionService{}, nil, otelhelper.NewNoopTracer(), discardLogger(), DefaultConfig())
	assert.Equal(t, DefaultOutageTolerance, monitor.outageTolerance)

	monitor = NewMonitor(store.ExecutionRepository(), &mocks.MockExecutionService{}, nil, otelhelper.NewNoopTracer(), discardLogger(), Config{PollInterval: time.Millisecond})
	assert.Equal(t, MinPollInterval, monitor.interval)
}

func TestMonitor_Run_TwoSteps(t *testing.T) {
	f := newMonitorFixture(t, nil)
	finished := reana.Status{Status: models.ExecutionStatusFinished, CurrentStep: "stepB", RawStatus: "finished"}
	f.expectStatuses(
		reana.Status{Status: models.ExecutionStatusQueued, RawStatus: "queued"},
		running("stepA"),
		running("stepA"),
		running("stepB"),
		finished,
		finished,
	)

	execution := queuedExecution()
	require.NoError(t, f.monitor.Run(t.Context(), execution))

	steps := f.steps(t)
	require.Len(t, steps, 2)
	assert.Equal(t, "stepA", steps[0].Name)
	assert.Equal(t, "stepB", steps[1].Name)

	for _, step := range steps {
		require.NotNil(t, step.EndTime)
		assert.Equal(t, models.StepStatusFinished, step.Status)
	}

	assert.False(t, steps[0].EndTime.After(steps[1].StartTime))

	stored := f.execution(t)
	assert.Equal(t, models.ExecutionStatusFinished, stored.Status)
	require.NotNil(t, stored.EndTime)
	assert.Equal(t, *steps[1].EndTime, *stored.EndTime)
	assert.Equal(t, models.ExecutionStatusFinished, execution.Status)

	f.remote.AssertExpectations(t)
}

func TestMonitor_Run_FailedRunFailsLastStep(t *testing.T) {
	f := newMonitorFixture(t, nil)
	failed := reana.Status{Status: models.ExecutionStatusFailed, CurrentStep: "stepA", RawStatus: "failed"}
	f.expectStatuses(running("stepA"), failed, failed)

	require.NoError(t, f.monitor.Run(t.Context(), queuedExecution()))

	steps := f.steps(t)
	require.Len(t, steps, 1)
	assert.Equal(t, models.StepStatusFailed, steps[0].Status)
	assert.Equal(t, models.ExecutionStatusFailed, f.execution(t).Status)
}

func TestMonitor_Run_ImmediateFailure(t *testing.T) {
	f := newMonitorFixture(t, nil)
	failed := reana.Status{Status: models.ExecutionStatusFailed, RawStatus: "failed"}
	f.expectStatuses(failed, failed)

	require.NoError(t, f.monitor.Run(t.Context(), queuedExecution()))

	assert.Empty(t, f.steps(t))

	stored := f.execution(t)
	assert.Equal(t, models.ExecutionStatusFailed, stored.Status)
	assert.NotNil(t, stored.EndTime)
}

func TestMonitor_Run_FinalFetchFailureUsesLastObservation(t *testing.T) {
	f := newMonitorFixture(t, nil)
	f.expectStatuses(running("stepA"), reana.Status{Status: models.ExecutionStatusFinished, CurrentStep: "stepA", RawStatus: "finished"})
	f.remote.On("Status", mock.Anything, "remote-1").Return(nil, &reana.RemoteError{Op: "Status", StatusCode: 502}).Once()

	require.NoError(t, f.monitor.Run(t.Context(), queuedExecution()))

	assert.Equal(t, models.ExecutionStatusFinished, f.execution(t).Status)
	assert.Equal(t, models.StepStatusFinished, f.steps(t)[0].Status)
}

func TestMonitor_Run_MalformedStatus(t *testing.T) {
	f := newMonitorFixture(t, nil)
	f.expectStatuses(running("stepA"), reana.Status{RawStatus: "exploded"})

	err := f.monitor.Run(t.Context(), queuedExecution())
	require.ErrorIs(t, err, ErrMalformedStatus)

	stored := f.execution(t)
	assert.Equal(t, models.ExecutionStatusFailed, stored.Status)
	assert.NotNil(t, stored.EndTime)

	steps := f.steps(t)
	require.Len(t, steps, 1)
	assert.Equal(t, models.StepStatusFailed, steps[0].Status)
}

func TestMonitor_Run_RepeatedRemoteErrors(t *testing.T) {
	f := newMonitorFixture(t, nil)
	f.monitor.maxErrors = 3
	f.monitor.outageTolerance = 2 * time.Second
	f.remote.On("Status", mock.Anything, "remote-1").
		Return(nil, &reana.RemoteError{Op: "Status", Err: errors.New("connection refused")}).Times(3)

	err := f.monitor.Run(t.Context(), queuedExecution())
	require.ErrorIs(t, err, ErrRemoteUnavailable)
	assert.True(t, reana.IsRemoteError(err))

	assert.Equal(t, models.ExecutionStatusFailed, f.execution(t).Status)
	f.remote.AssertNumberOfCalls(t, "Status", 3)
}

func TestMonitor_Run_ToleratesShortOutage(t *testing.T) {
	f := newMonitorFixture(t, nil)
	f.monitor.maxErrors = 3
	f.monitor.outageTolerance = time.Hour
	finished := reana.Status{Status: models.ExecutionStatusFinished, CurrentStep: "stepA", RawStatus: "finished"}

	f.remote.On("Status", mock.Anything, "remote-1").
		Return(nil, &reana.RemoteError{Op: "Status", StatusCode: 503}).Times(6)
	f.expectStatuses(running("stepA"), finished, finished)

	require.NoError(t, f.monitor.Run(t.Context(), queuedExecution()))

	assert.Equal(t, models.ExecutionStatusFinished, f.execution(t).Status)
	f.remote.AssertNumberOfCalls(t, "Status", 9)
}

func TestMonitor_Run_ErrorsResetAfterSuccess(t *testing.T) {
	f := newMonitorFixture(t, nil)
	f.monitor.maxErrors = 2
	remoteErr := &reana.RemoteError{Op: "Status", StatusCode: 503}
	finished := reana.Status{Status: models.ExecutionStatusFinished, CurrentStep: "stepA", RawStatus: "finished"}

	f.remote.On("Status", mock.Anything, "remote-1").Return(nil, remoteErr).Once()
	f.expectStatuses(running("stepA"))
	f.remote.On("Status", mock.Anything, "remote-1").Return(nil, remoteErr).Once()
	f.expectStatuses(finished, finished)

	require.NoError(t, f.monitor.Run(t.Context(), queuedExecution()))
	assert.Equal(t, models.ExecutionStatusFinished, f.execution(t).Status)
}

func TestMonitor_Run_ResumesOpenStep(t *testing.T) {
	f := newMonitorFixture(t, nil)

	require.NoError(t, f.store.ExecutionRepository().OpenStep(t.Context(), &models.ExecutionStep{
		ID: "step-a", ExecutionID: "exec-1", Name: "stepA", Status: models.StepStatusRunning, StartTime: t0,
	}))

	finished := reana.Status{Status: models.ExecutionStatusFinished, CurrentStep: "stepB", RawStatus: "finished"}
	f.expectStatuses(running("stepA"), running("stepB"), finished, finished)

	execution := queuedExecution()
	execution.Status = models.ExecutionStatusRunning
	require.NoError(t, f.monitor.Run(t.Context(), execution))

	steps := f.steps(t)
	require.Len(t, steps, 2)
	assert.Equal(t, "step-a", steps[0].ID)
	assert.Equal(t, models.StepStatusFinished, steps[0].Status)
	assert.Equal(t, "stepB", steps[1].Name)
}

func TestMonitor_Run_CancelledLeavesExecutionUnfinished(t *testing.T) {
	f := newMonitorFixture(t, nil)
	f.remote.On("Status", mock.Anything, "remote-1").Return(&reana.Status{Status: models.ExecutionStatusRunning, CurrentStep: "stepA", RawStatus: "running"}, nil).Maybe()

	ctx, cancel := context.WithCancel(t.Context())
	cancel()

	err := f.monitor.Run(ctx, queuedExecution())
	require.ErrorIs(t, err, context.Canceled)

	assert.Nil(t, f.execution(t).EndTime)
}

func TestMonitor_Run_PublishesLifecycleEvents(t *testing.T) {
	bus := &mocks.MockEventBus{}

	var (
		mu        sync.Mutex
		published []events.EventType
	)

	bus.On("Publish", mock.Anything, "exec-1", mock.Anything).Run(func(args mock.Arguments) {
		mu.Lock()
		defer mu.Unlock()

		published = append(published, args.Get(2).(interface{ GetType() events.EventType }).GetType())
	}).Return(nil)

	f := newMonitorFixture(t, bus)
	finished := reana.Status{Status: models.ExecutionStatusFinished, CurrentStep: "stepA", RawStatus: "finished"}
	f.expectStatuses(running("stepA"), finished, finished)

	require.NoError(t, f.monitor.Run(t.Context(), queuedExecution()))

	assert.Equal(t, []events.EventType{
		events.ExecutionStepStartedEvent,
		events.ExecutionStepFinishedEvent,
		events.ExecutionFinishedEvent,
	}, published)
}
