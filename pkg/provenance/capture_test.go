package provenance

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"testing"
	"time"

	"github.com/dukex/provtrack/pkg/mocks"
	"github.com/dukex/provtrack/pkg/models"
	"github.com/dukex/provtrack/pkg/otelhelper"
	"github.com/dukex/provtrack/pkg/persistence"
	"github.com/dukex/provtrack/pkg/persistence/file"
	"github.com/dukex/provtrack/pkg/reana"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var lab = models.Identity{Username: "alice", Group: "lab"}

type captureFixture struct {
	store    *file.Persistence
	remote   *mocks.MockExecutionService
	bus      *mocks.MockEventBus
	capturer *Capturer
}

func newCaptureFixture(t *testing.T, status models.ExecutionStatus) *captureFixture {
	t.Helper()

	ctx := t.Context()
	store := file.NewPersistence(t.TempDir())

	require.NoError(t, store.SpecRepository().Save(ctx, &models.WorkflowSpec{
		ID: "spec-1", Name: "two-step", Version: "1", Content: string(readSpec(t, "two_step.yaml")),
		Username: "alice", Group: "lab", CreatedAt: baseTime,
	}))

	execution := finishedExecution()
	execution.EndTime = nil
	execution.Status = models.ExecutionStatusRunning
	require.NoError(t, store.ExecutionRepository().Create(ctx, execution))

	for _, step := range []*models.ExecutionStep{
		closedStep("stepA", time.Minute, 2*time.Minute),
		closedStep("stepB", 3*time.Minute, 5*time.Minute),
	} {
		end := step.EndTime
		step.EndTime = nil
		require.NoError(t, store.ExecutionRepository().OpenStep(ctx, step))

		step.EndTime = end
		require.NoError(t, store.ExecutionRepository().CloseStep(ctx, step))
	}

	if status.IsTerminal() {
		require.NoError(t, store.ExecutionRepository().Finish(ctx, execution.ID, status, baseTime.Add(10*time.Minute)))
	}

	fixture := &captureFixture{
		store:  store,
		remote: &mocks.MockExecutionService{},
		bus:    &mocks.MockEventBus{},
	}
	fixture.capturer = NewCapturer(
		store, fixture.remote, fixture.bus,
		otelhelper.NewNoopTracer(), slog.New(slog.NewTextHandler(io.Discard, nil)),
	)

	return fixture
}

func (f *captureFixture) expectWorkspace(mapping []byte) {
	f.remote.On("ListArtifacts", mock.Anything, "remote-1").Return(twoStepArtifacts(), nil)

	if mapping == nil {
		f.remote.On("Download", mock.Anything, "remote-1", "outputs/map.txt").
			Return(nil, &reana.RemoteError{Op: "Download", StatusCode: http.StatusNotFound})
	} else {
		f.remote.On("Download", mock.Anything, "remote-1", "outputs/map.txt").Return(mapping, nil)
	}

	f.remote.On("Download", mock.Anything, "remote-1", "inputs.json").Return([]byte(`{"message": "hi"}`), nil)
}

func (f *captureFixture) captured(ctx context.Context, t *testing.T) bool {
	t.Helper()

	exists, err := f.store.ProvenanceRepository().Exists(ctx, "exec-1")
	require.NoError(t, err)

	return exists
}

func TestCapture_FinishedExecution(t *testing.T) {
	f := newCaptureFixture(t, models.ExecutionStatusFinished)
	f.expectWorkspace([]byte("out,out.txt\nresult,result.csv\n"))
	f.bus.On("Publish", mock.Anything, "exec-1", mock.AnythingOfType("events.ProvenanceCaptured")).Return(nil).Once()

	prov, err := f.capturer.Capture(t.Context(), lab, "exec-1")
	require.NoError(t, err)
	assert.Len(t, prov.Entities, 5)
	assert.Len(t, prov.Activities, 3)

	stored, err := f.store.ProvenanceRepository().Load(t.Context(), "exec-1")
	require.NoError(t, err)
	assert.Equal(t, prov.Entities, stored.Entities)

	stepB := activityNamed(stored, "stepB")
	require.NotNil(t, stepB)
	assert.Equal(t, baseTime.Add(3*time.Minute), stepB.StartTime)

	f.bus.AssertExpectations(t)
}

func TestCapture_SecondCaptureIsRejected(t *testing.T) {
	f := newCaptureFixture(t, models.ExecutionStatusFinished)
	f.expectWorkspace([]byte("out,out.txt\nresult,result.csv\n"))
	f.bus.On("Publish", mock.Anything, "exec-1", mock.Anything).Return(nil).Once()

	_, err := f.capturer.Capture(t.Context(), lab, "exec-1")
	require.NoError(t, err)

	_, err = f.capturer.Capture(t.Context(), lab, "exec-1")
	assert.ErrorIs(t, err, ErrAlreadyCaptured)
	assert.True(t, persistence.IsAlreadyCaptured(err))

	f.remote.AssertNumberOfCalls(t, "ListArtifacts", 1)
}

func TestCapture_RunningExecutionIsRejected(t *testing.T) {
	f := newCaptureFixture(t, models.ExecutionStatusRunning)

	_, err := f.capturer.Capture(t.Context(), lab, "exec-1")
	assert.ErrorIs(t, err, ErrExecutionNotFinished)
	assert.False(t, f.captured(t.Context(), t))

	f.remote.AssertNotCalled(t, "ListArtifacts", mock.Anything, mock.Anything)
}

func TestCapture_FailedExecutionIsRejected(t *testing.T) {
	f := newCaptureFixture(t, models.ExecutionStatusFailed)

	_, err := f.capturer.Capture(t.Context(), lab, "exec-1")
	assert.ErrorIs(t, err, ErrExecutionNotFinished)
	assert.False(t, f.captured(t.Context(), t))
}

func TestCapture_OtherGroupSeesNotFound(t *testing.T) {
	f := newCaptureFixture(t, models.ExecutionStatusFinished)

	_, err := f.capturer.Capture(t.Context(), models.Identity{Username: "mallory", Group: "other"}, "exec-1")
	assert.ErrorIs(t, err, ErrExecutionNotFound)
}

func TestCapture_MissingMappingFileWritesNothing(t *testing.T) {
	f := newCaptureFixture(t, models.ExecutionStatusFinished)
	f.expectWorkspace(nil)

	_, err := f.capturer.Capture(t.Context(), lab, "exec-1")
	assert.True(t, IsResolutionError(err))
	assert.False(t, f.captured(t.Context(), t))

	f.bus.AssertNotCalled(t, "Publish", mock.Anything, mock.Anything, mock.Anything)
}

func TestCapture_UnresolvableOutputWritesNothing(t *testing.T) {
	f := newCaptureFixture(t, models.ExecutionStatusFinished)
	f.expectWorkspace([]byte("out,out.txt\n"))

	_, err := f.capturer.Capture(t.Context(), lab, "exec-1")
	assert.True(t, IsResolutionError(err))
	assert.False(t, f.captured(t.Context(), t))
}

func TestCapture_RemoteFailure(t *testing.T) {
	f := newCaptureFixture(t, models.ExecutionStatusFinished)
	f.remote.On("ListArtifacts", mock.Anything, "remote-1").
		Return(nil, &reana.RemoteError{Op: "ListArtifacts", StatusCode: http.StatusBadGateway})

	_, err := f.capturer.Capture(t.Context(), lab, "exec-1")
	assert.True(t, reana.IsRemoteError(err))
	assert.False(t, IsResolutionError(err))
	assert.False(t, f.captured(t.Context(), t))
}
