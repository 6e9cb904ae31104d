package web_test

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/dukex/provtrack/pkg/mocks"
	"github.com/dukex/provtrack/pkg/models"
	"github.com/dukex/provtrack/pkg/otelhelper"
	"github.com/dukex/provtrack/pkg/persistence/file"
	"github.com/dukex/provtrack/pkg/provenance"
	"github.com/dukex/provtrack/pkg/provenance/dot"
	"github.com/dukex/provtrack/pkg/reana"
	"github.com/dukex/provtrack/pkg/services"
	"github.com/dukex/provtrack/pkg/testutil"
	"github.com/dukex/provtrack/pkg/web"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var (
	secret  = []byte("test-secret")
	lab     = models.Identity{Username: "alice", Group: "lab"}
	outside = models.Identity{Username: "mallory", Group: "elsewhere"}
)

func readSpec(t *testing.T, name string) string {
	t.Helper()

	data, err := os.ReadFile(filepath.Join("testdata", name))
	require.NoError(t, err)

	return string(data)
}

type envelope struct {
	Success   bool            `json:"success"`
	Message   string          `json:"message"`
	Data      json.RawMessage `json:"data"`
	ErrorCode string          `json:"error_code"`
}

type testAPI struct {
	app    *fiber.App
	store  *file.Persistence
	remote *mocks.MockExecutionService
}

func setupTestApp(t *testing.T) *testAPI {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	tracer := otelhelper.NewNoopTracer()
	store := file.NewPersistence(t.TempDir())
	remote := &mocks.MockExecutionService{}

	executions := services.NewExecutions(store, remote, nil, nil, tracer, logger)
	capturer := provenance.NewCapturer(store, remote, nil, tracer, logger)
	provenanceService := services.NewProvenance(store, capturer, dot.NewRenderer(""), tracer, logger)

	handlers := web.NewAPIHandlers(
		executions,
		provenanceService,
		services.NewSpecs(store),
		services.NewHealth(store),
		validator.New(validator.WithRequiredStructEnabled()),
		logger,
	)

	return &testAPI{app: web.NewApp(handlers, secret), store: store, remote: remote}
}

func (a *testAPI) do(t *testing.T, method, target string, identity *models.Identity, body any) (*http.Response, envelope) {
	t.Helper()

	var reader io.Reader

	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)

		reader = bytes.NewReader(data)
	}

	req := httptest.NewRequest(method, target, reader)
	req.Header.Set("Content-Type", "application/json")

	if identity != nil {
		token, err := web.SignToken(secret, *identity)
		require.NoError(t, err)

		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := a.app.Test(req)
	require.NoError(t, err)

	defer func() {
		err := resp.Body.Close()
		if err != nil {
			t.Logf("Failed to close response body: %v", err)
		}
	}()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	var env envelope
	if json.Valid(raw) {
		require.NoError(t, json.Unmarshal(raw, &env))
	} else {
		env.Data = raw
	}

	return resp, env
}

func (a *testAPI) storeExecution(t *testing.T, status models.ExecutionStatus) *models.Execution {
	t.Helper()

	execution := testutil.CreateTestExecution(testutil.WithStatus(status))
	require.NoError(t, a.store.ExecutionRepository().Create(t.Context(), execution))

	return execution
}

func (a *testAPI) storeProvenance(t *testing.T) {
	t.Helper()

	execution := a.storeExecution(t, models.ExecutionStatusFinished)
	require.NoError(t, a.store.ProvenanceRepository().SaveProvenance(t.Context(), testutil.CreateTestProvenance(execution)))
}

func TestAPI_OpenEndpoints(t *testing.T) {
	api := setupTestApp(t)

	resp, _ := api.do(t, http.MethodGet, "/livez", nil, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, env := api.do(t, http.MethodGet, "/health", nil, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, env.Success)
}

func TestAPI_Authentication(t *testing.T) {
	api := setupTestApp(t)

	tests := []struct {
		name   string
		header string
	}{
		{name: "no header"},
		{name: "not bearer", header: "Basic abc"},
		{name: "garbage token", header: "Bearer not-a-token"},
		{name: "wrong secret", header: "Bearer " + mustSign(t, []byte("other"), jwt.MapClaims{"sub": "alice", "group": "lab"})},
		{name: "missing group", header: "Bearer " + mustSign(t, secret, jwt.MapClaims{"sub": "alice"})},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/executions", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}

			resp, err := api.app.Test(req)
			require.NoError(t, err)

			defer func() {
				_ = resp.Body.Close()
			}()

			assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
		})
	}
}

func mustSign(t *testing.T, key []byte, claims jwt.MapClaims) string {
	t.Helper()

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(key)
	require.NoError(t, err)

	return token
}

func TestAPI_RegisterAndSubmit(t *testing.T) {
	api := setupTestApp(t)

	resp, env := api.do(t, http.MethodPost, "/specs", &lab, map[string]any{
		"name": "two-step", "version": "1", "content": readSpec(t, "two_step.yaml"), "inputs": map[string]string{"message": "hi"},
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode, env.Message)

	var spec models.WorkflowSpec
	require.NoError(t, json.Unmarshal(env.Data, &spec))
	assert.Equal(t, "lab", spec.Group)

	resp, env = api.do(t, http.MethodGet, "/specs/"+spec.ID, &outside, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "not_found", env.ErrorCode)

	api.remote.On("Submit", mock.Anything, "two-step:1", mock.Anything, mock.Anything).Return(&reana.Handle{ID: "remote-9"}, nil)
	api.remote.On("Upload", mock.Anything, "remote-9", services.RuntimeInputsFile, mock.Anything).Return(nil)
	api.remote.On("Start", mock.Anything, "remote-9").Return(&reana.Run{ID: "remote-9", Name: "two-step", RunNumber: 1}, nil)

	resp, env = api.do(t, http.MethodPost, "/executions", &lab, map[string]string{"spec_id": spec.ID})
	require.Equal(t, http.StatusCreated, resp.StatusCode, env.Message)
	assert.True(t, env.Success)

	var execution models.Execution
	require.NoError(t, json.Unmarshal(env.Data, &execution))
	assert.Equal(t, models.ExecutionStatusQueued, execution.Status)

	resp, env = api.do(t, http.MethodGet, "/executions", &lab, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var listed []models.Execution
	require.NoError(t, json.Unmarshal(env.Data, &listed))
	assert.Len(t, listed, 1)
}

func TestAPI_SubmitValidation(t *testing.T) {
	api := setupTestApp(t)

	resp, env := api.do(t, http.MethodPost, "/executions", &lab, map[string]string{})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.False(t, env.Success)
	assert.Equal(t, "bad_request", env.ErrorCode)

	resp, env = api.do(t, http.MethodPost, "/executions", &lab, map[string]string{"spec_id": "missing"})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "not_found", env.ErrorCode)
}

func TestAPI_GetAndDeleteExecution(t *testing.T) {
	api := setupTestApp(t)
	api.storeExecution(t, models.ExecutionStatusRunning)

	resp, env := api.do(t, http.MethodGet, "/executions/exec-1", &lab, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(env.Data), `"steps"`)

	resp, _ = api.do(t, http.MethodGet, "/executions/exec-1", &outside, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	api.remote.On("Delete", mock.Anything, "remote-1").Return(&reana.RemoteError{Op: "Delete", StatusCode: 502, Message: "bad gateway"}).Once()

	resp, env = api.do(t, http.MethodDelete, "/executions/exec-1", &lab, nil)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	assert.Equal(t, "remote_error", env.ErrorCode)

	api.remote.On("Delete", mock.Anything, "remote-1").Return(nil).Once()

	resp, _ = api.do(t, http.MethodDelete, "/executions/exec-1", &lab, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestAPI_CaptureRejectsRunningExecution(t *testing.T) {
	api := setupTestApp(t)
	api.storeExecution(t, models.ExecutionStatusRunning)

	resp, env := api.do(t, http.MethodPost, "/provenance/exec-1/capture", &lab, nil)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, "execution_not_finished", env.ErrorCode)

	captured, err := api.store.ProvenanceRepository().Exists(t.Context(), "exec-1")
	require.NoError(t, err)
	assert.False(t, captured)

	resp, _ = api.do(t, http.MethodPost, "/provenance/exec-1/capture", &outside, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestAPI_CaptureTwiceConflicts(t *testing.T) {
	api := setupTestApp(t)
	api.storeProvenance(t)

	resp, env := api.do(t, http.MethodPost, "/provenance/exec-1/capture", &lab, nil)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, "already_captured", env.ErrorCode)
}

func TestAPI_ProvenanceDocumentAndDrawing(t *testing.T) {
	api := setupTestApp(t)
	api.storeProvenance(t)

	resp, env := api.do(t, http.MethodGet, "/provenance/exec-1", &lab, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(env.Data), "out.txt")

	resp, env = api.do(t, http.MethodGet, "/provenance/exec-1/draw?format=dot", &lab, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/vnd.graphviz", resp.Header.Get("Content-Type"))
	assert.Contains(t, string(env.Data), "digraph")

	resp, env = api.do(t, http.MethodGet, "/provenance/exec-1/draw?format=gif", &lab, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "bad_request", env.ErrorCode)

	resp, _ = api.do(t, http.MethodGet, "/provenance/exec-1/draw?format=dot", &outside, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestAPI_UnknownRouteIsProblem(t *testing.T) {
	api := setupTestApp(t)

	resp, env := api.do(t, http.MethodGet, "/nothing-here", &lab, nil)

	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "application/problem+json", resp.Header.Get("Content-Type"))
	assert.False(t, env.Success)
}
