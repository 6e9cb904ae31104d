package main

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
	"time"

	"github.com/dukex/provtrack/pkg/lease"
	"github.com/dukex/provtrack/pkg/mocks"
	"github.com/dukex/provtrack/pkg/models"
	"github.com/dukex/provtrack/pkg/monitor"
	"github.com/dukex/provtrack/pkg/otelhelper"
	"github.com/dukex/provtrack/pkg/persistence/file"
	"github.com/dukex/provtrack/pkg/reana"
	"github.com/dukex/provtrack/pkg/web"
	"github.com/gofiber/fiber/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var secret = []byte("api-test-secret")

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func setupTestApp(t *testing.T) (*fiber.App, *file.Persistence) {
	t.Helper()

	store := file.NewPersistence(t.TempDir())
	api := NewAPI(discardLogger(), store, &mocks.MockExecutionService{}, nil, otelhelper.NewNoopTracer(), secret)

	return api.App(), store
}

func send(t *testing.T, app *fiber.App, req *http.Request) (int, []byte) {
	t.Helper()

	resp, err := app.Test(req)
	require.NoError(t, err)

	defer func() {
		err := resp.Body.Close()
		if err != nil {
			t.Logf("Failed to close response body: %v", err)
		}
	}()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	return resp.StatusCode, body
}

func authorized(t *testing.T, method, target string, body any) *http.Request {
	t.Helper()

	var reader io.Reader

	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)

		reader = bytes.NewReader(data)
	}

	req := httptest.NewRequest(method, target, reader)
	req.Header.Set("Content-Type", "application/json")

	token, err := web.SignToken(secret, models.Identity{Username: "alice", Group: "lab"})
	require.NoError(t, err)

	req.Header.Set("Authorization", "Bearer "+token)

	return req
}

func TestAPI_RootEndpoint(t *testing.T) {
	app, _ := setupTestApp(t)

	status, body := send(t, app, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "provtrack API", string(body))
}

func TestAPI_HealthCheck(t *testing.T) {
	app, _ := setupTestApp(t)

	status, body := send(t, app, httptest.NewRequest(http.MethodGet, "/livez", nil))
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "OK", string(body))

	status, body = send(t, app, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, status)
	assert.Contains(t, string(body), `"healthy"`)
}

func TestAPI_RequiresToken(t *testing.T) {
	app, _ := setupTestApp(t)

	status, body := send(t, app, httptest.NewRequest(http.MethodGet, "/executions", nil))

	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Contains(t, string(body), `"error_code":"unauthorized"`)
}

func TestAPI_ListExecutions_Empty(t *testing.T) {
	app, _ := setupTestApp(t)

	status, body := send(t, app, authorized(t, http.MethodGet, "/executions", nil))
	require.Equal(t, http.StatusOK, status)

	var env struct {
		Success bool               `json:"success"`
		Data    []models.Execution `json:"data"`
	}
	require.NoError(t, json.Unmarshal(body, &env))
	assert.True(t, env.Success)
	assert.Empty(t, env.Data)
}

func TestAPI_SubmitMonitorsInProcess(t *testing.T) {
	store := file.NewPersistence(t.TempDir())
	remote := &mocks.MockExecutionService{}
	tracer := otelhelper.NewNoopTracer()

	m := monitor.NewMonitor(store.ExecutionRepository(), remote, nil, tracer, discardLogger(), monitor.Config{PollInterval: monitor.MinPollInterval})
	manager := monitor.NewManager(m, store.ExecutionRepository(), lease.NewMemory(), discardLogger())
	t.Cleanup(manager.Shutdown)

	app := NewAPI(discardLogger(), store, remote, nil, tracer, secret).WithMonitors(manager).App()

	content, err := os.ReadFile(filepath.Join("testdata", "two_step.yaml"))
	require.NoError(t, err)

	status, body := send(t, app, authorized(t, http.MethodPost, "/specs", map[string]any{
		"name": "two-step", "version": "1", "content": string(content), "inputs": map[string]string{"message": "hi"},
	}))
	require.Equal(t, http.StatusCreated, status, string(body))

	var registered struct {
		Data models.WorkflowSpec `json:"data"`
	}
	require.NoError(t, json.Unmarshal(body, &registered))

	remote.On("Submit", mock.Anything, "two-step:1", mock.Anything, mock.Anything).Return(&reana.Handle{ID: "remote-1"}, nil)
	remote.On("Upload", mock.Anything, "remote-1", mock.Anything, mock.Anything).Return(nil)
	remote.On("Start", mock.Anything, "remote-1").Return(&reana.Run{ID: "remote-1", Name: "two-step", RunNumber: 1}, nil)
	remote.On("Status", mock.Anything, "remote-1").Return(&reana.Status{
		Status: models.ExecutionStatusFinished, RawStatus: "finished",
	}, nil)

	status, body = send(t, app, authorized(t, http.MethodPost, "/executions", map[string]string{"spec_id": registered.Data.ID}))
	require.Equal(t, http.StatusCreated, status, string(body))

	var submitted struct {
		Data models.Execution `json:"data"`
	}
	require.NoError(t, json.Unmarshal(body, &submitted))

	require.Eventually(t, func() bool {
		execution, err := store.ExecutionRepository().GetByID(t.Context(), submitted.Data.ID)

		return err == nil && execution.Status == models.ExecutionStatusFinished
	}, 5*time.Second, 10*time.Millisecond)

	manager.Wait()
	assert.Empty(t, manager.Running())
}
