package lease

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

func setupRedis(t *testing.T) string {
	t.Helper()

	if testing.Short() {
		t.Skip("requires a redis container")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForLog("Ready to accept connections"),
		},
		Started: true,
	})
	require.NoError(t, err)

	t.Cleanup(func() {
		_ = container.Terminate(context.Background())
	})

	endpoint, err := container.Endpoint(ctx, "redis")
	require.NoError(t, err)

	return endpoint
}

func TestRedis_LeaseLifecycle(t *testing.T) {
	url := setupRedis(t)

	first, err := NewRedisFromURL(t.Context(), url)
	require.NoError(t, err)

	defer func() { _ = first.Close() }()

	second, err := NewRedisFromURL(t.Context(), url)
	require.NoError(t, err)

	defer func() { _ = second.Close() }()

	acquired, err := first.Acquire(t.Context(), "exec-1", time.Minute)
	require.NoError(t, err)
	assert.True(t, acquired)

	acquired, err = second.Acquire(t.Context(), "exec-1", time.Minute)
	require.NoError(t, err)
	assert.False(t, acquired)

	assert.ErrorIs(t, second.Refresh(t.Context(), "exec-1", time.Minute), ErrNotHeld)
	assert.ErrorIs(t, second.Release(t.Context(), "exec-1"), ErrNotHeld)

	require.NoError(t, first.Refresh(t.Context(), "exec-1", time.Minute))
	require.NoError(t, first.Release(t.Context(), "exec-1"))

	acquired, err = second.Acquire(t.Context(), "exec-1", time.Minute)
	require.NoError(t, err)
	assert.True(t, acquired)
}
