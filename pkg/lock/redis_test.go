package lock

import (
	"context"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

func setupRedis(t *testing.T) *redis.Client {
	t.Helper()

	if testing.Short() {
		t.Skip("skipping redis integration test in short mode")
	}

	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForListeningPort("6379/tcp"),
		},
		Started: true,
	})
	require.NoError(t, err)

	t.Cleanup(func() {
		require.NoError(t, container.Terminate(ctx))
	})

	endpoint, err := container.Endpoint(ctx, "")
	require.NoError(t, err)

	client := redis.NewClient(&redis.Options{Addr: endpoint})
	t.Cleanup(func() { _ = client.Close() })

	return client
}

func TestRedis_AcquireRelease(t *testing.T) {
	client := setupRedis(t)
	ctx := context.Background()
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))

	first := NewRedis(client, logger)
	second := NewRedis(client, logger)

	release, err := first.Acquire(ctx, "poller", time.Minute)
	require.NoError(t, err)

	_, err = second.Acquire(ctx, "poller", time.Minute)
	require.ErrorIs(t, err, ErrNotAcquired)

	require.NoError(t, release(ctx))

	releaseSecond, err := second.Acquire(ctx, "poller", time.Minute)
	require.NoError(t, err)

	// Releasing twice leaves the key alone once it belongs to someone else.
	require.NoError(t, release(ctx))

	exists, err := client.Exists(ctx, "flows:lock:poller").Result()
	require.NoError(t, err)
	assert.Equal(t, int64(1), exists)

	require.NoError(t, releaseSecond(ctx))
}
