package testhelpers

import (
	"context"
	"testing"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// TestRedis is a Redis server running in a container
type TestRedis struct {
	Container testcontainers.Container
	Client    *redis.Client
	Addr      string
}

// NewTestRedis starts redis:7-alpine and returns a connected client.
// Cleanup is registered with t.
func NewTestRedis(t *testing.T) *TestRedis {
	t.Helper()
	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForLog("Ready to accept connections"),
		},
		Started: true,
	})
	require.NoError(t, err, "failed to start redis container")

	addr, err := container.Endpoint(ctx, "")
	require.NoError(t, err, "failed to get redis endpoint")

	client := redis.NewClient(&redis.Options{Addr: addr})
	require.NoError(t, client.Ping(ctx).Err(), "failed to ping redis")

	tr := &TestRedis{Container: container, Client: client, Addr: addr}
	t.Cleanup(func() {
		_ = client.Close()
		_ = container.Terminate(context.Background())
	})
	return tr
}

// Stop pauses the server so callers can observe cache-unavailable behaviour
func (tr *TestRedis) Stop(t *testing.T) {
	t.Helper()
	require.NoError(t, tr.Container.Stop(context.Background(), nil))
}
