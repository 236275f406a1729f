package testredis

import (
	"context"
	"testing"
	"time"

	"github.com/chirino/conversation-cache/internal/testutil"
	"github.com/redis/go-redis/v9"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

const image = "redis:7-alpine"

// Start runs a throwaway Redis and returns a redis:// URL for it.
func Start(tb testing.TB) string {
	tb.Helper()
	testutil.RequireContainers(tb, image)

	ctx := context.Background()
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        image,
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForListeningPort("6379/tcp").WithStartupTimeout(time.Minute),
		},
		Started: true,
	})
	if err != nil {
		tb.Fatalf("start %s: %v", image, err)
	}
	testutil.TerminateOnCleanup(tb, container)

	endpoint, err := container.PortEndpoint(ctx, "6379/tcp", "redis")
	if err != nil {
		tb.Fatalf("redis endpoint: %v", err)
	}

	opts, err := redis.ParseURL(endpoint)
	if err != nil {
		tb.Fatalf("parse %s: %v", endpoint, err)
	}
	client := redis.NewClient(opts)
	defer client.Close()
	if err := testutil.WaitUntilReady(ctx, 10*time.Second, func(ctx context.Context) error {
		return client.Ping(ctx).Err()
	}); err != nil {
		tb.Fatalf("redis: %v", err)
	}
	return endpoint
}

