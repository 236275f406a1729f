package testpg

import (
	"context"
	"testing"
	"time"

	"github.com/chirino/conversation-cache/internal/testutil"
	"github.com/jackc/pgx/v5"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

const image = "postgres:18-alpine"

// Start runs a throwaway Postgres holding an empty "conversations" database
// and returns its DSN.
func Start(tb testing.TB) string {
	tb.Helper()
	testutil.RequireContainers(tb, image)

	ctx := context.Background()
	container, err := postgres.Run(ctx, image,
		postgres.WithDatabase("conversations"),
		postgres.WithUsername("cache"),
		postgres.WithPassword("cache"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(time.Minute),
		),
	)
	if err != nil {
		tb.Fatalf("start %s: %v", image, err)
	}
	testutil.TerminateOnCleanup(tb, container)

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		tb.Fatalf("postgres dsn: %v", err)
	}
	err = testutil.WaitUntilReady(ctx, 20*time.Second, func(ctx context.Context) error {
		conn, err := pgx.Connect(ctx, dsn)
		if err != nil {
			return err
		}
		defer conn.Close(ctx)
		return conn.Ping(ctx)
	})
	if err != nil {
		tb.Fatalf("postgres: %v", err)
	}
	return dsn
}
