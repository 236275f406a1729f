package testmongo

import (
	"context"
	"testing"
	"time"

	"github.com/chirino/conversation-cache/internal/testutil"
	"github.com/testcontainers/testcontainers-go/modules/mongodb"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

const image = "mongo:7"

// Start runs a throwaway MongoDB and returns its connection URI once a
// client can ping it.
func Start(tb testing.TB) string {
	tb.Helper()
	testutil.RequireContainers(tb, image)

	ctx := context.Background()
	container, err := mongodb.Run(ctx, image)
	if err != nil {
		tb.Fatalf("start %s: %v", image, err)
	}
	testutil.TerminateOnCleanup(tb, container)

	uri, err := container.ConnectionString(ctx)
	if err != nil {
		tb.Fatalf("mongodb uri: %v", err)
	}

	client, err := mongo.Connect(options.Client().ApplyURI(uri))
	if err != nil {
		tb.Fatalf("mongodb client: %v", err)
	}
	defer func() { _ = client.Disconnect(context.Background()) }()
	if err := testutil.WaitUntilReady(ctx, 20*time.Second, func(ctx context.Context) error {
		return client.Ping(ctx, nil)
	}); err != nil {
		tb.Fatalf("mongodb: %v", err)
	}
	return uri
}
