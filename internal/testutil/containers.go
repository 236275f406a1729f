// Package testutil holds helpers shared by the container-backed test
// packages under it.
package testutil

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/testcontainers/testcontainers-go"
)

// RequireContainers skips tb in -short mode, where no Docker daemon is assumed.
func RequireContainers(tb testing.TB, image string) {
	tb.Helper()
	if testing.Short() {
		tb.Skipf("skipping %s container in short mode", image)
	}
}

// TerminateOnCleanup stops c when tb finishes.
func TerminateOnCleanup(tb testing.TB, c testcontainers.Container) {
	tb.Helper()
	tb.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := c.Terminate(ctx); err != nil {
			tb.Errorf("terminate container: %v", err)
		}
	})
}

// WaitUntilReady pings with exponential backoff until ping succeeds or
// timeout passes. Container log and port waits fire before the server
// accepts real client sessions, so tests ping with the real driver.
func WaitUntilReady(ctx context.Context, timeout time.Duration, ping func(ctx context.Context) error) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 100 * time.Millisecond
	b.MaxInterval = time.Second
	b.MaxElapsedTime = timeout

	attempts := 0
	err := backoff.Retry(func() error {
		attempts++
		attemptCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()
		return ping(attemptCtx)
	}, backoff.WithContext(b, ctx))
	if err != nil {
		return fmt.Errorf("not ready after %d attempts: %w", attempts, err)
	}
	return nil
}
