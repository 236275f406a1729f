package store

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/charmbracelet/log"
)

const (
	retryInterval   = 50 * time.Millisecond
	retryMaxElapsed = 5 * time.Second
)

// Retry runs op until it succeeds, fails with something other than an
// UnavailableError, or the retry budget runs out.
func Retry[T any](ctx context.Context, op func() (T, error)) (T, error) {
	b := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(retryInterval), uint64(retryMaxElapsed/retryInterval)),
		ctx,
	)
	attempt := 0
	return backoff.RetryWithData(func() (T, error) {
		attempt++
		v, err := op()
		if err == nil {
			return v, nil
		}
		if IsUnavailable(err) {
			log.Debug("Store unavailable, retrying", "attempt", attempt, "err", err)
			return v, err
		}
		return v, backoff.Permanent(err)
	}, b)
}

// RetryErr is Retry for operations without a result value.
func RetryErr(ctx context.Context, op func() error) error {
	_, err := Retry(ctx, func() (struct{}, error) {
		return struct{}{}, op()
	})
	return err
}
