package lifecycle

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/hulrap/TradingBot-sub016/pkg/interfaces"
)

// RetryPolicy bounds the retry decorator applied to relay and price calls
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
}

// Retry runs fn with exponential backoff up to the policy's attempt count.
// Relay rejections and open-circuit errors are terminal and abort the retry
// loop immediately; everything else is treated as transient.
func Retry(ctx context.Context, policy RetryPolicy, fn func() error) error {
	attempts := policy.MaxAttempts
	if attempts <= 0 {
		attempts = 1
	}

	bo := backoff.NewExponentialBackOff()
	if policy.BaseDelay > 0 {
		bo.InitialInterval = policy.BaseDelay
	}
	bo.MaxElapsedTime = 0

	wrapped := func() error {
		err := fn()
		if err == nil {
			return nil
		}
		if errors.Is(err, interfaces.ErrRelayRejected) || errors.Is(err, ErrCircuitOpen) {
			return backoff.Permanent(err)
		}
		return err
	}

	return backoff.Retry(wrapped, backoff.WithMaxRetries(backoff.WithContext(bo, ctx), uint64(attempts-1)))
}
