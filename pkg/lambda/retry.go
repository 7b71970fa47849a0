package lambda

import (
	"context"
	"time"

	"github.com/avast/retry-go"
)

// RetryPolicy is the bounded backoff schedule applied to every remote
// call that can fail transiently. One policy is shared across the forcer
// and the sampling loop so the schedule lives in a single place.
type RetryPolicy struct {
	Attempts  uint
	BaseDelay time.Duration
	MaxDelay  time.Duration
}

// DefaultRetryPolicy allows five retries after the first attempt, with
// sleeps of 1, 2, 4, 8 and 16 seconds between attempts.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		Attempts:  6,
		BaseDelay: time.Second,
		MaxDelay:  16 * time.Second,
	}
}

// Options expands the policy into retry combinator options. retryIf
// decides which errors earn another attempt; onRetry observes each
// scheduled retry and may be nil. Backoff sleeps abort when ctx is
// canceled.
func (p RetryPolicy) Options(ctx context.Context, retryIf func(error) bool, onRetry func(uint, error)) []retry.Option {
	if onRetry == nil {
		onRetry = func(uint, error) {}
	}

	return []retry.Option{
		retry.Attempts(p.Attempts),
		retry.Delay(p.BaseDelay),
		retry.MaxDelay(p.MaxDelay),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
		retry.Context(ctx),
		retry.RetryIf(retryIf),
		retry.OnRetry(onRetry),
	}
}
