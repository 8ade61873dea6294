package agent

import (
	"context"
	"time"
)

// RetryAgent wraps an Agent with retry-with-backoff: each failed attempt
// waits longer than the last, and the final attempt's error is the one
// returned.
type RetryAgent struct {
	inner      Agent
	maxRetries int
	retryDelay func(attempt int) time.Duration
}

// NewRetryAgent wraps inner with up to maxRetries additional attempts on
// failure, using exponential backoff starting at 100ms.
func NewRetryAgent(inner Agent, maxRetries int) *RetryAgent {
	return &RetryAgent{
		inner:      inner,
		maxRetries: maxRetries,
		retryDelay: func(attempt int) time.Duration {
			return 100 * time.Millisecond * (1 << attempt)
		},
	}
}

func (a *RetryAgent) Regenerate(ctx context.Context, spec RegenerationSpec) (*RegenerationResult, error) {
	var lastErr error
	for attempt := 0; attempt <= a.maxRetries; attempt++ {
		result, err := a.inner.Regenerate(ctx, spec)
		if err == nil {
			return result, nil
		}
		lastErr = err

		if ctx.Err() != nil {
			break
		}
		if attempt < a.maxRetries {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(a.retryDelay(attempt)):
			}
		}
	}
	return nil, lastErr
}
