package providers

import (
	"context"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// RetryPolicy bounds retries of transient provider failures. The loop stops
// at whichever comes first: the attempt budget or the context deadline.
type RetryPolicy struct {
	// MaxAttempts is the total number of calls, including the first.
	MaxAttempts int

	// InitialInterval is the base backoff delay before the second attempt.
	InitialInterval time.Duration

	// RandomizationFactor is the jitter applied to each delay (0.25 = ±25%).
	RandomizationFactor float64
}

// DefaultRetryPolicy matches the operational defaults: 3 attempts, 500ms
// base, ±25% jitter.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:         3,
		InitialInterval:     500 * time.Millisecond,
		RandomizationFactor: 0.25,
	}
}

// InvokeWithRetry calls the LLM, retrying transient failures with
// exponential backoff. Permanent failures and context expiry return
// immediately.
func InvokeWithRetry(ctx context.Context, client LLMClient, req *LLMRequest, policy RetryPolicy) (*LLMResponse, error) {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = policy.InitialInterval
	bo.RandomizationFactor = policy.RandomizationFactor

	maxRetries := uint64(0)
	if policy.MaxAttempts > 1 {
		maxRetries = uint64(policy.MaxAttempts - 1)
	}

	var resp *LLMResponse
	attempt := 0
	operation := func() error {
		attempt++
		r, err := client.Invoke(ctx, req)
		if err != nil {
			if !IsTransient(err) {
				return backoff.Permanent(err)
			}
			slog.WarnContext(ctx, "LLM call failed, retrying",
				"provider", client.Name(),
				"attempt", attempt,
				"max_attempts", policy.MaxAttempts,
				"error", err)
			return err
		}
		resp = r
		return nil
	}

	err := backoff.Retry(operation, backoff.WithContext(backoff.WithMaxRetries(bo, maxRetries), ctx))
	if err != nil {
		return nil, err
	}
	return resp, nil
}
