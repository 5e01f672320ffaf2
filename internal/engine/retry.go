package engine

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"time"
)

// maxGuardedRetries caps retries for RetryClassMaybe errors.
const maxGuardedRetries = 2

// RetryPolicy defines retry behavior for model calls.
type RetryPolicy struct {
	MaxRetries   int           // Maximum number of retry attempts (0 = no retries)
	InitialDelay time.Duration // Initial delay before first retry
	MaxDelay     time.Duration // Maximum delay cap
	Multiplier   float64       // Exponential backoff multiplier (e.g., 2.0)
	Jitter       bool          // Whether to add random jitter to delays
}

// RetryConfig holds the retry policy for backend calls.
type RetryConfig struct {
	LLMPolicy RetryPolicy
}

// RetryableFunc is a function that can be retried.
type RetryableFunc[T any] func(ctx context.Context) (T, error)

// RetryWithPolicy executes fn until it succeeds, fails with a non-retryable
// error, or the policy runs out of attempts.
func RetryWithPolicy[T any](
	ctx context.Context,
	policy RetryPolicy,
	fn RetryableFunc[T],
	classifyError func(error) RetryClass,
	onRetry func(attempt int, delay time.Duration, err error),
) (T, error) {
	var zero T

	for attempt := 0; ; attempt++ {
		result, err := fn(ctx)
		if err == nil {
			return result, nil
		}
		if ctx.Err() != nil {
			return zero, err
		}

		class := classifyError(err)
		if class == RetryClassNonRetryable {
			return zero, err
		}
		if attempt >= policy.MaxRetries {
			return zero, NewRetryExhaustedError(err, attempt+1, policy.MaxRetries+1, false)
		}
		if class == RetryClassMaybe && attempt >= maxGuardedRetries {
			return zero, NewRetryExhaustedError(err, attempt+1, maxGuardedRetries+1, true)
		}

		delay := calculateDelay(policy, attempt, err)
		if onRetry != nil {
			onRetry(attempt+1, delay, err)
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return zero, fmt.Errorf("context cancelled during retry: %w", ctx.Err())
		case <-timer.C:
		}
	}
}

// calculateDelay computes the delay for a retry attempt.
// A Retry-After hint from the backend wins over exponential backoff, capped at MaxDelay.
func calculateDelay(policy RetryPolicy, attempt int, err error) time.Duration {
	if retryAfter := ExtractRetryAfter(err); retryAfter > 0 {
		if retryAfter > policy.MaxDelay {
			return policy.MaxDelay
		}
		return retryAfter
	}

	delay := float64(policy.InitialDelay) * math.Pow(policy.Multiplier, float64(attempt))
	if delay > float64(policy.MaxDelay) {
		delay = float64(policy.MaxDelay)
	}
	if policy.Jitter {
		delay += rand.Float64() * 0.2 * delay // 0-20%
	}
	return time.Duration(delay)
}

// RetryLLMCall wraps a model call with retry logic.
func RetryLLMCall(
	ctx context.Context,
	policy RetryPolicy,
	llm LLMClient,
	model string,
	messages []ChatMessage,
	opts ChatOptions,
	onRetry func(attempt int, delay time.Duration, err error),
) (LLMResponse, error) {
	return RetryWithPolicy(
		ctx,
		policy,
		func(ctx context.Context) (LLMResponse, error) {
			return llm.Chat(ctx, model, messages, opts)
		},
		ClassifyBackendError,
		onRetry,
	)
}
