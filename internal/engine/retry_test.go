package engine

import (
	"context"
	"errors"
	"testing"
	"time"
)

func fastPolicy(maxRetries int) RetryPolicy {
	return RetryPolicy{
		MaxRetries:   maxRetries,
		InitialDelay: time.Millisecond,
		MaxDelay:     5 * time.Millisecond,
		Multiplier:   2.0,
	}
}

func TestRetryWithPolicy(t *testing.T) {
	tests := []struct {
		name      string
		errs      []error // returned by successive calls, then success
		retries   int
		wantCalls int
		wantErr   bool
		exhausted bool
	}{
		{
			name:      "succeeds first time",
			retries:   3,
			wantCalls: 1,
		},
		{
			name:      "retries rate limit then succeeds",
			errs:      []error{WrapBackendError("openai", errors.New("rate limit"), 429, ""), WrapBackendError("openai", errors.New("rate limit"), 429, "")},
			retries:   3,
			wantCalls: 3,
		},
		{
			name:      "non-retryable stops immediately",
			errs:      []error{WrapBackendError("openai", errors.New("invalid api key"), 401, "")},
			retries:   3,
			wantCalls: 1,
			wantErr:   true,
		},
		{
			name:      "exhausts retries",
			errs:      []error{errors.New("503 service unavailable"), errors.New("503 service unavailable"), errors.New("503 service unavailable")},
			retries:   2,
			wantCalls: 3,
			wantErr:   true,
			exhausted: true,
		},
		{
			name:      "guarded retries for maybe class",
			errs:      []error{errors.New("context deadline exceeded"), errors.New("context deadline exceeded"), errors.New("context deadline exceeded"), errors.New("context deadline exceeded")},
			retries:   5,
			wantCalls: 3,
			wantErr:   true,
			exhausted: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			calls := 0
			retried := 0
			got, err := RetryWithPolicy(context.Background(), fastPolicy(tt.retries),
				func(ctx context.Context) (string, error) {
					calls++
					if calls <= len(tt.errs) {
						return "", tt.errs[calls-1]
					}
					return "ok", nil
				},
				ClassifyBackendError,
				func(attempt int, delay time.Duration, err error) { retried++ },
			)

			if calls != tt.wantCalls {
				t.Errorf("calls = %d, want %d", calls, tt.wantCalls)
			}
			if retried != calls-1 {
				t.Errorf("onRetry called %d times, want %d", retried, calls-1)
			}
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if IsRetryExhausted(err) != tt.exhausted {
				t.Errorf("IsRetryExhausted(%v) = %v, want %v", err, IsRetryExhausted(err), tt.exhausted)
			}
			if !tt.wantErr && got != "ok" {
				t.Errorf("result = %q, want ok", got)
			}
		})
	}
}

func TestRetryWithPolicy_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	policy := RetryPolicy{MaxRetries: 3, InitialDelay: time.Hour, MaxDelay: time.Hour, Multiplier: 1}

	_, err := RetryWithPolicy(ctx, policy,
		func(ctx context.Context) (int, error) { return 0, errors.New("connection reset by peer") },
		ClassifyBackendError,
		func(int, time.Duration, error) { cancel() },
	)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}

func TestCalculateDelay(t *testing.T) {
	policy := RetryPolicy{InitialDelay: time.Second, MaxDelay: 10 * time.Second, Multiplier: 2}
	plain := errors.New("boom")

	if got := calculateDelay(policy, 0, plain); got != time.Second {
		t.Errorf("attempt 0 delay = %v", got)
	}
	if got := calculateDelay(policy, 2, plain); got != 4*time.Second {
		t.Errorf("attempt 2 delay = %v", got)
	}
	if got := calculateDelay(policy, 10, plain); got != 10*time.Second {
		t.Errorf("capped delay = %v", got)
	}

	hinted := WrapBackendError("anthropic", errors.New("overloaded"), 429, "3")
	if got := calculateDelay(policy, 0, hinted); got != 3*time.Second {
		t.Errorf("retry-after delay = %v", got)
	}
	huge := WrapBackendError("anthropic", errors.New("overloaded"), 429, "600")
	if got := calculateDelay(policy, 0, huge); got != policy.MaxDelay {
		t.Errorf("retry-after should be capped, got %v", got)
	}
}
