// Package engine provides the two-agent session loop and its shared types.
// This file contains error classification and handling.

package engine

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// RetryClass indicates whether an error should be retried.
type RetryClass string

const (
	RetryClassRetryable    RetryClass = "retryable"     // Definitely retry
	RetryClassMaybe        RetryClass = "maybe"         // Retry with caution (limited attempts)
	RetryClassNonRetryable RetryClass = "non_retryable" // Never retry
)

// BackendError wraps a model backend failure with classification metadata.
type BackendError struct {
	Err         error
	Class       RetryClass
	Provider    string // "openai", "azure", "anthropic"
	HTTPStatus  int    // HTTP status code if applicable
	RetryAfter  string // Retry-After header value if present
	IsRateLimit bool
	IsTimeout   bool
	IsNetwork   bool
	IsAuth      bool
	IsQuota     bool
}

func (e *BackendError) Error() string {
	prefix := "backend error"
	if e.Provider != "" {
		prefix = e.Provider + " backend error"
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", prefix, e.Err)
	}
	return fmt.Sprintf("%s: %s", prefix, e.Class)
}

func (e *BackendError) Unwrap() error {
	return e.Err
}

// WrapBackendError wraps a provider error with classification metadata.
func WrapBackendError(provider string, err error, httpStatus int, retryAfter string) error {
	if err == nil {
		return nil
	}
	be := &BackendError{
		Err:         err,
		Provider:    provider,
		HTTPStatus:  httpStatus,
		RetryAfter:  retryAfter,
		IsRateLimit: httpStatus == http.StatusTooManyRequests,
		IsTimeout:   httpStatus == http.StatusGatewayTimeout || httpStatus == http.StatusRequestTimeout,
		IsNetwork:   httpStatus == 0 || httpStatus >= 500,
		IsAuth:      httpStatus == http.StatusUnauthorized || httpStatus == http.StatusForbidden,
		IsQuota:     httpStatus == http.StatusPaymentRequired,
	}
	be.Class = classifyStatus(httpStatus)
	if be.Class == "" {
		be.Class = classifyMessage(err)
	}
	return be
}

// IsBackendError reports whether err came from the model backend.
func IsBackendError(err error) bool {
	var be *BackendError
	return errors.As(err, &be)
}

// ClassifyBackendError classifies an error from a model backend call.
func ClassifyBackendError(err error) RetryClass {
	if err == nil {
		return RetryClassNonRetryable
	}
	if errors.Is(err, context.Canceled) {
		return RetryClassNonRetryable
	}
	var be *BackendError
	if errors.As(err, &be) && be.Class != "" {
		return be.Class
	}
	return classifyMessage(err)
}

func classifyStatus(status int) RetryClass {
	switch {
	case status == 0:
		return ""
	case status == http.StatusTooManyRequests, status >= 500:
		return RetryClassRetryable
	case status == http.StatusRequestTimeout:
		return RetryClassMaybe
	case status >= 400:
		return RetryClassNonRetryable
	}
	return ""
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

func classifyMessage(err error) RetryClass {
	errStr := strings.ToLower(err.Error())

	switch {
	// Rate limits and server errors
	case containsAny(errStr, "429", "rate limit", "too many requests"),
		containsAny(errStr, "status code: 500", "status code: 502", "status code: 503", "status code: 504",
			"internal server error", "bad gateway", "service unavailable", "gateway timeout", "overloaded"):
		return RetryClassRetryable

	// Auth, quota, bad requests, safety refusals
	case containsAny(errStr, "401", "403", "unauthorized", "forbidden", "invalid api key", "authentication failed"),
		containsAny(errStr, "402", "quota", "billing", "payment required"),
		containsAny(errStr, "400", "bad request", "invalid request", "malformed"),
		containsAny(errStr, "content filter", "content_filter", "guardrail", "policy violation"):
		return RetryClassNonRetryable

	case containsAny(errStr, "context deadline exceeded", "deadline exceeded"),
		containsAny(errStr, "context length", "token limit", "maximum context length"):
		return RetryClassMaybe

	// Network
	case containsAny(errStr, "timeout", "connection reset", "connection refused", "no such host",
		"network", "dns", "temporary failure", "eof"):
		return RetryClassRetryable
	}

	return RetryClassNonRetryable
}

// ExtractRetryAfter extracts the Retry-After hint from an error.
// Returns 0 if not found or invalid.
func ExtractRetryAfter(err error) time.Duration {
	var be *BackendError
	if errors.As(err, &be) && be.RetryAfter != "" {
		var seconds int
		if _, err := fmt.Sscanf(be.RetryAfter, "%d", &seconds); err == nil {
			return time.Duration(seconds) * time.Second
		}
		if t, err := time.Parse(time.RFC1123, be.RetryAfter); err == nil {
			if d := time.Until(t); d > 0 {
				return d
			}
		}
	}

	errStr := strings.ToLower(err.Error())
	if idx := strings.Index(errStr, "retry after "); idx >= 0 {
		var seconds int
		if _, err := fmt.Sscanf(errStr[idx:], "retry after %d", &seconds); err == nil {
			return time.Duration(seconds) * time.Second
		}
	}
	return 0
}

// RetryExhaustedError indicates that all retry attempts have been exhausted.
type RetryExhaustedError struct {
	Err         error
	Attempts    int
	MaxAttempts int
	IsGuarded   bool // True if this was a "maybe" class error with limited retries
}

func (e *RetryExhaustedError) Error() string {
	if e.IsGuarded {
		return fmt.Sprintf("guarded retries exhausted after %d attempts: %v", e.Attempts, e.Err)
	}
	return fmt.Sprintf("retries exhausted after %d attempts: %v", e.Attempts, e.Err)
}

func (e *RetryExhaustedError) Unwrap() error {
	return e.Err
}

// NewRetryExhaustedError creates a new RetryExhaustedError.
func NewRetryExhaustedError(err error, attempts, maxAttempts int, isGuarded bool) *RetryExhaustedError {
	return &RetryExhaustedError{
		Err:         err,
		Attempts:    attempts,
		MaxAttempts: maxAttempts,
		IsGuarded:   isGuarded,
	}
}

// IsRetryExhausted checks if an error is a RetryExhaustedError.
func IsRetryExhausted(err error) bool {
	var retryExhausted *RetryExhaustedError
	return errors.As(err, &retryExhausted)
}

// ExecutionTimeout describes a block killed after exceeding its timeout.
// It is reported inside ExecutionResult, never returned from Step.
type ExecutionTimeout struct {
	Filename string
	Timeout  time.Duration
}

func (e *ExecutionTimeout) Error() string {
	return fmt.Sprintf("execution of %s timed out after %s", e.Filename, e.Timeout)
}

// ExecutionSetupError means the working directory could not be prepared.
type ExecutionSetupError struct {
	Dir string
	Err error
}

func (e *ExecutionSetupError) Error() string {
	return fmt.Sprintf("working directory %s unavailable: %v", e.Dir, e.Err)
}

func (e *ExecutionSetupError) Unwrap() error {
	return e.Err
}

// IsSetupError checks if an error is an ExecutionSetupError.
func IsSetupError(err error) bool {
	var se *ExecutionSetupError
	return errors.As(err, &se)
}

// ProtocolError reports a malformed code fence. The offending text is kept as plain text.
type ProtocolError struct {
	Line   int // 1-based line of the opening fence
	Reason string
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("malformed code block at line %d: %s", e.Line, e.Reason)
}

// SessionError wraps errors with session context (turn, status, operation).
type SessionError struct {
	Err       error
	SessionID string
	Turn      int
	Status    Status
	Operation string // "respond", "execute", "append"
}

func (e *SessionError) Error() string {
	return fmt.Sprintf("[session=%s turn=%d status=%s op=%s] %v",
		e.SessionID, e.Turn, e.Status, e.Operation, e.Err)
}

func (e *SessionError) Unwrap() error {
	return e.Err
}

// WrapWithContext wraps an error with session context for debugging.
func WrapWithContext(err error, st *State, operation string) error {
	if err == nil {
		return nil
	}
	return &SessionError{
		Err:       err,
		SessionID: st.ID,
		Turn:      st.Turn,
		Status:    st.Status,
		Operation: operation,
	}
}
