package engine

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"
)

func TestClassifyBackendError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want RetryClass
	}{
		{"nil", nil, RetryClassNonRetryable},
		{"rate limit status", WrapBackendError("openai", errors.New("slow down"), 429, ""), RetryClassRetryable},
		{"server status", WrapBackendError("azure", errors.New("oops"), 503, ""), RetryClassRetryable},
		{"auth status", WrapBackendError("openai", errors.New("nope"), 401, ""), RetryClassNonRetryable},
		{"request timeout status", WrapBackendError("openai", errors.New("slow"), 408, ""), RetryClassMaybe},
		{"rate limit text", errors.New("error, status code: 429, message: Rate limit reached"), RetryClassRetryable},
		{"network text", errors.New("dial tcp: connection refused"), RetryClassRetryable},
		{"deadline text", fmt.Errorf("call: %w", context.DeadlineExceeded), RetryClassMaybe},
		{"cancelled", fmt.Errorf("call: %w", context.Canceled), RetryClassNonRetryable},
		{"content filter", errors.New("blocked by content_filter"), RetryClassNonRetryable},
		{"unknown", errors.New("something odd"), RetryClassNonRetryable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ClassifyBackendError(tt.err); got != tt.want {
				t.Errorf("ClassifyBackendError(%v) = %s, want %s", tt.err, got, tt.want)
			}
		})
	}
}

func TestWrapBackendError(t *testing.T) {
	if WrapBackendError("openai", nil, 500, "") != nil {
		t.Error("wrapping nil should return nil")
	}

	base := errors.New("too many requests")
	err := WrapBackendError("anthropic", base, 429, "7")
	var be *BackendError
	if !errors.As(err, &be) {
		t.Fatalf("expected *BackendError, got %T", err)
	}
	if !be.IsRateLimit || be.IsAuth || be.Provider != "anthropic" {
		t.Errorf("unexpected flags: %+v", be)
	}
	if !errors.Is(err, base) {
		t.Error("BackendError should unwrap to the provider error")
	}
	if got := ExtractRetryAfter(err); got != 7*time.Second {
		t.Errorf("ExtractRetryAfter() = %v, want 7s", got)
	}
}

func TestExtractRetryAfter_FromMessage(t *testing.T) {
	err := errors.New("Rate limited. Please retry after 12 seconds")
	if got := ExtractRetryAfter(err); got != 12*time.Second {
		t.Errorf("ExtractRetryAfter() = %v, want 12s", got)
	}
	if got := ExtractRetryAfter(errors.New("plain")); got != 0 {
		t.Errorf("ExtractRetryAfter() = %v, want 0", got)
	}
}

func TestWrapWithContext(t *testing.T) {
	st := &State{ID: "s1", Turn: 3, Status: StatusExecuting}
	base := &ExecutionSetupError{Dir: "/tmp/x", Err: errors.New("permission denied")}

	err := WrapWithContext(base, st, "execute")
	want := "[session=s1 turn=3 status=executing op=execute] working directory /tmp/x unavailable: permission denied"
	if err.Error() != want {
		t.Errorf("Error() = %q\nwant      %q", err.Error(), want)
	}
	if !IsSetupError(err) {
		t.Error("wrapped error should still be a setup error")
	}
	if WrapWithContext(nil, st, "execute") != nil {
		t.Error("wrapping nil should return nil")
	}
}

func TestChatMessageValidate(t *testing.T) {
	tests := []struct {
		name    string
		msg     ChatMessage
		wantErr bool
	}{
		{"assistant with blocks", ChatMessage{Role: RoleAssistant, CodeBlocks: []CodeBlock{{Lang: "python"}}}, false},
		{"executor", ChatMessage{Role: RoleExecutor, Content: "exitcode: 0"}, false},
		{"system", ChatMessage{Role: RoleSystem}, false},
		{"user role is not part of the dialogue", ChatMessage{Role: "user"}, true},
		{"executor with blocks", ChatMessage{Role: RoleExecutor, CodeBlocks: []CodeBlock{{}}}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.msg.Validate(); (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
