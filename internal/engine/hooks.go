// engine/hooks.go
package engine

import (
	"context"
	"time"
)

// Hook observes a session. Hooks run on the session goroutine and must not block for long.
type Hook interface {
	OnSessionStart(ctx context.Context, st *State)
	OnTurnStart(ctx context.Context, st *State)
	OnBeforeLLM(ctx context.Context, st *State, messages []ChatMessage)
	OnAfterLLM(ctx context.Context, st *State, resp LLMResponse)
	OnMessage(ctx context.Context, st *State, msg ChatMessage)
	OnExecution(ctx context.Context, st *State, exec Execution)
	OnStatus(ctx context.Context, st *State, status Status)
	OnDone(ctx context.Context, st *State)
	// Retry hooks
	OnRetryAttempt(ctx context.Context, st *State, attempt int, maxAttempts int, delay time.Duration, err error)
	OnRetryExhausted(ctx context.Context, st *State, err error)
}

// NopHook lets you implement any hook you need.
type NopHook struct{}

func (NopHook) OnSessionStart(context.Context, *State)                                 {}
func (NopHook) OnTurnStart(context.Context, *State)                                    {}
func (NopHook) OnBeforeLLM(context.Context, *State, []ChatMessage)                     {}
func (NopHook) OnAfterLLM(context.Context, *State, LLMResponse)                        {}
func (NopHook) OnMessage(context.Context, *State, ChatMessage)                         {}
func (NopHook) OnExecution(context.Context, *State, Execution)                         {}
func (NopHook) OnStatus(context.Context, *State, Status)                               {}
func (NopHook) OnDone(context.Context, *State)                                         {}
func (NopHook) OnRetryAttempt(context.Context, *State, int, int, time.Duration, error) {}
func (NopHook) OnRetryExhausted(context.Context, *State, error)                        {}
