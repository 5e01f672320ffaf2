package engine

import (
	"context"
	"time"
)

type Hooks []Hook

func (hs Hooks) OnSessionStart(ctx context.Context, st *State) {
	for _, h := range hs {
		h.OnSessionStart(ctx, st)
	}
}
func (hs Hooks) OnTurnStart(ctx context.Context, st *State) {
	for _, h := range hs {
		h.OnTurnStart(ctx, st)
	}
}
func (hs Hooks) OnBeforeLLM(ctx context.Context, st *State, m []ChatMessage) {
	for _, h := range hs {
		h.OnBeforeLLM(ctx, st, m)
	}
}
func (hs Hooks) OnAfterLLM(ctx context.Context, st *State, r LLMResponse) {
	for _, h := range hs {
		h.OnAfterLLM(ctx, st, r)
	}
}
func (hs Hooks) OnMessage(ctx context.Context, st *State, m ChatMessage) {
	for _, h := range hs {
		h.OnMessage(ctx, st, m)
	}
}
func (hs Hooks) OnExecution(ctx context.Context, st *State, e Execution) {
	for _, h := range hs {
		h.OnExecution(ctx, st, e)
	}
}
func (hs Hooks) OnStatus(ctx context.Context, st *State, s Status) {
	for _, h := range hs {
		h.OnStatus(ctx, st, s)
	}
}
func (hs Hooks) OnDone(ctx context.Context, st *State) {
	for _, h := range hs {
		h.OnDone(ctx, st)
	}
}
func (hs Hooks) OnRetryAttempt(ctx context.Context, st *State, attempt int, maxAttempts int, delay time.Duration, err error) {
	for _, h := range hs {
		h.OnRetryAttempt(ctx, st, attempt, maxAttempts, delay, err)
	}
}
func (hs Hooks) OnRetryExhausted(ctx context.Context, st *State, err error) {
	for _, h := range hs {
		h.OnRetryExhausted(ctx, st, err)
	}
}
