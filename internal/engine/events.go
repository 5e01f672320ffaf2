package engine

import (
	"context"
	"time"
)

type Event struct {
	Kind      string // "session_start", "turn_start", "before_llm", "after_llm", "message", "execution", "status", "done", "retry_attempt", "retry_exhausted"
	SessionID string
	Data      any
}

// ChanHook forwards engine events to a channel (stdio bridge, tests).
type ChanHook struct{ Ch chan<- Event }

func (h ChanHook) send(st *State, kind string, data any) {
	h.Ch <- Event{Kind: kind, SessionID: st.ID, Data: data}
}

func (h ChanHook) OnSessionStart(_ context.Context, st *State) {
	h.send(st, "session_start", st.Model)
}
func (h ChanHook) OnTurnStart(_ context.Context, st *State) {
	h.send(st, "turn_start", st.Turn+1)
}
func (h ChanHook) OnBeforeLLM(_ context.Context, st *State, m []ChatMessage) {
	h.send(st, "before_llm", len(m))
}
func (h ChanHook) OnAfterLLM(_ context.Context, st *State, r LLMResponse) {
	h.send(st, "after_llm", r.FinishReason)
}
func (h ChanHook) OnMessage(_ context.Context, st *State, m ChatMessage) {
	h.send(st, "message", m)
}
func (h ChanHook) OnExecution(_ context.Context, st *State, e Execution) {
	h.send(st, "execution", e)
}
func (h ChanHook) OnStatus(_ context.Context, st *State, s Status) {
	h.send(st, "status", s)
}
func (h ChanHook) OnDone(_ context.Context, st *State) {
	h.send(st, "done", st.Reason)
}
func (h ChanHook) OnRetryAttempt(_ context.Context, st *State, attempt int, maxAttempts int, delay time.Duration, err error) {
	h.send(st, "retry_attempt", map[string]any{
		"attempt":     attempt,
		"maxAttempts": maxAttempts,
		"delay":       delay,
		"error":       err.Error(),
	})
}
func (h ChanHook) OnRetryExhausted(_ context.Context, st *State, err error) {
	h.send(st, "retry_exhausted", err.Error())
}
