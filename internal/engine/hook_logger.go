// engine/hook_logger.go
package engine

import (
	"context"
	"log"
	"time"
)

type LoggerHook struct{ L *log.Logger }

func (h LoggerHook) OnSessionStart(_ context.Context, st *State) {
	h.L.Printf("🚀 session=%s model=%s max_turns=%d", st.ID, st.Model, st.MaxTurns)
}
func (h LoggerHook) OnTurnStart(_ context.Context, st *State) {
	h.L.Printf("turn=%d/%d history=%d", st.Turn+1, st.MaxTurns, len(st.History))
}
func (h LoggerHook) OnBeforeLLM(_ context.Context, st *State, msgs []ChatMessage) {
	tokenizer := GetTokenizerForModel(st.Model)
	tokens, _ := CountTokensForMessages(tokenizer, msgs, st.Model)

	// history excludes the system prompt, msgs includes it
	if sent, total := len(msgs), len(st.History)+1; sent != total {
		h.L.Printf("📤 turn=%d: %d msgs (windowed from %d) | 💰 tokens=~%d (cumulative=%d)",
			st.Turn+1, sent, total, tokens, st.Totals.Total)
		return
	}
	h.L.Printf("📤 turn=%d: %d msgs | 💰 tokens=~%d (cumulative=%d)", st.Turn+1, len(msgs), tokens, st.Totals.Total)
}
func (h LoggerHook) OnAfterLLM(_ context.Context, st *State, r LLMResponse) {
	h.L.Printf("finish=%s blocks=%d tokens: prompt=%d completion=%d total=%d (cumulative=%d)",
		r.FinishReason, len(r.Assistant.CodeBlocks), r.Usage.Prompt, r.Usage.Completion, r.Usage.Total, st.Totals.Total)
}
func (h LoggerHook) OnMessage(_ context.Context, _ *State, m ChatMessage) {
	preview := m.Content
	if len(preview) > 200 {
		preview = preview[:200] + "..."
	}
	h.L.Printf("💬 %s: %s", m.Role, preview)
}
func (h LoggerHook) OnExecution(_ context.Context, st *State, e Execution) {
	for _, r := range e.Results {
		switch {
		case r.TimedOut:
			h.L.Printf("⏱️  %s (%s) timed out, exit=%d", r.Filename, r.Lang, r.ExitCode)
		case r.Status == ExecStatusSkipped:
			h.L.Printf("⏭️  block skipped (%s)", r.Reason)
		case r.ExitCode != 0:
			h.L.Printf("❌ %s (%s) exit=%d", r.Filename, r.Lang, r.ExitCode)
		default:
			h.L.Printf("✅ %s (%s) exit=0", r.Filename, r.Lang)
		}
	}
	if len(e.FilesChanged) > 0 {
		h.L.Printf("📁 files changed: %v", e.FilesChanged)
	}
}
func (h LoggerHook) OnStatus(_ context.Context, _ *State, _ Status) {}
func (h LoggerHook) OnDone(_ context.Context, st *State) {
	if st.Err != nil {
		h.L.Printf("done: turns=%d reason=%s tokens=%d error=%v", st.Turn, st.Reason, st.Totals.Total, st.Err)
		return
	}
	h.L.Printf("done: turns=%d reason=%s tokens=%d", st.Turn, st.Reason, st.Totals.Total)
}
func (h LoggerHook) OnRetryAttempt(_ context.Context, _ *State, attempt int, maxAttempts int, delay time.Duration, err error) {
	h.L.Printf("retry attempt=%d/%d delay=%v error=%v", attempt, maxAttempts, delay, err)
}
func (h LoggerHook) OnRetryExhausted(_ context.Context, _ *State, err error) {
	h.L.Printf("retries exhausted: %v", err)
}
