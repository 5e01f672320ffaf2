// Package assistant implements the conversation agent: it turns the session
// history into a model call and returns the reply with its code blocks.
package assistant

import (
	"context"
	"time"

	"github.com/ChamsBouzaiene/duet/internal/codeblock"
	"github.com/ChamsBouzaiene/duet/internal/engine"
)

// Name is the agent name set on assistant messages.
const Name = "assistant"

// Agent is an engine.Responder backed by an LLM.
type Agent struct {
	cfg        engine.SessionConfig
	llm        engine.LLMClient
	hooks      engine.Hooks
	system     string
	processors []engine.Processor
}

// SystemPrompt returns the rendered system prompt.
func (a *Agent) SystemPrompt() string { return a.system }

// Respond sends the windowed history to the model and returns one assistant message.
// Backend failures are retried per the session retry policy; the final error is
// an *engine.BackendError, possibly inside an *engine.RetryExhaustedError.
func (a *Agent) Respond(ctx context.Context, st *engine.State) (engine.ChatMessage, error) {
	msgs := make([]engine.ChatMessage, 0, len(st.History)+1)
	msgs = append(msgs, engine.ChatMessage{Role: engine.RoleSystem, Content: a.system})
	msgs = append(msgs, st.History...)

	msgs, err := engine.ApplyProcessors(ctx, st, msgs, a.processors...)
	if err != nil {
		return engine.ChatMessage{}, err
	}
	a.hooks.OnBeforeLLM(ctx, st, msgs)

	policy := a.cfg.RetryConfig.LLMPolicy
	onRetry := func(attempt int, delay time.Duration, err error) {
		st.Retries++
		a.hooks.OnRetryAttempt(ctx, st, attempt, policy.MaxRetries, delay, err)
	}

	resp, err := engine.RetryLLMCall(ctx, policy, a.llm, a.cfg.Model, msgs, a.cfg.ChatOptions(), onRetry)
	if err != nil {
		if engine.IsRetryExhausted(err) {
			a.hooks.OnRetryExhausted(ctx, st, err)
		}
		return engine.ChatMessage{}, err
	}

	msg := resp.Assistant
	msg.Role = engine.RoleAssistant
	msg.Name = Name
	msg.CodeBlocks, _ = codeblock.Extract(msg.Content)
	resp.Assistant = msg

	st.Totals.Add(resp.Usage)
	a.hooks.OnAfterLLM(ctx, st, resp)
	return msg, nil
}
