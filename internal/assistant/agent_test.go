package assistant

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/ChamsBouzaiene/duet/internal/engine"
	"github.com/google/go-cmp/cmp"
)

// MockLLM implements engine.LLMClient with a function field.
type MockLLM struct {
	ChatFunc func(ctx context.Context, model string, messages []engine.ChatMessage, opts engine.ChatOptions) (engine.LLMResponse, error)
	calls    [][]engine.ChatMessage
}

func (m *MockLLM) Chat(ctx context.Context, model string, messages []engine.ChatMessage, opts engine.ChatOptions) (engine.LLMResponse, error) {
	m.calls = append(m.calls, messages)
	return m.ChatFunc(ctx, model, messages, opts)
}

func reply(content string) func(context.Context, string, []engine.ChatMessage, engine.ChatOptions) (engine.LLMResponse, error) {
	return func(context.Context, string, []engine.ChatMessage, engine.ChatOptions) (engine.LLMResponse, error) {
		return engine.LLMResponse{
			Assistant:    engine.ChatMessage{Role: engine.RoleAssistant, Content: content},
			Usage:        engine.Usage{Prompt: 10, Completion: 5, Total: 15},
			FinishReason: "stop",
		}, nil
	}
}

func testConfig() engine.SessionConfig {
	cfg := engine.DefaultSessionConfig()
	cfg.WorkDir = "/tmp/coding"
	cfg.RetryConfig.LLMPolicy = engine.RetryPolicy{MaxRetries: 2, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond, Multiplier: 1}
	return cfg
}

func newState(cfg engine.SessionConfig, history ...string) *engine.State {
	st := engine.NewState("s", cfg)
	for i, c := range history {
		role := engine.RoleExecutor
		if i%2 == 1 {
			role = engine.RoleAssistant
		}
		st.Append(engine.ChatMessage{Role: role, Content: c})
	}
	return st
}

func TestBuild_RequiresLLM(t *testing.T) {
	if _, err := NewBuilder(testConfig()).Build(); err == nil {
		t.Fatal("expected error without LLM")
	}
}

func TestBuild_UnknownPrompt(t *testing.T) {
	_, err := NewBuilder(testConfig()).WithLLM(&MockLLM{}).WithPrompt("nope", "1.0.0").Build()
	if err == nil {
		t.Fatal("expected error for unknown prompt")
	}
}

func TestBuild_SystemPrompt(t *testing.T) {
	cfg := testConfig()
	cfg.TerminationPhrase = "ALL_DONE"
	a, err := NewBuilder(cfg).WithLLM(&MockLLM{}).WithSystemMessage("Save charts as PNG.").Build()
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{`"ALL_DONE"`, "/tmp/coding", "Save charts as PNG."} {
		if !strings.Contains(a.SystemPrompt(), want) {
			t.Errorf("system prompt missing %q", want)
		}
	}
}

func TestRespond(t *testing.T) {
	cfg := testConfig()
	llm := &MockLLM{ChatFunc: reply("Here:\n```py\nprint('hi')\n```")}
	a, err := NewBuilder(cfg).WithLLM(llm).Build()
	if err != nil {
		t.Fatal(err)
	}
	st := newState(cfg, "print hi")

	msg, err := a.Respond(context.Background(), st)
	if err != nil {
		t.Fatalf("Respond() error = %v", err)
	}
	if msg.Role != engine.RoleAssistant || msg.Name != Name {
		t.Errorf("role=%s name=%s", msg.Role, msg.Name)
	}
	want := []engine.CodeBlock{{Lang: "python", Source: "print('hi')", Index: 0}}
	if diff := cmp.Diff(want, msg.CodeBlocks); diff != "" {
		t.Errorf("code blocks mismatch (-want +got):\n%s", diff)
	}
	if st.Totals.Total != 15 {
		t.Errorf("totals = %+v", st.Totals)
	}
	sent := llm.calls[0]
	if len(sent) != 2 || sent[0].Role != engine.RoleSystem || sent[1].Content != "print hi" {
		t.Errorf("sent messages = %+v", sent)
	}
	if len(st.History) != 1 {
		t.Error("Respond must not modify history")
	}
}

func TestRespond_HistoryWindow(t *testing.T) {
	cfg := testConfig()
	cfg.HistoryWindow = 2
	llm := &MockLLM{ChatFunc: reply("ok")}
	a, err := NewBuilder(cfg).WithLLM(llm).Build()
	if err != nil {
		t.Fatal(err)
	}
	st := newState(cfg, "task", "a1", "e1", "a2", "e2")

	if _, err := a.Respond(context.Background(), st); err != nil {
		t.Fatal(err)
	}
	var got []string
	for _, m := range llm.calls[0][1:] {
		got = append(got, m.Content)
	}
	want := []string{"task", "[2 earlier messages omitted]", "a2", "e2"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("window mismatch (-want +got):\n%s", diff)
	}
}

func TestRespond_RetriesTransientErrors(t *testing.T) {
	cfg := testConfig()
	calls := 0
	llm := &MockLLM{ChatFunc: func(ctx context.Context, model string, msgs []engine.ChatMessage, opts engine.ChatOptions) (engine.LLMResponse, error) {
		calls++
		if calls < 3 {
			return engine.LLMResponse{}, engine.WrapBackendError("openai", errors.New("service unavailable"), 503, "")
		}
		return reply("```sh\necho ok\n```")(ctx, model, msgs, opts)
	}}
	a, err := NewBuilder(cfg).WithLLM(llm).Build()
	if err != nil {
		t.Fatal(err)
	}
	st := newState(cfg, "task")

	if _, err := a.Respond(context.Background(), st); err != nil {
		t.Fatalf("Respond() error = %v", err)
	}
	if calls != 3 || st.Retries != 2 {
		t.Errorf("calls=%d retries=%d", calls, st.Retries)
	}
}

func TestRespond_BackendErrors(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		wantCalls int
		exhausted bool
	}{
		{name: "auth error is not retried", status: 401, wantCalls: 1},
		{name: "rate limit exhausts retries", status: 429, wantCalls: 3, exhausted: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig()
			llm := &MockLLM{ChatFunc: func(context.Context, string, []engine.ChatMessage, engine.ChatOptions) (engine.LLMResponse, error) {
				return engine.LLMResponse{}, engine.WrapBackendError("openai", errors.New("request failed"), tt.status, "")
			}}
			a, err := NewBuilder(cfg).WithLLM(llm).Build()
			if err != nil {
				t.Fatal(err)
			}

			_, err = a.Respond(context.Background(), newState(cfg, "task"))
			if !engine.IsBackendError(err) {
				t.Fatalf("expected backend error, got %v", err)
			}
			if engine.IsRetryExhausted(err) != tt.exhausted {
				t.Errorf("exhausted = %v, want %v", engine.IsRetryExhausted(err), tt.exhausted)
			}
			if len(llm.calls) != tt.wantCalls {
				t.Errorf("calls = %d, want %d", len(llm.calls), tt.wantCalls)
			}
		})
	}
}
