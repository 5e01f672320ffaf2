package session

import (
	"context"
	"io"
	"log"
	"testing"

	"github.com/ChamsBouzaiene/duet/internal/engine"
)

// MockLLM implements engine.LLMClient with canned replies.
type MockLLM struct {
	Responses []string
	calls     int
}

func (m *MockLLM) Chat(ctx context.Context, model string, messages []engine.ChatMessage, opts engine.ChatOptions) (engine.LLMResponse, error) {
	r := m.Responses[m.calls%len(m.Responses)]
	m.calls++
	return engine.LLMResponse{Assistant: engine.ChatMessage{Role: engine.RoleAssistant, Content: r}}, nil
}

type scripted struct{ replies []string }

func (s *scripted) Respond(ctx context.Context, st *engine.State) (engine.ChatMessage, error) {
	r := s.replies[0]
	s.replies = s.replies[1:]
	return engine.ChatMessage{Role: engine.RoleAssistant, Content: r}, nil
}

type fakeExecutor struct{}

func (fakeExecutor) Step(ctx context.Context, msg engine.ChatMessage) (engine.StepResult, error) {
	if msg.Content == "TERMINATE" {
		return engine.StepResult{Terminal: true}, nil
	}
	exec := &engine.Execution{Results: []engine.ExecutionResult{{Lang: "sh", Stdout: "hi\n", Status: engine.ExecStatusOK}}}
	reply := &engine.ChatMessage{Role: engine.RoleExecutor, Content: "exitcode: 0 (execution succeeded)\nCode output: hi\n"}
	return engine.StepResult{Reply: reply, Execution: exec}, nil
}

func TestRecorderHook_RecordsSession(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	idx, err := OpenSearchIndex(t.TempDir() + "/idx.bleve")
	if err != nil {
		t.Fatal(err)
	}
	defer idx.Close()

	hook := &RecorderHook{Store: store, Index: idx, Logger: log.New(io.Discard, "", 0), WorkDir: "/tmp/coding"}
	hooks := engine.Hooks{hook}

	st := engine.NewState("rec", engine.DefaultSessionConfig())
	hooks.OnSessionStart(ctx, st)
	if err := engine.AppendMessage(ctx, st, hooks, engine.ChatMessage{Role: engine.RoleExecutor, Content: "say hi"}); err != nil {
		t.Fatal(err)
	}
	if err := engine.Run(ctx, &scripted{replies: []string{"```sh\necho hi\n```", "TERMINATE"}}, fakeExecutor{}, st, hooks); err != nil {
		t.Fatal(err)
	}

	sess, err := store.Get(ctx, "rec")
	if err != nil {
		t.Fatal(err)
	}
	if sess.Task != "say hi" || sess.Reason != engine.ReasonTerminationPhrase || sess.Turns != 2 || sess.WorkDir != "/tmp/coding" {
		t.Errorf("unexpected session: %+v", sess)
	}
	msgs, err := store.Messages(ctx, "rec")
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != len(st.History) {
		t.Errorf("stored %d messages, history has %d", len(msgs), len(st.History))
	}
	recs, err := store.Executions(ctx, "rec")
	if err != nil {
		t.Fatal(err)
	}
	if len(recs) != 1 || recs[0].Turn != 1 {
		t.Errorf("unexpected executions: %+v", recs)
	}
	hits, err := idx.Search("say", "", 5)
	if err != nil || len(hits) != 1 {
		t.Errorf("search hits = %+v, err = %v", hits, err)
	}
}

func TestSummarizer_Annotate(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	if err := store.CreateSession(ctx, Session{ID: "s1", Model: "m", WorkDir: "/w", Status: engine.StatusTerminated}); err != nil {
		t.Fatal(err)
	}
	st := engine.NewState("s1", engine.DefaultSessionConfig())
	st.Append(engine.ChatMessage{Role: engine.RoleExecutor, Content: "Plot NVDA vs TSLA"})

	llm := &MockLLM{Responses: []string{`"Stock Price Chart."`, "Plotted both tickers and saved a PNG."}}
	if err := NewSummarizer(llm, "m").Annotate(ctx, store, st); err != nil {
		t.Fatal(err)
	}
	sess, err := store.Get(ctx, "s1")
	if err != nil {
		t.Fatal(err)
	}
	if sess.Title != "Stock Price Chart" || sess.Summary != "Plotted both tickers and saved a PNG." {
		t.Errorf("title=%q summary=%q", sess.Title, sess.Summary)
	}
}

func TestSummarizer_EmptyHistory(t *testing.T) {
	title, err := NewSummarizer(&MockLLM{Responses: []string{"x"}}, "m").GenerateTitle(context.Background(), nil)
	if err != nil || title != "New Session" {
		t.Errorf("GenerateTitle() = %q, %v", title, err)
	}
}
