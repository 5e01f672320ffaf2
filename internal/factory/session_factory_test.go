package factory

import (
	"context"
	"io"
	"log"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ChamsBouzaiene/duet/internal/config"
	"github.com/ChamsBouzaiene/duet/internal/engine"
	"github.com/ChamsBouzaiene/duet/internal/sandbox"
	"github.com/ChamsBouzaiene/duet/internal/session"
)

// MockLLM replays Responses in order and repeats the last one.
type MockLLM struct {
	mu        sync.Mutex
	Responses []string
	calls     int
}

func (m *MockLLM) Chat(ctx context.Context, model string, messages []engine.ChatMessage, opts engine.ChatOptions) (engine.LLMResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	i := m.calls
	if i >= len(m.Responses) {
		i = len(m.Responses) - 1
	}
	m.calls++
	return engine.LLMResponse{
		Assistant:    engine.ChatMessage{Role: engine.RoleAssistant, Content: m.Responses[i]},
		Usage:        engine.Usage{Prompt: 20, Completion: 10, Total: 30},
		FinishReason: "stop",
	}, nil
}

func testResolved(t *testing.T) *config.Resolved {
	t.Helper()
	cfg := engine.DefaultSessionConfig()
	cfg.WorkDir = filepath.Join(t.TempDir(), "coding")
	cfg.BlockTimeout = 5 * time.Second
	if err := cfg.Validate(); err != nil {
		t.Fatal(err)
	}
	return &config.Resolved{
		Session: cfg,
		Sandbox: sandbox.Config{Mode: sandbox.ModeHost, CmdTimeout: cfg.BlockTimeout},
	}
}

func quietLogger() *log.Logger { return log.New(io.Discard, "", 0) }

func TestStartSession_RunsToTermination(t *testing.T) {
	res := testResolved(t)
	llm := &MockLLM{Responses: []string{
		"```sh\necho hello\n```",
		"The output was hello. TERMINATE",
	}}

	st, err := StartSession(context.Background(), "print hello", res, Options{
		LLM:    llm,
		Runner: sandbox.NewHostRunner(res.Sandbox),
		Logger: quietLogger(),
	})
	if err != nil {
		t.Fatalf("StartSession() error = %v", err)
	}
	if st.Reason != engine.ReasonTerminationPhrase {
		t.Errorf("Reason = %q, want termination_phrase", st.Reason)
	}
	if len(st.History) != 4 {
		t.Fatalf("history len = %d, want 4", len(st.History))
	}
	if got := st.History[2].Content; !strings.Contains(got, "exitcode: 0") || !strings.Contains(got, "hello") {
		t.Errorf("executor reply = %q", got)
	}
	if st.Totals.Total != 60 {
		t.Errorf("Totals.Total = %d, want 60", st.Totals.Total)
	}
}

func TestStartSession_RecordsTranscript(t *testing.T) {
	ctx := context.Background()
	res := testResolved(t)
	res.GenerateTitles = true

	dir := t.TempDir()
	store, err := session.NewStore(ctx, filepath.Join(dir, "sessions.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()
	index, err := session.OpenSearchIndex(filepath.Join(dir, "messages.bleve"))
	if err != nil {
		t.Fatal(err)
	}
	defer index.Close()

	llm := &MockLLM{Responses: []string{
		"```sh\necho squares\n```",
		"TERMINATE",
		"Print Squares",
		"Printed a word and stopped.",
	}}

	s, err := NewSession(res, Options{
		SessionID: "sess-1",
		LLM:       llm,
		Runner:    sandbox.NewHostRunner(res.Sandbox),
		Logger:    quietLogger(),
		Store:     store,
		Index:     index,
	})
	if err != nil {
		t.Fatalf("NewSession() error = %v", err)
	}
	defer s.Close()

	if _, err := s.Run(ctx, "print squares"); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	got, err := store.Get(ctx, "sess-1")
	if err != nil {
		t.Fatal(err)
	}
	if got.Task != "print squares" || got.Reason != engine.ReasonTerminationPhrase {
		t.Errorf("session = %+v", got)
	}
	if got.Title != "Print Squares" || got.Summary != "Printed a word and stopped." {
		t.Errorf("title = %q summary = %q", got.Title, got.Summary)
	}

	msgs, err := store.Messages(ctx, "sess-1")
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 4 {
		t.Errorf("stored messages = %d, want 4", len(msgs))
	}

	hits, err := index.Search("squares", "", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(hits) == 0 {
		t.Error("search found no messages mentioning squares")
	}
}

func TestNewSession_BackendError(t *testing.T) {
	res := testResolved(t)
	res.Backend.Provider = "nonexistent"
	if _, err := NewSession(res, Options{Logger: quietLogger()}); err == nil {
		t.Fatal("NewSession() error = nil for unknown provider")
	}
}

func TestSession_Cancelled(t *testing.T) {
	res := testResolved(t)
	llm := &MockLLM{Responses: []string{"```sh\necho again\n```"}}
	s, err := NewSession(res, Options{LLM: llm, Runner: sandbox.NewHostRunner(res.Sandbox), Logger: quietLogger()})
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	st, _ := s.Run(ctx, "loop forever")
	if st == nil || st.Reason != engine.ReasonCancelled {
		t.Fatalf("state = %+v, want cancelled", st)
	}
}
