package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ChamsBouzaiene/duet/internal/config"
	"github.com/ChamsBouzaiene/duet/internal/engine"
	"github.com/ChamsBouzaiene/duet/internal/factory"
	"github.com/ChamsBouzaiene/duet/internal/sandbox"
)

type mockLLM struct {
	mu      sync.Mutex
	replies []string
	calls   int
}

func (m *mockLLM) Chat(ctx context.Context, model string, messages []engine.ChatMessage, opts engine.ChatOptions) (engine.LLMResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	i := m.calls
	if i >= len(m.replies) {
		i = len(m.replies) - 1
	}
	m.calls++
	return engine.LLMResponse{
		Assistant:    engine.ChatMessage{Role: engine.RoleAssistant, Content: m.replies[i]},
		Usage:        engine.Usage{Prompt: 5, Completion: 5, Total: 10},
		FinishReason: "stop",
	}, nil
}

func newTestRunner(t *testing.T, input string, llm engine.LLMClient) (*stdioRunner, *bytes.Buffer) {
	t.Helper()
	log.SetOutput(io.Discard)
	t.Cleanup(func() { log.SetOutput(os.Stderr) })

	env := &runtimeEnv{
		Config:  config.NewManagerAt(filepath.Join(t.TempDir(), "cfg")),
		UserCfg: &config.Config{},
	}
	flags := registerSessionFlags(flag.NewFlagSet("test", flag.ContinueOnError))

	var out bytes.Buffer
	r := newStdIORunner(strings.NewReader(input), &out, env, flags)
	r.newSession = func(res *config.Resolved, opts factory.Options) (*factory.Session, error) {
		opts.LLM = llm
		opts.Runner = sandbox.NewHostRunner(res.Sandbox)
		opts.Logger = log.New(io.Discard, "", 0)
		return factory.NewSession(res, opts)
	}
	return r, &out
}

func decodeEvents(t *testing.T, out *bytes.Buffer) []map[string]any {
	t.Helper()
	var events []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(out.String()), "\n") {
		if line == "" {
			continue
		}
		var ev map[string]any
		if err := json.Unmarshal([]byte(line), &ev); err != nil {
			t.Fatalf("invalid NDJSON line %q: %v", line, err)
		}
		events = append(events, ev)
	}
	return events
}

func TestStdIORunner_Session(t *testing.T) {
	workDir := filepath.Join(t.TempDir(), "coding")
	cmd, _ := json.Marshal(map[string]any{
		"type":       "start_session",
		"session_id": "s1",
		"task":       "say hi",
		"work_dir":   workDir,
	})
	llm := &mockLLM{replies: []string{"```sh\necho hi\n```", "TERMINATE"}}

	r, out := newTestRunner(t, string(cmd)+"\n", llm)
	if err := r.Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	events := decodeEvents(t, out)
	seen := map[string]int{}
	var done map[string]any
	for _, ev := range events {
		typ, _ := ev["type"].(string)
		seen[typ]++
		if typ == "done" {
			done = ev
		}
	}
	for _, typ := range []string{"session_started", "message", "execution", "token_usage", "done"} {
		if seen[typ] == 0 {
			t.Errorf("no %s event in output:\n%s", typ, out.String())
		}
	}
	if seen["message"] != 4 {
		t.Errorf("message events = %d, want 4", seen["message"])
	}
	if done == nil || done["reason"] != "termination_phrase" || done["session_id"] != "s1" {
		t.Errorf("done event = %v", done)
	}
}

func TestStdIORunner_InvalidCommand(t *testing.T) {
	r, out := newTestRunner(t, "{\"type\":\"bogus\"}\nnot json\n", &mockLLM{replies: []string{"TERMINATE"}})
	if err := r.Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	var errors int
	for _, ev := range decodeEvents(t, out) {
		if ev["type"] == "error" && ev["kind"] == "invalid_command" {
			errors++
		}
	}
	if errors != 2 {
		t.Errorf("invalid_command errors = %d, want 2\n%s", errors, out.String())
	}
}

func TestStdIORunner_Config(t *testing.T) {
	input := `{"type":"save_config","config":{"llm_provider":"anthropic","api_key":"sk-ant-0123456789","max_turns":"4"}}` + "\n" +
		`{"type":"get_config"}` + "\n"
	r, out := newTestRunner(t, input, &mockLLM{replies: []string{"TERMINATE"}})
	if err := r.Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	var loaded map[string]any
	for _, ev := range decodeEvents(t, out) {
		if ev["type"] == "config_loaded" {
			loaded, _ = ev["config"].(map[string]any)
		}
	}
	if loaded == nil {
		t.Fatalf("no config_loaded event:\n%s", out.String())
	}
	if loaded["llm_provider"] != "anthropic" || loaded["max_turns"] != "4" {
		t.Errorf("config = %v", loaded)
	}
	if key, _ := loaded["api_key"].(string); strings.Contains(key, "0123456789") {
		t.Errorf("api_key not masked: %q", key)
	}
	if r.env.UserCfg.MaxTurns != 4 {
		t.Errorf("UserCfg.MaxTurns = %d, want 4", r.env.UserCfg.MaxTurns)
	}
}

func TestStdIORunner_CancelUnknownSession(t *testing.T) {
	r, out := newTestRunner(t, `{"type":"cancel_request","session_id":"nope"}`+"\n", &mockLLM{replies: []string{"TERMINATE"}})
	if err := r.Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	events := decodeEvents(t, out)
	last := events[len(events)-1]
	if last["type"] != "error" || last["kind"] != "session_error" {
		t.Errorf("last event = %v, want session_error", last)
	}
}

// endlessReader yields the same NDJSON line forever.
type endlessReader struct{}

func (endlessReader) Read(p []byte) (int, error) {
	line := `{"type":"get_config"}` + "\n"
	n := 0
	for n+len(line) <= len(p) {
		n += copy(p[n:], line)
	}
	return n, nil
}

func TestScanLines_StopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	lines := scanLines(ctx, bufio.NewScanner(endlessReader{}))
	if _, ok := <-lines; !ok {
		t.Fatal("expected a line before cancel")
	}
	cancel()

	timeout := time.After(5 * time.Second)
	for {
		select {
		case _, ok := <-lines:
			if !ok {
				return
			}
		case <-timeout:
			t.Fatal("scanner goroutine did not stop after cancel")
		}
	}
}

func TestTruncate(t *testing.T) {
	if got := truncate("abcdefgh", 6); got != "abc..." {
		t.Errorf("truncate = %q", got)
	}
	if got := truncate("abc", 6); got != "abc" {
		t.Errorf("truncate = %q", got)
	}
}
