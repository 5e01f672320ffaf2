package engine

import (
	"testing"
)

func TestEstimateTokens(t *testing.T) {
	tests := []struct {
		name string
		text string
		want int
	}{
		{name: "empty", text: "", want: 0},
		{name: "tiny", text: "ok", want: 1},
		// 16 runes / 4 = 4, one space / 6 = 0
		{name: "print call", text: `print("x") # one`, want: 4},
		// 26 runes / 4 = 6, 4 whitespace / 6 = 0
		{name: "two lines", text: "exitcode: 0\nCode output: x", want: 6},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := EstimateTokens(tt.text); got != tt.want {
				t.Errorf("EstimateTokens(%q) = %d, want %d", tt.text, got, tt.want)
			}
		})
	}
}

func TestCountTokensForMessages(t *testing.T) {
	tokenizer := DefaultTokenizer{}

	msgs := []ChatMessage{
		{Role: RoleExecutor, Content: "print hello"},
		{Role: RoleAssistant, Content: "```python\nprint(\"hello\")\n```", CodeBlocks: []CodeBlock{{Lang: "python", Source: "print(\"hello\")"}}},
	}
	got, err := CountTokensForMessages(tokenizer, msgs, "gpt-4")
	if err != nil {
		t.Fatalf("CountTokensForMessages() error = %v", err)
	}
	// two messages carry at least 4 tokens of overhead each
	if got < 8+EstimateTokens(msgs[1].Content) {
		t.Errorf("CountTokensForMessages() = %d, too small", got)
	}

	empty, err := CountTokensForMessages(tokenizer, nil, "gpt-4")
	if err != nil || empty != 0 {
		t.Errorf("CountTokensForMessages(nil) = %d, %v; want 0, nil", empty, err)
	}
}

func TestGetTokenizerForModel(t *testing.T) {
	for _, model := range []string{"gpt-4", "claude-3-5-sonnet", "llama-3"} {
		tok := GetTokenizerForModel(model)
		if tok == nil {
			t.Fatalf("GetTokenizerForModel(%q) returned nil", model)
		}
		if n, err := tok.CountTokens("TERMINATE", model); err != nil || n <= 0 {
			t.Errorf("CountTokens for %q = %d, %v", model, n, err)
		}
	}
}
