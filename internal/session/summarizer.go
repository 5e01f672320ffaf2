package session

import (
	"context"
	"fmt"
	"strings"

	"github.com/ChamsBouzaiene/duet/internal/engine"
)

const titleWindow = 6

// Summarizer asks the model for a session title and a short summary.
type Summarizer struct {
	llm   engine.LLMClient
	model string
}

func NewSummarizer(llm engine.LLMClient, model string) *Summarizer {
	return &Summarizer{llm: llm, model: model}
}

// GenerateTitle returns a 3-5 word title based on the first messages.
func (s *Summarizer) GenerateTitle(ctx context.Context, history []engine.ChatMessage) (string, error) {
	if len(history) == 0 {
		return "New Session", nil
	}
	window := history
	if len(window) > titleWindow {
		window = window[:titleWindow]
	}

	msgs := []engine.ChatMessage{
		{Role: engine.RoleSystem, Content: "Generate a short title (3-5 words) for this code-execution session based on the task and what was run. Do not use quotes or punctuation."},
		{Role: engine.RoleExecutor, Content: fmt.Sprintf("Transcript:\n%s\n\nTitle:", engine.RenderForSummary(window))},
	}
	resp, err := s.llm.Chat(ctx, s.model, msgs, engine.ChatOptions{MaxOutputTokens: 20, Temperature: 0.3})
	if err != nil {
		return "", fmt.Errorf("failed to generate title: %w", err)
	}
	return strings.Trim(strings.TrimSpace(resp.Assistant.Content), `"'.`), nil
}

// GenerateSummary describes what the session did and how it ended.
func (s *Summarizer) GenerateSummary(ctx context.Context, history []engine.ChatMessage) (string, error) {
	if len(history) == 0 {
		return "", nil
	}
	msgs := []engine.ChatMessage{
		{Role: engine.RoleSystem, Content: "Summarize this code-execution session: the task, the code that was run, errors hit and how they were fixed, files produced, and whether the task was completed. Be concise."},
		{Role: engine.RoleExecutor, Content: "Summarize this session:\n\n" + engine.RenderForSummary(history)},
	}
	resp, err := s.llm.Chat(ctx, s.model, msgs, engine.ChatOptions{MaxOutputTokens: 300, Temperature: 0.1})
	if err != nil {
		return "", fmt.Errorf("failed to generate summary: %w", err)
	}
	return strings.TrimSpace(resp.Assistant.Content), nil
}

// Annotate generates and stores the title and summary of a finished session.
func (s *Summarizer) Annotate(ctx context.Context, store *Store, st *engine.State) error {
	title, err := s.GenerateTitle(ctx, st.History)
	if err != nil {
		return err
	}
	summary, err := s.GenerateSummary(ctx, st.History)
	if err != nil {
		return err
	}
	return store.SetTitle(ctx, st.ID, title, summary)
}
