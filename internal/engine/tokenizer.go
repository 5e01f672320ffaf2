package engine

import (
	"fmt"
	"strings"
)

// messageOverhead approximates the role markers and separators a chat API adds per message.
const messageOverhead = 4

// Tokenizer counts tokens for a model.
type Tokenizer interface {
	CountTokens(text string, model string) (int, error)
}

// EstimateTokens approximates the token count of text: a quarter of the runes
// plus a sixth of the whitespace, and never less than 1 for non-empty text.
// It only feeds log lines, so it errs on the cheap side.
func EstimateTokens(text string) int {
	if text == "" {
		return 0
	}
	runes := len([]rune(text))
	spaces := strings.Count(text, " ") + strings.Count(text, "\n") + strings.Count(text, "\t")
	return max(runes/4+spaces/6, 1)
}

// DefaultTokenizer estimates instead of tokenizing.
type DefaultTokenizer struct{}

func (DefaultTokenizer) CountTokens(text string, _ string) (int, error) {
	return EstimateTokens(text), nil
}

// CountTokensForMessages sums role, content and per-message overhead over messages.
func CountTokensForMessages(tokenizer Tokenizer, messages []ChatMessage, model string) (int, error) {
	total := 0
	for i, msg := range messages {
		role, err := tokenizer.CountTokens(string(msg.Role), model)
		if err != nil {
			return 0, fmt.Errorf("message %d role: %w", i, err)
		}
		content, err := tokenizer.CountTokens(msg.Content, model)
		if err != nil {
			return 0, fmt.Errorf("message %d content: %w", i, err)
		}
		total += role + content + messageOverhead
	}
	return total, nil
}

// GetTokenizerForModel returns the tokenizer for model. All models are estimated.
func GetTokenizerForModel(model string) Tokenizer {
	return DefaultTokenizer{}
}
