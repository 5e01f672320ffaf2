package providers

import (
	"context"
	"errors"
	"strings"

	"github.com/ChamsBouzaiene/duet/internal/engine"

	anthropic "github.com/liushuangls/go-anthropic/v2"
)

const defaultAnthropicMaxTokens = 4096

// AnthropicClient implements engine.LLMClient for the Anthropic Messages API.
type AnthropicClient struct {
	client *anthropic.Client
}

func NewAnthropicClient(apiKey string) (*AnthropicClient, error) {
	if apiKey == "" {
		return nil, errors.New("anthropic: API key is required")
	}
	return &AnthropicClient{client: anthropic.NewClient(apiKey)}, nil
}

// Chat implements engine.LLMClient.
func (c *AnthropicClient) Chat(ctx context.Context, modelName string, messages []engine.ChatMessage, opts engine.ChatOptions) (engine.LLMResponse, error) {
	system, msgs := toAnthropicMessages(messages)

	maxTokens := defaultAnthropicMaxTokens
	if opts.MaxOutputTokens > 0 {
		maxTokens = opts.MaxOutputTokens
	}
	req := anthropic.MessagesRequest{
		Model:     anthropic.Model(modelName),
		Messages:  msgs,
		MaxTokens: maxTokens,
	}
	if opts.Temperature > 0 {
		req.Temperature = &opts.Temperature
	}
	if len(system) > 0 {
		req.MultiSystem = system
	}

	resp, err := c.client.CreateMessages(ctx, req)
	if err != nil {
		httpStatus, retryAfter := extractErrorMetadata(err)
		return engine.LLMResponse{}, engine.WrapBackendError(ProviderAnthropic, err, httpStatus, retryAfter)
	}

	var text strings.Builder
	for _, block := range resp.Content {
		if block.Type == anthropic.MessagesContentTypeText && block.Text != nil {
			text.WriteString(*block.Text)
		}
	}

	finishReason := "stop"
	switch resp.StopReason {
	case "max_tokens":
		finishReason = "length"
	case "refusal":
		finishReason = "content_filter"
	}

	return engine.LLMResponse{
		Assistant: engine.ChatMessage{Role: engine.RoleAssistant, Content: text.String()},
		Usage: engine.Usage{
			Prompt:     resp.Usage.InputTokens,
			Completion: resp.Usage.OutputTokens,
			Total:      resp.Usage.InputTokens + resp.Usage.OutputTokens,
		},
		FinishReason: finishReason,
	}, nil
}

// toAnthropicMessages splits out the leading system prompt and maps the rest onto
// strictly alternating user/assistant turns. The executor speaks as the user;
// later system notices are folded into the user turn they precede.
func toAnthropicMessages(messages []engine.ChatMessage) ([]anthropic.MessageSystemPart, []anthropic.Message) {
	var system []anthropic.MessageSystemPart
	var out []anthropic.Message

	for i, msg := range messages {
		role := anthropic.RoleUser
		switch msg.Role {
		case engine.RoleSystem:
			if i == 0 {
				system = append(system, anthropic.MessageSystemPart{Type: "text", Text: msg.Content})
				continue
			}
		case engine.RoleAssistant:
			role = anthropic.RoleAssistant
		}

		content := msg.Content
		if strings.TrimSpace(content) == "" {
			content = "(empty)"
		}
		if n := len(out); n > 0 && out[n-1].Role == role {
			out[n-1].Content = append(out[n-1].Content, anthropic.NewTextMessageContent(content))
			continue
		}
		out = append(out, anthropic.Message{
			Role:    role,
			Content: []anthropic.MessageContent{anthropic.NewTextMessageContent(content)},
		})
	}
	return system, out
}
