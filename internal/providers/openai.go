package providers

import (
	"context"
	"errors"

	"github.com/ChamsBouzaiene/duet/internal/engine"

	openai "github.com/meguminnnnnnnnn/go-openai"
)

// OpenAIClient implements engine.LLMClient for OpenAI, Azure OpenAI and
// OpenAI-compatible endpoints.
type OpenAIClient struct {
	client   *openai.Client
	provider string
}

// NewOpenAIClient creates a client for api.openai.com, or for an
// OpenAI-compatible server when baseURL is set.
func NewOpenAIClient(apiKey, baseURL string) (*OpenAIClient, error) {
	if apiKey == "" {
		return nil, errors.New("openai: API key is required")
	}
	config := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		config.BaseURL = baseURL
	}
	return &OpenAIClient{client: openai.NewClientWithConfig(config), provider: ProviderOpenAI}, nil
}

// NewAzureOpenAIClient creates a client for an Azure OpenAI resource.
// Every model name is routed to deployment when it is set.
func NewAzureOpenAIClient(apiKey, endpoint, apiVersion, deployment string) (*OpenAIClient, error) {
	if apiKey == "" || endpoint == "" {
		return nil, errors.New("azure: API key and endpoint are required")
	}
	config := openai.DefaultAzureConfig(apiKey, endpoint)
	if apiVersion != "" {
		config.APIVersion = apiVersion
	}
	if deployment != "" {
		config.AzureModelMapperFunc = func(string) string { return deployment }
	}
	return &OpenAIClient{client: openai.NewClientWithConfig(config), provider: ProviderAzure}, nil
}

// Chat implements engine.LLMClient.
func (c *OpenAIClient) Chat(ctx context.Context, modelName string, messages []engine.ChatMessage, opts engine.ChatOptions) (engine.LLMResponse, error) {
	req := openai.ChatCompletionRequest{
		Model:    modelName,
		Messages: toOpenAIMessages(messages),
	}
	if opts.MaxOutputTokens > 0 {
		req.MaxTokens = opts.MaxOutputTokens
	}
	if opts.Temperature > 0 {
		req.Temperature = &opts.Temperature
	}

	resp, err := c.client.CreateChatCompletion(ctx, req)
	if err != nil {
		httpStatus, retryAfter := extractErrorMetadata(err)
		return engine.LLMResponse{}, engine.WrapBackendError(c.provider, err, httpStatus, retryAfter)
	}
	if len(resp.Choices) == 0 {
		return engine.LLMResponse{}, engine.WrapBackendError(c.provider, errors.New("empty response: no choices"), 0, "")
	}

	choice := resp.Choices[0]
	finishReason := "stop"
	switch choice.FinishReason {
	case openai.FinishReasonLength:
		finishReason = "length"
	case openai.FinishReasonContentFilter:
		finishReason = "content_filter"
	}

	return engine.LLMResponse{
		Assistant: engine.ChatMessage{Role: engine.RoleAssistant, Content: choice.Message.Content},
		Usage: engine.Usage{
			Prompt:     resp.Usage.PromptTokens,
			Completion: resp.Usage.CompletionTokens,
			Total:      resp.Usage.TotalTokens,
		},
		FinishReason: finishReason,
	}, nil
}

// toOpenAIMessages maps roles onto the chat API. The executor speaks as the user.
func toOpenAIMessages(messages []engine.ChatMessage) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, 0, len(messages))
	for _, msg := range messages {
		switch msg.Role {
		case engine.RoleSystem:
			out = append(out, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: msg.Content})
		case engine.RoleExecutor:
			out = append(out, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: msg.Content})
		case engine.RoleAssistant:
			content := msg.Content
			// the SDK serializes "" as null, which the API rejects
			if content == "" {
				content = " "
			}
			out = append(out, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleAssistant, Content: content})
		}
	}
	return out
}

// openAIStatus reads the HTTP status from typed SDK errors.
func openAIStatus(err error) int {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return reqErr.HTTPStatusCode
	}
	return 0
}
