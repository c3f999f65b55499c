package ai

import (
	"context"
	"errors"
	"strings"

	openaiclient "github.com/openai/openai-go/v2"
	openaioption "github.com/openai/openai-go/v2/option"
)

// OpenAIProvider calls the cloud chat-completion API with a per-user key.
type OpenAIProvider struct {
	APIKey  string
	BaseURL string
	Model   string
}

func NewOpenAIProvider(apiKey, baseURL, model string) *OpenAIProvider {
	if model == "" {
		model = "gpt-3.5-turbo"
	}
	return &OpenAIProvider{APIKey: apiKey, BaseURL: baseURL, Model: model}
}

func (p *OpenAIProvider) Chat(ctx context.Context, messages []Message) (string, error) {
	if strings.TrimSpace(p.APIKey) == "" {
		return "", errors.New("openai: api key is required")
	}

	opts := []openaioption.RequestOption{
		openaioption.WithAPIKey(p.APIKey),
		openaioption.WithMaxRetries(0),
	}
	if p.BaseURL != "" {
		opts = append(opts, openaioption.WithBaseURL(strings.TrimRight(p.BaseURL, "/")))
	}
	client := openaiclient.NewClient(opts...)

	params := openaiclient.ChatCompletionNewParams{
		Model:       openaiclient.ChatModel(p.Model),
		MaxTokens:   openaiclient.Int(300),
		Temperature: openaiclient.Float(0.7),
	}
	for _, m := range messages {
		switch m.Role {
		case "system":
			params.Messages = append(params.Messages, openaiclient.SystemMessage(m.Content))
		case "assistant":
			params.Messages = append(params.Messages, openaiclient.AssistantMessage(m.Content))
		default:
			params.Messages = append(params.Messages, openaiclient.UserMessage(m.Content))
		}
	}

	resp, err := client.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("openai: empty response")
	}
	return resp.Choices[0].Message.Content, nil
}
