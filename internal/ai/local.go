package ai

import (
	"context"

	"lingochat/internal/ollama"
)

// LocalProvider serves chat turns from the local inference server.
type LocalProvider struct {
	Client *ollama.Client
	Model  string
}

func NewLocalProvider(client *ollama.Client, model string) *LocalProvider {
	return &LocalProvider{Client: client, Model: model}
}

func toOllamaMessages(messages []Message) []ollama.ChatMessage {
	out := make([]ollama.ChatMessage, 0, len(messages))
	for _, m := range messages {
		out = append(out, ollama.ChatMessage{Role: m.Role, Content: m.Content})
	}
	return out
}

func (p *LocalProvider) Chat(ctx context.Context, messages []Message) (string, error) {
	return p.Client.Chat(ctx, p.Model, toOllamaMessages(messages))
}

func (p *LocalProvider) StreamChat(ctx context.Context, messages []Message) (<-chan string, <-chan error) {
	return p.Client.ChatStream(ctx, p.Model, toOllamaMessages(messages))
}
