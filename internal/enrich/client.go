package enrich

import (
	"context"
	"fmt"

	"github.com/sashabaranov/go-openai"
)

// Client is the inference transport the enricher talks to. Implementations
// send one system+user exchange and return the raw reply text.
type Client interface {
	Complete(ctx context.Context, system, user string) (string, error)
}

// OpenAIClient talks to an OpenAI-compatible chat completion endpoint.
type OpenAIClient struct {
	client *openai.Client
	model  string
}

// NewOpenAIClient builds a client for the given endpoint. An empty baseURL
// keeps the default OpenAI endpoint.
func NewOpenAIClient(apiKey string, model string, baseURL string) *OpenAIClient {
	config := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		config.BaseURL = baseURL
	}
	client := openai.NewClientWithConfig(config)
	return &OpenAIClient{
		client: client,
		model:  model,
	}
}

func (c *OpenAIClient) Complete(ctx context.Context, system, user string) (string, error) {
	req := openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleSystem,
				Content: system,
			},
			{
				Role:    openai.ChatMessageRoleUser,
				Content: user,
			},
		},
	}
	resp, err := c.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", err
	}
	if len(resp.Choices) > 0 {
		return resp.Choices[0].Message.Content, nil
	}
	return "", fmt.Errorf("no response choices")
}
