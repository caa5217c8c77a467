// Package llm talks to an OpenAI-compatible chat-completions endpoint.
// The default target is the xAI (Grok) API, which speaks the same protocol.
package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

const (
	DefaultBaseURL = "https://api.x.ai/v1"
	DefaultModel   = "grok-4"
)

// Client is the minimal completion surface the fetcher needs.
type Client interface {
	Complete(ctx context.Context, system, user string) (string, error)
}

type Config struct {
	APIKey  string
	BaseURL string // empty = DefaultBaseURL
	Model   string // empty = DefaultModel
}

type chatClient struct {
	client *openai.Client
	model  openai.ChatModel
}

func NewClient(cfg Config) (Client, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("llm api key is empty")
	}
	baseURL := cfg.BaseURL
	if strings.TrimSpace(baseURL) == "" {
		baseURL = DefaultBaseURL
	}
	model := cfg.Model
	if strings.TrimSpace(model) == "" {
		model = DefaultModel
	}
	c := openai.NewClient(
		option.WithAPIKey(cfg.APIKey),
		option.WithBaseURL(baseURL),
	)
	return &chatClient{client: &c, model: openai.ChatModel(model)}, nil
}

func (c *chatClient) Complete(ctx context.Context, system, user string) (string, error) {
	resp, err := c.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: c.model,
		// Deterministic summaries; same prompt, same phrasing, same dedup hits.
		Temperature: openai.Float(0),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(system),
			openai.UserMessage(user),
		},
	})
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("no choices in completion response")
	}
	return resp.Choices[0].Message.Content, nil
}
