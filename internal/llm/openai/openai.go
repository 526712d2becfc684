// Package openai implements the LLM provider interface for OpenAI-compatible
// chat completion APIs. Pointing BaseURL at a local server also covers Ollama
// and other compatible backends.
package openai

import (
	"context"
	"fmt"
	"log/slog"

	goopenai "github.com/sashabaranov/go-openai"

	"github.com/jkaninda/mtafiti/internal/llm"
)

// Client implements llm.Provider using an OpenAI-compatible chat API.
type Client struct {
	client *goopenai.Client
	model  string
	name   string
	logger *slog.Logger
}

// Option configures the OpenAI client.
type Option func(*clientConfig)

type clientConfig struct {
	baseURL string
	name    string
}

// WithBaseURL points the client at an alternative OpenAI-compatible endpoint.
func WithBaseURL(url string) Option {
	return func(c *clientConfig) { c.baseURL = url }
}

// WithName overrides the provider identifier (e.g. "ollama").
func WithName(name string) Option {
	return func(c *clientConfig) { c.name = name }
}

// NewClient creates an OpenAI-compatible provider.
func NewClient(apiKey, model string, logger *slog.Logger, opts ...Option) *Client {
	cc := clientConfig{name: "openai"}
	for _, opt := range opts {
		opt(&cc)
	}

	cfg := goopenai.DefaultConfig(apiKey)
	if cc.baseURL != "" {
		cfg.BaseURL = cc.baseURL
	}

	return &Client{
		client: goopenai.NewClientWithConfig(cfg),
		model:  model,
		name:   cc.name,
		logger: logger,
	}
}

func (c *Client) Name() string { return c.name }

// Generate sends the prompt to the chat completions API.
func (c *Client) Generate(ctx context.Context, req *llm.Request) (*llm.Response, error) {
	var messages []goopenai.ChatCompletionMessage
	if req.SystemPrompt != "" {
		messages = append(messages, goopenai.ChatCompletionMessage{
			Role:    goopenai.ChatMessageRoleSystem,
			Content: req.SystemPrompt,
		})
	}
	messages = append(messages, goopenai.ChatCompletionMessage{
		Role:    goopenai.ChatMessageRoleUser,
		Content: req.Prompt,
	})

	resp, err := c.client.CreateChatCompletion(ctx, goopenai.ChatCompletionRequest{
		Model:       c.model,
		Messages:    messages,
		Temperature: float32(req.Temperature),
		MaxTokens:   req.MaxTokens,
	})
	if err != nil {
		return nil, fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("chat completion returned no choices")
	}

	choice := resp.Choices[0]
	out := &llm.Response{
		Content:    choice.Message.Content,
		StopReason: normalizeFinishReason(choice.FinishReason),
		Usage: llm.Usage{
			InputTokens:  resp.Usage.PromptTokens,
			OutputTokens: resp.Usage.CompletionTokens,
		},
	}

	c.logger.DebugContext(ctx, "llm request completed",
		slog.String("provider", c.name),
		slog.String("model", c.model),
		slog.Int("input_tokens", out.Usage.InputTokens),
		slog.Int("output_tokens", out.Usage.OutputTokens),
		slog.String("stop_reason", out.StopReason),
	)

	return out, nil
}

func normalizeFinishReason(reason goopenai.FinishReason) string {
	switch reason {
	case goopenai.FinishReasonStop:
		return "end_turn"
	case goopenai.FinishReasonLength:
		return "max_tokens"
	default:
		return string(reason)
	}
}

// Compile-time check.
var _ llm.Provider = (*Client)(nil)
