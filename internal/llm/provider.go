// Package llm defines the provider-agnostic interface for text generation.
package llm

import "context"

// Provider is the abstraction over any hosted LLM backend (Gemini, OpenAI, etc.).
type Provider interface {
	// Generate sends a single-turn prompt to the LLM and returns its response.
	Generate(ctx context.Context, req *Request) (*Response, error)
	// Name returns the provider identifier (e.g. "gemini").
	Name() string
}

// Request is a single-turn generation request.
type Request struct {
	SystemPrompt string  // Role framing for the model. Empty = none.
	Prompt       string  // The user-side prompt text.
	Temperature  float64 // Sampling temperature, passed through verbatim.
	MaxTokens    int     // 0 = provider default.
}

// Response is what the LLM returns.
type Response struct {
	Content    string
	Usage      Usage
	StopReason string // "end_turn", "max_tokens", or a provider-specific reason
}

// Usage tracks token consumption for cost accounting.
type Usage struct {
	InputTokens  int
	OutputTokens int
}
