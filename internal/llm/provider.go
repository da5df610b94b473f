// Package llm defines the provider-agnostic interface for model invocations.
package llm

import "context"

// Provider is the abstraction over any model backend (LiteLLM proxy, OpenAI, etc.).
type Provider interface {
	// Complete sends a prompt to the model and returns its response.
	Complete(ctx context.Context, req *Request) (*Response, error)
	// Name returns the provider identifier (e.g. "litellm").
	Name() string
}

// Request is a single model invocation.
type Request struct {
	System       string  // Optional system instruction.
	Prompt       string  // User prompt.
	ResponseJSON bool    // Ask the backend for a JSON object response.
	MaxTokens    int     // 0 = provider default.
	Temperature  float64 // Sampling temperature. Negative = provider default.
}

// Response is what the model returns.
type Response struct {
	Text  string
	Usage Usage
}

// Usage tracks token consumption for cost accounting.
type Usage struct {
	InputTokens  int
	OutputTokens int
}
