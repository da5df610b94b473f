// Package litellm implements the model provider interface against an
// OpenAI-compatible Chat Completions endpoint (LiteLLM proxy, OpenAI, Ollama).
package litellm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/spikehq/spike/internal/llm"
)

const (
	completionsPath  = "/v1/chat/completions"
	defaultMaxTokens = 2000
)

// Client implements llm.Provider using the Chat Completions API.
type Client struct {
	apiKey     string
	model      string
	baseURL    string
	name       string
	httpClient *http.Client
	logger     *slog.Logger
}

// Option configures the LiteLLM client.
type Option func(*Client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithName overrides the provider name (e.g. "openai", "ollama").
func WithName(name string) Option {
	return func(c *Client) { c.name = name }
}

// NewClient creates a client for an OpenAI-compatible endpoint.
func NewClient(baseURL, apiKey, model string, logger *slog.Logger, opts ...Option) *Client {
	c := &Client{
		apiKey:     apiKey,
		model:      model,
		baseURL:    baseURL,
		name:       "litellm",
		httpClient: http.DefaultClient,
		logger:     logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) Name() string { return c.name }

// Complete sends the prompt to the Chat Completions endpoint.
// Failures are returned as typed *llm.ModelError values so callers can
// distinguish rate limiting, timeouts, and unavailability.
func (c *Client) Complete(ctx context.Context, req *llm.Request) (*llm.Response, error) {
	apiReq := c.buildRequest(req)

	body, err := json.Marshal(apiReq)
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+completionsPath, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating HTTP request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, &llm.ModelError{Kind: llm.KindTimeout, Message: err.Error()}
		}
		if errors.Is(err, context.Canceled) {
			return nil, err
		}
		return nil, &llm.ModelError{Kind: llm.KindUnavailable, Message: err.Error()}
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, &llm.ModelError{Kind: llm.KindUnavailable, Message: fmt.Sprintf("reading response body: %v", err)}
	}

	if httpResp.StatusCode != http.StatusOK {
		return nil, statusError(httpResp, respBody)
	}

	var apiResp apiResponse
	if err := json.Unmarshal(respBody, &apiResp); err != nil {
		return nil, &llm.ModelError{Kind: llm.KindMalformed, Message: fmt.Sprintf("parsing response: %v", err)}
	}
	if len(apiResp.Choices) == 0 {
		return nil, &llm.ModelError{Kind: llm.KindMalformed, Message: "response has no choices"}
	}

	resp := &llm.Response{
		Text: apiResp.Choices[0].Message.Content,
		Usage: llm.Usage{
			InputTokens:  apiResp.Usage.PromptTokens,
			OutputTokens: apiResp.Usage.CompletionTokens,
		},
	}

	c.logger.DebugContext(ctx, "llm request completed",
		slog.String("provider", c.name),
		slog.String("model", c.model),
		slog.Int("input_tokens", resp.Usage.InputTokens),
		slog.Int("output_tokens", resp.Usage.OutputTokens),
	)

	return resp, nil
}

func (c *Client) buildRequest(req *llm.Request) apiRequest {
	var messages []apiMessage
	if req.System != "" {
		messages = append(messages, apiMessage{Role: "system", Content: req.System})
	}
	messages = append(messages, apiMessage{Role: "user", Content: req.Prompt})

	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}

	apiReq := apiRequest{
		Model:       c.model,
		Messages:    messages,
		MaxTokens:   maxTokens,
		Temperature: req.Temperature,
	}
	if req.ResponseJSON {
		apiReq.ResponseFormat = &apiResponseFormat{Type: "json_object"}
	}
	return apiReq
}

// statusError maps an HTTP error status to a typed model error.
func statusError(resp *http.Response, body []byte) *llm.ModelError {
	msg := string(body)
	if len(msg) > 512 {
		msg = msg[:512]
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return &llm.ModelError{
			Kind:       llm.KindRateLimited,
			Message:    msg,
			StatusCode: resp.StatusCode,
			RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After")),
		}
	case resp.StatusCode == http.StatusRequestTimeout || resp.StatusCode == http.StatusGatewayTimeout:
		return &llm.ModelError{Kind: llm.KindTimeout, Message: msg, StatusCode: resp.StatusCode}
	case resp.StatusCode >= 500:
		return &llm.ModelError{Kind: llm.KindUnavailable, Message: msg, StatusCode: resp.StatusCode}
	default:
		return &llm.ModelError{Kind: llm.KindMalformed, Message: msg, StatusCode: resp.StatusCode}
	}
}

// parseRetryAfter handles the delta-seconds form of the Retry-After header.
func parseRetryAfter(v string) time.Duration {
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	return 0
}

// --- Chat Completions wire types (unexported) ---

type apiRequest struct {
	Model          string             `json:"model"`
	Messages       []apiMessage       `json:"messages"`
	MaxTokens      int                `json:"max_tokens"`
	Temperature    float64            `json:"temperature"`
	ResponseFormat *apiResponseFormat `json:"response_format,omitempty"`
}

type apiMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type apiResponseFormat struct {
	Type string `json:"type"`
}

type apiResponse struct {
	Choices []apiChoice `json:"choices"`
	Usage   apiUsage    `json:"usage"`
}

type apiChoice struct {
	Message      apiMessage `json:"message"`
	FinishReason string     `json:"finish_reason"`
}

type apiUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
}
