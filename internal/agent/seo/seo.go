// Package seo implements the agent contract for the technical audit
// domain. It is a thin adapter over the audit data service; audit-sheet
// filtering and analysis happen upstream.
package seo

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/spikehq/spike/internal/agent"
)

const queryPath = "/v1/audit/query"

// Client implements agent.Agent against the audit data service.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	logger     *slog.Logger
}

// Option configures the SEO client.
type Option func(*Client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// NewClient creates an SEO agent client.
func NewClient(baseURL, apiKey string, logger *slog.Logger, opts ...Option) *Client {
	c := &Client{
		baseURL:    baseURL,
		apiKey:     apiKey,
		httpClient: http.DefaultClient,
		logger:     logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) Domain() agent.Domain { return agent.DomainSEO }

// Invoke sends the sub-query to the audit service. Audit data is
// site-wide, so the scope ID is ignored.
func (c *Client) Invoke(ctx context.Context, subquery, _ string) (*agent.Finding, error) {
	body, err := json.Marshal(queryRequest{Query: subquery})
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+queryPath, bytes.NewReader(body))
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
			return nil, &agent.Error{Domain: agent.DomainSEO, Kind: agent.KindTimeout, Message: err.Error()}
		}
		if errors.Is(err, context.Canceled) {
			return nil, err
		}
		return nil, &agent.Error{Domain: agent.DomainSEO, Kind: agent.KindUpstreamTransient, Message: err.Error()}
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, &agent.Error{Domain: agent.DomainSEO, Kind: agent.KindUpstreamTransient, Message: err.Error()}
	}

	if httpResp.StatusCode != http.StatusOK {
		return nil, statusError(httpResp.StatusCode, respBody)
	}

	var resp queryResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return nil, &agent.Error{
			Domain:  agent.DomainSEO,
			Kind:    agent.KindUpstreamPermanent,
			Message: fmt.Sprintf("parsing response: %v", err),
		}
	}

	c.logger.DebugContext(ctx, "seo query completed",
		slog.Int("issues", len(resp.Issues)),
	)

	finding := &agent.Finding{Text: resp.Summary}
	if len(resp.Issues) > 0 {
		finding.Data = map[string]any{"issues": resp.Issues}
	}
	return finding, nil
}

// statusError maps an upstream HTTP status to a typed agent error.
func statusError(status int, body []byte) error {
	msg := string(body)
	if len(msg) > 512 {
		msg = msg[:512]
	}

	switch {
	case status == http.StatusNotFound:
		return &agent.Error{Domain: agent.DomainSEO, Kind: agent.KindNoData, Message: msg}
	case status == http.StatusTooManyRequests || status >= 500:
		return &agent.Error{Domain: agent.DomainSEO, Kind: agent.KindUpstreamTransient, Message: fmt.Sprintf("status %d: %s", status, msg)}
	default:
		return &agent.Error{Domain: agent.DomainSEO, Kind: agent.KindUpstreamPermanent, Message: fmt.Sprintf("status %d: %s", status, msg)}
	}
}

// --- Audit service wire types (unexported) ---

type queryRequest struct {
	Query string `json:"query"`
}

type queryResponse struct {
	Summary string           `json:"summary"`
	Issues  []map[string]any `json:"issues,omitempty"`
}
