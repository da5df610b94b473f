// Package analytics implements the agent contract for the behavioral
// analytics domain. It is a thin adapter over the analytics data service;
// query-to-report translation happens upstream.
package analytics

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

const queryPath = "/v1/reports/query"

// Client implements agent.Agent against the analytics data service.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	logger     *slog.Logger
}

// Option configures the analytics client.
type Option func(*Client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// NewClient creates an analytics agent client.
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

func (c *Client) Domain() agent.Domain { return agent.DomainAnalytics }

// Invoke sends the sub-query to the analytics service scoped to the given
// property ID. An empty scope fails locally: analytics data is meaningless
// without a property to query.
func (c *Client) Invoke(ctx context.Context, subquery, scopeID string) (*agent.Finding, error) {
	if scopeID == "" {
		return nil, &agent.Error{
			Domain:  agent.DomainAnalytics,
			Kind:    agent.KindMissingScope,
			Message: "property ID is required for analytics queries",
		}
	}

	body, err := json.Marshal(queryRequest{Query: subquery, PropertyID: scopeID})
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
		return nil, transportError(ctx, agent.DomainAnalytics, err)
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, &agent.Error{Domain: agent.DomainAnalytics, Kind: agent.KindUpstreamTransient, Message: err.Error()}
	}

	if httpResp.StatusCode != http.StatusOK {
		return nil, statusError(agent.DomainAnalytics, httpResp.StatusCode, respBody)
	}

	var resp queryResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return nil, &agent.Error{
			Domain:  agent.DomainAnalytics,
			Kind:    agent.KindUpstreamPermanent,
			Message: fmt.Sprintf("parsing response: %v", err),
		}
	}

	c.logger.DebugContext(ctx, "analytics query completed",
		slog.String("property_id", scopeID),
		slog.Int("rows", len(resp.Rows)),
	)

	finding := &agent.Finding{Text: resp.Summary}
	if len(resp.Rows) > 0 {
		finding.Data = map[string]any{"rows": resp.Rows}
	}
	return finding, nil
}

// transportError maps a client-side HTTP failure to a typed agent error.
func transportError(ctx context.Context, d agent.Domain, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return &agent.Error{Domain: d, Kind: agent.KindTimeout, Message: err.Error()}
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	return &agent.Error{Domain: d, Kind: agent.KindUpstreamTransient, Message: err.Error()}
}

// statusError maps an upstream HTTP status to a typed agent error.
func statusError(d agent.Domain, status int, body []byte) error {
	msg := string(body)
	if len(msg) > 512 {
		msg = msg[:512]
	}

	switch {
	case status == http.StatusNotFound:
		return &agent.Error{Domain: d, Kind: agent.KindNoData, Message: msg}
	case status == http.StatusTooManyRequests || status >= 500:
		return &agent.Error{Domain: d, Kind: agent.KindUpstreamTransient, Message: fmt.Sprintf("status %d: %s", status, msg)}
	default:
		return &agent.Error{Domain: d, Kind: agent.KindUpstreamPermanent, Message: fmt.Sprintf("status %d: %s", status, msg)}
	}
}

// --- Analytics service wire types (unexported) ---

type queryRequest struct {
	Query      string `json:"query"`
	PropertyID string `json:"property_id"`
}

type queryResponse struct {
	Summary string           `json:"summary"`
	Rows    []map[string]any `json:"rows,omitempty"`
}
