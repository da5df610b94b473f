package httpapi

import (
	"log/slog"

	"github.com/jkaninda/okapi"

	"github.com/spikehq/spike/internal/orchestrator"
)

// SSEEvent is a server-sent event emitted while a query executes.
type SSEEvent struct {
	Stage   string `json:"stage,omitempty"`   // Progress stage name.
	Content string `json:"content,omitempty"` // Answer text for the final event.
	Partial bool   `json:"partial,omitempty"` // Set on the final event.
}

// handleQueryStream handles POST /v1/query/stream. Progress stages are
// streamed as the engine reaches them, followed by one answer event.
func (g *Gateway) handleQueryStream(c *okapi.Context) error {
	userID := c.GetString("userID")
	if userID == "" {
		return c.AbortUnauthorized("Unauthorized")
	}

	if g.limiter != nil {
		if err := g.limiter.Allow(userID); err != nil {
			return c.AbortTooManyRequests("rate limit exceeded")
		}
	}

	var req QueryRequest
	if err := c.Bind(&req); err != nil {
		return c.AbortBadRequest("query is required")
	}
	q, err := g.buildQuery(&req)
	if err != nil {
		return c.AbortBadRequest(err.Error())
	}

	correlationID := newCorrelationID()
	g.logger.Info("http query stream",
		slog.String("user_id", userID),
		slog.String("correlation_id", correlationID),
	)

	// Progress events are emitted synchronously from the engine's goroutine.
	q.Progress = func(stage orchestrator.Stage) {
		c.SSEvent("progress", SSEEvent{Stage: string(stage)})
	}

	answer := g.engine.Route(c.Context(), q)

	c.SSEvent("answer", SSEEvent{Content: answer.Text, Partial: answer.Partial})
	c.SSEvent("done", SSEEvent{Stage: "done"})
	return nil
}
