package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/spikehq/spike/internal/agent"
	"github.com/spikehq/spike/internal/llm"
)

// aggregate fuses agent outcomes into one Answer. If every outcome failed
// the summary is templated with zero model calls. Otherwise the model
// phrases the answer from the outcomes in input order; if that call fails
// the answer degrades to a deterministic template built from the findings.
// Aggregation never fails the request.
func (e *Engine) aggregate(ctx context.Context, q Query, outcomes []AgentOutcome) *Answer {
	okCount := 0
	for _, o := range outcomes {
		if o.Ok() {
			okCount++
		}
	}

	if okCount == 0 {
		return &Answer{Text: failureSummary(outcomes), Partial: true}
	}

	partial := okCount < len(outcomes)

	resp, err := llm.CompleteWithRetry(ctx, e.provider, &llm.Request{
		System: aggregatorSystemPrompt,
		Prompt: buildAggregatePrompt(q.Text, outcomes),
	}, 0, e.logger)
	if err != nil {
		e.logger.WarnContext(ctx, "aggregation degraded to template",
			slog.String("error", err.Error()),
		)
		return &Answer{Text: templatedSummary(outcomes), Partial: true}
	}

	return &Answer{Text: strings.TrimSpace(resp.Text), Partial: partial}
}

// failureSummary is the deterministic all-failed text. No model involved.
func failureSummary(outcomes []AgentOutcome) string {
	var b strings.Builder
	b.WriteString("I could not retrieve the data needed to answer this question.")
	for _, o := range outcomes {
		fmt.Fprintf(&b, " The %s lookup failed: %s.", o.Domain, outcomeFailure(o))
	}
	return b.String()
}

// templatedSummary stitches the successful findings together verbatim. Used
// when the synthesis model call itself fails.
func templatedSummary(outcomes []AgentOutcome) string {
	var b strings.Builder
	b.WriteString("Here is what I found:")
	for _, o := range outcomes {
		if o.Ok() {
			fmt.Fprintf(&b, "\n- %s: %s", o.Domain, o.Finding.Text)
			continue
		}
		fmt.Fprintf(&b, "\n- %s: lookup failed (%s)", o.Domain, outcomeFailure(o))
	}
	return b.String()
}

// outcomeFailure renders a failed outcome's cause in human-readable form.
func outcomeFailure(o AgentOutcome) string {
	if ae := agent.AsError(o.Err); ae != nil {
		switch ae.Kind {
		case agent.KindMissingScope:
			return "a property ID is required"
		case agent.KindNoData:
			return "no data is available for this query"
		case agent.KindTimeout:
			return "the data service did not respond in time"
		case agent.KindUpstreamTransient:
			return "the data service is temporarily unavailable"
		case agent.KindInternal:
			return "something went wrong on our side"
		default:
			return ae.Message
		}
	}
	if o.Err != nil {
		return o.Err.Error()
	}
	return "unknown error"
}
