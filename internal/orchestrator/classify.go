package orchestrator

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spikehq/spike/internal/agent"
	"github.com/spikehq/spike/internal/llm"
)

// classification is the model's wire-level classifier verdict.
type classification struct {
	Intent string `json:"intent"`
	Reason string `json:"reason"`
}

// classify maps a query to an Intent. Classification is content-driven: the
// scope ID never influences the model call and is only consulted afterward
// to validate that the chosen route is feasible. Model failures never
// propagate; after the retry budget is spent the query is Unroutable.
func (e *Engine) classify(ctx context.Context, q Query) Intent {
	var verdict classification
	req := &llm.Request{
		System: classifierSystemPrompt,
		Prompt: q.Text,
	}

	err := llm.CompleteJSON(ctx, e.provider, req, func(text string) error {
		var c classification
		if perr := unmarshalObject(text, &c); perr != nil {
			return perr
		}
		switch c.Intent {
		case "analytics", "seo", "multi":
		default:
			return fmt.Errorf("unknown intent %q", c.Intent)
		}
		verdict = c
		return nil
	}, e.classifyAttempts, e.logger)
	if err != nil {
		e.logger.WarnContext(ctx, "classification failed",
			slog.String("error", err.Error()),
		)
		return Intent{Kind: IntentUnroutable, Reason: ReasonClassificationFailed}
	}

	intent := Intent{Kind: IntentMulti}
	switch verdict.Intent {
	case "analytics":
		intent = Intent{Kind: IntentSingle, Domain: agent.DomainAnalytics}
	case "seo":
		intent = Intent{Kind: IntentSingle, Domain: agent.DomainSEO}
	}

	e.logger.DebugContext(ctx, "query classified",
		slog.String("intent", verdict.Intent),
		slog.String("reason", verdict.Reason),
	)

	return e.checkScope(intent, q.ScopeID)
}

// checkScope downgrades routes that need an analytics property ID when the
// request did not supply one.
func (e *Engine) checkScope(intent Intent, scopeID string) Intent {
	if scopeID != "" {
		return intent
	}
	needsScope := intent.Kind == IntentMulti ||
		(intent.Kind == IntentSingle && intent.Domain == agent.DomainAnalytics)
	if needsScope {
		return Intent{Kind: IntentUnroutable, Reason: ReasonMissingScope}
	}
	return intent
}

// unroutableText turns an Unroutable reason into user-facing guidance.
func unroutableText(reason string) string {
	switch reason {
	case ReasonMissingScope:
		return "I need an analytics property ID to answer this question. Please provide one and try again."
	case ReasonClassificationFailed:
		return "I could not determine what kind of data your question needs. Try rephrasing it in terms of site traffic or technical site health."
	default:
		return "I could not route this question: " + reason
	}
}
