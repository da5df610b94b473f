package orchestrator

import (
	"context"
	"log/slog"
	"strings"

	"github.com/spikehq/spike/internal/agent"
	"github.com/spikehq/spike/internal/llm"
)

// subQuerySpec is the model's wire-level decomposition entry.
type subQuerySpec struct {
	Domain string `json:"domain"`
	Query  string `json:"query"`
}

// decompose splits a multi-domain query into exactly one SubQuery per known
// domain, in canonical domain order. The model proposes the split; any
// domain it omits, duplicates, or invents is normalized away with the
// original query text as the fallback. Decomposition never fails: a dead
// model simply yields the original text for every domain.
func (e *Engine) decompose(ctx context.Context, q Query) []SubQuery {
	var specs []subQuerySpec
	req := &llm.Request{
		System: decomposerSystemPrompt,
		Prompt: q.Text,
	}

	err := llm.CompleteJSON(ctx, e.provider, req, func(text string) error {
		var parsed []subQuerySpec
		if perr := unmarshalArray(text, &parsed); perr != nil {
			return perr
		}
		specs = parsed
		return nil
	}, 1, e.logger)
	if err != nil {
		e.logger.WarnContext(ctx, "decomposition fell back to original query",
			slog.String("error", err.Error()),
		)
	}

	byDomain := make(map[agent.Domain]string, len(specs))
	for _, s := range specs {
		d := agent.Domain(strings.ToLower(strings.TrimSpace(s.Domain)))
		if !d.Valid() || strings.TrimSpace(s.Query) == "" {
			continue
		}
		if _, dup := byDomain[d]; dup {
			continue
		}
		byDomain[d] = strings.TrimSpace(s.Query)
	}

	subs := make([]SubQuery, 0, len(agent.KnownDomains()))
	for _, d := range agent.KnownDomains() {
		text, ok := byDomain[d]
		if !ok {
			text = q.Text
		}
		subs = append(subs, SubQuery{Domain: d, Text: text})
	}
	return subs
}
