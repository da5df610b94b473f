package orchestrator

import (
	"context"
	"log/slog"
	"strings"

	"github.com/spikehq/spike/internal/agent"
	"github.com/spikehq/spike/internal/llm"
)

// actionSpec is the model's wire-level action decision.
type actionSpec struct {
	Action   string `json:"action"`
	Argument string `json:"argument"`
}

const actionFinalize = "finalize"

// runIterative executes the think/act/observe loop. Each iteration asks the
// model for exactly one action (query a domain or finalize), runs it, and
// appends the observation. The loop is strictly sequential and always
// terminates within the iteration cap: an unparseable or failed think step
// still consumes an iteration as a no-op observation. Hitting the cap
// without a finalize forces a synthesis call and marks the answer partial.
func (e *Engine) runIterative(ctx context.Context, q Query) *Answer {
	state := &IterationState{Query: q.Text, ScopeID: q.ScopeID}

	for state.Iterations < e.maxIterations && !state.Completed {
		if ctx.Err() != nil {
			break
		}

		q.notify(StageRouting)
		act, err := e.think(ctx, state)
		if err != nil {
			e.logger.WarnContext(ctx, "think step unusable",
				slog.Int("iteration", state.Iterations+1),
				slog.String("error", err.Error()),
			)
			state.observe("unparseable", "action could not be parsed, retry")
			continue
		}

		if act.Action == actionFinalize {
			state.observe(actionFinalize, "final answer delivered")
			state.Completed = true
			if text := strings.TrimSpace(act.Argument); text != "" {
				e.metrics.iterations(state.Iterations)
				return &Answer{Text: text}
			}
			// Finalize without content; synthesize from what we have.
			break
		}

		q.notify(StageFetching)
		domain := agent.Domain(act.Action)
		outcome := e.invokeOne(ctx, SubQuery{Domain: domain, Text: act.Argument}, q.ScopeID)
		if outcome.Ok() {
			state.observe(act.Action, outcome.Finding.Text)
		} else {
			state.observe(act.Action, "failed: "+outcomeFailure(outcome))
		}
	}

	e.metrics.iterations(state.Iterations)

	q.notify(StageSynthesizing)
	partial := !state.Completed
	resp, err := llm.CompleteWithRetry(ctx, e.provider, &llm.Request{
		System: aggregatorSystemPrompt,
		Prompt: buildSynthesisPrompt(state),
	}, 0, e.logger)
	if err != nil {
		e.logger.WarnContext(ctx, "forced synthesis degraded to template",
			slog.String("error", err.Error()),
		)
		return &Answer{Text: observationSummary(state), Partial: true}
	}
	return &Answer{Text: strings.TrimSpace(resp.Text), Partial: partial}
}

// think asks the model for the next action. Unknown action names are
// rejected here so the caller can burn the iteration as a no-op.
func (e *Engine) think(ctx context.Context, state *IterationState) (*actionSpec, error) {
	var act actionSpec
	req := &llm.Request{
		System: reactSystemPrompt,
		Prompt: buildThinkPrompt(state),
	}

	err := llm.CompleteJSON(ctx, e.provider, req, func(text string) error {
		var a actionSpec
		if perr := unmarshalObject(text, &a); perr != nil {
			return perr
		}
		a.Action = strings.ToLower(strings.TrimSpace(a.Action))
		if a.Action != actionFinalize && !agent.Domain(a.Action).Valid() {
			return errUnknownAction(a.Action)
		}
		act = a
		return nil
	}, 1, e.logger)
	if err != nil {
		return nil, err
	}
	return &act, nil
}

type errUnknownAction string

func (e errUnknownAction) Error() string { return "unknown action " + string(e) }

// observe appends an observation and consumes one iteration.
func (s *IterationState) observe(action, result string) {
	s.Observations = append(s.Observations, Observation{Action: action, Result: result})
	s.Iterations++
}

// observationSummary is the templated fallback when even the forced
// synthesis call fails.
func observationSummary(state *IterationState) string {
	if len(state.Observations) == 0 {
		return "I could not gather any evidence to answer this question."
	}
	var b strings.Builder
	b.WriteString("Here is the evidence I gathered:")
	for _, obs := range state.Observations {
		if obs.Action == "unparseable" || obs.Action == actionFinalize {
			continue
		}
		b.WriteString("\n- " + obs.Action + ": " + obs.Result)
	}
	return b.String()
}
