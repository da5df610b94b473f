package orchestrator

import (
	"fmt"
	"strings"
)

// System prompts for the model-backed stages. Every structured stage asks
// for strict JSON; parsing still tolerates surrounding prose.

const classifierSystemPrompt = `You are the intent classifier for Spike, an assistant that answers questions about website performance using two data sources:
- analytics: behavioral traffic data (sessions, users, page views, conversions, traffic sources, engagement over time)
- seo: technical site audit data (broken links, missing metadata, accessibility violations, crawl issues, page speed findings)

Classify the user's question:
- "analytics" if it can be answered from behavioral traffic data alone
- "seo" if it can be answered from technical audit data alone
- "multi" if it needs BOTH, either through explicit conjunction ("and", "as well as", "compare X with Y") or because the question semantically requires both kinds of data

Base your decision on the question's content only. Do not consider whether a property ID was supplied.

Output ONLY a JSON object with this schema:
{
  "intent": "analytics|seo|multi",
  "reason": "One sentence explaining the choice"
}`

const decomposerSystemPrompt = `You are the query decomposer for Spike. The user's question needs data from both domains:
- analytics: behavioral traffic data
- seo: technical site audit data

Split the question into exactly two self-contained sub-questions, one per domain. Each sub-question must be answerable on its own, without the other domain's result.

Output ONLY a JSON array with this schema:
[
  {"domain": "analytics", "query": "The analytics sub-question"},
  {"domain": "seo", "query": "The seo sub-question"}
]`

const aggregatorSystemPrompt = `You are the answer synthesizer for Spike. You receive the user's original question and the findings (or failures) from one or more specialized data agents.

Write one coherent, concise answer to the original question:
- Ground every claim in the findings; never invent numbers
- If an agent failed, acknowledge the gap in one short sentence and answer with what succeeded
- Plain prose, no markdown headings`

const reactSystemPrompt = `You are the reasoning controller for Spike. You answer the user's question by gathering evidence one step at a time. Available actions:
- analytics: query behavioral traffic data (sessions, users, page views, traffic sources)
- seo: query technical site audit data (broken links, metadata, accessibility, crawl issues)
- finalize: stop and deliver the final answer

Each turn, review the question and all observations so far, then choose exactly ONE action. Choose finalize as soon as you have enough evidence; do not re-fetch data you already have.

Output ONLY a JSON object with this schema:
{
  "action": "analytics|seo|finalize",
  "argument": "The sub-question to ask the agent, or the final answer text when finalizing"
}`

// buildAggregatePrompt lays out the original question and every outcome in
// input order, so identical inputs produce an identical prompt.
func buildAggregatePrompt(query string, outcomes []AgentOutcome) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Original question: %s\n\nAgent results:\n", query)
	for i, o := range outcomes {
		if o.Ok() {
			fmt.Fprintf(&b, "%d. [%s] %s\n", i+1, o.Domain, o.Finding.Text)
			continue
		}
		fmt.Fprintf(&b, "%d. [%s] FAILED: %s\n", i+1, o.Domain, outcomeFailure(o))
	}
	b.WriteString("\nWrite the answer.")
	return b.String()
}

// buildThinkPrompt renders the iterative controller's working memory for the
// next action decision.
func buildThinkPrompt(state *IterationState) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Question: %s\n", state.Query)
	if state.ScopeID != "" {
		fmt.Fprintf(&b, "Analytics property ID: %s\n", state.ScopeID)
	}
	if len(state.Observations) == 0 {
		b.WriteString("\nNo observations yet. Choose your first action.")
		return b.String()
	}
	b.WriteString("\nObservations so far:\n")
	for i, obs := range state.Observations {
		fmt.Fprintf(&b, "%d. action=%s result=%s\n", i+1, obs.Action, obs.Result)
	}
	b.WriteString("\nChoose the next action.")
	return b.String()
}

// buildSynthesisPrompt is the forced-synthesis prompt used when the
// iterative loop hits its cap without a finalize action.
func buildSynthesisPrompt(state *IterationState) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Original question: %s\n\nEvidence gathered:\n", state.Query)
	for i, obs := range state.Observations {
		fmt.Fprintf(&b, "%d. action=%s result=%s\n", i+1, obs.Action, obs.Result)
	}
	b.WriteString("\nWrite the best possible answer from this evidence.")
	return b.String()
}
