// Package orchestrator implements the query orchestration engine for Spike.
// It classifies an inbound question's intent, routes it to one or both data
// agents, and fuses their findings into a single answer. Two execution
// strategies exist: a fixed classify/decompose/dispatch/aggregate pipeline,
// and a bounded iterative controller that gathers evidence one action at a
// time. A request uses exactly one of them.
package orchestrator

import (
	"github.com/spikehq/spike/internal/agent"
)

// Strategy selects how a request is executed.
type Strategy string

const (
	StrategyPipeline Strategy = "pipeline" // Classify, decompose, dispatch, aggregate.
	StrategyReact    Strategy = "react"    // Iterative think/act/observe loop.
)

// Valid reports whether s names a known strategy.
func (s Strategy) Valid() bool {
	return s == StrategyPipeline || s == StrategyReact
}

// Query is the immutable per-request input.
type Query struct {
	Text     string       // The user's question. Non-empty.
	ScopeID  string       // Optional dataset scope (analytics property ID).
	Strategy Strategy     // Empty = engine default.
	Progress ProgressFunc // Optional stage callback for streaming transports.
}

// ProgressFunc receives coarse execution stages as the engine works through
// a request. Called synchronously; keep it cheap.
type ProgressFunc func(stage Stage)

// Stage is a coarse execution phase reported through ProgressFunc.
type Stage string

const (
	StageClassifying  Stage = "classifying"
	StageRouting      Stage = "routing"
	StageFetching     Stage = "fetching"
	StageSynthesizing Stage = "synthesizing"
)

// IntentKind discriminates the classification result.
type IntentKind string

const (
	IntentSingle     IntentKind = "single"     // One domain suffices.
	IntentMulti      IntentKind = "multi"      // Both domains needed.
	IntentUnroutable IntentKind = "unroutable" // Cannot be routed; see Reason.
)

// Unroutable reasons surfaced to the caller as guidance.
const (
	ReasonMissingScope         = "missing_scope"
	ReasonClassificationFailed = "classification_failed"
)

// Intent is the classifier's verdict for a query. Derived once, never mutated.
type Intent struct {
	Kind   IntentKind
	Domain agent.Domain // Set only for IntentSingle.
	Reason string       // Set only for IntentUnroutable.
}

// SubQuery is one domain-scoped question produced by decomposition.
type SubQuery struct {
	Domain agent.Domain
	Text   string
}

// AgentOutcome is the tagged result of one agent invocation. Exactly one of
// Finding and Err is set.
type AgentOutcome struct {
	Domain  agent.Domain
	Finding *agent.Finding
	Err     error
}

// Ok reports whether the invocation produced a finding.
func (o AgentOutcome) Ok() bool { return o.Err == nil }

// Observation records one completed iteration of the iterative controller.
type Observation struct {
	Action string // What the model chose to do.
	Result string // Summary of what happened.
}

// IterationState is the iterative controller's working memory. Mutated only
// by the controller; frozen once Completed is set.
type IterationState struct {
	Query        string
	ScopeID      string
	Observations []Observation
	Iterations   int
	Completed    bool // True iff the model finalized before the cap.
}

// Answer is the terminal artifact returned to the caller. Partial is true
// when at least one underlying call failed but the answer was still built
// from whatever succeeded.
type Answer struct {
	Text    string `json:"text"`
	Partial bool   `json:"partial"`
}
