package orchestrator

import (
	"context"
	"log/slog"
	"time"

	"github.com/spikehq/spike/internal/agent"
	"github.com/spikehq/spike/internal/llm"
)

// Options carries the engine's tunables. Zero values fall back to the
// documented defaults, so an empty Options is usable.
type Options struct {
	Strategy        Strategy      // Default execution strategy. Default: pipeline.
	MaxIterations   int           // Iterative loop cap. Default: 5.
	GlobalTimeout   time.Duration // Per-request bound. Default: 120s.
	AgentTimeout    time.Duration // Per agent call attempt. Default: 30s.
	AgentRetries    int           // Attempts per agent call. Default: 3.
	ClassifyRetries int           // Extra classification attempts. Default: 2.
}

// Engine is the single public entry point of the orchestration core. It is
// stateless across requests; concurrent Route calls share nothing but the
// injected provider (which carries the process-wide rate governor) and the
// agent clients.
type Engine struct {
	provider llm.Provider
	agents   map[agent.Domain]agent.Agent
	logger   *slog.Logger
	metrics  *Metrics

	strategy         Strategy
	maxIterations    int
	globalTimeout    time.Duration
	agentTimeout     time.Duration
	agentRetries     int
	classifyAttempts int
}

// NewEngine builds an engine over the given model provider and agents.
// metrics may be nil to disable instrumentation.
func NewEngine(provider llm.Provider, agents []agent.Agent, opts Options, logger *slog.Logger, metrics *Metrics) *Engine {
	byDomain := make(map[agent.Domain]agent.Agent, len(agents))
	for _, a := range agents {
		byDomain[a.Domain()] = a
	}

	e := &Engine{
		provider:         provider,
		agents:           byDomain,
		logger:           logger,
		metrics:          metrics,
		strategy:         StrategyPipeline,
		maxIterations:    5,
		globalTimeout:    120 * time.Second,
		agentTimeout:     30 * time.Second,
		agentRetries:     3,
		classifyAttempts: 3,
	}
	if opts.Strategy.Valid() {
		e.strategy = opts.Strategy
	}
	if opts.MaxIterations > 0 {
		e.maxIterations = opts.MaxIterations
	}
	if opts.GlobalTimeout > 0 {
		e.globalTimeout = opts.GlobalTimeout
	}
	if opts.AgentTimeout > 0 {
		e.agentTimeout = opts.AgentTimeout
	}
	if opts.AgentRetries > 0 {
		e.agentRetries = opts.AgentRetries
	}
	if opts.ClassifyRetries > 0 {
		e.classifyAttempts = 1 + opts.ClassifyRetries
	}
	return e
}

// Route answers a query. It never returns an error: every failure mode
// (unroutable query, dead agents, dead model, global timeout) degrades to
// an Answer the transport can deliver as-is. The whole call is bounded by
// the global timeout; on expiry the answer is built from whatever completed.
func (e *Engine) Route(ctx context.Context, q Query) *Answer {
	ctx, cancel := context.WithTimeout(ctx, e.globalTimeout)
	defer cancel()

	strategy := e.strategy
	if q.Strategy.Valid() {
		strategy = q.Strategy
	}

	start := time.Now()
	var answer *Answer
	if strategy == StrategyReact {
		answer = e.runIterative(ctx, q)
	} else {
		answer = e.runPipeline(ctx, q)
	}

	e.metrics.route(strategy, answer.Partial, time.Since(start))
	e.logger.InfoContext(ctx, "query routed",
		slog.String("strategy", string(strategy)),
		slog.Bool("partial", answer.Partial),
		slog.Duration("duration", time.Since(start)),
	)
	return answer
}

// runPipeline is the fixed classify/decompose/dispatch/aggregate path.
func (e *Engine) runPipeline(ctx context.Context, q Query) *Answer {
	q.notify(StageClassifying)
	intent := e.classify(ctx, q)
	e.metrics.intent(intent)

	if intent.Kind == IntentUnroutable {
		// Guidance to the caller, not a system fault. Zero agent calls.
		return &Answer{Text: unroutableText(intent.Reason), Partial: true}
	}

	q.notify(StageRouting)
	var subs []SubQuery
	if intent.Kind == IntentSingle {
		subs = []SubQuery{{Domain: intent.Domain, Text: q.Text}}
	} else {
		subs = e.decompose(ctx, q)
	}

	q.notify(StageFetching)
	outcomes := e.dispatch(ctx, subs, q.ScopeID)

	q.notify(StageSynthesizing)
	return e.aggregate(ctx, q, outcomes)
}

func (q Query) notify(stage Stage) {
	if q.Progress != nil {
		q.Progress(stage)
	}
}
