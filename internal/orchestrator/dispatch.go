package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"github.com/spikehq/spike/internal/agent"
)

const (
	agentBaseBackoff = 500 * time.Millisecond
	agentMaxBackoff  = 10 * time.Second
)

// dispatch invokes every sub-query's agent concurrently and returns one
// outcome per input, in input order, regardless of completion order. Calls
// are independent: one agent failing or timing out never cancels a sibling.
func (e *Engine) dispatch(ctx context.Context, subs []SubQuery, scopeID string) []AgentOutcome {
	outcomes := make([]AgentOutcome, len(subs))

	var wg sync.WaitGroup
	for i, sub := range subs {
		wg.Add(1)
		go func(i int, sub SubQuery) {
			defer wg.Done()
			outcomes[i] = e.invokeOne(ctx, sub, scopeID)
		}(i, sub)
	}
	wg.Wait()

	return outcomes
}

// invokeOne runs a single agent call with per-attempt timeout and bounded
// retries. Only transient failures (upstream 5xx/rate-limit, timeouts) are
// retried; scope and data errors fail immediately. A panicking agent is
// recovered into an internal-error outcome so the slot is never dropped.
func (e *Engine) invokeOne(ctx context.Context, sub SubQuery, scopeID string) (out AgentOutcome) {
	out = AgentOutcome{Domain: sub.Domain}

	defer func() {
		if r := recover(); r != nil {
			e.logger.ErrorContext(ctx, "agent panicked",
				slog.String("domain", string(sub.Domain)),
				slog.Any("panic", r),
			)
			out.Finding = nil
			out.Err = &agent.Error{
				Domain:  sub.Domain,
				Kind:    agent.KindInternal,
				Message: fmt.Sprintf("agent panic: %v", r),
			}
		}
	}()

	a, ok := e.agents[sub.Domain]
	if !ok {
		out.Err = &agent.Error{
			Domain:  sub.Domain,
			Kind:    agent.KindInternal,
			Message: "no agent registered for domain",
		}
		return out
	}

	var lastErr error
	for attempt := 0; attempt < e.agentRetries; attempt++ {
		if attempt > 0 {
			delay := agentBackoff(attempt)
			e.logger.WarnContext(ctx, "retrying agent call",
				slog.String("domain", string(sub.Domain)),
				slog.Int("attempt", attempt+1),
				slog.Duration("delay", delay),
				slog.String("error", lastErr.Error()),
			)
			select {
			case <-ctx.Done():
				out.Err = timeoutError(sub.Domain, ctx.Err())
				return out
			case <-time.After(delay):
			}
		}

		callCtx, cancel := context.WithTimeout(ctx, e.agentTimeout)
		finding, err := a.Invoke(callCtx, sub.Text, scopeID)
		cancel()
		if err == nil {
			out.Finding = finding
			e.metrics.agentCall(sub.Domain, "ok")
			return out
		}
		lastErr = err

		if ctx.Err() != nil {
			// Global deadline hit; no point retrying.
			out.Err = timeoutError(sub.Domain, ctx.Err())
			e.metrics.agentCall(sub.Domain, "timeout")
			return out
		}

		ae := agent.AsError(err)
		if ae == nil || !ae.Transient() {
			break
		}
	}

	out.Err = lastErr
	status := "error"
	if ae := agent.AsError(lastErr); ae != nil {
		status = string(ae.Kind)
	}
	e.metrics.agentCall(sub.Domain, status)
	return out
}

// timeoutError wraps a context expiry as a typed agent timeout.
func timeoutError(d agent.Domain, cause error) error {
	return &agent.Error{Domain: d, Kind: agent.KindTimeout, Message: cause.Error()}
}

// agentBackoff computes the retry delay for the given attempt (1-based for
// the first retry): exponential growth plus up to 25% jitter.
func agentBackoff(attempt int) time.Duration {
	delay := agentBaseBackoff << (attempt - 1)
	if delay > agentMaxBackoff {
		delay = agentMaxBackoff
	}
	jitter := time.Duration(rand.Int63n(int64(delay) / 4))
	return delay + jitter
}
