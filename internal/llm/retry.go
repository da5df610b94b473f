package llm

import (
	"context"
	"log/slog"
	"math/rand"
	"time"
)

const (
	defaultAttempts  = 3
	baseBackoff      = 1 * time.Second
	maxBackoff       = 30 * time.Second
	strictJSONSuffix = "\n\nRespond with ONLY a valid JSON object. No prose, no markdown fences."
)

// CompleteWithRetry invokes the provider with bounded retries.
// Only retryable failures (rate limit, timeout, unavailable) are retried,
// with exponential backoff plus jitter. A RetryAfter hint from the backend
// takes precedence over the computed backoff. Context cancellation stops
// the loop immediately.
func CompleteWithRetry(ctx context.Context, p Provider, req *Request, attempts int, logger *slog.Logger) (*Response, error) {
	if attempts <= 0 {
		attempts = defaultAttempts
	}

	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			delay := backoffDelay(attempt, lastErr)
			logger.WarnContext(ctx, "retrying model call",
				slog.Int("attempt", attempt+1),
				slog.Duration("delay", delay),
				slog.String("error", lastErr.Error()),
			)
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
			}
		}

		resp, err := p.Complete(ctx, req)
		if err == nil {
			return resp, nil
		}
		lastErr = err

		me := AsModelError(err)
		if me == nil || !me.Retryable() {
			return nil, err
		}
	}
	return nil, lastErr
}

// CompleteJSON asks the model for a JSON response, retrying a malformed
// reply once with a stricter instruction before giving up. parse reports
// whether the text was usable.
func CompleteJSON(ctx context.Context, p Provider, req *Request, parse func(string) error, attempts int, logger *slog.Logger) error {
	r := *req
	r.ResponseJSON = true

	resp, err := CompleteWithRetry(ctx, p, &r, attempts, logger)
	if err == nil {
		perr := parse(resp.Text)
		if perr == nil {
			return nil
		}
		err = &ModelError{Kind: KindMalformed, Message: perr.Error()}
	}

	if me := AsModelError(err); me == nil || me.Kind != KindMalformed {
		return err
	}

	// One stricter attempt for malformed output.
	strict := r
	strict.Prompt = r.Prompt + strictJSONSuffix
	resp, err = CompleteWithRetry(ctx, p, &strict, 1, logger)
	if err != nil {
		return err
	}
	if perr := parse(resp.Text); perr != nil {
		return &ModelError{Kind: KindMalformed, Message: perr.Error()}
	}
	return nil
}

// backoffDelay computes the exponential backoff with jitter for the given
// attempt number (1-based for the first retry). A backend RetryAfter hint
// overrides the computed value.
func backoffDelay(attempt int, lastErr error) time.Duration {
	if me := AsModelError(lastErr); me != nil && me.RetryAfter > 0 {
		return me.RetryAfter
	}
	delay := baseBackoff << (attempt - 1)
	if delay > maxBackoff {
		delay = maxBackoff
	}
	// Up to 25% jitter avoids thundering-herd retries from concurrent dispatches.
	jitter := time.Duration(rand.Int63n(int64(delay) / 4))
	return delay + jitter
}

// Governor admits or rejects outbound model calls against a process-wide ceiling.
type Governor interface {
	// Acquire blocks until a slot is available or the context expires.
	// Returns ErrRateLimited-class errors when the caller should fail fast.
	Acquire(ctx context.Context) error
}

// GovernedProvider gates every call through a shared rate governor so
// concurrent dispatches cannot collectively exceed the outbound ceiling.
type GovernedProvider struct {
	inner    Provider
	governor Governor
}

// NewGovernedProvider wraps a provider with the process-wide governor.
// A nil governor disables gating.
func NewGovernedProvider(inner Provider, governor Governor) *GovernedProvider {
	return &GovernedProvider{inner: inner, governor: governor}
}

func (g *GovernedProvider) Name() string { return g.inner.Name() }

func (g *GovernedProvider) Complete(ctx context.Context, req *Request) (*Response, error) {
	if g.governor != nil {
		if err := g.governor.Acquire(ctx); err != nil {
			return nil, &ModelError{Kind: KindRateLimited, Message: err.Error()}
		}
	}
	return g.inner.Complete(ctx, req)
}
