package llm

import (
	"context"
	"log/slog"
	"time"
)

// Middleware decorates an LLMClient to inject cross-cutting concerns
// (rate limiting, retries, logging, hooks, etc.).
type Middleware func(LLMClient) LLMClient

// Wrap applies middlewares in left-to-right order.
// Example: Wrap(inner, A, B) => A(B(inner))
func Wrap(inner LLMClient, mws ...Middleware) LLMClient {
	out := inner
	for i := len(mws) - 1; i >= 0; i-- {
		if mws[i] == nil {
			continue
		}
		out = mws[i](out)
	}
	return out
}

// -------- Rate Limiting --------

// RateLimit limits request rate. If rps <= 0, the limiter is disabled.
func RateLimit(rps float64, burst int) Middleware {
	return func(next LLMClient) LLMClient {
		return &rateLimited{next: next, rl: newRPSLimiter(rps, burst)}
	}
}

type rateLimited struct {
	next LLMClient
	rl   *rpsLimiter
}

func (c *rateLimited) Name() string { return c.next.Name() }
func (c *rateLimited) Close() error {
	c.rl.Stop()
	return c.next.Close()
}
func (c *rateLimited) Generate(ctx context.Context, req Request) (string, error) {
	if err := c.rl.Acquire(ctx); err != nil {
		return "", err
	}
	return c.next.Generate(ctx, req)
}

// -------- Retry with exponential backoff --------

// Retry retries Generate up to maxAttempts with exponential backoff starting
// at baseDelay. Permanent and configuration errors are returned immediately,
// as is context cancellation.
func Retry(maxAttempts int, baseDelay time.Duration) Middleware {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	if baseDelay <= 0 {
		baseDelay = 300 * time.Millisecond
	}
	return func(next LLMClient) LLMClient {
		return &retrying{next: next, max: maxAttempts, base: baseDelay}
	}
}

type retrying struct {
	next LLMClient
	max  int
	base time.Duration
}

func (r *retrying) Name() string { return r.next.Name() }
func (r *retrying) Close() error { return r.next.Close() }

func (r *retrying) Generate(ctx context.Context, req Request) (string, error) {
	var last error
	for i := 0; i < r.max; i++ {
		text, err := r.next.Generate(ctx, req)
		if err == nil {
			return text, nil
		}
		if IsPermanent(err) {
			return "", err
		}
		last = err
		if i == r.max-1 {
			break
		}
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(r.base * time.Duration(1<<i)):
		}
	}
	return "", last
}

// -------- Logging & Hooks --------

// WithLogging logs request size and errors. A nil logger uses slog.Default().
func WithLogging(logger *slog.Logger) Middleware {
	if logger == nil {
		logger = slog.Default()
	}
	return func(next LLMClient) LLMClient {
		return &logging{next: next, log: logger}
	}
}

type logging struct {
	next LLMClient
	log  *slog.Logger
}

func (l *logging) Name() string { return l.next.Name() }
func (l *logging) Close() error { return l.next.Close() }
func (l *logging) Generate(ctx context.Context, req Request) (string, error) {
	phase := PhaseFrom(ctx)
	start := time.Now()
	l.log.Info("llm request", "client", l.next.Name(), "phase", phase, "bytes", len(req.System)+len(req.User))
	text, err := l.next.Generate(ctx, req)
	if err != nil {
		l.log.Warn("llm error", "client", l.next.Name(), "phase", phase, "error", err)
		return text, err
	}
	l.log.Debug("llm response", "client", l.next.Name(), "phase", phase, "bytes", len(text), "elapsed", time.Since(start))
	return text, nil
}

// WithHooks calls HookFrom(ctx).Before/After around Generate.
// If no hook is present in the context, it is a no-op.
func WithHooks() Middleware {
	return func(next LLMClient) LLMClient {
		return &hooked{next: next}
	}
}

type hooked struct{ next LLMClient }

func (h *hooked) Name() string { return h.next.Name() }
func (h *hooked) Close() error { return h.next.Close() }
func (h *hooked) Generate(ctx context.Context, req Request) (string, error) {
	hook := HookFrom(ctx)
	if hook != nil {
		hook.Before(ctx, PhaseFrom(ctx), req)
	}
	text, err := h.next.Generate(ctx, req)
	if hook != nil {
		hook.After(ctx, PhaseFrom(ctx), text, err)
	}
	return text, err
}
