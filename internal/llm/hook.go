package llm

import "context"

// PromptHook observes each request and its outcome.
type PromptHook interface {
	Before(ctx context.Context, phase string, req Request)
	After(ctx context.Context, phase string, text string, err error)
}

type ctxKeyHook struct{}
type ctxKeyPhase struct{}

// WithHook attaches hook to the context of every Generate call made through
// the returned client. The WithHooks middleware further down the chain is what
// invokes it.
func WithHook(base LLMClient, hook PromptHook) LLMClient {
	return &hookAttached{base: base, hook: hook}
}

type hookAttached struct {
	base LLMClient
	hook PromptHook
}

func (h *hookAttached) Name() string { return h.base.Name() }
func (h *hookAttached) Close() error { return h.base.Close() }

func (h *hookAttached) Generate(ctx context.Context, req Request) (string, error) {
	ctx = context.WithValue(ctx, ctxKeyHook{}, h.hook)
	return h.base.Generate(ctx, req)
}

func WithPhase(ctx context.Context, phase string) context.Context {
	return context.WithValue(ctx, ctxKeyPhase{}, phase)
}

// HookFrom returns the hook stored in the context.
func HookFrom(ctx context.Context) PromptHook {
	if v := ctx.Value(ctxKeyHook{}); v != nil {
		if h, ok := v.(PromptHook); ok {
			return h
		}
	}
	return nil
}

// PhaseFrom returns the phase string stored in the context.
func PhaseFrom(ctx context.Context) string {
	if v := ctx.Value(ctxKeyPhase{}); v != nil {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return "unknown"
}
