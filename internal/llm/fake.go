package llm

import (
	"context"
	"sync"
)

// Reply is one scripted FakeClient answer.
type Reply struct {
	Text string
	Err  error
}

// FakeClient returns scripted replies in order and records every request.
// It is used for offline runs and tests.
type FakeClient struct {
	mu       sync.Mutex
	replies  []Reply
	requests []Request
}

func NewFakeClient(replies ...Reply) *FakeClient {
	return &FakeClient{replies: replies}
}

func (f *FakeClient) Name() string { return "FakeLLM" }
func (f *FakeClient) Close() error { return nil }

func (f *FakeClient) Generate(ctx context.Context, req Request) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, req)
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if len(f.replies) == 0 {
		return "", ErrNoScriptedResponse
	}
	r := f.replies[0]
	f.replies = f.replies[1:]
	return r.Text, r.Err
}

// Requests returns a copy of the requests received so far.
func (f *FakeClient) Requests() []Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Request(nil), f.requests...)
}
