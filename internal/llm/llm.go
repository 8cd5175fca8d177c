package llm

import "context"

// Request is one chat completion: a system block, a user block and a cap on
// the response length.
type Request struct {
	System    string
	User      string
	MaxTokens int
}

// LLMClient is implemented by every provider and middleware.
type LLMClient interface {
	Name() string
	Close() error
	// Generate returns the raw text of the model's reply.
	Generate(ctx context.Context, req Request) (string, error)
}
