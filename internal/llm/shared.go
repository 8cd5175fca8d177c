package llm

import (
	"context"
	"errors"
	"sync"
)

// Factory builds the underlying client on first use.
type Factory func(ctx context.Context) (LLMClient, error)

// Shared is the run-wide client handle. The backend is constructed lazily on
// the first Generate call and reused afterwards; a failed construction is
// attempted again on the next call. Errors leaving Generate are always either
// a *ConfigError or a *RequestError.
type Shared struct {
	name    string
	factory Factory

	mu  sync.Mutex
	cli LLMClient
}

func NewShared(name string, factory Factory) *Shared {
	return &Shared{name: name, factory: factory}
}

func (s *Shared) Name() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cli != nil {
		return s.cli.Name()
	}
	return s.name
}

func (s *Shared) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cli == nil {
		return nil
	}
	err := s.cli.Close()
	s.cli = nil
	return err
}

func (s *Shared) client(ctx context.Context) (LLMClient, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cli != nil {
		return s.cli, nil
	}
	if s.factory == nil {
		return nil, &ConfigError{Err: errors.New("no client factory configured")}
	}
	cli, err := s.factory(ctx)
	if err != nil {
		if IsConfigError(err) {
			return nil, err
		}
		return nil, &ConfigError{Err: err}
	}
	if cli == nil {
		return nil, &ConfigError{Err: errors.New("client factory returned nil")}
	}
	s.cli = cli
	return cli, nil
}

func (s *Shared) Generate(ctx context.Context, req Request) (string, error) {
	cli, err := s.client(ctx)
	if err != nil {
		return "", err
	}
	text, err := cli.Generate(ctx, req)
	if err != nil {
		if IsConfigError(err) {
			return "", err
		}
		return "", &RequestError{Err: err}
	}
	if text == "" {
		return "", &RequestError{Err: ErrEmptyResponse}
	}
	return text, nil
}
