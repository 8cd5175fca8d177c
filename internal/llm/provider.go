package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ProviderConfig selects and parametrizes one backend.
type ProviderConfig struct {
	Provider string
	Model    string
	APIKey   string
	// CredentialKey is the environment variable named in error messages.
	CredentialKey string
	BaseURL       string
}

// NewProvider constructs the backend named by cfg.Provider. Every failure is
// a *ConfigError.
func NewProvider(ctx context.Context, cfg ProviderConfig) (LLMClient, error) {
	provider := strings.ToLower(strings.TrimSpace(cfg.Provider))
	if provider == "" {
		provider = "openai"
	}
	if strings.TrimSpace(cfg.APIKey) == "" {
		key := cfg.CredentialKey
		if key == "" {
			key = "the API key"
		}
		return nil, missingCredential(key)
	}

	var (
		cli LLMClient
		err error
	)
	switch provider {
	case "openai":
		cli, err = NewOpenAIClient(cfg.APIKey, cfg.Model, cfg.BaseURL)
	case "groq":
		base := cfg.BaseURL
		if base == "" {
			base = GroqBaseURL
		}
		cli, err = NewOpenAIClient(cfg.APIKey, cfg.Model, base)
	case "gemini":
		cli, err = NewGeminiClient(ctx, cfg.APIKey, cfg.Model)
	default:
		return nil, &ConfigError{Err: fmt.Errorf("%w %q", ErrUnknownProvider, cfg.Provider)}
	}
	if err != nil {
		var cfgErr *ConfigError
		if errors.As(err, &cfgErr) {
			return nil, err
		}
		return nil, &ConfigError{Err: fmt.Errorf("init %s client: %w", provider, err)}
	}
	return cli, nil
}
