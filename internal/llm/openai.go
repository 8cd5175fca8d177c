package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

const (
	OpenAIBaseURL = "https://api.openai.com/v1/chat/completions"
	GroqBaseURL   = "https://api.groq.com/openai/v1/chat/completions"
)

// OpenAIClient calls an OpenAI-compatible Chat Completions endpoint. Groq and
// most self-hosted gateways speak the same protocol.
type OpenAIClient struct {
	http    *http.Client
	apiKey  string
	model   string
	baseURL string
	label   string
}

func NewOpenAIClient(apiKey, model, baseURL string) (*OpenAIClient, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, ErrMissingCredential
	}
	if strings.TrimSpace(model) == "" {
		return nil, fmt.Errorf("openai: model is required")
	}
	if strings.TrimSpace(baseURL) == "" {
		baseURL = OpenAIBaseURL
	}
	label := "OpenAI"
	if baseURL == GroqBaseURL {
		label = "Groq"
	}
	return &OpenAIClient{
		http:    &http.Client{},
		apiKey:  apiKey,
		model:   model,
		baseURL: baseURL,
		label:   label,
	}, nil
}

func (c *OpenAIClient) Name() string { return c.label + ":" + c.model }
func (c *OpenAIClient) Close() error { return nil }

type chatReq struct {
	Model     string        `json:"model"`
	Messages  []chatMessage `json:"messages"`
	MaxTokens int           `json:"max_tokens,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResp struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

func (c *OpenAIClient) Generate(ctx context.Context, req Request) (string, error) {
	body, err := json.Marshal(chatReq{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: req.System},
			{Role: "user", Content: req.User},
		},
		MaxTokens: req.MaxTokens,
	})
	if err != nil {
		return "", err
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(resp.Body)
		const limit = 2048
		if len(raw) > limit {
			raw = raw[:limit]
		}
		err := fmt.Errorf("%s: unexpected status %s: %s", strings.ToLower(c.label), resp.Status, strings.TrimSpace(string(raw)))
		switch {
		case resp.StatusCode == http.StatusUnauthorized:
			return "", NewPermanentError(err)
		case resp.StatusCode == http.StatusBadRequest && strings.Contains(string(raw), "context_length_exceeded"):
			return "", NewPermanentError(err)
		}
		return "", err
	}

	var out chatResp
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("%s: decode response: %w", strings.ToLower(c.label), err)
	}
	if len(out.Choices) == 0 || out.Choices[0].Message.Content == "" {
		return "", ErrEmptyResponse
	}
	return out.Choices[0].Message.Content, nil
}
