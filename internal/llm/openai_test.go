package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenAIClient_Generate(t *testing.T) {
	var got chatReq
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"<DESIGN>d</DESIGN><TB>t</TB>"}}]}`))
	}))
	defer srv.Close()

	cli, err := NewOpenAIClient("sk-test", "gpt-4o-mini", srv.URL)
	require.NoError(t, err)
	assert.Equal(t, "OpenAI:gpt-4o-mini", cli.Name())

	text, err := cli.Generate(context.Background(), Request{System: "sys", User: "usr", MaxTokens: 2048})
	require.NoError(t, err)
	assert.Equal(t, "<DESIGN>d</DESIGN><TB>t</TB>", text)

	assert.Equal(t, "gpt-4o-mini", got.Model)
	assert.Equal(t, 2048, got.MaxTokens)
	require.Len(t, got.Messages, 2)
	assert.Equal(t, chatMessage{Role: "system", Content: "sys"}, got.Messages[0])
	assert.Equal(t, chatMessage{Role: "user", Content: "usr"}, got.Messages[1])
}

func TestOpenAIClient_EmptyChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"choices":[]}`))
	}))
	defer srv.Close()

	cli, err := NewOpenAIClient("k", "m", srv.URL)
	require.NoError(t, err)
	_, err = cli.Generate(context.Background(), Request{})
	assert.ErrorIs(t, err, ErrEmptyResponse)
}

func TestOpenAIClient_StatusErrors(t *testing.T) {
	cases := []struct {
		name      string
		status    int
		body      string
		permanent bool
	}{
		{"rate limited", http.StatusTooManyRequests, `{"error":"slow down"}`, false},
		{"server error", http.StatusInternalServerError, `oops`, false},
		{"unauthorized", http.StatusUnauthorized, `{"error":"bad key"}`, true},
		{"context length", http.StatusBadRequest, `{"error":{"code":"context_length_exceeded"}}`, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				_, _ = w.Write([]byte(tc.body))
			}))
			defer srv.Close()

			cli, err := NewOpenAIClient("k", "m", srv.URL)
			require.NoError(t, err)
			_, err = cli.Generate(context.Background(), Request{})
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.body)
			var pErr *PermanentError
			assert.Equal(t, tc.permanent, errors.As(err, &pErr))
		})
	}
}

func TestNewOpenAIClient_Validation(t *testing.T) {
	_, err := NewOpenAIClient("", "m", "")
	assert.ErrorIs(t, err, ErrMissingCredential)

	cli, err := NewOpenAIClient("k", "llama", GroqBaseURL)
	require.NoError(t, err)
	assert.Equal(t, "Groq:llama", cli.Name())
}

func TestNewProvider(t *testing.T) {
	ctx := context.Background()

	_, err := NewProvider(ctx, ProviderConfig{Provider: "openai", Model: "m", CredentialKey: "OPENAI_API_KEY"})
	require.Error(t, err)
	assert.True(t, IsConfigError(err))
	assert.ErrorIs(t, err, ErrMissingCredential)
	assert.Contains(t, err.Error(), "OPENAI_API_KEY")

	_, err = NewProvider(ctx, ProviderConfig{Provider: "anthropic-ish", Model: "m", APIKey: "k"})
	assert.True(t, IsConfigError(err))
	assert.ErrorIs(t, err, ErrUnknownProvider)

	cli, err := NewProvider(ctx, ProviderConfig{Provider: "groq", Model: "llama", APIKey: "k"})
	require.NoError(t, err)
	assert.Equal(t, "Groq:llama", cli.Name())
}
