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

func TestClient_OpenAI(t *testing.T) {
	var got map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{
				{"message": map[string]any{"content": "  hello there \n"}},
			},
		})
	}))
	defer server.Close()

	c := NewClient(Config{Provider: "openai", APIKey: "sk-test", BaseURL: server.URL})
	text, err := c.Complete(context.Background(), "say hello")

	require.NoError(t, err)
	assert.Equal(t, "hello there", text)
	assert.Equal(t, "gpt-4o-mini", got["model"])
	messages := got["messages"].([]any)
	assert.Equal(t, "say hello", messages[0].(map[string]any)["content"])
}

func TestClient_Anthropic_JoinsTextBlocks(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/messages", r.URL.Path)
		assert.Equal(t, "key", r.Header.Get("x-api-key"))
		assert.Equal(t, "2023-06-01", r.Header.Get("anthropic-version"))

		_ = json.NewEncoder(w).Encode(map[string]any{
			"content": []map[string]any{
				{"type": "text", "text": "first"},
				{"type": "tool_use", "text": "ignored"},
				{"type": "text", "text": "second"},
			},
		})
	}))
	defer server.Close()

	c := NewClient(Config{Provider: "Anthropic", APIKey: "key", BaseURL: server.URL + "/"})
	assert.Equal(t, ProviderAnthropic, c.Provider())
	assert.Equal(t, "claude-sonnet-4-20250514", c.Model())

	text, err := c.Complete(context.Background(), "prompt")
	require.NoError(t, err)
	assert.Equal(t, "first\n\nsecond", text)
}

func TestClient_StatusError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":"slow down"}`))
	}))
	defer server.Close()

	c := NewClient(Config{APIKey: "k", BaseURL: server.URL})
	_, err := c.Complete(context.Background(), "p")

	var statusErr *StatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, http.StatusTooManyRequests, statusErr.StatusCode)
	assert.Equal(t, ProviderOpenAI, statusErr.Provider)
}

func TestClient_EmptyResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"choices":[]}`))
	}))
	defer server.Close()

	_, err := NewClient(Config{BaseURL: server.URL}).Complete(context.Background(), "p")
	assert.ErrorIs(t, err, ErrEmptyResponse)
}

func TestStripCodeFence(t *testing.T) {
	assert.Equal(t, `["a"]`, StripCodeFence("```json\n[\"a\"]\n```"))
	assert.Equal(t, `["a"]`, StripCodeFence("  [\"a\"]  "))
	assert.Equal(t, "plain", StripCodeFence("```plain```"))
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "abc", Truncate("abc", 5))
	assert.Equal(t, "ab...", Truncate("abcdef", 2))
}
