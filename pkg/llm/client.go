// Package llm is a minimal chat-completion client for OpenAI and Anthropic.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
)

// ErrEmptyResponse is returned when the provider answers without any text.
var ErrEmptyResponse = errors.New("llm returned no content")

// Config configures a Client.
type Config struct {
	Provider          string
	Model             string
	APIKey            string
	BaseURL           string
	Temperature       float64
	MaxTokens         int
	RequestsPerMinute int
	Timeout           time.Duration
}

// Client sends single-prompt completions to the configured provider.
type Client struct {
	client      *http.Client
	limiter     *rate.Limiter
	provider    string
	model       string
	apiKey      string
	baseURL     string
	temperature float64
	maxTokens   int
}

// NewClient creates a new LLM client. Unknown providers fall back to OpenAI.
func NewClient(cfg Config) *Client {
	provider := strings.ToLower(cfg.Provider)
	if provider != ProviderAnthropic {
		provider = ProviderOpenAI
	}

	model := cfg.Model
	if model == "" {
		switch provider {
		case ProviderAnthropic:
			model = "claude-sonnet-4-20250514"
		default:
			model = "gpt-4o-mini"
		}
	}

	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		switch provider {
		case ProviderAnthropic:
			baseURL = "https://api.anthropic.com"
		default:
			baseURL = "https://api.openai.com"
		}
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 1024
	}

	limit := rate.Inf
	if cfg.RequestsPerMinute > 0 {
		limit = rate.Every(time.Minute / time.Duration(cfg.RequestsPerMinute))
	}

	return &Client{
		client:      &http.Client{Timeout: timeout},
		limiter:     rate.NewLimiter(limit, 1),
		provider:    provider,
		model:       model,
		apiKey:      cfg.APIKey,
		baseURL:     baseURL,
		temperature: cfg.Temperature,
		maxTokens:   maxTokens,
	}
}

// Provider returns the resolved provider name.
func (c *Client) Provider() string { return c.provider }

// Model returns the resolved model name.
func (c *Client) Model() string { return c.model }

// Complete sends prompt as a single user message and returns the text reply.
func (c *Client) Complete(ctx context.Context, prompt string) (string, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("llm rate limiter: %w", err)
	}

	var (
		text string
		err  error
	)
	switch c.provider {
	case ProviderAnthropic:
		text, err = c.callAnthropic(ctx, prompt)
	default:
		text, err = c.callOpenAI(ctx, prompt)
	}
	if err != nil {
		return "", err
	}

	text = strings.TrimSpace(text)
	if text == "" {
		return "", fmt.Errorf("%s: %w", c.provider, ErrEmptyResponse)
	}
	return text, nil
}

func (c *Client) callOpenAI(ctx context.Context, prompt string) (string, error) {
	payload := map[string]any{
		"model": c.model,
		"messages": []map[string]string{
			{"role": "user", "content": prompt},
		},
		"temperature": c.temperature,
		"max_tokens":  c.maxTokens,
	}

	resp, err := c.post(ctx, "/v1/chat/completions", payload, map[string]string{
		"Authorization": "Bearer " + c.apiKey,
	})
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var result struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("decode openai response: %w", err)
	}

	if len(result.Choices) == 0 {
		return "", fmt.Errorf("openai: %w", ErrEmptyResponse)
	}
	return result.Choices[0].Message.Content, nil
}

func (c *Client) callAnthropic(ctx context.Context, prompt string) (string, error) {
	payload := map[string]any{
		"model":       c.model,
		"max_tokens":  c.maxTokens,
		"temperature": c.temperature,
		"messages": []map[string]string{
			{"role": "user", "content": prompt},
		},
	}

	resp, err := c.post(ctx, "/v1/messages", payload, map[string]string{
		"x-api-key":         c.apiKey,
		"anthropic-version": "2023-06-01",
	})
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var result struct {
		Content []struct {
			Type string `json:"type"`
			Text string `json:"text"`
		} `json:"content"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("decode anthropic response: %w", err)
	}

	// Join every text block; tool or thinking blocks are ignored.
	var chunks []string
	for _, block := range result.Content {
		if block.Type == "" || block.Type == "text" {
			chunks = append(chunks, block.Text)
		}
	}
	if len(chunks) == 0 {
		return "", fmt.Errorf("anthropic: %w", ErrEmptyResponse)
	}
	return strings.Join(chunks, "\n\n"), nil
}

func (c *Client) post(ctx context.Context, path string, payload any, headers map[string]string) (*http.Response, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal %s request: %w", c.provider, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create %s request: %w", c.provider, err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("call %s: %w", c.provider, err)
	}

	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		var errResp map[string]any
		_ = json.NewDecoder(resp.Body).Decode(&errResp)
		return nil, &StatusError{Provider: c.provider, StatusCode: resp.StatusCode, Body: errResp}
	}
	return resp, nil
}

// StatusError is returned when the provider answers with a non-200 status.
type StatusError struct {
	Provider   string
	StatusCode int
	Body       map[string]any
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s status %d: %v", e.Provider, e.StatusCode, e.Body)
}

// StripCodeFence removes a surrounding markdown code block, if any.
func StripCodeFence(raw string) string {
	raw = strings.TrimSpace(raw)
	if !strings.HasPrefix(raw, "```") {
		return raw
	}
	if idx := strings.Index(raw[3:], "\n"); idx >= 0 {
		raw = raw[3+idx+1:]
	} else {
		raw = raw[3:]
	}
	raw = strings.TrimSuffix(strings.TrimSpace(raw), "```")
	return strings.TrimSpace(raw)
}

// Truncate shortens s to n bytes, appending "..." when cut.
func Truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
