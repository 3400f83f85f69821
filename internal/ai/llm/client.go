package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

// Provider represents the LLM provider type
type Provider string

const (
	ProviderClaude   Provider = "claude"
	ProviderOpenAI   Provider = "openai"
	ProviderDeepSeek Provider = "deepseek"
)

var defaultEndpoints = map[Provider]string{
	ProviderClaude:   "https://api.anthropic.com/v1/messages",
	ProviderOpenAI:   "https://api.openai.com/v1/chat/completions",
	ProviderDeepSeek: "https://api.deepseek.com/v1/chat/completions",
}

// ClientConfig holds LLM client configuration
type ClientConfig struct {
	Provider        Provider      `json:"provider" yaml:"provider" default:"claude" validate:"omitempty,oneof=claude openai deepseek"`
	APIKey          string        `json:"-" yaml:"api_key"`
	Model           string        `json:"model" yaml:"model" default:"claude-sonnet-4-20250514"`
	Endpoint        string        `json:"endpoint" yaml:"endpoint"` // overrides the provider default
	MaxTokens       int           `json:"max_tokens" yaml:"max_tokens" default:"1024"`
	Temperature     float64       `json:"temperature" yaml:"temperature" default:"0.3"`
	Timeout         time.Duration `json:"timeout" yaml:"timeout" default:"30s"`
	RateLimitPerMin int           `json:"rate_limit_per_min" yaml:"rate_limit_per_min" default:"20"`
}

// DefaultClientConfig returns default configuration
func DefaultClientConfig() *ClientConfig {
	return &ClientConfig{
		Provider:        ProviderClaude,
		Model:           "claude-sonnet-4-20250514",
		MaxTokens:       1024,
		Temperature:     0.3,
		Timeout:         30 * time.Second,
		RateLimitPerMin: 20,
	}
}

// Completer sends one system/user prompt pair to a text-generation service
type Completer interface {
	Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// Client is the LLM API client
type Client struct {
	config     *ClientConfig
	httpClient *http.Client
	limiter    *rate.Limiter
}

// NewClient creates a new LLM client
func NewClient(config *ClientConfig) *Client {
	if config == nil {
		config = DefaultClientConfig()
	}
	limit := rate.Inf
	if config.RateLimitPerMin > 0 {
		limit = rate.Limit(float64(config.RateLimitPerMin) / 60)
	}
	return &Client{
		config: config,
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
		limiter: rate.NewLimiter(limit, 1),
	}
}

// APIError is a non-2xx reply or an error envelope from the provider
type APIError struct {
	StatusCode int
	Type       string
	Message    string
}

func (e *APIError) Error() string {
	if e.Type != "" {
		return fmt.Sprintf("API error %d: %s - %s", e.StatusCode, e.Type, e.Message)
	}
	return fmt.Sprintf("API error %d: %s", e.StatusCode, e.Message)
}

// Retryable reports whether the request may succeed if repeated
func (e *APIError) Retryable() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

// ErrEmptyResponse is returned when the provider replies without any text
var ErrEmptyResponse = errors.New("empty response from LLM")

// IsRetryable classifies an error from Complete as transient: network failures,
// rate limiting and server errors
func IsRetryable(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Retryable()
	}
	var netErr *transportError
	return errors.As(err, &netErr)
}

// transportError marks failures before any HTTP reply was received
type transportError struct {
	err error
}

func (e *transportError) Error() string { return "failed to send request: " + e.err.Error() }
func (e *transportError) Unwrap() error { return e.err }

// Message represents a chat message
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ClaudeRequest represents a Claude API request
type ClaudeRequest struct {
	Model       string    `json:"model"`
	MaxTokens   int       `json:"max_tokens"`
	Temperature float64   `json:"temperature,omitempty"`
	Messages    []Message `json:"messages"`
	System      string    `json:"system,omitempty"`
}

// ClaudeResponse represents a Claude API response
type ClaudeResponse struct {
	ID string `json:"id"`
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	StopReason string `json:"stop_reason"`
	Error      *struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// OpenAIRequest represents an OpenAI-compatible chat request
type OpenAIRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
	Temperature float64   `json:"temperature,omitempty"`
}

// OpenAIResponse represents an OpenAI-compatible chat response
type OpenAIResponse struct {
	ID string `json:"id"`
	Choices []struct {
		Message struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error,omitempty"`
}

// Complete sends a completion request to the LLM, waiting for the rate limiter first
func (c *Client) Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("rate limiter: %w", err)
	}

	switch c.config.Provider {
	case ProviderClaude:
		return c.completeClaude(ctx, systemPrompt, userPrompt)
	case ProviderOpenAI, ProviderDeepSeek:
		return c.completeOpenAICompatible(ctx, systemPrompt, userPrompt)
	default:
		return "", fmt.Errorf("unsupported provider: %s", c.config.Provider)
	}
}

func (c *Client) endpoint() string {
	if c.config.Endpoint != "" {
		return c.config.Endpoint
	}
	return defaultEndpoints[c.config.Provider]
}

// completeClaude sends a request to Claude API
func (c *Client) completeClaude(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	req := ClaudeRequest{
		Model:       c.config.Model,
		MaxTokens:   c.config.MaxTokens,
		Temperature: c.config.Temperature,
		System:      systemPrompt,
		Messages: []Message{
			{Role: "user", Content: userPrompt},
		},
	}

	headers := map[string]string{
		"x-api-key":         c.config.APIKey,
		"anthropic-version": "2023-06-01",
	}
	respBody, status, err := c.post(ctx, req, headers)
	if err != nil {
		return "", err
	}

	var claudeResp ClaudeResponse
	if err := json.Unmarshal(respBody, &claudeResp); err != nil {
		if status >= 300 {
			return "", &APIError{StatusCode: status, Message: strings.TrimSpace(string(respBody))}
		}
		return "", fmt.Errorf("failed to unmarshal response: %w", err)
	}
	if claudeResp.Error != nil {
		return "", &APIError{StatusCode: status, Type: claudeResp.Error.Type, Message: claudeResp.Error.Message}
	}
	if status >= 300 {
		return "", &APIError{StatusCode: status, Message: http.StatusText(status)}
	}
	if len(claudeResp.Content) == 0 {
		return "", ErrEmptyResponse
	}

	return claudeResp.Content[0].Text, nil
}

// completeOpenAICompatible serves OpenAI and DeepSeek, which share the chat completions API
func (c *Client) completeOpenAICompatible(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	req := OpenAIRequest{
		Model: c.config.Model,
		Messages: []Message{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: userPrompt},
		},
		MaxTokens:   c.config.MaxTokens,
		Temperature: c.config.Temperature,
	}

	headers := map[string]string{"Authorization": "Bearer " + c.config.APIKey}
	respBody, status, err := c.post(ctx, req, headers)
	if err != nil {
		return "", err
	}

	var openAIResp OpenAIResponse
	if err := json.Unmarshal(respBody, &openAIResp); err != nil {
		if status >= 300 {
			return "", &APIError{StatusCode: status, Message: strings.TrimSpace(string(respBody))}
		}
		return "", fmt.Errorf("failed to unmarshal response: %w", err)
	}
	if openAIResp.Error != nil {
		return "", &APIError{StatusCode: status, Type: openAIResp.Error.Type, Message: openAIResp.Error.Message}
	}
	if status >= 300 {
		return "", &APIError{StatusCode: status, Message: http.StatusText(status)}
	}
	if len(openAIResp.Choices) == 0 {
		return "", ErrEmptyResponse
	}

	return openAIResp.Choices[0].Message.Content, nil
}

func (c *Client) post(ctx context.Context, payload interface{}, headers map[string]string) ([]byte, int, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint(), bytes.NewReader(body))
	if err != nil {
		return nil, 0, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		httpReq.Header.Set(k, v)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, 0, &transportError{err: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, &transportError{err: fmt.Errorf("failed to read response: %w", err)}
	}
	return respBody, resp.StatusCode, nil
}

// GetProvider returns the configured provider
func (c *Client) GetProvider() Provider {
	return c.config.Provider
}

// IsConfigured checks if the client is properly configured
func (c *Client) IsConfigured() bool {
	return c.config.APIKey != ""
}
