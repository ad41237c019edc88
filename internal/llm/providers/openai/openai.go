package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/stratforge/stratforge/internal/llm"
	"github.com/stratforge/stratforge/internal/models"
)

const (
	// ProviderName is the registry identifier for this adapter
	ProviderName = "openai"
	// APIURL is the base URL for the OpenAI chat completions API
	APIURL = "https://api.openai.com/v1/chat/completions"
	// DefaultModel is the default OpenAI model
	DefaultModel = "gpt-4o"
)

// Provider implements the llm.Provider interface for OpenAI.
type Provider struct {
	apiKey      string
	baseURL     string
	model       string
	httpClient  *http.Client
	retryConfig llm.RetryConfig
}

// Request represents an OpenAI chat completions request.
type Request struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
	Temperature float64   `json:"temperature,omitempty"`
	TopP        float64   `json:"top_p,omitempty"`
	Stop        []string  `json:"stop,omitempty"`
}

// Message represents a chat message.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Response represents an OpenAI chat completions response.
type Response struct {
	ID      string   `json:"id"`
	Model   string   `json:"model"`
	Choices []Choice `json:"choices"`
	Usage   Usage    `json:"usage"`
}

// Choice is one completion alternative.
type Choice struct {
	Index        int     `json:"index"`
	Message      Message `json:"message"`
	FinishReason string  `json:"finish_reason"`
}

// Usage represents token usage.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// NewProvider creates a new OpenAI provider.
func NewProvider(apiKey, baseURL, model string) *Provider {
	return NewProviderWithRetry(apiKey, baseURL, model, llm.DefaultRetryConfig())
}

// NewProviderWithRetry creates a new OpenAI provider with custom retry config.
func NewProviderWithRetry(apiKey, baseURL, model string, retryConfig llm.RetryConfig) *Provider {
	if baseURL == "" {
		baseURL = APIURL
	}
	if model == "" {
		model = DefaultModel
	}

	return &Provider{
		apiKey:  apiKey,
		baseURL: baseURL,
		model:   model,
		httpClient: &http.Client{
			Timeout: 180 * time.Second,
		},
		retryConfig: retryConfig,
	}
}

// Name returns the registry identifier.
func (p *Provider) Name() string {
	return ProviderName
}

// Generate sends a chat completion request and returns the generated text.
func (p *Provider) Generate(ctx context.Context, prompt string, opts *models.GenerateOptions) (*models.Generation, error) {
	startTime := time.Now()
	apiReq := p.convertRequest(prompt, opts)

	resp, err := p.makeAPICall(ctx, apiReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, llm.NewUnknownError(ProviderName, fmt.Errorf("failed to read response: %w", err))
	}

	if resp.StatusCode != http.StatusOK {
		return nil, classifyStatus(resp, body)
	}

	var apiResp Response
	if err := json.Unmarshal(body, &apiResp); err != nil {
		return nil, llm.NewUnknownError(ProviderName, fmt.Errorf("failed to parse response: %w", err))
	}
	if len(apiResp.Choices) == 0 {
		return nil, llm.NewUnknownError(ProviderName, fmt.Errorf("response contained no choices"))
	}

	choice := apiResp.Choices[0]
	return &models.Generation{
		Text:         choice.Message.Content,
		Model:        apiResp.Model,
		TokensUsed:   apiResp.Usage.TotalTokens,
		FinishReason: choice.FinishReason,
		Latency:      time.Since(startTime),
	}, nil
}

// HealthCheck verifies provider connectivity with a minimal request.
func (p *Provider) HealthCheck(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	_, err := p.Generate(ctx, "Hi", &models.GenerateOptions{MaxTokens: 5})
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	return nil
}

// Capabilities returns provider capabilities.
func (p *Provider) Capabilities() *models.ProviderCapabilities {
	return &models.ProviderCapabilities{
		SupportedModels: []string{
			"gpt-4o",
			"gpt-4o-mini",
			"gpt-4-turbo",
		},
		SupportsBatching:  true,
		SupportsStreaming: true,
		MaxTokens:         16384,
		Metadata: map[string]string{
			"provider": ProviderName,
		},
	}
}

// convertRequest converts prompt and options to the OpenAI wire format.
func (p *Provider) convertRequest(prompt string, opts *models.GenerateOptions) Request {
	if opts == nil {
		opts = &models.GenerateOptions{}
	}

	apiReq := Request{
		Model: p.model,
		Messages: []Message{
			{Role: "user", Content: prompt},
		},
		MaxTokens:   opts.MaxTokens,
		Temperature: opts.Temperature,
		TopP:        opts.TopP,
		Stop:        opts.StopSequences,
	}
	if opts.Model != "" {
		apiReq.Model = opts.Model
	}
	return apiReq
}

func (p *Provider) makeAPICall(ctx context.Context, req Request) (*http.Response, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, llm.NewUnknownError(ProviderName, fmt.Errorf("failed to marshal request: %w", err))
	}

	var lastErr error
	for attempt := 0; attempt <= p.retryConfig.MaxRetries; attempt++ {
		if attempt > 0 {
			delay := llm.CalculateBackoff(attempt-1, p.retryConfig)
			select {
			case <-ctx.Done():
				return nil, timeoutOrCancel(ctx, lastErr)
			case <-time.After(delay):
			}
		}

		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL, bytes.NewReader(body))
		if err != nil {
			return nil, llm.NewUnknownError(ProviderName, fmt.Errorf("failed to create request: %w", err))
		}

		httpReq.Header.Set("Content-Type", "application/json")
		httpReq.Header.Set("Authorization", "Bearer "+p.apiKey)

		resp, err := p.httpClient.Do(httpReq)
		if err != nil {
			if ctx.Err() != nil {
				return nil, timeoutOrCancel(ctx, err)
			}
			lastErr = err
			continue
		}

		if llm.IsRetryableStatusCode(resp.StatusCode) && attempt < p.retryConfig.MaxRetries {
			resp.Body.Close()
			lastErr = fmt.Errorf("retryable error: status %d", resp.StatusCode)
			continue
		}

		return resp, nil
	}

	return nil, llm.NewUnknownError(ProviderName, fmt.Errorf("max retries exceeded: %w", lastErr))
}

// classifyStatus maps a non-200 response to the provider error taxonomy.
func classifyStatus(resp *http.Response, body []byte) error {
	cause := fmt.Errorf("API error: %d - %s", resp.StatusCode, string(body))
	switch resp.StatusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		return llm.NewAuthError(ProviderName, cause)
	case http.StatusTooManyRequests:
		return llm.NewRateLimitedError(ProviderName, parseRetryAfter(resp), cause)
	default:
		return llm.NewUnknownError(ProviderName, cause)
	}
}

func parseRetryAfter(resp *http.Response) time.Duration {
	raw := resp.Header.Get("Retry-After")
	if raw == "" {
		return 0
	}
	secs, err := strconv.Atoi(raw)
	if err != nil || secs < 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}

func timeoutOrCancel(ctx context.Context, cause error) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return llm.NewTimeoutError(ProviderName, context.DeadlineExceeded)
	}
	if cause == nil {
		cause = ctx.Err()
	}
	return llm.NewUnknownError(ProviderName, cause)
}
