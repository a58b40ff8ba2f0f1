package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"
)

const (
	maxRetries        = 6
	baseRetryDelay    = 2 * time.Second
	minRateLimitDelay = 5 * time.Second
	maxRetryWait      = 60 * time.Second
	defaultTimeout    = 120 * time.Second
)

// ErrNoChoices is returned when the endpoint answers without a completion.
var ErrNoChoices = errors.New("llm: no choices in response")

// APIError is a non-200 answer from the endpoint.
type APIError struct {
	StatusCode int
	Body       string
	retryAfter time.Duration
}

func (e *APIError) Error() string {
	return fmt.Sprintf("llm: endpoint returned %d: %s", e.StatusCode, e.Body)
}

// Temporary reports whether the same request may succeed later.
func (e *APIError) Temporary() bool {
	switch e.StatusCode {
	case http.StatusTooManyRequests, http.StatusBadGateway,
		http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true
	}
	return false
}

// Client is a chat-completion client for an OpenAI-compatible endpoint.
// Transient failures (network errors, 429, 502-504) are retried with
// exponential backoff.
type Client struct {
	cfg      Config
	http     *http.Client
	endpoint string

	retryDelay     time.Duration
	rateLimitDelay time.Duration
}

func newClient(cfg Config, pathPrefix string) *Client {
	// Local runtimes may load the model on first use.
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{
		cfg:            cfg,
		http:           &http.Client{Timeout: timeout},
		endpoint:       cfg.BaseURL + pathPrefix + "/chat/completions",
		retryDelay:     baseRetryDelay,
		rateLimitDelay: minRateLimitDelay,
	}
}

// Model returns the default model sent when a request names none.
func (c *Client) Model() string { return c.cfg.Model }

type chatCompletionRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Temperature float64   `json:"temperature,omitempty"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
}

type chatCompletionResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message      Message `json:"message"`
		FinishReason string  `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
}

// Chat sends one chat completion request and returns the first choice.
func (c *Client) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	if req.Model == "" {
		req.Model = c.cfg.Model
	}
	payload, err := json.Marshal(chatCompletionRequest(req))
	if err != nil {
		return nil, fmt.Errorf("encoding chat request: %w", err)
	}

	raw, err := c.postWithRetry(ctx, payload)
	if err != nil {
		return nil, err
	}

	var resp chatCompletionResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("decoding chat response: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, ErrNoChoices
	}
	first := resp.Choices[0]
	return &ChatResponse{
		Content:          first.Message.Content,
		Model:            resp.Model,
		FinishReason:     first.FinishReason,
		PromptTokens:     resp.Usage.PromptTokens,
		CompletionTokens: resp.Usage.CompletionTokens,
		TotalTokens:      resp.Usage.TotalTokens,
	}, nil
}

func (c *Client) postWithRetry(ctx context.Context, payload []byte) ([]byte, error) {
	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			wait := c.backoff(attempt, lastErr)
			slog.Warn("llm: retrying",
				"endpoint", c.endpoint,
				"attempt", attempt,
				"wait", wait,
				"error", lastErr)
			if err := sleep(ctx, wait); err != nil {
				return nil, err
			}
		}

		body, err := c.post(ctx, payload)
		if err == nil {
			return body, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		var apiErr *APIError
		if errors.As(err, &apiErr) && !apiErr.Temporary() {
			return nil, err
		}
		lastErr = err
	}
	return nil, fmt.Errorf("llm: giving up after %d attempts: %w", maxRetries+1, lastErr)
}

// backoff doubles the delay per attempt. Rate limits start from a longer
// base and honour Retry-After when it asks for more. No wait exceeds
// maxRetryWait.
func (c *Client) backoff(attempt int, lastErr error) time.Duration {
	wait := c.retryDelay << (attempt - 1)
	var apiErr *APIError
	if errors.As(lastErr, &apiErr) && apiErr.StatusCode == http.StatusTooManyRequests {
		wait = c.rateLimitDelay << (attempt - 1)
		if apiErr.retryAfter > wait {
			wait = apiErr.retryAfter
		}
	}
	return min(wait, maxRetryWait)
}

// post performs a single attempt.
func (c *Client) post(ctx context.Context, payload []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("posting to %s: %w", c.endpoint, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		apiErr := &APIError{StatusCode: resp.StatusCode, Body: string(body)}
		if secs, err := strconv.Atoi(resp.Header.Get("Retry-After")); err == nil && secs > 0 {
			apiErr.retryAfter = time.Duration(secs) * time.Second
		}
		return nil, apiErr
	}
	return body, nil
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
