// Package llm implements the inference client used by the two pipeline
// stages. It speaks the OpenAI-compatible chat completions protocol, so any
// endpoint exposing that API (OpenAI, a local gateway, a proxy) works.
//
// Retryable failures (429, 5xx, timeouts) are retried inside Complete with
// bounded exponential backoff; 4xx request errors surface immediately so the
// caller can fall back.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"time"
)

// ErrRateLimited indicates the provider returned 429 after all retries.
var ErrRateLimited = errors.New("llm: rate limited")

// ErrUnavailable indicates the provider was unreachable or returned 5xx
// after all retries.
var ErrUnavailable = errors.New("llm: provider unavailable")

// ErrInvalidRequest indicates the provider rejected the request (4xx other
// than 429). Not retryable.
var ErrInvalidRequest = errors.New("llm: invalid request")

// ErrEmptyResponse indicates the provider returned no choices.
var ErrEmptyResponse = errors.New("llm: empty response")

// Message is one chat turn.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Config configures the client.
type Config struct {
	// BaseURL of the OpenAI-compatible API, without trailing slash.
	// Default: https://api.openai.com/v1.
	BaseURL string
	// APIKey sent as a Bearer token.
	APIKey string
	// Model identifier passed verbatim to the API.
	Model string
	// Timeout per HTTP attempt. Default: 120s.
	Timeout time.Duration
	// MaxRetries for retryable failures. Default: 3 attempts total.
	MaxRetries int
	// RetryBase is the first backoff delay. Default: 500ms.
	RetryBase time.Duration
}

func (c *Config) defaults() {
	if c.BaseURL == "" {
		c.BaseURL = "https://api.openai.com/v1"
	}
	if c.Timeout <= 0 {
		c.Timeout = 120 * time.Second
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = 3
	}
	if c.RetryBase <= 0 {
		c.RetryBase = 500 * time.Millisecond
	}
}

// Client calls a chat completions endpoint.
type Client struct {
	client *http.Client
	config Config
}

// New creates a Client. APIKey and Model are required.
func New(cfg Config) (*Client, error) {
	cfg.defaults()
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("llm: API key is required")
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("llm: model is required")
	}
	return &Client{
		client: &http.Client{Timeout: cfg.Timeout},
		config: cfg,
	}, nil
}

// Model returns the configured model identifier.
func (c *Client) Model() string { return c.config.Model }

type chatRequest struct {
	Model    string    `json:"model"`
	Messages []Message `json:"messages"`
}

type chatResponse struct {
	Choices []struct {
		Message Message `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

// Complete sends the messages and returns the assistant's text.
// Retryable failures are retried with jittered exponential backoff; the
// final classification is ErrRateLimited, ErrUnavailable, or
// ErrInvalidRequest.
func (c *Client) Complete(ctx context.Context, messages []Message) (string, error) {
	body, err := json.Marshal(chatRequest{Model: c.config.Model, Messages: messages})
	if err != nil {
		return "", fmt.Errorf("llm: marshal request: %w", err)
	}

	var lastErr error
	delay := c.config.RetryBase
	for attempt := 0; attempt < c.config.MaxRetries; attempt++ {
		if attempt > 0 {
			if err := sleepCtx(ctx, jitter(delay)); err != nil {
				return "", err
			}
			delay *= 2
		}

		text, err := c.completeOnce(ctx, body)
		if err == nil {
			return text, nil
		}
		lastErr = err
		if !IsRetryable(err) {
			return "", err
		}
	}
	return "", lastErr
}

func (c *Client) completeOnce(ctx context.Context, body []byte) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.config.BaseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("llm: new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.config.APIKey)

	resp, err := c.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return "", fmt.Errorf("%w: read body: %v", ErrUnavailable, err)
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return "", fmt.Errorf("%w (http 429)", ErrRateLimited)
	case resp.StatusCode >= 500:
		return "", fmt.Errorf("%w (http %d)", ErrUnavailable, resp.StatusCode)
	case resp.StatusCode >= 400:
		var parsed chatResponse
		msg := ""
		if json.Unmarshal(data, &parsed) == nil && parsed.Error != nil {
			msg = ": " + parsed.Error.Message
		}
		return "", fmt.Errorf("%w (http %d)%s", ErrInvalidRequest, resp.StatusCode, msg)
	}

	var parsed chatResponse
	if err := json.Unmarshal(data, &parsed); err != nil {
		return "", fmt.Errorf("llm: decode response: %w", err)
	}
	if len(parsed.Choices) == 0 {
		return "", ErrEmptyResponse
	}
	return parsed.Choices[0].Message.Content, nil
}

// IsRetryable reports whether err is worth retrying (rate limit or
// provider unavailability).
func IsRetryable(err error) bool {
	return errors.Is(err, ErrRateLimited) || errors.Is(err, ErrUnavailable)
}

func jitter(d time.Duration) time.Duration {
	// ±25% to decorrelate concurrent retriers.
	f := 0.75 + rand.Float64()*0.5
	return time.Duration(float64(d) * f)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
