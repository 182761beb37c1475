// Package llm wraps the external reasoning service behind the Oracle port,
// enforcing retry-with-backoff against its rate ceiling.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"strings"
	"time"

	"speccheck/internal/config"
	"speccheck/internal/errors"
)

// Config holds connection settings for the reasoning service.
type Config struct {
	APIKey      string
	BaseURL     string
	Model       string
	Timeout     time.Duration
	Temperature float64
	MaxTokens   int
}

// Client is a chat-completions oracle client with exponential backoff on
// throttling and transient transport failures.
type Client struct {
	cfg        Config
	retry      config.RetryPolicy
	httpClient *http.Client
}

// NewClient creates an oracle client. The retry policy is explicit so
// tests can exhaust it quickly.
func NewClient(cfg Config, retry config.RetryPolicy) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, errors.ConfigInvalid("missing oracle API key")
	}
	if strings.TrimSpace(cfg.Model) == "" {
		return nil, errors.ConfigInvalid("missing oracle model")
	}
	baseURL := strings.TrimSpace(cfg.BaseURL)
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}
	cfg.BaseURL = strings.TrimRight(baseURL, "/")
	if cfg.Timeout <= 0 {
		cfg.Timeout = 120 * time.Second
	}
	if retry.MaxAttempts < 1 {
		retry.MaxAttempts = 1
	}
	return &Client{
		cfg:        cfg,
		retry:      retry,
		httpClient: &http.Client{Timeout: cfg.Timeout},
	}, nil
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature,omitempty"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// faultKind distinguishes retryable fault classes during the retry loop.
type faultKind int

const (
	faultThrottle faultKind = iota
	faultTransport
)

// Ask sends one prompt and returns the reply text. Throttling (429/503)
// and transient transport failures are retried with capped exponential
// backoff plus jitter; a non-throttle 4xx fails immediately with
// REQUEST_REJECTED. Exhaustion surfaces the kind of the last fault:
// THROTTLE_EXHAUSTED or TRANSPORT_ERROR.
func (c *Client) Ask(ctx context.Context, prompt string) (string, error) {
	body := chatRequest{
		Model: c.cfg.Model,
		Messages: []chatMessage{
			{Role: "system", Content: "You are a careful compliance analyst. Output exactly what the user asks for."},
			{Role: "user", Content: prompt},
		},
		Temperature: c.cfg.Temperature,
		MaxTokens:   c.cfg.MaxTokens,
	}
	raw, err := json.Marshal(body)
	if err != nil {
		return "", errors.RequestRejected(fmt.Errorf("marshal request: %w", err))
	}

	var lastKind faultKind
	var lastErr error
	for attempt := 0; attempt < c.retry.MaxAttempts; attempt++ {
		if attempt > 0 {
			if err := c.sleepBackoff(ctx, attempt); err != nil {
				return "", errors.TransportError(err)
			}
		}

		reply, kind, err := c.doRequest(ctx, raw)
		if err == nil {
			return reply, nil
		}
		if errors.HasCode(err, errors.CodeRequestRejected) {
			return "", err
		}
		lastKind, lastErr = kind, err
	}

	if lastKind == faultThrottle {
		return "", errors.ThrottleExhausted(lastErr)
	}
	return "", errors.TransportError(lastErr)
}

func (c *Client) doRequest(ctx context.Context, raw []byte) (string, faultKind, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/chat/completions", bytes.NewReader(raw))
	if err != nil {
		return "", faultTransport, errors.RequestRejected(fmt.Errorf("build request: %w", err))
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", faultTransport, fmt.Errorf("oracle request failed: %w", err)
	}
	defer resp.Body.Close()

	respRaw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", faultTransport, fmt.Errorf("read response: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode == http.StatusServiceUnavailable:
		return "", faultThrottle, fmt.Errorf("oracle throttled (http %d)", resp.StatusCode)
	case resp.StatusCode >= 500:
		return "", faultTransport, fmt.Errorf("oracle http %d: %s", resp.StatusCode, truncate(respRaw, 200))
	case resp.StatusCode >= 400:
		return "", faultTransport, errors.RequestRejected(fmt.Errorf("oracle http %d: %s", resp.StatusCode, truncate(respRaw, 200)))
	}

	var decoded chatResponse
	if err := json.Unmarshal(respRaw, &decoded); err != nil {
		return "", faultTransport, fmt.Errorf("unmarshal response: %w", err)
	}
	if len(decoded.Choices) == 0 {
		return "", faultTransport, fmt.Errorf("oracle response missing choices")
	}
	return decoded.Choices[0].Message.Content, 0, nil
}

// sleepBackoff waits base * 2^(attempt-1), capped, with jitter. Returns
// early when the context is cancelled.
func (c *Client) sleepBackoff(ctx context.Context, attempt int) error {
	delay := c.retry.BaseDelay * time.Duration(1<<uint(attempt-1))
	if c.retry.MaxDelay > 0 && delay > c.retry.MaxDelay {
		delay = c.retry.MaxDelay
	}
	if c.retry.Jitter > 0 {
		spread := float64(delay) * c.retry.Jitter
		delay += time.Duration((rand.Float64()*2 - 1) * spread)
		if delay < 0 {
			delay = 0
		}
	}

	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
