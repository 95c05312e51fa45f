// Package llm is a Gemini text-generation client with retry and model
// fallback support.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"strings"
	"time"
)

// maxResponseSize caps the response body read to protect against a
// misbehaving upstream.
const maxResponseSize = 10 * 1024 * 1024 // 10MB

const defaultBaseURL = "https://generativelanguage.googleapis.com/v1beta"

// Message is one turn of a conversation. Role is "user" or "model".
type Message struct {
	Role string
	Text string
}

// Request is a single generation request. The API key travels per request
// because each tenant brings their own.
type Request struct {
	APIKey            string
	SystemInstruction string
	Messages          []Message
}

// RetryConfig controls per-model retry behavior.
type RetryConfig struct {
	MaxAttempts       int
	BackoffBase       time.Duration
	BackoffMultiplier float64
	MaxBackoff        time.Duration
}

func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:       2,
		BackoffBase:       time.Second,
		BackoffMultiplier: 2.0,
		MaxBackoff:        15 * time.Second,
	}
}

// Client calls the Gemini generateContent API, walking an ordered model
// chain until one answers.
type Client struct {
	baseURL    string
	models     []string
	httpClient *http.Client
	retry      RetryConfig
	logger     *slog.Logger
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

func WithBaseURL(url string) Option {
	return func(c *Client) { c.baseURL = strings.TrimRight(url, "/") }
}

func WithRetryConfig(cfg RetryConfig) Option {
	return func(c *Client) { c.retry = cfg }
}

// NewClient builds a client over the given fallback chain, tried in order.
func NewClient(models []string, logger *slog.Logger, opts ...Option) *Client {
	c := &Client{
		baseURL: defaultBaseURL,
		models:  models,
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
		retry:  DefaultRetryConfig(),
		logger: logger.With(slog.String("component", "llm")),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// wire types for the generateContent endpoint.

type genPart struct {
	Text string `json:"text"`
}

type genContent struct {
	Role  string    `json:"role,omitempty"`
	Parts []genPart `json:"parts"`
}

type genRequest struct {
	SystemInstruction *genContent  `json:"systemInstruction,omitempty"`
	Contents          []genContent `json:"contents"`
}

type genResponse struct {
	Candidates []struct {
		Content genContent `json:"content"`
	} `json:"candidates"`
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// Generate walks the model chain. Transient failures move on to the next
// model; a fatal failure stops the chain immediately.
func (c *Client) Generate(ctx context.Context, req Request) (string, error) {
	if strings.TrimSpace(req.APIKey) == "" {
		return "", NewFatalError(fmt.Errorf("api key is required"))
	}
	if len(req.Messages) == 0 {
		return "", NewFatalError(fmt.Errorf("at least one message is required"))
	}
	if len(c.models) == 0 {
		return "", NewFatalError(fmt.Errorf("no models configured"))
	}

	var lastErr error
	for _, model := range c.models {
		text, err := c.tryModel(ctx, model, req)
		if err == nil {
			return text, nil
		}
		if IsFatal(err) {
			return "", err
		}
		c.logger.Warn("model failed, falling back",
			slog.String("model", model),
			slog.Any("error", err),
		)
		lastErr = err
	}
	return "", NewTransientError(fmt.Errorf("all models exhausted: %w", lastErr))
}

func (c *Client) tryModel(ctx context.Context, model string, req Request) (string, error) {
	backoff := c.retry.BackoffBase
	var lastErr error
	for attempt := 1; attempt <= c.retry.MaxAttempts; attempt++ {
		if attempt > 1 {
			// Jittered backoff between attempts on the same model.
			sleep := backoff + time.Duration(rand.Int64N(int64(backoff/2)+1))
			select {
			case <-ctx.Done():
				return "", NewTransientError(ctx.Err())
			case <-time.After(sleep):
			}
			backoff = time.Duration(float64(backoff) * c.retry.BackoffMultiplier)
			if backoff > c.retry.MaxBackoff {
				backoff = c.retry.MaxBackoff
			}
		}

		text, err := c.generateOnce(ctx, model, req)
		if err == nil {
			return text, nil
		}
		if IsFatal(err) {
			return "", err
		}
		lastErr = err
	}
	return "", lastErr
}

func (c *Client) generateOnce(ctx context.Context, model string, req Request) (string, error) {
	body := genRequest{Contents: make([]genContent, 0, len(req.Messages))}
	if req.SystemInstruction != "" {
		body.SystemInstruction = &genContent{Parts: []genPart{{Text: req.SystemInstruction}}}
	}
	for _, m := range req.Messages {
		role := m.Role
		if role != "model" {
			role = "user"
		}
		body.Contents = append(body.Contents, genContent{
			Role:  role,
			Parts: []genPart{{Text: m.Text}},
		})
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return "", NewFatalError(fmt.Errorf("marshal request: %w", err))
	}

	url := fmt.Sprintf("%s/models/%s:generateContent", c.baseURL, model)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return "", NewFatalError(fmt.Errorf("build request: %w", err))
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-goog-api-key", req.APIKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", NewTransientError(fmt.Errorf("call %s: %w", model, err))
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return "", NewTransientError(fmt.Errorf("read response: %w", err))
	}

	if resp.StatusCode != http.StatusOK {
		err := fmt.Errorf("%s returned %d: %s", model, resp.StatusCode, truncate(string(raw), 200))
		switch {
		case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
			return "", NewTransientError(err)
		case resp.StatusCode == http.StatusBadRequest ||
			resp.StatusCode == http.StatusUnauthorized ||
			resp.StatusCode == http.StatusForbidden:
			return "", NewFatalError(err)
		default:
			return "", NewTransientError(err)
		}
	}

	var parsed genResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return "", NewTransientError(fmt.Errorf("decode response: %w", err))
	}
	if len(parsed.Candidates) == 0 || len(parsed.Candidates[0].Content.Parts) == 0 {
		return "", NewTransientError(fmt.Errorf("%s returned no candidates", model))
	}

	var sb strings.Builder
	for _, part := range parsed.Candidates[0].Content.Parts {
		sb.WriteString(part.Text)
	}
	return sb.String(), nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
