package llm

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

func fastRetry() RetryConfig {
	return RetryConfig{
		MaxAttempts:       2,
		BackoffBase:       time.Millisecond,
		BackoffMultiplier: 1.0,
		MaxBackoff:        time.Millisecond,
	}
}

func candidateBody(text string) string {
	return `{"candidates":[{"content":{"role":"model","parts":[{"text":` + mustJSON(text) + `}]}}]}`
}

func mustJSON(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}

func request() Request {
	return Request{
		APIKey:            "k-test",
		SystemInstruction: "You are a clinic assistant.",
		Messages:          []Message{{Role: "user", Text: "مرحبا"}},
	}
}

func TestGenerateSuccess(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("x-goog-api-key"); got != "k-test" {
			t.Errorf("unexpected api key header: %s", got)
		}
		if !strings.Contains(r.URL.Path, "gemini-2.0-flash") {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		w.Write([]byte(candidateBody("أهلاً وسهلاً")))
	}))
	defer srv.Close()

	c := NewClient([]string{"gemini-2.0-flash"}, slog.Default(),
		WithBaseURL(srv.URL), WithRetryConfig(fastRetry()))

	text, err := c.Generate(context.Background(), request())
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if text != "أهلاً وسهلاً" {
		t.Fatalf("unexpected text: %s", text)
	}
}

func TestGenerateFallsBackOnTransient(t *testing.T) {
	t.Parallel()

	var calls atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		if strings.Contains(r.URL.Path, "primary") {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.Write([]byte(candidateBody("ok")))
	}))
	defer srv.Close()

	c := NewClient([]string{"primary", "secondary"}, slog.Default(),
		WithBaseURL(srv.URL), WithRetryConfig(fastRetry()))

	text, err := c.Generate(context.Background(), request())
	if err != nil {
		t.Fatalf("expected fallback to succeed, got %v", err)
	}
	if text != "ok" {
		t.Fatalf("unexpected text: %s", text)
	}
	// Two attempts on the rate-limited primary, one on the secondary.
	if got := calls.Load(); got != 3 {
		t.Fatalf("expected 3 upstream calls, got %d", got)
	}
}

func TestGenerateFatalStopsChain(t *testing.T) {
	t.Parallel()

	var calls atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"error":{"code":401,"message":"invalid key"}}`))
	}))
	defer srv.Close()

	c := NewClient([]string{"primary", "secondary"}, slog.Default(),
		WithBaseURL(srv.URL), WithRetryConfig(fastRetry()))

	_, err := c.Generate(context.Background(), request())
	if err == nil {
		t.Fatalf("expected an error")
	}
	if !IsFatal(err) {
		t.Fatalf("expected a fatal error, got %v", err)
	}
	if got := calls.Load(); got != 1 {
		t.Fatalf("expected a single upstream call, got %d", got)
	}
}

func TestGenerateExhaustedIsTransient(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := NewClient([]string{"only"}, slog.Default(),
		WithBaseURL(srv.URL), WithRetryConfig(fastRetry()))

	_, err := c.Generate(context.Background(), request())
	if err == nil {
		t.Fatalf("expected an error")
	}
	if !IsTransient(err) {
		t.Fatalf("expected a transient error, got %v", err)
	}
}

func TestGenerateRequiresAPIKey(t *testing.T) {
	t.Parallel()

	c := NewClient([]string{"any"}, slog.Default())
	req := request()
	req.APIKey = "  "
	if _, err := c.Generate(context.Background(), req); !IsFatal(err) {
		t.Fatalf("expected fatal error for missing key, got %v", err)
	}
}
