package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/perelab/tabletran/internal/config"
)

func testConfig(baseURL string) config.LLM {
	return config.LLM{
		BaseURL:      baseURL,
		APIKeyEnvVar: "TEST_GEMINI_KEY",
		DefaultModel: "test-model",
		MaxAttempts:  2,
		Timeout:      5 * time.Second,
	}
}

func candidateResponse(text string) string {
	return `{"candidates": [{"content": {"parts": [{"text": ` + mustJSON(text) + `}]}}]}`
}

func mustJSON(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}

func TestNewGeminiMissingKey(t *testing.T) {
	t.Setenv("TEST_GEMINI_KEY", "")
	_, err := NewGemini(testConfig("http://unused"))
	if err == nil {
		t.Fatal("NewGemini() error = nil, want missing key error")
	}
}

func TestGenerateSuccess(t *testing.T) {
	var gotReq gmRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&gotReq); err != nil {
			t.Errorf("decode request: %v", err)
		}
		w.Write([]byte(candidateResponse("translated text")))
	}))
	defer srv.Close()

	t.Setenv("TEST_GEMINI_KEY", "k")
	g, err := NewGemini(testConfig(srv.URL))
	if err != nil {
		t.Fatalf("NewGemini() error = %v", err)
	}

	text, err := g.Generate(context.Background(), Request{
		System:       "sys",
		Prompt:       "hello",
		Temperature:  0.5,
		JSONResponse: true,
	})
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if text != "translated text" {
		t.Errorf("Generate() = %q, want translated text", text)
	}

	if gotReq.SystemInstruction == nil || gotReq.SystemInstruction.Parts[0].Text != "sys" {
		t.Errorf("system instruction not sent: %+v", gotReq.SystemInstruction)
	}
	if len(gotReq.Contents) != 1 || gotReq.Contents[0].Parts[0].Text != "hello" {
		t.Errorf("contents = %+v", gotReq.Contents)
	}
	if gotReq.GenerationConfig.ResponseMIMEType != "application/json" {
		t.Errorf("response mime type = %q, want application/json", gotReq.GenerationConfig.ResponseMIMEType)
	}
}

func TestGenerateRetriesOnRateLimit(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			w.Write([]byte(`{"error": {"code": 429, "message": "quota exceeded"}}`))
			return
		}
		w.Write([]byte(candidateResponse("ok")))
	}))
	defer srv.Close()

	t.Setenv("TEST_GEMINI_KEY", "k")
	g, err := NewGemini(testConfig(srv.URL))
	if err != nil {
		t.Fatalf("NewGemini() error = %v", err)
	}

	text, err := g.Generate(context.Background(), Request{Prompt: "p"})
	if err != nil {
		t.Fatalf("Generate() error = %v, want retry to succeed", err)
	}
	if text != "ok" {
		t.Errorf("Generate() = %q, want ok", text)
	}
	if calls != 2 {
		t.Errorf("backend calls = %d, want 2", calls)
	}
}

func TestGenerateFailsFastOnAuthError(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"error": {"code": 401, "message": "invalid key"}}`))
	}))
	defer srv.Close()

	t.Setenv("TEST_GEMINI_KEY", "k")
	g, err := NewGemini(testConfig(srv.URL))
	if err != nil {
		t.Fatalf("NewGemini() error = %v", err)
	}

	_, err = g.Generate(context.Background(), Request{Prompt: "p"})
	if err == nil {
		t.Fatal("Generate() error = nil, want auth error")
	}
	var be *BackendError
	if !errors.As(err, &be) {
		t.Fatalf("error type = %T, want *BackendError", err)
	}
	if be.Retryable {
		t.Error("BackendError.Retryable = true, want false for 401")
	}
	if be.Status != http.StatusUnauthorized {
		t.Errorf("BackendError.Status = %d, want 401", be.Status)
	}
	if calls != 1 {
		t.Errorf("backend calls = %d, want 1 (no retry on auth errors)", calls)
	}
}

func TestGenerateExhaustsRetries(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	t.Setenv("TEST_GEMINI_KEY", "k")
	g, err := NewGemini(testConfig(srv.URL))
	if err != nil {
		t.Fatalf("NewGemini() error = %v", err)
	}

	_, err = g.Generate(context.Background(), Request{Prompt: "p"})
	if err == nil {
		t.Fatal("Generate() error = nil, want exhausted retries")
	}
	if calls != 2 {
		t.Errorf("backend calls = %d, want 2 (max attempts)", calls)
	}
}

func TestRetryableStatus(t *testing.T) {
	tests := []struct {
		status    int
		retryable bool
	}{
		{http.StatusTooManyRequests, true},
		{http.StatusRequestTimeout, true},
		{http.StatusInternalServerError, true},
		{http.StatusServiceUnavailable, true},
		{http.StatusBadRequest, false},
		{http.StatusUnauthorized, false},
		{http.StatusForbidden, false},
		{http.StatusNotFound, false},
	}
	for _, tt := range tests {
		if got := retryableStatus(tt.status); got != tt.retryable {
			t.Errorf("retryableStatus(%d) = %v, want %v", tt.status, got, tt.retryable)
		}
	}
}

func TestBackendErrorMessage(t *testing.T) {
	e := &BackendError{Status: 429, Message: "quota", Retryable: true}
	if got := e.Error(); got != "llm backend error (retryable, status 429): quota" {
		t.Errorf("Error() = %q", got)
	}
	e = &BackendError{Message: "connection reset", Retryable: true}
	if got := e.Error(); got != "llm backend error (retryable): connection reset" {
		t.Errorf("Error() = %q", got)
	}
}
