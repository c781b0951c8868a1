package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/perelab/tabletran/internal/config"
)

// Gemini talks to the Google Generative Language API over REST. One instance
// is shared by all strategies in a run; it is safe for sequential reuse.
type Gemini struct {
	baseURL      string
	apiKey       string
	defaultModel string
	maxAttempts  int
	client       *http.Client
}

// NewGemini builds a client from the llm config section. The API key is read
// from the configured environment variable; a missing key is an immediate
// error so the run fails before any batch is attempted.
func NewGemini(cfg config.LLM) (*Gemini, error) {
	key := os.Getenv(cfg.APIKeyEnvVar)
	if key == "" {
		return nil, fmt.Errorf("API key not found in environment variable %s", cfg.APIKeyEnvVar)
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	attempts := cfg.MaxAttempts
	if attempts <= 0 {
		attempts = 3
	}
	return &Gemini{
		baseURL:      cfg.BaseURL,
		apiKey:       key,
		defaultModel: cfg.DefaultModel,
		maxAttempts:  attempts,
		client:       &http.Client{Timeout: timeout},
	}, nil
}

type gmPart struct {
	Text string `json:"text"`
}

type gmContent struct {
	Role  string   `json:"role,omitempty"`
	Parts []gmPart `json:"parts"`
}

type gmGenerationConfig struct {
	Temperature      float64 `json:"temperature"`
	ResponseMIMEType string  `json:"response_mime_type,omitempty"`
}

type gmRequest struct {
	SystemInstruction *gmContent         `json:"system_instruction,omitempty"`
	Contents          []gmContent        `json:"contents"`
	GenerationConfig  gmGenerationConfig `json:"generationConfig"`
}

type gmResponse struct {
	Candidates []struct {
		Content struct {
			Parts []gmPart `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// Generate performs the call with exponential backoff and jitter on
// retryable failures: 2s, 4s, 8s... capped at 60s, for up to the configured
// attempt count. Non-retryable failures and context cancellation return
// immediately.
func (g *Gemini) Generate(ctx context.Context, req Request) (string, error) {
	var lastErr error
	for attempt := 1; attempt <= g.maxAttempts; attempt++ {
		text, err := g.call(ctx, req)
		if err == nil {
			return text, nil
		}
		lastErr = err

		var be *BackendError
		if errors.As(err, &be) && !be.Retryable {
			return "", err
		}
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		if attempt < g.maxAttempts {
			if err := waitWithBackoff(ctx, attempt); err != nil {
				return "", err
			}
		}
	}
	return "", fmt.Errorf("llm call failed after %d attempts: %w", g.maxAttempts, lastErr)
}

func (g *Gemini) call(ctx context.Context, req Request) (string, error) {
	model := req.Model
	if model == "" {
		model = g.defaultModel
	}

	body := gmRequest{
		Contents: []gmContent{{Role: "user", Parts: []gmPart{{Text: req.Prompt}}}},
		GenerationConfig: gmGenerationConfig{
			Temperature: req.Temperature,
		},
	}
	if req.System != "" {
		body.SystemInstruction = &gmContent{Parts: []gmPart{{Text: req.System}}}
	}
	if req.JSONResponse {
		body.GenerationConfig.ResponseMIMEType = "application/json"
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return "", &BackendError{Message: fmt.Sprintf("failed to marshal request: %v", err)}
	}

	endpoint := fmt.Sprintf("%s/v1beta/models/%s:generateContent?key=%s",
		g.baseURL, url.PathEscape(model), url.QueryEscape(g.apiKey))

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return "", &BackendError{Message: fmt.Sprintf("failed to create request: %v", err)}
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := g.client.Do(httpReq)
	if err != nil {
		// Transport errors (timeouts, connection resets) are worth retrying.
		return "", &BackendError{Message: err.Error(), Retryable: true}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var errResp gmResponse
		_ = json.NewDecoder(resp.Body).Decode(&errResp)
		msg := resp.Status
		if errResp.Error != nil && errResp.Error.Message != "" {
			msg = errResp.Error.Message
		}
		return "", &BackendError{
			Status:    resp.StatusCode,
			Message:   msg,
			Retryable: retryableStatus(resp.StatusCode),
		}
	}

	var gmResp gmResponse
	if err := json.NewDecoder(resp.Body).Decode(&gmResp); err != nil {
		return "", &BackendError{Message: fmt.Sprintf("failed to decode response: %v", err), Retryable: true}
	}
	if len(gmResp.Candidates) == 0 || len(gmResp.Candidates[0].Content.Parts) == 0 {
		return "", &BackendError{Message: "empty response from backend", Retryable: true}
	}

	var text string
	for _, p := range gmResp.Candidates[0].Content.Parts {
		text += p.Text
	}
	if text == "" {
		return "", &BackendError{Message: "empty response from backend", Retryable: true}
	}
	return text, nil
}

func retryableStatus(status int) bool {
	switch {
	case status == http.StatusTooManyRequests:
		return true
	case status == http.StatusRequestTimeout:
		return true
	case status >= 500:
		return true
	default:
		return false
	}
}

// waitWithBackoff sleeps 2^attempt seconds plus jitter, capped at 60s, or
// returns early when ctx is done.
func waitWithBackoff(ctx context.Context, attempt int) error {
	base := 2 * time.Second * time.Duration(1<<(attempt-1))
	jitter := time.Duration(rand.Int63n(int64(time.Second)))
	delay := base + jitter
	if delay > 60*time.Second {
		delay = 60 * time.Second
	}
	t := time.NewTimer(delay)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
