// Package llm defines the stateless request/response boundary to the
// generative backend and implements it for the Gemini REST API. Retry with
// exponential backoff and the request timeout live here, behind the Client
// interface; callers only observe success or failure.
package llm

import (
	"context"
	"fmt"
)

// Request carries one generation call. JSONResponse asks the backend for a
// structured (application/json) reply; Model may be empty to use the client
// default.
type Request struct {
	System       string
	Prompt       string
	Model        string
	Temperature  float64
	JSONResponse bool
}

// Client is the single blocking collaborator of the batch engine.
type Client interface {
	Generate(ctx context.Context, req Request) (string, error)
}

// BackendError reports an LLM call failure and distinguishes retryable
// conditions (timeout, rate limit, server error) from non-retryable ones
// (auth, malformed request). Exhausted retries surface to the scheduler as
// row- or batch-level translation failures, never as a run abort.
type BackendError struct {
	Status    int
	Message   string
	Retryable bool
}

func (e *BackendError) Error() string {
	kind := "non-retryable"
	if e.Retryable {
		kind = "retryable"
	}
	if e.Status != 0 {
		return fmt.Sprintf("llm backend error (%s, status %d): %s", kind, e.Status, e.Message)
	}
	return fmt.Sprintf("llm backend error (%s): %s", kind, e.Message)
}
