// Package llm wraps the external text-generation service used for SQL
// generation and answer formatting.
package llm

import (
	"context"
	"errors"
	"time"
)

// Client is the transport interface to the text-generation service
type Client interface {
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)
}

// CompletionRequest is one request/response call to the service
type CompletionRequest struct {
	SystemPrompt string
	UserPrompt   string
	MaxTokens    int
	Temperature  float64
}

// CompletionResponse carries the generated text plus token usage counters
type CompletionResponse struct {
	Text         string
	Model        string
	InputTokens  int
	OutputTokens int
}

// TotalTokens returns the combined token count of the call
func (r *CompletionResponse) TotalTokens() int {
	return r.InputTokens + r.OutputTokens
}

// Config holds transport configuration
type Config struct {
	APIKey  string
	Model   string
	BaseURL string
	Timeout time.Duration
}

// FailureKind classifies transport-level failures so callers can decide
// whether retrying later makes sense.
type FailureKind string

const (
	// KindRateLimited means the service refused the call under load;
	// the caller should retry later, not immediately.
	KindRateLimited FailureKind = "rate_limited"
	// KindConnection means the service could not be reached at all
	KindConnection FailureKind = "connection"
	// KindService covers every other service-side failure
	KindService FailureKind = "service"
)

// TransportError is a classified failure from the text-generation service.
// UserMessage is safe to show to end users; the raw cause is only logged.
type TransportError struct {
	Kind        FailureKind
	StatusCode  int
	UserMessage string
	Cause       error
}

// Error implements the error interface
func (e *TransportError) Error() string {
	if e.Cause != nil {
		return string(e.Kind) + ": " + e.Cause.Error()
	}
	return string(e.Kind) + ": " + e.UserMessage
}

// Unwrap returns the underlying error
func (e *TransportError) Unwrap() error {
	return e.Cause
}

// ClassifyError extracts the failure kind from an error chain, defaulting
// to KindService for unclassified errors.
func ClassifyError(err error) FailureKind {
	var te *TransportError
	if errors.As(err, &te) {
		return te.Kind
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindConnection
	}
	return KindService
}

// UserSafeMessage returns a message suitable for direct user display,
// never the raw error text.
func UserSafeMessage(err error) string {
	var te *TransportError
	if errors.As(err, &te) && te.UserMessage != "" {
		return te.UserMessage
	}
	switch ClassifyError(err) {
	case KindRateLimited:
		return "The AI service is busy right now. Please try again in a moment."
	case KindConnection:
		return "Unable to reach the AI service. Please try again in a moment."
	default:
		return "The AI service returned an error. Please try again."
	}
}
