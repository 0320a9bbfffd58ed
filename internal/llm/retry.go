package llm

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"time"
)

// RetryConfig defines retry behavior for transport calls. Retry count,
// backoff, and jitter are explicit configuration rather than an implicit
// library default, so the orchestrator's single-attempt policy stays visible.
type RetryConfig struct {
	MaxRetries int           // Additional attempts after the first call
	BaseDelay  time.Duration // Initial delay between retries
	MaxDelay   time.Duration // Maximum delay between retries
	Jitter     bool          // Randomize delays to avoid thundering herd
}

// DefaultRetryConfig provides sensible defaults for transport-level retries
var DefaultRetryConfig = RetryConfig{
	MaxRetries: 2,
	BaseDelay:  100 * time.Millisecond,
	MaxDelay:   5 * time.Second,
	Jitter:     true,
}

// RetryClient wraps a transport Client with bounded retries. Only
// rate-limit, connection, and 5xx-class failures are retried; everything
// else fails immediately.
type RetryClient struct {
	client Client
	config RetryConfig
}

// NewRetryClient wraps client with the given retry configuration
func NewRetryClient(client Client, config RetryConfig) *RetryClient {
	return &RetryClient{client: client, config: config}
}

// Complete issues the call, retrying retryable failures with exponential
// backoff. Context cancellation is respected between attempts.
func (rc *RetryClient) Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	var lastErr error

	for attempt := 0; attempt <= rc.config.MaxRetries; attempt++ {
		resp, err := rc.client.Complete(ctx, req)
		if err == nil {
			return resp, nil
		}

		lastErr = err

		if !isRetryableError(err) {
			return nil, err
		}

		if attempt == rc.config.MaxRetries {
			break
		}

		delay := calculateBackoff(attempt, rc.config.BaseDelay, rc.config.MaxDelay, rc.config.Jitter)

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, fmt.Errorf("request cancelled during retry: %w", ctx.Err())
		}
	}

	return nil, fmt.Errorf("max retries (%d) exceeded: %w", rc.config.MaxRetries, lastErr)
}

// isRetryableError determines if a classified failure should be retried
func isRetryableError(err error) bool {
	if err == nil {
		return false
	}

	var te *TransportError
	if errors.As(err, &te) {
		switch te.Kind {
		case KindRateLimited, KindConnection:
			return true
		case KindService:
			// Retry server-side errors, not client-side rejections
			return te.StatusCode >= 500
		}
	}

	return errors.Is(err, context.DeadlineExceeded)
}

// calculateBackoff calculates the delay before the next retry attempt
// using exponential backoff with optional jitter
func calculateBackoff(attempt int, baseDelay, maxDelay time.Duration, jitter bool) time.Duration {
	delay := time.Duration(math.Pow(2, float64(attempt))) * baseDelay

	if delay > maxDelay {
		delay = maxDelay
	}

	if jitter {
		// Random factor between 0.5 and 1.5
		delay = time.Duration(float64(delay) * (0.5 + rand.Float64()))
	}

	return delay
}
