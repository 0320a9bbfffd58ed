package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"
)

const (
	ClaudeAPIBaseURL = "https://api.anthropic.com/v1"
	ClaudeVersion    = "2023-06-01"

	defaultModel   = "claude-3-5-sonnet-20241022"
	defaultTimeout = 30 * time.Second
)

// ClaudeClient implements the Client interface against Anthropic's messages API
type ClaudeClient struct {
	apiKey  string
	model   string
	baseURL string
	client  *http.Client
}

// Claude API request structures
type claudeRequest struct {
	Model       string          `json:"model"`
	MaxTokens   int             `json:"max_tokens"`
	Temperature float64         `json:"temperature,omitempty"`
	System      string          `json:"system,omitempty"`
	Messages    []claudeMessage `json:"messages"`
}

type claudeMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Claude API response structures
type claudeResponse struct {
	ID      string               `json:"id"`
	Type    string               `json:"type"`
	Role    string               `json:"role"`
	Content []claudeContentBlock `json:"content"`
	Model   string               `json:"model"`
	Usage   claudeUsage          `json:"usage"`
}

type claudeContentBlock struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type claudeUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

type claudeErrorResponse struct {
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

// NewClaudeClient creates a new Claude transport
func NewClaudeClient(cfg Config) (*ClaudeClient, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("API key is required")
	}
	if cfg.Model == "" {
		cfg.Model = defaultModel
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = ClaudeAPIBaseURL
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = defaultTimeout
	}

	return &ClaudeClient{
		apiKey:  cfg.APIKey,
		model:   cfg.Model,
		baseURL: cfg.BaseURL,
		client: &http.Client{
			Timeout: cfg.Timeout,
		},
	}, nil
}

// Model returns the configured model name
func (c *ClaudeClient) Model() string {
	return c.model
}

// Complete issues one call to the messages endpoint and returns the
// generated text with token usage. Failures come back as *TransportError.
func (c *ClaudeClient) Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	request := claudeRequest{
		Model:       c.model,
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
		System:      req.SystemPrompt,
		Messages: []claudeMessage{
			{Role: "user", Content: req.UserPrompt},
		},
	}

	requestBody, err := json.Marshal(request)
	if err != nil {
		return nil, &TransportError{
			Kind:        KindService,
			UserMessage: "The AI service request could not be prepared.",
			Cause:       fmt.Errorf("failed to marshal request: %w", err),
		}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/messages", bytes.NewBuffer(requestBody))
	if err != nil {
		return nil, &TransportError{
			Kind:        KindService,
			UserMessage: "The AI service request could not be prepared.",
			Cause:       fmt.Errorf("failed to create HTTP request: %w", err),
		}
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", c.apiKey)
	httpReq.Header.Set("anthropic-version", ClaudeVersion)

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, classifyTransportFailure(err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &TransportError{
			Kind:        KindConnection,
			UserMessage: "Unable to reach the AI service. Please try again in a moment.",
			Cause:       fmt.Errorf("failed to read response body: %w", err),
		}
	}

	if resp.StatusCode != http.StatusOK {
		return nil, c.handleAPIError(resp.StatusCode, body)
	}

	var claudeResp claudeResponse
	if err := json.Unmarshal(body, &claudeResp); err != nil {
		return nil, &TransportError{
			Kind:        KindService,
			UserMessage: "The AI service returned an unexpected response.",
			Cause:       fmt.Errorf("failed to unmarshal response: %w", err),
		}
	}

	if len(claudeResp.Content) == 0 {
		return nil, &TransportError{
			Kind:        KindService,
			UserMessage: "The AI service returned an empty response.",
			Cause:       fmt.Errorf("response contained no content blocks"),
		}
	}

	return &CompletionResponse{
		Text:         claudeResp.Content[0].Text,
		Model:        claudeResp.Model,
		InputTokens:  claudeResp.Usage.InputTokens,
		OutputTokens: claudeResp.Usage.OutputTokens,
	}, nil
}

// classifyTransportFailure maps HTTP client errors to failure kinds
func classifyTransportFailure(err error) *TransportError {
	kind := KindConnection
	msg := "Unable to reach the AI service. Please try again in a moment."

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		msg = "The AI service took too long to respond. Please try again."
	}

	return &TransportError{
		Kind:        kind,
		UserMessage: msg,
		Cause:       err,
	}
}

// handleAPIError maps non-200 responses to classified errors
func (c *ClaudeClient) handleAPIError(statusCode int, body []byte) *TransportError {
	var errResp claudeErrorResponse
	cause := fmt.Errorf("API error %d: %s", statusCode, string(body))
	if err := json.Unmarshal(body, &errResp); err == nil && errResp.Error.Message != "" {
		cause = fmt.Errorf("API error %d (%s): %s", statusCode, errResp.Error.Type, errResp.Error.Message)
	}

	switch {
	case statusCode == http.StatusTooManyRequests:
		return &TransportError{
			Kind:        KindRateLimited,
			StatusCode:  statusCode,
			UserMessage: "The AI service is busy right now. Please try again in a moment.",
			Cause:       cause,
		}
	case statusCode >= 500:
		return &TransportError{
			Kind:        KindService,
			StatusCode:  statusCode,
			UserMessage: "The AI service is temporarily unavailable. Please try again.",
			Cause:       cause,
		}
	case statusCode == http.StatusUnauthorized || statusCode == http.StatusForbidden:
		return &TransportError{
			Kind:        KindService,
			StatusCode:  statusCode,
			UserMessage: "The AI service rejected the request.",
			Cause:       cause,
		}
	default:
		return &TransportError{
			Kind:        KindService,
			StatusCode:  statusCode,
			UserMessage: "The AI service returned an error. Please try again.",
			Cause:       cause,
		}
	}
}
