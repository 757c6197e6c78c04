// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cloud

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/jeranaias/assistant-core/internal/provider"
)

// Configuration constants for provider requests.
const (
	// DefaultTimeout is the default timeout for API requests.
	DefaultTimeout = 30 * time.Second

	// MaxResponseSize caps response bodies to prevent memory exhaustion.
	MaxResponseSize = 10 * 1024 * 1024 // 10MB
)

// sharedHTTPClient pools connections across all provider clients.
var sharedHTTPClient = &http.Client{
	Transport: &http.Transport{
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
	},
}

// =============================================================================
// ERROR TYPES
// =============================================================================

// Error variables for common provider failures.
var (
	// ErrNotConfigured indicates the API key is not set.
	ErrNotConfigured = errors.New("provider API key not configured")

	// ErrAuthFailed indicates authentication failed.
	ErrAuthFailed = errors.New("authentication failed")

	// ErrRateLimited indicates too many requests were made.
	ErrRateLimited = errors.New("rate limited")

	// ErrModelNotFound indicates the requested model does not exist.
	ErrModelNotFound = errors.New("model not found")
)

// APIError represents an error response from a provider.
type APIError struct {
	Provider string
	Code     string
	Message  string
	Status   int
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s error [%s] (HTTP %d): %s", e.Provider, e.Code, e.Status, e.Message)
	}
	return fmt.Sprintf("%s error (HTTP %d): %s", e.Provider, e.Status, e.Message)
}

// Retryable reports whether the failure is transient.
// Server errors and rate limiting retry; auth and not-found do not.
func (e *APIError) Retryable() bool {
	return e.Status >= 500 || e.Status == http.StatusTooManyRequests
}

// =============================================================================
// WIRE TYPES
// =============================================================================

// ChatMessage represents a single message in a chat conversation.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// chatRequest is the chat completions request body.
type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []ChatMessage `json:"messages"`
	Temperature float64       `json:"temperature,omitempty"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
}

// chatResponse is the chat completions response body.
type chatResponse struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Choices []struct {
		Message      ChatMessage `json:"message"`
		FinishReason string      `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
}

// apiErrorResponse represents an error response from the API.
type apiErrorResponse struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// Completion is the result of one provider call.
type Completion struct {
	Content          string
	Model            string
	PromptTokens     int
	CompletionTokens int
}

// TotalTokens returns the total tokens consumed by the call.
func (c *Completion) TotalTokens() int {
	return c.PromptTokens + c.CompletionTokens
}

// =============================================================================
// CLIENT
// =============================================================================

// Client talks to one remote provider.
type Client struct {
	desc    provider.Descriptor
	baseURL string
	timeout time.Duration
	log     *zap.Logger
}

// NewClient creates a client for the given provider descriptor.
func NewClient(desc provider.Descriptor, log *zap.Logger) *Client {
	if log == nil {
		log = zap.NewNop()
	}
	return &Client{
		desc:    desc,
		baseURL: strings.TrimSuffix(desc.BaseURL, "/"),
		timeout: DefaultTimeout,
		log:     log.With(zap.String("provider", desc.Name)),
	}
}

// WithTimeout sets the per-request timeout.
func (c *Client) WithTimeout(timeout time.Duration) *Client {
	if timeout > 0 {
		c.timeout = timeout
	}
	return c
}

// Provider returns the provider name this client talks to.
func (c *Client) Provider() string {
	return c.desc.Name
}

// IsConfigured returns true if the client has an API key.
func (c *Client) IsConfigured() bool {
	return c.desc.APIKey != ""
}

// KeyFingerprint returns a short SHA-256 fingerprint of the API key for
// logging. The key itself is never logged.
func (c *Client) KeyFingerprint() string {
	if c.desc.APIKey == "" {
		return "none"
	}
	h := sha256.Sum256([]byte(c.desc.APIKey))
	return hex.EncodeToString(h[:4])
}

// Complete performs one chat completion request.
//
// model may be empty, in which case the provider's default model is used.
// maxTokens is capped at the provider's configured maximum.
func (c *Client) Complete(ctx context.Context, model, prompt string, maxTokens int, temperature float64) (*Completion, error) {
	if !c.IsConfigured() {
		return nil, ErrNotConfigured
	}

	if model == "" {
		model = c.desc.DefaultModel
	}
	if c.desc.MaxTokens > 0 && (maxTokens <= 0 || maxTokens > c.desc.MaxTokens) {
		maxTokens = c.desc.MaxTokens
	}

	reqBody := chatRequest{
		Model:       model,
		Messages:    []ChatMessage{{Role: "user", Content: prompt}},
		Temperature: temperature,
		MaxTokens:   maxTokens,
	}

	bodyBytes, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(callCtx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(bodyBytes))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.desc.APIKey)
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := sharedHTTPClient.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("%s: request timed out: %w", c.desc.Name, err)
		}
		return nil, fmt.Errorf("%s: request failed: %w", c.desc.Name, err)
	}
	defer resp.Body.Close()

	body, err := readResponse(resp)
	if err != nil {
		return nil, err
	}

	c.log.Debug("provider response",
		zap.Int("status", resp.StatusCode),
		zap.Duration("duration", time.Since(start)))

	if resp.StatusCode != http.StatusOK {
		return nil, c.handleErrorResponse(resp.StatusCode, body)
	}

	var chatResp chatResponse
	if err := json.Unmarshal(body, &chatResp); err != nil {
		return nil, fmt.Errorf("%s: parse response: %w", c.desc.Name, err)
	}
	if len(chatResp.Choices) == 0 {
		return nil, &APIError{Provider: c.desc.Name, Message: "response contained no choices", Status: resp.StatusCode}
	}

	return &Completion{
		Content:          chatResp.Choices[0].Message.Content,
		Model:            chatResp.Model,
		PromptTokens:     chatResp.Usage.PromptTokens,
		CompletionTokens: chatResp.Usage.CompletionTokens,
	}, nil
}

// readResponse reads the response body with a size limit.
func readResponse(resp *http.Response) ([]byte, error) {
	body, err := io.ReadAll(io.LimitReader(resp.Body, MaxResponseSize))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if int64(len(body)) == MaxResponseSize {
		return nil, fmt.Errorf("response exceeded maximum size of %d bytes", MaxResponseSize)
	}
	return body, nil
}

// handleErrorResponse converts HTTP error responses to typed errors.
func (c *Client) handleErrorResponse(statusCode int, body []byte) error {
	apiErr := &APIError{Provider: c.desc.Name, Status: statusCode}

	var parsed apiErrorResponse
	if err := json.Unmarshal(body, &parsed); err == nil && parsed.Error.Message != "" {
		apiErr.Code = parsed.Error.Code
		apiErr.Message = parsed.Error.Message
	} else {
		apiErr.Message = http.StatusText(statusCode)
	}

	switch statusCode {
	case http.StatusUnauthorized:
		return fmt.Errorf("%w: %s", ErrAuthFailed, apiErr.Message)
	case http.StatusNotFound:
		return fmt.Errorf("%w: %s", ErrModelNotFound, apiErr.Message)
	case http.StatusTooManyRequests:
		return fmt.Errorf("%w: %s", ErrRateLimited, apiErr.Message)
	default:
		return apiErr
	}
}

// IsRetryable reports whether an error from Complete is worth retrying.
func IsRetryable(err error) bool {
	if errors.Is(err, ErrRateLimited) {
		return true
	}
	if errors.Is(err, ErrAuthFailed) || errors.Is(err, ErrModelNotFound) || errors.Is(err, ErrNotConfigured) {
		return false
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Retryable()
	}
	// Transport failures and timeouts are transient.
	return true
}
