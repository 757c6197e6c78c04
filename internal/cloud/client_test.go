// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cloud

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/jeranaias/assistant-core/internal/provider"
)

func testDesc(baseURL string) provider.Descriptor {
	return provider.Descriptor{
		Name:         "testprov",
		APIKey:       "sk-test",
		BaseURL:      baseURL,
		DefaultModel: "test-model",
		MaxTokens:    256,
	}
}

func completionBody(content string) map[string]any {
	return map[string]any{
		"id":    "cmpl-1",
		"model": "test-model",
		"choices": []map[string]any{
			{"message": map[string]any{"role": "assistant", "content": content}, "finish_reason": "stop"},
		},
		"usage": map[string]any{"prompt_tokens": 5, "completion_tokens": 7, "total_tokens": 12},
	}
}

func TestCompleteSuccess(t *testing.T) {
	var gotAuth, gotPath string
	var gotReq map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotPath = r.URL.Path
		json.NewDecoder(r.Body).Decode(&gotReq)
		json.NewEncoder(w).Encode(completionBody("the answer"))
	}))
	defer srv.Close()

	c := NewClient(testDesc(srv.URL), zap.NewNop())
	out, err := c.Complete(context.Background(), "", "what is up", 0, 0.2)
	require.NoError(t, err)

	assert.Equal(t, "the answer", out.Content)
	assert.Equal(t, 12, out.TotalTokens())
	assert.Equal(t, "Bearer sk-test", gotAuth)
	assert.Equal(t, "/chat/completions", gotPath)
	// Default model and provider token cap are applied.
	assert.Equal(t, "test-model", gotReq["model"])
	assert.Equal(t, float64(256), gotReq["max_tokens"])
}

func TestCompleteNotConfigured(t *testing.T) {
	desc := testDesc("http://127.0.0.1:1")
	desc.APIKey = ""
	c := NewClient(desc, nil)

	_, err := c.Complete(context.Background(), "", "hi", 0, 0)
	assert.ErrorIs(t, err, ErrNotConfigured)
}

func TestCompleteErrorMapping(t *testing.T) {
	tests := []struct {
		name   string
		status int
		check  func(t *testing.T, err error)
	}{
		{
			name:   "auth_failed",
			status: http.StatusUnauthorized,
			check:  func(t *testing.T, err error) { assert.ErrorIs(t, err, ErrAuthFailed); assert.False(t, IsRetryable(err)) },
		},
		{
			name:   "rate_limited",
			status: http.StatusTooManyRequests,
			check:  func(t *testing.T, err error) { assert.ErrorIs(t, err, ErrRateLimited); assert.True(t, IsRetryable(err)) },
		},
		{
			name:   "model_not_found",
			status: http.StatusNotFound,
			check:  func(t *testing.T, err error) { assert.ErrorIs(t, err, ErrModelNotFound); assert.False(t, IsRetryable(err)) },
		},
		{
			name:   "server_error",
			status: http.StatusInternalServerError,
			check: func(t *testing.T, err error) {
				var apiErr *APIError
				require.ErrorAs(t, err, &apiErr)
				assert.Equal(t, http.StatusInternalServerError, apiErr.Status)
				assert.True(t, IsRetryable(err))
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				json.NewEncoder(w).Encode(map[string]any{
					"error": map[string]any{"code": "boom", "message": "it broke"},
				})
			}))
			defer srv.Close()

			c := NewClient(testDesc(srv.URL), zap.NewNop())
			_, err := c.Complete(context.Background(), "", "hi", 0, 0)
			require.Error(t, err)
			tt.check(t, err)
		})
	}
}

func TestCompleteEmptyChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"choices": []any{}})
	}))
	defer srv.Close()

	c := NewClient(testDesc(srv.URL), zap.NewNop())
	_, err := c.Complete(context.Background(), "", "hi", 0, 0)

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Contains(t, apiErr.Message, "no choices")
}

func TestKeyFingerprint(t *testing.T) {
	c := NewClient(testDesc("http://x"), nil)
	fp := c.KeyFingerprint()
	assert.Len(t, fp, 8)
	assert.NotContains(t, fp, "sk-test")

	desc := testDesc("http://x")
	desc.APIKey = ""
	assert.Equal(t, "none", NewClient(desc, nil).KeyFingerprint())
}
