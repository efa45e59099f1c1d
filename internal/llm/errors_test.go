package llm

import (
	"context"
	"errors"
	"fmt"
	"net"
	"testing"

	"github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"google.golang.org/genai"

	"github.com/ppiankov/loreguard/internal/model"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		kind      model.ErrorKind
		retryable bool
		message   string
	}{
		{
			name:      "429 throttling",
			err:       &StatusError{Provider: "anthropic", StatusCode: 429, Code: "rate_limit_error"},
			kind:      model.ErrKindRateLimit,
			retryable: true,
			message:   "Rate limit exceeded. Please try again in a moment.",
		},
		{
			name:    "429 insufficient quota",
			err:     &openai.APIError{HTTPStatusCode: 429, Code: "insufficient_quota", Message: "You exceeded your current quota"},
			kind:    model.ErrKindQuotaExhausted,
			message: "AI credits exhausted. Please add credits to continue.",
		},
		{
			name:    "402",
			err:     fmt.Errorf("gateway: %w", &StatusError{Provider: "openai", StatusCode: 402}),
			kind:    model.ErrKindQuotaExhausted,
			message: "AI credits exhausted. Please add credits to continue.",
		},
		{
			name: "401",
			err:  &openai.RequestError{HTTPStatusCode: 401, Err: errors.New("unauthorized")},
			kind: model.ErrKindAuthConfig,
		},
		{
			name: "503",
			err:  &StatusError{Provider: "ollama", StatusCode: 503},
			kind: model.ErrKindTransport,
		},
		{
			name: "408",
			err:  &StatusError{Provider: "ollama", StatusCode: 408},
			kind: model.ErrKindTransport,
		},
		{
			name:      "gemini resource exhausted",
			err:       fmt.Errorf("Gemini API error: %w", &genai.APIError{Code: 429, Status: "RESOURCE_EXHAUSTED", Message: "Resource has been exhausted"}),
			kind:      model.ErrKindRateLimit,
			retryable: true,
		},
		{
			name: "deadline",
			err:  fmt.Errorf("call: %w", context.DeadlineExceeded),
			kind: model.ErrKindTransport,
		},
		{
			name: "cancelled",
			err:  context.Canceled,
			kind: model.ErrKindTransport,
		},
		{
			name: "dial failure",
			err:  &net.OpError{Op: "dial", Net: "tcp", Err: errors.New("connection refused")},
			kind: model.ErrKindTransport,
		},
		{
			name: "unexpected",
			err:  errors.New("something odd"),
			kind: model.ErrKindUnknown,
		},
		{
			name: "418",
			err:  &StatusError{Provider: "openai", StatusCode: 418},
			kind: model.ErrKindUnknown,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Classify("test", tt.err)

			var ae *model.AnalysisError
			if assert.ErrorAs(t, got, &ae) {
				assert.Equal(t, tt.kind, ae.Kind)
				assert.Equal(t, tt.retryable, ae.Retryable)
				if tt.message != "" {
					assert.Equal(t, tt.message, ae.Message)
				}
			}
			assert.ErrorIs(t, got, tt.err, "cause must stay reachable")
		})
	}
}

func TestClassify_PassesThroughAnalysisErrors(t *testing.T) {
	original := model.ErrAuthConfig("OPENAI_API_KEY is not configured")
	assert.Same(t, original, Classify("openai", original))
	assert.NoError(t, Classify("openai", nil))
}

func TestStatusError_Error(t *testing.T) {
	withCode := &StatusError{Provider: "anthropic", StatusCode: 429, Code: "rate_limit_error", Message: "slow down"}
	assert.Equal(t, "anthropic API error (429): rate_limit_error - slow down", withCode.Error())

	plain := &StatusError{Provider: "ollama", StatusCode: 500, Message: "boom"}
	assert.Equal(t, "ollama API error (500): boom", plain.Error())
}
