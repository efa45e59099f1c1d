package llm

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"

	"github.com/sashabaranov/go-openai"
	"google.golang.org/genai"

	"github.com/ppiankov/loreguard/internal/model"
)

// Messages surfaced to users for the gateway-style failures
const (
	msgRateLimited = "Rate limit exceeded. Please try again in a moment."
	msgQuota       = "AI credits exhausted. Please add credits to continue."
)

// StatusError is a non-success HTTP reply from a provider's API
type StatusError struct {
	Provider   string
	StatusCode int
	Code       string // Provider error type/code, e.g. "insufficient_quota"
	Message    string
}

func (e *StatusError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s API error (%d): %s - %s", e.Provider, e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("%s API error (%d): %s", e.Provider, e.StatusCode, e.Message)
}

// Classify maps a provider failure onto the closed error taxonomy.
// Errors that are already *model.AnalysisError pass through unchanged.
func Classify(provider string, err error) error {
	if err == nil {
		return nil
	}

	var analysisErr *model.AnalysisError
	if errors.As(err, &analysisErr) {
		return err
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return model.ErrTransport(provider + " request timed out").WithCause(err)
	}
	if errors.Is(err, context.Canceled) {
		return model.ErrTransport(provider + " request cancelled").WithCause(err)
	}

	if status, code, message, ok := statusOf(err); ok {
		return classifyStatus(provider, status, code, message).WithCause(err)
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return model.ErrTransport(provider + " endpoint unreachable").WithCause(err)
	}

	return model.ErrUnknown(provider + " request failed").WithCause(err)
}

func classifyStatus(provider string, status int, code, message string) *model.AnalysisError {
	switch {
	case status == http.StatusTooManyRequests:
		if signalsQuota(code, message) {
			return model.ErrQuota(msgQuota).WithStatus(status)
		}
		return model.ErrRateLimit(msgRateLimited).WithStatus(status)
	case status == http.StatusPaymentRequired:
		return model.ErrQuota(msgQuota).WithStatus(status)
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return model.ErrAuthConfig(provider + " rejected the credential").WithStatus(status)
	case status == http.StatusRequestTimeout || status >= 500:
		return model.ErrTransport(fmt.Sprintf("%s gateway error: %d", provider, status)).WithStatus(status)
	}
	return model.ErrUnknown(fmt.Sprintf("%s gateway error: %d", provider, status)).WithStatus(status)
}

// signalsQuota reports whether a 429 means the account is out of credit
// rather than temporarily throttled
func signalsQuota(code, message string) bool {
	code = strings.ToLower(code)
	message = strings.ToLower(message)
	return code == "insufficient_quota" ||
		strings.Contains(message, "insufficient_quota") ||
		strings.Contains(message, "exceeded your current quota") ||
		strings.Contains(message, "credit balance")
}

// statusOf extracts the HTTP status and provider error code from the error
// types of every supported provider
func statusOf(err error) (status int, code, message string, ok bool) {
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.StatusCode, statusErr.Code, statusErr.Message, true
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) && apiErr.HTTPStatusCode > 0 {
		code := apiErr.Type
		if c, isString := apiErr.Code.(string); isString && c != "" {
			code = c
		}
		return apiErr.HTTPStatusCode, code, apiErr.Message, true
	}

	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) && reqErr.HTTPStatusCode > 0 {
		return reqErr.HTTPStatusCode, "", reqErr.Error(), true
	}

	// The Gemini SDK may return its error by value or by pointer
	for e := err; e != nil; e = errors.Unwrap(e) {
		switch t := any(e).(type) {
		case genai.APIError:
			if t.Code > 0 {
				return t.Code, t.Status, t.Message, true
			}
		case *genai.APIError:
			if t != nil && t.Code > 0 {
				return t.Code, t.Status, t.Message, true
			}
		}
	}

	return 0, "", "", false
}
