package model

import (
	"errors"
	"fmt"
)

// ErrorKind classifies analysis failures for handling decisions
type ErrorKind string

const (
	ErrKindValidation        ErrorKind = "validation"         // Missing or invalid input
	ErrKindAuthConfig        ErrorKind = "auth_config"        // Missing or rejected service credential
	ErrKindTransport         ErrorKind = "transport"          // Network or service failure
	ErrKindRateLimit         ErrorKind = "rate_limit"         // Throttled, retryable
	ErrKindQuotaExhausted    ErrorKind = "quota_exhausted"    // Credits exhausted, not retryable
	ErrKindMalformedResponse ErrorKind = "malformed_response" // Unparseable reply, recovered by the normalizer
	ErrKindUnknown           ErrorKind = "unknown"            // Anything else
)

// AnalysisError is the structured error raised by input validation and the
// external analysis client
type AnalysisError struct {
	Kind       ErrorKind
	Message    string
	StatusCode int // HTTP status when the failure came from the service, else 0
	Retryable  bool
	Cause      error
}

// Error implements the error interface
func (e *AnalysisError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

// Unwrap returns the underlying cause
func (e *AnalysisError) Unwrap() error {
	return e.Cause
}

// Is matches any AnalysisError of the same kind, so errors.Is(err, ErrRateLimited) works
func (e *AnalysisError) Is(target error) bool {
	t, ok := target.(*AnalysisError)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

// WithCause attaches an underlying error
func (e *AnalysisError) WithCause(cause error) *AnalysisError {
	e.Cause = cause
	return e
}

// WithStatus records the HTTP status that triggered the error
func (e *AnalysisError) WithStatus(code int) *AnalysisError {
	e.StatusCode = code
	return e
}

// Sentinels for errors.Is comparisons
var (
	ErrInvalidInput      = &AnalysisError{Kind: ErrKindValidation}
	ErrMissingCredential = &AnalysisError{Kind: ErrKindAuthConfig}
	ErrTransportFailure  = &AnalysisError{Kind: ErrKindTransport}
	ErrRateLimited       = &AnalysisError{Kind: ErrKindRateLimit}
	ErrQuotaExhausted    = &AnalysisError{Kind: ErrKindQuotaExhausted}
	ErrMalformedReply    = &AnalysisError{Kind: ErrKindMalformedResponse}
	ErrUnclassified      = &AnalysisError{Kind: ErrKindUnknown}
)

// ErrValidation creates a validation error
func ErrValidation(message string) *AnalysisError {
	return &AnalysisError{Kind: ErrKindValidation, Message: message}
}

// ErrAuthConfig creates a credential/configuration error
func ErrAuthConfig(message string) *AnalysisError {
	return &AnalysisError{Kind: ErrKindAuthConfig, Message: message}
}

// ErrTransport creates a network/service failure error
func ErrTransport(message string) *AnalysisError {
	return &AnalysisError{Kind: ErrKindTransport, Message: message}
}

// ErrRateLimit creates a retryable rate limit error
func ErrRateLimit(message string) *AnalysisError {
	return &AnalysisError{Kind: ErrKindRateLimit, Message: message, Retryable: true}
}

// ErrQuota creates a non-retryable quota exhaustion error
func ErrQuota(message string) *AnalysisError {
	return &AnalysisError{Kind: ErrKindQuotaExhausted, Message: message}
}

// ErrMalformed creates a malformed response error
func ErrMalformed(message string) *AnalysisError {
	return &AnalysisError{Kind: ErrKindMalformedResponse, Message: message}
}

// ErrUnknown creates a catch-all error
func ErrUnknown(message string) *AnalysisError {
	return &AnalysisError{Kind: ErrKindUnknown, Message: message}
}

// KindOf returns the kind of the first AnalysisError in err's chain,
// or ErrKindUnknown for any other non-nil error
func KindOf(err error) ErrorKind {
	if err == nil {
		return ""
	}
	var ae *AnalysisError
	if errors.As(err, &ae) {
		return ae.Kind
	}
	return ErrKindUnknown
}

// IsRetryable reports whether err is marked retryable
func IsRetryable(err error) bool {
	var ae *AnalysisError
	if errors.As(err, &ae) {
		return ae.Retryable
	}
	return false
}
