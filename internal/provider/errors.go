package provider

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorCode defines Provider error codes
type ErrorCode string

const (
	// Rate limiting and quota
	ErrCodeRateLimited ErrorCode = "RATE_LIMITED" // Too many requests

	// Service availability
	ErrCodeServiceUnavailable ErrorCode = "SERVICE_UNAVAILABLE" // Service temporarily unavailable
	ErrCodeModelNotFound      ErrorCode = "MODEL_NOT_FOUND"     // Requested model not found

	// Network and request
	ErrCodeNetworkError          ErrorCode = "NETWORK_ERROR"           // Network connectivity issues
	ErrCodeInvalidRequest        ErrorCode = "INVALID_REQUEST"         // Malformed request
	ErrCodeTimeout               ErrorCode = "TIMEOUT"                 // Request timeout
	ErrCodeContextWindowExceeded ErrorCode = "CONTEXT_WINDOW_EXCEEDED" // Input exceeds model context window

	// Unknown
	ErrCodeUnknown ErrorCode = "UNKNOWN" // Unclassified error
)

// ProviderError is a structured error for Provider operations
type ProviderError struct {
	Code       ErrorCode `json:"code"`
	Message    string    `json:"message"`
	Provider   string    `json:"provider"`
	Retryable  bool      `json:"retryable"`
	RetryAfter int       `json:"retry_after,omitempty"` // seconds until retry is allowed
}

// Error implements the error interface
func (e *ProviderError) Error() string {
	return fmt.Sprintf("[%s] %s: %s", e.Provider, e.Code, e.Message)
}

// NewProviderError creates a new ProviderError
func NewProviderError(code ErrorCode, message, provider string, retryable bool) *ProviderError {
	return &ProviderError{
		Code:      code,
		Message:   message,
		Provider:  provider,
		Retryable: retryable,
	}
}

// contextWindowPhrases are lowercase fragments backends use when a prompt
// does not fit.
var contextWindowPhrases = []string{
	"context window",
	"context length exceeded",
	"exceeds the context length",
	"maximum context length",
	"token limit exceeded",
	"too many tokens",
	"input too long",
	"prompt is too long",
	"message_too_long",
}

// IsContextWindowExceeded checks if the error indicates that the input
// exceeded the model's context window limit.  It first checks for a typed
// ProviderError with ErrCodeContextWindowExceeded, then falls back to
// keyword matching on the error message for untyped errors.
func IsContextWindowExceeded(err error) bool {
	if err == nil {
		return false
	}
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.Code == ErrCodeContextWindowExceeded
	}
	return mentionsContextWindow(err.Error())
}

func mentionsContextWindow(msg string) bool {
	msg = strings.ToLower(msg)
	for _, phrase := range contextWindowPhrases {
		if strings.Contains(msg, phrase) {
			return true
		}
	}
	return false
}

// ClassifyMessage returns ErrCodeContextWindowExceeded when msg reads like
// an oversized-prompt rejection, otherwise fallback.
func ClassifyMessage(msg string, fallback ErrorCode) ErrorCode {
	if mentionsContextWindow(msg) {
		return ErrCodeContextWindowExceeded
	}
	return fallback
}

// IsRetryable checks if the error is a transient provider error that
// should be automatically retried (e.g., temporary service unavailability).
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.Retryable
	}
	return false
}
