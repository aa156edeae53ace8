package cron

import (
	"context"
	"errors"
	"math"
	"time"

	"chatdigest/internal/cache"
	"chatdigest/internal/provider"
	"chatdigest/internal/summarize"
	"chatdigest/pkg/chat"
)

// RetryableError is an error that can be retried.
type RetryableError interface {
	error
	Retryable() bool
}

// RetryPolicy defines the retry behavior for failed runs.
type RetryPolicy struct {
	// MaxAttempts is the maximum number of retry attempts (0 = no retries).
	MaxAttempts int
	// InitialDelay is the delay before the first retry.
	InitialDelay time.Duration
	// MaxDelay is the maximum delay between retries.
	MaxDelay time.Duration
	// Multiplier is the exponential backoff multiplier.
	Multiplier float64
}

// DefaultRetryPolicy returns the default retry policy.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:  3,
		InitialDelay: 30 * time.Second,
		MaxDelay:     10 * time.Minute,
		Multiplier:   2.0,
	}
}

// NewRetryPolicy creates a retry policy from configuration values.
func NewRetryPolicy(maxAttempts int, initialDelay, maxDelay time.Duration) RetryPolicy {
	return RetryPolicy{
		MaxAttempts:  maxAttempts,
		InitialDelay: initialDelay,
		MaxDelay:     maxDelay,
		Multiplier:   2.0,
	}
}

// ShouldRetry determines if a failed run should be retried. Only transient
// failures qualify: transport errors, provider errors marked retryable and
// errors the executor marked with Retryable. An oversized prompt or a
// corrupt cache fails the same way every time, and a partially delivered
// digest is marked NonRetryable so its parts are not posted twice.
func (p *RetryPolicy) ShouldRetry(attempt int, err error) bool {
	if err == nil || p.MaxAttempts <= 0 || attempt >= p.MaxAttempts {
		return false
	}

	switch {
	case errors.Is(err, summarize.ErrInputTooLarge),
		errors.Is(err, cache.ErrCorruption),
		errors.Is(err, context.Canceled):
		return false
	}

	var retryable RetryableError
	if errors.As(err, &retryable) {
		return retryable.Retryable()
	}

	if provider.IsRetryable(err) {
		return true
	}
	var pe *provider.ProviderError
	if errors.As(err, &pe) {
		return false
	}

	return errors.Is(err, chat.ErrTransport)
}

// NextDelay calculates the delay before the next retry attempt.
func (p *RetryPolicy) NextDelay(attempt int) time.Duration {
	if attempt <= 0 {
		return p.InitialDelay
	}

	delay := float64(p.InitialDelay) * math.Pow(p.Multiplier, float64(attempt))
	if p.MaxDelay > 0 && delay > float64(p.MaxDelay) {
		return p.MaxDelay
	}
	return time.Duration(delay)
}

// nonRetryableError wraps an error to mark it as non-retryable.
type nonRetryableError struct {
	err error
}

func (e *nonRetryableError) Error() string {
	return e.err.Error()
}

func (e *nonRetryableError) Unwrap() error {
	return e.err
}

func (e *nonRetryableError) Retryable() bool {
	return false
}

// NonRetryable wraps an error to mark it as non-retryable.
func NonRetryable(err error) error {
	if err == nil {
		return nil
	}
	return &nonRetryableError{err: err}
}

// retryableError wraps an error to mark it as retryable.
type retryableError struct {
	err error
}

func (e *retryableError) Error() string {
	return e.err.Error()
}

func (e *retryableError) Unwrap() error {
	return e.err
}

func (e *retryableError) Retryable() bool {
	return true
}

// Retryable wraps an error to mark it as retryable.
func Retryable(err error) error {
	if err == nil {
		return nil
	}
	return &retryableError{err: err}
}
