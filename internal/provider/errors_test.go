package provider

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsContextWindowExceeded_TypedError(t *testing.T) {
	err := &ProviderError{Code: ErrCodeContextWindowExceeded, Message: "some message"}
	assert.True(t, IsContextWindowExceeded(err))
	assert.True(t, IsContextWindowExceeded(fmt.Errorf("outer: %w", err)))
}

func TestIsContextWindowExceeded_KeywordFallback(t *testing.T) {
	for _, kw := range contextWindowPhrases {
		err := errors.New("provider error: " + kw + " for this model")
		assert.True(t, IsContextWindowExceeded(err), kw)
	}
	assert.True(t, IsContextWindowExceeded(errors.New("error_user_message_too_long")))
}

func TestIsContextWindowExceeded_NegativeCases(t *testing.T) {
	cases := []error{
		errors.New("invalid request"),
		errors.New("rate limit exceeded"),
		&ProviderError{Code: ErrCodeRateLimited, Message: "context window"},
		nil,
	}
	for _, err := range cases {
		assert.False(t, IsContextWindowExceeded(err), "%v", err)
	}
}

func TestClassifyMessage(t *testing.T) {
	assert.Equal(t, ErrCodeContextWindowExceeded, ClassifyMessage("the input length exceeds the context length", ErrCodeInvalidRequest))
	assert.Equal(t, ErrCodeInvalidRequest, ClassifyMessage("bad json", ErrCodeInvalidRequest))
}

func TestIsRetryable(t *testing.T) {
	assert.False(t, IsRetryable(nil))
	assert.False(t, IsRetryable(errors.New("plain")))
	assert.True(t, IsRetryable(fmt.Errorf("wrap: %w", NewProviderError(ErrCodeTimeout, "slow", "x", true))))
	assert.False(t, IsRetryable(NewProviderError(ErrCodeModelNotFound, "gone", "x", false)))
}
