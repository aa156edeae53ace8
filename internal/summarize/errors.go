package summarize

import (
	"errors"
	"fmt"
)

var (
	// ErrNoBatches is returned when there is nothing to summarize.
	ErrNoBatches = errors.New("summarize: no batches")

	// ErrInputTooLarge matches any InputTooLargeError.
	ErrInputTooLarge = errors.New("summarize: input too large")
)

// InputTooLargeError reports a prompt the model rejected as oversized.
// Batching is supposed to prevent this, so it is fatal for the run and
// points at a miscalibrated token budget.
type InputTooLargeError struct {
	Step         int // 0-based batch index
	PromptTokens int // estimated
	Err          error
}

func (e *InputTooLargeError) Error() string {
	return fmt.Sprintf("summarize: step %d: prompt of ~%d tokens too large for model: %v", e.Step, e.PromptTokens, e.Err)
}

func (e *InputTooLargeError) Unwrap() error { return e.Err }

func (e *InputTooLargeError) Is(target error) bool {
	return target == ErrInputTooLarge
}
