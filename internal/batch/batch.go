// Package batch partitions formatted lines into prompt-sized batches.
package batch

import (
	"errors"
	"strings"
)

// ErrInvalidBudget is returned for a budget below 1.
var ErrInvalidBudget = errors.New("batch: budget must be positive")

// Batch is a run of consecutive lines.
type Batch struct {
	Lines  []string
	Tokens int
}

// Text joins the lines with newlines.
func (b Batch) Text() string {
	return strings.Join(b.Lines, "\n")
}

// Batcher splits lines greedily under a token budget.
type Batcher struct {
	counter Counter
}

// New creates a Batcher. A nil counter falls back to Heuristic.
func New(counter Counter) *Batcher {
	if counter == nil {
		counter = Heuristic{}
	}
	return &Batcher{counter: counter}
}

// Split packs lines, in order, into the fewest batches a single greedy pass
// allows. A line is never split: one that alone exceeds budget becomes its
// own batch.
func (b *Batcher) Split(lines []string, budget int) ([]Batch, error) {
	if budget < 1 {
		return nil, ErrInvalidBudget
	}
	if len(lines) == 0 {
		return nil, nil
	}

	var batches []Batch
	var current Batch

	for _, line := range lines {
		n := b.counter.Count(line)
		if current.Tokens+n > budget && len(current.Lines) > 0 {
			batches = append(batches, current)
			current = Batch{}
		}
		current.Lines = append(current.Lines, line)
		current.Tokens += n
	}

	if len(current.Lines) > 0 {
		batches = append(batches, current)
	}
	return batches, nil
}

// Oversized reports whether the batch is a single line over budget.
func (b Batch) Oversized(budget int) bool {
	return len(b.Lines) == 1 && b.Tokens > budget
}
