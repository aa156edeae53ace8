package batch

// Counter returns a deterministic, non-negative token count for text.
type Counter interface {
	Count(text string) int
}

// CounterFunc adapts a function to Counter.
type CounterFunc func(text string) int

// Count implements Counter.
func (f CounterFunc) Count(text string) int { return f(text) }

// Heuristic estimates tokens without a model vocabulary.
type Heuristic struct{}

// Count uses roughly 3 bytes per token, which holds up for mixed
// English and CJK text.
func (Heuristic) Count(text string) int {
	if len(text) == 0 {
		return 0
	}
	return (len(text) + 2) / 3
}
