package cache

import (
	"errors"
	"fmt"
)

// ErrCorruption matches every CorruptionError via errors.Is.
var ErrCorruption = errors.New("cache: corruption")

// CorruptionError means an input had no output after computed results
// were merged. It signals a bug, never a normal miss.
type CorruptionError struct {
	Index int
	Key   string
}

// Error implements the error interface.
func (e *CorruptionError) Error() string {
	return fmt.Sprintf("cache: no output for input %d (key %s) after merge", e.Index, e.Key)
}

// Is makes errors.Is(err, ErrCorruption) hold.
func (e *CorruptionError) Is(target error) bool {
	return target == ErrCorruption
}
