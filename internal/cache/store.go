// Package cache memoizes expensive computations under a hash of
// (producer, input). Entries never expire; the store is loaded from one or
// more shards and flushed to a single shard.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
)

// Key hashes producer and input with length prefixes, so no two distinct
// pairs can share a key through concatenation.
func Key(producer string, input []byte) string {
	h := sha256.New()
	var n [8]byte
	binary.BigEndian.PutUint64(n[:], uint64(len(producer)))
	h.Write(n[:])
	h.Write([]byte(producer))
	binary.BigEndian.PutUint64(n[:], uint64(len(input)))
	h.Write(n[:])
	h.Write(input)
	return hex.EncodeToString(h.Sum(nil))
}

// Stats counts lookups since the store was created.
type Stats struct {
	Entries  int `json:"entries"`
	Hits     int `json:"hits"`
	Misses   int `json:"misses"`
	Computes int `json:"computes"`
}

// Store is the in-memory entry set. It is safe for concurrent use, but
// flushing the same shard from two stores at once is not.
type Store struct {
	mu      sync.RWMutex
	entries map[string]json.RawMessage
	stats   Stats
	log     zerolog.Logger
}

// NewStore creates an empty store.
func NewStore(log zerolog.Logger) *Store {
	return &Store{entries: make(map[string]json.RawMessage), log: log}
}

// Load merges shards left to right; a key already present is kept.
// Missing shards are skipped.
func (s *Store) Load(ctx context.Context, shards ...Shard) error {
	for _, sh := range shards {
		entries, err := sh.Load(ctx)
		if err != nil {
			return fmt.Errorf("load shard %s: %w", sh.Name(), err)
		}
		if entries == nil {
			s.log.Debug().Str("shard", sh.Name()).Msg("shard missing, skipped")
			continue
		}
		added := s.Merge(entries, false)
		s.log.Debug().Str("shard", sh.Name()).Int("entries", len(entries)).Int("added", added).Msg("shard loaded")
	}
	return nil
}

// Merge adds entries and returns how many keys were written. Existing keys
// are replaced only when overwrite is set.
func (s *Store) Merge(entries map[string]json.RawMessage, overwrite bool) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	added := 0
	for k, v := range entries {
		if _, exists := s.entries[k]; exists && !overwrite {
			continue
		}
		s.entries[k] = v
		added++
	}
	return added
}

// Flush writes the whole store to sh, replacing its contents.
func (s *Store) Flush(ctx context.Context, sh Shard) error {
	snapshot := s.Snapshot()
	if err := sh.Store(ctx, snapshot); err != nil {
		return fmt.Errorf("flush shard %s: %w", sh.Name(), err)
	}
	s.log.Debug().Str("shard", sh.Name()).Int("entries", len(snapshot)).Msg("cache flushed")
	return nil
}

// Snapshot returns a copy of every entry.
func (s *Store) Snapshot() map[string]json.RawMessage {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]json.RawMessage, len(s.entries))
	for k, v := range s.entries {
		out[k] = v
	}
	return out
}

// Len returns the number of entries.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// Stats returns the current counters.
func (s *Store) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st := s.stats
	st.Entries = len(s.entries)
	return st
}

func (s *Store) get(key string) (json.RawMessage, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.entries[key]
	return v, ok
}

func (s *Store) record(hits, misses int, computed bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stats.Hits += hits
	s.stats.Misses += misses
	if computed {
		s.stats.Computes++
	}
}

// ComputeFunc produces one output per input, in order.
type ComputeFunc[In, Out any] func(ctx context.Context, inputs []In) ([]Out, error)

// GetOrCompute returns one output per input, in input order. Inputs whose
// key is not stored are passed to compute in a single call, once per
// distinct key; the results are merged into the store before reassembly.
func GetOrCompute[In, Out any](ctx context.Context, s *Store, producer string, inputs []In, compute ComputeFunc[In, Out]) ([]Out, error) {
	keys := make([]string, len(inputs))
	for i, in := range inputs {
		raw, err := json.Marshal(in)
		if err != nil {
			return nil, fmt.Errorf("cache: encode input %d: %w", i, err)
		}
		keys[i] = Key(producer, raw)
	}

	var (
		missKeys   []string
		missInputs []In
		queued     = make(map[string]bool)
		hits       int
	)
	for i, k := range keys {
		if _, ok := s.get(k); ok {
			hits++
			continue
		}
		if queued[k] {
			continue
		}
		queued[k] = true
		missKeys = append(missKeys, k)
		missInputs = append(missInputs, inputs[i])
	}
	s.record(hits, len(inputs)-hits, len(missInputs) > 0)

	if len(missInputs) > 0 {
		outputs, err := compute(ctx, missInputs)
		if err != nil {
			return nil, err
		}
		fresh := make(map[string]json.RawMessage, len(outputs))
		for i, out := range outputs {
			if i >= len(missKeys) {
				break
			}
			raw, err := json.Marshal(out)
			if err != nil {
				return nil, fmt.Errorf("cache: encode output %d: %w", i, err)
			}
			fresh[missKeys[i]] = raw
		}
		s.Merge(fresh, true)
		s.log.Debug().Str("producer", producer).Int("hits", hits).Int("computed", len(fresh)).Msg("cache computed")
	}

	results := make([]Out, len(inputs))
	for i, k := range keys {
		raw, ok := s.get(k)
		if !ok {
			return nil, &CorruptionError{Index: i, Key: k}
		}
		if err := json.Unmarshal(raw, &results[i]); err != nil {
			return nil, fmt.Errorf("cache: decode entry %s: %w", k, err)
		}
	}
	return results, nil
}
