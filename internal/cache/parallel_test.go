package cache

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParallel_PreservesOrder(t *testing.T) {
	double := Parallel(3, func(_ context.Context, n int) (int, error) {
		time.Sleep(time.Duration(10-n) * time.Millisecond)
		return n * 2, nil
	})

	out, err := double(context.Background(), []int{1, 2, 3, 4, 5, 6})
	require.NoError(t, err)
	assert.Equal(t, []int{2, 4, 6, 8, 10, 12}, out)
}

func TestParallel_RespectsLimit(t *testing.T) {
	var running, peak atomic.Int32
	fn := Parallel(2, func(_ context.Context, n int) (int, error) {
		cur := running.Add(1)
		for {
			p := peak.Load()
			if cur <= p || peak.CompareAndSwap(p, cur) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		running.Add(-1)
		return n, nil
	})

	_, err := fn(context.Background(), []int{1, 2, 3, 4, 5, 6, 7, 8})
	require.NoError(t, err)
	assert.LessOrEqual(t, peak.Load(), int32(2))
}

func TestParallel_FirstErrorCancels(t *testing.T) {
	boom := errors.New("boom")
	fn := Parallel(0, func(ctx context.Context, n int) (int, error) {
		if n == 0 {
			return 0, boom
		}
		select {
		case <-ctx.Done():
			return 0, ctx.Err()
		case <-time.After(time.Second):
			return n, nil
		}
	})

	_, err := fn(context.Background(), []int{0, 1, 2})
	assert.ErrorIs(t, err, boom)
}

func TestParallel_WithGetOrCompute(t *testing.T) {
	var calls atomic.Int32
	compute := Parallel(4, func(_ context.Context, s string) (int, error) {
		calls.Add(1)
		return len(s), nil
	})

	s := NewStore(zerolog.Nop())
	out, err := GetOrCompute(context.Background(), s, "len", []string{"a", "bb", "a", "ccc"}, compute)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, 1, 3}, out)
	assert.Equal(t, int32(3), calls.Load())
}
