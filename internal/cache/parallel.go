package cache

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// Parallel turns a per-item function into a ComputeFunc that runs up to
// limit items at once. The first error cancels the rest.
func Parallel[In, Out any](limit int, fn func(ctx context.Context, in In) (Out, error)) ComputeFunc[In, Out] {
	return func(ctx context.Context, inputs []In) ([]Out, error) {
		results := make([]Out, len(inputs))
		g, gctx := errgroup.WithContext(ctx)
		if limit > 0 {
			g.SetLimit(limit)
		}
		for i, in := range inputs {
			g.Go(func() error {
				out, err := fn(gctx, in)
				if err != nil {
					return err
				}
				results[i] = out
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return nil, err
		}
		return results, nil
	}
}
