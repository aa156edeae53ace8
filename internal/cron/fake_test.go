package cron

import (
	"context"
	"sync"

	"chatdigest/internal/pipeline"
)

// fakeRunner fails with errs in order, then succeeds.
type fakeRunner struct {
	mu      sync.Mutex
	errs    []error
	windows []pipeline.Window
	block   chan struct{}
	started chan struct{}
}

func (f *fakeRunner) Run(ctx context.Context, w pipeline.Window, _ pipeline.Options) (*pipeline.Result, error) {
	f.mu.Lock()
	f.windows = append(f.windows, w)
	n := len(f.windows)
	var err error
	if n <= len(f.errs) {
		err = f.errs[n-1]
	}
	block, started := f.block, f.started
	f.mu.Unlock()

	if started != nil {
		select {
		case started <- struct{}{}:
		default:
		}
	}
	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	res := &pipeline.Result{RunID: "run", Window: w, Status: "succeeded"}
	if err != nil {
		res.Status = "failed"
	}
	return res, err
}

func (f *fakeRunner) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.windows)
}
