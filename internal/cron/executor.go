package cron

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"chatdigest/internal/pipeline"
	"chatdigest/pkg/chat"
)

// Runner executes one digest run. *pipeline.Runner implements it.
type Runner interface {
	Run(ctx context.Context, w pipeline.Window, opts pipeline.Options) (*pipeline.Result, error)
}

// Executor runs a job's window through the Runner with retries.
type Executor struct {
	runner      Runner
	retryPolicy RetryPolicy
	timeout     time.Duration
	logger      zerolog.Logger
}

// ExecutorConfig configures the executor.
type ExecutorConfig struct {
	Timeout     time.Duration // per attempt
	RetryPolicy RetryPolicy
}

// DefaultExecutorConfig returns default executor configuration.
func DefaultExecutorConfig() ExecutorConfig {
	return ExecutorConfig{
		Timeout:     30 * time.Minute,
		RetryPolicy: DefaultRetryPolicy(),
	}
}

// NewExecutor creates a new executor.
func NewExecutor(runner Runner, cfg ExecutorConfig, logger zerolog.Logger) *Executor {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultExecutorConfig().Timeout
	}
	return &Executor{
		runner:      runner,
		retryPolicy: cfg.RetryPolicy,
		timeout:     cfg.Timeout,
		logger:      logger,
	}
}

// ExecuteResult holds the result of a job execution.
type ExecuteResult struct {
	Window   pipeline.Window
	Result   *pipeline.Result // last attempt
	Error    error
	Retries  int
	Duration time.Duration
}

// Execute digests the window of job for the firing time fired. Every
// attempt uses the same window, so a retry after a partial failure reuses
// the cached model outputs.
func (e *Executor) Execute(ctx context.Context, job *Job, fired time.Time) *ExecuteResult {
	started := time.Now()
	w := pipeline.WindowEndingAt(fired, job.Span, job.Lag)

	res, err, retries := e.executeWithRetry(ctx, job, w)
	if err != nil {
		err = &ExecutionFailedError{JobName: job.Name, RetryCount: retries, Cause: err}
	}
	return &ExecuteResult{
		Window:   w,
		Result:   res,
		Error:    err,
		Retries:  retries,
		Duration: time.Since(started),
	}
}

// executeWithRetry runs with exponential backoff while the error is retryable.
func (e *Executor) executeWithRetry(ctx context.Context, job *Job, w pipeline.Window) (*pipeline.Result, error, int) {
	var (
		res     *pipeline.Result
		lastErr error
	)

	for attempt := 0; attempt <= e.retryPolicy.MaxAttempts; attempt++ {
		if attempt > 0 {
			delay := e.retryPolicy.NextDelay(attempt - 1)
			select {
			case <-ctx.Done():
				return res, ctx.Err(), attempt - 1
			case <-time.After(delay):
			}
		}

		res, lastErr = e.executeOnce(ctx, w)
		if lastErr == nil {
			return res, nil, attempt
		}

		if !e.retryPolicy.ShouldRetry(attempt, lastErr) {
			return res, lastErr, attempt
		}

		e.logger.Warn().
			Err(lastErr).
			Str("job", job.Name).
			Int("attempt", attempt+1).
			Dur("backoff", e.retryPolicy.NextDelay(attempt)).
			Msg("digest run failed, retrying")
	}

	return res, lastErr, e.retryPolicy.MaxAttempts
}

func (e *Executor) executeOnce(ctx context.Context, w pipeline.Window) (*pipeline.Result, error) {
	execCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()
	res, err := e.runner.Run(execCtx, w, pipeline.Options{})
	return res, markRetry(ctx, execCtx, err)
}

// markRetry settles retryability for failures whose cause alone does not.
func markRetry(parent, attempt context.Context, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, chat.ErrPartialSend):
		// resending would post the delivered parts again
		return NonRetryable(err)
	case parent.Err() == nil && errors.Is(attempt.Err(), context.DeadlineExceeded):
		// only this attempt ran out of time; finished steps are cached
		return Retryable(err)
	}
	return err
}
