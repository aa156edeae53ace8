// Package pipeline runs one digest end to end: retrieve the window,
// format and batch the messages, fold them into a summary, render it and
// hand it to the sender. Nothing is sent unless every step succeeded.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"chatdigest/internal/batch"
	"chatdigest/internal/cache"
	"chatdigest/internal/format"
	"chatdigest/internal/provider"
	"chatdigest/internal/render"
	"chatdigest/internal/retrieval"
	"chatdigest/internal/storage"
	"chatdigest/internal/summarize"
	"chatdigest/pkg/chat"
)

// Ledger records runs. *storage.DB implements it.
type Ledger interface {
	CreateRun(id, chatID string, start, end time.Time) (*storage.Run, error)
	FinishRun(id string, res storage.RunResult) error
}

// Config holds the settings every run shares.
type Config struct {
	PageSize int
	FetchCap int
	Budget   int
	Format   format.Options
	Summary  summarize.Config
}

// Deps are the collaborators of a Runner. Ledger, Shards and Output may be
// nil; Counter defaults to batch.Heuristic.
type Deps struct {
	Source   chat.Source
	Provider provider.Provider
	Sender   chat.Sender
	Renderer *render.Renderer
	Counter  batch.Counter
	Ledger   Ledger
	Shards   []cache.Shard
	Output   cache.Shard
}

// Options adjust a single run.
type Options struct {
	DryRun bool            // render but do not send
	Budget int             // 0 keeps the configured budget
	Format *format.Options // nil keeps the configured flags
}

// Result describes a finished run.
type Result struct {
	RunID     string      `json:"run_id"`
	Window    Window      `json:"window"`
	Status    string      `json:"status"`
	Messages  int         `json:"messages"`
	Lines     int         `json:"lines"`
	Batches   int         `json:"batches"`
	Summary   string      `json:"summary,omitempty"`
	Digest    string      `json:"digest,omitempty"`
	Parts     int         `json:"parts,omitempty"`
	Delivered bool        `json:"delivered"`
	Cache     cache.Stats `json:"cache"`
	Error     string      `json:"error,omitempty"`
}

// Runner executes digest runs one at a time. Runs are serialized because
// each one flushes the same output shard.
type Runner struct {
	mu     sync.Mutex
	deps   Deps
	config Config
	log    zerolog.Logger
}

// NewRunner creates a Runner.
func NewRunner(deps Deps, cfg Config, log zerolog.Logger) *Runner {
	if deps.Counter == nil {
		deps.Counter = batch.Heuristic{}
	}
	if deps.Renderer == nil {
		deps.Renderer = render.New("", "", nil)
	}
	if cfg.PageSize < 1 {
		cfg.PageSize = retrieval.DefaultPageSize
	}
	return &Runner{deps: deps, config: cfg, log: log}
}

// Run digests w. The returned Result is non-nil even when err is not.
func (r *Runner) Run(ctx context.Context, w Window, opts Options) (*Result, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	res := &Result{RunID: uuid.NewString(), Window: w}
	log := r.log.With().Str("run_id", res.RunID).Str("window", w.String()).Logger()

	if err := w.Validate(); err != nil {
		res.Status = storage.RunFailed
		res.Error = err.Error()
		return res, err
	}

	if r.deps.Ledger != nil {
		if _, err := r.deps.Ledger.CreateRun(res.RunID, r.deps.Source.ChatID(), w.Start, w.End); err != nil {
			return res, fmt.Errorf("record run: %w", err)
		}
	}

	log.Info().Bool("dry_run", opts.DryRun).Msg("digest run started")
	started := time.Now()

	err := r.run(ctx, w, opts, res, log)
	switch {
	case err != nil:
		res.Status = storage.RunFailed
		res.Error = err.Error()
		log.Error().Err(err).Dur("took", time.Since(started)).Msg("digest run failed")
	case res.Status == storage.RunEmpty:
		log.Info().Int("messages", res.Messages).Msg("nothing to digest")
	default:
		res.Status = storage.RunSucceeded
		log.Info().
			Int("messages", res.Messages).
			Int("batches", res.Batches).
			Bool("delivered", res.Delivered).
			Dur("took", time.Since(started)).
			Msg("digest run finished")
	}

	if r.deps.Ledger != nil {
		ferr := r.deps.Ledger.FinishRun(res.RunID, storage.RunResult{
			Status:   res.Status,
			Messages: res.Messages,
			Batches:  res.Batches,
			Summary:  res.Digest,
			Error:    res.Error,
		})
		if ferr != nil {
			log.Error().Err(ferr).Msg("failed to record run result")
		}
	}
	return res, err
}

func (r *Runner) run(ctx context.Context, w Window, opts Options, res *Result, log zerolog.Logger) error {
	src := r.deps.Source

	// the retriever keeps both bounds; the window excludes its end
	items, err := retrieval.New(src, r.config.PageSize, log).Fetch(ctx, w.Start, w.End.Add(-time.Nanosecond), r.config.FetchCap)
	if err != nil {
		return fmt.Errorf("retrieve: %w", err)
	}
	res.Messages = len(items)

	fopts := r.config.Format
	if opts.Format != nil {
		fopts = *opts.Format
	}

	var lines []string
	if len(items) > 0 {
		dir, err := format.LoadDirectory(ctx, src)
		if err != nil {
			return fmt.Errorf("participants: %w", err)
		}
		lines, err = format.New(src, dir, r.deps.Renderer, log).Format(ctx, items, fopts)
		if err != nil {
			return fmt.Errorf("format: %w", err)
		}
	}
	res.Lines = len(lines)
	if len(lines) == 0 {
		res.Status = storage.RunEmpty
		return nil
	}

	budget := r.config.Budget
	if opts.Budget > 0 {
		budget = opts.Budget
	}
	batches, err := batch.New(r.deps.Counter).Split(lines, budget)
	if err != nil {
		return err
	}
	res.Batches = len(batches)
	for i, b := range batches {
		if b.Oversized(budget) {
			log.Warn().Int("batch", i).Int("tokens", b.Tokens).Int("budget", budget).Msg("single line over budget")
		}
	}

	store := cache.NewStore(log)
	if err := store.Load(ctx, r.deps.Shards...); err != nil {
		return fmt.Errorf("load cache: %w", err)
	}

	summaryCfg := r.config.Summary
	summaryCfg.Prompts.SenderNames = fopts.IncludeSenderName
	summarizer := summarize.New(r.deps.Provider, store, r.deps.Counter, summaryCfg, log)

	summary, err := summarizer.Summarize(ctx, batches)
	res.Cache = store.Stats()
	// steps that finished are worth keeping even when a later one failed
	if ferr := r.flush(ctx, store, log); ferr != nil {
		err = errors.Join(err, ferr)
	}
	if err != nil {
		return err
	}

	res.Summary = summary
	res.Digest = r.deps.Renderer.Render(summary, w.Start, w.End)

	if opts.DryRun || r.deps.Sender == nil {
		return nil
	}
	return r.deliver(ctx, summary, w, res, log)
}

// deliver sends the digest, in parts when the sender limits message length.
// Once a part went out a failure is a PartialSendError.
func (r *Runner) deliver(ctx context.Context, summary string, w Window, res *Result, log zerolog.Logger) error {
	sender := r.deps.Sender
	limit := 0
	if l, ok := sender.(chat.MessageLimiter); ok {
		limit = l.MessageLimit()
	}

	parts := r.deps.Renderer.RenderParts(summary, w.Start, w.End, limit)
	for i, part := range parts {
		if err := sender.Send(ctx, part); err != nil {
			if i > 0 && !errors.Is(err, chat.ErrPartialSend) {
				err = &chat.PartialSendError{Sent: i, Total: len(parts), Err: err}
			}
			return fmt.Errorf("deliver via %s: %w", sender.Name(), err)
		}
	}
	res.Parts = len(parts)
	res.Delivered = true
	log.Debug().Str("sender", sender.Name()).Int("parts", len(parts)).Msg("digest delivered")
	return nil
}

func (r *Runner) flush(ctx context.Context, store *cache.Store, log zerolog.Logger) error {
	if r.deps.Output == nil || store.Stats().Computes == 0 {
		return nil
	}
	if err := store.Flush(ctx, r.deps.Output); err != nil {
		return fmt.Errorf("flush cache: %w", err)
	}
	log.Debug().Str("shard", r.deps.Output.Name()).Int("entries", store.Len()).Msg("cache flushed")
	return nil
}
