// Package summarize folds batches of chat lines into one summary with a
// sequence of model calls: an initial prompt for the first batch, then a
// refine prompt carrying the running summary for every later batch.
package summarize

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"chatdigest/internal/batch"
	"chatdigest/internal/cache"
	"chatdigest/internal/provider"
)

// Config holds model call settings.
type Config struct {
	Model       string
	Temperature float64
	Stream      bool
	Concurrency int
	Prompts     Prompts
}

// Summarizer runs the refine fold. Model outputs are memoized in the cache
// store under the producer id, so a repeated run over the same batches
// makes no model calls.
type Summarizer struct {
	provider provider.Provider
	store    *cache.Store
	counter  batch.Counter
	config   Config
	log      zerolog.Logger
}

// New creates a Summarizer. A nil store gets a private in-memory one.
func New(p provider.Provider, store *cache.Store, counter batch.Counter, cfg Config, log zerolog.Logger) *Summarizer {
	if store == nil {
		store = cache.NewStore(log)
	}
	if counter == nil {
		counter = batch.Heuristic{}
	}
	return &Summarizer{provider: p, store: store, counter: counter, config: cfg, log: log}
}

// Producer identifies the model and sampling temperature behind cached
// outputs. An unset model resolves to the provider's default.
func (s *Summarizer) Producer() string {
	model := s.config.Model
	if mr, ok := s.provider.(provider.ModelReporter); ok && model == "" {
		model = mr.Model()
	}
	return fmt.Sprintf("%s:%s@t=%g", s.provider.Name(), model, s.config.Temperature)
}

type state int

const (
	stateSeeded state = iota
	stateRefining
)

// fold carries the running summary across steps. A fresh fold is used for
// every Summarize call.
type fold struct {
	state   state
	step    int
	summary string
}

func (f *fold) prompt(p Prompts, lines string) (string, error) {
	if f.state == stateSeeded {
		return p.Initial(lines)
	}
	return p.Refine(f.summary, lines)
}

func (f *fold) advance(output string) {
	f.summary = output
	f.state = stateRefining
	f.step++
}

// Summarize folds batches in order and returns the final summary.
func (s *Summarizer) Summarize(ctx context.Context, batches []batch.Batch) (string, error) {
	if len(batches) == 0 {
		return "", ErrNoBatches
	}

	f := &fold{}
	for _, b := range batches {
		prompt, err := f.prompt(s.config.Prompts, b.Text())
		if err != nil {
			return "", err
		}

		started := time.Now()
		outputs, err := cache.GetOrCompute(ctx, s.store, s.Producer(), []string{prompt},
			cache.Parallel(s.config.Concurrency, s.invoker(f.step)))
		if err != nil {
			return "", err
		}

		s.log.Info().
			Int("step", f.step).
			Int("batches", len(batches)).
			Int("lines", len(b.Lines)).
			Int("tokens", b.Tokens).
			Dur("took", time.Since(started)).
			Msg("summary step done")

		f.advance(outputs[0])
	}
	return f.summary, nil
}

// invoker returns the model call for one step. Each call is a single
// user message, so no conversational state carries over between steps.
func (s *Summarizer) invoker(step int) func(ctx context.Context, prompt string) (string, error) {
	return func(ctx context.Context, prompt string) (string, error) {
		req := provider.ChatRequest{
			Model:       s.config.Model,
			Messages:    []provider.Message{{Role: provider.RoleUser, Content: prompt}},
			Temperature: s.config.Temperature,
		}
		resp, err := provider.Complete(ctx, s.provider, req, s.config.Stream)
		if err != nil {
			if provider.IsContextWindowExceeded(err) {
				return "", &InputTooLargeError{Step: step, PromptTokens: s.counter.Count(prompt), Err: err}
			}
			return "", fmt.Errorf("summarize step %d: %w", step, err)
		}
		if resp.FinishReason == provider.FinishReasonLength {
			s.log.Warn().Int("step", step).Msg("model output truncated at length limit")
		}
		return resp.Content, nil
	}
}
