package cli

import (
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"chatdigest/internal/cache"
	"chatdigest/internal/config"
	"chatdigest/internal/delivery"
	"chatdigest/internal/format"
	"chatdigest/internal/gateway/handlers"
	"chatdigest/internal/pipeline"
	"chatdigest/internal/provider"
	"chatdigest/internal/render"
	"chatdigest/internal/source/archive"
	"chatdigest/internal/storage"
	"chatdigest/internal/summarize"

	_ "chatdigest/internal/provider/ollama" // registers the ollama provider
)

var errCLIContext = errors.New("CLI context not initialized")

// CLIContext holds the state shared by commands.
type CLIContext struct {
	Config     *config.Config
	ConfigPath string
	Logger     *zerolog.Logger
	Out        io.Writer

	storageOnce sync.Once
	storage     *storage.DB
	storageErr  error
}

// NewCLIContext creates a CLIContext.
func NewCLIContext(cfg *config.Config, configPath string, log *zerolog.Logger, out io.Writer) *CLIContext {
	return &CLIContext{
		Config:     cfg,
		ConfigPath: configPath,
		Logger:     log,
		Out:        out,
	}
}

// GetStorage opens the archive on first use.
func (c *CLIContext) GetStorage() (*storage.DB, error) {
	c.storageOnce.Do(func() {
		c.storage, c.storageErr = storage.Open(c.Config.Storage.Path)
	})
	return c.storage, c.storageErr
}

// Close releases the open resources.
func (c *CLIContext) Close() error {
	if c.storage != nil {
		return c.storage.Close()
	}
	return nil
}

// Component returns a child logger tagged with a component name.
func (c *CLIContext) Component(name string) zerolog.Logger {
	return c.Logger.With().Str("component", name).Logger()
}

// OpenShard opens one cache shard of the configured kind. File locations
// get ~ expanded.
func (c *CLIContext) OpenShard(location string) (cache.Shard, error) {
	var db *storage.DB
	if c.Config.Cache.Kind == "sqlite" {
		var err error
		if db, err = c.GetStorage(); err != nil {
			return nil, err
		}
	} else {
		var err error
		if location, err = config.ExpandPath(location); err != nil {
			return nil, err
		}
	}
	return cache.OpenShard(c.Config.Cache.Kind, location, db)
}

// CacheShards opens the configured input shards and the output shard. The
// output is nil when cache.output is empty.
func (c *CLIContext) CacheShards() ([]cache.Shard, cache.Shard, error) {
	shards := make([]cache.Shard, 0, len(c.Config.Cache.Shards))
	for _, loc := range c.Config.Cache.Shards {
		sh, err := c.OpenShard(loc)
		if err != nil {
			return nil, nil, err
		}
		shards = append(shards, sh)
	}
	if c.Config.Cache.Output == "" {
		return shards, nil, nil
	}
	out, err := c.OpenShard(c.Config.Cache.Output)
	if err != nil {
		return nil, nil, err
	}
	return shards, out, nil
}

// FormatOptions returns the configured render flags.
func (c *CLIContext) FormatOptions() format.Options {
	s := c.Config.Summary
	return format.Options{
		RenderUpstream:       s.RenderUpstream,
		IncludeSenderName:    s.IncludeSenderName,
		ExcludeSelfGenerated: s.ExcludeSelfGenerated,
		ReplaceURLs:          s.ReplaceURLs,
	}
}

// digestApp is everything a digest run needs, built from the config.
type digestApp struct {
	db       *storage.DB
	provider provider.Provider
	runner   *pipeline.Runner
	location *time.Location
}

// buildApp wires storage, provider, delivery and cache into a runner.
func (c *CLIContext) buildApp() (*digestApp, error) {
	cfg := c.Config
	if cfg.Source.ChatID == "" {
		return nil, fmt.Errorf("source.chat_id is not set; import an export and set it in %s", c.ConfigPath)
	}

	db, err := c.GetStorage()
	if err != nil {
		return nil, fmt.Errorf("open storage: %w", err)
	}

	loc, err := cfg.Summary.Location()
	if err != nil {
		return nil, err
	}

	p, err := provider.New(cfg.Model.Provider, provider.Options{
		Endpoint:    cfg.Model.Endpoint,
		Model:       cfg.Model.Model,
		Timeout:     cfg.Model.Timeout,
		KeepAlive:   cfg.Model.KeepAlive,
		Temperature: cfg.Model.Temperature,
		Log:         c.Component("provider"),
	})
	if err != nil {
		return nil, err
	}

	sender, err := delivery.Open(cfg.Delivery, c.Out, c.Component("delivery"))
	if err != nil {
		return nil, err
	}

	shards, output, err := c.CacheShards()
	if err != nil {
		return nil, err
	}

	runner := pipeline.NewRunner(pipeline.Deps{
		Source:   archive.New(db, cfg.Source.ChatID),
		Provider: p,
		Sender:   sender,
		Renderer: render.New(cfg.Summary.StartMarker, cfg.Summary.Disclaimer, loc),
		Ledger:   db,
		Shards:   shards,
		Output:   output,
	}, pipeline.Config{
		PageSize: cfg.Source.PageSize,
		FetchCap: cfg.Source.FetchCap,
		Budget:   cfg.Summary.TokenBudget,
		Format:   c.FormatOptions(),
		Summary: summarize.Config{
			Model:       cfg.Model.Model,
			Temperature: cfg.Model.Temperature,
			Stream:      cfg.Model.Stream,
			Concurrency: cfg.Cache.Concurrency,
			Prompts: summarize.Prompts{
				Context:     cfg.Summary.Context,
				Guidelines:  cfg.Summary.Guidelines,
				SenderNames: cfg.Summary.IncludeSenderName,
			},
		},
	}, c.Component("pipeline"))

	return &digestApp{db: db, provider: p, runner: runner, location: loc}, nil
}

// healthChecks covers storage and, when supported, the model endpoint.
// A provider that can list its models also reports a model not pulled.
func (a *digestApp) healthChecks() map[string]handlers.Check {
	checks := map[string]handlers.Check{
		"storage": a.db.PingContext,
	}
	switch p := a.provider.(type) {
	case provider.ModelVerifier:
		checks["model"] = p.VerifyModel
	case provider.HealthCheckable:
		checks["model"] = p.Ping
	}
	return checks
}
