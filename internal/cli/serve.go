package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"chatdigest/internal/cron"
	"chatdigest/internal/gateway"
	"chatdigest/internal/source/tgexport"
)

// defaultJobName names the job built from the schedule section.
const defaultJobName = "daily"

// NewServeCmd creates the serve command.
func NewServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the scheduler, the HTTP gateway and the export inbox",
		Long: `Run chatdigest as a long-lived service.

Depending on the configuration this starts:
- the cron scheduler (schedule.enabled)
- the HTTP gateway (gateway.enabled)
- the Telegram export inbox watcher (source.inbox_dir)`,
		Example: `  # Serve with the default configuration
  chatdigest serve

  # Serve the gateway on another port
  chatdigest serve --port 9000`,
		Args: cobra.NoArgs,
		RunE: runServe,
	}

	cmd.Flags().IntP("port", "p", 0, "gateway port (overrides config)")
	cmd.Flags().String("host", "", "gateway host (overrides config)")

	return cmd
}

func runServe(cmd *cobra.Command, args []string) error {
	cliCtx, err := mustCLIContext(cmd)
	if err != nil {
		return err
	}
	cfg := cliCtx.Config
	log := cliCtx.Logger

	if port, _ := cmd.Flags().GetInt("port"); port > 0 {
		cfg.Gateway.Port = port
		cfg.Gateway.Enabled = true
	}
	if host, _ := cmd.Flags().GetString("host"); host != "" {
		cfg.Gateway.Host = host
	}
	if !cfg.Schedule.Enabled && !cfg.Gateway.Enabled && cfg.Source.InboxDir == "" {
		return errors.New("nothing to serve: enable schedule or gateway, or set source.inbox_dir")
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := cliCtx.buildApp()
	if err != nil {
		return err
	}

	if cfg.Source.InboxDir != "" {
		dir, err := expandDir(cfg.Source.InboxDir)
		if err != nil {
			return err
		}
		inbox, err := tgexport.NewInbox(app.db, dir, cliCtx.Component("inbox"), func(exp *tgexport.Export) {
			log.Info().Str("chat_id", exp.ChatID).Int("messages", len(exp.Messages)).Msg("Export imported")
		})
		if err != nil {
			return fmt.Errorf("create inbox watcher: %w", err)
		}
		if err := inbox.Start(); err != nil {
			return fmt.Errorf("watch %s: %w", dir, err)
		}
		defer inbox.Stop()
		log.Info().Str("dir", dir).Msg("Watching export inbox")
	}

	var scheduler *cron.Scheduler
	if cfg.Schedule.Enabled {
		executor := cron.NewExecutor(app.runner, cron.ExecutorConfig{
			RetryPolicy: cron.NewRetryPolicy(cfg.Schedule.Retry.MaxAttempts, cfg.Schedule.Retry.InitialDelay, cfg.Schedule.Retry.MaxDelay),
		}, cliCtx.Component("cron"))
		scheduler = cron.NewScheduler(executor, cliCtx.Component("cron"), &cron.SchedulerConfig{Location: app.location})
		if err := scheduler.AddJob(cron.Job{
			Name:     defaultJobName,
			Schedule: cfg.Schedule.Cron,
			Span:     cfg.Schedule.Span,
			Lag:      cfg.Schedule.Lag,
		}); err != nil {
			return err
		}
		scheduler.Start()
		defer scheduler.Stop()
		if next, ok := scheduler.NextRun(defaultJobName); ok {
			log.Info().Str("schedule", cfg.Schedule.Cron).Time("next_run", next).Msg("Scheduler started")
		}
	}

	errCh := make(chan error, 1)
	var srv *gateway.Server
	if cfg.Gateway.Enabled {
		deps := gateway.Deps{
			Runner:   app.runner,
			Runs:     app.db,
			Checks:   app.healthChecks(),
			Location: app.location,
			Version:  Version,
		}
		if scheduler != nil {
			deps.Scheduler = scheduler
		}
		srv = gateway.NewServer(cfg.Gateway, deps, cliCtx.Component("gateway"))
		go func() { errCh <- srv.Start() }()
		log.Info().Str("address", "http://"+cfg.Gateway.Addr()).Msg("Gateway started")
	}

	select {
	case <-ctx.Done():
		log.Info().Msg("Shutting down...")
	case err := <-errCh:
		if err != nil {
			log.Error().Err(err).Msg("Gateway error")
			return err
		}
	}

	if srv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("Error during shutdown")
			return err
		}
	}

	log.Info().Msg("Stopped")
	return nil
}
