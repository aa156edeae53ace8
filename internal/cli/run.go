package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"chatdigest/internal/pipeline"
	"chatdigest/internal/storage"
)

type runFlags struct {
	date       string
	from       string
	to         string
	budget     int
	dryRun     bool
	noUpstream bool
	noSender   bool
	keepSelf   bool
	keepURLs   bool
}

// NewRunCmd creates the run command.
func NewRunCmd() *cobra.Command {
	var f runFlags

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Digest one window of chat history",
		Long: `Digest one window of chat history and deliver it.

Without --date or --from/--to the previous calendar day is digested.`,
		Example: `  # Digest yesterday
  chatdigest run

  # Digest a given day without posting it
  chatdigest run --date 2026-03-14 --dry-run

  # Digest a custom range with a smaller token budget
  chatdigest run --from 2026-03-14T08:00:00Z --to 2026-03-14T20:00:00Z --budget 1500`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDigest(cmd, f)
		},
	}

	cmd.Flags().StringVar(&f.date, "date", "", "day to digest (YYYY-MM-DD, in summary.timezone)")
	cmd.Flags().StringVar(&f.from, "from", "", "window start (RFC3339)")
	cmd.Flags().StringVar(&f.to, "to", "", "window end (RFC3339)")
	cmd.Flags().IntVar(&f.budget, "budget", 0, "token budget per prompt (overrides config)")
	cmd.Flags().BoolVar(&f.dryRun, "dry-run", false, "print the digest instead of delivering it")
	cmd.Flags().BoolVar(&f.noUpstream, "no-upstream", false, "do not quote replied-to messages")
	cmd.Flags().BoolVar(&f.noSender, "no-sender", false, "do not include sender names")
	cmd.Flags().BoolVar(&f.keepSelf, "keep-self", false, "keep earlier digests in the input")
	cmd.Flags().BoolVar(&f.keepURLs, "keep-urls", false, "do not replace links with <URL>")
	cmd.MarkFlagsMutuallyExclusive("date", "from")
	cmd.MarkFlagsMutuallyExclusive("date", "to")
	cmd.MarkFlagsRequiredTogether("from", "to")

	return cmd
}

// resolveWindow picks the window from the flags; now and loc make it testable.
func resolveWindow(f runFlags, now time.Time, loc *time.Location) (pipeline.Window, error) {
	switch {
	case f.date != "":
		day, err := time.ParseInLocation("2006-01-02", f.date, loc)
		if err != nil {
			return pipeline.Window{}, fmt.Errorf("invalid --date: %w", err)
		}
		return pipeline.DayWindow(day, loc), nil
	case f.from != "" || f.to != "":
		start, err := time.Parse(time.RFC3339, f.from)
		if err != nil {
			return pipeline.Window{}, fmt.Errorf("invalid --from: %w", err)
		}
		end, err := time.Parse(time.RFC3339, f.to)
		if err != nil {
			return pipeline.Window{}, fmt.Errorf("invalid --to: %w", err)
		}
		w := pipeline.Window{Start: start, End: end}
		return w, w.Validate()
	default:
		return pipeline.DayWindow(now.In(loc).AddDate(0, 0, -1), loc), nil
	}
}

func runDigest(cmd *cobra.Command, f runFlags) error {
	cliCtx, err := mustCLIContext(cmd)
	if err != nil {
		return err
	}
	if f.budget < 0 {
		return fmt.Errorf("--budget must not be negative")
	}

	app, err := cliCtx.buildApp()
	if err != nil {
		return err
	}

	w, err := resolveWindow(f, time.Now(), app.location)
	if err != nil {
		return err
	}

	opts := pipeline.Options{DryRun: f.dryRun, Budget: f.budget}
	if f.noUpstream || f.noSender || f.keepSelf || f.keepURLs {
		fo := cliCtx.FormatOptions()
		fo.RenderUpstream = fo.RenderUpstream && !f.noUpstream
		fo.IncludeSenderName = fo.IncludeSenderName && !f.noSender
		fo.ExcludeSelfGenerated = fo.ExcludeSelfGenerated && !f.keepSelf
		fo.ReplaceURLs = fo.ReplaceURLs && !f.keepURLs
		opts.Format = &fo
	}

	res, err := app.runner.Run(cmd.Context(), w, opts)
	if res != nil {
		cliCtx.Logger.Info().
			Str("run_id", res.RunID).
			Str("status", res.Status).
			Int("messages", res.Messages).
			Int("batches", res.Batches).
			Int("cache_hits", res.Cache.Hits).
			Int("model_calls", res.Cache.Computes).
			Bool("delivered", res.Delivered).
			Msg("Run finished")
	}
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	switch {
	case res.Status == storage.RunEmpty:
		fmt.Fprintf(out, "Nothing to digest in %s\n", w)
	case f.dryRun:
		fmt.Fprintln(out, res.Digest)
	}
	return nil
}
