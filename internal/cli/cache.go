package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"chatdigest/internal/cache"
)

// NewCacheCmd creates the cache command group.
func NewCacheCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect and merge summary cache shards",
	}

	cmd.AddCommand(newCacheStatsCmd())
	cmd.AddCommand(newCacheMergeCmd())

	return cmd
}

func newCacheStatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show entry counts of the configured shards",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cliCtx, err := mustCLIContext(cmd)
			if err != nil {
				return err
			}
			shards, output, err := cliCtx.CacheShards()
			if err != nil {
				return err
			}

			store := cache.NewStore(cliCtx.Component("cache"))
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "SHARD\tENTRIES\tROLE")
			fmt.Fprintln(w, "-----\t-------\t----")
			for _, sh := range shards {
				entries, err := sh.Load(cmd.Context())
				if err != nil {
					return fmt.Errorf("load shard %s: %w", sh.Name(), err)
				}
				role := "input"
				if output != nil && sh.Name() == output.Name() {
					role = "input, output"
				}
				if entries == nil {
					role += " (missing)"
				}
				store.Merge(entries, false)
				fmt.Fprintf(w, "%s\t%d\t%s\n", sh.Name(), len(entries), role)
			}
			if err := w.Flush(); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "\nMerged: %d entries\n", store.Len())
			return nil
		},
	}
}

func newCacheMergeCmd() *cobra.Command {
	var out string

	cmd := &cobra.Command{
		Use:   "merge --out SHARD SHARD...",
		Short: "Merge shards into one",
		Long: `Merge shards left to right into the output shard. When a key appears in
several shards the first one wins. Shards are of the configured cache.kind:
file paths for "file", namespaces for "sqlite".`,
		Example: `  chatdigest cache merge --out ~/.chatdigest/summaries.json laptop.json server.json`,
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cliCtx, err := mustCLIContext(cmd)
			if err != nil {
				return err
			}

			inputs := make([]cache.Shard, 0, len(args))
			for _, loc := range args {
				sh, err := cliCtx.OpenShard(loc)
				if err != nil {
					return err
				}
				inputs = append(inputs, sh)
			}
			target, err := cliCtx.OpenShard(out)
			if err != nil {
				return err
			}

			store := cache.NewStore(cliCtx.Component("cache"))
			if err := store.Load(cmd.Context(), inputs...); err != nil {
				return err
			}
			if err := store.Flush(cmd.Context(), target); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %d entries to %s\n", store.Len(), target.Name())
			return nil
		},
	}

	cmd.Flags().StringVar(&out, "out", "", "output shard")
	_ = cmd.MarkFlagRequired("out")

	return cmd
}
