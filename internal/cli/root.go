// Package cli implements the chatdigest command line.
package cli

import (
	"context"
	"io"

	"github.com/spf13/cobra"

	"chatdigest/internal/config"
	"chatdigest/pkg/logger"
)

// GlobalFlags are the persistent flags.
type GlobalFlags struct {
	ConfigPath string
	Verbose    bool
	Quiet      bool
}

// contextKey keys the CLIContext in the command context.
type contextKey struct{}

// NewRootCmd creates the root command.
func NewRootCmd() *cobra.Command {
	var flags GlobalFlags

	rootCmd := &cobra.Command{
		Use:   "chatdigest",
		Short: "Summarize group chats with a local language model",
		Long: `chatdigest reads a window of group chat history from the local archive,
summarizes it with a language model and posts the digest back to the chat.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// version and help need no setup
			if cmd.Name() == "version" || cmd.Name() == "help" {
				return nil
			}

			// config path
			configPath := flags.ConfigPath
			if configPath == "" {
				var err error
				configPath, err = config.DefaultConfigPath()
				if err != nil {
					return err
				}
			}

			// config init must work even when the existing file is broken
			loadPath := configPath
			if cmd.Name() == "init" {
				loadPath = ""
			}
			cfg, err := config.Load(loadPath)
			if err != nil {
				return err
			}

			// logger
			logLevel := cfg.Log.Level
			if flags.Verbose {
				logLevel = "debug"
			}
			if flags.Quiet {
				logLevel = "error"
			}
			logFile, err := config.ExpandPath(cfg.Log.File)
			if err != nil {
				return err
			}
			if err := logger.Init(logger.LogConfig{
				Level:  logLevel,
				Format: cfg.Log.Format,
				File:   logFile,
				Output: cmd.ErrOrStderr(),
			}); err != nil {
				return err
			}

			cliCtx := NewCLIContext(cfg, configPath, logger.Get(), cmd.OutOrStdout())
			cmd.SetContext(context.WithValue(cmd.Context(), contextKey{}, cliCtx))
			return nil
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			// release resources
			if cliCtx := GetCLIContext(cmd); cliCtx != nil {
				return cliCtx.Close()
			}
			return nil
		},
	}

	// global flags
	rootCmd.PersistentFlags().StringVarP(&flags.ConfigPath, "config", "c", "", "config file path (default ~/.chatdigest/config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&flags.Verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().BoolVarP(&flags.Quiet, "quiet", "q", false, "quiet mode")

	// subcommands
	rootCmd.AddCommand(NewVersionCmd())
	rootCmd.AddCommand(NewConfigCmd())
	rootCmd.AddCommand(NewRunCmd())
	rootCmd.AddCommand(NewServeCmd())
	rootCmd.AddCommand(NewImportCmd())
	rootCmd.AddCommand(NewChatsCmd())
	rootCmd.AddCommand(NewCacheCmd())
	rootCmd.AddCommand(NewRunsCmd())

	return rootCmd
}

// Execute runs the root command with the given arguments and streams.
func Execute(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	cmd := NewRootCmd()
	cmd.SetArgs(args)
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)
	return cmd.ExecuteContext(ctx)
}

// GetCLIContext returns the CLIContext stored in the command context.
func GetCLIContext(cmd *cobra.Command) *CLIContext {
	ctx := cmd.Context()
	if ctx == nil {
		return nil
	}
	cliCtx, ok := ctx.Value(contextKey{}).(*CLIContext)
	if !ok {
		return nil
	}
	return cliCtx
}

func mustCLIContext(cmd *cobra.Command) (*CLIContext, error) {
	if c := GetCLIContext(cmd); c != nil {
		return c, nil
	}
	return nil, errCLIContext
}
