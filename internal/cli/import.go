package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"chatdigest/internal/config"
	"chatdigest/internal/source/tgexport"
)

// NewImportCmd creates the import command.
func NewImportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "import FILE...",
		Short: "Import Telegram Desktop exports into the archive",
		Long: `Import one or more Telegram Desktop chat exports (result.json) into the
local archive. Re-importing the same export is harmless.`,
		Example: `  chatdigest import ~/Downloads/ChatExport_2026-03-14/result.json`,
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cliCtx, err := mustCLIContext(cmd)
			if err != nil {
				return err
			}
			db, err := cliCtx.GetStorage()
			if err != nil {
				return fmt.Errorf("open storage: %w", err)
			}

			out := cmd.OutOrStdout()
			for _, path := range args {
				exp, err := tgexport.ImportFile(db, path)
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "Imported %d messages from %q (chat_id %s)\n", len(exp.Messages), exp.Name, exp.ChatID)
				if cliCtx.Config.Source.ChatID == "" {
					fmt.Fprintf(out, "Set source.chat_id: %s in %s to digest it\n", exp.ChatID, cliCtx.ConfigPath)
				}
			}
			return nil
		},
	}
}

// expandDir expands ~ and checks that path is a directory.
func expandDir(path string) (string, error) {
	dir, err := config.ExpandPath(path)
	if err != nil {
		return "", err
	}
	info, err := os.Stat(dir)
	if err != nil {
		return "", err
	}
	if !info.IsDir() {
		return "", fmt.Errorf("%s is not a directory", dir)
	}
	return dir, nil
}
