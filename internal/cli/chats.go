package cli

import (
	"errors"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"chatdigest/internal/storage"
)

// NewChatsCmd creates the chats command.
func NewChatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "chats",
		Short: "List the chats in the archive",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cliCtx, err := mustCLIContext(cmd)
			if err != nil {
				return err
			}
			db, err := cliCtx.GetStorage()
			if err != nil {
				return fmt.Errorf("open storage: %w", err)
			}
			chats, err := db.ListChats(cmd.Context())
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if len(chats) == 0 {
				fmt.Fprintln(out, "No chats imported yet.")
				return nil
			}

			w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "CHAT_ID\tNAME\tMESSAGES\tLAST EXPORT")
			fmt.Fprintln(w, "-------\t----\t--------\t-----------")
			for _, c := range chats {
				last, err := db.LastImport(c.ID)
				switch {
				case errors.Is(err, storage.ErrNotFound):
					last = "-"
				case err != nil:
					return err
				}
				marker := ""
				if c.ID == cliCtx.Config.Source.ChatID {
					marker = " *"
				}
				fmt.Fprintf(w, "%s%s\t%s\t%d\t%s\n", c.ID, marker, truncate(c.Name, 40), c.Messages, last)
			}
			if err := w.Flush(); err != nil {
				return err
			}

			imported, err := db.ImportedChats()
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "\n%d chats, %d from exports. * marks source.chat_id\n", len(chats), imported)
			return nil
		},
	}
}
