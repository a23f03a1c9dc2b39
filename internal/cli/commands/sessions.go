package commands

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/clauderon/clauderon-go/internal/config"
	"github.com/clauderon/clauderon-go/internal/state"
	"github.com/clauderon/clauderon-go/pkg/utils"
)

// NewSessionsCommand creates the sessions subcommand.
func NewSessionsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "List recently attached sessions",
		Long:  `Manage the list of sessions this machine has attached to.`,
	}

	cmd.AddCommand(newSessionsListCommand())
	cmd.AddCommand(newSessionsForgetCommand())
	cmd.AddCommand(newSessionsClearCommand())

	return cmd
}

func newSessionsListCommand() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:     "list",
		Short:   "List recent sessions",
		Example: `  clauderonctl sessions list --limit 10`,
		RunE: func(cmd *cobra.Command, args []string) error {
			store := state.NewStore(config.RecentSessionsPath())
			entries, err := store.Recent()
			if err != nil {
				return err
			}

			if limit > 0 && len(entries) > limit {
				entries = entries[:limit]
			}

			if len(entries) == 0 {
				cmd.Println("No sessions recorded yet. Attach to one first.")
				return nil
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 3, ' ', 0)
			fmt.Fprintln(w, "Session\tName\tServer\tLast Attached\tCount")

			for _, e := range entries {
				name := utils.CoalesceString(e.Name, "-")

				recency := time.Since(e.AttachedAt).Round(time.Second).String() + " ago"
				if time.Since(e.AttachedAt) < time.Minute {
					recency = "just now"
				}

				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\n", e.SessionID, name, e.Server, recency, e.Attaches)
			}
			return w.Flush()
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Limit number of sessions shown")

	return cmd
}

func newSessionsForgetCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "forget <session-id>",
		Short:   "Drop one session from the recent list",
		Example: `  clauderonctl sessions forget 1b4e28ba`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store := state.NewStore(config.RecentSessionsPath())
			if err := store.Remove(args[0]); err != nil {
				return err
			}
			cmd.Printf("forgot session %s\n", args[0])
			return nil
		},
	}
}

func newSessionsClearCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "clear",
		Short:   "Drop all sessions from the recent list",
		Example: `  clauderonctl sessions clear`,
		RunE: func(cmd *cobra.Command, args []string) error {
			store := state.NewStore(config.RecentSessionsPath())
			if err := store.Clear(); err != nil {
				return err
			}
			cmd.Println("cleared recent sessions")
			return nil
		},
	}
}
