package commands

import (
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/clauderon/clauderon-go/internal/probe"
	"github.com/clauderon/clauderon-go/internal/tui"
)

// NewWatchCommand creates the watch subcommand.
func NewWatchCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Open a full-screen session event watcher",
		Long: `Open a full-screen terminal UI that follows the server's session
event stream. The stream reconnects automatically if the server goes
away. Press q to quit.`,
		Example: `  clauderonctl watch
  clauderonctl watch --server http://build-host:3030`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if err := probe.Check(cmd.Context(), cfg.Server.URL, cfg.HealthTimeout()); err != nil {
				return err
			}
			// The watcher owns the terminal, so client logs go nowhere.
			return tui.Run(cfg.EventsOptions(), zerolog.Nop())
		},
	}
}
