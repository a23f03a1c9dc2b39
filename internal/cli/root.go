// Package cli provides the command-line interface for clauderonctl.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/clauderon/clauderon-go/internal/cli/commands"
	"github.com/clauderon/clauderon-go/internal/version"
)

var rootCmd = &cobra.Command{
	Use:   "clauderonctl",
	Short: "Clauderon terminal client",
	Long: `clauderonctl talks to a Clauderon server over its WebSocket API.
It attaches your terminal to session consoles, sends signals to
running sessions and follows session lifecycle events.`,
	Version: version.Version,
	Run: func(cmd *cobra.Command, args []string) {
		_ = cmd.Help()
	},
}

func init() {
	rootCmd.AddCommand(commands.NewAttachCommand())
	rootCmd.AddCommand(commands.NewSignalCommand())
	rootCmd.AddCommand(commands.NewEventsCommand())
	rootCmd.AddCommand(commands.NewWatchCommand())
	rootCmd.AddCommand(commands.NewSessionsCommand())
	rootCmd.AddCommand(commands.NewMockCommand())
	rootCmd.AddCommand(commands.NewVersionCommand())

	// Global flags
	rootCmd.PersistentFlags().StringP("server", "s", "", "Clauderon server URL (default is http://127.0.0.1:3030)")
	rootCmd.PersistentFlags().StringP("config", "c", "", "config file (default is ~/.clauderon/clauderon.json)")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "enable verbose output")
}

// Execute runs the root command.
func Execute() error {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return err
	}
	return nil
}
