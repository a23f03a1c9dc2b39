package commands

import (
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/clauderon/clauderon-go/clauderontest"
	"github.com/clauderon/clauderon-go/internal/config"
)

// NewMockCommand creates the mock subcommand.
func NewMockCommand() *cobra.Command {
	var feed string
	var shell string

	cmd := &cobra.Command{
		Use:   "mock",
		Short: "Run a local mock Clauderon server",
		Long: `Run an in-process mock Clauderon server for development.

Console sockets echo their input back by default. With --shell each
console is bridged to a real process running under a pseudo terminal.
With --feed the server emits synthetic progress events on a cron
schedule (six fields, seconds first).`,
		Example: `  clauderonctl mock
  clauderonctl mock --feed "*/5 * * * * *"
  clauderonctl mock --shell "bash -l"`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			return runMock(cmd, cfg, feed, shell)
		},
	}

	cmd.Flags().StringVar(&feed, "feed", "", "cron schedule for synthetic progress events")
	cmd.Flags().StringVar(&shell, "shell", "", "command to run under a pseudo terminal per console")
	return cmd
}

func runMock(cmd *cobra.Command, cfg *config.Config, feed, shell string) error {
	log := newLogger(cfg, "mock")
	srv := clauderontest.New(log)

	sessionID := clauderontest.NewSessionID()
	if shell != "" {
		parts := strings.Fields(shell)
		srv.AttachShell(sessionID, parts[0], parts[1:]...)
	} else {
		srv.SetEcho(true)
	}

	if err := srv.Start(); err != nil {
		return err
	}
	defer srv.Stop()

	if feed != "" {
		if err := srv.StartFeed(feed); err != nil {
			return err
		}
	}

	cmd.Printf("mock server listening at %s\n", srv.BaseURL())
	cmd.Printf("session ready: %s\n", sessionID)
	cmd.Println()
	cmd.Println("try:")
	cmd.Printf("  clauderonctl attach %s --server %s\n", sessionID, srv.BaseURL())
	cmd.Printf("  clauderonctl events --server %s\n", srv.BaseURL())

	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigc)
	<-sigc
	return nil
}
