package commands

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/clauderon/clauderon-go/console"
	"github.com/clauderon/clauderon-go/internal/config"
	"github.com/clauderon/clauderon-go/transport"
)

// NewSignalCommand creates the signal subcommand.
func NewSignalCommand() *cobra.Command {
	var list bool

	cmd := &cobra.Command{
		Use:   "signal <session-id> <signal>",
		Short: "Send a Unix signal to a session process",
		Long: `Send a Unix signal to the process behind a session.

The signal name is case-insensitive and the SIG prefix is optional,
so "int", "INT" and "SIGINT" all mean the same thing.`,
		Example: `  clauderonctl signal 1b4e28ba SIGINT
  clauderonctl signal 1b4e28ba term
  clauderonctl signal --list`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if list {
				printSignalTable(cmd)
				return nil
			}
			if len(args) != 2 {
				return errors.New("expected <session-id> and <signal> arguments")
			}

			sig, err := transport.ParseSignal(args[1])
			if err != nil {
				return err
			}

			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			return runSignal(cmd, cfg, args[0], sig)
		},
	}

	cmd.Flags().BoolVar(&list, "list", false, "list supported signals and exit")
	return cmd
}

func runSignal(cmd *cobra.Command, cfg *config.Config, sessionID string, sig transport.Signal) error {
	log := newLogger(cfg, "signal")

	client := console.NewClient(cfg.ConsoleOptions(), log)

	done := make(chan error, 1)
	finish := func(err error) {
		select {
		case done <- err:
		default:
		}
	}

	client.OnConnected(func() { finish(nil) })
	client.OnError(func(err error) {
		var terr *transport.TransportError
		if errors.As(err, &terr) && terr.Kind == transport.KindSocket {
			finish(err)
		}
	})

	client.Connect(cmd.Context(), sessionID)
	defer client.Disconnect()

	select {
	case err := <-done:
		if err != nil {
			return err
		}
	case <-time.After(cfg.ConsoleOptions().HandshakeTimeout + time.Second):
		return fmt.Errorf("timed out connecting to session %s (status %s)", sessionID, client.Status())
	}

	if err := client.Signal(sig); err != nil {
		return err
	}
	cmd.Printf("sent %s to session %s\n", sig, sessionID)
	return nil
}

func printSignalTable(cmd *cobra.Command) {
	table := tablewriter.NewWriter(cmd.OutOrStdout())
	table.SetHeader([]string{"Number", "Name", "Description"})
	table.SetBorder(false)
	table.SetAutoWrapText(false)

	for _, sig := range transport.Signals() {
		table.Append([]string{strconv.Itoa(sig.Number()), string(sig), sig.Description()})
	}
	table.Render()
}
