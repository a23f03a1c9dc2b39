package commands

import (
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/clauderon/clauderon-go/events"
	"github.com/clauderon/clauderon-go/internal/config"
	"github.com/clauderon/clauderon-go/internal/probe"
)

// NewEventsCommand creates the events subcommand.
func NewEventsCommand() *cobra.Command {
	var raw bool
	var asTable bool

	cmd := &cobra.Command{
		Use:   "events",
		Short: "Follow session lifecycle events",
		Long: `Follow the server's session event stream and print one line per
event. The stream reconnects automatically if the server goes away.

With --raw each event is printed exactly as the server sent it, one
JSON document per line. With --table events are collected and rendered
as a table when the stream is interrupted.`,
		Example: `  clauderonctl events
  clauderonctl events --raw | jq .type
  clauderonctl events --table`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			return runEvents(cmd, cfg, raw, asTable)
		},
	}

	cmd.Flags().BoolVar(&raw, "raw", false, "print events as raw JSON lines")
	cmd.Flags().BoolVar(&asTable, "table", false, "collect events and render a table on exit")
	return cmd
}

func runEvents(cmd *cobra.Command, cfg *config.Config, raw, asTable bool) error {
	log := newLogger(cfg, "events")
	out := cmd.OutOrStdout()

	if err := probe.Check(cmd.Context(), cfg.Server.URL, cfg.HealthTimeout()); err != nil {
		return err
	}

	client := events.NewClient(cfg.EventsOptions(), log)

	// Callbacks run on the socket read goroutine.
	var mu sync.Mutex
	var rows [][]string

	client.OnEvent(func(rawEvent json.RawMessage) {
		if raw {
			fmt.Fprintln(out, string(rawEvent))
			return
		}
		p, err := events.ParsePayload(rawEvent)
		if err != nil {
			log.Warn().Err(err).Msg("skipping unrecognized event")
			return
		}
		if asTable {
			mu.Lock()
			rows = append(rows, []string{time.Now().Format("15:04:05"), p.Type, p.Summary()})
			mu.Unlock()
			return
		}
		fmt.Fprintf(out, "%s  %-20s %s\n", time.Now().Format("15:04:05"), p.Type, p.Summary())
	})
	client.OnConnected(func() { log.Info().Msg("event stream connected") })
	client.OnDisconnected(func() { log.Info().Msg("event stream disconnected") })
	client.OnError(func(err error) { log.Warn().Err(err).Msg("event stream error") })

	client.Connect(cmd.Context())
	defer client.Disconnect()

	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigc)
	<-sigc

	client.Disconnect()

	if asTable {
		mu.Lock()
		defer mu.Unlock()
		table := tablewriter.NewWriter(out)
		table.SetHeader([]string{"Time", "Event", "Details"})
		table.SetBorder(false)
		table.SetAutoWrapText(false)
		table.AppendBulk(rows)
		table.Render()
	}
	return nil
}
