package commands

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"golang.org/x/term"
	"golang.org/x/time/rate"

	"github.com/clauderon/clauderon-go/console"
	"github.com/clauderon/clauderon-go/internal/config"
	"github.com/clauderon/clauderon-go/internal/probe"
	"github.com/clauderon/clauderon-go/internal/state"
	"github.com/clauderon/clauderon-go/transport"
)

// detachByte ends an attached session (Ctrl-]).
const detachByte = 0x1D

// NewAttachCommand creates the attach subcommand.
func NewAttachCommand() *cobra.Command {
	var name string

	cmd := &cobra.Command{
		Use:   "attach <session-id>",
		Short: "Attach the terminal to a session console",
		Long: `Attach the local terminal to a session's console stream.

Keystrokes are forwarded to the session and its output is written to
stdout. Window resizes are forwarded as they happen. Press Ctrl-] to
detach and leave the session running.`,
		Example: `  clauderonctl attach 1b4e28ba
  clauderonctl attach 1b4e28ba --name fix-login`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			return runAttach(cmd, cfg, args[0], name)
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "session name recorded in the recent list")
	return cmd
}

func runAttach(cmd *cobra.Command, cfg *config.Config, sessionID, name string) error {
	log := newLogger(cfg, "attach")
	ctx := cmd.Context()

	if err := probe.Check(ctx, cfg.Server.URL, cfg.HealthTimeout()); err != nil {
		return err
	}

	store := state.NewStore(config.RecentSessionsPath())
	if err := store.Touch(sessionID, name, cfg.Server.URL); err != nil {
		log.Warn().Err(err).Msg("failed to record recent session")
	}

	client := console.NewClient(cfg.ConsoleOptions(), log)

	// First result wins: a socket error beats the disconnect that follows it.
	done := make(chan error, 1)
	finish := func(err error) {
		select {
		case done <- err:
		default:
		}
	}

	interactive := term.IsTerminal(int(os.Stdin.Fd()))
	attached := make(chan struct{})

	client.OnConnected(func() {
		if interactive {
			if w, h, err := term.GetSize(int(os.Stdout.Fd())); err == nil {
				_ = client.Resize(h, w)
			}
		}
		close(attached)
	})
	client.OnDisconnected(func() {
		finish(nil)
	})
	client.OnData(func(text string) {
		_, _ = os.Stdout.WriteString(text)
	})
	client.OnError(func(err error) {
		var terr *transport.TransportError
		if errors.As(err, &terr) && terr.Kind == transport.KindSocket {
			finish(err)
			return
		}
		log.Warn().Err(err).Msg("console error")
	})

	client.Connect(ctx, sessionID)
	defer client.Disconnect()

	select {
	case err := <-done:
		if err != nil {
			return err
		}
		return errors.New("connection closed before attach completed")
	case <-attached:
	}

	// Raw mode while attached so keystrokes pass through unmodified.
	if interactive {
		old, err := term.MakeRaw(int(os.Stdin.Fd()))
		if err != nil {
			return fmt.Errorf("failed to enter raw mode: %w", err)
		}
		defer func() { _ = term.Restore(int(os.Stdin.Fd()), old) }()

		go forwardResizes(ctx, client, cfg.Attach.ResizePerSecond)
	}

	fmt.Fprintf(os.Stderr, "attached to %s, press Ctrl-] to detach\r\n", sessionID)

	go pumpStdin(client, finish, log)

	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigc)

	var runErr error
	select {
	case runErr = <-done:
	case <-sigc:
	}

	client.Disconnect()
	fmt.Fprintf(os.Stderr, "\r\ndetached from %s\r\n", sessionID)
	return runErr
}

// pumpStdin forwards local keystrokes to the session until the detach
// byte shows up or stdin is exhausted. EOF stops the pump but keeps the
// stream attached so piped input can still watch output.
func pumpStdin(client *console.Client, finish func(error), log zerolog.Logger) {
	buf := make([]byte, 4096)
	for {
		n, err := os.Stdin.Read(buf)
		if n > 0 {
			data := buf[:n]
			if i := bytes.IndexByte(data, detachByte); i >= 0 {
				if i > 0 {
					_ = client.Write(string(data[:i]))
				}
				finish(nil)
				return
			}
			if werr := client.Write(string(data)); werr != nil {
				log.Debug().Err(werr).Msg("input write failed")
				if !errors.Is(werr, transport.ErrNotConnected) {
					finish(werr)
				}
				return
			}
		}
		if err != nil {
			return
		}
	}
}

// forwardResizes tracks SIGWINCH and sends the new geometry, collapsing
// bursts to at most resizePerSecond updates. The size is read after the
// wait so a collapsed burst ends on the final geometry.
func forwardResizes(ctx context.Context, client *console.Client, resizePerSecond int) {
	winch := make(chan os.Signal, 1)
	signal.Notify(winch, syscall.SIGWINCH)
	defer signal.Stop(winch)

	limiter := rate.NewLimiter(rate.Limit(resizePerSecond), 1)
	for range winch {
		if err := limiter.Wait(ctx); err != nil {
			return
		}
		if w, h, err := term.GetSize(int(os.Stdout.Fd())); err == nil {
			_ = client.Resize(h, w)
		}
	}
}
