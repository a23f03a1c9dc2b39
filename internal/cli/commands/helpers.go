// Package commands provides CLI subcommands for clauderonctl.
package commands

import (
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/clauderon/clauderon-go/internal/config"
)

// loadConfig resolves configuration for a command run. Flags win over
// environment variables, which win over the config file.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	if path, _ := cmd.Flags().GetString("config"); path != "" {
		_ = os.Setenv("CLAUDERON_CONFIG_PATH", path)
	}

	cfg, err := config.LoadOrDefault()
	if err != nil {
		return nil, err
	}

	if server, _ := cmd.Flags().GetString("server"); server != "" {
		cfg.Server.URL = server
	}
	if verbose, _ := cmd.Flags().GetBool("verbose"); verbose {
		cfg.Logging.Verbose = true
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// newLogger builds the command logger. It writes to stderr because stdout
// carries terminal output and event streams.
func newLogger(cfg *config.Config, component string) zerolog.Logger {
	logger := zerolog.New(os.Stderr).With().Timestamp().Str("component", component).Logger()

	level := zerolog.InfoLevel
	if parsed, err := zerolog.ParseLevel(cfg.Logging.Level); err == nil && cfg.Logging.Level != "" {
		level = parsed
	}
	if cfg.Logging.Verbose {
		level = zerolog.DebugLevel
	}
	return logger.Level(level)
}
