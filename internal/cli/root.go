// Package cli wires the cobra command tree: the root command owns config
// loading and logging setup, the search subcommand drives batch retrieval
// runs.
package cli

import (
	"context"
	"io"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/prasys/pyserini/internal/config"
	"github.com/prasys/pyserini/internal/logging"
)

// logger is the package-level logger for CLI operations.
var logger zerolog.Logger //nolint:gochecknoglobals // zerolog context integration

// configKey is the context key under which the loaded config travels to
// subcommands.
type configKey struct{}

// configFromContext returns the config loaded by the root command, or the
// built-in defaults when the command runs without the root's pre-run hook
// (as in tests).
func configFromContext(ctx context.Context) *config.Config {
	if cfg, ok := ctx.Value(configKey{}).(*config.Config); ok {
		return cfg
	}
	return config.New()
}

// contextWithConfig stores a loaded config for subcommands.
func contextWithConfig(ctx context.Context, cfg *config.Config) context.Context {
	return context.WithValue(ctx, configKey{}, cfg)
}

// NewRootCmd creates the root cobra command. It loads configuration and sets
// up logging in PersistentPreRunE so every subcommand inherits a logger and
// run id through its context.
func NewRootCmd(ver string) *cobra.Command {
	var logCloser io.Closer

	cmd := &cobra.Command{
		Use:     "pyserini",
		Short:   "Batch search runner for inverted-index engines",
		Long:    "pyserini executes topic sets against a search backend and writes ranked run files.",
		Version: ver,
		Example: rootCmdExample,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfgPath, _ := cmd.Flags().GetString("config")
			cfg, err := config.Load(cfgPath)
			if err != nil {
				return err
			}

			logCfg := logging.Config{
				Level:  cfg.Logging.Level,
				Format: cfg.Logging.Format,
				File:   cfg.Logging.File,
			}
			if lvl, _ := cmd.Flags().GetString("log-level"); lvl != "" {
				logCfg.Level = lvl
			}
			if debug, _ := cmd.Flags().GetBool("debug"); debug {
				logCfg.Level = "debug"
				logCfg.Format = "console"
				logCfg.File = ""
			}

			log, closer, err := logging.New(logCfg)
			if err != nil {
				return err
			}
			logCloser = closer
			logger = logging.ComponentLogger(log, "cli")

			runID := logging.NewRunID()
			log = log.With().Str("run_id", runID).Logger()

			ctx := cmd.Context()
			ctx = logging.ContextWithRunID(ctx, runID)
			ctx = logging.WithContext(ctx, log)
			ctx = contextWithConfig(ctx, cfg)
			cmd.SetContext(ctx)

			logger.Debug().Str("command", cmd.Name()).Str("run_id", runID).Msg("command started")
			return nil
		},
		PersistentPostRunE: func(_ *cobra.Command, _ []string) error {
			if logCloser != nil {
				return logCloser.Close()
			}
			return nil
		},
	}

	cmd.PersistentFlags().Bool("debug", false, "enable debug logging")
	cmd.PersistentFlags().String("log-level", "", "log level: trace, debug, info, warn, error")
	cmd.PersistentFlags().String("config", "", "config file path (default ~/.config/pyserini/config.yaml)")
	cmd.AddCommand(NewSearchCmd())

	return cmd
}

const rootCmdExample = `  # Run a topic set against a local index
  pyserini search --index ./indexes/robust04 --topics topics.robust04.txt

  # Batched execution with backend-side concurrency
  pyserini search --index robust04 --topics robust04 --batch-size 32 --threads 8

  # MS MARCO output with a tighter hit cap
  pyserini search --index msmarco-passage --topics msmarco-dev \
    --hits 10 --output-format msmarco`
