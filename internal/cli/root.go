// Package cli implements the fraudctl command tree.
package cli

import (
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/archon-research/fraud-scoring/internal/config"
	"github.com/archon-research/fraud-scoring/internal/pkg/env"
)

// options are populated by the persistent pre-run of the root command.
type options struct {
	configFile string
	cfg        *config.Config
	logger     *slog.Logger
}

// NewRootCmd builds the command tree. version is reported by "fraudctl version".
func NewRootCmd(version string) *cobra.Command {
	opts := &options{}

	root := &cobra.Command{
		Use:   "fraudctl",
		Short: "Fraud scoring service and administration tool",
		Long: `fraudctl runs the fraud scoring HTTP API and the queue worker, and
manages the transaction store (migrations, CSV import, reset).

Configuration comes from environment variables, .env files and an
optional config file (--config).`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			config.LoadDotEnv(".env", ".env.local")
			cfg, err := config.Load(opts.configFile)
			if err != nil {
				return err
			}
			opts.cfg = cfg
			opts.logger = newLogger(cmd.ErrOrStderr(), cfg)
			slog.SetDefault(opts.logger)
			return nil
		},
	}
	root.PersistentFlags().StringVar(&opts.configFile, "config", "", "Path to a YAML/JSON/TOML config file")

	root.AddCommand(
		newServeCmd(opts),
		newWorkerCmd(opts),
		newMigrateCmd(opts),
		newImportCmd(opts),
		newResetCmd(opts),
		newTransactionsCmd(opts),
		newVersionCmd(version),
	)
	root.Version = version
	return root
}

// Execute runs the root command.
func Execute(version string) error {
	return NewRootCmd(version).Execute()
}

func newLogger(w io.Writer, cfg *config.Config) *slog.Logger {
	handlerOpts := &slog.HandlerOptions{Level: env.ParseLogLevel(cfg.LogLevel, slog.LevelInfo)}
	var handler slog.Handler
	if cfg.LogFormat == "json" {
		handler = slog.NewJSONHandler(w, handlerOpts)
	} else {
		handler = slog.NewTextHandler(w, handlerOpts)
	}
	return slog.New(handler).With("service", cfg.ServiceName)
}
