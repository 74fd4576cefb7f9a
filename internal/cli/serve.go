package cli

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	httpadapter "github.com/archon-research/fraud-scoring/internal/adapters/inbound/http"
	"github.com/archon-research/fraud-scoring/internal/adapters/outbound/postgres"
	"github.com/archon-research/fraud-scoring/internal/services/readiness"
)

const shutdownTimeout = 25 * time.Second

func newServeCmd(opts *options) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the fraud scoring HTTP API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			if addr == "" {
				addr = opts.cfg.HTTPAddr
			}
			return runServe(ctx, opts, addr)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (default HTTP_ADDR)")
	return cmd
}

func runServe(ctx context.Context, opts *options, addr string) error {
	logger := opts.logger

	a, err := newApp(ctx, opts.cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		if err := a.Close(closeCtx); err != nil {
			logger.Warn("error during cleanup", "error", err)
		}
	}()

	checker, err := readiness.NewChecker(readiness.Config{Logger: logger},
		readiness.Dependency{Name: "database", Check: postgres.NewDatabaseCheck(a.pool, 0).Check},
		readiness.Dependency{Name: "model", Check: a.models.Check},
	)
	if err != nil {
		return err
	}

	server, err := httpadapter.NewServer(httpadapter.ServerConfig{
		Addr:   addr,
		Logger: logger,
	}, a.scoring, a.query, checker, nil)
	if err != nil {
		return fmt.Errorf("creating HTTP server: %w", err)
	}

	errCh := server.Start()
	logger.Info("fraud scoring API started", "addr", server.Addr(), "modelPath", opts.cfg.ModelPath)

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("HTTP server: %w", err)
		}
	}

	if err := server.Shutdown(shutdownTimeout); err != nil {
		return fmt.Errorf("shutting down HTTP server: %w", err)
	}
	logger.Info("stopped")
	return nil
}
