package cli

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/archon-research/fraud-scoring/internal/adapters/outbound/sqs"
	"github.com/archon-research/fraud-scoring/internal/services/score_worker"
)

func newWorkerCmd(opts *options) *cobra.Command {
	var maxMessages int

	cmd := &cobra.Command{
		Use:   "worker",
		Short: "Score transactions submitted through the SQS queue",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runWorker(ctx, opts, maxMessages)
		},
	}
	cmd.Flags().IntVar(&maxMessages, "max-messages", 10, "Messages received per poll (1-10)")
	return cmd
}

func runWorker(ctx context.Context, opts *options, maxMessages int) error {
	cfg, logger := opts.cfg, opts.logger
	if cfg.SQSQueueURL == "" {
		return fmt.Errorf("SQS_QUEUE_URL is required for the worker")
	}

	a, err := newApp(ctx, cfg, logger)
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

	awsCfg, err := loadAWSConfig(ctx, cfg)
	if err != nil {
		return err
	}
	consumer, err := sqs.NewConsumer(awsCfg, sqs.Config{QueueURL: cfg.SQSQueueURL}, logger)
	if err != nil {
		return fmt.Errorf("creating SQS consumer: %w", err)
	}
	defer consumer.Close()

	worker, err := score_worker.NewService(score_worker.Config{
		MaxMessages: maxMessages,
		Logger:      logger,
	}, consumer, a.scoring)
	if err != nil {
		return fmt.Errorf("creating score worker: %w", err)
	}
	if err := worker.Start(ctx); err != nil {
		return fmt.Errorf("starting score worker: %w", err)
	}
	logger.Info("score worker running", "queue", cfg.SQSQueueURL)

	<-ctx.Done()
	logger.Info("shutting down")
	return worker.Stop()
}
