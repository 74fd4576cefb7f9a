package cli

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/archon-research/fraud-scoring/internal/adapters/outbound/postgres"
	"github.com/archon-research/fraud-scoring/internal/services/dataset"
)

func newImportCmd(opts *options) *cobra.Command {
	var batchSize int

	cmd := &cobra.Command{
		Use:   "import <file.csv|->",
		Short: "Import transactions from a CSV dataset",
		Long: `Import transactions from a CSV file with a header row naming
transaction_id, amount, transaction_hour, merchant_category,
foreign_transaction, location_mismatch, device_trust_score,
velocity_last_24h and cardholder_age. Use "-" to read stdin.

Existing transaction ids are skipped; invalid rows are counted and skipped.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var in io.Reader = cmd.InOrStdin()
			if args[0] != "-" {
				f, err := os.Open(args[0])
				if err != nil {
					return fmt.Errorf("opening dataset: %w", err)
				}
				defer f.Close()
				in = f
			}

			svc, closeFn, err := newDatasetService(cmd, opts, batchSize)
			if err != nil {
				return err
			}
			defer closeFn()

			report, err := svc.Import(cmd.Context(), in)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Rows: %d  Inserted: %d  Duplicates: %d  Invalid: %d\n",
				report.Rows, report.Inserted, report.SkippedDuplicates, report.SkippedInvalid)
			return nil
		},
	}
	cmd.Flags().IntVar(&batchSize, "batch-size", 0, "Rows inserted per transaction (default 500)")
	return cmd
}

// errResetNotConfirmed is returned when reset runs without --yes.
var errResetNotConfirmed = errors.New("refusing to delete all data without --yes")

func newResetCmd(opts *options) *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Delete every transaction and prediction",
		PreRunE: func(*cobra.Command, []string) error {
			if !yes {
				return errResetNotConfirmed
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			svc, closeFn, err := newDatasetService(cmd, opts, 0)
			if err != nil {
				return err
			}
			defer closeFn()

			report, err := svc.Reset(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted %d prediction(s) and %d transaction(s)\n",
				report.Predictions, report.Transactions)
			return nil
		},
	}
	cmd.Flags().BoolVar(&yes, "yes", false, "Confirm deletion")
	return cmd
}

func newDatasetService(cmd *cobra.Command, opts *options, batchSize int) (*dataset.Service, func(), error) {
	pool, err := openPool(cmd.Context(), opts.cfg, opts.logger)
	if err != nil {
		return nil, nil, err
	}
	// Imports run outside any request, so conflicting batches are replayed.
	txm, err := postgres.NewTxManager(pool, opts.logger, postgres.WithReplays(3))
	if err != nil {
		pool.Close()
		return nil, nil, err
	}
	svc, err := dataset.NewService(dataset.Config{BatchSize: batchSize, Logger: opts.logger}, txm)
	if err != nil {
		pool.Close()
		return nil, nil, err
	}
	return svc, pool.Close, nil
}
