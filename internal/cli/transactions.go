package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/archon-research/fraud-scoring/internal/adapters/outbound/postgres"
	"github.com/archon-research/fraud-scoring/internal/domain/entity"
	"github.com/archon-research/fraud-scoring/internal/services/transaction_query"
)

func newTransactionsCmd(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "transactions",
		Aliases: []string{"tx"},
		Short:   "Inspect stored transactions and predictions",
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List transactions, newest first",
		RunE: func(cmd *cobra.Command, _ []string) error {
			limit, _ := cmd.Flags().GetInt("limit")
			offset, _ := cmd.Flags().GetInt("offset")

			svc, closeFn, err := newQueryService(cmd, opts)
			if err != nil {
				return err
			}
			defer closeFn()

			txs, err := svc.List(cmd.Context(), limit, offset)
			if err != nil {
				return err
			}
			renderTransactions(cmd.OutOrStdout(), txs)
			return nil
		},
	}
	list.Flags().Int("limit", transaction_query.DefaultLimit, "Maximum rows to return")
	list.Flags().Int("offset", 0, "Rows to skip")

	show := &cobra.Command{
		Use:   "show <transaction_id>",
		Short: "Show a transaction and its prediction history",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, closeFn, err := newQueryService(cmd, opts)
			if err != nil {
				return err
			}
			defer closeFn()

			detail, err := svc.Get(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if detail == nil {
				return fmt.Errorf("transaction %q not found", args[0])
			}
			asJSON, _ := cmd.Flags().GetBool("json")
			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(detail)
			}
			renderDetail(cmd.OutOrStdout(), detail)
			return nil
		},
	}
	show.Flags().Bool("json", false, "Print the detail as JSON")

	cmd.AddCommand(list, show)
	return cmd
}

func newQueryService(cmd *cobra.Command, opts *options) (*transaction_query.Service, func(), error) {
	pool, err := openPool(cmd.Context(), opts.cfg, opts.logger)
	if err != nil {
		return nil, nil, err
	}
	txRepo, err := postgres.NewTransactionRepository(pool, opts.logger)
	if err != nil {
		pool.Close()
		return nil, nil, err
	}
	predRepo, err := postgres.NewPredictionRepository(pool, opts.logger)
	if err != nil {
		pool.Close()
		return nil, nil, err
	}
	svc, err := transaction_query.NewService(transaction_query.Config{Logger: opts.logger}, txRepo, predRepo)
	if err != nil {
		pool.Close()
		return nil, nil, err
	}
	return svc, pool.Close, nil
}

func renderTransactions(w io.Writer, txs []*entity.Transaction) {
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"ID", "Transaction", "Amount", "Hour", "Category", "Foreign", "Mismatch", "Trust", "Velocity", "Age", "Created"})
	for _, tx := range txs {
		table.Append([]string{
			strconv.FormatInt(tx.ID, 10),
			tx.TransactionID,
			tx.Amount.StringFixed(2),
			strconv.Itoa(tx.TransactionHour),
			string(tx.MerchantCategory),
			strconv.FormatBool(tx.ForeignTransaction),
			strconv.FormatBool(tx.LocationMismatch),
			strconv.Itoa(tx.DeviceTrustScore),
			strconv.Itoa(tx.VelocityLast24h),
			strconv.Itoa(tx.CardholderAge),
			tx.CreatedAt.UTC().Format(time.RFC3339),
		})
	}
	table.Render()
}

func renderDetail(w io.Writer, detail *entity.TransactionDetail) {
	renderTransactions(w, []*entity.Transaction{detail.Transaction})

	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Scored At", "Probability", "Decision", "Model"})
	for _, p := range detail.Predictions {
		table.Append([]string{
			p.ScoredAt.UTC().Format(time.RFC3339),
			strconv.FormatFloat(p.FraudProbability, 'f', 4, 64),
			string(p.Decision),
			p.ModelVersion,
		})
	}
	table.Render()
}
