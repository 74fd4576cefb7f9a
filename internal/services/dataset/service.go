// Package dataset provides the bulk administrative operations on stored
// transactions: CSV import and full reset.
package dataset

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/archon-research/fraud-scoring/internal/domain/entity"
	"github.com/archon-research/fraud-scoring/internal/ports/outbound"
)

// Columns every import file must carry. Extra columns (e.g. a label) are ignored.
var requiredColumns = []string{
	"transaction_id",
	"amount",
	"transaction_hour",
	"merchant_category",
	"foreign_transaction",
	"location_mismatch",
	"device_trust_score",
	"velocity_last_24h",
	"cardholder_age",
}

// Config holds configuration for the dataset service.
type Config struct {
	// BatchSize is the number of rows inserted per unit of work.
	BatchSize int
	Logger    *slog.Logger
}

func configDefaults() Config {
	return Config{
		BatchSize: 500,
		Logger:    slog.Default(),
	}
}

// ImportReport summarises one import run.
type ImportReport struct {
	Rows              int
	Inserted          int
	SkippedInvalid    int
	SkippedDuplicates int
}

// ResetReport holds the number of deleted rows per table.
type ResetReport struct {
	Predictions  int64
	Transactions int64
}

// Service imports and resets stored transactions.
type Service struct {
	config Config
	txm    outbound.TxManager
	logger *slog.Logger
}

// NewService creates a new dataset service.
func NewService(config Config, txm outbound.TxManager) (*Service, error) {
	if txm == nil {
		return nil, fmt.Errorf("tx manager cannot be nil")
	}

	defaults := configDefaults()
	if config.BatchSize <= 0 {
		config.BatchSize = defaults.BatchSize
	}
	if config.Logger == nil {
		config.Logger = defaults.Logger
	}

	return &Service{
		config: config,
		txm:    txm,
		logger: config.Logger.With("component", "dataset"),
	}, nil
}

// Import reads transactions from CSV and stores the valid ones. Invalid rows
// and rows whose transaction_id already exists are skipped and counted.
// Rows are committed in batches; a storage error aborts the import and
// returns the counts of the batches committed so far.
func (s *Service) Import(ctx context.Context, r io.Reader) (ImportReport, error) {
	var report ImportReport

	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true
	reader.ReuseRecord = true

	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return report, fmt.Errorf("%w: empty csv input", entity.ErrValidation)
		}
		return report, fmt.Errorf("reading csv header: %w", err)
	}
	index, err := columnIndex(header)
	if err != nil {
		return report, err
	}

	batch := make([]*entity.Transaction, 0, s.config.BatchSize)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		inserted, err := s.insertBatch(ctx, batch)
		if err != nil {
			return err
		}
		report.Inserted += inserted
		report.SkippedDuplicates += len(batch) - inserted
		batch = batch[:0]
		return nil
	}

	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			var parseErr *csv.ParseError
			if !errors.As(err, &parseErr) {
				return report, fmt.Errorf("reading csv: %w", err)
			}
			report.Rows++
			report.SkippedInvalid++
			s.logger.Warn("skipping malformed row", "line", parseErr.Line, "error", err)
			continue
		}
		report.Rows++
		line, _ := reader.FieldPos(0)

		tx, err := parseRow(record, index)
		if err != nil {
			report.SkippedInvalid++
			s.logger.Warn("skipping invalid row", "line", line, "error", err)
			continue
		}

		batch = append(batch, tx)
		if len(batch) == s.config.BatchSize {
			if err := flush(); err != nil {
				return report, err
			}
		}
	}
	if err := flush(); err != nil {
		return report, err
	}

	s.logger.Info("import finished",
		"rows", report.Rows,
		"inserted", report.Inserted,
		"skippedInvalid", report.SkippedInvalid,
		"skippedDuplicates", report.SkippedDuplicates)
	return report, nil
}

func (s *Service) insertBatch(ctx context.Context, batch []*entity.Transaction) (int, error) {
	inserted := 0
	err := s.txm.WithTransaction(ctx, func(uow outbound.UnitOfWork) error {
		inserted = 0
		for _, tx := range batch {
			ok, err := uow.Transactions().Insert(ctx, tx)
			if err != nil {
				return fmt.Errorf("inserting transaction %s: %w", tx.TransactionID, err)
			}
			if ok {
				inserted++
			} else {
				s.logger.Debug("skipping duplicate transaction", "transactionID", tx.TransactionID)
			}
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("importing batch: %w", err)
	}
	return inserted, nil
}

// Reset deletes every prediction and every transaction in one unit of work.
func (s *Service) Reset(ctx context.Context) (ResetReport, error) {
	var report ResetReport
	err := s.txm.WithTransaction(ctx, func(uow outbound.UnitOfWork) error {
		n, err := uow.Predictions().DeleteAll(ctx)
		if err != nil {
			return fmt.Errorf("deleting predictions: %w", err)
		}
		report.Predictions = n

		n, err = uow.Transactions().DeleteAll(ctx)
		if err != nil {
			return fmt.Errorf("deleting transactions: %w", err)
		}
		report.Transactions = n
		return nil
	})
	if err != nil {
		return ResetReport{}, err
	}

	s.logger.Warn("dataset reset",
		"predictions", report.Predictions,
		"transactions", report.Transactions)
	return report, nil
}

func columnIndex(header []string) (map[string]int, error) {
	index := make(map[string]int, len(header))
	for i, name := range header {
		index[strings.TrimSpace(strings.TrimPrefix(name, "\ufeff"))] = i
	}
	var missing []string
	for _, col := range requiredColumns {
		if _, ok := index[col]; !ok {
			missing = append(missing, col)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: csv header is missing columns %s", entity.ErrValidation, strings.Join(missing, ", "))
	}
	return index, nil
}

func parseRow(record []string, index map[string]int) (*entity.Transaction, error) {
	get := func(col string) string {
		return strings.TrimSpace(record[index[col]])
	}

	amount, err := decimal.NewFromString(get("amount"))
	if err != nil {
		return nil, fmt.Errorf("amount: %w", err)
	}
	ints := make(map[string]int, 4)
	for _, col := range []string{"transaction_hour", "device_trust_score", "velocity_last_24h", "cardholder_age"} {
		v, err := strconv.Atoi(get(col))
		if err != nil {
			return nil, fmt.Errorf("%s: %w", col, err)
		}
		ints[col] = v
	}
	foreign, err := strconv.ParseBool(get("foreign_transaction"))
	if err != nil {
		return nil, fmt.Errorf("foreign_transaction: %w", err)
	}
	mismatch, err := strconv.ParseBool(get("location_mismatch"))
	if err != nil {
		return nil, fmt.Errorf("location_mismatch: %w", err)
	}
	category, err := entity.ParseMerchantCategory(get("merchant_category"))
	if err != nil {
		return nil, err
	}

	return entity.NewTransaction(entity.TransactionFields{
		TransactionID:      get("transaction_id"),
		Amount:             amount,
		TransactionHour:    ints["transaction_hour"],
		MerchantCategory:   category,
		ForeignTransaction: foreign,
		LocationMismatch:   mismatch,
		DeviceTrustScore:   ints["device_trust_score"],
		VelocityLast24h:    ints["velocity_last_24h"],
		CardholderAge:      ints["cardholder_age"],
	})
}
