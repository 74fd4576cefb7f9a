package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/archon-research/fraud-scoring/internal/domain/entity"
	"github.com/archon-research/fraud-scoring/internal/ports/outbound"
)

// Compile-time check that TransactionRepository implements outbound.TransactionRepository
var _ outbound.TransactionRepository = (*TransactionRepository)(nil)

const transactionColumns = `id, transaction_id, amount::text, transaction_hour, merchant_category,
	foreign_transaction, location_mismatch, device_trust_score, velocity_last_24h,
	cardholder_age, created_at`

// TransactionRepository is a PostgreSQL implementation of outbound.TransactionRepository.
type TransactionRepository struct {
	db     querier
	logger *slog.Logger
}

// NewTransactionRepository creates a repository that runs each call on its own pooled connection.
func NewTransactionRepository(pool *pgxpool.Pool, logger *slog.Logger) (*TransactionRepository, error) {
	if pool == nil {
		return nil, fmt.Errorf("database pool cannot be nil")
	}
	return newTransactionRepository(pool, logger), nil
}

func newTransactionRepository(db querier, logger *slog.Logger) *TransactionRepository {
	return &TransactionRepository{
		db:     db,
		logger: defaultLogger(logger).With("component", "transaction-repository"),
	}
}

// FindByExternalID implements outbound.TransactionRepository.
func (r *TransactionRepository) FindByExternalID(ctx context.Context, transactionID string) (*entity.Transaction, error) {
	row := r.db.QueryRow(ctx,
		`SELECT `+transactionColumns+` FROM transactions WHERE transaction_id = $1`,
		transactionID)

	tx, err := scanTransaction(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find transaction %s: %w", transactionID, err)
	}
	return tx, nil
}

// Insert implements outbound.TransactionRepository.
func (r *TransactionRepository) Insert(ctx context.Context, tx *entity.Transaction) (bool, error) {
	var (
		id        int64
		createdAt time.Time
	)
	err := r.db.QueryRow(ctx, `
		INSERT INTO transactions (
			transaction_id, amount, transaction_hour, merchant_category,
			foreign_transaction, location_mismatch, device_trust_score,
			velocity_last_24h, cardholder_age
		) VALUES ($1, $2::numeric, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (transaction_id) DO NOTHING
		RETURNING id, created_at`,
		tx.TransactionID,
		tx.Amount.String(),
		tx.TransactionHour,
		string(tx.MerchantCategory),
		tx.ForeignTransaction,
		tx.LocationMismatch,
		tx.DeviceTrustScore,
		tx.VelocityLast24h,
		tx.CardholderAge,
	).Scan(&id, &createdAt)
	if errors.Is(err, pgx.ErrNoRows) {
		r.logger.Debug("transaction already exists", "transactionID", tx.TransactionID)
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to insert transaction %s: %w", tx.TransactionID, err)
	}

	tx.ID = id
	tx.CreatedAt = createdAt.UTC()
	return true, nil
}

// List implements outbound.TransactionRepository.
func (r *TransactionRepository) List(ctx context.Context, limit, offset int) ([]*entity.Transaction, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+transactionColumns+` FROM transactions
		ORDER BY created_at DESC, id DESC
		LIMIT $1 OFFSET $2`,
		limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list transactions: %w", err)
	}
	defer rows.Close()

	txs := make([]*entity.Transaction, 0, limit)
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		txs = append(txs, tx)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate transactions: %w", err)
	}
	return txs, nil
}

// DeleteAll implements outbound.TransactionRepository.
func (r *TransactionRepository) DeleteAll(ctx context.Context) (int64, error) {
	tag, err := r.db.Exec(ctx, `DELETE FROM transactions`)
	if err != nil {
		return 0, fmt.Errorf("failed to delete transactions: %w", err)
	}
	return tag.RowsAffected(), nil
}

func scanTransaction(row pgx.Row) (*entity.Transaction, error) {
	var (
		tx       entity.Transaction
		amount   string
		category string
	)
	err := row.Scan(
		&tx.ID,
		&tx.TransactionID,
		&amount,
		&tx.TransactionHour,
		&category,
		&tx.ForeignTransaction,
		&tx.LocationMismatch,
		&tx.DeviceTrustScore,
		&tx.VelocityLast24h,
		&tx.CardholderAge,
		&tx.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	tx.Amount, err = decimal.NewFromString(amount)
	if err != nil {
		return nil, fmt.Errorf("parsing amount %q: %w", amount, err)
	}
	tx.MerchantCategory = entity.MerchantCategory(category)
	tx.CreatedAt = tx.CreatedAt.UTC()
	return &tx, nil
}
