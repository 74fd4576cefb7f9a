// Package outbound defines the outbound port interfaces.
// Adapters in internal/adapters/outbound implement these; services depend only on them.
package outbound

import (
	"context"

	"github.com/archon-research/fraud-scoring/internal/domain/entity"
)

// TransactionRepository defines persistence of Transaction records.
type TransactionRepository interface {
	// FindByExternalID returns the transaction with the given external identifier.
	// Returns nil, nil when no such transaction exists.
	FindByExternalID(ctx context.Context, transactionID string) (*entity.Transaction, error)

	// Insert stores a new transaction and fills in ID and CreatedAt.
	// Conflict resolution: ON CONFLICT (transaction_id) DO NOTHING.
	// Returns false when a transaction with the same external identifier already
	// existed, in which case tx is left untouched.
	Insert(ctx context.Context, tx *entity.Transaction) (bool, error)

	// List returns transactions ordered by creation time, newest first.
	List(ctx context.Context, limit, offset int) ([]*entity.Transaction, error)

	// DeleteAll removes every transaction and returns the number of deleted rows.
	DeleteAll(ctx context.Context) (int64, error)
}

// PredictionRepository defines persistence of Prediction records.
// Predictions are append-only; there is no update path.
type PredictionRepository interface {
	// Insert stores a new prediction and fills in its ID.
	Insert(ctx context.Context, p *entity.Prediction) error

	// ListByTransactionID returns the predictions of a transaction, newest first.
	ListByTransactionID(ctx context.Context, transactionID string) ([]*entity.Prediction, error)

	// DeleteAll removes every prediction and returns the number of deleted rows.
	DeleteAll(ctx context.Context) (int64, error)
}
