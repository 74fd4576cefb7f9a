package outbound

import "context"

// UnitOfWork exposes repositories bound to a single database transaction.
// Repositories obtained from a UnitOfWork must not be used after the
// surrounding WithTransaction call returns.
type UnitOfWork interface {
	Transactions() TransactionRepository
	Predictions() PredictionRepository
}

// TxManager defines the interface for database transaction management.
// Services inject this to coordinate writes across multiple repositories
// within a single atomic transaction.
type TxManager interface {
	// WithTransaction executes fn within a database transaction.
	// If fn returns an error (or panics), the transaction is rolled back.
	// If fn succeeds, the transaction is committed.
	WithTransaction(ctx context.Context, fn func(uow UnitOfWork) error) error
}
