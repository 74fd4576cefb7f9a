package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/archon-research/fraud-scoring/internal/pkg/retry"
	"github.com/archon-research/fraud-scoring/internal/ports/outbound"
)

// SQLSTATE codes after which the whole unit of work can be replayed.
const (
	sqlStateSerializationFailure = "40001"
	sqlStateDeadlockDetected     = "40P01"
)

// Compile-time check that TxManager implements outbound.TxManager
var _ outbound.TxManager = (*TxManager)(nil)

// TxManager runs units of work in pgx transactions. The scoring use case
// writes a transaction and its prediction through one unit of work:
//
//	err := txm.WithTransaction(ctx, func(uow outbound.UnitOfWork) error {
//	    if _, err := uow.Transactions().Insert(ctx, tx); err != nil {
//	        return err // rolls back
//	    }
//	    return uow.Predictions().Insert(ctx, prediction)
//	})
//
// By default every unit of work runs exactly once and a serialization failure
// or deadlock is returned to the caller. Batch callers outside the request
// path can opt into replays with WithReplays; fn must then have no side
// effects outside the transaction.
type TxManager struct {
	pool    *pgxpool.Pool
	replay  retry.Config
	logger  *slog.Logger
	attempt func(ctx context.Context, fn func(uow outbound.UnitOfWork) error) error
}

// TxOption configures a TxManager.
type TxOption func(*TxManager)

// WithReplays replays a unit of work up to n more times after a
// serialization failure or deadlock.
func WithReplays(n int) TxOption {
	return func(m *TxManager) { m.replay.MaxRetries = n }
}

// NewTxManager creates a new transaction manager.
func NewTxManager(pool *pgxpool.Pool, logger *slog.Logger, opts ...TxOption) (*TxManager, error) {
	if pool == nil {
		return nil, fmt.Errorf("database pool cannot be nil")
	}
	m := &TxManager{
		pool: pool,
		replay: retry.Config{
			InitialBackoff: 10 * time.Millisecond,
			MaxBackoff:     200 * time.Millisecond,
			Jitter:         true,
		},
		logger: defaultLogger(logger).With("component", "tx-manager"),
	}
	m.attempt = m.run
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// WithTransaction implements outbound.TxManager. The transaction commits
// when fn returns nil and rolls back when fn fails or panics; a panic is
// re-raised after the rollback.
func (m *TxManager) WithTransaction(ctx context.Context, fn func(uow outbound.UnitOfWork) error) error {
	if m.replay.MaxRetries <= 0 {
		return m.attempt(ctx, fn)
	}
	onReplay := func(attempt int, err error, wait time.Duration) {
		m.logger.Warn("replaying unit of work", "attempt", attempt, "backoff", wait, "error", err)
	}
	return retry.Do(ctx, m.replay, isReplayable, onReplay, func(ctx context.Context) error {
		return m.attempt(ctx, fn)
	})
}

func (m *TxManager) run(ctx context.Context, fn func(uow outbound.UnitOfWork) error) error {
	tx, err := m.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			rollback(context.WithoutCancel(ctx), tx, m.logger)
			panic(p)
		}
	}()

	if err := fn(newUnitOfWork(tx, m.logger)); err != nil {
		rollback(context.WithoutCancel(ctx), tx, m.logger)
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

// isReplayable reports whether err aborted the transaction for reasons that
// a fresh attempt can avoid.
func isReplayable(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	return pgErr.Code == sqlStateSerializationFailure || pgErr.Code == sqlStateDeadlockDetected
}

// unitOfWork hands out repositories bound to a single pgx.Tx.
type unitOfWork struct {
	transactions *TransactionRepository
	predictions  *PredictionRepository
}

func newUnitOfWork(tx pgx.Tx, logger *slog.Logger) *unitOfWork {
	return &unitOfWork{
		transactions: newTransactionRepository(tx, logger),
		predictions:  newPredictionRepository(tx, logger),
	}
}

func (u *unitOfWork) Transactions() outbound.TransactionRepository { return u.transactions }
func (u *unitOfWork) Predictions() outbound.PredictionRepository   { return u.predictions }
