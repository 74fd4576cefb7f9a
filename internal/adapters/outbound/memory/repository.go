package memory

import (
	"context"

	"github.com/archon-research/fraud-scoring/internal/domain/entity"
	"github.com/archon-research/fraud-scoring/internal/ports/outbound"
)

// Compile-time checks that the repositories implement the outbound ports
var (
	_ outbound.TransactionRepository = (*TransactionRepository)(nil)
	_ outbound.PredictionRepository  = (*PredictionRepository)(nil)
)

// TransactionRepository is an in-memory implementation of outbound.TransactionRepository.
// Repositories handed out by TxManager run under the lock held by the unit of work.
type TransactionRepository struct {
	store *Store
	inTx  bool
}

func (r *TransactionRepository) rlock() func() {
	if r.inTx {
		return func() {}
	}
	r.store.mu.RLock()
	return r.store.mu.RUnlock
}

func (r *TransactionRepository) lock() func() {
	if r.inTx {
		return func() {}
	}
	r.store.mu.Lock()
	return r.store.mu.Unlock
}

// FindByExternalID implements outbound.TransactionRepository.
func (r *TransactionRepository) FindByExternalID(ctx context.Context, transactionID string) (*entity.Transaction, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	defer r.rlock()()
	return r.store.findTransaction(transactionID), nil
}

// Insert implements outbound.TransactionRepository.
func (r *TransactionRepository) Insert(ctx context.Context, tx *entity.Transaction) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	defer r.lock()()
	return r.store.insertTransaction(tx), nil
}

// List implements outbound.TransactionRepository.
func (r *TransactionRepository) List(ctx context.Context, limit, offset int) ([]*entity.Transaction, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	defer r.rlock()()
	return r.store.listTransactions(limit, offset), nil
}

// DeleteAll implements outbound.TransactionRepository.
func (r *TransactionRepository) DeleteAll(ctx context.Context) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	defer r.lock()()
	return r.store.deleteAllTransactions(), nil
}

// PredictionRepository is an in-memory implementation of outbound.PredictionRepository.
type PredictionRepository struct {
	store *Store
	inTx  bool
}

func (r *PredictionRepository) rlock() func() {
	if r.inTx {
		return func() {}
	}
	r.store.mu.RLock()
	return r.store.mu.RUnlock
}

func (r *PredictionRepository) lock() func() {
	if r.inTx {
		return func() {}
	}
	r.store.mu.Lock()
	return r.store.mu.Unlock
}

// Insert implements outbound.PredictionRepository.
func (r *PredictionRepository) Insert(ctx context.Context, p *entity.Prediction) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	defer r.lock()()
	r.store.insertPrediction(p)
	return nil
}

// ListByTransactionID implements outbound.PredictionRepository.
func (r *PredictionRepository) ListByTransactionID(ctx context.Context, transactionID string) ([]*entity.Prediction, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	defer r.rlock()()
	return r.store.listPredictions(transactionID), nil
}

// DeleteAll implements outbound.PredictionRepository.
func (r *PredictionRepository) DeleteAll(ctx context.Context) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	defer r.lock()()
	return r.store.deleteAllPredictions(), nil
}
