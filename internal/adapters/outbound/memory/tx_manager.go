package memory

import (
	"context"
	"fmt"

	"github.com/archon-research/fraud-scoring/internal/ports/outbound"
)

// Compile-time check that TxManager implements outbound.TxManager
var _ outbound.TxManager = (*TxManager)(nil)

// TxManager runs units of work against a Store. Units of work are serialized;
// on error or panic the store is restored to its state before the call.
type TxManager struct {
	store *Store
}

// NewTxManager creates a TxManager for the given store.
func NewTxManager(store *Store) (*TxManager, error) {
	if store == nil {
		return nil, fmt.Errorf("store cannot be nil")
	}
	return &TxManager{store: store}, nil
}

// WithTransaction implements outbound.TxManager.
func (m *TxManager) WithTransaction(ctx context.Context, fn func(uow outbound.UnitOfWork) error) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	m.store.mu.Lock()
	defer m.store.mu.Unlock()

	snap := m.store.snapshot()
	defer func() {
		if p := recover(); p != nil {
			m.store.restore(snap)
			panic(p)
		}
	}()

	uow := &unitOfWork{
		transactions: &TransactionRepository{store: m.store, inTx: true},
		predictions:  &PredictionRepository{store: m.store, inTx: true},
	}
	if err := fn(uow); err != nil {
		m.store.restore(snap)
		return err
	}
	return nil
}

type unitOfWork struct {
	transactions *TransactionRepository
	predictions  *PredictionRepository
}

func (u *unitOfWork) Transactions() outbound.TransactionRepository { return u.transactions }
func (u *unitOfWork) Predictions() outbound.PredictionRepository   { return u.predictions }
