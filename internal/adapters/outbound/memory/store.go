// Package memory provides in-memory implementations of the outbound ports.
// Useful for testing and development. Data is lost on process restart.
package memory

import (
	"cmp"
	"slices"
	"sync"
	"time"

	"github.com/archon-research/fraud-scoring/internal/domain/entity"
)

// Store holds transactions and predictions in memory.
// All repositories and the TxManager created from one Store share its data.
type Store struct {
	mu sync.RWMutex

	transactions map[string]*entity.Transaction
	predictions  []*entity.Prediction
	nextTxID     int64
	nextPredID   int64

	now func() time.Time
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{
		transactions: make(map[string]*entity.Transaction),
		now:          time.Now,
	}
}

// SetClock replaces the clock used for CreatedAt. For tests.
func (s *Store) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

// Transactions returns a repository that locks the store on every call.
func (s *Store) Transactions() *TransactionRepository {
	return &TransactionRepository{store: s}
}

// Predictions returns a repository that locks the store on every call.
func (s *Store) Predictions() *PredictionRepository {
	return &PredictionRepository{store: s}
}

// TransactionCount returns the number of stored transactions.
func (s *Store) TransactionCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.transactions)
}

// PredictionCount returns the number of stored predictions.
func (s *Store) PredictionCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.predictions)
}

// snapshot captures the current state. Entities are immutable once stored,
// so copying the containers is enough to restore it later.
type snapshot struct {
	transactions map[string]*entity.Transaction
	predictions  []*entity.Prediction
	nextTxID     int64
	nextPredID   int64
}

// The methods below expect the caller to hold s.mu.

func (s *Store) snapshot() snapshot {
	txs := make(map[string]*entity.Transaction, len(s.transactions))
	for k, v := range s.transactions {
		txs[k] = v
	}
	return snapshot{
		transactions: txs,
		predictions:  slices.Clone(s.predictions),
		nextTxID:     s.nextTxID,
		nextPredID:   s.nextPredID,
	}
}

func (s *Store) restore(snap snapshot) {
	s.transactions = snap.transactions
	s.predictions = snap.predictions
	s.nextTxID = snap.nextTxID
	s.nextPredID = snap.nextPredID
}

func (s *Store) findTransaction(transactionID string) *entity.Transaction {
	tx, ok := s.transactions[transactionID]
	if !ok {
		return nil
	}
	c := *tx
	return &c
}

func (s *Store) insertTransaction(tx *entity.Transaction) bool {
	if _, exists := s.transactions[tx.TransactionID]; exists {
		return false
	}
	s.nextTxID++
	tx.ID = s.nextTxID
	tx.CreatedAt = s.now().UTC()

	c := *tx
	s.transactions[tx.TransactionID] = &c
	return true
}

func (s *Store) listTransactions(limit, offset int) []*entity.Transaction {
	all := make([]*entity.Transaction, 0, len(s.transactions))
	for _, tx := range s.transactions {
		all = append(all, tx)
	}
	slices.SortFunc(all, func(a, b *entity.Transaction) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(b.ID, a.ID)
	})

	if offset >= len(all) {
		return []*entity.Transaction{}
	}
	end := min(offset+limit, len(all))

	page := make([]*entity.Transaction, 0, end-offset)
	for _, tx := range all[offset:end] {
		c := *tx
		page = append(page, &c)
	}
	return page
}

func (s *Store) deleteAllTransactions() int64 {
	n := int64(len(s.transactions))
	s.transactions = make(map[string]*entity.Transaction)
	return n
}

func (s *Store) insertPrediction(p *entity.Prediction) {
	s.nextPredID++
	p.ID = s.nextPredID

	c := *p
	s.predictions = append(s.predictions, &c)
}

func (s *Store) listPredictions(transactionID string) []*entity.Prediction {
	var out []*entity.Prediction
	for _, p := range s.predictions {
		if p.TransactionID == transactionID {
			c := *p
			out = append(out, &c)
		}
	}
	slices.SortFunc(out, func(a, b *entity.Prediction) int {
		if c := b.ScoredAt.Compare(a.ScoredAt); c != 0 {
			return c
		}
		return cmp.Compare(b.ID, a.ID)
	})
	return out
}

func (s *Store) deleteAllPredictions() int64 {
	n := int64(len(s.predictions))
	s.predictions = nil
	return n
}
