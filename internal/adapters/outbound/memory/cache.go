package memory

import (
	"context"
	"sync"
	"time"

	"github.com/archon-research/fraud-scoring/internal/domain/entity"
	"github.com/archon-research/fraud-scoring/internal/ports/outbound"
)

// Compile-time check that TransactionCache implements outbound.TransactionCache
var _ outbound.TransactionCache = (*TransactionCache)(nil)

type cacheEntry struct {
	detail    *entity.TransactionDetail
	expiresAt time.Time
}

// TransactionCache is an in-process implementation of outbound.TransactionCache.
// Entries expire after the configured TTL; a zero TTL keeps them until invalidated.
// Generations are kept for the life of the cache since resetting one could let
// a reader holding the old value store stale history.
type TransactionCache struct {
	mu          sync.RWMutex
	entries     map[string]cacheEntry
	generations map[string]int64
	ttl         time.Duration
	now         func() time.Time
}

// NewTransactionCache creates a new in-process transaction cache.
func NewTransactionCache(ttl time.Duration) *TransactionCache {
	return &TransactionCache{
		entries:     make(map[string]cacheEntry),
		generations: make(map[string]int64),
		ttl:         ttl,
		now:         time.Now,
	}
}

// Get implements outbound.TransactionCache.
func (c *TransactionCache) Get(ctx context.Context, transactionID string) (*entity.TransactionDetail, error) {
	c.mu.RLock()
	entry, ok := c.entries[transactionID]
	c.mu.RUnlock()

	if !ok {
		return nil, nil
	}
	if !entry.expiresAt.IsZero() && !c.now().Before(entry.expiresAt) {
		c.mu.Lock()
		delete(c.entries, transactionID)
		c.mu.Unlock()
		return nil, nil
	}
	return cloneDetail(entry.detail), nil
}

// Generation implements outbound.TransactionCache.
func (c *TransactionCache) Generation(ctx context.Context, transactionID string) (int64, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.generations[transactionID], nil
}

// Set implements outbound.TransactionCache.
func (c *TransactionCache) Set(ctx context.Context, detail *entity.TransactionDetail, generation int64) error {
	if detail == nil || detail.Transaction == nil {
		return nil
	}
	entry := cacheEntry{detail: cloneDetail(detail)}
	if c.ttl > 0 {
		entry.expiresAt = c.now().Add(c.ttl)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	id := detail.Transaction.TransactionID
	if c.generations[id] != generation {
		return nil
	}
	c.entries[id] = entry
	return nil
}

// Invalidate implements outbound.TransactionCache.
func (c *TransactionCache) Invalidate(ctx context.Context, transactionID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, transactionID)
	c.generations[transactionID]++
	return nil
}

// Close implements outbound.TransactionCache.
func (c *TransactionCache) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]cacheEntry)
	return nil
}

func cloneDetail(d *entity.TransactionDetail) *entity.TransactionDetail {
	tx := *d.Transaction
	preds := make([]*entity.Prediction, len(d.Predictions))
	for i, p := range d.Predictions {
		c := *p
		preds[i] = &c
	}
	return &entity.TransactionDetail{Transaction: &tx, Predictions: preds}
}
