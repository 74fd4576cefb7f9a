package outbound

import (
	"context"

	"github.com/archon-research/fraud-scoring/internal/domain/entity"
)

// TransactionCache caches transaction detail lookups.
//
// Every transaction carries a generation that Invalidate advances. A reader
// takes the generation before loading from storage and passes it to Set, which
// stores the detail only if no invalidation happened in between. This keeps a
// slow reader from caching history that a concurrent write has superseded.
type TransactionCache interface {
	// Get returns the cached detail. Returns nil, nil on a miss.
	Get(ctx context.Context, transactionID string) (*entity.TransactionDetail, error)

	// Generation returns the current generation of a transaction's entry.
	Generation(ctx context.Context, transactionID string) (int64, error)

	// Set caches a transaction detail loaded at the given generation.
	// The detail is dropped if the generation has since advanced.
	Set(ctx context.Context, detail *entity.TransactionDetail, generation int64) error

	// Invalidate removes the cached detail and advances its generation.
	Invalidate(ctx context.Context, transactionID string) error

	// Close closes the cache connection.
	Close() error
}
