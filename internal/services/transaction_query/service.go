// Package transaction_query serves read-only views of stored transactions
// and their prediction history.
package transaction_query

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/archon-research/fraud-scoring/internal/domain/entity"
	"github.com/archon-research/fraud-scoring/internal/ports/inbound"
	"github.com/archon-research/fraud-scoring/internal/ports/outbound"
)

// Paging limits for List.
const (
	DefaultLimit = 50
	MaxLimit     = 100
)

// Compile-time check that Service implements inbound.TransactionQueryService
var _ inbound.TransactionQueryService = (*Service)(nil)

// Config holds configuration for the transaction query service.
type Config struct {
	// Cache holds transaction details (optional).
	Cache outbound.TransactionCache

	Logger *slog.Logger
}

// Service implements the transaction query use cases.
type Service struct {
	transactions outbound.TransactionRepository
	predictions  outbound.PredictionRepository
	cache        outbound.TransactionCache
	logger       *slog.Logger
}

// NewService creates a new transaction query service.
func NewService(config Config, transactions outbound.TransactionRepository, predictions outbound.PredictionRepository) (*Service, error) {
	if transactions == nil {
		return nil, fmt.Errorf("transaction repository cannot be nil")
	}
	if predictions == nil {
		return nil, fmt.Errorf("prediction repository cannot be nil")
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		transactions: transactions,
		predictions:  predictions,
		cache:        config.Cache,
		logger:       logger.With("component", "transaction-query"),
	}, nil
}

// NormalizePage applies the default limit and clamps it to MaxLimit.
// A non-positive limit selects the default; a negative offset is a validation error.
func NormalizePage(limit, offset int) (int, int, error) {
	if offset < 0 {
		return 0, 0, fmt.Errorf("%w: offset must be non-negative, got %d", entity.ErrValidation, offset)
	}
	switch {
	case limit <= 0:
		limit = DefaultLimit
	case limit > MaxLimit:
		limit = MaxLimit
	}
	return limit, offset, nil
}

// List returns transactions newest first.
func (s *Service) List(ctx context.Context, limit, offset int) ([]*entity.Transaction, error) {
	limit, offset, err := NormalizePage(limit, offset)
	if err != nil {
		return nil, err
	}

	txs, err := s.transactions.List(ctx, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("listing transactions: %w", err)
	}
	return txs, nil
}

// Get returns the transaction with its predictions, newest first.
// Returns nil, nil when the transaction does not exist.
func (s *Service) Get(ctx context.Context, transactionID string) (*entity.TransactionDetail, error) {
	// generation is read before storage so a prediction committed while
	// loading makes the Set below a no-op.
	var generation int64
	cacheable := false
	if s.cache != nil {
		detail, err := s.cache.Get(ctx, transactionID)
		if err != nil {
			s.logger.Warn("cache read failed", "transactionID", transactionID, "error", err)
		} else if detail != nil {
			return detail, nil
		} else if generation, err = s.cache.Generation(ctx, transactionID); err != nil {
			s.logger.Warn("cache generation read failed", "transactionID", transactionID, "error", err)
		} else {
			cacheable = true
		}
	}

	tx, err := s.transactions.FindByExternalID(ctx, transactionID)
	if err != nil {
		return nil, fmt.Errorf("finding transaction %s: %w", transactionID, err)
	}
	if tx == nil {
		return nil, nil
	}

	predictions, err := s.predictions.ListByTransactionID(ctx, transactionID)
	if err != nil {
		return nil, fmt.Errorf("listing predictions for %s: %w", transactionID, err)
	}
	if predictions == nil {
		predictions = []*entity.Prediction{}
	}

	detail := &entity.TransactionDetail{Transaction: tx, Predictions: predictions}
	if cacheable {
		if err := s.cache.Set(ctx, detail, generation); err != nil {
			s.logger.Warn("cache write failed", "transactionID", transactionID, "error", err)
		}
	}
	return detail, nil
}
