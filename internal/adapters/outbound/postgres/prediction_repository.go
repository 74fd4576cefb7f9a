package postgres

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/archon-research/fraud-scoring/internal/domain/entity"
	"github.com/archon-research/fraud-scoring/internal/ports/outbound"
)

// Compile-time check that PredictionRepository implements outbound.PredictionRepository
var _ outbound.PredictionRepository = (*PredictionRepository)(nil)

// PredictionRepository is a PostgreSQL implementation of outbound.PredictionRepository.
type PredictionRepository struct {
	db     querier
	logger *slog.Logger
}

// NewPredictionRepository creates a repository that runs each call on its own pooled connection.
func NewPredictionRepository(pool *pgxpool.Pool, logger *slog.Logger) (*PredictionRepository, error) {
	if pool == nil {
		return nil, fmt.Errorf("database pool cannot be nil")
	}
	return newPredictionRepository(pool, logger), nil
}

func newPredictionRepository(db querier, logger *slog.Logger) *PredictionRepository {
	return &PredictionRepository{
		db:     db,
		logger: defaultLogger(logger).With("component", "prediction-repository"),
	}
}

// Insert implements outbound.PredictionRepository.
func (r *PredictionRepository) Insert(ctx context.Context, p *entity.Prediction) error {
	err := r.db.QueryRow(ctx, `
		INSERT INTO predictions (transaction_id, fraud_probability, decision, model_version, scored_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id`,
		p.TransactionID,
		p.FraudProbability,
		string(p.Decision),
		p.ModelVersion,
		p.ScoredAt,
	).Scan(&p.ID)
	if err != nil {
		return fmt.Errorf("failed to insert prediction for %s: %w", p.TransactionID, err)
	}
	return nil
}

// ListByTransactionID implements outbound.PredictionRepository.
func (r *PredictionRepository) ListByTransactionID(ctx context.Context, transactionID string) ([]*entity.Prediction, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, transaction_id, fraud_probability, decision, model_version, scored_at
		FROM predictions
		WHERE transaction_id = $1
		ORDER BY scored_at DESC, id DESC`,
		transactionID)
	if err != nil {
		return nil, fmt.Errorf("failed to list predictions for %s: %w", transactionID, err)
	}
	defer rows.Close()

	var predictions []*entity.Prediction
	for rows.Next() {
		var (
			p        entity.Prediction
			decision string
		)
		if err := rows.Scan(&p.ID, &p.TransactionID, &p.FraudProbability, &decision, &p.ModelVersion, &p.ScoredAt); err != nil {
			return nil, fmt.Errorf("failed to scan prediction: %w", err)
		}
		if p.Decision, err = entity.ParseDecision(decision); err != nil {
			return nil, fmt.Errorf("prediction %d: %w", p.ID, err)
		}
		p.ScoredAt = p.ScoredAt.UTC()
		predictions = append(predictions, &p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate predictions: %w", err)
	}
	return predictions, nil
}

// DeleteAll implements outbound.PredictionRepository.
func (r *PredictionRepository) DeleteAll(ctx context.Context) (int64, error) {
	tag, err := r.db.Exec(ctx, `DELETE FROM predictions`)
	if err != nil {
		return 0, fmt.Errorf("failed to delete predictions: %w", err)
	}
	return tag.RowsAffected(), nil
}
