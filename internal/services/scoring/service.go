// Package scoring scores transactions for fraud risk and records every
// scoring outcome as a Prediction.
package scoring

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/archon-research/fraud-scoring/internal/domain/entity"
	"github.com/archon-research/fraud-scoring/internal/pkg/fraudmodel"
	"github.com/archon-research/fraud-scoring/internal/ports/inbound"
	"github.com/archon-research/fraud-scoring/internal/ports/outbound"
)

// tracerName is the instrumentation name for this service.
const tracerName = "github.com/archon-research/fraud-scoring/internal/services/scoring"

// Compile-time check that Service implements inbound.ScoringService
var _ inbound.ScoringService = (*Service)(nil)

// ModelProvider hands out the loaded fraud model.
type ModelProvider interface {
	Model(ctx context.Context) (*fraudmodel.Handle, error)
	Threshold(ctx context.Context, def float64) float64
}

// Config holds configuration for the scoring service.
type Config struct {
	// DefaultThreshold applies when the model artifact declares no threshold.
	// Default: 0.6
	DefaultThreshold float64

	// ReviewThreshold is the lower bound of the review band.
	// A value at or above the effective threshold disables the review band.
	// Default: 0.4
	ReviewThreshold float64

	// EventSink receives a PredictionEvent after every committed score (optional).
	EventSink outbound.EventSink

	// Cache holds transaction details and is invalidated after every committed score (optional).
	Cache outbound.TransactionCache

	// Metrics is the metrics recorder (optional).
	Metrics outbound.MetricsRecorder

	Logger *slog.Logger

	// Now returns the scoring time. Default: time.Now
	Now func() time.Time
}

func configDefaults() Config {
	return Config{
		DefaultThreshold: entity.DefaultThreshold,
		ReviewThreshold:  entity.DefaultReviewThreshold,
		Logger:           slog.Default(),
		Now:              time.Now,
	}
}

// Service implements the scoring use case.
type Service struct {
	config Config
	models ModelProvider
	txm    outbound.TxManager
	logger *slog.Logger
}

// NewService creates a new scoring service.
func NewService(config Config, models ModelProvider, txm outbound.TxManager) (*Service, error) {
	if models == nil {
		return nil, fmt.Errorf("model provider cannot be nil")
	}
	if txm == nil {
		return nil, fmt.Errorf("tx manager cannot be nil")
	}

	defaults := configDefaults()
	if config.DefaultThreshold == 0 {
		config.DefaultThreshold = defaults.DefaultThreshold
	}
	if config.ReviewThreshold == 0 {
		config.ReviewThreshold = defaults.ReviewThreshold
	}
	if config.Logger == nil {
		config.Logger = defaults.Logger
	}
	if config.Now == nil {
		config.Now = defaults.Now
	}
	if config.DefaultThreshold < 0 || config.DefaultThreshold > 1 {
		return nil, fmt.Errorf("%w: default threshold must be within [0,1], got %v", entity.ErrConfiguration, config.DefaultThreshold)
	}
	if config.ReviewThreshold < 0 || config.ReviewThreshold > 1 {
		return nil, fmt.Errorf("%w: review threshold must be within [0,1], got %v", entity.ErrConfiguration, config.ReviewThreshold)
	}

	return &Service{
		config: config,
		models: models,
		txm:    txm,
		logger: config.Logger.With("component", "scoring-service"),
	}, nil
}

// Score looks up or creates the transaction, scores it and appends a
// Prediction, all in one unit of work. An existing transaction is scored
// from its stored fields.
//
// Validation failures wrap entity.ErrValidation; every other failure wraps
// entity.ErrScoringFailed together with its cause.
func (s *Service) Score(ctx context.Context, fields entity.TransactionFields) (*entity.ScoreResult, error) {
	start := time.Now()

	ctx, span := otel.Tracer(tracerName).Start(ctx, "scoring.score",
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(attribute.String("transaction.id", fields.TransactionID)),
	)
	defer span.End()

	if err := fields.Validate(); err != nil {
		span.SetStatus(codes.Error, "invalid transaction")
		return nil, err
	}

	var result *entity.ScoreResult
	err := s.txm.WithTransaction(ctx, func(uow outbound.UnitOfWork) error {
		tx, created, err := s.lookupOrCreate(ctx, uow.Transactions(), fields)
		if err != nil {
			return err
		}
		span.SetAttributes(attribute.Bool("transaction.created", created))

		est, err := s.estimate(ctx, tx.Features())
		if err != nil {
			return err
		}

		prediction, err := entity.NewPrediction(tx.TransactionID, est.probability, est.decision, est.version, s.config.Now())
		if err != nil {
			return fmt.Errorf("building prediction: %w", err)
		}
		if err := uow.Predictions().Insert(ctx, prediction); err != nil {
			return err
		}

		result = &entity.ScoreResult{
			TransactionID:    tx.TransactionID,
			FraudProbability: prediction.FraudProbability,
			Decision:         prediction.Decision,
			Threshold:        est.threshold,
			ModelVersion:     prediction.ModelVersion,
			ScoredAt:         prediction.ScoredAt,
		}
		return nil
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "scoring failed")
		if s.config.Metrics != nil {
			s.config.Metrics.RecordScoringFailure(ctx, failureReason(err))
		}
		s.logger.Error("scoring failed", "transactionID", fields.TransactionID, "error", err)
		return nil, fmt.Errorf("%w: %w", entity.ErrScoringFailed, err)
	}

	duration := time.Since(start)
	span.SetAttributes(
		attribute.Float64("fraud.probability", result.FraudProbability),
		attribute.String("fraud.decision", string(result.Decision)),
		attribute.String("model.version", result.ModelVersion),
	)
	if s.config.Metrics != nil {
		s.config.Metrics.RecordPrediction(ctx, string(result.Decision), result.ModelVersion, result.FraudProbability, duration)
	}
	s.afterCommit(ctx, result)

	s.logger.Info("transaction scored",
		"transactionID", result.TransactionID,
		"probability", result.FraudProbability,
		"decision", result.Decision,
		"modelVersion", result.ModelVersion,
		"duration", duration)
	return result, nil
}

// Predict evaluates the model without touching persistence. The transaction
// identifier is optional and only echoed back.
func (s *Service) Predict(ctx context.Context, fields entity.TransactionFields) (*entity.PredictResult, error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "scoring.predict",
		trace.WithSpanKind(trace.SpanKindInternal),
	)
	defer span.End()

	if err := fields.ValidateFeatures(); err != nil {
		span.SetStatus(codes.Error, "invalid transaction")
		return nil, err
	}

	est, err := s.estimate(ctx, fields.Features())
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "prediction failed")
		s.logger.Error("prediction failed", "error", err)
		return nil, fmt.Errorf("%w: %w", entity.ErrScoringFailed, err)
	}

	return &entity.PredictResult{
		TransactionID:    fields.TransactionID,
		IsFraud:          est.probability >= est.threshold,
		FraudProbability: est.probability,
	}, nil
}

// lookupOrCreate returns the stored transaction for fields.TransactionID,
// inserting it first when absent. A concurrent first submission of the same
// identifier makes Insert report a conflict, in which case the winner's row is read back.
func (s *Service) lookupOrCreate(ctx context.Context, repo outbound.TransactionRepository, fields entity.TransactionFields) (*entity.Transaction, bool, error) {
	existing, err := repo.FindByExternalID(ctx, fields.TransactionID)
	if err != nil {
		return nil, false, err
	}
	if existing != nil {
		return existing, false, nil
	}

	tx, err := entity.NewTransaction(fields)
	if err != nil {
		return nil, false, err
	}
	inserted, err := repo.Insert(ctx, tx)
	if err != nil {
		return nil, false, err
	}
	if inserted {
		return tx, true, nil
	}

	existing, err = repo.FindByExternalID(ctx, fields.TransactionID)
	if err != nil {
		return nil, false, err
	}
	if existing == nil {
		return nil, false, fmt.Errorf("transaction %s vanished after insert conflict", fields.TransactionID)
	}
	return existing, false, nil
}

type estimation struct {
	probability float64
	decision    entity.Decision
	threshold   float64
	version     string
}

func (s *Service) estimate(ctx context.Context, features entity.FeatureVector) (*estimation, error) {
	h, err := s.models.Model(ctx)
	if err != nil {
		return nil, err
	}
	threshold := s.models.Threshold(ctx, s.config.DefaultThreshold)

	probability, err := Probability(h, features)
	if err != nil {
		return nil, err
	}

	return &estimation{
		probability: probability,
		decision:    entity.Decide(probability, threshold, s.config.ReviewThreshold),
		threshold:   threshold,
		version:     h.Version,
	}, nil
}

// Probability runs the model on features. Models without probability
// estimation contribute their hard label (0 or 1) as the probability.
func Probability(h *fraudmodel.Handle, features entity.FeatureVector) (float64, error) {
	switch m := h.Model.(type) {
	case fraudmodel.ProbabilityEstimator:
		p, err := m.PredictProba(features)
		if err != nil {
			return 0, fmt.Errorf("estimating probability: %w", err)
		}
		if p < 0 || p > 1 {
			return 0, fmt.Errorf("model returned probability %v outside [0,1]", p)
		}
		return p, nil
	case fraudmodel.LabelPredictor:
		label, err := m.Predict(features)
		if err != nil {
			return 0, fmt.Errorf("predicting label: %w", err)
		}
		if label != 0 {
			return 1, nil
		}
		return 0, nil
	default:
		return 0, fmt.Errorf("%w: model %T has no scoring capability", entity.ErrInvalidArtifact, h.Model)
	}
}

// afterCommit publishes the prediction event and drops the cached detail.
// Failures are logged; the score itself is already committed.
func (s *Service) afterCommit(ctx context.Context, result *entity.ScoreResult) {
	if s.config.Cache != nil {
		if err := s.config.Cache.Invalidate(ctx, result.TransactionID); err != nil {
			s.logger.Warn("failed to invalidate cached transaction", "transactionID", result.TransactionID, "error", err)
		}
	}

	if s.config.EventSink != nil {
		event := outbound.PredictionEvent{
			TransactionID:    result.TransactionID,
			FraudProbability: result.FraudProbability,
			Decision:         string(result.Decision),
			Threshold:        result.Threshold,
			ModelVersion:     result.ModelVersion,
			ScoredAt:         result.ScoredAt,
		}
		if err := s.config.EventSink.Publish(ctx, event); err != nil {
			s.logger.Warn("failed to publish prediction event", "transactionID", result.TransactionID, "error", err)
		}
	}
}
