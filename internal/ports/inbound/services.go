// Package inbound contains the primary/inbound ports.
// These interfaces define the use cases that the application exposes.
package inbound

import (
	"context"

	"github.com/archon-research/fraud-scoring/internal/domain/entity"
)

// ScoringService defines the scoring use cases.
// Inbound adapters (HTTP handlers, the SQS worker) call these methods.
type ScoringService interface {
	// Score looks up or creates the transaction, runs the model and persists a prediction.
	Score(ctx context.Context, req entity.TransactionFields) (*entity.ScoreResult, error)

	// Predict runs the model without touching persistence.
	Predict(ctx context.Context, req entity.TransactionFields) (*entity.PredictResult, error)
}

// TransactionQueryService defines the read-only transaction use cases.
type TransactionQueryService interface {
	// List returns a page of transactions, newest first.
	List(ctx context.Context, limit, offset int) ([]*entity.Transaction, error)

	// Get returns a transaction with its predictions. Returns nil, nil when absent.
	Get(ctx context.Context, transactionID string) (*entity.TransactionDetail, error)
}

// HealthChecker defines the interface for services that can report readiness and liveness.
type HealthChecker interface {
	// IsReady returns true when the service can serve traffic (database reachable).
	IsReady(ctx context.Context) bool

	// IsHealthy returns true when the process is operating normally.
	IsHealthy(ctx context.Context) bool
}

// ComponentStatus is the outcome of probing one dependency.
type ComponentStatus struct {
	Name  string
	Ready bool
	// Error is why the check failed, for logs. It may carry hosts, paths or
	// driver messages and is not meant for callers of the health endpoints.
	Error string
}

// HealthReporter is implemented by health checkers that can break readiness
// down per dependency.
type HealthReporter interface {
	Report(ctx context.Context) []ComponentStatus
}
