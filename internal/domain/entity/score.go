package entity

import "time"

// ScoreResult is returned by the scoring use case.
type ScoreResult struct {
	TransactionID    string
	FraudProbability float64
	Decision         Decision
	Threshold        float64
	ModelVersion     string
	ScoredAt         time.Time
}

// ScoredAtISO renders the scoring time as an ISO-8601 timestamp.
func (r *ScoreResult) ScoredAtISO() string {
	return r.ScoredAt.UTC().Format(time.RFC3339Nano)
}

// PredictResult is returned by stateless model evaluation.
type PredictResult struct {
	TransactionID    string
	IsFraud          bool
	FraudProbability float64
}

// TransactionDetail is a transaction together with its prediction history,
// newest prediction first.
type TransactionDetail struct {
	Transaction *Transaction
	Predictions []*Prediction
}
