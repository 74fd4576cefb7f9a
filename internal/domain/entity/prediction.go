package entity

import (
	"fmt"
	"time"
)

// UnknownModelVersion is recorded when the model does not report a version.
const UnknownModelVersion = "unknown"

// Prediction is one scoring outcome for a Transaction. Predictions are append-only.
type Prediction struct {
	ID               int64
	TransactionID    string
	FraudProbability float64
	Decision         Decision
	ModelVersion     string
	ScoredAt         time.Time
}

// NewPrediction creates a new Prediction entity with validation.
// An empty model version is stored as UnknownModelVersion.
func NewPrediction(transactionID string, probability float64, decision Decision, modelVersion string, scoredAt time.Time) (*Prediction, error) {
	if modelVersion == "" {
		modelVersion = UnknownModelVersion
	}
	p := &Prediction{
		TransactionID:    transactionID,
		FraudProbability: probability,
		Decision:         decision,
		ModelVersion:     modelVersion,
		ScoredAt:         scoredAt.UTC(),
	}
	if err := p.validate(); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *Prediction) validate() error {
	if p.TransactionID == "" {
		return fmt.Errorf("transactionID must not be empty")
	}
	if p.FraudProbability < 0 || p.FraudProbability > 1 {
		return fmt.Errorf("fraud probability must be within [0,1], got %v", p.FraudProbability)
	}
	if _, err := ParseDecision(string(p.Decision)); err != nil {
		return err
	}
	if p.ScoredAt.IsZero() {
		return fmt.Errorf("scoredAt must be set")
	}
	return nil
}
