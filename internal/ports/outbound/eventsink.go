package outbound

import (
	"context"
	"time"
)

// EventType represents the type of event.
type EventType string

// Event type constants.
const (
	EventTypePrediction EventType = "prediction"
)

// Event is the interface that all published events implement.
type Event interface {
	// EventType returns the type of the event.
	EventType() EventType
	// GetTransactionID returns the external identifier of the scored transaction.
	GetTransactionID() string
}

// PredictionEvent is published after a prediction has been committed.
type PredictionEvent struct {
	TransactionID    string    `json:"transactionId"`
	FraudProbability float64   `json:"fraudProbability"`
	Decision         string    `json:"decision"`
	Threshold        float64   `json:"threshold"`
	ModelVersion     string    `json:"modelVersion"`
	ScoredAt         time.Time `json:"scoredAt"`
}

func (e PredictionEvent) EventType() EventType     { return EventTypePrediction }
func (e PredictionEvent) GetTransactionID() string { return e.TransactionID }

// EventSink publishes domain events to downstream consumers.
type EventSink interface {
	// Publish sends an event. Implementations must be safe for concurrent use.
	Publish(ctx context.Context, event Event) error

	// Close releases resources; Publish fails afterwards.
	Close() error
}
