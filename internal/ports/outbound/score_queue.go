package outbound

import (
	"context"
	"time"
)

// QueuedScoreRequest is one score request taken off the intake queue.
// Body carries the same JSON payload as POST /score.
type QueuedScoreRequest struct {
	MessageID     string
	ReceiptHandle string
	Body          string

	// ReceiveCount is the number of deliveries so far, this one included.
	ReceiveCount int

	// SentAt is when the producer enqueued the request. Zero when unknown.
	SentAt time.Time
}

// ScoreQueue is the asynchronous score intake.
type ScoreQueue interface {
	// Receive waits for up to limit requests. An empty slice means none arrived.
	Receive(ctx context.Context, limit int) ([]QueuedScoreRequest, error)

	// Ack removes a handled request from the queue.
	Ack(ctx context.Context, receiptHandle string) error

	// Retry returns the request to the queue, visible again after delay.
	Retry(ctx context.Context, receiptHandle string, delay time.Duration) error

	// Close releases resources.
	Close() error
}
