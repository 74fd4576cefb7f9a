// Package score_worker consumes score requests from the intake queue and runs
// them through the scoring use case.
//
// Messages carry the same JSON payload as POST /score. A message is acked
// once it has been scored, or when it can never be scored (malformed JSON,
// missing fields, failed validation). A scoring failure hands the message
// back to the queue with a delay that grows with its receive count; the
// queue's redrive policy decides when to give up on it.
package score_worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/archon-research/fraud-scoring/internal/domain/entity"
	"github.com/archon-research/fraud-scoring/internal/pkg/retry"
	"github.com/archon-research/fraud-scoring/internal/ports/inbound"
	"github.com/archon-research/fraud-scoring/internal/ports/outbound"
)

// Config holds configuration for the score worker.
type Config struct {
	MaxMessages  int
	PollInterval time.Duration

	// Redelivery spaces out attempts at a request whose scoring failed.
	// Only InitialBackoff, MaxBackoff and BackoffFactor are used.
	// Default: 5s doubling up to 5m.
	Redelivery retry.Config

	Logger *slog.Logger
}

func configDefaults() Config {
	return Config{
		MaxMessages:  10,
		PollInterval: 100 * time.Millisecond,
		Redelivery: retry.Config{
			InitialBackoff: 5 * time.Second,
			MaxBackoff:     5 * time.Minute,
			BackoffFactor:  2,
		},
		Logger: slog.Default(),
	}
}

// Service polls the queue and scores each message.
type Service struct {
	config  Config
	queue   outbound.ScoreQueue
	scoring inbound.ScoringService

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
	logger *slog.Logger
}

// NewService creates a new score worker.
func NewService(config Config, queue outbound.ScoreQueue, scoring inbound.ScoringService) (*Service, error) {
	if queue == nil {
		return nil, fmt.Errorf("queue cannot be nil")
	}
	if scoring == nil {
		return nil, fmt.Errorf("scoring service cannot be nil")
	}

	defaults := configDefaults()
	if config.MaxMessages == 0 {
		config.MaxMessages = defaults.MaxMessages
	}
	if config.PollInterval == 0 {
		config.PollInterval = defaults.PollInterval
	}
	if config.Redelivery.InitialBackoff == 0 {
		config.Redelivery = defaults.Redelivery
	}
	if config.Logger == nil {
		config.Logger = defaults.Logger
	}

	return &Service{
		config:  config,
		queue:   queue,
		scoring: scoring,
		logger:  config.Logger.With("component", "score-worker"),
	}, nil
}

// Start begins processing queued score requests in the background.
func (s *Service) Start(ctx context.Context) error {
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})

	go s.processLoop()

	s.logger.Info("score worker started", "maxMessages", s.config.MaxMessages)
	return nil
}

// Stop stops the service and waits for the in-flight batch to finish.
func (s *Service) Stop() error {
	if s.cancel != nil {
		s.cancel()
		<-s.done
	}
	s.logger.Info("score worker stopped")
	return nil
}

func (s *Service) processLoop() {
	defer close(s.done)

	ticker := time.NewTicker(s.config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			if err := s.processMessages(s.ctx); err != nil && s.ctx.Err() == nil {
				s.logger.Error("error processing messages", "error", err)
			}
		}
	}
}

func (s *Service) processMessages(ctx context.Context) error {
	requests, err := s.queue.Receive(ctx, s.config.MaxMessages)
	if err != nil {
		return fmt.Errorf("receiving score requests: %w", err)
	}

	var errs []error
	for _, req := range requests {
		err := s.processRequest(ctx, req)
		switch {
		case err == nil:
		case isPermanent(err):
			s.logger.Warn("discarding invalid score request", "messageId", req.MessageID, "error", err)
		default:
			delay := s.config.Redelivery.Backoff(req.ReceiveCount)
			s.logger.Error("failed to score request, returning it to the queue",
				"messageId", req.MessageID,
				"receiveCount", req.ReceiveCount,
				"retryIn", delay,
				"error", err)
			if retryErr := s.queue.Retry(ctx, req.ReceiptHandle, delay); retryErr != nil {
				s.logger.Warn("failed to delay redelivery", "messageId", req.MessageID, "error", retryErr)
			}
			errs = append(errs, err)
			continue
		}

		if ackErr := s.queue.Ack(ctx, req.ReceiptHandle); ackErr != nil {
			s.logger.Error("failed to ack score request", "messageId", req.MessageID, "error", ackErr)
		}
	}
	return errors.Join(errs...)
}

func (s *Service) processRequest(ctx context.Context, req outbound.QueuedScoreRequest) error {
	fields, err := decodeMessage(req.Body)
	if err != nil {
		return err
	}

	result, err := s.scoring.Score(ctx, fields)
	if err != nil {
		return err
	}

	attrs := []any{
		"transactionId", result.TransactionID,
		"decision", result.Decision,
		"probability", result.FraudProbability,
	}
	if !req.SentAt.IsZero() {
		attrs = append(attrs, "queueLatency", time.Since(req.SentAt))
	}
	s.logger.Info("scored queued transaction", attrs...)
	return nil
}

// isPermanent reports whether redelivering the message can never succeed.
func isPermanent(err error) bool {
	return errors.Is(err, entity.ErrValidation) && !errors.Is(err, entity.ErrScoringFailed)
}

// scoreMessage is the queued request payload. Pointer fields distinguish a
// missing field from its zero value.
type scoreMessage struct {
	TransactionID      string           `json:"transaction_id"`
	Amount             *decimal.Decimal `json:"amount"`
	TransactionHour    *int             `json:"transaction_hour"`
	MerchantCategory   string           `json:"merchant_category"`
	ForeignTransaction *bool            `json:"foreign_transaction"`
	LocationMismatch   *bool            `json:"location_mismatch"`
	DeviceTrustScore   *int             `json:"device_trust_score"`
	VelocityLast24h    *int             `json:"velocity_last_24h"`
	CardholderAge      *int             `json:"cardholder_age"`
}

// decodeMessage parses a message body. Every failure wraps entity.ErrValidation
// since retrying the same body can never succeed.
func decodeMessage(body string) (entity.TransactionFields, error) {
	var m scoreMessage
	if err := json.Unmarshal([]byte(body), &m); err != nil {
		return entity.TransactionFields{}, fmt.Errorf("%w: parsing score message: %w", entity.ErrValidation, err)
	}

	missing := func(name string) error {
		return fmt.Errorf("%w: %s is required", entity.ErrValidation, name)
	}
	switch {
	case m.Amount == nil:
		return entity.TransactionFields{}, missing("amount")
	case m.TransactionHour == nil:
		return entity.TransactionFields{}, missing("transaction_hour")
	case m.ForeignTransaction == nil:
		return entity.TransactionFields{}, missing("foreign_transaction")
	case m.LocationMismatch == nil:
		return entity.TransactionFields{}, missing("location_mismatch")
	case m.DeviceTrustScore == nil:
		return entity.TransactionFields{}, missing("device_trust_score")
	case m.VelocityLast24h == nil:
		return entity.TransactionFields{}, missing("velocity_last_24h")
	case m.CardholderAge == nil:
		return entity.TransactionFields{}, missing("cardholder_age")
	}

	fields := entity.TransactionFields{
		TransactionID:      m.TransactionID,
		Amount:             *m.Amount,
		TransactionHour:    *m.TransactionHour,
		MerchantCategory:   entity.MerchantCategory(m.MerchantCategory),
		ForeignTransaction: *m.ForeignTransaction,
		LocationMismatch:   *m.LocationMismatch,
		DeviceTrustScore:   *m.DeviceTrustScore,
		VelocityLast24h:    *m.VelocityLast24h,
		CardholderAge:      *m.CardholderAge,
	}
	if err := fields.Validate(); err != nil {
		return entity.TransactionFields{}, err
	}
	return fields, nil
}
