// Package sns implements the EventSink interface using AWS SNS.
//
// Every committed prediction is published as a JSON message to one topic.
// Subscribers can filter on the message attributes:
//   - eventType: "prediction"
//   - decision: "approve", "review" or "reject"
//   - modelVersion: version of the model that produced the score
//   - fraudProbability: the score, as an SNS Number
//
// On a FIFO topic (ARN ending in ".fifo") messages are grouped by
// transaction id, so every subscriber sees one transaction's predictions in
// scoring order.
package sns

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/aws/aws-sdk-go-v2/service/sns/types"

	"github.com/archon-research/fraud-scoring/internal/pkg/retry"
	"github.com/archon-research/fraud-scoring/internal/ports/outbound"
)

var _ outbound.EventSink = (*EventSink)(nil)

// ErrClosed is returned by Publish after Close.
var ErrClosed = errors.New("event sink is closed")

// SNSPublisher defines the subset of SNS client methods used by EventSink.
type SNSPublisher interface {
	Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

// Config holds configuration for the SNS event sink.
type Config struct {
	// TopicARN is the topic prediction events are published to.
	TopicARN string

	// MaxRetries is the maximum number of retry attempts for transient failures.
	MaxRetries int

	// InitialBackoff is the initial delay before the first retry.
	InitialBackoff time.Duration

	// MaxBackoff is the maximum delay between retries.
	MaxBackoff time.Duration

	Logger *slog.Logger
}

// ConfigDefaults returns a config with default values.
func ConfigDefaults() Config {
	return Config{
		MaxRetries:     3,
		InitialBackoff: 100 * time.Millisecond,
		MaxBackoff:     2 * time.Second,
		Logger:         slog.Default(),
	}
}

// EventSink publishes events to AWS SNS.
type EventSink struct {
	client SNSPublisher
	config Config
	fifo   bool
	logger *slog.Logger
	closed atomic.Bool
}

// NewEventSink creates a new SNS event sink.
func NewEventSink(client SNSPublisher, config Config) (*EventSink, error) {
	if client == nil {
		return nil, errors.New("sns client is required")
	}
	if config.TopicARN == "" {
		return nil, errors.New("topic ARN is required")
	}

	defaults := ConfigDefaults()
	if config.MaxRetries == 0 {
		config.MaxRetries = defaults.MaxRetries
	}
	if config.InitialBackoff == 0 {
		config.InitialBackoff = defaults.InitialBackoff
	}
	if config.MaxBackoff == 0 {
		config.MaxBackoff = defaults.MaxBackoff
	}
	if config.Logger == nil {
		config.Logger = defaults.Logger
	}

	return &EventSink{
		client: client,
		config: config,
		fifo:   strings.HasSuffix(config.TopicARN, ".fifo"),
		logger: config.Logger.With("component", "sns-eventsink"),
	}, nil
}

// Publish publishes an event to SNS, retrying transient failures.
func (s *EventSink) Publish(ctx context.Context, event outbound.Event) error {
	if s.closed.Load() {
		return ErrClosed
	}

	message, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	input := &sns.PublishInput{
		TopicArn:          aws.String(s.config.TopicARN),
		Message:           aws.String(string(message)),
		MessageAttributes: attributes(event),
	}
	if s.fifo {
		input.MessageGroupId = aws.String(event.GetTransactionID())
		input.MessageDeduplicationId = aws.String(deduplicationID(event))
	}

	cfg := retry.Config{
		MaxRetries:     s.config.MaxRetries,
		InitialBackoff: s.config.InitialBackoff,
		MaxBackoff:     s.config.MaxBackoff,
		Jitter:         true,
	}
	onRetry := func(attempt int, err error, wait time.Duration) {
		s.logger.Warn("publish failed, retrying",
			"attempt", attempt,
			"maxRetries", s.config.MaxRetries,
			"backoff", wait,
			"eventType", event.EventType(),
			"transactionID", event.GetTransactionID(),
			"error", err)
	}

	err = retry.Do(ctx, cfg, isRetryableError, onRetry, func(ctx context.Context) error {
		_, err := s.client.Publish(ctx, input)
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to publish to SNS: %w", err)
	}
	return nil
}

func attributes(event outbound.Event) map[string]types.MessageAttributeValue {
	attrs := map[string]types.MessageAttributeValue{
		"eventType": {
			DataType:    aws.String("String"),
			StringValue: aws.String(string(event.EventType())),
		},
	}
	if p, ok := event.(outbound.PredictionEvent); ok {
		attrs["decision"] = types.MessageAttributeValue{
			DataType:    aws.String("String"),
			StringValue: aws.String(p.Decision),
		}
		attrs["fraudProbability"] = types.MessageAttributeValue{
			DataType:    aws.String("Number"),
			StringValue: aws.String(strconv.FormatFloat(p.FraudProbability, 'f', -1, 64)),
		}
		if p.ModelVersion != "" {
			attrs["modelVersion"] = types.MessageAttributeValue{
				DataType:    aws.String("String"),
				StringValue: aws.String(p.ModelVersion),
			}
		}
	}
	return attrs
}

// deduplicationID identifies one prediction. SNS FIFO ids are limited to
// 128 characters.
func deduplicationID(event outbound.Event) string {
	id := event.GetTransactionID()
	if p, ok := event.(outbound.PredictionEvent); ok {
		id += ":" + strconv.FormatInt(p.ScoredAt.UnixNano(), 10)
	}
	if len(id) > 128 {
		id = id[len(id)-128:]
	}
	return id
}

// isRetryableError determines if an error should trigger a retry.
func isRetryableError(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var notFound *types.NotFoundException
	if errors.As(err, &notFound) {
		return false
	}
	var invalid *types.InvalidParameterException
	if errors.As(err, &invalid) {
		return false
	}
	var authz *types.AuthorizationErrorException
	if errors.As(err, &authz) {
		return false
	}

	// Throttling, internal errors and network failures are worth another attempt.
	return true
}

// Close marks the sink as closed and prevents further publishing.
func (s *EventSink) Close() error {
	if s.closed.CompareAndSwap(false, true) {
		s.logger.Info("SNS event sink closed")
	}
	return nil
}
