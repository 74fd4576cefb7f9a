// Package sqs implements the score intake queue on Amazon SQS.
package sqs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"

	"github.com/archon-research/fraud-scoring/internal/ports/outbound"
)

const (
	// maxBatch is the SQS limit for messages per receive call.
	maxBatch = 10

	// maxVisibility is the SQS limit for a visibility timeout.
	maxVisibility = 12 * time.Hour
)

type sqsAPI interface {
	ReceiveMessage(ctx context.Context, params *sqs.ReceiveMessageInput, optFns ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error)
	DeleteMessage(ctx context.Context, params *sqs.DeleteMessageInput, optFns ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error)
	ChangeMessageVisibility(ctx context.Context, params *sqs.ChangeMessageVisibilityInput, optFns ...func(*sqs.Options)) (*sqs.ChangeMessageVisibilityOutput, error)
}

var _ outbound.ScoreQueue = (*Consumer)(nil)

// Config holds SQS consumer configuration.
type Config struct {
	// QueueURL is the URL of the score request queue.
	QueueURL string

	// WaitTimeSeconds is the long-polling wait, at most 20 seconds.
	// Default: 20
	WaitTimeSeconds int32

	// VisibilityTimeout hides a received message from other consumers.
	// Zero keeps the queue's setting.
	VisibilityTimeout time.Duration
}

// ConfigDefaults returns defaults for the SQS consumer.
func ConfigDefaults() Config {
	return Config{
		WaitTimeSeconds: 20,
	}
}

// Consumer receives score requests from SQS.
type Consumer struct {
	client sqsAPI
	config Config
	logger *slog.Logger
}

// NewConsumer creates a Consumer. optFns are passed to the SQS client.
func NewConsumer(cfg aws.Config, sqsConfig Config, logger *slog.Logger, optFns ...func(*sqs.Options)) (*Consumer, error) {
	return newConsumer(sqs.NewFromConfig(cfg, optFns...), sqsConfig, logger)
}

func newConsumer(client sqsAPI, sqsConfig Config, logger *slog.Logger) (*Consumer, error) {
	if client == nil {
		return nil, errors.New("sqs client is required")
	}
	if sqsConfig.QueueURL == "" {
		return nil, errors.New("queue URL is required")
	}
	if sqsConfig.WaitTimeSeconds < 0 || sqsConfig.WaitTimeSeconds > 20 {
		return nil, fmt.Errorf("wait time must be between 0 and 20 seconds, got %d", sqsConfig.WaitTimeSeconds)
	}
	if sqsConfig.VisibilityTimeout < 0 || sqsConfig.VisibilityTimeout > maxVisibility {
		return nil, fmt.Errorf("visibility timeout must be between 0 and %v, got %v", maxVisibility, sqsConfig.VisibilityTimeout)
	}
	if sqsConfig.WaitTimeSeconds == 0 {
		sqsConfig.WaitTimeSeconds = ConfigDefaults().WaitTimeSeconds
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Consumer{
		client: client,
		config: sqsConfig,
		logger: logger.With("component", "sqs-consumer", "queue", sqsConfig.QueueURL),
	}, nil
}

// Receive implements outbound.ScoreQueue. limit is clamped to [1, 10].
func (c *Consumer) Receive(ctx context.Context, limit int) ([]outbound.QueuedScoreRequest, error) {
	input := &sqs.ReceiveMessageInput{
		QueueUrl:            aws.String(c.config.QueueURL),
		MaxNumberOfMessages: int32(min(max(limit, 1), maxBatch)),
		WaitTimeSeconds:     c.config.WaitTimeSeconds,
		MessageSystemAttributeNames: []types.MessageSystemAttributeName{
			types.MessageSystemAttributeNameApproximateReceiveCount,
			types.MessageSystemAttributeNameSentTimestamp,
		},
	}
	if c.config.VisibilityTimeout > 0 {
		input.VisibilityTimeout = seconds(c.config.VisibilityTimeout)
	}

	out, err := c.client.ReceiveMessage(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("receiving score requests: %w", err)
	}

	requests := make([]outbound.QueuedScoreRequest, 0, len(out.Messages))
	for _, msg := range out.Messages {
		if msg.MessageId == nil || msg.ReceiptHandle == nil || msg.Body == nil {
			c.logger.Warn("skipping incomplete message", "messageId", aws.ToString(msg.MessageId))
			continue
		}
		requests = append(requests, outbound.QueuedScoreRequest{
			MessageID:     *msg.MessageId,
			ReceiptHandle: *msg.ReceiptHandle,
			Body:          *msg.Body,
			ReceiveCount:  receiveCount(msg.Attributes),
			SentAt:        sentAt(msg.Attributes),
		})
	}
	return requests, nil
}

// Ack implements outbound.ScoreQueue.
func (c *Consumer) Ack(ctx context.Context, receiptHandle string) error {
	_, err := c.client.DeleteMessage(ctx, &sqs.DeleteMessageInput{
		QueueUrl:      aws.String(c.config.QueueURL),
		ReceiptHandle: aws.String(receiptHandle),
	})
	if err != nil {
		return fmt.Errorf("deleting score request: %w", err)
	}
	return nil
}

// Retry implements outbound.ScoreQueue by shortening or extending the
// message's visibility timeout to delay, capped at the SQS maximum.
func (c *Consumer) Retry(ctx context.Context, receiptHandle string, delay time.Duration) error {
	_, err := c.client.ChangeMessageVisibility(ctx, &sqs.ChangeMessageVisibilityInput{
		QueueUrl:          aws.String(c.config.QueueURL),
		ReceiptHandle:     aws.String(receiptHandle),
		VisibilityTimeout: seconds(min(max(delay, 0), maxVisibility)),
	})
	if err != nil {
		return fmt.Errorf("changing visibility of score request: %w", err)
	}
	return nil
}

// Close is a no-op; the SQS client holds no connections of its own.
func (c *Consumer) Close() error {
	return nil
}

func seconds(d time.Duration) int32 {
	return int32((d + time.Second - 1) / time.Second)
}

// receiveCount defaults to 1 when SQS omits the attribute.
func receiveCount(attrs map[string]string) int {
	n, err := strconv.Atoi(attrs[string(types.MessageSystemAttributeNameApproximateReceiveCount)])
	if err != nil || n < 1 {
		return 1
	}
	return n
}

func sentAt(attrs map[string]string) time.Time {
	ms, err := strconv.ParseInt(attrs[string(types.MessageSystemAttributeNameSentTimestamp)], 10, 64)
	if err != nil {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}
