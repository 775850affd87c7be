package aws

import (
	"context"
	"errors"
	"fmt"

	sdkaws "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"go.uber.org/zap"
)

// MessageHandler processes one SQS message body. A non-nil error leaves the
// message on the queue so it becomes visible again after the visibility timeout.
type MessageHandler func(ctx context.Context, body string) error

// SQSQueue sends to and long-polls a single SQS queue.
type SQSQueue struct {
	client   *sqs.Client
	queueURL string
	logger   *zap.Logger
}

func NewSQSQueue(cfg sdkaws.Config, queueURL string, logger *zap.Logger) *SQSQueue {
	return &SQSQueue{
		client:   sqs.NewFromConfig(cfg),
		queueURL: queueURL,
		logger:   logger,
	}
}

// SendMessage sends a single message to the queue.
func (q *SQSQueue) SendMessage(ctx context.Context, body string) error {
	_, err := q.client.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:    sdkaws.String(q.queueURL),
		MessageBody: sdkaws.String(body),
	})
	if err != nil {
		return fmt.Errorf("failed to send message: %w", err)
	}
	return nil
}

// StartPolling polls the queue until ctx is cancelled.
func (q *SQSQueue) StartPolling(ctx context.Context, handler MessageHandler) error {
	q.logger.Info("Starting SQS polling", zap.String("queue_url", q.queueURL))

	for {
		select {
		case <-ctx.Done():
			q.logger.Info("SQS polling stopped", zap.String("queue_url", q.queueURL))
			return ctx.Err()
		default:
			if err := q.pollOnce(ctx, handler); err != nil && !errors.Is(err, context.Canceled) {
				q.logger.Warn("Error polling SQS", zap.Error(err))
			}
		}
	}
}

func (q *SQSQueue) pollOnce(ctx context.Context, handler MessageHandler) error {
	result, err := q.client.ReceiveMessage(ctx, &sqs.ReceiveMessageInput{
		QueueUrl:            sdkaws.String(q.queueURL),
		MaxNumberOfMessages: 10,
		WaitTimeSeconds:     20,
		VisibilityTimeout:   60,
	})
	if err != nil {
		return fmt.Errorf("failed to receive messages: %w", err)
	}

	for _, msg := range result.Messages {
		if msg.Body == nil {
			continue
		}

		if err := handler(ctx, *msg.Body); err != nil {
			q.logger.Warn("Failed to process SQS message",
				zap.String("message_id", sdkaws.ToString(msg.MessageId)),
				zap.Error(err),
			)
			continue
		}

		if _, err := q.client.DeleteMessage(ctx, &sqs.DeleteMessageInput{
			QueueUrl:      sdkaws.String(q.queueURL),
			ReceiptHandle: msg.ReceiptHandle,
		}); err != nil {
			q.logger.Warn("Failed to delete SQS message", zap.Error(err))
		}
	}

	return nil
}
