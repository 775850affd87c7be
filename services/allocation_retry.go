package services

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/glivermore2025/getsovrn-site/models"
	aws_pkg "github.com/glivermore2025/getsovrn-site/pkg/aws"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// AllocationRetryQueue records sales whose allocation must be re-run.
type AllocationRetryQueue interface {
	Enqueue(ctx context.Context, saleID uuid.UUID, reason string) error
}

// MessageSender is satisfied by *aws_pkg.SQSQueue.
type MessageSender interface {
	SendMessage(ctx context.Context, body string) error
}

// MessagePoller is satisfied by *aws_pkg.SQSQueue.
type MessagePoller interface {
	StartPolling(ctx context.Context, handler aws_pkg.MessageHandler) error
}

type sqsAllocationRetryQueue struct {
	sender MessageSender
}

func NewAllocationRetryQueue(sender MessageSender) AllocationRetryQueue {
	return &sqsAllocationRetryQueue{sender: sender}
}

func (q *sqsAllocationRetryQueue) Enqueue(ctx context.Context, saleID uuid.UUID, reason string) error {
	body, err := json.Marshal(models.AllocationRetryMessage{SaleID: saleID.String(), Reason: reason})
	if err != nil {
		return err
	}
	return q.sender.SendMessage(ctx, string(body))
}

// AllocationRetryConsumer re-runs allocations taken off the retry queue.
// Messages that fail again stay on the queue and are redelivered after the
// visibility timeout.
type AllocationRetryConsumer struct {
	allocator RevenueAllocator
	logger    *zap.Logger
}

func NewAllocationRetryConsumer(allocator RevenueAllocator, logger *zap.Logger) *AllocationRetryConsumer {
	return &AllocationRetryConsumer{allocator: allocator, logger: logger}
}

// Start blocks until ctx is cancelled.
func (c *AllocationRetryConsumer) Start(ctx context.Context, poller MessagePoller) error {
	return poller.StartPolling(ctx, c.Handle)
}

// Handle processes one queue message. Undecodable messages are dropped
// because redelivery cannot fix them.
func (c *AllocationRetryConsumer) Handle(ctx context.Context, body string) error {
	var msg models.AllocationRetryMessage
	if err := json.Unmarshal([]byte(body), &msg); err != nil {
		c.logger.Error("Dropping undecodable allocation retry message", zap.Error(err))
		return nil
	}
	saleID, err := uuid.Parse(msg.SaleID)
	if err != nil {
		c.logger.Error("Dropping allocation retry message with invalid sale id", zap.String("sale_id", msg.SaleID))
		return nil
	}

	result, err := c.allocator.Allocate(ctx, saleID)
	if err != nil {
		return fmt.Errorf("retry allocation: %w", err)
	}
	c.logger.Info("Allocation retry processed",
		zap.String("sale_id", saleID.String()),
		zap.String("status", string(result.Status)),
	)
	return nil
}
