package services

import (
	"context"
	"encoding/json"
	"time"

	"github.com/glivermore2025/getsovrn-site/models"
	aws_pkg "github.com/glivermore2025/getsovrn-site/pkg/aws"
	"go.uber.org/zap"
)

const (
	EventPurchaseRecorded    = "purchase_recorded"
	EventDatasetSaleRecorded = "dataset_sale_recorded"
	EventRevenueAllocated    = "revenue_allocated"
)

// MetricsRecorder is the subset of the CloudWatch client used by services.
type MetricsRecorder interface {
	RecordCount(ctx context.Context, metricName string, dimensions map[string]string) error
}

// eventPublisher sends marketplace events to SNS. Failures are logged and
// never returned: the database row is the source of truth.
type eventPublisher struct {
	sns      aws_pkg.SNSPublisher
	topicArn string
	logger   *zap.Logger
}

func newEventPublisher(sns aws_pkg.SNSPublisher, topicArn string, logger *zap.Logger) *eventPublisher {
	return &eventPublisher{sns: sns, topicArn: topicArn, logger: logger}
}

func (p *eventPublisher) publish(ctx context.Context, event models.MarketplaceEvent) {
	if p == nil || p.sns == nil || p.topicArn == "" {
		return
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	body, err := json.Marshal(event)
	if err != nil {
		p.logger.Error("Failed to marshal marketplace event", zap.String("type", event.Type), zap.Error(err))
		return
	}
	if err := p.sns.Publish(ctx, p.topicArn, body); err != nil {
		p.logger.Error("Failed to publish marketplace event",
			zap.String("type", event.Type),
			zap.String("record_id", event.RecordID),
			zap.Error(err),
		)
		return
	}
	p.logger.Debug("Published marketplace event", zap.String("type", event.Type), zap.String("record_id", event.RecordID))
}

func recordCount(ctx context.Context, m MetricsRecorder, name string, dims map[string]string) {
	if m == nil {
		return
	}
	_ = m.RecordCount(ctx, name, dims)
}
