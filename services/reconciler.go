package services

import (
	"context"
	"time"

	"github.com/glivermore2025/getsovrn-site/models"
	aws_pkg "github.com/glivermore2025/getsovrn-site/pkg/aws"
	"github.com/glivermore2025/getsovrn-site/repository"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type ReconcileOutcome string

const (
	OutcomeRecorded  ReconcileOutcome = "recorded"
	OutcomeDuplicate ReconcileOutcome = "duplicate"
	OutcomeIgnored   ReconcileOutcome = "ignored"
)

// ReconcileResult is returned for every acknowledged event. Allocation is set
// only for dataset purchases whose allocation ran without error.
type ReconcileResult struct {
	Outcome    ReconcileOutcome    `json:"outcome"`
	EventID    string              `json:"event_id,omitempty"`
	EventType  string              `json:"event_type,omitempty"`
	SessionID  string              `json:"session_id,omitempty"`
	Type       models.PurchaseType `json:"type,omitempty"`
	RecordID   uuid.UUID           `json:"record_id,omitempty"`
	Allocation *AllocationResult   `json:"allocation,omitempty"`
}

// PurchaseReconciler turns a signed payment notification into exactly one
// durable purchase or sale record.
//
// A nil error means the event may be acknowledged. Errors are one of
// *AuthenticationError, *MalformedEventError or *PersistenceError; use
// StatusCode to map them to a response.
type PurchaseReconciler interface {
	Reconcile(ctx context.Context, payload []byte, signature string) (*ReconcileResult, error)
}

type purchaseReconcilerImpl struct {
	verifier  EventVerifier
	repo      repository.PurchaseRepository
	allocator RevenueAllocator
	retry     AllocationRetryQueue
	events    *eventPublisher
	metrics   MetricsRecorder
	logger    *zap.Logger
}

// NewPurchaseReconciler wires the reconciler. retry may be nil, in which case
// failed allocations are only logged and recovered on redelivery.
func NewPurchaseReconciler(
	verifier EventVerifier,
	repo repository.PurchaseRepository,
	allocator RevenueAllocator,
	retry AllocationRetryQueue,
	snsClient aws_pkg.SNSPublisher,
	snsTopicArn string,
	metrics MetricsRecorder,
	logger *zap.Logger,
) PurchaseReconciler {
	return &purchaseReconcilerImpl{
		verifier:  verifier,
		repo:      repo,
		allocator: allocator,
		retry:     retry,
		events:    newEventPublisher(snsClient, snsTopicArn, logger),
		metrics:   metrics,
		logger:    logger,
	}
}

func (r *purchaseReconcilerImpl) Reconcile(ctx context.Context, payload []byte, signature string) (*ReconcileResult, error) {
	evt, err := r.verifier.VerifyCheckoutEvent(payload, signature)
	if err != nil {
		r.logger.Warn("Rejected webhook", zap.Error(err))
		recordCount(ctx, r.metrics, aws_pkg.MetricWebhookRejected, map[string]string{"Reason": "authentication"})
		return nil, err
	}

	result := &ReconcileResult{EventID: evt.EventID, EventType: evt.Type, SessionID: evt.SessionID}

	switch evt.Type {
	case models.EventCheckoutCompleted:
		if evt.PaymentStatus == "unpaid" {
			r.logger.Info("Checkout completed with payment pending; waiting for async result",
				zap.String("event_id", evt.EventID),
				zap.String("session_id", evt.SessionID),
			)
			result.Outcome = OutcomeIgnored
			return result, nil
		}
	case models.EventCheckoutAsyncPaymentSucceeded:
	default:
		r.logger.Debug("Ignoring webhook event", zap.String("event_id", evt.EventID), zap.String("type", evt.Type))
		result.Outcome = OutcomeIgnored
		return result, nil
	}

	plan, err := PlanCheckout(evt)
	if err != nil {
		r.logger.Warn("Malformed checkout event",
			zap.String("event_id", evt.EventID),
			zap.String("session_id", evt.SessionID),
			zap.Error(err),
		)
		recordCount(ctx, r.metrics, aws_pkg.MetricWebhookRejected, map[string]string{"Reason": "malformed"})
		return nil, err
	}
	result.Type = plan.Type

	if plan.Type == models.PurchaseTypeDataset {
		return r.recordDatasetSale(ctx, plan.Sale, result)
	}
	return r.recordListingPurchase(ctx, plan, result)
}

func (r *purchaseReconcilerImpl) recordListingPurchase(ctx context.Context, plan *CheckoutPlan, result *ReconcileResult) (*ReconcileResult, error) {
	created, err := r.repo.RecordListingPurchase(ctx, plan.Purchase, plan.Ledger)
	if err != nil {
		r.logger.Error("Failed to record listing purchase",
			zap.String("session_id", plan.Purchase.SessionID),
			zap.Error(err),
		)
		return nil, &PersistenceError{Op: "record listing purchase", Err: err}
	}

	if !created {
		result.Outcome = OutcomeDuplicate
		if existing, err := r.repo.FindPurchaseBySession(ctx, plan.Purchase.SessionID); err == nil {
			result.RecordID = existing.ID
		}
		r.logger.Info("Duplicate listing purchase delivery", zap.String("session_id", plan.Purchase.SessionID))
		recordCount(ctx, r.metrics, aws_pkg.MetricWebhookDuplicates, map[string]string{"Type": string(models.PurchaseTypeListing)})
		return result, nil
	}

	result.Outcome = OutcomeRecorded
	result.RecordID = plan.Purchase.ID
	r.logger.Info("Listing purchase recorded",
		zap.String("session_id", plan.Purchase.SessionID),
		zap.String("listing_id", plan.Purchase.ListingID.String()),
		zap.String("user_id", plan.Purchase.UserID),
		zap.Int64("amount_cents", plan.Ledger.AmountCents),
	)
	recordCount(ctx, r.metrics, aws_pkg.MetricPurchasesRecorded, nil)
	r.events.publish(ctx, models.MarketplaceEvent{
		Type:        EventPurchaseRecorded,
		SessionID:   plan.Purchase.SessionID,
		RecordID:    plan.Purchase.ID.String(),
		ItemID:      plan.Purchase.ListingID.String(),
		UserID:      plan.Purchase.UserID,
		AmountCents: plan.Ledger.AmountCents,
		Currency:    plan.Ledger.Currency,
		Quantity:    1,
	})
	return result, nil
}

func (r *purchaseReconcilerImpl) recordDatasetSale(ctx context.Context, sale *models.DatasetSale, result *ReconcileResult) (*ReconcileResult, error) {
	created, err := r.repo.RecordDatasetSale(ctx, sale)
	if err != nil {
		r.logger.Error("Failed to record dataset sale",
			zap.String("session_id", sale.SessionID),
			zap.Error(err),
		)
		return nil, &PersistenceError{Op: "record dataset sale", Err: err}
	}

	if !created {
		result.Outcome = OutcomeDuplicate
		recordCount(ctx, r.metrics, aws_pkg.MetricWebhookDuplicates, map[string]string{"Type": string(models.PurchaseTypeDataset)})
		existing, err := r.repo.FindDatasetSaleBySession(ctx, sale.SessionID, sale.DatasetID)
		if err != nil {
			// The sale is durable; allocation will be retried on the next delivery.
			r.logger.Warn("Duplicate dataset sale could not be reloaded",
				zap.String("session_id", sale.SessionID),
				zap.Error(err),
			)
			return result, nil
		}
		r.logger.Info("Duplicate dataset sale delivery", zap.String("session_id", sale.SessionID))
		result.RecordID = existing.ID
		result.Allocation = r.allocate(ctx, existing.ID)
		return result, nil
	}

	result.Outcome = OutcomeRecorded
	result.RecordID = sale.ID
	r.logger.Info("Dataset sale recorded",
		zap.String("session_id", sale.SessionID),
		zap.String("dataset_id", sale.DatasetID.String()),
		zap.String("buyer_id", sale.BuyerID),
		zap.Int("quantity", sale.Quantity),
		zap.Int64("gross_cents", sale.GrossCents),
	)
	recordCount(ctx, r.metrics, aws_pkg.MetricDatasetSalesRecorded, nil)
	r.events.publish(ctx, models.MarketplaceEvent{
		Type:        EventDatasetSaleRecorded,
		SessionID:   sale.SessionID,
		RecordID:    sale.ID.String(),
		ItemID:      sale.DatasetID.String(),
		UserID:      sale.BuyerID,
		AmountCents: sale.GrossCents,
		Currency:    sale.Currency,
		Quantity:    sale.Quantity,
	})

	result.Allocation = r.allocate(ctx, sale.ID)
	return result, nil
}

// retryEnqueueTimeout bounds the retry enqueue, which runs detached from the
// request so a timed-out request still queues its sale.
const retryEnqueueTimeout = 5 * time.Second

// allocate never fails the caller. A failed allocation is logged, counted
// and queued for retry.
func (r *purchaseReconcilerImpl) allocate(ctx context.Context, saleID uuid.UUID) *AllocationResult {
	if r.allocator == nil {
		return nil
	}
	res, err := r.allocator.Allocate(ctx, saleID)
	if err == nil {
		return res
	}

	r.logger.Error("Revenue allocation failed", zap.String("sale_id", saleID.String()), zap.Error(err))
	qctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), retryEnqueueTimeout)
	defer cancel()
	recordCount(qctx, r.metrics, aws_pkg.MetricAllocationFailures, nil)
	if r.retry != nil {
		if qErr := r.retry.Enqueue(qctx, saleID, err.Error()); qErr != nil {
			r.logger.Error("Failed to enqueue allocation retry", zap.String("sale_id", saleID.String()), zap.Error(qErr))
		}
	}
	return nil
}
