package services

import (
	"context"
	"errors"

	"github.com/glivermore2025/getsovrn-site/models"
	aws_pkg "github.com/glivermore2025/getsovrn-site/pkg/aws"
	"github.com/glivermore2025/getsovrn-site/repository"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type AllocationStatus string

const (
	AllocationCompleted      AllocationStatus = "completed"
	AllocationNoContributors AllocationStatus = "no_contributors"
	AllocationAlreadyDone    AllocationStatus = "already_done"
)

// AllocationResult describes what a call to Allocate did. Shares is empty
// unless Status is AllocationCompleted.
type AllocationResult struct {
	SaleID  uuid.UUID        `json:"sale_id"`
	BatchID uuid.UUID        `json:"batch_id,omitempty"`
	Status  AllocationStatus `json:"status"`
	Shares  []Share          `json:"shares,omitempty"`
}

// RevenueAllocator splits a dataset sale among the dataset's active
// contributors. Allocate may be called any number of times for the same sale;
// only the first successful call credits anyone.
type RevenueAllocator interface {
	Allocate(ctx context.Context, saleID uuid.UUID) (*AllocationResult, error)
}

type revenueAllocatorImpl struct {
	sales   repository.PurchaseRepository
	repo    repository.AllocationRepository
	events  *eventPublisher
	metrics MetricsRecorder
	logger  *zap.Logger
}

func NewRevenueAllocator(
	sales repository.PurchaseRepository,
	repo repository.AllocationRepository,
	snsClient aws_pkg.SNSPublisher,
	snsTopicArn string,
	metrics MetricsRecorder,
	logger *zap.Logger,
) RevenueAllocator {
	return &revenueAllocatorImpl{
		sales:   sales,
		repo:    repo,
		events:  newEventPublisher(snsClient, snsTopicArn, logger),
		metrics: metrics,
		logger:  logger,
	}
}

func (a *revenueAllocatorImpl) Allocate(ctx context.Context, saleID uuid.UUID) (*AllocationResult, error) {
	sale, err := a.sales.GetDatasetSale(ctx, saleID)
	if err != nil {
		return nil, &AllocationError{SaleID: saleID, Err: err}
	}

	existing, err := a.repo.FindBatchBySale(ctx, saleID)
	switch {
	case err == nil:
		return &AllocationResult{SaleID: saleID, BatchID: existing.ID, Status: AllocationAlreadyDone}, nil
	case !errors.Is(err, gorm.ErrRecordNotFound):
		return nil, &AllocationError{SaleID: saleID, Err: err}
	}

	contributors, err := a.repo.ListActiveContributors(ctx, sale.DatasetID)
	if err != nil {
		return nil, &AllocationError{SaleID: saleID, Err: err}
	}
	pool := make([]ContributorWeight, len(contributors))
	var totalWeight int64
	for i, c := range contributors {
		pool[i] = ContributorWeight{UserID: c.UserID, Weight: c.Weight}
		totalWeight += c.Weight
	}

	split, err := SplitRevenue(sale.GrossCents, pool)
	if err != nil {
		return nil, &AllocationError{SaleID: saleID, Err: err}
	}

	batch := &models.AllocationBatch{
		SaleID:           sale.ID,
		DatasetID:        sale.DatasetID,
		GrossCents:       sale.GrossCents,
		Currency:         sale.Currency,
		ContributorCount: len(split),
		TotalWeight:      totalWeight,
		Status:           models.AllocationStatusAllocated,
	}
	if len(split) == 0 {
		batch.Status = models.AllocationStatusNoContributors
	}

	rows := make([]models.RevenueShare, len(split))
	for i, s := range split {
		rows[i] = models.RevenueShare{
			UserID:     s.UserID,
			DatasetID:  sale.DatasetID,
			Weight:     s.Weight,
			ShareCents: s.Cents,
			Currency:   sale.Currency,
		}
	}

	created, err := a.repo.SaveAllocation(ctx, batch, rows)
	if err != nil {
		return nil, &AllocationError{SaleID: saleID, Err: err}
	}
	if !created {
		// Lost a race with a concurrent allocation of the same sale.
		return &AllocationResult{SaleID: saleID, Status: AllocationAlreadyDone}, nil
	}

	if len(split) == 0 {
		a.logger.Warn("Dataset sale has no active contributors; nothing allocated",
			zap.String("sale_id", saleID.String()),
			zap.String("dataset_id", sale.DatasetID.String()),
			zap.Int64("gross_cents", sale.GrossCents),
		)
		return &AllocationResult{SaleID: saleID, BatchID: batch.ID, Status: AllocationNoContributors}, nil
	}

	a.logger.Info("Revenue allocated",
		zap.String("sale_id", saleID.String()),
		zap.String("dataset_id", sale.DatasetID.String()),
		zap.Int64("gross_cents", sale.GrossCents),
		zap.Int("contributors", len(split)),
	)
	recordCount(ctx, a.metrics, aws_pkg.MetricAllocationsCompleted, nil)
	a.events.publish(ctx, models.MarketplaceEvent{
		Type:        EventRevenueAllocated,
		SessionID:   sale.SessionID,
		RecordID:    batch.ID.String(),
		ItemID:      sale.DatasetID.String(),
		AmountCents: sale.GrossCents,
		Currency:    sale.Currency,
		Recipients:  len(split),
	})

	return &AllocationResult{SaleID: saleID, BatchID: batch.ID, Status: AllocationCompleted, Shares: split}, nil
}
