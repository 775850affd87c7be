package repository

import (
	"context"
	"time"

	"github.com/glivermore2025/getsovrn-site/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// AllocationRepository reads contributor pools and writes allocation batches.
type AllocationRepository interface {
	ListActiveContributors(ctx context.Context, datasetID uuid.UUID) ([]models.DatasetContribution, error)
	FindBatchBySale(ctx context.Context, saleID uuid.UUID) (*models.AllocationBatch, error)
	// SaveAllocation inserts the batch, its shares and the balance credits
	// atomically. It returns false without writing anything when the sale
	// already has a batch.
	SaveAllocation(ctx context.Context, batch *models.AllocationBatch, shares []models.RevenueShare) (bool, error)
	ListBalances(ctx context.Context, userID string) ([]models.UserBalance, error)
	ListRecentShares(ctx context.Context, userID string, limit int) ([]models.RevenueShare, error)
}

type GormAllocationRepository struct {
	db *gorm.DB
}

func NewGormAllocationRepository(db *gorm.DB) AllocationRepository {
	return &GormAllocationRepository{db: db}
}

// ListActiveContributors returns active members with a positive weight,
// ordered by user id.
func (r *GormAllocationRepository) ListActiveContributors(ctx context.Context, datasetID uuid.UUID) ([]models.DatasetContribution, error) {
	var contributors []models.DatasetContribution
	if err := r.db.WithContext(ctx).
		Where("dataset_id = ? AND is_active = ? AND weight > 0", datasetID, true).
		Order("user_id ASC").
		Find(&contributors).Error; err != nil {
		return nil, err
	}
	return contributors, nil
}

func (r *GormAllocationRepository) FindBatchBySale(ctx context.Context, saleID uuid.UUID) (*models.AllocationBatch, error) {
	var batch models.AllocationBatch
	if err := r.db.WithContext(ctx).Where("sale_id = ?", saleID).First(&batch).Error; err != nil {
		return nil, err
	}
	return &batch, nil
}

func (r *GormAllocationRepository) SaveAllocation(ctx context.Context, batch *models.AllocationBatch, shares []models.RevenueShare) (bool, error) {
	created := false
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(batch)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return nil
		}
		if len(shares) == 0 {
			created = true
			return nil
		}

		for i := range shares {
			shares[i].BatchID = batch.ID
			shares[i].SaleID = batch.SaleID
		}
		if err := tx.Create(&shares).Error; err != nil {
			return err
		}

		now := time.Now().UTC()
		for _, share := range shares {
			balance := models.UserBalance{
				UserID:       share.UserID,
				Currency:     share.Currency,
				BalanceCents: share.ShareCents,
				UpdatedAt:    now,
			}
			if err := tx.Clauses(clause.OnConflict{
				Columns: []clause.Column{{Name: "user_id"}, {Name: "currency"}},
				DoUpdates: clause.Assignments(map[string]interface{}{
					"balance_cents": gorm.Expr("user_balances.balance_cents + ?", share.ShareCents),
					"updated_at":    now,
				}),
			}).Create(&balance).Error; err != nil {
				return err
			}
		}
		created = true
		return nil
	})
	if err != nil {
		return false, err
	}
	return created, nil
}

// ListBalances returns one row per currency the user was credited in.
func (r *GormAllocationRepository) ListBalances(ctx context.Context, userID string) ([]models.UserBalance, error) {
	var balances []models.UserBalance
	if err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("currency ASC").
		Find(&balances).Error; err != nil {
		return nil, err
	}
	return balances, nil
}

func (r *GormAllocationRepository) ListRecentShares(ctx context.Context, userID string, limit int) ([]models.RevenueShare, error) {
	var shares []models.RevenueShare
	if err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Limit(limit).
		Find(&shares).Error; err != nil {
		return nil, err
	}
	return shares, nil
}
