package repository

import (
	"context"

	"github.com/glivermore2025/getsovrn-site/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// PurchaseRepository persists purchase and sale records. The Record* methods
// are insert-if-absent against the session unique indexes and report whether
// a new row was written.
type PurchaseRepository interface {
	RecordListingPurchase(ctx context.Context, purchase *models.Purchase, entry *models.LedgerEntry) (bool, error)
	RecordDatasetSale(ctx context.Context, sale *models.DatasetSale) (bool, error)
	FindPurchaseBySession(ctx context.Context, sessionID string) (*models.Purchase, error)
	FindDatasetSaleBySession(ctx context.Context, sessionID string, datasetID uuid.UUID) (*models.DatasetSale, error)
	GetDatasetSale(ctx context.Context, id uuid.UUID) (*models.DatasetSale, error)
	HasPurchased(ctx context.Context, userID string, listingID uuid.UUID) (bool, error)
	ListPurchasedListings(ctx context.Context, userID string) ([]models.PurchasedListing, error)
	ListDatasetSales(ctx context.Context, buyerID string) ([]models.DatasetSale, error)
}

type GormPurchaseRepository struct {
	db *gorm.DB
}

func NewGormPurchaseRepository(db *gorm.DB) PurchaseRepository {
	return &GormPurchaseRepository{db: db}
}

// RecordListingPurchase writes the purchase and its ledger entry in one
// transaction. A conflicting session id leaves both tables untouched.
func (r *GormPurchaseRepository) RecordListingPurchase(ctx context.Context, purchase *models.Purchase, entry *models.LedgerEntry) (bool, error) {
	created := false
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(purchase)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return nil
		}
		if err := tx.Create(entry).Error; err != nil {
			return err
		}
		created = true
		return nil
	})
	if err != nil {
		return false, err
	}
	return created, nil
}

func (r *GormPurchaseRepository) RecordDatasetSale(ctx context.Context, sale *models.DatasetSale) (bool, error) {
	res := r.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(sale)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *GormPurchaseRepository) FindPurchaseBySession(ctx context.Context, sessionID string) (*models.Purchase, error) {
	var purchase models.Purchase
	if err := r.db.WithContext(ctx).Where("session_id = ?", sessionID).First(&purchase).Error; err != nil {
		return nil, err
	}
	return &purchase, nil
}

func (r *GormPurchaseRepository) FindDatasetSaleBySession(ctx context.Context, sessionID string, datasetID uuid.UUID) (*models.DatasetSale, error) {
	var sale models.DatasetSale
	if err := r.db.WithContext(ctx).
		Where("session_id = ? AND dataset_id = ?", sessionID, datasetID).
		First(&sale).Error; err != nil {
		return nil, err
	}
	return &sale, nil
}

func (r *GormPurchaseRepository) GetDatasetSale(ctx context.Context, id uuid.UUID) (*models.DatasetSale, error) {
	var sale models.DatasetSale
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&sale).Error; err != nil {
		return nil, err
	}
	return &sale, nil
}

func (r *GormPurchaseRepository) HasPurchased(ctx context.Context, userID string, listingID uuid.UUID) (bool, error) {
	var count int64
	if err := r.db.WithContext(ctx).
		Model(&models.Purchase{}).
		Where("user_id = ? AND listing_id = ?", userID, listingID).
		Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

// ListPurchasedListings joins each purchase to its listing, newest first.
// Purchases whose listing no longer exists are omitted.
func (r *GormPurchaseRepository) ListPurchasedListings(ctx context.Context, userID string) ([]models.PurchasedListing, error) {
	var out []models.PurchasedListing
	if err := r.db.WithContext(ctx).
		Table("purchases").
		Select("purchases.id AS purchase_id, purchases.listing_id, listings.title, purchases.session_id, purchases.created_at").
		Joins("JOIN listings ON listings.id = purchases.listing_id").
		Where("purchases.user_id = ?", userID).
		Order("purchases.created_at DESC").
		Scan(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *GormPurchaseRepository) ListDatasetSales(ctx context.Context, buyerID string) ([]models.DatasetSale, error) {
	var sales []models.DatasetSale
	if err := r.db.WithContext(ctx).
		Where("buyer_id = ?", buyerID).
		Order("created_at DESC").
		Find(&sales).Error; err != nil {
		return nil, err
	}
	return sales, nil
}
