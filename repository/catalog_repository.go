package repository

import (
	"context"

	"github.com/glivermore2025/getsovrn-site/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// CatalogRepository reads listings and datasets offered for sale. Datasets
// are provisioned out of band; only listings are created through the API.
type CatalogRepository interface {
	CreateListing(ctx context.Context, listing *models.Listing) error
	FindListing(ctx context.Context, id uuid.UUID) (*models.Listing, error)
	FindDataset(ctx context.Context, id uuid.UUID) (*models.Dataset, error)
	ListListings(ctx context.Context, sellerID string) ([]models.Listing, error)
	ListActiveDatasets(ctx context.Context) ([]models.Dataset, error)
}

type GormCatalogRepository struct {
	db *gorm.DB
}

func NewGormCatalogRepository(db *gorm.DB) CatalogRepository {
	return &GormCatalogRepository{db: db}
}

func (r *GormCatalogRepository) CreateListing(ctx context.Context, listing *models.Listing) error {
	return r.db.WithContext(ctx).Create(listing).Error
}

// FindListing excludes listings flagged by moderation.
func (r *GormCatalogRepository) FindListing(ctx context.Context, id uuid.UUID) (*models.Listing, error) {
	var listing models.Listing
	if err := r.db.WithContext(ctx).
		Where("id = ? AND is_flagged = ?", id, false).
		First(&listing).Error; err != nil {
		return nil, err
	}
	return &listing, nil
}

// FindDataset returns the dataset regardless of is_active; callers decide
// whether an inactive dataset is acceptable.
func (r *GormCatalogRepository) FindDataset(ctx context.Context, id uuid.UUID) (*models.Dataset, error) {
	var dataset models.Dataset
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&dataset).Error; err != nil {
		return nil, err
	}
	return &dataset, nil
}

// ListListings returns unflagged listings, newest first. A non-empty sellerID
// narrows the result to that seller.
func (r *GormCatalogRepository) ListListings(ctx context.Context, sellerID string) ([]models.Listing, error) {
	q := r.db.WithContext(ctx).Where("is_flagged = ?", false)
	if sellerID != "" {
		q = q.Where("seller_id = ?", sellerID)
	}
	var listings []models.Listing
	if err := q.Order("created_at DESC").Find(&listings).Error; err != nil {
		return nil, err
	}
	return listings, nil
}

func (r *GormCatalogRepository) ListActiveDatasets(ctx context.Context) ([]models.Dataset, error) {
	var datasets []models.Dataset
	if err := r.db.WithContext(ctx).
		Where("is_active = ?", true).
		Order("created_at DESC").
		Find(&datasets).Error; err != nil {
		return nil, err
	}
	return datasets, nil
}
