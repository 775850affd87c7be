package repository

import (
	"context"
	"time"

	"github.com/glivermore2025/getsovrn-site/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ContributionRepository manages dataset contributor memberships.
type ContributionRepository interface {
	Activate(ctx context.Context, datasetID uuid.UUID, userID string, weight int64) (*models.DatasetContribution, error)
	Deactivate(ctx context.Context, datasetID uuid.UUID, userID string) error
	Find(ctx context.Context, datasetID uuid.UUID, userID string) (*models.DatasetContribution, error)
}

type GormContributionRepository struct {
	db *gorm.DB
}

func NewGormContributionRepository(db *gorm.DB) ContributionRepository {
	return &GormContributionRepository{db: db}
}

// Activate upserts an active membership, updating the weight of an existing one.
func (r *GormContributionRepository) Activate(ctx context.Context, datasetID uuid.UUID, userID string, weight int64) (*models.DatasetContribution, error) {
	now := time.Now().UTC()
	contribution := models.DatasetContribution{
		DatasetID: datasetID,
		UserID:    userID,
		IsActive:  true,
		Weight:    weight,
	}
	if err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "dataset_id"}, {Name: "user_id"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"is_active":  true,
			"weight":     weight,
			"updated_at": now,
		}),
	}).Create(&contribution).Error; err != nil {
		return nil, err
	}
	return r.Find(ctx, datasetID, userID)
}

// Deactivate soft-deletes a membership. It returns gorm.ErrRecordNotFound
// when the user never contributed to the dataset.
func (r *GormContributionRepository) Deactivate(ctx context.Context, datasetID uuid.UUID, userID string) error {
	res := r.db.WithContext(ctx).
		Model(&models.DatasetContribution{}).
		Where("dataset_id = ? AND user_id = ?", datasetID, userID).
		Updates(map[string]interface{}{
			"is_active":  false,
			"updated_at": time.Now().UTC(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *GormContributionRepository) Find(ctx context.Context, datasetID uuid.UUID, userID string) (*models.DatasetContribution, error) {
	var contribution models.DatasetContribution
	if err := r.db.WithContext(ctx).
		Where("dataset_id = ? AND user_id = ?", datasetID, userID).
		First(&contribution).Error; err != nil {
		return nil, err
	}
	return &contribution, nil
}
