package services

import (
	"context"
	"errors"
	"net/http"

	"github.com/glivermore2025/getsovrn-site/models"
	"github.com/glivermore2025/getsovrn-site/repository"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	DefaultContributionWeight = 1
	MaxContributionWeight     = 1000
)

// ContributionService toggles a user's membership in a dataset's contributor
// pool. The allocator only sees the pool as it stands when a sale is allocated.
type ContributionService interface {
	Join(ctx context.Context, datasetID uuid.UUID, userID string, req *models.ContributionRequest) (*models.ContributionStatus, *ServiceError)
	Leave(ctx context.Context, datasetID uuid.UUID, userID string) *ServiceError
	Status(ctx context.Context, datasetID uuid.UUID, userID string) (*models.ContributionStatus, *ServiceError)
}

type contributionServiceImpl struct {
	repo    repository.ContributionRepository
	catalog repository.CatalogRepository
	logger  *zap.Logger
}

func NewContributionService(repo repository.ContributionRepository, catalog repository.CatalogRepository, logger *zap.Logger) ContributionService {
	return &contributionServiceImpl{repo: repo, catalog: catalog, logger: logger}
}

func (s *contributionServiceImpl) Join(ctx context.Context, datasetID uuid.UUID, userID string, req *models.ContributionRequest) (*models.ContributionStatus, *ServiceError) {
	weight := int64(DefaultContributionWeight)
	if req.Weight != nil {
		weight = *req.Weight
	}
	if weight < 1 || weight > MaxContributionWeight {
		return nil, &ServiceError{StatusCode: http.StatusBadRequest, Message: "Weight must be between 1 and 1000"}
	}

	ds, err := s.catalog.FindDataset(ctx, datasetID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, &ServiceError{StatusCode: http.StatusNotFound, Message: "Dataset not found"}
		}
		s.logger.Error("Failed to load dataset", zap.String("dataset_id", datasetID.String()), zap.Error(err))
		return nil, &ServiceError{StatusCode: http.StatusInternalServerError, Message: "Failed to update contribution"}
	}
	if !ds.IsActive {
		return nil, &ServiceError{StatusCode: http.StatusConflict, Message: "Dataset is not accepting contributions"}
	}

	c, err := s.repo.Activate(ctx, datasetID, userID, weight)
	if err != nil {
		s.logger.Error("Failed to activate contribution",
			zap.String("dataset_id", datasetID.String()),
			zap.String("user_id", userID),
			zap.Error(err),
		)
		return nil, &ServiceError{StatusCode: http.StatusInternalServerError, Message: "Failed to update contribution"}
	}

	s.logger.Info("Contribution activated",
		zap.String("dataset_id", datasetID.String()),
		zap.String("user_id", userID),
		zap.Int64("weight", c.Weight),
	)
	return toContributionStatus(c), nil
}

func (s *contributionServiceImpl) Leave(ctx context.Context, datasetID uuid.UUID, userID string) *ServiceError {
	if err := s.repo.Deactivate(ctx, datasetID, userID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return &ServiceError{StatusCode: http.StatusNotFound, Message: "Contribution not found"}
		}
		s.logger.Error("Failed to deactivate contribution",
			zap.String("dataset_id", datasetID.String()),
			zap.String("user_id", userID),
			zap.Error(err),
		)
		return &ServiceError{StatusCode: http.StatusInternalServerError, Message: "Failed to update contribution"}
	}
	s.logger.Info("Contribution deactivated", zap.String("dataset_id", datasetID.String()), zap.String("user_id", userID))
	return nil
}

// Status reports an inactive zero-weight membership for users who never joined.
func (s *contributionServiceImpl) Status(ctx context.Context, datasetID uuid.UUID, userID string) (*models.ContributionStatus, *ServiceError) {
	c, err := s.repo.Find(ctx, datasetID, userID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return &models.ContributionStatus{DatasetID: datasetID.String(), UserID: userID}, nil
	}
	if err != nil {
		s.logger.Error("Failed to load contribution", zap.String("dataset_id", datasetID.String()), zap.Error(err))
		return nil, &ServiceError{StatusCode: http.StatusInternalServerError, Message: "Failed to load contribution"}
	}
	return toContributionStatus(c), nil
}

func toContributionStatus(c *models.DatasetContribution) *models.ContributionStatus {
	return &models.ContributionStatus{
		DatasetID: c.DatasetID.String(),
		UserID:    c.UserID,
		IsActive:  c.IsActive,
		Weight:    c.Weight,
	}
}
