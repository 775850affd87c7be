package services

import (
	"context"
	"net/http"

	"github.com/glivermore2025/getsovrn-site/models"
	"github.com/glivermore2025/getsovrn-site/repository"
	"go.uber.org/zap"
)

const RecentSharesLimit = 20

type PortfolioService interface {
	GetPortfolio(ctx context.Context, userID string) (*models.Portfolio, *ServiceError)
}

type portfolioServiceImpl struct {
	repo   repository.AllocationRepository
	logger *zap.Logger
}

func NewPortfolioService(repo repository.AllocationRepository, logger *zap.Logger) PortfolioService {
	return &portfolioServiceImpl{repo: repo, logger: logger}
}

// GetPortfolio returns the contributor's balances and latest revenue shares.
func (s *portfolioServiceImpl) GetPortfolio(ctx context.Context, userID string) (*models.Portfolio, *ServiceError) {
	balances, err := s.repo.ListBalances(ctx, userID)
	if err != nil {
		s.logger.Error("Failed to load balances", zap.String("user_id", userID), zap.Error(err))
		return nil, &ServiceError{StatusCode: http.StatusInternalServerError, Message: "Failed to load portfolio"}
	}
	shares, err := s.repo.ListRecentShares(ctx, userID, RecentSharesLimit)
	if err != nil {
		s.logger.Error("Failed to load revenue shares", zap.String("user_id", userID), zap.Error(err))
		return nil, &ServiceError{StatusCode: http.StatusInternalServerError, Message: "Failed to load portfolio"}
	}
	if balances == nil {
		balances = []models.UserBalance{}
	}
	if shares == nil {
		shares = []models.RevenueShare{}
	}
	return &models.Portfolio{
		UserID:       userID,
		Balances:     balances,
		RecentShares: shares,
	}, nil
}
