package services

import (
	"context"
	"net/http"
	"path"
	"strings"

	"github.com/glivermore2025/getsovrn-site/models"
	"github.com/glivermore2025/getsovrn-site/repository"
	"go.uber.org/zap"
)

// CatalogService serves the browse views, seller listing creation and the
// buyer's purchase history.
type CatalogService interface {
	ListListings(ctx context.Context, sellerID string) ([]models.Listing, *ServiceError)
	ListDatasets(ctx context.Context) ([]models.Dataset, *ServiceError)
	CreateListing(ctx context.Context, sellerID string, req *models.CreateListingRequest) (*models.Listing, *ServiceError)
	ListPurchases(ctx context.Context, userID string) (*models.PurchaseHistory, *ServiceError)
}

type catalogServiceImpl struct {
	catalog   repository.CatalogRepository
	purchases repository.PurchaseRepository
	logger    *zap.Logger
}

func NewCatalogService(catalog repository.CatalogRepository, purchases repository.PurchaseRepository, logger *zap.Logger) CatalogService {
	return &catalogServiceImpl{catalog: catalog, purchases: purchases, logger: logger}
}

func (s *catalogServiceImpl) ListListings(ctx context.Context, sellerID string) ([]models.Listing, *ServiceError) {
	listings, err := s.catalog.ListListings(ctx, sellerID)
	if err != nil {
		s.logger.Error("Failed to list listings", zap.String("seller_id", sellerID), zap.Error(err))
		return nil, &ServiceError{StatusCode: http.StatusInternalServerError, Message: "Failed to load listings"}
	}
	if listings == nil {
		listings = []models.Listing{}
	}
	return listings, nil
}

func (s *catalogServiceImpl) ListDatasets(ctx context.Context) ([]models.Dataset, *ServiceError) {
	datasets, err := s.catalog.ListActiveDatasets(ctx)
	if err != nil {
		s.logger.Error("Failed to list datasets", zap.Error(err))
		return nil, &ServiceError{StatusCode: http.StatusInternalServerError, Message: "Failed to load datasets"}
	}
	if datasets == nil {
		datasets = []models.Dataset{}
	}
	return datasets, nil
}

// CreateListing registers a file the seller has already uploaded. The key
// must be relative and stay inside the bucket.
func (s *catalogServiceImpl) CreateListing(ctx context.Context, sellerID string, req *models.CreateListingRequest) (*models.Listing, *ServiceError) {
	key := strings.TrimSpace(req.FilePath)
	if key == "" || strings.HasPrefix(key, "/") || path.Clean(key) != key || strings.HasPrefix(key, "..") {
		return nil, &ServiceError{StatusCode: http.StatusBadRequest, Message: "Invalid file path"}
	}
	currency := strings.ToLower(strings.TrimSpace(req.Currency))
	if currency == "" {
		currency = DefaultCurrency
	}

	listing := &models.Listing{
		SellerID:    sellerID,
		Title:       strings.TrimSpace(req.Title),
		Description: req.Description,
		PriceCents:  req.PriceCents,
		Currency:    currency,
		FilePath:    key,
	}
	if listing.Title == "" {
		return nil, &ServiceError{StatusCode: http.StatusBadRequest, Message: "Title is required"}
	}
	if err := s.catalog.CreateListing(ctx, listing); err != nil {
		s.logger.Error("Failed to create listing", zap.String("seller_id", sellerID), zap.Error(err))
		return nil, &ServiceError{StatusCode: http.StatusInternalServerError, Message: "Failed to create listing"}
	}

	s.logger.Info("Listing created",
		zap.String("listing_id", listing.ID.String()),
		zap.String("seller_id", sellerID),
		zap.Int64("price_cents", listing.PriceCents),
	)
	return listing, nil
}

func (s *catalogServiceImpl) ListPurchases(ctx context.Context, userID string) (*models.PurchaseHistory, *ServiceError) {
	listings, err := s.purchases.ListPurchasedListings(ctx, userID)
	if err != nil {
		s.logger.Error("Failed to list purchases", zap.String("user_id", userID), zap.Error(err))
		return nil, &ServiceError{StatusCode: http.StatusInternalServerError, Message: "Failed to load purchases"}
	}
	sales, err := s.purchases.ListDatasetSales(ctx, userID)
	if err != nil {
		s.logger.Error("Failed to list dataset purchases", zap.String("user_id", userID), zap.Error(err))
		return nil, &ServiceError{StatusCode: http.StatusInternalServerError, Message: "Failed to load purchases"}
	}
	if listings == nil {
		listings = []models.PurchasedListing{}
	}
	if sales == nil {
		sales = []models.DatasetSale{}
	}
	return &models.PurchaseHistory{UserID: userID, Listings: listings, Datasets: sales}, nil
}
