package services

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/glivermore2025/getsovrn-site/models"
	"github.com/glivermore2025/getsovrn-site/repository"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// ObjectPresigner is satisfied by *aws_pkg.S3Presigner.
type ObjectPresigner interface {
	PresignGet(ctx context.Context, bucket, key string, expiry time.Duration) (string, error)
}

// DownloadService hands out short-lived links to purchased listing files.
type DownloadService interface {
	GetDownloadLink(ctx context.Context, userID string, listingID uuid.UUID) (*models.DownloadLink, *ServiceError)
}

type downloadServiceImpl struct {
	catalog   repository.CatalogRepository
	purchases repository.PurchaseRepository
	presigner ObjectPresigner
	bucket    string
	ttl       time.Duration
	logger    *zap.Logger
}

func NewDownloadService(
	catalog repository.CatalogRepository,
	purchases repository.PurchaseRepository,
	presigner ObjectPresigner,
	bucket string,
	ttl time.Duration,
	logger *zap.Logger,
) DownloadService {
	return &downloadServiceImpl{
		catalog:   catalog,
		purchases: purchases,
		presigner: presigner,
		bucket:    bucket,
		ttl:       ttl,
		logger:    logger,
	}
}

// GetDownloadLink is allowed for the listing's seller and for any user with a
// recorded purchase of it.
func (s *downloadServiceImpl) GetDownloadLink(ctx context.Context, userID string, listingID uuid.UUID) (*models.DownloadLink, *ServiceError) {
	listing, err := s.catalog.FindListing(ctx, listingID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, &ServiceError{StatusCode: http.StatusNotFound, Message: "Listing not found"}
		}
		s.logger.Error("Failed to load listing", zap.String("listing_id", listingID.String()), zap.Error(err))
		return nil, &ServiceError{StatusCode: http.StatusInternalServerError, Message: "Failed to load listing"}
	}

	if listing.SellerID != userID {
		bought, err := s.purchases.HasPurchased(ctx, userID, listingID)
		if err != nil {
			s.logger.Error("Failed to check purchase", zap.String("listing_id", listingID.String()), zap.Error(err))
			return nil, &ServiceError{StatusCode: http.StatusInternalServerError, Message: "Failed to check purchase"}
		}
		if !bought {
			return nil, &ServiceError{StatusCode: http.StatusForbidden, Message: "Listing not purchased"}
		}
	}

	key := strings.TrimPrefix(listing.FilePath, "/")
	if key == "" {
		return nil, &ServiceError{StatusCode: http.StatusNotFound, Message: "Listing has no file"}
	}

	url, err := s.presigner.PresignGet(ctx, s.bucket, key, s.ttl)
	if err != nil {
		s.logger.Error("Failed to presign download", zap.String("listing_id", listingID.String()), zap.Error(err))
		return nil, &ServiceError{StatusCode: http.StatusInternalServerError, Message: "Failed to create download link"}
	}
	return &models.DownloadLink{
		ListingID: listingID.String(),
		URL:       url,
		ExpiresIn: int64(s.ttl.Seconds()),
	}, nil
}
