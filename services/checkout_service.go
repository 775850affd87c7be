package services

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/glivermore2025/getsovrn-site/models"
	aws_pkg "github.com/glivermore2025/getsovrn-site/pkg/aws"
	"github.com/glivermore2025/getsovrn-site/repository"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// CheckoutService starts hosted checkouts and reports what a session bought.
type CheckoutService interface {
	CreateSession(ctx context.Context, userID string, req *models.CreateCheckoutRequest) (*models.CheckoutSessionResponse, *ServiceError)
	GetSession(ctx context.Context, sessionID string) (*models.CheckoutSessionDetails, *ServiceError)
}

type checkoutServiceImpl struct {
	provider CheckoutProvider
	catalog  repository.CatalogRepository
	siteURL  string
	metrics  MetricsRecorder
	logger   *zap.Logger
}

func NewCheckoutService(
	provider CheckoutProvider,
	catalog repository.CatalogRepository,
	siteURL string,
	metrics MetricsRecorder,
	logger *zap.Logger,
) CheckoutService {
	return &checkoutServiceImpl{
		provider: provider,
		catalog:  catalog,
		siteURL:  strings.TrimSuffix(siteURL, "/"),
		metrics:  metrics,
		logger:   logger,
	}
}

// CreateSession prices the item from the catalog and writes the metadata the
// webhook reconciler reads back.
func (s *checkoutServiceImpl) CreateSession(ctx context.Context, userID string, req *models.CreateCheckoutRequest) (*models.CheckoutSessionResponse, *ServiceError) {
	listingID := strings.TrimSpace(req.ListingID)
	datasetID := strings.TrimSpace(req.DatasetID)
	if (listingID == "") == (datasetID == "") {
		return nil, &ServiceError{StatusCode: http.StatusBadRequest, Message: "Exactly one of listing_id or dataset_id is required"}
	}

	sessionReq := &CheckoutSessionRequest{
		Metadata:          map[string]string{models.MetadataUserID: userID},
		ClientReferenceID: userID,
		SuccessURL:        s.siteURL + "/success?session_id={CHECKOUT_SESSION_ID}",
		CancelURL:         s.siteURL + "/cancel",
	}

	var purchaseType models.PurchaseType
	if listingID != "" {
		id, err := uuid.Parse(listingID)
		if err != nil {
			return nil, &ServiceError{StatusCode: http.StatusBadRequest, Message: "Invalid listing_id"}
		}
		listing, err := s.catalog.FindListing(ctx, id)
		if err != nil {
			return nil, s.lookupError(err, "Listing not found")
		}
		purchaseType = models.PurchaseTypeListing
		sessionReq.ItemName = listing.Title
		sessionReq.Description = listing.Description
		sessionReq.UnitAmount = listing.PriceCents
		sessionReq.Currency = currencyOrDefault(listing.Currency)
		sessionReq.Quantity = 1
		sessionReq.Metadata[models.MetadataListingID] = listing.ID.String()
	} else {
		id, err := uuid.Parse(datasetID)
		if err != nil {
			return nil, &ServiceError{StatusCode: http.StatusBadRequest, Message: "Invalid dataset_id"}
		}
		dataset, err := s.catalog.FindDataset(ctx, id)
		if err != nil {
			return nil, s.lookupError(err, "Dataset not found")
		}
		if !dataset.IsActive {
			return nil, &ServiceError{StatusCode: http.StatusNotFound, Message: "Dataset not found"}
		}
		quantity := ClampQuantity(req.Quantity)
		purchaseType = models.PurchaseTypeDataset
		sessionReq.ItemName = dataset.Name
		sessionReq.Description = dataset.Description
		sessionReq.UnitAmount = dataset.UnitPriceCents
		sessionReq.Currency = currencyOrDefault(dataset.Currency)
		sessionReq.Quantity = int64(quantity)
		sessionReq.Metadata[models.MetadataDatasetID] = dataset.ID.String()
		sessionReq.Metadata[models.MetadataQuantity] = strconv.Itoa(quantity)
	}
	sessionReq.Metadata[models.MetadataType] = string(purchaseType)

	session, err := s.provider.CreateCheckoutSession(ctx, sessionReq)
	if err != nil {
		s.logger.Error("Failed to create checkout session",
			zap.String("user_id", userID),
			zap.String("type", string(purchaseType)),
			zap.Error(err),
		)
		return nil, &ServiceError{StatusCode: http.StatusBadGateway, Message: "Failed to create checkout session"}
	}

	s.logger.Info("Checkout session created",
		zap.String("session_id", session.ID),
		zap.String("user_id", userID),
		zap.String("type", string(purchaseType)),
	)
	recordCount(ctx, s.metrics, aws_pkg.MetricCheckoutsCreated, map[string]string{"Type": string(purchaseType)})
	return &models.CheckoutSessionResponse{ID: session.ID, URL: session.URL}, nil
}

func (s *checkoutServiceImpl) GetSession(ctx context.Context, sessionID string) (*models.CheckoutSessionDetails, *ServiceError) {
	session, err := s.provider.GetCheckoutSession(ctx, sessionID)
	if err != nil {
		s.logger.Warn("Checkout session lookup failed", zap.String("session_id", sessionID), zap.Error(err))
		return nil, &ServiceError{StatusCode: http.StatusNotFound, Message: "Unable to fetch session data"}
	}

	plan, err := PlanCheckout(&models.CheckoutEvent{
		SessionID:   session.ID,
		AmountTotal: session.AmountTotal,
		Currency:    session.Currency,
		Metadata:    session.Metadata,
	})
	if err != nil {
		return nil, &ServiceError{StatusCode: http.StatusNotFound, Message: "Session has no purchasable item"}
	}

	details := &models.CheckoutSessionDetails{
		SessionID:     session.ID,
		PaymentStatus: session.PaymentStatus,
		Type:          plan.Type,
		AmountTotal:   session.AmountTotal,
		Currency:      currencyOrDefault(session.Currency),
		Quantity:      1,
	}
	if plan.Type == models.PurchaseTypeDataset {
		details.Quantity = plan.Sale.Quantity
		details.Dataset, err = s.catalog.FindDataset(ctx, plan.Sale.DatasetID)
		if err != nil {
			return nil, s.lookupError(err, "Dataset not found")
		}
		return details, nil
	}
	details.Listing, err = s.catalog.FindListing(ctx, plan.Purchase.ListingID)
	if err != nil {
		return nil, s.lookupError(err, "Listing not found")
	}
	return details, nil
}

func (s *checkoutServiceImpl) lookupError(err error, notFound string) *ServiceError {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return &ServiceError{StatusCode: http.StatusNotFound, Message: notFound}
	}
	s.logger.Error("Catalog lookup failed", zap.Error(err))
	return &ServiceError{StatusCode: http.StatusInternalServerError, Message: "Failed to load catalog item"}
}

func currencyOrDefault(c string) string {
	c = strings.ToLower(strings.TrimSpace(c))
	if c == "" {
		return DefaultCurrency
	}
	return c
}
