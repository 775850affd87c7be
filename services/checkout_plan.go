package services

import (
	"strconv"
	"strings"

	"github.com/glivermore2025/getsovrn-site/models"
	"github.com/google/uuid"
)

const (
	MinQuantity     = 1
	MaxQuantity     = 100
	DefaultCurrency = "usd"
)

// CheckoutPlan is the set of records a verified checkout event turns into.
// Exactly one of the listing pair or Sale is set.
type CheckoutPlan struct {
	Type     models.PurchaseType
	Purchase *models.Purchase
	Ledger   *models.LedgerEntry
	Sale     *models.DatasetSale
}

// PlanCheckout classifies a verified event and builds the records to persist.
// It does no I/O.
//
// Metadata uses the discriminated schema: type=listing|dataset plus the
// matching item id and user_id. Events without a type are classified by the
// single item id they carry.
func PlanCheckout(evt *models.CheckoutEvent) (*CheckoutPlan, error) {
	if evt == nil {
		return nil, &MalformedEventError{Field: "event", Reason: "is nil"}
	}
	if evt.SessionID == "" {
		return nil, &MalformedEventError{Field: "session_id", Reason: "is missing"}
	}
	if evt.AmountTotal < 0 {
		return nil, &MalformedEventError{Field: "amount_total", Reason: "is negative"}
	}

	meta := evt.Metadata
	userID := strings.TrimSpace(meta[models.MetadataUserID])
	if userID == "" {
		return nil, &MalformedEventError{Field: models.MetadataUserID, Reason: "is missing"}
	}

	purchaseType, err := classify(meta)
	if err != nil {
		return nil, err
	}

	currency := strings.ToLower(strings.TrimSpace(evt.Currency))
	if currency == "" {
		currency = DefaultCurrency
	}

	switch purchaseType {
	case models.PurchaseTypeDataset:
		datasetID, err := parseItemID(meta, models.MetadataDatasetID)
		if err != nil {
			return nil, err
		}
		return &CheckoutPlan{
			Type: models.PurchaseTypeDataset,
			Sale: &models.DatasetSale{
				DatasetID:  datasetID,
				BuyerID:    userID,
				Quantity:   ParseQuantity(meta[models.MetadataQuantity]),
				GrossCents: evt.AmountTotal,
				Currency:   currency,
				SessionID:  evt.SessionID,
			},
		}, nil
	default:
		listingID, err := parseItemID(meta, models.MetadataListingID)
		if err != nil {
			return nil, err
		}
		return &CheckoutPlan{
			Type: models.PurchaseTypeListing,
			Purchase: &models.Purchase{
				UserID:    userID,
				ListingID: listingID,
				SessionID: evt.SessionID,
			},
			Ledger: &models.LedgerEntry{
				ListingID:   listingID,
				BuyerID:     userID,
				SessionID:   evt.SessionID,
				AmountCents: evt.AmountTotal,
				Currency:    currency,
			},
		}, nil
	}
}

func classify(meta map[string]string) (models.PurchaseType, error) {
	hasListing := strings.TrimSpace(meta[models.MetadataListingID]) != ""
	hasDataset := strings.TrimSpace(meta[models.MetadataDatasetID]) != ""

	switch models.PurchaseType(strings.ToLower(strings.TrimSpace(meta[models.MetadataType]))) {
	case models.PurchaseTypeDataset:
		if !hasDataset {
			return "", &MalformedEventError{Field: models.MetadataDatasetID, Reason: "is missing for dataset purchase"}
		}
		return models.PurchaseTypeDataset, nil
	case models.PurchaseTypeListing:
		if !hasListing {
			return "", &MalformedEventError{Field: models.MetadataListingID, Reason: "is missing for listing purchase"}
		}
		return models.PurchaseTypeListing, nil
	case "":
		switch {
		case hasDataset && hasListing:
			return "", &MalformedEventError{Field: models.MetadataType, Reason: "is required when both item ids are present"}
		case hasDataset:
			return models.PurchaseTypeDataset, nil
		case hasListing:
			return models.PurchaseTypeListing, nil
		default:
			return "", &MalformedEventError{Field: "dataset_id/listing_id", Reason: "are both missing"}
		}
	default:
		return "", &MalformedEventError{Field: models.MetadataType, Reason: "has unknown value " + strconv.Quote(meta[models.MetadataType])}
	}
}

func parseItemID(meta map[string]string, key string) (uuid.UUID, error) {
	id, err := uuid.Parse(strings.TrimSpace(meta[key]))
	if err != nil {
		return uuid.Nil, &MalformedEventError{Field: key, Reason: "is not a valid id"}
	}
	return id, nil
}

// ParseQuantity reads a metadata quantity. Absent or non-numeric values give 1
// and the result is clamped to [MinQuantity, MaxQuantity].
func ParseQuantity(raw string) int {
	q, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return MinQuantity
	}
	return ClampQuantity(q)
}

func ClampQuantity(q int) int {
	if q < MinQuantity {
		return MinQuantity
	}
	if q > MaxQuantity {
		return MaxQuantity
	}
	return q
}
