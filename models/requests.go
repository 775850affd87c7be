package models

import (
	"time"

	"github.com/google/uuid"
)

// CreateCheckoutRequest is the body of POST /checkout/sessions. Exactly one of
// ListingID and DatasetID must be set.
type CreateCheckoutRequest struct {
	ListingID string `json:"listing_id"`
	DatasetID string `json:"dataset_id"`
	Quantity  int    `json:"quantity"`
}

type CheckoutSessionResponse struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}

// CheckoutSessionDetails is what the success page shows after redirect.
type CheckoutSessionDetails struct {
	SessionID     string       `json:"session_id"`
	PaymentStatus string       `json:"payment_status"`
	Type          PurchaseType `json:"type"`
	AmountTotal   int64        `json:"amount_total"`
	Currency      string       `json:"currency"`
	Quantity      int          `json:"quantity"`
	Listing       *Listing     `json:"listing,omitempty"`
	Dataset       *Dataset     `json:"dataset,omitempty"`
}

// ContributionRequest is the body of PUT /datasets/:id/contribution.
// An omitted weight means the default of 1.
type ContributionRequest struct {
	Weight *int64 `json:"weight"`
}

type ContributionStatus struct {
	DatasetID string `json:"dataset_id"`
	UserID    string `json:"user_id"`
	IsActive  bool   `json:"is_active"`
	Weight    int64  `json:"weight"`
}

// Portfolio holds one balance per credited currency.
type Portfolio struct {
	UserID       string         `json:"user_id"`
	Balances     []UserBalance  `json:"balances"`
	RecentShares []RevenueShare `json:"recent_shares"`
}

// CreateListingRequest is the body of POST /listings. FilePath is the object
// key of a file the seller already uploaded to the datasets bucket.
type CreateListingRequest struct {
	Title       string `json:"title" binding:"required,max=255"`
	Description string `json:"description"`
	PriceCents  int64  `json:"price_cents" binding:"required,gt=0"`
	Currency    string `json:"currency"`
	FilePath    string `json:"file_path" binding:"required,max=1024"`
}

// PurchasedListing is one row of a buyer's listing purchase history.
type PurchasedListing struct {
	PurchaseID uuid.UUID `json:"purchase_id"`
	ListingID  uuid.UUID `json:"listing_id"`
	Title      string    `json:"title"`
	SessionID  string    `json:"session_id"`
	CreatedAt  time.Time `json:"purchased_at"`
}

type PurchaseHistory struct {
	UserID   string             `json:"user_id"`
	Listings []PurchasedListing `json:"listings"`
	Datasets []DatasetSale      `json:"datasets"`
}

type DownloadLink struct {
	ListingID string `json:"listing_id"`
	URL       string `json:"url"`
	ExpiresIn int64  `json:"expires_in"` // seconds
}
