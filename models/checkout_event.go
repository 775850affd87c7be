package models

// PurchaseType discriminates single-item listings from pooled datasets in
// checkout metadata.
type PurchaseType string

const (
	PurchaseTypeListing PurchaseType = "listing"
	PurchaseTypeDataset PurchaseType = "dataset"
)

// Checkout metadata keys written at session creation and read back on completion.
const (
	MetadataType      = "type"
	MetadataListingID = "listing_id"
	MetadataDatasetID = "dataset_id"
	MetadataUserID    = "user_id"
	MetadataQuantity  = "quantity"
)

// Checkout event types acted on by the reconciler. Every other type is acknowledged and ignored.
const (
	EventCheckoutCompleted             = "checkout.session.completed"
	EventCheckoutAsyncPaymentSucceeded = "checkout.session.async_payment_succeeded"
)

// CheckoutEvent is a verified payment-completed notification.
type CheckoutEvent struct {
	EventID     string `json:"event_id"`
	Type        string `json:"type"`
	SessionID   string `json:"session_id"`
	AmountTotal int64  `json:"amount_total"` // minor units, as charged
	Currency    string `json:"currency"`
	// PaymentStatus is "unpaid" while an asynchronous payment method settles.
	PaymentStatus string            `json:"payment_status"`
	Metadata      map[string]string `json:"metadata"`
}
