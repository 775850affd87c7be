package models

import "time"

// MarketplaceEvent is published to SNS after purchases, sales and allocations.
type MarketplaceEvent struct {
	Type        string    `json:"type"` // purchase_recorded, dataset_sale_recorded, revenue_allocated
	SessionID   string    `json:"session_id,omitempty"`
	RecordID    string    `json:"record_id"`
	ItemID      string    `json:"item_id"`
	UserID      string    `json:"user_id,omitempty"`
	AmountCents int64     `json:"amount_cents"`
	Currency    string    `json:"currency"`
	Quantity    int       `json:"quantity,omitempty"`
	Recipients  int       `json:"recipients,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
}

// AllocationRetryMessage is the SQS body used to re-run a failed allocation.
type AllocationRetryMessage struct {
	SaleID string `json:"sale_id"`
	Reason string `json:"reason,omitempty"`
}
