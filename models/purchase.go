package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Purchase links a buyer to a single listing. One row per checkout session.
type Purchase struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	UserID    string    `gorm:"type:varchar(64);index;not null" json:"user_id"`
	ListingID uuid.UUID `gorm:"type:uuid;index;not null" json:"listing_id"`
	SessionID string    `gorm:"type:varchar(255);uniqueIndex;not null" json:"session_id"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
}

func (p *Purchase) BeforeCreate(tx *gorm.DB) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	return nil
}

// LedgerEntry records the amount charged for a listing purchase.
type LedgerEntry struct {
	ID          uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	ListingID   uuid.UUID `gorm:"type:uuid;index;not null" json:"listing_id"`
	BuyerID     string    `gorm:"type:varchar(64);index;not null" json:"buyer_id"`
	SessionID   string    `gorm:"type:varchar(255);uniqueIndex;not null" json:"session_id"`
	AmountCents int64     `gorm:"not null" json:"amount_cents"`
	Currency    string    `gorm:"type:varchar(10);not null" json:"currency"`
	CreatedAt   time.Time `gorm:"autoCreateTime" json:"created_at"`
}

func (LedgerEntry) TableName() string {
	return "transactions"
}

func (e *LedgerEntry) BeforeCreate(tx *gorm.DB) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	return nil
}
