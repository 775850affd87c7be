package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Listing is a single downloadable file offered by one seller.
type Listing struct {
	ID          uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	SellerID    string    `gorm:"type:varchar(64);index;not null" json:"seller_id"`
	Title       string    `gorm:"type:varchar(255);not null" json:"title"`
	Description string    `gorm:"type:text" json:"description,omitempty"`
	PriceCents  int64     `gorm:"not null" json:"price_cents"`
	Currency    string    `gorm:"type:varchar(10);not null;default:'usd'" json:"currency"`
	FilePath    string    `gorm:"type:varchar(1024)" json:"-"`
	IsFlagged   bool      `gorm:"not null;default:false" json:"is_flagged"`
	CreatedAt   time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (l *Listing) BeforeCreate(tx *gorm.DB) error {
	if l.ID == uuid.Nil {
		l.ID = uuid.New()
	}
	return nil
}
