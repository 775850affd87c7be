package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Dataset is a pooled data product whose proceeds are split among contributors.
type Dataset struct {
	ID             uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	Slug           string    `gorm:"type:varchar(128);uniqueIndex;not null" json:"slug"`
	Name           string    `gorm:"type:varchar(255);not null" json:"name"`
	Description    string    `gorm:"type:text" json:"description,omitempty"`
	UnitPriceCents int64     `gorm:"not null" json:"unit_price_cents"`
	Currency       string    `gorm:"type:varchar(10);not null;default:'usd'" json:"currency"`
	IsActive       bool      `gorm:"not null;default:true;index" json:"is_active"`
	CreatedAt      time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (d *Dataset) BeforeCreate(tx *gorm.DB) error {
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	return nil
}

// DatasetContribution is a user's membership in a dataset's contributor pool.
// Memberships are toggled, never deleted.
type DatasetContribution struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	DatasetID uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_dataset_contributions_member,priority:1" json:"dataset_id"`
	UserID    string    `gorm:"type:varchar(64);not null;uniqueIndex:idx_dataset_contributions_member,priority:2" json:"user_id"`
	IsActive  bool      `gorm:"not null;default:true" json:"is_active"`
	Weight    int64     `gorm:"not null;default:1" json:"weight"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (c *DatasetContribution) BeforeCreate(tx *gorm.DB) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	return nil
}

// DatasetSale records a purchase of a pooled dataset. Gross is the amount the
// payment provider charged, not the catalog price.
type DatasetSale struct {
	ID         uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	DatasetID  uuid.UUID `gorm:"type:uuid;not null;index;uniqueIndex:idx_dataset_sales_session,priority:2" json:"dataset_id"`
	BuyerID    string    `gorm:"type:varchar(64);not null;index" json:"buyer_id"`
	Quantity   int       `gorm:"not null" json:"quantity"`
	GrossCents int64     `gorm:"not null" json:"gross_cents"`
	Currency   string    `gorm:"type:varchar(10);not null" json:"currency"`
	SessionID  string    `gorm:"type:varchar(255);not null;uniqueIndex:idx_dataset_sales_session,priority:1" json:"session_id"`
	CreatedAt  time.Time `gorm:"autoCreateTime" json:"created_at"`
}

func (s *DatasetSale) BeforeCreate(tx *gorm.DB) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	return nil
}
