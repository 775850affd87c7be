package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type AllocationStatus string

const (
	AllocationStatusAllocated      AllocationStatus = "allocated"
	AllocationStatusNoContributors AllocationStatus = "no_contributors"
)

// AllocationBatch marks a sale as distributed. The unique sale_id makes
// allocation happen at most once per sale.
type AllocationBatch struct {
	ID               uuid.UUID        `gorm:"type:uuid;primaryKey" json:"id"`
	SaleID           uuid.UUID        `gorm:"type:uuid;uniqueIndex;not null" json:"sale_id"`
	DatasetID        uuid.UUID        `gorm:"type:uuid;index;not null" json:"dataset_id"`
	GrossCents       int64            `gorm:"not null" json:"gross_cents"`
	Currency         string           `gorm:"type:varchar(10);not null" json:"currency"`
	ContributorCount int              `gorm:"not null" json:"contributor_count"`
	TotalWeight      int64            `gorm:"not null" json:"total_weight"`
	Status           AllocationStatus `gorm:"type:varchar(20);not null" json:"status"`
	CreatedAt        time.Time        `gorm:"autoCreateTime" json:"created_at"`
}

func (b *AllocationBatch) BeforeCreate(tx *gorm.DB) error {
	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	return nil
}

// RevenueShare is one contributor's cut of a sale.
type RevenueShare struct {
	ID         uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	BatchID    uuid.UUID `gorm:"type:uuid;index;not null" json:"batch_id"`
	SaleID     uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_revenue_shares_sale_user,priority:1" json:"sale_id"`
	UserID     string    `gorm:"type:varchar(64);not null;index;uniqueIndex:idx_revenue_shares_sale_user,priority:2" json:"user_id"`
	DatasetID  uuid.UUID `gorm:"type:uuid;index;not null" json:"dataset_id"`
	Weight     int64     `gorm:"not null" json:"weight"`
	ShareCents int64     `gorm:"not null" json:"share_cents"`
	Currency   string    `gorm:"type:varchar(10);not null" json:"currency"`
	CreatedAt  time.Time `gorm:"autoCreateTime" json:"created_at"`
}

func (s *RevenueShare) BeforeCreate(tx *gorm.DB) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	return nil
}

// UserBalance is a contributor's running credit in minor units of one
// currency. Credits in different currencies never share a row.
type UserBalance struct {
	UserID       string    `gorm:"type:varchar(64);primaryKey" json:"user_id"`
	Currency     string    `gorm:"type:varchar(10);primaryKey" json:"currency"`
	BalanceCents int64     `gorm:"not null;default:0" json:"balance_cents"`
	UpdatedAt    time.Time `json:"updated_at"`
}
