package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ManifestItem is one physical unit in an offer's pool. ClaimedBy holds the
// storefront order id owning the unit, nil while the unit is free.
type ManifestItem struct {
	ID         uuid.UUID  `gorm:"column:id;type:uuid;primaryKey"`
	OfferID    uuid.UUID  `gorm:"column:offer_id;type:uuid;not null;index:idx_manifest_items_offer_claim,priority:1"`
	VariantID  string     `gorm:"column:variant_id;not null"`
	ClaimedBy  *string    `gorm:"column:claimed_by;index:idx_manifest_items_offer_claim,priority:2"`
	ClaimToken *uuid.UUID `gorm:"column:claim_token;type:uuid;index"`
	ClaimedAt  *time.Time `gorm:"column:claimed_at"`
	SortKey    float64    `gorm:"column:sort_key;not null;default:0"`
	Source     *string    `gorm:"column:source"`
	CreatedAt  time.Time  `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt  time.Time  `gorm:"column:updated_at;autoUpdateTime"`
}

func (ManifestItem) TableName() string { return "manifest_items" }

func (m *ManifestItem) BeforeCreate(*gorm.DB) error {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	return nil
}

// IsClaimed reports whether an order owns the item.
func (m ManifestItem) IsClaimed() bool {
	return m.ClaimedBy != nil
}
