package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Offer is a sellable deal backed by a pool of manifest items.
type Offer struct {
	ID            uuid.UUID  `gorm:"column:id;type:uuid;primaryKey"`
	StoreID       string     `gorm:"column:store_id;not null;default:''"`
	DealVariantID string     `gorm:"column:deal_variant_id;not null;uniqueIndex:offers_deal_variant_id_key"`
	DealProductID string     `gorm:"column:deal_product_id;not null;default:''"`
	Name          string     `gorm:"column:name;not null"`
	Archived      bool       `gorm:"column:archived;not null;default:false"`
	SaleEndsAt    *time.Time `gorm:"column:sale_ends_at"`
	ArchivedAt    *time.Time `gorm:"column:archived_at"`
	CreatedAt     time.Time  `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt     time.Time  `gorm:"column:updated_at;autoUpdateTime"`
}

func (Offer) TableName() string { return "offers" }

func (o *Offer) BeforeCreate(*gorm.DB) error {
	if o.ID == uuid.Nil {
		o.ID = uuid.New()
	}
	return nil
}
