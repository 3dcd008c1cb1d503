package offers

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/vinlotto-backend/pkg/db/models"
)

// OfferDTO is the operator-facing view of an offer.
type OfferDTO struct {
	ID            uuid.UUID  `json:"id"`
	StoreID       string     `json:"store_id,omitempty"`
	DealVariantID string     `json:"deal_variant_id"`
	DealProductID string     `json:"deal_product_id,omitempty"`
	Name          string     `json:"name"`
	Archived      bool       `json:"archived"`
	SaleEndsAt    *time.Time `json:"sale_ends_at,omitempty"`
	ArchivedAt    *time.Time `json:"archived_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
}

// CreateOfferInput holds the operator-supplied fields of a new offer.
type CreateOfferInput struct {
	StoreID       string     `validate:"omitempty,max=255"`
	DealVariantID string     `validate:"required,max=255"`
	DealProductID string     `validate:"omitempty,max=255"`
	Name          string     `validate:"required,max=255"`
	SaleEndsAt    *time.Time `validate:"omitempty"`
}

func (in CreateOfferInput) toModel() *models.Offer {
	return &models.Offer{
		StoreID:       in.StoreID,
		DealVariantID: in.DealVariantID,
		DealProductID: in.DealProductID,
		Name:          in.Name,
		SaleEndsAt:    in.SaleEndsAt,
	}
}

// FromModel maps the persisted offer into a DTO.
func FromModel(m *models.Offer) *OfferDTO {
	if m == nil {
		return nil
	}
	return &OfferDTO{
		ID:            m.ID,
		StoreID:       m.StoreID,
		DealVariantID: m.DealVariantID,
		DealProductID: m.DealProductID,
		Name:          m.Name,
		Archived:      m.Archived,
		SaleEndsAt:    m.SaleEndsAt,
		ArchivedAt:    m.ArchivedAt,
		CreatedAt:     m.CreatedAt,
	}
}
