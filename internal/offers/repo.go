package offers

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/vinlotto-backend/pkg/db/models"
)

// Repository handles offer persistence.
type Repository struct {
	db *gorm.DB
}

// NewRepository binds a GORM DB to offer operations.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// WithTx returns a repository bound to tx.
func (r *Repository) WithTx(tx *gorm.DB) *Repository {
	if tx == nil {
		return r
	}
	return &Repository{db: tx}
}

// Create persists a new offer row.
func (r *Repository) Create(ctx context.Context, offer *models.Offer) error {
	if offer == nil {
		return fmt.Errorf("offer is required")
	}
	return r.db.WithContext(ctx).Create(offer).Error
}

// FindByID loads an offer by its UUID.
func (r *Repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Offer, error) {
	var offer models.Offer
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&offer).Error; err != nil {
		return nil, err
	}
	return &offer, nil
}

// FindByDealVariants returns the offers whose deal variant is one of ids.
func (r *Repository) FindByDealVariants(ctx context.Context, variantIDs []string) ([]models.Offer, error) {
	if len(variantIDs) == 0 {
		return nil, nil
	}
	var offers []models.Offer
	if err := r.db.WithContext(ctx).
		Where("deal_variant_id IN ?", variantIDs).
		Order("created_at ASC").
		Find(&offers).Error; err != nil {
		return nil, err
	}
	return offers, nil
}

// FindByIDs loads the offers with the given ids.
func (r *Repository) FindByIDs(ctx context.Context, ids []uuid.UUID) ([]models.Offer, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var offers []models.Offer
	if err := r.db.WithContext(ctx).
		Where("id IN ?", ids).
		Order("created_at ASC").
		Find(&offers).Error; err != nil {
		return nil, err
	}
	return offers, nil
}

// ListArchivable returns live offers whose sale window closed before cutoff.
func (r *Repository) ListArchivable(ctx context.Context, cutoff time.Time) ([]models.Offer, error) {
	var offers []models.Offer
	if err := r.db.WithContext(ctx).
		Where("archived = ? AND sale_ends_at IS NOT NULL AND sale_ends_at < ?", false, cutoff).
		Order("sale_ends_at ASC").
		Find(&offers).Error; err != nil {
		return nil, err
	}
	return offers, nil
}

// Archive flags the offer archived. It reports false when the offer was
// already archived or does not exist.
func (r *Repository) Archive(ctx context.Context, id uuid.UUID, at time.Time) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Offer{}).
		Where("id = ? AND archived = ?", id, false).
		Updates(map[string]any{"archived": true, "archived_at": at})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// Delete removes the offer row.
func (r *Repository) Delete(ctx context.Context, id uuid.UUID) error {
	return r.db.WithContext(ctx).Where("id = ?", id).Delete(&models.Offer{}).Error
}
