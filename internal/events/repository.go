package events

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/vinlotto-backend/pkg/db/models"
)

// Repository persists processing events. Rows are append-only.
type Repository struct {
	db *gorm.DB
}

func NewRepository(conn *gorm.DB) *Repository {
	return &Repository{db: conn}
}

func (r *Repository) Append(ctx context.Context, event *models.ProcessingEvent) error {
	if event == nil {
		return fmt.Errorf("event required")
	}
	if err := r.db.WithContext(ctx).Create(event).Error; err != nil {
		return fmt.Errorf("append processing event: %w", err)
	}
	return nil
}

// ListByRun returns a run's events in sequence order.
func (r *Repository) ListByRun(ctx context.Context, runID uuid.UUID) ([]models.ProcessingEvent, error) {
	var out []models.ProcessingEvent
	if err := r.db.WithContext(ctx).
		Where("run_id = ?", runID).
		Order("sequence ASC").
		Find(&out).Error; err != nil {
		return nil, fmt.Errorf("list processing events for run: %w", err)
	}
	return out, nil
}

// ListByOrder returns the most recent events for an order, newest first.
func (r *Repository) ListByOrder(ctx context.Context, orderID string, limit int) ([]models.ProcessingEvent, error) {
	if limit <= 0 {
		limit = 100
	}
	var out []models.ProcessingEvent
	if err := r.db.WithContext(ctx).
		Where("order_id = ?", orderID).
		Order("created_at DESC").
		Order("sequence DESC").
		Limit(limit).
		Find(&out).Error; err != nil {
		return nil, fmt.Errorf("list processing events for order: %w", err)
	}
	return out, nil
}
