package manifest

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	pkgerrors "github.com/angelmondragon/vinlotto-backend/pkg/errors"
	"github.com/angelmondragon/vinlotto-backend/pkg/logger"
)

type quantityStore interface {
	Counts(ctx context.Context, offerID uuid.UUID, variantID string) (int, int, error)
	MaxSortKey(ctx context.Context, offerID uuid.UUID) (float64, error)
	AppendFree(ctx context.Context, offerID uuid.UUID, variantID string, n int, startAfter float64, source *string) error
	DeleteFree(ctx context.Context, offerID uuid.UUID, variantID string, n int) (int64, error)
}

// QuantityResult describes one resize.
type QuantityResult struct {
	OfferID   uuid.UUID `json:"offer_id"`
	VariantID string    `json:"variant_id"`
	Target    int       `json:"target"`
	Before    int       `json:"before"`
	After     int       `json:"after"`
	Claimed   int       `json:"claimed"`
	Added     int       `json:"added"`
	Removed   int       `json:"removed"`
}

// QuantityManager resizes the capacity of an (offer, variant) pair. It only
// ever inserts or deletes free rows; ownership of claimed rows is untouched.
type QuantityManager struct {
	store quantityStore
	logg  *logger.Logger
}

func NewQuantityManager(store quantityStore, logg *logger.Logger) (*QuantityManager, error) {
	if store == nil {
		return nil, fmt.Errorf("manifest store required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &QuantityManager{store: store, logg: logg}, nil
}

// SetQuantity moves the pair's total towards target. Growing appends free
// rows after the pool's current maximum sort key. Shrinking deletes free rows
// from the highest sort key down and never touches claimed rows; the
// realized total stays above target when claimed rows alone exceed it.
func (m *QuantityManager) SetQuantity(ctx context.Context, offerID uuid.UUID, variantID string, target int, source string) (QuantityResult, error) {
	variantID = strings.TrimSpace(variantID)
	if offerID == uuid.Nil {
		return QuantityResult{}, pkgerrors.New(pkgerrors.CodeValidation, "offer id is required")
	}
	if variantID == "" {
		return QuantityResult{}, pkgerrors.New(pkgerrors.CodeValidation, "variant id is required")
	}
	if target < 0 {
		return QuantityResult{}, pkgerrors.New(pkgerrors.CodeValidation, "target quantity must be non-negative").
			WithDetails(map[string]any{"target": target})
	}

	total, free, err := m.store.Counts(ctx, offerID, variantID)
	if err != nil {
		return QuantityResult{}, err
	}
	result := QuantityResult{
		OfferID:   offerID,
		VariantID: variantID,
		Target:    target,
		Before:    total,
		After:     total,
		Claimed:   total - free,
	}

	ctx = m.logg.WithFields(ctx, map[string]any{
		"offer_id":   offerID.String(),
		"variant_id": variantID,
		"target":     target,
		"before":     total,
	})

	switch {
	case target > total:
		maxKey, err := m.store.MaxSortKey(ctx, offerID)
		if err != nil {
			return QuantityResult{}, err
		}
		add := target - total
		var src *string
		if s := strings.TrimSpace(source); s != "" {
			src = &s
		}
		if err := m.store.AppendFree(ctx, offerID, variantID, add, maxKey, src); err != nil {
			return QuantityResult{}, err
		}
		result.Added = add
		result.After = total + add
	case target < total:
		remove := removableFree(total, free, target)
		if remove > 0 {
			removed, err := m.store.DeleteFree(ctx, offerID, variantID, remove)
			if err != nil {
				return QuantityResult{}, err
			}
			result.Removed = int(removed)
			result.After = total - int(removed)
		}
		if result.After > target {
			m.logg.Warn(m.logg.WithField(ctx, "after", result.After), "manifest quantity left above target")
		}
	}

	m.logg.Info(m.logg.WithFields(ctx, map[string]any{
		"added":   result.Added,
		"removed": result.Removed,
		"after":   result.After,
	}), "manifest quantity set")
	return result, nil
}

// removableFree is the excess over target while the claimed rows fit inside
// target, so the total lands exactly on it. Once claimed rows alone exceed
// target, only the free rows above target go.
func removableFree(total, free, target int) int {
	excess := total - target
	if claimed := total - free; claimed <= target {
		return min(excess, free)
	}
	return max(0, min(excess, free-target))
}
