package processing

import (
	"context"

	"github.com/google/uuid"

	"github.com/angelmondragon/vinlotto-backend/internal/allocation"
	"github.com/angelmondragon/vinlotto-backend/internal/events"
	"github.com/angelmondragon/vinlotto-backend/internal/fulfillment"
	"github.com/angelmondragon/vinlotto-backend/internal/linesync"
	"github.com/angelmondragon/vinlotto-backend/internal/storefront"
	"github.com/angelmondragon/vinlotto-backend/pkg/db/models"
)

type orderLocker interface {
	Do(ctx context.Context, orderID string, fn func(context.Context) error) (bool, error)
}

type orderReader interface {
	GetOrder(ctx context.Context, orderID string) (*storefront.Order, error)
}

type offerFinder interface {
	FindByDealVariants(ctx context.Context, variantIDs []string) ([]models.Offer, error)
	FindByIDs(ctx context.Context, ids []uuid.UUID) ([]models.Offer, error)
}

// holdings answers what an order currently holds in the pool.
type holdings interface {
	OffersClaimedBy(ctx context.Context, orderID string) ([]uuid.UUID, error)
	CountClaimed(ctx context.Context, offerID uuid.UUID, orderID string) (int, error)
	DistinctVariants(ctx context.Context, offerIDs ...uuid.UUID) ([]string, error)
	ClaimedVariantCounts(ctx context.Context, orderID string, offerIDs ...uuid.UUID) (map[string]int, error)
}

type allocator interface {
	Allocate(ctx context.Context, req allocation.Request) (allocation.Result, error)
	Repick(ctx context.Context, req allocation.RepickRequest) (allocation.Result, error)
}

type lineSyncer interface {
	Sync(ctx context.Context, order *storefront.Order, desired map[string]int, sink events.Sink) (linesync.Plan, error)
}

type groupMerger interface {
	Consolidate(ctx context.Context, order *storefront.Order, sink events.Sink) fulfillment.Outcome
}
