package allocation

import (
	"context"
	"math/rand/v2"

	"github.com/google/uuid"

	"github.com/angelmondragon/vinlotto-backend/internal/manifest"
)

// Pool is the manifest storage the engine allocates from. Every method is a
// single atomic conditional statement.
type Pool interface {
	Claim(ctx context.Context, offerID uuid.UUID, orderID string, n int) (manifest.Claim, error)
	ReleaseClaim(ctx context.Context, token uuid.UUID) (int64, error)
	Release(ctx context.Context, offerID uuid.UUID, orderID string, n int) (int64, error)
	ReleaseAll(ctx context.Context, offerID uuid.UUID, orderID string) (int64, error)
	FreeItemIDs(ctx context.Context, offerID uuid.UUID) ([]uuid.UUID, error)
	Rekey(ctx context.Context, offerID uuid.UUID, ordered []uuid.UUID) (int64, error)
	FreeVariants(ctx context.Context, offerID uuid.UUID) ([]string, error)
	ClaimedVariantCounts(ctx context.Context, orderID string, offerIDs ...uuid.UUID) (map[string]int, error)
}

// OrderCanceller cancels orders that cannot be allocated.
type OrderCanceller interface {
	CancelOrder(ctx context.Context, orderID, reason string) error
}

// InventoryZeroer stops further sales of a deal variant.
type InventoryZeroer interface {
	ZeroInventory(ctx context.Context, variantID string) error
}

// ShuffleFunc permutes free row ids in place.
type ShuffleFunc func(ids []uuid.UUID)

// RandomShuffle is the default ShuffleFunc.
func RandomShuffle(ids []uuid.UUID) {
	rand.Shuffle(len(ids), func(i, j int) { ids[i], ids[j] = ids[j], ids[i] })
}
