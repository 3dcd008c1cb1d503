package cli

import (
	"context"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/angelmondragon/vinlotto-backend/internal/consumer"
	"github.com/angelmondragon/vinlotto-backend/internal/manifest"
	"github.com/angelmondragon/vinlotto-backend/internal/offers"
	"github.com/angelmondragon/vinlotto-backend/internal/processing"
)

// Backend is what lotteryctl commands operate on.
type Backend interface {
	CreateOffer(ctx context.Context, input offers.CreateOfferInput) (*offers.OfferDTO, error)
	ArchiveOffer(ctx context.Context, id uuid.UUID) (*offers.OfferDTO, error)
	DeleteOffer(ctx context.Context, id uuid.UUID) error
	SetQuantity(ctx context.Context, offerID uuid.UUID, variantID string, total int, source string) (manifest.QuantityResult, error)
	ProcessOrder(ctx context.Context, trigger processing.Trigger) (processing.Result, error)
	EnqueueOrder(ctx context.Context, event consumer.OrderEvent) (string, error)
	SweepLocks(ctx context.Context) (int64, error)
	Close() error
}

// BackendFactory opens a backend for one command invocation.
type BackendFactory func(ctx context.Context) (Backend, error)

func withBackend(cmd *cobra.Command, open BackendFactory, fn func(Backend) error) error {
	backend, err := open(cmd.Context())
	if err != nil {
		return err
	}
	defer backend.Close()
	return fn(backend)
}
