package main

import (
	"context"
	"encoding/json"
	"fmt"

	gpubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"
	"go.uber.org/multierr"

	"github.com/angelmondragon/vinlotto-backend/internal/bootstrap"
	"github.com/angelmondragon/vinlotto-backend/internal/consumer"
	"github.com/angelmondragon/vinlotto-backend/internal/manifest"
	"github.com/angelmondragon/vinlotto-backend/internal/offers"
	"github.com/angelmondragon/vinlotto-backend/internal/processing"
	"github.com/angelmondragon/vinlotto-backend/pkg/config"
	"github.com/angelmondragon/vinlotto-backend/pkg/db"
	"github.com/angelmondragon/vinlotto-backend/pkg/logger"
	"github.com/angelmondragon/vinlotto-backend/pkg/pubsub"
)

type backend struct {
	cfg      *config.Config
	logg     *logger.Logger
	db       *db.Client
	built    *bootstrap.Processing
	offers   *offers.Service
	quantity *manifest.QuantityManager
	pubsub   *pubsub.Client
}

func openBackend(ctx context.Context, cfg *config.Config, logg *logger.Logger) (*backend, error) {
	dbClient, err := db.New(ctx, cfg.DB, logg)
	if err != nil {
		return nil, fmt.Errorf("database: %w", err)
	}
	b := &backend{cfg: cfg, logg: logg, db: dbClient}

	shop, err := bootstrap.NewStorefront(cfg.Storefront)
	if err != nil {
		return nil, multierr.Append(fmt.Errorf("storefront: %w", err), b.Close())
	}
	b.built, err = bootstrap.NewProcessing(bootstrap.Deps{
		Config:     cfg,
		Logger:     logg,
		DB:         dbClient.DB(),
		Storefront: shop,
	})
	if err != nil {
		return nil, multierr.Append(err, b.Close())
	}
	b.offers, err = offers.NewService(dbClient, b.built.Offers, b.built.Manifest, nil)
	if err != nil {
		return nil, multierr.Append(err, b.Close())
	}
	b.quantity, err = manifest.NewQuantityManager(b.built.Manifest, logg)
	if err != nil {
		return nil, multierr.Append(err, b.Close())
	}
	return b, nil
}

func (b *backend) CreateOffer(ctx context.Context, input offers.CreateOfferInput) (*offers.OfferDTO, error) {
	if input.StoreID == "" {
		input.StoreID = b.cfg.Storefront.StoreID
	}
	return b.offers.Create(ctx, input)
}

func (b *backend) ArchiveOffer(ctx context.Context, id uuid.UUID) (*offers.OfferDTO, error) {
	return b.offers.Archive(ctx, id)
}

func (b *backend) DeleteOffer(ctx context.Context, id uuid.UUID) error {
	return b.offers.Delete(ctx, id)
}

func (b *backend) SetQuantity(ctx context.Context, offerID uuid.UUID, variantID string, total int, source string) (manifest.QuantityResult, error) {
	if _, err := b.offers.Get(ctx, offerID); err != nil {
		return manifest.QuantityResult{}, err
	}
	return b.quantity.SetQuantity(ctx, offerID, variantID, total, source)
}

func (b *backend) ProcessOrder(ctx context.Context, trigger processing.Trigger) (processing.Result, error) {
	return b.built.Coordinator.ProcessOrder(ctx, trigger)
}

// EnqueueOrder opens a publisher on first use so other commands run without
// Pub/Sub credentials.
func (b *backend) EnqueueOrder(ctx context.Context, event consumer.OrderEvent) (string, error) {
	if b.pubsub == nil {
		client, err := pubsub.NewPublisherClient(ctx, b.cfg.GCP, b.cfg.PubSub, b.logg)
		if err != nil {
			return "", fmt.Errorf("pubsub: %w", err)
		}
		b.pubsub = client
	}
	data, err := json.Marshal(event)
	if err != nil {
		return "", fmt.Errorf("encode order event: %w", err)
	}
	res := b.pubsub.OrderEventsPublisher().Publish(ctx, &gpubsub.Message{
		Data: data,
		Attributes: map[string]string{
			consumer.DeliveryIDAttribute: "lotteryctl-" + uuid.NewString(),
		},
	})
	return res.Get(ctx)
}

func (b *backend) SweepLocks(ctx context.Context) (int64, error) {
	return b.built.Locks.SweepStale(ctx)
}

func (b *backend) Close() error {
	var err error
	if b.pubsub != nil {
		err = multierr.Append(err, b.pubsub.Close())
	}
	if b.db != nil {
		err = multierr.Append(err, b.db.Close())
	}
	return err
}
