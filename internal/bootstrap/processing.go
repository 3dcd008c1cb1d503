// Package bootstrap assembles the processing graph shared by the worker and
// the operator CLI.
package bootstrap

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"gorm.io/gorm"

	"github.com/angelmondragon/vinlotto-backend/internal/allocation"
	"github.com/angelmondragon/vinlotto-backend/internal/events"
	"github.com/angelmondragon/vinlotto-backend/internal/fulfillment"
	"github.com/angelmondragon/vinlotto-backend/internal/linesync"
	"github.com/angelmondragon/vinlotto-backend/internal/locks"
	"github.com/angelmondragon/vinlotto-backend/internal/manifest"
	"github.com/angelmondragon/vinlotto-backend/internal/offers"
	"github.com/angelmondragon/vinlotto-backend/internal/processing"
	"github.com/angelmondragon/vinlotto-backend/internal/storefront"
	"github.com/angelmondragon/vinlotto-backend/pkg/clock"
	"github.com/angelmondragon/vinlotto-backend/pkg/config"
	"github.com/angelmondragon/vinlotto-backend/pkg/logger"
	"github.com/angelmondragon/vinlotto-backend/pkg/metrics"
)

type Deps struct {
	Config     *config.Config
	Logger     *logger.Logger
	DB         *gorm.DB
	Storefront *storefront.Client
	Registerer prometheus.Registerer
	Clock      clock.Clock
}

// Processing exposes the coordinator and the stores behind it.
type Processing struct {
	Coordinator *processing.Coordinator
	Events      *events.Repository
	Locks       *locks.OrderLock
	Manifest    *manifest.Repository
	Offers      *offers.Repository
	Metrics     *metrics.ProcessingMetrics
}

// NewStorefront builds the GraphQL client from configuration.
func NewStorefront(cfg config.StorefrontConfig) (*storefront.Client, error) {
	return storefront.NewClient(cfg.Endpoint(), cfg.AccessToken, cfg.Timeout,
		storefront.WithLocationID(cfg.LocationID))
}

func NewProcessing(d Deps) (*Processing, error) {
	switch {
	case d.Config == nil:
		return nil, fmt.Errorf("config required")
	case d.Logger == nil:
		return nil, fmt.Errorf("logger required")
	case d.DB == nil:
		return nil, fmt.Errorf("database required")
	case d.Storefront == nil:
		return nil, fmt.Errorf("storefront client required")
	}
	clk := d.Clock
	if clk == nil {
		clk = clock.NewSystem()
	}
	m := metrics.NewProcessingMetrics(d.Registerer)

	pool := manifest.NewRepository(d.DB, clk)
	offerRepo := offers.NewRepository(d.DB)
	eventRepo := events.NewRepository(d.DB)
	orderLock, err := locks.NewOrderLock(d.DB, clk)
	if err != nil {
		return nil, fmt.Errorf("order lock: %w", err)
	}

	engine, err := allocation.NewEngine(allocation.EngineParams{
		Pool:        pool,
		Orders:      d.Storefront,
		Inventory:   d.Storefront,
		Logger:      d.Logger,
		Metrics:     m,
		MaxAttempts: d.Config.Allocation.DiversityAttempts,
	})
	if err != nil {
		return nil, fmt.Errorf("allocation engine: %w", err)
	}
	syncer, err := linesync.NewSyncer(d.Storefront)
	if err != nil {
		return nil, fmt.Errorf("line syncer: %w", err)
	}
	merger, err := fulfillment.NewMerger(fulfillment.MergerParams{
		Groups:        d.Storefront,
		Editor:        d.Storefront,
		GenericLabels: d.Config.Allocation.GenericShippingLabels,
		Logger:        d.Logger,
		Metrics:       m,
	})
	if err != nil {
		return nil, fmt.Errorf("fulfillment merger: %w", err)
	}

	coord, err := processing.NewCoordinator(processing.Params{
		Locks:            orderLock,
		Orders:           d.Storefront,
		Offers:           offerRepo,
		Holdings:         pool,
		Engine:           engine,
		Syncer:           syncer,
		Merger:           merger,
		Events:           eventRepo,
		Logger:           d.Logger,
		Clock:            clk,
		Metrics:          m,
		RepickOnIncrease: d.Config.Allocation.RepickOnIncrease,
	})
	if err != nil {
		return nil, fmt.Errorf("coordinator: %w", err)
	}

	return &Processing{
		Coordinator: coord,
		Events:      eventRepo,
		Locks:       orderLock,
		Manifest:    pool,
		Offers:      offerRepo,
		Metrics:     m,
	}, nil
}
