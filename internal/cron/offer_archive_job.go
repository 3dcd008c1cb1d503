package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"

	"github.com/angelmondragon/vinlotto-backend/pkg/clock"
	"github.com/angelmondragon/vinlotto-backend/pkg/db/models"
	"github.com/angelmondragon/vinlotto-backend/pkg/logger"
)

const defaultArchiveGrace = 72 * time.Hour

type archivableOffers interface {
	ListArchivable(ctx context.Context, cutoff time.Time) ([]models.Offer, error)
	Archive(ctx context.Context, id uuid.UUID, at time.Time) (bool, error)
}

type offerClaims interface {
	ClaimingOrders(ctx context.Context, offerID uuid.UUID) ([]string, error)
}

type lockInspector interface {
	Held(ctx context.Context, orderIDs ...string) (bool, error)
}

type OfferArchiveJobParams struct {
	Logger *logger.Logger
	Offers archivableOffers
	Claims offerClaims
	Locks  lockInspector
	Clock  clock.Clock
	Grace  time.Duration
}

// NewOfferArchiveJob archives offers whose sale window closed more than the
// grace period ago, skipping any whose orders are still being processed.
func NewOfferArchiveJob(params OfferArchiveJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Offers == nil {
		return nil, fmt.Errorf("offers repository required")
	}
	if params.Claims == nil {
		return nil, fmt.Errorf("manifest repository required")
	}
	if params.Locks == nil {
		return nil, fmt.Errorf("order locks required")
	}
	clk := params.Clock
	if clk == nil {
		clk = clock.NewSystem()
	}
	grace := params.Grace
	if grace <= 0 {
		grace = defaultArchiveGrace
	}
	return &offerArchiveJob{
		logg:   params.Logger,
		offers: params.Offers,
		claims: params.Claims,
		locks:  params.Locks,
		clock:  clk,
		grace:  grace,
	}, nil
}

type offerArchiveJob struct {
	logg   *logger.Logger
	offers archivableOffers
	claims offerClaims
	locks  lockInspector
	clock  clock.Clock
	grace  time.Duration
}

func (j *offerArchiveJob) Name() string { return "offer-archive" }

func (j *offerArchiveJob) Run(ctx context.Context) error {
	now := j.clock.Now().UTC()
	cutoff := now.Add(-j.grace)
	candidates, err := j.offers.ListArchivable(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("list archivable offers: %w", err)
	}

	var (
		errs     error
		archived int
		busy     int
	)
	for _, offer := range candidates {
		offerCtx := j.logg.WithField(ctx, "offer_id", offer.ID.String())
		orders, err := j.claims.ClaimingOrders(ctx, offer.ID)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("offer %s: %w", offer.ID, err))
			continue
		}
		held, err := j.locks.Held(ctx, orders...)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("offer %s: %w", offer.ID, err))
			continue
		}
		if held {
			busy++
			j.logg.Info(offerCtx, "offer has orders in flight; archive deferred")
			continue
		}
		changed, err := j.offers.Archive(ctx, offer.ID, now)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("offer %s: %w", offer.ID, err))
			continue
		}
		if changed {
			archived++
		}
	}

	j.logg.Info(j.logg.WithFields(ctx, map[string]any{
		"cutoff":     cutoff,
		"candidates": len(candidates),
		"archived":   archived,
		"deferred":   busy,
	}), "offer archive complete")
	return errs
}
