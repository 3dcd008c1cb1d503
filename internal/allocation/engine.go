package allocation

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/multierr"

	"github.com/angelmondragon/vinlotto-backend/internal/events"
	"github.com/angelmondragon/vinlotto-backend/internal/manifest"
	"github.com/angelmondragon/vinlotto-backend/internal/storefront"
	"github.com/angelmondragon/vinlotto-backend/pkg/enums"
	"github.com/angelmondragon/vinlotto-backend/pkg/logger"
	"github.com/angelmondragon/vinlotto-backend/pkg/metrics"
)

// DefaultDiversityAttempts bounds the release-reshuffle-retry loop.
const DefaultDiversityAttempts = 5

type Outcome string

const (
	OutcomeUnchanged             Outcome = "unchanged"
	OutcomeAllocated             Outcome = "allocated"
	OutcomeReleased              Outcome = "released"
	OutcomeInsufficientInventory Outcome = "insufficient_inventory"
)

// Request moves an order's holding in one offer by Delta rows.
type Request struct {
	OfferID uuid.UUID
	OrderID string
	Delta   int
	// DealVariantID is only used to stop sales when the pool runs dry.
	DealVariantID string
	Sink          events.Sink
}

// RepickRequest releases everything the order holds in the offer and
// claims Total rows from a freshly shuffled pool.
type RepickRequest struct {
	OfferID       uuid.UUID
	OrderID       string
	Total         int
	DealVariantID string
	Forced        bool
	Operator      string
	Sink          events.Sink
}

type Result struct {
	Outcome            Outcome  `json:"outcome"`
	Claimed            int      `json:"claimed"`
	Released           int      `json:"released"`
	Attempts           int      `json:"attempts,omitempty"`
	Variants           []string `json:"variants,omitempty"`
	DiversityExhausted bool     `json:"diversity_exhausted,omitempty"`
	// CompensationErr combines failures of the best-effort shortfall actions.
	CompensationErr error `json:"-"`
}

type EngineParams struct {
	Pool        Pool
	Orders      OrderCanceller
	Inventory   InventoryZeroer
	Shuffle     ShuffleFunc
	Logger      *logger.Logger
	Metrics     *metrics.ProcessingMetrics
	MaxAttempts int
}

// Engine claims and releases manifest rows for orders.
type Engine struct {
	pool        Pool
	orders      OrderCanceller
	inventory   InventoryZeroer
	shuffle     ShuffleFunc
	logg        *logger.Logger
	metrics     *metrics.ProcessingMetrics
	maxAttempts int
}

func NewEngine(params EngineParams) (*Engine, error) {
	if params.Pool == nil {
		return nil, fmt.Errorf("manifest pool required")
	}
	if params.Orders == nil {
		return nil, fmt.Errorf("order canceller required")
	}
	if params.Inventory == nil {
		return nil, fmt.Errorf("inventory service required")
	}
	if params.Shuffle == nil {
		params.Shuffle = RandomShuffle
	}
	if params.MaxAttempts <= 0 {
		params.MaxAttempts = DefaultDiversityAttempts
	}
	return &Engine{
		pool:        params.Pool,
		orders:      params.Orders,
		inventory:   params.Inventory,
		shuffle:     params.Shuffle,
		logg:        params.Logger,
		metrics:     params.Metrics,
		maxAttempts: params.MaxAttempts,
	}, nil
}

// Allocate applies a signed delta. Errors are only returned for pool
// failures; running out of stock is an outcome.
func (e *Engine) Allocate(ctx context.Context, req Request) (Result, error) {
	if req.OrderID == "" {
		return Result{}, fmt.Errorf("order id required")
	}
	switch {
	case req.Delta > 0:
		return e.claim(ctx, req)
	case req.Delta < 0:
		return e.release(ctx, req)
	default:
		return Result{Outcome: OutcomeUnchanged}, nil
	}
}

// Repick re-draws the order's whole holding for the offer.
func (e *Engine) Repick(ctx context.Context, req RepickRequest) (Result, error) {
	if req.OrderID == "" {
		return Result{}, fmt.Errorf("order id required")
	}
	sink := events.OrDiscard(req.Sink)

	released, err := e.pool.ReleaseAll(ctx, req.OfferID, req.OrderID)
	if err != nil {
		return Result{}, err
	}
	e.metrics.AddReleased(int(released))

	kind := enums.EventRepick
	fields := map[string]any{
		"offer_id": req.OfferID.String(),
		"released": released,
		"total":    req.Total,
	}
	if req.Forced {
		kind = enums.EventForceRepick
		fields["operator"] = req.Operator
	}
	sink.Record(ctx, kind, "released holding for re-pick", fields)

	if err := e.reshuffle(ctx, req.OfferID); err != nil {
		return Result{}, err
	}
	if req.Total <= 0 {
		return Result{Outcome: OutcomeReleased, Released: int(released)}, nil
	}

	res, err := e.claim(ctx, Request{
		OfferID:       req.OfferID,
		OrderID:       req.OrderID,
		Delta:         req.Total,
		DealVariantID: req.DealVariantID,
		Sink:          sink,
	})
	res.Released = int(released)
	return res, err
}

func (e *Engine) claim(ctx context.Context, req Request) (Result, error) {
	sink := events.OrDiscard(req.Sink)
	res := Result{}

	for attempt := 1; ; attempt++ {
		res.Attempts = attempt
		claim, err := e.pool.Claim(ctx, req.OfferID, req.OrderID, req.Delta)
		if err != nil {
			return res, err
		}
		if claim.Len() < req.Delta {
			return e.shortfall(ctx, req, claim, res)
		}

		final := req.Delta == 1 || attempt > e.maxAttempts
		if !final {
			retry, err := e.needsDiversity(ctx, req)
			if err != nil {
				return res, err
			}
			final = !retry
		}
		if final {
			if attempt > e.maxAttempts {
				res.DiversityExhausted = true
				sink.Record(ctx, enums.EventDiversityExhausted, "diversity retries exhausted, accepting claim", map[string]any{
					"offer_id": req.OfferID.String(),
					"attempts": attempt,
				})
			}
			res.Outcome = OutcomeAllocated
			res.Claimed = claim.Len()
			res.Variants = claim.Variants()
			e.metrics.AddClaimed(claim.Len())
			sink.Record(ctx, enums.EventItemsClaimed, "claimed manifest items", map[string]any{
				"offer_id": req.OfferID.String(),
				"claimed":  claim.Len(),
				"variants": res.Variants,
				"attempts": attempt,
			})
			return res, nil
		}

		if _, err := e.pool.ReleaseClaim(ctx, claim.Token); err != nil {
			return res, err
		}
		if err := e.reshuffle(ctx, req.OfferID); err != nil {
			return res, err
		}
		e.metrics.IncDiversityRetry()
		sink.Record(ctx, enums.EventDiversityRetry, "claim lacked variety, redrawing", map[string]any{
			"offer_id": req.OfferID.String(),
			"attempt":  attempt,
			"variants": claim.Variants(),
		})
	}
}

// needsDiversity reports whether the order's holding is a single variant
// while the free pool still offers a different one.
func (e *Engine) needsDiversity(ctx context.Context, req Request) (bool, error) {
	held, err := e.pool.ClaimedVariantCounts(ctx, req.OrderID, req.OfferID)
	if err != nil {
		return false, err
	}
	if len(held) != 1 {
		return false, nil
	}
	free, err := e.pool.FreeVariants(ctx, req.OfferID)
	if err != nil {
		return false, err
	}
	for _, variant := range free {
		if _, ok := held[variant]; !ok {
			return true, nil
		}
	}
	return false, nil
}

func (e *Engine) shortfall(ctx context.Context, req Request, claim manifest.Claim, res Result) (Result, error) {
	sink := events.OrDiscard(req.Sink)
	if claim.Len() > 0 {
		if _, err := e.pool.ReleaseClaim(ctx, claim.Token); err != nil {
			return res, err
		}
	}
	res.Outcome = OutcomeInsufficientInventory
	sink.Record(ctx, enums.EventInsufficientStock, "not enough free manifest items", map[string]any{
		"offer_id":  req.OfferID.String(),
		"requested": req.Delta,
		"available": claim.Len(),
	})

	var errs error
	if err := e.orders.CancelOrder(ctx, req.OrderID, storefront.CancelReasonInventory); err != nil {
		errs = multierr.Append(errs, fmt.Errorf("cancel order: %w", err))
		sink.Record(ctx, enums.EventCompensationFailed, "order cancellation failed", map[string]any{"error": err.Error()})
	} else {
		sink.Record(ctx, enums.EventCompensationApplied, "order cancelled", nil)
	}
	if req.DealVariantID != "" {
		if err := e.inventory.ZeroInventory(ctx, req.DealVariantID); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("zero deal inventory: %w", err))
			sink.Record(ctx, enums.EventCompensationFailed, "deal inventory zeroing failed", map[string]any{
				"deal_variant_id": req.DealVariantID,
				"error":           err.Error(),
			})
		} else {
			sink.Record(ctx, enums.EventCompensationApplied, "deal inventory zeroed", map[string]any{
				"deal_variant_id": req.DealVariantID,
			})
		}
	}
	if errs != nil && e.logg != nil {
		e.logg.Error(e.logg.WithOrderID(ctx, req.OrderID), "shortfall compensation incomplete", errs)
	}
	res.CompensationErr = errs
	return res, nil
}

func (e *Engine) release(ctx context.Context, req Request) (Result, error) {
	sink := events.OrDiscard(req.Sink)
	released, err := e.pool.Release(ctx, req.OfferID, req.OrderID, -req.Delta)
	if err != nil {
		return Result{}, err
	}
	e.metrics.AddReleased(int(released))
	sink.Record(ctx, enums.EventItemsReleased, "released manifest items", map[string]any{
		"offer_id":  req.OfferID.String(),
		"requested": -req.Delta,
		"released":  released,
	})
	return Result{Outcome: OutcomeReleased, Released: int(released)}, nil
}

func (e *Engine) reshuffle(ctx context.Context, offerID uuid.UUID) error {
	ids, err := e.pool.FreeItemIDs(ctx, offerID)
	if err != nil {
		return err
	}
	if len(ids) < 2 {
		return nil
	}
	e.shuffle(ids)
	_, err = e.pool.Rekey(ctx, offerID, ids)
	return err
}
