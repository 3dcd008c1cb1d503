package processing

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/angelmondragon/vinlotto-backend/internal/allocation"
	"github.com/angelmondragon/vinlotto-backend/internal/events"
	"github.com/angelmondragon/vinlotto-backend/internal/fulfillment"
	"github.com/angelmondragon/vinlotto-backend/internal/linesync"
	"github.com/angelmondragon/vinlotto-backend/internal/storefront"
	"github.com/angelmondragon/vinlotto-backend/pkg/clock"
	"github.com/angelmondragon/vinlotto-backend/pkg/db/models"
	"github.com/angelmondragon/vinlotto-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/vinlotto-backend/pkg/errors"
	"github.com/angelmondragon/vinlotto-backend/pkg/logger"
	"github.com/angelmondragon/vinlotto-backend/pkg/metrics"
)

type Outcome string

const (
	OutcomeCompleted             Outcome = "completed"
	OutcomeSkipped               Outcome = "skipped"
	OutcomeCancelled             Outcome = "cancelled"
	OutcomeInsufficientInventory Outcome = "insufficient_inventory"
	OutcomeExternalError         Outcome = "external_error"
	OutcomeFailed                Outcome = "failed"
)

type Action string

const (
	ActionNone        Action = "none"
	ActionAllocate    Action = "allocate"
	ActionRepick      Action = "repick"
	ActionForceRepick Action = "force_repick"
)

// Trigger is one request to reconcile an order.
type Trigger struct {
	OrderID     string
	Source      enums.TriggerSource
	ForceRepick bool
	Operator    string
	DeliveryID  string
}

type OfferResult struct {
	OfferID       uuid.UUID         `json:"offer_id"`
	DealVariantID string            `json:"deal_variant_id"`
	Owed          int               `json:"owed"`
	Held          int               `json:"held"`
	Delta         int               `json:"delta"`
	Action        Action            `json:"action"`
	Allocation    allocation.Result `json:"allocation"`
}

type Result struct {
	RunID       uuid.UUID            `json:"run_id"`
	OrderID     string               `json:"order_id"`
	Outcome     Outcome              `json:"outcome"`
	Offers      []OfferResult        `json:"offers,omitempty"`
	LineSync    *linesync.Plan       `json:"line_sync,omitempty"`
	LineSyncErr string               `json:"line_sync_error,omitempty"`
	Fulfillment *fulfillment.Outcome `json:"fulfillment,omitempty"`
}

type Params struct {
	Locks            orderLocker
	Orders           orderReader
	Offers           offerFinder
	Holdings         holdings
	Engine           allocator
	Syncer           lineSyncer
	Merger           groupMerger
	Events           events.Appender
	Logger           *logger.Logger
	Clock            clock.Clock
	Metrics          *metrics.ProcessingMetrics
	RepickOnIncrease bool
}

// Coordinator runs the allocate, sync and merge sequence for one order at
// a time per order id.
type Coordinator struct {
	locks            orderLocker
	orders           orderReader
	offers           offerFinder
	holdings         holdings
	engine           allocator
	syncer           lineSyncer
	merger           groupMerger
	events           events.Appender
	logg             *logger.Logger
	clock            clock.Clock
	metrics          *metrics.ProcessingMetrics
	repickOnIncrease bool
}

func NewCoordinator(p Params) (*Coordinator, error) {
	switch {
	case p.Locks == nil:
		return nil, fmt.Errorf("order lock required")
	case p.Orders == nil:
		return nil, fmt.Errorf("order service required")
	case p.Offers == nil:
		return nil, fmt.Errorf("offer repository required")
	case p.Holdings == nil:
		return nil, fmt.Errorf("manifest repository required")
	case p.Engine == nil:
		return nil, fmt.Errorf("allocation engine required")
	case p.Syncer == nil:
		return nil, fmt.Errorf("line syncer required")
	case p.Merger == nil:
		return nil, fmt.Errorf("fulfillment merger required")
	case p.Logger == nil:
		return nil, fmt.Errorf("logger required")
	}
	if p.Clock == nil {
		p.Clock = clock.NewSystem()
	}
	return &Coordinator{
		locks:            p.Locks,
		orders:           p.Orders,
		offers:           p.Offers,
		holdings:         p.Holdings,
		engine:           p.Engine,
		syncer:           p.Syncer,
		merger:           p.Merger,
		events:           p.Events,
		logg:             p.Logger,
		clock:            p.Clock,
		metrics:          p.Metrics,
		repickOnIncrease: p.RepickOnIncrease,
	}, nil
}

// ProcessOrder reconciles the order's pool holding with its current state.
// A run that finds the order locked is skipped, not failed.
func (c *Coordinator) ProcessOrder(ctx context.Context, trigger Trigger) (Result, error) {
	trigger.OrderID = strings.TrimSpace(trigger.OrderID)
	if trigger.OrderID == "" {
		return Result{}, pkgerrors.New(pkgerrors.CodeValidation, "order id is required")
	}
	if trigger.Source == "" {
		trigger.Source = enums.TriggerSourceWebhook
	}
	if !trigger.Source.IsValid() {
		return Result{}, pkgerrors.New(pkgerrors.CodeValidation, "unknown trigger source")
	}
	if trigger.ForceRepick && strings.TrimSpace(trigger.Operator) == "" {
		return Result{}, pkgerrors.New(pkgerrors.CodeValidation, "operator is required for a forced re-pick")
	}

	trace := events.NewTrace(c.events, c.logg, c.clock, trigger.OrderID, trigger.Source)
	ctx = c.logg.WithOrderID(ctx, trigger.OrderID)
	ctx = c.logg.WithRunID(ctx, trace.RunID().String())

	result := Result{RunID: trace.RunID(), OrderID: trigger.OrderID}
	var runErr error
	acquired, err := c.locks.Do(ctx, trigger.OrderID, func(ctx context.Context) error {
		runErr = c.run(ctx, trigger, trace, &result)
		return runErr
	})
	switch {
	case err != nil && runErr == nil && acquired:
		// The row goes stale on its own.
		c.logg.Error(ctx, "failed to release order lock", err)
		err = nil
	case err != nil && runErr == nil:
		result.Outcome = OutcomeFailed
		trace.Record(ctx, enums.EventRunFailed, "order lock unavailable", map[string]any{"error": err.Error()})
		err = pkgerrors.Wrap(pkgerrors.CodeInternal, err, "acquire order lock")
	case !acquired:
		result.Outcome = OutcomeSkipped
		trace.Record(ctx, enums.EventRunSkipped, "order is locked by another run", nil)
	}

	c.metrics.ObserveRun(string(result.Outcome), trace.Elapsed())
	return result, err
}

func (c *Coordinator) run(ctx context.Context, trigger Trigger, trace *events.Trace, result *Result) error {
	trace.Record(ctx, enums.EventRunStarted, "processing run started", map[string]any{
		"source":       string(trigger.Source),
		"force_repick": trigger.ForceRepick,
		"operator":     trigger.Operator,
		"delivery_id":  trigger.DeliveryID,
	})

	order, err := c.orders.GetOrder(ctx, trigger.OrderID)
	if err != nil {
		result.Outcome = OutcomeExternalError
		trace.Record(ctx, enums.EventRunFailed, "order could not be loaded", map[string]any{"error": err.Error()})
		if pkgerrors.As(err) != nil {
			return err
		}
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
	}
	trace.Record(ctx, enums.EventOrderLoaded, "order loaded", map[string]any{
		"name":      order.Name,
		"lines":     len(order.LineItems),
		"cancelled": order.Cancelled(),
	})

	offers, err := c.consideredOffers(ctx, order)
	if err != nil {
		return c.fail(ctx, trace, result, err, "resolve offers")
	}

	shortfall := false
	for _, offer := range offers {
		offerResult, err := c.reconcileOffer(ctx, trigger, order, offer, trace)
		result.Offers = append(result.Offers, offerResult)
		if err != nil {
			return c.fail(ctx, trace, result, err, "allocate offer "+offer.ID.String())
		}
		if offerResult.Allocation.Outcome == allocation.OutcomeInsufficientInventory {
			shortfall = true
		}
	}

	switch {
	case shortfall:
		result.Outcome = OutcomeInsufficientInventory
	case order.Cancelled():
		result.Outcome = OutcomeCancelled
	default:
		result.Outcome = OutcomeCompleted
		if len(offers) > 0 {
			if err := c.syncAndMerge(ctx, order, offers, trace, result); err != nil {
				return c.fail(ctx, trace, result, err, "compute desired lines")
			}
		}
	}

	trace.Record(ctx, enums.EventRunCompleted, "processing run completed", map[string]any{
		"outcome": string(result.Outcome),
		"offers":  len(offers),
	})
	return nil
}

func (c *Coordinator) fail(ctx context.Context, trace *events.Trace, result *Result, err error, step string) error {
	result.Outcome = OutcomeFailed
	trace.Record(ctx, enums.EventRunFailed, "processing run failed", map[string]any{
		"step":  step,
		"error": err.Error(),
	})
	c.logg.Error(ctx, "processing run failed", err)
	if pkgerrors.As(err) != nil {
		return err
	}
	return pkgerrors.Wrap(pkgerrors.CodeInternal, err, step)
}

// consideredOffers returns the offers whose deal variant is on the order
// together with every offer the order already holds rows in.
func (c *Coordinator) consideredOffers(ctx context.Context, order *storefront.Order) ([]models.Offer, error) {
	dealVariants := map[string]struct{}{}
	for _, line := range order.LineItems {
		if line.VariantID != "" {
			dealVariants[line.VariantID] = struct{}{}
		}
	}
	variantIDs := make([]string, 0, len(dealVariants))
	for id := range dealVariants {
		variantIDs = append(variantIDs, id)
	}
	sort.Strings(variantIDs)

	byDeal, err := c.offers.FindByDealVariants(ctx, variantIDs)
	if err != nil {
		return nil, err
	}
	held, err := c.holdings.OffersClaimedBy(ctx, order.ID)
	if err != nil {
		return nil, err
	}

	seen := make(map[uuid.UUID]struct{}, len(byDeal)+len(held))
	offers := make([]models.Offer, 0, len(byDeal)+len(held))
	for _, offer := range byDeal {
		seen[offer.ID] = struct{}{}
		offers = append(offers, offer)
	}
	var missing []uuid.UUID
	for _, id := range held {
		if _, ok := seen[id]; !ok {
			missing = append(missing, id)
		}
	}
	if len(missing) > 0 {
		extra, err := c.offers.FindByIDs(ctx, missing)
		if err != nil {
			return nil, err
		}
		offers = append(offers, extra...)
	}
	return offers, nil
}

// owedFor sums the paid quantities of the offer's deal variant. Cancelled
// orders owe nothing.
func owedFor(order *storefront.Order, dealVariantID string) int {
	if order.Cancelled() {
		return 0
	}
	owed := 0
	for _, line := range order.LineItems {
		if line.VariantID == dealVariantID && line.Paid() && line.Quantity > 0 {
			owed += line.Quantity
		}
	}
	return owed
}

func (c *Coordinator) reconcileOffer(ctx context.Context, trigger Trigger, order *storefront.Order, offer models.Offer, trace *events.Trace) (OfferResult, error) {
	ctx = c.logg.WithField(ctx, "offer_id", offer.ID.String())
	held, err := c.holdings.CountClaimed(ctx, offer.ID, order.ID)
	if err != nil {
		return OfferResult{OfferID: offer.ID}, err
	}
	owed := owedFor(order, offer.DealVariantID)
	res := OfferResult{
		OfferID:       offer.ID,
		DealVariantID: offer.DealVariantID,
		Owed:          owed,
		Held:          held,
		Delta:         owed - held,
		Action:        ActionNone,
	}
	trace.Record(ctx, enums.EventOwedComputed, "owed quantity computed", map[string]any{
		"offer_id": offer.ID.String(),
		"owed":     owed,
		"held":     held,
		"delta":    res.Delta,
	})

	switch {
	case trigger.ForceRepick && owed > 0:
		res.Action = ActionForceRepick
		res.Allocation, err = c.engine.Repick(ctx, allocation.RepickRequest{
			OfferID:       offer.ID,
			OrderID:       order.ID,
			Total:         owed,
			DealVariantID: offer.DealVariantID,
			Forced:        true,
			Operator:      trigger.Operator,
			Sink:          trace,
		})
	case res.Delta > 0 && held > 0 && c.repickOnIncrease:
		res.Action = ActionRepick
		res.Allocation, err = c.engine.Repick(ctx, allocation.RepickRequest{
			OfferID:       offer.ID,
			OrderID:       order.ID,
			Total:         owed,
			DealVariantID: offer.DealVariantID,
			Sink:          trace,
		})
	case res.Delta != 0:
		res.Action = ActionAllocate
		res.Allocation, err = c.engine.Allocate(ctx, allocation.Request{
			OfferID:       offer.ID,
			OrderID:       order.ID,
			Delta:         res.Delta,
			DealVariantID: offer.DealVariantID,
			Sink:          trace,
		})
	default:
		res.Allocation = allocation.Result{Outcome: allocation.OutcomeUnchanged}
	}
	return res, err
}

func (c *Coordinator) syncAndMerge(ctx context.Context, order *storefront.Order, offers []models.Offer, trace *events.Trace, result *Result) error {
	ids := make([]uuid.UUID, 0, len(offers))
	for _, offer := range offers {
		ids = append(ids, offer.ID)
	}
	variants, err := c.holdings.DistinctVariants(ctx, ids...)
	if err != nil {
		return err
	}
	counts, err := c.holdings.ClaimedVariantCounts(ctx, order.ID, ids...)
	if err != nil {
		return err
	}
	desired := make(map[string]int, len(variants))
	for _, variant := range variants {
		desired[variant] = counts[variant]
	}

	plan, err := c.syncer.Sync(ctx, order, desired, trace)
	result.LineSync = &plan
	if err != nil {
		result.LineSyncErr = err.Error()
		c.logg.Warn(c.logg.WithField(ctx, "error", err.Error()), "order line sync failed")
	}

	outcome := c.merger.Consolidate(ctx, order, trace)
	result.Fulfillment = &outcome
	return nil
}
