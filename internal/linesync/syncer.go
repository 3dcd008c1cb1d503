package linesync

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/angelmondragon/vinlotto-backend/internal/events"
	"github.com/angelmondragon/vinlotto-backend/internal/storefront"
	"github.com/angelmondragon/vinlotto-backend/pkg/enums"
)

// AllocatedLineDiscount is the description on the 100% override given to
// added lines.
const AllocatedLineDiscount = "Lottery allocation"

var fullDiscount = decimal.NewFromInt(100)

// OrderEditor is the part of the order service the syncer writes through.
type OrderEditor interface {
	BeginEdit(ctx context.Context, orderID string) (*storefront.Edit, error)
	AddVariant(ctx context.Context, editID, variantID string, quantity int) (string, error)
	AddLineDiscount(ctx context.Context, editID, lineID string, percent decimal.Decimal, description string) error
	SetQuantity(ctx context.Context, editID, lineID string, quantity int) error
	CommitEdit(ctx context.Context, editID string, notifyCustomer bool) error
}

type Syncer struct {
	editor OrderEditor
}

func NewSyncer(editor OrderEditor) (*Syncer, error) {
	if editor == nil {
		return nil, fmt.Errorf("order editor required")
	}
	return &Syncer{editor: editor}, nil
}

// Sync brings the order's manifest lines to the desired counts. When the
// plan is empty nothing is written.
func (s *Syncer) Sync(ctx context.Context, order *storefront.Order, desired map[string]int, sink events.Sink) (Plan, error) {
	if order == nil {
		return Plan{}, fmt.Errorf("order required")
	}
	sink = events.OrDiscard(sink)
	plan := BuildPlan(order.LineItems, desired)
	if plan.Empty() {
		sink.Record(ctx, enums.EventLinesInSync, "order lines already match allocation", nil)
		return plan, nil
	}

	if err := s.apply(ctx, order.ID, plan); err != nil {
		sink.Record(ctx, enums.EventLineSyncFailed, "order line sync failed", map[string]any{
			"error": err.Error(),
			"ops":   plan.Ops,
		})
		return plan, err
	}
	sink.Record(ctx, enums.EventLinesSynced, "order lines synced", map[string]any{
		"added":   plan.Count(OpAdd),
		"updated": plan.Count(OpSetQuantity),
		"ops":     plan.Ops,
	})
	return plan, nil
}

func (s *Syncer) apply(ctx context.Context, orderID string, plan Plan) error {
	edit, err := s.editor.BeginEdit(ctx, orderID)
	if err != nil {
		return fmt.Errorf("begin order edit: %w", err)
	}
	for _, op := range plan.Ops {
		switch op.Kind {
		case OpAdd:
			lineID, err := s.editor.AddVariant(ctx, edit.ID, op.VariantID, op.Quantity)
			if err != nil {
				return fmt.Errorf("add variant %s: %w", op.VariantID, err)
			}
			if err := s.editor.AddLineDiscount(ctx, edit.ID, lineID, fullDiscount, AllocatedLineDiscount); err != nil {
				return fmt.Errorf("discount variant %s: %w", op.VariantID, err)
			}
		case OpSetQuantity:
			if err := s.editor.SetQuantity(ctx, edit.ID, edit.CalculatedLineID(op.LineItemID), op.Quantity); err != nil {
				return fmt.Errorf("set quantity on %s: %w", op.LineItemID, err)
			}
		}
	}
	if err := s.editor.CommitEdit(ctx, edit.ID, false); err != nil {
		return fmt.Errorf("commit order edit: %w", err)
	}
	return nil
}
