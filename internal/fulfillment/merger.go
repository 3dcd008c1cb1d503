package fulfillment

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/angelmondragon/vinlotto-backend/internal/events"
	"github.com/angelmondragon/vinlotto-backend/internal/storefront"
	"github.com/angelmondragon/vinlotto-backend/pkg/enums"
	"github.com/angelmondragon/vinlotto-backend/pkg/logger"
	"github.com/angelmondragon/vinlotto-backend/pkg/metrics"
)

type Result string

const (
	ResultSkipped   Result = "skipped"
	ResultRelabeled Result = "relabeled"
	ResultMerged    Result = "merged"
	ResultRefused   Result = "refused"
	ResultFailed    Result = "failed"
)

// Outcome describes what Consolidate did. It is never an error.
type Outcome struct {
	Result Result `json:"result"`
	Reason string `json:"reason,omitempty"`
	Groups int    `json:"groups"`
	Label  string `json:"label,omitempty"`
}

// GroupService lists and merges an order's fulfillment groups.
type GroupService interface {
	ListFulfillmentGroups(ctx context.Context, orderID string) ([]storefront.FulfillmentGroup, error)
	MergeFulfillmentGroups(ctx context.Context, groups []storefront.MergeGroup) error
}

// ShippingEditor retitles an order's shipping line through an edit.
type ShippingEditor interface {
	BeginEdit(ctx context.Context, orderID string) (*storefront.Edit, error)
	UpdateShippingLine(ctx context.Context, editID, shippingLineID, title string) error
	CommitEdit(ctx context.Context, editID string, notifyCustomer bool) error
}

type MergerParams struct {
	Groups        GroupService
	Editor        ShippingEditor
	GenericLabels []string
	Logger        *logger.Logger
	Metrics       *metrics.ProcessingMetrics
}

// Merger folds the fulfillment groups left behind by incremental edits
// back into one.
type Merger struct {
	groups  GroupService
	editor  ShippingEditor
	generic map[string]struct{}
	logg    *logger.Logger
	metrics *metrics.ProcessingMetrics
}

func NewMerger(params MergerParams) (*Merger, error) {
	if params.Groups == nil {
		return nil, fmt.Errorf("fulfillment group service required")
	}
	if params.Editor == nil {
		return nil, fmt.Errorf("shipping editor required")
	}
	generic := map[string]struct{}{}
	for _, label := range params.GenericLabels {
		if trimmed := strings.TrimSpace(label); trimmed != "" {
			generic[strings.ToLower(trimmed)] = struct{}{}
		}
	}
	return &Merger{
		groups:  params.Groups,
		editor:  params.Editor,
		generic: generic,
		logg:    params.Logger,
		metrics: params.Metrics,
	}, nil
}

// IsGeneric reports whether label carries no real shipping method.
func (m *Merger) IsGeneric(label string) bool {
	trimmed := strings.TrimSpace(label)
	if trimmed == "" {
		return true
	}
	_, ok := m.generic[strings.ToLower(trimmed)]
	return ok
}

// Consolidate merges or relabels the order's open fulfillment groups.
// Failures are traced and returned as ResultFailed.
func (m *Merger) Consolidate(ctx context.Context, order *storefront.Order, sink events.Sink) Outcome {
	sink = events.OrDiscard(sink)
	out := m.consolidate(ctx, order)
	m.metrics.IncFulfillmentResult(string(out.Result))

	fields := map[string]any{"groups": out.Groups}
	if out.Reason != "" {
		fields["reason"] = out.Reason
	}
	if out.Label != "" {
		fields["label"] = out.Label
	}
	switch out.Result {
	case ResultMerged:
		sink.Record(ctx, enums.EventFulfillmentMerged, "fulfillment groups merged", fields)
	case ResultRelabeled:
		sink.Record(ctx, enums.EventFulfillmentRelabeled, "shipping line relabeled", fields)
	case ResultRefused:
		sink.Record(ctx, enums.EventFulfillmentRefused, "fulfillment merge refused", fields)
	case ResultFailed:
		sink.Record(ctx, enums.EventFulfillmentFailed, "fulfillment consolidation failed", fields)
		if m.logg != nil {
			m.logg.Warn(m.logg.WithField(ctx, "reason", out.Reason), "fulfillment consolidation failed")
		}
	default:
		sink.Record(ctx, enums.EventFulfillmentSkipped, "fulfillment consolidation not needed", fields)
	}
	return out
}

func (m *Merger) consolidate(ctx context.Context, order *storefront.Order) Outcome {
	if order == nil {
		return Outcome{Result: ResultFailed, Reason: "order missing"}
	}
	all, err := m.groups.ListFulfillmentGroups(ctx, order.ID)
	if err != nil {
		return Outcome{Result: ResultFailed, Reason: "list fulfillment groups: " + err.Error()}
	}

	candidates := make([]storefront.FulfillmentGroup, 0, len(all))
	for _, group := range all {
		if group.Open() && group.HasQuantity() {
			candidates = append(candidates, group)
		}
	}
	title := m.trueTitle(order, all)

	if len(candidates) < 2 {
		out := Outcome{Result: ResultSkipped, Groups: len(candidates)}
		if len(candidates) == 1 && m.IsGeneric(candidates[0].DeliveryLabel) && title != "" {
			if order.ShippingLine != nil && strings.EqualFold(strings.TrimSpace(order.ShippingLine.Title), title) {
				out.Reason = "shipping line already labeled"
				return out
			}
			return m.relabel(ctx, order, title)
		}
		return out
	}

	first := candidates[0]
	for _, group := range candidates[1:] {
		if group.LocationID != first.LocationID {
			return Outcome{Result: ResultRefused, Groups: len(candidates), Reason: "groups ship from different locations"}
		}
		if !sameTime(group, first) {
			return Outcome{Result: ResultRefused, Groups: len(candidates), Reason: "groups are scheduled at different times"}
		}
	}

	labels := map[string]struct{}{}
	for _, group := range candidates {
		if !m.IsGeneric(group.DeliveryLabel) {
			labels[strings.ToLower(strings.TrimSpace(group.DeliveryLabel))] = struct{}{}
		}
	}
	if len(labels) > 1 {
		return Outcome{Result: ResultRefused, Groups: len(candidates), Reason: "groups carry conflicting shipping labels"}
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return !m.IsGeneric(candidates[i].DeliveryLabel) && m.IsGeneric(candidates[j].DeliveryLabel)
	})
	merge := make([]storefront.MergeGroup, 0, len(candidates))
	for _, group := range candidates {
		entry := storefront.MergeGroup{GroupID: group.ID}
		for _, line := range group.LineItems {
			if line.Quantity > 0 {
				entry.Lines = append(entry.Lines, line)
			}
		}
		merge = append(merge, entry)
	}
	if err := m.groups.MergeFulfillmentGroups(ctx, merge); err != nil {
		return Outcome{Result: ResultFailed, Groups: len(candidates), Reason: "merge fulfillment groups: " + err.Error()}
	}
	return Outcome{Result: ResultMerged, Groups: len(candidates), Label: candidates[0].DeliveryLabel}
}

// trueTitle is the order's own shipping title when it is specific,
// otherwise the first fulfillment group's label when that one is.
func (m *Merger) trueTitle(order *storefront.Order, groups []storefront.FulfillmentGroup) string {
	if order.ShippingLine != nil && !m.IsGeneric(order.ShippingLine.Title) {
		return strings.TrimSpace(order.ShippingLine.Title)
	}
	if len(groups) > 0 && !m.IsGeneric(groups[0].DeliveryLabel) {
		return strings.TrimSpace(groups[0].DeliveryLabel)
	}
	return ""
}

func (m *Merger) relabel(ctx context.Context, order *storefront.Order, title string) Outcome {
	if order.ShippingLine == nil {
		return Outcome{Result: ResultSkipped, Groups: 1, Reason: "order has no shipping line"}
	}
	edit, err := m.editor.BeginEdit(ctx, order.ID)
	if err != nil {
		return Outcome{Result: ResultFailed, Groups: 1, Reason: "begin order edit: " + err.Error()}
	}
	if err := m.editor.UpdateShippingLine(ctx, edit.ID, edit.CalculatedShippingLineID(order.ShippingLine.ID), title); err != nil {
		return Outcome{Result: ResultFailed, Groups: 1, Reason: "update shipping line: " + err.Error()}
	}
	if err := m.editor.CommitEdit(ctx, edit.ID, false); err != nil {
		return Outcome{Result: ResultFailed, Groups: 1, Reason: "commit order edit: " + err.Error()}
	}
	return Outcome{Result: ResultRelabeled, Groups: 1, Label: title}
}

func sameTime(a, b storefront.FulfillmentGroup) bool {
	switch {
	case a.FulfillAt == nil && b.FulfillAt == nil:
		return true
	case a.FulfillAt == nil || b.FulfillAt == nil:
		return false
	default:
		return a.FulfillAt.Equal(*b.FulfillAt)
	}
}
